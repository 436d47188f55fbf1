// Package records defines the processing record data model and the store
// contract that backs the triage pipeline, with in-memory and SQL implementations.
package records

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Format is the structural category of an input payload.
type Format string

const (
	FormatEmail   Format = "EMAIL"
	FormatJSON    Format = "JSON"
	FormatPDF     Format = "PDF"
	FormatUnknown Format = "UNKNOWN"
)

// Intent is the classified business purpose of a payload.
type Intent string

const (
	IntentRFQ        Intent = "RFQ"
	IntentComplaint  Intent = "COMPLAINT"
	IntentInvoice    Intent = "INVOICE"
	IntentRegulation Intent = "REGULATION"
	IntentFraudRisk  Intent = "FRAUD_RISK"
	IntentOther      Intent = "OTHER"
)

// Priority is the urgency tier attached to a request.
type Priority string

const (
	PriorityHigh   Priority = "HIGH"
	PriorityMedium Priority = "MEDIUM"
	PriorityLow    Priority = "LOW"
)

// Source tags the ingestion channel a request arrived on.
type Source string

const (
	SourceFile  Source = "file"
	SourceJSON  Source = "json"
	SourceEmail Source = "email"
)

// Valid reports whether s is one of the known ingestion sources.
func (s Source) Valid() bool {
	switch s {
	case SourceFile, SourceJSON, SourceEmail:
		return true
	}
	return false
}

// ActionType identifies the follow-up action selected for a request.
type ActionType string

const (
	ActionCreateTicket          ActionType = "CREATE_TICKET"
	ActionCreateRiskAlert       ActionType = "CREATE_RISK_ALERT"
	ActionLogComplianceIssue    ActionType = "LOG_COMPLIANCE_ISSUE"
	ActionCreateApprovalRequest ActionType = "CREATE_APPROVAL_REQUEST"
	ActionLogOnly               ActionType = "LOG_ONLY"
)

// ActionStatus is the execution outcome of an action.
type ActionStatus string

const (
	ActionPending   ActionStatus = "PENDING"
	ActionCompleted ActionStatus = "COMPLETED"
	ActionFailed    ActionStatus = "FAILED"
)

// Severity grades anomalies and flags raised by processors.
type Severity string

const (
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

// Status tracks how far a record has progressed through the pipeline.
type Status string

const (
	StatusReceived   Status = "received"
	StatusClassified Status = "classified"
	StatusProcessed  Status = "processed"
	StatusCompleted  Status = "completed"
)

// Request is an ingested payload. Immutable once created.
type Request struct {
	ID        uuid.UUID `json:"id"`
	Source    Source    `json:"source"`
	Payload   string    `json:"payload"`
	FilePath  string    `json:"file_path,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Classification holds the format, intent and priority assigned to a request.
type Classification struct {
	Format           Format   `json:"format"`
	FormatConfidence float64  `json:"format_confidence"`
	Intent           Intent   `json:"intent"`
	Confidence       float64  `json:"confidence"`
	Priority         Priority `json:"priority"`
	PriorityRule     string   `json:"priority_rule"`
	Evidence         []string `json:"evidence"`
}

// Signals are the numeric and boolean facts a processor surfaces for
// priority resolution and action routing.
type Signals struct {
	Total           *float64 `json:"total,omitempty"`
	HighValue       bool     `json:"high_value"`
	UrgencyMarkers  int      `json:"urgency_markers"`
	ComplianceTerms []string `json:"compliance_terms,omitempty"`
	Escalate        bool     `json:"escalate"`
}

// ProcessingResult is the output of the format processor matching the
// classified format. Exactly one analysis field is set, none for UNKNOWN.
type ProcessingResult struct {
	Processor  string         `json:"processor"`
	Format     Format         `json:"format"`
	Fields     map[string]any `json:"fields"`
	Email      *EmailAnalysis `json:"email,omitempty"`
	JSON       *JSONAnalysis  `json:"json,omitempty"`
	PDF        *PDFAnalysis   `json:"pdf,omitempty"`
	Signals    Signals        `json:"signals"`
	ParseError bool           `json:"parse_error"`
	Error      string         `json:"error,omitempty"`
}

// EmailAnalysis carries tone and urgency findings for an email.
type EmailAnalysis struct {
	Tone           string   `json:"tone"`
	ToneMarkers    []string `json:"tone_markers"`
	Urgency        string   `json:"urgency"`
	UrgencyMarkers []string `json:"urgency_markers"`
	Recommendation string   `json:"recommendation"`
}

// JSONAnalysis carries schema validation and anomaly findings for a JSON payload.
type JSONAnalysis struct {
	Schema           string      `json:"schema"`
	SchemaConfidence float64     `json:"schema_confidence"`
	IsValid          bool        `json:"is_valid"`
	MissingFields    []string    `json:"missing_fields"`
	TypeErrors       []TypeError `json:"type_errors"`
	Anomalies        []Anomaly   `json:"anomalies"`
}

// TypeError records a schema field whose value has an unexpected type.
type TypeError struct {
	Field    string `json:"field"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
}

// Anomaly is a severity-tagged heuristic finding.
type Anomaly struct {
	Type     string   `json:"type"`
	Severity Severity `json:"severity"`
	Field    string   `json:"field,omitempty"`
	Detail   string   `json:"detail"`
}

// PDFAnalysis carries the line-item table and flags extracted from PDF text.
type PDFAnalysis struct {
	DocumentType string     `json:"document_type"`
	LineItems    []LineItem `json:"line_items"`
	Subtotal     float64    `json:"subtotal"`
	Tax          float64    `json:"tax"`
	TotalDue     float64    `json:"total_due"`
	Flags        []Flag     `json:"flags"`
}

// LineItem is one row of a PDF line-item table.
type LineItem struct {
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	Total       float64 `json:"total"`
}

// Flag is a severity-tagged PDF finding.
type Flag struct {
	Type     string   `json:"type"`
	Severity Severity `json:"severity"`
	Detail   string   `json:"detail"`
}

// HasFlag reports whether a flag of the given type was raised.
func (a *PDFAnalysis) HasFlag(flagType string) bool {
	for _, f := range a.Flags {
		if f.Type == flagType {
			return true
		}
	}
	return false
}

// ActionResult is the terminal outcome of action routing.
type ActionResult struct {
	Type        ActionType   `json:"type"`
	Status      ActionStatus `json:"status"`
	Message     string       `json:"message"`
	Identifier  string       `json:"identifier,omitempty"`
	Reasoning   string       `json:"reasoning"`
	CompletedAt time.Time    `json:"completed_at"`
}

// TraceEntry is one event in a record's audit trace. Seq is assigned by the
// store on append and is the only ordering key.
type TraceEntry struct {
	Seq       int             `json:"seq"`
	Timestamp time.Time       `json:"timestamp"`
	Agent     string          `json:"agent"`
	Action    string          `json:"action"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// ProcessingRecord aggregates everything known about a request.
type ProcessingRecord struct {
	Request          Request           `json:"request"`
	Status           Status            `json:"status"`
	Classification   *Classification   `json:"classification,omitempty"`
	ProcessingResult *ProcessingResult `json:"processing_result,omitempty"`
	ActionResult     *ActionResult     `json:"action_result,omitempty"`
	Trace            []TraceEntry      `json:"trace"`
}

// Finalized reports whether the record has reached a terminal ActionResult.
func (r *ProcessingRecord) Finalized() bool {
	return r.ActionResult != nil
}

// Summary is the list projection of a record.
type Summary struct {
	ID         uuid.UUID  `json:"id"`
	Source     Source     `json:"source"`
	Status     Status     `json:"status"`
	Format     Format     `json:"format,omitempty"`
	Intent     Intent     `json:"intent,omitempty"`
	Priority   Priority   `json:"priority,omitempty"`
	ActionType ActionType `json:"action_type,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

func statusOf(classified, processed, completed bool) Status {
	switch {
	case completed:
		return StatusCompleted
	case processed:
		return StatusProcessed
	case classified:
		return StatusClassified
	default:
		return StatusReceived
	}
}
