package processors

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/JaimeStill/dispatch/internal/lexicon"
	"github.com/JaimeStill/dispatch/internal/records"
)

// SchemaUnknown is reported when no template covers at least half of its
// required keys.
const SchemaUnknown = "unknown"

// JSON anomaly types.
const (
	AnomalyThreshold         = "threshold"
	AnomalyVelocity          = "velocity"
	AnomalyLocationMismatch  = "location_mismatch"
	AnomalyHighRiskLocation  = "high_risk_location"
	AnomalyRiskLevel         = "risk_level"
	AnomalyRiskFactors       = "risk_factors"
	AnomalyRecommendedAction = "recommended_action"
	AnomalyConfidenceScore   = "confidence_score"
	AnomalyInjection         = "injection"
	AnomalyLongString        = "long_string"
)

// Value kinds used by schema templates.
const (
	kindString = "string"
	kindNumber = "number"
	kindBool   = "boolean"
	kindObject = "object"
	kindArray  = "array"
	kindNull   = "null"
)

type fieldType struct {
	name  string
	kinds []string
}

// schema is a named template: the keys a document must carry and the
// expected value kinds of known keys, required or not.
type schema struct {
	name     string
	required []string
	types    []fieldType
}

var schemas = []schema{
	{
		name:     "webhook",
		required: []string{"event_type", "timestamp", "data"},
		types: []fieldType{
			{"event_type", []string{kindString}},
			{"timestamp", []string{kindString}},
			{"data", []string{kindObject}},
		},
	},
	{
		name:     "user",
		required: []string{"id", "name", "email"},
		types: []fieldType{
			{"id", []string{kindString, kindNumber}},
			{"name", []string{kindString}},
			{"email", []string{kindString}},
		},
	},
	{
		name:     "transaction",
		required: []string{"id", "amount", "currency", "status"},
		types: []fieldType{
			{"id", []string{kindString, kindNumber}},
			{"amount", []string{kindNumber}},
			{"currency", []string{kindString}},
			{"status", []string{kindString}},
		},
	},
	{
		name:     "order",
		required: []string{"order_id", "customer_id", "items", "total"},
		types: []fieldType{
			{"order_id", []string{kindString, kindNumber}},
			{"customer_id", []string{kindString, kindNumber}},
			{"items", []string{kindArray}},
			{"total", []string{kindNumber}},
		},
	},
	{
		name:     "fraud_alert",
		required: []string{"alert_type", "risk_level", "timestamp"},
		types: []fieldType{
			{"alert_type", []string{kindString}},
			{"risk_level", []string{kindString}},
			{"timestamp", []string{kindString}},
			{"transaction_id", []string{kindString, kindNumber}},
			{"details", []string{kindObject}},
			{"recommended_action", []string{kindString}},
			{"confidence_score", []string{kindNumber}},
		},
	},
	{
		name:     "invoice",
		required: []string{"invoice_number", "amount", "date"},
		types: []fieldType{
			{"invoice_number", []string{kindString, kindNumber}},
			{"amount", []string{kindNumber}},
			{"date", []string{kindString}},
			{"due_date", []string{kindString}},
			{"customer", []string{kindString, kindObject}},
			{"items", []string{kindArray}},
		},
	},
}

var (
	amountKeys   = []string{"amount", "total", "total_amount"}
	velocityKeys = []string{
		"velocity", "transaction_velocity", "transactions_per_hour",
		"transactions_last_hour", "transactions_24h", "attempts", "failed_attempts",
	}
	riskyActions = []string{"block", "reject", "escalate", "investigate"}
	riskyLevels  = []string{"high", "critical", "severe"}
	injections   = []string{
		"select ", "insert ", "update ", "delete ", "drop ", "union ",
		"--", "1=1", "<script", "javascript:", "onerror=", "onload=",
	}
)

// JSON validates documents against schema templates and scans for anomalies.
type JSON struct {
	lex        *lexicon.Lexicon
	thresholds Thresholds
}

func NewJSON(lex *lexicon.Lexicon, t Thresholds) *JSON {
	return &JSON{lex: lex, thresholds: t}
}

func (j *JSON) Name() string { return "json_processor" }

func (j *JSON) Extract(payload string) records.ProcessingResult {
	analysis := &records.JSONAnalysis{
		Schema:        SchemaUnknown,
		MissingFields: []string{},
		TypeErrors:    []records.TypeError{},
		Anomalies:     []records.Anomaly{},
	}

	var doc any
	if err := json.Unmarshal([]byte(payload), &doc); err != nil {
		return records.ProcessingResult{
			Fields:     map[string]any{"raw_content": payload},
			JSON:       analysis,
			ParseError: true,
			Error:      fmt.Sprintf("invalid json: %v", err),
		}
	}

	fields := make(map[string]any)
	flattenFields("", doc, fields)

	obj, isObject := doc.(map[string]any)
	if isObject {
		j.validate(obj, analysis)
	}

	s := &scan{
		processor: j,
		analysis:  analysis,
		countries: make(map[string]string),
	}
	s.walk("", doc)
	s.finish()

	signals := records.Signals{
		ComplianceTerms: j.lex.Compliance().Match(strings.Join(textValues(doc), " ")),
	}
	if isObject {
		for _, key := range amountKeys {
			if v, ok := obj[key].(float64); ok {
				signals.Total = &v
				break
			}
		}
	}
	for _, a := range analysis.Anomalies {
		if a.Type == AnomalyThreshold {
			signals.HighValue = true
		}
		if a.Severity == records.SeverityHigh {
			signals.Escalate = true
		}
	}

	return records.ProcessingResult{
		Fields:  fields,
		JSON:    analysis,
		Signals: signals,
	}
}

// validate picks the template with the best required-key coverage, earlier
// templates winning ties, and checks the document against it.
func (j *JSON) validate(obj map[string]any, a *records.JSONAnalysis) {
	var (
		best     *schema
		coverage float64
	)
	for i := range schemas {
		s := &schemas[i]
		present := 0
		for _, key := range s.required {
			if _, ok := obj[key]; ok {
				present++
			}
		}
		if c := float64(present) / float64(len(s.required)); c > coverage {
			best, coverage = s, c
		}
	}

	a.SchemaConfidence = coverage
	if best == nil || coverage < 0.5 {
		return
	}
	a.Schema = best.name

	for _, key := range best.required {
		if _, ok := obj[key]; !ok {
			a.MissingFields = append(a.MissingFields, key)
		}
	}
	for _, ft := range best.types {
		v, ok := obj[ft.name]
		if !ok {
			continue
		}
		if actual := kindOf(v); !slices.Contains(ft.kinds, actual) {
			a.TypeErrors = append(a.TypeErrors, records.TypeError{
				Field:    ft.name,
				Expected: strings.Join(ft.kinds, "|"),
				Actual:   actual,
			})
		}
	}

	a.IsValid = len(a.MissingFields) == 0 && len(a.TypeErrors) == 0
}

// scan walks a document collecting anomalies. Object keys are visited in
// sorted order so findings are deterministic.
type scan struct {
	processor *JSON
	analysis  *records.JSONAnalysis
	countries map[string]string
}

func (s *scan) add(typ string, sev records.Severity, field, detail string) {
	s.analysis.Anomalies = append(s.analysis.Anomalies, records.Anomaly{
		Type:     typ,
		Severity: sev,
		Field:    field,
		Detail:   detail,
	})
}

func (s *scan) walk(path string, v any) {
	switch t := v.(type) {
	case map[string]any:
		for _, key := range slices.Sorted(maps.Keys(t)) {
			child := joinPath(path, key)
			s.inspect(child, strings.ToLower(key), t[key])
			s.walk(child, t[key])
		}
	case []any:
		for i, item := range t {
			s.walk(fmt.Sprintf("%s[%d]", path, i), item)
		}
	}
}

func (s *scan) inspect(path, key string, v any) {
	t := s.processor.thresholds

	switch val := v.(type) {
	case float64:
		switch {
		case slices.Contains(amountKeys, key) && val > t.HighValue:
			s.add(AnomalyThreshold, records.SeverityHigh, path,
				fmt.Sprintf("amount %.2f exceeds %.2f", val, t.HighValue))
		case slices.Contains(velocityKeys, key) && val >= 5:
			sev := records.SeverityMedium
			if val >= 10 {
				sev = records.SeverityHigh
			}
			s.add(AnomalyVelocity, sev, path, fmt.Sprintf("%g events in window", val))
		case key == "confidence_score" && val > 0.8:
			s.add(AnomalyConfidenceScore, records.SeverityMedium, path,
				fmt.Sprintf("risk confidence %.2f", val))
		}

	case string:
		lower := strings.ToLower(val)
		if key == "country" || strings.HasSuffix(key, "_country") {
			s.countries[path] = strings.ToUpper(strings.TrimSpace(val))
		}
		if key == "risk_level" && slices.Contains(riskyLevels, lower) {
			s.add(AnomalyRiskLevel, records.SeverityHigh, path, "risk level "+lower)
		}
		if key == "recommended_action" && slices.Contains(riskyActions, lower) {
			s.add(AnomalyRecommendedAction, records.SeverityMedium, path, "recommended action "+lower)
		}
		for _, p := range injections {
			if strings.Contains(lower, p) {
				s.add(AnomalyInjection, records.SeverityHigh, path, fmt.Sprintf("contains %q", p))
				break
			}
		}
		if len(val) > t.LongString {
			s.add(AnomalyLongString, records.SeverityLow, path,
				fmt.Sprintf("string of %d bytes", len(val)))
		}

	case []any:
		if key == "risk_factors" && len(val) > 0 {
			s.add(AnomalyRiskFactors, records.SeverityMedium, path,
				fmt.Sprintf("%d risk factors", len(val)))
		}
	}
}

// finish raises the document-wide location findings.
func (s *scan) finish() {
	paths := slices.Sorted(maps.Keys(s.countries))

	for _, p := range paths {
		if code := s.countries[p]; s.processor.lex.HighRiskCountry(code) {
			s.add(AnomalyHighRiskLocation, records.SeverityHigh, p, "high-risk country "+code)
		}
	}

	distinct := make([]string, 0, len(paths))
	for _, p := range paths {
		if code := s.countries[p]; code != "" && !slices.Contains(distinct, code) {
			distinct = append(distinct, code)
		}
	}
	if len(distinct) > 1 {
		s.add(AnomalyLocationMismatch, records.SeverityMedium, "",
			"countries differ: "+strings.Join(distinct, ", "))
	}
}

func kindOf(v any) string {
	switch v.(type) {
	case string:
		return kindString
	case float64:
		return kindNumber
	case bool:
		return kindBool
	case map[string]any:
		return kindObject
	case []any:
		return kindArray
	default:
		return kindNull
	}
}

// flattenFields maps every leaf of v to its dotted path.
func flattenFields(path string, v any, out map[string]any) {
	switch t := v.(type) {
	case map[string]any:
		if len(t) == 0 && path != "" {
			out[path] = t
		}
		for k, child := range t {
			flattenFields(joinPath(path, k), child, out)
		}
	case []any:
		if len(t) == 0 && path != "" {
			out[path] = t
		}
		for i, child := range t {
			flattenFields(fmt.Sprintf("%s[%d]", path, i), child, out)
		}
	default:
		if path == "" {
			path = "value"
		}
		out[path] = t
	}
}

func textValues(v any) []string {
	var out []string
	switch t := v.(type) {
	case map[string]any:
		for _, k := range slices.Sorted(maps.Keys(t)) {
			out = append(out, k)
			out = append(out, textValues(t[k])...)
		}
	case []any:
		for _, item := range t {
			out = append(out, textValues(item)...)
		}
	case string:
		out = append(out, t)
	}
	return out
}

func joinPath(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}
