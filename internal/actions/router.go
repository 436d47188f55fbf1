// Package actions selects the follow-up action for a classified request and
// executes it through an Executor.
package actions

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/dispatch/internal/records"
)

// Rule names, recorded with each decision.
const (
	RuleFraud      = "fraud_risk"
	RuleHighValue  = "high_value_invoice"
	RuleCompliance = "regulation_compliance"
	RuleEscalation = "complaint_escalation"
	RuleDefault    = "default"
)

// Decision is the selected action and the rule that chose it.
type Decision struct {
	Type      records.ActionType `json:"type"`
	Rule      string             `json:"rule"`
	Reasoning string             `json:"reasoning"`
}

// Context is passed to the Executor with the action to perform.
type Context struct {
	RequestID      uuid.UUID
	Classification records.Classification
	Result         records.ProcessingResult
	Decision       Decision
}

// Outcome is what an Executor reports for a completed call.
type Outcome struct {
	Status     records.ActionStatus
	Message    string
	Identifier string
}

// Executor performs an action against an external system. It is called at
// most once per request and is never retried.
type Executor interface {
	Execute(ctx context.Context, action records.ActionType, actx Context) (Outcome, error)
}

// Router evaluates the action rule table and invokes the Executor.
type Router struct {
	exec   Executor
	logger *slog.Logger
	now    func() time.Time
}

func NewRouter(exec Executor, logger *slog.Logger) *Router {
	return &Router{
		exec:   exec,
		logger: logger.With("system", "actions"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Decide evaluates the rules top-down; the first match wins.
func (r *Router) Decide(c records.Classification, p records.ProcessingResult) Decision {
	basis := fmt.Sprintf("intent %s (confidence %.2f), priority %s", c.Intent, c.Confidence, c.Priority)

	switch {
	case c.Intent == records.IntentFraudRisk:
		return Decision{
			Type:      records.ActionCreateRiskAlert,
			Rule:      RuleFraud,
			Reasoning: fmt.Sprintf("%s; fraud evidence: %s", basis, list(c.Evidence)),
		}

	case c.Intent == records.IntentInvoice && p.Signals.HighValue:
		return Decision{
			Type:      records.ActionCreateApprovalRequest,
			Rule:      RuleHighValue,
			Reasoning: fmt.Sprintf("%s; %s reported a high-value total%s", basis, p.Processor, total(p.Signals.Total)),
		}

	case c.Intent == records.IntentRegulation && complianceFlag(c, p):
		return Decision{
			Type: records.ActionLogComplianceIssue,
			Rule: RuleCompliance,
			Reasoning: fmt.Sprintf("%s; compliance terms: %s", basis,
				list(append(append([]string{}, p.Signals.ComplianceTerms...), c.Evidence...))),
		}

	case c.Intent == records.IntentComplaint && p.Signals.Escalate:
		return Decision{
			Type:      records.ActionCreateTicket,
			Rule:      RuleEscalation,
			Reasoning: fmt.Sprintf("%s; %s flagged the complaint for escalation", basis, p.Processor),
		}

	default:
		return Decision{
			Type:      records.ActionLogOnly,
			Rule:      RuleDefault,
			Reasoning: fmt.Sprintf("%s; no escalation rule matched", basis),
		}
	}
}

// Route decides the action and executes it once. Executor errors and panics
// become a FAILED result; Route itself never fails.
func (r *Router) Route(
	ctx context.Context,
	id uuid.UUID,
	c records.Classification,
	p records.ProcessingResult,
) (Decision, records.ActionResult) {
	d := r.Decide(c, p)

	outcome, err := r.execute(ctx, d.Type, Context{
		RequestID:      id,
		Classification: c,
		Result:         p,
		Decision:       d,
	})

	result := records.ActionResult{
		Type:        d.Type,
		Status:      outcome.Status,
		Message:     outcome.Message,
		Identifier:  outcome.Identifier,
		Reasoning:   d.Reasoning,
		CompletedAt: r.now(),
	}

	if err != nil {
		r.logger.Warn("action failed", "id", id, "action", d.Type, "error", err)
		result.Status = records.ActionFailed
		result.Message = err.Error()
	}
	if result.Status == "" {
		result.Status = records.ActionCompleted
	}

	return d, result
}

func (r *Router) execute(ctx context.Context, action records.ActionType, actx Context) (outcome Outcome, err error) {
	defer func() {
		if v := recover(); v != nil {
			err = fmt.Errorf("executor panic: %v", v)
		}
	}()
	return r.exec.Execute(ctx, action, actx)
}

// complianceFlag holds when the processor surfaced compliance terms or the
// priority resolver already raised a regulation to HIGH on its evidence.
func complianceFlag(c records.Classification, p records.ProcessingResult) bool {
	return len(p.Signals.ComplianceTerms) > 0 || c.Priority == records.PriorityHigh
}

func list(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	return strings.Join(items, ", ")
}

func total(v *float64) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf(" of %.2f", *v)
}
