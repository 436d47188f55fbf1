package actions_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/JaimeStill/dispatch/internal/actions"
	"github.com/JaimeStill/dispatch/internal/records"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func total(v float64) *float64 { return &v }

func TestDecide(t *testing.T) {
	tests := []struct {
		name   string
		c      records.Classification
		p      records.ProcessingResult
		action records.ActionType
		rule   string
	}{
		{
			name:   "fraud",
			c:      records.Classification{Intent: records.IntentFraudRisk, Priority: records.PriorityLow},
			action: records.ActionCreateRiskAlert,
			rule:   actions.RuleFraud,
		},
		{
			name: "high value invoice",
			c:    records.Classification{Intent: records.IntentInvoice, Priority: records.PriorityHigh},
			p: records.ProcessingResult{
				Processor: "pdf_processor",
				Signals:   records.Signals{Total: total(23760), HighValue: true},
			},
			action: records.ActionCreateApprovalRequest,
			rule:   actions.RuleHighValue,
		},
		{
			name:   "ordinary invoice",
			c:      records.Classification{Intent: records.IntentInvoice, Priority: records.PriorityMedium},
			p:      records.ProcessingResult{Signals: records.Signals{Total: total(900)}},
			action: records.ActionLogOnly,
			rule:   actions.RuleDefault,
		},
		{
			name:   "regulation with compliance signal",
			c:      records.Classification{Intent: records.IntentRegulation, Priority: records.PriorityLow},
			p:      records.ProcessingResult{Signals: records.Signals{ComplianceTerms: []string{"HIPAA"}}},
			action: records.ActionLogComplianceIssue,
			rule:   actions.RuleCompliance,
		},
		{
			name:   "regulation raised on evidence",
			c:      records.Classification{Intent: records.IntentRegulation, Priority: records.PriorityHigh, Evidence: []string{"gdpr"}},
			action: records.ActionLogComplianceIssue,
			rule:   actions.RuleCompliance,
		},
		{
			name:   "regulation without compliance",
			c:      records.Classification{Intent: records.IntentRegulation, Priority: records.PriorityMedium},
			action: records.ActionLogOnly,
			rule:   actions.RuleDefault,
		},
		{
			name:   "escalated complaint",
			c:      records.Classification{Intent: records.IntentComplaint, Priority: records.PriorityLow},
			p:      records.ProcessingResult{Processor: "email_processor", Signals: records.Signals{Escalate: true}},
			action: records.ActionCreateTicket,
			rule:   actions.RuleEscalation,
		},
		{
			name:   "calm complaint",
			c:      records.Classification{Intent: records.IntentComplaint, Priority: records.PriorityMedium},
			action: records.ActionLogOnly,
			rule:   actions.RuleDefault,
		},
		{
			name:   "high priority complaint without escalation",
			c:      records.Classification{Intent: records.IntentComplaint, Priority: records.PriorityHigh},
			action: records.ActionLogOnly,
			rule:   actions.RuleDefault,
		},
		{
			name:   "other",
			c:      records.Classification{Intent: records.IntentOther, Priority: records.PriorityLow},
			action: records.ActionLogOnly,
			rule:   actions.RuleDefault,
		},
	}

	r := actions.NewRouter(actions.NewSimulator(discard()), discard())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := r.Decide(tt.c, tt.p)
			if d.Type != tt.action {
				t.Errorf("action: got %s, want %s", d.Type, tt.action)
			}
			if d.Rule != tt.rule {
				t.Errorf("rule: got %s, want %s", d.Rule, tt.rule)
			}
			if !strings.Contains(d.Reasoning, string(tt.c.Intent)) {
				t.Errorf("reasoning should cite the intent: %q", d.Reasoning)
			}
		})
	}
}

func TestRouteWithSimulator(t *testing.T) {
	r := actions.NewRouter(actions.NewSimulator(discard()), discard())
	c := records.Classification{Intent: records.IntentFraudRisk, Confidence: 1, Priority: records.PriorityHigh}

	d, result := r.Route(context.Background(), uuid.New(), c, records.ProcessingResult{})

	if d.Type != records.ActionCreateRiskAlert || result.Type != d.Type {
		t.Errorf("type: decision %s, result %s", d.Type, result.Type)
	}
	if result.Status != records.ActionCompleted {
		t.Errorf("status: got %s", result.Status)
	}
	if !strings.HasPrefix(result.Identifier, "RISK-") {
		t.Errorf("identifier: got %q", result.Identifier)
	}
	if !strings.Contains(result.Message, result.Identifier) {
		t.Errorf("message should name the identifier: %q", result.Message)
	}
	if result.Reasoning != d.Reasoning {
		t.Error("result reasoning should match decision")
	}
	if result.CompletedAt.IsZero() {
		t.Error("completed_at should be set")
	}
}

type executorFunc func(context.Context, records.ActionType, actions.Context) (actions.Outcome, error)

func (f executorFunc) Execute(ctx context.Context, a records.ActionType, actx actions.Context) (actions.Outcome, error) {
	return f(ctx, a, actx)
}

func TestRouteExecutorFailures(t *testing.T) {
	tests := []struct {
		name    string
		exec    executorFunc
		message string
	}{
		{
			name: "error",
			exec: func(context.Context, records.ActionType, actions.Context) (actions.Outcome, error) {
				return actions.Outcome{}, errors.New("crm unavailable")
			},
			message: "crm unavailable",
		},
		{
			name: "panic",
			exec: func(context.Context, records.ActionType, actions.Context) (actions.Outcome, error) {
				panic("nil map")
			},
			message: "executor panic: nil map",
		},
	}

	c := records.Classification{Intent: records.IntentOther, Priority: records.PriorityLow}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := actions.NewRouter(tt.exec, discard())

			_, result := r.Route(context.Background(), uuid.New(), c, records.ProcessingResult{})
			if result.Status != records.ActionFailed {
				t.Errorf("status: got %s, want FAILED", result.Status)
			}
			if result.Message != tt.message {
				t.Errorf("message: got %q, want %q", result.Message, tt.message)
			}
			if result.Type != records.ActionLogOnly {
				t.Errorf("type: got %s", result.Type)
			}
		})
	}
}

func TestRouteCallsExecutorOnce(t *testing.T) {
	calls := 0
	var got actions.Context
	exec := executorFunc(func(_ context.Context, _ records.ActionType, actx actions.Context) (actions.Outcome, error) {
		calls++
		got = actx
		return actions.Outcome{Message: "ok"}, nil
	})

	id := uuid.New()
	r := actions.NewRouter(exec, discard())
	_, result := r.Route(context.Background(), id, records.Classification{Intent: records.IntentRFQ}, records.ProcessingResult{})

	if calls != 1 {
		t.Errorf("calls: got %d, want 1", calls)
	}
	if got.RequestID != id {
		t.Errorf("request id: got %s, want %s", got.RequestID, id)
	}
	if result.Status != records.ActionCompleted {
		t.Errorf("empty outcome status should default to COMPLETED, got %s", result.Status)
	}
}

func TestSimulatorCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := actions.NewSimulator(discard()).Execute(ctx, records.ActionLogOnly, actions.Context{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
}
