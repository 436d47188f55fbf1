package actions

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/JaimeStill/dispatch/internal/records"
)

var prefixes = map[records.ActionType]string{
	records.ActionCreateTicket:          "TKT",
	records.ActionCreateRiskAlert:       "RISK",
	records.ActionLogComplianceIssue:    "CMP",
	records.ActionCreateApprovalRequest: "APR",
	records.ActionLogOnly:               "LOG",
}

var messages = map[records.ActionType]string{
	records.ActionCreateTicket:          "ticket %s opened in CRM",
	records.ActionCreateRiskAlert:       "risk alert %s raised",
	records.ActionLogComplianceIssue:    "compliance issue %s logged",
	records.ActionCreateApprovalRequest: "approval request %s submitted",
	records.ActionLogOnly:               "request logged as %s",
}

// Simulator is an Executor that delivers nothing. It logs the action and
// mints an identifier.
type Simulator struct {
	logger *slog.Logger
}

func NewSimulator(logger *slog.Logger) *Simulator {
	return &Simulator{logger: logger.With("system", "simulator")}
}

func (s *Simulator) Execute(ctx context.Context, action records.ActionType, actx Context) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}

	prefix, ok := prefixes[action]
	if !ok {
		return Outcome{}, fmt.Errorf("unsupported action %q", action)
	}

	id := prefix + "-" + strings.ToUpper(uuid.NewString()[:8])

	s.logger.Info(
		"simulated action",
		"action", action,
		"identifier", id,
		"request_id", actx.RequestID,
		"priority", actx.Classification.Priority,
	)

	return Outcome{
		Status:     records.ActionCompleted,
		Message:    fmt.Sprintf(messages[action], id),
		Identifier: id,
	}, nil
}
