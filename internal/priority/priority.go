// Package priority maps intent, confidence and processor signals to a
// priority tier through an ordered rule table.
package priority

import (
	"github.com/JaimeStill/dispatch/internal/lexicon"
	"github.com/JaimeStill/dispatch/internal/records"
)

// Rule names, recorded on the classification and in the trace.
const (
	RuleFraud      = "fraud_confidence"
	RuleInvoice    = "invoice_total"
	RuleRegulation = "regulation_compliance"
	RuleConfidence = "confidence"
	RuleDefault    = "default"
)

// Input is everything the rule table reads.
type Input struct {
	Intent     records.Intent
	Confidence float64
	Evidence   []string
	Signals    records.Signals
}

// Decision is the resolved tier and the rule that produced it.
type Decision struct {
	Priority records.Priority `json:"priority"`
	Rule     string           `json:"rule"`
}

// Resolver is a pure function of its Input. It holds no mutable state and is
// safe for concurrent use.
type Resolver struct {
	cfg        Config
	compliance lexicon.PatternSet
}

func NewResolver(cfg Config, lex *lexicon.Lexicon) *Resolver {
	return &Resolver{cfg: cfg, compliance: lex.Compliance()}
}

// Resolve evaluates the rules top-down; the first match wins.
func (r *Resolver) Resolve(in Input) Decision {
	switch {
	case in.Intent == records.IntentFraudRisk && in.Confidence >= r.cfg.FraudConfidence:
		return Decision{Priority: records.PriorityHigh, Rule: RuleFraud}
	case in.Intent == records.IntentInvoice && in.Signals.Total != nil && *in.Signals.Total > r.cfg.InvoiceTotal:
		return Decision{Priority: records.PriorityHigh, Rule: RuleInvoice}
	case in.Intent == records.IntentRegulation && r.complianceMatch(in):
		return Decision{Priority: records.PriorityHigh, Rule: RuleRegulation}
	case in.Confidence >= r.cfg.MediumConfidence:
		return Decision{Priority: records.PriorityMedium, Rule: RuleConfidence}
	default:
		return Decision{Priority: records.PriorityLow, Rule: RuleDefault}
	}
}

func (r *Resolver) complianceMatch(in Input) bool {
	if len(in.Signals.ComplianceTerms) > 0 {
		return true
	}
	for _, ev := range in.Evidence {
		if r.compliance.Any(ev) {
			return true
		}
	}
	return false
}
