package classify

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/JaimeStill/dispatch/internal/lexicon"
	"github.com/JaimeStill/dispatch/internal/records"
)

// precedence resolves exact confidence ties, highest first.
var precedence = []records.Intent{
	records.IntentFraudRisk,
	records.IntentRegulation,
	records.IntentInvoice,
	records.IntentComplaint,
	records.IntentRFQ,
	records.IntentOther,
}

// IntentResult is the outcome of intent classification.
type IntentResult struct {
	Intent     records.Intent             `json:"intent"`
	Confidence float64                    `json:"confidence"`
	Evidence   []string                   `json:"evidence"`
	Scores     map[records.Intent]float64 `json:"scores"`
}

// IntentClassifier scores text against per-intent keyword libraries.
type IntentClassifier struct {
	rules []lexicon.IntentRule
}

// NewIntentClassifier creates a classifier over the lexicon's intent libraries.
func NewIntentClassifier(lex *lexicon.Lexicon) *IntentClassifier {
	return &IntentClassifier{rules: lex.Intents()}
}

// Classify scores normalized text. Each intent's confidence is its count of
// distinct matched patterns over its normalizer, capped at 1. Text with no
// matches is OTHER with zero confidence.
func (c *IntentClassifier) Classify(text string) IntentResult {
	result := IntentResult{
		Intent:   records.IntentOther,
		Evidence: []string{},
		Scores:   make(map[records.Intent]float64, len(c.rules)),
	}

	evidence := make(map[records.Intent][]string, len(c.rules))
	for _, rule := range c.rules {
		matched := rule.Patterns.Match(text)
		if len(matched) == 0 {
			continue
		}
		evidence[rule.Intent] = matched
		result.Scores[rule.Intent] = min(float64(len(matched))/rule.Normalizer, 1.0)
	}

	for _, intent := range precedence {
		score, ok := result.Scores[intent]
		if ok && score > result.Confidence {
			result.Intent = intent
			result.Confidence = score
		}
	}

	if result.Intent != records.IntentOther {
		result.Evidence = evidence[result.Intent]
	}

	return result
}

// NormalizeText lower-cases payload for intent matching. JSON documents are
// flattened to their keys and values, object keys in sorted order.
func NormalizeText(payload string, format records.Format) string {
	if format == records.FormatJSON {
		var doc any
		if err := json.Unmarshal([]byte(payload), &doc); err == nil {
			var parts []string
			flatten(doc, &parts)
			return strings.ToLower(strings.Join(parts, " "))
		}
	}
	return strings.ToLower(payload)
}

func flatten(v any, parts *[]string) {
	switch t := v.(type) {
	case map[string]any:
		for _, k := range slices.Sorted(maps.Keys(t)) {
			*parts = append(*parts, k)
			flatten(t[k], parts)
		}
	case []any:
		for _, item := range t {
			flatten(item, parts)
		}
	case nil:
	default:
		*parts = append(*parts, fmt.Sprint(t))
	}
}
