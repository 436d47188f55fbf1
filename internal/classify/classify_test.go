package classify_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/JaimeStill/dispatch/internal/classify"
	"github.com/JaimeStill/dispatch/internal/lexicon"
	"github.com/JaimeStill/dispatch/internal/records"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		source   records.Source
		filePath string
		want     classify.Detection
	}{
		{
			name:    "json object",
			payload: `  {"event_type": "x"}`,
			source:  records.SourceEmail,
			want:    classify.Detection{Format: records.FormatJSON, Confidence: 1, Rule: classify.RuleJSONValid},
		},
		{
			name:    "json array",
			payload: `[1, 2]`,
			want:    classify.Detection{Format: records.FormatJSON, Confidence: 1, Rule: classify.RuleJSONValid},
		},
		{
			name:    "json scalar is not a document",
			payload: `42`,
			source:  records.SourceFile,
			want:    classify.Detection{Format: records.FormatUnknown, Rule: classify.RuleUnrecognized},
		},
		{
			name:    "json scalar with source hint",
			payload: `"x"`,
			source:  records.SourceJSON,
			want:    classify.Detection{Format: records.FormatJSON, Confidence: 0.5, Rule: classify.RuleSourceHint},
		},
		{
			name:    "email with three headers",
			payload: "From: a@b.com\nTo: c@d.com\nSubject: Hi\n\nBody",
			want:    classify.Detection{Format: records.FormatEmail, Confidence: 1, Rule: classify.RuleEmailHeaders},
		},
		{
			name:    "email with one header",
			payload: "Subject: Quote\r\n\r\nPlease send pricing.",
			want:    classify.Detection{Format: records.FormatEmail, Confidence: 0.75, Rule: classify.RuleEmailHeaders},
		},
		{
			name:    "email folded header",
			payload: "Subject: long\n subject line\nFrom: x@y.z\n\nbody",
			want:    classify.Detection{Format: records.FormatEmail, Confidence: 0.9, Rule: classify.RuleEmailHeaders},
		},
		{
			name:    "headers not at start",
			payload: "Hello there\nFrom: a@b.com\nSubject: hi",
			source:  records.SourceFile,
			want:    classify.Detection{Format: records.FormatUnknown, Rule: classify.RuleUnrecognized},
		},
		{
			name:    "pdf magic",
			payload: "%PDF-1.7\n%binary",
			want:    classify.Detection{Format: records.FormatPDF, Confidence: 1, Rule: classify.RulePDFMagic},
		},
		{
			name:     "pdf path",
			payload:  "INVOICE\nInvoice Number: INV-1",
			source:   records.SourceFile,
			filePath: "uploads/Invoice.PDF",
			want:     classify.Detection{Format: records.FormatPDF, Confidence: 0.8, Rule: classify.RulePDFPath},
		},
		{
			name:    "broken json falls back to hint",
			payload: `{"a": `,
			source:  records.SourceJSON,
			want:    classify.Detection{Format: records.FormatJSON, Confidence: 0.5, Rule: classify.RuleSourceHint},
		},
		{
			name:     "file hint by extension",
			payload:  "plain words",
			source:   records.SourceFile,
			filePath: "note.eml",
			want:     classify.Detection{Format: records.FormatEmail, Confidence: 0.5, Rule: classify.RuleSourceHint},
		},
		{
			name:    "bare scalar is not json",
			payload: "42",
			source:  records.SourceFile,
			want:    classify.Detection{Format: records.FormatUnknown, Rule: classify.RuleUnrecognized},
		},
		{
			name: "empty",
			want: classify.Detection{Format: records.FormatUnknown, Rule: classify.RuleUnrecognized},
		},
	}

	c := classify.NewFormatClassifier()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Detect(tt.payload, tt.source, tt.filePath)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("detection (-want +got):\n%s", diff)
			}
			if got.Recognized() != (tt.want.Format != records.FormatUnknown) {
				t.Error("Recognized disagrees with format")
			}
		})
	}
}

func TestClassifyIntent(t *testing.T) {
	c := classify.NewIntentClassifier(lexicon.Default())

	tests := []struct {
		name       string
		text       string
		intent     records.Intent
		confidence float64
		evidence   []string
	}{
		{
			name:       "fraud email",
			text:       "urgent: we detected fraud and suspicious activity on your account",
			intent:     records.IntentFraudRisk,
			confidence: 1,
			evidence:   []string{"fraud", "suspicious", "suspicious activity"},
		},
		{
			name:       "rfq",
			text:       "we would like a quotation for 500 units. this is a request for quote.",
			intent:     records.IntentRFQ,
			confidence: 2.0 / 3.0,
			evidence:   []string{"request for quote", "quotation"},
		},
		{
			name:       "fraud beats regulation on tie",
			text:       "gdpr fraud",
			intent:     records.IntentFraudRisk,
			confidence: 1.0 / 3.0,
			evidence:   []string{"fraud"},
		},
		{
			name:       "regulation beats complaint on tie",
			text:       "gdpr refund",
			intent:     records.IntentRegulation,
			confidence: 1.0 / 3.0,
			evidence:   []string{"gdpr"},
		},
		{
			name:       "complaint beats rfq on tie",
			text:       "rfq refund",
			intent:     records.IntentComplaint,
			confidence: 1.0 / 3.0,
			evidence:   []string{"refund"},
		},
		{
			name:       "higher confidence wins over precedence",
			text:       "refund please, the item arrived damaged and i am dissatisfied. possible fraud?",
			intent:     records.IntentComplaint,
			confidence: 1,
			evidence:   []string{"dissatisfied", "refund", "damaged"},
		},
		{
			name:     "no matches",
			text:     "hello world",
			intent:   records.IntentOther,
			evidence: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(tt.text)
			if got.Intent != tt.intent {
				t.Errorf("intent: got %s, want %s", got.Intent, tt.intent)
			}
			if got.Confidence != tt.confidence {
				t.Errorf("confidence: got %v, want %v", got.Confidence, tt.confidence)
			}
			if diff := cmp.Diff(tt.evidence, got.Evidence); diff != "" {
				t.Errorf("evidence (-want +got):\n%s", diff)
			}
		})
	}
}

func TestClassifyIdempotent(t *testing.T) {
	c := classify.NewIntentClassifier(lexicon.Default())
	text := "invoice number inv-7 subtotal 100 tax 8 total due 108 - suspicious"

	first := c.Classify(text)
	for range 5 {
		if diff := cmp.Diff(first, c.Classify(text)); diff != "" {
			t.Fatalf("classification changed between runs:\n%s", diff)
		}
	}
}

func TestClassifyInjectedLexicon(t *testing.T) {
	lex, err := lexicon.New(lexicon.Definition{
		Intents: []lexicon.IntentDefinition{
			{Intent: records.IntentRFQ, Normalizer: 1, Patterns: []string{"widget"}},
		},
	})
	if err != nil {
		t.Fatalf("lexicon: %v", err)
	}

	got := classify.NewIntentClassifier(lex).Classify("need a widget, fraud")
	if got.Intent != records.IntentRFQ || got.Confidence != 1 {
		t.Errorf("got %s %v, want RFQ 1", got.Intent, got.Confidence)
	}
}

func TestNormalizeText(t *testing.T) {
	payload := `{"b": {"Risk_Level": "HIGH"}, "a": [1, "Fraud", null, true]}`

	got := classify.NormalizeText(payload, records.FormatJSON)
	want := "a 1 fraud true b risk_level high"
	if got != want {
		t.Errorf("json: got %q, want %q", got, want)
	}

	if got := classify.NormalizeText("Hello WORLD", records.FormatEmail); got != "hello world" {
		t.Errorf("text: got %q", got)
	}

	if got := classify.NormalizeText(`{"broken"`, records.FormatJSON); got != `{"broken"` {
		t.Errorf("invalid json should be lower-cased raw text: got %q", got)
	}
}

func TestErrFormatUnrecognized(t *testing.T) {
	wrapped := errors.Join(classify.ErrFormatUnrecognized)
	if !errors.Is(wrapped, classify.ErrFormatUnrecognized) {
		t.Error("sentinel should match")
	}
}
