package lexicon_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/JaimeStill/dispatch/internal/lexicon"
	"github.com/JaimeStill/dispatch/internal/records"
)

func TestDefault(t *testing.T) {
	lex := lexicon.Default()

	intents := lex.Intents()
	if len(intents) != 5 {
		t.Fatalf("intents: got %d, want 5", len(intents))
	}
	for _, rule := range intents {
		if rule.Normalizer <= 0 {
			t.Errorf("%s: normalizer %v", rule.Intent, rule.Normalizer)
		}
		if rule.Patterns.Len() == 0 {
			t.Errorf("%s: no patterns", rule.Intent)
		}
	}

	tones := lex.Tones()
	got := make([]string, len(tones))
	for i, tone := range tones {
		got[i] = tone.Tone
	}
	if diff := cmp.Diff([]string{"URGENT", "THREATENING", "POLITE"}, got); diff != "" {
		t.Errorf("tone order (-want +got):\n%s", diff)
	}

	if !lex.HighRiskCountry("kp") {
		t.Error("KP should be high risk")
	}
	if lex.HighRiskCountry("US") {
		t.Error("US should not be high risk")
	}
}

func TestPatternSetMatch(t *testing.T) {
	ps := lexicon.Compile("fraud", "suspicious activity", "risk_level", "c++", "now")

	tests := []struct {
		name string
		text string
		want []string
	}{
		{"whole word", "possible FRAUD detected", []string{"fraud"}},
		{"no partial word", "fraudster and knowledge", nil},
		{"phrase", "we saw Suspicious Activity overnight", []string{"suspicious activity"}},
		{"underscore key", `{"risk_level": "high"}`, []string{"risk_level"}},
		{"underscore suffix is not a match", "risk_levels", nil},
		{"symbol edge", "written in c++ today", []string{"c++"}},
		{"library order", "now, fraud", []string{"fraud", "now"}},
		{"distinct", "fraud fraud fraud", []string{"fraud"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ps.Match(tt.text)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("match (-want +got):\n%s", diff)
			}
			if ps.Any(tt.text) != (len(tt.want) > 0) {
				t.Errorf("Any disagrees with Match for %q", tt.text)
			}
		})
	}
}

func TestLoadOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lexicon.yaml")
	content := `
tones:
  - tone: polite
    patterns: [cheers]
high_risk_countries: [xx]
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	lex, err := lexicon.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	tones := lex.Tones()
	if len(tones) != 1 || tones[0].Tone != "POLITE" {
		t.Fatalf("tones: got %+v", tones)
	}
	if m := tones[0].Patterns.Match("cheers mate"); len(m) != 1 {
		t.Errorf("overlay tone pattern not matched")
	}
	if !lex.HighRiskCountry("XX") || lex.HighRiskCountry("RU") {
		t.Error("high risk countries should come from overlay")
	}
	if len(lex.Intents()) != 5 {
		t.Error("intents should fall back to defaults")
	}
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name string
		def  lexicon.Definition
	}{
		{"other intent", lexicon.Definition{Intents: []lexicon.IntentDefinition{
			{Intent: records.IntentOther, Normalizer: 1},
		}}},
		{"zero normalizer", lexicon.Definition{Intents: []lexicon.IntentDefinition{
			{Intent: records.IntentRFQ},
		}}},
		{"duplicate", lexicon.Definition{Intents: []lexicon.IntentDefinition{
			{Intent: records.IntentRFQ, Normalizer: 1},
			{Intent: records.IntentRFQ, Normalizer: 2},
		}}},
		{"unnamed tone", lexicon.Definition{Tones: []lexicon.ToneDefinition{{Patterns: []string{"x"}}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := lexicon.New(tt.def); !errors.Is(err, lexicon.ErrInvalid) {
				t.Errorf("got %v, want ErrInvalid", err)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := lexicon.Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
