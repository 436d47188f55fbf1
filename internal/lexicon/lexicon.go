// Package lexicon holds the immutable keyword libraries consumed by the
// classifiers and processors. Libraries are built once, from the embedded
// defaults or a YAML file, and injected at construction.
package lexicon

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"regexp"
	"slices"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/JaimeStill/dispatch/internal/records"
)

//go:embed default.yaml
var defaultDefinition []byte

// ErrInvalid indicates a lexicon definition failed validation.
var ErrInvalid = errors.New("invalid lexicon")

// Definition is the serialized form of a Lexicon.
type Definition struct {
	Intents           []IntentDefinition `yaml:"intents"`
	Tones             []ToneDefinition   `yaml:"tones"`
	Urgency           UrgencyDefinition  `yaml:"urgency"`
	Compliance        []string           `yaml:"compliance"`
	HighRiskCountries []string           `yaml:"high_risk_countries"`
}

type IntentDefinition struct {
	Intent     records.Intent `yaml:"intent"`
	Normalizer float64        `yaml:"normalizer"`
	Patterns   []string       `yaml:"patterns"`
}

type ToneDefinition struct {
	Tone     string   `yaml:"tone"`
	Patterns []string `yaml:"patterns"`
}

type UrgencyDefinition struct {
	High   []string `yaml:"high"`
	Medium []string `yaml:"medium"`
}

// IntentRule is a compiled intent pattern library.
type IntentRule struct {
	Intent     records.Intent
	Normalizer float64
	Patterns   PatternSet
}

// ToneRule is a compiled tone pattern library.
type ToneRule struct {
	Tone     string
	Patterns PatternSet
}

// Lexicon is a compiled, read-only set of keyword libraries.
type Lexicon struct {
	intents       []IntentRule
	tones         []ToneRule
	urgencyHigh   PatternSet
	urgencyMedium PatternSet
	compliance    PatternSet
	riskCountries []string
}

var defaultLexicon = sync.OnceValue(func() *Lexicon {
	l, err := Parse(defaultDefinition)
	if err != nil {
		panic(fmt.Sprintf("embedded lexicon: %v", err))
	}
	return l
})

// Default returns the built-in lexicon.
func Default() *Lexicon {
	return defaultLexicon()
}

// Load reads a YAML lexicon file. Sections the file omits keep their
// built-in values.
func Load(path string) (*Lexicon, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read lexicon: %w", err)
	}

	var base Definition
	if err := yaml.Unmarshal(defaultDefinition, &base); err != nil {
		return nil, fmt.Errorf("parse embedded lexicon: %w", err)
	}

	var overlay Definition
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return nil, fmt.Errorf("parse lexicon %s: %w", path, err)
	}

	base.Merge(&overlay)
	return New(base)
}

// Parse compiles a YAML lexicon document without merging defaults.
func Parse(data []byte) (*Lexicon, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parse lexicon: %w", err)
	}
	return New(def)
}

// Merge replaces each section of d that overlay defines.
func (d *Definition) Merge(overlay *Definition) {
	if overlay.Intents != nil {
		d.Intents = overlay.Intents
	}
	if overlay.Tones != nil {
		d.Tones = overlay.Tones
	}
	if overlay.Urgency.High != nil {
		d.Urgency.High = overlay.Urgency.High
	}
	if overlay.Urgency.Medium != nil {
		d.Urgency.Medium = overlay.Urgency.Medium
	}
	if overlay.Compliance != nil {
		d.Compliance = overlay.Compliance
	}
	if overlay.HighRiskCountries != nil {
		d.HighRiskCountries = overlay.HighRiskCountries
	}
}

// New validates and compiles a definition.
func New(def Definition) (*Lexicon, error) {
	l := &Lexicon{
		urgencyHigh:   Compile(def.Urgency.High...),
		urgencyMedium: Compile(def.Urgency.Medium...),
		compliance:    Compile(def.Compliance...),
	}

	seen := make(map[records.Intent]bool)
	for _, in := range def.Intents {
		switch in.Intent {
		case records.IntentRFQ, records.IntentComplaint, records.IntentInvoice,
			records.IntentRegulation, records.IntentFraudRisk:
		default:
			return nil, fmt.Errorf("%w: unknown intent %q", ErrInvalid, in.Intent)
		}
		if seen[in.Intent] {
			return nil, fmt.Errorf("%w: duplicate intent %q", ErrInvalid, in.Intent)
		}
		if in.Normalizer <= 0 {
			return nil, fmt.Errorf("%w: intent %s normalizer must be positive", ErrInvalid, in.Intent)
		}
		seen[in.Intent] = true
		l.intents = append(l.intents, IntentRule{
			Intent:     in.Intent,
			Normalizer: in.Normalizer,
			Patterns:   Compile(in.Patterns...),
		})
	}

	for _, tone := range def.Tones {
		if tone.Tone == "" {
			return nil, fmt.Errorf("%w: tone name required", ErrInvalid)
		}
		l.tones = append(l.tones, ToneRule{
			Tone:     strings.ToUpper(tone.Tone),
			Patterns: Compile(tone.Patterns...),
		})
	}

	for _, code := range def.HighRiskCountries {
		l.riskCountries = append(l.riskCountries, strings.ToUpper(strings.TrimSpace(code)))
	}

	return l, nil
}

// Intents returns the intent libraries in definition order.
func (l *Lexicon) Intents() []IntentRule {
	return slices.Clone(l.intents)
}

// Tones returns the tone libraries in priority order.
func (l *Lexicon) Tones() []ToneRule {
	return slices.Clone(l.tones)
}

func (l *Lexicon) UrgencyHigh() PatternSet {
	return l.urgencyHigh
}

func (l *Lexicon) UrgencyMedium() PatternSet {
	return l.urgencyMedium
}

// Compliance returns the regulatory term library.
func (l *Lexicon) Compliance() PatternSet {
	return l.compliance
}

// HighRiskCountry reports whether code is a listed high-risk country code.
func (l *Lexicon) HighRiskCountry(code string) bool {
	return slices.Contains(l.riskCountries, strings.ToUpper(strings.TrimSpace(code)))
}

// PatternSet is an ordered list of keyword patterns matched case-insensitively
// on word boundaries.
type PatternSet struct {
	patterns []string
	res      []*regexp.Regexp
}

// Compile builds a PatternSet. Blank patterns are dropped.
func Compile(patterns ...string) PatternSet {
	var ps PatternSet
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		ps.patterns = append(ps.patterns, p)
		ps.res = append(ps.res, regexp.MustCompile(boundaryPattern(p)))
	}
	return ps
}

// Match returns the distinct patterns found in text, in library order.
func (ps PatternSet) Match(text string) []string {
	var found []string
	for i, re := range ps.res {
		if re.MatchString(text) {
			found = append(found, ps.patterns[i])
		}
	}
	return found
}

// Any reports whether any pattern is found in text.
func (ps PatternSet) Any(text string) bool {
	for _, re := range ps.res {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// Patterns returns a copy of the raw patterns.
func (ps PatternSet) Patterns() []string {
	return slices.Clone(ps.patterns)
}

// Len returns the number of patterns.
func (ps PatternSet) Len() int {
	return len(ps.patterns)
}

// boundaryPattern anchors p on word boundaries only where p begins or ends
// with a word character, so patterns like "c++" still match.
func boundaryPattern(p string) string {
	expr := regexp.QuoteMeta(p)
	if isWord(p[0]) {
		expr = `\b` + expr
	}
	if isWord(p[len(p)-1]) {
		expr = expr + `\b`
	}
	return `(?i)` + expr
}

func isWord(b byte) bool {
	return b == '_' ||
		(b >= '0' && b <= '9') ||
		(b >= 'a' && b <= 'z') ||
		(b >= 'A' && b <= 'Z')
}
