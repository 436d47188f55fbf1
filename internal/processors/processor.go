// Package processors extracts structured fields and format-specific findings
// from classified payloads. One Processor exists per recognized format.
package processors

import (
	"fmt"

	"github.com/JaimeStill/dispatch/internal/lexicon"
	"github.com/JaimeStill/dispatch/internal/records"
)

// NoneProcessor names the result recorded for payloads with no processor.
const NoneProcessor = "none"

// Processor extracts a ProcessingResult from a raw payload. Implementations
// never fail: malformed input sets ParseError and returns partial fields.
type Processor interface {
	Name() string
	Extract(payload string) records.ProcessingResult
}

// Thresholds are the numeric limits shared by the processors.
type Thresholds struct {
	HighValue     float64
	ExpensiveItem float64
	LongString    int
}

// DefaultThresholds returns the standard processor limits.
func DefaultThresholds() Thresholds {
	return Thresholds{
		HighValue:     10000,
		ExpensiveItem: 5000,
		LongString:    1000,
	}
}

// Registry selects a Processor by classified format.
type Registry map[records.Format]Processor

// NewRegistry builds the standard registry over lex.
func NewRegistry(lex *lexicon.Lexicon, t Thresholds) Registry {
	return Registry{
		records.FormatEmail: NewEmail(lex),
		records.FormatJSON:  NewJSON(lex, t),
		records.FormatPDF:   NewPDF(lex, t),
	}
}

// Extract runs the processor registered for format. Formats without a
// processor yield an empty result. A panicking processor is reported as a
// parse error rather than propagated.
func (r Registry) Extract(format records.Format, payload string) (result records.ProcessingResult) {
	p, ok := r[format]
	if !ok {
		return records.ProcessingResult{
			Processor: NoneProcessor,
			Format:    format,
			Fields:    map[string]any{},
		}
	}

	defer func() {
		if v := recover(); v != nil {
			result = records.ProcessingResult{
				Processor:  p.Name(),
				Format:     format,
				Fields:     map[string]any{},
				ParseError: true,
				Error:      fmt.Sprintf("processor panic: %v", v),
			}
		}
	}()

	result = p.Extract(payload)
	result.Processor = p.Name()
	result.Format = format
	if result.Fields == nil {
		result.Fields = map[string]any{}
	}
	return result
}
