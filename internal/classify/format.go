// Package classify assigns a structural format and a business intent to
// raw payloads.
package classify

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/JaimeStill/dispatch/internal/records"
)

// ErrFormatUnrecognized is recorded when no format rule matches. The
// pipeline continues with FormatUnknown.
var ErrFormatUnrecognized = errors.New("input format unrecognized")

// Format detection rule names, recorded in the trace.
const (
	RuleJSONValid    = "json_valid"
	RuleEmailHeaders = "email_headers"
	RulePDFMagic     = "pdf_magic"
	RulePDFPath      = "pdf_path"
	RuleSourceHint   = "source_hint"
	RuleUnrecognized = "unrecognized"
)

var headerLine = regexp.MustCompile(`^([A-Za-z][A-Za-z0-9-]*):[ \t]*(.*)$`)

// headerConfidence is indexed by the number of distinct From, To and
// Subject headers found.
var headerConfidence = [...]float64{0, 0.75, 0.9, 1.0}

// Detection is the outcome of format classification.
type Detection struct {
	Format     records.Format `json:"format"`
	Confidence float64        `json:"confidence"`
	Rule       string         `json:"rule"`
}

// Recognized reports whether any rule matched.
func (d Detection) Recognized() bool {
	return d.Format != records.FormatUnknown
}

// FormatClassifier checks structural signatures in a fixed order; the first
// matching rule wins and there is no blending across formats.
type FormatClassifier struct{}

func NewFormatClassifier() *FormatClassifier {
	return &FormatClassifier{}
}

// Detect classifies payload. source and filePath are hints and may be empty.
func (c *FormatClassifier) Detect(payload string, source records.Source, filePath string) Detection {
	trimmed := strings.TrimSpace(payload)

	if isJSONDocument(trimmed) {
		return Detection{Format: records.FormatJSON, Confidence: 1.0, Rule: RuleJSONValid}
	}

	if n := emailHeaderCount(payload); n > 0 {
		return Detection{
			Format:     records.FormatEmail,
			Confidence: headerConfidence[n],
			Rule:       RuleEmailHeaders,
		}
	}

	if strings.HasPrefix(trimmed, "%PDF") {
		return Detection{Format: records.FormatPDF, Confidence: 1.0, Rule: RulePDFMagic}
	}

	ext := strings.ToLower(filepath.Ext(filePath))
	if ext == ".pdf" {
		return Detection{Format: records.FormatPDF, Confidence: 0.8, Rule: RulePDFPath}
	}

	if f := hintedFormat(source, ext); f != records.FormatUnknown {
		return Detection{Format: f, Confidence: 0.5, Rule: RuleSourceHint}
	}

	return Detection{Format: records.FormatUnknown, Confidence: 0, Rule: RuleUnrecognized}
}

// isJSONDocument accepts only objects and arrays.
func isJSONDocument(s string) bool {
	if s == "" || (s[0] != '{' && s[0] != '[') {
		return false
	}
	return json.Valid([]byte(s))
}

// emailHeaderCount counts the distinct From, To and Subject headers in the
// leading header block. The block must start on the first non-blank line.
func emailHeaderCount(payload string) int {
	seen := make(map[string]bool)
	started := false

	for line := range strings.Lines(payload) {
		line = strings.TrimRight(line, "\r\n")

		if strings.TrimSpace(line) == "" {
			if started {
				break
			}
			continue
		}

		if started && (line[0] == ' ' || line[0] == '\t') {
			continue
		}

		m := headerLine.FindStringSubmatch(line)
		if m == nil {
			break
		}
		started = true

		switch name := strings.ToLower(m[1]); name {
		case "from", "to", "subject":
			seen[name] = true
		}
	}

	return len(seen)
}

func hintedFormat(source records.Source, ext string) records.Format {
	switch source {
	case records.SourceJSON:
		return records.FormatJSON
	case records.SourceEmail:
		return records.FormatEmail
	case records.SourceFile:
		switch ext {
		case ".json":
			return records.FormatJSON
		case ".eml", ".msg", ".txt":
			return records.FormatEmail
		}
	}
	return records.FormatUnknown
}
