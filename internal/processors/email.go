package processors

import (
	"net/mail"
	"regexp"
	"slices"
	"strings"

	"github.com/JaimeStill/dispatch/internal/lexicon"
	"github.com/JaimeStill/dispatch/internal/records"
)

const (
	ToneNeutral = "NEUTRAL"

	UrgencyHigh   = "HIGH"
	UrgencyMedium = "MEDIUM"
	UrgencyLow    = "LOW"

	RecommendEscalate = "ESCALATE"
	RecommendLog      = "LOG"
)

var (
	emailHeader  = regexp.MustCompile(`^([A-Za-z][A-Za-z0-9-]*):[ \t]*(.*)$`)
	emailAddress = regexp.MustCompile(`[\w.+-]+@[\w-]+(?:\.[\w-]+)+`)
	referenceIDs = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\breference\s*(?:number|no\.?|#|id|code)?\s*[:#]?\s*([A-Z0-9][A-Z0-9-]{4,})`),
		regexp.MustCompile(`(?i)\border\s*(?:number|no\.?|#|id)?\s*[:#]?\s*([A-Z0-9][A-Z0-9-]{4,})`),
		regexp.MustCompile(`(?i)\bticket\s*(?:number|no\.?|#|id)?\s*[:#]?\s*([A-Z0-9][A-Z0-9-]{4,})`),
		regexp.MustCompile(`(?i)\bcase\s*(?:number|no\.?|#|id)?\s*[:#]?\s*([A-Z0-9][A-Z0-9-]{4,})`),
		regexp.MustCompile(`(?i)\binvoice\s*(?:number|no\.?|#|id)?\s*[:#]?\s*([A-Z0-9][A-Z0-9-]{4,})`),
	}
)

// headerFields maps recognized header names to result field names.
var headerFields = []struct {
	header string
	field  string
}{
	{"from", "sender"},
	{"to", "recipient"},
	{"subject", "subject"},
	{"date", "date"},
	{"cc", "cc"},
	{"reply-to", "reply_to"},
}

// Email extracts headers, tone and urgency from free-text email.
type Email struct {
	lex *lexicon.Lexicon
}

func NewEmail(lex *lexicon.Lexicon) *Email {
	return &Email{lex: lex}
}

func (e *Email) Name() string { return "email_processor" }

func (e *Email) Extract(payload string) records.ProcessingResult {
	headers, body := splitEmail(payload)

	fields := make(map[string]any, len(headerFields)+4)
	for _, hf := range headerFields {
		fields[hf.field] = headers[hf.header]
	}
	fields["sender_email"] = senderEmail(headers["from"])
	fields["issue"] = issue(headers["subject"], body)
	fields["reference_ids"] = extractReferenceIDs(body)
	fields["body"] = body

	text := strings.ToLower(headers["subject"] + " " + body)

	analysis := &records.EmailAnalysis{
		Tone:        ToneNeutral,
		ToneMarkers: []string{},
	}
	for _, rule := range e.lex.Tones() {
		if matched := rule.Patterns.Match(text); len(matched) > 0 {
			analysis.Tone = rule.Tone
			analysis.ToneMarkers = matched
			break
		}
	}

	high := e.lex.UrgencyHigh().Match(text)
	medium := e.lex.UrgencyMedium().Match(text)
	switch {
	case len(high) > 0:
		analysis.Urgency = UrgencyHigh
	case len(medium) > 0:
		analysis.Urgency = UrgencyMedium
	default:
		analysis.Urgency = UrgencyLow
	}
	analysis.UrgencyMarkers = append(append([]string{}, high...), medium...)

	analysis.Recommendation = RecommendLog
	if analysis.Tone == "URGENT" || analysis.Tone == "THREATENING" || analysis.Urgency == UrgencyHigh {
		analysis.Recommendation = RecommendEscalate
	}

	result := records.ProcessingResult{
		Fields: fields,
		Email:  analysis,
		Signals: records.Signals{
			UrgencyMarkers:  len(analysis.UrgencyMarkers),
			ComplianceTerms: e.lex.Compliance().Match(text),
			Escalate:        analysis.Recommendation == RecommendEscalate,
		},
	}

	if strings.TrimSpace(payload) == "" {
		result.ParseError = true
		result.Error = "empty email"
	}

	return result
}

// splitEmail reads a leading header block, if any, and returns the headers
// keyed by lower-cased name along with the body. Folded continuation lines
// are joined to the preceding header. The first occurrence of a header wins.
func splitEmail(payload string) (map[string]string, string) {
	headers := make(map[string]string)
	lines := strings.Split(strings.ReplaceAll(payload, "\r\n", "\n"), "\n")

	start := 0
	for start < len(lines) && strings.TrimSpace(lines[start]) == "" {
		start++
	}
	if start == len(lines) || !emailHeader.MatchString(lines[start]) {
		return headers, strings.TrimSpace(payload)
	}

	var last string
	i := start
	for ; i < len(lines); i++ {
		line := lines[i]
		if strings.TrimSpace(line) == "" {
			i++
			break
		}
		if line[0] == ' ' || line[0] == '\t' {
			if last != "" {
				headers[last] = strings.TrimSpace(headers[last] + " " + strings.TrimSpace(line))
			}
			continue
		}
		m := emailHeader.FindStringSubmatch(line)
		if m == nil {
			break
		}
		name := strings.ToLower(m[1])
		if _, seen := headers[name]; seen {
			last = ""
			continue
		}
		headers[name] = strings.TrimSpace(m[2])
		last = name
	}

	return headers, strings.TrimSpace(strings.Join(lines[i:], "\n"))
}

func senderEmail(from string) string {
	if from == "" {
		return ""
	}
	if addr, err := mail.ParseAddress(from); err == nil {
		return addr.Address
	}
	return emailAddress.FindString(from)
}

// issue summarizes the request: the subject when it says something, else the
// first sentence of the body.
func issue(subject, body string) string {
	if len(subject) > 5 {
		return subject
	}

	para, _, _ := strings.Cut(body, "\n\n")
	para = strings.TrimSpace(para)
	if len(para) <= 10 {
		return ""
	}

	sentence, _, _ := strings.Cut(para, ".")
	if len(sentence) > 100 {
		return sentence[:100] + "..."
	}
	return sentence
}

func extractReferenceIDs(body string) []string {
	ids := []string{}
	for _, re := range referenceIDs {
		for _, m := range re.FindAllStringSubmatch(body, -1) {
			id := strings.ToUpper(m[1])
			if !hasDigit(id) || slices.Contains(ids, id) {
				continue
			}
			ids = append(ids, id)
		}
	}
	return ids
}

func hasDigit(s string) bool {
	return strings.ContainsAny(s, "0123456789")
}
