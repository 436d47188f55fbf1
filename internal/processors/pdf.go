package processors

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/JaimeStill/dispatch/internal/lexicon"
	"github.com/JaimeStill/dispatch/internal/records"
)

// Document types.
const (
	DocumentInvoice = "INVOICE"
	DocumentPolicy  = "POLICY"
	DocumentGeneral = "GENERAL"
)

// PDF flag types.
const (
	FlagHighValue           = "high_value"
	FlagTotalMismatch       = "total_mismatch"
	FlagLineItemMismatch    = "line_item_mismatch"
	FlagRegulatoryReference = "regulatory_reference"
	FlagExpensiveLineItems  = "expensive_line_items"
	FlagSensitiveInfo       = "sensitive_info"
	FlagMissingFields       = "missing_fields"
)

const amountExpr = `([$€£]?\s*-?[\d,]+(?:\.\d{1,2})?)`

var (
	subtotalLine = regexp.MustCompile(`(?im)^\s*sub[- ]?total\b[^:\n]*?:?\s*` + amountExpr + `\s*$`)
	taxLine      = regexp.MustCompile(`(?im)^\s*(?:sales\s+)?(?:tax|vat|gst)\b[^:\n]*?:\s*` + amountExpr + `\s*$`)
	totalLine    = regexp.MustCompile(`(?im)^\s*(?:total\s+due|amount\s+due|balance\s+due|grand\s+total)\b[^:\n]*?:?\s*` + amountExpr + `\s*$`)
	bareTotal    = regexp.MustCompile(`(?im)^\s*total\s*[:|]?\s*` + amountExpr + `\s*$`)
	centsAmount  = regexp.MustCompile(`^-?\d+(?:\.\d{1,2})?$`)

	invoiceNumber = regexp.MustCompile(`(?i)\binvoice\s*(?:number|no\.?|num|#)\s*[:#]?\s*([A-Z0-9][-A-Z0-9/]*)`)
	invoiceDate   = regexp.MustCompile(`(?im)^\s*(?:invoice\s+)?date\s*:\s*(.+?)\s*$`)
	policyNumber  = regexp.MustCompile(`(?i)\bpolicy\s*(?:number|no\.?|num|#)\s*[:#]?\s*([A-Z0-9][-A-Z0-9/]*)`)
	effectiveDate = regexp.MustCompile(`(?im)^\s*effective\s+date\s*:\s*(.+?)\s*$`)
	version       = regexp.MustCompile(`(?i)\b(?:version|revision|rev\.)\s*:?\s*(\d+(?:\.\d+)*)`)
	currencyCode  = regexp.MustCompile(`\b(USD|EUR|GBP|CAD|AUD|JPY)\b`)

	sensitive = []struct {
		name string
		re   *regexp.Regexp
	}{
		{"ssn", regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
		{"card_number", regexp.MustCompile(`\b\d{4}[ -]?\d{4}[ -]?\d{4}[ -]?\d{4}\b`)},
		{"email_address", regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)},
	}

	currencySymbols = []struct{ symbol, code string }{
		{"$", "USD"}, {"€", "EUR"}, {"£", "GBP"},
	}

	invoiceIndicators = []string{
		"invoice", "bill to", "ship to", "receipt", "payment", "amount due",
		"total due", "balance due", "invoice number", "invoice date",
		"payment terms", "subtotal", "tax",
	}
	policyIndicators = []string{
		"policy", "agreement", "terms and conditions", "privacy", "compliance",
		"regulation", "guidelines", "procedure", "protocol", "effective date",
		"revision date", "version",
	}
)

// PDF extracts line items, totals and flags from decoded PDF text.
type PDF struct {
	lex        *lexicon.Lexicon
	thresholds Thresholds
}

func NewPDF(lex *lexicon.Lexicon, t Thresholds) *PDF {
	return &PDF{lex: lex, thresholds: t}
}

func (p *PDF) Name() string { return "pdf_processor" }

func (p *PDF) Extract(payload string) records.ProcessingResult {
	analysis := &records.PDFAnalysis{
		DocumentType: DocumentGeneral,
		LineItems:    []records.LineItem{},
		Flags:        []records.Flag{},
	}
	result := records.ProcessingResult{
		Fields: map[string]any{"document_type": DocumentGeneral},
		PDF:    analysis,
	}

	text := strings.TrimSpace(payload)
	switch {
	case text == "":
		result.ParseError = true
		result.Error = "empty document"
		return result
	case strings.HasPrefix(text, "%PDF-"):
		result.ParseError = true
		result.Error = "binary pdf content was not decoded to text"
		return result
	}

	analysis.DocumentType = documentType(text)
	result.Fields["document_type"] = analysis.DocumentType

	t := p.extractTotals(text, analysis, result.Fields)
	p.flag(text, t, analysis, result.Fields)

	compliance := p.lex.Compliance().Match(text)
	if len(compliance) > 0 {
		result.Fields["compliance_references"] = compliance
	}

	result.Signals = records.Signals{
		HighValue:       analysis.HasFlag(FlagHighValue),
		ComplianceTerms: compliance,
	}
	if t.hasTotal {
		total := analysis.TotalDue
		result.Signals.Total = &total
	}

	return result
}

// totals tracks amounts in integer cents so sums and comparisons are exact.
type totals struct {
	items       []itemCents
	subtotal    int64
	tax         int64
	total       int64
	hasSubtotal bool
	hasTax      bool
	hasTotal    bool
	statedTotal bool
}

type itemCents struct {
	quantity float64
	unit     int64
	total    int64
}

func (p *PDF) extractTotals(text string, a *records.PDFAnalysis, fields map[string]any) totals {
	var t totals

	for line := range strings.Lines(text) {
		desc, item, ok := parseItemRow(line)
		if !ok {
			continue
		}
		t.items = append(t.items, item)
		a.LineItems = append(a.LineItems, records.LineItem{
			Description: desc,
			Quantity:    item.quantity,
			UnitPrice:   fromCents(item.unit),
			Total:       fromCents(item.total),
		})
	}

	t.subtotal, t.hasSubtotal = findAmount(subtotalLine, text)
	t.tax, t.hasTax = findAmount(taxLine, text)
	t.total, t.hasTotal = findAmount(totalLine, text)
	if !t.hasTotal {
		t.total, t.hasTotal = findAmount(bareTotal, text)
	}
	t.statedTotal = t.hasTotal

	if !t.hasSubtotal && len(t.items) > 0 {
		t.subtotal, t.hasSubtotal = sumItems(t.items), true
	}
	if !t.hasTotal && t.hasSubtotal {
		t.total, t.hasTotal = t.subtotal+t.tax, true
	}

	if t.hasSubtotal {
		a.Subtotal = fromCents(t.subtotal)
		fields["subtotal"] = a.Subtotal
	}
	if t.hasTax {
		a.Tax = fromCents(t.tax)
		fields["tax"] = a.Tax
	}
	if t.hasTotal {
		a.TotalDue = fromCents(t.total)
		fields["total_due"] = a.TotalDue
	}
	fields["line_item_count"] = len(a.LineItems)

	switch a.DocumentType {
	case DocumentInvoice:
		setMatch(fields, "invoice_number", invoiceNumber, text)
		setMatch(fields, "invoice_date", invoiceDate, text)
		if c := currency(text); c != "" {
			fields["currency"] = c
		}
	case DocumentPolicy:
		setMatch(fields, "policy_number", policyNumber, text)
		setMatch(fields, "effective_date", effectiveDate, text)
		setMatch(fields, "version", version, text)
	default:
		if title, _, _ := strings.Cut(text, "\n"); title != "" {
			fields["title"] = strings.TrimSpace(title)
		}
	}

	return t
}

func (p *PDF) flag(text string, t totals, a *records.PDFAnalysis, fields map[string]any) {
	add := func(typ string, sev records.Severity, detail string) {
		a.Flags = append(a.Flags, records.Flag{Type: typ, Severity: sev, Detail: detail})
	}

	if t.hasTotal && a.TotalDue > p.thresholds.HighValue {
		add(FlagHighValue, records.SeverityHigh,
			fmt.Sprintf("total due %.2f exceeds %.2f", a.TotalDue, p.thresholds.HighValue))
	}

	if t.statedTotal && t.hasSubtotal && t.subtotal+t.tax != t.total {
		add(FlagTotalMismatch, records.SeverityMedium,
			fmt.Sprintf("subtotal %.2f plus tax %.2f does not equal total due %.2f",
				fromCents(t.subtotal), fromCents(t.tax), fromCents(t.total)))
	}

	var rowErrors int
	for _, item := range t.items {
		if int64(math.Round(item.quantity*float64(item.unit))) != item.total {
			rowErrors++
		}
	}
	switch {
	case rowErrors > 0:
		add(FlagLineItemMismatch, records.SeverityMedium,
			fmt.Sprintf("%d line items where quantity times unit price differs from total", rowErrors))
	case len(t.items) > 0 && sumItems(t.items) != t.subtotal:
		add(FlagLineItemMismatch, records.SeverityMedium,
			fmt.Sprintf("line items sum to %.2f, subtotal is %.2f",
				fromCents(sumItems(t.items)), fromCents(t.subtotal)))
	}

	if terms := p.lex.Compliance().Match(text); len(terms) > 0 {
		add(FlagRegulatoryReference, records.SeverityMedium,
			"references "+strings.Join(terms, ", "))
	}

	var expensive []string
	for _, item := range a.LineItems {
		if item.UnitPrice > p.thresholds.ExpensiveItem {
			expensive = append(expensive, item.Description)
		}
	}
	if len(expensive) > 0 {
		add(FlagExpensiveLineItems, records.SeverityMedium, strings.Join(expensive, ", "))
	}

	var found []string
	for _, s := range sensitive {
		if s.re.MatchString(text) {
			found = append(found, s.name)
		}
	}
	if len(found) > 0 {
		add(FlagSensitiveInfo, records.SeverityHigh, "possible "+strings.Join(found, ", "))
	}

	if a.DocumentType == DocumentInvoice {
		var missing []string
		for _, key := range []string{"invoice_number", "invoice_date", "total_due"} {
			if _, ok := fields[key]; !ok {
				missing = append(missing, key)
			}
		}
		if len(missing) > 0 {
			add(FlagMissingFields, records.SeverityLow, "missing "+strings.Join(missing, ", "))
		}
	}
}

// parseItemRow reads "description | quantity | unit_price | total". Header
// and separator rows fail to parse and are skipped.
func parseItemRow(line string) (string, itemCents, bool) {
	line = strings.TrimSpace(line)
	if !strings.Contains(line, "|") {
		return "", itemCents{}, false
	}
	line = strings.TrimSuffix(strings.TrimPrefix(line, "|"), "|")

	cells := strings.Split(line, "|")
	if len(cells) != 4 {
		return "", itemCents{}, false
	}
	for i := range cells {
		cells[i] = strings.TrimSpace(cells[i])
	}
	if cells[0] == "" {
		return "", itemCents{}, false
	}

	qty, err := strconv.ParseFloat(strings.ReplaceAll(cells[1], ",", ""), 64)
	if err != nil {
		return "", itemCents{}, false
	}
	unit, ok := parseCents(cells[2])
	if !ok {
		return "", itemCents{}, false
	}
	total, ok := parseCents(cells[3])
	if !ok {
		return "", itemCents{}, false
	}

	return cells[0], itemCents{quantity: qty, unit: unit, total: total}, true
}

// parseCents converts a decimal amount with optional currency symbol and
// thousands separators to integer cents.
func parseCents(s string) (int64, bool) {
	s = strings.NewReplacer("$", "", "€", "", "£", "", ",", "", " ", "").Replace(s)
	if !centsAmount.MatchString(s) {
		return 0, false
	}

	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	whole, frac, _ := strings.Cut(s, ".")
	for len(frac) < 2 {
		frac += "0"
	}

	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil || w > (math.MaxInt64-99)/100 {
		return 0, false
	}
	f, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, false
	}

	cents := w*100 + f
	if neg {
		cents = -cents
	}
	return cents, true
}

func findAmount(re *regexp.Regexp, text string) (int64, bool) {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	return parseCents(m[1])
}

func sumItems(items []itemCents) int64 {
	var sum int64
	for _, item := range items {
		sum += item.total
	}
	return sum
}

func fromCents(c int64) float64 {
	return float64(c) / 100
}

func setMatch(fields map[string]any, key string, re *regexp.Regexp, text string) {
	if m := re.FindStringSubmatch(text); m != nil {
		fields[key] = strings.TrimSpace(m[1])
	}
}

func currency(text string) string {
	if m := currencyCode.FindString(text); m != "" {
		return m
	}
	for _, c := range currencySymbols {
		if strings.Contains(text, c.symbol) {
			return c.code
		}
	}
	return ""
}

// documentType scores indicator phrases; a type needs at least three hits
// and a strict lead over the other.
func documentType(text string) string {
	lower := strings.ToLower(text)
	count := func(indicators []string) int {
		n := 0
		for _, ind := range indicators {
			if strings.Contains(lower, ind) {
				n++
			}
		}
		return n
	}

	invoice, policy := count(invoiceIndicators), count(policyIndicators)
	switch {
	case invoice >= 3 && invoice > policy:
		return DocumentInvoice
	case policy >= 3 && policy > invoice:
		return DocumentPolicy
	default:
		return DocumentGeneral
	}
}
