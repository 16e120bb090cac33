package services

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/LedgerLens/ledgerlens-backend/config"
	"github.com/LedgerLens/ledgerlens-backend/types"
	"github.com/shopspring/decimal"
)

// Confidence assigned to fields by how they were obtained.
const (
	confidenceLabeled  = 0.90
	confidenceFallback = 0.50
	confidenceDerived  = 0.60
)

// arithmeticEpsilon is the tolerance for the subtotal + tax = grandTotal check.
var arithmeticEpsilon = decimal.NewFromFloat(0.01)

// ExtractionService turns raw recognized text into a structured financial
// record. It is a pure transform: extraction never fails, it degrades to a
// low-confidence, mostly-empty record.
type ExtractionService struct {
	confidenceThreshold float64
}

// NewExtractionService creates an extraction service with the given tunables.
func NewExtractionService(cfg config.ExtractionConfig) *ExtractionService {
	return &ExtractionService{confidenceThreshold: cfg.ConfidenceThreshold}
}

// Patterns are tried in fixed order per field; the first match wins and
// scanning for that field stops.
var (
	vendorPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^(?:vendor|merchant|seller|sold\s*by|from)\s*[:\-]\s*(.+)$`),
	}

	documentNumberPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)invoice\s*(?:no\.?|number|#)?\s*[:#]?\s*([A-Za-z0-9][A-Za-z0-9/\-]*)`),
		regexp.MustCompile(`(?i)\bINV[\s#:\-]+([A-Za-z0-9][A-Za-z0-9/\-]*)`),
		regexp.MustCompile(`(?i)\bTR#\s*([A-Za-z0-9][A-Za-z0-9/\-]*)`),
		regexp.MustCompile(`(?i)receipt\s*(?:no\.?|#)\s*[:#]?\s*([A-Za-z0-9][A-Za-z0-9/\-]*)`),
	}

	datePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2})\b`),
		regexp.MustCompile(`\b(\d{1,2}[/\-]\d{1,2}[/\-]\d{2,4})\b`),
		regexp.MustCompile(`(?i)\b((?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)[a-z]*\.?\s+\d{1,2},?\s+\d{4})\b`),
	}

	subtotalLabel = regexp.MustCompile(`(?i)\bsub\s*-?\s*total\b`)
	taxLabel      = regexp.MustCompile(`(?i)\b(?:sales\s+)?tax\b|\bvat\b|\bgst\b`)
	totalLabel    = regexp.MustCompile(`(?i)\b(?:grand\s+)?total\b|\bamount\s+due\b|\bbalance\s+due\b`)

	// trailingAmount matches a monetary amount at the end of a line.
	trailingAmount = regexp.MustCompile(`(?:[$€£]\s*)?(-?\d[\d,]*\.\d{2})\s*$`)
	// labeledAmount matches an amount anywhere after a label, for lines like
	// "Tax: $1.50" where trailing whitespace or a currency code may follow.
	labeledAmount = regexp.MustCompile(`(?:[$€£]\s*)?(-?\d[\d,]*(?:\.\d{1,2})?)\s*(?:[A-Z]{3})?\s*$`)
	// quantityAt matches the explicit "N @ unit-price" quantity pattern.
	quantityAt = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*@\s*[$€£]?\s*(\d[\d,]*(?:\.\d{1,2})?)`)

	currencyCodePattern = regexp.MustCompile(`\b(USD|EUR|GBP|CAD|AUD|JPY|CHF|INR)\b`)
)

// currencySymbols maps currency glyphs to ISO 4217 codes.
var currencySymbols = []struct {
	symbol string
	code   string
}{
	{"$", "USD"},
	{"€", "EUR"},
	{"£", "GBP"},
}

// itemExclusionKeywords disqualify a line from being treated as a line item
// even when it ends in an amount. These are summary or payment markers.
var itemExclusionKeywords = []string{
	"total", "subtotal", "tax", "vat", "gst", "change", "tender",
	"balance", "due", "cash", "payment", "visa", "mastercard", "amount",
}

// Extract parses raw recognized text into a structured record. It never
// fails; unrecognizable input yields an empty record with confidence near
// zero. Missing totals are derived once via DeriveTotals before returning.
func (s *ExtractionService) Extract(rawText string) types.StructuredRecord {
	record := types.StructuredRecord{
		RawText:          rawText,
		LineItems:        []types.LineItem{},
		FieldConfidences: map[string]float64{},
	}

	lines := splitLines(rawText)
	if len(lines) == 0 {
		return record
	}

	s.extractVendor(lines, &record)
	s.extractDocumentNumber(lines, &record)
	s.extractDates(lines, &record)
	s.extractCurrency(rawText, &record)
	s.extractAmounts(lines, &record)
	s.extractLineItems(lines, &record)

	s.DeriveTotals(&record)
	record.Confidence = overallConfidence(record.FieldConfidences)
	return record
}

// Validate checks a structured record for arithmetic consistency and
// per-field confidence. The arithmetic check applies only when all three of
// subtotal, tax and grand total were independently recognized; derived
// values are consistent by construction.
func (s *ExtractionService) Validate(record types.StructuredRecord) types.ValidationResult {
	var issues []types.ValidationIssue

	allRecognized := hasField(record, types.RecordFieldSubtotal) && !record.SubtotalDerived &&
		hasField(record, types.RecordFieldTax) && !record.TaxDerived &&
		hasField(record, types.RecordFieldGrandTotal) && !record.GrandTotalDerived
	if allRecognized {
		expected := record.Subtotal.Add(record.Tax)
		if expected.Sub(record.GrandTotal).Abs().GreaterThan(arithmeticEpsilon) {
			issues = append(issues, types.ValidationIssue{
				Code:  types.IssueArithmeticMismatch,
				Field: types.RecordFieldGrandTotal,
				Message: fmt.Sprintf("subtotal %s + tax %s = %s, but stated total is %s",
					record.Subtotal, record.Tax, expected, record.GrandTotal),
			})
		}
	}

	for _, field := range []string{
		types.RecordFieldVendor,
		types.RecordFieldDocumentNumber,
		types.RecordFieldIssueDate,
		types.RecordFieldDueDate,
		types.RecordFieldCurrency,
		types.RecordFieldSubtotal,
		types.RecordFieldTax,
		types.RecordFieldGrandTotal,
	} {
		if conf, ok := record.FieldConfidences[field]; ok && conf < s.confidenceThreshold {
			issues = append(issues, types.ValidationIssue{
				Code:    types.IssueLowConfidence,
				Field:   field,
				Message: fmt.Sprintf("confidence %.2f is below threshold %.2f", conf, s.confidenceThreshold),
			})
		}
	}

	return types.ValidationResult{IsValid: len(issues) == 0, Issues: issues}
}

// DeriveTotals fills in any missing one of subtotal, tax and grand total
// from the other known values, in fixed order: subtotal from the sum of
// line totals, grand total from subtotal + tax, tax from grand total minus
// subtotal. A field counts as known once recognized or derived, so the
// operation is idempotent: re-running it on a fully populated record
// changes nothing.
func (s *ExtractionService) DeriveTotals(record *types.StructuredRecord) {
	if record.FieldConfidences == nil {
		record.FieldConfidences = map[string]float64{}
	}

	if !hasField(*record, types.RecordFieldSubtotal) {
		sum := decimal.Zero
		for _, item := range record.LineItems {
			sum = sum.Add(item.LineTotal)
		}
		record.Subtotal = sum
		record.SubtotalDerived = true
		record.FieldConfidences[types.RecordFieldSubtotal] = confidenceDerived
	}

	if !hasField(*record, types.RecordFieldGrandTotal) {
		record.GrandTotal = record.Subtotal.Add(record.Tax)
		record.GrandTotalDerived = true
		record.FieldConfidences[types.RecordFieldGrandTotal] = confidenceDerived
	}

	if !hasField(*record, types.RecordFieldTax) {
		record.Tax = record.GrandTotal.Sub(record.Subtotal)
		record.TaxDerived = true
		record.FieldConfidences[types.RecordFieldTax] = confidenceDerived
	}
}

func hasField(record types.StructuredRecord, field string) bool {
	_, ok := record.FieldConfidences[field]
	return ok
}

func splitLines(text string) []string {
	raw := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	lines := make([]string, 0, len(raw))
	for _, line := range raw {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
	return lines
}

func (s *ExtractionService) extractVendor(lines []string, record *types.StructuredRecord) {
	for _, line := range lines {
		for _, pattern := range vendorPatterns {
			if m := pattern.FindStringSubmatch(line); m != nil {
				record.VendorName = strings.TrimSpace(m[1])
				record.FieldConfidences[types.RecordFieldVendor] = confidenceLabeled
				return
			}
		}
	}
	// No labeled vendor line: fall back to the first non-empty line.
	record.VendorName = lines[0]
	record.FieldConfidences[types.RecordFieldVendor] = confidenceFallback
}

func (s *ExtractionService) extractDocumentNumber(lines []string, record *types.StructuredRecord) {
	for _, pattern := range documentNumberPatterns {
		for _, line := range lines {
			if m := pattern.FindStringSubmatch(line); m != nil {
				record.DocumentNumber = m[1]
				record.FieldConfidences[types.RecordFieldDocumentNumber] = confidenceLabeled
				return
			}
		}
	}
}

func (s *ExtractionService) extractDates(lines []string, record *types.StructuredRecord) {
	for _, pattern := range datePatterns {
		for _, line := range lines {
			m := pattern.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			isDue := strings.Contains(strings.ToLower(line), "due")
			if isDue && record.DueDate == "" {
				record.DueDate = m[1]
				record.FieldConfidences[types.RecordFieldDueDate] = confidenceLabeled
			} else if !isDue && record.IssueDate == "" {
				record.IssueDate = m[1]
				record.FieldConfidences[types.RecordFieldIssueDate] = confidenceLabeled
			}
			if record.IssueDate != "" && record.DueDate != "" {
				return
			}
		}
		if record.IssueDate != "" {
			return
		}
	}
}

func (s *ExtractionService) extractCurrency(text string, record *types.StructuredRecord) {
	if m := currencyCodePattern.FindStringSubmatch(text); m != nil {
		record.CurrencyCode = m[1]
		record.FieldConfidences[types.RecordFieldCurrency] = confidenceLabeled
		return
	}
	for _, entry := range currencySymbols {
		if strings.Contains(text, entry.symbol) {
			record.CurrencyCode = entry.code
			record.FieldConfidences[types.RecordFieldCurrency] = confidenceLabeled
			return
		}
	}
}

// extractAmounts scans lines for labeled subtotal, tax and total amounts.
// Subtotal is tested before total so "Subtotal" lines are not consumed by
// the broader total label.
func (s *ExtractionService) extractAmounts(lines []string, record *types.StructuredRecord) {
	for _, line := range lines {
		amount, ok := parseAmount(line)
		if !ok {
			continue
		}

		switch {
		case subtotalLabel.MatchString(line):
			if !hasField(*record, types.RecordFieldSubtotal) {
				record.Subtotal = amount
				record.FieldConfidences[types.RecordFieldSubtotal] = confidenceLabeled
			}
		case taxLabel.MatchString(line):
			if !hasField(*record, types.RecordFieldTax) {
				record.Tax = amount
				record.FieldConfidences[types.RecordFieldTax] = confidenceLabeled
			}
		case totalLabel.MatchString(line):
			if !hasField(*record, types.RecordFieldGrandTotal) {
				record.GrandTotal = amount
				record.FieldConfidences[types.RecordFieldGrandTotal] = confidenceLabeled
			}
		}
	}
}

// extractLineItems treats a line as an item candidate when it ends in a
// monetary amount and carries no summary or payment keyword. Quantity
// defaults to 1 unless an explicit "N @ price" pattern is present.
func (s *ExtractionService) extractLineItems(lines []string, record *types.StructuredRecord) {
	for _, line := range lines {
		if containsExclusionKeyword(line) {
			continue
		}
		m := trailingAmount.FindStringSubmatchIndex(line)
		if m == nil {
			continue
		}

		lineTotal, err := decimal.NewFromString(strings.ReplaceAll(line[m[2]:m[3]], ",", ""))
		if err != nil || lineTotal.IsNegative() {
			continue
		}

		description := strings.TrimSpace(strings.TrimRight(line[:m[0]], " \t-:$€£"))
		quantity := decimal.NewFromInt(1)
		unitPrice := lineTotal

		if qm := quantityAt.FindStringSubmatch(line); qm != nil {
			if q, err := decimal.NewFromString(qm[1]); err == nil && q.IsPositive() {
				if p, err := decimal.NewFromString(strings.ReplaceAll(qm[2], ",", "")); err == nil {
					quantity = q
					unitPrice = p
					description = strings.TrimSpace(quantityAt.ReplaceAllString(description, ""))
				}
			}
		}
		if description == "" {
			continue
		}

		record.LineItems = append(record.LineItems, types.LineItem{
			Description: description,
			Quantity:    quantity,
			UnitPrice:   unitPrice,
			LineTotal:   lineTotal,
		})
	}
}

func containsExclusionKeyword(line string) bool {
	lower := strings.ToLower(line)
	for _, kw := range itemExclusionKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// parseAmount extracts the trailing monetary amount from a labeled line.
func parseAmount(line string) (decimal.Decimal, bool) {
	m := labeledAmount.FindStringSubmatch(line)
	if m == nil {
		return decimal.Zero, false
	}
	amount, err := decimal.NewFromString(strings.ReplaceAll(m[1], ",", ""))
	if err != nil {
		return decimal.Zero, false
	}
	return amount, true
}

// trackedFields is the denominator for the overall confidence score.
var trackedFields = []string{
	types.RecordFieldVendor,
	types.RecordFieldDocumentNumber,
	types.RecordFieldIssueDate,
	types.RecordFieldCurrency,
	types.RecordFieldSubtotal,
	types.RecordFieldTax,
	types.RecordFieldGrandTotal,
}

// overallConfidence averages field confidences over all tracked fields,
// counting absent fields as zero. An empty record scores near zero.
func overallConfidence(fieldConfidences map[string]float64) float64 {
	if len(fieldConfidences) == 0 {
		return 0
	}
	var sum float64
	for _, field := range trackedFields {
		sum += fieldConfidences[field]
	}
	return sum / float64(len(trackedFields))
}
