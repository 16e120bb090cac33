package types

import "github.com/shopspring/decimal"

// Record field names used for per-field confidence tracking and for linking
// canonical boxes to structured-record fields.
const (
	RecordFieldVendor         = "vendorName"
	RecordFieldDocumentNumber = "documentNumber"
	RecordFieldIssueDate      = "issueDate"
	RecordFieldDueDate        = "dueDate"
	RecordFieldCurrency       = "currencyCode"
	RecordFieldSubtotal       = "subtotal"
	RecordFieldTax            = "tax"
	RecordFieldGrandTotal     = "grandTotal"
)

// LineItem is a single purchased item recognized on the document.
type LineItem struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	LineTotal   decimal.Decimal `json:"lineTotal"`
}

// StructuredRecord is the best-effort structured financial record extracted
// from raw recognized text. It is always fully formed: missing totals are
// derived once at construction (see the extraction service) and flagged via
// the *Derived markers so validation can tell recognized from computed.
type StructuredRecord struct {
	VendorName     string     `json:"vendorName"`
	DocumentNumber string     `json:"documentNumber"`
	IssueDate      string     `json:"issueDate"`
	DueDate        string     `json:"dueDate,omitempty"`
	CurrencyCode   string     `json:"currencyCode"`
	LineItems      []LineItem `json:"lineItems"`

	Subtotal   decimal.Decimal `json:"subtotal"`
	Tax        decimal.Decimal `json:"tax"`
	GrandTotal decimal.Decimal `json:"grandTotal"`

	SubtotalDerived   bool `json:"subtotalDerived"`
	TaxDerived        bool `json:"taxDerived"`
	GrandTotalDerived bool `json:"grandTotalDerived"`

	// RawText preserves the recognizer output for auditing.
	RawText string `json:"rawText"`
	// Confidence is the overall extraction confidence in [0,1].
	Confidence float64 `json:"confidence"`
	// FieldConfidences holds per-field confidence in [0,1], keyed by the
	// RecordField* constants. Absent fields carry no entry.
	FieldConfidences map[string]float64 `json:"fieldConfidences,omitempty"`
}

// Validation issue codes.
const (
	IssueArithmeticMismatch = "ARITHMETIC_MISMATCH"
	IssueLowConfidence      = "LOW_CONFIDENCE"
)

// ValidationIssue describes a single problem found while validating a record.
type ValidationIssue struct {
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// ValidationResult is the outcome of validating a structured record.
type ValidationResult struct {
	IsValid bool              `json:"isValid"`
	Issues  []ValidationIssue `json:"issues"`
}
