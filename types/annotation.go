package types

// FieldType categorizes a recognized region by the kind of invoice content
// it covers.
type FieldType string

const (
	FieldTypeVendor      FieldType = "vendor"
	FieldTypeInvoiceInfo FieldType = "invoice_info"
	FieldTypeLineItem    FieldType = "line_item"
	FieldTypeTotals      FieldType = "totals"
	FieldTypeOther       FieldType = "other"
)

// CanonicalBox is a recognized region expressed in the single fractional
// (x, y, width, height) coordinate system used throughout the pipeline.
// All four coordinates are fractions of the image dimensions clamped to
// [0,1]. Width and height are never negative; x+width and y+height may
// have been clamped when the upstream engine overshot the image bounds.
type CanonicalBox struct {
	ID         string    `json:"id"`
	X          float64   `json:"x"`
	Y          float64   `json:"y"`
	Width      float64   `json:"width"`
	Height     float64   `json:"height"`
	Label      string    `json:"label"`
	Confidence float64   `json:"confidence"`
	FieldType  FieldType `json:"fieldType"`
	// FieldID optionally links the box to a structured-record field.
	FieldID string `json:"fieldId,omitempty"`
}
