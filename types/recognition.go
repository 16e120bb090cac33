package types

import "encoding/json"

// RecognitionResult is the opaque payload handed back by the recognition
// collaborator. Raw carries the region annotations in whichever shape the
// engine produced; the geometry normalizer probes it structurally.
type RecognitionResult struct {
	Raw         json.RawMessage `json:"raw"`
	Text        string          `json:"text"`
	ImageWidth  int             `json:"imageWidth,omitempty"`
	ImageHeight int             `json:"imageHeight,omitempty"`
	PageCount   int             `json:"pageCount,omitempty"`
}

// DocumentResult is the pipeline output for one document: the canonical
// annotation list plus the structured record, ready for the review UI and
// persistence collaborators.
type DocumentResult struct {
	ItemID      string           `json:"itemId"`
	Boxes       []CanonicalBox   `json:"boxes"`
	Record      StructuredRecord `json:"record"`
	Validation  ValidationResult `json:"validation"`
	Diagnostics []string         `json:"diagnostics,omitempty"`
	PageCount   int              `json:"pageCount,omitempty"`
}
