package services

import (
	"context"

	apperrors "github.com/LedgerLens/ledgerlens-backend/errors"
	"github.com/LedgerLens/ledgerlens-backend/logger"
	"github.com/LedgerLens/ledgerlens-backend/types"
	"go.uber.org/zap"
)

// DocumentProcessor runs the post-transfer pipeline: recognition, geometry
// normalization and field extraction, producing the DocumentResult handed to
// review and persistence collaborators.
type DocumentProcessor struct {
	recognizer Recognizer
	geometry   *GeometryService
	extraction *ExtractionService
	logger     *zap.SugaredLogger
}

// NewDocumentProcessor creates a processor over the given collaborators.
func NewDocumentProcessor(recognizer Recognizer, geometry *GeometryService, extraction *ExtractionService) *DocumentProcessor {
	return &DocumentProcessor{
		recognizer: recognizer,
		geometry:   geometry,
		extraction: extraction,
		logger:     logger.GetLogger().Named("processor"),
	}
}

// Process recognizes a document payload and converts the output into
// canonical boxes plus a validated structured record. Only the recognition
// call can fail; normalization and extraction degrade instead of erroring.
func (p *DocumentProcessor) Process(ctx context.Context, itemID string, payload []byte, contentType string) (*types.DocumentResult, error) {
	recognition, err := p.recognizer.Recognize(ctx, payload, contentType)
	if err != nil {
		return nil, apperrors.NewRecognitionError(err)
	}

	boxes, diagnostics := p.geometry.Normalize(recognition.Raw, recognition.ImageWidth, recognition.ImageHeight)
	for _, diag := range diagnostics {
		p.logger.Warnw("Geometry normalization diagnostic", "itemId", itemID, "diagnostic", diag)
	}

	record := p.extraction.Extract(recognition.Text)
	validation := p.extraction.Validate(record)

	linkBoxesToRecord(boxes)

	p.logger.Infow("Document processed",
		"itemId", itemID,
		"boxes", len(boxes),
		"lineItems", len(record.LineItems),
		"confidence", record.Confidence,
		"isValid", validation.IsValid)

	return &types.DocumentResult{
		ItemID:      itemID,
		Boxes:       boxes,
		Record:      record,
		Validation:  validation,
		Diagnostics: diagnostics,
		PageCount:   recognition.PageCount,
	}, nil
}

// linkBoxesToRecord assigns record field IDs to boxes whose classification
// unambiguously maps to a structured-record field and that aren't already
// linked by a named-field payload.
func linkBoxesToRecord(boxes []types.CanonicalBox) {
	for i := range boxes {
		if boxes[i].FieldID != "" {
			continue
		}
		switch boxes[i].FieldType {
		case types.FieldTypeVendor:
			boxes[i].FieldID = types.RecordFieldVendor
		case types.FieldTypeTotals:
			boxes[i].FieldID = types.RecordFieldGrandTotal
		}
	}
}
