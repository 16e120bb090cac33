// Package services provides business logic implementations.
package services

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/LedgerLens/ledgerlens-backend/types"
	"github.com/google/uuid"
)

// GeometryService converts heterogeneous recognized-region payloads into the
// canonical fractional bounding-box model. It is a pure transform: no I/O,
// no state, anomalies degrade to diagnostics rather than errors.
type GeometryService struct{}

// NewGeometryService creates a new geometry normalizer.
func NewGeometryService() *GeometryService {
	return &GeometryService{}
}

// rawRect is a box in the units of the source payload, origin+size form.
type rawRect struct {
	x, y, w, h float64
}

// fieldTypeVocabulary maps region names to field types by case-insensitive
// substring match. Order is significant and fixed; first match wins.
var fieldTypeVocabulary = []struct {
	keywords  []string
	fieldType types.FieldType
}{
	{[]string{"vendor", "company"}, types.FieldTypeVendor},
	{[]string{"invoice", "date", "number"}, types.FieldTypeInvoiceInfo},
	{[]string{"line", "item"}, types.FieldTypeLineItem},
	{[]string{"total", "sum"}, types.FieldTypeTotals},
}

// classifyFieldType matches a region's name or type string against the fixed
// vocabulary. Unmatched names classify as other.
func classifyFieldType(name string) types.FieldType {
	lower := strings.ToLower(name)
	for _, entry := range fieldTypeVocabulary {
		for _, kw := range entry.keywords {
			if strings.Contains(lower, kw) {
				return entry.fieldType
			}
		}
	}
	return types.FieldTypeOther
}

// parallelPayload is shape (i): parallel token/box arrays.
type parallelPayload struct {
	Words       []string          `json:"words"`
	Boxes       []json.RawMessage `json:"boxes"`
	Confidences []float64         `json:"confidences"`
}

// regionPayload is shape (ii): a list of region objects with bbox plus metadata.
type regionPayload struct {
	Regions []struct {
		BBox       json.RawMessage `json:"bbox"`
		Text       string          `json:"text"`
		Type       string          `json:"type"`
		Confidence *float64        `json:"confidence"`
	} `json:"regions"`
}

// fieldPayload is shape (iii): a list of named-field objects with bbox.
type fieldPayload struct {
	Fields []struct {
		Name       string          `json:"name"`
		Value      string          `json:"value"`
		BBox       json.RawMessage `json:"bbox"`
		Confidence *float64        `json:"confidence"`
	} `json:"fields"`
}

// Normalize converts an opaque region payload into canonical boxes. When
// imageWidth and imageHeight are positive, pixel coordinates are divided by
// them and clamped to [0,1]; otherwise coordinates pass through unmodified
// and a diagnostic is recorded so callers can detect missing-context pixel
// values. Unknown payload shapes yield an empty result, never an error.
func (g *GeometryService) Normalize(raw json.RawMessage, imageWidth, imageHeight int) ([]types.CanonicalBox, []string) {
	var diagnostics []string

	if len(raw) == 0 {
		return nil, []string{"empty region payload"}
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, []string{fmt.Sprintf("unrecognized region payload: %v", err)}
	}

	haveDims := imageWidth > 0 && imageHeight > 0
	if !haveDims {
		diagnostics = append(diagnostics, "image dimensions missing; coordinates passed through unnormalized")
	}

	// Structural probing, in fixed priority order: parallel arrays first,
	// then region objects, then named fields.
	var boxes []types.CanonicalBox
	switch {
	case hasKey(probe, "words") && hasKey(probe, "boxes"):
		boxes = g.parseParallel(raw, &diagnostics)
	case hasKey(probe, "regions"):
		boxes = g.parseRegions(raw, &diagnostics)
	case hasKey(probe, "fields"):
		boxes = g.parseFields(raw, &diagnostics)
	default:
		diagnostics = append(diagnostics, "unknown region payload shape")
		return nil, diagnostics
	}

	if haveDims {
		for i := range boxes {
			boxes[i] = scaleAndClamp(boxes[i], float64(imageWidth), float64(imageHeight))
		}
	}
	return boxes, diagnostics
}

func hasKey(m map[string]json.RawMessage, key string) bool {
	_, ok := m[key]
	return ok
}

func (g *GeometryService) parseParallel(raw json.RawMessage, diags *[]string) []types.CanonicalBox {
	var payload parallelPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		*diags = append(*diags, fmt.Sprintf("parallel arrays payload malformed: %v", err))
		return nil
	}

	boxes := make([]types.CanonicalBox, 0, len(payload.Boxes))
	for i, rawBox := range payload.Boxes {
		rect, ok := parseBox(rawBox)
		if !ok {
			*diags = append(*diags, fmt.Sprintf("box %d: unrecognized encoding", i))
			continue
		}

		label := ""
		if i < len(payload.Words) {
			label = payload.Words[i]
		}
		confidence := 1.0
		if i < len(payload.Confidences) {
			confidence = clamp01(payload.Confidences[i])
		}

		boxes = append(boxes, types.CanonicalBox{
			ID:         uuid.New().String(),
			X:          rect.x,
			Y:          rect.y,
			Width:      rect.w,
			Height:     rect.h,
			Label:      label,
			Confidence: confidence,
			FieldType:  classifyFieldType(label),
		})
	}
	return boxes
}

func (g *GeometryService) parseRegions(raw json.RawMessage, diags *[]string) []types.CanonicalBox {
	var payload regionPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		*diags = append(*diags, fmt.Sprintf("regions payload malformed: %v", err))
		return nil
	}

	boxes := make([]types.CanonicalBox, 0, len(payload.Regions))
	for i, region := range payload.Regions {
		rect, ok := parseBox(region.BBox)
		if !ok {
			*diags = append(*diags, fmt.Sprintf("region %d: unrecognized bbox encoding", i))
			continue
		}

		confidence := 1.0
		if region.Confidence != nil {
			confidence = clamp01(*region.Confidence)
		}
		// Classification prefers the region's declared type over its text.
		name := region.Type
		if name == "" {
			name = region.Text
		}

		boxes = append(boxes, types.CanonicalBox{
			ID:         uuid.New().String(),
			X:          rect.x,
			Y:          rect.y,
			Width:      rect.w,
			Height:     rect.h,
			Label:      region.Text,
			Confidence: confidence,
			FieldType:  classifyFieldType(name),
		})
	}
	return boxes
}

func (g *GeometryService) parseFields(raw json.RawMessage, diags *[]string) []types.CanonicalBox {
	var payload fieldPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		*diags = append(*diags, fmt.Sprintf("fields payload malformed: %v", err))
		return nil
	}

	boxes := make([]types.CanonicalBox, 0, len(payload.Fields))
	for i, field := range payload.Fields {
		rect, ok := parseBox(field.BBox)
		if !ok {
			*diags = append(*diags, fmt.Sprintf("field %q (%d): unrecognized bbox encoding", field.Name, i))
			continue
		}

		confidence := 1.0
		if field.Confidence != nil {
			confidence = clamp01(*field.Confidence)
		}
		label := field.Value
		if label == "" {
			label = field.Name
		}

		boxes = append(boxes, types.CanonicalBox{
			ID:         uuid.New().String(),
			X:          rect.x,
			Y:          rect.y,
			Width:      rect.w,
			Height:     rect.h,
			Label:      label,
			Confidence: confidence,
			FieldType:  classifyFieldType(field.Name),
			FieldID:    field.Name,
		})
	}
	return boxes
}

// parseBox decodes a single box in any of the supported encodings into
// origin+size form:
//
//   - object {x, y, w|width, h|height}
//   - array [x1, y1, x2, y2] (two-point) or [x, y, w, h] (origin+size)
//   - array of 8 numbers: four-point polygon, reduced to its axis-aligned
//     bounding rectangle via per-axis min/max
func parseBox(raw json.RawMessage) (rawRect, bool) {
	if len(raw) == 0 {
		return rawRect{}, false
	}

	var nums []float64
	if err := json.Unmarshal(raw, &nums); err == nil {
		switch len(nums) {
		case 4:
			return disambiguateQuad(nums), true
		case 8:
			return polygonBounds(nums), true
		default:
			return rawRect{}, false
		}
	}

	var obj struct {
		X      *float64 `json:"x"`
		Y      *float64 `json:"y"`
		W      *float64 `json:"w"`
		H      *float64 `json:"h"`
		Width  *float64 `json:"width"`
		Height *float64 `json:"height"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil || obj.X == nil || obj.Y == nil {
		return rawRect{}, false
	}
	w, h := obj.W, obj.H
	if w == nil {
		w = obj.Width
	}
	if h == nil {
		h = obj.Height
	}
	if w == nil || h == nil {
		return rawRect{}, false
	}
	return rawRect{x: *obj.X, y: *obj.Y, w: nonNegative(*w), h: nonNegative(*h)}, true
}

// disambiguateQuad decides between the two-point and origin+size readings of
// a four-number box. Two-point is tried first: it requires the second corner
// to lie right of and below the first. When the 3rd/4th values cannot be a
// second corner they are read as width/height. This heuristic can misread
// origin+size boxes whose size exceeds their origin coordinates; that
// ambiguity is inherent to the encodings.
func disambiguateQuad(v []float64) rawRect {
	if v[2] > v[0] && v[3] > v[1] {
		return rawRect{x: v[0], y: v[1], w: v[2] - v[0], h: v[3] - v[1]}
	}
	return rawRect{x: v[0], y: v[1], w: nonNegative(v[2]), h: nonNegative(v[3])}
}

// polygonBounds reduces a four-point polygon to its axis-aligned bounding
// rectangle via per-axis min/max.
func polygonBounds(v []float64) rawRect {
	minX, maxX := v[0], v[0]
	minY, maxY := v[1], v[1]
	for i := 2; i < 8; i += 2 {
		if v[i] < minX {
			minX = v[i]
		}
		if v[i] > maxX {
			maxX = v[i]
		}
		if v[i+1] < minY {
			minY = v[i+1]
		}
		if v[i+1] > maxY {
			maxY = v[i+1]
		}
	}
	return rawRect{x: minX, y: minY, w: maxX - minX, h: maxY - minY}
}

// scaleAndClamp divides pixel coordinates by the image dimensions and clamps
// the result to [0,1]. Upstream overshoot is absorbed, not rejected: x+width
// and y+height are clamped back into range.
func scaleAndClamp(box types.CanonicalBox, imageWidth, imageHeight float64) types.CanonicalBox {
	box.X = clamp01(box.X / imageWidth)
	box.Y = clamp01(box.Y / imageHeight)
	box.Width = clamp01(box.Width / imageWidth)
	box.Height = clamp01(box.Height / imageHeight)
	if box.X+box.Width > 1 {
		box.Width = 1 - box.X
	}
	if box.Y+box.Height > 1 {
		box.Height = 1 - box.Y
	}
	return box
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func nonNegative(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
