package prescription

import (
	"encoding/json"
	"strings"

	"github.com/jcsn13/ocr-prescription/internal/completion"
	"github.com/jcsn13/ocr-prescription/internal/schema"
)

// Category is the writing style of a prescription body.
type Category string

const (
	Handwritten Category = "MANUSCRITA"
	Typed       Category = "DIGITADA"
)

// handwrittenMarker is matched case-insensitively against the label.
const handwrittenMarker = "manuscrita"

// Label is the normalized classification output. Structured is true when the
// model answered with the {"response": ...} envelope and false when the raw
// completion text was used as is.
type Label struct {
	Value      string
	Structured bool
}

// NormalizeLabel turns a raw classification completion into a Label. It never
// fails: anything that is not a JSON envelope with a string "response" field
// is kept as a raw label.
func NormalizeLabel(raw string) Label {
	text := completion.StripCodeFences(raw)

	var envelope map[string]any
	if err := json.Unmarshal([]byte(text), &envelope); err == nil {
		if v, ok := envelope[schema.LabelField].(string); ok {
			return Label{Value: strings.TrimSpace(v), Structured: true}
		}
	}
	return Label{Value: text}
}

// Handwritten reports whether the label routes to OCR. Any label containing
// "manuscrita" in any case qualifies, including garbled output.
func (l Label) Handwritten() bool {
	return strings.Contains(strings.ToLower(l.Value), handwrittenMarker)
}

// ParseCategory matches the label exactly against the two categories,
// ignoring case, surrounding whitespace and square brackets.
func (l Label) ParseCategory() (Category, bool) {
	v := strings.ToUpper(strings.Trim(strings.TrimSpace(l.Value), "[]"))
	switch Category(v) {
	case Handwritten:
		return Handwritten, true
	case Typed:
		return Typed, true
	}
	return "", false
}

// String returns the label value.
func (l Label) String() string {
	return l.Value
}
