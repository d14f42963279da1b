// Package completion talks to generative models that return structured
// (schema-constrained) completions.
//
// Backends stream their responses; a Completer always drains the stream and
// hands back the fully concatenated text, so callers see a single blocking
// call per request.
//
// Supported backends:
//   - gemini: Google Gemini API via github.com/google/generative-ai-go
//   - openai: OpenAI chat completions via github.com/sashabaranov/go-openai
package completion

import (
	"context"
	"errors"
	"strings"

	"github.com/jcsn13/ocr-prescription/internal/schema"
)

var (
	// ErrEmptyCompletion is returned when the stream finished without text.
	ErrEmptyCompletion = errors.New("completion returned no text")

	// ErrBlocked is returned when the provider refused to answer.
	ErrBlocked = errors.New("completion blocked by provider")

	// ErrMissingAPIKey is returned when a backend is built without credentials.
	ErrMissingAPIKey = errors.New("missing completion API key")
)

// Part is one element of a multi-part request: either text or a binary blob.
type Part struct {
	Text     string
	Data     []byte
	MIMEType string
}

// Text builds a text part.
func Text(s string) Part {
	return Part{Text: s}
}

// Blob builds a binary part with its MIME type.
func Blob(data []byte, mimeType string) Part {
	return Part{Data: data, MIMEType: mimeType}
}

// IsBlob reports whether the part carries binary data.
func (p Part) IsBlob() bool {
	return p.Data != nil
}

// Request is one structured completion call.
type Request struct {
	Parts  []Part
	Config schema.GenerationConfig
	Safety []schema.SafetySetting
}

// Completer produces a fully materialized completion for a request.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// CompleterFunc adapts a function to the Completer interface.
type CompleterFunc func(ctx context.Context, req Request) (string, error)

// Complete calls f.
func (f CompleterFunc) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// StripCodeFences removes a surrounding markdown code fence, which some
// models emit even in JSON mode.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
