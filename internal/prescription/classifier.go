package prescription

import (
	"context"
	"time"

	"github.com/jcsn13/ocr-prescription/internal/completion"
	"github.com/jcsn13/ocr-prescription/internal/logger"
	"github.com/jcsn13/ocr-prescription/internal/schema"
	"github.com/rs/zerolog"
)

// Classifier decides whether a prescription body is handwritten or typed.
type Classifier struct {
	completer completion.Completer
	examples  *FewShotSet
	log       zerolog.Logger
}

// NewClassifier creates a classifier that shows examples to the model before
// the target image.
func NewClassifier(completer completion.Completer, examples *FewShotSet) *Classifier {
	return &Classifier{
		completer: completer,
		examples:  examples,
		log:       logger.WithComponent("classifier"),
	}
}

// Classify sends the few-shot prompt and img to the model and normalizes the
// answer.
func (c *Classifier) Classify(ctx context.Context, img Image) (Label, error) {
	const op = "Classify"

	if img.Empty() {
		return Label{}, newError(op, KindInput, ErrMissingImage, nil, "")
	}

	start := time.Now()
	raw, err := c.completer.Complete(ctx, completion.Request{
		Parts:  c.parts(img),
		Config: schema.ClassificationConfig(),
		Safety: schema.SafetySettings(),
	})
	if err != nil {
		return Label{}, newError(op, KindTransport, ErrTransport, err, "classification completion failed")
	}

	label := NormalizeLabel(raw)
	c.log.Debug().
		Str("label", label.Value).
		Bool("structured", label.Structured).
		Dur("duration", time.Since(start)).
		Msg("Prescription classified")

	return label, nil
}

// parts lays out the request: intro, handwritten examples, typed examples,
// instructions, then the target image.
func (c *Classifier) parts(img Image) []completion.Part {
	parts := make([]completion.Part, 0, 8)
	parts = append(parts, completion.Text(classifyIntro))
	if c.examples != nil {
		for _, ex := range c.examples.Handwritten {
			parts = append(parts, completion.Blob(ex.Data, ex.MIMEType))
		}
	}
	parts = append(parts, completion.Text(classifyTypedExamples))
	if c.examples != nil {
		for _, ex := range c.examples.Typed {
			parts = append(parts, completion.Blob(ex.Data, ex.MIMEType))
		}
	}
	parts = append(parts, completion.Text(classifyInstructions))
	parts = append(parts, completion.Blob(img.Data, img.MIMEType))
	return parts
}
