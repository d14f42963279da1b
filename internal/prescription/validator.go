package prescription

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jcsn13/ocr-prescription/internal/completion"
	"github.com/jcsn13/ocr-prescription/internal/logger"
	"github.com/jcsn13/ocr-prescription/internal/schema"
	"github.com/jcsn13/ocr-prescription/pkg/models"
	"github.com/rs/zerolog"
)

// ValidatorOptions controls local checks applied to the model's verdict.
type ValidatorOptions struct {
	// CheckSchema validates the raw verdict against the validation schema.
	CheckSchema bool

	// EnforceAggregateStatus downgrades an APPROVED verdict that has a
	// non-approved item.
	EnforceAggregateStatus bool
}

// Validator checks a prescription image against a sales transaction.
type Validator struct {
	completer completion.Completer
	schema    *schema.Validator
	opts      ValidatorOptions
	log       zerolog.Logger
}

// NewValidator creates a validation stage. The schema is compiled once when
// CheckSchema is set.
func NewValidator(completer completion.Completer, opts ValidatorOptions) (*Validator, error) {
	v := &Validator{
		completer: completer,
		opts:      opts,
		log:       logger.WithComponent("validator"),
	}
	if opts.CheckSchema {
		compiled, err := schema.Compile("validation", schema.ValidationSchema)
		if err != nil {
			return nil, err
		}
		v.schema = compiled
	}
	return v, nil
}

// Validate asks the model for a verdict on img against transaction. ocrText
// is embedded in the prompt when non-nil.
func (v *Validator) Validate(ctx context.Context, img Image, ocrText *string, transaction []byte) (*models.Verdict, error) {
	const op = "Validate"

	if img.Empty() {
		return nil, newError(op, KindInput, ErrMissingImage, nil, "")
	}

	start := time.Now()
	prompt := buildValidationPrompt(ocrText, transaction)

	raw, err := v.completer.Complete(ctx, completion.Request{
		Parts: []completion.Part{
			completion.Text(prompt),
			completion.Blob(img.Data, img.MIMEType),
		},
		Config: schema.ValidationConfig(),
		Safety: schema.SafetySettings(),
	})
	if err != nil {
		return nil, newError(op, KindTransport, ErrTransport, err, "validation completion failed")
	}

	verdict, err := v.decode(raw)
	if err != nil {
		return nil, err
	}

	if v.opts.EnforceAggregateStatus && verdict.EnforceAggregateStatus() {
		v.log.Warn().
			Int("items", len(verdict.Items)).
			Msg("Model approved prescription with rejected items, status overridden to REPROVED")
	}

	v.log.Debug().
		Str("status", string(verdict.Status)).
		Strs("reasons", verdict.ReasonsPrescriptionDiscrepancy).
		Int("items", len(verdict.Items)).
		Bool("ocr", ocrText != nil).
		Int("prompt_length", len(prompt)).
		Dur("duration", time.Since(start)).
		Msg("Prescription validated")

	return verdict, nil
}

func (v *Validator) decode(raw string) (*models.Verdict, error) {
	const op = "DecodeVerdict"

	text := completion.StripCodeFences(raw)
	if !strings.HasPrefix(text, "{") {
		return nil, newError(op, KindDecode, ErrResponseDecode, nil, fmt.Sprintf("response starts with %q", preview(text)))
	}

	var verdict models.Verdict
	if err := json.Unmarshal([]byte(text), &verdict); err != nil {
		return nil, newError(op, KindDecode, ErrResponseDecode, err, "")
	}

	if v.schema != nil {
		if err := v.schema.Validate([]byte(text)); err != nil {
			return nil, newError(op, KindSchema, ErrSchemaViolation, err, "")
		}
	}

	// Statuses are checked even when the full schema check is off.
	if !verdict.Status.Valid() {
		return nil, newError(op, KindSchema, ErrSchemaViolation, nil, fmt.Sprintf("status %q", verdict.Status))
	}
	for i, item := range verdict.Items {
		if !item.Status.Valid() {
			return nil, newError(op, KindSchema, ErrSchemaViolation, nil, fmt.Sprintf("items[%d] status %q", i, item.Status))
		}
	}

	return &verdict, nil
}

func preview(s string) string {
	const previewLen = 40
	if r := []rune(s); len(r) > previewLen {
		return string(r[:previewLen]) + "..."
	}
	return s
}
