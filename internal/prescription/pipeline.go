// Package prescription validates a medical prescription image against a
// sales transaction.
//
// A run goes through three stages:
//   - Classify: the model decides whether the prescription body is
//     handwritten (MANUSCRITA) or typed (DIGITADA), guided by four reference
//     images
//   - ExtractText: handwritten prescriptions are transcribed by an OCR backend
//   - Validate: the model compares image, OCR text and transaction against the
//     discrepancy rule catalog and returns a structured verdict
//
// Every run yields a models.ProcessingResult. Failures at any stage produce
// classification "ERROR", an empty verdict and a message prefixed with
// ErrorPrefix; no partial results are returned.
package prescription

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jcsn13/ocr-prescription/internal/logger"
	"github.com/jcsn13/ocr-prescription/internal/ocr"
	"github.com/jcsn13/ocr-prescription/pkg/models"
	"github.com/rs/zerolog"
)

// ErrorPrefix starts every failure message on a ProcessingResult.
const ErrorPrefix = "Error in prescription processing: "

// DefaultCallTimeout bounds each external call when Options leaves it unset.
const DefaultCallTimeout = 120 * time.Second

// Options configures the pipeline.
type Options struct {
	// CallTimeout bounds each external call (classification, OCR, validation).
	CallTimeout time.Duration

	// StrictClassification requires the label to be exactly MANUSCRITA or
	// DIGITADA instead of matching "manuscrita" as a substring.
	StrictClassification bool
}

// Pipeline sequences classification, conditional OCR and validation. It holds
// no per-request state and is safe for concurrent use.
type Pipeline struct {
	classifier *Classifier
	extractor  ocr.TextExtractor
	validator  *Validator
	opts       Options
	log        zerolog.Logger
}

// NewPipeline wires the three stages together.
func NewPipeline(classifier *Classifier, extractor ocr.TextExtractor, validator *Validator, opts Options) *Pipeline {
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = DefaultCallTimeout
	}
	return &Pipeline{
		classifier: classifier,
		extractor:  extractor,
		validator:  validator,
		opts:       opts,
		log:        logger.WithComponent("pipeline"),
	}
}

// Process runs the full pipeline for one prescription. transaction must be
// the caller's JSON object; it is embedded in the prompt verbatim.
func (p *Pipeline) Process(ctx context.Context, img Image, transaction []byte) models.ProcessingResult {
	log := logger.WithRequestID(p.log, uuid.NewString())
	start := time.Now()

	log.Info().
		Str("mime_type", img.MIMEType).
		Int("image_size", len(img.Data)).
		Msg("Processing prescription")

	label, verdict, err := p.run(ctx, log, img, transaction)
	if err != nil {
		kind := KindOf(err)
		log.Error().
			Err(err).
			Str("kind", string(kind)).
			Dur("duration", time.Since(start)).
			Msg("Prescription processing failed")

		return models.ProcessingResult{
			Classification: models.ClassificationError,
			Error:          ErrorPrefix + err.Error(),
			ErrorKind:      string(kind),
		}
	}

	log.Info().
		Str("classification", label.Value).
		Str("status", string(verdict.Status)).
		Int("discrepancies", len(verdict.ReasonsPrescriptionDiscrepancy)).
		Dur("duration", time.Since(start)).
		Msg("Prescription processed")

	return models.ProcessingResult{
		Classification:   label.Value,
		ValidationResult: verdict,
	}
}

func (p *Pipeline) run(ctx context.Context, log zerolog.Logger, img Image, transaction []byte) (Label, *models.Verdict, error) {
	if img.Empty() {
		return Label{}, nil, newError("Process", KindInput, ErrMissingImage, nil, "")
	}

	var label Label
	err := p.call(ctx, func(ctx context.Context) (err error) {
		label, err = p.classifier.Classify(ctx, img)
		return err
	})
	if err != nil {
		return Label{}, nil, err
	}

	handwritten, err := p.handwritten(label)
	if err != nil {
		return Label{}, nil, err
	}

	var ocrText *string
	if handwritten {
		log.Debug().Str("label", label.Value).Msg("Handwritten prescription, running OCR")
		text, err := p.extractText(ctx, log, img)
		if err != nil {
			return Label{}, nil, err
		}
		ocrText = &text
	}

	var verdict *models.Verdict
	err = p.call(ctx, func(ctx context.Context) (err error) {
		verdict, err = p.validator.Validate(ctx, img, ocrText, transaction)
		return err
	})
	if err != nil {
		return Label{}, nil, err
	}

	return label, verdict, nil
}

func (p *Pipeline) handwritten(label Label) (bool, error) {
	if !p.opts.StrictClassification {
		return label.Handwritten(), nil
	}
	category, ok := label.ParseCategory()
	if !ok {
		return false, newError("Classify", KindClassification, ErrUnrecognizedClassification, nil, "label "+preview(label.Value))
	}
	return category == Handwritten, nil
}

func (p *Pipeline) extractText(ctx context.Context, log zerolog.Logger, img Image) (string, error) {
	const op = "ExtractText"

	if p.extractor == nil {
		return "", newError(op, KindTransport, ErrTransport, nil, "no OCR backend configured")
	}

	var text string
	err := p.call(ctx, func(ctx context.Context) (err error) {
		text, err = p.extractor.ExtractText(ctx, img.Data, img.MIMEType)
		return err
	})
	switch {
	case errors.Is(err, ocr.ErrImageTooLarge), errors.Is(err, ocr.ErrEmptyImage):
		return "", newError(op, KindInput, ErrImageRejected, err, "")
	case err != nil:
		return "", newError(op, KindTransport, ErrTransport, err, "")
	}
	if strings.TrimSpace(text) == "" {
		log.Debug().Msg("OCR returned no text, validating from the image alone")
	}
	return text, nil
}

// call runs fn under the per-call timeout.
func (p *Pipeline) call(ctx context.Context, fn func(ctx context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, p.opts.CallTimeout)
	defer cancel()
	return fn(callCtx)
}
