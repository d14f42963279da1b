package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jcsn13/ocr-prescription/internal/completion"
	"github.com/jcsn13/ocr-prescription/internal/config"
	"github.com/jcsn13/ocr-prescription/internal/ocr"
	"github.com/jcsn13/ocr-prescription/internal/prescription"
	"github.com/rs/zerolog"
)

// retryDelay is the initial backoff between completion attempts.
const retryDelay = 2 * time.Second

// services holds the clients built from configuration for one command run.
type services struct {
	cfg     *config.Config
	closers []io.Closer
}

func loadServices(log zerolog.Logger) (*services, error) {
	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("Invalid configuration")
		return nil, fmt.Errorf("invalid configuration: %w\n\nCheck your environment or .env file", err)
	}
	return &services{cfg: cfg}, nil
}

// Close releases every client created through s.
func (s *services) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *services) completer(ctx context.Context, log zerolog.Logger) (completion.Completer, error) {
	var base completion.Completer

	switch s.cfg.CompletionProvider {
	case config.ProviderOpenAI:
		c, err := completion.NewOpenAICompleter(s.cfg.OpenAIAPIKey, s.cfg.OpenAIModel)
		if err != nil {
			return nil, err
		}
		base = c
	default:
		c, err := completion.NewGeminiCompleter(ctx, s.cfg.GeminiAPIKey, s.cfg.GeminiModel)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, c)
		base = c
	}

	log.Debug().
		Str("provider", s.cfg.CompletionProvider).
		Str("model", s.cfg.CompletionModel()).
		Int("max_retries", s.cfg.CompletionMaxRetries).
		Msg("Completion backend created")

	return completion.WithRetry(base, uint(s.cfg.CompletionMaxRetries), retryDelay), nil
}

func (s *services) extractor(ctx context.Context, log zerolog.Logger) (ocr.TextExtractor, error) {
	switch s.cfg.OCRBackend {
	case config.OCRBackendVision:
		ex, err := ocr.NewVisionExtractor(ctx)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, ex)
		log.Debug().Msg("Vision OCR backend created")
		return ex, nil
	default:
		ex, err := ocr.NewDocumentAIExtractor(ctx, s.cfg.DocumentAILocation, s.cfg.ProcessorName())
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, ex)
		log.Debug().Str("processor", s.cfg.ProcessorName()).Msg("Document AI OCR backend created")
		return ex, nil
	}
}

func (s *services) classifier(ctx context.Context, log zerolog.Logger) (*prescription.Classifier, error) {
	examples, err := prescription.LoadFewShot(s.cfg.FewShotDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load few-shot examples from %s: %w", s.cfg.FewShotDir, err)
	}
	completer, err := s.completer(ctx, log)
	if err != nil {
		return nil, err
	}
	return prescription.NewClassifier(completer, examples), nil
}

func (s *services) pipeline(ctx context.Context, log zerolog.Logger) (*prescription.Pipeline, error) {
	examples, err := prescription.LoadFewShot(s.cfg.FewShotDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load few-shot examples from %s: %w", s.cfg.FewShotDir, err)
	}

	completer, err := s.completer(ctx, log)
	if err != nil {
		return nil, err
	}

	extractor, err := s.extractor(ctx, log)
	if err != nil {
		return nil, err
	}

	validator, err := prescription.NewValidator(completer, prescription.ValidatorOptions{
		CheckSchema:            s.cfg.ValidateResponseSchema,
		EnforceAggregateStatus: s.cfg.EnforceAggregateStatus,
	})
	if err != nil {
		return nil, err
	}

	return prescription.NewPipeline(
		prescription.NewClassifier(completer, examples),
		extractor,
		validator,
		prescription.Options{
			CallTimeout:          s.cfg.CallTimeout,
			StrictClassification: s.cfg.StrictClassification,
		},
	), nil
}

// createContextWithTimeout creates a context with timeout and signal handling
func createContextWithTimeout(timeout time.Duration, log zerolog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			log.Info().
				Str("signal", sig.String()).
				Msg("Received interrupt signal, canceling")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

// readImageFile checks that path is a readable JPEG or PNG and loads it.
func readImageFile(path string, log zerolog.Logger) (prescription.Image, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Error().Str("file", path).Msg("Image file not found")
			return prescription.Image{}, fmt.Errorf("image file not found: %s", path)
		}
		if os.IsPermission(err) {
			log.Error().Str("file", path).Msg("Permission denied accessing image file")
			return prescription.Image{}, fmt.Errorf("permission denied accessing image file: %s", path)
		}
		return prescription.Image{}, fmt.Errorf("error accessing image file: %w", err)
	}

	if !info.Mode().IsRegular() {
		return prescription.Image{}, fmt.Errorf("path is not a regular file: %s", path)
	}
	if info.Size() == 0 {
		return prescription.Image{}, fmt.Errorf("image file is empty: %s", path)
	}
	if info.Size() > ocr.MaxFileSizeBytes {
		log.Error().
			Str("file", path).
			Int64("size", info.Size()).
			Int64("max_size", ocr.MaxFileSizeBytes).
			Msg("Image exceeds maximum size limit")
		return prescription.Image{}, fmt.Errorf("image too large (%d bytes). Maximum size is %d bytes (20MB)",
			info.Size(), ocr.MaxFileSizeBytes)
	}

	img, err := prescription.LoadImage(path)
	if err != nil {
		return prescription.Image{}, err
	}
	if !img.Supported() {
		log.Error().Str("file", path).Str("mime_type", img.MIMEType).Msg("Unsupported image type")
		return prescription.Image{}, fmt.Errorf("unsupported image type %s: use a JPEG or PNG file", img.MIMEType)
	}
	return img, nil
}

// describeError maps failures to user-facing guidance.
func describeError(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("processing timed out. Try increasing --timeout: %w", err)
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("processing was canceled")
	case errors.Is(err, ocr.ErrMissingCredentials):
		return fmt.Errorf("Google Cloud credentials not configured. Please set one of:\n\n" +
			"1. Export GOOGLE_APPLICATION_CREDENTIALS with path to service account JSON:\n" +
			"   export GOOGLE_APPLICATION_CREDENTIALS=/path/to/service-account-key.json\n\n" +
			"2. Export GOOGLE_CREDENTIALS with inline JSON\n\n" +
			"3. Use Application Default Credentials (if gcloud is configured):\n" +
			"   gcloud auth application-default login")
	case errors.Is(err, ocr.ErrPermissionDenied):
		return fmt.Errorf("permission denied. Ensure the service account can use Document AI / Cloud Vision: %w", err)
	case errors.Is(err, ocr.ErrQuotaExceeded):
		return fmt.Errorf("OCR quota exceeded. Check your project quotas in the Google Cloud Console")
	case errors.Is(err, ocr.ErrProcessorNotFound):
		return fmt.Errorf("Document AI processor not found. Check DOCUMENT_AI_PROCESSOR_ID and DOCUMENT_AI_LOCATION: %w", err)
	case errors.Is(err, ocr.ErrImageTooLarge), errors.Is(err, ocr.ErrEmptyImage):
		return fmt.Errorf("the image cannot be sent to OCR: %w", err)
	case errors.Is(err, completion.ErrMissingAPIKey):
		return fmt.Errorf("completion API key not configured. Set GEMINI_API_KEY or OPENAI_API_KEY")
	case errors.Is(err, completion.ErrBlocked):
		return fmt.Errorf("the model refused to answer: %w", err)
	default:
		return err
	}
}
