package ocr

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Common OCR processing errors
var (
	// ErrImageTooLarge is returned when the image exceeds the maximum file size limit.
	ErrImageTooLarge = errors.New("image size exceeds the maximum limit (20MB)")

	// ErrEmptyImage is returned when no image bytes were supplied.
	ErrEmptyImage = errors.New("image is empty")

	// ErrOCRFailed is returned when the OCR backend fails to process the image.
	ErrOCRFailed = errors.New("OCR processing failed")

	// ErrMissingCredentials is returned when neither GOOGLE_APPLICATION_CREDENTIALS
	// nor GOOGLE_CREDENTIALS environment variables are configured.
	ErrMissingCredentials = errors.New("missing Google Cloud credentials: set GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_CREDENTIALS environment variable")

	// ErrPermissionDenied is returned when the credentials lack access to the backend.
	ErrPermissionDenied = errors.New("permission denied by OCR backend")

	// ErrQuotaExceeded is returned when the backend quota is exhausted.
	ErrQuotaExceeded = errors.New("OCR quota exceeded")

	// ErrProcessorNotFound is returned when the Document AI processor does not exist.
	ErrProcessorNotFound = errors.New("Document AI processor not found")
)

// OCRError wraps errors with additional context about the OCR processing failure.
type OCRError struct {
	// Op is the operation that failed (e.g., "ExtractText", "NewDocumentAIExtractor").
	Op string

	// Err is the underlying error.
	Err error

	// Details provides additional context about the failure.
	Details string
}

// Error implements the error interface.
func (e *OCRError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("ocr: %s failed: %s: %v", e.Op, e.Details, e.Err)
	}
	return fmt.Sprintf("ocr: %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *OCRError) Unwrap() error {
	return e.Err
}

// Is reports whether the wrapped error matches target.
func (e *OCRError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// WrapOCRError wraps an error as an OCRError if it isn't already one.
func WrapOCRError(op string, err error, details string) error {
	if err == nil {
		return nil
	}

	var ocrErr *OCRError
	if errors.As(err, &ocrErr) {
		return err
	}

	return &OCRError{Op: op, Err: err, Details: details}
}

// mapAPIError converts a Google API error into one of the package sentinels.
func mapAPIError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return WrapOCRError(op, err, "request aborted")
	}

	switch status.Code(err) {
	case codes.PermissionDenied, codes.Unauthenticated:
		return WrapOCRError(op, ErrPermissionDenied, err.Error())
	case codes.ResourceExhausted:
		return WrapOCRError(op, ErrQuotaExceeded, err.Error())
	case codes.NotFound:
		return WrapOCRError(op, ErrProcessorNotFound, err.Error())
	case codes.DeadlineExceeded:
		return WrapOCRError(op, context.DeadlineExceeded, "processing timeout")
	case codes.Canceled:
		return WrapOCRError(op, context.Canceled, "processing canceled")
	default:
		return WrapOCRError(op, ErrOCRFailed, err.Error())
	}
}
