package prescription

import (
	"errors"
	"fmt"
)

// Kind tags a pipeline failure so the presentation layer can tell them apart.
type Kind string

const (
	KindInput          Kind = "input"
	KindTransport      Kind = "transport"
	KindDecode         Kind = "decode"
	KindSchema         Kind = "schema"
	KindClassification Kind = "classification"
)

// Common pipeline errors
var (
	// ErrMissingImage is returned when no prescription image was supplied.
	ErrMissingImage = errors.New("please upload an image")

	// ErrImageRejected is returned when the OCR backend refuses the image
	// before calling out, e.g. because it is too large.
	ErrImageRejected = errors.New("image cannot be processed")

	// ErrTransport is returned when the completion or OCR service call fails,
	// including deadline expiry.
	ErrTransport = errors.New("external service call failed")

	// ErrResponseDecode is returned when the validation completion is not a
	// JSON verdict.
	ErrResponseDecode = errors.New("model response is not valid JSON")

	// ErrSchemaViolation is returned when local schema validation rejects the
	// validation completion.
	ErrSchemaViolation = errors.New("model response violates the validation schema")

	// ErrUnrecognizedClassification is returned in strict mode when the label
	// is neither MANUSCRITA nor DIGITADA.
	ErrUnrecognizedClassification = errors.New("unrecognized classification")
)

// ProcessingError wraps a stage failure with its kind and operation.
type ProcessingError struct {
	// Op is the stage that failed (e.g., "Classify", "ExtractText", "Validate").
	Op string

	// Kind is the failure category reported on the result.
	Kind Kind

	// Err is the underlying error.
	Err error

	// Details provides additional context about the failure.
	Details string
}

// Error implements the error interface.
func (e *ProcessingError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s failed: %s: %v", e.Op, e.Details, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *ProcessingError) Unwrap() error {
	return e.Err
}

// Is reports whether the wrapped error matches target.
func (e *ProcessingError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// newError builds a ProcessingError whose chain contains both the kind
// sentinel and the cause.
func newError(op string, kind Kind, sentinel, cause error, details string) *ProcessingError {
	err := sentinel
	if cause != nil {
		err = fmt.Errorf("%w: %w", sentinel, cause)
	}
	return &ProcessingError{Op: op, Kind: kind, Err: err, Details: details}
}

// KindOf returns the kind carried by err. Errors that did not come from a
// stage are reported as transport failures.
func KindOf(err error) Kind {
	var pe *ProcessingError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindTransport
}
