// Package ocr extracts printed and handwritten text from prescription images.
//
// Two backends are available:
//   - Document AI (default): ProcessDocument on an OCR processor
//   - Cloud Vision: BatchAnnotateImages with DOCUMENT_TEXT_DETECTION
//
// Required Environment Variables:
//   - GOOGLE_APPLICATION_CREDENTIALS: Path to service account JSON file, OR
//   - GOOGLE_CREDENTIALS: Inline JSON credentials string
//   - GOOGLE_CLOUD_PROJECT: Google Cloud project ID (Document AI only)
//   - DOCUMENT_AI_PROCESSOR_ID: OCR processor ID (Document AI only)
//
// Limitations:
//   - Maximum image size: 20MB for synchronous processing
//   - Supported formats: JPEG, PNG
package ocr

import (
	"context"
	"fmt"
	"os"

	"google.golang.org/api/option"
)

const (
	// MaxFileSizeBytes is the maximum image size for synchronous processing (20MB)
	MaxFileSizeBytes = 20 * 1024 * 1024
)

// TextExtractor turns an image into its full text.
type TextExtractor interface {
	// ExtractText returns the text detected in content, in reading order.
	ExtractText(ctx context.Context, content []byte, mimeType string) (string, error)
}

// ExtractorFunc adapts a function to the TextExtractor interface.
type ExtractorFunc func(ctx context.Context, content []byte, mimeType string) (string, error)

// ExtractText calls f.
func (f ExtractorFunc) ExtractText(ctx context.Context, content []byte, mimeType string) (string, error) {
	return f(ctx, content, mimeType)
}

// credentialOptions returns client options from GOOGLE_CREDENTIALS or
// GOOGLE_APPLICATION_CREDENTIALS. An empty slice means default credentials.
func credentialOptions() []option.ClientOption {
	if credJSON := os.Getenv("GOOGLE_CREDENTIALS"); credJSON != "" {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(credJSON))}
	}
	if credFile := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); credFile != "" {
		return []option.ClientOption{option.WithCredentialsFile(credFile)}
	}
	return nil
}

// checkContent validates an image before it is sent to an OCR backend.
func checkContent(op string, content []byte) error {
	if len(content) == 0 {
		return WrapOCRError(op, ErrEmptyImage, "no image data")
	}
	if len(content) > MaxFileSizeBytes {
		return WrapOCRError(op, ErrImageTooLarge, fmt.Sprintf("file size: %d bytes", len(content)))
	}
	return nil
}
