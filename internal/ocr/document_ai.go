package ocr

import (
	"context"
	"fmt"
	"strings"
	"time"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"github.com/jcsn13/ocr-prescription/internal/logger"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

// DocumentAIExtractor implements TextExtractor using a Document AI OCR processor.
type DocumentAIExtractor struct {
	client    *documentai.DocumentProcessorClient
	processor string
	log       zerolog.Logger
}

// NewDocumentAIExtractor creates a Document AI client for the given location.
// processorName has the form projects/{p}/locations/{loc}/processors/{id}.
func NewDocumentAIExtractor(ctx context.Context, location, processorName string) (*DocumentAIExtractor, error) {
	const op = "NewDocumentAIExtractor"

	if processorName == "" {
		return nil, WrapOCRError(op, ErrProcessorNotFound, "processor name is empty")
	}

	var clientOptions []option.ClientOption

	// Non-US processors are served from regional endpoints
	if location != "" && location != "us" {
		endpoint := fmt.Sprintf("%s-documentai.googleapis.com:443", location)
		clientOptions = append(clientOptions, option.WithEndpoint(endpoint))
	}

	creds := credentialOptions()
	clientOptions = append(clientOptions, creds...)

	client, err := documentai.NewDocumentProcessorClient(ctx, clientOptions...)
	if err != nil {
		if len(creds) == 0 {
			return nil, WrapOCRError(op, ErrMissingCredentials, "no credentials found in environment")
		}
		return nil, WrapOCRError(op, err, fmt.Sprintf("failed to create Document AI client for location: %s", location))
	}

	return NewDocumentAIExtractorWithClient(client, processorName), nil
}

// NewDocumentAIExtractorWithClient creates an extractor with an explicit client.
func NewDocumentAIExtractorWithClient(client *documentai.DocumentProcessorClient, processorName string) *DocumentAIExtractor {
	return &DocumentAIExtractor{
		client:    client,
		processor: processorName,
		log:       logger.WithComponent("document-ai"),
	}
}

// ExtractText sends the image as a raw document and returns Document.Text.
func (d *DocumentAIExtractor) ExtractText(ctx context.Context, content []byte, mimeType string) (string, error) {
	const op = "ExtractText"
	start := time.Now()

	if err := checkContent(op, content); err != nil {
		return "", err
	}

	req := &documentaipb.ProcessRequest{
		Name: d.processor,
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{
				Content:  content,
				MimeType: mimeType,
			},
		},
	}

	resp, err := d.client.ProcessDocument(ctx, req)
	if err != nil {
		d.log.Error().Err(err).Str("processor", d.processor).Msg("Document AI request failed")
		return "", mapAPIError(op, err)
	}

	text, err := documentText(resp.GetDocument())
	if err != nil {
		return "", WrapOCRError(op, err, "failed to read Document AI response")
	}

	if strings.TrimSpace(text) == "" {
		d.log.Debug().Msg("Document AI found no readable text")
	}

	d.log.Debug().
		Int("length", len(text)).
		Int("pages", len(resp.GetDocument().GetPages())).
		Dur("duration", time.Since(start)).
		Msg("Document AI extraction finished")

	return text, nil
}

// Close closes the underlying Document AI client.
func (d *DocumentAIExtractor) Close() error {
	if d.client != nil {
		return d.client.Close()
	}
	return nil
}

func documentText(doc *documentaipb.Document) (string, error) {
	if doc == nil {
		return "", ErrOCRFailed
	}
	if doc.GetError() != nil && doc.GetError().GetMessage() != "" {
		return "", fmt.Errorf("%w: %s", ErrOCRFailed, doc.GetError().GetMessage())
	}
	return doc.GetText(), nil
}
