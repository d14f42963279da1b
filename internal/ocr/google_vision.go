package ocr

import (
	"context"
	"fmt"
	"strings"
	"time"

	vision "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"github.com/jcsn13/ocr-prescription/internal/logger"
	"github.com/rs/zerolog"
)

// VisionExtractor implements TextExtractor using Google Cloud Vision API.
type VisionExtractor struct {
	client *vision.ImageAnnotatorClient
	log    zerolog.Logger
}

// NewVisionExtractor creates a Vision client with credentials from environment.
// It expects either GOOGLE_APPLICATION_CREDENTIALS path or GOOGLE_CREDENTIALS JSON in env.
func NewVisionExtractor(ctx context.Context) (*VisionExtractor, error) {
	const op = "NewVisionExtractor"

	creds := credentialOptions()
	client, err := vision.NewImageAnnotatorClient(ctx, creds...)
	if err != nil {
		if len(creds) == 0 {
			return nil, WrapOCRError(op, ErrMissingCredentials, "no credentials found in environment")
		}
		return nil, WrapOCRError(op, err, "failed to create Vision client")
	}

	return NewVisionExtractorWithClient(client), nil
}

// NewVisionExtractorWithClient creates an extractor with an explicit client.
func NewVisionExtractorWithClient(client *vision.ImageAnnotatorClient) *VisionExtractor {
	return &VisionExtractor{
		client: client,
		log:    logger.WithComponent("vision"),
	}
}

// ExtractText runs dense document text detection on the image.
func (v *VisionExtractor) ExtractText(ctx context.Context, content []byte, mimeType string) (string, error) {
	const op = "ExtractText"
	start := time.Now()

	if err := checkContent(op, content); err != nil {
		return "", err
	}

	req := &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{
			{
				Image: &visionpb.Image{Content: content},
				Features: []*visionpb.Feature{
					{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION},
				},
			},
		},
	}

	resp, err := v.client.BatchAnnotateImages(ctx, req)
	if err != nil {
		v.log.Error().Err(err).Str("mime_type", mimeType).Msg("Vision request failed")
		return "", mapAPIError(op, err)
	}

	text, err := visionText(resp)
	if err != nil {
		return "", WrapOCRError(op, err, "failed to read Vision response")
	}

	if strings.TrimSpace(text) == "" {
		v.log.Debug().Msg("Vision found no readable text")
	}

	v.log.Debug().
		Int("length", len(text)).
		Dur("duration", time.Since(start)).
		Msg("Vision extraction finished")

	return text, nil
}

// Close closes the underlying Vision client.
func (v *VisionExtractor) Close() error {
	if v.client != nil {
		return v.client.Close()
	}
	return nil
}

func visionText(resp *visionpb.BatchAnnotateImagesResponse) (string, error) {
	if resp == nil || len(resp.GetResponses()) == 0 {
		return "", fmt.Errorf("%w: no response from Vision API", ErrOCRFailed)
	}

	img := resp.GetResponses()[0]
	if img.GetError() != nil && img.GetError().GetMessage() != "" {
		return "", fmt.Errorf("%w: %s", ErrOCRFailed, img.GetError().GetMessage())
	}

	return img.GetFullTextAnnotation().GetText(), nil
}
