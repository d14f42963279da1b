package completion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/jcsn13/ocr-prescription/internal/logger"
	"github.com/jcsn13/ocr-prescription/internal/schema"
	"github.com/rs/zerolog"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GeminiCompleter implements Completer on top of the Gemini API.
type GeminiCompleter struct {
	client *genai.Client
	model  string
	log    zerolog.Logger
}

// NewGeminiCompleter creates a Gemini client for the given model.
func NewGeminiCompleter(ctx context.Context, apiKey, model string) (*GeminiCompleter, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: %w", ErrMissingAPIKey)
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("gemini: failed to create client: %w", err)
	}

	return &GeminiCompleter{
		client: client,
		model:  strings.TrimSpace(model),
		log:    logger.WithComponent("gemini"),
	}, nil
}

// Complete streams a completion and returns the concatenated text.
func (g *GeminiCompleter) Complete(ctx context.Context, req Request) (string, error) {
	start := time.Now()

	m := g.client.GenerativeModel(g.model)
	applyGenerationConfig(&m.GenerationConfig, req.Config)
	m.SafetySettings = geminiSafetySettings(req.Safety)

	iter := m.GenerateContentStream(ctx, geminiParts(req.Parts)...)

	var out strings.Builder
	chunks := 0
	for {
		resp, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			var blocked *genai.BlockedError
			if errors.As(err, &blocked) {
				return "", fmt.Errorf("gemini: %w: %v", ErrBlocked, blocked)
			}
			return "", fmt.Errorf("gemini: stream failed after %d chunks: %w", chunks, err)
		}
		chunks++
		writeCandidateText(&out, resp)
	}

	text := out.String()
	g.log.Debug().
		Str("model", g.model).
		Int("chunks", chunks).
		Int("length", len(text)).
		Dur("duration", time.Since(start)).
		Msg("Gemini completion finished")

	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("gemini: %w", ErrEmptyCompletion)
	}
	return text, nil
}

// Close releases the underlying client.
func (g *GeminiCompleter) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

func applyGenerationConfig(dst *genai.GenerationConfig, cfg schema.GenerationConfig) {
	if cfg.MaxOutputTokens > 0 {
		dst.SetMaxOutputTokens(cfg.MaxOutputTokens)
	}
	dst.SetTemperature(cfg.Temperature)
	if cfg.TopP > 0 {
		dst.SetTopP(cfg.TopP)
	}
	dst.ResponseMIMEType = cfg.ResponseMIMEType
	dst.ResponseSchema = geminiSchema(cfg.ResponseSchema)
}

func geminiParts(parts []Part) []genai.Part {
	out := make([]genai.Part, 0, len(parts))
	for _, p := range parts {
		if p.IsBlob() {
			out = append(out, genai.Blob{MIMEType: p.MIMEType, Data: p.Data})
			continue
		}
		out = append(out, genai.Text(p.Text))
	}
	return out
}

func geminiSchema(s *schema.Schema) *genai.Schema {
	if s == nil {
		return nil
	}

	out := &genai.Schema{
		Type:     geminiType(s.Type),
		Enum:     s.Enum,
		Required: s.Required,
		Items:    geminiSchema(s.Items),
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, prop := range s.Properties {
			out.Properties[name] = geminiSchema(prop)
		}
	}
	return out
}

func geminiType(t schema.Type) genai.Type {
	switch t {
	case schema.TypeObject:
		return genai.TypeObject
	case schema.TypeArray:
		return genai.TypeArray
	case schema.TypeString:
		return genai.TypeString
	default:
		return genai.TypeUnspecified
	}
}

func geminiSafetySettings(settings []schema.SafetySetting) []*genai.SafetySetting {
	out := make([]*genai.SafetySetting, 0, len(settings))
	for _, s := range settings {
		out = append(out, &genai.SafetySetting{
			Category:  geminiHarmCategory(s.Category),
			Threshold: geminiThreshold(s.Threshold),
		})
	}
	return out
}

func geminiHarmCategory(c schema.HarmCategory) genai.HarmCategory {
	switch c {
	case schema.HarmCategoryHateSpeech:
		return genai.HarmCategoryHateSpeech
	case schema.HarmCategoryDangerousContent:
		return genai.HarmCategoryDangerousContent
	case schema.HarmCategorySexuallyExplicit:
		return genai.HarmCategorySexuallyExplicit
	case schema.HarmCategoryHarassment:
		return genai.HarmCategoryHarassment
	default:
		return genai.HarmCategoryUnspecified
	}
}

func geminiThreshold(t schema.HarmThreshold) genai.HarmBlockThreshold {
	switch t {
	case schema.HarmThresholdBlockHigh:
		return genai.HarmBlockOnlyHigh
	case schema.HarmThresholdBlockMedium:
		return genai.HarmBlockMediumAndAbove
	case schema.HarmThresholdBlockLowPlus:
		return genai.HarmBlockLowAndAbove
	default:
		return genai.HarmBlockNone
	}
}

func writeCandidateText(b *strings.Builder, resp *genai.GenerateContentResponse) {
	if resp == nil || len(resp.Candidates) == 0 {
		return
	}
	c := resp.Candidates[0]
	if c.Content == nil {
		return
	}
	for _, p := range c.Content.Parts {
		if t, ok := p.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
}
