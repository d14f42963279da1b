package completion

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jcsn13/ocr-prescription/internal/logger"
	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
)

// OpenAICompleter implements Completer on top of OpenAI chat completions.
type OpenAICompleter struct {
	client *openai.Client
	model  string
	log    zerolog.Logger
}

// NewOpenAICompleter creates an OpenAI client for the given model.
func NewOpenAICompleter(apiKey, model string) (*OpenAICompleter, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, fmt.Errorf("openai: %w", ErrMissingAPIKey)
	}
	return NewOpenAICompleterWithClient(openai.NewClient(apiKey), model), nil
}

// NewOpenAICompleterWithClient wraps an existing client, e.g. one pointed at
// a compatible gateway.
func NewOpenAICompleterWithClient(client *openai.Client, model string) *OpenAICompleter {
	return &OpenAICompleter{
		client: client,
		model:  strings.TrimSpace(model),
		log:    logger.WithComponent("openai"),
	}
}

// Complete streams a chat completion and returns the concatenated text.
// Safety settings have no OpenAI equivalent and are ignored.
func (o *OpenAICompleter) Complete(ctx context.Context, req Request) (string, error) {
	start := time.Now()

	stream, err := o.client.CreateChatCompletionStream(ctx, o.chatRequest(req))
	if err != nil {
		return "", fmt.Errorf("openai: failed to start stream: %w", err)
	}
	defer stream.Close()

	var out strings.Builder
	chunks := 0
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("openai: stream failed after %d chunks: %w", chunks, err)
		}
		chunks++
		if len(resp.Choices) == 0 {
			continue
		}
		choice := resp.Choices[0]
		if choice.FinishReason == openai.FinishReasonContentFilter {
			return "", fmt.Errorf("openai: %w: content filter", ErrBlocked)
		}
		out.WriteString(choice.Delta.Content)
	}

	text := out.String()
	o.log.Debug().
		Str("model", o.model).
		Int("chunks", chunks).
		Int("length", len(text)).
		Dur("duration", time.Since(start)).
		Msg("OpenAI completion finished")

	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("openai: %w", ErrEmptyCompletion)
	}
	return text, nil
}

func (o *OpenAICompleter) chatRequest(req Request) openai.ChatCompletionRequest {
	cr := openai.ChatCompletionRequest{
		Model:       o.model,
		Temperature: req.Config.Temperature,
		TopP:        req.Config.TopP,
		MaxTokens:   int(req.Config.MaxOutputTokens),
		Stream:      true,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:         openai.ChatMessageRoleUser,
				MultiContent: openAIParts(req.Parts),
			},
		},
	}

	if req.Config.ResponseSchema != nil {
		cr.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   "response",
				Schema: req.Config.ResponseSchema,
				Strict: false,
			},
		}
	} else if req.Config.ResponseMIMEType == "application/json" {
		cr.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}
	return cr
}

func openAIParts(parts []Part) []openai.ChatMessagePart {
	out := make([]openai.ChatMessagePart, 0, len(parts))
	for _, p := range parts {
		if p.IsBlob() {
			out = append(out, openai.ChatMessagePart{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL:    dataURL(p.MIMEType, p.Data),
					Detail: openai.ImageURLDetailHigh,
				},
			})
			continue
		}
		out = append(out, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeText,
			Text: p.Text,
		})
	}
	return out
}

func dataURL(mimeType string, data []byte) string {
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
