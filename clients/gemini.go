// Package clients adapts hosted language models to the detector's
// classification and translation collaborators.
package clients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"voicelegal-backend/logging"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

var (
	// ErrEmptyResponse is returned when the model produced no usable text
	ErrEmptyResponse = errors.New("model returned empty content")
	// ErrBlocked is returned when the prompt was blocked by the provider
	ErrBlocked = errors.New("model blocked prompt")
)

// TextGenerator produces a completion for a single prompt
type TextGenerator interface {
	Generate(ctx context.Context, prompt string, temperature float32, jsonOutput bool) (string, error)
}

// NewGeminiClient creates a Gemini API client
func NewGeminiClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	if apiKey == "" {
		return nil, errors.New("GEMINI_API_KEY not set")
	}
	return genai.NewClient(ctx, option.WithAPIKey(apiKey))
}

// GeminiGenerator implements TextGenerator on a Gemini model
type GeminiGenerator struct {
	client *genai.Client
	model  string
	logger *slog.Logger
}

// NewGeminiGenerator creates a generator bound to the named model
func NewGeminiGenerator(client *genai.Client, model string) *GeminiGenerator {
	return &GeminiGenerator{
		client: client,
		model:  model,
		logger: logging.New("gemini"),
	}
}

// Generate sends prompt to the model and concatenates the text parts of every candidate
func (g *GeminiGenerator) Generate(ctx context.Context, prompt string, temperature float32, jsonOutput bool) (string, error) {
	model := g.client.GenerativeModel(g.model)
	model.SetTemperature(temperature)
	if jsonOutput {
		model.ResponseMIMEType = "application/json"
	}

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}

	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockReasonUnspecified {
		return "", fmt.Errorf("%w: %s", ErrBlocked, resp.PromptFeedback.BlockReason)
	}

	var b strings.Builder
	for i, candidate := range resp.Candidates {
		if candidate.FinishReason != genai.FinishReasonStop && candidate.FinishReason != genai.FinishReasonUnspecified {
			g.logger.Warn("candidate finished early",
				slog.Int("candidate", i),
				slog.String("reason", candidate.FinishReason.String()))
		}
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				b.WriteString(string(text))
			}
		}
	}

	result := strings.TrimSpace(b.String())
	if result == "" {
		return "", ErrEmptyResponse
	}
	return result, nil
}

// stripCodeFence removes a surrounding ``` or ```json fence from model output.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func decodeJSON(raw string, v any) error {
	return json.Unmarshal([]byte(stripCodeFence(raw)), v)
}
