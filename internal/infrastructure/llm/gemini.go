package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const DefaultGeminiModel = "gemini-2.5-flash"

// GeminiClient generates text through the Gemini API.
type GeminiClient struct {
	client *genai.Client
	model  string
}

var _ Generator = (*GeminiClient)(nil)

// NewGeminiClient creates a client for the given API key and model.
func NewGeminiClient(ctx context.Context, apiKey, model string) (*GeminiClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("gemini api key is required")
	}
	if model == "" {
		model = DefaultGeminiModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &GeminiClient{client: client, model: model}, nil
}

func (c *GeminiClient) Generate(ctx context.Context, prompt string) (string, error) {
	result, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), nil)
	if err != nil {
		if !retryableGeminiError(err.Error()) {
			return "", permanent(fmt.Errorf("generate content: %w", err))
		}
		return "", fmt.Errorf("generate content: %w", err)
	}

	text, err := result.Text()
	if err != nil {
		return "", fmt.Errorf("read gemini response: %w", err)
	}
	return text, nil
}

// retryableGeminiError classifies SDK errors by message. Daily quota
// exhaustion is final; rate limits and server errors are worth retrying.
func retryableGeminiError(msg string) bool {
	lower := strings.ToLower(msg)
	if strings.Contains(lower, "free_tier_requests") || strings.Contains(lower, "per day") {
		return false
	}
	for _, marker := range []string{"429", "rate limit", "resource exhausted", "resource_exhausted", "500", "502", "503", "504", "unavailable", "deadline", "timeout", "connection reset"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
