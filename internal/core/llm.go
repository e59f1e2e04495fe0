package core

import (
	"context"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

const defaultModelName = "gemini-1.5-flash-latest"

// CompletionFn is the single surface the recommendation pipeline needs from
// a language model: system + user text in, assistant text out. It fails
// with *ProviderError on transport problems or an empty response.
type CompletionFn func(ctx context.Context, system, user string, temperature float32, maxTokens int32) (string, error)

// LLMClient implements CompletionFn on top of the Gemini API.
type LLMClient struct {
	client  *genai.Client
	model   string
	timeout time.Duration
	logger  *zap.Logger
}

func NewLLMClient(ctx context.Context, apiKey string, timeout time.Duration, logger *zap.Logger) (*LLMClient, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, &ProviderError{Op: "create client", Err: err}
	}
	return &LLMClient{
		client:  client,
		model:   defaultModelName,
		timeout: timeout,
		logger:  logger,
	}, nil
}

func (c *LLMClient) Close() {
	if err := c.client.Close(); err != nil {
		c.logger.Warn("closing genai client", zap.Error(err))
	}
}

// Complete runs one completion call with a per-call deadline. Aborting ctx
// abandons the call; nothing is persisted from inside this path.
func (c *LLMClient) Complete(ctx context.Context, system, user string, temperature float32, maxTokens int32) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	model := c.client.GenerativeModel(c.model)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(system)},
	}
	model.GenerationConfig = genai.GenerationConfig{
		Temperature:     &temperature,
		MaxOutputTokens: &maxTokens,
	}

	resp, err := model.GenerateContent(ctx, genai.Text(user))
	if err != nil {
		return "", &ProviderError{Op: "completion request", Err: err}
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", &ProviderError{Op: "empty completion response"}
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			text.WriteString(string(txt))
		}
	}
	out := strings.TrimSpace(text.String())
	if out == "" {
		return "", &ProviderError{Op: "empty completion text"}
	}
	return out, nil
}
