package llm

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/ainova/assistant/internal/core"
)

// ErrMissingAPIKey is returned on the first use of the boundary when no
// API key is configured. The check happens at call time, not at process
// start, so a server without credentials still boots (and, say, serves
// health checks) but fails deterministically on its first model call.
var ErrMissingAPIKey = errors.New("llm: API key is not configured")

type Config struct {
	APIKey         string
	BaseURL        string // OpenAI-compatible endpoint, e.g. a ProxyAPI URL
	Model          string
	EmbeddingModel string
	Temperature    float32
}

// Client wraps an OpenAI-compatible API for chat completions and
// embeddings. It is constructed once and injected into the pipeline;
// there is no lazily-initialized global.
type Client struct {
	api *openai.Client
	cfg Config
}

func NewClient(cfg Config) *Client {
	apiConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiConfig.BaseURL = cfg.BaseURL
	}
	return &Client{
		api: openai.NewClientWithConfig(apiConfig),
		cfg: cfg,
	}
}

// ChatCompletion sends the composed segments to the chat model and
// returns the reply text.
func (c *Client) ChatCompletion(ctx context.Context, segments []core.Segment) (string, error) {
	if c.cfg.APIKey == "" {
		return "", ErrMissingAPIKey
	}
	if len(segments) == 0 {
		return "", fmt.Errorf("llm: no segments to send")
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(segments))
	for _, segment := range segments {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    segment.Role,
			Content: segment.Content,
		})
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		Temperature: c.cfg.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("llm: chat completion request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("llm: chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// Embed returns the embedding vector for text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if c.cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(c.cfg.EmbeddingModel),
		Input: []string{text},
	})
	if err != nil {
		return nil, fmt.Errorf("llm: embedding request failed: %w", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("llm: embedding response contained no data")
	}
	return resp.Data[0].Embedding, nil
}
