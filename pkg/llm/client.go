package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tmc/langchaingo/llms"
	"golang.org/x/time/rate"

	"github.com/xhad/solar/internal/models"
	"github.com/xhad/solar/internal/types"
)

const (
	DefaultChatModel      = "solar-1-mini-chat"
	DefaultEmbeddingModel = "solar-embedding-1-large-query"
	PassageEmbeddingModel = "solar-embedding-1-large-passage"
)

var errNoChoices = errors.New("no choices in completion response")

// ClientConfig represents the configuration for a Client.
type ClientConfig struct {
	ChatModel      string
	EmbeddingModel string
	Retry          RetryPolicy
	RateLimit      float64 // requests per second, 0 disables limiting
	Logger         *slog.Logger
}

// Client wraps a Backend with retries, rate limiting and logging.
type Client struct {
	config  ClientConfig
	backend Backend
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewWithConfig creates a Client. A zero Retry policy means DefaultRetryPolicy.
func NewWithConfig(backend Backend, config ClientConfig) *Client {
	if config.ChatModel == "" {
		config.ChatModel = DefaultChatModel
	}
	if config.EmbeddingModel == "" {
		config.EmbeddingModel = DefaultEmbeddingModel
	}
	if config.Retry.MaxAttempts == 0 {
		config.Retry = DefaultRetryPolicy()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	c := &Client{
		config:  config,
		backend: backend,
		logger:  config.Logger,
	}
	if config.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(config.RateLimit), 1)
	}
	return c
}

// Embeddings returns one result per text, in input order.
func (c *Client) Embeddings(ctx context.Context, texts []string, model string) ([]models.EmbeddingResult, error) {
	if model == "" {
		model = c.config.EmbeddingModel
	}

	var vectors [][]float32
	err := c.do(ctx, "embedding", func(ctx context.Context) error {
		c.logger.Info("Generating embeddings",
			slog.String("model", model),
			slog.Int("inputs", len(texts)))

		out, err := c.backend.CreateEmbedding(ctx, model, texts)
		if err != nil {
			return err
		}
		if len(out) != len(texts) {
			return fmt.Errorf("unexpected embedding count %d (expected %d)", len(out), len(texts))
		}
		vectors = out
		return nil
	})
	if err != nil {
		return nil, err
	}

	results := make([]models.EmbeddingResult, len(vectors))
	for i, v := range vectors {
		results[i] = models.EmbeddingResult{Object: "embedding", Embedding: v, Index: i}
	}
	return results, nil
}

// Generate returns the text of the first choice. Temperature is always 0.
func (c *Client) Generate(ctx context.Context, messages []models.Message, model string, options ...llms.CallOption) (string, error) {
	if model == "" {
		model = c.config.ChatModel
	}

	opts := make([]llms.CallOption, 0, len(options)+2)
	opts = append(opts, llms.WithModel(model))
	opts = append(opts, options...)
	opts = append(opts, llms.WithTemperature(0))

	content := toMessageContent(messages)

	var text string
	err := c.do(ctx, "completion", func(ctx context.Context) error {
		c.logger.Info("Generating completion",
			slog.String("model", model),
			slog.Int("messages", len(messages)))

		resp, err := c.backend.GenerateContent(ctx, content, opts...)
		if err != nil {
			return err
		}
		if resp == nil || len(resp.Choices) == 0 || resp.Choices[0] == nil {
			return errNoChoices
		}
		text = resp.Choices[0].Content
		return nil
	})
	if err != nil {
		return "", err
	}
	return text, nil
}

// do runs one logical call under the retry policy and wraps any failure.
func (c *Client) do(ctx context.Context, op string, call func(ctx context.Context) error) error {
	err := c.config.Retry.Do(ctx, func(ctx context.Context) error {
		var err error
		if c.limiter != nil {
			err = c.limiter.Wait(ctx)
		}
		if err == nil {
			err = call(ctx)
		}
		if err != nil {
			c.logger.Error("LLM request failed",
				slog.String("op", op),
				slog.String("error", err.Error()))
		}
		return err
	}, func(err error, attempt int, wait time.Duration) {
		c.logger.Warn("Attempt failed, retrying",
			slog.String("op", op),
			slog.Int("attempt", attempt),
			slog.Duration("retry_delay", wait))
	})
	if err != nil {
		return &CompletionError{Op: op, Err: err}
	}
	return nil
}

func toMessageContent(messages []models.Message) []llms.MessageContent {
	content := make([]llms.MessageContent, 0, len(messages))
	for _, m := range messages {
		content = append(content, llms.TextParts(roleToType(m.Role), m.Content))
	}
	return content
}

func roleToType(role string) llms.ChatMessageType {
	switch role {
	case models.RoleSystem:
		return llms.ChatMessageTypeSystem
	case models.RoleAssistant:
		return llms.ChatMessageTypeAI
	case models.RoleUser:
		return llms.ChatMessageTypeHuman
	default:
		return llms.ChatMessageTypeGeneric
	}
}

var _ types.Embedder = (*Client)(nil)
