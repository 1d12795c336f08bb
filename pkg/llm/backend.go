package llm

import (
	"context"
	"fmt"
	"sync"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// Backend is the transport the Client retries around.
type Backend interface {
	CreateEmbedding(ctx context.Context, model string, texts []string) ([][]float32, error)
	GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error)
}

// BackendConfig configures an OpenAI-compatible endpoint.
type BackendConfig struct {
	BaseURL        string
	APIKey         string
	ChatModel      string
	EmbeddingModel string
}

// OpenAIBackend talks to any OpenAI-compatible API through langchaingo.
// langchaingo binds the embedding model at construction, so one embedder is kept per model.
type OpenAIBackend struct {
	config BackendConfig
	chat   *openai.LLM

	mu        sync.Mutex
	embedders map[string]*openai.LLM
}

func NewOpenAIBackend(config BackendConfig) (*OpenAIBackend, error) {
	if config.ChatModel == "" {
		config.ChatModel = DefaultChatModel
	}
	if config.EmbeddingModel == "" {
		config.EmbeddingModel = DefaultEmbeddingModel
	}

	chat, err := openai.New(config.options(config.EmbeddingModel)...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM: %w", err)
	}

	return &OpenAIBackend{
		config:    config,
		chat:      chat,
		embedders: map[string]*openai.LLM{config.EmbeddingModel: chat},
	}, nil
}

func (c BackendConfig) options(embeddingModel string) []openai.Option {
	opts := []openai.Option{
		openai.WithModel(c.ChatModel),
		openai.WithEmbeddingModel(embeddingModel),
	}
	if c.APIKey != "" {
		opts = append(opts, openai.WithToken(c.APIKey))
	}
	if c.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(c.BaseURL))
	}
	return opts
}

func (b *OpenAIBackend) embedder(model string) (*openai.LLM, error) {
	if model == "" {
		model = b.config.EmbeddingModel
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if emb, ok := b.embedders[model]; ok {
		return emb, nil
	}
	emb, err := openai.New(b.config.options(model)...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder %s: %w", model, err)
	}
	b.embedders[model] = emb
	return emb, nil
}

func (b *OpenAIBackend) CreateEmbedding(ctx context.Context, model string, texts []string) ([][]float32, error) {
	emb, err := b.embedder(model)
	if err != nil {
		return nil, err
	}
	return emb.CreateEmbedding(ctx, texts)
}

func (b *OpenAIBackend) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	return b.chat.GenerateContent(ctx, messages, options...)
}

var _ Backend = (*OpenAIBackend)(nil)
