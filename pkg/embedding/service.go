// Package embedding stores text embeddings in named vector collections and
// retrieves them as context for retrieval-augmented generation.
package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/xhad/solar/internal/models"
	"github.com/xhad/solar/internal/types"
	"github.com/xhad/solar/pkg/llm"
)

const (
	DefaultCollection = "embeddings"
	DefaultIDPrefix   = "data"

	// TopK is the number of nearest passages requested per query.
	TopK = 10
	// BatchSize caps the texts sent in one embedding request for documents.
	BatchSize = 100
	// MinElementLength is the rune count an element must exceed to be embedded.
	MinElementLength = 10
)

type Service struct {
	embedder types.Embedder
	analyzer types.LayoutAnalyzer
	store    types.VectorStore
	logger   *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func NewService(embedder types.Embedder, analyzer types.LayoutAnalyzer, store types.VectorStore, opts ...Option) *Service {
	s := &Service{
		embedder: embedder,
		analyzer: analyzer,
		store:    store,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CollectionName is the collection a write with the given name lands in.
func CollectionName(name string) string {
	if name == "" {
		return DefaultCollection
	}
	return "embeddings-" + name
}

// Embeddings requests embeddings with no extra processing.
// Filtering or validation of inputs belongs here.
func (s *Service) Embeddings(ctx context.Context, messages []string, model string) ([]models.EmbeddingResult, error) {
	return s.embedder.Embeddings(ctx, messages, model)
}

type PassageOptions struct {
	Model      string
	Collection string
	ID         string
}

func (o PassageOptions) withDefaults() PassageOptions {
	if o.Model == "" {
		o.Model = llm.PassageEmbeddingModel
	}
	if o.Collection == "" {
		o.Collection = DefaultCollection
	}
	if o.ID == "" {
		o.ID = DefaultIDPrefix
	}
	return o
}

// CollectionName is the collection PassageEmbeddings writes to with these
// options. An empty Collection resolves to "embeddings-embeddings".
func (o PassageOptions) CollectionName() string {
	return CollectionName(o.withDefaults().Collection)
}

// PassageEmbeddings embeds messages in one request and stores them with ids "{ID}_{i}".
func (s *Service) PassageEmbeddings(ctx context.Context, messages []string, opts PassageOptions) ([]models.EmbeddingResult, error) {
	opts = opts.withDefaults()

	results, err := s.embedder.Embeddings(ctx, messages, opts.Model)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(messages))
	for i := range messages {
		ids[i] = fmt.Sprintf("%s_%d", opts.ID, i)
	}

	if err := s.add(ctx, opts.CollectionName(), messages, vectors(results), ids); err != nil {
		return nil, err
	}
	return results, nil
}

// PDFEmbeddings runs layout analysis on file, embeds every element longer than
// MinElementLength in concurrent batches of BatchSize and stores them with ids
// "{filename}_{elementID}_{page}". Any failing batch fails the whole document.
func (s *Service) PDFEmbeddings(ctx context.Context, file models.UploadFile, collection string) ([]models.EmbeddingResult, error) {
	analysis, err := s.analyzer.LayoutAnalysis(ctx, file.Content, file.Filename)
	if err != nil {
		return nil, err
	}

	var messages, ids []string
	for _, element := range analysis.Elements {
		if utf8.RuneCountInString(element.Text) > MinElementLength {
			messages = append(messages, element.Text)
			ids = append(ids, fmt.Sprintf("%s_%d_%d", file.Filename, element.ID, element.Page))
		}
	}

	s.logger.Info("Embedding document",
		slog.String("filename", file.Filename),
		slog.Int("elements", len(analysis.Elements)),
		slog.Int("kept", len(messages)))

	if len(messages) == 0 {
		return []models.EmbeddingResult{}, nil
	}

	batches := make([][]models.EmbeddingResult, (len(messages)+BatchSize-1)/BatchSize)
	g, gctx := errgroup.WithContext(ctx)
	for i := range batches {
		start := i * BatchSize
		end := min(start+BatchSize, len(messages))
		g.Go(func() error {
			res, err := s.embedder.Embeddings(gctx, messages[start:end], "")
			if err != nil {
				return err
			}
			batches[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	results := make([]models.EmbeddingResult, 0, len(messages))
	for _, batch := range batches {
		results = append(results, batch...)
	}
	if len(results) != len(messages) {
		return nil, fmt.Errorf("got %d embeddings for %d elements", len(results), len(messages))
	}

	if err := s.add(ctx, CollectionName(collection), messages, vectors(results), ids); err != nil {
		return nil, err
	}
	return results, nil
}

type RAGOptions struct {
	Model string
	// Collection is used verbatim, no prefix is applied.
	Collection string
}

// RAG embeds the queries and returns the TopK nearest stored passages per query,
// flattened in retrieval order. It returns nil when nothing matched.
func (s *Service) RAG(ctx context.Context, messages []string, opts RAGOptions) (*models.EmbeddingContextList, error) {
	if opts.Model == "" {
		opts.Model = llm.DefaultEmbeddingModel
	}
	if opts.Collection == "" {
		opts.Collection = DefaultCollection
	}

	embeddings, err := s.embedder.Embeddings(ctx, messages, opts.Model)
	if err != nil {
		return nil, err
	}

	client, err := s.store.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer client.Release()

	collection, err := client.GetCollection(ctx, opts.Collection)
	if err != nil {
		return nil, err
	}

	result, err := collection.Query(ctx, vectors(embeddings), TopK)
	if err != nil {
		return nil, err
	}

	var passages []models.EmbeddingContext
	for _, documents := range result.Documents {
		for _, doc := range documents {
			passages = append(passages, models.EmbeddingContext{Text: doc})
		}
	}

	if len(passages) == 0 {
		s.logger.Info("No context found", slog.String("collection", opts.Collection))
		return nil, nil
	}
	return &models.EmbeddingContextList{Context: passages}, nil
}

func (s *Service) add(ctx context.Context, name string, documents []string, embeddings [][]float32, ids []string) error {
	client, err := s.store.Acquire(ctx)
	if err != nil {
		return err
	}
	defer client.Release()

	s.logger.Info("Storing embeddings",
		slog.String("collection", name),
		slog.Int("count", len(ids)))

	collection, err := client.GetOrCreateCollection(ctx, name)
	if err != nil {
		return err
	}
	return collection.Add(ctx, documents, embeddings, ids)
}

func vectors(results []models.EmbeddingResult) [][]float32 {
	out := make([][]float32, len(results))
	for i, r := range results {
		out[i] = r.Embedding
	}
	return out
}
