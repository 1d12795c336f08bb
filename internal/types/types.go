package types

import (
	"context"
	"io"

	"github.com/xhad/solar/internal/models"
)

// Core interfaces

type Embedder interface {
	Embeddings(ctx context.Context, texts []string, model string) ([]models.EmbeddingResult, error)
}

type LayoutAnalyzer interface {
	LayoutAnalysis(ctx context.Context, file io.Reader, filename string) (*models.LayoutAnalysisResult, error)
}

// VectorStore hands out scoped clients. Every client must be released.
type VectorStore interface {
	Acquire(ctx context.Context) (VectorClient, error)
	Close()
}

type VectorClient interface {
	GetOrCreateCollection(ctx context.Context, name string) (Collection, error)
	GetCollection(ctx context.Context, name string) (Collection, error)
	DeleteCollection(ctx context.Context, name string) error
	ListCollections(ctx context.Context) ([]string, error)
	Release()
}

type Collection interface {
	Name() string
	Add(ctx context.Context, documents []string, embeddings [][]float32, ids []string) error
	Query(ctx context.Context, queryEmbeddings [][]float32, nResults int) (*models.QueryResult, error)
	Count(ctx context.Context) (int, error)
}
