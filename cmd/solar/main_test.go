package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/solar/internal/models"
	cfgPkg "github.com/xhad/solar/pkg/config"
	"github.com/xhad/solar/pkg/embedding"
	"github.com/xhad/solar/pkg/store"
)

type fakeEmbedder struct{}

func (fakeEmbedder) Embeddings(_ context.Context, texts []string, _ string) ([]models.EmbeddingResult, error) {
	results := make([]models.EmbeddingResult, len(texts))
	for i, text := range texts {
		results[i] = models.EmbeddingResult{Object: "embedding", Embedding: []float32{float32(len(text)), 1}, Index: i}
	}
	return results, nil
}

func newTestApp(t *testing.T) (*app, *store.MemoryStore) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mem := store.NewMemoryStore(store.MetricCosine)
	return &app{
		config:  &cfgPkg.Config{},
		logger:  logger,
		store:   mem,
		service: embedding.NewService(fakeEmbedder{}, nil, mem, embedding.WithLogger(logger)),
	}, mem
}

func TestSplitConfigFlag(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantPath string
		wantRest []string
	}{
		{
			name:     "no config",
			args:     []string{"-collection", "jeju", "hello"},
			wantPath: "",
			wantRest: []string{"-collection", "jeju", "hello"},
		},
		{
			name:     "separate value",
			args:     []string{"-config", "solar.yaml", "-collection", "jeju"},
			wantPath: "solar.yaml",
			wantRest: []string{"-collection", "jeju"},
		},
		{
			name:     "inline value",
			args:     []string{"hello", "--config=/etc/solar.yaml"},
			wantPath: "/etc/solar.yaml",
			wantRest: []string{"hello"},
		},
		{
			name:     "dangling flag",
			args:     []string{"-config"},
			wantPath: "",
			wantRest: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path, rest := splitConfigFlag(tt.args)
			assert.Equal(t, tt.wantPath, path)
			assert.Equal(t, tt.wantRest, rest)
		})
	}
}

func TestReadLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "passages.txt")
	require.NoError(t, os.WriteFile(path, []byte("Black pork is grilled.\n\n  Abalone porridge  \n"), 0o644))

	lines, err := readLines(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Black pork is grilled.", "Abalone porridge"}, lines)

	_, err = readLines(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}

func TestCommandsRegistered(t *testing.T) {
	for _, name := range []string{"passages", "pdf", "url", "rag", "collections", "dining", "chat", "serve"} {
		assert.Contains(t, commands, name)
	}
}

func TestDefaultPassagesAreFoundByDefaultRAG(t *testing.T) {
	a, mem := newTestApp(t)
	ctx := context.Background()

	require.NoError(t, runPassages(ctx, a, []string{"Black pork is grilled over charcoal."}))

	client, err := mem.Acquire(ctx)
	require.NoError(t, err)
	names, err := client.ListCollections(ctx)
	client.Release()
	require.NoError(t, err)
	assert.Equal(t, "embeddings-embeddings", defaultCollection)
	assert.Equal(t, []string{defaultCollection}, names)

	require.NoError(t, runRAG(ctx, a, []string{"pork"}))

	result, err := a.service.RAG(ctx, []string{"pork"}, embedding.RAGOptions{Collection: defaultCollection})
	require.NoError(t, err)
	assert.Equal(t, []string{"Black pork is grilled over charcoal."}, result.Texts())
	assert.Zero(t, mem.Outstanding())
}

func TestPassagesCollectionFlag(t *testing.T) {
	a, mem := newTestApp(t)
	ctx := context.Background()

	require.NoError(t, runPassages(ctx, a, []string{"-collection", "jeju", "Abalone porridge"}))

	client, err := mem.Acquire(ctx)
	require.NoError(t, err)
	defer client.Release()
	names, err := client.ListCollections(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"embeddings-jeju"}, names)
}
