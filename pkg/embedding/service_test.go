package embedding

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/solar/internal/models"
	"github.com/xhad/solar/pkg/llm"
	"github.com/xhad/solar/pkg/store"
)

type embedCall struct {
	texts []string
	model string
}

// fakeEmbedder returns a 3-dimensional vector derived from each text.
type fakeEmbedder struct {
	mu     sync.Mutex
	calls  []embedCall
	failOn string
	vector func(text string) []float32
}

func (f *fakeEmbedder) Embeddings(_ context.Context, texts []string, model string) ([]models.EmbeddingResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, embedCall{texts: append([]string(nil), texts...), model: model})
	f.mu.Unlock()

	results := make([]models.EmbeddingResult, len(texts))
	for i, text := range texts {
		if f.failOn != "" && text == f.failOn {
			return nil, errors.New("upstream unavailable")
		}
		vec := []float32{float32(len(text)), 1, 0}
		if f.vector != nil {
			vec = f.vector(text)
		}
		results[i] = models.EmbeddingResult{Object: "embedding", Embedding: vec, Index: i}
	}
	return results, nil
}

func (f *fakeEmbedder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeAnalyzer struct {
	elements []models.LayoutElement
	err      error
	filename string
}

func (f *fakeAnalyzer) LayoutAnalysis(_ context.Context, file io.Reader, filename string) (*models.LayoutAnalysisResult, error) {
	f.filename = filename
	if f.err != nil {
		return nil, f.err
	}
	return &models.LayoutAnalysisResult{Elements: f.elements}, nil
}

type entryLister interface {
	Entries() ([]string, []string, [][]float32)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(embedder *fakeEmbedder, analyzer *fakeAnalyzer) (*Service, *store.MemoryStore) {
	mem := store.NewMemoryStore(store.MetricCosine)
	return NewService(embedder, analyzer, mem, WithLogger(quietLogger())), mem
}

func entries(t *testing.T, mem *store.MemoryStore, name string) ([]string, []string) {
	t.Helper()
	client, err := mem.Acquire(context.Background())
	require.NoError(t, err)
	defer client.Release()

	col, err := client.GetCollection(context.Background(), name)
	require.NoError(t, err)
	lister, ok := col.(entryLister)
	require.True(t, ok)
	ids, docs, _ := lister.Entries()
	return ids, docs
}

func TestCollectionName(t *testing.T) {
	assert.Equal(t, "embeddings", CollectionName(""))
	assert.Equal(t, "embeddings-jeju", CollectionName("jeju"))
}

func TestPassageOptionsCollectionName(t *testing.T) {
	assert.Equal(t, "embeddings-embeddings", PassageOptions{}.CollectionName())
	assert.Equal(t, "embeddings-jeju", PassageOptions{Collection: "jeju"}.CollectionName())
}

func TestPassageEmbeddings(t *testing.T) {
	embedder := &fakeEmbedder{}
	svc, mem := newTestService(embedder, &fakeAnalyzer{})

	messages := []string{"Black pork", "Abalone porridge", "Tangerine juice"}
	results, err := svc.PassageEmbeddings(context.Background(), messages, PassageOptions{})
	require.NoError(t, err)
	require.Len(t, results, 3)

	require.Equal(t, 1, embedder.callCount())
	assert.Equal(t, llm.PassageEmbeddingModel, embedder.calls[0].model)

	ids, docs := entries(t, mem, CollectionName(DefaultCollection))
	assert.Equal(t, []string{"data_0", "data_1", "data_2"}, ids)
	assert.Equal(t, messages, docs)
	assert.Zero(t, mem.Outstanding())
}

func TestPassageEmbeddingsOptions(t *testing.T) {
	embedder := &fakeEmbedder{}
	svc, mem := newTestService(embedder, &fakeAnalyzer{})

	_, err := svc.PassageEmbeddings(context.Background(), []string{"Gogi guksu"}, PassageOptions{
		Model:      "custom-passage",
		Collection: "east-kareum",
		ID:         "menu",
	})
	require.NoError(t, err)
	assert.Equal(t, "custom-passage", embedder.calls[0].model)

	ids, _ := entries(t, mem, "embeddings-east-kareum")
	assert.Equal(t, []string{"menu_0"}, ids)
}

func TestPassageEmbeddingsFailureWritesNothing(t *testing.T) {
	embedder := &fakeEmbedder{failOn: "bad"}
	svc, mem := newTestService(embedder, &fakeAnalyzer{})

	_, err := svc.PassageEmbeddings(context.Background(), []string{"ok", "bad"}, PassageOptions{})
	require.Error(t, err)

	client, _ := mem.Acquire(context.Background())
	defer client.Release()
	_, err = client.GetCollection(context.Background(), PassageOptions{}.CollectionName())
	assert.ErrorIs(t, err, store.ErrCollectionNotFound)
}

func TestPDFEmbeddingsFiltersShortElements(t *testing.T) {
	embedder := &fakeEmbedder{}
	analyzer := &fakeAnalyzer{elements: []models.LayoutElement{
		{ID: 0, Page: 1, Text: "hi"},
		{ID: 1, Page: 1, Text: "exactly ten"[:10]},
		{ID: 2, Page: 2, Text: "eleven char"},
		{ID: 3, Page: 3, Text: "제주 흑돼지 거리"},
	}}
	svc, mem := newTestService(embedder, analyzer)

	file := models.UploadFile{Filename: "guide.pdf", Content: strings.NewReader("%PDF")}
	results, err := svc.PDFEmbeddings(context.Background(), file, "jeju")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "guide.pdf", analyzer.filename)

	// The client default model is used for document chunks.
	require.Equal(t, 1, embedder.callCount())
	assert.Equal(t, "", embedder.calls[0].model)
	assert.Equal(t, []string{"eleven char"}, embedder.calls[0].texts)

	ids, docs := entries(t, mem, "embeddings-jeju")
	assert.Equal(t, []string{"guide.pdf_2_2"}, ids)
	assert.Equal(t, []string{"eleven char"}, docs)
	assert.Zero(t, mem.Outstanding())
}

func TestPDFEmbeddingsBatches(t *testing.T) {
	embedder := &fakeEmbedder{}
	var elements []models.LayoutElement
	for i := 0; i < 250; i++ {
		elements = append(elements, models.LayoutElement{
			ID:   i,
			Page: i/10 + 1,
			Text: fmt.Sprintf("restaurant entry number %03d", i),
		})
	}
	svc, mem := newTestService(embedder, &fakeAnalyzer{elements: elements})

	file := models.UploadFile{Filename: "list.pdf", Content: strings.NewReader("%PDF")}
	results, err := svc.PDFEmbeddings(context.Background(), file, "")
	require.NoError(t, err)
	require.Len(t, results, 250)

	assert.Equal(t, 3, embedder.callCount())
	sizes := map[int]int{}
	for _, call := range embedder.calls {
		sizes[len(call.texts)]++
	}
	assert.Equal(t, map[int]int{100: 2, 50: 1}, sizes)

	ids, docs := entries(t, mem, "embeddings")
	require.Len(t, ids, 250)
	for i := range ids {
		assert.Equal(t, fmt.Sprintf("list.pdf_%d_%d", i, i/10+1), ids[i])
		assert.Equal(t, elements[i].Text, docs[i])
	}
}

func TestPDFEmbeddingsChunkFailure(t *testing.T) {
	var elements []models.LayoutElement
	for i := 0; i < 150; i++ {
		elements = append(elements, models.LayoutElement{ID: i, Page: 1, Text: fmt.Sprintf("paragraph %05d", i)})
	}
	embedder := &fakeEmbedder{failOn: "paragraph 00120"}
	svc, mem := newTestService(embedder, &fakeAnalyzer{elements: elements})

	file := models.UploadFile{Filename: "a.pdf", Content: strings.NewReader("%PDF")}
	_, err := svc.PDFEmbeddings(context.Background(), file, "")
	require.Error(t, err)

	client, _ := mem.Acquire(context.Background())
	defer client.Release()
	names, err := client.ListCollections(context.Background())
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestPDFEmbeddingsNothingToEmbed(t *testing.T) {
	embedder := &fakeEmbedder{}
	analyzer := &fakeAnalyzer{elements: []models.LayoutElement{{ID: 0, Page: 1, Text: "p. 1"}}}
	svc, mem := newTestService(embedder, analyzer)

	file := models.UploadFile{Filename: "empty.pdf", Content: strings.NewReader("%PDF")}
	results, err := svc.PDFEmbeddings(context.Background(), file, "")
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Zero(t, embedder.callCount())

	client, _ := mem.Acquire(context.Background())
	defer client.Release()
	names, _ := client.ListCollections(context.Background())
	assert.Empty(t, names)
}

func TestPDFEmbeddingsAnalyzerError(t *testing.T) {
	analyzer := &fakeAnalyzer{err: errors.New("layout down")}
	svc, _ := newTestService(&fakeEmbedder{}, analyzer)

	file := models.UploadFile{Filename: "x.pdf", Content: strings.NewReader("")}
	_, err := svc.PDFEmbeddings(context.Background(), file, "")
	assert.EqualError(t, err, "layout down")
}

func TestRAG(t *testing.T) {
	embedder := &fakeEmbedder{vector: func(text string) []float32 {
		switch {
		case strings.Contains(text, "pork"):
			return []float32{1, 0, 0}
		case strings.Contains(text, "noodle"):
			return []float32{0, 1, 0}
		default:
			return []float32{0, 0, 1}
		}
	}}
	svc, mem := newTestService(embedder, &fakeAnalyzer{})
	ctx := context.Background()

	_, err := svc.PassageEmbeddings(ctx, []string{"noodle house", "pork grill", "seafood stew"}, PassageOptions{})
	require.NoError(t, err)

	got, err := svc.RAG(ctx, []string{"best pork?"}, RAGOptions{Collection: PassageOptions{}.CollectionName()})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "pork grill", got.Texts()[0])
	assert.Len(t, got.Context, 3)
	assert.Equal(t, llm.DefaultEmbeddingModel, embedder.calls[len(embedder.calls)-1].model)
	assert.Zero(t, mem.Outstanding())
}

func TestRAGTopK(t *testing.T) {
	embedder := &fakeEmbedder{}
	svc, _ := newTestService(embedder, &fakeAnalyzer{})
	ctx := context.Background()

	var messages []string
	for i := 0; i < 25; i++ {
		messages = append(messages, fmt.Sprintf("passage %d", i))
	}
	_, err := svc.PassageEmbeddings(ctx, messages, PassageOptions{})
	require.NoError(t, err)

	got, err := svc.RAG(ctx, []string{"q1", "q2"}, RAGOptions{Collection: CollectionName(DefaultCollection)})
	require.NoError(t, err)
	assert.Len(t, got.Context, 2*TopK)
}

func TestRAGEmptyCollection(t *testing.T) {
	svc, mem := newTestService(&fakeEmbedder{}, &fakeAnalyzer{})
	ctx := context.Background()

	client, err := mem.Acquire(ctx)
	require.NoError(t, err)
	_, err = client.GetOrCreateCollection(ctx, "empty")
	require.NoError(t, err)
	client.Release()

	got, err := svc.RAG(ctx, []string{"anything"}, RAGOptions{Collection: "empty"})
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Zero(t, mem.Outstanding())
}

func TestRAGMissingCollection(t *testing.T) {
	svc, mem := newTestService(&fakeEmbedder{}, &fakeAnalyzer{})

	_, err := svc.RAG(context.Background(), []string{"anything"}, RAGOptions{Collection: "nope"})
	assert.ErrorIs(t, err, store.ErrCollectionNotFound)
	assert.Zero(t, mem.Outstanding())
}
