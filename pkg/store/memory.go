package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/xhad/solar/internal/models"
	"github.com/xhad/solar/internal/types"
)

// DefaultResults is used when a query asks for no explicit result count.
const DefaultResults = 10

// MemoryStore is an in-process VectorStore with the same semantics as PgVectorStore.
type MemoryStore struct {
	metric Metric

	mu          sync.RWMutex
	collections map[string]*memCollection
	acquired    int
}

func NewMemoryStore(metric Metric) *MemoryStore {
	if metric == "" {
		metric = MetricCosine
	}
	return &MemoryStore{
		metric:      metric,
		collections: make(map[string]*memCollection),
	}
}

func (m *MemoryStore) Acquire(ctx context.Context) (types.VectorClient, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.acquired++
	m.mu.Unlock()
	return &memClient{store: m}, nil
}

// Outstanding reports how many acquired clients have not been released.
func (m *MemoryStore) Outstanding() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.acquired
}

func (m *MemoryStore) Close() {}

type memClient struct {
	store    *MemoryStore
	released bool
}

func (c *memClient) Release() {
	if c.released {
		return
	}
	c.released = true
	c.store.mu.Lock()
	c.store.acquired--
	c.store.mu.Unlock()
}

func (c *memClient) GetOrCreateCollection(_ context.Context, name string) (types.Collection, error) {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()

	col, ok := c.store.collections[name]
	if !ok {
		col = &memCollection{name: name, metric: c.store.metric, index: make(map[string]int)}
		c.store.collections[name] = col
	}
	return col, nil
}

func (c *memClient) GetCollection(_ context.Context, name string) (types.Collection, error) {
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()

	col, ok := c.store.collections[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}
	return col, nil
}

func (c *memClient) DeleteCollection(_ context.Context, name string) error {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()

	if _, ok := c.store.collections[name]; !ok {
		return fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}
	delete(c.store.collections, name)
	return nil
}

func (c *memClient) ListCollections(context.Context) ([]string, error) {
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()

	names := make([]string, 0, len(c.store.collections))
	for name := range c.store.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

type memEntry struct {
	id        string
	document  string
	embedding []float32
}

type memCollection struct {
	name   string
	metric Metric

	mu      sync.RWMutex
	dim     int
	entries []memEntry
	index   map[string]int
}

func (c *memCollection) Name() string {
	return c.name
}

func (c *memCollection) Add(_ context.Context, documents []string, embeddings [][]float32, ids []string) error {
	dim, err := validateBatch(documents, embeddings, ids)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.dim != 0 && c.dim != dim {
		return fmt.Errorf("%w: collection %s stores %d-dimensional vectors, got %d",
			ErrInvalidBatch, c.name, c.dim, dim)
	}
	c.dim = dim

	for i, id := range ids {
		vec := make([]float32, len(embeddings[i]))
		copy(vec, embeddings[i])
		e := memEntry{id: id, document: documents[i], embedding: vec}

		if pos, ok := c.index[id]; ok {
			c.entries[pos] = e
			continue
		}
		c.index[id] = len(c.entries)
		c.entries = append(c.entries, e)
	}
	return nil
}

func (c *memCollection) Query(_ context.Context, queryEmbeddings [][]float32, nResults int) (*models.QueryResult, error) {
	if nResults <= 0 {
		nResults = DefaultResults
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	result := &models.QueryResult{}
	for _, q := range queryEmbeddings {
		if c.dim != 0 && len(q) != c.dim {
			return nil, fmt.Errorf("query vector dimension mismatch: got %d, want %d", len(q), c.dim)
		}

		type hit struct {
			entry    memEntry
			distance float32
		}
		hits := make([]hit, 0, len(c.entries))
		for _, e := range c.entries {
			hits = append(hits, hit{entry: e, distance: c.metric.distance(q, e.embedding)})
		}
		sort.SliceStable(hits, func(i, j int) bool { return hits[i].distance < hits[j].distance })
		if len(hits) > nResults {
			hits = hits[:nResults]
		}

		ids := make([]string, 0, len(hits))
		docs := make([]string, 0, len(hits))
		distances := make([]float32, 0, len(hits))
		for _, h := range hits {
			ids = append(ids, h.entry.id)
			docs = append(docs, h.entry.document)
			distances = append(distances, h.distance)
		}
		result.IDs = append(result.IDs, ids)
		result.Documents = append(result.Documents, docs)
		result.Distances = append(result.Distances, distances)
	}
	return result, nil
}

func (c *memCollection) Count(context.Context) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries), nil
}

// Entries returns a copy of the stored ids and documents in insertion order.
func (c *memCollection) Entries() (ids []string, documents []string, embeddings [][]float32) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, e := range c.entries {
		ids = append(ids, e.id)
		documents = append(documents, e.document)
		embeddings = append(embeddings, e.embedding)
	}
	return ids, documents, embeddings
}

var _ types.VectorStore = (*MemoryStore)(nil)
