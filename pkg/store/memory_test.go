package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreCollections(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(MetricCosine)

	client, err := s.Acquire(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Outstanding())

	_, err = client.GetCollection(ctx, "missing")
	assert.ErrorIs(t, err, ErrCollectionNotFound)

	col, err := client.GetOrCreateCollection(ctx, "embeddings-docs")
	require.NoError(t, err)
	assert.Equal(t, "embeddings-docs", col.Name())

	again, err := client.GetOrCreateCollection(ctx, "embeddings-docs")
	require.NoError(t, err)
	assert.Same(t, col, again)

	names, err := client.ListCollections(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"embeddings-docs"}, names)

	require.NoError(t, client.DeleteCollection(ctx, "embeddings-docs"))
	assert.ErrorIs(t, client.DeleteCollection(ctx, "embeddings-docs"), ErrCollectionNotFound)

	client.Release()
	client.Release()
	assert.Equal(t, 0, s.Outstanding())
}

func TestMemoryCollectionQuery(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(MetricL2)
	client, err := s.Acquire(ctx)
	require.NoError(t, err)
	defer client.Release()

	col, err := client.GetOrCreateCollection(ctx, "c")
	require.NoError(t, err)

	err = col.Add(ctx,
		[]string{"far", "near", "mid"},
		[][]float32{{10, 0}, {1, 0}, {5, 0}},
		[]string{"c_0", "c_1", "c_2"},
	)
	require.NoError(t, err)

	n, err := col.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	res, err := col.Query(ctx, [][]float32{{0, 0}, {10, 0}}, 2)
	require.NoError(t, err)
	require.Len(t, res.Documents, 2)
	assert.Equal(t, []string{"near", "mid"}, res.Documents[0])
	assert.Equal(t, []string{"c_1", "c_2"}, res.IDs[0])
	assert.Equal(t, []string{"far", "mid"}, res.Documents[1])
	assert.InDelta(t, 1.0, res.Distances[0][0], 1e-6)
}

func TestMemoryCollectionUpsert(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore("")
	client, _ := s.Acquire(ctx)
	defer client.Release()

	col, _ := client.GetOrCreateCollection(ctx, "c")
	require.NoError(t, col.Add(ctx, []string{"old"}, [][]float32{{1, 0}}, []string{"x"}))
	require.NoError(t, col.Add(ctx, []string{"new"}, [][]float32{{0, 1}}, []string{"x"}))

	n, _ := col.Count(ctx)
	assert.Equal(t, 1, n)

	res, err := col.Query(ctx, [][]float32{{0, 1}}, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"new"}, res.Documents[0])
}

func TestValidateBatch(t *testing.T) {
	tests := []struct {
		name       string
		documents  []string
		embeddings [][]float32
		ids        []string
		wantDim    int
		wantErr    bool
	}{
		{
			name:       "aligned",
			documents:  []string{"a", "b"},
			embeddings: [][]float32{{1, 2}, {3, 4}},
			ids:        []string{"d_0", "d_1"},
			wantDim:    2,
		},
		{
			name:       "length mismatch",
			documents:  []string{"a"},
			embeddings: [][]float32{{1}, {2}},
			ids:        []string{"d_0", "d_1"},
			wantErr:    true,
		},
		{
			name:       "duplicate id",
			documents:  []string{"a", "b"},
			embeddings: [][]float32{{1}, {2}},
			ids:        []string{"d_0", "d_0"},
			wantErr:    true,
		},
		{
			name:       "dimension mismatch",
			documents:  []string{"a", "b"},
			embeddings: [][]float32{{1}, {2, 3}},
			ids:        []string{"d_0", "d_1"},
			wantErr:    true,
		},
		{
			name:       "empty id",
			documents:  []string{"a"},
			embeddings: [][]float32{{1}},
			ids:        []string{""},
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dim, err := validateBatch(tt.documents, tt.embeddings, tt.ids)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidBatch)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantDim, dim)
		})
	}
}

func TestMetric(t *testing.T) {
	m, err := ParseMetric("")
	require.NoError(t, err)
	assert.Equal(t, MetricCosine, m)
	assert.Equal(t, "<=>", m.operator())

	_, err = ParseMetric("manhattan")
	assert.Error(t, err)

	assert.InDelta(t, 0.0, MetricCosine.distance([]float32{1, 0}, []float32{2, 0}), 1e-6)
	assert.InDelta(t, 1.0, MetricCosine.distance([]float32{1, 0}, []float32{0, 1}), 1e-6)
	assert.InDelta(t, -2.0, MetricInnerProduct.distance([]float32{1, 0}, []float32{2, 0}), 1e-6)
	assert.Equal(t, "<#>", MetricInnerProduct.operator())
}

func TestSanitizeText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "valid", in: "abc", want: "abc"},
		{name: "korean", in: "제주 흑돼지", want: "제주 흑돼지"},
		{name: "invalid byte", in: "a\xffb", want: "ab"},
		{name: "nul byte", in: "a\x00b\x00", want: "ab"},
		{name: "nul and invalid", in: "\x00제\xff주", want: "제주"},
		{name: "replacement rune kept", in: "a\uFFFDb", want: "a\uFFFDb"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sanitizeText(tt.in))
		})
	}
}
