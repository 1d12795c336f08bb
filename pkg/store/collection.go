package store

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrCollectionNotFound = errors.New("collection does not exist")
	ErrInvalidBatch       = errors.New("invalid batch")
)

type Metric string

const (
	MetricCosine       Metric = "cosine"
	MetricL2           Metric = "l2"
	MetricInnerProduct Metric = "ip"
)

func ParseMetric(s string) (Metric, error) {
	switch Metric(s) {
	case "", MetricCosine:
		return MetricCosine, nil
	case MetricL2, MetricInnerProduct:
		return Metric(s), nil
	default:
		return "", fmt.Errorf("unsupported metric: %s", s)
	}
}

// operator is the pgvector distance operator, smaller is closer.
func (m Metric) operator() string {
	switch m {
	case MetricL2:
		return "<->"
	case MetricInnerProduct:
		return "<#>"
	default:
		return "<=>"
	}
}

// distance mirrors the pgvector operators for in-process search.
func (m Metric) distance(a, b []float32) float32 {
	var dot, na, nb, l2 float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
		l2 += (x - y) * (x - y)
	}
	switch m {
	case MetricL2:
		return float32(math.Sqrt(l2))
	case MetricInnerProduct:
		return float32(-dot)
	default:
		if na == 0 || nb == 0 {
			return 1
		}
		return float32(1 - dot/(math.Sqrt(na)*math.Sqrt(nb)))
	}
}

// validateBatch checks that a write is aligned, has unique ids and one vector dimension.
func validateBatch(documents []string, embeddings [][]float32, ids []string) (int, error) {
	if len(documents) != len(embeddings) || len(documents) != len(ids) {
		return 0, fmt.Errorf("%w: got %d documents, %d embeddings, %d ids",
			ErrInvalidBatch, len(documents), len(embeddings), len(ids))
	}

	seen := make(map[string]struct{}, len(ids))
	dim := 0
	for i, id := range ids {
		if id == "" {
			return 0, fmt.Errorf("%w: empty id at position %d", ErrInvalidBatch, i)
		}
		if _, ok := seen[id]; ok {
			return 0, fmt.Errorf("%w: duplicate id %s", ErrInvalidBatch, id)
		}
		seen[id] = struct{}{}

		if len(embeddings[i]) == 0 {
			return 0, fmt.Errorf("%w: empty embedding for id %s", ErrInvalidBatch, id)
		}
		if dim == 0 {
			dim = len(embeddings[i])
		} else if len(embeddings[i]) != dim {
			return 0, fmt.Errorf("%w: embedding dimension mismatch for id %s: got %d, want %d",
				ErrInvalidBatch, id, len(embeddings[i]), dim)
		}
	}
	return dim, nil
}
