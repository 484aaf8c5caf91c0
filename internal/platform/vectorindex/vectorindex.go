package vectorindex

import (
	"context"
	"errors"
	"fmt"
)

// VectorStore is the boundary to the external vector index. Implementations
// must reject vectors whose dimension differs from the configured embedding
// dimension before any write reaches the index; see ErrDimensionMismatch.
type VectorStore interface {
	Upsert(ctx context.Context, namespace string, vectors []Vector) error
	// QueryMatches returns IDs with their cosine similarity (higher is
	// better), best first.
	QueryMatches(ctx context.Context, namespace string, q []float32, topK int) ([]VectorMatch, error)
	DeleteIDs(ctx context.Context, namespace string, ids []string) error
}

type Vector struct {
	ID       string
	Values   []float32
	Metadata map[string]any
}

type VectorMatch struct {
	ID    string
	Score float64
}

// ErrDimensionMismatch marks a vector of the wrong dimension presented to the
// index. This is a configuration error: the embedding dimension is a fixed
// schema parameter and changing it requires an explicit full re-embedding
// migration, never a silent truncation or pad.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

func DimensionError(expected, got int) error {
	return fmt.Errorf("%w: expected=%d got=%d", ErrDimensionMismatch, expected, got)
}
