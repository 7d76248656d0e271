package vector

import (
	"context"
	"errors"
)

// ErrDimensionMismatch is returned when a vector does not match the index
// dimension.
var ErrDimensionMismatch = errors.New("vector: embedding dimension mismatch")

// Index stores masked snippets and answers nearest-neighbour queries. Only
// already masked text may be inserted.
type Index interface {
	BatchInsert(ctx context.Context, docs []*Document) (*BatchInsertResult, error)
	FindSimilar(ctx context.Context, embedding []float32, options *SearchOptions) ([]*SimilarityResult, error)
	GetStats(ctx context.Context) (*Stats, error)
	Reset(ctx context.Context) error
	Close() error
}

var (
	_ Index = (*Store)(nil)
	_ Index = (*MemoryIndex)(nil)
)

func defaultSearchOptions(options *SearchOptions) SearchOptions {
	if options == nil {
		return SearchOptions{Limit: 5}
	}
	opts := *options
	if opts.Limit <= 0 {
		opts.Limit = 5
	}
	return opts
}
