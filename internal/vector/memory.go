package vector

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/raaihank/fin-sentinel/internal/embeddings"
)

// MemoryIndex is an in-process Index with brute-force cosine search. It is
// safe for concurrent use.
type MemoryIndex struct {
	mu        sync.RWMutex
	dimension int
	docs      []*Document
	hashes    map[string]struct{}
	nextID    int64
	logger    *zap.Logger
}

// NewMemoryIndex creates an empty index for vectors of the given dimension.
func NewMemoryIndex(dimension int, logger *zap.Logger) *MemoryIndex {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryIndex{
		dimension: dimension,
		hashes:    make(map[string]struct{}),
		logger:    logger,
	}
}

// BatchInsert adds documents, skipping any whose text is already indexed.
func (m *MemoryIndex) BatchInsert(_ context.Context, docs []*Document) (*BatchInsertResult, error) {
	start := time.Now()
	for _, d := range docs {
		if len(d.Embedding) != m.dimension {
			return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(d.Embedding), m.dimension)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	result := &BatchInsertResult{}
	for _, d := range docs {
		hash := d.TextHash
		if hash == "" {
			hash = TextHash(d.Text)
		}
		if _, dup := m.hashes[hash]; dup {
			result.Skipped++
			continue
		}

		m.nextID++
		stored := &Document{
			ID:        m.nextID,
			Text:      d.Text,
			TextHash:  hash,
			Source:    d.Source,
			Embedding: append([]float32(nil), d.Embedding...),
			CreatedAt: time.Now(),
		}
		m.docs = append(m.docs, stored)
		m.hashes[hash] = struct{}{}
		result.Inserted++
	}
	result.Duration = time.Since(start)

	m.logger.Debug("Memory index insert completed",
		zap.Int64("inserted", result.Inserted),
		zap.Int64("duplicates_skipped", result.Skipped))

	return result, nil
}

// FindSimilar returns up to options.Limit documents ordered by descending
// cosine similarity.
func (m *MemoryIndex) FindSimilar(ctx context.Context, embedding []float32, options *SearchOptions) ([]*SimilarityResult, error) {
	if len(embedding) != m.dimension {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(embedding), m.dimension)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	opts := defaultSearchOptions(options)

	m.mu.RLock()
	results := make([]*SimilarityResult, 0, len(m.docs))
	for _, d := range m.docs {
		if opts.Source != "" && d.Source != opts.Source {
			continue
		}
		sim := embeddings.CosineSimilarity(embedding, d.Embedding)
		if sim < opts.MinSimilarity {
			continue
		}
		doc := *d
		results = append(results, &SimilarityResult{
			Document:   &doc,
			Similarity: sim,
			Distance:   1 - sim,
		})
	}
	m.mu.RUnlock()

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
	if len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results, nil
}

// GetStats returns index statistics
func (m *MemoryIndex) GetStats(_ context.Context) (*Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sources := make(map[string]struct{})
	for _, d := range m.docs {
		sources[d.Source] = struct{}{}
	}
	return &Stats{
		TotalDocuments: int64(len(m.docs)),
		Sources:        int64(len(sources)),
		Backend:        "memory",
	}, nil
}

// Reset removes every document.
func (m *MemoryIndex) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs = nil
	m.hashes = make(map[string]struct{})
	m.nextID = 0
	return nil
}

// Close is a no-op.
func (m *MemoryIndex) Close() error {
	return nil
}
