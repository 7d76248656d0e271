package vector

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/raaihank/fin-sentinel/internal/embeddings"
)

// Retriever answers context queries from an Index. It embeds the already
// masked query and returns the texts of the closest documents.
type Retriever struct {
	index         Index
	embedder      embeddings.EmbeddingService
	minSimilarity float32
	logger        *zap.Logger
}

// NewRetriever creates a retriever over index.
func NewRetriever(index Index, embedder embeddings.EmbeddingService, minSimilarity float32, logger *zap.Logger) *Retriever {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retriever{
		index:         index,
		embedder:      embedder,
		minSimilarity: minSimilarity,
		logger:        logger,
	}
}

// Retrieve returns at most topK snippet texts, most similar first.
func (r *Retriever) Retrieve(ctx context.Context, maskedQuery string, topK int) ([]string, error) {
	if topK <= 0 {
		return nil, nil
	}

	emb, err := r.embedder.GenerateEmbedding(ctx, maskedQuery)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	results, err := r.index.FindSimilar(ctx, emb.Embedding, &SearchOptions{
		Limit:         topK,
		MinSimilarity: r.minSimilarity,
	})
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}

	texts := make([]string, 0, len(results))
	for _, res := range results {
		texts = append(texts, res.Document.Text)
	}

	r.logger.Debug("Context retrieved",
		zap.Int("requested", topK),
		zap.Int("returned", len(texts)))

	return texts, nil
}
