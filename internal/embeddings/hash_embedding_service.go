package embeddings

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"
)

const bigramWeight = 0.5

// HashEmbeddingService produces deterministic bag-of-words embeddings by
// feature hashing unigrams and bigrams into EmbeddingDimensions buckets. It
// needs no model files and is the default for development and tests.
type HashEmbeddingService struct {
	config *ModelConfig
	logger *zap.Logger
	stats  *statsRecorder
}

// NewHashEmbeddingService creates a new hash-based embedding service
func NewHashEmbeddingService(config *ModelConfig, logger *zap.Logger) (*HashEmbeddingService, error) {
	if config == nil {
		return nil, fmt.Errorf("%w: config cannot be nil", ErrConfigError)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	service := &HashEmbeddingService{
		config: config,
		logger: logger,
		stats:  newStatsRecorder("hash", 0),
	}

	logger.Info("Hash embedding service initialized",
		zap.String("model_name", config.ModelName),
		zap.Int("embedding_dimensions", EmbeddingDimensions))

	return service, nil
}

// GenerateEmbedding generates a deterministic embedding for text
func (s *HashEmbeddingService) GenerateEmbedding(ctx context.Context, text string) (*EmbeddingResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTimeoutError, err)
	}

	start := time.Now()
	embedding, tokens, err := s.embed(text)
	if err != nil {
		s.stats.record(0, 1, 0, 0, time.Since(start))
		return nil, err
	}

	duration := time.Since(start)
	s.stats.record(1, 0, tokens, 0, duration)

	return &EmbeddingResult{
		Embedding:   embedding,
		Duration:    duration,
		TokenCount:  tokens,
		ServiceType: "hash",
	}, nil
}

// GenerateBatchEmbeddings generates embeddings for multiple texts
func (s *HashEmbeddingService) GenerateBatchEmbeddings(ctx context.Context, texts []string) (*BatchEmbeddingResult, error) {
	result := &BatchEmbeddingResult{
		Embeddings:  make([][]float32, len(texts)),
		ServiceType: "hash",
	}
	if len(texts) == 0 {
		return result, nil
	}

	start := time.Now()
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("batch processing cancelled at item %d: %w", i, err))
			result.Failed += len(texts) - i
			break
		}

		embedding, tokens, err := s.embed(text)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("item %d: %w", i, err))
			result.Failed++
			continue
		}
		result.Embeddings[i] = embedding
		result.TotalTokens += tokens
		result.Successful++
	}

	result.Duration = time.Since(start)
	s.stats.record(int64(result.Successful), int64(result.Failed), result.TotalTokens, 0, result.Duration)

	return result, nil
}

func (s *HashEmbeddingService) embed(text string) ([]float32, int, error) {
	terms := Terms(text)
	if len(terms) == 0 {
		return nil, 0, fmt.Errorf("%w: text has no terms", ErrInvalidInput)
	}

	embedding := make([]float32, EmbeddingDimensions)
	for i, term := range terms {
		addFeature(embedding, term, 1)
		if i > 0 {
			addFeature(embedding, terms[i-1]+" "+term, bigramWeight)
		}
	}

	return NormalizeEmbedding(embedding), len(terms), nil
}

// addFeature hashes feature into a bucket; the top bit of the hash picks the
// sign so that collisions cancel out on average.
func addFeature(embedding []float32, feature string, weight float32) {
	h := xxhash.Sum64String(strings.ToLower(feature))
	idx := h % uint64(len(embedding))
	if h>>63 == 1 {
		weight = -weight
	}
	embedding[idx] += weight
}

// ComputeSimilarity computes cosine similarity between two vectors
func (s *HashEmbeddingService) ComputeSimilarity(vec1, vec2 []float32) float32 {
	return CosineSimilarity(vec1, vec2)
}

// GetStats returns model performance statistics
func (s *HashEmbeddingService) GetStats() *ModelStats {
	return s.stats.snapshot()
}

// Close cleans up resources
func (s *HashEmbeddingService) Close() error {
	return nil
}
