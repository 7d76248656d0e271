package embeddings

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// EmbeddingCache is the embedding cache consumed by the ML service.
// *cache.EmbeddingCache implements it.
type EmbeddingCache interface {
	Get(ctx context.Context, text string) ([]float32, bool, error)
	SetBatch(ctx context.Context, texts []string, embeddings [][]float32) error
	Close() error
}

// MLEmbeddingService computes sentence embeddings with a transformer backend.
// Results are cached by text when a cache is configured.
type MLEmbeddingService struct {
	config    ModelConfig
	logger    *zap.Logger
	stats     *statsRecorder
	cache     EmbeddingCache
	tokenizer *Tokenizer
	backend   TransformerBackend
}

// NewMLEmbeddingService creates an ML embedding service. cache may be nil.
func NewMLEmbeddingService(config ModelConfig, logger *zap.Logger, tokenizer *Tokenizer, backend TransformerBackend, cache EmbeddingCache) (*MLEmbeddingService, error) {
	if tokenizer == nil {
		return nil, fmt.Errorf("%w: tokenizer is required", ErrConfigError)
	}
	if backend == nil || !backend.IsReady() {
		return nil, ErrModelNotLoaded
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 16
	}
	if config.ModelTimeout <= 0 {
		config.ModelTimeout = 30 * time.Second
	}

	logger.Info("ML embedding service initialized",
		zap.String("model", config.ModelName),
		zap.Int("max_length", config.MaxLength),
		zap.Int("batch_size", config.BatchSize),
		zap.Bool("cache_enabled", cache != nil))

	return &MLEmbeddingService{
		config:    config,
		logger:    logger,
		stats:     newStatsRecorder("ml", 0),
		cache:     cache,
		tokenizer: tokenizer,
		backend:   backend,
	}, nil
}

// GenerateEmbedding generates a single embedding using the ML model
func (s *MLEmbeddingService) GenerateEmbedding(ctx context.Context, text string) (*EmbeddingResult, error) {
	batch, err := s.GenerateBatchEmbeddings(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if batch.Embeddings[0] == nil {
		if len(batch.Errors) > 0 {
			return nil, batch.Errors[0]
		}
		return nil, ErrInferenceFailed
	}
	return &EmbeddingResult{
		Embedding:   batch.Embeddings[0],
		Duration:    batch.Duration,
		TokenCount:  batch.TotalTokens,
		ServiceType: "ml",
		CacheHit:    batch.CacheHits == 1,
	}, nil
}

// GenerateBatchEmbeddings generates embeddings for multiple texts. Cached
// texts skip inference; the rest are run through the backend in batches of
// config.BatchSize.
func (s *MLEmbeddingService) GenerateBatchEmbeddings(ctx context.Context, texts []string) (*BatchEmbeddingResult, error) {
	result := &BatchEmbeddingResult{
		Embeddings:  make([][]float32, len(texts)),
		ServiceType: "ml",
	}
	if len(texts) == 0 {
		return result, nil
	}
	start := time.Now()

	var pending []int
	for i, text := range texts {
		if s.cache != nil {
			cached, ok, err := s.cache.Get(ctx, text)
			if err != nil {
				s.logger.Debug("Embedding cache lookup failed", zap.Error(err))
			}
			if ok {
				result.Embeddings[i] = cached
				result.CacheHits++
				result.Successful++
				continue
			}
		}
		pending = append(pending, i)
	}

	for from := 0; from < len(pending); from += s.config.BatchSize {
		to := from + s.config.BatchSize
		if to > len(pending) {
			to = len(pending)
		}
		idx := pending[from:to]

		if err := ctx.Err(); err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("%w: %v", ErrTimeoutError, err))
			result.Failed += len(pending) - from
			break
		}

		if err := s.runBatch(ctx, texts, idx, result); err != nil {
			s.logger.Error("Failed to process embedding batch", zap.Error(err), zap.Int("batch_start", from))
			result.Errors = append(result.Errors, err)
		}
	}

	result.Duration = time.Since(start)
	s.stats.record(int64(result.Successful), int64(result.Failed), result.TotalTokens, result.CacheHits, result.Duration)

	s.logger.Debug("ML batch embedding generation completed",
		zap.Int("batch_size", len(texts)),
		zap.Int("successful", result.Successful),
		zap.Int("failed", result.Failed),
		zap.Int("cache_hits", result.CacheHits),
		zap.Duration("duration", result.Duration))

	return result, nil
}

func (s *MLEmbeddingService) runBatch(ctx context.Context, texts []string, idx []int, result *BatchEmbeddingResult) error {
	inputs := make([]*TokenizedInput, 0, len(idx))
	kept := make([]int, 0, len(idx))
	for _, i := range idx {
		input, err := s.tokenizer.Tokenize(texts[i])
		if err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("item %d: %w", i, err))
			result.Failed++
			continue
		}
		inputs = append(inputs, input)
		kept = append(kept, i)
	}
	if len(inputs) == 0 {
		return nil
	}

	runCtx, cancel := context.WithTimeout(ctx, s.config.ModelTimeout)
	defer cancel()

	vectors, err := s.backend.EmbedBatch(runCtx, inputs)
	if err != nil {
		result.Failed += len(kept)
		return fmt.Errorf("%w: %v", ErrInferenceFailed, err)
	}
	if len(vectors) != len(inputs) {
		result.Failed += len(kept)
		return fmt.Errorf("%w: backend returned %d vectors for %d inputs", ErrInferenceFailed, len(vectors), len(inputs))
	}

	fresh := make([]string, len(kept))
	for j, i := range kept {
		result.Embeddings[i] = vectors[j]
		result.TotalTokens += inputs[j].Length
		result.Successful++
		fresh[j] = texts[i]
	}

	if s.cache != nil {
		if err := s.cache.SetBatch(ctx, fresh, vectors); err != nil {
			s.logger.Warn("Failed to cache embeddings", zap.Error(err))
		}
	}
	return nil
}

// ComputeSimilarity computes cosine similarity between embeddings
func (s *MLEmbeddingService) ComputeSimilarity(vec1, vec2 []float32) float32 {
	return CosineSimilarity(vec1, vec2)
}

// GetStats returns model performance statistics
func (s *MLEmbeddingService) GetStats() *ModelStats {
	return s.stats.snapshot()
}

// Close releases the backend and the cache connection.
func (s *MLEmbeddingService) Close() error {
	s.logger.Info("Closing ML embedding service")

	var firstErr error
	if err := s.backend.Close(); err != nil {
		firstErr = err
	}
	if s.cache != nil {
		if err := s.cache.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
