package embeddings

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/raaihank/fin-sentinel/internal/cache"
)

// ServiceType represents the type of embedding service
type ServiceType string

const (
	// HashEmbedding uses deterministic feature-hashed bag-of-words embeddings
	HashEmbedding ServiceType = "hash"

	// MLEmbedding uses a transformer model through ONNX Runtime
	MLEmbedding ServiceType = "ml"
)

// ServiceConfig contains configuration for embedding service selection
type ServiceConfig struct {
	Type         ServiceType  `yaml:"type" mapstructure:"type"`
	Model        ModelConfig  `yaml:"model" mapstructure:"model"`
	CacheEnabled bool         `yaml:"cache_enabled" mapstructure:"cache_enabled"`
	Cache        cache.Config `yaml:"cache" mapstructure:"cache"`
}

// DefaultServiceConfig returns the hash service configuration.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		Type: HashEmbedding,
		Model: ModelConfig{
			ModelName:    "sentence-transformers/all-MiniLM-L6-v2",
			ModelPath:    "./models/all-MiniLM-L6-v2.onnx",
			VocabPath:    "./models/vocab.txt",
			MaxLength:    128,
			BatchSize:    32,
			ModelTimeout: 30 * time.Second,
		},
		Cache: cache.DefaultConfig(),
	}
}

// Factory creates embedding services based on configuration
type Factory struct {
	logger *zap.Logger
}

// NewFactory creates a new embedding service factory
func NewFactory(logger *zap.Logger) *Factory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Factory{logger: logger}
}

// CreateService creates an embedding service based on the configuration
func (f *Factory) CreateService(config ServiceConfig) (EmbeddingService, error) {
	if err := ValidateServiceConfig(config); err != nil {
		return nil, err
	}

	switch config.Type {
	case HashEmbedding:
		return NewHashEmbeddingService(&config.Model, f.logger)

	case MLEmbedding:
		vocab, err := LoadVocabulary(config.Model.VocabPath)
		if err != nil {
			return nil, err
		}
		tokenizer, err := NewTokenizer(vocab, config.Model.MaxLength)
		if err != nil {
			return nil, err
		}
		backend, err := NewTransformerBackend(f.logger, config.Model.ModelPath)
		if err != nil {
			return nil, err
		}

		var embCache EmbeddingCache
		if config.CacheEnabled {
			c, err := cache.NewEmbeddingCache(config.Cache, f.logger)
			if err != nil {
				f.logger.Warn("Redis connection failed, disabling embedding cache", zap.Error(err))
			} else {
				embCache = c
			}
		}

		service, err := NewMLEmbeddingService(config.Model, f.logger, tokenizer, backend, embCache)
		if err != nil {
			_ = backend.Close()
			return nil, err
		}
		return service, nil

	default:
		return nil, fmt.Errorf("unknown embedding service type: %s", config.Type)
	}
}

// ValidateServiceConfig validates the embedding service configuration
func ValidateServiceConfig(config ServiceConfig) error {
	switch config.Type {
	case HashEmbedding:
		return nil
	case MLEmbedding:
	default:
		return fmt.Errorf("%w: invalid service type %q (must be hash or ml)", ErrConfigError, config.Type)
	}

	if config.Model.ModelPath == "" {
		return fmt.Errorf("%w: model_path is required for ml embeddings", ErrConfigError)
	}
	if config.Model.VocabPath == "" {
		return fmt.Errorf("%w: vocab_path is required for ml embeddings", ErrConfigError)
	}
	if config.Model.MaxLength <= 0 {
		return fmt.Errorf("%w: max_length must be positive", ErrConfigError)
	}
	if config.Model.BatchSize <= 0 {
		return fmt.Errorf("%w: batch_size must be positive", ErrConfigError)
	}
	if config.CacheEnabled && config.Cache.RedisURL == "" {
		return fmt.Errorf("%w: cache.redis_url is required when cache_enabled is true", ErrConfigError)
	}
	return nil
}
