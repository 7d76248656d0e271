// Package app wires the configured components together and owns their
// lifecycle.
package app

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/raaihank/fin-sentinel/internal/assistant"
	"github.com/raaihank/fin-sentinel/internal/config"
	"github.com/raaihank/fin-sentinel/internal/embeddings"
	"github.com/raaihank/fin-sentinel/internal/ingest"
	"github.com/raaihank/fin-sentinel/internal/llm"
	"github.com/raaihank/fin-sentinel/internal/logger"
	"github.com/raaihank/fin-sentinel/internal/privacy"
	"github.com/raaihank/fin-sentinel/internal/vector"
)

// App holds the components built from one configuration.
type App struct {
	Masker    *privacy.Masker
	Embedder  embeddings.EmbeddingService
	Index     vector.Index
	Assistant *assistant.Pipeline
	Ingest    *ingest.Pipeline
}

// New builds every component. The caller must call Close.
func New(cfg *config.Config, log *logger.Logger) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: config is required")
	}
	if log == nil {
		log = logger.NewNop()
	}

	// The salt is consumed here and never read from configuration again.
	pseudonymizer, err := privacy.NewPseudonymizer([]byte(cfg.Privacy.Salt))
	if err != nil {
		return nil, err
	}
	masker := privacy.NewMasker(pseudonymizer, log.WithComponent("privacy"))

	model, err := llm.New(cfg.Model, log.WithComponent("llm").Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create model: %w", err)
	}

	embedder, err := embeddings.NewFactory(log.WithComponent("embeddings").Logger).CreateService(cfg.Embeddings)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding service: %w", err)
	}

	index, err := newIndex(cfg, log.WithComponent("vector").Logger)
	if err != nil {
		_ = embedder.Close()
		return nil, err
	}

	var retriever assistant.Retriever
	if cfg.Retrieval.Enabled {
		retriever = vector.NewRetriever(index, embedder, cfg.Retrieval.MinSimilarity, log.WithComponent("retrieval").Logger)
	}

	return &App{
		Masker:    masker,
		Embedder:  embedder,
		Index:     index,
		Assistant: assistant.NewPipeline(masker, model, retriever, log),
		Ingest:    ingest.NewPipeline(masker, embedder, index, cfg.Ingest, log.WithComponent("ingest").Logger),
	}, nil
}

func newIndex(cfg *config.Config, log *zap.Logger) (vector.Index, error) {
	switch cfg.Retrieval.Backend {
	case "pgvector":
		store, err := vector.NewStore(&cfg.Database, embeddings.EmbeddingDimensions, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create vector store: %w", err)
		}
		return store, nil
	case "memory", "":
		return vector.NewMemoryIndex(embeddings.EmbeddingDimensions, log), nil
	default:
		return nil, fmt.Errorf("unknown retrieval backend: %s", cfg.Retrieval.Backend)
	}
}

// Close releases the embedding service and the index.
func (a *App) Close() error {
	var errs []error
	if a.Embedder != nil {
		if err := a.Embedder.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close embedding service: %w", err))
		}
	}
	if a.Index != nil {
		if err := a.Index.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close index: %w", err))
		}
	}
	return errors.Join(errs...)
}
