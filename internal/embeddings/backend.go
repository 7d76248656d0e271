package embeddings

import (
	"context"
)

// TransformerBackend runs transformer inference for the ML embedding service.
// NewTransformerBackend is provided by build-tagged files: backend_onnx.go
// with the onnx tag, backend_stub.go without it.
type TransformerBackend interface {
	// EmbedBatch returns one EmbeddingDimensions-long vector per input.
	EmbedBatch(ctx context.Context, batch []*TokenizedInput) ([][]float32, error)
	IsReady() bool
	Close() error
}
