//go:build !onnx

package embeddings

import (
	"fmt"

	"go.uber.org/zap"
)

// NewTransformerBackend reports that this binary was built without ONNX
// Runtime support.
func NewTransformerBackend(logger *zap.Logger, modelPath string) (TransformerBackend, error) {
	return nil, fmt.Errorf("%w: built without the onnx tag, cannot load %s", ErrModelNotLoaded, modelPath)
}
