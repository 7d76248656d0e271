//go:build onnx

package embeddings

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"
)

// inputKind identifies which tokenizer output feeds a model input.
type inputKind int

const (
	inputIDs inputKind = iota
	inputMask
	inputTypes
)

// OnnxBackend implements TransformerBackend with ONNX Runtime.
type OnnxBackend struct {
	session    *ort.DynamicAdvancedSession
	inputKinds []inputKind
	logger     *zap.Logger
	mu         sync.RWMutex
}

// NewTransformerBackend opens modelPath with ONNX Runtime. The shared library
// location can be set with ONNXRUNTIME_SHARED_LIB.
func NewTransformerBackend(logger *zap.Logger, modelPath string) (TransformerBackend, error) {
	if shlib := os.Getenv("ONNXRUNTIME_SHARED_LIB"); shlib != "" {
		ort.SetSharedLibraryPath(shlib)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("%w: onnx runtime init: %v", ErrModelNotLoaded, err)
		}
	}

	inputsInfo, outputsInfo, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("%w: inspect %s: %v", ErrModelNotLoaded, modelPath, err)
	}
	if len(outputsInfo) == 0 {
		return nil, fmt.Errorf("%w: model %s has no outputs", ErrModelNotLoaded, modelPath)
	}

	names := make([]string, 0, len(inputsInfo))
	kinds := make([]inputKind, 0, len(inputsInfo))
	for _, info := range inputsInfo {
		name := strings.ToLower(info.Name)
		switch {
		case strings.Contains(name, "mask"):
			kinds = append(kinds, inputMask)
		case strings.Contains(name, "type") || strings.Contains(name, "segment"):
			kinds = append(kinds, inputTypes)
		default:
			kinds = append(kinds, inputIDs)
		}
		names = append(names, info.Name)
	}

	output := outputsInfo[0].Name
	sess, err := ort.NewDynamicAdvancedSession(modelPath, names, []string{output}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: session: %v", ErrModelNotLoaded, err)
	}

	logger.Info("ONNX Runtime backend ready",
		zap.String("model", modelPath),
		zap.Strings("inputs", names),
		zap.String("output", output))

	return &OnnxBackend{session: sess, inputKinds: kinds, logger: logger}, nil
}

// IsReady reports whether the backend is initialized.
func (b *OnnxBackend) IsReady() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.session != nil
}

// Close releases session and environment resources.
func (b *OnnxBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.session == nil {
		return nil
	}
	err := b.session.Destroy()
	b.session = nil
	if derr := ort.DestroyEnvironment(); err == nil {
		err = derr
	}
	return err
}

// EmbedBatch runs one inference over the batch. Token-level outputs are mean
// pooled over the attention mask.
func (b *OnnxBackend) EmbedBatch(ctx context.Context, batch []*TokenizedInput) ([][]float32, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.session == nil {
		return nil, ErrModelNotLoaded
	}
	if len(batch) == 0 {
		return [][]float32{}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	n := len(batch)
	seqLen := len(batch[0].InputIDs)
	flat := map[inputKind][]int64{
		inputIDs:   make([]int64, 0, n*seqLen),
		inputMask:  make([]int64, 0, n*seqLen),
		inputTypes: make([]int64, 0, n*seqLen),
	}
	for _, t := range batch {
		for i := 0; i < seqLen; i++ {
			flat[inputIDs] = append(flat[inputIDs], int64(t.InputIDs[i]))
			flat[inputMask] = append(flat[inputMask], int64(t.AttentionMask[i]))
			flat[inputTypes] = append(flat[inputTypes], int64(t.TokenTypeIDs[i]))
		}
	}

	shape := ort.NewShape(int64(n), int64(seqLen))
	inputs := make([]ort.Value, 0, len(b.inputKinds))
	for _, kind := range b.inputKinds {
		tensor, err := ort.NewTensor(shape, flat[kind])
		if err != nil {
			return nil, fmt.Errorf("%w: input tensor: %v", ErrInferenceFailed, err)
		}
		defer tensor.Destroy()
		inputs = append(inputs, tensor)
	}

	outputs := []ort.Value{nil}
	if err := b.session.Run(inputs, outputs); err != nil {
		return nil, fmt.Errorf("%w: onnx run: %v", ErrInferenceFailed, err)
	}
	defer outputs[0].Destroy()

	out, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("%w: unexpected output type", ErrInferenceFailed)
	}
	return poolOutput(out.GetData(), out.GetShape(), batch)
}

func poolOutput(data []float32, shape ort.Shape, batch []*TokenizedInput) ([][]float32, error) {
	n := len(batch)
	res := make([][]float32, n)

	switch len(shape) {
	case 2: // [batch, dims], already pooled
		dims := int(shape[1])
		if dims != EmbeddingDimensions || len(data) != n*dims {
			return nil, fmt.Errorf("%w: unexpected output shape %v", ErrInferenceFailed, shape)
		}
		for i := range res {
			res[i] = NormalizeEmbedding(append([]float32(nil), data[i*dims:(i+1)*dims]...))
		}
	case 3: // [batch, seq, dims]
		seq, dims := int(shape[1]), int(shape[2])
		if dims != EmbeddingDimensions || len(data) != n*seq*dims {
			return nil, fmt.Errorf("%w: unexpected output shape %v", ErrInferenceFailed, shape)
		}
		for i := range res {
			pooled := make([]float32, dims)
			var count float32
			for s := 0; s < seq; s++ {
				if batch[i].AttentionMask[s] == 0 {
					continue
				}
				count++
				offset := (i*seq + s) * dims
				for d := 0; d < dims; d++ {
					pooled[d] += data[offset+d]
				}
			}
			if count > 0 {
				for d := range pooled {
					pooled[d] /= count
				}
			}
			res[i] = NormalizeEmbedding(pooled)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported output shape %v", ErrInferenceFailed, shape)
	}
	return res, nil
}
