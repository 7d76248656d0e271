package embeddings

import (
	"time"
)

// ModelConfig contains embedding model configuration
type ModelConfig struct {
	ModelName    string        `yaml:"model_name" mapstructure:"model_name"`       // "sentence-transformers/all-MiniLM-L6-v2"
	ModelPath    string        `yaml:"model_path" mapstructure:"model_path"`       // "./models/minilm-l6-v2.onnx"
	VocabPath    string        `yaml:"vocab_path" mapstructure:"vocab_path"`       // "./models/vocab.txt"
	MaxLength    int           `yaml:"max_length" mapstructure:"max_length"`       // 128
	BatchSize    int           `yaml:"batch_size" mapstructure:"batch_size"`       // 32
	ModelTimeout time.Duration `yaml:"model_timeout" mapstructure:"model_timeout"` // 30s
}

// EmbeddingResult represents the result of embedding generation
type EmbeddingResult struct {
	Embedding   []float32     `json:"embedding"`
	Duration    time.Duration `json:"duration"`
	TokenCount  int           `json:"token_count"`
	ServiceType string        `json:"service_type"`
	CacheHit    bool          `json:"cache_hit"`
}

// BatchEmbeddingResult represents the result of batch embedding generation.
// Embeddings is index-aligned with the input; failed items are nil.
type BatchEmbeddingResult struct {
	Embeddings  [][]float32   `json:"embeddings"`
	Duration    time.Duration `json:"duration"`
	TotalTokens int           `json:"total_tokens"`
	Successful  int           `json:"successful"`
	Failed      int           `json:"failed"`
	Errors      []error       `json:"-"`
	ServiceType string        `json:"service_type"`
	CacheHits   int           `json:"cache_hits"`
}

// ModelStats represents model performance statistics
type ModelStats struct {
	TotalInferences   int64         `json:"total_inferences"`
	TotalTokens       int64         `json:"total_tokens"`
	SuccessfulRuns    int64         `json:"successful_runs"`
	FailedRuns        int64         `json:"failed_runs"`
	CacheHits         int64         `json:"cache_hits"`
	AvgInferenceTime  time.Duration `json:"avg_inference_time"`
	ModelLoadTime     time.Duration `json:"model_load_time"`
	LastInferenceTime time.Time     `json:"last_inference_time"`
	CacheHitRatio     float64       `json:"cache_hit_ratio"`
	ErrorRate         float64       `json:"error_rate"`
	ServiceType       string        `json:"service_type"`
	StartTime         time.Time     `json:"start_time"`
}

// EmbeddingError is a categorized embedding failure.
type EmbeddingError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

func (e *EmbeddingError) Error() string {
	return e.Message
}

// Common error types
var (
	ErrInvalidInput       = &EmbeddingError{Type: "invalid_input", Message: "invalid input text", Code: 1001}
	ErrModelNotLoaded     = &EmbeddingError{Type: "model_not_loaded", Message: "model not loaded", Code: 1002}
	ErrInferenceFailed    = &EmbeddingError{Type: "inference_failed", Message: "inference failed", Code: 1003}
	ErrConfigError        = &EmbeddingError{Type: "config_error", Message: "configuration error", Code: 1005}
	ErrTimeoutError       = &EmbeddingError{Type: "timeout_error", Message: "operation timed out", Code: 1007}
	ErrTokenizationFailed = &EmbeddingError{Type: "tokenization_failed", Message: "tokenization failed", Code: 1008}
)
