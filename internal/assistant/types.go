package assistant

import (
	"context"
	"errors"

	"github.com/raaihank/fin-sentinel/internal/privacy"
	"github.com/raaihank/fin-sentinel/internal/safety"
)

// Retriever returns previously masked context snippets for a masked query.
type Retriever interface {
	Retrieve(ctx context.Context, maskedQuery string, topK int) ([]string, error)
}

// Model produces a completion for a fully composed, masked prompt. Options
// are forwarded untouched.
type Model interface {
	Generate(ctx context.Context, prompt string, options map[string]any) (string, error)
}

// Request is one inbound question.
type Request struct {
	Prompt       string
	UserID       string
	UseRetrieval bool
	TopK         int
	Options      map[string]any
}

// Answer is the envelope returned to callers. Every text field has passed
// through masking and the output safety gate.
type Answer struct {
	Status     safety.Status     `json:"status"`
	Summary    string            `json:"summary"`
	Answer     string            `json:"answer"`
	Actionable []string          `json:"actionable"`
	Confidence safety.Confidence `json:"confidence"`
	Sources    []string          `json:"sources"`
	PromptHash string            `json:"prompt_hash"`
	Findings   []privacy.Finding `json:"findings"`
}

// ErrGeneration matches every *GenerationError.
var ErrGeneration = errors.New("generation failed")

// GenerationError reports a failed model call. It is never replaced by a
// fallback answer.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	return "generation failed: " + e.Err.Error()
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrGeneration) true for any generation failure.
func (e *GenerationError) Is(target error) bool {
	return target == ErrGeneration
}
