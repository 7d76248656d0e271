package llm

import "context"

const (
	mockPromptLimit = 2000
	mockSummary     = "\n\n[MockModel] Generated safe summary based on input (development only)."
)

// Mock echoes the prompt back with a fixed summary line.
type Mock struct{}

// NewMock returns the development model.
func NewMock() *Mock {
	return &Mock{}
}

// Generate echoes prompt, truncated to 2000 bytes, followed by the summary.
func (m *Mock) Generate(ctx context.Context, prompt string, _ map[string]any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(prompt) >= mockPromptLimit {
		prompt = prompt[:mockPromptLimit] + "..."
	}
	return prompt + mockSummary, nil
}
