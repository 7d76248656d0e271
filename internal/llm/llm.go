// Package llm contains the language model adapters used by the assistant.
// Adapters only ever receive masked prompts.
package llm

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Model generates a completion for a prompt.
type Model interface {
	Generate(ctx context.Context, prompt string, options map[string]any) (string, error)
}

// Provider names a model backend.
type Provider string

const (
	ProviderMock   Provider = "mock"
	ProviderOllama Provider = "ollama"
)

// Config selects and configures a model backend.
type Config struct {
	Provider Provider      `yaml:"provider" mapstructure:"provider"`
	BaseURL  string        `yaml:"base_url" mapstructure:"base_url"`
	Model    string        `yaml:"model" mapstructure:"model"`
	Timeout  time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// DefaultConfig returns the development defaults.
func DefaultConfig() Config {
	return Config{
		Provider: ProviderMock,
		BaseURL:  defaultOllamaURL,
		Model:    "llama3",
		Timeout:  60 * time.Second,
	}
}

// New creates the model selected by config.Provider.
func New(config Config, logger *zap.Logger) (Model, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	switch config.Provider {
	case ProviderMock, "":
		logger.Warn("Using mock language model, development only")
		return NewMock(), nil
	case ProviderOllama:
		return NewOllama(config, nil, logger)
	default:
		return nil, fmt.Errorf("unknown model provider: %s", config.Provider)
	}
}
