package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

const (
	defaultOllamaURL = "http://localhost:11434"
	maxErrorBody     = 512
)

// Ollama calls the native /api/generate endpoint of an Ollama server.
type Ollama struct {
	client  *http.Client
	baseURL string
	model   string
	logger  *zap.Logger
}

type generateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

// NewOllama creates an Ollama adapter. A nil client gets one with
// config.Timeout.
func NewOllama(config Config, client *http.Client, logger *zap.Logger) (*Ollama, error) {
	if config.Model == "" {
		return nil, fmt.Errorf("ollama: model name is required")
	}
	baseURL := strings.TrimRight(config.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}
	if client == nil {
		client = &http.Client{Timeout: config.Timeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	logger.Info("Ollama model configured",
		zap.String("base_url", baseURL),
		zap.String("model", config.Model))

	return &Ollama{
		client:  client,
		baseURL: baseURL,
		model:   config.Model,
		logger:  logger,
	}, nil
}

// Generate sends a non-streaming generate request and returns the response text.
func (o *Ollama) Generate(ctx context.Context, prompt string, options map[string]any) (string, error) {
	body, err := json.Marshal(generateRequest{
		Model:   o.model,
		Prompt:  prompt,
		Stream:  false,
		Options: options,
	})
	if err != nil {
		return "", fmt.Errorf("ollama: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("ollama: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama: request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("ollama: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := gjson.GetBytes(data, "error").String()
		if msg == "" {
			msg = truncate(string(data), maxErrorBody)
		}
		return "", fmt.Errorf("ollama: status %d: %s", resp.StatusCode, msg)
	}
	if !gjson.ValidBytes(data) {
		return "", fmt.Errorf("ollama: invalid JSON response")
	}

	result := gjson.GetBytes(data, "response")
	if !result.Exists() {
		return "", fmt.Errorf("ollama: response field missing")
	}

	o.logger.Debug("Ollama generation completed",
		zap.Duration("duration", time.Since(start)),
		zap.Int64("eval_count", gjson.GetBytes(data, "eval_count").Int()),
		zap.Int("response_length", len(result.String())))

	return result.String(), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
