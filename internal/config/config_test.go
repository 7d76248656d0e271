package config

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/raaihank/fin-sentinel/internal/embeddings"
	"github.com/raaihank/fin-sentinel/internal/llm"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SENTINEL_PRIVACY_SALT", "env-salt")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "env-salt", cfg.Privacy.Salt)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 60*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, llm.ProviderMock, cfg.Model.Provider)
	assert.Equal(t, embeddings.HashEmbedding, cfg.Embeddings.Type)
	assert.Equal(t, "memory", cfg.Retrieval.Backend)
	assert.Equal(t, 3, cfg.Retrieval.TopK)
	assert.True(t, cfg.Ingest.ResetOnUpload)
	assert.True(t, cfg.WebSocket.Events.BroadcastVerdicts)
}

func TestLoadRequiresSalt(t *testing.T) {
	t.Setenv("SENTINEL_PRIVACY_SALT", "")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "salt")
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
privacy:
  salt: file-salt
logging:
  level: debug
  format: console
model:
  provider: ollama
  model: llama3.1
retrieval:
  top_k: 5
embeddings:
  model:
    max_length: 64
`)
	t.Setenv("SENTINEL_RATE_LIMIT_BURST", "3")
	t.Setenv("SENTINEL_SERVER_REQUEST_TIMEOUT", "5s")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "file-salt", cfg.Privacy.Salt)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, llm.ProviderOllama, cfg.Model.Provider)
	assert.Equal(t, "llama3.1", cfg.Model.Model)
	assert.Equal(t, 5, cfg.Retrieval.TopK)
	assert.Equal(t, 64, cfg.Embeddings.Model.MaxLength)
	assert.Equal(t, 32, cfg.Embeddings.Model.BatchSize, "sibling keys keep defaults")
	assert.Equal(t, 3, cfg.RateLimit.Burst)
	assert.Equal(t, 5*time.Second, cfg.Server.RequestTimeout)

	lc := cfg.Logging.LoggerConfig()
	assert.Equal(t, "console", lc.Format)
	assert.Nil(t, lc.File)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"InvalidLevel", "privacy:\n  salt: s\nlogging:\n  level: loud\n"},
		{"InvalidFormat", "privacy:\n  salt: s\nlogging:\n  format: xml\n"},
		{"InvalidPort", "privacy:\n  salt: s\nserver:\n  port: 70000\n"},
		{"InvalidBackend", "privacy:\n  salt: s\nretrieval:\n  backend: faiss\n"},
		{"InvalidRateLimit", "privacy:\n  salt: s\nrate_limit:\n  requests_per_second: 0\n"},
		{"Malformed", "privacy: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}

	t.Run("MissingFile", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)
	})
}

func TestWatch(t *testing.T) {
	path := writeConfig(t, "privacy:\n  salt: s\nlogging:\n  level: info\n")

	loader := NewLoader()
	_, err := loader.Load(path)
	require.NoError(t, err)
	assert.Equal(t, path, loader.ConfigFile())

	var level atomic.Value
	loader.Watch(zap.NewNop(), func(c *Config) {
		level.Store(c.Logging.Level)
	})

	// Give the watcher time to register before editing.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("privacy:\n  salt: s\nlogging:\n  level: debug\n"), 0o600))

	assert.Eventually(t, func() bool {
		v, _ := level.Load().(string)
		return v == "debug"
	}, 5*time.Second, 20*time.Millisecond)
}
