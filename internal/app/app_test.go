package app

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raaihank/fin-sentinel/internal/assistant"
	"github.com/raaihank/fin-sentinel/internal/config"
	"github.com/raaihank/fin-sentinel/internal/privacy"
	"github.com/raaihank/fin-sentinel/internal/vector"
)

func testConfig() *config.Config {
	cfg := config.GetDefaults()
	cfg.Privacy.Salt = "app-test-salt"
	return cfg
}

func TestNewDefaults(t *testing.T) {
	a, err := New(testConfig(), nil)
	require.NoError(t, err)
	defer a.Close()

	assert.IsType(t, &vector.MemoryIndex{}, a.Index)

	ctx := context.Background()
	_, err = a.Ingest.Ingest(ctx, "april.csv", strings.NewReader(
		"date,narration,closing balance\n01/04/2024,SALARY CREDIT 123456789012,72000\n"), true)
	require.NoError(t, err)

	answer, err := a.Assistant.Answer(ctx, assistant.Request{
		Prompt:       "salary credit balance",
		UseRetrieval: true,
		TopK:         3,
	})
	require.NoError(t, err)
	assert.NotContains(t, answer.Answer, "123456789012")
	assert.Contains(t, answer.Answer, "Context:")
}

func TestNewErrors(t *testing.T) {
	t.Run("EmptySalt", func(t *testing.T) {
		cfg := testConfig()
		cfg.Privacy.Salt = ""
		_, err := New(cfg, nil)
		assert.ErrorIs(t, err, privacy.ErrEmptySalt)
	})

	t.Run("UnknownProvider", func(t *testing.T) {
		cfg := testConfig()
		cfg.Model.Provider = "gpt"
		_, err := New(cfg, nil)
		assert.Error(t, err)
	})

	t.Run("UnknownBackend", func(t *testing.T) {
		cfg := testConfig()
		cfg.Retrieval.Backend = "faiss"
		_, err := New(cfg, nil)
		assert.Error(t, err)
	})

	t.Run("InvalidEmbeddings", func(t *testing.T) {
		cfg := testConfig()
		cfg.Embeddings.Type = "word2vec"
		_, err := New(cfg, nil)
		assert.Error(t, err)
	})
}

func TestRetrievalDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Retrieval.Enabled = false

	a, err := New(cfg, nil)
	require.NoError(t, err)
	defer a.Close()

	ctx := context.Background()
	_, err = a.Ingest.Ingest(ctx, "a.csv", strings.NewReader("date,narration\n01/04/2024,SALARY\n"), true)
	require.NoError(t, err)

	answer, err := a.Assistant.Answer(ctx, assistant.Request{Prompt: "salary", UseRetrieval: true, TopK: 3})
	require.NoError(t, err)
	assert.NotContains(t, answer.Answer, "Context:")
}
