package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMock(t *testing.T) {
	m := NewMock()

	out, err := m.Generate(context.Background(), "short prompt", nil)
	require.NoError(t, err)
	assert.Equal(t, "short prompt"+mockSummary, out)

	long := strings.Repeat("a", 2500)
	out, err = m.Generate(context.Background(), long, nil)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("a", 2000)+"..."+mockSummary, out)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = m.Generate(ctx, "x", nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNew(t *testing.T) {
	m, err := New(Config{Provider: ProviderMock}, nil)
	require.NoError(t, err)
	assert.IsType(t, &Mock{}, m)

	m, err = New(Config{Provider: ProviderOllama, Model: "llama3"}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &Ollama{}, m)

	_, err = New(Config{Provider: ProviderOllama}, nil)
	assert.Error(t, err)

	_, err = New(Config{Provider: "gpt"}, nil)
	assert.Error(t, err)
}

func TestOllamaGenerate(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		var got generateRequest
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/generate", r.URL.Path)
			assert.Equal(t, http.MethodPost, r.Method)
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"model":"llama3","response":"Your balance is 55800.","done":true,"eval_count":7}`))
		}))
		defer server.Close()

		o, err := NewOllama(Config{BaseURL: server.URL + "/", Model: "llama3"}, server.Client(), nil)
		require.NoError(t, err)

		out, err := o.Generate(context.Background(), "masked prompt", map[string]any{"temperature": 0.1})
		require.NoError(t, err)
		assert.Equal(t, "Your balance is 55800.", out)
		assert.Equal(t, "llama3", got.Model)
		assert.Equal(t, "masked prompt", got.Prompt)
		assert.False(t, got.Stream)
		assert.Equal(t, 0.1, got.Options["temperature"])
	})

	t.Run("ErrorStatus", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"model 'llama3' not found"}`))
		}))
		defer server.Close()

		o, err := NewOllama(Config{BaseURL: server.URL, Model: "llama3"}, server.Client(), nil)
		require.NoError(t, err)

		_, err = o.Generate(context.Background(), "p", nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "status 404")
		assert.Contains(t, err.Error(), "not found")
	})

	t.Run("MissingResponse", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"done":true}`))
		}))
		defer server.Close()

		o, err := NewOllama(Config{BaseURL: server.URL, Model: "llama3"}, server.Client(), nil)
		require.NoError(t, err)

		_, err = o.Generate(context.Background(), "p", nil)
		assert.Error(t, err)
	})

	t.Run("InvalidJSON", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`not json`))
		}))
		defer server.Close()

		o, err := NewOllama(Config{BaseURL: server.URL, Model: "llama3"}, server.Client(), nil)
		require.NoError(t, err)

		_, err = o.Generate(context.Background(), "p", nil)
		assert.Error(t, err)
	})

	t.Run("ContextDeadline", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		}))
		defer server.Close()

		o, err := NewOllama(Config{BaseURL: server.URL, Model: "llama3"}, server.Client(), nil)
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		_, err = o.Generate(ctx, "p", nil)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}
