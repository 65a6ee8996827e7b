package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/query-router/backend/internal/apperrors"
)

func newFakeServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func chatHandler(t *testing.T, content string, seen *[]string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)

		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 1)
		if seen != nil {
			*seen = append(*seen, req.Messages[0].Content)
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"model":   req.Model,
			"choices": []map[string]any{{"index": 0, "message": map[string]string{"role": "assistant", "content": content}, "finish_reason": "stop"}},
			"usage":   map[string]int{"prompt_tokens": 12, "completion_tokens": 3, "total_tokens": 15},
		})
	}
}

func TestClient_Generate(t *testing.T) {
	var prompts []string
	srv := newFakeServer(t, chatHandler(t, "sql_query", &prompts))

	client := NewClient(Config{BaseURL: srv.URL + "/v1", APIKey: "ollama", Model: "llama3", Timeout: time.Second})
	got, err := client.Generate(context.Background(), "classify this")

	require.NoError(t, err)
	assert.Equal(t, "sql_query", got)
	assert.Equal(t, []string{"classify this"}, prompts)
}

func TestClient_GenerateTimeout(t *testing.T) {
	srv := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})

	client := NewClient(Config{BaseURL: srv.URL + "/v1", Model: "llama3", Timeout: 50 * time.Millisecond})
	_, err := client.Generate(context.Background(), "slow")

	assert.ErrorIs(t, err, apperrors.ErrGenerationTimeout)
	assert.ErrorIs(t, err, apperrors.ErrCollaboratorUnavailable)
}

func TestClient_GenerateServerError(t *testing.T) {
	calls := 0
	srv := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"model not loaded"}}`))
	})

	client := NewClient(Config{BaseURL: srv.URL + "/v1", Model: "llama3", Timeout: time.Second})
	_, err := client.Generate(context.Background(), "hello")

	assert.ErrorIs(t, err, apperrors.ErrCollaboratorUnavailable)
	assert.Equal(t, 1, calls, "generation is never retried")
}

type memoryCache struct {
	mu   sync.Mutex
	data map[string][]float32
}

func (m *memoryCache) GetEmbedding(_ context.Context, key string) ([]float32, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memoryCache) SetEmbedding(_ context.Context, key string, v []float32, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = v
	return nil
}

func TestEmbedder_CachesVectors(t *testing.T) {
	calls := 0
	srv := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		require.Equal(t, "/v1/embeddings", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   []map[string]any{{"object": "embedding", "index": 0, "embedding": []float32{0.1, 0.2, 0.3}}},
			"model":  "nomic-embed-text",
			"usage":  map[string]int{"prompt_tokens": 4, "total_tokens": 4},
		})
	})

	cache := &memoryCache{data: map[string][]float32{}}
	embedder := NewEmbedder(EmbedderConfig{BaseURL: srv.URL + "/v1", Model: "nomic-embed-text", Cache: cache, CacheTTL: time.Minute})

	first, err := embedder.Embed(context.Background(), "계약 기간")
	require.NoError(t, err)
	second, err := embedder.Embed(context.Background(), "계약 기간")
	require.NoError(t, err)

	assert.Equal(t, []float32{0.1, 0.2, 0.3}, first)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, calls)
}

func TestEmbedder_CountMismatch(t *testing.T) {
	srv := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": []map[string]any{}})
	})

	embedder := NewEmbedder(EmbedderConfig{BaseURL: srv.URL + "/v1", Model: "nomic-embed-text"})
	_, err := embedder.Embed(context.Background(), "a")
	assert.ErrorIs(t, err, apperrors.ErrCollaboratorUnavailable)
}

func TestGeneratorFunc(t *testing.T) {
	var g Generator = GeneratorFunc(func(_ context.Context, prompt string) (string, error) {
		return "echo: " + prompt, nil
	})
	got, err := g.Generate(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "echo: hi", got)
}
