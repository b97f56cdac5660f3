package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"digital.vasic.snakerag/internal/config"
)

func TestNormalize(t *testing.T) {
	t.Run("scales to unit length", func(t *testing.T) {
		v := []float32{3, 4}
		normalize(v)
		assert.InDelta(t, 0.6, v[0], 1e-6)
		assert.InDelta(t, 0.8, v[1], 1e-6)
	})

	t.Run("zero vector unchanged", func(t *testing.T) {
		v := []float32{0, 0, 0}
		normalize(v)
		assert.Equal(t, []float32{0, 0, 0}, v)
	})
}

func TestNewUnknownProvider(t *testing.T) {
	cfg := config.Default().Embedding
	cfg.Provider = "cohere"
	_, err := New(cfg, nil)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func openAIServer(t *testing.T, requests *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		var body struct {
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		data := make([]map[string]any, len(body.Input))
		for i := range body.Input {
			// Unnormalized on purpose so the test can observe the
			// boundary normalization. Reverse order exercises the
			// index-based placement.
			idx := len(body.Input) - 1 - i
			data[i] = map[string]any{
				"object":    "embedding",
				"index":     idx,
				"embedding": []float32{3 * float32(idx+1), 4 * float32(idx+1)},
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   data,
			"model":  "test-model",
		})
	}))
}

func TestOpenAIServiceEmbed(t *testing.T) {
	var requests atomic.Int32
	server := openAIServer(t, &requests)
	defer server.Close()

	cfg := config.EmbeddingConfig{
		Provider:  "openai",
		APIKey:    "test-key",
		BaseURL:   server.URL + "/v1",
		Model:     "intfloat/multilingual-e5-small",
		Dimension: 2,
		BatchSize: 2,
	}
	svc, err := NewOpenAIService(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, "openai/intfloat/multilingual-e5-small", svc.Name())
	assert.Equal(t, 2, svc.Dimension())

	vectors, err := svc.Embed(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	assert.Equal(t, int32(2), requests.Load(), "three texts at batch size two means two requests")

	for _, vec := range vectors {
		require.Len(t, vec, 2)
		assert.InDelta(t, 1.0, float64(vec[0]*vec[0]+vec[1]*vec[1]), 1e-5, "vectors are unit length")
	}
	// Every response vector is a scaled (3, 4), so after normalization all
	// vectors collapse to (0.6, 0.8) regardless of placement.
	assert.InDelta(t, 0.6, vectors[0][0], 1e-5)
	assert.InDelta(t, 0.8, vectors[0][1], 1e-5)
}

func TestOpenAIServiceEmbedQuery(t *testing.T) {
	var requests atomic.Int32
	server := openAIServer(t, &requests)
	defer server.Close()

	svc, err := NewOpenAIService(config.EmbeddingConfig{
		APIKey:    "test-key",
		BaseURL:   server.URL + "/v1",
		Model:     "intfloat/multilingual-e5-small",
		Dimension: 2,
	}, nil)
	require.NoError(t, err)

	vec, err := svc.EmbedQuery(context.Background(), "what do cobras eat")
	require.NoError(t, err)
	assert.InDelta(t, 0.6, vec[0], 1e-5)
	assert.InDelta(t, 0.8, vec[1], 1e-5)
}

func TestOpenAIServiceDimensionMismatch(t *testing.T) {
	var requests atomic.Int32
	server := openAIServer(t, &requests)
	defer server.Close()

	svc, err := NewOpenAIService(config.EmbeddingConfig{
		APIKey:    "test-key",
		BaseURL:   server.URL + "/v1",
		Model:     "intfloat/multilingual-e5-small",
		Dimension: 384,
	}, nil)
	require.NoError(t, err)

	_, err = svc.Embed(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not match configured")
}

func TestOpenAIServiceRequiresModel(t *testing.T) {
	_, err := NewOpenAIService(config.EmbeddingConfig{APIKey: "k"}, nil)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestOpenAIServiceEmptyInput(t *testing.T) {
	var requests atomic.Int32
	server := openAIServer(t, &requests)
	defer server.Close()

	svc, err := NewOpenAIService(config.EmbeddingConfig{
		APIKey:    "test-key",
		BaseURL:   server.URL + "/v1",
		Model:     "m",
		Dimension: 2,
	}, nil)
	require.NoError(t, err)

	vectors, err := svc.Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vectors)
	assert.Equal(t, int32(0), requests.Load())
}

func TestOllamaServiceEmbed(t *testing.T) {
	var prompts []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embeddings", r.URL.Path)
		var body struct {
			Model  string `json:"model"`
			Prompt string `json:"prompt"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		prompts = append(prompts, body.Prompt)
		_ = json.NewEncoder(w).Encode(map[string]any{"embedding": []float64{3, 4}})
	}))
	defer server.Close()

	svc, err := NewOllamaService(config.EmbeddingConfig{
		Provider:  "ollama",
		BaseURL:   server.URL,
		Model:     "all-minilm",
		Dimension: 2,
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "ollama/all-minilm", svc.Name())

	vectors, err := svc.Embed(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, []string{"first", "second"}, prompts)
	assert.InDelta(t, 0.6, vectors[0][0], 1e-5)
	assert.InDelta(t, 0.8, vectors[0][1], 1e-5)
}

func TestOllamaServiceErrors(t *testing.T) {
	t.Run("server error surfaces", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "model not found", http.StatusNotFound)
		}))
		defer server.Close()

		svc, err := NewOllamaService(config.EmbeddingConfig{
			BaseURL: server.URL, Model: "missing", Dimension: 2,
		}, nil)
		require.NoError(t, err)

		_, err = svc.EmbedQuery(context.Background(), "q")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "model not found")
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]any{"embedding": []float64{1, 2, 3}})
		}))
		defer server.Close()

		svc, err := NewOllamaService(config.EmbeddingConfig{
			BaseURL: server.URL, Model: "all-minilm", Dimension: 2,
		}, nil)
		require.NoError(t, err)

		_, err = svc.EmbedQuery(context.Background(), "q")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "does not match configured")
	})
}
