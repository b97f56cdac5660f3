package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 200, cfg.Chunking.ChunkSize)
	assert.Equal(t, 50, cfg.Chunking.ChunkOverlap)
	assert.Equal(t, 384, cfg.Embedding.Dimension)
	assert.Equal(t, 0.7, cfg.Retrieval.RerankAlpha)
	assert.Equal(t, 2, cfg.Retrieval.FinalTopK)
	assert.Equal(t, BackendLocal, cfg.Index.Backend)
	assert.NoError(t, cfg.Validate())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CHUNK_SIZE", "300")
	t.Setenv("CHUNK_OVERLAP", "75")
	t.Setenv("RERANK_ALPHA", "0.5")
	t.Setenv("USE_RERANKING", "false")
	t.Setenv("LLM_MIN_INTERVAL", "3")
	t.Setenv("EMBEDDING_DELAY", "250ms")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 300, cfg.Chunking.ChunkSize)
	assert.Equal(t, 75, cfg.Chunking.ChunkOverlap)
	assert.Equal(t, 0.5, cfg.Retrieval.RerankAlpha)
	assert.False(t, cfg.Retrieval.UseReranking)
	assert.Equal(t, 3*time.Second, cfg.LLM.MinInterval)
	assert.Equal(t, 250*time.Millisecond, cfg.Embedding.Delay)
}

func TestValidate(t *testing.T) {
	t.Run("zero chunk size", func(t *testing.T) {
		cfg := Default()
		cfg.Chunking.ChunkSize = 0
		err := cfg.Validate()
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("overlap not smaller than chunk size", func(t *testing.T) {
		cfg := Default()
		cfg.Chunking.ChunkOverlap = cfg.Chunking.ChunkSize
		assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
	})

	t.Run("negative overlap", func(t *testing.T) {
		cfg := Default()
		cfg.Chunking.ChunkOverlap = -1
		assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
	})

	t.Run("alpha out of range", func(t *testing.T) {
		cfg := Default()
		cfg.Retrieval.RerankAlpha = 1.5
		assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
	})

	t.Run("unknown backend", func(t *testing.T) {
		cfg := Default()
		cfg.Index.Backend = "faiss"
		assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
	})

	t.Run("qdrant backend requires URL", func(t *testing.T) {
		cfg := Default()
		cfg.Index.Backend = BackendQdrant
		cfg.Qdrant.URL = ""
		assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

		cfg.Qdrant.URL = "http://localhost:6333"
		assert.NoError(t, cfg.Validate())
	})
}
