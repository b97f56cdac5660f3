// Package config loads engine configuration from the environment. A .env file
// is honored when present; explicit environment variables win.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// ErrInvalidConfig marks a configuration-level failure. These abort before
// any work starts and are never retried.
var ErrInvalidConfig = errors.New("invalid configuration")

// Backend selects which vector store implementation the engine uses.
type Backend string

const (
	BackendLocal  Backend = "local"
	BackendQdrant Backend = "qdrant"
)

type Config struct {
	LLM       LLMConfig
	Embedding EmbeddingConfig
	Chunking  ChunkingConfig
	Retrieval RetrievalConfig
	Index     IndexConfig
	Qdrant    QdrantConfig
}

type LLMConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	MinInterval time.Duration
	MaxRetries  int
}

type EmbeddingConfig struct {
	Provider  string // "openai" or "ollama"
	APIKey    string
	BaseURL   string
	Model     string
	Dimension int
	BatchSize int
	Delay     time.Duration
}

type ChunkingConfig struct {
	ChunkSize    int
	ChunkOverlap int
}

type RetrievalConfig struct {
	TopK          int
	UseReranking  bool
	RerankTopK    int
	FinalTopK     int
	RerankAlpha   float64
	CrossEncoder  string // cross-encoder endpoint URL, empty disables reranking
	CrossEncModel string
}

type IndexConfig struct {
	Backend Backend
	Path    string
}

type QdrantConfig struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

// Default returns the configuration used when no environment overrides exist.
// Values mirror the knowledge-base deployment: a 384-dimension multilingual
// embedding model, 200-character chunks with 50-character overlap and a
// rate-limited free-tier generation service.
func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			Model:       "gemini-2.5-flash",
			MinInterval: 7 * time.Second,
			MaxRetries:  3,
		},
		Embedding: EmbeddingConfig{
			Provider:  "openai",
			Model:     "intfloat/multilingual-e5-small",
			Dimension: 384,
			BatchSize: 32,
		},
		Chunking: ChunkingConfig{
			ChunkSize:    200,
			ChunkOverlap: 50,
		},
		Retrieval: RetrievalConfig{
			TopK:          5,
			UseReranking:  true,
			RerankTopK:    5,
			FinalTopK:     2,
			RerankAlpha:   0.7,
			CrossEncModel: "cross-encoder/ms-marco-MiniLM-L-12-v2",
		},
		Index: IndexConfig{
			Backend: BackendLocal,
			Path:    "vector_index.gob",
		},
		Qdrant: QdrantConfig{
			Collection: "snake_knowledge_base",
			Timeout:    30 * time.Second,
		},
	}
}

// Load reads configuration from the environment on top of defaults.
// A .env file in the working directory is loaded first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	cfg.LLM.APIKey = getEnv("LLM_API_KEY", cfg.LLM.APIKey)
	cfg.LLM.BaseURL = getEnv("LLM_BASE_URL", cfg.LLM.BaseURL)
	cfg.LLM.Model = getEnv("LLM_MODEL", cfg.LLM.Model)
	cfg.LLM.MinInterval = getEnvDuration("LLM_MIN_INTERVAL", cfg.LLM.MinInterval)
	cfg.LLM.MaxRetries = getEnvInt("LLM_MAX_RETRIES", cfg.LLM.MaxRetries)

	cfg.Embedding.Provider = getEnv("EMBEDDING_PROVIDER", cfg.Embedding.Provider)
	cfg.Embedding.APIKey = getEnv("EMBEDDING_API_KEY", cfg.Embedding.APIKey)
	cfg.Embedding.BaseURL = getEnv("EMBEDDING_BASE_URL", cfg.Embedding.BaseURL)
	cfg.Embedding.Model = getEnv("EMBEDDING_MODEL", cfg.Embedding.Model)
	cfg.Embedding.Dimension = getEnvInt("EMBEDDING_DIMENSION", cfg.Embedding.Dimension)
	cfg.Embedding.BatchSize = getEnvInt("EMBEDDING_BATCH_SIZE", cfg.Embedding.BatchSize)
	cfg.Embedding.Delay = getEnvDuration("EMBEDDING_DELAY", cfg.Embedding.Delay)

	cfg.Chunking.ChunkSize = getEnvInt("CHUNK_SIZE", cfg.Chunking.ChunkSize)
	cfg.Chunking.ChunkOverlap = getEnvInt("CHUNK_OVERLAP", cfg.Chunking.ChunkOverlap)

	cfg.Retrieval.TopK = getEnvInt("TOP_K_RESULTS", cfg.Retrieval.TopK)
	cfg.Retrieval.UseReranking = getEnvBool("USE_RERANKING", cfg.Retrieval.UseReranking)
	cfg.Retrieval.RerankTopK = getEnvInt("RERANK_TOP_K", cfg.Retrieval.RerankTopK)
	cfg.Retrieval.FinalTopK = getEnvInt("FINAL_TOP_K", cfg.Retrieval.FinalTopK)
	cfg.Retrieval.RerankAlpha = getEnvFloat("RERANK_ALPHA", cfg.Retrieval.RerankAlpha)
	cfg.Retrieval.CrossEncoder = getEnv("CROSS_ENCODER_URL", cfg.Retrieval.CrossEncoder)
	cfg.Retrieval.CrossEncModel = getEnv("CROSS_ENCODER_MODEL", cfg.Retrieval.CrossEncModel)

	cfg.Index.Backend = Backend(getEnv("VECTOR_BACKEND", string(cfg.Index.Backend)))
	cfg.Index.Path = getEnv("VECTOR_INDEX_PATH", cfg.Index.Path)

	cfg.Qdrant.URL = getEnv("QDRANT_URL", cfg.Qdrant.URL)
	cfg.Qdrant.APIKey = getEnv("QDRANT_API_KEY", cfg.Qdrant.APIKey)
	cfg.Qdrant.Collection = getEnv("QDRANT_COLLECTION_NAME", cfg.Qdrant.Collection)
	cfg.Qdrant.Timeout = getEnvDuration("QDRANT_TIMEOUT", cfg.Qdrant.Timeout)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks structural validity. Credentials are checked by the
// components that need them so that offline workflows (chunking, filtering)
// run without service keys.
func (c *Config) Validate() error {
	if c.Chunking.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidConfig, c.Chunking.ChunkSize)
	}
	if c.Chunking.ChunkOverlap < 0 || c.Chunking.ChunkOverlap >= c.Chunking.ChunkSize {
		return fmt.Errorf("%w: chunk overlap %d must be in [0, chunk size %d)",
			ErrInvalidConfig, c.Chunking.ChunkOverlap, c.Chunking.ChunkSize)
	}
	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("%w: embedding dimension must be positive", ErrInvalidConfig)
	}
	if c.Retrieval.RerankAlpha < 0 || c.Retrieval.RerankAlpha > 1 {
		return fmt.Errorf("%w: rerank alpha %.3f must be in [0, 1]", ErrInvalidConfig, c.Retrieval.RerankAlpha)
	}
	if c.Retrieval.TopK <= 0 || c.Retrieval.FinalTopK <= 0 {
		return fmt.Errorf("%w: top-k values must be positive", ErrInvalidConfig)
	}
	if c.Index.Backend != BackendLocal && c.Index.Backend != BackendQdrant {
		return fmt.Errorf("%w: unknown vector backend %q", ErrInvalidConfig, c.Index.Backend)
	}
	if c.Index.Backend == BackendQdrant && c.Qdrant.URL == "" {
		return fmt.Errorf("%w: QDRANT_URL is required for the qdrant backend", ErrInvalidConfig)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		// Bare numbers are treated as seconds for .env compatibility.
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * time.Second
		}
	}
	return fallback
}
