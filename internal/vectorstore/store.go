// Package vectorstore abstracts the nearest-neighbor backend behind a single
// contract. Two backends exist: a local file-backed index and a remote Qdrant
// collection. Callers depend only on the Store interface; backend-specific
// errors and pagination never leak past it.
package vectorstore

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"digital.vasic.snakerag/internal/config"
	"digital.vasic.snakerag/internal/vectordb/qdrant"
)

// Candidate is one search hit: the stored passage and its similarity score.
type Candidate struct {
	Passage string
	Score   float32
}

// Stats describes the state of a store.
type Stats struct {
	Backend   string
	Count     int
	Dimension int
}

// Store indexes (vector, passage) pairs and serves similarity search.
// Vectors must arrive L2-normalized; stores never re-normalize.
type Store interface {
	// Add appends vectors with their passages. Cumulative: repeated calls
	// grow the index.
	Add(ctx context.Context, vectors [][]float32, passages []string) error
	// Search returns up to k candidates by descending similarity. An empty
	// index yields an empty result, not an error.
	Search(ctx context.Context, vector []float32, k int) ([]Candidate, error)
	// Save persists the index.
	Save(ctx context.Context) error
	// Load restores a persisted index. Returns false (and no error) when
	// nothing has been persisted yet.
	Load(ctx context.Context) (bool, error)
	// Stats reports backend name, passage count and vector dimension.
	Stats(ctx context.Context) (Stats, error)
	// Reset irreversibly clears the collection.
	Reset(ctx context.Context) error
}

// New selects the backend from configuration.
func New(cfg *config.Config, logger *logrus.Logger) (Store, error) {
	switch cfg.Index.Backend {
	case config.BackendLocal:
		return NewLocalStore(cfg.Index.Path, cfg.Embedding.Dimension, logger), nil
	case config.BackendQdrant:
		client, err := qdrant.NewClient(&qdrant.Config{
			URL:     cfg.Qdrant.URL,
			APIKey:  cfg.Qdrant.APIKey,
			Timeout: cfg.Qdrant.Timeout,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create qdrant client: %w", err)
		}
		return NewQdrantStore(client, cfg.Qdrant.Collection, cfg.Embedding.Dimension, logger), nil
	default:
		return nil, fmt.Errorf("%w: unknown vector backend %q", config.ErrInvalidConfig, cfg.Index.Backend)
	}
}
