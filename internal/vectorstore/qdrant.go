package vectorstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"digital.vasic.snakerag/internal/vectordb/qdrant"
)

// QdrantStore implements Store on a remote Qdrant collection. Passages live
// in the point payload under the "text" key; durability is the server's
// concern, so Save is a no-op and Load checks for an existing collection.
type QdrantStore struct {
	client     *qdrant.Client
	collection string
	dim        int
	logger     *logrus.Logger
}

// NewQdrantStore creates a store bound to one collection.
func NewQdrantStore(client *qdrant.Client, collection string, dimension int, logger *logrus.Logger) *QdrantStore {
	if logger == nil {
		logger = logrus.New()
	}
	return &QdrantStore{
		client:     client,
		collection: collection,
		dim:        dimension,
		logger:     logger,
	}
}

// ensureCollection creates the collection if it does not exist yet.
func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if exists {
		return nil
	}
	return s.client.CreateCollection(ctx, &qdrant.CollectionConfig{
		Name:       s.collection,
		VectorSize: s.dim,
		Distance:   qdrant.DistanceCosine,
	})
}

// Add upserts the batch as uuid-keyed points.
func (s *QdrantStore) Add(ctx context.Context, vectors [][]float32, passages []string) error {
	if len(vectors) != len(passages) {
		return fmt.Errorf("vectors and passages length mismatch: %d != %d", len(vectors), len(passages))
	}
	if len(vectors) == 0 {
		return nil
	}
	if err := s.ensureCollection(ctx); err != nil {
		return err
	}

	points := make([]qdrant.Point, len(vectors))
	for i := range vectors {
		if len(vectors[i]) != s.dim {
			return fmt.Errorf("vector %d has dimension %d, expected %d", i, len(vectors[i]), s.dim)
		}
		points[i] = qdrant.Point{
			ID:     uuid.New().String(),
			Vector: vectors[i],
			Payload: map[string]interface{}{
				"text": passages[i],
			},
		}
	}

	if err := s.client.UpsertPoints(ctx, s.collection, points); err != nil {
		return fmt.Errorf("failed to add passages: %w", err)
	}
	return nil
}

// Search maps scored points back to candidates. A missing collection behaves
// like an empty index.
func (s *QdrantStore) Search(ctx context.Context, vector []float32, k int) ([]Candidate, error) {
	if k <= 0 {
		return []Candidate{}, nil
	}

	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return nil, fmt.Errorf("failed to check collection: %w", err)
	}
	if !exists {
		return []Candidate{}, nil
	}

	hits, err := s.client.Search(ctx, s.collection, vector, &qdrant.SearchParams{
		Limit:       k,
		WithPayload: true,
	})
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	candidates := make([]Candidate, 0, len(hits))
	for _, hit := range hits {
		text, _ := hit.Payload["text"].(string)
		if text == "" {
			s.logger.WithField("id", hit.ID).Warn("Skipping point without text payload")
			continue
		}
		candidates = append(candidates, Candidate{Passage: text, Score: hit.Score})
	}
	return candidates, nil
}

// Save is a no-op: the remote service persists every upsert.
func (s *QdrantStore) Save(ctx context.Context) error {
	return nil
}

// Load reports whether a non-empty collection already exists.
func (s *QdrantStore) Load(ctx context.Context) (bool, error) {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return false, fmt.Errorf("failed to check collection: %w", err)
	}
	if !exists {
		return false, nil
	}
	count, err := s.client.CountPoints(ctx, s.collection)
	if err != nil {
		return false, fmt.Errorf("failed to count points: %w", err)
	}
	return count > 0, nil
}

// Stats reports collection size.
func (s *QdrantStore) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{Backend: "qdrant", Dimension: s.dim}

	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return stats, fmt.Errorf("failed to check collection: %w", err)
	}
	if !exists {
		return stats, nil
	}

	count, err := s.client.CountPoints(ctx, s.collection)
	if err != nil {
		return stats, fmt.Errorf("failed to count points: %w", err)
	}
	stats.Count = int(count)
	return stats, nil
}

// Reset drops the collection. The next Add recreates it.
func (s *QdrantStore) Reset(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if !exists {
		return nil
	}
	if err := s.client.DeleteCollection(ctx, s.collection); err != nil {
		return fmt.Errorf("failed to reset collection: %w", err)
	}
	return nil
}
