package vectorstore

import (
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

// LocalStore is an in-process brute-force index persisted as a single gob
// file. Similarity is the dot product, which equals cosine similarity for
// the L2-normalized vectors the embedding service guarantees.
type LocalStore struct {
	path   string
	dim    int
	logger *logrus.Logger

	mu       sync.RWMutex
	vectors  [][]float32
	passages []string
}

// localSnapshot is the on-disk representation.
type localSnapshot struct {
	Dimension int
	Vectors   [][]float32
	Passages  []string
}

// NewLocalStore creates an empty local store backed by the given file path.
func NewLocalStore(path string, dimension int, logger *logrus.Logger) *LocalStore {
	if logger == nil {
		logger = logrus.New()
	}
	return &LocalStore{
		path:   path,
		dim:    dimension,
		logger: logger,
	}
}

// Add appends the batch. Vectors and passages must have equal length and
// every vector must match the configured dimension.
func (s *LocalStore) Add(ctx context.Context, vectors [][]float32, passages []string) error {
	if len(vectors) != len(passages) {
		return fmt.Errorf("vectors and passages length mismatch: %d != %d", len(vectors), len(passages))
	}
	for i, v := range vectors {
		if len(v) != s.dim {
			return fmt.Errorf("vector %d has dimension %d, expected %d", i, len(v), s.dim)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.vectors = append(s.vectors, vectors...)
	s.passages = append(s.passages, passages...)

	s.logger.WithFields(logrus.Fields{
		"added": len(vectors),
		"total": len(s.passages),
	}).Debug("Vectors added to local index")
	return nil
}

// Search scores every stored vector against the query and returns the top k
// by descending similarity. Ties keep insertion order (earlier-added wins).
func (s *LocalStore) Search(ctx context.Context, vector []float32, k int) ([]Candidate, error) {
	if len(vector) != s.dim {
		return nil, fmt.Errorf("query vector has dimension %d, expected %d", len(vector), s.dim)
	}
	if k <= 0 {
		return []Candidate{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		index int
		score float32
	}
	hits := make([]scored, len(s.vectors))
	for i, v := range s.vectors {
		hits[i] = scored{index: i, score: dot(vector, v)}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].score > hits[j].score
	})

	if k > len(hits) {
		k = len(hits)
	}
	results := make([]Candidate, k)
	for i := 0; i < k; i++ {
		results[i] = Candidate{
			Passage: s.passages[hits[i].index],
			Score:   hits[i].score,
		}
	}
	return results, nil
}

func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// Save writes the full index to the configured file. The snapshot goes to a
// temp file first and is renamed over the target, so a failed write leaves
// the previous snapshot intact.
func (s *LocalStore) Save(ctx context.Context) error {
	s.mu.RLock()
	snap := localSnapshot{
		Dimension: s.dim,
		Vectors:   s.vectors,
		Passages:  s.passages,
	}
	s.mu.RUnlock()

	f, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create index file: %w", err)
	}
	tmp := f.Name()

	if err := gob.NewEncoder(f).Encode(snap); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to encode index: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to write index file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace index file: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"path":  s.path,
		"count": len(snap.Passages),
	}).Info("Local index saved")
	return nil
}

// Load restores the index from disk. A missing file is not an error: the
// store stays empty and Load reports false.
func (s *LocalStore) Load(ctx context.Context) (bool, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to open index file: %w", err)
	}
	defer func() { _ = f.Close() }()

	var snap localSnapshot
	if err := gob.NewDecoder(f).Decode(&snap); err != nil {
		return false, fmt.Errorf("failed to decode index: %w", err)
	}
	if snap.Dimension != s.dim {
		return false, fmt.Errorf("persisted index has dimension %d, expected %d", snap.Dimension, s.dim)
	}

	s.mu.Lock()
	s.vectors = snap.Vectors
	s.passages = snap.Passages
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"path":  s.path,
		"count": len(snap.Passages),
	}).Info("Local index loaded")
	return true, nil
}

// Stats reports the current index state.
func (s *LocalStore) Stats(ctx context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{
		Backend:   "local",
		Count:     len(s.passages),
		Dimension: s.dim,
	}, nil
}

// Reset clears the in-memory index and removes the persisted file.
func (s *LocalStore) Reset(ctx context.Context) error {
	s.mu.Lock()
	s.vectors = nil
	s.passages = nil
	s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove index file: %w", err)
	}

	s.logger.Info("Local index reset")
	return nil
}
