package eval

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"digital.vasic.snakerag/internal/config"
	"digital.vasic.snakerag/internal/dataset"
	"digital.vasic.snakerag/internal/llm"
	"digital.vasic.snakerag/internal/rag"
	"digital.vasic.snakerag/internal/vectorstore"
)

type constEmbedder struct{}

func (constEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{1, 0}
	}
	return vectors, nil
}

func (constEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0}, nil
}
func (constEmbedder) Dimension() int { return 2 }
func (constEmbedder) Name() string   { return "fake/const" }

// scriptedGenerator fails on questions containing "limited".
type scriptedGenerator struct{}

func (scriptedGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if strings.Contains(prompt, "limited") {
		return "", fmt.Errorf("%w: quota exhausted", llm.ErrRateLimited)
	}
	return "a generated answer", nil
}

func TestGeneratePredictions(t *testing.T) {
	ctx := context.Background()

	cfg := config.Default()
	cfg.Embedding.Dimension = 2
	cfg.Retrieval.UseReranking = false
	cfg.Retrieval.TopK = 1
	cfg.Index.Path = filepath.Join(t.TempDir(), "index.gob")

	store := vectorstore.NewLocalStore(cfg.Index.Path, 2, nil)
	pipeline, err := rag.NewPipeline(cfg, constEmbedder{}, store, nil, scriptedGenerator{}, nil)
	require.NoError(t, err)

	_, err = pipeline.Ingest(ctx, []string{"Cobras are venomous elapids."})
	require.NoError(t, err)

	records := []dataset.EvalRecord{
		{Question: "What are cobras?", GroundTruth: "Venomous elapids."},
		{Question: "This one is limited by quota", GroundTruth: "n/a"},
		{Question: "Where do cobras live?", GroundTruth: "Asia and Africa."},
	}

	preds, err := GeneratePredictions(ctx, pipeline, records, nil)
	require.NoError(t, err)
	require.Len(t, preds, 3)

	assert.Equal(t, "a generated answer", preds[0].Answer)
	assert.Len(t, preds[0].Contexts, 1)
	assert.Equal(t, "Venomous elapids.", preds[0].GroundTruth)

	// Exhausted rate-limit retries become a sentinel row, not an abort.
	assert.Equal(t, "ERROR: Rate limit exceeded after retries", preds[1].Answer)
	assert.Empty(t, preds[1].Contexts)

	assert.Equal(t, "a generated answer", preds[2].Answer)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab", truncate("abcdef", 2))
	assert.Equal(t, "rắ", truncate("rắn độc", 2), "rune boundaries respected")
}
