// Package embedding provides clients for text embedding services. Every
// implementation returns L2-normalized vectors of a fixed dimension so that
// the vector stores can score with a plain dot product.
package embedding

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"digital.vasic.snakerag/internal/config"
)

// Service embeds documents and queries.
type Service interface {
	// Embed returns one vector per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// EmbedQuery embeds a single search query.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	// Dimension returns the vector size this service produces.
	Dimension() int
	// Name identifies the provider and model.
	Name() string
}

// New selects a provider from configuration.
func New(cfg config.EmbeddingConfig, logger *logrus.Logger) (Service, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAIService(cfg, logger)
	case "ollama":
		return NewOllamaService(cfg, logger)
	default:
		return nil, fmt.Errorf("%w: unknown embedding provider %q", config.ErrInvalidConfig, cfg.Provider)
	}
}

// normalize scales v to unit length in place. Zero vectors are left alone so
// a degenerate service response stays visible downstream instead of turning
// into NaNs.
func normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
}

// pause waits for d, returning early if the context is canceled.
func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
