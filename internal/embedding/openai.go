package embedding

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"

	"digital.vasic.snakerag/internal/config"
)

// OpenAIService talks to any OpenAI-compatible embeddings endpoint, including
// locally hosted multilingual-e5 servers.
type OpenAIService struct {
	client    *openai.Client
	model     string
	dimension int
	batchSize int
	delay     time.Duration
	logger    *logrus.Logger
}

// NewOpenAIService builds a client from configuration.
func NewOpenAIService(cfg config.EmbeddingConfig, logger *logrus.Logger) (*OpenAIService, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: embedding model is required", config.ErrInvalidConfig)
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 32
	}

	return &OpenAIService{
		client:    openai.NewClientWithConfig(clientCfg),
		model:     cfg.Model,
		dimension: cfg.Dimension,
		batchSize: batchSize,
		delay:     cfg.Delay,
		logger:    logger,
	}, nil
}

func (s *OpenAIService) Name() string {
	return fmt.Sprintf("openai/%s", s.model)
}

func (s *OpenAIService) Dimension() int {
	return s.dimension
}

// Embed embeds texts in batches, pausing between batches when a delay is
// configured.
func (s *OpenAIService) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += s.batchSize {
		end := start + s.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		if start > 0 {
			if err := pause(ctx, s.delay); err != nil {
				return nil, err
			}
		}

		batch, err := s.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, batch...)

		s.logger.WithFields(logrus.Fields{
			"batch_start": start,
			"batch_size":  end - start,
			"total":       len(texts),
		}).Debug("Embedded batch")
	}
	return vectors, nil
}

func (s *OpenAIService) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := s.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input: texts,
		Model: openai.EmbeddingModel(s.model),
	})
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding service returned %d vectors for %d texts", len(resp.Data), len(texts))
	}

	vectors := make([][]float32, len(texts))
	for _, item := range resp.Data {
		if item.Index < 0 || item.Index >= len(texts) {
			return nil, fmt.Errorf("embedding service returned out-of-range index %d", item.Index)
		}
		if len(item.Embedding) != s.dimension {
			return nil, fmt.Errorf("embedding dimension %d does not match configured %d", len(item.Embedding), s.dimension)
		}
		vec := make([]float32, len(item.Embedding))
		copy(vec, item.Embedding)
		normalize(vec)
		vectors[item.Index] = vec
	}
	return vectors, nil
}

func (s *OpenAIService) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := s.embedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}
