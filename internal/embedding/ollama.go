package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"digital.vasic.snakerag/internal/config"
)

// OllamaService embeds through a local Ollama server. The embeddings API
// takes one prompt per request, so batches are sequential.
type OllamaService struct {
	baseURL    string
	model      string
	dimension  int
	delay      time.Duration
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewOllamaService builds a client from configuration.
func NewOllamaService(cfg config.EmbeddingConfig, logger *logrus.Logger) (*OllamaService, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: embedding model is required", config.ErrInvalidConfig)
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}

	return &OllamaService{
		baseURL:   baseURL,
		model:     cfg.Model,
		dimension: cfg.Dimension,
		delay:     cfg.Delay,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: logger,
	}, nil
}

func (s *OllamaService) Name() string {
	return fmt.Sprintf("ollama/%s", s.model)
}

func (s *OllamaService) Dimension() int {
	return s.dimension
}

func (s *OllamaService) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		if i > 0 {
			if err := pause(ctx, s.delay); err != nil {
				return nil, err
			}
		}
		vec, err := s.embedOne(ctx, text)
		if err != nil {
			return nil, err
		}
		vectors[i] = vec
	}
	return vectors, nil
}

func (s *OllamaService) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return s.embedOne(ctx, text)
}

func (s *OllamaService) embedOne(ctx context.Context, text string) ([]float32, error) {
	reqBody, err := json.Marshal(map[string]interface{}{
		"model":  s.model,
		"prompt": text,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.baseURL+"/api/embeddings", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama API error: %s - %s", resp.Status, string(respBody))
	}

	var result struct {
		Embedding []float64 `json:"embedding"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(result.Embedding) != s.dimension {
		return nil, fmt.Errorf("embedding dimension %d does not match configured %d", len(result.Embedding), s.dimension)
	}

	vec := make([]float32, len(result.Embedding))
	for i, x := range result.Embedding {
		vec[i] = float32(x)
	}
	normalize(vec)
	return vec, nil
}
