package rag

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// CrossEncoder scores how well a passage answers a query. Higher is better.
type CrossEncoder interface {
	Score(ctx context.Context, query, passage string) (float64, error)
}

// CrossEncoderConfig configures the hosted scorer.
type CrossEncoderConfig struct {
	Endpoint string
	Model    string
	APIKey   string
	Timeout  time.Duration
}

// HTTPCrossEncoder calls a hosted cross-encoder scoring endpoint.
type HTTPCrossEncoder struct {
	config     CrossEncoderConfig
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewHTTPCrossEncoder builds a client. The endpoint is required.
func NewHTTPCrossEncoder(cfg CrossEncoderConfig, logger *logrus.Logger) (*HTTPCrossEncoder, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("cross-encoder endpoint is required")
	}
	if logger == nil {
		logger = logrus.New()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &HTTPCrossEncoder{
		config: cfg,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}, nil
}

// Score sends one query/passage pair and returns the raw model score.
func (c *HTTPCrossEncoder) Score(ctx context.Context, query, passage string) (float64, error) {
	reqBody, err := json.Marshal(map[string]interface{}{
		"model": c.config.Model,
		"pairs": [][2]string{{query, passage}},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("cross-encoder request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return 0, fmt.Errorf("cross-encoder API error: %s - %s", resp.Status, string(respBody))
	}

	var result struct {
		Scores []float64 `json:"scores"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return 0, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(result.Scores) != 1 {
		return 0, fmt.Errorf("cross-encoder returned %d scores for one pair", len(result.Scores))
	}
	return result.Scores[0], nil
}
