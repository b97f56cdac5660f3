// Package llm wraps the answer-generation service. The free-tier deployment
// is heavily rate limited, so the paced generator serializes requests and
// spaces them out instead of letting callers hammer the API.
package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"

	"digital.vasic.snakerag/internal/config"
)

// ErrRateLimited reports that the generation service refused the request
// because of quota pressure. Retryable, unlike every other generation error.
var ErrRateLimited = errors.New("generation service rate limited")

// Generator produces an answer for a fully assembled prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// OpenAIGenerator calls an OpenAI-compatible chat completions endpoint.
type OpenAIGenerator struct {
	client *openai.Client
	model  string
	logger *logrus.Logger
}

// NewOpenAIGenerator builds a generator from configuration.
func NewOpenAIGenerator(cfg config.LLMConfig, logger *logrus.Logger) (*OpenAIGenerator, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: LLM_API_KEY is required for generation", config.ErrInvalidConfig)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: LLM model is required", config.ErrInvalidConfig)
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &OpenAIGenerator{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
		logger: logger,
	}, nil
}

// Generate sends a single-turn chat completion. A 429 from the service maps
// to ErrRateLimited.
func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		if isRateLimit(err) {
			return "", fmt.Errorf("%w: %v", ErrRateLimited, err)
		}
		return "", fmt.Errorf("generation request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("generation service returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func isRateLimit(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 429
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == 429
	}
	return false
}

// PacedGenerator serializes calls to an underlying generator, enforces a
// minimum interval between requests and retries rate-limited calls with
// exponential backoff. After the retry budget is exhausted it returns
// ErrRateLimited so batch jobs can record a failure row and keep going.
type PacedGenerator struct {
	inner       Generator
	minInterval time.Duration
	maxRetries  int
	logger      *logrus.Logger

	mu       sync.Mutex
	lastCall time.Time
}

// NewPacedGenerator wraps inner with pacing from configuration.
func NewPacedGenerator(inner Generator, cfg config.LLMConfig, logger *logrus.Logger) *PacedGenerator {
	if logger == nil {
		logger = logrus.New()
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &PacedGenerator{
		inner:       inner,
		minInterval: cfg.MinInterval,
		maxRetries:  maxRetries,
		logger:      logger,
	}
}

func (g *PacedGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for attempt := 0; ; attempt++ {
		if err := g.waitInterval(ctx); err != nil {
			return "", err
		}

		g.lastCall = time.Now()
		answer, err := g.inner.Generate(ctx, prompt)
		if err == nil {
			return answer, nil
		}
		if !errors.Is(err, ErrRateLimited) {
			return "", err
		}
		if attempt >= g.maxRetries {
			g.logger.WithField("attempts", attempt+1).Warn("Rate limit retries exhausted")
			return "", err
		}

		backoff := g.backoff(attempt)
		g.logger.WithFields(logrus.Fields{
			"attempt": attempt + 1,
			"backoff": backoff.String(),
		}).Warn("Rate limited, backing off")
		if err := sleep(ctx, backoff); err != nil {
			return "", err
		}
	}
}

// waitInterval spaces this request MinInterval after the previous one.
func (g *PacedGenerator) waitInterval(ctx context.Context) error {
	if g.minInterval <= 0 || g.lastCall.IsZero() {
		return nil
	}
	elapsed := time.Since(g.lastCall)
	if elapsed >= g.minInterval {
		return nil
	}
	return sleep(ctx, g.minInterval-elapsed)
}

// backoff doubles per attempt starting from the pacing interval, with a
// one-second floor when pacing is disabled.
func (g *PacedGenerator) backoff(attempt int) time.Duration {
	base := g.minInterval
	if base <= 0 {
		base = time.Second
	}
	return base << uint(attempt)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
