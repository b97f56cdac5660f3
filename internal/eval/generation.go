package eval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"digital.vasic.snakerag/internal/dataset"
)

// PRF is a precision/recall/F1 triple from the overlap scorer.
type PRF struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
}

// OverlapScorer scores candidate answers against reference answers, one PRF
// per pair, in input order.
type OverlapScorer interface {
	Score(ctx context.Context, candidates, references []string) ([]PRF, error)
}

// BERTScoreConfig configures the hosted BERTScore service.
type BERTScoreConfig struct {
	Endpoint string
	Language string
	Model    string
	Timeout  time.Duration
}

// BERTScoreClient calls a hosted BERTScore service for semantic answer
// scoring.
type BERTScoreClient struct {
	config     BERTScoreConfig
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewBERTScoreClient builds a client. The endpoint is required.
func NewBERTScoreClient(cfg BERTScoreConfig, logger *logrus.Logger) (*BERTScoreClient, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("bertscore endpoint is required")
	}
	if logger == nil {
		logger = logrus.New()
	}
	if cfg.Language == "" {
		cfg.Language = "vi"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	return &BERTScoreClient{
		config: cfg,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}, nil
}

func (c *BERTScoreClient) Score(ctx context.Context, candidates, references []string) ([]PRF, error) {
	if len(candidates) != len(references) {
		return nil, fmt.Errorf("candidate count %d does not match reference count %d", len(candidates), len(references))
	}

	reqBody, err := json.Marshal(map[string]interface{}{
		"candidates":            candidates,
		"references":            references,
		"lang":                  c.config.Language,
		"model_type":            c.config.Model,
		"rescale_with_baseline": true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("bertscore request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("bertscore API error: %s - %s", resp.Status, string(respBody))
	}

	var result struct {
		Precision []float64 `json:"precision"`
		Recall    []float64 `json:"recall"`
		F1        []float64 `json:"f1"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(result.F1) != len(candidates) || len(result.Precision) != len(candidates) || len(result.Recall) != len(candidates) {
		return nil, fmt.Errorf("bertscore returned %d scores for %d pairs", len(result.F1), len(candidates))
	}

	scores := make([]PRF, len(candidates))
	for i := range scores {
		scores[i] = PRF{
			Precision: result.Precision[i],
			Recall:    result.Recall[i],
			F1:        result.F1[i],
		}
	}
	return scores, nil
}

// LexicalOverlap is an offline OverlapScorer built on keyword sets:
// precision is the share of candidate keywords found in the reference,
// recall the share of reference keywords found in the candidate, F1 their
// harmonic mean. A rough stand-in when no BERTScore service is reachable.
type LexicalOverlap struct {
	keywords *KeywordSimilarity
}

// NewLexicalOverlap builds the lexical scorer.
func NewLexicalOverlap() *LexicalOverlap {
	return &LexicalOverlap{keywords: NewKeywordSimilarity()}
}

func (s *LexicalOverlap) Score(ctx context.Context, candidates, references []string) ([]PRF, error) {
	if len(candidates) != len(references) {
		return nil, fmt.Errorf("candidate count %d does not match reference count %d", len(candidates), len(references))
	}

	scores := make([]PRF, len(candidates))
	for i := range candidates {
		cand := s.keywords.keywords(candidates[i])
		ref := s.keywords.keywords(references[i])

		intersection := 0
		for word := range cand {
			if _, ok := ref[word]; ok {
				intersection++
			}
		}

		var p, r, f1 float64
		if len(cand) > 0 {
			p = float64(intersection) / float64(len(cand))
		}
		if len(ref) > 0 {
			r = float64(intersection) / float64(len(ref))
		}
		if p+r > 0 {
			f1 = 2 * p * r / (p + r)
		}
		scores[i] = PRF{Precision: p, Recall: r, F1: f1}
	}
	return scores, nil
}

// QuestionGeneration is one prediction's generation scorecard.
type QuestionGeneration struct {
	Question        string `json:"question"`
	PredictedAnswer string `json:"predicted_answer"`
	GroundTruth     string `json:"ground_truth"`
	BERTScore       PRF    `json:"bertscore"`
}

// GenerationReport is the generation evaluation artifact.
type GenerationReport struct {
	Metrics     map[string]float64   `json:"metrics"`
	PerQuestion []QuestionGeneration `json:"per_question_results"`
	Bands       map[string]int       `json:"score_bands"`
	Config      GenerationRunConfig  `json:"config"`
}

// GenerationRunConfig records the parameters a report was produced with.
type GenerationRunConfig struct {
	Language       string `json:"language"`
	Model          string `json:"model_type"`
	TotalQuestions int    `json:"total_questions"`
}

// qualityBands classify F1 scores; half-open on the upper bound, matching the
// reporting ranges the metrics have always used.
var qualityBands = []struct {
	Low   float64
	High  float64
	Label string
}{
	{0.9, 1.0, "excellent"},
	{0.8, 0.9, "very good"},
	{0.7, 0.8, "good"},
	{0.6, 0.7, "fair"},
	{0.0, 0.6, "poor"},
}

// BandLabel returns the quality band for an F1 score, or empty when the
// score falls outside every band.
func BandLabel(f1 float64) string {
	for _, band := range qualityBands {
		if f1 >= band.Low && f1 < band.High {
			return band.Label
		}
	}
	return ""
}

// EvaluateGeneration scores every answer against its ground truth and
// aggregates mean, population standard deviation and the quality-band
// distribution.
func (e *Evaluator) EvaluateGeneration(ctx context.Context, preds []dataset.Prediction) (*GenerationReport, error) {
	if e.overlap == nil {
		return nil, fmt.Errorf("no overlap scorer configured")
	}
	if len(preds) == 0 {
		return nil, fmt.Errorf("no predictions to evaluate")
	}

	candidates := make([]string, len(preds))
	references := make([]string, len(preds))
	for i, pred := range preds {
		candidates[i] = pred.Answer
		references[i] = pred.GroundTruth
	}

	scores, err := e.overlap.Score(ctx, candidates, references)
	if err != nil {
		return nil, fmt.Errorf("overlap scoring failed: %w", err)
	}
	if len(scores) != len(preds) {
		return nil, fmt.Errorf("scorer returned %d scores for %d predictions", len(scores), len(preds))
	}

	report := &GenerationReport{
		Metrics:     map[string]float64{},
		PerQuestion: make([]QuestionGeneration, len(preds)),
		Bands:       map[string]int{},
		Config: GenerationRunConfig{
			Language:       "vi",
			Model:          "auto",
			TotalQuestions: len(preds),
		},
	}

	precisions := make([]float64, len(preds))
	recalls := make([]float64, len(preds))
	f1s := make([]float64, len(preds))
	for i, pred := range preds {
		precisions[i] = scores[i].Precision
		recalls[i] = scores[i].Recall
		f1s[i] = scores[i].F1
		report.PerQuestion[i] = QuestionGeneration{
			Question:        pred.Question,
			PredictedAnswer: pred.Answer,
			GroundTruth:     pred.GroundTruth,
			BERTScore:       scores[i],
		}
		if label := BandLabel(scores[i].F1); label != "" {
			report.Bands[label]++
		}
	}

	meanP, stdP := meanStd(precisions)
	meanR, stdR := meanStd(recalls)
	meanF, stdF := meanStd(f1s)
	report.Metrics["BERTScore_Precision"] = meanP
	report.Metrics["BERTScore_Precision_std"] = stdP
	report.Metrics["BERTScore_Recall"] = meanR
	report.Metrics["BERTScore_Recall_std"] = stdR
	report.Metrics["BERTScore_F1"] = meanF
	report.Metrics["BERTScore_F1_std"] = stdF

	e.logger.WithFields(logrus.Fields{
		"questions": len(preds),
		"mean_f1":   meanF,
	}).Info("Generation evaluation completed")
	return report, nil
}
