package eval

import (
	"context"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"digital.vasic.snakerag/internal/dataset"
)

// KMetrics holds the two retrieval metrics at one k.
//
// Recall and precision are computed with the same formula on purpose:
// relevant_count / k. The corpus-wide relevant-document count is unknown, so
// recall approximates its denominator with k, which collapses it onto
// precision. Preserved as-is so reports stay comparable across runs.
type KMetrics struct {
	Recall    float64 `json:"recall"`
	Precision float64 `json:"precision"`
}

// QuestionRetrieval is one prediction's retrieval scorecard.
type QuestionRetrieval struct {
	Question    string              `json:"question"`
	GroundTruth string              `json:"ground_truth"`
	NumContexts int                 `json:"num_contexts"`
	Metrics     map[string]KMetrics `json:"metrics"`
	Error       string              `json:"error,omitempty"`
}

// RetrievalReport is the retrieval evaluation artifact.
type RetrievalReport struct {
	Metrics     map[string]float64  `json:"metrics"`
	PerQuestion []QuestionRetrieval `json:"per_question_results"`
	Warnings    []string            `json:"warnings,omitempty"`
	Config      RetrievalRunConfig  `json:"config"`
}

// RetrievalRunConfig records the parameters a report was produced with.
type RetrievalRunConfig struct {
	KValues        []int   `json:"k_values"`
	Threshold      float64 `json:"threshold"`
	TotalQuestions int     `json:"total_questions"`
}

// Evaluator computes quality metrics over prediction batches.
type Evaluator struct {
	similarity SimilarityScorer
	overlap    OverlapScorer
	logger     *logrus.Logger
}

// NewEvaluator builds an evaluator. The similarity scorer serves retrieval
// metrics, the overlap scorer serves generation metrics; either may be nil
// when only the other family is used.
func NewEvaluator(similarity SimilarityScorer, overlap OverlapScorer, logger *logrus.Logger) *Evaluator {
	if logger == nil {
		logger = logrus.New()
	}
	return &Evaluator{similarity: similarity, overlap: overlap, logger: logger}
}

// EvaluateRetrieval scores every prediction at every k. A context is relevant
// when its similarity to the ground truth, clamped to [0, 1], reaches the
// threshold. Per-question scorer failures are recorded on the question and
// excluded from the aggregates; the batch always completes.
func (e *Evaluator) EvaluateRetrieval(ctx context.Context, preds []dataset.Prediction, ks []int, threshold float64) (*RetrievalReport, error) {
	if e.similarity == nil {
		return nil, fmt.Errorf("no similarity scorer configured")
	}
	if len(ks) == 0 {
		ks = []int{1, 3, 5}
	}

	report := &RetrievalReport{
		Metrics:     map[string]float64{},
		PerQuestion: make([]QuestionRetrieval, 0, len(preds)),
		Config: RetrievalRunConfig{
			KValues:        ks,
			Threshold:      threshold,
			TotalQuestions: len(preds),
		},
	}

	recallByK := map[int][]float64{}
	precisionByK := map[int][]float64{}

	for idx, pred := range preds {
		entry := QuestionRetrieval{
			Question:    pred.Question,
			GroundTruth: pred.GroundTruth,
			NumContexts: len(pred.Contexts),
			Metrics:     map[string]KMetrics{},
		}

		relevance, err := e.scoreContexts(ctx, pred.GroundTruth, pred.Contexts, threshold)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			entry.Error = err.Error()
			e.logger.WithFields(logrus.Fields{
				"question": pred.Question,
			}).WithError(err).Warn("Skipping question, similarity scoring failed")
			report.PerQuestion = append(report.PerQuestion, entry)
			continue
		}

		for _, k := range ks {
			kActual := k
			if k > len(pred.Contexts) {
				kActual = len(pred.Contexts)
				warning := fmt.Sprintf("k=%d exceeds %d contexts for question %d, clamped", k, len(pred.Contexts), idx+1)
				report.Warnings = append(report.Warnings, warning)
				e.logger.Warn(warning)
			}

			relevant := 0
			for i := 0; i < kActual; i++ {
				if relevance[i] {
					relevant++
				}
			}

			var recall, precision float64
			if kActual > 0 {
				recall = float64(relevant) / float64(kActual)
				precision = float64(relevant) / float64(kActual)
			}
			recallByK[k] = append(recallByK[k], recall)
			precisionByK[k] = append(precisionByK[k], precision)
			entry.Metrics[fmt.Sprintf("k=%d", k)] = KMetrics{
				Recall:    round4(recall),
				Precision: round4(precision),
			}
		}
		report.PerQuestion = append(report.PerQuestion, entry)
	}

	for _, k := range ks {
		meanR, stdR := meanStd(recallByK[k])
		meanP, stdP := meanStd(precisionByK[k])
		report.Metrics[fmt.Sprintf("Recall@%d", k)] = round4(meanR)
		report.Metrics[fmt.Sprintf("Recall@%d_std", k)] = round4(stdR)
		report.Metrics[fmt.Sprintf("Precision@%d", k)] = round4(meanP)
		report.Metrics[fmt.Sprintf("Precision@%d_std", k)] = round4(stdP)
	}

	e.logger.WithFields(logrus.Fields{
		"questions": len(preds),
		"k_values":  ks,
		"threshold": threshold,
	}).Info("Retrieval evaluation completed")
	return report, nil
}

// scoreContexts resolves relevance for every context once, so multiple k
// values do not multiply scorer calls.
func (e *Evaluator) scoreContexts(ctx context.Context, groundTruth string, contexts []string, threshold float64) ([]bool, error) {
	relevance := make([]bool, len(contexts))
	for i, text := range contexts {
		similarity, err := e.similarity.Similarity(ctx, groundTruth, text)
		if err != nil {
			return nil, err
		}
		clamped := math.Max(0, math.Min(1, similarity))
		relevance[i] = clamped >= threshold
	}
	return relevance, nil
}

// meanStd returns the mean and population standard deviation.
func meanStd(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	return mean, math.Sqrt(sq / float64(len(values)))
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
