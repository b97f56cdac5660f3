package eval

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"digital.vasic.snakerag/internal/dataset"
	"digital.vasic.snakerag/internal/llm"
	"digital.vasic.snakerag/internal/rag"
)

// GeneratePredictions answers every evaluation question through the pipeline
// and returns one prediction per question, in input order. Pacing and retry
// are the generator's job; when a question still fails after the retry
// budget, a sentinel row with an ERROR answer and empty contexts is emitted
// so the batch survives quota exhaustion.
func GeneratePredictions(ctx context.Context, pipeline *rag.Pipeline, records []dataset.EvalRecord, logger *logrus.Logger) ([]dataset.Prediction, error) {
	if logger == nil {
		logger = logrus.New()
	}

	predictions := make([]dataset.Prediction, 0, len(records))
	failures := 0

	for i, rec := range records {
		answer, err := pipeline.Query(ctx, rec.Question)
		if err != nil {
			if ctx.Err() != nil {
				return predictions, ctx.Err()
			}
			failures++

			message := fmt.Sprintf("ERROR: %s", truncate(err.Error(), 200))
			if errors.Is(err, llm.ErrRateLimited) {
				message = "ERROR: Rate limit exceeded after retries"
			}
			logger.WithFields(logrus.Fields{
				"question": i + 1,
				"total":    len(records),
			}).WithError(err).Warn("Recording failed prediction")

			predictions = append(predictions, dataset.Prediction{
				Question:    rec.Question,
				GroundTruth: rec.GroundTruth,
				Contexts:    []string{},
				Answer:      message,
			})
			continue
		}

		predictions = append(predictions, dataset.Prediction{
			Question:    rec.Question,
			GroundTruth: rec.GroundTruth,
			Contexts:    answer.Contexts,
			Answer:      answer.Response,
		})
		logger.WithFields(logrus.Fields{
			"question": i + 1,
			"total":    len(records),
		}).Debug("Generated prediction")
	}

	logger.WithFields(logrus.Fields{
		"predictions": len(predictions),
		"failures":    failures,
	}).Info("Prediction generation completed")
	return predictions, nil
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
