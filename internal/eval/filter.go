package eval

import (
	"sort"

	"digital.vasic.snakerag/internal/dataset"
)

// SelectLowest returns the questions of the n lowest-F1 entries in the
// report, worst first. Pure; the interactive confirmation before removal is
// the caller's concern.
func SelectLowest(report *GenerationReport, n int) []string {
	if report == nil || n <= 0 {
		return nil
	}

	entries := make([]QuestionGeneration, len(report.PerQuestion))
	copy(entries, report.PerQuestion)
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].BERTScore.F1 < entries[j].BERTScore.F1
	})

	if n > len(entries) {
		n = len(entries)
	}
	questions := make([]string, n)
	for i := 0; i < n; i++ {
		questions[i] = entries[i].Question
	}
	return questions
}

// ApplyRemoval drops predictions whose question text appears in doomed.
// Question text is the removal key, so the workflow assumes questions are
// unique within a prediction set; duplicates are all removed together.
func ApplyRemoval(preds []dataset.Prediction, doomed []string) []dataset.Prediction {
	doomedSet := make(map[string]struct{}, len(doomed))
	for _, q := range doomed {
		doomedSet[q] = struct{}{}
	}

	kept := make([]dataset.Prediction, 0, len(preds))
	for _, pred := range preds {
		if _, drop := doomedSet[pred.Question]; drop {
			continue
		}
		kept = append(kept, pred)
	}
	return kept
}
