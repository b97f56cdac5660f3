package rag

import (
	"context"
	"sort"

	"github.com/sirupsen/logrus"

	"digital.vasic.snakerag/internal/vectorstore"
)

// RerankedCandidate carries a passage through the hybrid scoring stages.
type RerankedCandidate struct {
	Passage           string  `json:"passage"`
	OriginalScore     float64 `json:"original_score"`
	CrossEncoderScore float64 `json:"cross_encoder_score"`
	CombinedScore     float64 `json:"combined_score"`
}

// Result is a reranking outcome. Applied is false when the cross-encoder was
// unavailable and the original ordering passed through untouched.
type Result struct {
	Candidates []RerankedCandidate `json:"candidates"`
	Applied    bool                `json:"applied"`
}

// Reranker blends cross-encoder scores with retrieval scores. The combined
// score is alpha*crossEncoder + (1-alpha)*normalizedOriginal, where original
// scores are min-max normalized within the candidate batch and cross-encoder
// scores are used raw.
type Reranker struct {
	encoder   CrossEncoder
	alpha     float64
	finalTopK int
	logger    *logrus.Logger
}

// NewReranker builds a reranker. A nil encoder disables hybrid scoring and
// every Rerank call passes the original ordering through.
func NewReranker(encoder CrossEncoder, alpha float64, finalTopK int, logger *logrus.Logger) *Reranker {
	if logger == nil {
		logger = logrus.New()
	}
	return &Reranker{
		encoder:   encoder,
		alpha:     alpha,
		finalTopK: finalTopK,
		logger:    logger,
	}
}

// Rerank scores candidates against the query and returns the top candidates
// by combined score. Cross-encoder failures degrade to the original ordering
// rather than failing the query.
func (r *Reranker) Rerank(ctx context.Context, query string, candidates []vectorstore.Candidate) (*Result, error) {
	if len(candidates) == 0 {
		return &Result{Candidates: []RerankedCandidate{}, Applied: false}, nil
	}
	if r.encoder == nil {
		return r.passthrough(candidates), nil
	}

	ceScores := make([]float64, len(candidates))
	for i, cand := range candidates {
		score, err := r.encoder.Score(ctx, query, cand.Passage)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			r.logger.WithError(err).Warn("Cross-encoder scoring failed, keeping original order")
			return r.passthrough(candidates), nil
		}
		ceScores[i] = score
	}

	normed := normalizeScores(candidates)
	reranked := make([]RerankedCandidate, len(candidates))
	for i, cand := range candidates {
		reranked[i] = RerankedCandidate{
			Passage:           cand.Passage,
			OriginalScore:     float64(cand.Score),
			CrossEncoderScore: ceScores[i],
			CombinedScore:     r.alpha*ceScores[i] + (1-r.alpha)*normed[i],
		}
	}

	sort.SliceStable(reranked, func(i, j int) bool {
		if reranked[i].CombinedScore != reranked[j].CombinedScore {
			return reranked[i].CombinedScore > reranked[j].CombinedScore
		}
		return reranked[i].CrossEncoderScore > reranked[j].CrossEncoderScore
	})

	if len(reranked) > r.finalTopK {
		reranked = reranked[:r.finalTopK]
	}

	r.logger.WithFields(logrus.Fields{
		"candidates": len(candidates),
		"kept":       len(reranked),
		"alpha":      r.alpha,
	}).Debug("Reranked candidates")

	return &Result{Candidates: reranked, Applied: true}, nil
}

// passthrough keeps the retrieval order and truncates to the final top-k.
func (r *Reranker) passthrough(candidates []vectorstore.Candidate) *Result {
	n := len(candidates)
	if n > r.finalTopK {
		n = r.finalTopK
	}
	kept := make([]RerankedCandidate, n)
	for i := 0; i < n; i++ {
		kept[i] = RerankedCandidate{
			Passage:       candidates[i].Passage,
			OriginalScore: float64(candidates[i].Score),
			CombinedScore: float64(candidates[i].Score),
		}
	}
	return &Result{Candidates: kept, Applied: false}
}

// normalizeScores min-max normalizes retrieval scores within the batch. When
// every score is equal the whole batch maps to 1.0 so the original scores
// stay neutral in the blend.
func normalizeScores(candidates []vectorstore.Candidate) []float64 {
	minScore := float64(candidates[0].Score)
	maxScore := minScore
	for _, cand := range candidates[1:] {
		s := float64(cand.Score)
		if s < minScore {
			minScore = s
		}
		if s > maxScore {
			maxScore = s
		}
	}

	normed := make([]float64, len(candidates))
	if maxScore == minScore {
		for i := range normed {
			normed[i] = 1.0
		}
		return normed
	}
	for i, cand := range candidates {
		normed[i] = (float64(cand.Score) - minScore) / (maxScore - minScore)
	}
	return normed
}
