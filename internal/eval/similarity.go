// Package eval measures retrieval and generation quality over prediction
// batches and drives the low-quality filtering workflow.
package eval

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"digital.vasic.snakerag/internal/embedding"
)

// SimilarityScorer judges semantic closeness of two texts. Scores may fall in
// [-1, 1]; callers clamp to [0, 1] before thresholding.
type SimilarityScorer interface {
	Similarity(ctx context.Context, a, b string) (float64, error)
}

// EmbeddingSimilarity scores with cosine similarity of embedding vectors.
// The embedding service normalizes its output, so cosine reduces to a dot
// product.
type EmbeddingSimilarity struct {
	embedder embedding.Service
}

// NewEmbeddingSimilarity wraps an embedding service.
func NewEmbeddingSimilarity(embedder embedding.Service) *EmbeddingSimilarity {
	return &EmbeddingSimilarity{embedder: embedder}
}

func (s *EmbeddingSimilarity) Similarity(ctx context.Context, a, b string) (float64, error) {
	vectors, err := s.embedder.Embed(ctx, []string{a, b})
	if err != nil {
		return 0, fmt.Errorf("failed to embed pair: %w", err)
	}
	if len(vectors) != 2 {
		return 0, fmt.Errorf("expected 2 vectors, got %d", len(vectors))
	}

	var dot float64
	for i := range vectors[0] {
		dot += float64(vectors[0][i]) * float64(vectors[1][i])
	}
	return dot, nil
}

// KeywordSimilarity scores with keyword overlap: 60% ground-truth coverage
// plus 40% Jaccard over the keyword sets. Works offline, no embedding
// service needed.
type KeywordSimilarity struct {
	minLength int
}

// NewKeywordSimilarity builds the lexical scorer. Words shorter than three
// characters and common Vietnamese/English stop words are ignored.
func NewKeywordSimilarity() *KeywordSimilarity {
	return &KeywordSimilarity{minLength: 3}
}

var stopWords = map[string]struct{}{}

func init() {
	for _, w := range []string{
		"là", "của", "và", "có", "trong", "được", "với", "cho", "từ", "này",
		"các", "một", "để", "người", "những", "khi", "như", "đã", "bởi", "về",
		"the", "a", "an", "and", "or", "but", "in", "on", "at", "to", "for",
		"of", "with", "by", "from", "as", "is", "was", "are", "were", "be",
	} {
		stopWords[w] = struct{}{}
	}
}

var nonWord = regexp.MustCompile(`[^\p{L}\p{N}\s]`)

func (s *KeywordSimilarity) keywords(text string) map[string]struct{} {
	cleaned := nonWord.ReplaceAllString(strings.ToLower(text), " ")
	out := map[string]struct{}{}
	for _, word := range strings.Fields(cleaned) {
		if len([]rune(word)) < s.minLength {
			continue
		}
		if _, stop := stopWords[word]; stop {
			continue
		}
		out[word] = struct{}{}
	}
	return out
}

func (s *KeywordSimilarity) Similarity(ctx context.Context, groundTruth, candidate string) (float64, error) {
	gt := s.keywords(groundTruth)
	if len(gt) == 0 {
		return 0, nil
	}
	cand := s.keywords(candidate)

	intersection := 0
	for word := range gt {
		if _, ok := cand[word]; ok {
			intersection++
		}
	}
	union := len(gt) + len(cand) - intersection
	if union == 0 {
		return 0, nil
	}

	jaccard := float64(intersection) / float64(union)
	coverage := float64(intersection) / float64(len(gt))
	return 0.6*coverage + 0.4*jaccard, nil
}
