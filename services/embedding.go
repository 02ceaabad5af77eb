package services

import (
	"context"
	"math"
	"strings"

	"github.com/phuslu/log"
)

// EmbeddingService wraps a text-embedding capability with fail-soft
// semantics: callers receive nil when no embedding is available and decide
// their own fallback. A nil result is not retryable within the same call.
type EmbeddingService struct {
	embedder   TextEmbedder
	dimensions int
	logger     log.Logger
}

// NewEmbeddingService creates an EmbeddingService over the given capability.
func NewEmbeddingService(embedder TextEmbedder, dimensions int, logger log.Logger) *EmbeddingService {
	return &EmbeddingService{embedder: embedder, dimensions: dimensions, logger: logger}
}

// Embed returns the embedding for text, or nil if the input is empty or the
// capability fails. It never returns an error.
func (s *EmbeddingService) Embed(ctx context.Context, text string) []float32 {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	embedding, err := s.embedder.EmbedText(ctx, text)
	if err != nil {
		s.logger.Warn().Err(err).Int("text_length", len(text)).Msg("embedding generation failed")
		return nil
	}
	if s.dimensions > 0 && len(embedding) != s.dimensions {
		s.logger.Warn().Int("expected", s.dimensions).Int("got", len(embedding)).
			Msg("embedding has unexpected dimension, discarding")
		return nil
	}
	return embedding
}

// CosineSimilarity returns the cosine similarity of a and b in [-1, 1].
// Empty vectors, mismatched lengths and zero magnitudes all score 0.0;
// scoring must never panic over heterogeneous or stale data.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0.0
	}

	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0.0
	}
	return float32(dot / (math.Sqrt(magA) * math.Sqrt(magB)))
}
