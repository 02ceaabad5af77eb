package services

import (
	"context"
	"sort"

	"github.com/phuslu/log"
	"github.com/pkg/errors"

	"github.com/recall-archive/recall/models"
	"github.com/recall-archive/recall/store"
)

// Match is one retrieved media record with its similarity score.
type Match struct {
	Record models.MediaRecord `json:"record"`
	Score  float32            `json:"score"`
}

// SimilarityRetriever resolves free-text queries against the stored audio
// transcript embeddings. Scoring is a linear scan over every embedded audio
// record, which is fine at personal-archive scale; an ANN index could
// replace listAndScore behind the same contract.
type SimilarityRetriever struct {
	store     store.MediaStore
	embedding *EmbeddingService
	logger    log.Logger
}

// NewSimilarityRetriever creates a SimilarityRetriever.
func NewSimilarityRetriever(mediaStore store.MediaStore, embedding *EmbeddingService, logger log.Logger) *SimilarityRetriever {
	return &SimilarityRetriever{store: mediaStore, embedding: embedding, logger: logger}
}

type scoredAudio struct {
	audioID string
	score   float32
}

// FindSimilar embeds query and returns the media records whose linked audio
// scores at least threshold, best first, capped at limit audio matches.
// A record may appear for each audio clip it shares with other media; all
// records linked to one clip carry the same score. An un-embeddable query
// yields an empty result; the caller owns any fallback.
func (r *SimilarityRetriever) FindSimilar(ctx context.Context, query string, threshold float32, limit int) ([]Match, error) {
	queryEmbedding := r.embedding.Embed(ctx, query)
	if queryEmbedding == nil {
		r.logger.Debug().Str("query", query).Msg("query embedding unavailable, returning no matches")
		return nil, nil
	}

	scored, err := r.listAndScore(ctx, queryEmbedding, threshold)
	if err != nil {
		return nil, err
	}

	// Stable sort keeps the store's fetch order for equal scores.
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].score > scored[j].score
	})
	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}

	var matches []Match
	for _, candidate := range scored {
		records, err := r.store.ListByAudioID(ctx, candidate.audioID)
		if err != nil {
			return nil, errors.Wrap(err, "resolve audio to media records")
		}
		for _, record := range records {
			matches = append(matches, Match{Record: record, Score: candidate.score})
		}
	}
	return matches, nil
}

func (r *SimilarityRetriever) listAndScore(ctx context.Context, queryEmbedding []float32, threshold float32) ([]scoredAudio, error) {
	embeddings, err := r.store.ListAudioEmbeddings(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list audio embeddings")
	}

	scored := make([]scoredAudio, 0, len(embeddings))
	for _, candidate := range embeddings {
		score := CosineSimilarity(queryEmbedding, candidate.Vector)
		if score < threshold {
			continue
		}
		scored = append(scored, scoredAudio{audioID: candidate.AudioID, score: score})
	}
	return scored, nil
}
