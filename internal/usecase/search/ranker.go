package search

import (
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragline/internal/domain"
	"github.com/kailas-cloud/ragline/internal/metrics"
)

// weightTolerance is the allowed deviation of the weight sum from 1.0,
// absorbing float literals like 0.7+0.3 that do not sum exactly.
const weightTolerance = 0.01

// Ranker combines lexical BM25 scores with vector similarity scores over
// a candidate set. Both score sets are min-max normalized before mixing,
// so the weights express relative influence regardless of raw scale.
type Ranker struct {
	bm25Weight     float64
	semanticWeight float64
	logger         *zap.Logger
}

// NewRanker creates a hybrid ranker. The two weights must sum to 1.0
// within a small tolerance.
func NewRanker(bm25Weight, semanticWeight float64, logger *zap.Logger) (*Ranker, error) {
	if math.Abs(bm25Weight+semanticWeight-1.0) > weightTolerance {
		return nil, domain.ErrInvalidWeights
	}
	return &Ranker{
		bm25Weight:     bm25Weight,
		semanticWeight: semanticWeight,
		logger:         logger,
	}, nil
}

// Rank scores candidates against the query and returns the topK results
// ordered by combined score descending. Ordering is deterministic: ties
// break on semantic score, then on chunk ID.
func (r *Ranker) Rank(query string, candidates []domain.Candidate, topK int) []domain.SearchResult {
	results, _ := r.rank(query, candidates, topK)
	return results
}

// RankWithFallback ranks candidates and reports which scoring path was
// used. An untokenizable query degrades to semantic-only ordering; an
// empty candidate set yields no results.
func (r *Ranker) RankWithFallback(query string, candidates []domain.Candidate, topK int) ([]domain.SearchResult, domain.RankMethod) {
	results, method := r.rank(query, candidates, topK)
	metrics.SearchRequestsTotal.WithLabelValues(string(method)).Inc()
	if method != domain.RankHybrid {
		r.logger.Debug("Ranking degraded",
			zap.String("method", string(method)),
			zap.Int("candidates", len(candidates)))
	}
	return results, method
}

func (r *Ranker) rank(query string, candidates []domain.Candidate, topK int) ([]domain.SearchResult, domain.RankMethod) {
	if len(candidates) == 0 {
		return nil, domain.RankNone
	}

	semantic := make([]float64, len(candidates))
	for i, c := range candidates {
		semantic[i] = c.SemanticScore
	}
	semNorm := normalizeScores(semantic)

	queryTokens := tokenize(query)
	method := domain.RankHybrid
	var combined, bm25Norm []float64

	if len(queryTokens) == 0 {
		method = domain.RankSemantic
		bm25Norm = make([]float64, len(candidates))
		combined = semNorm
	} else {
		docs := make([][]string, len(candidates))
		for i, c := range candidates {
			docs[i] = tokenize(c.Content)
		}
		bm25Norm = normalizeScores(bm25Scores(queryTokens, docs))

		combined = make([]float64, len(candidates))
		for i := range candidates {
			combined[i] = r.bm25Weight*bm25Norm[i] + r.semanticWeight*semNorm[i]
		}
	}

	results := make([]domain.SearchResult, len(candidates))
	for i, c := range candidates {
		results[i] = domain.SearchResult{
			ChunkID:       c.ID,
			Content:       c.Content,
			Metadata:      c.Metadata,
			BM25Score:     bm25Norm[i],
			SemanticScore: semNorm[i],
			CombinedScore: combined[i],
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].CombinedScore != results[j].CombinedScore {
			return results[i].CombinedScore > results[j].CombinedScore
		}
		if results[i].SemanticScore != results[j].SemanticScore {
			return results[i].SemanticScore > results[j].SemanticScore
		}
		return results[i].ChunkID < results[j].ChunkID
	})

	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	return results, method
}
