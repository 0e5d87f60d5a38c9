package search

import (
	"errors"
	"math"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragline/internal/domain"
)

func newTestRanker(t *testing.T, bm25W, semW float64) *Ranker {
	t.Helper()
	r, err := NewRanker(bm25W, semW, zap.NewNop())
	if err != nil {
		t.Fatalf("NewRanker(%v, %v): %v", bm25W, semW, err)
	}
	return r
}

func TestNewRanker_WeightValidation(t *testing.T) {
	if _, err := NewRanker(0.7, 0.2, zap.NewNop()); !errors.Is(err, domain.ErrInvalidWeights) {
		t.Errorf("err = %v, want ErrInvalidWeights", err)
	}
	// Within tolerance.
	if _, err := NewRanker(0.7, 0.305, zap.NewNop()); err != nil {
		t.Errorf("weights within tolerance rejected: %v", err)
	}
	if _, err := NewRanker(0.5, 0.5, zap.NewNop()); err != nil {
		t.Errorf("exact weights rejected: %v", err)
	}
}

func TestRank_LexicalMatchWins(t *testing.T) {
	r := newTestRanker(t, 0.5, 0.5)

	// Equal semantic scores: the candidate matching both query terms must
	// outrank the one matching a single term.
	candidates := []domain.Candidate{
		{ID: "partial", Content: "learning about cooking recipes", SemanticScore: 0.8},
		{ID: "full", Content: "machine learning is a field of study", SemanticScore: 0.8},
	}

	results := r.Rank("machine learning", candidates, 10)

	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].ChunkID != "full" {
		t.Errorf("top result = %q, want the full lexical match", results[0].ChunkID)
	}
	if results[0].CombinedScore <= results[1].CombinedScore {
		t.Errorf("scores not strictly ordered: %v vs %v",
			results[0].CombinedScore, results[1].CombinedScore)
	}
}

func TestRank_SemanticWeightDominates(t *testing.T) {
	r := newTestRanker(t, 0.0, 1.0)

	candidates := []domain.Candidate{
		{ID: "a", Content: "machine learning machine learning", SemanticScore: 0.1},
		{ID: "b", Content: "unrelated content entirely", SemanticScore: 0.9},
	}

	results := r.Rank("machine learning", candidates, 10)
	if results[0].ChunkID != "b" {
		t.Errorf("with zero lexical weight, semantic score must decide: got %q", results[0].ChunkID)
	}
}

func TestRank_ScoresNormalized(t *testing.T) {
	r := newTestRanker(t, 0.5, 0.5)

	candidates := []domain.Candidate{
		{ID: "a", Content: "alpha beta gamma", SemanticScore: 0.2},
		{ID: "b", Content: "alpha alpha alpha", SemanticScore: 0.6},
		{ID: "c", Content: "delta epsilon", SemanticScore: 0.9},
	}

	for _, res := range r.Rank("alpha", candidates, 10) {
		for name, s := range map[string]float64{
			"bm25": res.BM25Score, "semantic": res.SemanticScore, "combined": res.CombinedScore,
		} {
			if s < 0 || s > 1 {
				t.Errorf("%s score %v for %q outside [0,1]", name, s, res.ChunkID)
			}
		}
	}
}

func TestRank_AllEqualScoresBecomeMidpoint(t *testing.T) {
	r := newTestRanker(t, 0.5, 0.5)

	candidates := []domain.Candidate{
		{ID: "a", Content: "same words here", SemanticScore: 0.7},
		{ID: "b", Content: "same words here", SemanticScore: 0.7},
	}

	results := r.Rank("same words", candidates, 10)
	for _, res := range results {
		if res.SemanticScore != 0.5 {
			t.Errorf("%q semantic = %v, want 0.5 for equal raw scores", res.ChunkID, res.SemanticScore)
		}
		if res.BM25Score != 0.5 {
			t.Errorf("%q bm25 = %v, want 0.5 for equal raw scores", res.ChunkID, res.BM25Score)
		}
	}
}

func TestRank_TopKCut(t *testing.T) {
	r := newTestRanker(t, 0.5, 0.5)

	candidates := make([]domain.Candidate, 10)
	for i := range candidates {
		candidates[i] = domain.Candidate{
			ID:            string(rune('a' + i)),
			Content:       "content body",
			SemanticScore: float64(i) / 10,
		}
	}

	results := r.Rank("content", candidates, 3)
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	for i := 1; i < len(results); i++ {
		if results[i].CombinedScore > results[i-1].CombinedScore {
			t.Error("results not ordered by combined score descending")
		}
	}
}

func TestRank_Deterministic(t *testing.T) {
	r := newTestRanker(t, 0.5, 0.5)

	candidates := []domain.Candidate{
		{ID: "b", Content: "identical text", SemanticScore: 0.5},
		{ID: "a", Content: "identical text", SemanticScore: 0.5},
		{ID: "c", Content: "identical text", SemanticScore: 0.5},
	}

	results := r.Rank("identical", candidates, 10)
	// Full tie on every score: chunk ID decides.
	if results[0].ChunkID != "a" || results[1].ChunkID != "b" || results[2].ChunkID != "c" {
		t.Errorf("tie-break order = %q %q %q", results[0].ChunkID, results[1].ChunkID, results[2].ChunkID)
	}
}

func TestRankWithFallback_EmptyCandidates(t *testing.T) {
	r := newTestRanker(t, 0.5, 0.5)

	results, method := r.RankWithFallback("query", nil, 10)
	if len(results) != 0 {
		t.Errorf("got %d results, want 0", len(results))
	}
	if method != domain.RankNone {
		t.Errorf("method = %q, want none", method)
	}
}

func TestRankWithFallback_UntokenizableQuery(t *testing.T) {
	r := newTestRanker(t, 0.5, 0.5)

	candidates := []domain.Candidate{
		{ID: "low", Content: "some text", SemanticScore: 0.2},
		{ID: "high", Content: "other text", SemanticScore: 0.9},
	}

	results, method := r.RankWithFallback("!!! ###", candidates, 10)
	if method != domain.RankSemantic {
		t.Fatalf("method = %q, want semantic", method)
	}
	if results[0].ChunkID != "high" {
		t.Errorf("top result = %q, want semantic ordering", results[0].ChunkID)
	}
	for _, res := range results {
		if res.BM25Score != 0 {
			t.Errorf("%q bm25 = %v, want 0 in semantic fallback", res.ChunkID, res.BM25Score)
		}
	}
}

func TestBM25Scores_TermAbsentEverywhere(t *testing.T) {
	docs := [][]string{tokenize("alpha beta"), tokenize("gamma delta")}
	scores := bm25Scores(tokenize("omega"), docs)
	for i, s := range scores {
		if s != 0 {
			t.Errorf("doc %d score = %v, want 0 for absent term", i, s)
		}
	}
}

func TestBM25Scores_CommonTermStillContributes(t *testing.T) {
	// Term present in every document: the IDF variant keeps it positive.
	docs := [][]string{
		tokenize("shared term one"),
		tokenize("shared term shared term two"),
	}
	scores := bm25Scores(tokenize("shared"), docs)
	for i, s := range scores {
		if s <= 0 {
			t.Errorf("doc %d score = %v, want positive", i, s)
		}
	}
}

func TestNormalizeScores(t *testing.T) {
	out := normalizeScores([]float64{2, 4, 6})
	want := []float64{0, 0.5, 1}
	for i := range want {
		if math.Abs(out[i]-want[i]) > 1e-9 {
			t.Errorf("out[%d] = %v, want %v", i, out[i], want[i])
		}
	}

	if out := normalizeScores(nil); out != nil {
		t.Errorf("nil input should yield nil, got %v", out)
	}
}
