package domain

// Candidate is a single hit returned by the vector index, consumed by the ranker.
// SemanticScore is a cosine similarity in [0,1].
type Candidate struct {
	ID            string
	Content       string
	Metadata      map[string]string
	SemanticScore float64
}

// SearchResult is a ranked retrieval result. All three scores are
// normalized to [0,1]; result lists are ordered by CombinedScore descending.
type SearchResult struct {
	ChunkID       string
	Content       string
	Metadata      map[string]string
	BM25Score     float64
	SemanticScore float64
	CombinedScore float64
}

// RankMethod reports which scoring path produced a result set.
type RankMethod string

// Ranking methods, from full hybrid scoring down to nothing retrievable.
const (
	RankHybrid   RankMethod = "hybrid"
	RankSemantic RankMethod = "semantic"
	RankNone     RankMethod = "none"
)
