package query

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragline/internal/domain"
)

type mockEmbedder struct {
	vec []float32
	err error
}

func (m *mockEmbedder) EmbedOne(_ context.Context, _ string) ([]float32, error) {
	return m.vec, m.err
}

type mockIndex struct {
	candidates []domain.Candidate
	err        error
	gotTopK    int
	gotNS      string
	gotFilter  map[string]string
}

func (m *mockIndex) Upsert(_ context.Context, _ []domain.VectorRecord, _ string) error { return nil }

func (m *mockIndex) Query(_ context.Context, _ []float32, topK int, namespace string, filter map[string]string) ([]domain.Candidate, error) {
	m.gotTopK = topK
	m.gotNS = namespace
	m.gotFilter = filter
	return m.candidates, m.err
}

func (m *mockIndex) DeleteByIDs(_ context.Context, _ []string, _ string) error        { return nil }
func (m *mockIndex) DeleteByFilter(_ context.Context, _ map[string]string, _ string) error { return nil }

type mockRanker struct{}

func (m *mockRanker) RankWithFallback(_ string, candidates []domain.Candidate, topK int) ([]domain.SearchResult, domain.RankMethod) {
	if len(candidates) == 0 {
		return nil, domain.RankNone
	}
	results := make([]domain.SearchResult, 0, topK)
	for i, c := range candidates {
		if i == topK {
			break
		}
		results = append(results, domain.SearchResult{
			ChunkID:       c.ID,
			Content:       c.Content,
			Metadata:      c.Metadata,
			SemanticScore: c.SemanticScore,
			CombinedScore: c.SemanticScore,
		})
	}
	return results, domain.RankHybrid
}

type mockGenerator struct {
	gotPrompt string
	result    domain.GenerationResult
}

func (m *mockGenerator) Generate(_ context.Context, prompt string, _ int, _ float32) domain.GenerationResult {
	m.gotPrompt = prompt
	return m.result
}

func candidate(id, content, source string, score float64) domain.Candidate {
	return domain.Candidate{
		ID:            id,
		Content:       content,
		SemanticScore: score,
		Metadata: map[string]string{
			"doc_id": strings.SplitN(id, "#", 2)[0], "source": source, "chunk_index": "0",
		},
	}
}

func newTestService(t *testing.T, e *mockEmbedder, idx *mockIndex, g *mockGenerator) *Service {
	t.Helper()
	return New(e, idx, &mockRanker{}, g, Config{
		TopK:        2,
		MaxTokens:   512,
		Temperature: 0.7,
	}, zap.NewNop())
}

func TestQuery_FullPipeline(t *testing.T) {
	e := &mockEmbedder{vec: []float32{1, 2, 3}}
	idx := &mockIndex{candidates: []domain.Candidate{
		candidate("doc-1#0", "chunk about topic", "a.txt", 0.9),
		candidate("doc-2#0", "another chunk", "b.txt", 0.8),
	}}
	g := &mockGenerator{result: domain.GenerationResult{
		Answer: "grounded answer", Provider: "openai", Model: "gpt-test", Success: true,
	}}
	s := newTestService(t, e, idx, g)

	res, err := s.Query(context.Background(), Request{Question: "what is the topic", Namespace: "ns1"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}

	if res.Answer != "grounded answer" || !res.Success {
		t.Errorf("result = %+v", res)
	}
	if res.Provider != "openai" {
		t.Errorf("provider = %q", res.Provider)
	}
	if res.RankMethod != domain.RankHybrid {
		t.Errorf("rank method = %q", res.RankMethod)
	}
	if idx.gotNS != "ns1" {
		t.Errorf("namespace = %q", idx.gotNS)
	}
	// The index is oversampled relative to topK.
	if idx.gotTopK != 2*candidateMultiplier {
		t.Errorf("index topK = %d, want %d", idx.gotTopK, 2*candidateMultiplier)
	}

	if len(res.Sources) != 2 {
		t.Fatalf("got %d sources", len(res.Sources))
	}
	if res.Sources[0].Document != "doc-1" || res.Sources[0].Source != "a.txt" {
		t.Errorf("source = %+v", res.Sources[0])
	}
}

func TestQuery_PromptContainsNumberedDocuments(t *testing.T) {
	e := &mockEmbedder{vec: []float32{1}}
	idx := &mockIndex{candidates: []domain.Candidate{
		candidate("doc-1#0", "first chunk body", "a.txt", 0.9),
		candidate("doc-2#0", "second chunk body", "b.txt", 0.8),
	}}
	g := &mockGenerator{result: domain.GenerationResult{Answer: "ok", Success: true}}
	s := newTestService(t, e, idx, g)

	if _, err := s.Query(context.Background(), Request{Question: "question"}); err != nil {
		t.Fatalf("Query: %v", err)
	}

	for _, want := range []string{
		"[Document 1: a.txt]", "first chunk body",
		"[Document 2: b.txt]", "second chunk body",
		"Question: question",
	} {
		if !strings.Contains(g.gotPrompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestQuery_NoResultsSkipsGeneration(t *testing.T) {
	e := &mockEmbedder{vec: []float32{1}}
	idx := &mockIndex{}
	g := &mockGenerator{result: domain.GenerationResult{Answer: "should not be used"}}
	s := newTestService(t, e, idx, g)

	res, err := s.Query(context.Background(), Request{Question: "anything"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}

	if res.Answer != noDocumentsAnswer {
		t.Errorf("answer = %q", res.Answer)
	}
	if !res.Success {
		t.Error("empty retrieval is a successful query, not an error")
	}
	if res.RankMethod != domain.RankNone {
		t.Errorf("rank method = %q", res.RankMethod)
	}
	if g.gotPrompt != "" {
		t.Error("generator must not be called without retrieved context")
	}
	if len(res.Sources) != 0 {
		t.Errorf("sources = %v", res.Sources)
	}
}

func TestQuery_IndexFailureDegradesToEmpty(t *testing.T) {
	e := &mockEmbedder{vec: []float32{1}}
	idx := &mockIndex{err: errors.New("index down")}
	g := &mockGenerator{}
	s := newTestService(t, e, idx, g)

	res, err := s.Query(context.Background(), Request{Question: "anything"})
	if err != nil {
		t.Fatalf("Query must not fail on index errors: %v", err)
	}
	if res.Answer != noDocumentsAnswer {
		t.Errorf("answer = %q", res.Answer)
	}
}

func TestQuery_EmbeddingFailureIsHardError(t *testing.T) {
	e := &mockEmbedder{err: errors.New("provider down")}
	s := newTestService(t, e, &mockIndex{}, &mockGenerator{})

	if _, err := s.Query(context.Background(), Request{Question: "anything"}); err == nil {
		t.Fatal("expected error when the query cannot be embedded")
	}
}

func TestQuery_EmptyQuestion(t *testing.T) {
	s := newTestService(t, &mockEmbedder{}, &mockIndex{}, &mockGenerator{})

	if _, err := s.Query(context.Background(), Request{Question: "   "}); err == nil {
		t.Fatal("expected error for empty question")
	}
}

func TestQuery_LongContentIsPreviewTruncated(t *testing.T) {
	long := strings.Repeat("x", 500)
	e := &mockEmbedder{vec: []float32{1}}
	idx := &mockIndex{candidates: []domain.Candidate{candidate("doc-1#0", long, "a.txt", 0.9)}}
	g := &mockGenerator{result: domain.GenerationResult{Answer: "ok", Success: true}}
	s := newTestService(t, e, idx, g)

	res, err := s.Query(context.Background(), Request{Question: "q"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if got := len(res.Sources[0].Preview); got != previewLen+3 {
		t.Errorf("preview length = %d, want %d", got, previewLen+3)
	}
	if !strings.HasSuffix(res.Sources[0].Preview, "...") {
		t.Error("truncated preview must end with ellipsis")
	}
}
