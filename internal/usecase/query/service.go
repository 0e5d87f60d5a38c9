package query

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragline/internal/domain"
)

// noDocumentsAnswer is returned without calling any generation provider
// when retrieval produced nothing to ground an answer on.
const noDocumentsAnswer = "I couldn't find any relevant documents in the knowledge base to answer your question."

// previewLen bounds the per-source content preview in attributions.
const previewLen = 200

// candidateMultiplier oversamples the vector index relative to topK so the
// hybrid ranker has a candidate pool to reorder, not just to truncate.
const candidateMultiplier = 3

// embedder vectorizes the query text.
type embedder interface {
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}

// ranker reorders index candidates and reports the scoring path used.
type ranker interface {
	RankWithFallback(query string, candidates []domain.Candidate, topK int) ([]domain.SearchResult, domain.RankMethod)
}

// generator produces the final answer from the assembled prompt.
type generator interface {
	Generate(ctx context.Context, prompt string, maxTokens int, temperature float32) domain.GenerationResult
}

// Request is one question against a namespace.
type Request struct {
	Question  string
	Namespace string
	TopK      int
	Filter    map[string]string
}

// Source attributes part of an answer to a stored chunk.
type Source struct {
	Document   string  `json:"document"`
	Source     string  `json:"source"`
	ChunkIndex int     `json:"chunk_index"`
	Score      float64 `json:"score"`
	Preview    string  `json:"preview"`
}

// Result is the full outcome of a query.
type Result struct {
	Question   string            `json:"question"`
	Answer     string            `json:"answer"`
	Provider   string            `json:"provider"`
	Model      string            `json:"model"`
	Success    bool              `json:"success"`
	RankMethod domain.RankMethod `json:"rank_method"`
	Sources    []Source          `json:"sources"`
}

// Config holds the query pipeline settings.
type Config struct {
	TopK        int
	MaxTokens   int
	Temperature float32
}

// Service runs the retrieval-and-generation pipeline. Index failures
// degrade to an empty candidate set instead of failing the query; only a
// failed query embedding is a hard error, since nothing can be retrieved
// without it.
type Service struct {
	embed  embedder
	index  domain.VectorIndex
	ranker ranker
	gen    generator
	cfg    Config
	logger *zap.Logger
}

// New creates a query service.
func New(e embedder, index domain.VectorIndex, r ranker, g generator, cfg Config, logger *zap.Logger) *Service {
	return &Service{embed: e, index: index, ranker: r, gen: g, cfg: cfg, logger: logger}
}

// Query answers a question from the indexed documents.
func (s *Service) Query(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.Question) == "" {
		return nil, fmt.Errorf("question is required")
	}
	topK := req.TopK
	if topK <= 0 {
		topK = s.cfg.TopK
	}

	vec, err := s.embed.EmbedOne(ctx, req.Question)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	candidates, err := s.index.Query(ctx, vec, topK*candidateMultiplier, req.Namespace, req.Filter)
	if err != nil {
		s.logger.Warn("Vector index query failed, answering without retrieval",
			zap.String("namespace", req.Namespace),
			zap.Error(err))
		candidates = nil
	}

	results, method := s.ranker.RankWithFallback(req.Question, candidates, topK)

	if len(results) == 0 {
		return &Result{
			Question:   req.Question,
			Answer:     noDocumentsAnswer,
			Provider:   "none",
			Model:      "none",
			Success:    true,
			RankMethod: method,
			Sources:    []Source{},
		}, nil
	}

	prompt := buildPrompt(req.Question, results)
	gen := s.gen.Generate(ctx, prompt, s.cfg.MaxTokens, s.cfg.Temperature)

	return &Result{
		Question:   req.Question,
		Answer:     gen.Answer,
		Provider:   gen.Provider,
		Model:      gen.Model,
		Success:    gen.Success,
		RankMethod: method,
		Sources:    buildSources(results),
	}, nil
}

// buildPrompt assembles the grounded generation prompt. Each retrieved
// chunk appears as a numbered document block the model can cite.
func buildPrompt(question string, results []domain.SearchResult) string {
	var b strings.Builder
	b.WriteString("You are a helpful assistant that answers questions using only the provided context.\n\nContext:\n")

	for i, res := range results {
		source := res.Metadata["source"]
		if source == "" {
			source = res.Metadata["doc_id"]
		}
		fmt.Fprintf(&b, "[Document %d: %s]\n%s\n\n", i+1, source, res.Content)
	}

	b.WriteString("Question: ")
	b.WriteString(question)
	b.WriteString("\n\nInstructions:\n")
	b.WriteString("1. Answer using only the information in the context above.\n")
	b.WriteString("2. If the context does not contain enough information, say so.\n")
	b.WriteString("3. When you use information from the context, mention which document it came from.\n")
	b.WriteString("\nAnswer:")
	return b.String()
}

func buildSources(results []domain.SearchResult) []Source {
	sources := make([]Source, len(results))
	for i, res := range results {
		chunkIndex, _ := strconv.Atoi(res.Metadata["chunk_index"])
		preview := res.Content
		if len(preview) > previewLen {
			preview = preview[:previewLen] + "..."
		}
		sources[i] = Source{
			Document:   res.Metadata["doc_id"],
			Source:     res.Metadata["source"],
			ChunkIndex: chunkIndex,
			Score:      res.CombinedScore,
			Preview:    preview,
		}
	}
	return sources
}
