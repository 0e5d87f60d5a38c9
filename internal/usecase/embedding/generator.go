package embedding

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragline/internal/domain"
)

// VectorCache is the cache capability the generator consumes.
type VectorCache interface {
	Get(ctx context.Context, text, model string) ([]float32, bool)
	Set(ctx context.Context, text, model string, vec []float32)
}

// NopCache satisfies VectorCache without storing anything. Used when the
// embedding cache is disabled in config.
type NopCache struct{}

func (NopCache) Get(context.Context, string, string) ([]float32, bool) { return nil, false }
func (NopCache) Set(context.Context, string, string, []float32)       {}

// Generator produces embeddings with text normalization, batching and a
// read-through cache. Cache hits and provider results are merged back in
// input order.
type Generator struct {
	embedder   domain.BatchEmbedder
	cache      VectorCache
	model      string
	batchSize  int
	maxTextLen int
	logger     *zap.Logger
}

// Config holds the generator settings.
type Config struct {
	Model      string
	BatchSize  int
	MaxTextLen int
}

// New creates an embedding generator.
func New(embedder domain.BatchEmbedder, cache VectorCache, cfg Config, logger *zap.Logger) (*Generator, error) {
	if cfg.Model == "" {
		return nil, domain.ErrMissingModel
	}
	if cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", cfg.BatchSize)
	}
	return &Generator{
		embedder:   embedder,
		cache:      cache,
		model:      cfg.Model,
		batchSize:  cfg.BatchSize,
		maxTextLen: cfg.MaxTextLen,
		logger:     logger,
	}, nil
}

// Model returns the configured embedding model identifier.
func (g *Generator) Model() string { return g.model }

// EmbedOne embeds a single text, consulting the cache first.
func (g *Generator) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	cleaned := g.cleanText(text)
	if cleaned == "" {
		return nil, fmt.Errorf("embed: %w", domain.ErrEmptyDocument)
	}

	if vec, ok := g.cache.Get(ctx, cleaned, g.model); ok {
		return vec, nil
	}

	res, err := g.embedder.BatchEmbed(ctx, []string{cleaned})
	if err != nil {
		return nil, err
	}
	vec := res.Embeddings[0]
	g.cache.Set(ctx, cleaned, g.model, vec)
	return vec, nil
}

// EmbedMany embeds texts in batches, preserving positions. Entries that
// cannot be embedded (empty after cleaning, or part of a failed provider
// batch) are nil; the caller decides whether partial results are enough.
// The returned error is non-nil only when the context is done.
func (g *Generator) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))

	for start := 0; start < len(texts); start += g.batchSize {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		end := min(start+g.batchSize, len(texts))
		g.embedBatch(ctx, texts[start:end], results[start:end])
	}

	empty := 0
	for _, r := range results {
		if r == nil {
			empty++
		}
	}
	if len(results) > 0 && empty*2 > len(results) {
		g.logger.Warn("More than half of texts produced no embedding",
			zap.Int("empty", empty),
			zap.Int("total", len(results)))
	}

	return results, nil
}

// embedBatch fills results for one batch window: cache hits directly, the
// remaining misses through a single provider call.
func (g *Generator) embedBatch(ctx context.Context, texts []string, results [][]float32) {
	var missIdx []int
	var missTexts []string

	for i, text := range texts {
		cleaned := g.cleanText(text)
		if cleaned == "" {
			continue
		}
		if vec, ok := g.cache.Get(ctx, cleaned, g.model); ok {
			results[i] = vec
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, cleaned)
	}

	if len(missTexts) == 0 {
		return
	}

	res, err := g.embedder.BatchEmbed(ctx, missTexts)
	if err != nil {
		// Failed batch entries stay nil; the rest of the document proceeds.
		g.logger.Error("Embedding batch failed",
			zap.Int("batch_size", len(missTexts)),
			zap.Error(err))
		return
	}

	for j, i := range missIdx {
		vec := res.Embeddings[j]
		if vec == nil {
			continue
		}
		results[i] = vec
		g.cache.Set(ctx, missTexts[j], g.model, vec)
	}
}

// cleanText collapses runs of whitespace into single spaces and truncates
// to the configured maximum length.
func (g *Generator) cleanText(text string) string {
	cleaned := strings.Join(strings.Fields(text), " ")
	if g.maxTextLen > 0 && len(cleaned) > g.maxTextLen {
		cleaned = cleaned[:g.maxTextLen]
	}
	return cleaned
}
