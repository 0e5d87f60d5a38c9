package generation

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragline/internal/domain"
	"github.com/kailas-cloud/ragline/internal/metrics"
)

// unavailableAnswer is returned when every provider failed. It is the only
// text exposed to callers in that case; provider error detail stays in logs.
const unavailableAnswer = "I apologize, but I'm currently unable to generate a response. " +
	"All AI providers are unavailable. Please try again later."

// Sleeper waits between retry attempts. Injected so tests run without
// real delays.
type Sleeper func(ctx context.Context, d time.Duration)

func defaultSleeper(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// Orchestrator generates answers through an ordered provider chain. The
// provider that last succeeded is tried first on subsequent requests, then
// the rest of the chain in configured order. Each provider gets
// maxRetries+1 attempts before the chain moves on.
type Orchestrator struct {
	providers  []domain.Provider
	maxRetries int
	retryDelay time.Duration
	sleep      Sleeper
	logger     *zap.Logger

	mu             sync.Mutex
	lastSuccessful domain.Provider
}

// Config holds the orchestrator settings.
type Config struct {
	MaxRetries int
	RetryDelay time.Duration
}

// New creates a generation orchestrator over the providers in priority order.
func New(providers []domain.Provider, cfg Config, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		providers:  providers,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		sleep:      defaultSleeper,
		logger:     logger,
	}
}

// WithSleeper replaces the retry delay function.
func (o *Orchestrator) WithSleeper(s Sleeper) *Orchestrator {
	o.sleep = s
	return o
}

// Providers returns the names of the configured provider chain.
func (o *Orchestrator) Providers() []string {
	names := make([]string, len(o.providers))
	for i, p := range o.providers {
		names[i] = p.Name()
	}
	return names
}

// Generate produces an answer for the prompt. The result always has
// Success set; when false, Answer carries a fixed user-safe message and
// Provider is "none".
func (o *Orchestrator) Generate(ctx context.Context, prompt string, maxTokens int, temperature float32) domain.GenerationResult {
	o.mu.Lock()
	last := o.lastSuccessful
	o.mu.Unlock()

	if last != nil {
		if answer, ok := o.tryProvider(ctx, last, prompt, maxTokens, temperature); ok {
			return successResult(last, answer)
		}
	}

	for _, p := range o.providers {
		if p == last {
			continue
		}
		if answer, ok := o.tryProvider(ctx, p, prompt, maxTokens, temperature); ok {
			o.mu.Lock()
			o.lastSuccessful = p
			o.mu.Unlock()
			return successResult(p, answer)
		}
	}

	o.logger.Error("All generation providers failed",
		zap.Strings("providers", o.Providers()))
	return domain.GenerationResult{
		Answer:   unavailableAnswer,
		Provider: "none",
		Model:    "none",
		Success:  false,
		Err:      "all providers failed",
	}
}

// tryProvider runs one provider with retries. Empty answers count as
// failures so a degenerate provider cannot short-circuit the chain.
func (o *Orchestrator) tryProvider(ctx context.Context, p domain.Provider, prompt string, maxTokens int, temperature float32) (string, bool) {
	for attempt := 0; attempt <= o.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return "", false
		}
		if attempt > 0 {
			o.sleep(ctx, o.retryDelay)
		}

		start := time.Now()
		answer, err := p.Generate(ctx, prompt, maxTokens, temperature)
		metrics.GenerationDuration.WithLabelValues(p.Name()).Observe(time.Since(start).Seconds())

		if err != nil || answer == "" {
			metrics.GenerationAttemptsTotal.WithLabelValues(p.Name(), "error").Inc()
			o.logger.Warn("Generation attempt failed",
				zap.String("provider", p.Name()),
				zap.String("model", p.Model()),
				zap.Int("attempt", attempt+1),
				zap.Error(err))
			continue
		}

		metrics.GenerationAttemptsTotal.WithLabelValues(p.Name(), "success").Inc()
		return answer, true
	}
	return "", false
}

func successResult(p domain.Provider, answer string) domain.GenerationResult {
	return domain.GenerationResult{
		Answer:   answer,
		Provider: p.Name(),
		Model:    p.Model(),
		Success:  true,
	}
}
