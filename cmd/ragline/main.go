package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ragline/internal/chunker"
	"github.com/kailas-cloud/ragline/internal/config"
	dbRedis "github.com/kailas-cloud/ragline/internal/db/redis"
	"github.com/kailas-cloud/ragline/internal/domain"
	logpkg "github.com/kailas-cloud/ragline/internal/logger"
	"github.com/kailas-cloud/ragline/internal/metrics"
	"github.com/kailas-cloud/ragline/internal/repository/embcache"
	jobsrepo "github.com/kailas-cloud/ragline/internal/repository/jobs"
	vectorrepo "github.com/kailas-cloud/ragline/internal/repository/vectorindex"
	"github.com/kailas-cloud/ragline/internal/transport/anthropic"
	"github.com/kailas-cloud/ragline/internal/transport/bedrock"
	chiTransport "github.com/kailas-cloud/ragline/internal/transport/chi"
	openaiTransport "github.com/kailas-cloud/ragline/internal/transport/openai"
	embeddinguc "github.com/kailas-cloud/ragline/internal/usecase/embedding"
	generationuc "github.com/kailas-cloud/ragline/internal/usecase/generation"
	ingestuc "github.com/kailas-cloud/ragline/internal/usecase/ingest"
	queryuc "github.com/kailas-cloud/ragline/internal/usecase/query"
	searchuc "github.com/kailas-cloud/ragline/internal/usecase/search"
	"github.com/kailas-cloud/ragline/internal/version"
)

// geminiOpenAIBaseURL is Gemini's OpenAI-compatible endpoint, used unless
// the config overrides it.
const geminiOpenAIBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"

func main() {
	// Load .env if present; real environment variables take precedence.
	_ = godotenv.Load()

	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.New(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting ragline API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("db_addrs", cfg.Database.Addrs),
		zap.String("embedding_model", cfg.Embedding.Model),
	)

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Password: cfg.Database.Password,
	})
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	// Register Prometheus metrics explicitly (no init())
	metrics.Register()
	metrics.RegisterHTTP()

	// Embedding chain: OpenAI-compatible transport behind a read-through cache
	embedder := openaiTransport.NewEmbedder(&openaiTransport.EmbedderConfig{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Index.Dimensions,
		Logger:     logger,
	})

	var cache embeddinguc.VectorCache = embcache.New(store, cfg.Storage.KeyPrefix, metrics.EmbeddingCacheTotal, logger)
	if cfg.Embedding.CacheEnabled != nil && !*cfg.Embedding.CacheEnabled {
		cache = embeddinguc.NopCache{}
		logger.Info("Embedding cache disabled")
	}

	embedGen, err := embeddinguc.New(embedder, cache, embeddinguc.Config{
		Model:      cfg.Embedding.Model,
		BatchSize:  cfg.Embedding.BatchSize,
		MaxTextLen: cfg.Embedding.MaxTextLen,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to create embedding generator", zap.Error(err))
	}

	vecIndex := vectorrepo.New(store, vectorrepo.Options{
		KeyPrefix:   cfg.Storage.KeyPrefix,
		IndexName:   cfg.Storage.KeyPrefix + "chunks-idx",
		Dim:         cfg.Index.Dimensions,
		M:           cfg.Index.HNSWM,
		EFConstruct: cfg.Index.HNSWEFConstruct,
	}, logger)
	if err := vecIndex.EnsureIndex(ctx); err != nil {
		logger.Fatal("Failed to ensure vector index", zap.Error(err))
	}

	chk, err := chunker.New(cfg.Chunking.ChunkSize, cfg.Chunking.ChunkOverlap)
	if err != nil {
		logger.Fatal("Invalid chunking config", zap.Error(err))
	}

	ranker, err := searchuc.NewRanker(*cfg.Search.BM25Weight, *cfg.Search.SemanticWeight, logger)
	if err != nil {
		logger.Fatal("Invalid ranking weights", zap.Error(err))
	}

	providers := buildProviders(ctx, cfg, logger)
	if len(providers) == 0 {
		logger.Warn("No generation providers configured, queries will return the unavailable answer")
	}
	orchestrator := generationuc.New(providers, generationuc.Config{
		MaxRetries: *cfg.Generation.MaxRetries,
		RetryDelay: time.Duration(*cfg.Generation.RetryDelaySeconds) * time.Second,
	}, logger)

	jobStore := jobsrepo.New(store, cfg.Storage.KeyPrefix)
	ingestSvc := ingestuc.New(chk, embedGen, vecIndex, jobStore, logger)
	querySvc := queryuc.New(embedGen, vecIndex, ranker, orchestrator, queryuc.Config{
		TopK:        cfg.Search.DefaultTopK,
		MaxTokens:   cfg.Generation.MaxTokens,
		Temperature: cfg.Generation.Temperature,
	}, logger)

	server := chiTransport.NewServer(ingestSvc, querySvc, store, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Routes(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// buildProviders assembles the generation chain in priority order. A
// provider joins the chain only when its credentials are configured.
func buildProviders(ctx context.Context, cfg config.Config, logger *zap.Logger) []domain.Provider {
	var providers []domain.Provider

	if c := cfg.Generation.OpenAI; c.APIKey != "" {
		providers = append(providers, openaiTransport.NewChatProvider(&openaiTransport.ChatConfig{
			Name: "openai", APIKey: c.APIKey, BaseURL: c.BaseURL, Model: c.Model,
		}))
		logger.Info("Generation provider enabled", zap.String("provider", "openai"), zap.String("model", c.Model))
	}

	if c := cfg.Generation.Gemini; c.APIKey != "" {
		baseURL := c.BaseURL
		if baseURL == "" {
			baseURL = geminiOpenAIBaseURL
		}
		providers = append(providers, openaiTransport.NewChatProvider(&openaiTransport.ChatConfig{
			Name: "gemini", APIKey: c.APIKey, BaseURL: baseURL, Model: c.Model,
		}))
		logger.Info("Generation provider enabled", zap.String("provider", "gemini"), zap.String("model", c.Model))
	}

	if c := cfg.Generation.Anthropic; c.APIKey != "" {
		providers = append(providers, anthropic.New(&anthropic.Config{
			APIKey: c.APIKey, BaseURL: c.BaseURL, Model: c.Model,
		}))
		logger.Info("Generation provider enabled", zap.String("provider", "anthropic"), zap.String("model", c.Model))
	}

	if c := cfg.Generation.Bedrock; c.Region != "" {
		p, err := bedrock.New(ctx, c.Region, c.Model)
		if err != nil {
			logger.Warn("Bedrock provider unavailable", zap.Error(err))
		} else {
			providers = append(providers, p)
			logger.Info("Generation provider enabled", zap.String("provider", "bedrock"), zap.String("model", c.Model))
		}
	}

	if c := cfg.Generation.Ollama; c.Enabled {
		providers = append(providers, openaiTransport.NewChatProvider(&openaiTransport.ChatConfig{
			Name: "ollama", BaseURL: c.BaseURL, Model: c.Model,
		}))
		logger.Info("Generation provider enabled", zap.String("provider", "ollama"), zap.String("model", c.Model))
	}

	return providers
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			// Set X-Request-ID in response header
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.WithContext(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line — one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
