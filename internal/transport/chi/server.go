package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ragline/internal/db"
	"github.com/kailas-cloud/ragline/internal/domain"
	ingestuc "github.com/kailas-cloud/ragline/internal/usecase/ingest"
	queryuc "github.com/kailas-cloud/ragline/internal/usecase/query"
)

// Error response codes exposed to API clients.
const (
	codeBadRequest       = "bad_request"
	codeValidationFailed = "validation_failed"
	codeJobNotFound      = "job_not_found"
	codeEmbeddingError   = "embedding_provider_error"
	codeIndexUnavailable = "index_unavailable"
	codeInternalError    = "internal_error"
)

// errorResponse is the uniform error body.
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// ingestService is the ingest pipeline surface the server exposes.
type ingestService interface {
	Submit(ctx context.Context, req ingestuc.Request) (*domain.IngestJob, error)
	Process(ctx context.Context, req ingestuc.Request) error
	Job(ctx context.Context, documentID string) (*domain.IngestJob, error)
	Delete(ctx context.Context, documentID, namespace string) error
}

// queryService is the query pipeline surface the server exposes.
type queryService interface {
	Query(ctx context.Context, req queryuc.Request) (*queryuc.Result, error)
}

// Server exposes the ingest and query pipelines over HTTP.
type Server struct {
	ingest        ingestService
	query         queryService
	pinger        db.Pinger
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(ingest ingestService, query queryService, pinger db.Pinger, logger *zap.Logger) *Server {
	s := &Server{
		ingest: ingest,
		query:  query,
		pinger: pinger,
		logger: logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrJobNotFound, http.StatusNotFound, codeJobNotFound),
		sentinelHandler(domain.ErrEmptyDocument, http.StatusBadRequest, codeValidationFailed),
		sentinelHandler(domain.ErrNoEmbeddings, http.StatusBadRequest, codeValidationFailed),
		sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway, codeEmbeddingError),
		sentinelHandler(domain.ErrIndexUnavailable, http.StatusServiceUnavailable, codeIndexUnavailable),
	}
	return s
}

// Routes mounts all API routes on the router.
func (s *Server) Routes(r chi.Router) {
	r.Post("/v1/documents", s.ingestDocument)
	r.Get("/v1/documents/{id}", s.getDocumentJob)
	r.Delete("/v1/documents/{id}", s.deleteDocument)
	r.Post("/v1/query", s.queryDocuments)
	r.Get("/health", s.healthCheck)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
}

type ingestRequest struct {
	DocumentID string `json:"document_id"`
	Namespace  string `json:"namespace"`
	Source     string `json:"source"`
	Text       string `json:"text"`
}

// ingestDocument handles POST /v1/documents. Processing runs detached
// from the request; the job is returned immediately for polling.
func (s *Server) ingestDocument(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.DocumentID == "" {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "document_id is required")
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "text is required")
		return
	}

	ucReq := ingestuc.Request{
		DocumentID: req.DocumentID,
		Namespace:  req.Namespace,
		Source:     req.Source,
		Text:       req.Text,
	}
	job, err := s.ingest.Submit(r.Context(), ucReq)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	// Client disconnects must not abort ingestion.
	go func(ctx context.Context) {
		_ = s.ingest.Process(ctx, ucReq)
	}(context.WithoutCancel(r.Context()))

	writeJSON(w, http.StatusAccepted, job)
}

// getDocumentJob handles GET /v1/documents/{id}.
func (s *Server) getDocumentJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.ingest.Job(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// deleteDocument handles DELETE /v1/documents/{id}.
func (s *Server) deleteDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	namespace := r.URL.Query().Get("namespace")

	if err := s.ingest.Delete(r.Context(), id, namespace); err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type queryRequest struct {
	Question  string            `json:"question"`
	Namespace string            `json:"namespace"`
	TopK      int               `json:"top_k"`
	Filter    map[string]string `json:"filter"`
}

// queryDocuments handles POST /v1/query.
func (s *Server) queryDocuments(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "question is required")
		return
	}
	if req.TopK < 0 {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "top_k must not be negative")
		return
	}

	res, err := s.query.Query(r.Context(), queryuc.Request{
		Question:  req.Question,
		Namespace: req.Namespace,
		TopK:      req.TopK,
		Filter:    req.Filter,
	})
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// healthCheck handles GET /health.
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	httpStatus := http.StatusOK
	checks := map[string]string{"database": "ok"}

	if err := s.pinger.Ping(r.Context()); err != nil {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
		checks["database"] = "unreachable"
		s.logger.Warn("Health check failed", zap.Error(err))
	}

	writeJSON(w, httpStatus, map[string]any{
		"status": status,
		"checks": checks,
	})
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			s.logger.Warn("domain error",
				zap.String("path", r.URL.Path),
				zap.Error(err))
			return
		}
	}
	s.logger.Error("internal error",
		zap.String("path", r.URL.Path),
		zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}

// safeDomainMessage returns a sentinel error message for the client without
// exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrJobNotFound,
		domain.ErrEmptyDocument,
		domain.ErrNoEmbeddings,
		domain.ErrEmbeddingProviderError,
		domain.ErrIndexUnavailable,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		Code:    code,
		Message: message,
	})
}
