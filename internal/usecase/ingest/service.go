package ingest

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragline/internal/domain"
)

// chunker splits document text into position-tracked chunks.
type chunker interface {
	Chunk(text, sourceID string) []domain.Chunk
}

// embedder vectorizes chunk texts in order; failed entries are nil.
type embedder interface {
	EmbedMany(ctx context.Context, texts []string) ([][]float32, error)
}

// jobStore persists ingestion job state.
type jobStore interface {
	Save(ctx context.Context, job *domain.IngestJob) error
	Get(ctx context.Context, documentID string) (*domain.IngestJob, error)
	Delete(ctx context.Context, documentID string) error
}

// Request describes one document to ingest.
type Request struct {
	DocumentID string
	Namespace  string
	Source     string
	Text       string
}

// Service runs the ingest pipeline: chunk, embed, upsert, with job state
// tracked at every stage. Chunks whose embedding failed are skipped; the
// job only fails when no chunk could be embedded at all.
type Service struct {
	chunker chunker
	embed   embedder
	index   domain.VectorIndex
	jobs    jobStore
	logger  *zap.Logger
	now     func() time.Time
}

// New creates an ingest service.
func New(c chunker, e embedder, index domain.VectorIndex, jobs jobStore, logger *zap.Logger) *Service {
	return &Service{
		chunker: c,
		embed:   e,
		index:   index,
		jobs:    jobs,
		logger:  logger,
		now:     time.Now,
	}
}

// Submit validates the request and records a pending job. The caller is
// responsible for invoking Process afterwards, typically on a detached
// context so client disconnects do not abort ingestion.
func (s *Service) Submit(ctx context.Context, req Request) (*domain.IngestJob, error) {
	if req.DocumentID == "" {
		return nil, fmt.Errorf("document id is required")
	}
	if req.Text == "" {
		return nil, domain.ErrEmptyDocument
	}

	now := s.now()
	job := &domain.IngestJob{
		DocumentID: req.DocumentID,
		Namespace:  req.Namespace,
		Source:     req.Source,
		Status:     domain.JobPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.jobs.Save(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// Process runs the pipeline for a submitted document, moving its job
// through processing to completed or failed.
func (s *Service) Process(ctx context.Context, req Request) error {
	job, err := s.jobs.Get(ctx, req.DocumentID)
	if err != nil {
		return err
	}

	job.Status = domain.JobProcessing
	job.UpdatedAt = s.now()
	if err := s.jobs.Save(ctx, job); err != nil {
		return err
	}

	if err := s.process(ctx, req, job); err != nil {
		job.Status = domain.JobFailed
		job.Error = err.Error()
		job.UpdatedAt = s.now()
		if saveErr := s.jobs.Save(ctx, job); saveErr != nil {
			s.logger.Error("Failed to record job failure",
				zap.String("document_id", req.DocumentID),
				zap.Error(saveErr))
		}
		s.logger.Error("Document ingestion failed",
			zap.String("document_id", req.DocumentID),
			zap.Error(err))
		return err
	}

	job.Status = domain.JobCompleted
	job.Error = ""
	job.UpdatedAt = s.now()
	if err := s.jobs.Save(ctx, job); err != nil {
		return err
	}

	s.logger.Info("Document ingested",
		zap.String("document_id", req.DocumentID),
		zap.String("namespace", req.Namespace),
		zap.Int("chunks", job.NumChunks),
		zap.Int("vectors", job.NumVectors))
	return nil
}

func (s *Service) process(ctx context.Context, req Request, job *domain.IngestJob) error {
	chunks := s.chunker.Chunk(req.Text, req.DocumentID)
	if len(chunks) == 0 {
		return domain.ErrEmptyDocument
	}
	job.NumChunks = len(chunks)

	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}

	embeddings, err := s.embed.EmbedMany(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed chunks: %w", err)
	}

	records := make([]domain.VectorRecord, 0, len(chunks))
	for i, ch := range chunks {
		if embeddings[i] == nil {
			continue
		}
		records = append(records, domain.VectorRecord{
			ID:      fmt.Sprintf("%s#%d", req.DocumentID, ch.ChunkIndex),
			Values:  embeddings[i],
			Content: ch.Text,
			Metadata: map[string]string{
				"doc_id":      req.DocumentID,
				"source":      req.Source,
				"chunk_index": strconv.Itoa(ch.ChunkIndex),
				"start_char":  strconv.Itoa(ch.StartChar),
				"end_char":    strconv.Itoa(ch.EndChar),
			},
		})
	}
	if len(records) == 0 {
		return domain.ErrNoEmbeddings
	}
	if len(records) < len(chunks) {
		s.logger.Warn("Some chunks could not be embedded",
			zap.String("document_id", req.DocumentID),
			zap.Int("embedded", len(records)),
			zap.Int("chunks", len(chunks)))
	}

	if err := s.index.Upsert(ctx, records, req.Namespace); err != nil {
		return fmt.Errorf("upsert vectors: %w", err)
	}
	job.NumVectors = len(records)
	return nil
}

// Job returns the ingestion job for a document.
func (s *Service) Job(ctx context.Context, documentID string) (*domain.IngestJob, error) {
	return s.jobs.Get(ctx, documentID)
}

// Delete removes a document's vectors and its job record.
func (s *Service) Delete(ctx context.Context, documentID, namespace string) error {
	if err := s.index.DeleteByFilter(ctx, map[string]string{"doc_id": documentID}, namespace); err != nil {
		return fmt.Errorf("delete document vectors: %w", err)
	}
	if err := s.jobs.Delete(ctx, documentID); err != nil {
		return fmt.Errorf("delete job record: %w", err)
	}
	return nil
}
