package ingest

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragline/internal/domain"
)

type mockChunker struct {
	chunkFn func(text, sourceID string) []domain.Chunk
}

func (m *mockChunker) Chunk(text, sourceID string) []domain.Chunk {
	if m.chunkFn != nil {
		return m.chunkFn(text, sourceID)
	}
	return []domain.Chunk{
		{Text: text, StartChar: 0, EndChar: len(text), ChunkIndex: 0, SourceID: sourceID},
	}
}

type mockEmbedder struct {
	embedFn func(ctx context.Context, texts []string) ([][]float32, error)
}

func (m *mockEmbedder) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	if m.embedFn != nil {
		return m.embedFn(ctx, texts)
	}
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{1}
	}
	return out, nil
}

type mockIndex struct {
	upserted  []domain.VectorRecord
	namespace string
	upsertErr error
	deleted   map[string]string
}

func (m *mockIndex) Upsert(_ context.Context, records []domain.VectorRecord, namespace string) error {
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.upserted = append(m.upserted, records...)
	m.namespace = namespace
	return nil
}

func (m *mockIndex) Query(_ context.Context, _ []float32, _ int, _ string, _ map[string]string) ([]domain.Candidate, error) {
	return nil, nil
}

func (m *mockIndex) DeleteByIDs(_ context.Context, _ []string, _ string) error { return nil }

func (m *mockIndex) DeleteByFilter(_ context.Context, filter map[string]string, namespace string) error {
	m.deleted = filter
	m.namespace = namespace
	return nil
}

type mockJobs struct {
	jobs map[string]domain.IngestJob
}

func newMockJobs() *mockJobs { return &mockJobs{jobs: map[string]domain.IngestJob{}} }

func (m *mockJobs) Save(_ context.Context, job *domain.IngestJob) error {
	m.jobs[job.DocumentID] = *job
	return nil
}

func (m *mockJobs) Get(_ context.Context, documentID string) (*domain.IngestJob, error) {
	j, ok := m.jobs[documentID]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	return &j, nil
}

func (m *mockJobs) Delete(_ context.Context, documentID string) error {
	delete(m.jobs, documentID)
	return nil
}

func newTestService(t *testing.T) (*Service, *mockChunker, *mockEmbedder, *mockIndex, *mockJobs) {
	t.Helper()
	c, e, idx, jobs := &mockChunker{}, &mockEmbedder{}, &mockIndex{}, newMockJobs()
	return New(c, e, idx, jobs, zap.NewNop()), c, e, idx, jobs
}

func submit(t *testing.T, s *Service, req Request) {
	t.Helper()
	if _, err := s.Submit(context.Background(), req); err != nil {
		t.Fatalf("Submit: %v", err)
	}
}

func TestSubmit_CreatesPendingJob(t *testing.T) {
	s, _, _, _, jobs := newTestService(t)

	job, err := s.Submit(context.Background(), Request{
		DocumentID: "doc-1", Namespace: "ns1", Source: "a.txt", Text: "body",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if job.Status != domain.JobPending {
		t.Errorf("status = %q", job.Status)
	}
	if saved := jobs.jobs["doc-1"]; saved.Status != domain.JobPending {
		t.Errorf("persisted status = %q", saved.Status)
	}
}

func TestSubmit_RejectsEmptyText(t *testing.T) {
	s, _, _, _, _ := newTestService(t)

	_, err := s.Submit(context.Background(), Request{DocumentID: "doc-1"})
	if !errors.Is(err, domain.ErrEmptyDocument) {
		t.Fatalf("err = %v, want ErrEmptyDocument", err)
	}
}

func TestProcess_CompletesJobWithCounts(t *testing.T) {
	s, c, _, idx, jobs := newTestService(t)
	ctx := context.Background()

	c.chunkFn = func(text, sourceID string) []domain.Chunk {
		return []domain.Chunk{
			{Text: "part one", ChunkIndex: 0, StartChar: 0, EndChar: 8, SourceID: sourceID},
			{Text: "part two", ChunkIndex: 1, StartChar: 9, EndChar: 17, SourceID: sourceID},
		}
	}

	req := Request{DocumentID: "doc-1", Namespace: "ns1", Source: "a.txt", Text: "part one part two"}
	submit(t, s, req)
	if err := s.Process(ctx, req); err != nil {
		t.Fatalf("Process: %v", err)
	}

	job := jobs.jobs["doc-1"]
	if job.Status != domain.JobCompleted {
		t.Fatalf("status = %q, error = %q", job.Status, job.Error)
	}
	if job.NumChunks != 2 || job.NumVectors != 2 {
		t.Errorf("counts = %d/%d, want 2/2", job.NumChunks, job.NumVectors)
	}

	if len(idx.upserted) != 2 {
		t.Fatalf("upserted %d records", len(idx.upserted))
	}
	rec := idx.upserted[0]
	if rec.ID != "doc-1#0" {
		t.Errorf("record id = %q", rec.ID)
	}
	if rec.Metadata["doc_id"] != "doc-1" || rec.Metadata["chunk_index"] != "0" {
		t.Errorf("metadata = %v", rec.Metadata)
	}
	if idx.namespace != "ns1" {
		t.Errorf("namespace = %q", idx.namespace)
	}
}

func TestProcess_SkipsFailedEmbeddings(t *testing.T) {
	s, c, e, idx, jobs := newTestService(t)

	c.chunkFn = func(_, sourceID string) []domain.Chunk {
		return []domain.Chunk{
			{Text: "ok", ChunkIndex: 0, SourceID: sourceID},
			{Text: "bad", ChunkIndex: 1, SourceID: sourceID},
			{Text: "ok too", ChunkIndex: 2, SourceID: sourceID},
		}
	}
	e.embedFn = func(_ context.Context, texts []string) ([][]float32, error) {
		return [][]float32{{1}, nil, {2}}, nil
	}

	req := Request{DocumentID: "doc-1", Namespace: "ns1", Text: "body"}
	submit(t, s, req)
	if err := s.Process(context.Background(), req); err != nil {
		t.Fatalf("Process: %v", err)
	}

	job := jobs.jobs["doc-1"]
	if job.Status != domain.JobCompleted {
		t.Fatalf("status = %q", job.Status)
	}
	if job.NumChunks != 3 || job.NumVectors != 2 {
		t.Errorf("counts = %d/%d, want 3/2", job.NumChunks, job.NumVectors)
	}
	if len(idx.upserted) != 2 {
		t.Errorf("upserted %d records, want 2", len(idx.upserted))
	}
}

func TestProcess_AllEmbeddingsFailedMarksJobFailed(t *testing.T) {
	s, _, e, idx, jobs := newTestService(t)

	e.embedFn = func(_ context.Context, texts []string) ([][]float32, error) {
		return make([][]float32, len(texts)), nil
	}

	req := Request{DocumentID: "doc-1", Namespace: "ns1", Text: "body"}
	submit(t, s, req)
	err := s.Process(context.Background(), req)
	if !errors.Is(err, domain.ErrNoEmbeddings) {
		t.Fatalf("err = %v, want ErrNoEmbeddings", err)
	}

	job := jobs.jobs["doc-1"]
	if job.Status != domain.JobFailed {
		t.Errorf("status = %q, want failed", job.Status)
	}
	if job.Error == "" {
		t.Error("failed job must carry an error message")
	}
	if len(idx.upserted) != 0 {
		t.Error("nothing must be upserted when all embeddings failed")
	}
}

func TestProcess_UpsertFailureMarksJobFailed(t *testing.T) {
	s, _, _, idx, jobs := newTestService(t)
	idx.upsertErr = errors.New("index down")

	req := Request{DocumentID: "doc-1", Namespace: "ns1", Text: "body"}
	submit(t, s, req)
	if err := s.Process(context.Background(), req); err == nil {
		t.Fatal("expected error")
	}

	if jobs.jobs["doc-1"].Status != domain.JobFailed {
		t.Errorf("status = %q, want failed", jobs.jobs["doc-1"].Status)
	}
}

func TestDelete_RemovesVectorsAndJob(t *testing.T) {
	s, _, _, idx, jobs := newTestService(t)
	ctx := context.Background()

	req := Request{DocumentID: "doc-1", Namespace: "ns1", Text: "body"}
	submit(t, s, req)

	if err := s.Delete(ctx, "doc-1", "ns1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if idx.deleted["doc_id"] != "doc-1" {
		t.Errorf("index filter = %v", idx.deleted)
	}
	if _, ok := jobs.jobs["doc-1"]; ok {
		t.Error("job record must be deleted")
	}
}
