package domain

import "time"

// JobStatus is the lifecycle state of a document ingestion job.
type JobStatus string

// Ingestion job lifecycle: pending → processing → completed|failed.
const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// IngestJob tracks a single document's progress through the ingest pipeline.
// External callers poll it by DocumentID; the orchestrating caller must not
// run two jobs for the same document concurrently.
type IngestJob struct {
	DocumentID string    `json:"document_id"`
	Namespace  string    `json:"namespace"`
	Source     string    `json:"source"`
	Status     JobStatus `json:"status"`
	NumChunks  int       `json:"num_chunks"`
	NumVectors int       `json:"num_vectors"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
