package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kailas-cloud/ragline/internal/db"
	"github.com/kailas-cloud/ragline/internal/domain"
)

// kv is the consumer interface for job persistence.
type kv interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Del(ctx context.Context, key string) error
}

// Store persists ingestion jobs as JSON keyed by document ID.
type Store struct {
	kv        kv
	keyPrefix string
}

// New creates a job store over a key-value store.
func New(kv kv, keyPrefix string) *Store {
	return &Store{kv: kv, keyPrefix: keyPrefix + "job:"}
}

// Save writes the job state, replacing any previous state.
func (s *Store) Save(ctx context.Context, job *domain.IngestJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", job.DocumentID, err)
	}
	if err := s.kv.Set(ctx, s.key(job.DocumentID), data); err != nil {
		return fmt.Errorf("save job %s: %w", job.DocumentID, err)
	}
	return nil
}

// Get returns the job for a document, or domain.ErrJobNotFound.
func (s *Store) Get(ctx context.Context, documentID string) (*domain.IngestJob, error) {
	data, err := s.kv.Get(ctx, s.key(documentID))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("get job %s: %w", documentID, err)
	}

	var job domain.IngestJob
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("parse job %s: %w", documentID, err)
	}
	return &job, nil
}

// Delete removes the job record for a document.
func (s *Store) Delete(ctx context.Context, documentID string) error {
	if err := s.kv.Del(ctx, s.key(documentID)); err != nil {
		return fmt.Errorf("delete job %s: %w", documentID, err)
	}
	return nil
}

func (s *Store) key(documentID string) string {
	return s.keyPrefix + documentID
}
