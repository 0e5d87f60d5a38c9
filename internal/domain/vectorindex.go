package domain

import "context"

// VectorRecord is a single vector upserted into the index.
type VectorRecord struct {
	ID       string
	Values   []float32
	Content  string
	Metadata map[string]string
}

// VectorIndex is the external approximate-nearest-neighbor capability the
// retrieval pipeline consumes. Namespace isolates one tenant's vectors from
// another's; callers are responsible for scoping queries before retrieval.
type VectorIndex interface {
	Upsert(ctx context.Context, records []VectorRecord, namespace string) error
	Query(ctx context.Context, vector []float32, topK int, namespace string, filter map[string]string) ([]Candidate, error)
	DeleteByIDs(ctx context.Context, ids []string, namespace string) error
	DeleteByFilter(ctx context.Context, filter map[string]string, namespace string) error
}
