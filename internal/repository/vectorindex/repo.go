package vectorindex

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragline/internal/db"
	"github.com/kailas-cloud/ragline/internal/domain"
)

// Hash field names of a stored vector record.
const (
	fieldVector    = "vector"
	fieldContent   = "content"
	fieldNamespace = "namespace"
	fieldDocID     = "doc_id"
	fieldChunkID   = "chunk_id"
	fieldMetadata  = "metadata"
)

// store is the consumer interface for the vector index repository.
type store interface {
	db.HashStore
	db.SetStore
	db.IndexManager
	db.Searcher
}

// Options configures key layout and the ANN index parameters.
type Options struct {
	KeyPrefix   string
	IndexName   string
	Dim         int
	M           int
	EFConstruct int
}

// Repo stores vector records as hashes under an HNSW-indexed prefix.
// Records belonging to one document are additionally tracked in a
// per-document set so the whole document can be deleted without a search.
type Repo struct {
	store  store
	opts   Options
	logger *zap.Logger
}

// New creates a vector index repository. EnsureIndex must be called once
// before the first Upsert or Query.
func New(s store, opts Options, logger *zap.Logger) *Repo {
	return &Repo{store: s, opts: opts, logger: logger}
}

var _ domain.VectorIndex = (*Repo)(nil)

// EnsureIndex creates the FT index if it does not exist yet.
func (r *Repo) EnsureIndex(ctx context.Context) error {
	exists, err := r.store.IndexExists(ctx, r.opts.IndexName)
	if err != nil {
		return fmt.Errorf("check index %s: %w", r.opts.IndexName, err)
	}
	if exists {
		return nil
	}

	def := &db.IndexDefinition{
		Name:     r.opts.IndexName,
		Prefixes: []string{r.opts.KeyPrefix + "vec:"},
		Fields: []db.IndexField{
			{Name: fieldNamespace, Type: db.IndexFieldTag},
			{Name: fieldDocID, Type: db.IndexFieldTag},
			{
				Name:              fieldVector,
				Type:              db.IndexFieldVector,
				VectorDim:         r.opts.Dim,
				VectorAlgo:        db.VectorHNSW,
				VectorM:           r.opts.M,
				VectorEFConstruct: r.opts.EFConstruct,
			},
		},
	}
	if err := r.store.CreateIndex(ctx, def); err != nil {
		return fmt.Errorf("create index %s: %w", r.opts.IndexName, err)
	}

	r.logger.Info("Created vector index",
		zap.String("index", r.opts.IndexName),
		zap.Int("dim", r.opts.Dim))
	return nil
}

// Upsert writes records into the namespace. Records with a doc_id metadata
// entry are registered in that document's membership set.
func (r *Repo) Upsert(ctx context.Context, records []domain.VectorRecord, namespace string) error {
	if len(records) == 0 {
		return nil
	}

	items := make([]db.HashSetItem, 0, len(records))
	docKeys := make(map[string][]string)

	for _, rec := range records {
		if len(rec.Values) != r.opts.Dim {
			return fmt.Errorf("record %s: vector dim %d, index expects %d",
				rec.ID, len(rec.Values), r.opts.Dim)
		}

		key := r.vecKey(namespace, rec.ID)
		fields := map[string]string{
			fieldVector:    encodeVector(rec.Values),
			fieldContent:   rec.Content,
			fieldNamespace: namespace,
			fieldChunkID:   rec.ID,
		}
		if len(rec.Metadata) > 0 {
			meta, err := json.Marshal(rec.Metadata)
			if err != nil {
				return fmt.Errorf("record %s: marshal metadata: %w", rec.ID, err)
			}
			fields[fieldMetadata] = string(meta)
		}
		if docID := rec.Metadata[fieldDocID]; docID != "" {
			fields[fieldDocID] = docID
			docKeys[docID] = append(docKeys[docID], key)
		}

		items = append(items, db.HashSetItem{Key: key, Fields: fields})
	}

	if err := r.store.HSetMulti(ctx, items); err != nil {
		return fmt.Errorf("upsert %d records: %w", len(items), err)
	}
	for docID, keys := range docKeys {
		if err := r.store.SAdd(ctx, r.docSetKey(namespace, docID), keys...); err != nil {
			return fmt.Errorf("track document %s: %w", docID, err)
		}
	}
	return nil
}

// Query returns the topK nearest candidates in the namespace. Filter keys
// must be indexed tag fields; doc_id is the only one beyond the namespace.
func (r *Repo) Query(ctx context.Context, vector []float32, topK int, namespace string, filter map[string]string) ([]domain.Candidate, error) {
	tags := map[string]string{fieldNamespace: namespace}
	for k, v := range filter {
		tags[k] = v
	}

	res, err := r.store.SearchKNN(ctx, &db.KNNQuery{
		IndexName:    r.opts.IndexName,
		Vector:       vector,
		K:            topK,
		TagFilters:   tags,
		ReturnFields: []string{fieldChunkID, fieldContent, fieldMetadata},
	})
	if err != nil {
		return nil, fmt.Errorf("knn query: %w", err)
	}

	candidates := make([]domain.Candidate, 0, len(res.Entries))
	for _, e := range res.Entries {
		c := domain.Candidate{
			ID:            e.Fields[fieldChunkID],
			Content:       e.Fields[fieldContent],
			SemanticScore: e.Score,
		}
		if c.ID == "" {
			c.ID = e.Key
		}
		if raw := e.Fields[fieldMetadata]; raw != "" {
			if err := json.Unmarshal([]byte(raw), &c.Metadata); err != nil {
				r.logger.Warn("Failed to parse candidate metadata",
					zap.String("key", e.Key), zap.Error(err))
			}
		}
		candidates = append(candidates, c)
	}
	return candidates, nil
}

// DeleteByIDs removes the given record IDs from the namespace.
func (r *Repo) DeleteByIDs(ctx context.Context, ids []string, namespace string) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.vecKey(namespace, id)
	}
	if err := r.store.DelMulti(ctx, keys); err != nil {
		return fmt.Errorf("delete %d records: %w", len(keys), err)
	}
	return nil
}

// DeleteByFilter removes all records matching the filter. Only doc_id
// filters are supported; deletion walks the document's membership set.
func (r *Repo) DeleteByFilter(ctx context.Context, filter map[string]string, namespace string) error {
	docID := filter[fieldDocID]
	if docID == "" {
		return fmt.Errorf("delete by filter requires a doc_id filter, got %v", filter)
	}

	setKey := r.docSetKey(namespace, docID)
	keys, err := r.store.SMembers(ctx, setKey)
	if err != nil {
		return fmt.Errorf("list document %s records: %w", docID, err)
	}
	if len(keys) == 0 {
		return nil
	}

	if err := r.store.DelMulti(ctx, append(keys, setKey)); err != nil {
		return fmt.Errorf("delete document %s: %w", docID, err)
	}
	r.logger.Debug("Deleted document vectors",
		zap.String("doc_id", docID),
		zap.String("namespace", namespace),
		zap.Int("count", len(keys)))
	return nil
}

func (r *Repo) vecKey(namespace, id string) string {
	return r.opts.KeyPrefix + "vec:" + namespace + ":" + id
}

func (r *Repo) docSetKey(namespace, docID string) string {
	return r.opts.KeyPrefix + "docvecs:" + namespace + ":" + docID
}

func encodeVector(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}
