package domain

import "errors"

var (
	// ErrInvalidWeights signals ranker weights that do not sum to 1.0.
	ErrInvalidWeights = errors.New("bm25 and semantic weights must sum to 1.0")
	// ErrMissingModel signals a missing embedding model identifier.
	ErrMissingModel = errors.New("embedding model is required")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrIndexUnavailable signals that the vector index cannot be reached.
	ErrIndexUnavailable = errors.New("vector index unavailable")
	// ErrJobNotFound signals a missing ingestion job.
	ErrJobNotFound = errors.New("ingest job not found")
	// ErrEmptyDocument signals a document with no extractable text.
	ErrEmptyDocument = errors.New("document has no extractable text")
	// ErrNoEmbeddings signals that no chunk of a document could be embedded.
	ErrNoEmbeddings = errors.New("no chunk embeddings could be generated")
)
