package db

// IndexFieldType is the schema type of an indexed field.
type IndexFieldType string

// Supported field types.
const (
	IndexFieldTag    IndexFieldType = "tag"
	IndexFieldVector IndexFieldType = "vector"
)

// VectorAlgo selects the ANN algorithm for a vector field.
type VectorAlgo string

// Supported vector algorithms.
const (
	VectorFlat VectorAlgo = "FLAT"
	VectorHNSW VectorAlgo = "HNSW"
)

// IndexField describes one field of an FT index schema.
type IndexField struct {
	Name              string
	Type              IndexFieldType
	VectorDim         int
	VectorAlgo        VectorAlgo
	VectorM           int
	VectorEFConstruct int
}

// IndexDefinition describes an FT index over HASH keys.
type IndexDefinition struct {
	Name     string
	Prefixes []string
	Fields   []IndexField
}
