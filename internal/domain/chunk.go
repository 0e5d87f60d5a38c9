package domain

// Chunk is a contiguous, position-tracked substring of a source document.
// Text always equals the source text sliced by [StartChar, EndChar).
type Chunk struct {
	Text       string
	StartChar  int
	EndChar    int
	ChunkIndex int
	SourceID   string
}

// Len returns the chunk length in bytes.
func (c Chunk) Len() int { return c.EndChar - c.StartChar }
