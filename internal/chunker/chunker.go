package chunker

import (
	"fmt"
	"strings"

	"github.com/kailas-cloud/ragline/internal/domain"
)

// DefaultSeparators is the split priority order: paragraph breaks first,
// then lines, sentences, words. Fixed-width slicing is the implicit last
// resort when none of these occur in the text.
var DefaultSeparators = []string{"\n\n", "\n", ". ", " "}

// Chunker splits document text into overlapping, position-tracked chunks.
// Splitting is deterministic: identical input always yields an identical
// chunk sequence.
type Chunker struct {
	chunkSize  int
	overlap    int
	separators []string
}

// New creates a chunker. Overlap must be smaller than the chunk size.
func New(chunkSize, overlap int) (*Chunker, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("overlap must not be negative, got %d", overlap)
	}
	if overlap >= chunkSize {
		return nil, fmt.Errorf("overlap (%d) must be smaller than chunk size (%d)", overlap, chunkSize)
	}
	return &Chunker{
		chunkSize:  chunkSize,
		overlap:    overlap,
		separators: DefaultSeparators,
	}, nil
}

// WithSeparators overrides the separator priority order.
func (c *Chunker) WithSeparators(separators ...string) *Chunker {
	c.separators = separators
	return c
}

// span is a half-open byte range into the source text.
type span struct {
	start, end int
}

// Chunk splits text into chunks of at most the configured size, preferring
// to break on the highest-priority separator present. Every chunk carries
// exact byte offsets: chunk.Text == text[chunk.StartChar:chunk.EndChar].
func (c *Chunker) Chunk(text, sourceID string) []domain.Chunk {
	if text == "" {
		return nil
	}
	if len(text) <= c.chunkSize {
		return []domain.Chunk{{
			Text:       text,
			StartChar:  0,
			EndChar:    len(text),
			ChunkIndex: 0,
			SourceID:   sourceID,
		}}
	}

	spans := c.split(text, 0, len(text), c.separators)

	chunks := make([]domain.Chunk, 0, len(spans))
	for _, sp := range spans {
		sp = trimSpan(text, sp)
		if sp.end <= sp.start {
			continue
		}
		chunks = append(chunks, domain.Chunk{
			Text:       text[sp.start:sp.end],
			StartChar:  sp.start,
			EndChar:    sp.end,
			ChunkIndex: len(chunks),
			SourceID:   sourceID,
		})
	}
	return chunks
}

// split breaks the region [start, end) on the first separator that occurs
// in it, greedily accumulating parts into a buffer of at most chunkSize.
// Oversized parts are re-split with the remaining lower-priority separators.
func (c *Chunker) split(text string, start, end int, separators []string) []span {
	if end-start <= c.chunkSize {
		return []span{{start, end}}
	}

	sepIdx := -1
	for i, sep := range separators {
		if strings.Contains(text[start:end], sep) {
			sepIdx = i
			break
		}
	}
	if sepIdx < 0 {
		return c.fixedWidth(start, end)
	}

	sep := separators[sepIdx]
	parts := splitRegion(text, start, end, sep)

	var out []span
	buf := span{start, start} // empty

	for _, part := range parts {
		switch {
		case part.end-part.start > c.chunkSize:
			// Part alone exceeds the chunk size: flush, then re-split it
			// with the remaining separators.
			if buf.end > buf.start {
				out = append(out, buf)
			}
			out = append(out, c.split(text, part.start, part.end, separators[sepIdx+1:])...)
			buf = span{part.end, part.end}

		case buf.end == buf.start:
			buf = part

		case part.end-buf.start > c.chunkSize:
			out = append(out, buf)
			// Seed the next buffer with the tail of the emitted chunk so
			// consecutive chunks share at most overlap characters.
			if c.overlap > 0 && buf.end-buf.start > c.overlap {
				buf = span{buf.end - c.overlap, part.end}
			} else {
				buf = span{part.start, part.end}
			}

		default:
			// Extend through the separator and the part.
			buf.end = part.end
		}
	}

	if buf.end > buf.start {
		out = append(out, buf)
	}
	return out
}

// fixedWidth slices [start, end) into windows of chunkSize advancing by
// chunkSize-overlap. Used when no separator occurs in the region.
func (c *Chunker) fixedWidth(start, end int) []span {
	step := c.chunkSize - c.overlap

	var out []span
	for ws := start; ws < end; ws += step {
		we := ws + c.chunkSize
		if we >= end {
			out = append(out, span{ws, end})
			break
		}
		out = append(out, span{ws, we})
	}
	return out
}

// splitRegion returns the part ranges of [start, end) split on sep,
// excluding the separators themselves. Empty parts are preserved so the
// accumulator sees the same sequence strings.Split would produce.
func splitRegion(text string, start, end int, sep string) []span {
	var parts []span
	pos := start
	for {
		idx := strings.Index(text[pos:end], sep)
		if idx < 0 {
			parts = append(parts, span{pos, end})
			return parts
		}
		parts = append(parts, span{pos, pos + idx})
		pos = pos + idx + len(sep)
	}
}

// trimSpan shrinks a range past leading and trailing whitespace, keeping
// the offset invariant intact instead of rewriting the text.
func trimSpan(text string, sp span) span {
	for sp.start < sp.end && isSpace(text[sp.start]) {
		sp.start++
	}
	for sp.end > sp.start && isSpace(text[sp.end-1]) {
		sp.end--
	}
	return sp
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}
