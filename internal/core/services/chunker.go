package services

import (
	"strings"

	"github.com/google/uuid"

	"github.com/relaylabs/pdfqa-server/internal/core/domain"
)

// DefaultChunkSize is the default number of characters per chunk.
const DefaultChunkSize = 1000

// DefaultChunkOverlap is the default number of overlapping characters
// between adjacent chunks.
const DefaultChunkOverlap = 200

// separators is the ordered preference list used to find a clean chunk
// boundary: paragraph break, line break, sentence boundary, space. A
// chunk that can't find any of these within tolerance falls back to a
// hard character cut.
var separators = []string{"\n\n", "\n", ". ", " "}

// boundaryTolerance bounds how far before the ideal end a separator
// boundary may be sought.
const boundaryTolerance = 80

// Chunker splits document text into overlapping, boundary-aware chunks.
// It is the adapted, separator-ordered successor to a plain fixed-size
// splitter: chunk boundaries prefer paragraph/line/sentence/space breaks
// over mid-word cuts, while the window advances from each chunk's
// actual end minus overlap, so overlap coverage holds even when a
// boundary cuts a chunk short of the ideal chunk size.
type Chunker struct {
	chunkSize int
	overlap   int
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithChunkSize sets the target chunk size in characters.
func WithChunkSize(size int) Option {
	return func(c *Chunker) {
		if size > 0 {
			c.chunkSize = size
		}
	}
}

// WithOverlap sets the overlap between adjacent chunks in characters.
func WithOverlap(overlap int) Option {
	return func(c *Chunker) {
		if overlap >= 0 {
			c.overlap = overlap
		}
	}
}

// NewChunker creates a Chunker with the given options.
func NewChunker(opts ...Option) *Chunker {
	c := &Chunker{
		chunkSize: DefaultChunkSize,
		overlap:   DefaultChunkOverlap,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.overlap >= c.chunkSize {
		c.overlap = c.chunkSize / 4
	}
	return c
}

// Params returns the chunk size/overlap this Chunker was built with, for
// recording on a DocumentIndex as its cache-invalidation key.
func (c *Chunker) Params() domain.ChunkParams {
	return domain.ChunkParams{ChunkSize: c.chunkSize, Overlap: c.overlap}
}

// Chunk splits content into ordered, overlapping chunks for documentID.
func (c *Chunker) Chunk(documentID domain.Handle, content string) []domain.Chunk {
	if content == "" {
		return nil
	}

	var chunks []domain.Chunk
	pos := 0
	ordinal := 0
	contentLen := len(content)

	for pos < contentLen {
		idealEnd := pos + c.chunkSize
		var end int
		if idealEnd >= contentLen {
			end = contentLen
		} else {
			end = findBoundary(content, pos, idealEnd)
		}

		chunks = append(chunks, domain.Chunk{
			ID:         uuid.New().String(),
			DocumentID: documentID,
			Ordinal:    ordinal,
			Text:       content[pos:end],
			CharOffset: pos,
		})
		ordinal++

		if end >= contentLen {
			break
		}

		// Advance from this chunk's actual end, not the ideal one, so
		// the overlap guarantee holds even when a boundary cut the
		// chunk short.
		next := end - c.overlap
		if next <= pos {
			next = pos + 1
		}
		pos = next
	}

	return chunks
}

// findBoundary searches backward from idealEnd, within boundaryTolerance,
// for the rightmost occurrence of the highest-preference separator.
// Falls back to a hard cut at idealEnd if none is found.
func findBoundary(text string, start, idealEnd int) int {
	windowStart := idealEnd - boundaryTolerance
	if windowStart < start {
		windowStart = start
	}

	for _, sep := range separators {
		window := text[windowStart:idealEnd]
		if idx := strings.LastIndex(window, sep); idx != -1 {
			return windowStart + idx + len(sep)
		}
	}

	return idealEnd
}
