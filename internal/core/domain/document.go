package domain

import "time"

// Handle is the stable opaque identifier issued for an uploaded PDF.
// The proxy mints it as a random UUID at upload time, so it carries
// neither the original filename nor the upload timestamp, and it
// resolves to a filesystem path via the proxy's handle registry.
type Handle string

// Document describes an uploaded PDF once text has been extracted.
type Document struct {
	// Handle is the opaque identifier under which this document was uploaded.
	Handle Handle

	// Path is the filesystem location of the PDF.
	Path string

	// Filename is the original, user-supplied file name.
	Filename string

	// Title is the extracted or inferred document title.
	Title string

	// Author is the extracted document author, if present.
	Author string

	// Content is the full extracted text, before chunking.
	Content string

	// NumPages is the page count reported by the PDF.
	NumPages int

	// NumCharacters is len(Content), cached for cheap ceiling checks.
	NumCharacters int

	// FileSize is the size in bytes of the underlying PDF file.
	FileSize int64

	// UploadedAt is when the handle was minted.
	UploadedAt time.Time
}

// Chunk is an immutable, bounded slice of a document's extracted text.
// Vector ordinals are parallel to chunk ordinals within one DocumentIndex.
type Chunk struct {
	// ID is the unique identifier for the chunk.
	ID string

	// DocumentID is the Handle of the parent document.
	DocumentID Handle

	// Ordinal is the zero-based position of this chunk within the document.
	Ordinal int

	// Text is the chunk's contiguous substring of the extracted document text.
	Text string

	// CharOffset is the starting offset of Text within the document's full content.
	CharOffset int
}

// ChunkParams are the parameters a chunking pass was run with.
// They are part of a DocumentIndex's cache-invalidation key: a mismatch
// against the currently configured params forces a rebuild.
type ChunkParams struct {
	ChunkSize int `json:"chunk_size"`
	Overlap   int `json:"overlap"`
}

// DocumentIndex is the aggregate of chunks, vectors and the parameters
// they were built with for one document.
type DocumentIndex struct {
	DocumentID  Handle
	Chunks      []Chunk
	Vectors     [][]float32
	EmbedderID  string
	ChunkParams ChunkParams
	Dimension   int
}

// BuildState is a DocumentRegistry entry's lifecycle state.
type BuildState string

const (
	BuildStateAbsent   BuildState = "absent"
	BuildStateBuilding BuildState = "building"
	BuildStateReady    BuildState = "ready"
	BuildStateFailed   BuildState = "failed"
)

// ScoredChunk pairs a retrieved Chunk with its similarity score,
// returned from top-k search in descending-score order.
type ScoredChunk struct {
	Chunk Chunk
	Score float64
}

// TokenUsage reports token accounting from a completion call, when the
// backend provides it.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatTurn is one question/answer exchange. It is not persisted by the
// core; the browser client holds conversation history.
type ChatTurn struct {
	Question      string
	ContextChunks []Chunk
	Answer        string
	ModelID       string
	TokenUsage    *TokenUsage
}
