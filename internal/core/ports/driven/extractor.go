package driven

import "context"

// ExtractedDocument is the raw result of pulling text and metadata out
// of a PDF, before any chunking or indexing happens.
type ExtractedDocument struct {
	Content  string
	Title    string
	Author   string
	NumPages int
}

// SearchHit is one substring match returned by TextExtractor.Search,
// independent of the RAG pipeline's chunk/vector search.
type SearchHit struct {
	Page    int
	Snippet string
	Offset  int
}

// TextExtractor pulls text, metadata and literal search hits out of a
// PDF file on disk. Implementations shell out to an external tool or
// link a PDF library; either way the interface is opaque to the core.
type TextExtractor interface {
	// Extract reads the PDF at path and returns its full text and metadata.
	// Returns a *domain.Error with KindExtractFailed or KindLowYield on
	// extraction failure or near-empty (image-only) output.
	Extract(ctx context.Context, path string) (ExtractedDocument, error)

	// Search finds literal matches of query within the PDF at path,
	// independent of any chunk/vector index. caseSensitive controls
	// whether the match is literal or case-folded.
	Search(ctx context.Context, path, query string, caseSensitive bool) ([]SearchHit, error)

	// CheckAvailable verifies the underlying extraction tool is present
	// and runnable, so failures surface at startup rather than per-request.
	CheckAvailable(ctx context.Context) error
}
