package driving

import (
	"context"

	"github.com/relaylabs/pdfqa-server/internal/core/domain"
	"github.com/relaylabs/pdfqa-server/internal/core/ports/driven"
)

// ExtractedText is the result of extract_pdf_text.
type ExtractedText struct {
	Text          string
	NumPages      int
	NumCharacters int
}

// DocumentMetadata is the result of extract_pdf_metadata.
type DocumentMetadata struct {
	Title    string
	Author   string
	NumPages int
	FileSize int64
}

// QuestionAnswer is one question's RAG answer, with the chunks it drew on.
type QuestionAnswer struct {
	Question string
	Answer   string
	Chunks   []domain.ScoredChunk
	Err      error
}

// IndexSummary is the result of IndexDocument: enough to report a
// freshly (or already) indexed document's size without exposing its
// chunks or vectors.
type IndexSummary struct {
	NumChunks  int
	EmbedderID string
}

// ToolService implements the eight assistant-facing document operations
// the Tool Server exposes, plus IndexDocument for the proxy's upload
// path, over a bare filesystem path (the server is never told about
// upload handles; that correlation is the proxy's job).
type ToolService interface {
	ExtractText(ctx context.Context, pdfPath string) (ExtractedText, error)
	ExtractMetadata(ctx context.Context, pdfPath string) (DocumentMetadata, error)
	SearchPDF(ctx context.Context, pdfPath, needle string, caseSensitive bool) ([]driven.SearchHit, error)
	AnswerQuestion(ctx context.Context, pdfPath, question string) (string, error)
	AnswerQuestionRAG(ctx context.Context, pdfPath, question string, topK int) (string, []domain.ScoredChunk, error)
	AnswerMultipleQuestionsRAG(ctx context.Context, pdfPath string, questions []string, topK int) []QuestionAnswer
	SummarizeDocument(ctx context.Context, pdfPath string, maxLength int) (string, error)
	ExtractKeyPoints(ctx context.Context, pdfPath string) ([]string, error)
	IndexDocument(ctx context.Context, pdfPath string) (IndexSummary, error)
}
