package jsonrpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/relaylabs/pdfqa-server/internal/core/domain"
	"github.com/relaylabs/pdfqa-server/internal/core/ports/driving"
)

// toolHandler decodes params, invokes the tool service, and returns a
// JSON-marshalable result or a domain error to be mapped to a JSON-RPC
// error response (CodeInvalidParams for bad_input, CodeServerError
// otherwise).
type toolHandler func(ctx context.Context, ts driving.ToolService, params json.RawMessage) (any, error)

// toolTable is the closed dispatch table this server exposes. It is
// populated once at init and never mutated, unlike the teacher's
// reflection-based mcp.AddTool registration.
var toolTable = map[string]toolHandler{
	"extract_pdf_text":              handleExtractPDFText,
	"extract_pdf_metadata":          handleExtractPDFMetadata,
	"search_pdf":                    handleSearchPDF,
	"answer_question":               handleAnswerQuestion,
	"answer_question_rag":           handleAnswerQuestionRAG,
	"answer_multiple_questions_rag": handleAnswerMultipleQuestionsRAG,
	"summarize_document":            handleSummarizeDocument,
	"extract_key_points":            handleExtractKeyPoints,
	"index_document":                handleIndexDocument,
}

// toolNames lists the tools this server advertises, in the order
// tools/list returns them. index_document is callable but deliberately
// absent here: it exists for the proxy's upload path, not for an AI
// assistant browsing the catalogue.
var toolNames = []string{
	"extract_pdf_text",
	"extract_pdf_metadata",
	"search_pdf",
	"answer_question",
	"answer_question_rag",
	"answer_multiple_questions_rag",
	"summarize_document",
	"extract_key_points",
}

// toolDescription is one entry of a tools/list response.
type toolDescription struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

var toolDescriptions = map[string]string{
	"extract_pdf_text":              "Extract all text content from a PDF file",
	"extract_pdf_metadata":          "Extract metadata from a PDF file (title, author, pages, file size)",
	"search_pdf":                    "Search for literal text within a PDF file",
	"answer_question":               "Answer a question about a document using its full extracted text",
	"answer_question_rag":           "Answer a question using retrieval-augmented generation over a cached chunk index",
	"answer_multiple_questions_rag": "Answer several questions concurrently using retrieval-augmented generation",
	"summarize_document":            "Generate a summary of a document",
	"extract_key_points":            "Extract the key points from a document",
}

func listTools() []toolDescription {
	out := make([]toolDescription, 0, len(toolNames))
	for _, name := range toolNames {
		out = append(out, toolDescription{Name: name, Description: toolDescriptions[name]})
	}
	return out
}

func decodeParams(params json.RawMessage, dest any) error {
	if len(params) == 0 {
		return domain.NewError(domain.KindBadInput, "missing params")
	}
	if err := json.Unmarshal(params, dest); err != nil {
		return domain.NewError(domain.KindBadInput, fmt.Sprintf("invalid params: %v", err))
	}
	return nil
}

func requireString(field, value string) error {
	if value == "" {
		return domain.NewError(domain.KindBadInput, fmt.Sprintf("missing required field: %s", field))
	}
	return nil
}

// --- extract_pdf_text ---

type extractTextInput struct {
	PDFPath string `json:"pdf_path"`
}

type extractTextOutput struct {
	Text          string `json:"text"`
	NumPages      int    `json:"num_pages"`
	NumCharacters int    `json:"num_characters"`
}

func handleExtractPDFText(ctx context.Context, ts driving.ToolService, params json.RawMessage) (any, error) {
	var in extractTextInput
	if err := decodeParams(params, &in); err != nil {
		return nil, err
	}
	if err := requireString("pdf_path", in.PDFPath); err != nil {
		return nil, err
	}
	result, err := ts.ExtractText(ctx, in.PDFPath)
	if err != nil {
		return nil, err
	}
	return extractTextOutput{Text: result.Text, NumPages: result.NumPages, NumCharacters: result.NumCharacters}, nil
}

// --- extract_pdf_metadata ---

type extractMetadataInput struct {
	PDFPath string `json:"pdf_path"`
}

type extractMetadataOutput struct {
	Title    string `json:"title"`
	Author   string `json:"author"`
	NumPages int    `json:"num_pages"`
	FileSize int64  `json:"file_size"`
}

func handleExtractPDFMetadata(ctx context.Context, ts driving.ToolService, params json.RawMessage) (any, error) {
	var in extractMetadataInput
	if err := decodeParams(params, &in); err != nil {
		return nil, err
	}
	if err := requireString("pdf_path", in.PDFPath); err != nil {
		return nil, err
	}
	meta, err := ts.ExtractMetadata(ctx, in.PDFPath)
	if err != nil {
		return nil, err
	}
	return extractMetadataOutput{Title: meta.Title, Author: meta.Author, NumPages: meta.NumPages, FileSize: meta.FileSize}, nil
}

// --- search_pdf ---

type searchPDFInput struct {
	PDFPath       string `json:"pdf_path"`
	Needle        string `json:"needle"`
	CaseSensitive bool   `json:"case_sensitive"`
}

type searchHitOutput struct {
	Page    int    `json:"page"`
	Offset  int    `json:"offset"`
	Snippet string `json:"snippet"`
}

func handleSearchPDF(ctx context.Context, ts driving.ToolService, params json.RawMessage) (any, error) {
	var in searchPDFInput
	if err := decodeParams(params, &in); err != nil {
		return nil, err
	}
	if err := requireString("pdf_path", in.PDFPath); err != nil {
		return nil, err
	}
	if err := requireString("needle", in.Needle); err != nil {
		return nil, err
	}
	hits, err := ts.SearchPDF(ctx, in.PDFPath, in.Needle, in.CaseSensitive)
	if err != nil {
		return nil, err
	}
	out := make([]searchHitOutput, len(hits))
	for i, h := range hits {
		out[i] = searchHitOutput{Page: h.Page, Offset: h.Offset, Snippet: h.Snippet}
	}
	return out, nil
}

// --- answer_question ---

type answerQuestionInput struct {
	PDFPath  string `json:"pdf_path"`
	Question string `json:"question"`
}

type answerQuestionOutput struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

func handleAnswerQuestion(ctx context.Context, ts driving.ToolService, params json.RawMessage) (any, error) {
	var in answerQuestionInput
	if err := decodeParams(params, &in); err != nil {
		return nil, err
	}
	if err := requireString("pdf_path", in.PDFPath); err != nil {
		return nil, err
	}
	if err := requireString("question", in.Question); err != nil {
		return nil, err
	}
	answer, err := ts.AnswerQuestion(ctx, in.PDFPath, in.Question)
	if err != nil {
		return nil, err
	}
	return answerQuestionOutput{Question: in.Question, Answer: answer}, nil
}

// --- answer_question_rag ---

type answerQuestionRAGInput struct {
	PDFPath  string `json:"pdf_path"`
	Question string `json:"question"`
	TopK     int    `json:"top_k"`
}

type excerptOutput struct {
	Text    string  `json:"text"`
	Ordinal int     `json:"ordinal"`
	Score   float64 `json:"score"`
}

type answerQuestionRAGOutput struct {
	Question        string          `json:"question"`
	Answer          string          `json:"answer"`
	ChunksRetrieved int             `json:"chunks_retrieved"`
	Excerpts        []excerptOutput `json:"excerpts"`
}

func handleAnswerQuestionRAG(ctx context.Context, ts driving.ToolService, params json.RawMessage) (any, error) {
	var in answerQuestionRAGInput
	if err := decodeParams(params, &in); err != nil {
		return nil, err
	}
	if err := requireString("pdf_path", in.PDFPath); err != nil {
		return nil, err
	}
	if err := requireString("question", in.Question); err != nil {
		return nil, err
	}
	answer, scored, err := ts.AnswerQuestionRAG(ctx, in.PDFPath, in.Question, in.TopK)
	if err != nil {
		return nil, err
	}
	return answerQuestionRAGOutput{
		Question:        in.Question,
		Answer:          answer,
		ChunksRetrieved: len(scored),
		Excerpts:        excerptsFrom(scored),
	}, nil
}

func excerptsFrom(scored []domain.ScoredChunk) []excerptOutput {
	out := make([]excerptOutput, len(scored))
	for i, sc := range scored {
		out[i] = excerptOutput{Text: sc.Chunk.Text, Ordinal: sc.Chunk.Ordinal, Score: sc.Score}
	}
	return out
}

// --- answer_multiple_questions_rag ---

type answerMultipleQuestionsRAGInput struct {
	PDFPath   string   `json:"pdf_path"`
	Questions []string `json:"questions"`
	TopK      int      `json:"top_k"`
}

type questionErrorOutput struct {
	Kind   string `json:"kind"`
	Detail string `json:"detail"`
}

type questionAnswerOutput struct {
	Question string               `json:"question"`
	Answer   string               `json:"answer"`
	Excerpts []excerptOutput      `json:"excerpts"`
	Error    *questionErrorOutput `json:"error,omitempty"`
}

type answerMultipleQuestionsRAGOutput struct {
	Results        []questionAnswerOutput `json:"results"`
	TotalQuestions int                    `json:"total_questions"`
}

func handleAnswerMultipleQuestionsRAG(ctx context.Context, ts driving.ToolService, params json.RawMessage) (any, error) {
	var in answerMultipleQuestionsRAGInput
	if err := decodeParams(params, &in); err != nil {
		return nil, err
	}
	if err := requireString("pdf_path", in.PDFPath); err != nil {
		return nil, err
	}
	if len(in.Questions) == 0 {
		return nil, domain.NewError(domain.KindBadInput, "missing required field: questions")
	}
	results := ts.AnswerMultipleQuestionsRAG(ctx, in.PDFPath, in.Questions, in.TopK)
	out := answerMultipleQuestionsRAGOutput{Results: make([]questionAnswerOutput, len(results)), TotalQuestions: len(results)}
	for i, r := range results {
		qa := questionAnswerOutput{Question: r.Question, Answer: r.Answer, Excerpts: excerptsFrom(r.Chunks)}
		if r.Err != nil {
			var derr *domain.Error
			if errors.As(r.Err, &derr) {
				qa.Error = &questionErrorOutput{Kind: string(derr.Kind), Detail: derr.Detail}
			} else {
				qa.Error = &questionErrorOutput{Kind: string(domain.KindInternal), Detail: r.Err.Error()}
			}
		}
		out.Results[i] = qa
	}
	return out, nil
}

// --- summarize_document ---

type summarizeDocumentInput struct {
	PDFPath   string `json:"pdf_path"`
	MaxLength int    `json:"max_length"`
}

type summarizeDocumentOutput struct {
	Summary string `json:"summary"`
}

func handleSummarizeDocument(ctx context.Context, ts driving.ToolService, params json.RawMessage) (any, error) {
	var in summarizeDocumentInput
	if err := decodeParams(params, &in); err != nil {
		return nil, err
	}
	if err := requireString("pdf_path", in.PDFPath); err != nil {
		return nil, err
	}
	summary, err := ts.SummarizeDocument(ctx, in.PDFPath, in.MaxLength)
	if err != nil {
		return nil, err
	}
	return summarizeDocumentOutput{Summary: summary}, nil
}

// --- extract_key_points ---

type extractKeyPointsInput struct {
	PDFPath string `json:"pdf_path"`
}

type extractKeyPointsOutput struct {
	KeyPoints []string `json:"key_points"`
}

func handleExtractKeyPoints(ctx context.Context, ts driving.ToolService, params json.RawMessage) (any, error) {
	var in extractKeyPointsInput
	if err := decodeParams(params, &in); err != nil {
		return nil, err
	}
	if err := requireString("pdf_path", in.PDFPath); err != nil {
		return nil, err
	}
	points, err := ts.ExtractKeyPoints(ctx, in.PDFPath)
	if err != nil {
		return nil, err
	}
	return extractKeyPointsOutput{KeyPoints: points}, nil
}

// --- index_document ---

type indexDocumentInput struct {
	PDFPath string `json:"pdf_path"`
}

type indexDocumentOutput struct {
	NumChunks  int    `json:"num_chunks"`
	EmbedderID string `json:"embedder_id"`
}

func handleIndexDocument(ctx context.Context, ts driving.ToolService, params json.RawMessage) (any, error) {
	var in indexDocumentInput
	if err := decodeParams(params, &in); err != nil {
		return nil, err
	}
	if err := requireString("pdf_path", in.PDFPath); err != nil {
		return nil, err
	}
	summary, err := ts.IndexDocument(ctx, in.PDFPath)
	if err != nil {
		return nil, err
	}
	return indexDocumentOutput{NumChunks: summary.NumChunks, EmbedderID: summary.EmbedderID}, nil
}
