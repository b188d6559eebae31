package jsonrpc

import (
	"context"

	"github.com/relaylabs/pdfqa-server/internal/core/domain"
	"github.com/relaylabs/pdfqa-server/internal/core/ports/driven"
	"github.com/relaylabs/pdfqa-server/internal/core/ports/driving"
)

// fakeToolService implements driving.ToolService with canned responses,
// recording the last call for assertions.
type fakeToolService struct {
	extractTextResult driving.ExtractedText
	extractTextErr    error

	metadataResult driving.DocumentMetadata
	metadataErr    error

	searchResult []driven.SearchHit
	searchErr    error

	answerResult string
	answerErr    error

	ragAnswer string
	ragChunks []domain.ScoredChunk
	ragErr    error

	multiResult []driving.QuestionAnswer

	summaryResult string
	summaryErr    error

	keyPointsResult []string
	keyPointsErr    error

	indexResult driving.IndexSummary
	indexErr    error

	lastPDFPath string
	lastTopK    int
}

func (f *fakeToolService) ExtractText(_ context.Context, pdfPath string) (driving.ExtractedText, error) {
	f.lastPDFPath = pdfPath
	return f.extractTextResult, f.extractTextErr
}

func (f *fakeToolService) ExtractMetadata(_ context.Context, pdfPath string) (driving.DocumentMetadata, error) {
	f.lastPDFPath = pdfPath
	return f.metadataResult, f.metadataErr
}

func (f *fakeToolService) SearchPDF(_ context.Context, pdfPath, _ string, _ bool) ([]driven.SearchHit, error) {
	f.lastPDFPath = pdfPath
	return f.searchResult, f.searchErr
}

func (f *fakeToolService) AnswerQuestion(_ context.Context, pdfPath, _ string) (string, error) {
	f.lastPDFPath = pdfPath
	return f.answerResult, f.answerErr
}

func (f *fakeToolService) AnswerQuestionRAG(_ context.Context, pdfPath, _ string, topK int) (string, []domain.ScoredChunk, error) {
	f.lastPDFPath = pdfPath
	f.lastTopK = topK
	return f.ragAnswer, f.ragChunks, f.ragErr
}

func (f *fakeToolService) AnswerMultipleQuestionsRAG(_ context.Context, pdfPath string, _ []string, topK int) []driving.QuestionAnswer {
	f.lastPDFPath = pdfPath
	f.lastTopK = topK
	return f.multiResult
}

func (f *fakeToolService) SummarizeDocument(_ context.Context, pdfPath string, _ int) (string, error) {
	f.lastPDFPath = pdfPath
	return f.summaryResult, f.summaryErr
}

func (f *fakeToolService) ExtractKeyPoints(_ context.Context, pdfPath string) ([]string, error) {
	f.lastPDFPath = pdfPath
	return f.keyPointsResult, f.keyPointsErr
}

func (f *fakeToolService) IndexDocument(_ context.Context, pdfPath string) (driving.IndexSummary, error) {
	f.lastPDFPath = pdfPath
	return f.indexResult, f.indexErr
}
