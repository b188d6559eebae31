package services

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaylabs/pdfqa-server/internal/adapters/driven/indexstore/filestore"
	"github.com/relaylabs/pdfqa-server/internal/core/domain"
	"github.com/relaylabs/pdfqa-server/internal/core/ports/driven"
)

// fakeExtractor implements driven.TextExtractor for testing, returning
// a fixed document for any path.
type fakeExtractor struct {
	doc       driven.ExtractedDocument
	extractErr error
	hits      []driven.SearchHit
}

func (f *fakeExtractor) Extract(_ context.Context, _ string) (driven.ExtractedDocument, error) {
	if f.extractErr != nil {
		return driven.ExtractedDocument{}, f.extractErr
	}
	return f.doc, nil
}

func (f *fakeExtractor) Search(_ context.Context, _, _ string, _ bool) ([]driven.SearchHit, error) {
	return f.hits, nil
}

func (f *fakeExtractor) CheckAvailable(_ context.Context) error { return nil }

func newTestToolService(t *testing.T, extractor driven.TextExtractor, completion driven.CompletionService) *ToolService {
	t.Helper()
	dir := t.TempDir()
	store, err := filestore.New(dir)
	require.NoError(t, err)

	embedder := &mockEmbeddingService{embedding: []float32{1, 0, 0}, dims: 3}
	indexer := NewIndexBuilder(extractor, NewChunker(WithChunkSize(50), WithOverlap(10)), embedder, store)
	retriever := NewRetriever(embedder)

	return NewToolService(extractor, indexer, retriever, completion, nil, 5000, false, 4)
}

func mustTempPDF(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "doc.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-fake"), 0600))
	return path
}

func TestToolService_ExtractText(t *testing.T) {
	path := mustTempPDF(t)
	extractor := &fakeExtractor{doc: driven.ExtractedDocument{Content: "hello world", NumPages: 1}}
	ts := newTestToolService(t, extractor, &mockCompletionService{answer: "x"})

	result, err := ts.ExtractText(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "hello world", result.Text)
	assert.Equal(t, 11, result.NumCharacters)
	assert.Equal(t, 1, result.NumPages)
}

func TestToolService_ExtractText_MissingFile(t *testing.T) {
	extractor := &fakeExtractor{}
	ts := newTestToolService(t, extractor, &mockCompletionService{})

	_, err := ts.ExtractText(context.Background(), "/nonexistent/path.pdf")
	require.Error(t, err)
	assert.Equal(t, domain.KindBadInput, domain.KindOf(err))
}

func TestToolService_ExtractMetadata(t *testing.T) {
	path := mustTempPDF(t)
	extractor := &fakeExtractor{doc: driven.ExtractedDocument{Title: "T", Author: "A", NumPages: 3}}
	ts := newTestToolService(t, extractor, &mockCompletionService{})

	meta, err := ts.ExtractMetadata(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "T", meta.Title)
	assert.Equal(t, "A", meta.Author)
	assert.Equal(t, 3, meta.NumPages)
	assert.Positive(t, meta.FileSize)
}

func TestToolService_SearchPDF(t *testing.T) {
	path := mustTempPDF(t)
	extractor := &fakeExtractor{hits: []driven.SearchHit{{Page: 1, Offset: 0, Snippet: "apple"}}}
	ts := newTestToolService(t, extractor, &mockCompletionService{})

	hits, err := ts.SearchPDF(context.Background(), path, "apple", false)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestToolService_AnswerQuestion_UsesFullDocument(t *testing.T) {
	path := mustTempPDF(t)
	extractor := &fakeExtractor{doc: driven.ExtractedDocument{Content: "short doc"}}
	completion := &mockCompletionService{answer: "the answer"}
	ts := newTestToolService(t, extractor, completion)

	answer, err := ts.AnswerQuestion(context.Background(), path, "what?")
	require.NoError(t, err)
	assert.Equal(t, "the answer", answer)
	assert.Equal(t, "short doc", completion.lastRequest.Context)
}

func TestToolService_AnswerQuestionRAG_BuildsIndexThenRetrieves(t *testing.T) {
	path := mustTempPDF(t)
	extractor := &fakeExtractor{doc: driven.ExtractedDocument{
		Content: "This document discusses apples. This document discusses oranges too.",
	}}
	completion := &mockCompletionService{answer: "fruit answer"}
	ts := newTestToolService(t, extractor, completion)

	answer, chunks, err := ts.AnswerQuestionRAG(context.Background(), path, "what fruit?", 2)
	require.NoError(t, err)
	assert.Equal(t, "fruit answer", answer)
	assert.NotEmpty(t, chunks)
}

func TestToolService_SummarizeDocument(t *testing.T) {
	path := mustTempPDF(t)
	extractor := &fakeExtractor{doc: driven.ExtractedDocument{Content: "a document to summarize"}}
	completion := &mockCompletionService{answer: "summary text"}
	ts := newTestToolService(t, extractor, completion)

	summary, err := ts.SummarizeDocument(context.Background(), path, 0)
	require.NoError(t, err)
	assert.Equal(t, "summary text", summary)
}

func TestToolService_IndexDocument(t *testing.T) {
	path := mustTempPDF(t)
	extractor := &fakeExtractor{doc: driven.ExtractedDocument{
		Content: "This document discusses apples. This document discusses oranges too.",
	}}
	ts := newTestToolService(t, extractor, &mockCompletionService{answer: "x"})

	summary, err := ts.IndexDocument(context.Background(), path)
	require.NoError(t, err)
	assert.NotZero(t, summary.NumChunks)
	assert.Equal(t, "mock-embed", summary.EmbedderID)

	again, err := ts.IndexDocument(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, summary.NumChunks, again.NumChunks)
}

func TestToolService_ExtractKeyPoints(t *testing.T) {
	path := mustTempPDF(t)
	extractor := &fakeExtractor{doc: driven.ExtractedDocument{Content: "a document with points"}}
	completion := &mockCompletionService{answer: "- point one\n- point two"}
	ts := newTestToolService(t, extractor, completion)

	points, err := ts.ExtractKeyPoints(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, []string{"point one", "point two"}, points)
}
