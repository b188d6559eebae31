package services

import (
	"context"
	"fmt"
	"os"

	"github.com/relaylabs/pdfqa-server/internal/core/domain"
	"github.com/relaylabs/pdfqa-server/internal/core/ports/driven"
	"github.com/relaylabs/pdfqa-server/internal/core/ports/driving"
)

// Ensure ToolService implements the interface.
var _ driving.ToolService = (*ToolService)(nil)

// ToolService is the façade the Tool Server dispatches onto: it owns
// the extractor, the index builder/registry and the QA service, and
// translates bare filesystem paths into the handles those internally
// key by. A document's registry entry is keyed on its path, matching
// the Document Registry Entry's `document_path` field.
type ToolService struct {
	extractor driven.TextExtractor
	registry  *Registry
	indexer   *IndexBuilder
	qa        *QAService
}

// NewToolService wires an extractor, index builder and completion
// client into one ToolService, including the Registry and QAService
// that sit between them. extractor re-derives document content on
// every call (cheap relative to embedding, and keeps the registry's
// cache the single source of truth for chunks/vectors).
func NewToolService(extractor driven.TextExtractor, indexer *IndexBuilder, retriever *Retriever, completion driven.CompletionService, prompts driven.PromptStore, maxSinglePassChars int, reformat bool, maxConcurrency int) *ToolService {
	ts := &ToolService{extractor: extractor, indexer: indexer}
	ts.registry = NewRegistry(ts.buildIndex)
	ts.qa = NewQAService(ts.registry, retriever, completion, prompts, maxSinglePassChars, reformat, maxConcurrency)
	return ts
}

// buildIndex is the Registry's BuildFunc: it re-extracts the document
// at handle (treated as a path) and delegates to the IndexBuilder's
// get-or-build cache logic, which persists under a key derived from the
// path's basename and the extracted text.
func (t *ToolService) buildIndex(ctx context.Context, handle domain.Handle) (domain.DocumentIndex, error) {
	doc, err := t.extract(ctx, string(handle))
	if err != nil {
		return domain.DocumentIndex{}, err
	}
	return t.indexer.GetOrBuild(ctx, handle, string(handle), doc.Content)
}

func (t *ToolService) extract(ctx context.Context, pdfPath string) (driven.ExtractedDocument, error) {
	if _, err := os.Stat(pdfPath); err != nil {
		return driven.ExtractedDocument{}, domain.NewError(domain.KindBadInput, fmt.Sprintf("pdf_path not found: %s", pdfPath))
	}
	return t.extractor.Extract(ctx, pdfPath)
}

func (t *ToolService) toDocument(ctx context.Context, pdfPath string) (domain.Document, error) {
	doc, err := t.extract(ctx, pdfPath)
	if err != nil {
		return domain.Document{}, err
	}
	info, statErr := os.Stat(pdfPath)
	var size int64
	if statErr == nil {
		size = info.Size()
	}
	return domain.Document{
		Path:          pdfPath,
		Title:         doc.Title,
		Author:        doc.Author,
		Content:       doc.Content,
		NumPages:      doc.NumPages,
		NumCharacters: len(doc.Content),
		FileSize:      size,
	}, nil
}

// ExtractText implements driving.ToolService.
func (t *ToolService) ExtractText(ctx context.Context, pdfPath string) (driving.ExtractedText, error) {
	doc, err := t.extract(ctx, pdfPath)
	if err != nil {
		return driving.ExtractedText{}, err
	}
	return driving.ExtractedText{Text: doc.Content, NumPages: doc.NumPages, NumCharacters: len(doc.Content)}, nil
}

// ExtractMetadata implements driving.ToolService.
func (t *ToolService) ExtractMetadata(ctx context.Context, pdfPath string) (driving.DocumentMetadata, error) {
	doc, err := t.extract(ctx, pdfPath)
	if err != nil {
		return driving.DocumentMetadata{}, err
	}
	info, statErr := os.Stat(pdfPath)
	var size int64
	if statErr == nil {
		size = info.Size()
	}
	return driving.DocumentMetadata{Title: doc.Title, Author: doc.Author, NumPages: doc.NumPages, FileSize: size}, nil
}

// SearchPDF implements driving.ToolService.
func (t *ToolService) SearchPDF(ctx context.Context, pdfPath, needle string, caseSensitive bool) ([]driven.SearchHit, error) {
	if _, err := os.Stat(pdfPath); err != nil {
		return nil, domain.NewError(domain.KindBadInput, fmt.Sprintf("pdf_path not found: %s", pdfPath))
	}
	return t.extractor.Search(ctx, pdfPath, needle, caseSensitive)
}

// AnswerQuestion implements driving.ToolService.
func (t *ToolService) AnswerQuestion(ctx context.Context, pdfPath, question string) (string, error) {
	doc, err := t.toDocument(ctx, pdfPath)
	if err != nil {
		return "", err
	}
	return t.qa.AnswerQuestion(ctx, doc, question)
}

// AnswerQuestionRAG implements driving.ToolService.
func (t *ToolService) AnswerQuestionRAG(ctx context.Context, pdfPath, question string, topK int) (string, []domain.ScoredChunk, error) {
	return t.qa.AnswerQuestionRAG(ctx, domain.Handle(pdfPath), question, topK)
}

// AnswerMultipleQuestionsRAG implements driving.ToolService.
func (t *ToolService) AnswerMultipleQuestionsRAG(ctx context.Context, pdfPath string, questions []string, topK int) []driving.QuestionAnswer {
	results := t.qa.AnswerMultipleQuestionsRAG(ctx, domain.Handle(pdfPath), questions, topK)
	out := make([]driving.QuestionAnswer, len(results))
	for i, r := range results {
		out[i] = driving.QuestionAnswer{Question: r.Question, Answer: r.Answer, Chunks: r.Chunks, Err: r.Err}
	}
	return out
}

// SummarizeDocument implements driving.ToolService.
func (t *ToolService) SummarizeDocument(ctx context.Context, pdfPath string, maxLength int) (string, error) {
	doc, err := t.toDocument(ctx, pdfPath)
	if err != nil {
		return "", err
	}
	return t.qa.SummarizeDocument(ctx, doc, maxLength)
}

// ExtractKeyPoints implements driving.ToolService.
func (t *ToolService) ExtractKeyPoints(ctx context.Context, pdfPath string) ([]string, error) {
	doc, err := t.toDocument(ctx, pdfPath)
	if err != nil {
		return nil, err
	}
	return t.qa.ExtractKeyPoints(ctx, doc)
}

// IndexDocument implements driving.ToolService. It is not part of the
// AI-assistant-facing catalogue the original tool set names; the proxy
// calls it on upload to force the chunk/vector build eagerly and
// report num_chunks in its response rather than deferring the first
// build to whichever ask request happens to land first.
func (t *ToolService) IndexDocument(ctx context.Context, pdfPath string) (driving.IndexSummary, error) {
	idx, err := t.registry.Get(ctx, domain.Handle(pdfPath))
	if err != nil {
		return driving.IndexSummary{}, err
	}
	return driving.IndexSummary{NumChunks: len(idx.Chunks), EmbedderID: idx.EmbedderID}, nil
}
