package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/relaylabs/pdfqa-server/internal/core/domain"
	"github.com/relaylabs/pdfqa-server/internal/core/ports/driven"
	"github.com/relaylabs/pdfqa-server/internal/logger"
)

// ragPromptInstruction is appended after the concatenated retrieved
// chunks, constraining the model to the supplied excerpts only.
const ragPromptInstruction = "Answer the question using only the excerpts above. " +
	"If the excerpts do not contain the answer, say so explicitly rather than guessing."

// QAService assembles prompts from retrieved (or whole-document)
// context and drives the completion client, optionally reformatting
// the raw answer before returning it.
type QAService struct {
	registry       *Registry
	retriever      *Retriever
	completion     driven.CompletionService
	prompts        driven.PromptStore
	reformat       bool
	maxSinglePass  int
	maxConcurrency int
}

// NewQAService creates a QAService. maxSinglePassChars bounds
// answer_question's legacy whole-document mode; reformat controls
// whether answers are run through CompletionService.Reformat before
// being returned. maxConcurrency bounds how many questions in
// AnswerMultipleQuestionsRAG are answered in parallel. prompts may be
// nil, in which case built-in instruction templates are used.
func NewQAService(registry *Registry, retriever *Retriever, completion driven.CompletionService, prompts driven.PromptStore, maxSinglePassChars int, reformat bool, maxConcurrency int) *QAService {
	return &QAService{
		registry:       registry,
		retriever:      retriever,
		completion:     completion,
		prompts:        prompts,
		reformat:       reformat,
		maxSinglePass:  maxSinglePassChars,
		maxConcurrency: maxConcurrency,
	}
}

// instructionTemplate loads name from the configured PromptStore,
// falling back to fallback if no store is set or the load fails.
func (q *QAService) instructionTemplate(name, fallback string) string {
	if q.prompts == nil {
		return fallback
	}
	prompt, err := q.prompts.Load(name)
	if err != nil {
		return fallback
	}
	return prompt
}

// AnswerQuestion is the legacy single-pass tool: it submits the whole
// document as context and refuses documents over the configured
// character ceiling, per the Tool Server contract.
func (q *QAService) AnswerQuestion(ctx context.Context, doc domain.Document, question string) (string, error) {
	if q.maxSinglePass > 0 && doc.NumCharacters > q.maxSinglePass {
		return "", domain.NewError(domain.KindBadInput,
			fmt.Sprintf("document has %d characters, exceeding the %d-character single-pass ceiling; use answer_question_rag instead", doc.NumCharacters, q.maxSinglePass))
	}

	result, err := q.completion.Complete(ctx, driven.CompletionRequest{
		Context:  doc.Content,
		Question: question,
	})
	if err != nil {
		return "", err
	}
	return q.finish(ctx, result.AnswerText), nil
}

// AnswerQuestionRAG retrieves the top-k chunks most relevant to
// question from handle's index and submits only those to the
// completion client.
func (q *QAService) AnswerQuestionRAG(ctx context.Context, handle domain.Handle, question string, topK int) (string, []domain.ScoredChunk, error) {
	idx, err := q.registry.Get(ctx, handle)
	if err != nil {
		return "", nil, err
	}

	scored, err := q.retriever.TopK(ctx, idx, question, topK)
	if err != nil {
		return "", nil, err
	}
	if len(scored) == 0 {
		return "", nil, domain.Wrap(domain.KindBadInput, domain.ErrEmptyDocument)
	}

	answer, err := q.answerFromChunks(ctx, scored, question)
	if err != nil {
		return "", nil, err
	}
	return answer, scored, nil
}

// QuestionResult is one question's outcome within a batch call. Err is
// set (and Answer empty) when that particular question failed; a
// failure on one question never aborts the others.
type QuestionResult struct {
	Question string
	Answer   string
	Chunks   []domain.ScoredChunk
	Err      error
}

// AnswerMultipleQuestionsRAG answers each question independently
// against handle's index, bounding concurrency at maxConcurrency. The
// returned slice preserves input order; a per-question failure is
// captured in its QuestionResult.Err rather than failing the batch.
func (q *QAService) AnswerMultipleQuestionsRAG(ctx context.Context, handle domain.Handle, questions []string, topK int) []QuestionResult {
	idx, err := q.registry.Get(ctx, handle)
	if err != nil {
		results := make([]QuestionResult, len(questions))
		for i, question := range questions {
			results[i] = QuestionResult{Question: question, Err: err}
		}
		return results
	}

	results := make([]QuestionResult, len(questions))
	pool := newWorkerPool(q.maxConcurrency)
	for i, question := range questions {
		i, question := i, question
		pool.Go(func() {
			scored, err := q.retriever.TopK(ctx, idx, question, topK)
			if err != nil {
				results[i] = QuestionResult{Question: question, Err: err}
				return
			}
			if len(scored) == 0 {
				results[i] = QuestionResult{Question: question, Err: domain.Wrap(domain.KindBadInput, domain.ErrEmptyDocument)}
				return
			}
			answer, err := q.answerFromChunks(ctx, scored, question)
			results[i] = QuestionResult{Question: question, Answer: answer, Chunks: scored, Err: err}
		})
	}
	pool.Wait()

	return results
}

// SummarizeDocument produces a summary of doc's full content, capped
// at maxLength characters if positive.
func (q *QAService) SummarizeDocument(ctx context.Context, doc domain.Document, maxLength int) (string, error) {
	template := q.instructionTemplate(driven.PromptSummarize, defaultSummarizeTemplate)
	qualifier := ""
	if maxLength > 0 {
		qualifier = fmt.Sprintf(" in no more than %d characters", maxLength)
	}
	result, err := q.completion.Complete(ctx, driven.CompletionRequest{
		SystemPrompt: documentSummarySystemPrompt,
		Context:      doc.Content,
		Question:     fmt.Sprintf(template, qualifier),
	})
	if err != nil {
		return "", err
	}
	summary := result.AnswerText
	if maxLength > 0 && len(summary) > maxLength {
		summary = summary[:maxLength]
	}
	return summary, nil
}

// ExtractKeyPoints produces an ordered bullet list of doc's key points.
func (q *QAService) ExtractKeyPoints(ctx context.Context, doc domain.Document) ([]string, error) {
	template := q.instructionTemplate(driven.PromptKeyPoints, defaultKeyPointsTemplate)
	result, err := q.completion.Complete(ctx, driven.CompletionRequest{
		SystemPrompt: keyPointsSystemPrompt,
		Context:      doc.Content,
		Question:     fmt.Sprintf(template, defaultKeyPointCount),
	})
	if err != nil {
		return nil, err
	}
	return splitBulletLines(result.AnswerText), nil
}

// answerFromChunks assembles the retrieved-context prompt and drives
// the completion client, applying the optional Reformat pass.
func (q *QAService) answerFromChunks(ctx context.Context, scored []domain.ScoredChunk, question string) (string, error) {
	context := assemblePrompt(scored)
	result, err := q.completion.Complete(ctx, driven.CompletionRequest{
		Context:  context,
		Question: question,
	})
	if err != nil {
		return "", err
	}
	return q.finish(ctx, result.AnswerText), nil
}

// finish optionally reformats answer, logging and discarding any
// Reformat failure since it must never fail the overall request.
func (q *QAService) finish(ctx context.Context, answer string) string {
	if !q.reformat {
		return answer
	}
	reformatted, err := q.completion.Reformat(ctx, answer)
	if err != nil {
		logger.Debug("reformat pass failed, returning raw answer: %v", err)
		return answer
	}
	return reformatted
}

const documentSummarySystemPrompt = `You are a document summarization assistant. Produce a clear, accurate summary of the provided document, using only information it contains.`

const keyPointsSystemPrompt = `You are a document analysis assistant. Extract the key points of the provided document as a bulleted list, one point per line, using only information it contains.`

const defaultSummarizeTemplate = `Please provide a comprehensive summary of this document%s.`

const defaultKeyPointsTemplate = `Please extract the %d most important key points from this document. Format each point as a bullet point.`

const defaultKeyPointCount = 10

// assemblePrompt concatenates retrieved chunks with clear separators
// and a fixed instruction that constrains the model to the supplied
// excerpts, per the Retrieval Engine's prompt-assembly contract.
func assemblePrompt(scored []domain.ScoredChunk) string {
	var b strings.Builder
	for i, sc := range scored {
		if i > 0 {
			b.WriteString("\n---\n")
		}
		fmt.Fprintf(&b, "[Excerpt %d]\n%s", i+1, sc.Chunk.Text)
	}
	b.WriteString("\n\n")
	b.WriteString(ragPromptInstruction)
	return b.String()
}

// splitBulletLines turns a newline-delimited bullet list into a slice,
// stripping common bullet markers and blank lines.
func splitBulletLines(text string) []string {
	var points []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*•")
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		points = append(points, line)
	}
	return points
}
