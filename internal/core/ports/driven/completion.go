// Package driven provides interfaces for infrastructure adapters (secondary/outbound ports).
package driven

import (
	"context"

	"github.com/relaylabs/pdfqa-server/internal/core/domain"
)

// CompletionService wraps the remote generative-model HTTP endpoint.
// It is treated as opaque: implementations may target Perplexity,
// OpenAI, Anthropic or any other chat-completions-shaped API.
type CompletionService interface {
	// Complete submits an assembled prompt and question and returns the
	// model's answer, retrying transient transport failures internally.
	Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error)

	// Reformat reshapes a raw answer into structured markdown. Its
	// failure must never fail the caller's request; callers fall back
	// to the raw answer.
	Reformat(ctx context.Context, rawAnswer string) (string, error)

	// ModelName returns the model identifier in use.
	ModelName() string

	// Ping validates the service is reachable with a lightweight request.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// CompletionRequest carries the assembled prompt plus generation params.
type CompletionRequest struct {
	// SystemPrompt constrains the model to answer only from context.
	SystemPrompt string

	// Context is the retrieved chunk text (or full document for the
	// legacy single-pass tool), already assembled with separators.
	Context string

	// Question is the user's question.
	Question string

	ModelID     string
	Temperature float64
	MaxTokens   int
}

// CompletionResult is the model's answer plus accounting metadata.
type CompletionResult struct {
	AnswerText string
	ModelID    string
	TokenUsage *domain.TokenUsage
}
