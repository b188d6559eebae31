// Package perplexity provides a CompletionService adapter for the
// Perplexity chat-completions API, and any API-compatible backend
// reachable at the same endpoint shape (model, messages, temperature,
// max_tokens).
package perplexity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/relaylabs/pdfqa-server/internal/core/domain"
	"github.com/relaylabs/pdfqa-server/internal/core/ports/driven"
)

// Ensure Client implements the interface.
var _ driven.CompletionService = (*Client)(nil)

// Default configuration values.
const (
	DefaultBaseURL     = "https://api.perplexity.ai/chat/completions"
	DefaultModel       = "sonar"
	DefaultTimeout     = 60 * time.Second
	DefaultTemperature = 0.2
	DefaultMaxTokens   = 4000

	// ProactiveRate caps outgoing requests when the backend gives no
	// rate-limit feedback of its own.
	ProactiveRate = 2.0

	// MaxRetries bounds the transient-error retry loop.
	MaxRetries = 3
)

// documentQASystemPrompt constrains the model to answer only from the
// supplied context, refusing to draw on outside knowledge.
const documentQASystemPrompt = `You are a document analysis assistant. Your ONLY job is to extract information from the provided document.
CRITICAL RULES:
1. Answer ONLY using information explicitly stated in the document
2. Do NOT use any external knowledge or information from the web
3. If the answer is not in the document, respond with 'This information is not found in the document'
4. Provide direct quotes from the document when possible
5. Do not make inferences beyond what is explicitly stated`

// reformatSystemPrompt turns a raw answer into a more readable one
// without touching its factual content.
const reformatSystemPrompt = `You are an expert at summarizing and formatting answers.
Your job is to make answers clear, concise, and user-friendly.
CRITICAL RULES:
1. Keep all factual information from the original answer
2. Make the answer more readable and well-structured
3. Use bullet points, numbering, or paragraphs as appropriate
4. Remove redundancy but preserve all key details
5. If the answer says information is not found, keep that clear`

// Config holds configuration for the Perplexity completion client.
type Config struct {
	// APIKey is the Perplexity API key (required).
	APIKey string

	// BaseURL is the chat-completions endpoint (default: Perplexity's).
	BaseURL string

	// Model is the model identifier to request (default: "sonar").
	Model string

	// Timeout is the per-request timeout (default: 60s).
	Timeout time.Duration
}

// Client implements driven.CompletionService against a chat-completions
// endpoint, with proactive rate limiting and bounded retry on transient
// transport failures.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	apiKey      string
	model       string
	bucket      *rate.Limiter
	promptStore driven.PromptStore
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// New creates a Perplexity-compatible completion client.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("perplexity: API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		bucket:     rate.NewLimiter(rate.Limit(ProactiveRate), 1),
	}, nil
}

// Complete submits the assembled document context and question, retrying
// transient transport and 5xx failures with exponential backoff.
func (c *Client) Complete(ctx context.Context, req driven.CompletionRequest) (driven.CompletionResult, error) {
	model := req.ModelID
	if model == "" {
		model = c.model
	}
	temperature := req.Temperature
	if temperature == 0 {
		temperature = DefaultTemperature
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = DefaultMaxTokens
	}

	systemPrompt := req.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = c.loadPrompt(driven.PromptDocumentQA, documentQASystemPrompt)
	}

	userMessage := fmt.Sprintf(
		"DOCUMENT CONTENT:\n---\n%s\n---\n\nQUESTION: %s\n\nExtract the answer from the document above. Only use information from the document.",
		req.Context, req.Question,
	)

	resp, err := c.send(ctx, model, temperature, maxTokens, []chatMessage{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: userMessage},
	})
	if err != nil {
		return driven.CompletionResult{}, err
	}

	return driven.CompletionResult{
		AnswerText: resp.answer,
		ModelID:    model,
		TokenUsage: resp.usage,
	}, nil
}

// Reformat reshapes a raw answer into structured markdown. A failure
// here is always recoverable by the caller falling back to the raw text,
// so on error it returns the original answer together with the error.
func (c *Client) Reformat(ctx context.Context, rawAnswer string) (string, error) {
	resp, err := c.send(ctx, c.model, DefaultTemperature, DefaultMaxTokens, []chatMessage{
		{Role: "system", Content: c.loadPrompt(driven.PromptReformat, reformatSystemPrompt)},
		{Role: "user", Content: fmt.Sprintf("Raw Answer to Summarize:\n---\n%s\n---\n\nPlease provide a clear, well-formatted version of this answer.", rawAnswer)},
	})
	if err != nil {
		return rawAnswer, err
	}
	return resp.answer, nil
}

type sendResult struct {
	answer string
	usage  *domain.TokenUsage
}

// send performs one chat-completions call, making at most MaxRetries
// attempts in total and backing off exponentially after each transient
// failure.
func (c *Client) send(ctx context.Context, model string, temperature float64, maxTokens int, messages []chatMessage) (sendResult, error) {
	reqBody := chatRequest{
		Model:       model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return sendResult{}, domain.Wrap(domain.KindInternal, fmt.Errorf("marshal request: %w", err))
	}

	var lastErr error
	for attempt := 0; attempt < MaxRetries; attempt++ {
		if err := c.bucket.Wait(ctx); err != nil {
			return sendResult{}, err
		}

		result, retryable, err := c.doSend(ctx, jsonBody)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !retryable {
			return sendResult{}, err
		}

		select {
		case <-ctx.Done():
			return sendResult{}, ctx.Err()
		case <-time.After(time.Duration(1<<attempt) * time.Second):
		}
	}

	return sendResult{}, domain.Wrap(domain.KindModelTransient, lastErr)
}

func (c *Client) doSend(ctx context.Context, jsonBody []byte) (sendResult, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(jsonBody))
	if err != nil {
		return sendResult{}, false, domain.Wrap(domain.KindInternal, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return sendResult{}, false, domain.Wrap(domain.KindModelTimeout, err)
		}
		return sendResult{}, true, domain.Wrap(domain.KindModelTransient, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return sendResult{}, true, domain.Wrap(domain.KindModelTransient, err)
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return sendResult{}, true, domain.NewError(domain.KindModelTransient, fmt.Sprintf("status %d: %s", resp.StatusCode, string(body)))
	}

	var chatResp chatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return sendResult{}, false, domain.Wrap(domain.KindModelPermanent, fmt.Errorf("decode response: %w", err))
	}

	if chatResp.Error != nil {
		return sendResult{}, false, domain.NewError(domain.KindModelPermanent, chatResp.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return sendResult{}, false, domain.NewError(domain.KindModelPermanent, fmt.Sprintf("status %d: %s", resp.StatusCode, string(body)))
	}
	if len(chatResp.Choices) == 0 {
		return sendResult{}, false, domain.NewError(domain.KindModelPermanent, "no choices returned")
	}

	return sendResult{
		answer: strings.TrimSpace(chatResp.Choices[0].Message.Content),
		usage: &domain.TokenUsage{
			PromptTokens:     chatResp.Usage.PromptTokens,
			CompletionTokens: chatResp.Usage.CompletionTokens,
			TotalTokens:      chatResp.Usage.TotalTokens,
		},
	}, false, nil
}

// SetPromptStore sets the prompt store used to load customisable
// system prompts. If not set, the client uses hardcoded defaults.
func (c *Client) SetPromptStore(store driven.PromptStore) {
	c.promptStore = store
}

// loadPrompt loads a prompt from the store, falling back to fallback
// if no store is configured or the load fails.
func (c *Client) loadPrompt(name, fallback string) string {
	if c.promptStore == nil {
		return fallback
	}
	prompt, err := c.promptStore.Load(name)
	if err != nil {
		return fallback
	}
	return prompt
}

// ModelName returns the model identifier in use.
func (c *Client) ModelName() string { return c.model }

// Ping validates the service is reachable with a minimal completion call.
func (c *Client) Ping(ctx context.Context) error {
	_, _, err := c.doSend(ctx, mustMarshal(chatRequest{
		Model:     c.model,
		Messages:  []chatMessage{{Role: "user", Content: "ping"}},
		MaxTokens: 1,
	}))
	return err
}

func mustMarshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

// Close releases resources. The HTTP client needs no explicit cleanup.
func (c *Client) Close() error { return nil }
