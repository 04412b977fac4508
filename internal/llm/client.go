package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

// Client abstracts an OpenAI-compatible chat-completion backend.
type Client interface {
	// Complete sends one chat completion request and returns the response.
	Complete(ctx context.Context, req Request) (*Result, error)
}

// Request is a simplified chat completion request.
type Request struct {
	Model         string
	SystemMessage string
	UserMessage   string
	MaxTokens     int
	Temperature   float64
}

// Result holds the outcome of one completion call. Elapsed is the wall-clock
// time the adapter measured for the call; CompletionTokens is the token count
// reported by the backend, 0 when the backend does not report usage.
type Result struct {
	Content          string
	CompletionTokens int
	Elapsed          time.Duration
}

// OpenAIClient implements Client against an OpenAI-compatible API.
type OpenAIClient struct {
	client      *openai.Client
	model       string
	temperature *float64
}

// NewOpenAIClient creates a new OpenAI-compatible client.
// The configured base URL must point at the API root; the /v1 path
// segment is appended here.
func NewOpenAIClient(opts ...Option) *OpenAIClient {
	cfg := &clientConfig{
		baseURL: "http://localhost:8000",
		apiKey:  "not-needed",
	}
	for _, opt := range opts {
		opt(cfg)
	}

	config := openai.DefaultConfig(cfg.apiKey)
	config.BaseURL = strings.TrimRight(cfg.baseURL, "/") + "/v1"
	if cfg.timeout > 0 {
		config.HTTPClient = &http.Client{Timeout: cfg.timeout}
	}

	return &OpenAIClient{
		client:      openai.NewClientWithConfig(config),
		model:       cfg.model,
		temperature: cfg.temperature,
	}
}

// Complete sends a non-streaming chat completion request and measures its
// wall-clock duration.
func (c *OpenAIClient) Complete(ctx context.Context, req Request) (*Result, error) {
	req = c.applyDefaults(req)

	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: req.SystemMessage},
		{Role: openai.ChatMessageRoleUser, Content: req.UserMessage},
	}

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: messages,
		// Set the deprecated `MaxTokens` too, for older API servers.
		MaxTokens:           req.MaxTokens,
		MaxCompletionTokens: req.MaxTokens,
		Temperature:         float32(req.Temperature),
	})
	elapsed := time.Since(start)
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, &RequestError{Reason: FailureMalformed, Err: fmt.Errorf("no choices returned")}
	}

	return &Result{
		Content:          resp.Choices[0].Message.Content,
		CompletionTokens: resp.Usage.CompletionTokens,
		Elapsed:          elapsed,
	}, nil
}

// applyDefaults applies client-level defaults to a request where
// the request does not specify its own values.
func (c *OpenAIClient) applyDefaults(req Request) Request {
	if req.Model == "" && c.model != "" {
		req.Model = c.model
	}
	if req.Temperature == 0 && c.temperature != nil {
		req.Temperature = *c.temperature
	}
	return req
}
