// Package llm is a minimal Anthropic Messages API client with tool use.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mbd888/ethagent/internal/circuitbreaker"
	"github.com/mbd888/ethagent/internal/metrics"
	"github.com/mbd888/ethagent/internal/retry"
	"github.com/mbd888/ethagent/internal/traces"
)

const (
	DefaultBaseURL   = "https://api.anthropic.com/v1"
	DefaultModel     = "claude-3-haiku-20240307"
	DefaultMaxTokens = 4096
	APIVersion       = "2023-06-01"

	breakerKey = "anthropic"
)

// ErrMissingAPIKey is returned by New when no key is given.
var ErrMissingAPIKey = errors.New("llm: ANTHROPIC_API_KEY is required")

// APIError is an error response from the API.
type APIError struct {
	Status  int
	Type    string
	Message string
}

func (e *APIError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("anthropic: HTTP %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("anthropic: HTTP %d %s: %s", e.Status, e.Type, e.Message)
}

// HTTPStatus returns the response status code.
func (e *APIError) HTTPStatus() int { return e.Status }

// Client calls the Messages API.
type Client struct {
	baseURL string
	apiKey  string
	model   string
	http    *http.Client
	logger  *slog.Logger
	breaker *circuitbreaker.Breaker

	maxAttempts int
	baseDelay   time.Duration
}

// Option configures the Client.
type Option func(*Client)

// WithBaseURL points the client at a different endpoint.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithModel sets the default model.
func WithModel(m string) Option { return func(c *Client) { c.model = m } }

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(c *Client) { c.logger = l } }

// WithBreaker sets the circuit breaker guarding the API. Nil is ignored.
func WithBreaker(b *circuitbreaker.Breaker) Option {
	return func(c *Client) {
		if b != nil {
			c.breaker = b
		}
	}
}

// WithRetry sets the retry policy.
func WithRetry(maxAttempts int, baseDelay time.Duration) Option {
	return func(c *Client) {
		c.maxAttempts = maxAttempts
		c.baseDelay = baseDelay
	}
}

// New creates a client.
func New(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	c := &Client{
		baseURL:     DefaultBaseURL,
		apiKey:      apiKey,
		model:       DefaultModel,
		http:        &http.Client{Timeout: 120 * time.Second},
		logger:      slog.Default(),
		breaker:     circuitbreaker.New(5, 30*time.Second),
		maxAttempts: 3,
		baseDelay:   time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Model returns the default model.
func (c *Client) Model() string { return c.model }

// CreateMessage sends one Messages request. Rate limits and server errors
// are retried and, once retries run out, count against the "anthropic"
// circuit. Other failures return an *APIError.
func (c *Client) CreateMessage(ctx context.Context, req MessageRequest) (resp *MessageResponse, err error) {
	if req.Model == "" {
		req.Model = c.model
	}
	if req.MaxTokens <= 0 {
		req.MaxTokens = DefaultMaxTokens
	}

	ctx, span := traces.StartSpan(ctx, "llm.CreateMessage", traces.Model(req.Model))
	defer func() { traces.End(span, err) }()

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	start := time.Now()
	err = c.breaker.ExecuteWhen(breakerKey, retry.Transient, func() error {
		var serr error
		resp, serr = retry.DoValue(ctx, c.maxAttempts, c.baseDelay, func() (*MessageResponse, error) {
			return c.send(ctx, body)
		})
		return serr
	})
	if err != nil {
		metrics.LLMRequestsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	metrics.LLMRequestsTotal.WithLabelValues("ok").Inc()
	metrics.LLMTokensTotal.WithLabelValues("input").Add(float64(resp.Usage.InputTokens))
	metrics.LLMTokensTotal.WithLabelValues("output").Add(float64(resp.Usage.OutputTokens))
	c.logger.Debug("anthropic response",
		"model", resp.Model,
		"stop_reason", resp.StopReason,
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens,
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return resp, nil
}

func (c *Client) send(ctx context.Context, body []byte) (*MessageResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("build request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", APIVersion)

	res, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		apiErr := parseAPIError(res.StatusCode, raw)
		if retry.Retryable(res.StatusCode) {
			return nil, apiErr
		}
		return nil, retry.Permanent(apiErr)
	}

	var out MessageResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, retry.Permanent(fmt.Errorf("decode response: %w", err))
	}
	return &out, nil
}

func parseAPIError(status int, body []byte) *APIError {
	var envelope struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	apiErr := &APIError{Status: status}
	if json.Unmarshal(body, &envelope) == nil && envelope.Error.Message != "" {
		apiErr.Type = envelope.Error.Type
		apiErr.Message = envelope.Error.Message
		return apiErr
	}
	msg := string(body)
	if len(msg) > 512 {
		msg = msg[:512]
	}
	apiErr.Message = msg
	return apiErr
}

// Complete sends a single user prompt and returns the reply text.
func (c *Client) Complete(ctx context.Context, system, prompt string) (string, error) {
	resp, err := c.CreateMessage(ctx, MessageRequest{
		System:   system,
		Messages: []Message{UserText(prompt)},
	})
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}
