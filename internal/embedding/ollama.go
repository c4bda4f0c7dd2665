package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/mbd888/ethagent/internal/circuitbreaker"
	"github.com/mbd888/ethagent/internal/retry"
)

// Ollama defaults.
const (
	DefaultOllamaURL   = "http://localhost:11434"
	DefaultOllamaModel = "nomic-embed-text"

	ollamaBreakerKey = "ollama"
)

// OllamaEngine generates embeddings with a local Ollama server.
type OllamaEngine struct {
	endpoint string
	model    string
	client   *http.Client
	dims     atomic.Int64
	breaker  *circuitbreaker.Breaker

	maxAttempts int
	baseDelay   time.Duration
}

// NewOllamaEngine creates an Ollama engine. Empty arguments select the
// defaults.
func NewOllamaEngine(endpoint, model string) *OllamaEngine {
	if endpoint == "" {
		endpoint = DefaultOllamaURL
	}
	if model == "" {
		model = DefaultOllamaModel
	}
	e := &OllamaEngine{
		endpoint:    strings.TrimRight(endpoint, "/"),
		model:       model,
		client:      &http.Client{Timeout: 30 * time.Second},
		breaker:     circuitbreaker.New(5, 30*time.Second),
		maxAttempts: 3,
		baseDelay:   250 * time.Millisecond,
	}
	e.dims.Store(768)
	return e
}

// SetRetry changes the retry policy for each request.
func (e *OllamaEngine) SetRetry(maxAttempts int, baseDelay time.Duration) {
	e.maxAttempts = maxAttempts
	e.baseDelay = baseDelay
}

// SetBreaker replaces the engine's circuit breaker. A nil breaker is ignored.
func (e *OllamaEngine) SetBreaker(b *circuitbreaker.Breaker) {
	if b != nil {
		e.breaker = b
	}
}

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed posts text to /api/embeddings, retrying rate limits and server
// errors. Failed retries count against the "ollama" circuit.
func (e *OllamaEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(ollamaEmbedRequest{Model: e.model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var vec []float32
	err = e.breaker.ExecuteWhen(ollamaBreakerKey, retry.Transient, func() error {
		var perr error
		vec, perr = retry.DoValue(ctx, e.maxAttempts, e.baseDelay, func() ([]float32, error) {
			return e.post(ctx, body)
		})
		return perr
	})
	if err != nil {
		return nil, err
	}
	e.dims.Store(int64(len(vec)))
	return vec, nil
}

func (e *OllamaEngine) post(ctx context.Context, body []byte) ([]float32, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if err := retry.CheckStatus("ollama", resp.StatusCode, raw); err != nil {
		return nil, err
	}

	var out ollamaEmbedResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, retry.Permanent(fmt.Errorf("failed to decode response: %w", err))
	}
	if len(out.Embedding) == 0 {
		return nil, retry.Permanent(errors.New("ollama returned an empty embedding"))
	}
	return out.Embedding, nil
}

// EmbedBatch calls Embed for each text; Ollama has no batch endpoint.
func (e *OllamaEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := e.Embed(ctx, t)
		if err != nil {
			return nil, fmt.Errorf("failed to embed text %d: %w", i, err)
		}
		out[i] = vec
	}
	return out, nil
}

// Dimensions is 768 until the first response reports the real width.
func (e *OllamaEngine) Dimensions() int { return int(e.dims.Load()) }

func (e *OllamaEngine) Name() string { return "ollama:" + e.model }
