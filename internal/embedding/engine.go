// Package embedding turns text into vectors for document retrieval. Vectors
// come from an external model (Ollama or Google GenAI) or from a local
// feature-hashing engine that needs no model at all.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/mbd888/ethagent/internal/circuitbreaker"
)

// Provider names accepted by NewEngine.
const (
	ProviderHash   = "hash"
	ProviderOllama = "ollama"
	ProviderGenAI  = "genai"
)

// ErrDimensionMismatch is returned when two vectors cannot be compared.
var ErrDimensionMismatch = errors.New("embedding: dimension mismatch")

// Engine generates vector embeddings for text.
type Engine interface {
	// Embed generates the embedding of a single text.
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch embeds texts in order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// Dimensions is the vector length the engine produces.
	Dimensions() int
	// Name identifies the engine and model, e.g. "ollama:nomic-embed-text".
	Name() string
}

// Config selects and configures an engine.
type Config struct {
	Provider    string
	Model       string
	OllamaURL   string
	GenAIAPIKey string
	// Dimensions applies to the hash engine only.
	Dimensions int
	// Breaker guards the Ollama engine. Nil keeps its own breaker.
	Breaker *circuitbreaker.Breaker
}

// NewEngine builds the engine named by cfg.Provider. An empty provider
// means the hash engine.
func NewEngine(ctx context.Context, cfg Config) (Engine, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", ProviderHash:
		return NewHashEngine(cfg.Dimensions), nil
	case ProviderOllama:
		e := NewOllamaEngine(cfg.OllamaURL, cfg.Model)
		e.SetBreaker(cfg.Breaker)
		return e, nil
	case ProviderGenAI:
		return NewGenAIEngine(ctx, cfg.GenAIAPIKey, cfg.Model)
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s (use 'hash', 'ollama' or 'genai')", cfg.Provider)
	}
}

// CosineSimilarity returns the cosine of the angle between a and b, in
// [-1, 1]. A zero vector has similarity 0 with everything.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d != %d", ErrDimensionMismatch, len(a), len(b))
	}

	var dot, aa, bb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		aa += float64(a[i]) * float64(a[i])
		bb += float64(b[i]) * float64(b[i])
	}
	if aa == 0 || bb == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(aa) * math.Sqrt(bb)), nil
}

// Match is one TopK result.
type Match struct {
	Index      int
	Similarity float64
}

// TopK returns the k corpus vectors most similar to query, best first. Ties
// keep corpus order. Vectors of the wrong length are skipped.
func TopK(query []float32, corpus [][]float32, k int) []Match {
	matches := make([]Match, 0, len(corpus))
	for i, vec := range corpus {
		sim, err := CosineSimilarity(query, vec)
		if err != nil {
			continue
		}
		matches = append(matches, Match{Index: i, Similarity: sim})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if k >= 0 && len(matches) > k {
		matches = matches[:k]
	}
	return matches
}
