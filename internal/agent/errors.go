package agent

import (
	"errors"
	"fmt"
)

// Kind classifies agent errors.
type Kind int

const (
	KindMCPConnection Kind = iota + 1
	KindClaudeAPI
	KindMissingEnvVar
	KindConfig
	KindCLI
	KindRAG
)

func (k Kind) String() string {
	switch k {
	case KindMCPConnection:
		return "MCP server connection failed"
	case KindClaudeAPI:
		return "Claude API error"
	case KindMissingEnvVar:
		return "Missing environment variable"
	case KindConfig:
		return "Configuration error"
	case KindCLI:
		return "CLI error"
	case KindRAG:
		return "RAG system error"
	default:
		return "agent error"
	}
}

// Error is an agent failure of a given kind.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ErrRAGNotInitialized is returned by RAG operations before InitializeRAG.
var ErrRAGNotInitialized = errors.New("RAG system not initialized")

func newError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// IsKind reports whether err is an *Error of kind k.
func IsKind(err error, k Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == k
}
