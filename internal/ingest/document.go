// Package ingest loads Uniswap documentation and contract sources, validates
// and chunks them, and persists them in a document store.
package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// DocumentType is the format of a raw document.
type DocumentType string

const (
	TypeSolidity DocumentType = "Solidity"
	TypeMarkdown DocumentType = "Markdown"
	TypeJSON     DocumentType = "JSON"
	TypeText     DocumentType = "Text"
)

// SourceInfo describes where a document came from.
type SourceInfo struct {
	Name     string `json:"name"`
	Type     string `json:"source_type"`
	Location string `json:"location"`
	Version  string `json:"version,omitempty"`
}

// DocumentMetadata travels with a document through the pipeline.
type DocumentMetadata struct {
	Title     string       `json:"title"`
	DocType   DocumentType `json:"doc_type"`
	Version   string       `json:"version,omitempty"`
	Source    SourceInfo   `json:"source"`
	Tags      []string     `json:"tags"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// RawDocument is a fetched document before processing.
type RawDocument struct {
	Content  []byte
	Metadata DocumentMetadata
	Checksum string
}

// NewRawDocument computes the sha256 checksum of content.
func NewRawDocument(content []byte, meta DocumentMetadata) RawDocument {
	sum := sha256.Sum256(content)
	return RawDocument{
		Content:  content,
		Metadata: meta,
		Checksum: hex.EncodeToString(sum[:]),
	}
}

// ProcessedDocument is a validated document split into chunks.
type ProcessedDocument struct {
	Content  string           `json:"content"`
	Chunks   []string         `json:"chunks"`
	Metadata DocumentMetadata `json:"metadata"`
	Checksum string           `json:"checksum"`
}

var (
	// ErrValidation is wrapped by every Validate failure.
	ErrValidation = errors.New("document validation failed")
	// ErrNotFound is returned by Store.Get for an unknown title.
	ErrNotFound = errors.New("document not found")
)

// Stage names the pipeline step a document failed in.
type Stage string

const (
	StageFetch   Stage = "fetch"
	StageProcess Stage = "process"
	StageStore   Stage = "store"
)

// Error records a failure for one document or source.
type Error struct {
	Stage Stage
	Title string
	Err   error
}

func (e *Error) Error() string {
	if e.Title == "" {
		return fmt.Sprintf("%s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Stage, e.Title, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
