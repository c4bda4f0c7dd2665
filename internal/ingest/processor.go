package ingest

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Processor turns raw documents into processed ones.
type Processor interface {
	Process(ctx context.Context, doc RawDocument) (*ProcessedDocument, error)
}

// DefaultProcessor validates documents and chunks Solidity by declaration
// and Markdown by header.
type DefaultProcessor struct{}

func (DefaultProcessor) Process(ctx context.Context, doc RawDocument) (*ProcessedDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := Validate(doc); err != nil {
		return nil, err
	}
	if !utf8.Valid(doc.Content) {
		return nil, fmt.Errorf("invalid UTF-8 in %s", doc.Metadata.Title)
	}

	content := string(doc.Content)
	var chunks []string
	switch doc.Metadata.DocType {
	case TypeSolidity:
		chunks = ChunkSolidity(content)
	case TypeMarkdown:
		chunks = ChunkMarkdown(content)
	default:
		chunks = []string{content}
	}

	return &ProcessedDocument{
		Content:  content,
		Chunks:   chunks,
		Metadata: doc.Metadata,
		Checksum: doc.Checksum,
	}, nil
}

// ChunkSolidity keeps each line that declares a contract, interface,
// library or function. A file with none becomes a single chunk.
func ChunkSolidity(content string) []string {
	var chunks []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.Contains(line, "contract ") || strings.Contains(line, "interface ") || strings.Contains(line, "library ") {
			chunks = append(chunks, line)
		}
		if strings.Contains(line, "function ") {
			chunks = append(chunks, line)
		}
	}
	if len(chunks) == 0 {
		return []string{content}
	}
	return chunks
}

// ChunkMarkdown starts a new chunk at every line beginning with '#'.
func ChunkMarkdown(content string) []string {
	var (
		chunks  []string
		current strings.Builder
	)
	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			chunks = append(chunks, s)
		}
		current.Reset()
	}

	for _, line := range strings.Split(content, "\n") {
		if strings.HasPrefix(line, "#") {
			flush()
			current.WriteString(line)
			continue
		}
		current.WriteByte('\n')
		current.WriteString(line)
	}
	flush()

	if len(chunks) == 0 {
		return []string{content}
	}
	return chunks
}
