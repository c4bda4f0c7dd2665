// Package rag indexes Uniswap documentation and contract sources and answers
// similarity queries over them.
package rag

import (
	"fmt"
	"strings"
	"time"
)

// DocType categorizes an indexed document.
type DocType string

const (
	TypeDocumentation DocType = "Documentation"
	TypeContractCode  DocType = "ContractCode"
	TypeInterface     DocType = "Interface"
	TypeGuide         DocType = "Guide"
	TypeExample       DocType = "Example"
	TypeFAQ           DocType = "FAQ"
	TypeTutorial      DocType = "Tutorial"
	TypeReference     DocType = "Reference"
	TypeExplanation   DocType = "Explanation"
)

// ChunkType labels a document that is itself a chunk of a parent.
type ChunkType string

const (
	ChunkFunctionDoc  ChunkType = "FunctionDoc"
	ChunkExample      ChunkType = "Example"
	ChunkInterface    ChunkType = "Interface"
	ChunkConcept      ChunkType = "Concept"
	ChunkUsage        ChunkType = "Usage"
	ChunkError        ChunkType = "Error"
	ChunkBestPractice ChunkType = "BestPractice"
	ChunkParameter    ChunkType = "Parameter"
	ChunkReturnValue  ChunkType = "ReturnValue"
	ChunkSecurity     ChunkType = "Security"
)

// Status is a document's lifecycle state.
type Status string

const (
	StatusDraft      Status = "Draft"
	StatusInReview   Status = "InReview"
	StatusPublished  Status = "Published"
	StatusArchived   Status = "Archived"
	StatusDeprecated Status = "Deprecated"
)

// Metadata describes where a document came from.
type Metadata struct {
	SourcePath   string    `json:"source_path,omitempty"`
	Version      string    `json:"version,omitempty"`
	Tags         []string  `json:"tags"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	SourceRepo   string    `json:"source_repo,omitempty"`
	RelatedDocs  []string  `json:"related_docs,omitempty"`
	Dependencies []string  `json:"dependencies,omitempty"`
	Status       Status    `json:"status"`
}

// NewMetadata returns published metadata stamped with the current time.
func NewMetadata(sourcePath, version string, tags []string) Metadata {
	now := time.Now().UTC()
	return Metadata{
		SourcePath: sourcePath,
		Version:    version,
		Tags:       tags,
		CreatedAt:  now,
		UpdatedAt:  now,
		Status:     StatusPublished,
	}
}

// Document is the unit stored in the index.
type Document struct {
	ID                 string    `json:"id"`
	Title              string    `json:"title"`
	Type               DocType   `json:"doc_type"`
	Content            string    `json:"content"`
	SemanticChunks     []string  `json:"semantic_chunks"`
	CodeExamples       []string  `json:"code_examples"`
	FunctionSignatures []string  `json:"function_signatures"`
	Metadata           Metadata  `json:"metadata"`
	ParentID           string    `json:"parent_id,omitempty"`
	ChunkType          ChunkType `json:"chunk_type,omitempty"`
}

// NewDocument builds a document and derives its chunks.
func NewDocument(id, title string, docType DocType, content string, meta Metadata) Document {
	d := Document{
		ID:       id,
		Title:    title,
		Type:     docType,
		Content:  content,
		Metadata: meta,
	}
	d.CreateSemanticChunks()
	return d
}

// CreateSemanticChunks splits Content into header sections and extracts
// the first solidity code block and the first function line of each.
func (d *Document) CreateSemanticChunks() {
	var chunks, examples, signatures []string

	for _, section := range strings.Split(d.Content, "\n#") {
		if _, after, ok := strings.Cut(section, "```solidity"); ok {
			code, _, _ := strings.Cut(after, "```")
			if code = strings.TrimSpace(code); code != "" {
				examples = append(examples, code)
			}
		}

		for _, line := range strings.Split(section, "\n") {
			if strings.Contains(line, "function ") {
				if sig := strings.TrimSpace(line); sig != "" {
					signatures = append(signatures, sig)
				}
				break
			}
		}

		if chunk := strings.TrimSpace(section); chunk != "" {
			chunks = append(chunks, chunk)
		}
	}

	d.SemanticChunks = chunks
	d.CodeExamples = examples
	d.FunctionSignatures = signatures
}

// EmbeddingText is the text that gets embedded and handed to the model as
// context.
func (d *Document) EmbeddingText() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n", d.Title)
	if d.Metadata.Version != "" {
		fmt.Fprintf(&b, "Version: %s\n", d.Metadata.Version)
	}
	b.WriteString("\n")
	b.WriteString(d.Content)

	if len(d.SemanticChunks) > 0 {
		b.WriteString("\n\nAdditional Context:\n")
		for _, c := range d.SemanticChunks {
			fmt.Fprintf(&b, "- %s\n", c)
		}
	}
	writeCode(&b, "Code Examples", d.CodeExamples)
	writeCode(&b, "Function Signatures", d.FunctionSignatures)
	return b.String()
}

func writeCode(b *strings.Builder, heading string, blocks []string) {
	if len(blocks) == 0 {
		return
	}
	fmt.Fprintf(b, "\n\n%s:\n", heading)
	for _, code := range blocks {
		b.WriteString("```solidity\n")
		b.WriteString(code)
		b.WriteString("\n```\n")
	}
}

// String renders the title, content, code examples and signatures.
func (d Document) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n", d.Title)
	if d.ChunkType != "" {
		fmt.Fprintf(&b, "Type: %s\n", d.ChunkType)
	}
	fmt.Fprintf(&b, "\n%s\n", d.Content)
	for _, group := range []struct {
		heading string
		blocks  []string
	}{{"Code Examples", d.CodeExamples}, {"Function Signatures", d.FunctionSignatures}} {
		if len(group.blocks) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n%s:\n", group.heading)
		for _, code := range group.blocks {
			fmt.Fprintf(&b, "```solidity\n%s\n```\n", code)
		}
	}
	return b.String()
}
