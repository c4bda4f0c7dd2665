package rag

import (
	"context"
	"fmt"
	"sync"

	"github.com/mbd888/ethagent/internal/embedding"
	"github.com/mbd888/ethagent/internal/traces"
)

// Result is one search hit.
type Result struct {
	Score float64
	ID    string
	Doc   Document
}

// Index is an in-memory vector store. It is safe for concurrent use.
type Index struct {
	engine embedding.Engine

	mu      sync.RWMutex
	docs    []Document
	vectors [][]float32
	byID    map[string]int
}

// NewIndex creates an empty index embedding with engine.
func NewIndex(engine embedding.Engine) *Index {
	return &Index{engine: engine, byID: make(map[string]int)}
}

// Add embeds docs in one batch and stores them. A document whose ID is
// already indexed replaces the old entry.
func (ix *Index) Add(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	texts := make([]string, len(docs))
	for i := range docs {
		texts[i] = docs[i].EmbeddingText()
	}
	vecs, err := ix.engine.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed documents: %w", err)
	}
	if len(vecs) != len(docs) {
		return fmt.Errorf("embed documents: got %d vectors for %d documents", len(vecs), len(docs))
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	for i, doc := range docs {
		if pos, ok := ix.byID[doc.ID]; ok {
			ix.docs[pos] = doc
			ix.vectors[pos] = vecs[i]
			continue
		}
		ix.byID[doc.ID] = len(ix.docs)
		ix.docs = append(ix.docs, doc)
		ix.vectors = append(ix.vectors, vecs[i])
	}
	return nil
}

// Reset drops every document.
func (ix *Index) Reset() {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.docs = nil
	ix.vectors = nil
	ix.byID = make(map[string]int)
}

// Search returns up to n documents ordered by descending similarity.
func (ix *Index) Search(ctx context.Context, query string, n int) (results []Result, err error) {
	ctx, span := traces.StartSpan(ctx, "rag.Search", traces.Query(query))
	defer func() { traces.End(span, err) }()

	if n <= 0 {
		return nil, nil
	}
	qv, err := ix.engine.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()
	for _, m := range embedding.TopK(qv, ix.vectors, n) {
		doc := ix.docs[m.Index]
		results = append(results, Result{Score: m.Similarity, ID: doc.ID, Doc: doc})
	}
	return results, nil
}

// Len returns the number of indexed documents.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.docs)
}

// Documents returns a copy of every indexed document in insertion order.
func (ix *Index) Documents() []Document {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return append([]Document(nil), ix.docs...)
}
