package ingest

import (
	"context"
	"sort"
	"sync"
)

// Store persists processed documents keyed by title.
type Store interface {
	// Store inserts or replaces the document with the same title.
	Store(ctx context.Context, doc *ProcessedDocument) error
	// Get returns ErrNotFound for an unknown title.
	Get(ctx context.Context, title string) (*ProcessedDocument, error)
	// List returns metadata for every stored document sorted by title.
	List(ctx context.Context) ([]DocumentMetadata, error)
	// Delete removes a document. Deleting an unknown title is not an error.
	Delete(ctx context.Context, title string) error
}

// MemoryStore is an in-memory Store.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]*ProcessedDocument
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]*ProcessedDocument)}
}

func (m *MemoryStore) Store(_ context.Context, doc *ProcessedDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *doc
	cp.Chunks = append([]string(nil), doc.Chunks...)
	m.docs[doc.Metadata.Title] = &cp
	return nil
}

func (m *MemoryStore) Get(_ context.Context, title string) (*ProcessedDocument, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[title]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *doc
	return &cp, nil
}

func (m *MemoryStore) List(_ context.Context) ([]DocumentMetadata, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]DocumentMetadata, 0, len(m.docs))
	for _, doc := range m.docs {
		out = append(out, doc.Metadata)
	}
	sortMetadata(out)
	return out, nil
}

func (m *MemoryStore) Delete(_ context.Context, title string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, title)
	return nil
}

// Len returns the number of stored documents.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs)
}

func sortMetadata(meta []DocumentMetadata) {
	sort.Slice(meta, func(i, j int) bool { return meta[i].Title < meta[j].Title })
}
