package agent

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/mbd888/ethagent/internal/rag"
)

// ragResults is how many documents are added to a documentation query.
const ragResults = 3

const separator = "────────────────────────────────────────────────────────────────────────────────"

func (a *Agent) ragSystem() *rag.System {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.rag
}

// InitializeRAG loads documentation from docsPath, or the configured docs
// directory when empty. The built-in samples are indexed when nothing was
// found.
func (a *Agent) InitializeRAG(ctx context.Context, docsPath string) error {
	if docsPath == "" {
		docsPath = a.docsPath
	}

	opts := []rag.Option{rag.WithLogger(a.logger)}
	if docsPath != "" {
		opts = append(opts, rag.WithPipeline(rag.NewUniswapPipeline(docsPath, a.store, a.logger)))
	}
	sys := rag.NewSystem(a.engine, opts...)
	if docsPath != "" {
		if _, err := sys.LoadDocumentation(ctx); err != nil {
			return newError(KindRAG, err)
		}
	}

	if sys.DocumentCount() == 0 {
		a.logger.Info("no external documentation found, adding sample Uniswap docs")
		if err := sys.AddSampleDocumentation(ctx); err != nil {
			return newError(KindRAG, err)
		}
	}

	a.mu.Lock()
	a.rag = sys
	a.mu.Unlock()
	a.logger.Info("RAG system initialized", "documents", sys.DocumentCount(), "engine", a.engine.Name())
	return nil
}

// SearchDocumentation queries the RAG index.
func (a *Agent) SearchDocumentation(ctx context.Context, query string, limit int) ([]rag.Result, error) {
	sys := a.ragSystem()
	if sys == nil {
		return nil, newError(KindRAG, ErrRAGNotInitialized)
	}
	results, err := sys.Search(ctx, query, limit)
	if err != nil {
		return nil, newError(KindRAG, err)
	}
	return results, nil
}

// RAGStatus describes the index. ok is false before InitializeRAG.
func (a *Agent) RAGStatus() (status string, ok bool) {
	sys := a.ragSystem()
	if sys == nil {
		return "", false
	}
	return fmt.Sprintf("RAG System: %d documents indexed", sys.DocumentCount()), true
}

func (a *Agent) enhanceWithRAG(ctx context.Context, query string) (string, error) {
	results, err := a.SearchDocumentation(ctx, query, ragResults)
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return query, nil
	}
	return query + "\n\n" + FormatContext(results), nil
}

// FormatContext renders search results as the documentation block appended
// to a query.
func FormatContext(results []rag.Result) string {
	var b strings.Builder
	b.WriteString("\n\nRELEVANT UNISWAP DOCUMENTATION:\n")
	b.WriteString(separator + "\n")
	for _, r := range results {
		fmt.Fprintf(&b, "Document: %s (Relevance: %.1f%%)\n", r.Doc.Title, math.Min(r.Score*100, 100))
		fmt.Fprintf(&b, "Tags: %s\n", strings.Join(r.Doc.Metadata.Tags, ", "))
		fmt.Fprintf(&b, "Content:\n%s\n\n", r.Doc.Content)
		b.WriteString(separator + "\n\n")
	}
	return b.String()
}
