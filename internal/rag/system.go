package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/mbd888/ethagent/internal/embedding"
	"github.com/mbd888/ethagent/internal/ingest"
	"github.com/mbd888/ethagent/internal/metrics"
)

// System is the Uniswap RAG: an index fed by an ingestion pipeline.
type System struct {
	engine   embedding.Engine
	index    *Index
	pipeline *ingest.Pipeline
	logger   *slog.Logger
}

// Option configures a System.
type Option func(*System)

// WithPipeline sets the pipeline LoadDocumentation runs.
func WithPipeline(p *ingest.Pipeline) Option {
	return func(s *System) {
		s.pipeline = p
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *System) {
		s.logger = logger
	}
}

// NewSystem creates an empty system.
func NewSystem(engine embedding.Engine, opts ...Option) *System {
	s := &System{
		engine: engine,
		index:  NewIndex(engine),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewUniswapPipeline wires a UniswapSource over docsDir into store.
func NewUniswapPipeline(docsDir string, store ingest.Store, logger *slog.Logger) *ingest.Pipeline {
	return ingest.NewPipeline(store,
		ingest.WithSource(ingest.NewUniswapSource(docsDir, logger)),
		ingest.WithPipelineLogger(logger),
	)
}

// LoadDocumentation runs the pipeline and indexes every stored document. It
// returns the number of documents indexed, which is zero when the pipeline
// produced nothing.
func (s *System) LoadDocumentation(ctx context.Context) (int, error) {
	if s.pipeline == nil {
		s.logger.Warn("no ingestion pipeline configured")
		return 0, nil
	}

	stats, err := s.pipeline.Run(ctx)
	if err != nil {
		return 0, fmt.Errorf("document ingestion failed: %w", err)
	}
	for _, e := range stats.Errors {
		s.logger.Warn("ingestion error", "error", e)
	}
	if stats.Successful == 0 {
		s.logger.Warn("no documents were successfully processed")
		return 0, nil
	}

	store := s.pipeline.Store()
	list, err := store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list documents: %w", err)
	}

	docs := make([]Document, 0, len(list))
	for _, meta := range list {
		pd, err := store.Get(ctx, meta.Title)
		if errors.Is(err, ingest.ErrNotFound) {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("get document %s: %w", meta.Title, err)
		}
		docs = append(docs, FromProcessed(pd))
	}

	s.index.Reset()
	if err := s.index.Add(ctx, docs); err != nil {
		return 0, err
	}
	s.updateGauge()
	s.logger.Info("indexed documentation", "documents", len(docs), "engine", s.engine.Name())
	return len(docs), nil
}

// FromProcessed converts an ingested document. The ingest chunks are kept
// as the semantic chunks.
func FromProcessed(pd *ingest.ProcessedDocument) Document {
	meta := NewMetadata(pd.Metadata.Source.Location, pd.Metadata.Version, pd.Metadata.Tags)
	doc := NewDocument(pd.Checksum, pd.Metadata.Title, docTypeFor(pd.Metadata.DocType), pd.Content, meta)
	if len(pd.Chunks) > 0 {
		doc.SemanticChunks = append([]string(nil), pd.Chunks...)
	}
	return doc
}

func docTypeFor(t ingest.DocumentType) DocType {
	switch t {
	case ingest.TypeSolidity:
		return TypeContractCode
	case ingest.TypeJSON:
		return TypeInterface
	default:
		return TypeDocumentation
	}
}

// AddSampleDocumentation indexes the built-in sample docs.
func (s *System) AddSampleDocumentation(ctx context.Context) error {
	docs := sampleDocs()
	if err := s.index.Add(ctx, docs); err != nil {
		return fmt.Errorf("index sample documentation: %w", err)
	}
	s.updateGauge()
	s.logger.Info("indexed sample documentation", "documents", len(docs))
	return nil
}

// Search returns up to limit documents relevant to query.
func (s *System) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	results, err := s.index.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("rag search", "query", query, "limit", limit, "results", len(results))
	return results, nil
}

// DocumentCount returns the number of indexed documents.
func (s *System) DocumentCount() int {
	return s.index.Len()
}

// Documents returns every indexed document.
func (s *System) Documents() []Document {
	return s.index.Documents()
}

// ExampleMatch is a SearchExamples hit.
type ExampleMatch struct {
	Score float64
	ID    string
	Text  string
}

// SearchExamples ranks examples by similarity to query. IDs are
// "example_<i>" where i is the example's position.
func (s *System) SearchExamples(ctx context.Context, query string, examples []string) ([]ExampleMatch, error) {
	if len(examples) == 0 {
		return nil, nil
	}
	vecs, err := s.engine.EmbedBatch(ctx, examples)
	if err != nil {
		return nil, fmt.Errorf("embed examples: %w", err)
	}
	qv, err := s.engine.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	matches := embedding.TopK(qv, vecs, len(examples))
	out := make([]ExampleMatch, 0, len(matches))
	for _, m := range matches {
		out = append(out, ExampleMatch{
			Score: m.Similarity,
			ID:    "example_" + strconv.Itoa(m.Index),
			Text:  examples[m.Index],
		})
	}
	return out, nil
}

func (s *System) updateGauge() {
	metrics.RAGDocumentsIndexed.Set(float64(s.index.Len()))
}
