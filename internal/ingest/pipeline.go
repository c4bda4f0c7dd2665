package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mbd888/ethagent/internal/metrics"
)

// Stats summarizes one pipeline run.
type Stats struct {
	Total      int           `json:"total"`
	Successful int           `json:"successful"`
	Failed     int           `json:"failed"`
	Errors     []string      `json:"errors,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// Pipeline fetches from every source, processes each document and stores it.
type Pipeline struct {
	sources   []DocumentSource
	processor Processor
	store     Store
	logger    *slog.Logger
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithSource adds a document source.
func WithSource(src DocumentSource) PipelineOption {
	return func(p *Pipeline) {
		p.sources = append(p.sources, src)
	}
}

// WithProcessor replaces DefaultProcessor.
func WithProcessor(proc Processor) PipelineOption {
	return func(p *Pipeline) {
		p.processor = proc
	}
}

// WithPipelineLogger sets the pipeline logger. A nil logger is ignored.
func WithPipelineLogger(logger *slog.Logger) PipelineOption {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewPipeline creates a pipeline writing to store.
func NewPipeline(store Store, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		processor: DefaultProcessor{},
		store:     store,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Store returns the pipeline's document store.
func (p *Pipeline) Store() Store { return p.store }

type fetchResult struct {
	docs []RawDocument
	err  error
}

// Run executes one ingestion pass. Source and document failures are recorded
// in Stats.Errors; only context cancellation aborts the run.
func (p *Pipeline) Run(ctx context.Context) (Stats, error) {
	start := time.Now()
	var stats Stats

	results := make([]fetchResult, len(p.sources))
	g, gctx := errgroup.WithContext(ctx)
	for i, src := range p.sources {
		g.Go(func() error {
			docs, err := src.FetchDocuments(gctx)
			results[i] = fetchResult{docs: docs, err: err}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return stats, err
	}

	record := func(e *Error) {
		stats.Errors = append(stats.Errors, e.Error())
	}

	for i, res := range results {
		if res.err != nil {
			name := p.sources[i].Metadata().Name
			p.logger.Warn("source fetch failed", "source", name, "error", res.err)
			record(&Error{Stage: StageFetch, Title: name, Err: res.err})
			continue
		}

		for _, raw := range res.docs {
			if err := ctx.Err(); err != nil {
				return stats, err
			}
			stats.Total++
			if err := p.ingest(ctx, raw); err != nil {
				stats.Failed++
				metrics.DocumentsIngestedTotal.WithLabelValues("error").Inc()
				p.logger.Warn("document ingestion failed", "title", raw.Metadata.Title, "error", err)
				record(err)
				continue
			}
			stats.Successful++
			metrics.DocumentsIngestedTotal.WithLabelValues("ok").Inc()
		}
	}

	stats.Duration = time.Since(start)
	p.logger.Info("ingestion complete",
		"total", stats.Total,
		"successful", stats.Successful,
		"failed", stats.Failed,
		"duration_ms", stats.Duration.Milliseconds(),
	)
	return stats, nil
}

func (p *Pipeline) ingest(ctx context.Context, raw RawDocument) *Error {
	doc, err := p.processor.Process(ctx, raw)
	if err != nil {
		return &Error{Stage: StageProcess, Title: raw.Metadata.Title, Err: err}
	}
	if err := p.store.Store(ctx, doc); err != nil {
		return &Error{Stage: StageStore, Title: raw.Metadata.Title, Err: fmt.Errorf("store: %w", err)}
	}
	return nil
}
