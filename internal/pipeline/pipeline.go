// Package pipeline runs one mention aggregation pass: adapters, normalizer,
// deduplicator, enricher, aggregator.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ngly1/mentionwatch/internal/aggregate"
	"github.com/ngly1/mentionwatch/internal/config"
	"github.com/ngly1/mentionwatch/internal/dedup"
	"github.com/ngly1/mentionwatch/internal/enrich"
	"github.com/ngly1/mentionwatch/internal/normalize"
	"github.com/ngly1/mentionwatch/internal/observability"
	"github.com/ngly1/mentionwatch/internal/source"
	"github.com/ngly1/mentionwatch/internal/types"
)

// Result is the outcome of a run.
type Result struct {
	Report      *types.Report
	Diagnostics *Diagnostics
}

// Pipeline wires the stages of a run together. It holds no state between
// runs; Run may be called repeatedly.
type Pipeline struct {
	adapters   []source.Adapter
	normalizer *normalize.Normalizer
	dedup      *dedup.Deduplicator
	enricher   *enrich.Enricher
	aggregator *aggregate.Aggregator
	dims       []types.Dimension
	keyword    string

	maxConcurrent int
	sourceTimeout time.Duration

	metrics  *observability.Metrics
	now      func() time.Time
	newRunID func() string
	logger   *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithNormalizer replaces the default normalizer.
func WithNormalizer(n *normalize.Normalizer) Option {
	return func(p *Pipeline) { p.normalizer = n }
}

// WithEnricher enables geographic enrichment. Without it no location hits
// are produced.
func WithEnricher(e *enrich.Enricher) Option {
	return func(p *Pipeline) { p.enricher = e }
}

// WithAggregation sets the dimensions to summarize and the top-N cut.
func WithAggregation(dims []types.Dimension, topN int) Option {
	return func(p *Pipeline) {
		p.dims = dims
		p.aggregator = aggregate.New(topN)
	}
}

// WithKeyword records the tracked keyword on the report.
func WithKeyword(k string) Option {
	return func(p *Pipeline) { p.keyword = k }
}

// WithMaxConcurrentSources bounds how many adapters collect at once.
func WithMaxConcurrentSources(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.maxConcurrent = n
		}
	}
}

// WithSourceTimeout bounds a single adapter's collection.
func WithSourceTimeout(d time.Duration) Option {
	return func(p *Pipeline) { p.sourceTimeout = d }
}

// WithMetrics records run metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithClock replaces time.Now for report timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// WithRunID replaces the random run ID generator.
func WithRunID(gen func() string) Option {
	return func(p *Pipeline) { p.newRunID = gen }
}

// New creates a Pipeline over adapters, which are collected and numbered
// in the order given.
func New(adapters []source.Adapter, logger *slog.Logger, opts ...Option) (*Pipeline, error) {
	if len(adapters) == 0 {
		return nil, &types.PipelineError{Stage: "collect", Err: types.ErrNoSources}
	}

	p := &Pipeline{
		adapters:      adapters,
		dims:          types.AllDimensions,
		aggregator:    aggregate.New(0),
		maxConcurrent: len(adapters),
		now:           time.Now,
		newRunID:      uuid.NewString,
		logger:        logger.With("component", "pipeline"),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.normalizer == nil {
		p.normalizer = normalize.New(logger, normalize.WithClock(p.now))
	}
	if p.dedup == nil {
		p.dedup = dedup.New(logger)
	}
	return p, nil
}

// NewFromConfig creates a Pipeline using cfg's limits. enricher may be nil.
func NewFromConfig(cfg *config.Config, adapters []source.Adapter, enricher *enrich.Enricher, metrics *observability.Metrics, logger *slog.Logger) (*Pipeline, error) {
	dims := make([]types.Dimension, 0, len(cfg.Aggregator.Dimensions))
	for _, s := range cfg.Aggregator.Dimensions {
		d, ok := types.ParseDimension(s)
		if !ok {
			return nil, &types.PipelineError{Stage: "aggregate", Err: fmt.Errorf("unknown aggregator dimension: %q", s)}
		}
		dims = append(dims, d)
	}

	return New(adapters, logger,
		WithKeyword(cfg.Keyword),
		WithNormalizer(normalize.New(logger,
			normalize.WithTrackingParams(cfg.Normalizer.ExtraTrackingParams...),
			normalize.WithDateFormats(cfg.Normalizer.ExtraDateFormats...),
		)),
		WithEnricher(enricher),
		WithAggregation(dims, cfg.Aggregator.TopN),
		WithMaxConcurrentSources(cfg.Pipeline.MaxConcurrentSources),
		WithSourceTimeout(cfg.Pipeline.SourceTimeout),
		WithMetrics(metrics),
	)
}

// Run collects from every adapter and reduces the records into a report.
//
// Source and record failures end up in the diagnostics, never in the
// returned error. Cancelling ctx stops collection at the next record; what
// was collected still goes through every stage. When nothing survives
// deduplication the error is an *types.EmptyResultError and the report is
// empty.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	diag := &Diagnostics{RunID: p.newRunID(), SkippedByField: make(map[string]int)}
	report := &types.Report{
		RunID:       diag.RunID,
		Keyword:     p.keyword,
		GeneratedAt: p.now().UTC(),
		Aggregates:  make(map[types.Dimension][]types.AggregateRow),
	}
	p.logger.Info("run started", "run_id", diag.RunID, "sources", len(p.adapters))

	records := p.collect(ctx, diag)
	diag.Cancelled = ctx.Err() != nil
	if diag.Cancelled {
		p.logger.Warn("run cancelled, processing partial results", "records", len(records))
	}

	batch := p.normalizer.NormalizeBatch(0, records)
	diag.RecordsReceived = len(records)
	diag.RecordsSkipped = len(batch.Skipped)
	diag.Skipped = batch.Skipped
	for _, err := range batch.Skipped {
		field := "unknown"
		var mre *types.MalformedRecordError
		if errors.As(err, &mre) {
			field = mre.Field
		}
		diag.SkippedByField[field]++
		p.metrics.RecordSkipped(field)
	}

	mentions, dstats := p.dedup.Deduplicate(batch.Mentions)
	diag.Dedup = dstats
	p.metrics.RecordDedup(dstats.Merged)

	if len(mentions) == 0 {
		diag.Duration = time.Since(start)
		p.metrics.RecordRun(0, diag.Duration)
		p.logger.Info("run produced no mentions", "run_id", diag.RunID,
			"received", diag.RecordsReceived, "skipped", diag.RecordsSkipped)
		return &Result{Report: report, Diagnostics: diag}, &types.EmptyResultError{
			RecordsReceived: diag.RecordsReceived,
			RecordsSkipped:  diag.RecordsSkipped,
		}
	}
	report.Mentions = mentions

	if p.enricher != nil {
		ectx := ctx
		if ctx.Err() != nil {
			ectx = context.WithoutCancel(ctx)
		}
		estart := time.Now()
		hits, estats := p.enricher.Enrich(ectx, mentions)
		diag.Enrichment = estats
		p.metrics.RecordEnrichment(estats.Calls, estats.Failures, estats.Timeouts, estats.Hits, time.Since(estart))
		report.Hits = hits
	}

	report.Aggregates = p.aggregator.Compute(mentions, report.Hits, p.dims)

	diag.Duration = time.Since(start)
	p.metrics.RecordRun(len(mentions), diag.Duration)
	p.logger.Info("run complete",
		"run_id", diag.RunID,
		"mentions", len(mentions),
		"hits", len(report.Hits),
		"received", diag.RecordsReceived,
		"skipped", diag.RecordsSkipped,
		"merged", dstats.Merged,
		"failed_sources", len(diag.FailedSources()),
		"duration", diag.Duration,
	)
	return &Result{Report: report, Diagnostics: diag}, nil
}

// collect runs the adapters concurrently, each into its own slot, and
// returns their records concatenated in adapter order.
func (p *Pipeline) collect(ctx context.Context, diag *Diagnostics) []types.RawRecord {
	slots := make([][]types.RawRecord, len(p.adapters))
	diag.Sources = make([]SourceReport, len(p.adapters))

	var g errgroup.Group
	g.SetLimit(p.maxConcurrent)
	for i, a := range p.adapters {
		g.Go(func() error {
			start := time.Now()
			records, err := p.collectOne(ctx, a)
			slots[i] = records

			rep := SourceReport{Name: a.Name(), Records: len(records), Duration: time.Since(start)}
			if err != nil && ctx.Err() == nil {
				rep.Err = &types.SourceUnavailableError{Source: a.Name(), Records: len(records), Err: err}
				p.logger.Warn("source unavailable", "source", a.Name(), "records", len(records), "error", err)
			}
			diag.Sources[i] = rep
			p.metrics.RecordSource(a.Name(), len(records), rep.Err != nil, rep.Duration)
			return nil
		})
	}
	g.Wait()

	var n int
	for _, s := range slots {
		n += len(s)
	}
	records := make([]types.RawRecord, 0, n)
	for _, s := range slots {
		records = append(records, s...)
	}
	return records
}

func (p *Pipeline) collectOne(ctx context.Context, a source.Adapter) (records []types.RawRecord, err error) {
	if p.sourceTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.sourceTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("adapter panic: %v", r)
		}
	}()

	err = a.Collect(ctx, func(rec types.RawRecord) bool {
		if rec != nil {
			records = append(records, rec)
		}
		return ctx.Err() == nil
	})
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	return records, err
}
