package enrich

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/ngly1/mentionwatch/internal/types"
)

// Defaults applied by New.
const (
	DefaultTimeout     = 10 * time.Second
	DefaultConcurrency = 4
)

// Stats reports what an enrichment pass did.
type Stats struct {
	Mentions int
	Calls    int
	// Skipped counts mentions with no usable text or already enriched.
	Skipped  int
	Failures int
	Timeouts int
	Hits     int
	// Errors holds one *types.EnrichmentFailure or *types.EnrichmentTimeoutError
	// per failed call.
	Errors []error
}

// Option configures an Enricher.
type Option func(*Enricher)

// WithTimeout bounds each extractor call.
func WithTimeout(d time.Duration) Option {
	return func(e *Enricher) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithLocationKinds sets the entity kinds that become location hits.
func WithLocationKinds(kinds ...string) Option {
	return func(e *Enricher) {
		if len(kinds) == 0 {
			return
		}
		e.kinds = make(map[string]struct{}, len(kinds))
		for _, k := range kinds {
			e.kinds[strings.ToUpper(strings.TrimSpace(k))] = struct{}{}
		}
	}
}

// WithMaxTextLength truncates text sent to the extractor; 0 disables truncation.
func WithMaxTextLength(n int) Option {
	return func(e *Enricher) { e.maxText = n }
}

// WithConcurrency bounds in-flight extractor calls.
func WithConcurrency(n int) Option {
	return func(e *Enricher) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithTitleFallback analyzes the title of mentions that carry no raw text.
// On by default; the "No Title" sentinel is never analyzed.
func WithTitleFallback(on bool) Option {
	return func(e *Enricher) { e.titleFallback = on }
}

// Enricher turns mentions into location hits using an EntityExtractor.
// It is safe for concurrent use and keeps no state between Enrich calls.
type Enricher struct {
	extractor     EntityExtractor
	timeout       time.Duration
	kinds         map[string]struct{}
	maxText       int
	concurrency   int
	titleFallback bool
	logger        *slog.Logger
}

// New creates an Enricher. The extractor stays owned by the caller.
func New(extractor EntityExtractor, logger *slog.Logger, opts ...Option) *Enricher {
	e := &Enricher{
		extractor:     extractor,
		timeout:       DefaultTimeout,
		kinds:         map[string]struct{}{KindGPE: {}},
		concurrency:   DefaultConcurrency,
		titleFallback: true,
		logger:        logger.With("component", "enricher"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type job struct {
	mention *types.Mention
	text    string
}

type outcome struct {
	hits []types.LocationHit
	err  error
}

// Enrich extracts location hits for every mention. It never fails as a whole:
// a failed or timed-out call is recorded in Stats and leaves that mention
// with zero hits. Hits are returned in mention order, and a mention ID
// repeated in the input is enriched once.
func (e *Enricher) Enrich(ctx context.Context, mentions []*types.Mention) ([]types.LocationHit, Stats) {
	stats := Stats{Mentions: len(mentions)}

	jobs := make([]job, 0, len(mentions))
	seen := make(map[string]struct{}, len(mentions))
	for _, m := range mentions {
		if m == nil {
			continue
		}
		if _, ok := seen[m.ID]; ok {
			stats.Skipped++
			continue
		}
		seen[m.ID] = struct{}{}

		text := e.textFor(m)
		if text == "" {
			stats.Skipped++
			continue
		}
		jobs = append(jobs, job{mention: m, text: text})
	}

	outcomes := make([]outcome, len(jobs))
	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for i, j := range jobs {
		g.Go(func() error {
			hits, err := e.enrichOne(ctx, j)
			outcomes[i] = outcome{hits: hits, err: err}
			return nil
		})
	}
	_ = g.Wait()

	var hits []types.LocationHit
	for _, o := range outcomes {
		stats.Calls++
		if o.err != nil {
			var timeout *types.EnrichmentTimeoutError
			if errors.As(o.err, &timeout) {
				stats.Timeouts++
			} else {
				stats.Failures++
			}
			stats.Errors = append(stats.Errors, o.err)
			continue
		}
		hits = append(hits, o.hits...)
	}
	stats.Hits = len(hits)

	e.logger.Info("enrichment complete",
		"mentions", stats.Mentions,
		"calls", stats.Calls,
		"hits", stats.Hits,
		"failures", stats.Failures,
		"timeouts", stats.Timeouts,
	)
	return hits, stats
}

func (e *Enricher) enrichOne(ctx context.Context, j job) ([]types.LocationHit, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	type result struct {
		entities []Entity
		err      error
	}
	ch := make(chan result, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				ch <- result{err: fmt.Errorf("extractor panic: %v", p)}
			}
		}()
		entities, err := e.extractor.Extract(callCtx, j.text)
		ch <- result{entities: entities, err: err}
	}()

	var r result
	select {
	case r = <-ch:
	case <-callCtx.Done():
		r.err = callCtx.Err()
	}

	if r.err != nil {
		if errors.Is(r.err, context.DeadlineExceeded) && ctx.Err() == nil {
			e.logger.Warn("extractor timed out", "mention_id", j.mention.ID, "timeout", e.timeout)
			return nil, &types.EnrichmentTimeoutError{
				MentionID: j.mention.ID,
				Extractor: e.extractor.Name(),
				Timeout:   e.timeout,
			}
		}
		e.logger.Warn("extractor failed", "mention_id", j.mention.ID, "error", r.err)
		return nil, &types.EnrichmentFailure{
			MentionID: j.mention.ID,
			Extractor: e.extractor.Name(),
			Err:       r.err,
		}
	}

	return e.toHits(j.mention.ID, r.entities), nil
}

// toHits keeps entities of a configured kind, one hit per distinct name.
func (e *Enricher) toHits(mentionID string, entities []Entity) []types.LocationHit {
	var hits []types.LocationHit
	seen := make(map[string]struct{}, len(entities))
	for _, ent := range entities {
		kind := strings.ToUpper(strings.TrimSpace(ent.Kind))
		if _, ok := e.kinds[kind]; !ok {
			continue
		}
		name := strings.TrimSpace(ent.Text)
		if name == "" {
			continue
		}
		if _, ok := seen[kind+"\x00"+name]; ok {
			continue
		}
		seen[kind+"\x00"+name] = struct{}{}
		hits = append(hits, types.LocationHit{
			MentionID:    mentionID,
			LocationName: name,
			LocationKind: kind,
		})
	}
	return hits
}

// textFor picks the text to analyze: raw text, else a real title when
// title fallback is on.
func (e *Enricher) textFor(m *types.Mention) string {
	text := strings.TrimSpace(m.RawText)
	if text == "" && e.titleFallback && m.HasTitle() {
		text = strings.TrimSpace(m.Title)
	}
	return truncate(text, e.maxText)
}

func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	s = s[:max]
	for len(s) > 0 && !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}
