package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngly1/mentionwatch/internal/config"
	"github.com/ngly1/mentionwatch/internal/dedup"
	"github.com/ngly1/mentionwatch/internal/enrich"
	"github.com/ngly1/mentionwatch/internal/normalize"
	"github.com/ngly1/mentionwatch/internal/observability"
	"github.com/ngly1/mentionwatch/internal/source"
	"github.com/ngly1/mentionwatch/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

var fixedNow = time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)

type fakeAdapter struct {
	name    string
	kind    types.SourceKind
	records []types.RawRecord
	err     error
	delay   time.Duration
	// afterYield is closed once every record has been yielded; the adapter
	// then blocks until its context ends.
	afterYield chan struct{}
	panics     bool
}

func (a *fakeAdapter) Name() string           { return a.name }
func (a *fakeAdapter) Kind() types.SourceKind { return a.kind }

func (a *fakeAdapter) Collect(ctx context.Context, yield func(types.RawRecord) bool) error {
	if a.panics {
		panic("adapter exploded")
	}
	if a.delay > 0 {
		select {
		case <-time.After(a.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	for _, r := range a.records {
		if !yield(r) {
			return ctx.Err()
		}
	}
	if a.afterYield != nil {
		close(a.afterYield)
		<-ctx.Done()
		return ctx.Err()
	}
	return a.err
}

func newPipeline(t *testing.T, adapters []source.Adapter, opts ...Option) *Pipeline {
	t.Helper()
	gaz, err := enrich.NewGazetteerExtractor()
	require.NoError(t, err)

	base := []Option{
		WithClock(func() time.Time { return fixedNow }),
		WithRunID(func() string { return "run-test" }),
		WithEnricher(enrich.New(gaz, testLogger, enrich.WithTimeout(time.Second))),
		WithKeyword("NGLY1"),
	}
	p, err := New(adapters, testLogger, append(base, opts...)...)
	require.NoError(t, err)
	return p
}

func TestRunTwoAdaptersSameArticle(t *testing.T) {
	search := &fakeAdapter{name: "search", kind: types.SourceSearch, records: []types.RawRecord{
		types.SearchResult{Title: "NGLY1 news", Link: "https://news.example.com/a?utm_source=google", Snippet: "short", Tag: "search:en"},
	}}
	api := &fakeAdapter{name: "news_api", kind: types.SourceNewsAPI, records: []types.RawRecord{
		types.NewsArticle{Title: "NGLY1 news", URL: "https://news.example.com/a", PublishedAt: "2024-03-01T10:00:00Z",
			Description: "A longer article about an NGLY1 family in France", Tag: "news_api"},
	}}
	m := observability.NewMetrics(testLogger)

	res, err := newPipeline(t, []source.Adapter{search, api}, WithMetrics(m)).Run(context.Background())
	require.NoError(t, err)

	report := res.Report
	assert.Equal(t, "run-test", report.RunID)
	assert.Equal(t, "NGLY1", report.Keyword)
	require.Len(t, report.Mentions, 1)

	mention := report.Mentions[0]
	assert.Equal(t, "https://news.example.com/a", mention.URL)
	assert.Equal(t, []string{"news_api", "search:en"}, mention.SourceTags)
	assert.Equal(t, "2024-03-01", mention.Day())
	assert.False(t, mention.ApproximateDate)

	require.Len(t, report.Hits, 1)
	assert.Equal(t, types.LocationHit{MentionID: mention.ID, LocationName: "France", LocationKind: "GPE"}, report.Hits[0])

	assert.Equal(t, []types.AggregateRow{{Dimension: types.DimensionLocation, Value: "France", Count: 1}},
		report.Aggregates[types.DimensionLocation])
	assert.Equal(t, []types.AggregateRow{
		{Dimension: types.DimensionSource, Value: "news_api", Count: 1},
		{Dimension: types.DimensionSource, Value: "search:en", Count: 1},
	}, report.Aggregates[types.DimensionSource])

	diag := res.Diagnostics
	assert.Equal(t, 2, diag.RecordsReceived)
	assert.Equal(t, 1, diag.Dedup.Merged)
	assert.Equal(t, 2, diag.SucceededSources())
	assert.Empty(t, diag.FailedSources())
	assert.False(t, diag.Cancelled)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.DuplicatesTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SourceRecords.WithLabelValues("search")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LastRunMentions))
}

func TestRunSkipsUnparsableDate(t *testing.T) {
	api := &fakeAdapter{name: "news_api", kind: types.SourceNewsAPI, records: []types.RawRecord{
		types.NewsArticle{Title: "bad", URL: "https://a.example.com/1", PublishedAt: "not-a-date", Tag: "news_api"},
		types.NewsArticle{Title: "good", URL: "https://a.example.com/2", PublishedAt: "2024-02-29", Tag: "news_api"},
	}}

	res, err := newPipeline(t, []source.Adapter{api}).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, res.Report.Mentions, 1)
	assert.Equal(t, "https://a.example.com/2", res.Report.Mentions[0].URL)
	assert.Equal(t, 1, res.Diagnostics.RecordsSkipped)
	assert.Equal(t, 1, res.Diagnostics.SkippedByField["published_at"])
	require.Len(t, res.Diagnostics.Skipped, 1)
	assert.ErrorIs(t, res.Diagnostics.Skipped[0], types.ErrUnparsableDate)
}

func TestRunEmptyResult(t *testing.T) {
	empty := &fakeAdapter{name: "feeds", kind: types.SourceFeed}
	bad := &fakeAdapter{name: "search", kind: types.SourceSearch, records: []types.RawRecord{
		types.SearchResult{Title: "relative", Link: "/news/1", Tag: "search:en"},
	}}

	res, err := newPipeline(t, []source.Adapter{empty, bad}).Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrEmptyResult)

	var empErr *types.EmptyResultError
	require.ErrorAs(t, err, &empErr)
	assert.Equal(t, 1, empErr.RecordsReceived)
	assert.Equal(t, 1, empErr.RecordsSkipped)

	require.NotNil(t, res)
	assert.True(t, res.Report.IsEmpty())
	assert.Empty(t, res.Report.Hits)
}

func TestRunSourceFailureDoesNotAbort(t *testing.T) {
	boom := errors.New("connection refused")
	down := &fakeAdapter{name: "sites", kind: types.SourceSite, err: boom}
	crash := &fakeAdapter{name: "feeds", kind: types.SourceFeed, panics: true}
	up := &fakeAdapter{name: "news_api", kind: types.SourceNewsAPI, records: []types.RawRecord{
		types.NewsArticle{Title: "NGLY1", URL: "https://a.example.com/1", PublishedAt: "2024-03-01", Tag: "news_api"},
	}}

	res, err := newPipeline(t, []source.Adapter{down, crash, up}).Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, res.Report.Mentions, 1)

	diag := res.Diagnostics
	assert.Equal(t, 1, diag.SucceededSources())
	failed := diag.FailedSources()
	require.Len(t, failed, 2)

	var sue *types.SourceUnavailableError
	require.ErrorAs(t, failed[0], &sue)
	assert.Equal(t, "sites", sue.Source)
	assert.ErrorIs(t, failed[0], boom)

	require.ErrorAs(t, failed[1], &sue)
	assert.Equal(t, "feeds", sue.Source)
	assert.Contains(t, sue.Error(), "adapter exploded")
}

func TestRunSourceTimeoutKeepsPartialRecords(t *testing.T) {
	slow := &fakeAdapter{name: "sites", kind: types.SourceSite, afterYield: make(chan struct{}), records: []types.RawRecord{
		types.SiteArticle{Title: "NGLY1", URL: "https://site.example.com/1", PublishedAt: "2024-03-01", Tag: "site:site.example.com"},
	}}

	res, err := newPipeline(t, []source.Adapter{slow}, WithSourceTimeout(50*time.Millisecond)).Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, res.Report.Mentions, 1)

	failed := res.Diagnostics.FailedSources()
	require.Len(t, failed, 1)
	assert.ErrorIs(t, failed[0], context.DeadlineExceeded)
	assert.False(t, res.Diagnostics.Cancelled)
}

type ctxCheckingExtractor struct{}

func (ctxCheckingExtractor) Name() string { return "ctx" }

func (ctxCheckingExtractor) Extract(ctx context.Context, text string) ([]enrich.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return []enrich.Entity{{Text: "Spain", Kind: enrich.KindGPE}}, nil
}

func (ctxCheckingExtractor) Close() error { return nil }

func TestRunCancellationProcessesPartialResults(t *testing.T) {
	blocking := &fakeAdapter{name: "search", kind: types.SourceSearch, afterYield: make(chan struct{}), records: []types.RawRecord{
		types.SearchResult{Title: "NGLY1 en España", Link: "https://elpais.example.com/x", Snippet: "NGLY1 research", Tag: "search:es"},
	}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-blocking.afterYield
		cancel()
	}()

	p := newPipeline(t, []source.Adapter{blocking},
		WithEnricher(enrich.New(ctxCheckingExtractor{}, testLogger)))
	res, err := p.Run(ctx)
	require.NoError(t, err)

	diag := res.Diagnostics
	assert.True(t, diag.Cancelled)
	assert.Empty(t, diag.FailedSources(), "cancellation is not a source failure")
	require.Len(t, res.Report.Mentions, 1)
	assert.True(t, res.Report.Mentions[0].ApproximateDate)
	assert.Equal(t, "2024-03-05", res.Report.Mentions[0].Day())

	require.Len(t, res.Report.Hits, 1)
	assert.Equal(t, "Spain", res.Report.Hits[0].LocationName)
}

func TestRunSequenceFollowsAdapterOrder(t *testing.T) {
	// Same URL and equal-length text: the first adapter's copy must win even
	// though it finishes last.
	first := &fakeAdapter{name: "a", kind: types.SourceSearch, delay: 30 * time.Millisecond, records: []types.RawRecord{
		types.SearchResult{Title: "NGLY1", Link: "https://x.example.com/1", Snippet: "from France", Tag: "search:en"},
	}}
	second := &fakeAdapter{name: "b", kind: types.SourceSearch, records: []types.RawRecord{
		types.SearchResult{Title: "NGLY1", Link: "https://x.example.com/1", Snippet: "from Spain!", Tag: "search:es"},
	}}

	for range 3 {
		res, err := newPipeline(t, []source.Adapter{first, second}).Run(context.Background())
		require.NoError(t, err)
		require.Len(t, res.Report.Mentions, 1)
		assert.Equal(t, "from France", res.Report.Mentions[0].RawText)
		assert.Equal(t, []string{"search:en", "search:es"}, res.Report.Mentions[0].SourceTags)
	}
}

func TestRunAggregationConfig(t *testing.T) {
	api := &fakeAdapter{name: "news_api", kind: types.SourceNewsAPI, records: []types.RawRecord{
		types.NewsArticle{Title: "NGLY1", Description: "NGLY1 in France", URL: "https://a.example.com/1", PublishedAt: "2024-03-01", Tag: "news_api", Language: "en"},
		types.NewsArticle{Title: "NGLY1", Description: "NGLY1 in Spain", URL: "https://a.example.com/2", PublishedAt: "2024-03-02", Tag: "news_api"},
	}}

	p := newPipeline(t, []source.Adapter{api}, WithAggregation([]types.Dimension{types.DimensionLanguage}, 0))
	res, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Len(t, res.Report.Aggregates, 1)
	assert.Equal(t, []types.AggregateRow{
		{Dimension: types.DimensionLanguage, Value: "en", Count: 1},
		{Dimension: types.DimensionLanguage, Value: "unknown", Count: 1},
	}, res.Report.Aggregates[types.DimensionLanguage])
	assert.Len(t, res.Report.Hits, 2)
}

func TestRunWithoutEnricher(t *testing.T) {
	api := &fakeAdapter{name: "news_api", kind: types.SourceNewsAPI, records: []types.RawRecord{
		types.NewsArticle{Title: "NGLY1 in France", URL: "https://a.example.com/1", Tag: "news_api"},
	}}
	p, err := New([]source.Adapter{api}, testLogger)
	require.NoError(t, err)

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Report.Hits)
	assert.Empty(t, res.Report.Aggregates[types.DimensionLocation])
	assert.NotEmpty(t, res.Report.RunID)
	assert.Equal(t, normalize.MentionID("https://a.example.com/1"), res.Report.Mentions[0].ID)
}

// canonicalSet runs raw records through the normalizer and deduplicator and
// keys the surviving mentions by URL.
func canonicalSet(records []types.RawRecord) map[string]string {
	n := normalize.New(testLogger, normalize.WithClock(func() time.Time { return fixedNow }))
	batch := n.NormalizeBatch(0, records)
	merged, _ := dedup.New(testLogger).Deduplicate(batch.Mentions)

	out := make(map[string]string, len(merged))
	for _, m := range merged {
		out[m.URL] = m.Day() + " " + strings.Join(m.SourceTags, ",")
	}
	return out
}

func TestNormalizeDedupIgnoresInputOrder(t *testing.T) {
	records := []types.RawRecord{
		types.SearchResult{Title: "NGLY1 news", Link: "https://News.example.com/a?utm_source=google", Snippet: "short", Tag: "search:en"},
		types.NewsArticle{Title: "NGLY1 news", URL: "https://news.example.com/a#comments", PublishedAt: "2024-03-02", Description: "a longer article", Tag: "news_api"},
		types.FeedItem{Title: "NGLY1 news", Link: "HTTPS://news.example.com:443/a/", Published: "2024-03-01", Tag: "feed:news.example.com"},
		types.SiteArticle{Title: "Other", URL: "https://other.example.com/b?b=2&a=1", Body: "text", Tag: "site:other"},
		types.FeedItem{Title: "Other", Link: "https://other.example.com/b?a=1&fbclid=z&b=2", Tag: "feed:other"},
		types.SearchResult{Title: "Third", Link: "https://third.example.com/c", Tag: "search:es"},
		types.SearchResult{Title: "Broken", Link: "/relative", Tag: "search:es"},
	}

	want := canonicalSet(records)
	require.Len(t, want, 3)
	assert.Equal(t, "2024-03-01 feed:news.example.com,news_api,search:en", want["https://news.example.com/a"])
	assert.Equal(t, "2024-03-05 feed:other,site:other", want["https://other.example.com/b?a=1&b=2"])
	assert.Equal(t, "2024-03-05 search:es", want["https://third.example.com/c"])

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		shuffled := append([]types.RawRecord(nil), records...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

		first := canonicalSet(shuffled)
		assert.Equal(t, want, first)
		assert.Equal(t, first, canonicalSet(shuffled))
	}
}

func TestNewRequiresSources(t *testing.T) {
	_, err := New(nil, testLogger)
	assert.ErrorIs(t, err, types.ErrNoSources)

	var pipeErr *types.PipelineError
	require.ErrorAs(t, err, &pipeErr)
	assert.Equal(t, "collect", pipeErr.Stage)
}

func TestNewFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	api := &fakeAdapter{name: "news_api", kind: types.SourceNewsAPI}

	p, err := NewFromConfig(cfg, []source.Adapter{api}, nil, nil, testLogger)
	require.NoError(t, err)
	assert.Equal(t, "NGLY1", p.keyword)
	assert.Len(t, p.dims, len(cfg.Aggregator.Dimensions))

	cfg.Aggregator.Dimensions = []string{"location", "weather"}
	_, err = NewFromConfig(cfg, []source.Adapter{api}, nil, nil, testLogger)
	assert.ErrorContains(t, err, "weather")

	var pipeErr *types.PipelineError
	require.ErrorAs(t, err, &pipeErr)
	assert.Equal(t, "aggregate", pipeErr.Stage)
}
