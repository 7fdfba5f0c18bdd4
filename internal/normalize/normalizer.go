// Package normalize turns raw adapter records into canonical mentions.
package normalize

import (
	"html"
	"log/slog"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/ngly1/mentionwatch/internal/types"
)

// Normalizer converts raw records into Mentions. It performs no I/O.
type Normalizer struct {
	canon  *Canonicalizer
	dates  *DateParser
	policy *bluemonday.Policy
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithClock overrides the time source used for records without a date.
func WithClock(now func() time.Time) Option {
	return func(n *Normalizer) { n.now = now }
}

// WithTrackingParams strips extra query parameters on top of the defaults.
func WithTrackingParams(params ...string) Option {
	return func(n *Normalizer) { n.canon = NewCanonicalizer(params...) }
}

// WithDateFormats accepts extra date layouts.
func WithDateFormats(formats ...string) Option {
	return func(n *Normalizer) { n.dates = NewDateParser(formats...) }
}

// New creates a Normalizer.
func New(logger *slog.Logger, opts ...Option) *Normalizer {
	n := &Normalizer{
		canon:  NewCanonicalizer(),
		dates:  NewDateParser(),
		policy: bluemonday.StrictPolicy(),
		now:    time.Now,
		logger: logger.With("component", "normalizer"),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize converts one raw record. seq is the record's submission order
// and is carried on the Mention as the deduplication tie-breaker.
func (n *Normalizer) Normalize(seq int64, rec types.RawRecord) (*types.Mention, error) {
	c := rec.Candidate()
	source := c.SourceTag
	if source == "" {
		source = string(rec.Kind())
	}

	canonical, err := n.canon.Canonicalize(c.URL)
	if err != nil {
		return nil, &types.MalformedRecordError{Source: source, URL: c.URL, Field: "url", Value: c.URL, Err: err}
	}

	m := &types.Mention{
		ID:       MentionID(canonical),
		Title:    n.cleanText(c.Title),
		URL:      canonical,
		Language: strings.ToLower(strings.TrimSpace(c.Language)),
		Region:   strings.TrimSpace(c.Region),
		RawText:  n.cleanText(c.RawText),
		Seq:      seq,
	}
	if m.Title == "" {
		m.Title = types.NoTitle
	}
	if tag := strings.TrimSpace(c.SourceTag); tag != "" {
		m.SourceTags = []string{tag}
	}

	if strings.TrimSpace(c.PublishedAt) == "" {
		m.PublishedAt = Day(n.now().UTC())
		m.ApproximateDate = true
	} else {
		day, ok := n.dates.Parse(c.PublishedAt)
		if !ok {
			return nil, &types.MalformedRecordError{
				Source: source, URL: c.URL, Field: "published_at", Value: c.PublishedAt, Err: types.ErrUnparsableDate,
			}
		}
		m.PublishedAt = day
	}

	return m, nil
}

// BatchResult is the outcome of normalizing a batch.
type BatchResult struct {
	Mentions []*types.Mention
	// Skipped holds one *types.MalformedRecordError per dropped record.
	Skipped []error
}

// NormalizeBatch normalizes records in order, numbering them from firstSeq.
// A malformed record is dropped and reported; the batch carries on.
func (n *Normalizer) NormalizeBatch(firstSeq int64, records []types.RawRecord) BatchResult {
	res := BatchResult{Mentions: make([]*types.Mention, 0, len(records))}
	for i, rec := range records {
		m, err := n.Normalize(firstSeq+int64(i), rec)
		if err != nil {
			n.logger.Debug("record skipped", "error", err)
			res.Skipped = append(res.Skipped, err)
			continue
		}
		res.Mentions = append(res.Mentions, m)
	}
	if len(res.Skipped) > 0 {
		n.logger.Info("malformed records skipped", "skipped", len(res.Skipped), "kept", len(res.Mentions))
	}
	return res
}

// cleanText strips markup, decodes entities, and collapses whitespace.
func (n *Normalizer) cleanText(s string) string {
	if s == "" {
		return ""
	}
	cleaned := html.UnescapeString(n.policy.Sanitize(s))
	return strings.Join(strings.Fields(cleaned), " ")
}
