package source

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/ngly1/mentionwatch/internal/config"
	"github.com/ngly1/mentionwatch/internal/fetcher"
	"github.com/ngly1/mentionwatch/internal/types"
)

// FeedAdapter reads RSS, Atom, and JSON feeds.
type FeedAdapter struct {
	cfg     config.FeedsSourceConfig
	fetcher fetcher.Fetcher
	parser  *gofeed.Parser
	logger  *slog.Logger
}

// NewFeedAdapter creates a feed adapter.
func NewFeedAdapter(cfg config.FeedsSourceConfig, f fetcher.Fetcher, logger *slog.Logger) *FeedAdapter {
	return &FeedAdapter{
		cfg:     cfg,
		fetcher: f,
		parser:  gofeed.NewParser(),
		logger:  logger.With("component", "feed_adapter"),
	}
}

func (a *FeedAdapter) Name() string { return "feeds" }

func (a *FeedAdapter) Kind() types.SourceKind { return types.SourceFeed }

func (a *FeedAdapter) Collect(ctx context.Context, yield func(types.RawRecord) bool) error {
	var fails failures
	for _, feedURL := range a.cfg.URLs {
		if err := ctx.Err(); err != nil {
			return err
		}

		fails.try()
		items, err := a.read(ctx, feedURL)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			a.logger.Warn("feed unavailable", "feed", feedURL, "error", err)
			fails.add(fmt.Errorf("feed %s: %w", feedURL, err))
			continue
		}

		a.logger.Info("feed read", "feed", feedURL, "items", len(items))
		for _, item := range items {
			if err := ctx.Err(); err != nil {
				return err
			}
			if !yield(item) {
				return nil
			}
		}
	}
	return fails.result()
}

func (a *FeedAdapter) read(ctx context.Context, feedURL string) ([]types.FeedItem, error) {
	req, err := types.NewRequest(feedURL, a.Name())
	if err != nil {
		return nil, err
	}
	req.Headers.Set("Accept", "application/rss+xml, application/atom+xml, application/feed+json, application/xml;q=0.9, */*;q=0.8")

	resp, err := a.fetcher.Fetch(ctx, req)
	if err != nil {
		return nil, err
	}

	if len(bytes.TrimSpace(resp.Body)) == 0 {
		return nil, &types.ParseError{URL: feedURL, Err: types.ErrEmptyResponse}
	}

	feed, err := a.parser.Parse(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, &types.ParseError{URL: feedURL, Err: err}
	}
	return FeedItems(feed, "feed:"+hostOf(feedURL), a.cfg.Language), nil
}

// FeedItems converts a parsed feed into raw records. Items without a link
// are kept; the normalizer rejects them with a diagnostic.
func FeedItems(feed *gofeed.Feed, tag, defaultLanguage string) []types.FeedItem {
	lang := strings.ToLower(strings.TrimSpace(feed.Language))
	if lang == "" {
		lang = defaultLanguage
	}

	items := make([]types.FeedItem, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		published := item.Published
		if item.PublishedParsed != nil {
			published = item.PublishedParsed.UTC().Format(time.RFC3339)
		} else if published == "" && item.UpdatedParsed != nil {
			published = item.UpdatedParsed.UTC().Format(time.RFC3339)
		}
		items = append(items, types.FeedItem{
			FeedTitle:   feed.Title,
			Title:       item.Title,
			Link:        item.Link,
			Published:   published,
			Description: item.Description,
			Content:     item.Content,
			Language:    lang,
			Tag:         tag,
		})
	}
	return items
}
