// Package source implements the adapters that collect raw mention candidates.
package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ngly1/mentionwatch/internal/config"
	"github.com/ngly1/mentionwatch/internal/fetcher"
	"github.com/ngly1/mentionwatch/internal/types"
)

// Adapter produces raw records from one kind of source.
//
// Collect calls yield once per record, in source order, and stops early when
// yield returns false. It returns nil when the source was read (even partially,
// if some of its pages failed), ctx.Err() when cancelled, and an error when
// the source could not be read at all.
type Adapter interface {
	Name() string
	Kind() types.SourceKind
	Collect(ctx context.Context, yield func(types.RawRecord) bool) error
}

// Set is the adapters built from a configuration together with the
// fetchers they share.
type Set struct {
	Adapters []Adapter
	fetchers []fetcher.Fetcher
}

// Close releases the fetchers.
func (s *Set) Close() error {
	var errs []error
	for _, f := range s.fetchers {
		if err := f.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Build creates the enabled adapters in a fixed order: search, news API,
// sites, feeds. Record sequence numbers follow this order.
func Build(cfg *config.Config, logger *slog.Logger) (*Set, error) {
	set := &Set{}

	var httpFetcher fetcher.Fetcher
	shared := func() (fetcher.Fetcher, error) {
		if httpFetcher != nil {
			return httpFetcher, nil
		}
		f, err := fetcher.NewHTTPFetcher(cfg.Fetcher, logger)
		if err != nil {
			return nil, err
		}
		httpFetcher = f
		set.fetchers = append(set.fetchers, f)
		return f, nil
	}

	fail := func(err error) (*Set, error) {
		set.Close()
		return nil, err
	}

	src := cfg.Sources
	if src.Search.Enabled {
		var f fetcher.Fetcher
		var err error
		switch src.Search.Fetcher {
		case "", "http":
			f, err = shared()
		default:
			f, err = fetcher.New(src.Search.Fetcher, cfg.Fetcher, logger)
			if err == nil {
				set.fetchers = append(set.fetchers, f)
			}
		}
		if err != nil {
			return fail(fmt.Errorf("search fetcher: %w", err))
		}
		set.Adapters = append(set.Adapters, NewSearchAdapter(src.Search, f, logger))
	}
	if src.NewsAPI.Enabled {
		f, err := shared()
		if err != nil {
			return fail(err)
		}
		set.Adapters = append(set.Adapters, NewNewsAPIAdapter(src.NewsAPI, cfg.Keyword, f, logger))
	}
	if src.Sites.Enabled {
		f, err := shared()
		if err != nil {
			return fail(err)
		}
		set.Adapters = append(set.Adapters, NewSiteAdapter(src.Sites, cfg.Keyword, f, logger))
	}
	if src.Feeds.Enabled {
		f, err := shared()
		if err != nil {
			return fail(err)
		}
		set.Adapters = append(set.Adapters, NewFeedAdapter(src.Feeds, f, logger))
	}

	if len(set.Adapters) == 0 {
		return fail(types.ErrNoSources)
	}
	return set, nil
}

// Describe returns a one-line summary of each enabled source, in build order.
func Describe(cfg *config.Config) []string {
	var out []string
	src := cfg.Sources
	if src.Search.Enabled {
		for _, q := range src.Search.Queries {
			out = append(out, fmt.Sprintf("search  [%s] %s (fetcher=%s)", q.Language, q.Query, src.Search.Fetcher))
		}
	}
	if src.NewsAPI.Enabled {
		out = append(out, fmt.Sprintf("news_api %s q=%s pages=%d", src.NewsAPI.Endpoint, cfg.Keyword, src.NewsAPI.MaxPages))
	}
	if src.Sites.Enabled {
		for _, s := range src.Sites.Sites {
			out = append(out, fmt.Sprintf("site    %s (lang=%s region=%s)", s.URL, s.Language, s.Region))
		}
	}
	if src.Feeds.Enabled {
		for _, u := range src.Feeds.URLs {
			out = append(out, "feed    "+u)
		}
	}
	return out
}

// failures tracks per-page errors inside one adapter run.
type failures struct {
	attempted int
	errs      []error
}

func (f *failures) try() { f.attempted++ }

func (f *failures) add(err error) { f.errs = append(f.errs, err) }

// result returns an error only if every attempt failed.
func (f *failures) result() error {
	if f.attempted > 0 && len(f.errs) == f.attempted {
		return errors.Join(f.errs...)
	}
	return nil
}
