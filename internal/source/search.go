package source

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/ngly1/mentionwatch/internal/config"
	"github.com/ngly1/mentionwatch/internal/fetcher"
	"github.com/ngly1/mentionwatch/internal/types"
)

const defaultResultSelector = "div.tF2Cxc"

// snippetSelector matches the description block of a search result.
const snippetSelector = "div.VwiC3b, span.aCOpRe, div.IsZvec"

// SearchAdapter scrapes organic results from search engine result pages,
// one page per configured query. Search pages carry no publication date.
type SearchAdapter struct {
	cfg     config.SearchSourceConfig
	fetcher fetcher.Fetcher
	logger  *slog.Logger
	delay   func(ctx context.Context) error
}

// NewSearchAdapter creates a search adapter.
func NewSearchAdapter(cfg config.SearchSourceConfig, f fetcher.Fetcher, logger *slog.Logger) *SearchAdapter {
	if cfg.ResultSelector == "" {
		cfg.ResultSelector = defaultResultSelector
	}
	a := &SearchAdapter{
		cfg:     cfg,
		fetcher: f,
		logger:  logger.With("component", "search_adapter"),
	}
	a.delay = func(ctx context.Context) error {
		return fetcher.Sleep(ctx, fetcher.RandomBetween(a.cfg.MinDelay, a.cfg.MaxDelay))
	}
	return a
}

func (a *SearchAdapter) Name() string { return "search" }

func (a *SearchAdapter) Kind() types.SourceKind { return types.SourceSearch }

func (a *SearchAdapter) Collect(ctx context.Context, yield func(types.RawRecord) bool) error {
	var fails failures
	for i, q := range a.cfg.Queries {
		if i > 0 {
			if err := a.delay(ctx); err != nil {
				return err
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		fails.try()
		results, err := a.search(ctx, q)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			a.logger.Warn("search query failed", "language", q.Language, "error", err)
			fails.add(fmt.Errorf("query %q: %w", q.Query, err))
			continue
		}

		a.logger.Info("search results parsed", "language", q.Language, "results", len(results))
		for _, r := range results {
			if err := ctx.Err(); err != nil {
				return err
			}
			if !yield(r) {
				return nil
			}
		}
	}
	return fails.result()
}

func (a *SearchAdapter) search(ctx context.Context, q config.SearchQuery) ([]types.SearchResult, error) {
	searchURL := strings.NewReplacer(
		"{query}", url.QueryEscape(q.Query),
		"{lang}", url.QueryEscape(q.Language),
	).Replace(a.cfg.URLTemplate)

	req, err := types.NewRequest(searchURL, a.Name())
	if err != nil {
		return nil, err
	}
	if q.Language != "" {
		req.Headers.Set("Accept-Language", q.Language)
	}

	resp, err := a.fetcher.Fetch(ctx, req)
	if err != nil {
		return nil, err
	}
	return ParseSearchResults(resp, a.cfg.ResultSelector, q)
}

// ParseSearchResults extracts organic results from a result page. Each
// result block must hold an h3 title and a link; blocks without either are
// skipped.
func ParseSearchResults(resp *types.Response, selector string, q config.SearchQuery) ([]types.SearchResult, error) {
	doc, err := resp.Document()
	if err != nil {
		return nil, &types.ParseError{URL: resp.Request.URLString(), Selector: selector, Err: err}
	}

	tag := "search"
	if q.Language != "" {
		tag += ":" + q.Language
	}

	var results []types.SearchResult
	doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
		title := strings.TrimSpace(sel.Find("h3").First().Text())
		href, ok := sel.Find("a[href]").First().Attr("href")
		if title == "" || !ok {
			return
		}
		link, err := resultLink(resp, href)
		if err != nil || link == "" {
			return
		}
		results = append(results, types.SearchResult{
			Query:    q.Query,
			Title:    title,
			Link:     link,
			Snippet:  strings.TrimSpace(sel.Find(snippetSelector).First().Text()),
			Language: q.Language,
			Tag:      tag,
		})
	})
	return results, nil
}

// resultLink resolves href against the page and unwraps "/url?q=" redirects.
func resultLink(resp *types.Response, href string) (string, error) {
	abs, err := resp.Resolve(strings.TrimSpace(href))
	if err != nil {
		return "", err
	}
	u, err := url.Parse(abs)
	if err != nil {
		return "", err
	}
	if u.Path == "/url" {
		for _, key := range []string{"q", "url"} {
			if target := u.Query().Get(key); strings.HasPrefix(target, "http") {
				return target, nil
			}
		}
	}
	return abs, nil
}
