package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"codeberg.org/readeck/go-readability/v2"
	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/ngly1/mentionwatch/internal/config"
	"github.com/ngly1/mentionwatch/internal/fetcher"
	"github.com/ngly1/mentionwatch/internal/types"
)

// SiteAdapter crawls the front page of each curated publication site,
// follows article links, and extracts the article body.
type SiteAdapter struct {
	cfg     config.SitesSourceConfig
	keyword string
	fetcher fetcher.Fetcher
	robots  *robotsPolicy
	logger  *slog.Logger
}

// NewSiteAdapter creates a site crawl adapter.
func NewSiteAdapter(cfg config.SitesSourceConfig, keyword string, f fetcher.Fetcher, logger *slog.Logger) *SiteAdapter {
	if cfg.LinkXPath == "" {
		cfg.LinkXPath = "//a[@href]"
	}
	a := &SiteAdapter{
		cfg:     cfg,
		keyword: keyword,
		fetcher: f,
		logger:  logger.With("component", "site_adapter"),
	}
	if cfg.RespectRobotsTxt {
		a.robots = newRobotsPolicy(f)
	}
	return a
}

func (a *SiteAdapter) Name() string { return "sites" }

func (a *SiteAdapter) Kind() types.SourceKind { return types.SourceSite }

func (a *SiteAdapter) Collect(ctx context.Context, yield func(types.RawRecord) bool) error {
	var fails failures
	for _, site := range a.cfg.Sites {
		if err := ctx.Err(); err != nil {
			return err
		}

		fails.try()
		links, err := a.discover(ctx, site)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			a.logger.Warn("site unavailable", "site", site.URL, "error", err)
			fails.add(fmt.Errorf("site %s: %w", site.URL, err))
			continue
		}

		tag := "site:" + hostOf(site.URL)
		delay := a.crawlDelay(ctx, site.URL)
		kept := 0
		for _, link := range links {
			if err := ctx.Err(); err != nil {
				return err
			}
			if !a.allowed(ctx, link) {
				a.logger.Debug("article disallowed by robots.txt", "url", link)
				continue
			}
			if delay > 0 {
				if err := fetcher.Sleep(ctx, delay); err != nil {
					return err
				}
			}
			rec, ok, err := a.article(ctx, site, link, tag)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				a.logger.Debug("article skipped", "url", link, "error", err)
				continue
			}
			if !ok {
				continue
			}
			kept++
			if !yield(rec) {
				return nil
			}
		}
		a.logger.Info("site crawled", "site", site.URL, "links", len(links), "articles", kept)
	}
	return fails.result()
}

func (a *SiteAdapter) allowed(ctx context.Context, link string) bool {
	return a.robots == nil || a.robots.Allowed(ctx, link)
}

func (a *SiteAdapter) crawlDelay(ctx context.Context, link string) time.Duration {
	if a.robots == nil {
		return 0
	}
	return a.robots.CrawlDelay(ctx, link)
}

// discover returns distinct absolute article links found on the site's front page.
func (a *SiteAdapter) discover(ctx context.Context, site config.Site) ([]string, error) {
	if !a.allowed(ctx, site.URL) {
		return nil, fmt.Errorf("front page disallowed by robots.txt")
	}
	req, err := types.NewRequest(site.URL, a.Name())
	if err != nil {
		return nil, err
	}
	resp, err := a.fetcher.Fetch(ctx, req)
	if err != nil {
		return nil, err
	}
	return ExtractLinks(resp, a.cfg.LinkXPath, a.cfg.SameHostOnly, a.cfg.MaxArticles)
}

// ExtractLinks applies an XPath expression selecting anchors and returns the
// distinct absolute http(s) links, in document order, capped at limit (0 = no cap).
func ExtractLinks(resp *types.Response, xpath string, sameHost bool, limit int) ([]string, error) {
	doc, err := html.Parse(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, &types.ParseError{URL: resp.Request.URLString(), Err: err}
	}
	nodes, err := htmlquery.QueryAll(doc, xpath)
	if err != nil {
		return nil, &types.ParseError{URL: resp.Request.URLString(), Selector: xpath, Err: err}
	}

	base := hostOf(resp.FinalURL)
	seen := make(map[string]struct{})
	var links []string
	for _, n := range nodes {
		href := strings.TrimSpace(htmlquery.SelectAttr(n, "href"))
		if href == "" || strings.HasPrefix(href, "#") {
			continue
		}
		abs, err := resp.Resolve(href)
		if err != nil {
			continue
		}
		u, err := url.Parse(abs)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			continue
		}
		if sameHost && !sameSite(u.Hostname(), base) {
			continue
		}
		u.Fragment = ""
		abs = u.String()
		if abs == resp.FinalURL {
			continue
		}
		if _, ok := seen[abs]; ok {
			continue
		}
		seen[abs] = struct{}{}
		links = append(links, abs)
		if limit > 0 && len(links) >= limit {
			break
		}
	}
	return links, nil
}

// article fetches one article page. ok is false when the page does not
// mention the keyword and the adapter requires it.
func (a *SiteAdapter) article(ctx context.Context, site config.Site, link, tag string) (types.SiteArticle, bool, error) {
	req, err := types.NewRequest(link, a.Name())
	if err != nil {
		return types.SiteArticle{}, false, err
	}
	resp, err := a.fetcher.Fetch(ctx, req)
	if err != nil {
		return types.SiteArticle{}, false, err
	}

	rec, err := ParseArticle(resp, a.cfg.MaxBodyTextSize)
	if err != nil {
		return types.SiteArticle{}, false, err
	}
	if a.cfg.RequireKeyword && !containsFold(rec.Title+" "+rec.Body, a.keyword) {
		return types.SiteArticle{}, false, nil
	}

	rec.Site = site.URL
	rec.Language = firstNonEmpty(site.Language, rec.Language)
	rec.Region = site.Region
	rec.Tag = tag
	return rec, true, nil
}

// ParseArticle extracts title, publication time, language and readable body
// text from an article page.
func ParseArticle(resp *types.Response, maxBody int) (types.SiteArticle, error) {
	doc, err := resp.Document()
	if err != nil {
		return types.SiteArticle{}, &types.ParseError{URL: resp.Request.URLString(), Err: err}
	}

	rec := types.SiteArticle{
		URL:         firstNonEmpty(canonicalLink(doc), resp.FinalURL),
		Title:       articleTitle(doc),
		PublishedAt: publishedTime(doc),
	}
	rec.Language, _ = doc.Find("html").Attr("lang")
	rec.Language = strings.ToLower(strings.TrimSpace(rec.Language))

	pageURL, _ := url.Parse(resp.FinalURL)
	article, err := readability.FromReader(bytes.NewReader(resp.Body), pageURL)
	if err == nil {
		var buf strings.Builder
		if err := article.RenderText(&buf); err == nil {
			rec.Body = strings.TrimSpace(buf.String())
		}
	}
	if rec.Body == "" {
		rec.Body = strings.TrimSpace(doc.Find("article p, main p").Text())
	}
	if maxBody > 0 && len(rec.Body) > maxBody {
		rec.Body = strings.ToValidUTF8(rec.Body[:maxBody], "")
	}
	return rec, nil
}

func articleTitle(doc *goquery.Document) string {
	if t, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok && strings.TrimSpace(t) != "" {
		return strings.TrimSpace(t)
	}
	if t := strings.TrimSpace(doc.Find("h1").First().Text()); t != "" {
		return t
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}

func canonicalLink(doc *goquery.Document) string {
	href, _ := doc.Find(`link[rel="canonical"]`).Attr("href")
	href = strings.TrimSpace(href)
	if doc.Url != nil && href != "" {
		if ref, err := url.Parse(href); err == nil {
			return doc.Url.ResolveReference(ref).String()
		}
	}
	return href
}

// publishedTime looks for a publication timestamp in meta tags, JSON-LD,
// and <time> elements, in that order.
func publishedTime(doc *goquery.Document) string {
	for _, sel := range []string{
		`meta[property="article:published_time"]`,
		`meta[name="article:published_time"]`,
		`meta[itemprop="datePublished"]`,
		`meta[name="pubdate"]`,
		`meta[name="date"]`,
		`meta[name="dc.date"]`,
	} {
		if v, ok := doc.Find(sel).Attr("content"); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}

	var found string
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		found = jsonLDDate([]byte(strings.TrimSpace(s.Text())))
		return found == ""
	})
	if found != "" {
		return found
	}

	if v, ok := doc.Find("time[datetime]").First().Attr("datetime"); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

// jsonLDDate returns datePublished from a JSON-LD object, array, or @graph.
func jsonLDDate(raw []byte) string {
	var single map[string]any
	if err := json.Unmarshal(raw, &single); err == nil {
		if d, ok := single["datePublished"].(string); ok {
			return d
		}
		if graph, ok := single["@graph"].([]any); ok {
			return dateFromList(graph)
		}
		return ""
	}
	var list []any
	if err := json.Unmarshal(raw, &list); err == nil {
		return dateFromList(list)
	}
	return ""
}

func dateFromList(list []any) string {
	for _, item := range list {
		if obj, ok := item.(map[string]any); ok {
			if d, ok := obj["datePublished"].(string); ok && d != "" {
				return d
			}
		}
	}
	return ""
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

func sameSite(host, base string) bool {
	host = strings.TrimPrefix(strings.ToLower(host), "www.")
	return host == base || strings.HasSuffix(host, "."+base)
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
