package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/ngly1/mentionwatch/internal/config"
	"github.com/ngly1/mentionwatch/internal/fetcher"
	"github.com/ngly1/mentionwatch/internal/types"
)

// NewsAPIAdapter queries a NewsAPI-compatible "everything" endpoint.
type NewsAPIAdapter struct {
	cfg     config.NewsAPISourceConfig
	keyword string
	fetcher fetcher.Fetcher
	logger  *slog.Logger
}

// NewNewsAPIAdapter creates a news API adapter.
func NewNewsAPIAdapter(cfg config.NewsAPISourceConfig, keyword string, f fetcher.Fetcher, logger *slog.Logger) *NewsAPIAdapter {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 50
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 1
	}
	return &NewsAPIAdapter{
		cfg:     cfg,
		keyword: keyword,
		fetcher: f,
		logger:  logger.With("component", "newsapi_adapter"),
	}
}

func (a *NewsAPIAdapter) Name() string { return "news_api" }

func (a *NewsAPIAdapter) Kind() types.SourceKind { return types.SourceNewsAPI }

type newsAPIResponse struct {
	Status       string `json:"status"`
	Code         string `json:"code"`
	Message      string `json:"message"`
	TotalResults int    `json:"totalResults"`
	Articles     []struct {
		Source struct {
			Name string `json:"name"`
		} `json:"source"`
		Author      string `json:"author"`
		Title       string `json:"title"`
		Description string `json:"description"`
		URL         string `json:"url"`
		PublishedAt string `json:"publishedAt"`
		Content     string `json:"content"`
	} `json:"articles"`
}

func (a *NewsAPIAdapter) Collect(ctx context.Context, yield func(types.RawRecord) bool) error {
	seen := 0
	for page := 1; page <= a.cfg.MaxPages; page++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		body, err := a.fetchPage(ctx, page)
		if err != nil {
			if page == 1 || ctx.Err() != nil {
				return err
			}
			a.logger.Warn("news api page failed, keeping earlier pages", "page", page, "error", err)
			return nil
		}

		for _, art := range body.Articles {
			if err := ctx.Err(); err != nil {
				return err
			}
			rec := types.NewsArticle{
				SourceName:  art.Source.Name,
				Author:      art.Author,
				Title:       art.Title,
				Description: art.Description,
				URL:         art.URL,
				PublishedAt: art.PublishedAt,
				Content:     art.Content,
				Language:    a.cfg.Language,
				Tag:         a.Name(),
			}
			if !yield(rec) {
				return nil
			}
		}

		seen += len(body.Articles)
		a.logger.Debug("news api page read", "page", page, "articles", len(body.Articles), "total", body.TotalResults)
		if len(body.Articles) == 0 || seen >= body.TotalResults {
			break
		}
	}
	return nil
}

func (a *NewsAPIAdapter) fetchPage(ctx context.Context, page int) (*newsAPIResponse, error) {
	u, err := url.Parse(a.cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("news api endpoint: %w", err)
	}
	q := u.Query()
	q.Set("q", a.keyword)
	q.Set("pageSize", strconv.Itoa(a.cfg.PageSize))
	q.Set("page", strconv.Itoa(page))
	q.Set("sortBy", "publishedAt")
	if a.cfg.Language != "" {
		q.Set("language", a.cfg.Language)
	}
	u.RawQuery = q.Encode()

	req, err := types.NewRequest(u.String(), a.Name())
	if err != nil {
		return nil, err
	}
	req.Headers.Set("Accept", "application/json")
	if a.cfg.APIKey != "" {
		req.Headers.Set("X-Api-Key", a.cfg.APIKey)
	}

	resp, err := a.fetcher.Fetch(ctx, req)
	if err != nil {
		return nil, err
	}

	if len(bytes.TrimSpace(resp.Body)) == 0 {
		return nil, &types.ParseError{URL: req.URLString(), Err: types.ErrEmptyResponse}
	}

	var body newsAPIResponse
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return nil, &types.ParseError{URL: req.URLString(), Err: err}
	}
	if body.Status != "" && body.Status != "ok" {
		return nil, fmt.Errorf("news api error %s: %s", body.Code, body.Message)
	}
	return &body, nil
}
