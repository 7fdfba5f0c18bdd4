package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/ngly1/mentionwatch/internal/types"
)

// Validate checks the configuration for invalid values.
func Validate(cfg *Config) error {
	if strings.TrimSpace(cfg.Keyword) == "" {
		return fmt.Errorf("keyword must not be empty")
	}

	if cfg.EnabledSourceCount() == 0 {
		return fmt.Errorf("invalid sources: %w", types.ErrNoSources)
	}
	if err := validateSources(&cfg.Sources); err != nil {
		return err
	}

	if cfg.Fetcher.RequestTimeout <= 0 {
		return fmt.Errorf("fetcher.request_timeout must be > 0")
	}
	if cfg.Fetcher.MaxRetries < 0 {
		return fmt.Errorf("fetcher.max_retries must be >= 0, got %d", cfg.Fetcher.MaxRetries)
	}
	if cfg.Fetcher.MaxBodySize <= 0 {
		return fmt.Errorf("fetcher.max_body_size must be > 0")
	}
	if cfg.Fetcher.MaxRedirects < 0 {
		return fmt.Errorf("fetcher.max_redirects must be >= 0")
	}
	if cfg.Fetcher.RequestsPerSecond < 0 {
		return fmt.Errorf("fetcher.requests_per_second must be >= 0")
	}

	if cfg.Enricher.Enabled {
		switch cfg.Enricher.Provider {
		case "gazetteer":
		case "service":
			if err := ValidateURL(cfg.Enricher.ServiceURL); err != nil {
				return fmt.Errorf("enricher.service_url: %w", err)
			}
		case "llm":
			switch cfg.Enricher.LLM.Provider {
			case "ollama", "openai", "custom":
			default:
				return fmt.Errorf("enricher.llm.provider must be ollama/openai/custom, got %q", cfg.Enricher.LLM.Provider)
			}
		default:
			return fmt.Errorf("enricher.provider must be gazetteer/service/llm, got %q", cfg.Enricher.Provider)
		}
		if cfg.Enricher.Timeout <= 0 {
			return fmt.Errorf("enricher.timeout must be > 0")
		}
		if cfg.Enricher.Concurrency < 0 {
			return fmt.Errorf("enricher.concurrency must be >= 0")
		}
		if len(cfg.Enricher.LocationKinds) == 0 {
			return fmt.Errorf("enricher.location_kinds must list at least one entity kind")
		}
		switch cfg.Enricher.Cache.Type {
		case "", "none", "memory":
		case "redis":
			if cfg.Enricher.Cache.RedisURL == "" {
				return fmt.Errorf("enricher.cache.redis_url is required for the redis cache")
			}
		default:
			return fmt.Errorf("enricher.cache.type must be none/memory/redis, got %q", cfg.Enricher.Cache.Type)
		}
	}

	for _, d := range cfg.Aggregator.Dimensions {
		if _, ok := types.ParseDimension(d); !ok {
			return fmt.Errorf("aggregator.dimensions: unknown dimension %q", d)
		}
	}
	if cfg.Aggregator.TopN < 0 {
		return fmt.Errorf("aggregator.top_n must be >= 0, got %d", cfg.Aggregator.TopN)
	}

	if cfg.Pipeline.MaxConcurrentSources < 1 {
		return fmt.Errorf("pipeline.max_concurrent_sources must be >= 1, got %d", cfg.Pipeline.MaxConcurrentSources)
	}

	validBackends := map[string]bool{
		"json": true, "jsonl": true, "csv": true, "mongodb": true, "postgres": true,
	}
	for _, b := range cfg.Storage.Backends {
		if !validBackends[b] {
			return fmt.Errorf("storage backend %q is not supported (valid: json, jsonl, csv, mongodb, postgres)", b)
		}
		if b == "postgres" && cfg.Storage.Postgres.DSN == "" {
			return fmt.Errorf("storage.postgres.dsn is required for the postgres backend")
		}
		if b == "mongodb" && cfg.Storage.Mongo.URI == "" {
			return fmt.Errorf("storage.mongo.uri is required for the mongodb backend")
		}
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be debug/info/warn/error, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" && cfg.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be 'text' or 'json', got %q", cfg.Logging.Format)
	}

	if cfg.Metrics.Enabled {
		if cfg.Metrics.Port < 1 || cfg.Metrics.Port > 65535 {
			return fmt.Errorf("metrics.port must be 1-65535, got %d", cfg.Metrics.Port)
		}
	}

	return nil
}

func validateSources(s *SourcesConfig) error {
	if s.Search.Enabled {
		if len(s.Search.Queries) == 0 {
			return fmt.Errorf("sources.search.queries must not be empty")
		}
		if !strings.Contains(s.Search.URLTemplate, "{query}") {
			return fmt.Errorf("sources.search.url_template must contain {query}")
		}
		if s.Search.Fetcher != "http" && s.Search.Fetcher != "browser" {
			return fmt.Errorf("sources.search.fetcher must be 'http' or 'browser', got %q", s.Search.Fetcher)
		}
		if s.Search.MaxDelay < s.Search.MinDelay {
			return fmt.Errorf("sources.search.max_delay must be >= min_delay")
		}
	}
	if s.NewsAPI.Enabled {
		if err := ValidateURL(s.NewsAPI.Endpoint); err != nil {
			return fmt.Errorf("sources.news_api.endpoint: %w", err)
		}
		if s.NewsAPI.PageSize < 1 {
			return fmt.Errorf("sources.news_api.page_size must be >= 1")
		}
	}
	if s.Sites.Enabled {
		if len(s.Sites.Sites) == 0 {
			return fmt.Errorf("sources.sites.sites must not be empty")
		}
		for _, site := range s.Sites.Sites {
			if err := ValidateURL(site.URL); err != nil {
				return fmt.Errorf("sources.sites: %q: %w", site.URL, err)
			}
		}
	}
	if s.Feeds.Enabled {
		if len(s.Feeds.URLs) == 0 {
			return fmt.Errorf("sources.feeds.urls must not be empty")
		}
		for _, u := range s.Feeds.URLs {
			if err := ValidateURL(u); err != nil {
				return fmt.Errorf("sources.feeds: %q: %w", u, err)
			}
		}
	}
	return nil
}

// EnabledSourceCount returns how many adapter families are switched on.
func (c *Config) EnabledSourceCount() int {
	n := 0
	for _, on := range []bool{c.Sources.Search.Enabled, c.Sources.NewsAPI.Enabled, c.Sources.Sites.Enabled, c.Sources.Feeds.Enabled} {
		if on {
			n++
		}
	}
	return n
}

// ValidateURL checks if a URL string is an absolute http(s) URL.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}
