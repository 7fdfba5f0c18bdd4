package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Load reads configuration from file, environment, and defaults.
// Priority (highest to lowest): env vars > config file > defaults.
// CLI flags are applied by the caller after Load returns.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")

	setDefaults(v, cfg)

	v.SetEnvPrefix("MENTIONWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("mentionwatch")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".mentionwatch"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// setDefaults registers default values in viper so env overrides of
// scalar keys work without a config file.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("keyword", cfg.Keyword)

	v.SetDefault("sources.search.enabled", cfg.Sources.Search.Enabled)
	v.SetDefault("sources.search.url_template", cfg.Sources.Search.URLTemplate)
	v.SetDefault("sources.search.result_selector", cfg.Sources.Search.ResultSelector)
	v.SetDefault("sources.search.fetcher", cfg.Sources.Search.Fetcher)
	v.SetDefault("sources.search.min_delay", cfg.Sources.Search.MinDelay)
	v.SetDefault("sources.search.max_delay", cfg.Sources.Search.MaxDelay)

	v.SetDefault("sources.news_api.enabled", cfg.Sources.NewsAPI.Enabled)
	v.SetDefault("sources.news_api.endpoint", cfg.Sources.NewsAPI.Endpoint)
	v.SetDefault("sources.news_api.api_key", cfg.Sources.NewsAPI.APIKey)
	v.SetDefault("sources.news_api.language", cfg.Sources.NewsAPI.Language)
	v.SetDefault("sources.news_api.page_size", cfg.Sources.NewsAPI.PageSize)
	v.SetDefault("sources.news_api.max_pages", cfg.Sources.NewsAPI.MaxPages)

	v.SetDefault("sources.sites.enabled", cfg.Sources.Sites.Enabled)
	v.SetDefault("sources.sites.link_xpath", cfg.Sources.Sites.LinkXPath)
	v.SetDefault("sources.sites.max_articles", cfg.Sources.Sites.MaxArticles)
	v.SetDefault("sources.sites.require_keyword", cfg.Sources.Sites.RequireKeyword)
	v.SetDefault("sources.sites.same_host_only", cfg.Sources.Sites.SameHostOnly)
	v.SetDefault("sources.sites.max_body_text_size", cfg.Sources.Sites.MaxBodyTextSize)
	v.SetDefault("sources.sites.respect_robots_txt", cfg.Sources.Sites.RespectRobotsTxt)

	v.SetDefault("sources.feeds.enabled", cfg.Sources.Feeds.Enabled)
	v.SetDefault("sources.feeds.language", cfg.Sources.Feeds.Language)

	v.SetDefault("fetcher.request_timeout", cfg.Fetcher.RequestTimeout)
	v.SetDefault("fetcher.max_retries", cfg.Fetcher.MaxRetries)
	v.SetDefault("fetcher.retry_delay", cfg.Fetcher.RetryDelay)
	v.SetDefault("fetcher.max_body_size", cfg.Fetcher.MaxBodySize)
	v.SetDefault("fetcher.follow_redirects", cfg.Fetcher.FollowRedirects)
	v.SetDefault("fetcher.max_redirects", cfg.Fetcher.MaxRedirects)
	v.SetDefault("fetcher.idle_conn_timeout", cfg.Fetcher.IdleConnTimeout)
	v.SetDefault("fetcher.max_idle_conns", cfg.Fetcher.MaxIdleConns)
	v.SetDefault("fetcher.requests_per_second", cfg.Fetcher.RequestsPerSecond)
	v.SetDefault("fetcher.burst", cfg.Fetcher.Burst)
	v.SetDefault("fetcher.user_agents", cfg.Fetcher.UserAgents)
	v.SetDefault("fetcher.browser.stealth", cfg.Fetcher.Browser.Stealth)
	v.SetDefault("fetcher.browser.max_pages", cfg.Fetcher.Browser.MaxPages)
	v.SetDefault("fetcher.browser.wait_idle", cfg.Fetcher.Browser.WaitIdle)
	v.SetDefault("fetcher.browser.control_url", cfg.Fetcher.Browser.ControlURL)

	v.SetDefault("enricher.enabled", cfg.Enricher.Enabled)
	v.SetDefault("enricher.provider", cfg.Enricher.Provider)
	v.SetDefault("enricher.timeout", cfg.Enricher.Timeout)
	v.SetDefault("enricher.location_kinds", cfg.Enricher.LocationKinds)
	v.SetDefault("enricher.max_text_length", cfg.Enricher.MaxTextLength)
	v.SetDefault("enricher.concurrency", cfg.Enricher.Concurrency)
	v.SetDefault("enricher.title_fallback", cfg.Enricher.TitleFallback)
	v.SetDefault("enricher.service_url", cfg.Enricher.ServiceURL)
	v.SetDefault("enricher.llm.provider", cfg.Enricher.LLM.Provider)
	v.SetDefault("enricher.llm.endpoint", cfg.Enricher.LLM.Endpoint)
	v.SetDefault("enricher.llm.model", cfg.Enricher.LLM.Model)
	v.SetDefault("enricher.llm.api_key", cfg.Enricher.LLM.APIKey)
	v.SetDefault("enricher.llm.max_tokens", cfg.Enricher.LLM.MaxTokens)
	v.SetDefault("enricher.llm.temperature", cfg.Enricher.LLM.Temperature)
	v.SetDefault("enricher.cache.type", cfg.Enricher.Cache.Type)
	v.SetDefault("enricher.cache.redis_url", cfg.Enricher.Cache.RedisURL)
	v.SetDefault("enricher.cache.ttl", cfg.Enricher.Cache.TTL)
	v.SetDefault("enricher.cache.prefix", cfg.Enricher.Cache.Prefix)

	v.SetDefault("aggregator.dimensions", cfg.Aggregator.Dimensions)
	v.SetDefault("aggregator.top_n", cfg.Aggregator.TopN)

	v.SetDefault("pipeline.max_concurrent_sources", cfg.Pipeline.MaxConcurrentSources)
	v.SetDefault("pipeline.source_timeout", cfg.Pipeline.SourceTimeout)

	v.SetDefault("storage.backends", cfg.Storage.Backends)
	v.SetDefault("storage.output_path", cfg.Storage.OutputPath)
	v.SetDefault("storage.base_name", cfg.Storage.BaseName)
	v.SetDefault("storage.mongo.uri", cfg.Storage.Mongo.URI)
	v.SetDefault("storage.mongo.database", cfg.Storage.Mongo.Database)
	v.SetDefault("storage.postgres.dsn", cfg.Storage.Postgres.DSN)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)
	v.SetDefault("logging.output", cfg.Logging.Output)

	v.SetDefault("metrics.enabled", cfg.Metrics.Enabled)
	v.SetDefault("metrics.port", cfg.Metrics.Port)
	v.SetDefault("metrics.path", cfg.Metrics.Path)
}
