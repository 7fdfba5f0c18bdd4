package config

import (
	"time"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Config is the root configuration for MentionWatch.
type Config struct {
	Keyword    string           `mapstructure:"keyword"    yaml:"keyword"`
	Sources    SourcesConfig    `mapstructure:"sources"    yaml:"sources"`
	Fetcher    FetcherConfig    `mapstructure:"fetcher"    yaml:"fetcher"`
	Normalizer NormalizerConfig `mapstructure:"normalizer" yaml:"normalizer"`
	Enricher   EnricherConfig   `mapstructure:"enricher"   yaml:"enricher"`
	Aggregator AggregatorConfig `mapstructure:"aggregator" yaml:"aggregator"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline"   yaml:"pipeline"`
	Storage    StorageConfig    `mapstructure:"storage"    yaml:"storage"`
	Logging    LoggingConfig    `mapstructure:"logging"    yaml:"logging"`
	Metrics    MetricsConfig    `mapstructure:"metrics"    yaml:"metrics"`
}

// SourcesConfig groups the per-adapter settings.
type SourcesConfig struct {
	Search  SearchSourceConfig  `mapstructure:"search"   yaml:"search"`
	NewsAPI NewsAPISourceConfig `mapstructure:"news_api" yaml:"news_api"`
	Sites   SitesSourceConfig   `mapstructure:"sites"    yaml:"sites"`
	Feeds   FeedsSourceConfig   `mapstructure:"feeds"    yaml:"feeds"`
}

// SearchQuery is one language-scoped search engine query.
type SearchQuery struct {
	Language string `mapstructure:"language" yaml:"language"`
	Query    string `mapstructure:"query"    yaml:"query"`
}

// SearchSourceConfig controls the search engine result adapter.
type SearchSourceConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// URLTemplate may use {query} and {lang} placeholders.
	URLTemplate string        `mapstructure:"url_template" yaml:"url_template"`
	Queries     []SearchQuery `mapstructure:"queries"      yaml:"queries"`
	// ResultSelector matches one organic result block.
	ResultSelector string `mapstructure:"result_selector" yaml:"result_selector"`
	// Fetcher is "http" or "browser".
	Fetcher  string        `mapstructure:"fetcher"   yaml:"fetcher"`
	MinDelay time.Duration `mapstructure:"min_delay" yaml:"min_delay"`
	MaxDelay time.Duration `mapstructure:"max_delay" yaml:"max_delay"`
}

// NewsAPISourceConfig controls the structured news API adapter.
type NewsAPISourceConfig struct {
	Enabled  bool   `mapstructure:"enabled"   yaml:"enabled"`
	Endpoint string `mapstructure:"endpoint"  yaml:"endpoint"`
	APIKey   string `mapstructure:"api_key"   yaml:"api_key"`
	Language string `mapstructure:"language"  yaml:"language"`
	PageSize int    `mapstructure:"page_size" yaml:"page_size"`
	MaxPages int    `mapstructure:"max_pages" yaml:"max_pages"`
}

// Site is one curated publication site.
type Site struct {
	URL      string `mapstructure:"url"      yaml:"url"`
	Language string `mapstructure:"language" yaml:"language"`
	Region   string `mapstructure:"region"   yaml:"region"`
}

// SitesSourceConfig controls the static site crawl adapter.
type SitesSourceConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Sites   []Site `mapstructure:"sites"   yaml:"sites"`
	// LinkXPath selects candidate article anchors on a site's front page.
	LinkXPath       string `mapstructure:"link_xpath"        yaml:"link_xpath"`
	MaxArticles     int    `mapstructure:"max_articles"      yaml:"max_articles"`
	RequireKeyword  bool   `mapstructure:"require_keyword"   yaml:"require_keyword"`
	SameHostOnly    bool   `mapstructure:"same_host_only"    yaml:"same_host_only"`
	MaxBodyTextSize int    `mapstructure:"max_body_text_size" yaml:"max_body_text_size"`
	// RespectRobotsTxt skips pages disallowed for the crawler and honors Crawl-delay.
	RespectRobotsTxt bool `mapstructure:"respect_robots_txt" yaml:"respect_robots_txt"`
}

// FeedsSourceConfig controls the RSS/Atom feed adapter.
type FeedsSourceConfig struct {
	Enabled bool     `mapstructure:"enabled" yaml:"enabled"`
	URLs    []string `mapstructure:"urls"    yaml:"urls"`
	// Language is attached to every feed item that does not declare one.
	Language string `mapstructure:"language" yaml:"language"`
}

// FetcherConfig controls page fetching for all adapters.
type FetcherConfig struct {
	RequestTimeout  time.Duration `mapstructure:"request_timeout"   yaml:"request_timeout"`
	MaxRetries      int           `mapstructure:"max_retries"       yaml:"max_retries"`
	RetryDelay      time.Duration `mapstructure:"retry_delay"       yaml:"retry_delay"`
	MaxBodySize     int64         `mapstructure:"max_body_size"     yaml:"max_body_size"`
	FollowRedirects bool          `mapstructure:"follow_redirects"  yaml:"follow_redirects"`
	MaxRedirects    int           `mapstructure:"max_redirects"     yaml:"max_redirects"`
	IdleConnTimeout time.Duration `mapstructure:"idle_conn_timeout" yaml:"idle_conn_timeout"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"    yaml:"max_idle_conns"`
	// RequestsPerSecond limits each fetcher; 0 disables limiting.
	RequestsPerSecond float64       `mapstructure:"requests_per_second" yaml:"requests_per_second"`
	Burst             int           `mapstructure:"burst"               yaml:"burst"`
	UserAgents        []string      `mapstructure:"user_agents"         yaml:"user_agents"`
	Browser           BrowserConfig `mapstructure:"browser"             yaml:"browser"`
}

// BrowserConfig controls the headless browser fetcher.
type BrowserConfig struct {
	Stealth    bool          `mapstructure:"stealth"     yaml:"stealth"`
	MaxPages   int           `mapstructure:"max_pages"   yaml:"max_pages"`
	WaitIdle   time.Duration `mapstructure:"wait_idle"   yaml:"wait_idle"`
	ControlURL string        `mapstructure:"control_url" yaml:"control_url"`
}

// NormalizerConfig controls record normalization.
type NormalizerConfig struct {
	// ExtraTrackingParams are stripped from URLs on top of the built-in list.
	ExtraTrackingParams []string `mapstructure:"extra_tracking_params" yaml:"extra_tracking_params"`
	// ExtraDateFormats are Go time layouts tried after the built-in ones.
	ExtraDateFormats []string `mapstructure:"extra_date_formats" yaml:"extra_date_formats"`
}

// EnricherConfig controls geographic enrichment.
type EnricherConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Provider is "gazetteer", "service", or "llm".
	Provider      string        `mapstructure:"provider"       yaml:"provider"`
	Timeout       time.Duration `mapstructure:"timeout"        yaml:"timeout"`
	LocationKinds []string      `mapstructure:"location_kinds" yaml:"location_kinds"`
	MaxTextLength int           `mapstructure:"max_text_length" yaml:"max_text_length"`
	// Concurrency bounds in-flight extractor calls.
	Concurrency   int           `mapstructure:"concurrency"    yaml:"concurrency"`
	// TitleFallback analyzes the title when a mention has no raw text.
	TitleFallback bool          `mapstructure:"title_fallback" yaml:"title_fallback"`
	ServiceURL    string        `mapstructure:"service_url"    yaml:"service_url"`
	LLM           LLMConfig     `mapstructure:"llm"            yaml:"llm"`
	Cache         CacheConfig   `mapstructure:"cache"          yaml:"cache"`
}

// LLMConfig controls the LLM-backed entity extractor.
type LLMConfig struct {
	Provider    string  `mapstructure:"provider"    yaml:"provider"`
	Endpoint    string  `mapstructure:"endpoint"    yaml:"endpoint"`
	Model       string  `mapstructure:"model"       yaml:"model"`
	APIKey      string  `mapstructure:"api_key"     yaml:"api_key"`
	MaxTokens   int     `mapstructure:"max_tokens"  yaml:"max_tokens"`
	Temperature float64 `mapstructure:"temperature" yaml:"temperature"`
}

// CacheConfig controls the extraction result cache.
type CacheConfig struct {
	// Type is "none", "memory", or "redis".
	Type     string        `mapstructure:"type"      yaml:"type"`
	RedisURL string        `mapstructure:"redis_url" yaml:"redis_url"`
	TTL      time.Duration `mapstructure:"ttl"       yaml:"ttl"`
	Prefix   string        `mapstructure:"prefix"    yaml:"prefix"`
}

// AggregatorConfig controls summary tables.
type AggregatorConfig struct {
	Dimensions []string `mapstructure:"dimensions" yaml:"dimensions"`
	// TopN truncates every non-date table; 0 keeps all rows.
	TopN int `mapstructure:"top_n" yaml:"top_n"`
}

// PipelineConfig controls run orchestration.
type PipelineConfig struct {
	MaxConcurrentSources int           `mapstructure:"max_concurrent_sources" yaml:"max_concurrent_sources"`
	SourceTimeout        time.Duration `mapstructure:"source_timeout"         yaml:"source_timeout"`
}

// StorageConfig controls export.
type StorageConfig struct {
	// Backends lists exporters to fan out to: json, jsonl, csv, mongodb, postgres.
	Backends   []string       `mapstructure:"backends"    yaml:"backends"`
	OutputPath string         `mapstructure:"output_path" yaml:"output_path"`
	BaseName   string         `mapstructure:"base_name"   yaml:"base_name"`
	Mongo      MongoConfig    `mapstructure:"mongo"       yaml:"mongo"`
	Postgres   PostgresConfig `mapstructure:"postgres"    yaml:"postgres"`
}

// MongoConfig controls the MongoDB exporter.
type MongoConfig struct {
	URI      string `mapstructure:"uri"      yaml:"uri"`
	Database string `mapstructure:"database" yaml:"database"`
}

// PostgresConfig controls the PostgreSQL exporter.
type PostgresConfig struct {
	DSN string `mapstructure:"dsn" yaml:"dsn"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	Output string `mapstructure:"output" yaml:"output"`
}

// MetricsConfig controls Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Port    int    `mapstructure:"port"    yaml:"port"`
	Path    string `mapstructure:"path"    yaml:"path"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Keyword: "NGLY1",
		Sources: SourcesConfig{
			Search: SearchSourceConfig{
				Enabled:     true,
				URLTemplate: "https://www.google.com/search?q={query}&hl={lang}&num=10",
				Queries: []SearchQuery{
					{Language: "en", Query: "site:bbc.com OR site:cnn.com OR site:theguardian.com NGLY1"},
					{Language: "es", Query: "site:elpais.com OR site:clarin.com OR site:elmundo.es NGLY1"},
				},
				ResultSelector: "div.tF2Cxc",
				Fetcher:        "http",
				MinDelay:       2 * time.Second,
				MaxDelay:       5 * time.Second,
			},
			NewsAPI: NewsAPISourceConfig{
				Enabled:  false,
				Endpoint: "https://newsapi.org/v2/everything",
				PageSize: 50,
				MaxPages: 2,
			},
			Sites: SitesSourceConfig{
				Enabled:          false,
				LinkXPath:        "//a[@href]",
				MaxArticles:      25,
				RequireKeyword:   true,
				RespectRobotsTxt: true,
				SameHostOnly:     true,
				MaxBodyTextSize:  20000,
			},
			Feeds: FeedsSourceConfig{
				Enabled: false,
				URLs: []string{
					"https://news.google.com/rss/search?q=NGLY1&hl=en-US&gl=US&ceid=US:en",
				},
			},
		},
		Fetcher: FetcherConfig{
			RequestTimeout:    30 * time.Second,
			MaxRetries:        3,
			RetryDelay:        2 * time.Second,
			MaxBodySize:       10 * 1024 * 1024, // 10MB
			FollowRedirects:   true,
			MaxRedirects:      10,
			IdleConnTimeout:   90 * time.Second,
			MaxIdleConns:      20,
			RequestsPerSecond: 1,
			Burst:             1,
			UserAgents: []string{
				"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/114.0.0.0 Safari/537.36",
				"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			},
			Browser: BrowserConfig{
				Stealth:  true,
				MaxPages: 2,
				WaitIdle: 2 * time.Second,
			},
		},
		Enricher: EnricherConfig{
			Enabled:       true,
			Provider:      "gazetteer",
			Timeout:       10 * time.Second,
			LocationKinds: []string{"GPE"},
			MaxTextLength: 5000,
			Concurrency:   4,
			TitleFallback: true,
			LLM: LLMConfig{
				Provider:    "ollama",
				Endpoint:    "http://localhost:11434",
				Model:       "llama3",
				MaxTokens:   512,
				Temperature: 0,
			},
			Cache: CacheConfig{
				Type:   "memory",
				TTL:    24 * time.Hour,
				Prefix: "mentionwatch:entities:",
			},
		},
		Aggregator: AggregatorConfig{
			Dimensions: []string{"location", "date", "source", "language"},
		},
		Pipeline: PipelineConfig{
			MaxConcurrentSources: 4,
			SourceTimeout:        5 * time.Minute,
		},
		Storage: StorageConfig{
			Backends:   []string{"csv"},
			OutputPath: "./output",
			BaseName:   "news_mentions",
			Mongo: MongoConfig{
				URI:      "mongodb://localhost:27017",
				Database: "mentionwatch",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
			Path:    "/metrics",
		},
	}
}
