package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngly1/mentionwatch/internal/types"
)

func TestDefaultConfigIsValid(t *testing.T) {
	require.NoError(t, Validate(DefaultConfig()))
}

func TestDefaultSearchQueries(t *testing.T) {
	cfg := DefaultConfig()
	require.Len(t, cfg.Sources.Search.Queries, 2)
	assert.Equal(t, "en", cfg.Sources.Search.Queries[0].Language)
	assert.Equal(t, "es", cfg.Sources.Search.Queries[1].Language)
	assert.Equal(t, "news_mentions", cfg.Storage.BaseName)
}

func TestValidateNoSources(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Sources.Search.Enabled = false

	err := Validate(cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrNoSources)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty keyword", func(c *Config) { c.Keyword = " " }},
		{"bad fetcher", func(c *Config) { c.Sources.Search.Fetcher = "curl" }},
		{"template without query", func(c *Config) { c.Sources.Search.URLTemplate = "https://example.com/" }},
		{"zero timeout", func(c *Config) { c.Fetcher.RequestTimeout = 0 }},
		{"bad provider", func(c *Config) { c.Enricher.Provider = "spacy" }},
		{"service without url", func(c *Config) { c.Enricher.Provider = "service" }},
		{"redis without url", func(c *Config) { c.Enricher.Cache.Type = "redis" }},
		{"unknown dimension", func(c *Config) { c.Aggregator.Dimensions = []string{"author"} }},
		{"unknown backend", func(c *Config) { c.Storage.Backends = []string{"xlsx"} }},
		{"postgres without dsn", func(c *Config) { c.Storage.Backends = []string{"postgres"} }},
		{"relative site", func(c *Config) {
			c.Sources.Sites.Enabled = true
			c.Sources.Sites.Sites = []Site{{URL: "/news"}}
		}},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, Validate(cfg))
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mentionwatch.yaml")
	content := `
keyword: NGLY1
sources:
  search:
    enabled: false
  feeds:
    enabled: true
    urls:
      - https://example.com/rss
enricher:
  timeout: 3s
storage:
  backends: [json, csv]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.False(t, cfg.Sources.Search.Enabled)
	assert.True(t, cfg.Sources.Feeds.Enabled)
	assert.Equal(t, []string{"https://example.com/rss"}, cfg.Sources.Feeds.URLs)
	assert.Equal(t, 3*time.Second, cfg.Enricher.Timeout)
	assert.Equal(t, []string{"json", "csv"}, cfg.Storage.Backends)
	assert.Equal(t, "gazetteer", cfg.Enricher.Provider)
	require.NoError(t, Validate(cfg))
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("MENTIONWATCH_KEYWORD", "PNGase")
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "PNGase", cfg.Keyword)
}

func TestValidateURL(t *testing.T) {
	assert.NoError(t, ValidateURL("https://example.com/a"))
	assert.Error(t, ValidateURL("ftp://example.com"))
	assert.Error(t, ValidateURL("/relative"))
}
