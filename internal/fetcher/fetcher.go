// Package fetcher retrieves pages for source adapters.
package fetcher

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ngly1/mentionwatch/internal/config"
	"github.com/ngly1/mentionwatch/internal/types"
)

// Fetcher is the interface for all request fetcher implementations.
type Fetcher interface {
	// Fetch retrieves the content at the given request's URL.
	Fetch(ctx context.Context, req *types.Request) (*types.Response, error)

	// Close releases any resources held by the fetcher.
	Close() error

	// Type returns the fetcher type identifier.
	Type() string
}

// New creates a fetcher of the given type ("http" or "browser").
func New(kind string, cfg config.FetcherConfig, logger *slog.Logger) (Fetcher, error) {
	switch kind {
	case "", "http":
		return NewHTTPFetcher(cfg, logger)
	case "browser":
		return NewBrowserFetcher(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown fetcher type: %q", kind)
	}
}
