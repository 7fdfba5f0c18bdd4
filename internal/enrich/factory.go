package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ngly1/mentionwatch/internal/config"
)

// NewExtractor builds the configured extractor, wrapped in the configured cache.
func NewExtractor(cfg config.EnricherConfig, logger *slog.Logger) (EntityExtractor, error) {
	var extractor EntityExtractor
	switch cfg.Provider {
	case "", "gazetteer":
		g, err := NewGazetteerExtractor()
		if err != nil {
			return nil, err
		}
		extractor = g
	case "service":
		extractor = NewServiceExtractor(cfg.ServiceURL, logger)
	case "llm":
		extractor = NewLLMExtractor(NewLLMClient(cfg.LLM, logger), logger)
	default:
		return nil, fmt.Errorf("unknown enricher provider: %q", cfg.Provider)
	}

	switch cfg.Cache.Type {
	case "", "none":
		return extractor, nil
	case "memory":
		return NewCachedExtractor(extractor, NewMemoryCache(), logger), nil
	case "redis":
		cache, err := NewRedisCache(cfg.Cache.RedisURL, cfg.Cache.TTL, cfg.Cache.Prefix)
		if err != nil {
			extractor.Close()
			return nil, err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := cache.Ping(ctx); err != nil {
			logger.Warn("redis cache unreachable, continuing without cache", "error", err)
			cache.Close()
			return extractor, nil
		}
		return NewCachedExtractor(extractor, cache, logger), nil
	default:
		extractor.Close()
		return nil, fmt.Errorf("unknown enricher cache type: %q", cfg.Cache.Type)
	}
}

// NewFromConfig creates an Enricher around extractor using cfg's limits.
func NewFromConfig(extractor EntityExtractor, cfg config.EnricherConfig, logger *slog.Logger) *Enricher {
	return New(extractor, logger,
		WithTimeout(cfg.Timeout),
		WithLocationKinds(cfg.LocationKinds...),
		WithMaxTextLength(cfg.MaxTextLength),
		WithConcurrency(cfg.Concurrency),
		WithTitleFallback(cfg.TitleFallback),
	)
}
