// Package storage exports run reports to files and databases.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ngly1/mentionwatch/internal/config"
	"github.com/ngly1/mentionwatch/internal/types"
)

// Exporter is the interface for all export backends.
type Exporter interface {
	// Name returns the backend identifier.
	Name() string

	// Export writes one run's report.
	Export(ctx context.Context, report *types.Report) error

	// Close flushes pending writes and releases resources.
	Close() error
}

// New builds the configured backends behind a single fan-out exporter.
func New(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger, opts ...MultiOption) (*MultiExporter, error) {
	var backends []Exporter
	closeAll := func() {
		for _, b := range backends {
			b.Close()
		}
	}

	for _, name := range cfg.Backends {
		var (
			b   Exporter
			err error
		)
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "csv", "json", "jsonl":
			b, err = NewFileExporter(name, cfg.OutputPath, cfg.BaseName, logger)
		case "mongodb", "mongo":
			b, err = NewMongoExporter(ctx, cfg.Mongo.URI, cfg.Mongo.Database, logger)
		case "postgres", "postgresql":
			b, err = NewPostgresExporter(ctx, cfg.Postgres.DSN, logger)
		default:
			err = fmt.Errorf("unsupported storage backend: %s", name)
		}
		if err != nil {
			closeAll()
			return nil, &types.StorageError{Backend: name, Err: err}
		}
		backends = append(backends, b)
	}

	return NewMultiExporter(backends, logger, opts...), nil
}
