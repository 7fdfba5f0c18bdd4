package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ngly1/mentionwatch/internal/types"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS mentions (
	id               TEXT PRIMARY KEY,
	title            TEXT NOT NULL,
	url              TEXT NOT NULL UNIQUE,
	published_at     DATE NOT NULL,
	approximate_date BOOLEAN NOT NULL DEFAULT FALSE,
	language         TEXT NOT NULL DEFAULT '',
	region           TEXT NOT NULL DEFAULT '',
	source_tags      TEXT[] NOT NULL DEFAULT '{}',
	run_id           TEXT NOT NULL,
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS location_hits (
	run_id        TEXT NOT NULL,
	mention_id    TEXT NOT NULL,
	location_name TEXT NOT NULL,
	location_kind TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS location_hits_mention_idx ON location_hits (mention_id);
CREATE TABLE IF NOT EXISTS aggregates (
	run_id    TEXT NOT NULL,
	dimension TEXT NOT NULL,
	value     TEXT NOT NULL,
	count     INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS runs (
	run_id       TEXT PRIMARY KEY,
	keyword      TEXT NOT NULL,
	generated_at TIMESTAMPTZ NOT NULL,
	mentions     INTEGER NOT NULL,
	hits         INTEGER NOT NULL
);`

const upsertMentionSQL = `
INSERT INTO mentions (id, title, url, published_at, approximate_date, language, region, source_tags, run_id, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
ON CONFLICT (id) DO UPDATE SET
	title = EXCLUDED.title,
	published_at = EXCLUDED.published_at,
	approximate_date = EXCLUDED.approximate_date,
	language = EXCLUDED.language,
	region = EXCLUDED.region,
	source_tags = EXCLUDED.source_tags,
	run_id = EXCLUDED.run_id,
	updated_at = now()`

var (
	hitColumns       = []string{"run_id", "mention_id", "location_name", "location_kind"}
	aggregateColumns = []string{"run_id", "dimension", "value", "count"}
)

// PostgresExporter writes a report into PostgreSQL inside one transaction.
// Mentions are upserted by ID; hits and aggregates are bulk copied per run.
type PostgresExporter struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgresExporter opens a pool and ensures the schema exists.
func NewPostgresExporter(ctx context.Context, dsn string, logger *slog.Logger) (*PostgresExporter, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn is empty")
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres schema: %w", err)
	}

	return &PostgresExporter{
		pool:   pool,
		logger: logger.With("component", "postgres_storage"),
	}, nil
}

func (e *PostgresExporter) Name() string { return "postgres" }

func (e *PostgresExporter) Export(ctx context.Context, report *types.Report) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	tx, err := e.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres begin: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, m := range report.Mentions {
		batch.Queue(upsertMentionSQL, mentionArgs(report.RunID, m)...)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("postgres upsert mentions: %w", err)
		}
	}

	if rows := hitRows(report); len(rows) > 0 {
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{"location_hits"}, hitColumns, pgx.CopyFromRows(rows)); err != nil {
			return fmt.Errorf("postgres copy hits: %w", err)
		}
	}

	if rows := aggregateRows(report); len(rows) > 0 {
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{"aggregates"}, aggregateColumns, pgx.CopyFromRows(rows)); err != nil {
			return fmt.Errorf("postgres copy aggregates: %w", err)
		}
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO runs (run_id, keyword, generated_at, mentions, hits) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (run_id) DO UPDATE SET mentions = EXCLUDED.mentions, hits = EXCLUDED.hits`,
		report.RunID, report.Keyword, report.GeneratedAt.UTC(), len(report.Mentions), len(report.Hits))
	if err != nil {
		return fmt.Errorf("postgres write run: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres commit: %w", err)
	}

	e.logger.Info("report stored in postgres", "run_id", report.RunID, "mentions", len(report.Mentions))
	return nil
}

func (e *PostgresExporter) Close() error {
	e.pool.Close()
	return nil
}

func mentionArgs(runID string, m *types.Mention) []any {
	tags := m.SourceTags
	if tags == nil {
		tags = []string{}
	}
	return []any{
		m.ID, m.Title, m.URL, m.PublishedAt.UTC(), m.ApproximateDate,
		m.Language, m.Region, tags, runID,
	}
}

func hitRows(report *types.Report) [][]any {
	rows := make([][]any, 0, len(report.Hits))
	for _, h := range report.Hits {
		rows = append(rows, []any{report.RunID, h.MentionID, h.LocationName, h.LocationKind})
	}
	return rows
}

func aggregateRows(report *types.Report) [][]any {
	var rows [][]any
	for _, dim := range types.AllDimensions {
		for _, r := range report.Aggregates[dim] {
			rows = append(rows, []any{report.RunID, string(r.Dimension), r.Value, int32(r.Count)})
		}
	}
	return rows
}
