package storage

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ngly1/mentionwatch/internal/types"
)

// AggregateColumns is the header of exported aggregate tables.
var AggregateColumns = []string{"dimension", "value", "count"}

// FileExporter writes a report as CSV, JSON, or JSONL files into a directory.
// Each file is written to a temporary name and renamed into place, so a
// failed export never leaves a partial table behind.
//
// Files for base name "news_mentions":
//
//	news_mentions.<ext>             mention table
//	news_mentions_by_<dim>.<ext>    one aggregate table per dimension (csv, jsonl)
type FileExporter struct {
	format string
	dir    string
	base   string
	logger *slog.Logger
}

// NewFileExporter creates a file exporter for format "csv", "json", or "jsonl".
func NewFileExporter(format, dir, base string, logger *slog.Logger) (*FileExporter, error) {
	format = strings.ToLower(format)
	switch format {
	case "csv", "json", "jsonl":
	default:
		return nil, fmt.Errorf("unsupported file format: %s", format)
	}
	if base == "" {
		base = "news_mentions"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &FileExporter{
		format: format,
		dir:    dir,
		base:   base,
		logger: logger.With("component", format+"_storage"),
	}, nil
}

func (e *FileExporter) Name() string { return e.format }

// MentionsPath returns the path of the mention table.
func (e *FileExporter) MentionsPath() string {
	return filepath.Join(e.dir, e.base+"."+e.format)
}

// AggregatePath returns the path of one dimension's aggregate table.
func (e *FileExporter) AggregatePath(dim types.Dimension) string {
	return filepath.Join(e.dir, e.base+"_by_"+string(dim)+"."+e.format)
}

func (e *FileExporter) Export(ctx context.Context, report *types.Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rows := report.Rows()

	switch e.format {
	case "csv":
		if err := writeAtomic(e.MentionsPath(), func(w io.Writer) error { return writeMentionCSV(w, rows) }); err != nil {
			return err
		}
		for _, dim := range types.AllDimensions {
			table, ok := report.Aggregates[dim]
			if !ok {
				continue
			}
			if err := writeAtomic(e.AggregatePath(dim), func(w io.Writer) error { return writeAggregateCSV(w, table) }); err != nil {
				return err
			}
		}

	case "jsonl":
		if err := writeAtomic(e.MentionsPath(), func(w io.Writer) error { return writeJSONL(w, rows) }); err != nil {
			return err
		}
		for _, dim := range types.AllDimensions {
			table, ok := report.Aggregates[dim]
			if !ok {
				continue
			}
			if err := writeAtomic(e.AggregatePath(dim), func(w io.Writer) error { return writeJSONL(w, table) }); err != nil {
				return err
			}
		}

	case "json":
		doc := jsonReport{
			RunID:       report.RunID,
			Keyword:     report.Keyword,
			GeneratedAt: report.GeneratedAt.UTC().Format("2006-01-02T15:04:05Z"),
			Mentions:    rows,
			Hits:        report.Hits,
			Aggregates:  report.Aggregates,
		}
		if err := writeAtomic(e.MentionsPath(), func(w io.Writer) error {
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			return enc.Encode(doc)
		}); err != nil {
			return err
		}
	}

	e.logger.Info("report written", "path", e.MentionsPath(), "mentions", len(rows))
	return nil
}

func (e *FileExporter) Close() error { return nil }

type jsonReport struct {
	RunID       string                                   `json:"run_id"`
	Keyword     string                                   `json:"keyword"`
	GeneratedAt string                                   `json:"generated_at"`
	Mentions    []types.MentionRow                       `json:"mentions"`
	Hits        []types.LocationHit                      `json:"location_hits"`
	Aggregates  map[types.Dimension][]types.AggregateRow `json:"aggregates"`
}

func writeMentionCSV(w io.Writer, rows []types.MentionRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(types.MentionColumns); err != nil {
		return fmt.Errorf("write CSV header: %w", err)
	}
	for _, r := range rows {
		if err := cw.Write(r.Record()); err != nil {
			return fmt.Errorf("write CSV row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeAggregateCSV(w io.Writer, rows []types.AggregateRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(AggregateColumns); err != nil {
		return fmt.Errorf("write CSV header: %w", err)
	}
	for _, r := range rows {
		if err := cw.Write([]string{string(r.Dimension), r.Value, strconv.Itoa(r.Count)}); err != nil {
			return fmt.Errorf("write CSV row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeJSONL[T any](w io.Writer, rows []T) error {
	enc := json.NewEncoder(w)
	for _, r := range rows {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("encode JSONL: %w", err)
		}
	}
	return nil
}

// writeAtomic writes path through a temporary file in the same directory.
func writeAtomic(path string, write func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close output file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename output file: %w", err)
	}
	return nil
}
