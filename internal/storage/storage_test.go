package storage

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngly1/mentionwatch/internal/config"
	"github.com/ngly1/mentionwatch/internal/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleReport() *types.Report {
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	return &types.Report{
		RunID:       "run-1",
		Keyword:     "NGLY1",
		GeneratedAt: day,
		Mentions: []*types.Mention{
			{ID: "a", Title: "NGLY1 trial in Boston", URL: "https://example.com/a", PublishedAt: day, Language: "en", SourceTags: []string{"feed:example.com", "search:en"}},
			{ID: "b", Title: types.NoTitle, URL: "https://example.org/b", PublishedAt: day, ApproximateDate: true, SourceTags: []string{"news_api"}},
		},
		Hits: []types.LocationHit{
			{MentionID: "a", LocationName: "Boston", LocationKind: "GPE"},
			{MentionID: "a", LocationName: "Boston", LocationKind: "GPE"},
		},
		Aggregates: map[types.Dimension][]types.AggregateRow{
			types.DimensionLocation: {{Dimension: types.DimensionLocation, Value: "Boston", Count: 1}},
			types.DimensionDate:     {{Dimension: types.DimensionDate, Value: "2024-03-01", Count: 2}},
		},
	}
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return records
}

func TestCSVExporter(t *testing.T) {
	dir := t.TempDir()
	e, err := NewFileExporter("csv", dir, "news_mentions", testLogger())
	require.NoError(t, err)

	require.NoError(t, e.Export(context.Background(), sampleReport()))

	records := readCSV(t, filepath.Join(dir, "news_mentions.csv"))
	require.Len(t, records, 3)
	assert.Equal(t, types.MentionColumns, records[0])
	assert.Equal(t, []string{"2024-03-01", "NGLY1 trial in Boston", "https://example.com/a", "en", "", "Boston", "feed:example.com; search:en", "false"}, records[1])
	assert.Equal(t, "No Title", records[2][1])
	assert.Equal(t, "true", records[2][7])

	loc := readCSV(t, filepath.Join(dir, "news_mentions_by_location.csv"))
	assert.Equal(t, [][]string{AggregateColumns, {"location", "Boston", "1"}}, loc)

	_, err = os.Stat(filepath.Join(dir, "news_mentions_by_source.csv"))
	assert.True(t, os.IsNotExist(err), "dimensions not computed are not written")
}

func TestJSONExporter(t *testing.T) {
	dir := t.TempDir()
	e, err := NewFileExporter("json", dir, "out", testLogger())
	require.NoError(t, err)
	require.NoError(t, e.Export(context.Background(), sampleReport()))

	data, err := os.ReadFile(filepath.Join(dir, "out.json"))
	require.NoError(t, err)

	var doc struct {
		RunID      string                      `json:"run_id"`
		Mentions   []types.MentionRow          `json:"mentions"`
		Aggregates map[string][]map[string]any `json:"aggregates"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "run-1", doc.RunID)
	require.Len(t, doc.Mentions, 2)
	assert.Equal(t, []string{"Boston"}, doc.Mentions[0].Locations)
	assert.Contains(t, doc.Aggregates, "date")
}

func TestJSONLExporter(t *testing.T) {
	dir := t.TempDir()
	e, err := NewFileExporter("JSONL", dir, "", testLogger())
	require.NoError(t, err)
	assert.Equal(t, "jsonl", e.Name())
	require.NoError(t, e.Export(context.Background(), sampleReport()))

	data, err := os.ReadFile(filepath.Join(dir, "news_mentions.jsonl"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)

	var row types.MentionRow
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &row))
	assert.Equal(t, "https://example.org/b", row.URL)
	assert.True(t, row.ApproximateDate)

	_, err = os.Stat(filepath.Join(dir, "news_mentions_by_date.jsonl"))
	assert.NoError(t, err)
}

func TestFileExporterOverwritesPreviousRun(t *testing.T) {
	dir := t.TempDir()
	e, err := NewFileExporter("csv", dir, "m", testLogger())
	require.NoError(t, err)

	report := sampleReport()
	require.NoError(t, e.Export(context.Background(), report))
	report.Mentions = report.Mentions[:1]
	require.NoError(t, e.Export(context.Background(), report))

	assert.Len(t, readCSV(t, e.MentionsPath()), 2)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, entry := range entries {
		assert.False(t, strings.HasPrefix(entry.Name(), "."), "temp file left behind: %s", entry.Name())
	}
}

func TestFileExporterUnsupportedFormat(t *testing.T) {
	_, err := NewFileExporter("xml", t.TempDir(), "m", testLogger())
	assert.Error(t, err)
}

type fakeExporter struct {
	name    string
	err     error
	exports int
	closed  bool
}

func (f *fakeExporter) Name() string { return f.name }

func (f *fakeExporter) Export(context.Context, *types.Report) error {
	f.exports++
	return f.err
}

func (f *fakeExporter) Close() error {
	f.closed = true
	return nil
}

func TestMultiExporterContinuesPastFailure(t *testing.T) {
	boom := errors.New("boom")
	bad := &fakeExporter{name: "bad", err: boom}
	good := &fakeExporter{name: "good"}
	m := NewMultiExporter([]Exporter{bad, good}, testLogger())

	err := m.Export(context.Background(), sampleReport())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	var se *types.StorageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "bad", se.Backend)
	assert.Equal(t, 1, good.exports)

	require.NoError(t, m.Close())
	assert.True(t, bad.closed)
	assert.True(t, good.closed)
	assert.Equal(t, []string{"bad", "good"}, m.Backends())
}

func TestMultiExporterSkipsEmptyReport(t *testing.T) {
	f := &fakeExporter{name: "f"}
	m := NewMultiExporter([]Exporter{f}, testLogger())

	err := m.Export(context.Background(), &types.Report{RunID: "r"})
	assert.ErrorIs(t, err, types.ErrEmptyResult)
	assert.Zero(t, f.exports)
}

func TestNew(t *testing.T) {
	dir := t.TempDir()
	cfg := config.StorageConfig{Backends: []string{"csv", "json"}, OutputPath: dir, BaseName: "news_mentions"}

	m, err := New(context.Background(), cfg, testLogger())
	require.NoError(t, err)
	defer m.Close()
	assert.Equal(t, []string{"csv", "json"}, m.Backends())

	require.NoError(t, m.Export(context.Background(), sampleReport()))
	assert.FileExists(t, filepath.Join(dir, "news_mentions.csv"))
	assert.FileExists(t, filepath.Join(dir, "news_mentions.json"))
}

func TestNewUnknownBackend(t *testing.T) {
	cfg := config.StorageConfig{Backends: []string{"csv", "parquet"}, OutputPath: t.TempDir()}
	_, err := New(context.Background(), cfg, testLogger())
	var se *types.StorageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "parquet", se.Backend)
}

func TestDatabaseRowBuilders(t *testing.T) {
	report := sampleReport()

	args := mentionArgs(report.RunID, report.Mentions[1])
	require.Len(t, args, 9)
	assert.Equal(t, "b", args[0])
	assert.Equal(t, true, args[4])
	assert.Equal(t, "run-1", args[8])

	assert.Len(t, hitRows(report), 2)
	aggs := aggregateRows(report)
	require.Len(t, aggs, 2)
	assert.Equal(t, []any{"run-1", "location", "Boston", int32(1)}, aggs[0])

	docs := mongoAggregateDocs(report)
	require.Len(t, docs, 2)
	assert.Equal(t, "date", string(docs[1].(aggregateDoc).Dimension))
	assert.Len(t, mongoHitDocs(report), 2)
}
