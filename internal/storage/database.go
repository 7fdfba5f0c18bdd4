package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ngly1/mentionwatch/internal/observability"
	"github.com/ngly1/mentionwatch/internal/types"
)

// Mongo collection names.
const (
	MentionsCollection   = "mentions"
	HitsCollection       = "location_hits"
	AggregatesCollection = "aggregates"
	RunsCollection       = "runs"
)

// MongoExporter upserts mentions by ID and appends per-run hits, aggregates
// and a run summary.
type MongoExporter struct {
	client *mongo.Client
	db     *mongo.Database
	logger *slog.Logger
}

// NewMongoExporter connects to MongoDB and verifies the connection.
func NewMongoExporter(ctx context.Context, uri, database string, logger *slog.Logger) (*MongoExporter, error) {
	if uri == "" {
		return nil, errors.New("mongodb uri is empty")
	}
	if database == "" {
		database = "mentionwatch"
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongodb connect: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongodb ping: %w", err)
	}

	return &MongoExporter{
		client: client,
		db:     client.Database(database),
		logger: logger.With("component", "mongo_storage"),
	}, nil
}

func (e *MongoExporter) Name() string { return "mongodb" }

type mentionDoc struct {
	types.Mention `bson:",inline"`
	RunID         string    `bson:"run_id"`
	UpdatedAt     time.Time `bson:"updated_at"`
}

type hitDoc struct {
	RunID             string `bson:"run_id"`
	types.LocationHit `bson:",inline"`
}

type aggregateDoc struct {
	RunID              string `bson:"run_id"`
	types.AggregateRow `bson:",inline"`
}

type runDoc struct {
	ID          string    `bson:"_id"`
	Keyword     string    `bson:"keyword"`
	GeneratedAt time.Time `bson:"generated_at"`
	Mentions    int       `bson:"mentions"`
	Hits        int       `bson:"location_hits"`
}

func (e *MongoExporter) Export(ctx context.Context, report *types.Report) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	now := time.Now().UTC()
	models := make([]mongo.WriteModel, 0, len(report.Mentions))
	for _, m := range report.Mentions {
		doc := mentionDoc{Mention: *m, RunID: report.RunID, UpdatedAt: now}
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"_id": m.ID}).
			SetReplacement(doc).
			SetUpsert(true))
	}
	if len(models) > 0 {
		res, err := e.db.Collection(MentionsCollection).BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
		if err != nil {
			return fmt.Errorf("mongodb upsert mentions: %w", err)
		}
		e.logger.Debug("mentions upserted", "inserted", res.UpsertedCount, "updated", res.ModifiedCount)
	}

	hits := mongoHitDocs(report)
	if len(hits) > 0 {
		if _, err := e.db.Collection(HitsCollection).InsertMany(ctx, hits); err != nil {
			return fmt.Errorf("mongodb insert hits: %w", err)
		}
	}

	aggs := mongoAggregateDocs(report)
	if len(aggs) > 0 {
		if _, err := e.db.Collection(AggregatesCollection).InsertMany(ctx, aggs); err != nil {
			return fmt.Errorf("mongodb insert aggregates: %w", err)
		}
	}

	run := runDoc{
		ID:          report.RunID,
		Keyword:     report.Keyword,
		GeneratedAt: report.GeneratedAt.UTC(),
		Mentions:    len(report.Mentions),
		Hits:        len(report.Hits),
	}
	_, err := e.db.Collection(RunsCollection).ReplaceOne(ctx, bson.M{"_id": run.ID}, run, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("mongodb write run: %w", err)
	}

	e.logger.Info("report stored in mongodb", "run_id", report.RunID, "mentions", len(report.Mentions))
	return nil
}

func mongoHitDocs(report *types.Report) []any {
	docs := make([]any, 0, len(report.Hits))
	for _, h := range report.Hits {
		docs = append(docs, hitDoc{RunID: report.RunID, LocationHit: h})
	}
	return docs
}

func mongoAggregateDocs(report *types.Report) []any {
	var docs []any
	for _, dim := range types.AllDimensions {
		for _, row := range report.Aggregates[dim] {
			docs = append(docs, aggregateDoc{RunID: report.RunID, AggregateRow: row})
		}
	}
	return docs
}

func (e *MongoExporter) Close() error {
	e.logger.Info("mongodb storage closing")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return e.client.Disconnect(ctx)
}

// --- Multi-Exporter Fan-Out ---

// MultiExporter writes a report to every configured backend. One backend
// failing does not stop the others.
type MultiExporter struct {
	backends []Exporter
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// MultiOption configures a MultiExporter.
type MultiOption func(*MultiExporter)

// WithMetrics records per-backend export outcomes.
func WithMetrics(m *observability.Metrics) MultiOption {
	return func(e *MultiExporter) { e.metrics = m }
}

// NewMultiExporter creates an exporter that fans out to multiple backends.
func NewMultiExporter(backends []Exporter, logger *slog.Logger, opts ...MultiOption) *MultiExporter {
	e := &MultiExporter{
		backends: backends,
		logger:   logger.With("component", "multi_storage"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *MultiExporter) Name() string { return "multi" }

// Backends returns the names of the wrapped backends.
func (e *MultiExporter) Backends() []string {
	names := make([]string, len(e.backends))
	for i, b := range e.backends {
		names[i] = b.Name()
	}
	return names
}

// Export writes to every backend and joins their errors. An empty report
// is never written.
func (e *MultiExporter) Export(ctx context.Context, report *types.Report) error {
	if report.IsEmpty() {
		return types.ErrEmptyResult
	}

	var errs []error
	for _, backend := range e.backends {
		start := time.Now()
		err := backend.Export(ctx, report)
		e.metrics.RecordExport(backend.Name(), err, time.Since(start))
		if err != nil {
			e.logger.Error("backend export failed", "backend", backend.Name(), "error", err)
			errs = append(errs, &types.StorageError{Backend: backend.Name(), Err: err})
		}
	}
	return errors.Join(errs...)
}

func (e *MultiExporter) Close() error {
	var errs []error
	for _, backend := range e.backends {
		if err := backend.Close(); err != nil {
			errs = append(errs, &types.StorageError{Backend: backend.Name(), Err: err})
		}
	}
	return errors.Join(errs...)
}
