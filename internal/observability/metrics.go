// Package observability exposes Prometheus metrics for pipeline runs.
package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mentionwatch"

// Metrics holds the collectors for one process. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	SourceRecords   *prometheus.CounterVec
	SourceFailures  *prometheus.CounterVec
	SourceDuration  *prometheus.HistogramVec
	RecordsSkipped  *prometheus.CounterVec
	DuplicatesTotal prometheus.Counter
	EnrichCalls     *prometheus.CounterVec
	EnrichDuration  prometheus.Histogram
	LocationHits    prometheus.Counter
	ExportTotal     *prometheus.CounterVec
	ExportDuration  *prometheus.HistogramVec
	RunDuration     prometheus.Histogram
	LastRunMentions prometheus.Gauge

	logger *slog.Logger
}

// NewMetrics creates the collectors on a dedicated registry.
func NewMetrics(logger *slog.Logger) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		SourceRecords: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_records_total",
			Help:      "Raw records yielded by each source adapter",
		}, []string{"source"}),
		SourceFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_failures_total",
			Help:      "Source adapters that failed as a whole",
		}, []string{"source"}),
		SourceDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_duration_seconds",
			Help:      "Time spent collecting from each source adapter",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"source"}),
		RecordsSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_skipped_total",
			Help:      "Raw records rejected by the normalizer",
		}, []string{"field"}),
		DuplicatesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicates_merged_total",
			Help:      "Mentions folded into another mention with the same canonical URL",
		}),
		EnrichCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrichment_calls_total",
			Help:      "Entity extractor calls by outcome",
		}, []string{"outcome"}),
		EnrichDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "enrichment_duration_seconds",
			Help:      "Duration of the enrichment stage",
			Buckets:   prometheus.DefBuckets,
		}),
		LocationHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "location_hits_total",
			Help:      "Location hits attached to mentions",
		}),
		ExportTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "export_total",
			Help:      "Export operations by backend and status",
		}, []string{"backend", "status"}),
		ExportDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "export_duration_seconds",
			Help:      "Duration of export operations",
			Buckets:   prometheus.DefBuckets,
		}, []string{"backend"}),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "End-to-end pipeline run duration",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}),
		LastRunMentions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_mentions",
			Help:      "Mentions produced by the most recent run",
		}),
		logger: logger.With("component", "metrics"),
	}
}

// RecordSource records one adapter's outcome.
func (m *Metrics) RecordSource(source string, records int, failed bool, d time.Duration) {
	if m == nil {
		return
	}
	m.SourceRecords.WithLabelValues(source).Add(float64(records))
	m.SourceDuration.WithLabelValues(source).Observe(d.Seconds())
	if failed {
		m.SourceFailures.WithLabelValues(source).Inc()
	}
}

// RecordSkipped records a record rejected by the normalizer.
func (m *Metrics) RecordSkipped(field string) {
	if m == nil {
		return
	}
	m.RecordsSkipped.WithLabelValues(field).Inc()
}

// RecordDedup records merged duplicates.
func (m *Metrics) RecordDedup(merged int) {
	if m == nil {
		return
	}
	m.DuplicatesTotal.Add(float64(merged))
}

// RecordEnrichment records the enrichment stage.
func (m *Metrics) RecordEnrichment(calls, failures, timeouts, hits int, d time.Duration) {
	if m == nil {
		return
	}
	m.EnrichCalls.WithLabelValues("ok").Add(float64(calls - failures - timeouts))
	m.EnrichCalls.WithLabelValues("failure").Add(float64(failures))
	m.EnrichCalls.WithLabelValues("timeout").Add(float64(timeouts))
	m.LocationHits.Add(float64(hits))
	m.EnrichDuration.Observe(d.Seconds())
}

// RecordExport records one exporter call.
func (m *Metrics) RecordExport(backend string, err error, d time.Duration) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.ExportTotal.WithLabelValues(backend, status).Inc()
	m.ExportDuration.WithLabelValues(backend).Observe(d.Seconds())
}

// RecordRun records a finished run.
func (m *Metrics) RecordRun(mentions int, d time.Duration) {
	if m == nil {
		return
	}
	m.LastRunMentions.Set(float64(mentions))
	m.RunDuration.Observe(d.Seconds())
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StartServer serves metrics on port until ctx is done.
func (m *Metrics) StartServer(ctx context.Context, port int, path string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	m.logger.Info("metrics server starting", "addr", srv.Addr, "path", path)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error("metrics server error", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	return srv
}
