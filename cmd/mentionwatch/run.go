package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ngly1/mentionwatch/internal/config"
	"github.com/ngly1/mentionwatch/internal/enrich"
	"github.com/ngly1/mentionwatch/internal/observability"
	"github.com/ngly1/mentionwatch/internal/pipeline"
	"github.com/ngly1/mentionwatch/internal/source"
	"github.com/ngly1/mentionwatch/internal/storage"
	"github.com/ngly1/mentionwatch/internal/types"
)

var (
	outputPath string
	outputType string
	keyword    string
	topN       int
	noEnrich   bool
)

// runCmd creates the "run" subcommand.
func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Collect, deduplicate, enrich and export mentions",
		Long: `Run every enabled source once, then normalize, deduplicate, geo-enrich and
aggregate the results and export them to the configured backends.

A run that finds nothing writes no output and exits successfully.`,
		Args: cobra.NoArgs,
		RunE: runRun,
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "output directory")
	cmd.Flags().StringVarP(&outputType, "format", "f", "", "comma-separated backends: csv, json, jsonl, mongodb, postgres")
	cmd.Flags().StringVarP(&keyword, "keyword", "k", "", "keyword to track")
	cmd.Flags().IntVar(&topN, "top", -1, "rows kept per aggregate table (0 = all, -1 = use config)")
	cmd.Flags().BoolVar(&noEnrich, "no-enrich", false, "skip geographic enrichment")

	return cmd
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	applyCLIOverrides(cfg)
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger, closeLog := setupLogger(cfg.Logging)
	defer closeLog()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received signal, finishing with partial results", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		metrics = observability.NewMetrics(logger)
		metrics.StartServer(ctx, cfg.Metrics.Port, cfg.Metrics.Path)
	}

	set, err := source.Build(cfg, logger)
	if err != nil {
		return fmt.Errorf("build sources: %w", err)
	}
	defer set.Close()

	var enricher *enrich.Enricher
	if cfg.Enricher.Enabled {
		extractor, err := enrich.NewExtractor(cfg.Enricher, logger)
		if err != nil {
			return fmt.Errorf("create extractor: %w", err)
		}
		defer extractor.Close()
		enricher = enrich.NewFromConfig(extractor, cfg.Enricher, logger)
	}

	pipe, err := pipeline.NewFromConfig(cfg, set.Adapters, enricher, metrics, logger)
	if err != nil {
		return fmt.Errorf("create pipeline: %w", err)
	}

	logger.Info("starting run",
		"keyword", cfg.Keyword,
		"sources", len(set.Adapters),
		"enrich", enricher != nil,
		"backends", cfg.Storage.Backends,
	)

	start := time.Now()
	res, err := pipe.Run(ctx)
	out := cmd.OutOrStdout()
	if errors.Is(err, types.ErrEmptyResult) {
		printSummary(out, res, nil, time.Since(start))
		fmt.Fprintln(out, "no mentions this run")
		return nil
	}
	if err != nil {
		return fmt.Errorf("run pipeline: %w", err)
	}

	// Export even when the run was interrupted.
	exportCtx := context.WithoutCancel(ctx)
	exporter, err := storage.New(exportCtx, cfg.Storage, logger, storage.WithMetrics(metrics))
	if err != nil {
		return fmt.Errorf("create storage: %w", err)
	}
	defer exporter.Close()

	exportErr := exporter.Export(exportCtx, res.Report)
	printSummary(out, res, exporter.Backends(), time.Since(start))
	if exportErr != nil {
		return fmt.Errorf("export: %w", exportErr)
	}
	return nil
}

func printSummary(w io.Writer, res *pipeline.Result, backends []string, elapsed time.Duration) {
	if res == nil {
		return
	}
	d := res.Diagnostics

	fmt.Fprintf(w, "\nRun %s complete in %s\n", d.RunID, elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "   Sources:   %d ok, %d failed\n", d.SucceededSources(), len(d.FailedSources()))
	for _, s := range d.Sources {
		status := "ok"
		if s.Err != nil {
			status = s.Err.Error()
		}
		fmt.Fprintf(w, "     %-10s %4d records  %s\n", s.Name, s.Records, status)
	}
	fmt.Fprintf(w, "   Records:   %d received, %d skipped, %d merged\n", d.RecordsReceived, d.RecordsSkipped, d.Dedup.Merged)
	fmt.Fprintf(w, "   Mentions:  %d\n", len(res.Report.Mentions))
	fmt.Fprintf(w, "   Locations: %d hits (%d failed, %d timed out)\n", len(res.Report.Hits), d.Enrichment.Failures, d.Enrichment.Timeouts)
	if d.Cancelled {
		fmt.Fprintln(w, "   Interrupted: results are partial")
	}
	if len(backends) > 0 {
		fmt.Fprintf(w, "   Output:    %s\n", strings.Join(backends, ", "))
	}
}

// applyCLIOverrides applies command-line flag values to the config.
func applyCLIOverrides(cfg *config.Config) {
	if outputPath != "" {
		cfg.Storage.OutputPath = outputPath
	}
	if outputType != "" {
		var backends []string
		for _, b := range strings.Split(outputType, ",") {
			if b = strings.ToLower(strings.TrimSpace(b)); b != "" {
				backends = append(backends, b)
			}
		}
		cfg.Storage.Backends = backends
	}
	if keyword != "" {
		cfg.Keyword = keyword
	}
	if topN >= 0 {
		cfg.Aggregator.TopN = topN
	}
	if noEnrich {
		cfg.Enricher.Enabled = false
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
}
