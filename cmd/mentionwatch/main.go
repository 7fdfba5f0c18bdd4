package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ngly1/mentionwatch/internal/config"
	"github.com/ngly1/mentionwatch/internal/source"
	"github.com/ngly1/mentionwatch/internal/types"
)

var (
	cfgFile string
	verbose bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "mentionwatch",
		Short: "MentionWatch: keyword mention tracker",
		Long: `MentionWatch collects news mentions of a keyword from search result pages,
a news API, curated publication sites and RSS/Atom feeds, then reduces them
into one deduplicated, geo-enriched record set with summary tables.

Output: mention table plus per-dimension aggregates as CSV, JSON or JSONL,
optionally mirrored to MongoDB and PostgreSQL.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(sourcesCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// versionCmd creates the "version" subcommand.
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "MentionWatch %s\n", config.Version)
		},
	}
}

// sourcesCmd lists the adapters a run would use.
func sourcesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "List configured sources in collection order",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			lines := source.Describe(cfg)
			if len(lines) == 0 {
				return fmt.Errorf("%w: enable at least one of sources.search, news_api, sites, feeds", types.ErrNoSources)
			}
			for _, l := range lines {
				fmt.Fprintln(cmd.OutOrStdout(), l)
			}
			return nil
		},
	}
}

// configCmd prints the effective configuration with secrets masked.
func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			out, err := yaml.Marshal(redact(*cfg))
			if err != nil {
				return fmt.Errorf("encode config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}

// redact masks credentials. cfg is a copy; nested slices are not written.
func redact(cfg config.Config) config.Config {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "****"
	}
	cfg.Sources.NewsAPI.APIKey = mask(cfg.Sources.NewsAPI.APIKey)
	cfg.Enricher.LLM.APIKey = mask(cfg.Enricher.LLM.APIKey)
	cfg.Enricher.Cache.RedisURL = mask(cfg.Enricher.Cache.RedisURL)
	cfg.Storage.Mongo.URI = mask(cfg.Storage.Mongo.URI)
	cfg.Storage.Postgres.DSN = mask(cfg.Storage.Postgres.DSN)
	return cfg
}

// setupLogger creates a structured logger from the logging config.
func setupLogger(lc config.LoggingConfig) (*slog.Logger, func() error) {
	level := slog.LevelInfo
	switch strings.ToLower(lc.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if verbose {
		level = slog.LevelDebug
	}

	var (
		w       io.Writer = os.Stderr
		closeFn           = func() error { return nil }
	)
	switch lc.Output {
	case "", "stderr":
	case "stdout":
		w = os.Stdout
	default:
		f, err := os.OpenFile(lc.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err == nil {
			w = f
			closeFn = f.Close
		}
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.EqualFold(lc.Format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler), closeFn
}
