package pipeline

import (
	"time"

	"github.com/ngly1/mentionwatch/internal/dedup"
	"github.com/ngly1/mentionwatch/internal/enrich"
)

// SourceReport is what one adapter contributed to a run.
type SourceReport struct {
	Name     string
	Records  int
	Duration time.Duration
	// Err is a *types.SourceUnavailableError when the adapter failed.
	Err error
}

// Diagnostics collects the recoverable problems of a run.
type Diagnostics struct {
	RunID   string
	Sources []SourceReport

	RecordsReceived int
	RecordsSkipped  int
	// Skipped holds one *types.MalformedRecordError per dropped record.
	Skipped        []error
	SkippedByField map[string]int

	Dedup      dedup.Stats
	Enrichment enrich.Stats

	// Cancelled is set when the run context ended before collection finished.
	Cancelled bool
	Duration  time.Duration
}

// FailedSources returns the errors of adapters that failed.
func (d *Diagnostics) FailedSources() []error {
	var errs []error
	for _, s := range d.Sources {
		if s.Err != nil {
			errs = append(errs, s.Err)
		}
	}
	return errs
}

// SucceededSources counts adapters that finished without error.
func (d *Diagnostics) SucceededSources() int {
	var n int
	for _, s := range d.Sources {
		if s.Err == nil {
			n++
		}
	}
	return n
}
