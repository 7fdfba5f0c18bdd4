package types

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for common failure modes.
var (
	ErrMissingURL     = errors.New("missing URL")
	ErrRelativeURL    = errors.New("relative URL")
	ErrInvalidURL     = errors.New("invalid URL")
	ErrUnparsableDate = errors.New("unparsable date")
	ErrEmptyResult    = errors.New("no mentions survived normalization and deduplication")
	ErrNoSources      = errors.New("no sources configured")
	ErrTimeout        = errors.New("request timed out")
	ErrMaxRetries     = errors.New("max retries exceeded")
	ErrEmptyResponse  = errors.New("empty response body")
)

// MalformedRecordError is returned by the normalizer for a single record
// that cannot become a Mention. The batch carries on without it.
type MalformedRecordError struct {
	Source string
	URL    string
	Field  string
	Value  string
	Err    error
}

func (e *MalformedRecordError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("malformed record from %s (%s=%q): %v", e.Source, e.Field, e.Value, e.Err)
	}
	return fmt.Sprintf("malformed record from %s (%s): %v", e.Source, e.Field, e.Err)
}

func (e *MalformedRecordError) Unwrap() error { return e.Err }

// EnrichmentFailure means the entity extractor could not process a mention.
// The mention keeps zero location hits.
type EnrichmentFailure struct {
	MentionID string
	Extractor string
	Err       error
}

func (e *EnrichmentFailure) Error() string {
	return fmt.Sprintf("enrichment of %s via %s failed: %v", e.MentionID, e.Extractor, e.Err)
}

func (e *EnrichmentFailure) Unwrap() error { return e.Err }

// EnrichmentTimeoutError means the extractor did not answer within the per-call timeout.
type EnrichmentTimeoutError struct {
	MentionID string
	Extractor string
	Timeout   time.Duration
}

func (e *EnrichmentTimeoutError) Error() string {
	return fmt.Sprintf("enrichment of %s via %s timed out after %s", e.MentionID, e.Extractor, e.Timeout)
}

func (e *EnrichmentTimeoutError) Unwrap() error { return ErrTimeout }

// SourceUnavailableError means an adapter failed as a whole.
type SourceUnavailableError struct {
	Source string
	// Records is how many records the adapter yielded before failing.
	Records int
	Err     error
}

func (e *SourceUnavailableError) Error() string {
	return fmt.Sprintf("source %s unavailable after %d records: %v", e.Source, e.Records, e.Err)
}

func (e *SourceUnavailableError) Unwrap() error { return e.Err }

// EmptyResultError signals a run that finished cleanly but produced nothing to export.
type EmptyResultError struct {
	RecordsReceived int
	RecordsSkipped  int
}

func (e *EmptyResultError) Error() string {
	return fmt.Sprintf("%v (received=%d skipped=%d)", ErrEmptyResult, e.RecordsReceived, e.RecordsSkipped)
}

func (e *EmptyResultError) Unwrap() error { return ErrEmptyResult }

// FetchError wraps errors that occur during fetching.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
	Retryable  bool
	RetryAfter time.Duration // populated from Retry-After header on HTTP 429
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch error for %s (status %d): %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch error for %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) IsRetryable() bool { return e.Retryable }

// ParseError wraps errors that occur while parsing a source payload.
type ParseError struct {
	URL      string
	Selector string
	Err      error
}

func (e *ParseError) Error() string {
	if e.Selector == "" {
		return fmt.Sprintf("parse error for %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("parse error for %s (selector=%q): %v", e.URL, e.Selector, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// StorageError wraps errors that occur during storage/export.
type StorageError struct {
	Backend string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error (%s): %v", e.Backend, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// PipelineError wraps errors that abort a pipeline stage.
type PipelineError struct {
	Stage string
	Err   error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline error at stage %q: %v", e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }
