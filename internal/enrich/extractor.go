// Package enrich attaches geographic entities to mentions.
package enrich

import (
	"context"
)

// Entity kinds as labelled by common NER models.
const (
	KindGPE    = "GPE"
	KindLOC    = "LOC"
	KindPerson = "PERSON"
	KindOrg    = "ORG"
)

// Entity is one named entity recognized in a piece of text.
type Entity struct {
	Text string `json:"text"`
	Kind string `json:"label"`
}

// EntityExtractor recognizes named entities in free text.
// Implementations are constructed once per process and closed by their owner.
// Extract on empty text returns an empty slice and no error.
type EntityExtractor interface {
	Name() string
	Extract(ctx context.Context, text string) ([]Entity, error)
	Close() error
}
