package types

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// NoTitle is the title given to mentions whose source supplied none.
const NoTitle = "No Title"

// DateLayout is the day-precision layout used for dates in exported tables.
const DateLayout = "2006-01-02"

// Mention is a single normalized observation of the tracked keyword.
type Mention struct {
	// ID is derived from the canonical URL.
	ID string `json:"id" bson:"_id"`

	Title string `json:"title" bson:"title"`

	// URL is the canonical absolute URL and the deduplication key.
	URL string `json:"url" bson:"url"`

	// PublishedAt is the publisher's calendar day, stored as midnight UTC.
	PublishedAt time.Time `json:"published_at" bson:"published_at"`

	// ApproximateDate is true when no source supplied a timestamp and
	// PublishedAt holds the normalization day instead.
	ApproximateDate bool `json:"approximate_date" bson:"approximate_date"`

	Language string `json:"language,omitempty" bson:"language,omitempty"`
	Region   string `json:"region,omitempty" bson:"region,omitempty"`

	// SourceTags is a sorted set of adapter tags that reported this article.
	SourceTags []string `json:"source_tags" bson:"source_tags"`

	RawText string `json:"raw_text,omitempty" bson:"raw_text,omitempty"`

	// Seq is the submission order assigned at normalization time. It breaks
	// ties during deduplication so results do not depend on goroutine timing.
	Seq int64 `json:"-" bson:"-"`
}

// HasTitle reports whether the mention carries a source-provided title.
func (m *Mention) HasTitle() bool {
	return m.Title != "" && m.Title != NoTitle
}

// HasSourceTag reports whether tag is among the mention's source tags.
func (m *Mention) HasSourceTag(tag string) bool {
	i := sort.SearchStrings(m.SourceTags, tag)
	return i < len(m.SourceTags) && m.SourceTags[i] == tag
}

// Day returns the publication day as YYYY-MM-DD.
func (m *Mention) Day() string {
	return m.PublishedAt.UTC().Format(DateLayout)
}

// Clone creates a deep copy of the mention.
func (m *Mention) Clone() *Mention {
	clone := *m
	clone.SourceTags = append([]string(nil), m.SourceTags...)
	return &clone
}

// LocationHit is one geographic entity recognized in a mention's text.
// MentionID is a lookup key only; hits do not own their mention.
type LocationHit struct {
	MentionID    string `json:"mention_id" bson:"mention_id"`
	LocationName string `json:"location_name" bson:"location_name"`
	LocationKind string `json:"location_kind" bson:"location_kind"`
}

// Dimension names an aggregation axis.
type Dimension string

const (
	DimensionLocation Dimension = "location"
	DimensionDate     Dimension = "date"
	DimensionSource   Dimension = "source"
	DimensionLanguage Dimension = "language"
)

// AllDimensions lists every supported dimension in export order.
var AllDimensions = []Dimension{DimensionLocation, DimensionDate, DimensionSource, DimensionLanguage}

// ParseDimension maps a config string to a Dimension.
func ParseDimension(s string) (Dimension, bool) {
	d := Dimension(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllDimensions {
		if d == known {
			return d, true
		}
	}
	return "", false
}

// AggregateRow is one derived (value, count) pair along a dimension.
type AggregateRow struct {
	Dimension Dimension `json:"dimension" bson:"dimension"`
	Value     string    `json:"value" bson:"value"`
	Count     int       `json:"count" bson:"count"`
}

// Report is the complete table set produced by one run.
type Report struct {
	RunID       string                       `json:"run_id" bson:"run_id"`
	Keyword     string                       `json:"keyword" bson:"keyword"`
	GeneratedAt time.Time                    `json:"generated_at" bson:"generated_at"`
	Mentions    []*Mention                   `json:"mentions" bson:"mentions"`
	Hits        []LocationHit                `json:"location_hits" bson:"location_hits"`
	Aggregates  map[Dimension][]AggregateRow `json:"aggregates" bson:"aggregates"`
}

// MentionColumns is the stable header of the exported mention table.
var MentionColumns = []string{"date", "title", "url", "language", "region", "locations", "source_tags", "approximate_date"}

// MentionRow is the flat export form of a mention.
type MentionRow struct {
	Date            string   `json:"date"`
	Title           string   `json:"title"`
	URL             string   `json:"url"`
	Language        string   `json:"language"`
	Region          string   `json:"region"`
	Locations       []string `json:"locations"`
	SourceTags      []string `json:"source_tags"`
	ApproximateDate bool     `json:"approximate_date"`
}

// Record returns the row's values in MentionColumns order.
func (r MentionRow) Record() []string {
	return []string{
		r.Date,
		r.Title,
		r.URL,
		r.Language,
		r.Region,
		strings.Join(r.Locations, "; "),
		strings.Join(r.SourceTags, "; "),
		strconv.FormatBool(r.ApproximateDate),
	}
}

// Rows flattens the report's mentions, attaching the distinct location
// names found for each in first-seen order.
func (r *Report) Rows() []MentionRow {
	locations := make(map[string][]string, len(r.Mentions))
	seen := make(map[[2]string]struct{}, len(r.Hits))
	for _, h := range r.Hits {
		key := [2]string{h.MentionID, h.LocationName}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		locations[h.MentionID] = append(locations[h.MentionID], h.LocationName)
	}

	rows := make([]MentionRow, 0, len(r.Mentions))
	for _, m := range r.Mentions {
		rows = append(rows, MentionRow{
			Date:            m.Day(),
			Title:           m.Title,
			URL:             m.URL,
			Language:        m.Language,
			Region:          m.Region,
			Locations:       locations[m.ID],
			SourceTags:      m.SourceTags,
			ApproximateDate: m.ApproximateDate,
		})
	}
	return rows
}

// IsEmpty reports whether the report has no mentions.
func (r *Report) IsEmpty() bool {
	return r == nil || len(r.Mentions) == 0
}
