// Package dedup collapses mentions that refer to the same article.
package dedup

import (
	"log/slog"
	"sort"

	"github.com/ngly1/mentionwatch/internal/types"
)

// Stats reports what a deduplication pass did.
type Stats struct {
	Input  int
	Output int
	// Merged is the number of input mentions folded into another.
	Merged int
}

// Deduplicator merges mentions sharing a canonical URL.
type Deduplicator struct {
	logger *slog.Logger
}

// New creates a Deduplicator.
func New(logger *slog.Logger) *Deduplicator {
	return &Deduplicator{logger: logger.With("component", "deduplicator")}
}

// Deduplicate returns at most one mention per canonical URL.
//
// The reduction is order-independent: duplicates are grouped by URL and
// sorted by Seq before merging, so any permutation of the input yields the
// same result. Inputs are not modified. Output is ordered by publication
// day (newest first), then URL.
func (d *Deduplicator) Deduplicate(mentions []*types.Mention) ([]*types.Mention, Stats) {
	groups := make(map[string][]*types.Mention, len(mentions))
	for _, m := range mentions {
		if m == nil {
			continue
		}
		groups[m.URL] = append(groups[m.URL], m)
	}

	out := make([]*types.Mention, 0, len(groups))
	for _, group := range groups {
		out = append(out, merge(group))
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].PublishedAt.Equal(out[j].PublishedAt) {
			return out[i].PublishedAt.After(out[j].PublishedAt)
		}
		return out[i].URL < out[j].URL
	})

	stats := Stats{Input: len(mentions), Output: len(out)}
	stats.Merged = stats.Input - stats.Output
	if stats.Merged > 0 {
		d.logger.Info("duplicates merged", "input", stats.Input, "output", stats.Output, "merged", stats.Merged)
	}
	return out, stats
}

// merge folds a group of mentions with the same URL into one.
//
// Date: earliest exact date; if every copy is approximate, the first-seen copy's date.
// Source tags: set union.
// Raw text: longest non-empty, first-seen on ties.
// Title, language, region: first-seen non-empty value.
func merge(group []*types.Mention) *types.Mention {
	sort.SliceStable(group, func(i, j int) bool { return group[i].Seq < group[j].Seq })

	first := group[0]
	merged := first.Clone()
	if len(group) == 1 {
		merged.SourceTags = unionTags(group)
		return merged
	}

	exact := false
	for _, m := range group {
		if m.ApproximateDate {
			continue
		}
		if !exact || m.PublishedAt.Before(merged.PublishedAt) {
			merged.PublishedAt = m.PublishedAt
		}
		exact = true
	}
	merged.ApproximateDate = !exact
	if !exact {
		merged.PublishedAt = first.PublishedAt
	}

	merged.RawText = ""
	merged.Title = ""
	merged.Language = ""
	merged.Region = ""
	for _, m := range group {
		if len(m.RawText) > len(merged.RawText) {
			merged.RawText = m.RawText
		}
		if merged.Title == "" && m.HasTitle() {
			merged.Title = m.Title
		}
		if merged.Language == "" {
			merged.Language = m.Language
		}
		if merged.Region == "" {
			merged.Region = m.Region
		}
	}
	if merged.Title == "" {
		merged.Title = types.NoTitle
	}

	merged.SourceTags = unionTags(group)
	merged.Seq = first.Seq
	return merged
}

func unionTags(group []*types.Mention) []string {
	set := make(map[string]struct{})
	for _, m := range group {
		for _, tag := range m.SourceTags {
			if tag != "" {
				set[tag] = struct{}{}
			}
		}
	}
	tags := make([]string, 0, len(set))
	for tag := range set {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}
