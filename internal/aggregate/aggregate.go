// Package aggregate derives summary tables from an enriched mention set.
// Tables are recomputed on demand and never feed back into the mentions.
package aggregate

import (
	"sort"

	"github.com/ngly1/mentionwatch/internal/types"
)

// UnknownLanguage buckets mentions without a language.
const UnknownLanguage = "unknown"

// Aggregator computes per-dimension counts.
type Aggregator struct {
	topN int
}

// New creates an Aggregator. topN truncates every non-date table; 0 keeps all rows.
func New(topN int) *Aggregator {
	return &Aggregator{topN: topN}
}

// Compute builds one table per requested dimension.
func (a *Aggregator) Compute(mentions []*types.Mention, hits []types.LocationHit, dims []types.Dimension) map[types.Dimension][]types.AggregateRow {
	out := make(map[types.Dimension][]types.AggregateRow, len(dims))
	for _, d := range dims {
		var rows []types.AggregateRow
		switch d {
		case types.DimensionLocation:
			rows = ByLocation(mentions, hits)
		case types.DimensionDate:
			rows = ByDate(mentions)
		case types.DimensionSource:
			rows = BySource(mentions)
		case types.DimensionLanguage:
			rows = ByLanguage(mentions)
		default:
			continue
		}
		if d != types.DimensionDate {
			rows = TopN(rows, a.topN)
		}
		out[d] = rows
	}
	return out
}

// ByLocation counts distinct mentions per location name. Hits whose mention
// is not in the set are ignored.
func ByLocation(mentions []*types.Mention, hits []types.LocationHit) []types.AggregateRow {
	known := make(map[string]struct{}, len(mentions))
	for _, m := range mentions {
		known[m.ID] = struct{}{}
	}

	perLocation := make(map[string]map[string]struct{})
	for _, h := range hits {
		if _, ok := known[h.MentionID]; !ok {
			continue
		}
		ids, ok := perLocation[h.LocationName]
		if !ok {
			ids = make(map[string]struct{})
			perLocation[h.LocationName] = ids
		}
		ids[h.MentionID] = struct{}{}
	}

	counts := make(map[string]int, len(perLocation))
	for name, ids := range perLocation {
		counts[name] = len(ids)
	}
	return rank(types.DimensionLocation, counts)
}

// ByDate counts mentions per publication day, oldest first.
func ByDate(mentions []*types.Mention) []types.AggregateRow {
	counts := make(map[string]int)
	for _, m := range mentions {
		counts[m.Day()]++
	}
	rows := toRows(types.DimensionDate, counts)
	sort.Slice(rows, func(i, j int) bool { return rows[i].Value < rows[j].Value })
	return rows
}

// BySource counts mentions per source tag. A mention reported by two
// adapters counts once for each.
func BySource(mentions []*types.Mention) []types.AggregateRow {
	counts := make(map[string]int)
	for _, m := range mentions {
		for _, tag := range m.SourceTags {
			counts[tag]++
		}
	}
	return rank(types.DimensionSource, counts)
}

// ByLanguage counts mentions per language.
func ByLanguage(mentions []*types.Mention) []types.AggregateRow {
	counts := make(map[string]int)
	for _, m := range mentions {
		lang := m.Language
		if lang == "" {
			lang = UnknownLanguage
		}
		counts[lang]++
	}
	return rank(types.DimensionLanguage, counts)
}

// TopN returns the first n rows of a ranked table; n <= 0 keeps all rows.
func TopN(rows []types.AggregateRow, n int) []types.AggregateRow {
	if n <= 0 || len(rows) <= n {
		return rows
	}
	return rows[:n]
}

// rank orders rows by count descending, then value ascending.
func rank(dim types.Dimension, counts map[string]int) []types.AggregateRow {
	rows := toRows(dim, counts)
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count != rows[j].Count {
			return rows[i].Count > rows[j].Count
		}
		return rows[i].Value < rows[j].Value
	})
	return rows
}

func toRows(dim types.Dimension, counts map[string]int) []types.AggregateRow {
	rows := make([]types.AggregateRow, 0, len(counts))
	for v, c := range counts {
		rows = append(rows, types.AggregateRow{Dimension: dim, Value: v, Count: c})
	}
	return rows
}
