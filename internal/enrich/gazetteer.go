package enrich

import (
	"bufio"
	"context"
	_ "embed"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

//go:embed places.txt
var defaultPlaces string

// GazetteerExtractor recognizes place names from a fixed list.
// Matching is case-sensitive and prefers the longest name at each position,
// so "Mexico City" wins over "Mexico". Names are returned as they appear in the text.
type GazetteerExtractor struct {
	pattern *regexp.Regexp
	kinds   map[string]string
}

// NewGazetteerExtractor builds an extractor over the embedded place list.
func NewGazetteerExtractor() (*GazetteerExtractor, error) {
	return NewGazetteerExtractorFromList(defaultPlaces)
}

// NewGazetteerExtractorFromList builds an extractor from "name<TAB>kind" lines.
// Blank lines and lines starting with '#' are ignored. A line without a kind is a GPE.
func NewGazetteerExtractorFromList(list string) (*GazetteerExtractor, error) {
	kinds := make(map[string]string)
	names := make([]string, 0, 256)

	sc := bufio.NewScanner(strings.NewReader(list))
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		name, kind, _ := strings.Cut(text, "\t")
		name = strings.TrimSpace(name)
		kind = strings.ToUpper(strings.TrimSpace(kind))
		if name == "" {
			return nil, fmt.Errorf("gazetteer line %d: empty name", line)
		}
		if kind == "" {
			kind = KindGPE
		}
		if _, ok := kinds[name]; ok {
			continue
		}
		kinds[name] = kind
		names = append(names, name)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read gazetteer: %w", err)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("gazetteer is empty")
	}

	// Longer names first: regexp alternation is leftmost-first.
	sort.Slice(names, func(i, j int) bool {
		if len(names[i]) == len(names[j]) {
			return names[i] < names[j]
		}
		return len(names[i]) > len(names[j])
	})
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = regexp.QuoteMeta(n)
	}

	pattern, err := regexp.Compile(`(?:^|[^\p{L}\p{N}])(` + strings.Join(quoted, "|") + `)(?:[^\p{L}\p{N}]|$)`)
	if err != nil {
		return nil, fmt.Errorf("compile gazetteer: %w", err)
	}
	return &GazetteerExtractor{pattern: pattern, kinds: kinds}, nil
}

func (g *GazetteerExtractor) Name() string { return "gazetteer" }

// Extract returns one entity per occurrence, in text order.
func (g *GazetteerExtractor) Extract(ctx context.Context, text string) ([]Entity, error) {
	entities := []Entity{}
	pos := 0
	for pos < len(text) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		loc := g.pattern.FindStringSubmatchIndex(text[pos:])
		if loc == nil {
			break
		}
		name := text[pos+loc[2] : pos+loc[3]]
		entities = append(entities, Entity{Text: name, Kind: g.kinds[name]})
		// Resume right after the name so a shared delimiter can open the next match.
		pos += loc[3]
	}
	return entities, nil
}

func (g *GazetteerExtractor) Close() error { return nil }
