package normalize

import (
	"strings"
	"time"
)

// builtinDateFormats are tried in order. Layouts carrying a zone keep the
// calendar day in that zone.
var builtinDateFormats = []string{
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.RFC1123,
	time.RFC1123Z,
	time.RFC822,
	time.RFC822Z,
	"Mon, 2 Jan 2006 15:04:05 MST",
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
	"2 Jan 2006",
	"2006/01/02",
}

// DateParser parses the date encodings sources hand us.
type DateParser struct {
	formats []string
}

// NewDateParser creates a DateParser with the built-in formats followed by extra.
func NewDateParser(extra ...string) *DateParser {
	formats := make([]string, 0, len(builtinDateFormats)+len(extra))
	formats = append(formats, builtinDateFormats...)
	for _, f := range extra {
		if f = strings.TrimSpace(f); f != "" {
			formats = append(formats, f)
		}
	}
	return &DateParser{formats: formats}
}

// Parse returns the calendar day the value refers to, as midnight UTC.
func (p *DateParser) Parse(value string) (time.Time, bool) {
	s := strings.TrimSpace(value)
	if s == "" {
		return time.Time{}, false
	}
	for _, format := range p.formats {
		t, err := time.Parse(format, s)
		if err == nil {
			return Day(t), true
		}
	}
	return time.Time{}, false
}

// Day returns midnight UTC of t's calendar day in t's own location.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
