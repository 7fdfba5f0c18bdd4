package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngly1/mentionwatch/internal/types"
)

func TestCanonicalize(t *testing.T) {
	c := NewCanonicalizer()

	tests := []struct {
		input    string
		expected string
	}{
		{"https://example.com", "https://example.com/"},
		{"HTTPS://Example.COM:443/news/ngly1/", "https://example.com/news/ngly1"},
		{"http://example.com:80/a#section", "http://example.com/a"},
		{"http://example.com:8080/a", "http://example.com:8080/a"},
		{"https://example.com/a?b=2&a=1", "https://example.com/a?a=1&b=2"},
		{"https://example.com/a?utm_source=twitter", "https://example.com/a"},
		{"https://example.com/a?utm_medium=x&UTM_Campaign=y&id=7", "https://example.com/a?id=7"},
		{"https://example.com/a?fbclid=abc&gclid=def&page=2", "https://example.com/a?page=2"},
		{"  https://example.com/a  ", "https://example.com/a"},
		{"https://example.com/a%2Fb/", "https://example.com/a%2Fb"},
		{"https://example.com/a%2Fb", "https://example.com/a%2Fb"},
	}

	for _, tt := range tests {
		got, err := c.Canonicalize(tt.input)
		require.NoError(t, err, tt.input)
		assert.Equal(t, tt.expected, got, tt.input)
	}
}

func TestCanonicalizeExtraTrackingParams(t *testing.T) {
	c := NewCanonicalizer("src", " CMP ")

	got, err := c.Canonicalize("https://example.com/a?src=rss&cmp=1&q=ngly1")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/a?q=ngly1", got)
}

func TestCanonicalizeRejects(t *testing.T) {
	c := NewCanonicalizer()

	tests := []struct {
		input string
		err   error
	}{
		{"", types.ErrMissingURL},
		{"   ", types.ErrMissingURL},
		{"/news/ngly1", types.ErrRelativeURL},
		{"//example.com/a", types.ErrRelativeURL},
		{"news/ngly1.html", types.ErrRelativeURL},
		{"ftp://example.com/a", types.ErrInvalidURL},
		{"http://[::1", types.ErrInvalidURL},
	}

	for _, tt := range tests {
		_, err := c.Canonicalize(tt.input)
		assert.ErrorIs(t, err, tt.err, tt.input)
	}
}

func TestMentionIDStable(t *testing.T) {
	a := MentionID("https://example.com/a")
	b := MentionID("https://example.com/a")
	c := MentionID("https://example.com/b")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 32)
}

func BenchmarkCanonicalize(b *testing.B) {
	c := NewCanonicalizer()
	for i := 0; i < b.N; i++ {
		_, _ = c.Canonicalize("https://Example.com/news/ngly1/?utm_source=x&b=2&a=1#top")
	}
}
