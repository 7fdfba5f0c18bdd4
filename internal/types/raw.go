package types

// SourceKind identifies the adapter family that produced a raw record.
type SourceKind string

const (
	SourceSearch  SourceKind = "search"
	SourceNewsAPI SourceKind = "news_api"
	SourceSite    SourceKind = "site"
	SourceFeed    SourceKind = "feed"
)

// RawCandidate is the flat boundary shape every raw record reduces to.
// URL is the only required field. PublishedAt is left as the source
// encoded it; the normalizer parses it.
type RawCandidate struct {
	Title       string
	URL         string
	PublishedAt string
	RawText     string
	Language    string
	Region      string
	SourceTag   string
}

// RawRecord is implemented by every adapter-specific raw shape.
type RawRecord interface {
	Kind() SourceKind
	Candidate() RawCandidate
}

// SearchResult is one organic hit from a search engine result page.
type SearchResult struct {
	Query    string
	Title    string
	Link     string
	Snippet  string
	Language string
	Tag      string
}

func (r SearchResult) Kind() SourceKind { return SourceSearch }

func (r SearchResult) Candidate() RawCandidate {
	return RawCandidate{
		Title:     r.Title,
		URL:       r.Link,
		RawText:   r.Snippet,
		Language:  r.Language,
		SourceTag: r.Tag,
	}
}

// NewsArticle is one article returned by a structured news API.
type NewsArticle struct {
	SourceName  string
	Author      string
	Title       string
	Description string
	URL         string
	PublishedAt string
	Content     string
	Language    string
	Country     string
	Tag         string
}

func (r NewsArticle) Kind() SourceKind { return SourceNewsAPI }

func (r NewsArticle) Candidate() RawCandidate {
	text := r.Content
	if len(r.Description) > len(text) {
		text = r.Description
	}
	return RawCandidate{
		Title:       r.Title,
		URL:         r.URL,
		PublishedAt: r.PublishedAt,
		RawText:     text,
		Language:    r.Language,
		Region:      r.Country,
		SourceTag:   r.Tag,
	}
}

// SiteArticle is an article page discovered on a curated publication site.
type SiteArticle struct {
	Site        string
	Title       string
	URL         string
	PublishedAt string
	Body        string
	Language    string
	Region      string
	Tag         string
}

func (r SiteArticle) Kind() SourceKind { return SourceSite }

func (r SiteArticle) Candidate() RawCandidate {
	return RawCandidate{
		Title:       r.Title,
		URL:         r.URL,
		PublishedAt: r.PublishedAt,
		RawText:     r.Body,
		Language:    r.Language,
		Region:      r.Region,
		SourceTag:   r.Tag,
	}
}

// FeedItem is one entry of an RSS or Atom feed.
type FeedItem struct {
	FeedTitle   string
	Title       string
	Link        string
	Published   string
	Description string
	Content     string
	Language    string
	Tag         string
}

func (r FeedItem) Kind() SourceKind { return SourceFeed }

func (r FeedItem) Candidate() RawCandidate {
	text := r.Content
	if text == "" {
		text = r.Description
	}
	return RawCandidate{
		Title:       r.Title,
		URL:         r.Link,
		PublishedAt: r.Published,
		RawText:     text,
		Language:    r.Language,
		SourceTag:   r.Tag,
	}
}
