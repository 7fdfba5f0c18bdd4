package source

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ngly1/mentionwatch/internal/fetcher"
	"github.com/ngly1/mentionwatch/internal/types"
)

// robotsAgent is the product token matched against User-agent lines.
const robotsAgent = "mentionwatch"

// robotsRules is the parsed robots.txt group that applies to us.
type robotsRules struct {
	allow      []string
	disallow   []string
	crawlDelay time.Duration
}

// robotsPolicy fetches robots.txt once per origin and answers whether a
// page may be crawled. An unreachable or missing robots.txt allows everything.
type robotsPolicy struct {
	fetcher fetcher.Fetcher
	mu      sync.Mutex
	rules   map[string]*robotsRules
}

func newRobotsPolicy(f fetcher.Fetcher) *robotsPolicy {
	return &robotsPolicy{fetcher: f, rules: make(map[string]*robotsRules)}
}

// Allowed reports whether rawURL may be fetched.
func (p *robotsPolicy) Allowed(ctx context.Context, rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return true
	}
	rules := p.lookup(ctx, u)
	if rules == nil {
		return true
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return rules.allows(path)
}

// CrawlDelay returns the Crawl-delay declared for rawURL's origin.
func (p *robotsPolicy) CrawlDelay(ctx context.Context, rawURL string) time.Duration {
	u, err := url.Parse(rawURL)
	if err != nil {
		return 0
	}
	if rules := p.lookup(ctx, u); rules != nil {
		return rules.crawlDelay
	}
	return 0
}

func (p *robotsPolicy) lookup(ctx context.Context, u *url.URL) *robotsRules {
	origin := u.Scheme + "://" + u.Host

	p.mu.Lock()
	rules, ok := p.rules[origin]
	p.mu.Unlock()
	if ok {
		return rules
	}

	rules = p.fetch(ctx, origin)
	p.mu.Lock()
	p.rules[origin] = rules
	p.mu.Unlock()
	return rules
}

func (p *robotsPolicy) fetch(ctx context.Context, origin string) *robotsRules {
	req, err := types.NewRequest(origin+"/robots.txt", "robots")
	if err != nil {
		return nil
	}
	req.MaxRetries = 0
	resp, err := p.fetcher.Fetch(ctx, req)
	if err != nil || resp.StatusCode != 200 {
		return nil
	}
	return parseRobots(string(resp.Body), robotsAgent)
}

// parseRobots returns the rules of the group naming agent, or of the "*"
// group when no group names it.
func parseRobots(content, agent string) *robotsRules {
	var (
		specific, wildcard *robotsRules
		current            []*robotsRules
		inAgents           bool
	)

	for _, line := range strings.Split(content, "\n") {
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)

		if key == "user-agent" {
			if !inAgents {
				current = nil
			}
			inAgents = true
			ua := strings.ToLower(value)
			switch {
			case ua == "*":
				if wildcard == nil {
					wildcard = &robotsRules{}
				}
				current = append(current, wildcard)
			case productToken(ua) == agent:
				if specific == nil {
					specific = &robotsRules{}
				}
				current = append(current, specific)
			}
			continue
		}
		inAgents = false

		for _, r := range current {
			switch key {
			case "allow":
				if value != "" {
					r.allow = append(r.allow, value)
				}
			case "disallow":
				if value != "" {
					r.disallow = append(r.disallow, value)
				}
			case "crawl-delay":
				if secs, err := strconv.ParseFloat(value, 64); err == nil && secs > 0 {
					r.crawlDelay = time.Duration(secs * float64(time.Second))
				}
			}
		}
	}

	if specific != nil {
		return specific
	}
	return wildcard
}

// productToken strips a version and comment from a User-agent value,
// so "MentionWatch/1.0 (+https://example.org)" becomes "mentionwatch".
func productToken(ua string) string {
	ua = strings.ToLower(strings.TrimSpace(ua))
	if i := strings.IndexAny(ua, "/ \t("); i >= 0 {
		ua = ua[:i]
	}
	return ua
}

// allows applies the longest matching rule; Allow wins a tie.
func (r *robotsRules) allows(path string) bool {
	best, allowed := -1, true
	for _, pat := range r.disallow {
		if n := matchRobots(pat, path); n > best {
			best, allowed = n, false
		}
	}
	for _, pat := range r.allow {
		if n := matchRobots(pat, path); n >= best && n >= 0 {
			best, allowed = n, true
		}
	}
	return allowed
}

// matchRobots returns the pattern length if pattern matches path, else -1.
// Patterns support * and a trailing $.
func matchRobots(pattern, path string) int {
	anchored := strings.HasSuffix(pattern, "$")
	parts := strings.Split(strings.TrimSuffix(pattern, "$"), "*")
	if !strings.HasPrefix(path, parts[0]) {
		return -1
	}
	pos := len(parts[0])
	last := len(parts) - 1
	for i := 1; i <= last; i++ {
		if i == last && anchored {
			if !strings.HasSuffix(path[pos:], parts[i]) {
				return -1
			}
			return len(pattern)
		}
		j := strings.Index(path[pos:], parts[i])
		if j < 0 {
			return -1
		}
		pos += j + len(parts[i])
	}
	if anchored && pos != len(path) {
		return -1
	}
	return len(pattern)
}
