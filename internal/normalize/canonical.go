package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/ngly1/mentionwatch/internal/types"
)

// DefaultTrackingParams are query keys removed during canonicalization.
// Any key starting with "utm_" is removed as well.
var DefaultTrackingParams = []string{
	"gclid", "fbclid", "dclid", "msclkid", "yclid", "igshid",
	"mc_cid", "mc_eid", "_hsenc", "_hsmi", "ref_src",
}

// Canonicalizer rewrites URLs into the form used as the deduplication key.
type Canonicalizer struct {
	tracking map[string]struct{}
}

// NewCanonicalizer creates a Canonicalizer stripping the default tracking
// parameters plus extra.
func NewCanonicalizer(extra ...string) *Canonicalizer {
	c := &Canonicalizer{tracking: make(map[string]struct{}, len(DefaultTrackingParams)+len(extra))}
	for _, p := range DefaultTrackingParams {
		c.tracking[p] = struct{}{}
	}
	for _, p := range extra {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			c.tracking[p] = struct{}{}
		}
	}
	return c
}

func (c *Canonicalizer) isTracking(key string) bool {
	k := strings.ToLower(key)
	if strings.HasPrefix(k, "utm_") {
		return true
	}
	_, ok := c.tracking[k]
	return ok
}

// Canonicalize normalizes an absolute URL:
// - lowercases scheme and host
// - removes fragment
// - removes default ports (80 for http, 443 for https)
// - drops tracking query parameters and sorts the rest
// - removes trailing slash (except root)
//
// Relative and non-http(s) URLs are rejected.
func (c *Canonicalizer) Canonicalize(rawURL string) (string, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return "", types.ErrMissingURL
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", types.ErrInvalidURL, err)
	}
	if !u.IsAbs() {
		return "", types.ErrRelativeURL
	}

	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: unsupported scheme %q", types.ErrInvalidURL, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: missing host", types.ErrInvalidURL)
	}
	u.Host = strings.ToLower(u.Host)
	u.User = nil

	u.Fragment = ""
	u.RawFragment = ""

	host := u.Hostname()
	port := u.Port()
	if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		u.Host = host
	}

	if u.RawQuery != "" {
		params := u.Query()
		keys := make([]string, 0, len(params))
		for k := range params {
			if c.isTracking(k) {
				continue
			}
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var sorted []string
		for _, k := range keys {
			vals := params[k]
			sort.Strings(vals)
			for _, v := range vals {
				sorted = append(sorted, url.QueryEscape(k)+"="+url.QueryEscape(v))
			}
		}
		u.RawQuery = strings.Join(sorted, "&")
	}
	u.ForceQuery = false

	if u.Path != "/" && strings.HasSuffix(u.Path, "/") {
		u.Path = strings.TrimRight(u.Path, "/")
		u.RawPath = strings.TrimRight(u.RawPath, "/")
	}
	if u.Path == "" {
		u.Path = "/"
	}

	return u.String(), nil
}

// MentionID derives a stable identity from a canonical URL.
func MentionID(canonicalURL string) string {
	h := sha256.Sum256([]byte(canonicalURL))
	return hex.EncodeToString(h[:16]) // 128-bit hash
}
