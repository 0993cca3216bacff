package websearch

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"
)

// Source is one external citation.
type Source struct {
	Title       string     `json:"title"`
	URL         string     `json:"url"`
	Snippet     string     `json:"snippet,omitempty"`
	Domain      string     `json:"domain"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
}

// Result is the outcome of one external search.
type Result struct {
	Query      string   `json:"query"`
	Content    string   `json:"content"`
	Sources    []Source `json:"sources"`
	Confidence float64  `json:"confidence"`
	Tokens     int      `json:"tokens"`
	Cached     bool     `json:"cached"`
	Skipped    bool     `json:"skipped"`
}

// Hints carry what the caller already knows about the query.
type Hints struct {
	InternalCoverage float64
	Category         string
	Freshness        float64
}

// Searcher is the external search contract used by the orchestrator.
// force bypasses the skip decision and any cache.
type Searcher interface {
	Search(ctx context.Context, query string, hints Hints, force bool) (*Result, error)
}

// Provider issues the raw call to a search backend.
type Provider interface {
	Name() string
	Query(ctx context.Context, query string) (*Result, error)
}

var ErrQuotaExceeded = errors.New("daily external search quota exceeded")

// Domain returns the host of rawURL without a leading "www.".
func Domain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

// IsTrusted reports whether domain equals or is a subdomain of a trusted domain.
func IsTrusted(domain string, trusted []string) bool {
	for _, t := range trusted {
		if domain == t || strings.HasSuffix(domain, "."+t) {
			return true
		}
	}
	return false
}

// Confidence scores a result: 0.5 base, +0.1 for content over 100 chars and
// again over 300, +0.2 for three or more sources (+0.1 for at least one),
// +0.1 for a trusted domain and +0.1 when the response used over 500 tokens.
func Confidence(res *Result, trusted []string) float64 {
	if res == nil {
		return 0
	}
	score := 0.5
	n := len([]rune(res.Content))
	if n > 100 {
		score += 0.1
	}
	if n > 300 {
		score += 0.1
	}
	switch {
	case len(res.Sources) >= 3:
		score += 0.2
	case len(res.Sources) >= 1:
		score += 0.1
	}
	for _, s := range res.Sources {
		if IsTrusted(s.Domain, trusted) {
			score += 0.1
			break
		}
	}
	if res.Tokens > 500 {
		score += 0.1
	}
	if score > 1 {
		score = 1
	}
	return score
}
