// Package robots answers whether the crawler may visit a URL according to the
// site's robots.txt
package robots

import (
	"context"
	"net/url"

	"github.com/charmbracelet/log"
	"github.com/temoto/robotstxt"
)

// Fetch downloads a resource, typically browser.Session.FetchBinary
type Fetch func(ctx context.Context, url string) ([]byte, error)

// Policy decides whether a URL may be crawled
type Policy interface {
	Allowed(rawURL string) bool
}

// AllowAll permits everything
type AllowAll struct{}

// Allowed implements Policy
func (AllowAll) Allowed(string) bool { return true }

// Rules is a Policy backed by a parsed robots.txt
type Rules struct {
	group *robotstxt.Group
}

// Allowed implements Policy
func (r *Rules) Allowed(rawURL string) bool {
	if r == nil || r.group == nil {
		return true
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return r.group.Test(path)
}

// Load fetches robots.txt from baseURL. When the file cannot be fetched or
// parsed everything is allowed, matching how browsers treat a missing file.
func Load(ctx context.Context, fetch Fetch, baseURL, userAgent string, logger *log.Logger) Policy {
	if logger == nil {
		logger = log.Default()
	}
	logger = logger.WithPrefix("robots")

	base, err := url.Parse(baseURL)
	if err != nil {
		logger.Warn("Invalid base URL, robots.txt not consulted", "base", baseURL, "error", err)
		return AllowAll{}
	}
	robotsURL := base.ResolveReference(&url.URL{Path: "/robots.txt"}).String()

	body, err := fetch(ctx, robotsURL)
	if err != nil {
		logger.Warn("robots.txt unavailable, allowing all", "url", robotsURL, "error", err)
		return AllowAll{}
	}
	return Parse(body, userAgent, logger)
}

// Parse builds a Policy from a robots.txt body
func Parse(body []byte, userAgent string, logger *log.Logger) Policy {
	if logger == nil {
		logger = log.Default()
	}
	data, err := robotstxt.FromBytes(body)
	if err != nil {
		logger.Warn("robots.txt unparseable, allowing all", "error", err)
		return AllowAll{}
	}
	return &Rules{group: data.FindGroup(userAgent)}
}
