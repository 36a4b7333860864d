package crawler

import (
	"context"
	"net/url"

	"github.com/temoto/robotstxt"
	"go.uber.org/zap"
)

// allowAllPolicy is used whenever robots.txt is unavailable or malformed.
// A site that does not serve usable robots rules gets crawled in full.
type allowAllPolicy struct{}

func (allowAllPolicy) Allowed(string) bool { return true }

// robotsGuard answers Allowed from a parsed robots.txt group.
type robotsGuard struct {
	group *robotstxt.Group
}

func (g robotsGuard) Allowed(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	path := u.Path
	if path == "" {
		path = "/"
	}
	return g.group.Test(path)
}

// loadRobots fetches and parses /robots.txt for the seed's host. Any fetch
// failure, non-200 status, or parse error degrades to an allow-all policy.
func (e *Engine) loadRobots(ctx context.Context, seed *url.URL) RobotsPolicy {
	robotsURL := &url.URL{Scheme: seed.Scheme, Host: seed.Host, Path: "/robots.txt"}

	res, err := e.fetcher.Fetch(ctx, robotsURL.String())
	if err != nil {
		e.logger.Warn("robots.txt fetch failed, allowing all paths",
			zap.String("host", seed.Host),
			zap.Error(err))
		return allowAllPolicy{}
	}
	if res.StatusCode != 200 {
		e.logger.Debug("robots.txt not served, allowing all paths",
			zap.String("host", seed.Host),
			zap.Int("status", res.StatusCode))
		return allowAllPolicy{}
	}

	data, err := robotstxt.FromBytes(res.Body)
	if err != nil {
		e.logger.Warn("robots.txt unparseable, allowing all paths",
			zap.String("host", seed.Host),
			zap.Error(err))
		return allowAllPolicy{}
	}
	return robotsGuard{group: data.FindGroup(e.userAgent)}
}
