// Package crawler turns one seed URL into a bounded, deduplicated graph of
// same-host pages.
package crawler

import (
	"context"
	"errors"
)

// ErrNotCrawlable is returned by Prepare when the seed's availability probe
// is rejected outright; the site cannot occupy a crawl slot.
var ErrNotCrawlable = errors.New("site not crawlable")

// FetchResult is the outcome of one HTTP request. A non-2xx status is a
// valid result, not an error; errors are reserved for transport failures.
type FetchResult struct {
	// URL is the final URL after redirects.
	URL         string
	StatusCode  int
	ContentType string
	Body        []byte
}

// Fetcher executes single HTTP requests on behalf of the engine.
type Fetcher interface {
	// Fetch performs a GET and returns the response body.
	Fetch(ctx context.Context, url string) (FetchResult, error)
	// Probe performs a lightweight HEAD existence check.
	Probe(ctx context.Context, url string) (FetchResult, error)
}

// RobotsPolicy answers whether a URL may be crawled.
type RobotsPolicy interface {
	Allowed(url string) bool
}

// FaultKind tags why a traversal branch was pruned.
type FaultKind string

const (
	FaultNetwork FaultKind = "network"
	FaultPolicy  FaultKind = "policy"
	FaultParse   FaultKind = "parse"
)

// Fault records one pruned branch for batch reporting at the end of a run.
type Fault struct {
	URL    string
	Kind   FaultKind
	Detail string
}
