// Package collyfetcher implements crawler.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/apetros/sitemapper/internal/crawler"
)

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
}

// Fetcher executes single-page requests through a Colly collector. Robots
// handling lives in the engine, so the collector's own enforcement is off.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
}

// New builds a Fetcher with a pooled HTTP transport.
func New(cfg Config) *Fetcher {
	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	c.AllowURLRevisit = true
	c.WithTransport(newHTTPTransport())
	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
	}
}

// Fetch implements crawler.Fetcher with a single GET.
func (f *Fetcher) Fetch(ctx context.Context, url string) (crawler.FetchResult, error) {
	return f.run(ctx, url, func(c *colly.Collector) error {
		return c.Visit(url)
	})
}

// Probe implements crawler.Fetcher with a HEAD existence check.
func (f *Fetcher) Probe(ctx context.Context, url string) (crawler.FetchResult, error) {
	return f.run(ctx, url, func(c *colly.Collector) error {
		return c.Head(url)
	})
}

func (f *Fetcher) run(
	ctx context.Context,
	url string,
	visit func(*colly.Collector) error,
) (crawler.FetchResult, error) {
	var (
		result   crawler.FetchResult
		captured bool
		fetchErr error
	)

	collector := f.buildCollector(&result, &captured, &fetchErr)

	done := make(chan error, 1)
	go func() {
		done <- visit(collector)
	}()

	select {
	case <-ctx.Done():
		return crawler.FetchResult{}, fmt.Errorf("fetch canceled: %w", ctx.Err())
	case err := <-done:
		// Colly reports non-2xx statuses as visit errors; a captured
		// response with a status code is still a valid result for us.
		if captured {
			return result, nil
		}
		if fetchErr != nil {
			return crawler.FetchResult{}, fmt.Errorf("fetch %s: %w", url, fetchErr)
		}
		if err != nil {
			return crawler.FetchResult{}, fmt.Errorf("visit %s: %w", url, err)
		}
		return result, nil
	}
}

func (f *Fetcher) buildCollector(
	result *crawler.FetchResult,
	captured *bool,
	fetchErr *error,
) *colly.Collector {
	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	timeout := f.cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	collector.SetRequestTimeout(timeout)

	collector.OnResponse(func(r *colly.Response) {
		*result = crawler.FetchResult{
			URL:         r.Request.URL.String(),
			StatusCode:  r.StatusCode,
			ContentType: r.Headers.Get("Content-Type"),
			Body:        append([]byte(nil), r.Body...),
		}
		*captured = true
	})

	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			*result = crawler.FetchResult{
				URL:         r.Request.URL.String(),
				StatusCode:  r.StatusCode,
				ContentType: r.Headers.Get("Content-Type"),
				Body:        append([]byte(nil), r.Body...),
			}
			*captured = true
			return
		}
		*fetchErr = err
	})

	return collector
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
