package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/apetros/sitemapper/internal/graph"
	"github.com/apetros/sitemapper/internal/metrics"
	"github.com/apetros/sitemapper/internal/store"
)

var (
	errUnsupportedScheme = errors.New("unsupported scheme")
	errMissingHost       = errors.New("missing host")
)

// Job describes a single crawl: where to start, how deep to go, and how
// many pages of the target site may be in flight at once.
type Job struct {
	Seed            string
	MaxDepth        int
	HostConcurrency int
}

// Config tunes an Engine.
type Config struct {
	UserAgent string
	// HostRPS caps the request rate against the target host. Zero
	// disables rate limiting.
	HostRPS float64
	// Exclusions are path substrings that mark a URL as a non-page
	// resource. Nil selects the default set.
	Exclusions []string
}

// Engine turns a seed URL into a stored link graph. It is safe for use by
// concurrent jobs; per-run state lives in Run.
type Engine struct {
	fetcher    Fetcher
	store      *store.Store
	logger     *zap.Logger
	userAgent  string
	hostRPS    float64
	exclusions []string
	denyPaths  []string
}

// New builds an Engine backed by the given fetcher and store.
func New(fetcher Fetcher, st *store.Store, cfg Config, logger *zap.Logger) *Engine {
	exclusions := cfg.Exclusions
	if exclusions == nil {
		exclusions = defaultExclusions
	}
	return &Engine{
		fetcher:    fetcher,
		store:      st,
		logger:     logger,
		userAgent:  cfg.UserAgent,
		hostRPS:    cfg.HostRPS,
		exclusions: exclusions,
		denyPaths:  defaultDenyPaths,
	}
}

// Run holds the state of one crawl between Prepare and Persist.
type Run struct {
	engine   *Engine
	seed     *url.URL
	maxDepth int
	gate     *semaphore.Weighted
	limiter  *rate.Limiter
	robots   RobotsPolicy
	visited  *visitTracker
	graph    *graph.Graph
	wg       sync.WaitGroup

	faultMu sync.Mutex
	faults  []Fault
}

// Faults returns the branches pruned during Traverse, tagged by cause.
func (r *Run) Faults() []Fault {
	r.faultMu.Lock()
	defer r.faultMu.Unlock()
	out := make([]Fault, len(r.faults))
	copy(out, r.faults)
	return out
}

func (r *Run) recordFault(url string, kind FaultKind, detail string) {
	r.faultMu.Lock()
	r.faults = append(r.faults, Fault{URL: url, Kind: kind, Detail: detail})
	r.faultMu.Unlock()
}

// Host returns the authority the run is scoped to.
func (r *Run) Host() string { return r.seed.Host }

// Prepare validates the seed, loads the host's robots policy, and probes
// the seed with a HEAD request. A failing probe means the site cannot be
// crawled and the job should not start; such failures wrap ErrNotCrawlable.
func (e *Engine) Prepare(ctx context.Context, job Job) (*Run, error) {
	seed, err := parseSeed(job.Seed)
	if err != nil {
		return nil, fmt.Errorf("invalid seed %q: %w", job.Seed, err)
	}

	robots := e.loadRobots(ctx, seed)

	probe, err := e.fetcher.Probe(ctx, seed.String())
	if err != nil {
		return nil, fmt.Errorf("%w: probe %s: %v", ErrNotCrawlable, seed, err)
	}
	if probe.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: %s answered %d", ErrNotCrawlable, seed, probe.StatusCode)
	}

	hostConcurrency := job.HostConcurrency
	if hostConcurrency < 1 {
		hostConcurrency = 1
	}
	var limiter *rate.Limiter
	if e.hostRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(e.hostRPS), 1)
	}

	return &Run{
		engine:   e,
		seed:     seed,
		maxDepth: job.MaxDepth,
		gate:     semaphore.NewWeighted(int64(hostConcurrency)),
		limiter:  limiter,
		robots:   robots,
		visited:  newVisitTracker(),
		graph:    graph.New(),
	}, nil
}

// Traverse walks the site breadth-first from the seed, one goroutine per
// page, and returns the accumulated graph. It blocks until every branch
// has finished or the context ended.
func (r *Run) Traverse(ctx context.Context) *graph.Graph {
	r.wg.Add(1)
	go r.visit(ctx, r.seed.String(), 0)
	r.wg.Wait()
	return r.graph
}

func (r *Run) visit(ctx context.Context, pageURL string, depth int) {
	defer r.wg.Done()

	if depth > r.maxDepth || ctx.Err() != nil {
		return
	}
	if !r.visited.MarkIfNew(pageURL) {
		return
	}
	r.graph.AddNode(pageURL)

	parsed, err := url.Parse(pageURL)
	if err != nil {
		return
	}
	if pathMatchesAny(parsed.Path, r.engine.exclusions) {
		metrics.ObservePage(r.seed.Host, "excluded")
		return
	}
	res, err := r.fetch(ctx, pageURL)
	if err != nil {
		if ctx.Err() == nil {
			r.engine.logger.Debug("fetch failed",
				zap.String("url", pageURL),
				zap.Error(err))
			r.recordFault(pageURL, FaultNetwork, err.Error())
			metrics.ObservePage(r.seed.Host, "error")
		}
		return
	}
	if res.StatusCode/100 != 2 {
		r.recordFault(pageURL, FaultPolicy, fmt.Sprintf("status %d", res.StatusCode))
		metrics.ObservePage(r.seed.Host, "error")
		return
	}
	if !strings.Contains(res.ContentType, "text/html") {
		r.recordFault(pageURL, FaultPolicy, "non-html content "+res.ContentType)
		metrics.ObservePage(r.seed.Host, "skipped")
		return
	}
	if !r.robots.Allowed(pageURL) {
		r.recordFault(pageURL, FaultPolicy, "robots disallow")
		metrics.ObservePage(r.seed.Host, "blocked")
		return
	}
	metrics.ObservePage(r.seed.Host, "fetched")

	// Pages at the depth limit are recorded but never expanded, so no
	// node or edge can originate beyond the limit.
	if depth >= r.maxDepth {
		return
	}

	links, err := extractLinks(res.Body, parsed)
	if err != nil {
		r.engine.logger.Debug("html parse failed",
			zap.String("url", pageURL),
			zap.Error(err))
		r.recordFault(pageURL, FaultParse, err.Error())
		return
	}

	for _, link := range links {
		if !strings.EqualFold(link.Host, r.seed.Host) {
			continue
		}
		if pathMatchesAny(link.Path, r.engine.denyPaths) {
			continue
		}
		target := link.String()
		r.graph.AddEdge(pageURL, target)
		if !r.visited.Seen(target) {
			r.wg.Add(1)
			go r.visit(ctx, target, depth+1)
		}
	}
}

// fetch performs one rate-limited, concurrency-gated page request.
func (r *Run) fetch(ctx context.Context, pageURL string) (FetchResult, error) {
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return FetchResult{}, err
		}
	}
	if err := r.gate.Acquire(ctx, 1); err != nil {
		return FetchResult{}, err
	}
	defer r.gate.Release(1)
	return r.engine.fetcher.Fetch(ctx, pageURL)
}

// Persist writes the run's graph to the store, keyed by the seed host.
// Graphs with fewer than two nodes carry no link structure and are not
// persisted.
func (e *Engine) Persist(r *Run) error {
	g := r.graph
	if g.NodeCount() < 2 {
		e.logger.Info("graph too small, not persisting",
			zap.String("host", r.seed.Host),
			zap.Int("nodes", g.NodeCount()))
		return nil
	}
	if err := e.store.Write(r.seed.Host, g); err != nil {
		return fmt.Errorf("persist graph for %s: %w", r.seed.Host, err)
	}
	e.logger.Info("graph persisted",
		zap.String("host", r.seed.Host),
		zap.Int("nodes", g.NodeCount()),
		zap.Int("edges", g.EdgeCount()))
	return nil
}

// Execute runs a job end to end: prepare, traverse, persist.
func (e *Engine) Execute(ctx context.Context, job Job) error {
	start := time.Now()

	run, err := e.Prepare(ctx, job)
	if err != nil {
		metrics.ObserveJob("failed", time.Since(start))
		return err
	}

	e.logger.Info("crawl started",
		zap.String("seed", run.seed.String()),
		zap.Int("max_depth", run.maxDepth))

	g := run.Traverse(ctx)
	if err := ctx.Err(); err != nil {
		metrics.ObserveJob("canceled", time.Since(start))
		return err
	}

	if err := e.Persist(run); err != nil {
		metrics.ObserveJob("failed", time.Since(start))
		return err
	}

	metrics.ObserveJob("completed", time.Since(start))
	e.logger.Info("crawl finished",
		zap.String("seed", run.seed.String()),
		zap.Int("nodes", g.NodeCount()),
		zap.Int("edges", g.EdgeCount()),
		zap.Int("pruned_branches", len(run.Faults())),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}
