package crawler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/apetros/sitemapper/internal/codec"
	"github.com/apetros/sitemapper/internal/store"
)

// stubFetcher serves a canned site from memory and counts fetches per URL.
type stubFetcher struct {
	mu       sync.Mutex
	pages    map[string]FetchResult
	fetched  map[string]int
	probeErr error
}

func newStubFetcher() *stubFetcher {
	return &stubFetcher{
		pages:   make(map[string]FetchResult),
		fetched: make(map[string]int),
	}
}

func (f *stubFetcher) addPage(url string, links ...string) {
	body := "<html><body>"
	for _, l := range links {
		body += fmt.Sprintf("<a href=%q>link</a>", l)
	}
	body += "</body></html>"
	f.pages[url] = FetchResult{
		URL:         url,
		StatusCode:  200,
		ContentType: "text/html; charset=utf-8",
		Body:        []byte(body),
	}
}

func (f *stubFetcher) addRaw(url, contentType string, status int, body string) {
	f.pages[url] = FetchResult{
		URL:         url,
		StatusCode:  status,
		ContentType: contentType,
		Body:        []byte(body),
	}
}

func (f *stubFetcher) Fetch(_ context.Context, url string) (FetchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetched[url]++
	res, ok := f.pages[url]
	if !ok {
		return FetchResult{}, fmt.Errorf("no route for %s", url)
	}
	return res, nil
}

func (f *stubFetcher) Probe(_ context.Context, url string) (FetchResult, error) {
	if f.probeErr != nil {
		return FetchResult{}, f.probeErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	res, ok := f.pages[url]
	if !ok {
		return FetchResult{URL: url, StatusCode: 404}, nil
	}
	return FetchResult{URL: url, StatusCode: res.StatusCode}, nil
}

func (f *stubFetcher) fetchCount(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetched[url]
}

func newTestEngine(t *testing.T, f Fetcher) *Engine {
	t.Helper()
	st, err := store.New(t.TempDir(), codec.Gzip{})
	require.NoError(t, err)
	return New(f, st, Config{UserAgent: "sitemapper-test"}, zap.NewNop())
}

func traverse(t *testing.T, e *Engine, job Job) *Run {
	t.Helper()
	run, err := e.Prepare(context.Background(), job)
	require.NoError(t, err)
	run.Traverse(context.Background())
	return run
}

func TestTraverseBuildsLinkGraph(t *testing.T) {
	f := newStubFetcher()
	f.addPage("https://a.test/", "/x", "/y")
	f.addPage("https://a.test/x", "/z")
	f.addPage("https://a.test/y")
	f.addPage("https://a.test/z")

	run := traverse(t, newTestEngine(t, f), Job{Seed: "https://a.test/", MaxDepth: 5, HostConcurrency: 2})

	g := run.graph
	require.Equal(t, 4, g.NodeCount())
	require.Equal(t, 3, g.EdgeCount())
	require.True(t, g.HasEdge("https://a.test/", "https://a.test/x"))
	require.True(t, g.HasEdge("https://a.test/", "https://a.test/y"))
	require.True(t, g.HasEdge("https://a.test/x", "https://a.test/z"))
}

func TestTraverseHonorsDepthLimit(t *testing.T) {
	f := newStubFetcher()
	f.addPage("https://a.test/", "/x", "/y")
	f.addPage("https://a.test/x", "/z")
	f.addPage("https://a.test/y")
	f.addPage("https://a.test/z")

	run := traverse(t, newTestEngine(t, f), Job{Seed: "https://a.test/", MaxDepth: 1, HostConcurrency: 2})

	g := run.graph
	require.ElementsMatch(t,
		[]string{"https://a.test/", "https://a.test/x", "https://a.test/y"},
		g.Nodes())
	require.Equal(t, 2, g.EdgeCount())
	require.False(t, g.HasNode("https://a.test/z"))
}

func TestTraverseKeepsFailedPageAsIsolatedBranch(t *testing.T) {
	f := newStubFetcher()
	f.addPage("https://a.test/", "/bad", "/y")
	f.addRaw("https://a.test/bad", "text/html", 500, "<a href=\"/z\">hidden</a>")
	f.addPage("https://a.test/y")

	run := traverse(t, newTestEngine(t, f), Job{Seed: "https://a.test/", MaxDepth: 5, HostConcurrency: 2})

	g := run.graph
	require.True(t, g.HasNode("https://a.test/bad"))
	require.False(t, g.HasNode("https://a.test/z"))
	require.Equal(t, 1, g.Degree("https://a.test/bad"))
	require.True(t, g.HasNode("https://a.test/y"))

	faults := run.Faults()
	require.Len(t, faults, 1)
	require.Equal(t, "https://a.test/bad", faults[0].URL)
	require.Equal(t, FaultPolicy, faults[0].Kind)
}

func TestTraverseRecordsNetworkFaults(t *testing.T) {
	f := newStubFetcher()
	f.addPage("https://a.test/", "/unreachable", "/x")
	f.addPage("https://a.test/x")

	run := traverse(t, newTestEngine(t, f), Job{Seed: "https://a.test/", MaxDepth: 5, HostConcurrency: 2})

	require.True(t, run.graph.HasNode("https://a.test/unreachable"))
	faults := run.Faults()
	require.Len(t, faults, 1)
	require.Equal(t, "https://a.test/unreachable", faults[0].URL)
	require.Equal(t, FaultNetwork, faults[0].Kind)
}

func TestTraverseIgnoresCrossHostLinks(t *testing.T) {
	f := newStubFetcher()
	f.addPage("https://a.test/", "https://b.test/other", "/x")
	f.addPage("https://a.test/x")

	run := traverse(t, newTestEngine(t, f), Job{Seed: "https://a.test/", MaxDepth: 5, HostConcurrency: 2})

	g := run.graph
	require.Equal(t, 2, g.NodeCount())
	require.False(t, g.HasNode("https://b.test/other"))
}

func TestTraverseDoesNotFetchExcludedPaths(t *testing.T) {
	f := newStubFetcher()
	f.addPage("https://a.test/", "/report.pdf", "/x")
	f.addPage("https://a.test/x")

	run := traverse(t, newTestEngine(t, f), Job{Seed: "https://a.test/", MaxDepth: 5, HostConcurrency: 2})

	g := run.graph
	require.True(t, g.HasNode("https://a.test/report.pdf"))
	require.True(t, g.HasEdge("https://a.test/", "https://a.test/report.pdf"))
	require.Zero(t, f.fetchCount("https://a.test/report.pdf"))
}

func TestTraverseSkipsDenylistedLinks(t *testing.T) {
	f := newStubFetcher()
	f.addPage("https://a.test/", "/cdn-cgi/challenge", "/x")
	f.addPage("https://a.test/x")

	run := traverse(t, newTestEngine(t, f), Job{Seed: "https://a.test/", MaxDepth: 5, HostConcurrency: 2})

	require.False(t, run.graph.HasNode("https://a.test/cdn-cgi/challenge"))
	require.Equal(t, 2, run.graph.NodeCount())
}

func TestTraverseDoesNotExpandNonHTML(t *testing.T) {
	f := newStubFetcher()
	f.addPage("https://a.test/", "/data")
	f.addRaw("https://a.test/data", "application/json", 200, `{"a":"<a href=\"/x\">x</a>"}`)

	run := traverse(t, newTestEngine(t, f), Job{Seed: "https://a.test/", MaxDepth: 5, HostConcurrency: 2})

	require.True(t, run.graph.HasNode("https://a.test/data"))
	require.False(t, run.graph.HasNode("https://a.test/x"))

	faults := run.Faults()
	require.Len(t, faults, 1)
	require.Equal(t, "https://a.test/data", faults[0].URL)
	require.Equal(t, FaultPolicy, faults[0].Kind)
}

func TestTraverseVisitsEachPageOnce(t *testing.T) {
	f := newStubFetcher()
	f.addPage("https://a.test/", "/x", "/y")
	f.addPage("https://a.test/x", "/z")
	f.addPage("https://a.test/y", "/z")
	f.addPage("https://a.test/z", "/")

	run := traverse(t, newTestEngine(t, f), Job{Seed: "https://a.test/", MaxDepth: 5, HostConcurrency: 4})

	require.Equal(t, 4, run.graph.NodeCount())
	require.Equal(t, 1, f.fetchCount("https://a.test/z"))
	require.Equal(t, 1, f.fetchCount("https://a.test/"))
}

func TestTraverseMergesFragmentVariants(t *testing.T) {
	f := newStubFetcher()
	f.addPage("https://a.test/", "/x#top", "/x#bottom", "/x")
	f.addPage("https://a.test/x")

	run := traverse(t, newTestEngine(t, f), Job{Seed: "https://a.test/", MaxDepth: 5, HostConcurrency: 2})

	require.Equal(t, 2, run.graph.NodeCount())
	require.Equal(t, 1, run.graph.EdgeCount())
	require.Equal(t, 1, f.fetchCount("https://a.test/x"))
}

func TestTraverseHonorsRobotsDisallow(t *testing.T) {
	f := newStubFetcher()
	f.addRaw("https://a.test/robots.txt", "text/plain", 200,
		"User-agent: *\nDisallow: /private\n")
	f.addPage("https://a.test/", "/private", "/x")
	f.addPage("https://a.test/private", "/secret")
	f.addPage("https://a.test/x")

	run := traverse(t, newTestEngine(t, f), Job{Seed: "https://a.test/", MaxDepth: 5, HostConcurrency: 2})

	g := run.graph
	require.True(t, g.HasNode("https://a.test/private"))
	require.False(t, g.HasNode("https://a.test/secret"))
	require.True(t, g.HasNode("https://a.test/x"))

	faults := run.Faults()
	require.Len(t, faults, 1)
	require.Equal(t, FaultPolicy, faults[0].Kind)
}

func TestPrepareRejectsInvalidSeed(t *testing.T) {
	e := newTestEngine(t, newStubFetcher())

	for _, seed := range []string{"", "ftp://a.test/", "https://", "://bad"} {
		_, err := e.Prepare(context.Background(), Job{Seed: seed, MaxDepth: 5})
		require.Error(t, err, "seed %q", seed)
	}
}

func TestPrepareRejectsUncrawlableSeed(t *testing.T) {
	t.Run("probe error", func(t *testing.T) {
		f := newStubFetcher()
		f.probeErr = errors.New("connection refused")
		e := newTestEngine(t, f)

		_, err := e.Prepare(context.Background(), Job{Seed: "https://a.test/", MaxDepth: 5})
		require.ErrorIs(t, err, ErrNotCrawlable)
	})

	t.Run("probe status", func(t *testing.T) {
		f := newStubFetcher()
		f.addRaw("https://a.test/", "text/html", 503, "down")
		e := newTestEngine(t, f)

		_, err := e.Prepare(context.Background(), Job{Seed: "https://a.test/", MaxDepth: 5})
		require.ErrorIs(t, err, ErrNotCrawlable)
	})
}

func TestExecutePersistsGraph(t *testing.T) {
	f := newStubFetcher()
	f.addPage("https://a.test/", "/x")
	f.addPage("https://a.test/x")

	st, err := store.New(t.TempDir(), codec.Gzip{})
	require.NoError(t, err)
	e := New(f, st, Config{UserAgent: "sitemapper-test"}, zap.NewNop())

	require.NoError(t, e.Execute(context.Background(), Job{Seed: "https://a.test/", MaxDepth: 5, HostConcurrency: 2}))

	g, err := st.Read("a.test")
	require.NoError(t, err)
	require.Equal(t, 2, g.NodeCount())
	require.True(t, g.HasEdge("https://a.test/", "https://a.test/x"))
}

func TestExecuteSkipsPersistForSingleNodeGraph(t *testing.T) {
	f := newStubFetcher()
	f.addPage("https://a.test/")

	st, err := store.New(t.TempDir(), codec.Gzip{})
	require.NoError(t, err)
	e := New(f, st, Config{UserAgent: "sitemapper-test"}, zap.NewNop())

	require.NoError(t, e.Execute(context.Background(), Job{Seed: "https://a.test/", MaxDepth: 5, HostConcurrency: 2}))

	_, err = st.Read("a.test")
	require.ErrorIs(t, err, store.ErrNotFound)
}
