package crawler

import "sync"

// visitTracker provides thread-safe visited URL tracking for one crawl run.
// MarkIfNew is the atomic claim point that keeps a URL reached via two
// concurrent branches from being fetched twice.
type visitTracker struct {
	seen sync.Map
}

func newVisitTracker() *visitTracker {
	return &visitTracker{}
}

// MarkIfNew stores the URL if it has not been seen before and returns true.
func (t *visitTracker) MarkIfNew(url string) bool {
	if url == "" {
		return false
	}
	_, loaded := t.seen.LoadOrStore(url, struct{}{})
	return !loaded
}

// Seen reports whether the URL was already claimed by some branch.
func (t *visitTracker) Seen(url string) bool {
	_, ok := t.seen.Load(url)
	return ok
}
