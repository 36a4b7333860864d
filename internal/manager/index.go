// Package manager keeps a read-optimized statistics index in sync with the
// graph store. An fsnotify watcher batches store changes and drives an
// integrity sweeper and an info updater over a bounded worker pool.
package manager

import (
	"sort"
	"sync"
)

// GraphInfo is the per-host statistics entry served to query paths.
type GraphInfo struct {
	Host          string   `json:"host"`
	NumNodes      int      `json:"num_nodes"`
	NumEdges      int      `json:"num_edges"`
	BoundaryNodes []string `json:"boundary_nodes"`
}

// Index is the in-memory statistics index. The pipeline is its only
// writer; query paths read concurrently.
type Index struct {
	mu      sync.RWMutex
	entries map[string]GraphInfo
}

func NewIndex() *Index {
	return &Index{entries: make(map[string]GraphInfo)}
}

// Get returns the entry for a host, if present.
func (ix *Index) Get(host string) (GraphInfo, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	info, ok := ix.entries[host]
	return info, ok
}

// Set inserts or replaces the entry for info.Host.
func (ix *Index) Set(info GraphInfo) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.entries[info.Host] = info
}

// Delete removes a host's entry. Missing hosts are a no-op.
func (ix *Index) Delete(host string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	delete(ix.entries, host)
}

// All returns every entry ordered by host.
func (ix *Index) All() []GraphInfo {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	infos := make([]GraphInfo, 0, len(ix.entries))
	for _, info := range ix.entries {
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Host < infos[j].Host })
	return infos
}

// Len returns the number of indexed hosts.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entries)
}
