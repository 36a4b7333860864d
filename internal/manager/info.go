package manager

import (
	"math/rand"
	"sort"

	"github.com/apetros/sitemapper/internal/graph"
)

// boundarySampleRatio controls how many degree-1 nodes land in a host's
// boundary sample: roughly 1%, but at least one when any exist.
const boundarySampleRatio = 100

// BuildInfo computes the statistics entry for one host's graph.
func BuildInfo(host string, g *graph.Graph) GraphInfo {
	return GraphInfo{
		Host:          host,
		NumNodes:      g.NodeCount(),
		NumEdges:      g.EdgeCount(),
		BoundaryNodes: sampleBoundary(g.BoundaryNodes()),
	}
}

// sampleBoundary picks the sample uniformly at random without replacement.
// An empty input yields an empty sample.
func sampleBoundary(boundary []string) []string {
	if len(boundary) == 0 {
		return []string{}
	}
	k := len(boundary) / boundarySampleRatio
	if k < 1 {
		k = 1
	}

	picked := make([]string, len(boundary))
	copy(picked, boundary)
	rand.Shuffle(len(picked), func(i, j int) {
		picked[i], picked[j] = picked[j], picked[i]
	})
	picked = picked[:k]
	sort.Strings(picked)
	return picked
}
