package graph

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGraphAddNodeIsIdempotent(t *testing.T) {
	t.Parallel()

	g := New()
	g.AddNode("https://a.test/")
	g.AddNode("https://a.test/")
	g.AddNode("https://a.test/x")

	require.Equal(t, 2, g.NodeCount())
	require.True(t, g.HasNode("https://a.test/"))
}

func TestGraphAddEdgeRegistersEndpoints(t *testing.T) {
	t.Parallel()

	g := New()
	g.AddEdge("a", "b")
	g.AddEdge("b", "a") // undirected duplicate

	require.Equal(t, 2, g.NodeCount())
	require.Equal(t, 1, g.EdgeCount())
	require.True(t, g.HasEdge("a", "b"))
	require.True(t, g.HasEdge("b", "a"))
}

func TestGraphDegreeAndBoundary(t *testing.T) {
	t.Parallel()

	// star: hub connected to three leaves
	g := New()
	g.AddEdge("hub", "l1")
	g.AddEdge("hub", "l2")
	g.AddEdge("hub", "l3")

	require.Equal(t, 3, g.Degree("hub"))
	require.Equal(t, 1, g.Degree("l1"))
	require.Equal(t, []string{"l1", "l2", "l3"}, g.BoundaryNodes())
}

func TestGraphBoundaryEmptyOnCycle(t *testing.T) {
	t.Parallel()

	g := New()
	g.AddEdge("a", "b")
	g.AddEdge("b", "c")
	g.AddEdge("c", "a")

	require.Empty(t, g.BoundaryNodes())
}

func TestGraphNeighbors(t *testing.T) {
	t.Parallel()

	g := New()
	g.AddEdge("a", "c")
	g.AddEdge("a", "b")

	require.Equal(t, []string{"b", "c"}, g.Neighbors("a"))
	require.Nil(t, g.Neighbors("missing"))
}

func TestGraphDocumentRoundTrip(t *testing.T) {
	t.Parallel()

	g := New()
	g.AddEdge("https://a.test/", "https://a.test/x")
	g.AddEdge("https://a.test/", "https://a.test/y")
	g.AddEdge("https://a.test/x", "https://a.test/z")
	g.AddNode("https://a.test/orphan")

	doc := g.Document()
	rebuilt := FromDocument(doc)

	require.True(t, g.Equal(rebuilt))
	require.True(t, rebuilt.Equal(g))
}

func TestGraphEqualOrderIndependent(t *testing.T) {
	t.Parallel()

	a := New()
	a.AddEdge("x", "y")
	a.AddEdge("y", "z")

	b := New()
	b.AddEdge("z", "y")
	b.AddEdge("y", "x")

	require.True(t, a.Equal(b))

	b.AddNode("extra")
	require.False(t, a.Equal(b))
}

func TestGraphConcurrentMutation(t *testing.T) {
	t.Parallel()

	g := New()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				g.AddEdge("root", fmt.Sprintf("child-%d-%d", n, j))
			}
		}(i)
	}
	wg.Wait()

	require.Equal(t, 401, g.NodeCount())
	require.Equal(t, 400, g.EdgeCount())
}
