// Package graph implements the undirected link graph built by a crawl run
// and its serialized node/edge document form.
package graph

import (
	"sort"
	"sync"
)

// Document is the self-describing serialized form written to the graph store.
type Document struct {
	Nodes []string    `json:"nodes"`
	Edges [][2]string `json:"edges"`
}

// Graph is an undirected simple graph over page URLs. It is safe for
// concurrent use; a crawl run mutates it from multiple frontier branches.
type Graph struct {
	mu    sync.RWMutex
	nodes map[string]struct{}
	adj   map[string]map[string]struct{}
	edges int
}

// New returns an empty Graph.
func New() *Graph {
	return &Graph{
		nodes: make(map[string]struct{}),
		adj:   make(map[string]map[string]struct{}),
	}
}

// AddNode registers id as a node. Adding an existing node is a no-op.
func (g *Graph) AddNode(id string) {
	if id == "" {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.addNodeLocked(id)
}

func (g *Graph) addNodeLocked(id string) {
	if _, ok := g.nodes[id]; ok {
		return
	}
	g.nodes[id] = struct{}{}
	g.adj[id] = make(map[string]struct{})
}

// AddEdge connects a and b, registering either endpoint first if it is not
// yet a node. Duplicate edges collapse; the edge set stays a set.
func (g *Graph) AddEdge(a, b string) {
	if a == "" || b == "" {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.addNodeLocked(a)
	g.addNodeLocked(b)
	if _, ok := g.adj[a][b]; ok {
		return
	}
	g.adj[a][b] = struct{}{}
	g.adj[b][a] = struct{}{}
	g.edges++
}

// HasNode reports whether id is a node.
func (g *Graph) HasNode(id string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.nodes[id]
	return ok
}

// HasEdge reports whether a and b are connected.
func (g *Graph) HasEdge(a, b string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.adj[a][b]
	return ok
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// EdgeCount returns the number of distinct edges.
func (g *Graph) EdgeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.edges
}

// Degree returns the number of neighbors of id. A self-loop counts once.
func (g *Graph) Degree(id string) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.adj[id])
}

// Neighbors returns the sorted adjacency of id, nil when id is not a node.
func (g *Graph) Neighbors(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	adj, ok := g.adj[id]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(adj))
	for n := range adj {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Nodes returns all node ids in sorted order.
func (g *Graph) Nodes() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]string, 0, len(g.nodes))
	for n := range g.nodes {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// BoundaryNodes returns the sorted ids of all nodes with exactly one
// connection. These are the natural reset points of a crawled site.
func (g *Graph) BoundaryNodes() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]string, 0)
	for n := range g.nodes {
		if len(g.adj[n]) == 1 {
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out
}

// Document snapshots the graph into its serialized form. Nodes are sorted
// and each edge appears once with its endpoints in lexical order, so two
// equal graphs produce identical documents.
func (g *Graph) Document() Document {
	g.mu.RLock()
	defer g.mu.RUnlock()
	doc := Document{
		Nodes: make([]string, 0, len(g.nodes)),
		Edges: make([][2]string, 0, g.edges),
	}
	for n := range g.nodes {
		doc.Nodes = append(doc.Nodes, n)
	}
	sort.Strings(doc.Nodes)
	seen := make(map[[2]string]struct{}, g.edges)
	for a, adj := range g.adj {
		for b := range adj {
			key := orderedPair(a, b)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			doc.Edges = append(doc.Edges, key)
		}
	}
	sort.Slice(doc.Edges, func(i, j int) bool {
		if doc.Edges[i][0] != doc.Edges[j][0] {
			return doc.Edges[i][0] < doc.Edges[j][0]
		}
		return doc.Edges[i][1] < doc.Edges[j][1]
	})
	return doc
}

// FromDocument rebuilds a Graph from its serialized form.
func FromDocument(doc Document) *Graph {
	g := New()
	for _, n := range doc.Nodes {
		g.AddNode(n)
	}
	for _, e := range doc.Edges {
		g.AddEdge(e[0], e[1])
	}
	return g
}

// Equal reports whether both graphs have the same node and edge sets,
// independent of insertion order.
func (g *Graph) Equal(other *Graph) bool {
	if other == nil {
		return false
	}
	a, b := g.Document(), other.Document()
	if len(a.Nodes) != len(b.Nodes) || len(a.Edges) != len(b.Edges) {
		return false
	}
	for i := range a.Nodes {
		if a.Nodes[i] != b.Nodes[i] {
			return false
		}
	}
	for i := range a.Edges {
		if a.Edges[i] != b.Edges[i] {
			return false
		}
	}
	return true
}

func orderedPair(a, b string) [2]string {
	if b < a {
		return [2]string{b, a}
	}
	return [2]string{a, b}
}
