// Package graph maintains the undirected host communication graph.
package graph

import (
	"RedWire/internal/model"
	"sort"
	"sync"

	"gonum.org/v1/gonum/graph/simple"
)

// Graph is a simple undirected graph of addresses. An edge means the two
// hosts have exchanged at least one packet. Adding an existing edge is a
// no-op. A host that talks to itself is recorded as a loop beside the
// gonum graph, which does not hold self edges.
type Graph struct {
	mu    sync.RWMutex
	g     *simple.UndirectedGraph
	ids   map[string]int64
	addrs map[int64]string
	loops map[int64]struct{}
	next  int64
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		g:     simple.NewUndirectedGraph(),
		ids:   make(map[string]int64),
		addrs: make(map[int64]string),
		loops: make(map[int64]struct{}),
	}
}

// AddEdge records that a and b communicated. It reports whether the edge
// was not present before.
func (gr *Graph) AddEdge(a, b string) bool {
	gr.mu.Lock()
	defer gr.mu.Unlock()
	return gr.addEdgeLocked(a, b)
}

func (gr *Graph) addEdgeLocked(a, b string) bool {
	u, v := gr.nodeLocked(a), gr.nodeLocked(b)
	if u == v {
		if _, ok := gr.loops[u]; ok {
			return false
		}
		gr.loops[u] = struct{}{}
		return true
	}
	if gr.g.HasEdgeBetween(u, v) {
		return false
	}
	gr.g.SetEdge(simple.Edge{F: simple.Node(u), T: simple.Node(v)})
	return true
}

func (gr *Graph) nodeLocked(addr string) int64 {
	if id, ok := gr.ids[addr]; ok {
		return id
	}
	id := gr.next
	gr.next++
	gr.ids[addr] = id
	gr.addrs[id] = addr
	gr.g.AddNode(simple.Node(id))
	return id
}

// HasEdge reports whether a and b are adjacent.
func (gr *Graph) HasEdge(a, b string) bool {
	gr.mu.RLock()
	defer gr.mu.RUnlock()

	u, ok := gr.ids[a]
	if !ok {
		return false
	}
	v, ok := gr.ids[b]
	if !ok {
		return false
	}
	if u == v {
		_, ok := gr.loops[u]
		return ok
	}
	return gr.g.HasEdgeBetween(u, v)
}

// Nodes returns every address in the graph, sorted.
func (gr *Graph) Nodes() []string {
	gr.mu.RLock()
	defer gr.mu.RUnlock()

	out := make([]string, 0, len(gr.ids))
	for addr := range gr.ids {
		out = append(out, addr)
	}
	sort.Strings(out)
	return out
}

// Degree returns the number of distinct neighbours of addr. A host with a
// loop counts itself once.
func (gr *Graph) Degree(addr string) int {
	gr.mu.RLock()
	defer gr.mu.RUnlock()

	id, ok := gr.ids[addr]
	if !ok {
		return 0
	}
	return gr.degreeLocked(id)
}

func (gr *Graph) degreeLocked(id int64) int {
	d := gr.g.From(id).Len()
	if _, ok := gr.loops[id]; ok {
		d++
	}
	return d
}

// Edges returns every edge as a canonical flow key, sorted.
func (gr *Graph) Edges() []model.FlowKey {
	gr.mu.RLock()
	defer gr.mu.RUnlock()
	return gr.edgesLocked()
}

func (gr *Graph) edgesLocked() []model.FlowKey {
	var out []model.FlowKey
	edges := gr.g.Edges()
	for edges.Next() {
		e := edges.Edge()
		out = append(out, model.NewFlowKey(gr.addrs[e.From().ID()], gr.addrs[e.To().ID()]))
	}
	for id := range gr.loops {
		out = append(out, model.NewFlowKey(gr.addrs[id], gr.addrs[id]))
	}
	sortKeys(out)
	return out
}

// NodeCount returns the number of hosts.
func (gr *Graph) NodeCount() int {
	gr.mu.RLock()
	defer gr.mu.RUnlock()
	return len(gr.ids)
}

// EdgeCount returns the number of edges, loops included.
func (gr *Graph) EdgeCount() int {
	gr.mu.RLock()
	defer gr.mu.RUnlock()
	return gr.g.Edges().Len() + len(gr.loops)
}

// InducedSubgraph returns a new graph holding the given addresses and only
// the edges whose endpoints are both among them. Addresses not in the graph
// are ignored.
func (gr *Graph) InducedSubgraph(nodes []string) *Graph {
	gr.mu.RLock()
	defer gr.mu.RUnlock()

	sub := New()
	keep := make(map[int64]bool, len(nodes))
	for _, addr := range nodes {
		if id, ok := gr.ids[addr]; ok && !keep[id] {
			keep[id] = true
			sub.nodeLocked(addr)
		}
	}
	for id := range keep {
		if _, ok := gr.loops[id]; ok {
			sub.addEdgeLocked(gr.addrs[id], gr.addrs[id])
		}
		to := gr.g.From(id)
		for to.Next() {
			nid := to.Node().ID()
			if keep[nid] {
				sub.addEdgeLocked(gr.addrs[id], gr.addrs[nid])
			}
		}
	}
	return sub
}

// NodeData returns one entry per host with its degree, sorted by address.
// local may be nil.
func (gr *Graph) NodeData(local func(addr string) bool) []model.GraphNode {
	gr.mu.RLock()
	defer gr.mu.RUnlock()

	out := make([]model.GraphNode, 0, len(gr.ids))
	for addr, id := range gr.ids {
		n := model.GraphNode{Address: addr, Degree: gr.degreeLocked(id)}
		if local != nil {
			n.Local = local(addr)
		}
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

// Clear removes every node and edge.
func (gr *Graph) Clear() {
	gr.mu.Lock()
	defer gr.mu.Unlock()

	gr.g = simple.NewUndirectedGraph()
	gr.ids = make(map[string]int64)
	gr.addrs = make(map[int64]string)
	gr.loops = make(map[int64]struct{})
	gr.next = 0
}

func sortKeys(keys []model.FlowKey) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].A != keys[j].A {
			return keys[i].A < keys[j].A
		}
		return keys[i].B < keys[j].B
	})
}
