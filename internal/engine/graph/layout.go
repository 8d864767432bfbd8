package graph

import (
	"RedWire/internal/model"
	"math/rand/v2"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/layout"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
	"gonum.org/v1/gonum/spatial/r2"
)

// Layout algorithms.
const (
	AlgorithmEades  = "eades"
	AlgorithmIsomap = "isomap"
)

// LayoutOptions tunes whole-graph placement.
type LayoutOptions struct {
	Algorithm string  `yaml:"algorithm"`
	Updates   int     `yaml:"updates"`
	Repulsion float64 `yaml:"repulsion"`
	Rate      float64 `yaml:"rate"`
	Theta     float64 `yaml:"theta"`
	Seed      uint64  `yaml:"seed"`
}

// DefaultLayoutOptions returns force-directed settings that work for a few
// hundred hosts.
func DefaultLayoutOptions() LayoutOptions {
	return LayoutOptions{
		Algorithm: AlgorithmEades,
		Updates:   100,
		Repulsion: 1,
		Rate:      0.1,
		Theta:     0.1,
		Seed:      1,
	}
}

// Layout computes a position for every host in g. Force-directed placement
// pulls well-connected hosts towards the middle. The isomap algorithm is
// only used when the graph is connected and falls back to force-directed
// placement otherwise.
func Layout(g *Graph, opts LayoutOptions) map[string]r2.Vec {
	g.mu.RLock()
	cp := simple.NewUndirectedGraph()
	graph.Copy(cp, g.g)
	addrs := make(map[int64]string, len(g.addrs))
	for id, addr := range g.addrs {
		addrs[id] = addr
	}
	g.mu.RUnlock()

	pos := make(map[string]r2.Vec, len(addrs))
	switch len(addrs) {
	case 0:
		return pos
	case 1:
		for _, addr := range addrs {
			pos[addr] = r2.Vec{}
		}
		return pos
	}

	update := eades(opts)
	if opts.Algorithm == AlgorithmIsomap && len(topo.ConnectedComponents(cp)) == 1 {
		update = layout.IsomapR2{}.Update
	}

	o := layout.NewOptimizerR2(cp, update)
	for o.Update() {
	}
	for id, addr := range addrs {
		pos[addr] = o.Coord2(id)
	}
	return pos
}

func eades(opts LayoutOptions) func(graph.Graph, layout.LayoutR2) bool {
	def := DefaultLayoutOptions()
	if opts.Updates <= 0 {
		opts.Updates = def.Updates
	}
	if opts.Repulsion <= 0 {
		opts.Repulsion = def.Repulsion
	}
	if opts.Rate <= 0 {
		opts.Rate = def.Rate
	}
	if opts.Theta <= 0 {
		opts.Theta = def.Theta
	}
	e := &layout.EadesR2{
		Updates:   opts.Updates,
		Repulsion: opts.Repulsion,
		Rate:      opts.Rate,
		Theta:     opts.Theta,
		Src:       rand.NewPCG(opts.Seed, opts.Seed),
	}
	return e.Update
}

// PairLayout places the endpoints of a single conversation side by side.
func PairLayout(key model.FlowKey) map[string]r2.Vec {
	if key.IsLoop() {
		return map[string]r2.Vec{key.A: {}}
	}
	return map[string]r2.Vec{
		key.A: {X: -1, Y: 0},
		key.B: {X: 1, Y: 0},
	}
}

// Place copies positions into nodes. Nodes without a position stay at the origin.
func Place(nodes []model.GraphNode, pos map[string]r2.Vec) []model.GraphNode {
	out := make([]model.GraphNode, len(nodes))
	for i, n := range nodes {
		if p, ok := pos[n.Address]; ok {
			n.X, n.Y = p.X, p.Y
		}
		out[i] = n
	}
	return out
}
