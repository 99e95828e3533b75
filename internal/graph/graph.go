package graph

import (
	"fmt"
	"slices"

	"github.com/san-kum/formulize/internal/formula"
)

// Node is one formula with its read and write sets.
type Node struct {
	ID     string
	Reads  []string
	Writes string
}

// Graph has one vertex per formula and an edge A -> B whenever B reads the
// variable A writes.
type Graph struct {
	nodes   []Node
	index   map[string]int
	out     [][]int
	readers map[string][]int
	writers map[string]int

	order []int
	cycle []string
}

func New(nodes []Node) (*Graph, error) {
	g := &Graph{
		nodes:   slices.Clone(nodes),
		index:   make(map[string]int, len(nodes)),
		out:     make([][]int, len(nodes)),
		readers: make(map[string][]int),
		writers: make(map[string]int),
	}

	for i, n := range g.nodes {
		if _, dup := g.index[n.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate formula id %q", formula.ErrConfiguration, n.ID)
		}
		g.index[n.ID] = i
		if prev, dup := g.writers[n.Writes]; dup {
			return nil, fmt.Errorf("%w: formulas %q and %q both write %q",
				formula.ErrConfiguration, g.nodes[prev].ID, n.ID, n.Writes)
		}
		g.writers[n.Writes] = i
		for _, r := range n.Reads {
			if !slices.Contains(g.readers[r], i) {
				g.readers[r] = append(g.readers[r], i)
			}
		}
	}

	for i, n := range g.nodes {
		g.out[i] = slices.Clone(g.readers[n.Writes])
	}

	g.sort()
	return g, nil
}

// sort runs Kahn's algorithm, always releasing the earliest declared ready
// formula so the order is deterministic.
func (g *Graph) sort() {
	indeg := make([]int, len(g.nodes))
	for _, targets := range g.out {
		for _, t := range targets {
			indeg[t]++
		}
	}

	var ready []int
	for i, d := range indeg {
		if d == 0 {
			ready = append(ready, i)
		}
	}

	order := make([]int, 0, len(g.nodes))
	for len(ready) > 0 {
		n := ready[0]
		ready = ready[1:]
		order = append(order, n)
		for _, t := range g.out[n] {
			indeg[t]--
			if indeg[t] == 0 {
				pos, _ := slices.BinarySearch(ready, t)
				ready = slices.Insert(ready, pos, t)
			}
		}
	}

	if len(order) == len(g.nodes) {
		g.order = order
		return
	}
	g.cycle = g.findCycle()
}

func (g *Graph) findCycle() []string {
	const (
		white = iota
		gray
		black
	)
	color := make([]int, len(g.nodes))
	var stack []int
	var found []string

	var visit func(n int) bool
	visit = func(n int) bool {
		color[n] = gray
		stack = append(stack, n)
		for _, t := range g.out[n] {
			switch color[t] {
			case gray:
				start := slices.Index(stack, t)
				for _, s := range stack[start:] {
					found = append(found, g.nodes[s].ID)
				}
				found = append(found, g.nodes[t].ID)
				return true
			case white:
				if visit(t) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[n] = black
		return false
	}

	for i := range g.nodes {
		if color[i] == white && visit(i) {
			return found
		}
	}
	return nil
}

// Order returns every formula id such that each formula follows the
// formulas whose outputs it reads.
func (g *Graph) Order() ([]string, error) {
	if g.order == nil && len(g.nodes) > 0 {
		return nil, &formula.CyclicDependencyError{Cycle: slices.Clone(g.cycle)}
	}
	return g.ids(g.order), nil
}

// Affected returns, in evaluation order, the formulas that transitively read
// key. Formulas outside that set are never included.
func (g *Graph) Affected(key string) []string {
	if g.order == nil {
		return nil
	}

	reach := make([]bool, len(g.nodes))
	queue := slices.Clone(g.readers[key])
	for _, n := range queue {
		reach[n] = true
	}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		for _, t := range g.out[n] {
			if !reach[t] {
				reach[t] = true
				queue = append(queue, t)
			}
		}
	}

	var ids []string
	for _, n := range g.order {
		if reach[n] {
			ids = append(ids, g.nodes[n].ID)
		}
	}
	return ids
}

func (g *Graph) Node(id string) (Node, bool) {
	i, ok := g.index[id]
	if !ok {
		return Node{}, false
	}
	return g.nodes[i], true
}

// Writer returns the formula that computes key.
func (g *Graph) Writer(key string) (string, bool) {
	i, ok := g.writers[key]
	if !ok {
		return "", false
	}
	return g.nodes[i].ID, true
}

func (g *Graph) Nodes() []Node { return slices.Clone(g.nodes) }

func (g *Graph) ids(idx []int) []string {
	out := make([]string, len(idx))
	for i, n := range idx {
		out[i] = g.nodes[n].ID
	}
	return out
}
