package schedule

import (
	"fmt"
	"sort"
)

// UnexpectedCycleError is returned when the dependency graph of a block
// contains a cycle, which should be impossible given SSA plus the
// one-terminator-per-block rule; surfacing it as an error rather than
// panicking lets callers attribute it to a specific miscompiled block.
type UnexpectedCycleError struct {
	Block int
}

func (e *UnexpectedCycleError) Error() string {
	return fmt.Sprintf("unexpected cycle in dependency graph of block %d", e.Block)
}

// treeEdge is an edge between two tree-graph nodes (former cutset
// edges), annotated with which underlying dependency-graph nodes it
// connects.
type treeEdge struct {
	FromRoot NodeID
	ToRoot   NodeID
	FromNode NodeID
	ToNode   NodeID
}

// TreeGraph condenses a DependencyGraph by identifying multi-use nodes
// (more than one incoming/dependent edge), cutting every edge into
// them, and collapsing each remaining connected component into a
// single node keyed by its unique root (spec §4.3 "Tree graph").
type TreeGraph struct {
	dep       *DependencyGraph
	root      map[NodeID]NodeID // node -> its tree's root
	treeOut   map[NodeID][]treeEdge
	treeIn    map[NodeID][]treeEdge
	roots     []NodeID
}

// BuildTreeGraph condenses dep per spec §4.3 steps 1-3.
func BuildTreeGraph(dep *DependencyGraph) *TreeGraph {
	multiUse := make(map[NodeID]bool)
	for _, n := range dep.Nodes() {
		if len(dep.Dependents(n.ID)) > 1 {
			multiUse[n.ID] = true
		}
	}

	// Cutset: every edge whose successor (dependency target) is
	// multi-use. Note dependency-graph edges run dependent -> dependency;
	// "successor" per the treegraph algorithm refers to the node being
	// depended on.
	inCutset := make(map[edge]bool)
	for _, n := range dep.Nodes() {
		if !multiUse[n.ID] {
			continue
		}
		for _, dependent := range dep.Dependents(n.ID) {
			inCutset[edge{From: dependent, To: n.ID}] = true
		}
	}

	// Union-Find over the remaining (non-cutset) edges to find connected
	// components; each component's unique source (no remaining outgoing
	// edge with no incoming non-cutset edge... in practice, the node with
	// no remaining producer above it) is its root.
	parent := make(map[NodeID]NodeID)
	var find func(NodeID) NodeID
	find = func(x NodeID) NodeID {
		if parent[x] != x {
			parent[x] = find(parent[x])
		}
		return parent[x]
	}
	union := func(a, b NodeID) {
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[ra] = rb
		}
	}
	for _, n := range dep.Nodes() {
		parent[n.ID] = n.ID
	}
	for _, n := range dep.Nodes() {
		for _, to := range dep.Dependencies(n.ID) {
			if inCutset[edge{From: n.ID, To: to}] {
				continue
			}
			union(n.ID, to)
		}
	}

	// Within each component, the root is the node with the smallest
	// bottom-up index among nodes that are not themselves the
	// dependency-target of a non-cutset edge from within the same
	// component (i.e. the unique node nothing else in-component depends
	// upon from above) — equivalently, the node that is not any other
	// component member's Dependencies() target. We approximate this
	// robustly by picking, per component, the member with no in-component
	// predecessor via a non-cutset edge.
	hasInComponentConsumer := make(map[NodeID]bool)
	for _, n := range dep.Nodes() {
		for _, to := range dep.Dependencies(n.ID) {
			if inCutset[edge{From: n.ID, To: to}] {
				continue
			}
			hasInComponentConsumer[to] = true
		}
	}
	compRoot := make(map[NodeID]NodeID)
	for _, n := range dep.Nodes() {
		comp := find(n.ID)
		if !hasInComponentConsumer[n.ID] {
			if existing, ok := compRoot[comp]; !ok || n.ID < existing {
				compRoot[comp] = n.ID
			}
		}
	}

	t := &TreeGraph{
		dep:     dep,
		root:    make(map[NodeID]NodeID),
		treeOut: make(map[NodeID][]treeEdge),
		treeIn:  make(map[NodeID][]treeEdge),
	}
	rootSet := make(map[NodeID]bool)
	for _, n := range dep.Nodes() {
		r := compRoot[find(n.ID)]
		t.root[n.ID] = r
		rootSet[r] = true
	}
	for r := range rootSet {
		t.roots = append(t.roots, r)
	}
	sort.Slice(t.roots, func(i, j int) bool { return t.roots[i] < t.roots[j] })

	// Re-add cutset edges as treegraph edges between the roots of their
	// endpoints.
	for e := range inCutset {
		te := treeEdge{
			FromRoot: t.root[e.From],
			ToRoot:   t.root[e.To],
			FromNode: e.From,
			ToNode:   e.To,
		}
		t.treeOut[te.FromRoot] = append(t.treeOut[te.FromRoot], te)
		t.treeIn[te.ToRoot] = append(t.treeIn[te.ToRoot], te)
	}
	return t
}

// Root returns the tree-graph root that owns dependency-graph node n.
func (t *TreeGraph) Root(n NodeID) NodeID { return t.root[n] }

// IsRoot reports whether n is itself a tree root.
func (t *TreeGraph) IsRoot(n NodeID) bool { return t.root[n] == n }

// Toposort runs Kahn's algorithm over the condensed tree graph: enqueue
// every root with no predecessor (ties broken by node identifier, which
// corresponds to source order), repeatedly dequeue, emit, remove
// outgoing edges, and enqueue any tree that becomes rootless.
func (t *TreeGraph) Toposort() ([]NodeID, error) {
	indegree := make(map[NodeID]int)
	for _, r := range t.roots {
		indegree[r] = 0
	}
	for _, r := range t.roots {
		for range t.treeIn[r] {
			indegree[r]++
		}
	}

	var ready []NodeID
	for _, r := range t.roots {
		if indegree[r] == 0 {
			ready = append(ready, r)
		}
	}
	sort.Slice(ready, func(i, j int) bool { return ready[i] < ready[j] })

	var order []NodeID
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool { return ready[i] < ready[j] })
		r := ready[0]
		ready = ready[1:]
		order = append(order, r)
		for _, e := range t.treeOut[r] {
			indegree[e.ToRoot]--
			if indegree[e.ToRoot] == 0 {
				ready = append(ready, e.ToRoot)
			}
		}
	}
	if len(order) != len(t.roots) {
		return nil, &UnexpectedCycleError{}
	}
	return order, nil
}
