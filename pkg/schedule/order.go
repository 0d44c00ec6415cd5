package schedule

// OrderedTreeGraph is an immutable, fully-constructed, topologically
// sorted TreeGraph: the representation used during instruction
// scheduling, and the type that answers cmp_scheduling queries.
type OrderedTreeGraph struct {
	dep      *DependencyGraph
	tree     *TreeGraph
	ordering []NodeID
	position map[NodeID]int // root -> index in ordering
}

// NewOrderedTreeGraph condenses the given dependency graph into trees
// and topologically sorts the result.
func NewOrderedTreeGraph(dep *DependencyGraph) (*OrderedTreeGraph, error) {
	tree := BuildTreeGraph(dep)
	ordering, err := tree.Toposort()
	if err != nil {
		return nil, err
	}
	pos := make(map[NodeID]int, len(ordering))
	for i, r := range ordering {
		pos[r] = i
	}
	return &OrderedTreeGraph{dep: dep, tree: tree, ordering: ordering, position: pos}, nil
}

// Iter returns nodes in topological order (root nodes only; see
// EmissionOrder for a full per-block instruction order).
func (o *OrderedTreeGraph) Iter() []NodeID {
	return append([]NodeID(nil), o.ordering...)
}

// CmpScheduling answers whether node a is emitted before node b in
// code-generation order (the reverse of the bottom-up visit from the
// terminator): negative if a before b, positive if after, zero if
// equal.
//
// If a and b belong to the same tree, the per-tree bottom-up dependency
// index decides (reversed, since a smaller index means "closer to the
// terminator", i.e. visited first but emitted last). Otherwise, the
// topological position of their respective tree roots decides.
func (o *OrderedTreeGraph) CmpScheduling(a, b NodeID) int {
	if a == b {
		return 0
	}
	aRoot, bRoot := o.tree.Root(a), o.tree.Root(b)
	if aRoot == bRoot {
		ai, bi := o.dep.Index(a), o.dep.Index(b)
		switch {
		case ai < bi:
			return 1 // reversed: smaller index visited first, scheduled after in reverse
		case ai > bi:
			return -1
		default:
			return 0
		}
	}
	ap, bp := o.position[aRoot], o.position[bRoot]
	switch {
	case ap < bp:
		return 1 // toposort visits consumer trees first; emission reverses it
	case ap > bp:
		return -1
	default:
		return 0
	}
}

// IsScheduledBefore reports whether a is emitted before b.
func (o *OrderedTreeGraph) IsScheduledBefore(a, b NodeID) bool {
	return o.CmpScheduling(a, b) < 0
}

// EmissionOrder returns the instruction nodes of the block in
// code-generation emission order: the reverse of the scheduling
// (visitation) order, since the dependency graph was built bottom-up
// from the terminator (spec §4.3 "Scheduling order").
func (o *OrderedTreeGraph) EmissionOrder() []NodeID {
	// Reverse toposort order for roots, then within each root's tree,
	// emit members in decreasing bottom-up index order (larger index =
	// earlier emission: producers before their consumer).
	byRoot := make(map[NodeID][]NodeID)
	for _, n := range o.dep.Nodes() {
		r := o.tree.Root(n.ID)
		byRoot[r] = append(byRoot[r], n.ID)
	}
	var out []NodeID
	for i := len(o.ordering) - 1; i >= 0; i-- {
		root := o.ordering[i]
		members := byRoot[root]
		// Sort by bottom-up index descending: larger index = earlier
		// emission within the tree.
		sortByIndex(members, o.dep)
		out = append(out, members...)
	}
	return out
}

func sortByIndex(nodes []NodeID, dep *DependencyGraph) {
	for i := 1; i < len(nodes); i++ {
		for j := i; j > 0 && dep.Index(nodes[j-1]) < dep.Index(nodes[j]); j-- {
			nodes[j-1], nodes[j] = nodes[j], nodes[j-1]
		}
	}
}
