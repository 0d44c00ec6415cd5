package analysis

import "github.com/feltvm/feltc/pkg/hir"

// stride spaces reverse-postorder numbers apart, leaving room for
// localized renumbering after small CFG edits without a full
// recomputation (spec §4.2 step 2).
const stride = 4

// DomTree is the dominator tree of one function, computed via
// Cooper-Harvey-Kennedy's "simple, fast" iterative algorithm over a
// reverse-postorder numbering, plus a DFS pre-order numbering
// (pre_number/pre_max) that answers block-granularity dominance queries
// in O(1).
type DomTree struct {
	cfg      *CFG
	rpo      map[int]int           // block index -> rpo number
	idom     map[int]hir.BlockID   // block index -> immediate dominator block
	reach    map[int]bool
	preNum   map[int]int
	preMax   map[int]int
}

// BuildDomTree computes the dominator tree of cfg's function.
func BuildDomTree(cfg *CFG) *DomTree {
	d := &DomTree{
		cfg:    cfg,
		rpo:    make(map[int]int),
		idom:   make(map[int]hir.BlockID),
		reach:  make(map[int]bool),
		preNum: make(map[int]int),
		preMax: make(map[int]int),
	}
	post := cfg.Postorder()
	// Reverse-postorder numbers: (rpo_index + 2) * stride, entry gets 2*stride.
	n := len(post)
	for i, b := range post {
		rpoIndex := n - 1 - i
		d.rpo[b.Index()] = (rpoIndex + 2) * stride
		d.reach[b.Index()] = true
	}
	if cfg.Entry().IsNil() || n == 0 {
		return d
	}
	entry := cfg.Entry()
	d.idom[entry.Index()] = entry

	changed := true
	// Process in reverse postorder (entry first) on each fixpoint pass.
	rpoOrder := make([]hir.BlockID, n)
	for i, b := range post {
		rpoOrder[n-1-i] = b
	}
	for changed {
		changed = false
		for _, b := range rpoOrder {
			if b == entry {
				continue
			}
			var newIdom hir.BlockID
			hasIdom := false
			for _, e := range cfg.Predecessors(b) {
				p := e.Pred
				if _, ok := d.idom[p.Index()]; !ok {
					continue // predecessor not yet processed this pass
				}
				if !hasIdom {
					newIdom = p
					hasIdom = true
					continue
				}
				newIdom = d.intersect(newIdom, p)
			}
			if !hasIdom {
				continue
			}
			if old, ok := d.idom[b.Index()]; !ok || old != newIdom {
				d.idom[b.Index()] = newIdom
				changed = true
			}
		}
	}
	d.computePreOrder(entry)
	return d
}

// intersect finds the common dominator of a and b by walking both
// idom chains, using the RPO numbering to decide which side to advance
// (Cooper-Harvey-Kennedy's invariant: a node's RPO number is always
// greater than its dominator's).
func (d *DomTree) intersect(a, b hir.BlockID) hir.BlockID {
	for a != b {
		for d.rpo[a.Index()] > d.rpo[b.Index()] {
			a = d.idom[a.Index()]
		}
		for d.rpo[b.Index()] > d.rpo[a.Index()] {
			b = d.idom[b.Index()]
		}
	}
	return a
}

func (d *DomTree) computePreOrder(entry hir.BlockID) {
	children := make(map[int][]hir.BlockID)
	for idx, parent := range d.idom {
		var b hir.BlockID
		for _, blk := range d.cfg.Blocks() {
			if blk.Index() == idx {
				b = blk
				break
			}
		}
		if b == parent {
			continue // entry's self-loop
		}
		children[parent.Index()] = append(children[parent.Index()], b)
	}
	counter := 0
	var visit func(b hir.BlockID)
	visit = func(b hir.BlockID) {
		counter++
		d.preNum[b.Index()] = counter
		for _, c := range children[b.Index()] {
			visit(c)
		}
		d.preMax[b.Index()] = counter
	}
	visit(entry)
}

// Idom returns the immediate dominator block of b, and whether b is
// reachable from the entry block at all.
func (d *DomTree) Idom(b hir.BlockID) (hir.BlockID, bool) {
	id, ok := d.idom[b.Index()]
	return id, ok
}

// DominatesBlock reports whether a dominates b at block granularity,
// in O(1) via the pre-order numbering: a dominates b iff
// pre(a) <= pre(b) <= preMax(a).
func (d *DomTree) DominatesBlock(a, b hir.BlockID) bool {
	pa, ok := d.preNum[a.Index()]
	if !ok {
		return false
	}
	pb, ok := d.preNum[b.Index()]
	if !ok {
		return false
	}
	return pa <= pb && pb <= d.preMax[a.Index()]
}

// ProgramPoint identifies an instruction's position for finer-than-block
// dominance queries (spec §4.2 "program points").
type ProgramPoint struct {
	Block hir.BlockID
	Index int // position within the block's instruction list, -1 for "block entry"
}

// Dominates answers whether the definition at a dominates the use at b,
// accounting for same-block instruction order as well as block-level
// dominance.
func (d *DomTree) Dominates(a, b ProgramPoint) bool {
	if a.Block == b.Block {
		return a.Index <= b.Index
	}
	return d.DominatesBlock(a.Block, b.Block)
}

// CommonDominator returns the nearest common dominator of a and b.
func (d *DomTree) CommonDominator(a, b hir.BlockID) hir.BlockID {
	return d.intersect(a, b)
}

// Reachable reports whether b was reached from the entry block.
func (d *DomTree) Reachable(b hir.BlockID) bool {
	return d.reach[b.Index()]
}
