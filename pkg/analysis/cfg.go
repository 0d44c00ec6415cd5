// Package analysis implements the control-flow and dominance analyses
// a function body is checked and scheduled against: the CFG itself,
// the dominator tree (computed via Cooper-Harvey-Kennedy's simple, fast
// algorithm over a reverse-postorder numbering), dominator-tree
// pre-order indices for O(1) block dominance queries, and dominance
// frontiers.
package analysis

import "github.com/feltvm/feltc/pkg/hir"

// Edge is a predecessor edge: p branches to the owning block via term.
type Edge struct {
	Pred hir.BlockID
	Term hir.InstID
}

// CFG is the control-flow graph of one function, computed on demand and
// invalidated explicitly by callers after structural mutation — it
// caches nothing that isn't rebuilt by BuildCFG.
type CFG struct {
	fn    *hir.Function
	preds map[int][]Edge
	succs map[int][]hir.BlockID
	order []hir.BlockID
}

// BuildCFG walks every block's terminator and records predecessor and
// successor edges.
func BuildCFG(fn *hir.Function) *CFG {
	c := &CFG{
		fn:    fn,
		preds: make(map[int][]Edge),
		succs: make(map[int][]hir.BlockID),
		order: fn.Blocks(),
	}
	for _, b := range c.order {
		term := fn.Terminator(b)
		if term.IsNil() {
			continue
		}
		inst := fn.InstData(term)
		for _, succ := range successorsOf(inst) {
			c.succs[b.Index()] = append(c.succs[b.Index()], succ)
			c.preds[succ.Index()] = append(c.preds[succ.Index()], Edge{Pred: b, Term: term})
		}
	}
	return c
}

func successorsOf(inst hir.Inst) []hir.BlockID {
	switch p := inst.Payload.(type) {
	case *hir.BrPayload:
		return []hir.BlockID{p.Target}
	case *hir.CondBrPayload:
		return []hir.BlockID{p.TrueTarget, p.FalseTarget}
	case *hir.SwitchPayload:
		out := make([]hir.BlockID, 0, len(p.Cases)+1)
		for _, c := range p.Cases {
			out = append(out, c.Target)
		}
		return append(out, p.DefaultDest)
	default:
		return nil
	}
}

// Predecessors returns b's predecessor edges.
func (c *CFG) Predecessors(b hir.BlockID) []Edge {
	return c.preds[b.Index()]
}

// Successors returns b's successor blocks.
func (c *CFG) Successors(b hir.BlockID) []hir.BlockID {
	return c.succs[b.Index()]
}

// Blocks returns every block of the function, in creation order.
func (c *CFG) Blocks() []hir.BlockID {
	return c.order
}

// Entry returns the function's entry block.
func (c *CFG) Entry() hir.BlockID {
	return c.fn.Entry
}

// Postorder returns a DFS postorder traversal of the CFG starting at
// the entry block; blocks unreachable from entry are omitted (spec
// §4.2 step 1: "unreachable blocks remain index 0", modeled here by
// their simple absence from the traversal and a zero RPO number).
func (c *CFG) Postorder() []hir.BlockID {
	visited := make(map[int]bool)
	var order []hir.BlockID
	var visit func(b hir.BlockID)
	visit = func(b hir.BlockID) {
		if visited[b.Index()] {
			return
		}
		visited[b.Index()] = true
		for _, s := range c.succs[b.Index()] {
			visit(s)
		}
		order = append(order, b)
	}
	if !c.Entry().IsNil() {
		visit(c.Entry())
	}
	return order
}
