package linker

import (
	"fmt"

	"github.com/feltvm/feltc/pkg/hir"
	"github.com/feltvm/feltc/pkg/types"
)

// callEdge is one direct call from caller to callee, with the call
// site's own expected signature (the forward-declaration the caller
// compiled against), used for signature-compatibility validation.
type callEdge struct {
	caller hir.FunctionIdent
	callee hir.FunctionIdent
	sig    *types.Signature
}

// collectCallEdges walks every direct call instruction in fn's body.
func collectCallEdges(fn *hir.Function) []callEdge {
	var edges []callEdge
	for _, b := range fn.Blocks() {
		for _, iid := range fn.BlockInsts(b) {
			inst := fn.InstData(iid)
			if inst.Opcode != hir.OpCallDirect {
				continue
			}
			p := inst.Payload.(*hir.CallPayload)
			edges = append(edges, callEdge{caller: fn.Name, callee: p.Callee, sig: p.Sig})
		}
	}
	return edges
}

// toposortFunctions runs Kahn's algorithm over the given function set
// restricted to edges whose callee is also in the set (used both for
// the per-module local check and the whole-program global check).
// Returns the cycle's member names on failure.
func toposortFunctions(names []hir.FunctionIdent, edges []callEdge) ([]hir.FunctionIdent, error) {
	inSet := make(map[hir.FunctionIdent]bool, len(names))
	for _, n := range names {
		inSet[n] = true
	}
	indegree := make(map[hir.FunctionIdent]int, len(names))
	adj := make(map[hir.FunctionIdent][]hir.FunctionIdent)
	for _, n := range names {
		indegree[n] = 0
	}
	for _, e := range edges {
		if !inSet[e.caller] || !inSet[e.callee] {
			continue
		}
		adj[e.caller] = append(adj[e.caller], e.callee)
		indegree[e.callee]++
	}

	var queue []hir.FunctionIdent
	for _, n := range names {
		if indegree[n] == 0 {
			queue = append(queue, n)
		}
	}
	var order []hir.FunctionIdent
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		order = append(order, n)
		for _, m := range adj[n] {
			indegree[m]--
			if indegree[m] == 0 {
				queue = append(queue, m)
			}
		}
	}
	if len(order) != len(names) {
		var remaining []hir.FunctionIdent
		for _, n := range names {
			if indegree[n] > 0 {
				remaining = append(remaining, n)
			}
		}
		return nil, fmt.Errorf("cycle detected among: %v", remaining)
	}
	return order, nil
}
