package schedule

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/feltvm/feltc/pkg/hir"
	"github.com/feltvm/feltc/pkg/types"
)

// buildAddChain builds: %0 = const; %1 = const; %2 = add(%0,%1); %3 =
// add(%2,%2); return %3 — exercising a multi-use node (%2 feeds %3
// twice) so the tree graph must cut it into its own tree.
func buildAddChain(t *testing.T) (*hir.Function, hir.BlockID) {
	t.Helper()
	sig := &types.Signature{Results: []types.Param{{Type: types.I32()}}}
	fn := hir.NewFunction(hir.FunctionIdent{Module: "m", Function: "f"}, sig)
	entry := fn.CreateBlock()
	a := fn.AppendBlockParam(entry, types.I32())
	b := fn.AppendBlockParam(entry, types.I32())

	fn.SetInsertPoint(entry)
	sum := fn.AppendInst(entry, hir.InstSpec{
		Opcode:      hir.OpBinary,
		Operands:    []hir.ValueID{a, b},
		ResultTypes: []types.Type{types.I32()},
		Payload:     &hir.BinaryPayload{Op: hir.BAdd, Type: types.I32()},
	})
	sumVal := fn.InstData(sum).Results[0]

	doubled := fn.AppendInst(entry, hir.InstSpec{
		Opcode:      hir.OpBinary,
		Operands:    []hir.ValueID{sumVal, sumVal},
		ResultTypes: []types.Type{types.I32()},
		Payload:     &hir.BinaryPayload{Op: hir.BAdd, Type: types.I32()},
	})
	doubledVal := fn.InstData(doubled).Results[0]

	fn.AppendInst(entry, hir.InstSpec{
		Opcode:   hir.OpReturn,
		Operands: []hir.ValueID{doubledVal},
		Payload:  &hir.ReturnPayload{},
	})
	return fn, entry
}

func TestTreeGraphMultiUseSplit(t *testing.T) {
	fn, entry := buildAddChain(t)
	dep := BuildDependencyGraph(fn, entry)
	tree := BuildTreeGraph(dep)

	// Find the Result node for `sum`: it should be multi-use (feeds both
	// operand slots of `doubled`) and therefore its own tree root.
	var sumResult NodeID
	found := false
	for _, n := range dep.Nodes() {
		if n.Kind == NodeResult && len(dep.Dependents(n.ID)) > 1 {
			sumResult = n.ID
			found = true
		}
	}
	require.True(t, found, "expected a multi-use result node")
	require.True(t, tree.IsRoot(sumResult), "a multi-use node must be its own tree root")
}

func TestOrderedTreeGraphAcyclic(t *testing.T) {
	fn, entry := buildAddChain(t)
	dep := BuildDependencyGraph(fn, entry)
	ordered, err := NewOrderedTreeGraph(dep)
	require.NoError(t, err)

	order := ordered.EmissionOrder()
	require.Equal(t, len(dep.Nodes()), len(order), "every node must be visited exactly once")

	seen := make(map[NodeID]bool)
	for _, n := range order {
		require.False(t, seen[n], "node visited twice: %v", n)
		seen[n] = true
	}
}

func TestCmpSchedulingAntisymmetric(t *testing.T) {
	fn, entry := buildAddChain(t)
	dep := BuildDependencyGraph(fn, entry)
	ordered, err := NewOrderedTreeGraph(dep)
	require.NoError(t, err)

	nodes := dep.Nodes()
	for i := range nodes {
		for j := range nodes {
			if i == j {
				continue
			}
			a, b := nodes[i].ID, nodes[j].ID
			if ordered.CmpScheduling(a, b) < 0 {
				require.Greater(t, ordered.CmpScheduling(b, a), 0)
			}
		}
	}
}
