package analysis

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/feltvm/feltc/pkg/hir"
	"github.com/feltvm/feltc/pkg/types"
)

// diamond builds the classic entry -> (left, right) -> join diamond CFG
// and returns the function plus its four blocks in creation order.
func diamond(t *testing.T) (*hir.Function, []hir.BlockID) {
	t.Helper()
	sig := &types.Signature{Results: []types.Param{{Type: types.I32()}}}
	fn := hir.NewFunction(hir.FunctionIdent{Module: "m", Function: "f"}, sig)

	entry := fn.CreateBlock()
	left := fn.CreateBlock()
	right := fn.CreateBlock()
	join := fn.CreateBlock()

	cond := fn.AppendBlockParam(entry, types.Bool{})
	fn.SetInsertPoint(entry)
	fn.AppendInst(entry, hir.InstSpec{
		Opcode:   hir.OpCondBr,
		Operands: []hir.ValueID{cond},
		Payload:  &hir.CondBrPayload{TrueTarget: left, FalseTarget: right},
	})

	fn.SetInsertPoint(left)
	fn.AppendInst(left, hir.InstSpec{Opcode: hir.OpBr, Payload: &hir.BrPayload{Target: join}})

	fn.SetInsertPoint(right)
	fn.AppendInst(right, hir.InstSpec{Opcode: hir.OpBr, Payload: &hir.BrPayload{Target: join}})

	fn.SetInsertPoint(join)
	fn.AppendInst(join, hir.InstSpec{Opcode: hir.OpReturn, Payload: &hir.ReturnPayload{}})

	return fn, []hir.BlockID{entry, left, right, join}
}

func TestDomTreeDiamond(t *testing.T) {
	fn, blocks := diamond(t)
	entry, left, right, join := blocks[0], blocks[1], blocks[2], blocks[3]

	cfg := BuildCFG(fn)
	dt := BuildDomTree(cfg)

	require.True(t, dt.Reachable(join))

	idomLeft, ok := dt.Idom(left)
	require.True(t, ok)
	require.Equal(t, entry, idomLeft)

	idomJoin, ok := dt.Idom(join)
	require.True(t, ok)
	require.Equal(t, entry, idomJoin, "join's idom is entry, not left or right")

	require.True(t, dt.DominatesBlock(entry, join))
	require.False(t, dt.DominatesBlock(left, join))
	require.False(t, dt.DominatesBlock(right, join))
	require.Equal(t, entry, dt.CommonDominator(left, right))
}

func TestFrontierDiamond(t *testing.T) {
	fn, blocks := diamond(t)
	entry, left, right, join := blocks[0], blocks[1], blocks[2], blocks[3]
	_ = entry

	cfg := BuildCFG(fn)
	dt := BuildDomTree(cfg)
	fr := BuildFrontier(cfg, dt)

	require.True(t, fr.Contains(left, join))
	require.True(t, fr.Contains(right, join))
	require.Empty(t, fr.Of(entry))
}
