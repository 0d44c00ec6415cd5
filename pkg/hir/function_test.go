package hir

import (
	"testing"

	"github.com/feltvm/feltc/pkg/diag"
	"github.com/feltvm/feltc/pkg/types"
	"github.com/stretchr/testify/require"
)

func simpleSig() *types.Signature {
	return &types.Signature{
		Linkage: types.LinkagePublic,
		Params:  []types.Param{{Type: types.U32()}},
		Results: []types.Param{{Type: types.U32()}},
	}
}

func TestNewFunctionFirstBlockIsEntry(t *testing.T) {
	fn := NewFunction(FunctionIdent{Module: "m", Function: "f"}, simpleSig())
	require.True(t, fn.Entry.IsNil())

	b0 := fn.CreateBlock()
	require.Equal(t, b0, fn.Entry)

	b1 := fn.CreateBlock()
	require.NotEqual(t, b0, b1)
	require.Equal(t, b0, fn.Entry, "entry should not move once set")
}

func TestAppendBlockParamIndices(t *testing.T) {
	fn := NewFunction(FunctionIdent{Module: "m", Function: "f"}, simpleSig())
	b := fn.CreateBlock()
	p0 := fn.AppendBlockParam(b, types.U32())
	p1 := fn.AppendBlockParam(b, types.Bool{})

	params := fn.BlockParams(b)
	require.Equal(t, []ValueID{p0, p1}, params)

	v0 := fn.ValueData(p0)
	require.Equal(t, ValueBlockParam, v0.Kind)
	require.Equal(t, 0, v0.Index)
	v1 := fn.ValueData(p1)
	require.Equal(t, 1, v1.Index)
}

func TestAppendInstOrderingAndCursor(t *testing.T) {
	fn := NewFunction(FunctionIdent{Module: "m", Function: "f"}, simpleSig())
	b := fn.CreateBlock()
	n := fn.AppendBlockParam(b, types.U32())
	fn.SetInsertPoint(b)

	i1 := fn.AppendInst(b, InstSpec{
		Opcode:      OpUnaryImm,
		Operands:    []ValueID{n},
		ResultTypes: []types.Type{types.U32()},
		Payload:     &UnaryImmPayload{Op: UInc, Type: types.U32(), Imm: 1},
	})
	i2 := fn.AppendInst(b, InstSpec{
		Opcode:   OpReturn,
		Operands: []ValueID{fn.InstData(i1).Results[0]},
		Payload:  &ReturnPayload{},
	})

	insts := fn.BlockInsts(b)
	require.Equal(t, []InstID{i1, i2}, insts)
	require.Equal(t, i2, fn.Terminator(b))
}

func TestInsertInstBeforeSplicesWithoutMovingCursor(t *testing.T) {
	fn := NewFunction(FunctionIdent{Module: "m", Function: "f"}, simpleSig())
	b := fn.CreateBlock()
	n := fn.AppendBlockParam(b, types.U32())
	fn.SetInsertPoint(b)

	ret := fn.AppendInst(b, InstSpec{
		Opcode:   OpReturn,
		Operands: []ValueID{n},
		Payload:  &ReturnPayload{},
	})

	hoisted := fn.InsertInstBefore(ret, InstSpec{
		Opcode:      OpUnaryImm,
		Operands:    []ValueID{n},
		ResultTypes: []types.Type{types.U32()},
		Payload:     &UnaryImmPayload{Op: UInc, Type: types.U32(), Imm: 1},
	})

	insts := fn.BlockInsts(b)
	require.Equal(t, []InstID{hoisted, ret}, insts)
}

func TestReplaceUsesRewritesOperandsAndBlockArgs(t *testing.T) {
	fn := NewFunction(FunctionIdent{Module: "m", Function: "f"}, simpleSig())
	entry := fn.CreateBlock()
	n := fn.AppendBlockParam(entry, types.U32())
	loop := fn.CreateBlock()
	lp := fn.AppendBlockParam(loop, types.U32())

	fn.SetInsertPoint(entry)
	fn.AppendInst(entry, InstSpec{
		Opcode:   OpBr,
		Operands: []ValueID{n},
		Payload:  &BrPayload{Target: loop},
	})

	fn.SetInsertPoint(loop)
	cond := fn.AppendInst(loop, InstSpec{
		Opcode:      OpUnaryImm,
		Operands:    []ValueID{lp},
		ResultTypes: []types.Type{types.Bool{}},
		Payload:     &UnaryImmPayload{Op: UInc, Type: types.U32(), Imm: 0},
	})
	fn.AppendInst(loop, InstSpec{
		Opcode:   OpCondBr,
		Operands: []ValueID{fn.InstData(cond).Results[0]},
		Payload: &CondBrPayload{
			TrueTarget: loop, FalseTarget: loop,
			TrueArgs: []ValueID{lp}, FalseArgs: []ValueID{lp},
		},
	})

	replacement := n
	fn.ReplaceUses(lp, replacement)

	condData := fn.InstData(cond)
	require.Equal(t, []ValueID{replacement}, condData.Operands)

	term := fn.InstData(fn.Terminator(loop))
	cb := term.Payload.(*CondBrPayload)
	require.Equal(t, []ValueID{replacement}, cb.TrueArgs)
	require.Equal(t, []ValueID{replacement}, cb.FalseArgs)
}

func TestValidateReportsMissingTerminator(t *testing.T) {
	fn := NewFunction(FunctionIdent{Module: "m", Function: "f"}, simpleSig())
	fn.CreateBlock() // never terminated

	h := diag.NewHandler(nil)
	fn.Validate(h)
	require.True(t, h.HasErrors())
}

func TestValidateAcceptsWellFormedFunction(t *testing.T) {
	fn := NewFunction(FunctionIdent{Module: "m", Function: "f"}, simpleSig())
	b := fn.CreateBlock()
	n := fn.AppendBlockParam(b, types.U32())
	fn.SetInsertPoint(b)
	fn.AppendInst(b, InstSpec{Opcode: OpReturn, Operands: []ValueID{n}, Payload: &ReturnPayload{}})

	h := diag.NewHandler(nil)
	fn.Validate(h)
	require.False(t, h.HasErrors())
}

func TestCreateLocalAndLocalType(t *testing.T) {
	fn := NewFunction(FunctionIdent{Module: "m", Function: "f"}, simpleSig())
	loc := fn.CreateLocal("x", types.U64())
	require.True(t, types.Equal(types.U64(), fn.LocalType(loc)))
}
