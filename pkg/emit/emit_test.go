package emit

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/feltvm/feltc/pkg/asm"
	"github.com/feltvm/feltc/pkg/diag"
	"github.com/feltvm/feltc/pkg/hir"
	"github.com/feltvm/feltc/pkg/types"
)

func sig(results ...types.Type) *types.Signature {
	var params []types.Param
	for _, t := range results {
		params = append(params, types.Param{Type: t})
	}
	return &types.Signature{Results: params}
}

// buildAddReturn builds: fn f(a, b) { %2 = add(a, b); return %2 }
func buildAddReturn(t *testing.T) *hir.Function {
	t.Helper()
	fn := hir.NewFunction(hir.FunctionIdent{Module: "m", Function: "f"}, sig(types.I32()))
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
	fn.AppendInst(entry, hir.InstSpec{
		Opcode:   hir.OpReturn,
		Operands: []hir.ValueID{sumVal},
		Payload:  &hir.ReturnPayload{},
	})
	return fn
}

func TestEmitFunctionSimpleAddReturn(t *testing.T) {
	fn := buildAddReturn(t)
	h := diag.NewHandler(nil)
	out := EmitFunction(fn, Options{}, h)
	require.False(t, h.HasErrors())
	require.NotEmpty(t, out.Code)

	text := asm.Sprint(&asm.Program{Functions: []*asm.Function{out}})
	require.Contains(t, text, "u32.add")
	require.Contains(t, text, "ret")
}

// buildMulByOneReturn builds: fn f(a) { %1 = mul_imm(a, 1); return %1 }
// exercising the mul-by-one no-op specialization.
func buildMulByOneReturn(t *testing.T) *hir.Function {
	t.Helper()
	fn := hir.NewFunction(hir.FunctionIdent{Module: "m", Function: "g"}, sig(types.I32()))
	entry := fn.CreateBlock()
	a := fn.AppendBlockParam(entry, types.I32())
	fn.SetInsertPoint(entry)

	mulOne := fn.AppendInst(entry, hir.InstSpec{
		Opcode:      hir.OpBinaryImm,
		Operands:    []hir.ValueID{a},
		ResultTypes: []types.Type{types.I32()},
		Payload:     &hir.BinaryImmPayload{Op: hir.BMul, Type: types.I32(), Imm: 1},
	})
	result := fn.InstData(mulOne).Results[0]
	fn.AppendInst(entry, hir.InstSpec{
		Opcode:   hir.OpReturn,
		Operands: []hir.ValueID{result},
		Payload:  &hir.ReturnPayload{},
	})
	return fn
}

func TestEmitBinaryImmMulByOneIsNoOp(t *testing.T) {
	fn := buildMulByOneReturn(t)
	h := diag.NewHandler(nil)
	out := EmitFunction(fn, Options{}, h)
	require.False(t, h.HasErrors())

	for _, i := range out.Code {
		require.NotEqual(t, asm.MnU32Mul, i.Op, "mul_imm(_,1) must not emit a multiply")
	}
}

// buildIncrReturn builds: fn f(a) { %1 = add_imm(a, 1) unchecked; return %1 }
// exercising the add_imm(_,1) unchecked -> incr fast path.
func buildIncrReturn(t *testing.T) *hir.Function {
	t.Helper()
	fn := hir.NewFunction(hir.FunctionIdent{Module: "m", Function: "h"}, sig(types.I32()))
	entry := fn.CreateBlock()
	a := fn.AppendBlockParam(entry, types.I32())
	fn.SetInsertPoint(entry)

	inc := fn.AppendInst(entry, hir.InstSpec{
		Opcode:      hir.OpBinaryImm,
		Operands:    []hir.ValueID{a},
		ResultTypes: []types.Type{types.I32()},
		Overflow:    hir.OverflowUnchecked,
		Payload:     &hir.BinaryImmPayload{Op: hir.BAdd, Type: types.I32(), Imm: 1},
	})
	result := fn.InstData(inc).Results[0]
	fn.AppendInst(entry, hir.InstSpec{
		Opcode:   hir.OpReturn,
		Operands: []hir.ValueID{result},
		Payload:  &hir.ReturnPayload{},
	})
	return fn
}

func TestEmitBinaryImmAddOneUncheckedUsesIncr(t *testing.T) {
	fn := buildIncrReturn(t)
	h := diag.NewHandler(nil)
	out := EmitFunction(fn, Options{}, h)
	require.False(t, h.HasErrors())

	found := false
	for _, i := range out.Code {
		if i.Op == asm.MnIncr {
			found = true
		}
	}
	require.True(t, found, "expected add_imm(_,1) unchecked to lower to incr")
}

func TestStackApplyCopyWidensForWideValues(t *testing.T) {
	fn := hir.NewFunction(hir.FunctionIdent{Module: "m", Function: "w"}, sig(types.I64()))
	entry := fn.CreateBlock()
	p := fn.AppendBlockParam(entry, types.I64())

	s := newStack(fn, []hir.ValueID{p})
	require.Equal(t, 2, s.widthOf(p))

	actions := s.applyCopy(0)
	require.Len(t, actions, 2, "a width-2 value must emit two single-slot copies")
	require.Equal(t, asm.MnCopy, actions[0].Op)
	require.Equal(t, asm.MnCopy, actions[1].Op)
}
