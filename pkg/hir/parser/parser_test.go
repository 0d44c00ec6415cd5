package parser

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/feltvm/feltc/pkg/hir"
	"github.com/feltvm/feltc/pkg/hir/printer"
	"github.com/feltvm/feltc/pkg/types"
)

func sig(params, results []types.Type) *types.Signature {
	sig := &types.Signature{}
	for _, t := range params {
		sig.Params = append(sig.Params, types.Param{Type: t})
	}
	for _, t := range results {
		sig.Results = append(sig.Results, types.Param{Type: t})
	}
	return sig
}

// buildFib builds the recursive Fibonacci function used by the
// end-to-end fixture (spec §8): a three-block function with a
// conditional branch, two checked subtractions, two recursive calls, and
// a checked add.
func buildFib(t *testing.T) *hir.Module {
	t.Helper()
	mod := hir.NewModule("m")
	fn := hir.NewFunction(hir.FunctionIdent{Module: "m", Function: "fib"}, sig([]types.Type{types.I32()}, []types.Type{types.I32()}))

	entry := fn.CreateBlock()
	baseCase := fn.CreateBlock()
	recurse := fn.CreateBlock()

	n := fn.AppendBlockParam(entry, types.I32())
	fn.SetInsertPoint(entry)
	two := fn.AppendInst(entry, hir.InstSpec{
		Opcode: hir.OpBinaryImm, Operands: []hir.ValueID{n}, ResultTypes: []types.Type{types.Bool{}},
		Payload: &hir.BinaryImmPayload{Op: hir.BLt, Type: types.I32(), Imm: 2},
	})
	cond := fn.InstData(two).Results[0]
	fn.AppendInst(entry, hir.InstSpec{
		Opcode: hir.OpCondBr, Operands: []hir.ValueID{cond},
		Payload: &hir.CondBrPayload{TrueTarget: baseCase, FalseTarget: recurse},
	})

	fn.SetInsertPoint(baseCase)
	fn.AppendInst(baseCase, hir.InstSpec{Opcode: hir.OpReturn, Operands: []hir.ValueID{n}, Payload: &hir.ReturnPayload{}})

	fn.SetInsertPoint(recurse)
	nm1 := fn.AppendInst(recurse, hir.InstSpec{
		Opcode: hir.OpBinaryImm, Operands: []hir.ValueID{n}, ResultTypes: []types.Type{types.I32()},
		Overflow: hir.OverflowChecked, Payload: &hir.BinaryImmPayload{Op: hir.BSub, Type: types.I32(), Imm: 1},
	})
	nm2 := fn.AppendInst(recurse, hir.InstSpec{
		Opcode: hir.OpBinaryImm, Operands: []hir.ValueID{n}, ResultTypes: []types.Type{types.I32()},
		Overflow: hir.OverflowChecked, Payload: &hir.BinaryImmPayload{Op: hir.BSub, Type: types.I32(), Imm: 2},
	})
	call1 := fn.AppendInst(recurse, hir.InstSpec{
		Opcode: hir.OpCallDirect, Operands: []hir.ValueID{fn.InstData(nm1).Results[0]}, ResultTypes: []types.Type{types.I32()},
		Payload: &hir.CallPayload{Callee: hir.FunctionIdent{Module: "m", Function: "fib"}},
	})
	call2 := fn.AppendInst(recurse, hir.InstSpec{
		Opcode: hir.OpCallDirect, Operands: []hir.ValueID{fn.InstData(nm2).Results[0]}, ResultTypes: []types.Type{types.I32()},
		Payload: &hir.CallPayload{Callee: hir.FunctionIdent{Module: "m", Function: "fib"}},
	})
	sum := fn.AppendInst(recurse, hir.InstSpec{
		Opcode: hir.OpBinary, Operands: []hir.ValueID{fn.InstData(call1).Results[0], fn.InstData(call2).Results[0]},
		ResultTypes: []types.Type{types.I32()}, Overflow: hir.OverflowChecked,
		Payload: &hir.BinaryPayload{Op: hir.BAdd, Type: types.I32()},
	})
	fn.AppendInst(recurse, hir.InstSpec{Opcode: hir.OpReturn, Operands: []hir.ValueID{fn.InstData(sum).Results[0]}, Payload: &hir.ReturnPayload{}})

	mod.AddFunction(fn)
	return mod
}

func printModule(t *testing.T, m *hir.Module) string {
	t.Helper()
	var b strings.Builder
	printer.New(&b).PrintModule(m)
	return b.String()
}

// TestRoundTripFib prints a hand-built module, parses the text back,
// and reprints the parsed result: the two printed forms must match,
// since both are driven by the same allocation-order numbering
// (entity.Ref.Index) regardless of whether the Function came from the
// builder API directly or via this package.
func TestRoundTripFib(t *testing.T) {
	want := printModule(t, buildFib(t))

	mod, err := New(want).ParseModule()
	require.NoError(t, err)
	require.Len(t, mod.Functions, 1)

	got := printModule(t, mod)
	require.Equal(t, want, got)
}

func TestParseGlobalWithInit(t *testing.T) {
	src := `module m

global public @table : *u8 = 16 bytes;

fn private fast m::f() -> () {
  bb0():
    return;
}
`
	mod, err := New(src).ParseModule()
	require.NoError(t, err)
	require.Len(t, mod.Globals, 1)
	require.Equal(t, "table", mod.Globals[0].Name.Name)
	require.Equal(t, types.LinkagePublic, mod.Globals[0].Linkage)
	require.Len(t, mod.Globals[0].Init, 16)
}

func TestParseKernelFunctionAndSwitch(t *testing.T) {
	src := `kernel m

fn public kernel m::classify(i32) -> (i32) {
  bb0(%0: i32):
    %1 = is_zero(%0) : i32 -> i1;
    switch %1 [0: bb1, default: bb2];
  bb1():
    %2 = add.imm(%0), 10 : i32;
    return %2;
  bb2():
    return %0;
}
`
	mod, err := New(src).ParseModule()
	require.NoError(t, err)
	require.True(t, mod.IsKernel)
	require.Len(t, mod.Functions, 1)
	fn := mod.Functions[0]
	require.Equal(t, types.CCKernel, fn.Sig.CC)

	blocks := fn.Blocks()
	require.Len(t, blocks, 3)
	insts := fn.BlockInsts(blocks[0])
	require.Len(t, insts, 2)

	switchInst := fn.InstData(insts[1])
	payload, ok := switchInst.Payload.(*hir.SwitchPayload)
	require.True(t, ok)
	require.Len(t, payload.Cases, 1)
	require.Equal(t, blocks[1], payload.Cases[0].Target)
	require.Equal(t, blocks[2], payload.DefaultDest)
}

func TestParseTryVariantYieldsBoolSecondResult(t *testing.T) {
	src := `module m

fn private fast m::f(i32, i32) -> (i32, i1) {
  bb0(%0: i32, %1: i32):
    %2, %3 = add.try(%0, %1) : i32;
    return %2, %3;
}
`
	mod, err := New(src).ParseModule()
	require.NoError(t, err)
	fn := mod.Functions[0]
	block := fn.Blocks()[0]
	insts := fn.BlockInsts(block)
	require.Len(t, insts, 2)

	add := fn.InstData(insts[0])
	require.Len(t, add.Results, 2)
	require.Equal(t, types.I32(), fn.ValueData(add.Results[0]).Type)
	require.Equal(t, types.Bool{}, fn.ValueData(add.Results[1]).Type)
	payload, ok := add.Payload.(*hir.BinaryPayload)
	require.True(t, ok)
	require.True(t, payload.Try)
}

func TestParseErrorsAccumulateOnUnknownOpcode(t *testing.T) {
	src := `module m

fn private fast m::f() -> () {
  bb0():
    frobnicate();
    return;
}
`
	p := New(src)
	_, err := p.ParseModule()
	require.Error(t, err)
	require.NotEmpty(t, p.Errors())
}
