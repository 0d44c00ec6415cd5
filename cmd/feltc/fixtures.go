package main

import (
	"github.com/feltvm/feltc/pkg/hir"
	"github.com/feltvm/feltc/pkg/types"
)

// Fixture programs standing in for the textual-MIR front end (spec §1
// names a separate front end as an "external collaborator" and §6's
// printable MIR form exists only "for tests and --emit=hir"; the
// fixtures are not parsed from MIR text). Each fixture mirrors one of spec §8's
// end-to-end scenarios, built directly against the pkg/hir builder API
// the way emit_test.go and schedule_test.go already do.

func u32Sig(params int, extra ...types.Type) *types.Signature {
	sig := &types.Signature{Linkage: types.LinkagePublic}
	for i := 0; i < params; i++ {
		sig.Params = append(sig.Params, types.Param{Type: types.U32()})
	}
	for _, t := range extra {
		sig.Results = append(sig.Results, types.Param{Type: t})
	}
	return sig
}

// buildFibModule builds spec §8.1: fib(n: u32) -> u32, iterative.
//
//	fn fib(n) {
//	entry:
//	  br loop(0, 0, 1)
//	loop(i, a, b):
//	  cond = i < n
//	  cond_br cond, body(i, a, b), exit(a)
//	body(i, a, b):
//	  i2 = i + 1 unchecked
//	  sum = a + b unchecked
//	  br loop(i2, b, sum)
//	exit(a):
//	  return a
//	}
func buildFibModule() *hir.Module {
	fn := hir.NewFunction(hir.FunctionIdent{Module: "fib", Function: "fib"}, u32Sig(1, types.U32()))
	entry := fn.CreateBlock()
	n := fn.AppendBlockParam(entry, types.U32())

	loop := fn.CreateBlock()
	i := fn.AppendBlockParam(loop, types.U32())
	a := fn.AppendBlockParam(loop, types.U32())
	b := fn.AppendBlockParam(loop, types.U32())

	body := fn.CreateBlock()
	bi := fn.AppendBlockParam(body, types.U32())
	ba := fn.AppendBlockParam(body, types.U32())
	bb := fn.AppendBlockParam(body, types.U32())

	exit := fn.CreateBlock()
	ea := fn.AppendBlockParam(exit, types.U32())

	fn.SetInsertPoint(entry)
	c0a := constFrom(fn, entry, n, 0)
	c0b := constFrom(fn, entry, n, 0)
	c1 := constFrom(fn, entry, n, 1)
	fn.AppendInst(entry, hir.InstSpec{
		Opcode:   hir.OpBr,
		Operands: []hir.ValueID{c0a, c0b, c1},
		Payload:  &hir.BrPayload{Target: loop},
	})

	fn.SetInsertPoint(loop)
	cond := fn.AppendInst(loop, hir.InstSpec{
		Opcode:      hir.OpBinary,
		Operands:    []hir.ValueID{i, n},
		ResultTypes: []types.Type{types.Bool{}},
		Payload:     &hir.BinaryPayload{Op: hir.BLt, Type: types.U32()},
	})
	condVal := fn.InstData(cond).Results[0]
	fn.AppendInst(loop, hir.InstSpec{
		Operands: []hir.ValueID{condVal},
		Opcode:   hir.OpCondBr,
		Payload: &hir.CondBrPayload{
			TrueTarget:  body,
			FalseTarget: exit,
			TrueArgs:    []hir.ValueID{i, a, b},
			FalseArgs:   []hir.ValueID{a},
		},
	})

	fn.SetInsertPoint(body)
	i2 := fn.AppendInst(body, hir.InstSpec{
		Opcode:      hir.OpBinaryImm,
		Operands:    []hir.ValueID{bi},
		ResultTypes: []types.Type{types.U32()},
		Overflow:    hir.OverflowUnchecked,
		Payload:     &hir.BinaryImmPayload{Op: hir.BAdd, Type: types.U32(), Imm: 1},
	})
	sum := fn.AppendInst(body, hir.InstSpec{
		Opcode:      hir.OpBinary,
		Operands:    []hir.ValueID{ba, bb},
		ResultTypes: []types.Type{types.U32()},
		Overflow:    hir.OverflowUnchecked,
		Payload:     &hir.BinaryPayload{Op: hir.BAdd, Type: types.U32()},
	})
	fn.AppendInst(body, hir.InstSpec{
		Opcode:   hir.OpBr,
		Operands: []hir.ValueID{fn.InstData(i2).Results[0], bb, fn.InstData(sum).Results[0]},
		Payload:  &hir.BrPayload{Target: loop},
	})

	fn.SetInsertPoint(exit)
	fn.AppendInst(exit, hir.InstSpec{
		Opcode:   hir.OpReturn,
		Operands: []hir.ValueID{ea},
		Payload:  &hir.ReturnPayload{},
	})

	m := hir.NewModule("fib")
	m.AddFunction(fn)
	return m
}

// constFrom materializes the literal v as a u32 value, anchored off any
// already-live operand in scope (these fixtures build HIR directly
// rather than through a front end with its own constant pool, so every
// value must trace back to a block parameter). It exploits two emitter
// specializations from spec §4.5: mul_imm(_, 0) drops its operand and
// pushes a literal 0 (pkg/emit/int32.go emitBinaryImm), and
// inc_imm(_, v) (unary.imm(UInc) with a fused immediate) adds v to
// whatever is on top - applied to that freshly pushed zero, the result
// is the literal v regardless of anchor's value.
func constFrom(fn *hir.Function, block hir.BlockID, anchor hir.ValueID, v int64) hir.ValueID {
	zero := fn.AppendInst(block, hir.InstSpec{
		Opcode:      hir.OpBinaryImm,
		Operands:    []hir.ValueID{anchor},
		ResultTypes: []types.Type{types.U32()},
		Overflow:    hir.OverflowUnchecked,
		Payload:     &hir.BinaryImmPayload{Op: hir.BMul, Type: types.U32(), Imm: 0},
	})
	zeroVal := fn.InstData(zero).Results[0]
	if v == 0 {
		return zeroVal
	}
	lit := fn.AppendInst(block, hir.InstSpec{
		Opcode:      hir.OpUnaryImm,
		Operands:    []hir.ValueID{zeroVal},
		ResultTypes: []types.Type{types.U32()},
		Overflow:    hir.OverflowUnchecked,
		Payload:     &hir.UnaryImmPayload{Op: hir.UInc, Type: types.U32(), Imm: v},
	})
	return fn.InstData(lit).Results[0]
}

// buildSumMatrixModule builds spec §8.2: sum_matrix(ptr, rows, cols) -> u32,
// summing a rows*cols grid of u32 words starting at ptr.
//
//	fn sum_matrix(ptr, rows, cols) {
//	entry:
//	  total = rows * cols unchecked       ; n = total element count
//	  br loop(0, 0)
//	loop(k, acc):
//	  cond = k < total
//	  cond_br cond, body(k, acc), exit(acc)
//	body(k, acc):
//	  off = k * 4 unchecked
//	  addr = ptr + off unchecked
//	  v = load.i32 addr
//	  acc2 = acc + v unchecked
//	  k2 = k + 1 unchecked
//	  br loop(k2, acc2)
//	exit(acc):
//	  return acc
//	}
func buildSumMatrixModule() *hir.Module {
	fn := hir.NewFunction(hir.FunctionIdent{Module: "sum_matrix", Function: "sum_matrix"}, u32Sig(3, types.U32()))
	entry := fn.CreateBlock()
	ptr := fn.AppendBlockParam(entry, types.U32())
	rows := fn.AppendBlockParam(entry, types.U32())
	cols := fn.AppendBlockParam(entry, types.U32())

	loop := fn.CreateBlock()
	k := fn.AppendBlockParam(loop, types.U32())
	acc := fn.AppendBlockParam(loop, types.U32())

	body := fn.CreateBlock()
	bk := fn.AppendBlockParam(body, types.U32())
	bacc := fn.AppendBlockParam(body, types.U32())

	exit := fn.CreateBlock()
	eacc := fn.AppendBlockParam(exit, types.U32())

	fn.SetInsertPoint(entry)
	total := fn.AppendInst(entry, hir.InstSpec{
		Opcode:      hir.OpBinary,
		Operands:    []hir.ValueID{rows, cols},
		ResultTypes: []types.Type{types.U32()},
		Overflow:    hir.OverflowUnchecked,
		Payload:     &hir.BinaryPayload{Op: hir.BMul, Type: types.U32()},
	})
	totalVal := fn.InstData(total).Results[0]
	zeroK := constFrom(fn, entry, ptr, 0)
	zeroAcc := constFrom(fn, entry, ptr, 0)
	fn.AppendInst(entry, hir.InstSpec{
		Opcode:   hir.OpBr,
		Operands: []hir.ValueID{zeroK, zeroAcc},
		Payload:  &hir.BrPayload{Target: loop},
	})

	fn.SetInsertPoint(loop)
	cond := fn.AppendInst(loop, hir.InstSpec{
		Opcode:      hir.OpBinary,
		Operands:    []hir.ValueID{k, totalVal},
		ResultTypes: []types.Type{types.Bool{}},
		Payload:     &hir.BinaryPayload{Op: hir.BLt, Type: types.U32()},
	})
	condVal := fn.InstData(cond).Results[0]
	fn.AppendInst(loop, hir.InstSpec{
		Operands: []hir.ValueID{condVal},
		Opcode:   hir.OpCondBr,
		Payload: &hir.CondBrPayload{
			TrueTarget:  body,
			FalseTarget: exit,
			TrueArgs:    []hir.ValueID{k, acc},
			FalseArgs:   []hir.ValueID{acc},
		},
	})

	fn.SetInsertPoint(body)
	off := fn.AppendInst(body, hir.InstSpec{
		Opcode:      hir.OpBinaryImm,
		Operands:    []hir.ValueID{bk},
		ResultTypes: []types.Type{types.U32()},
		Overflow:    hir.OverflowUnchecked,
		Payload:     &hir.BinaryImmPayload{Op: hir.BMul, Type: types.U32(), Imm: 4},
	})
	addr := fn.AppendInst(body, hir.InstSpec{
		Opcode:      hir.OpBinary,
		Operands:    []hir.ValueID{ptr, fn.InstData(off).Results[0]},
		ResultTypes: []types.Type{types.U32()},
		Overflow:    hir.OverflowUnchecked,
		Payload:     &hir.BinaryPayload{Op: hir.BAdd, Type: types.U32()},
	})
	v := fn.AppendInst(body, hir.InstSpec{
		Opcode:      hir.OpLoad,
		Operands:    []hir.ValueID{fn.InstData(addr).Results[0]},
		ResultTypes: []types.Type{types.U32()},
		Payload:     &hir.LoadPayload{Chunk: hir.ChunkI32, Type: types.U32()},
	})
	acc2 := fn.AppendInst(body, hir.InstSpec{
		Opcode:      hir.OpBinary,
		Operands:    []hir.ValueID{bacc, fn.InstData(v).Results[0]},
		ResultTypes: []types.Type{types.U32()},
		Overflow:    hir.OverflowUnchecked,
		Payload:     &hir.BinaryPayload{Op: hir.BAdd, Type: types.U32()},
	})
	k2 := fn.AppendInst(body, hir.InstSpec{
		Opcode:      hir.OpBinaryImm,
		Operands:    []hir.ValueID{bk},
		ResultTypes: []types.Type{types.U32()},
		Overflow:    hir.OverflowUnchecked,
		Payload:     &hir.BinaryImmPayload{Op: hir.BAdd, Type: types.U32(), Imm: 1},
	})
	fn.AppendInst(body, hir.InstSpec{
		Opcode:   hir.OpBr,
		Operands: []hir.ValueID{fn.InstData(k2).Results[0], fn.InstData(acc2).Results[0]},
		Payload:  &hir.BrPayload{Target: loop},
	})

	fn.SetInsertPoint(exit)
	fn.AppendInst(exit, hir.InstSpec{
		Opcode:   hir.OpReturn,
		Operands: []hir.ValueID{eacc},
		Payload:  &hir.ReturnPayload{},
	})

	m := hir.NewModule("sum_matrix")
	m.AddFunction(fn)
	return m
}

// buildStoreLoadModule builds spec §8.3: store_load(ptr, val) -> u32,
// `store(ptr, val); return load(ptr)`.
func buildStoreLoadModule() *hir.Module {
	fn := hir.NewFunction(hir.FunctionIdent{Module: "store_load", Function: "store_load"}, u32Sig(2, types.U32()))
	entry := fn.CreateBlock()
	ptr := fn.AppendBlockParam(entry, types.U32())
	val := fn.AppendBlockParam(entry, types.U32())
	fn.SetInsertPoint(entry)

	fn.AppendInst(entry, hir.InstSpec{
		Opcode:   hir.OpStore,
		Operands: []hir.ValueID{ptr, val},
		Payload:  &hir.StorePayload{Chunk: hir.ChunkI32},
	})
	loaded := fn.AppendInst(entry, hir.InstSpec{
		Opcode:      hir.OpLoad,
		Operands:    []hir.ValueID{ptr},
		ResultTypes: []types.Type{types.U32()},
		Payload:     &hir.LoadPayload{Chunk: hir.ChunkI32, Type: types.U32()},
	})
	fn.AppendInst(entry, hir.InstSpec{
		Opcode:   hir.OpReturn,
		Operands: []hir.ValueID{fn.InstData(loaded).Results[0]},
		Payload:  &hir.ReturnPayload{},
	})

	m := hir.NewModule("store_load")
	m.AddFunction(fn)
	return m
}

// fixtures maps the CLI's selectable demo programs to their builders
// and the entrypoint to invoke them at (spec §8 scenario names).
var fixtures = map[string]func() *hir.Module{
	"fib":        buildFibModule,
	"sum_matrix": buildSumMatrixModule,
	"store_load": buildStoreLoadModule,
}

var fixtureOrder = []string{"fib", "sum_matrix", "store_load"}
