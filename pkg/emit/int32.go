package emit

import (
	"github.com/feltvm/feltc/pkg/asm"
	"github.com/feltvm/feltc/pkg/diag"
	"github.com/feltvm/feltc/pkg/hir"
	"github.com/feltvm/feltc/pkg/types"
)

// binaryMnemonic maps a BinaryOp to its native u32 family mnemonic
// (spec §4.5 "Integer operations at 32-bit").
var binaryMnemonic = map[hir.BinaryOp]asm.Mnemonic{
	hir.BAdd:  asm.MnU32Add,
	hir.BSub:  asm.MnU32Sub,
	hir.BMul:  asm.MnU32Mul,
	hir.BDiv:  asm.MnU32Div,
	hir.BMod:  asm.MnU32Mod,
	hir.BAnd:  asm.MnU32And,
	hir.BOr:   asm.MnU32Or,
	hir.BXor:  asm.MnU32Xor,
	hir.BShl:  asm.MnU32Shl,
	hir.BShr:  asm.MnU32Shr,
	hir.BRotl: asm.MnU32Rotl,
	hir.BRotr: asm.MnU32Rotr,
	hir.BMin:  asm.MnU32Min,
	hir.BMax:  asm.MnU32Max,
}

// signedLibMnemonic maps a BinaryOp to its signed-aware library routine,
// used by Checked signed ops (spec: "signed ops dispatch to library
// routines except wrapping arithmetic where two's-complement semantics
// make the unsigned op bit-identical").
var signedLibMnemonic = map[hir.BinaryOp]asm.Mnemonic{
	hir.BAdd: asm.MnI32LibAdd,
	hir.BSub: asm.MnI32LibSub,
	hir.BMul: asm.MnI32LibMul,
	hir.BDiv: asm.MnI32LibDiv,
	hir.BMod: asm.MnI32LibMod,
	hir.BShr: asm.MnI32LibShr,
	hir.BMin: asm.MnI32LibMin,
	hir.BMax: asm.MnI32LibMax,
}

func overflowOf(m hir.OverflowMode) asm.Overflow {
	switch m {
	case hir.OverflowChecked:
		return asm.OvChecked
	case hir.OverflowWrapping:
		return asm.OvWrapping
	case hir.OverflowOverflowing:
		return asm.OvOverflowing
	default:
		return asm.OvUnchecked
	}
}

func is32OrNarrower(ty types.Type) bool {
	i, ok := ty.(types.Int)
	return ok && i.Width <= 32
}

func isSigned(ty types.Type) bool {
	i, ok := ty.(types.Int)
	return ok && i.Signed
}

// compareMnemonic maps the equality/relational family to the base
// stack machine's comparison ops (spec §4.5's BinaryOp set includes
// eq/neq/lt/lte/gt/gte alongside the arithmetic family). These never
// dispatch through the signed library: lt/lte/gt/gte already operate
// correctly on any value the is32OrNarrower callers guarantee fits in
// 32 bits, signed or not, since Goldilocks field order matches natural
// order there.
var compareMnemonic = map[hir.BinaryOp]asm.Mnemonic{
	hir.BEq:  asm.MnEq,
	hir.BLt:  asm.MnLt,
	hir.BLte: asm.MnLte,
	hir.BGt:  asm.MnGt,
	hir.BGte: asm.MnGte,
}

func isCompare(op hir.BinaryOp) bool {
	switch op {
	case hir.BEq, hir.BNeq, hir.BLt, hir.BLte, hir.BGt, hir.BGte:
		return true
	}
	return false
}

func (e *emitter) emitBinary(inst hir.Inst) {
	p := inst.Payload.(*hir.BinaryPayload)
	if !is32OrNarrower(p.Type) {
		e.emitWideBinary(inst, p)
		return
	}
	e.routeOperands(inst.Operands)
	e.popOperands(2)

	if isCompare(p.Op) {
		e.emitCompare(inst, p)
		return
	}

	mn, ok := binaryMnemonic[p.Op]
	if !ok {
		e.h.Emit(diag.Diagnostic{Severity: diag.Bug, Message: "emit: unsupported binary op " + p.Op.String()})
		return
	}
	ov := overflowOf(inst.Overflow)
	if isSigned(p.Type) && inst.Overflow != hir.OverflowWrapping {
		if lib, ok := signedLibMnemonic[p.Op]; ok {
			e.out.Append(asm.Instr{Op: lib, Overflow: ov, Span: spanOf(inst)})
			e.defResult(inst.Results[0])
			return
		}
	}
	e.out.Append(asm.Instr{Op: mn, Overflow: ov, Span: spanOf(inst)})
	e.defResult(inst.Results[0])
}

// emitCompare lowers the comparison family. Operands are already routed
// and popped by the caller. neq has no dedicated mnemonic, so it's eq
// followed by a boolean not.
func (e *emitter) emitCompare(inst hir.Inst, p *hir.BinaryPayload) {
	if p.Op == hir.BNeq {
		e.out.Append(asm.Instr{Op: asm.MnEq, Span: spanOf(inst)})
		e.out.Append(asm.Instr{Op: asm.MnNot, Span: spanOf(inst)})
		e.defResult(inst.Results[0])
		return
	}
	mn, ok := compareMnemonic[p.Op]
	if !ok {
		e.h.Emit(diag.Diagnostic{Severity: diag.Bug, Message: "emit: unsupported comparison op " + p.Op.String()})
		return
	}
	e.out.Append(asm.Instr{Op: mn, Span: spanOf(inst)})
	e.defResult(inst.Results[0])
}

func (e *emitter) emitBinaryImm(inst hir.Inst) {
	p := inst.Payload.(*hir.BinaryImmPayload)
	if !is32OrNarrower(p.Type) {
		e.emitWideBinaryImm(inst, p)
		return
	}

	// Zero/one specializations (spec §4.5): these apply regardless of
	// overflow mode except where noted.
	switch {
	case p.Op == hir.BMul && p.Imm == 0:
		e.routeOperands(inst.Operands)
		e.popOperands(1)
		e.out.Append(asm.Instr{Op: asm.MnDrop})
		e.out.Append(asm.Push(0))
		e.defResult(inst.Results[0])
		return
	case p.Op == hir.BMul && p.Imm == 1:
		e.passThroughImmNoOp(inst)
		return
	case p.Op == hir.BAdd && p.Imm == 0:
		e.passThroughImmNoOp(inst)
		return
	case p.Op == hir.BSub && p.Imm == 0:
		e.passThroughImmNoOp(inst)
		return
	case p.Op == hir.BAdd && p.Imm == 1 && inst.Overflow == hir.OverflowUnchecked:
		e.routeOperands(inst.Operands)
		e.popOperands(1)
		e.out.Append(asm.Instr{Op: asm.MnIncr, Span: spanOf(inst)})
		e.defResult(inst.Results[0])
		return
	}

	e.routeOperands(inst.Operands)
	e.popOperands(1)
	mn, ok := binaryMnemonic[p.Op]
	if !ok {
		e.h.Emit(diag.Diagnostic{Severity: diag.Bug, Message: "emit: unsupported binary.imm op " + p.Op.String()})
		return
	}
	ov := overflowOf(inst.Overflow)
	if isSigned(p.Type) && inst.Overflow != hir.OverflowWrapping {
		if lib, ok := signedLibMnemonic[p.Op]; ok {
			e.out.Append(asm.Instr{Op: lib, Overflow: ov, Imm: p.Imm, HasImm: true, Span: spanOf(inst)})
			e.defResult(inst.Results[0])
			return
		}
	}
	e.out.Append(asm.Instr{Op: mn, Overflow: ov, Imm: p.Imm, HasImm: true, Span: spanOf(inst)})
	e.defResult(inst.Results[0])
}

// passThroughImmNoOp handles the add_imm(_,0)/sub_imm(_,0)/mul_imm(_,1)
// no-op specializations: the operand is simply renamed to the result,
// no ASM emitted.
func (e *emitter) passThroughImmNoOp(inst hir.Inst) {
	e.routeOperands(inst.Operands)
	e.stack.vals[0] = inst.Results[0]
}

func (e *emitter) emitUnary(inst hir.Inst) {
	p := inst.Payload.(*hir.UnaryPayload)
	switch p.Op {
	case hir.UTrunc:
		e.emitTrunc(inst, p)
		return
	case hir.UZext:
		e.emitZext(inst, p)
		return
	case hir.USext:
		e.emitSext(inst, p)
		return
	case hir.UIntToInt:
		e.emitIntToInt(inst, p)
		return
	case hir.UIntToUint:
		e.emitIntToUint(inst, p)
		return
	}
	if !is32OrNarrower(p.FromType) {
		e.emitWideUnary(inst, p)
		return
	}
	e.routeOperands(inst.Operands)
	e.popOperands(1)
	switch p.Op {
	case hir.UNeg:
		e.out.Append(asm.Instr{Op: asm.MnNeg, Span: spanOf(inst)})
	case hir.UNot:
		e.out.Append(asm.Instr{Op: asm.MnNot, Span: spanOf(inst)})
	case hir.UInc:
		e.out.Append(asm.Instr{Op: asm.MnIncr, Span: spanOf(inst)})
	case hir.UDec:
		e.out.Append(asm.Instr{Op: asm.MnU32Sub, Imm: 1, HasImm: true, Span: spanOf(inst)})
	case hir.UIsZero:
		e.out.Append(asm.Instr{Op: asm.MnEqz, Span: spanOf(inst)})
	default:
		e.h.Emit(diag.Diagnostic{Severity: diag.Bug, Message: "emit: unsupported unary op " + p.Op.String()})
	}
	e.defResult(inst.Results[0])
}

// emitUnaryImm lowers a unary op with a fused immediate (e.g. increment
// or decrement by a fixed step other than one).
func (e *emitter) emitUnaryImm(inst hir.Inst) {
	p := inst.Payload.(*hir.UnaryImmPayload)
	e.routeOperands(inst.Operands)
	e.popOperands(1)
	ov := overflowOf(inst.Overflow)
	switch p.Op {
	case hir.UInc:
		e.out.Append(asm.Instr{Op: asm.MnU32Add, Overflow: ov, Imm: p.Imm, HasImm: true, Span: spanOf(inst)})
	case hir.UDec:
		e.out.Append(asm.Instr{Op: asm.MnU32Sub, Overflow: ov, Imm: p.Imm, HasImm: true, Span: spanOf(inst)})
	default:
		e.h.Emit(diag.Diagnostic{Severity: diag.Bug, Message: "emit: unsupported unary.imm op " + p.Op.String()})
	}
	e.defResult(inst.Results[0])
}

func spanOf(inst hir.Inst) asm.SourceSpan {
	return asm.SourceSpan{File: inst.Span.File, Line: inst.Span.Line, Column: inst.Span.Column}
}
