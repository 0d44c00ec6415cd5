package hir

import "github.com/feltvm/feltc/pkg/types"

// Opcode is the tagged-variant discriminant for an Instruction (spec §3
// "Instructions"). Operand/result shape and the meaning of Payload are
// opcode-specific; see the Payload structs below, which mirror the way
// the teacher's rtl.Operation sum separates "what kind of op" from "the
// registers/values it touches".
type Opcode uint8

const (
	OpBinary Opcode = iota
	OpBinaryImm
	OpUnary
	OpUnaryImm
	OpLoad
	OpStore
	OpPrim // variadic: memset, memcpy, assert, store-with-address
	OpCallDirect
	OpCallIndirect
	OpBr
	OpCondBr
	OpSwitch
	OpReturn
	OpUnreachable
	OpInlineAsm
	OpGlobalValue
	OpLocalAddr
	OpLocalLoad
	OpLocalStore
)

func (op Opcode) String() string {
	names := [...]string{
		"binary", "binary.imm", "unary", "unary.imm", "load", "store",
		"prim", "call", "call.indirect", "br", "cond_br", "switch",
		"return", "unreachable", "inline_asm", "global_value",
		"local_addr", "local_load", "local_store",
	}
	if int(op) < len(names) {
		return names[op]
	}
	return "?"
}

// BinaryOp enumerates the integer/field binary operators (§4.5).
type BinaryOp uint8

const (
	BAdd BinaryOp = iota
	BSub
	BMul
	BDiv
	BMod
	BDivMod
	BAnd
	BOr
	BXor
	BShl
	BShr
	BRotl
	BRotr
	BMin
	BMax
	BEq
	BNeq
	BLt
	BLte
	BGt
	BGte
)

func (b BinaryOp) String() string {
	names := [...]string{
		"add", "sub", "mul", "div", "mod", "divmod", "and", "or", "xor",
		"shl", "shr", "rotl", "rotr", "min", "max",
		"eq", "neq", "lt", "lte", "gt", "gte",
	}
	if int(b) < len(names) {
		return names[b]
	}
	return "?"
}

// UnaryOp enumerates unary operators, including type conversions.
type UnaryOp uint8

const (
	UNeg UnaryOp = iota
	UNot
	UInc
	UDec
	UTrunc
	UZext
	USext
	UIntToInt // signed narrowing/widening re-check (int32_to_int)
	UIntToUint
	UIsZero
	UAbs // f64 absolute value (spec §7 "f64 arithmetic")
)

func (u UnaryOp) String() string {
	names := [...]string{"neg", "not", "inc", "dec", "trunc", "zext", "sext", "int_to_int", "int_to_uint", "is_zero", "abs"}
	if int(u) < len(names) {
		return names[u]
	}
	return "?"
}

// BinaryPayload backs OpBinary.
type BinaryPayload struct {
	Op    BinaryOp
	Type  types.Type
	Try   bool // "try" variant leaves a boolean instead of asserting
}

// BinaryImmPayload backs OpBinaryImm; Imm is the raw bit pattern of the
// immediate operand, interpreted per Type.
type BinaryImmPayload struct {
	Op   BinaryOp
	Type types.Type
	Imm  int64
}

// UnaryPayload backs OpUnary. FromType/ToType drive trunc/zext/sext and
// the signed-conversion family. FromWidth/ToWidth are carried but not
// read by the emitter or the parser.
type UnaryPayload struct {
	Op        UnaryOp
	FromType  types.Type
	ToType    types.Type
	FromWidth uint8
	ToWidth   uint8
	Try       bool
}

// UnaryImmPayload backs OpUnaryImm (unary ops parameterized by a single
// immediate, e.g. a fixed rotate/shift amount baked in at compile time
// rather than taken from an operand).
type UnaryImmPayload struct {
	Op   UnaryOp
	Type types.Type
	Imm  int64
}

// MemChunk describes the width (and for sub-word widths, signedness) of
// a load/store access.
type MemChunk uint8

const (
	ChunkI8Signed MemChunk = iota
	ChunkI8Unsigned
	ChunkI16Signed
	ChunkI16Unsigned
	ChunkI32
	ChunkI64
	ChunkI128
	ChunkU256
	ChunkF64
	ChunkFelt
)

func (c MemChunk) SizeBytes() uint32 {
	switch c {
	case ChunkI8Signed, ChunkI8Unsigned:
		return 1
	case ChunkI16Signed, ChunkI16Unsigned:
		return 2
	case ChunkI32, ChunkFelt:
		return 4
	case ChunkI64, ChunkF64:
		return 8
	case ChunkI128:
		return 16
	case ChunkU256:
		return 32
	default:
		return 4
	}
}

// LoadPayload backs OpLoad: the address operand is Operands[0]; Offset
// is an additional immediate byte displacement folded in at the IR
// level (so `load(ptr, offset=4)` doesn't need a separate add).
type LoadPayload struct {
	Chunk  MemChunk
	Offset int64
	Type   types.Type // result type, may differ from Chunk's natural type for sub-word loads
}

// StorePayload backs OpStore: Operands = [address, value].
type StorePayload struct {
	Chunk  MemChunk
	Offset int64
}

// PrimOp enumerates the variadic primitive operations.
type PrimOp uint8

const (
	PrimMemSet PrimOp = iota
	PrimMemCpy
	PrimAssert
	PrimAssertEq
	PrimStoreWithAddress
)

// PrimPayload backs OpPrim; operand shape is PrimOp-specific:
//
//	MemSet:            [dst, value, len]
//	MemCpy:             [dst, src, len]
//	Assert:             [cond]
//	AssertEq:           [a, b]
//	StoreWithAddress:   [address, value]  (address computed, not folded)
type PrimPayload struct {
	Op PrimOp
}

// CallPayload backs OpCallDirect and OpCallIndirect. For direct calls,
// Callee names the function via its import-table entry; for indirect
// calls, the callee value is Operands[0] and the remaining Operands are
// the arguments.
type CallPayload struct {
	Callee FunctionIdent // direct only
	Sig    *types.Signature
}

// BrPayload backs OpBr: an unconditional branch to Target, passing
// Operands as the target block's argument values.
type BrPayload struct {
	Target BlockID
}

// CondBrPayload backs OpCondBr. Operands[0] is the condition;
// TrueArgs/FalseArgs are the remaining operands split across the two
// successors' argument lists.
type CondBrPayload struct {
	TrueTarget  BlockID
	FalseTarget BlockID
	TrueArgs    []ValueID
	FalseArgs   []ValueID
}

// SwitchCase is one discriminant/target pair of a switch terminator.
type SwitchCase struct {
	Value   int64
	Target  BlockID
	Args    []ValueID
}

// SwitchPayload backs OpSwitch. Operands[0] is the scrutinee.
type SwitchPayload struct {
	Cases       []SwitchCase
	DefaultDest BlockID
	DefaultArgs []ValueID
}

// ReturnPayload backs OpReturn; Operands are the returned values.
type ReturnPayload struct{}

// InlineAsmPayload backs OpInlineAsm: a verbatim block of target ASM
// text, with its own result type list (it does not go through the
// emitter's opcode lowering).
type InlineAsmPayload struct {
	Text        string
	ResultTypes []types.Type
}

// GlobalValuePayload backs OpGlobalValue: materializes the address of
// global g (resolved through the function's Globals table) as a value.
type GlobalValuePayload struct {
	Global GlobalIdent
}

// LocalAddrPayload backs OpLocalAddr: produces the address of the
// function-local stack slot named Local.
type LocalAddrPayload struct {
	Local LocalID
}

// LocalLoadPayload / LocalStorePayload back OpLocalLoad / OpLocalStore,
// direct (non-address-taking) accesses to a local slot.
type LocalLoadPayload struct {
	Local LocalID
	Type  types.Type
}

type LocalStorePayload struct {
	Local LocalID
}
