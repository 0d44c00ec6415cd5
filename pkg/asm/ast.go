// Package asm defines the textual assembly representation of the
// target zero-knowledge stack machine (spec §6 "ASM wire format"): a
// register-free instruction set whose only operand-routing primitives
// are the four stack-manipulation actions from the solver (C5) plus a
// closed set of arithmetic, memory, control-flow, and call mnemonics.
// This mirrors the way the teacher's pkg/asm models a fixed target ISA
// as a flat sum of instruction structs, adapted from ARM64 registers to
// this target's mnemonic-plus-operand shape (there are no registers to
// name, only stack depths and immediates).
package asm

import "fmt"

// Label names a branch/call target within the emitted program.
type Label string

// Mnemonic is the opcode name as it appears in the wire format, one per
// instruction kind the target VM understands.
type Mnemonic string

const (
	// Stack manipulation (spec §4.4 Action; these are literally the
	// solver's output vocabulary plus Drop/Push, which the solver does
	// not itself need but the emitter does for literals and cleanup).
	MnPush   Mnemonic = "push"
	MnDrop   Mnemonic = "drop"
	MnDropN  Mnemonic = "dropw" // drop a whole word (4 elements)
	MnCopy   Mnemonic = "dup"
	MnMoveUp Mnemonic = "movup"
	MnMoveDn Mnemonic = "movdn"
	MnSwap   Mnemonic = "swap"

	// Field-element arithmetic (native word ops; also the basis unsigned
	// 32-bit ops lower to before overflow-mode specific checks).
	MnAdd  Mnemonic = "add"
	MnSub  Mnemonic = "sub"
	MnMul  Mnemonic = "mul"
	MnDiv  Mnemonic = "div"
	MnNeg  Mnemonic = "neg"
	MnInv  Mnemonic = "inv"
	MnEq   Mnemonic = "eq"
	MnEqz  Mnemonic = "eqz"
	MnLt   Mnemonic = "lt"
	MnLte  Mnemonic = "lte"
	MnGt   Mnemonic = "gt"
	MnGte  Mnemonic = "gte"
	MnNot  Mnemonic = "not"
	MnAnd  Mnemonic = "and"
	MnOr   Mnemonic = "or"
	MnXor  Mnemonic = "xor"
	MnIncr Mnemonic = "incr"

	// u32 family: Op is combined with an OverflowMode suffix by
	// Instr.String; Width/Imm select size and immediate form.
	MnU32Add    Mnemonic = "u32.add"
	MnU32Sub    Mnemonic = "u32.sub"
	MnU32Mul    Mnemonic = "u32.mul"
	MnU32Div    Mnemonic = "u32.div"
	MnU32Mod    Mnemonic = "u32.mod"
	MnU32DivMod Mnemonic = "u32.divmod"
	MnU32And    Mnemonic = "u32.and"
	MnU32Or     Mnemonic = "u32.or"
	MnU32Xor    Mnemonic = "u32.xor"
	MnU32Shl    Mnemonic = "u32.shl"
	MnU32Shr    Mnemonic = "u32.shr"
	MnU32Rotl   Mnemonic = "u32.rotl"
	MnU32Rotr   Mnemonic = "u32.rotr"
	MnU32Min    Mnemonic = "u32.min"
	MnU32Max    Mnemonic = "u32.max"
	MnU32Assert Mnemonic = "u32.assert" // assert top fits in 32 bits

	// signed-integer library routines (dispatched rather than native,
	// per spec §4.5 "Signed-vs-unsigned semantics").
	MnI32LibAdd Mnemonic = "i32lib.checked_add"
	MnI32LibSub Mnemonic = "i32lib.checked_sub"
	MnI32LibMul Mnemonic = "i32lib.checked_mul"
	MnI32LibDiv Mnemonic = "i32lib.checked_div"
	MnI32LibMod Mnemonic = "i32lib.checked_mod"
	MnI32LibShr Mnemonic = "i32lib.shr" // arithmetic shift right
	MnI32LibCmp Mnemonic = "i32lib.cmp"
	MnI32LibMin Mnemonic = "i32lib.min"
	MnI32LibMax Mnemonic = "i32lib.max"

	// 64/128/256-bit library routines: limbs are already placed on the
	// stack by the caller (high limb above low). Unlike the fixed i32lib
	// mnemonics above, the wide families have one routine per operator
	// per signedness per width, named dynamically by WideLibMnemonic
	// rather than enumerated here — see pkg/emit/int64.go.
	WideLibPrefixU64  = "u64lib"
	WideLibPrefixI64  = "i64lib"
	WideLibPrefixU128 = "u128lib"
	WideLibPrefixI128 = "i128lib"
	WideLibPrefixU256 = "u256lib"

	// memory (spec §4.5 "Memory model"): MemLoadWord/MemStoreWord move a
	// 4-element window between the operand stack and memory, starting at
	// the top-of-stack element address; the realignment sequences
	// built from Mn*Shift/MnOr/MnAnd implement sub-word, unaligned, and
	// multi-word access patterns on top of them.
	MnMemLoadWord  Mnemonic = "mem.loadw"
	MnMemStoreWord Mnemonic = "mem.storew"
	MnShl          Mnemonic = "shl" // element-wise bit shift left by N bits
	MnShr          Mnemonic = "shr"

	// control flow
	MnLabel  Mnemonic = "label"
	MnJmp    Mnemonic = "jmp"
	MnJmpIf  Mnemonic = "jmp.if"
	MnJmpIfZ Mnemonic = "jmp.ifz"
	MnCall   Mnemonic = "call"
	MnCallIn Mnemonic = "call.indirect"
	MnRet    Mnemonic = "ret"
	MnUnreachable Mnemonic = "unreachable"
	MnRaw    Mnemonic = "" // verbatim inline-asm text, carried in Comment

	// float (spec §7 "f64 arithmetic"), one mnemonic per operator so
	// each lowers to a distinct library routine rather than a shared,
	// comment-only dispatch.
	MnFAdd Mnemonic = "f64.add"
	MnFSub Mnemonic = "f64.sub"
	MnFMul Mnemonic = "f64.mul"
	MnFDiv Mnemonic = "f64.div"
	MnFNeg Mnemonic = "f64.neg"
	MnFAbs Mnemonic = "f64.abs"
	MnFEq  Mnemonic = "f64.eq"
	MnFLt  Mnemonic = "f64.lt"
	MnFLte Mnemonic = "f64.lte"
	MnFGt  Mnemonic = "f64.gt"
	MnFGte Mnemonic = "f64.gte"
)

// WideLibMnemonic names the library routine for one wide (64/128/256-
// bit) operator at the given signed/unsigned prefix (spec §4.5
// "Comparison, arithmetic, shift, rotate, min/max dispatch to library
// routines"), e.g. WideLibMnemonic(WideLibPrefixI64, "sub") ->
// "i64lib.sub". Grounded on the original backend's per-(operator,
// signedness) Exec-target convention (std::math::u64::* /
// intrinsics::i64::*): unlike the old collapsed MnI64LibOp trio, every
// operator gets its own mnemonic here, so the real operation survives
// into the emitted wire format instead of only a printer comment.
func WideLibMnemonic(prefix, op string) Mnemonic {
	return Mnemonic(prefix + "." + op)
}

// wideLibPrefixes lists every dynamic wide-lib family prefix, for
// recognizing an Instr.Op built by WideLibMnemonic without enumerating
// every (prefix, operator) pair as its own constant.
var wideLibPrefixes = []string{
	WideLibPrefixU64, WideLibPrefixI64, WideLibPrefixU128, WideLibPrefixI128, WideLibPrefixU256,
}

// SplitWideLibMnemonic reverses WideLibMnemonic: ok is false if op does
// not belong to any wide-lib family.
func SplitWideLibMnemonic(op Mnemonic) (prefix, opname string, ok bool) {
	s := string(op)
	for _, p := range wideLibPrefixes {
		if len(s) > len(p)+1 && s[:len(p)] == p && s[len(p)] == '.' {
			return p, s[len(p)+1:], true
		}
	}
	return "", "", false
}

// IsWideLibMnemonic reports whether op was built by WideLibMnemonic.
func IsWideLibMnemonic(op Mnemonic) bool {
	_, _, ok := SplitWideLibMnemonic(op)
	return ok
}

// Overflow mirrors hir.OverflowMode for the four arithmetic variants the
// emitter must choose between at each binary-op site (spec §4.5).
type Overflow uint8

const (
	OvUnchecked Overflow = iota
	OvChecked
	OvWrapping
	OvOverflowing
)

func (o Overflow) suffix() string {
	switch o {
	case OvChecked:
		return ".checked"
	case OvWrapping:
		return ".wrapping"
	case OvOverflowing:
		return ".overflowing"
	default:
		return ""
	}
}

// Instr is one emitted instruction: a mnemonic plus whatever operand
// shape it needs. Exactly one of Imm/Target/Comment is meaningful for a
// given Mnemonic; N is the stack-depth argument of stack-manipulation
// instructions and the library dispatch width for *lib.op mnemonics.
type Instr struct {
	Op       Mnemonic
	Overflow Overflow
	N        int    // stack depth (MoveUp/MoveDn/Swap/Copy/Drop), or shift amount for shl/shr
	Imm      int64  // immediate operand, when the op carries one
	HasImm   bool
	Target   Label // branch/call target
	Callee   string
	Span     SourceSpan
	Comment  string
}

// SourceSpan round-trips a source location into emitted ASM text for
// downstream debugger use (spec §6 "additionally records source spans
// for each emitted instruction").
type SourceSpan struct {
	File   string
	Line   int
	Column int
}

func (s SourceSpan) IsZero() bool { return s.File == "" && s.Line == 0 && s.Column == 0 }

// Push builds a literal-push instruction.
func Push(v int64) Instr { return Instr{Op: MnPush, Imm: v, HasImm: true} }

// Stack-manipulation constructors, one per solver.ActionKind — the
// bridge between C5's abstract Action and concrete emitted ASM.
func MoveUp(n int) Instr  { return Instr{Op: MnMoveUp, N: n} }
func MoveDown(n int) Instr { return Instr{Op: MnMoveDn, N: n} }
func Swap(n int) Instr    { return Instr{Op: MnSwap, N: n} }
func Copy(n int) Instr    { return Instr{Op: MnCopy, N: n} }
func Drop() Instr         { return Instr{Op: MnDrop} }
func DropN(n int) Instr   { return Instr{Op: MnDrop, N: n} }

func LabelDef(l Label) Instr { return Instr{Op: MnLabel, Target: l} }
func Jmp(l Label) Instr      { return Instr{Op: MnJmp, Target: l} }
func JmpIf(l Label) Instr    { return Instr{Op: MnJmpIf, Target: l} }
func JmpIfZ(l Label) Instr   { return Instr{Op: MnJmpIfZ, Target: l} }
func Call(callee string) Instr { return Instr{Op: MnCall, Callee: callee} }
func CallIndirect() Instr    { return Instr{Op: MnCallIn} }
func Ret() Instr             { return Instr{Op: MnRet} }

func (i Instr) String() string {
	switch i.Op {
	case MnRaw:
		return i.Comment
	case MnPush:
		return fmt.Sprintf("push.%d", i.Imm)
	case MnMoveUp, MnMoveDn, MnSwap, MnCopy:
		return fmt.Sprintf("%s.%d", i.Op, i.N)
	case MnDrop:
		if i.N > 1 {
			return fmt.Sprintf("drop.%d", i.N)
		}
		return "drop"
	case MnLabel:
		return fmt.Sprintf("%s:", i.Target)
	case MnJmp, MnJmpIf, MnJmpIfZ:
		return fmt.Sprintf("%s %s", i.Op, i.Target)
	case MnCall:
		return fmt.Sprintf("call %s", i.Callee)
	case MnShl, MnShr:
		return fmt.Sprintf("%s.%d", i.Op, i.N)
	case MnMemLoadWord, MnMemStoreWord:
		if i.N != 0 {
			return fmt.Sprintf("%s+%d", i.Op, i.N)
		}
		return string(i.Op)
	default:
		if i.HasImm {
			return fmt.Sprintf("%s%s.%d", i.Op, i.Overflow.suffix(), i.Imm)
		}
		if i.Overflow != OvUnchecked {
			return fmt.Sprintf("%s%s", i.Op, i.Overflow.suffix())
		}
		return string(i.Op)
	}
}

// Function is one emitted function body: straight-line ASM with labels
// for block entries, in the order the scheduler/emitter produced them.
type Function struct {
	Name string
	Code []Instr
}

func NewFunction(name string) *Function { return &Function{Name: name} }

func (f *Function) Append(i Instr) { f.Code = append(f.Code, i) }

func (f *Function) AppendLabel(l Label) { f.Code = append(f.Code, LabelDef(l)) }

// DataSegment is one linked program data segment (spec §4.6 "Data-segment layout").
type DataSegment struct {
	Name     string
	Offset   uint32
	Bytes    []byte
	ReadOnly bool
}

// Program is the linker's final output, ready for the external
// assembler (spec §1 "out of scope: the final assembler").
type Program struct {
	Segments  []DataSegment
	Functions []*Function
	Entry     string // exported entrypoint symbol, if any
}
