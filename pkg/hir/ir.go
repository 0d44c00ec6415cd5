package hir

import (
	"github.com/feltvm/feltc/pkg/diag"
	"github.com/feltvm/feltc/pkg/entity"
	"github.com/feltvm/feltc/pkg/types"
)

// BlockID, InstID, and ValueID are entity-arena handles, dynamically
// borrow-checked per spec §3 "Ownership" / §5. They are cheap to copy
// and compare, and serve as the totally-ordered node identifiers the
// scheduler (C4) and dependency graph rely on for deterministic,
// program-order tie-breaking.
type (
	BlockID = entity.Ref[blockData]
	InstID  = entity.Ref[instData]
	ValueID = entity.Ref[valueData]
)

// ValueKind distinguishes the two ways a Value can be defined.
type ValueKind uint8

const (
	ValueBlockParam ValueKind = iota
	ValueInstResult
)

// valueData is the payload behind a ValueID. Every value has exactly one
// definition site (SSA, invariant F3): either a block parameter slot or
// one result of an instruction.
type valueData struct {
	Kind ValueKind
	Type types.Type

	// valid when Kind == ValueBlockParam
	Block BlockID
	Index int

	// valid when Kind == ValueInstResult
	Inst        InstID
	ResultIndex int
}

// blockData is the payload behind a BlockID.
type blockData struct {
	Params []ValueID
	Insts  []InstID // in program order, terminator last
}

// instData is the payload behind an InstID. The opcode-specific fields
// live in Payload (see opcodes.go); Operands/Results/Overflow/Span are
// common to every instruction kind per spec §3 "Instructions".
type instData struct {
	Block    BlockID
	Opcode   Opcode
	Operands []ValueID
	Results  []ValueID
	Overflow OverflowMode
	Span     diag.Span
	Payload  any
}

// OverflowMode is the optional overflow-handling mode carried by
// arithmetic instructions (§3 "Instructions", §4.5).
type OverflowMode uint8

const (
	OverflowUnchecked OverflowMode = iota
	OverflowChecked
	OverflowWrapping
	OverflowOverflowing
)

func (m OverflowMode) String() string {
	switch m {
	case OverflowChecked:
		return "checked"
	case OverflowWrapping:
		return "wrapping"
	case OverflowOverflowing:
		return "overflowing"
	default:
		return "unchecked"
	}
}

// Value is a read-only, dereferenced view of a value's definition,
// returned by Function.ValueData for callers that don't want to manage
// a borrow guard themselves.
type Value struct {
	ID   ValueID
	Kind ValueKind
	Type types.Type

	Block       BlockID
	Index       int
	Inst        InstID
	ResultIndex int
}

// ValueData dereferences id and returns a borrow-independent snapshot.
func (f *Function) ValueData(id ValueID) Value {
	v, guard := id.Borrow()
	defer guard.Release()
	return Value{
		ID: id, Kind: v.Kind, Type: v.Type,
		Block: v.Block, Index: v.Index,
		Inst: v.Inst, ResultIndex: v.ResultIndex,
	}
}

// Inst is a read-only snapshot of an instruction, analogous to Value
// above.
type Inst struct {
	ID       InstID
	Block    BlockID
	Opcode   Opcode
	Operands []ValueID
	Results  []ValueID
	Overflow OverflowMode
	Span     diag.Span
	Payload  any
}

// InstData dereferences id and returns a borrow-independent snapshot.
func (f *Function) InstData(id InstID) Inst {
	v, guard := id.Borrow()
	defer guard.Release()
	operands := append([]ValueID(nil), v.Operands...)
	results := append([]ValueID(nil), v.Results...)
	return Inst{
		ID: id, Block: v.Block, Opcode: v.Opcode,
		Operands: operands, Results: results,
		Overflow: v.Overflow, Span: v.Span, Payload: v.Payload,
	}
}

// BlockParams returns the parameter values of a block.
func (f *Function) BlockParams(id BlockID) []ValueID {
	b, guard := id.Borrow()
	defer guard.Release()
	return append([]ValueID(nil), b.Params...)
}

// BlockInsts returns the instructions of a block in program order,
// terminator last (invariant F2).
func (f *Function) BlockInsts(id BlockID) []InstID {
	b, guard := id.Borrow()
	defer guard.Release()
	return append([]InstID(nil), b.Insts...)
}

// Terminator returns the terminator instruction of a block, which by
// invariant F2 is always the last instruction.
func (f *Function) Terminator(id BlockID) InstID {
	b, guard := id.Borrow()
	defer guard.Release()
	if len(b.Insts) == 0 {
		var zero InstID
		return zero
	}
	return b.Insts[len(b.Insts)-1]
}
