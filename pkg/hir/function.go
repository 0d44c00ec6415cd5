package hir

import (
	"fmt"

	"github.com/feltvm/feltc/pkg/diag"
	"github.com/feltvm/feltc/pkg/entity"
	"github.com/feltvm/feltc/pkg/types"
)

// localData is the payload behind a LocalID: a named, typed stack slot
// owned by a function, distinct from SSA values (locals are mutable
// storage that must be addressed through OpLocalAddr/Load/Store or
// taken the address of via OpLocalAddr).
type localData struct {
	Name string
	Type types.Type
}

// LocalID identifies a function-local stack slot.
type LocalID = entity.Ref[localData]

// Attr is a free-form function/module attribute (e.g. "inline",
// "no_mangle"); the builder does not interpret these, it only carries
// them through to the emitter and linker.
type Attr struct {
	Name  string
	Value string
}

// Function is the owner of one function body's blocks, instructions,
// values, and locals. All entity handles (BlockID/InstID/ValueID/
// LocalID) minted by a Function are only valid against that Function's
// own arenas.
type Function struct {
	Name      FunctionIdent
	Sig       *types.Signature
	Attrs     []Attr
	Entry     BlockID
	Imports   []FunctionIdent
	Globals   []GlobalIdent

	ctx    *entity.Context
	blocks *entity.Arena[blockData]
	insts  *entity.Arena[instData]
	values *entity.Arena[valueData]
	locals *entity.Arena[localData]

	blockOrder []BlockID // order blocks were appended in; iteration order for printing/analysis
	cursor     cursor
}

// cursor is the builder's current insertion point: append after Inst in
// Block (or, if Inst is nil, at the end of Block's instruction list so
// far).
type cursor struct {
	Block BlockID
	Inst  InstID
}

// NewFunction creates an empty function with the given name and
// signature, owning a fresh entity Context. The function has no blocks
// until CreateBlock is called.
func NewFunction(name FunctionIdent, sig *types.Signature) *Function {
	ctx := entity.NewContext()
	return &Function{
		Name:   name,
		Sig:    sig,
		ctx:    ctx,
		blocks: entity.NewArena[blockData](ctx),
		insts:  entity.NewArena[instData](ctx),
		values: entity.NewArena[valueData](ctx),
		locals: entity.NewArena[localData](ctx),
	}
}

// CreateBlock appends a new, empty basic block and returns its handle.
// The first block created becomes Entry automatically.
func (f *Function) CreateBlock() BlockID {
	id := entity.Alloc(f.blocks, blockData{})
	f.blockOrder = append(f.blockOrder, id)
	if f.Entry.IsNil() {
		f.Entry = id
	}
	return id
}

// Blocks returns every block in creation order.
func (f *Function) Blocks() []BlockID {
	return append([]BlockID(nil), f.blockOrder...)
}

// AppendBlockParam adds a new parameter of the given type to block and
// returns the ValueID that names it.
func (f *Function) AppendBlockParam(block BlockID, ty types.Type) ValueID {
	var index int
	entity.WithMut(block, func(b *blockData) {
		index = len(b.Params)
	})
	vid := entity.Alloc(f.values, valueData{Kind: ValueBlockParam, Type: ty, Block: block, Index: index})
	entity.WithMut(block, func(b *blockData) {
		b.Params = append(b.Params, vid)
	})
	return vid
}

// CreateLocal declares a new named local slot of the given type.
func (f *Function) CreateLocal(name string, ty types.Type) LocalID {
	return entity.Alloc(f.locals, localData{Name: name, Type: ty})
}

// LocalType returns the declared type of a local slot.
func (f *Function) LocalType(id LocalID) types.Type {
	d, guard := id.Borrow()
	defer guard.Release()
	return d.Type
}

// SetInsertPoint moves the builder cursor to the end of block's current
// instruction list (i.e. subsequent AppendInst calls insert there).
func (f *Function) SetInsertPoint(block BlockID) {
	var last InstID
	entity.With(block, func(b *blockData) {
		if n := len(b.Insts); n > 0 {
			last = b.Insts[n-1]
		}
	})
	f.cursor = cursor{Block: block, Inst: last}
}

// InstSpec is the caller-facing description of a not-yet-inserted
// instruction; AppendInst/InsertInstBefore allocate the InstID and the
// result ValueIDs and splice it into the block's instruction list.
type InstSpec struct {
	Opcode      Opcode
	Operands    []ValueID
	ResultTypes []types.Type
	Overflow    OverflowMode
	Span        diag.Span
	Payload     any
}

func (f *Function) alloc(block BlockID, spec InstSpec) InstID {
	id := entity.Alloc(f.insts, instData{
		Block:    block,
		Opcode:   spec.Opcode,
		Operands: append([]ValueID(nil), spec.Operands...),
		Overflow: spec.Overflow,
		Span:     spec.Span,
		Payload:  spec.Payload,
	})
	results := make([]ValueID, len(spec.ResultTypes))
	for i, ty := range spec.ResultTypes {
		results[i] = entity.Alloc(f.values, valueData{Kind: ValueInstResult, Type: ty, Inst: id, ResultIndex: i})
	}
	if len(results) > 0 {
		entity.WithMut(id, func(d *instData) { d.Results = results })
	}
	return id
}

// AppendInst inserts a new instruction immediately after the current
// cursor position (set by SetInsertPoint, or the end of block if the
// cursor has never been set for it) and advances the cursor to it.
// Equivalent to the builder's "append_inst" contract (spec §4.1): the
// common case of building a block in forward program order.
func (f *Function) AppendInst(block BlockID, spec InstSpec) InstID {
	id := f.alloc(block, spec)
	entity.WithMut(block, func(b *blockData) {
		if f.cursor.Block == block && !f.cursor.Inst.IsNil() {
			b.Insts = insertAfter(b.Insts, f.cursor.Inst, id)
		} else {
			b.Insts = append(b.Insts, id)
		}
	})
	f.cursor = cursor{Block: block, Inst: id}
	return id
}

// InsertInstBefore inserts a new instruction immediately before an
// existing instruction in the same block, without moving the cursor.
// Used by passes that need to hoist a materialization (e.g. a
// global-value address computation) ahead of the instruction that
// consumes it.
func (f *Function) InsertInstBefore(before InstID, spec InstSpec) InstID {
	var block BlockID
	entity.With(before, func(d *instData) { block = d.Block })
	id := f.alloc(block, spec)
	entity.WithMut(block, func(b *blockData) {
		b.Insts = insertBefore(b.Insts, before, id)
	})
	return id
}

func insertAfter(list []InstID, after, id InstID) []InstID {
	out := make([]InstID, 0, len(list)+1)
	for _, x := range list {
		out = append(out, x)
		if x == after {
			out = append(out, id)
		}
	}
	return out
}

func insertBefore(list []InstID, before, id InstID) []InstID {
	out := make([]InstID, 0, len(list)+1)
	for _, x := range list {
		if x == before {
			out = append(out, id)
		}
		out = append(out, x)
	}
	return out
}

// ReplaceUses rewrites every operand/argument reference to old, across
// every instruction in the function, to instead reference replacement.
// Used by the linker's global-rename pass and by optimization passes
// that fold or forward values. Does not touch old's own definition site.
func (f *Function) ReplaceUses(old, replacement ValueID) {
	// Walk every allocated instruction by re-deriving it from each
	// block's instruction list (arenas have no external iterator).
	for _, bid := range f.blockOrder {
		var insts []InstID
		entity.With(bid, func(b *blockData) { insts = b.Insts })
		for _, iid := range insts {
			entity.WithMut(iid, func(d *instData) {
				for i, op := range d.Operands {
					if op == old {
						d.Operands[i] = replacement
					}
				}
				rewriteTerminatorOperands(d, old, replacement)
			})
		}
	}
}

func rewriteTerminatorOperands(d *instData, old, replacement ValueID) {
	switch p := d.Payload.(type) {
	case *CondBrPayload:
		for i, v := range p.TrueArgs {
			if v == old {
				p.TrueArgs[i] = replacement
			}
		}
		for i, v := range p.FalseArgs {
			if v == old {
				p.FalseArgs[i] = replacement
			}
		}
	case *SwitchPayload:
		for i, v := range p.DefaultArgs {
			if v == old {
				p.DefaultArgs[i] = replacement
			}
		}
		for ci := range p.Cases {
			for i, v := range p.Cases[ci].Args {
				if v == old {
					p.Cases[ci].Args[i] = replacement
				}
			}
		}
	}
}

// Validate checks the structural invariants local to a single function
// body: an entry block exists, and every block is non-empty and ends in
// exactly one terminator, placed as its last instruction. It does not
// check that operands are defined or that result arities match their
// opcodes.
func (f *Function) Validate(h *diag.Handler) {
	if f.Entry.IsNil() {
		h.Emit(diag.Diagnostic{Severity: diag.Bug, Message: fmt.Sprintf("function %s has no entry block", f.Name)})
		return
	}
	for _, bid := range f.blockOrder {
		insts := f.BlockInsts(bid)
		if len(insts) == 0 {
			h.Emit(diag.Diagnostic{Severity: diag.Error, Message: fmt.Sprintf("block %d in %s has no terminator", bid.Index(), f.Name)})
			continue
		}
		for i, iid := range insts {
			inst := f.InstData(iid)
			isTerm := isTerminator(inst.Opcode)
			if isTerm != (i == len(insts)-1) {
				h.Emit(diag.Diagnostic{Severity: diag.Error, Message: fmt.Sprintf("block %d in %s: terminator must be exactly the last instruction", bid.Index(), f.Name)})
			}
		}
	}
}

func isTerminator(op Opcode) bool {
	switch op {
	case OpBr, OpCondBr, OpSwitch, OpReturn, OpUnreachable:
		return true
	default:
		return false
	}
}
