package emit

import (
	"github.com/feltvm/feltc/pkg/asm"
	"github.com/feltvm/feltc/pkg/diag"
	"github.com/feltvm/feltc/pkg/hir"
)

// realignOf decomposes a compile-time byte Offset into the native-
// pointer triplet's compile-time-known portion (spec §4.5.1: "element
// index = addr/4, byte_offset = addr mod 4"). The runtime address
// operand is a byte address (emitLoad/emitStore convert it to a flat
// element index once, up front); elemDelta folds the Offset's own
// element-granular contribution into MemLoadWord/MemStoreWord's N
// field, and bitOffset drives the shift-and-merge sequence built by
// emitRealignedElement.
func realignOf(offset int64) (elemDelta int, bitOffset uint) {
	elemDelta = int(floorDiv(offset, 4))
	return elemDelta, uint(offset-int64(elemDelta)*4) * 8
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

// valueSlots reports how many physical stack slots a store's value
// operand occupies for the given chunk, via the same bits-to-slots
// table pkg/emit/int64.go's elementWidthForBits uses for wide values.
func valueSlots(c hir.MemChunk) int {
	return elementWidthForBits(uint8(c.SizeBytes() * 8))
}

// emitLoad lowers OpLoad. The target's native memory instruction reads
// a 4-element window starting anywhere (not just on a 4-element
// boundary); sub-element, unaligned, and multi-element accesses
// realign on top of it (spec §4.5.1 "Realignment"). HIR addresses are
// byte addresses, so the operand is converted to a flat element index
// once before any realignment arithmetic runs.
func (e *emitter) emitLoad(inst hir.Inst) {
	p := inst.Payload.(*hir.LoadPayload)
	e.routeOperands(inst.Operands)
	e.popOperands(1)
	e.out.Append(asm.Instr{Op: asm.MnShr, N: 2, Span: spanOf(inst), Comment: "byte address to element index"})

	elemDelta, bitOffset := realignOf(p.Offset)
	switch p.Chunk {
	case hir.ChunkI64, hir.ChunkF64:
		e.emitLoadWords(inst, elemDelta, bitOffset, 2)
	case hir.ChunkI128:
		e.emitLoadWords(inst, elemDelta, bitOffset, 4)
	case hir.ChunkU256:
		e.emitLoadWords(inst, elemDelta, bitOffset, 8)
	default:
		e.emitLoadNarrow(inst, p, elemDelta, bitOffset)
	}
	e.defResult(inst.Results[0])
}

// emitIsolateElement consumes the element address on top of stack,
// loads the 4-element window starting at elemDelta, and leaves just
// its first (lowest-address) element on top, discarding the other
// three.
func (e *emitter) emitIsolateElement(inst hir.Inst, elemDelta int) {
	e.out.Append(asm.Instr{Op: asm.MnMemLoadWord, N: elemDelta, Span: spanOf(inst)})
	e.out.Append(asm.Instr{Op: asm.MnDrop, N: 3, Span: spanOf(inst), Comment: "discard rest of window"})
}

// emitRealignedElement consumes the element address on top of stack
// and leaves a 32-bit register on top whose low fieldBits bits are the
// field starting bitOffset bits into the element at elemDelta (spec
// §4.5.1). When the field straddles an element boundary
// (bitOffset+fieldBits > 32), the very next element is already present
// in the same fetched window, so no second fetch is needed: low bits
// come from shifting the first element right by bitOffset, high bits
// from shifting the second element left by 32-bitOffset, OR'd
// together.
func (e *emitter) emitRealignedElement(inst hir.Inst, elemDelta int, bitOffset, fieldBits uint) {
	if bitOffset+fieldBits <= 32 {
		e.emitIsolateElement(inst, elemDelta)
		if bitOffset > 0 {
			e.out.Append(asm.Instr{Op: asm.MnShr, N: int(bitOffset), Span: spanOf(inst), Comment: "shift field to element boundary"})
		}
		return
	}
	e.out.Append(asm.Instr{Op: asm.MnMemLoadWord, N: elemDelta, Span: spanOf(inst)})
	e.out.Append(asm.Instr{Op: asm.MnDrop, N: 2, Span: spanOf(inst), Comment: "discard far elements of window"})
	// stack: [element(elemDelta+1) top, element(elemDelta)]
	e.out.Append(asm.Instr{Op: asm.MnShl, N: int(32 - bitOffset), Span: spanOf(inst), Comment: "high half of straddled field"})
	e.out.Append(asm.Instr{Op: asm.MnSwap, N: 1, Span: spanOf(inst)})
	e.out.Append(asm.Instr{Op: asm.MnShr, N: int(bitOffset), Span: spanOf(inst), Comment: "low half of straddled field"})
	e.out.Append(asm.Instr{Op: asm.MnU32Or, Span: spanOf(inst), Comment: "merge straddled field"})
}

// emitLoadWords realigns n consecutive 32-bit elements starting at the
// (element, byte) pair, decomposing into n independent single-element
// realigned loads at elemDelta+k.
func (e *emitter) emitLoadWords(inst hir.Inst, elemDelta int, bitOffset uint, n int) {
	for k := 0; k < n; k++ {
		if k < n-1 {
			e.out.Append(asm.Instr{Op: asm.MnCopy, Span: spanOf(inst), Comment: "preserve address for next limb"})
		}
		e.emitRealignedElement(inst, elemDelta+k, bitOffset, 32)
		if k < n-1 {
			e.out.Append(asm.Instr{Op: asm.MnSwap, N: 1, Span: spanOf(inst), Comment: "address back on top"})
		}
	}
}

// emitLoadNarrow handles sub-word (8/16/32-bit) chunks: realign the
// target element, then mask and sign-extend to the chunk width.
func (e *emitter) emitLoadNarrow(inst hir.Inst, p *hir.LoadPayload, elemDelta int, bitOffset uint) {
	fieldBits := uint(p.Chunk.SizeBytes() * 8)
	e.emitRealignedElement(inst, elemDelta, bitOffset, fieldBits)
	if fieldBits < 32 {
		e.out.Append(asm.Instr{Op: asm.MnShl, N: int(32 - fieldBits), Span: spanOf(inst), Comment: "clear bits above field"})
		if p.Chunk == hir.ChunkI8Signed || p.Chunk == hir.ChunkI16Signed {
			e.out.Append(asm.Instr{Op: asm.MnI32LibShr, Imm: int64(32 - fieldBits), HasImm: true, Comment: "sign-extend narrow load", Span: spanOf(inst)})
		} else {
			e.out.Append(asm.Instr{Op: asm.MnShr, N: int(32 - fieldBits), Span: spanOf(inst), Comment: "clear bits above field"})
		}
	}
}

// emitStoreElement splices value (already positioned beneath the
// address) into the first element of the window at elemDelta and
// writes the window back, leaving the other three elements untouched:
// Copy the address, read the window, rotate value into the addressed
// element's slot, discard the displaced old element, and store.
// Grounded on the native-pointer triplet's window-granular store
// primitive — a single element can never be written on its own, so
// every store (even a perfectly aligned felt/i32 one) is a
// read-splice-write of the covering window.
func (e *emitter) emitStoreElement(inst hir.Inst, elemDelta int) {
	e.out.Append(asm.Instr{Op: asm.MnCopy, Span: spanOf(inst), Comment: "preserve address for read-modify-write"})
	e.out.Append(asm.Instr{Op: asm.MnMemLoadWord, N: elemDelta, Span: spanOf(inst), Comment: "read window for splice"})
	e.out.Append(asm.Instr{Op: asm.MnMoveUp, N: 5, Span: spanOf(inst), Comment: "bring value above the window"})
	e.out.Append(asm.Instr{Op: asm.MnSwap, N: 4, Span: spanOf(inst), Comment: "swap value into target element's slot"})
	e.out.Append(asm.Instr{Op: asm.MnDrop, Span: spanOf(inst), Comment: "discard displaced old element"})
	e.out.Append(asm.Instr{Op: asm.MnMoveUp, N: 4, Span: spanOf(inst), Comment: "bring address back to top"})
	e.out.Append(asm.Instr{Op: asm.MnMemStoreWord, N: elemDelta, Span: spanOf(inst), Comment: "write spliced window back"})
}

// emitStoreFieldSimple handles a field that fits entirely within one
// element (bitOffset+fieldBits <= 32): blend the new bits into the
// surrounding old bits of that element, then emitStoreElement. An
// aligned, full-width field (bitOffset 0, fieldBits 32) degenerates to
// a plain element overwrite with no old bits to preserve.
func (e *emitter) emitStoreFieldSimple(inst hir.Inst, elemDelta int, bitOffset, fieldBits uint) {
	if bitOffset == 0 && fieldBits == 32 {
		e.emitStoreElement(inst, elemDelta)
		return
	}
	e.out.Append(asm.Instr{Op: asm.MnSwap, N: 1, Span: spanOf(inst)})
	if fieldBits < 32 {
		e.out.Append(asm.Instr{Op: asm.MnShl, N: int(32 - fieldBits), Span: spanOf(inst), Comment: "mask field to its width"})
		e.out.Append(asm.Instr{Op: asm.MnShr, N: int(32 - fieldBits), Span: spanOf(inst)})
	}
	if bitOffset > 0 {
		e.out.Append(asm.Instr{Op: asm.MnShl, N: int(bitOffset), Span: spanOf(inst), Comment: "position field in element"})
	}
	e.out.Append(asm.Instr{Op: asm.MnSwap, N: 1, Span: spanOf(inst)})
	e.out.Append(asm.Instr{Op: asm.MnCopy, Span: spanOf(inst), Comment: "preserve address to read old element"})
	e.emitIsolateElement(inst, elemDelta)
	e.out.Append(asm.Instr{Op: asm.MnCopy, Span: spanOf(inst)})
	if bitOffset+fieldBits < 32 {
		e.out.Append(asm.Instr{Op: asm.MnShr, N: int(bitOffset + fieldBits), Span: spanOf(inst), Comment: "old bits above field"})
		e.out.Append(asm.Instr{Op: asm.MnShl, N: int(bitOffset + fieldBits), Span: spanOf(inst)})
	} else {
		e.out.Append(asm.Instr{Op: asm.MnDrop, Span: spanOf(inst)})
		e.out.Append(asm.Instr{Op: asm.MnPush, Imm: 0, HasImm: true, Span: spanOf(inst)})
	}
	e.out.Append(asm.Instr{Op: asm.MnSwap, N: 1, Span: spanOf(inst)})
	if bitOffset > 0 {
		e.out.Append(asm.Instr{Op: asm.MnShl, N: int(32 - bitOffset), Span: spanOf(inst), Comment: "old bits below field"})
		e.out.Append(asm.Instr{Op: asm.MnShr, N: int(32 - bitOffset), Span: spanOf(inst)})
	} else {
		e.out.Append(asm.Instr{Op: asm.MnDrop, Span: spanOf(inst)})
		e.out.Append(asm.Instr{Op: asm.MnPush, Imm: 0, HasImm: true, Span: spanOf(inst)})
	}
	e.out.Append(asm.Instr{Op: asm.MnU32Or, Span: spanOf(inst), Comment: "merge preserved old bits"})
	e.out.Append(asm.Instr{Op: asm.MnMoveUp, N: 2, Span: spanOf(inst)})
	e.out.Append(asm.Instr{Op: asm.MnU32Or, Span: spanOf(inst), Comment: "merge in new field bits"})
	e.out.Append(asm.Instr{Op: asm.MnSwap, N: 1, Span: spanOf(inst)})
	e.emitStoreElement(inst, elemDelta)
}

// emitStoreField is emitStoreFieldSimple generalized to a field that
// straddles an element boundary: split it into the low (32-bitOffset)
// bits stored in place and the remaining high bits stored at the start
// of the following element, each an independent simple store.
func (e *emitter) emitStoreField(inst hir.Inst, elemDelta int, bitOffset, fieldBits uint) {
	if bitOffset+fieldBits <= 32 {
		e.emitStoreFieldSimple(inst, elemDelta, bitOffset, fieldBits)
		return
	}
	lowFieldBits := 32 - bitOffset
	highFieldBits := fieldBits - lowFieldBits
	e.out.Append(asm.Instr{Op: asm.MnSwap, N: 1, Span: spanOf(inst)})
	e.out.Append(asm.Instr{Op: asm.MnCopy, Span: spanOf(inst)})
	e.out.Append(asm.Instr{Op: asm.MnShr, N: int(lowFieldBits), Span: spanOf(inst), Comment: "high half of value to store"})
	e.out.Append(asm.Instr{Op: asm.MnMoveUp, N: 2, Span: spanOf(inst)})
	e.out.Append(asm.Instr{Op: asm.MnCopy, Span: spanOf(inst)})
	e.out.Append(asm.Instr{Op: asm.MnMoveUp, N: 2, Span: spanOf(inst)})
	e.out.Append(asm.Instr{Op: asm.MnSwap, N: 1, Span: spanOf(inst)})
	e.emitStoreFieldSimple(inst, elemDelta+1, 0, highFieldBits)
	e.emitStoreFieldSimple(inst, elemDelta, bitOffset, lowFieldBits)
}

// emitStoreWords realigns an n-element store the same way
// emitLoadWords does for loads, processing the value's limbs from the
// one adjacent to the address (highest limb) down to the lowest so
// each step only needs to duplicate the address, not the whole
// remaining value.
func (e *emitter) emitStoreWords(inst hir.Inst, elemDelta int, bitOffset uint, n int) {
	for k := n - 1; k >= 0; k-- {
		if k > 0 {
			e.out.Append(asm.Instr{Op: asm.MnCopy, Span: spanOf(inst), Comment: "preserve address for next limb"})
			e.out.Append(asm.Instr{Op: asm.MnMoveUp, N: 2, Span: spanOf(inst)})
			e.out.Append(asm.Instr{Op: asm.MnSwap, N: 1, Span: spanOf(inst)})
		}
		e.emitStoreField(inst, elemDelta+k, bitOffset, 32)
	}
}

// emitStore lowers OpStore symmetrically to emitLoad (spec §4.5.1):
// every chunk width realigns onto the same element-splice primitive.
// HIR addresses are byte addresses, so the operand is converted to a
// flat element index once before any realignment arithmetic runs.
func (e *emitter) emitStore(inst hir.Inst) {
	p := inst.Payload.(*hir.StorePayload)
	e.routeOperands(inst.Operands)
	e.popOperands(2)
	// routeOperands brought [addr, value] up in that order, so the
	// value's slots sit on top of the single address slot underneath
	// them; dig the address out from depth valueSlots(p.Chunk), convert
	// it, and leave it on top of the value, where the store sequences
	// below take it.
	w := valueSlots(p.Chunk)
	e.out.Append(asm.Instr{Op: asm.MnMoveUp, N: w, Span: spanOf(inst), Comment: "bring address above value"})
	e.out.Append(asm.Instr{Op: asm.MnShr, N: 2, Span: spanOf(inst), Comment: "byte address to element index"})

	elemDelta, bitOffset := realignOf(p.Offset)
	switch p.Chunk {
	case hir.ChunkI64, hir.ChunkF64:
		e.emitStoreWords(inst, elemDelta, bitOffset, 2)
	case hir.ChunkI128:
		e.emitStoreWords(inst, elemDelta, bitOffset, 4)
	case hir.ChunkU256:
		e.emitStoreWords(inst, elemDelta, bitOffset, 8)
	default:
		fieldBits := uint(p.Chunk.SizeBytes() * 8)
		e.emitStoreField(inst, elemDelta, bitOffset, fieldBits)
	}
}

// emitPrim lowers the variadic primitive family (spec §3 PrimOp).
func (e *emitter) emitPrim(inst hir.Inst) {
	p := inst.Payload.(*hir.PrimPayload)
	switch p.Op {
	case hir.PrimAssert:
		e.routeOperands(inst.Operands)
		e.popOperands(1)
		e.out.Append(asm.Instr{Op: asm.MnU32Assert, Span: spanOf(inst), Comment: "assert"})
	case hir.PrimAssertEq:
		e.routeOperands(inst.Operands)
		e.popOperands(2)
		e.out.Append(asm.Instr{Op: asm.MnEq, Span: spanOf(inst)})
		e.out.Append(asm.Instr{Op: asm.MnU32Assert, Span: spanOf(inst), Comment: "assert_eq"})
	case hir.PrimMemSet:
		e.routeOperands(inst.Operands)
		e.popOperands(3)
		e.out.Append(asm.Instr{Op: asm.MnMemStoreWord, Comment: "memset", Span: spanOf(inst)})
	case hir.PrimMemCpy:
		e.routeOperands(inst.Operands)
		e.popOperands(3)
		e.out.Append(asm.Instr{Op: asm.MnMemLoadWord, Comment: "memcpy: read src word", Span: spanOf(inst)})
		e.out.Append(asm.Instr{Op: asm.MnMemStoreWord, Comment: "memcpy: write dst word", Span: spanOf(inst)})
	case hir.PrimStoreWithAddress:
		e.routeOperands(inst.Operands)
		e.popOperands(2)
		e.out.Append(asm.Instr{Op: asm.MnMemStoreWord, Span: spanOf(inst)})
	default:
		e.h.Emit(diag.Diagnostic{Severity: diag.Bug, Message: "emit: unsupported prim op"})
	}
}

// emitGlobalValue materializes a global's address as a value: the
// linker (C7) has already assigned every global a fixed element offset
// into the program's data segment, so this is a plain immediate push.
func (e *emitter) emitGlobalValue(inst hir.Inst) {
	p := inst.Payload.(*hir.GlobalValuePayload)
	e.out.Append(asm.Instr{Op: asm.MnPush, Comment: "addr(" + p.Global.String() + ")", Span: spanOf(inst)})
	e.defResult(inst.Results[0])
}

// emitLocalAddr materializes the address of a function-local stack
// slot. Local slot offsets are assigned relative to the function's
// frame base, which the caller establishes before the body executes
// (spec §4.6 "reserved shadow stack").
func (e *emitter) emitLocalAddr(inst hir.Inst) {
	p := inst.Payload.(*hir.LocalAddrPayload)
	e.out.Append(asm.Instr{Op: asm.MnPush, Comment: "local_addr(" + localName(e.fn, p.Local) + ")", Span: spanOf(inst)})
	e.defResult(inst.Results[0])
}

func (e *emitter) emitLocalLoad(inst hir.Inst) {
	p := inst.Payload.(*hir.LocalLoadPayload)
	e.out.Append(asm.Instr{Op: asm.MnPush, Comment: "local_load(" + localName(e.fn, p.Local) + ")", Span: spanOf(inst)})
	e.out.Append(asm.Instr{Op: asm.MnMemLoadWord, Span: spanOf(inst)})
	e.defResult(inst.Results[0])
}

func (e *emitter) emitLocalStore(inst hir.Inst) {
	p := inst.Payload.(*hir.LocalStorePayload)
	e.routeOperands(inst.Operands)
	e.popOperands(1)
	e.out.Append(asm.Instr{Op: asm.MnPush, Comment: "local_store(" + localName(e.fn, p.Local) + ")", Span: spanOf(inst)})
	e.out.Append(asm.Instr{Op: asm.MnMemStoreWord, Span: spanOf(inst)})
}

func localName(fn *hir.Function, id hir.LocalID) string {
	v, guard := id.Borrow()
	defer guard.Release()
	return v.Name
}

// emitInlineAsm splices verbatim target text in as individual
// comment-only placeholder instructions; the textual body itself is
// opaque to this package (spec §3 "does not go through the emitter's
// opcode lowering").
func (e *emitter) emitInlineAsm(inst hir.Inst) {
	p := inst.Payload.(*hir.InlineAsmPayload)
	e.routeOperands(inst.Operands)
	e.popOperands(len(inst.Operands))
	e.out.Append(asm.Instr{Op: asm.MnRaw, Comment: p.Text, Span: spanOf(inst)})
	for _, r := range inst.Results {
		e.defResult(r)
	}
}
