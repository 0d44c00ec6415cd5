package emit

import (
	"github.com/feltvm/feltc/pkg/asm"
	"github.com/feltvm/feltc/pkg/hir"
	"github.com/feltvm/feltc/pkg/solver"
	"github.com/feltvm/feltc/pkg/types"
)

// elementWidth reports how many 32-bit stack slots a value of type ty
// occupies, per spec §4.5 "64-bit integers are represented as two
// 32-bit limbs" generalized to 128/256-bit and to f64.
func elementWidth(ty types.Type) int {
	switch t := ty.(type) {
	case types.Int:
		switch t.Width {
		case 64:
			return 2
		case 128:
			return 4
		}
		return 1
	case types.U256:
		return 8
	case types.F64:
		return 2
	default:
		return 1
	}
}

// Stack is the emitter's abstract model of the operand stack: a
// logical sequence of HIR values (top first), each occupying one or
// more physical 32-bit slots. The generic solver (C5) reasons purely
// over the logical sequence; Stack translates its Move/Copy actions
// into the physically-correct run of single-slot ASM primitives for
// whatever width the referenced value actually has.
type Stack struct {
	fn   *hir.Function
	vals []hir.ValueID
}

func newStack(fn *hir.Function, initial []hir.ValueID) *Stack {
	return &Stack{fn: fn, vals: append([]hir.ValueID(nil), initial...)}
}

// Values returns the current logical stack, top first; callers (the
// solver) must treat it as read-only.
func (s *Stack) Values() []hir.ValueID { return append([]hir.ValueID(nil), s.vals...) }

func (s *Stack) widthOf(id hir.ValueID) int {
	return elementWidth(s.fn.ValueData(id).Type)
}

// PhysicalDepth returns the 0-indexed physical slot depth of the value
// currently at logical position i.
func (s *Stack) PhysicalDepth(i int) int {
	d := 0
	for k := 0; k < i; k++ {
		d += s.widthOf(s.vals[k])
	}
	return d
}

// Push places id on top of the logical stack (no ASM emitted; callers
// that need the literal push instruction emit it themselves and then
// call Push to keep the model in sync).
func (s *Stack) Push(id hir.ValueID) {
	s.vals = append([]hir.ValueID{id}, s.vals...)
}

// PopTop removes the top n logical entries without emitting any ASM,
// for use after an opcode whose own instruction implicitly consumes
// its operands (e.g. u32.add pops two slots and pushes one).
func (s *Stack) PopTop(n int) {
	if n > len(s.vals) {
		n = len(s.vals)
	}
	s.vals = s.vals[n:]
}

// ApplyAction mutates the logical model per a's semantics and returns
// the physical ASM instructions that realize it, expanding a single
// logical Move/Copy of a width-w value into w identically-addressed
// single-slot primitives (derived from the target's stack-shift rules;
// see DESIGN.md).
func (s *Stack) ApplyAction(a solver.Action) []asm.Instr {
	switch a.Kind {
	case solver.ActionCopy:
		return s.applyCopy(a.N)
	case solver.ActionMoveUp:
		return s.applyMoveUp(a.N)
	case solver.ActionMoveDown:
		return s.applyMoveDown(a.N)
	case solver.ActionSwap:
		return s.applySwap(a.N)
	default:
		return nil
	}
}

func (s *Stack) applyCopy(n int) []asm.Instr {
	w := s.widthOf(s.vals[n])
	d := s.PhysicalDepth(n)
	out := make([]asm.Instr, w)
	for i := range out {
		out[i] = asm.Copy(d + w - 1)
	}
	id := s.vals[n]
	s.vals = append([]hir.ValueID{id}, s.vals...)
	return out
}

func (s *Stack) applyMoveUp(n int) []asm.Instr {
	w := s.widthOf(s.vals[n])
	d := s.PhysicalDepth(n)
	out := make([]asm.Instr, w)
	for i := range out {
		out[i] = asm.MoveUp(d + w - 1)
	}
	id := s.vals[n]
	rest := append(append([]hir.ValueID(nil), s.vals[:n]...), s.vals[n+1:]...)
	s.vals = append([]hir.ValueID{id}, rest...)
	return out
}

func (s *Stack) applyMoveDown(n int) []asm.Instr {
	id := s.vals[0]
	w := s.widthOf(id)
	rest := s.vals[1:]
	d := 0
	for k := 0; k < n && k < len(rest); k++ {
		d += s.widthOf(rest[k])
	}
	target := d + w - 1
	out := make([]asm.Instr, w)
	for i := range out {
		out[i] = asm.MoveDown(target)
	}
	newVals := append([]hir.ValueID(nil), rest[:n]...)
	newVals = append(newVals, id)
	newVals = append(newVals, rest[n:]...)
	s.vals = newVals
	return out
}

func (s *Stack) applySwap(n int) []asm.Instr {
	d := s.PhysicalDepth(n)
	out := []asm.Instr{asm.Swap(d)}
	s.vals[0], s.vals[n] = s.vals[n], s.vals[0]
	return out
}
