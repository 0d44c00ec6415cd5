package emulator

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/feltvm/feltc/pkg/asm"
)

// checkedAddProgram builds a single-function ASM program computing
// i32lib.checked_add(a, b) with the given overflow mode, args pushed a then b.
func checkedAddProgram(ov asm.Overflow) *asm.Program {
	fn := asm.NewFunction("m::add")
	fn.Append(asm.Instr{Op: asm.MnI32LibAdd, Overflow: ov})
	fn.Append(asm.Ret())
	return &asm.Program{Functions: []*asm.Function{fn}}
}

func asI32(v uint64) int32 { return int32(uint32(v)) }

// TestSignedCheckedAddTraps covers spec §8 scenario 4: checked_add
// traps on overflow and returns the sum otherwise.
func TestSignedCheckedAddTraps(t *testing.T) {
	em := New(checkedAddProgram(asm.OvChecked), Options{})
	_, err := em.Invoke("m::add", []uint64{uint64(uint32(int32Max)), 1})
	require.Error(t, err, "i32::MAX + 1 must trap")

	em2 := New(checkedAddProgram(asm.OvChecked), Options{})
	out, err := em2.Invoke("m::add", []uint64{1, 2})
	require.NoError(t, err)
	require.Equal(t, int32(3), asI32(out[0]))

	em3 := New(checkedAddProgram(asm.OvChecked), Options{})
	_, err = em3.Invoke("m::add", []uint64{uint64(uint32(int32Min)), uint64(uint32(int32(-1)))})
	require.Error(t, err, "i32::MIN + (-1) must trap")
}

// TestSignedOverflowingAddProperty covers spec §8 scenario 5: for all
// a, b in i32, overflowing_add(a, b) == (a.wrapping_add(b), did it
// overflow), modeled against Go's own int32 wraparound as the oracle.
func TestSignedOverflowingAddProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := rapid.Int32().Draw(t, "a")
		b := rapid.Int32().Draw(t, "b")

		em := New(checkedAddProgram(asm.OvOverflowing), Options{})
		out, err := em.Invoke("m::add", []uint64{uint64(uint32(a)), uint64(uint32(b))})
		require.NoError(t, err)
		require.Len(t, out, 2)

		wantSum := int32(uint32(a) + uint32(b)) // wrapping add
		wantOverflow := (int64(a) + int64(b)) != int64(wantSum)

		require.Equal(t, wantSum, asI32(out[0]))
		require.Equal(t, wantOverflow, out[1] != 0)
	})
}
