package emulator

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/feltvm/feltc/pkg/asm"
)

func program(fns ...*asm.Function) *asm.Program {
	return &asm.Program{Functions: fns}
}

func TestInvokeFeltAdd(t *testing.T) {
	fn := asm.NewFunction("m::add3")
	fn.Append(asm.Push(3))
	fn.Append(asm.Instr{Op: asm.MnAdd})
	fn.Append(asm.Ret())

	em := New(program(fn), Options{})
	out, err := em.Invoke("m::add3", []uint64{4})
	require.NoError(t, err)
	require.Equal(t, []uint64{7}, out)
}

func TestStackManipulationSwap(t *testing.T) {
	fn := asm.NewFunction("m::f")
	fn.Append(asm.Push(1))
	fn.Append(asm.Push(2))
	fn.Append(asm.Swap(1))
	fn.Append(asm.Ret())

	em := New(program(fn), Options{})
	out, err := em.Invoke("m::f", nil)
	require.NoError(t, err)
	require.Equal(t, []uint64{2, 1}, out)
}

func TestMoveUpBringsDeepValueToTop(t *testing.T) {
	fn := asm.NewFunction("m::f")
	fn.Append(asm.Push(1))
	fn.Append(asm.Push(2))
	fn.Append(asm.Push(3))
	fn.Append(asm.MoveUp(2))
	fn.Append(asm.Ret())

	em := New(program(fn), Options{})
	out, err := em.Invoke("m::f", nil)
	require.NoError(t, err)
	require.Equal(t, []uint64{2, 3, 1}, out)
}

func TestDirectCall(t *testing.T) {
	callee := asm.NewFunction("m::inc")
	callee.Append(asm.Push(1))
	callee.Append(asm.Instr{Op: asm.MnAdd})
	callee.Append(asm.Ret())

	caller := asm.NewFunction("m::twice_inc")
	caller.Append(asm.Call("m::inc"))
	caller.Append(asm.Call("m::inc"))
	caller.Append(asm.Ret())

	em := New(program(callee, caller), Options{})
	out, err := em.Invoke("m::twice_inc", []uint64{10})
	require.NoError(t, err)
	require.Equal(t, []uint64{12}, out)
}

func TestConditionalJump(t *testing.T) {
	fn := asm.NewFunction("m::choose")
	fn.Append(asm.JmpIf("truecase"))
	fn.Append(asm.Push(0))
	fn.Append(asm.Ret())
	fn.AppendLabel("truecase")
	fn.Append(asm.Push(1))
	fn.Append(asm.Ret())

	em := New(program(fn), Options{})
	out, err := em.Invoke("m::choose", []uint64{1})
	require.NoError(t, err)
	require.Equal(t, []uint64{1}, out)

	em2 := New(program(fn), Options{})
	out2, err := em2.Invoke("m::choose", []uint64{0})
	require.NoError(t, err)
	require.Equal(t, []uint64{0}, out2)
}

func TestStackUnderflowTraps(t *testing.T) {
	fn := asm.NewFunction("m::bad")
	fn.Append(asm.Instr{Op: asm.MnAdd})
	fn.Append(asm.Ret())

	em := New(program(fn), Options{})
	_, err := em.Invoke("m::bad", nil)
	require.Error(t, err)
	var ee *EmulationError
	require.ErrorAs(t, err, &ee)
}

func TestUnreachableTraps(t *testing.T) {
	fn := asm.NewFunction("m::bad")
	fn.Append(asm.Instr{Op: asm.MnUnreachable})

	em := New(program(fn), Options{})
	_, err := em.Invoke("m::bad", nil)
	require.Error(t, err)
}

// mem.loadw/mem.storew always move a 4-element window: push the
// window's elements low-to-high, then the element address on top for
// the store, and expect them back in the same low-to-high order after
// the matching load.
func TestMemoryStoreLoadRoundTrip(t *testing.T) {
	fn := asm.NewFunction("m::storeload")
	fn.Append(asm.Push(10)) // e0
	fn.Append(asm.Push(20)) // e1
	fn.Append(asm.Push(30)) // e2
	fn.Append(asm.Push(40)) // e3
	fn.Append(asm.Push(5))  // element address
	fn.Append(asm.Instr{Op: asm.MnMemStoreWord})
	fn.Append(asm.Push(5))
	fn.Append(asm.Instr{Op: asm.MnMemLoadWord})
	fn.Append(asm.Ret())

	em := New(program(fn), Options{})
	out, err := em.Invoke("m::storeload", nil)
	require.NoError(t, err)
	require.Equal(t, []uint64{10, 20, 30, 40}, out)
}

func TestCycleBudgetExhausted(t *testing.T) {
	loop := asm.NewFunction("m::loop")
	loop.AppendLabel("top")
	loop.Append(asm.Jmp("top"))

	em := New(program(loop), Options{CycleBudget: 5})
	_, err := em.Invoke("m::loop", nil)
	require.Error(t, err)
}
