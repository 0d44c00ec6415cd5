package entity

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAllocAndBorrow(t *testing.T) {
	ctx := NewContext()
	arena := NewArena[int](ctx)
	ref := Alloc(arena, 42)

	v, guard := ref.Borrow()
	require.Equal(t, 42, *v)
	guard.Release()
}

func TestBorrowMutExclusive(t *testing.T) {
	ctx := NewContext()
	arena := NewArena[int](ctx)
	ref := Alloc(arena, 1)

	_, guard := ref.BorrowMut()
	require.Panics(t, func() {
		ref.Borrow()
	})
	guard.Release()

	// Released, so a fresh mutable borrow succeeds.
	v, guard2 := ref.BorrowMut()
	*v = 2
	guard2.Release()

	v2, guard3 := ref.Borrow()
	require.Equal(t, 2, *v2)
	guard3.Release()
}

func TestBorrowSharedAllowsMultiple(t *testing.T) {
	ctx := NewContext()
	arena := NewArena[int](ctx)
	ref := Alloc(arena, 7)

	_, g1 := ref.Borrow()
	_, g2 := ref.Borrow()
	require.NotPanics(t, func() {
		g1.Release()
		g2.Release()
	})
}

func TestBorrowMutWhileSharedPanics(t *testing.T) {
	ctx := NewContext()
	arena := NewArena[int](ctx)
	ref := Alloc(arena, 0)

	_, g := ref.Borrow()
	require.Panics(t, func() {
		ref.BorrowMut()
	})
	g.Release()
}

func TestEpochMismatchPanics(t *testing.T) {
	ctx1 := NewContext()
	arena1 := NewArena[int](ctx1)
	ref := Alloc(arena1, 9)

	// Simulate a stale Ref from a dropped context by forging a new
	// epoch directly on the same arena's backing context.
	ctx1.epoch = ctx1.epoch + 1
	require.Panics(t, func() {
		ref.Borrow()
	})
}

func TestNilRefPanics(t *testing.T) {
	var r Ref[int]
	require.True(t, r.IsNil())
	require.Panics(t, func() {
		r.Borrow()
	})
}

func TestWithHelpers(t *testing.T) {
	ctx := NewContext()
	arena := NewArena[int](ctx)
	ref := Alloc(arena, 10)

	WithMut(ref, func(v *int) { *v += 5 })

	var seen int
	With(ref, func(v *int) { seen = *v })
	require.Equal(t, 15, seen)
}

func TestRefIndexIsStable(t *testing.T) {
	ctx := NewContext()
	arena := NewArena[string](ctx)
	a := Alloc(arena, "a")
	b := Alloc(arena, "b")
	require.Equal(t, 0, a.Index())
	require.Equal(t, 1, b.Index())
	require.NotEqual(t, a, b)
}
