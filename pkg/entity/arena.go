// Package entity implements the arena-allocation and dynamically-checked
// aliasing discipline that the IR relies on (spec §3 "Ownership", §5
// "Concurrency & Resource Model", §9 "Cyclic IR references").
//
// IR entities are never individually freed; they live in a per-Context
// bump arena and are addressed through Ref handles that carry a borrow
// guard rather than a Rust-style static lifetime. This lets definitions
// and uses refer to each other cyclically (a value's def-site can walk
// its use-list, and a use can walk back to its definition) without the
// IR needing two ownership directions.
package entity

import (
	"fmt"
)

// Context carries the epoch that every Ref minted from an arena bound to
// it is stamped with, so a Ref created under a dropped Context can never
// be mistaken for one belonging to the live Context that happens to
// reuse the same slice index. The arenas themselves are created
// separately, with NewArena(ctx).
type Context struct {
	epoch uint32
}

var nextEpoch uint32 = 1

// NewContext allocates a fresh compilation context.
func NewContext() *Context {
	e := nextEpoch
	nextEpoch++
	return &Context{epoch: e}
}

// borrowState tracks the current aliasing state of one arena slot:
// zero means unborrowed, -1 means mutably borrowed, and any positive
// count is the number of live immutable borrows.
type borrowState int32

const mutBorrow borrowState = -1

// Arena is a bump allocator for values of type T, along with the
// per-slot borrow-state table that backs Ref's dynamic aliasing checks.
type Arena[T any] struct {
	ctx     *Context
	items   []T
	borrows []borrowState
}

// NewArena creates an arena bound to ctx. Every Ref minted from it can
// only be dereferenced while ctx is alive (in practice: for as long as
// the Go value is reachable; Arena performs no unsafe deallocation).
func NewArena[T any](ctx *Context) *Arena[T] {
	return &Arena[T]{ctx: ctx}
}

// Ref is a non-owning, dynamically borrow-checked handle to an entity
// stored in an Arena. Two Refs compare equal with == iff they name the
// same slot in the same Context epoch.
type Ref[T any] struct {
	arena *Arena[T]
	index int
	epoch uint32
}

// IsNil reports whether r is the zero Ref.
func (r Ref[T]) IsNil() bool { return r.arena == nil }

// Alloc appends value to the arena and returns a Ref to it.
func Alloc[T any](a *Arena[T], value T) Ref[T] {
	a.items = append(a.items, value)
	a.borrows = append(a.borrows, 0)
	return Ref[T]{arena: a, index: len(a.items) - 1, epoch: a.ctx.epoch}
}

func (r Ref[T]) checkEpoch() {
	if r.arena == nil {
		panic("use of nil entity.Ref")
	}
	if r.epoch != r.arena.ctx.epoch {
		panic("use of entity.Ref after its owning Context was dropped")
	}
}

// BorrowGuard releases a borrow acquired via Borrow/BorrowMut. Callers
// must defer guard.Release(). An un-released mutable guard makes every
// later Borrow and BorrowMut of the same slot panic; an un-released
// immutable guard makes later BorrowMut calls panic, while Borrow still
// succeeds. An un-released guard indicates a logic error (e.g. a guard
// captured past the scope of its borrow).
type BorrowGuard[T any] struct {
	arena    *Arena[T]
	index    int
	mutable  bool
	released bool
}

// Release ends the borrow. Safe to call multiple times.
func (g *BorrowGuard[T]) Release() {
	if g == nil || g.released {
		return
	}
	g.released = true
	if g.mutable {
		g.arena.borrows[g.index] = 0
	} else {
		g.arena.borrows[g.index]--
	}
}

// Borrow acquires a shared, read-only view of the referenced entity.
// Panics (an invariant violation per spec §7 error kind 1) if the slot
// is currently mutably borrowed.
func (r Ref[T]) Borrow() (*T, *BorrowGuard[T]) {
	r.checkEpoch()
	state := r.arena.borrows[r.index]
	if state == mutBorrow {
		panic(fmt.Sprintf("aliasing violation: entity %d is already mutably borrowed", r.index))
	}
	r.arena.borrows[r.index] = state + 1
	return &r.arena.items[r.index], &BorrowGuard[T]{arena: r.arena, index: r.index, mutable: false}
}

// BorrowMut acquires an exclusive, mutable view of the referenced
// entity. Panics if the slot is borrowed in any way (mutably or
// immutably) at the time of the call.
func (r Ref[T]) BorrowMut() (*T, *BorrowGuard[T]) {
	r.checkEpoch()
	state := r.arena.borrows[r.index]
	if state != 0 {
		panic(fmt.Sprintf("aliasing violation: entity %d is already borrowed", r.index))
	}
	r.arena.borrows[r.index] = mutBorrow
	return &r.arena.items[r.index], &BorrowGuard[T]{arena: r.arena, index: r.index, mutable: true}
}

// Index returns the arena-local index for this Ref. Useful for entities
// (Value, Block, Inst) that want a compact, totally-ordered identifier
// to use as a map key.
func (r Ref[T]) Index() int { return r.index }

// WithMut is a convenience wrapper that borrows r mutably for the
// duration of fn and releases the guard automatically.
func WithMut[T any](r Ref[T], fn func(*T)) {
	v, guard := r.BorrowMut()
	defer guard.Release()
	fn(v)
}

// With is a convenience wrapper that borrows r immutably for the
// duration of fn and releases the guard automatically.
func With[T any](r Ref[T], fn func(*T)) {
	v, guard := r.Borrow()
	defer guard.Release()
	fn(v)
}
