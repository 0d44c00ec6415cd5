// Package solver implements the operand-movement constraint solver
// (spec §4.4): given a required operand ordering at an instruction site
// and the current abstract operand stack, it produces a minimal
// sequence of stack-manipulation actions (move, copy, swap) respecting
// per-operand consume/copy constraints.
//
// The solver is generic over the operand identity type so it can be
// reused against either hir.ValueID (during emission) or a synthetic
// test identifier (property tests).
package solver

import (
	"errors"
	"fmt"
)

// Constraint is what the consuming instruction requires of an operand.
type Constraint uint8

const (
	// Move means the remaining uses are exhausted; the original stack
	// slot may be consumed.
	Move Constraint = iota
	// Copy means the value is live past this use and must survive.
	Copy
)

// ActionKind enumerates the four stack-manipulation primitives the
// target supports.
type ActionKind uint8

const (
	ActionMoveUp ActionKind = iota
	ActionMoveDown
	ActionSwap
	ActionCopy
)

// Action is one stack-manipulation primitive with its depth argument N
// (0-indexed from the top; Swap additionally requires 1<=N<=15).
type Action struct {
	Kind ActionKind
	N    int
}

func (a Action) String() string {
	names := [...]string{"MoveUp", "MoveDown", "Swap", "Copy"}
	return fmt.Sprintf("%s(%d)", names[a.Kind], a.N)
}

// MaxSwapDepth is the deepest position Swap can reach directly; deeper
// exchanges must be expressed as Move sequences (spec §4.4
// "Constraints of the target").
const MaxSwapDepth = 15

// DefaultFuel is the optimization fuel budget handed to Solve when the
// caller doesn't override it.
const DefaultFuel = 25

// ErrAlreadySolved is returned when the stack already presents the
// expected operands in order and no operand needs to survive via copy;
// the caller may skip emission entirely.
var ErrAlreadySolved = errors.New("solver: already solved")

// ErrNoSolution is returned when no tactic produced a valid action
// sequence before the fuel budget was exhausted. This indicates an
// internal bug (the tactic library is believed complete for this
// target), not a user error.
var ErrNoSolution = errors.New("solver: no solution found within fuel budget")

// Expected is one required operand: the value that must end up at this
// position, and how the consumer will use it.
type Expected[T comparable] struct {
	ID         T
	Constraint Constraint
}

// Solve computes the shortest action sequence that brings stack (top
// first, i.e. stack[0] is the current top) into an arrangement whose
// first len(expected) elements are expected[0]..expected[k-1], in that
// order, from the top down — preserving any operand whose constraint
// is Copy somewhere below the consumed window.
//
// Returns ErrAlreadySolved if no action is needed, ErrNoSolution if the
// fuel budget is exhausted before any tactic succeeds.
func Solve[T comparable](expected []Expected[T], stack []T, fuel int) ([]Action, error) {
	if fuel <= 0 {
		fuel = DefaultFuel
	}
	if len(expected) == 0 {
		return nil, ErrAlreadySolved
	}

	prepared := uniqueAliases(expected)

	if alreadySolved(prepared, stack) {
		return nil, ErrAlreadySolved
	}

	type attempt struct {
		actions []Action
		cost    int
	}
	var best *attempt
	tryTactic := func(run func() ([]Action, bool)) {
		if fuel <= 0 {
			return
		}
		actions, ok := run()
		fuel--
		if !ok {
			return
		}
		if best == nil || len(actions) < best.cost {
			best = &attempt{actions: actions, cost: len(actions)}
		}
	}

	allCopy := true
	for _, e := range prepared {
		if e.Constraint != Copy {
			allCopy = false
			break
		}
	}

	if allCopy {
		tryTactic(func() ([]Action, bool) { return copyAll(prepared, stack) })
	}
	tryTactic(func() ([]Action, bool) { return linear(prepared, stack) })
	if !allCopy {
		tryTactic(func() ([]Action, bool) { return swapAndMoveUp(prepared, stack) })
		tryTactic(func() ([]Action, bool) { return moveUpAndSwap(prepared, stack) })
		tryTactic(func() ([]Action, bool) { return moveDownAndSwap(prepared, stack) })
	}

	if best == nil {
		return nil, ErrNoSolution
	}
	return best.actions, nil
}

// uniqueAliases rewrites the constraint list so that every occurrence
// of a repeated value except the last is forced to Copy — the earlier
// occurrences must leave the value in place for the later ones to still
// find it, regardless of what the caller originally asked for.
func uniqueAliases[T comparable](expected []Expected[T]) []Expected[T] {
	lastIndex := make(map[T]int, len(expected))
	for i, e := range expected {
		lastIndex[e.ID] = i
	}
	out := make([]Expected[T], len(expected))
	copy(out, expected)
	for i := range out {
		if lastIndex[out[i].ID] != i {
			out[i].Constraint = Copy
		}
	}
	return out
}

func alreadySolved[T comparable](expected []Expected[T], stack []T) bool {
	if len(stack) < len(expected) {
		return false
	}
	for i, e := range expected {
		if e.Constraint == Copy {
			return false
		}
		if stack[i] != e.ID {
			return false
		}
	}
	return true
}

// depthOf returns the shallowest index of id in stack, or -1.
func depthOf[T comparable](stack []T, id T) int {
	for i, v := range stack {
		if v == id {
			return i
		}
	}
	return -1
}

// simulate applies actions to a copy of stack and returns the result.
// Used both by tactics, to verify their own output, and by tests that
// check the solver's central correctness property.
func simulate[T comparable](stack []T, actions []Action) ([]T, error) {
	s := append([]T(nil), stack...)
	for _, a := range actions {
		switch a.Kind {
		case ActionMoveUp:
			if a.N < 0 || a.N >= len(s) {
				return nil, fmt.Errorf("MoveUp(%d): out of range (len=%d)", a.N, len(s))
			}
			v := s[a.N]
			s = append(s[:a.N], s[a.N+1:]...)
			s = append([]T{v}, s...)
		case ActionMoveDown:
			if len(s) == 0 {
				return nil, errors.New("MoveDown: empty stack")
			}
			if a.N < 0 || a.N >= len(s) {
				return nil, fmt.Errorf("MoveDown(%d): out of range (len=%d)", a.N, len(s))
			}
			v := s[0]
			s = s[1:]
			tail := append([]T{}, s[:a.N]...)
			tail = append(tail, v)
			s = append(tail, s[a.N:]...)
		case ActionSwap:
			if a.N < 1 || a.N > MaxSwapDepth || a.N >= len(s) {
				return nil, fmt.Errorf("Swap(%d): out of range (len=%d)", a.N, len(s))
			}
			s[0], s[a.N] = s[a.N], s[0]
		case ActionCopy:
			if a.N < 0 || a.N >= len(s) {
				return nil, fmt.Errorf("Copy(%d): out of range (len=%d)", a.N, len(s))
			}
			s = append([]T{s[a.N]}, s...)
		}
	}
	return s, nil
}

// Simulate is the exported form of simulate, used by tests and callers
// that want to double-check a solution before applying it for real.
func Simulate[T comparable](stack []T, actions []Action) ([]T, error) {
	return simulate(stack, actions)
}
