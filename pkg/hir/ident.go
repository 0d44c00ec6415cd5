// Package hir implements the in-memory IR model described in spec §3 and
// §4.1 (component C2): modules, functions, blocks, instructions, and
// values, along with the builder API that constructs them and the
// invariant checks the builder enforces.
package hir

import (
	"fmt"

	"github.com/feltvm/feltc/pkg/diag"
)

// Ident is an interned, source-spanned identifier. Two Idents compare
// equal by name; the span is carried only for diagnostics.
type Ident struct {
	Name string
	Span diag.Span
}

func (id Ident) String() string { return id.Name }

// FunctionIdent is a fully-qualified function name: (module, function).
type FunctionIdent struct {
	Module   string
	Function string
}

func (f FunctionIdent) String() string {
	return fmt.Sprintf("%s::%s", f.Module, f.Function)
}

// GlobalIdent names a global variable, scoped to either a single module
// (before linking) or the linked program (after linking resolves any
// renames, §4.6 step 2).
type GlobalIdent struct {
	Module string // empty once promoted to program scope
	Name   string
}

func (g GlobalIdent) String() string {
	if g.Module == "" {
		return g.Name
	}
	return fmt.Sprintf("%s::%s", g.Module, g.Name)
}
