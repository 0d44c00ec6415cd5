package hir

import "github.com/feltvm/feltc/pkg/types"

// GlobalVariable is a module-scoped piece of statically-allocated data
// (spec §3 "Globals"): a name, type, optional initializer bytes, and
// linkage, which the linker may merge or rename across modules (§4.6
// step 2).
type GlobalVariable struct {
	Name     GlobalIdent
	Type     types.Type
	Init     []byte
	Linkage  types.Linkage
	ReadOnly bool
}

// DataSegment is a contiguous range of the linked program's address
// space reserved for a group of globals once layout is finalized
// (§4.6 step 5); modules don't create these directly, the linker does.
type DataSegment struct {
	Name   string
	Offset uint32
	Bytes  []byte
}

// Module is the top-level compilation unit: a named collection of
// functions and globals, optionally marked as a kernel module (spec §3
// "Modules"). Modules are linked together by pkg/linker into a single
// Program.
type Module struct {
	Name      string
	IsKernel  bool
	Functions []*Function
	Globals   []*GlobalVariable
	Docs      string
}

// NewModule creates an empty module.
func NewModule(name string) *Module {
	return &Module{Name: name}
}

// AddFunction appends fn to the module and returns it for chaining.
func (m *Module) AddFunction(fn *Function) *Function {
	m.Functions = append(m.Functions, fn)
	return fn
}

// AddGlobal appends g to the module and returns it for chaining.
func (m *Module) AddGlobal(g *GlobalVariable) *GlobalVariable {
	m.Globals = append(m.Globals, g)
	return g
}

// FindFunction returns the module's function named name, or nil.
func (m *Module) FindFunction(name string) *Function {
	for _, fn := range m.Functions {
		if fn.Name.Function == name {
			return fn
		}
	}
	return nil
}

// FindGlobal returns the module's global variable named name, or nil.
func (m *Module) FindGlobal(name string) *GlobalVariable {
	for _, g := range m.Globals {
		if g.Name.Name == name {
			return g
		}
	}
	return nil
}
