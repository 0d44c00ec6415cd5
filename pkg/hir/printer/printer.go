// Package printer renders an hir.Module to the textual MIR form used by
// tests and by the `--demit-hir` CLI dump, matching the grammar fixed
// by the external interface: "(kernel|module) <name> ... fn <linkage>
// <cc> <name>(<params>) -> (<results>) { <block>(<params>): ... }".
package printer

import (
	"fmt"
	"io"
	"sort"

	"github.com/feltvm/feltc/pkg/hir"
	"github.com/feltvm/feltc/pkg/types"
)

// Printer writes modules to w in the canonical textual form.
type Printer struct {
	w io.Writer
}

// New creates a Printer writing to w.
func New(w io.Writer) *Printer {
	return &Printer{w: w}
}

// PrintModule renders an entire module.
func (p *Printer) PrintModule(m *hir.Module) {
	kind := "module"
	if m.IsKernel {
		kind = "kernel"
	}
	fmt.Fprintf(p.w, "%s %s\n\n", kind, m.Name)

	for _, g := range m.Globals {
		p.printGlobal(g)
	}
	if len(m.Globals) > 0 {
		fmt.Fprintln(p.w)
	}

	for i, fn := range m.Functions {
		p.PrintFunction(fn)
		if i < len(m.Functions)-1 {
			fmt.Fprintln(p.w)
		}
	}
}

func (p *Printer) printGlobal(g *hir.GlobalVariable) {
	fmt.Fprintf(p.w, "global %s @%s : %s", linkageName(g.Linkage), g.Name.Name, g.Type)
	if len(g.Init) > 0 {
		fmt.Fprintf(p.w, " = %d bytes", len(g.Init))
	}
	fmt.Fprintln(p.w, ";")
}

func linkageName(l types.Linkage) string {
	switch l {
	case types.LinkagePublic:
		return "public"
	case types.LinkageExternal:
		return "external"
	case types.LinkageOdr:
		return "odr"
	case types.LinkageCommon:
		return "common"
	default:
		return "private"
	}
}

func ccName(cc types.CallConv) string {
	if cc == types.CCKernel {
		return "kernel"
	}
	return "fast"
}

// PrintFunction renders one function body, walking blocks in creation
// order and instructions in program order (invariant F2: terminator
// last).
func (p *Printer) PrintFunction(fn *hir.Function) {
	sig := fn.Sig
	fmt.Fprintf(p.w, "fn %s %s %s(", linkageName(sig.Linkage), ccName(sig.CC), fn.Name)
	for i, param := range sig.Params {
		if i > 0 {
			fmt.Fprint(p.w, ", ")
		}
		fmt.Fprintf(p.w, "%s", param.Type)
	}
	fmt.Fprint(p.w, ") -> (")
	for i, r := range sig.Results {
		if i > 0 {
			fmt.Fprint(p.w, ", ")
		}
		fmt.Fprintf(p.w, "%s", r.Type)
	}
	fmt.Fprintln(p.w, ") {")

	for _, b := range fn.Blocks() {
		p.printBlock(fn, b)
	}

	fmt.Fprintln(p.w, "}")
}

func (p *Printer) printBlock(fn *hir.Function, b hir.BlockID) {
	params := fn.BlockParams(b)
	fmt.Fprintf(p.w, "  bb%d(", b.Index())
	for i, v := range params {
		if i > 0 {
			fmt.Fprint(p.w, ", ")
		}
		vd := fn.ValueData(v)
		fmt.Fprintf(p.w, "%%%d: %s", v.Index(), vd.Type)
	}
	fmt.Fprintln(p.w, "):")

	for _, iid := range fn.BlockInsts(b) {
		p.printInst(fn, iid)
	}
}

func (p *Printer) printInst(fn *hir.Function, iid hir.InstID) {
	inst := fn.InstData(iid)
	fmt.Fprint(p.w, "    ")
	if len(inst.Results) > 0 {
		for i, r := range inst.Results {
			if i > 0 {
				fmt.Fprint(p.w, ", ")
			}
			fmt.Fprintf(p.w, "%%%d", r.Index())
		}
		fmt.Fprint(p.w, " = ")
	}
	fmt.Fprint(p.w, opcodeText(inst))
	if inst.Overflow != hir.OverflowUnchecked {
		fmt.Fprintf(p.w, ".%s", inst.Overflow)
	}
	if tryVariant(inst.Payload) {
		fmt.Fprint(p.w, ".try")
	}
	p.printOperandsAndPayload(fn, inst)
	fmt.Fprintln(p.w, ";")
}

// opcodeText picks the token printed right after the result list. For
// the two polymorphic arithmetic opcodes (binary/unary, with or without
// an immediate) this is the specific operator name (add, sub, trunc,
// ...) rather than the coarse Opcode tag, matching the MIR grammar's
// `<opcode>[.<overflow>]` (spec §6) where distinct arithmetic operators
// are themselves distinct opcodes, not one generic "binary" tag.
func opcodeText(inst hir.Inst) string {
	switch p := inst.Payload.(type) {
	case *hir.BinaryPayload:
		return p.Op.String()
	case *hir.BinaryImmPayload:
		return p.Op.String() + ".imm"
	case *hir.UnaryPayload:
		return p.Op.String()
	case *hir.UnaryImmPayload:
		return p.Op.String() + ".imm"
	case *hir.PrimPayload:
		return primOpName(p.Op)
	default:
		return inst.Opcode.String()
	}
}

func tryVariant(payload any) bool {
	switch p := payload.(type) {
	case *hir.BinaryPayload:
		return p.Try
	case *hir.UnaryPayload:
		return p.Try
	default:
		return false
	}
}

func primOpName(op hir.PrimOp) string {
	switch op {
	case hir.PrimMemSet:
		return "memset"
	case hir.PrimMemCpy:
		return "memcpy"
	case hir.PrimAssert:
		return "assert"
	case hir.PrimAssertEq:
		return "assert_eq"
	case hir.PrimStoreWithAddress:
		return "store_with_address"
	default:
		return "prim"
	}
}

func (p *Printer) printOperandsAndPayload(fn *hir.Function, inst hir.Inst) {
	fmt.Fprint(p.w, " ")
	switch payload := inst.Payload.(type) {
	case *hir.BinaryPayload:
		p.printOperandList(inst.Operands)
		fmt.Fprintf(p.w, " : %s", payload.Type)
	case *hir.BinaryImmPayload:
		p.printOperandList(inst.Operands)
		fmt.Fprintf(p.w, ", %d : %s", payload.Imm, payload.Type)
	case *hir.UnaryPayload:
		p.printOperandList(inst.Operands)
		fmt.Fprintf(p.w, " : %s -> %s", payload.FromType, payload.ToType)
	case *hir.UnaryImmPayload:
		p.printOperandList(inst.Operands)
		fmt.Fprintf(p.w, ", %d : %s", payload.Imm, payload.Type)
	case *hir.PrimPayload:
		p.printOperandList(inst.Operands)
	case *hir.LoadPayload:
		p.printOperandList(inst.Operands)
		fmt.Fprintf(p.w, " offset=%d : %s", payload.Offset, payload.Type)
	case *hir.StorePayload:
		p.printOperandList(inst.Operands)
		fmt.Fprintf(p.w, " offset=%d", payload.Offset)
	case *hir.CallPayload:
		if payload.Callee.Function != "" {
			fmt.Fprintf(p.w, "%s(", payload.Callee)
		} else {
			fmt.Fprint(p.w, "(")
		}
		p.printOperandListBare(inst.Operands)
		fmt.Fprint(p.w, ")")
	case *hir.BrPayload:
		fmt.Fprintf(p.w, "bb%d(", payload.Target.Index())
		p.printOperandListBare(inst.Operands)
		fmt.Fprint(p.w, ")")
	case *hir.CondBrPayload:
		fmt.Fprintf(p.w, "%%%d, bb%d(", inst.Operands[0].Index(), payload.TrueTarget.Index())
		p.printOperandListBare(payload.TrueArgs)
		fmt.Fprintf(p.w, "), bb%d(", payload.FalseTarget.Index())
		p.printOperandListBare(payload.FalseArgs)
		fmt.Fprint(p.w, ")")
	case *hir.SwitchPayload:
		fmt.Fprintf(p.w, "%%%d [", inst.Operands[0].Index())
		for i, c := range payload.Cases {
			if i > 0 {
				fmt.Fprint(p.w, ", ")
			}
			fmt.Fprintf(p.w, "%d: bb%d", c.Value, c.Target.Index())
		}
		fmt.Fprintf(p.w, ", default: bb%d]", payload.DefaultDest.Index())
	case *hir.ReturnPayload:
		p.printOperandListBare(inst.Operands)
	case *hir.GlobalValuePayload:
		fmt.Fprintf(p.w, "@%s", payload.Global)
	case *hir.LocalAddrPayload:
		fmt.Fprintf(p.w, "$local%d", payload.Local.Index())
	case *hir.LocalLoadPayload:
		fmt.Fprintf(p.w, "$local%d : %s", payload.Local.Index(), payload.Type)
	case *hir.LocalStorePayload:
		fmt.Fprintf(p.w, "$local%d, ", payload.Local.Index())
		p.printOperandListBare(inst.Operands)
	case *hir.InlineAsmPayload:
		fmt.Fprintf(p.w, "%q", payload.Text)
	default:
		p.printOperandList(inst.Operands)
	}
}

func (p *Printer) printOperandList(operands []hir.ValueID) {
	fmt.Fprint(p.w, "(")
	p.printOperandListBare(operands)
	fmt.Fprint(p.w, ")")
}

func (p *Printer) printOperandListBare(operands []hir.ValueID) {
	for i, v := range operands {
		if i > 0 {
			fmt.Fprint(p.w, ", ")
		}
		fmt.Fprintf(p.w, "%%%d", v.Index())
	}
}

// SortedGlobalNames returns a module's global names in lexical order,
// a convenience used by tests that want deterministic iteration
// independent of declaration order.
func SortedGlobalNames(m *hir.Module) []string {
	names := make([]string, 0, len(m.Globals))
	for _, g := range m.Globals {
		names = append(names, g.Name.Name)
	}
	sort.Strings(names)
	return names
}
