package asm

import (
	"fmt"
	"io"
)

// Printer renders a Program to the target VM's textual wire format
// (spec §6 "ASM wire format"). The grammar itself is fixed by the
// target; this printer emits one directive/instruction per line with
// tab indentation, mirroring the teacher's GNU-as style printer
// adapted from register operands to stack-depth/immediate operands.
type Printer struct {
	w io.Writer
}

func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// PrintProgram outputs an entire linked program: data segments first,
// then one function per declared symbol.
func (p *Printer) PrintProgram(prog *Program) {
	for _, seg := range prog.Segments {
		p.printSegment(seg)
	}
	if len(prog.Segments) > 0 {
		fmt.Fprintln(p.w)
	}
	for _, fn := range prog.Functions {
		p.printFunction(fn)
	}
	if prog.Entry != "" {
		fmt.Fprintf(p.w, "\n.entrypoint %s\n", prog.Entry)
	}
}

func (p *Printer) printSegment(seg DataSegment) {
	kind := "data"
	if seg.ReadOnly {
		kind = "rodata"
	}
	fmt.Fprintf(p.w, "segment %s @0x%x x %d = %s %q\n", seg.Name, seg.Offset, len(seg.Bytes), kind, seg.Bytes)
}

func (p *Printer) printFunction(fn *Function) {
	fmt.Fprintf(p.w, "fn %s {\n", fn.Name)
	for _, inst := range fn.Code {
		p.printInstr(inst)
	}
	fmt.Fprintf(p.w, "}\n")
}

func (p *Printer) printInstr(i Instr) {
	if i.Op == MnLabel {
		fmt.Fprintf(p.w, "%s\n", i.String())
		return
	}
	line := "\t" + i.String()
	if i.Span.File != "" {
		line += fmt.Sprintf(" ; %s:%d:%d", i.Span.File, i.Span.Line, i.Span.Column)
	}
	if i.Comment != "" && i.Op != MnRaw {
		line += " ; " + i.Comment
	}
	fmt.Fprintln(p.w, line)
}

// Sprint renders a single Program to a string, convenience for tests
// and the emulator's test-oracle ingestion path.
func Sprint(prog *Program) string {
	var sb sprintBuf
	NewPrinter(&sb).PrintProgram(prog)
	return sb.String()
}

type sprintBuf struct{ data []byte }

func (b *sprintBuf) Write(p []byte) (int, error) {
	b.data = append(b.data, p...)
	return len(p), nil
}

func (b *sprintBuf) String() string { return string(b.data) }
