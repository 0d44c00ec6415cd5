package asm

import (
	"strings"
	"testing"
)

func TestPrintFunction(t *testing.T) {
	fn := NewFunction("mod::fib")
	fn.AppendLabel("entry")
	fn.Append(Push(1))
	fn.Append(Instr{Op: MnU32Add, Overflow: OvChecked})
	fn.Append(Ret())

	out := Sprint(&Program{Functions: []*Function{fn}})
	if !strings.Contains(out, "fn mod::fib {") {
		t.Errorf("missing function header: %s", out)
	}
	if !strings.Contains(out, "entry:") {
		t.Errorf("missing label: %s", out)
	}
	if !strings.Contains(out, "push.1") {
		t.Errorf("missing push: %s", out)
	}
	if !strings.Contains(out, "u32.add.checked") {
		t.Errorf("missing checked add: %s", out)
	}
	if !strings.Contains(out, "ret") {
		t.Errorf("missing ret: %s", out)
	}
}

func TestPrintProgramSegmentsAndEntry(t *testing.T) {
	prog := &Program{
		Segments: []DataSegment{
			{Name: "rodata0", Offset: 0x10000, Bytes: []byte("hi"), ReadOnly: true},
		},
		Functions: []*Function{NewFunction("mod::main")},
		Entry:     "mod::main",
	}
	out := Sprint(prog)
	if !strings.Contains(out, "segment rodata0 @0x10000 x 2 = rodata") {
		t.Errorf("missing segment directive: %s", out)
	}
	if !strings.Contains(out, ".entrypoint mod::main") {
		t.Errorf("missing entrypoint directive: %s", out)
	}
}

func TestPrintInstrSourceSpanAndComment(t *testing.T) {
	fn := NewFunction("f")
	fn.Append(Instr{Op: MnIncr, Span: SourceSpan{File: "a.mir", Line: 3, Column: 5}, Comment: "add_imm(_,1) fast path"})
	out := Sprint(&Program{Functions: []*Function{fn}})
	if !strings.Contains(out, "a.mir:3:5") {
		t.Errorf("missing span: %s", out)
	}
	if !strings.Contains(out, "add_imm(_,1) fast path") {
		t.Errorf("missing comment: %s", out)
	}
}
