package asm

import "testing"

func TestInstrStringStackOps(t *testing.T) {
	tests := []struct {
		name string
		inst Instr
		want string
	}{
		{"push", Push(42), "push.42"},
		{"moveup", MoveUp(3), "movup.3"},
		{"movedown", MoveDown(2), "movdn.2"},
		{"swap", Swap(5), "swap.5"},
		{"copy", Copy(1), "dup.1"},
		{"drop", Drop(), "drop"},
		{"dropn", DropN(4), "drop.4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.inst.String(); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestInstrStringArithmeticOverflowSuffix(t *testing.T) {
	tests := []struct {
		name string
		inst Instr
		want string
	}{
		{"unchecked add", Instr{Op: MnU32Add}, "u32.add"},
		{"checked add", Instr{Op: MnU32Add, Overflow: OvChecked}, "u32.add.checked"},
		{"wrapping add", Instr{Op: MnU32Add, Overflow: OvWrapping}, "u32.add.wrapping"},
		{"overflowing add", Instr{Op: MnU32Add, Overflow: OvOverflowing}, "u32.add.overflowing"},
		{"add imm", Instr{Op: MnU32Add, Imm: 7, HasImm: true}, "u32.add.7"},
		{"checked add imm", Instr{Op: MnU32Add, Overflow: OvChecked, Imm: 7, HasImm: true}, "u32.add.checked.7"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.inst.String(); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestInstrStringControlFlow(t *testing.T) {
	if got := LabelDef("L0").String(); got != "L0:" {
		t.Errorf("LabelDef: got %q", got)
	}
	if got := Jmp("L0").String(); got != "jmp L0" {
		t.Errorf("Jmp: got %q", got)
	}
	if got := Call("mod::f").String(); got != "call mod::f" {
		t.Errorf("Call: got %q", got)
	}
	if got := Ret().String(); got != "ret" {
		t.Errorf("Ret: got %q", got)
	}
}

func TestFunctionAppend(t *testing.T) {
	fn := NewFunction("f")
	fn.Append(Push(1))
	fn.AppendLabel("L0")
	fn.Append(Ret())
	if len(fn.Code) != 3 {
		t.Fatalf("expected 3 instructions, got %d", len(fn.Code))
	}
	if fn.Code[1].Op != MnLabel || fn.Code[1].Target != "L0" {
		t.Errorf("expected label def at index 1, got %+v", fn.Code[1])
	}
}
