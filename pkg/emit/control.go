package emit

import (
	"github.com/feltvm/feltc/pkg/asm"
	"github.com/feltvm/feltc/pkg/hir"
)

// emitBr lowers an unconditional branch: route the target block's
// argument values to the top of the stack in order, then jump.
func (e *emitter) emitBr(inst hir.Inst) {
	p := inst.Payload.(*hir.BrPayload)
	e.routeOperands(inst.Operands)
	e.out.Append(asm.Instr{Op: asm.MnJmp, Target: e.labels[p.Target.Index()], Span: spanOf(inst)})
}

// emitCondBr lowers a two-way conditional branch. jmp.ifz pops its own
// condition at runtime, so the false side's argument list is routed
// directly beneath the condition before the jump: when the jump is
// taken, FalseArgs is exactly what's left on top. The fallthrough
// ("we didn't take the branch") path still has FalseArgs sitting there
// unused, since only one side of a conditional actually runs; it's
// dropped and TrueArgs is routed fresh before the unconditional jump to
// TrueTarget that follows.
func (e *emitter) emitCondBr(inst hir.Inst) {
	p := inst.Payload.(*hir.CondBrPayload)
	cond := inst.Operands[0]

	e.routeOperands(append(append([]hir.ValueID(nil), p.FalseArgs...), cond))
	e.popOperands(1)
	e.out.Append(asm.Instr{Op: asm.MnJmpIfZ, Target: e.labels[p.FalseTarget.Index()], Span: spanOf(inst)})

	falseWidth := 0
	for _, v := range p.FalseArgs {
		falseWidth += e.stack.widthOf(v)
	}
	if falseWidth > 0 {
		e.out.Append(asm.Instr{Op: asm.MnDrop, N: falseWidth, Span: spanOf(inst), Comment: "discard false-branch args on the taken-true path"})
	}
	e.popOperands(len(p.FalseArgs))
	e.routeOperands(p.TrueArgs)
	e.out.Append(asm.Instr{Op: asm.MnJmp, Target: e.labels[p.TrueTarget.Index()], Span: spanOf(inst)})
}

// emitSwitch lowers a multi-way switch as a cascade of equality tests
// against the scrutinee, falling through to the default. The target
// ISA has no native jump table; spec §4.5 leaves multi-way dispatch to
// the emitter's discretion, so this follows the same linear-cascade
// strategy the teacher's mach-level lowering uses for small switches.
func (e *emitter) emitSwitch(inst hir.Inst) {
	p := inst.Payload.(*hir.SwitchPayload)
	scrutinee := inst.Operands[0]
	for _, c := range p.Cases {
		e.routeOperands([]hir.ValueID{scrutinee})
		e.out.Append(asm.Instr{Op: asm.MnPush, Imm: c.Value, HasImm: true, Span: spanOf(inst)})
		e.out.Append(asm.Instr{Op: asm.MnEq, Span: spanOf(inst)})
		e.out.Append(asm.Instr{Op: asm.MnJmpIf, Target: e.labels[c.Target.Index()], Span: spanOf(inst), Comment: "case " + itoa(c.Value)})
	}
	e.popOperands(1)
	e.routeOperands(p.DefaultArgs)
	e.out.Append(asm.Instr{Op: asm.MnJmp, Target: e.labels[p.DefaultDest.Index()], Span: spanOf(inst)})
}

func itoa(v int64) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// emitReturn lowers OpReturn: route every returned value to the top of
// the stack (the last one on top), then ret. No frame teardown is
// emitted, here or at the call site in call.go, and values left on the
// stack beneath the results are not dropped.
func (e *emitter) emitReturn(inst hir.Inst) {
	e.routeOperands(inst.Operands)
	e.out.Append(asm.Instr{Op: asm.MnRet, Span: spanOf(inst)})
}
