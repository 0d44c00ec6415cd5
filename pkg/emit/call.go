package emit

import (
	"github.com/feltvm/feltc/pkg/asm"
	"github.com/feltvm/feltc/pkg/hir"
)

// emitCall lowers both OpCallDirect and OpCallIndirect. Arguments are
// routed to the top of the stack in call order; an indirect call's
// callee value is itself routed last (it sits above the arguments, so
// the target VM's call.indirect can pop it first and leave the
// argument order the callee's ABI expects untouched).
func (e *emitter) emitCall(inst hir.Inst) {
	p := inst.Payload.(*hir.CallPayload)
	if inst.Opcode == hir.OpCallDirect {
		e.routeOperands(inst.Operands)
		e.out.Append(asm.Instr{Op: asm.MnCall, Callee: p.Callee.String(), Span: spanOf(inst)})
	} else {
		callee := inst.Operands[0]
		args := inst.Operands[1:]
		e.routeOperands(args)
		e.routeOperands([]hir.ValueID{callee})
		e.out.Append(asm.Instr{Op: asm.MnCallIn, Span: spanOf(inst)})
	}
	e.popOperands(len(inst.Operands))
	for _, r := range inst.Results {
		e.defResult(r)
	}
}
