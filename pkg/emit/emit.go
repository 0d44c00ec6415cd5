// Package emit implements the operand emitter (spec §4.5, component
// C6): it lowers individual HIR operations to ASM, consulting the
// scheduler (C4) for per-block instruction order and the solver (C5)
// for operand routing at each instruction site.
package emit

import (
	"fmt"

	"github.com/feltvm/feltc/pkg/analysis"
	"github.com/feltvm/feltc/pkg/asm"
	"github.com/feltvm/feltc/pkg/diag"
	"github.com/feltvm/feltc/pkg/hir"
	"github.com/feltvm/feltc/pkg/schedule"
	"github.com/feltvm/feltc/pkg/solver"
	"go.uber.org/zap"
)

// Options gates behavior the spec leaves as an explicit open question
// (§9 "Open questions").
type Options struct {
	// AssertUnsignedInt32 defaults to false. The emitter does not read
	// it: no assert_unsigned_int32 check is emitted whatever its value.
	AssertUnsignedInt32 bool
	// Fuel overrides the solver's optimization-fuel budget; 0 uses
	// solver.DefaultFuel.
	Fuel int
	Log  *zap.SugaredLogger
}

func (o Options) logger() *zap.SugaredLogger {
	if o.Log == nil {
		return zap.NewNop().Sugar()
	}
	return o.Log
}

func (o Options) fuel() int {
	if o.Fuel <= 0 {
		return solver.DefaultFuel
	}
	return o.Fuel
}

// emitter carries per-function state threaded through every opcode
// lowering helper in this package.
type emitter struct {
	fn   *hir.Function
	cfg  *analysis.CFG
	opts Options
	h    *diag.Handler
	out  *asm.Function

	labels    map[int]asm.Label // block index -> label
	stack     *Stack
	remaining map[int]int // value index -> remaining use count
}

// EmitFunction lowers fn to straight-line ASM, following the scheduler's
// per-block emission order and the CFG's reverse-postorder for block
// placement (so fallthrough matches the common "next block is the
// syntactic successor" case the spec's control-flow lowering assumes).
func EmitFunction(fn *hir.Function, opts Options, h *diag.Handler) *asm.Function {
	cfg := analysis.BuildCFG(fn)
	e := &emitter{
		fn:     fn,
		cfg:    cfg,
		opts:   opts,
		h:      h,
		out:    asm.NewFunction(fn.Name.String()),
		labels: make(map[int]asm.Label),
	}
	e.countUses()
	order := blockEmissionOrder(cfg)
	for _, b := range order {
		e.labels[b.Index()] = blockLabel(fn.Name, b)
	}
	for i, b := range order {
		e.emitBlock(b, i == 0)
	}
	return e.out
}

func blockLabel(fn hir.FunctionIdent, b hir.BlockID) asm.Label {
	return asm.Label(fmt.Sprintf("%s.bb%d", fn.String(), b.Index()))
}

// blockEmissionOrder returns a CFG reverse-postorder with the entry
// block first. Blocks are not rearranged to place a fallthrough
// successor right after its predecessor.
func blockEmissionOrder(cfg *analysis.CFG) []hir.BlockID {
	post := cfg.Postorder()
	order := make([]hir.BlockID, len(post))
	for i, b := range post {
		order[len(post)-1-i] = b
	}
	return order
}

func (e *emitter) emitBlock(b hir.BlockID, isEntry bool) {
	if !isEntry {
		e.out.AppendLabel(e.labels[b.Index()])
	}
	// Block parameters and any already-live values are on the stack at
	// entry (spec §4.3 dependency graph "Stack node"); the abstract
	// stack starts from the block's own parameter list, most-recently
	// appended parameter on top, mirroring how a predecessor's branch
	// pushed its argument list.
	e.stack = newStack(e.fn, reverseValues(e.fn.BlockParams(b)))

	dep := schedule.BuildDependencyGraph(e.fn, b)
	tree, err := schedule.NewOrderedTreeGraph(dep)
	if err != nil {
		e.h.Emit(diag.Diagnostic{Severity: diag.Bug, Message: err.Error()})
		return
	}
	seen := make(map[int]bool)
	for _, n := range tree.EmissionOrder() {
		node := dep.Nodes()[n]
		if node.Kind != schedule.NodeInstruction {
			continue
		}
		if seen[node.Inst.Index()] {
			continue
		}
		seen[node.Inst.Index()] = true
		e.emitInst(node.Inst)
	}
}

func reverseValues(vs []hir.ValueID) []hir.ValueID {
	out := make([]hir.ValueID, len(vs))
	for i, v := range vs {
		out[len(vs)-1-i] = v
	}
	return out
}

func (e *emitter) emitInst(iid hir.InstID) {
	inst := e.fn.InstData(iid)
	switch inst.Opcode {
	case hir.OpBinary:
		e.emitBinary(inst)
	case hir.OpBinaryImm:
		e.emitBinaryImm(inst)
	case hir.OpUnary:
		e.emitUnary(inst)
	case hir.OpUnaryImm:
		e.emitUnaryImm(inst)
	case hir.OpLoad:
		e.emitLoad(inst)
	case hir.OpStore:
		e.emitStore(inst)
	case hir.OpPrim:
		e.emitPrim(inst)
	case hir.OpCallDirect, hir.OpCallIndirect:
		e.emitCall(inst)
	case hir.OpBr:
		e.emitBr(inst)
	case hir.OpCondBr:
		e.emitCondBr(inst)
	case hir.OpSwitch:
		e.emitSwitch(inst)
	case hir.OpReturn:
		e.emitReturn(inst)
	case hir.OpUnreachable:
		e.out.Append(asm.Instr{Op: asm.MnUnreachable})
	case hir.OpInlineAsm:
		e.emitInlineAsm(inst)
	case hir.OpGlobalValue:
		e.emitGlobalValue(inst)
	case hir.OpLocalAddr:
		e.emitLocalAddr(inst)
	case hir.OpLocalLoad:
		e.emitLocalLoad(inst)
	case hir.OpLocalStore:
		e.emitLocalStore(inst)
	default:
		e.h.Emit(diag.Diagnostic{Severity: diag.Bug, Message: fmt.Sprintf("emit: unhandled opcode %s", inst.Opcode)})
	}
}

// routeOperands asks the solver to bring inst's operands to the top of
// the stack, the last operand on top and the earlier ones beneath it in
// order, applies the resulting actions, and counts one use off every
// operand; liveAfter decides whether an operand is copied (still needed
// later) or moved. It is
// the single call site every opcode-lowering helper funnels through,
// per spec §4.5 "cooperates with C5 to route operands".
func (e *emitter) routeOperands(operands []hir.ValueID) {
	if len(operands) == 0 {
		return
	}
	expected := make([]solver.Expected[hir.ValueID], len(operands))
	for i, v := range operands {
		c := solver.Move
		if e.liveAfter(v) {
			c = solver.Copy
		}
		expected[len(operands)-1-i] = solver.Expected[hir.ValueID]{ID: v, Constraint: c}
	}
	actions, err := solver.Solve(expected, e.stack.Values(), e.opts.fuel())
	switch err {
	case solver.ErrAlreadySolved:
		// fallthrough to use-accounting below
	case nil:
		e.opts.logger().Debugw("solved operand routing", "operands", len(operands), "actions", len(actions))
		for _, a := range actions {
			e.out.Code = append(e.out.Code, e.stack.ApplyAction(a)...)
		}
	default:
		e.h.Emit(diag.Diagnostic{Severity: diag.Bug, Message: fmt.Sprintf("solver: %v", err)})
		return
	}
	for _, v := range operands {
		e.markUsed(v)
	}
}

// defResult records a freshly computed value as the new top of the
// abstract stack.
func (e *emitter) defResult(id hir.ValueID) {
	e.stack.Push(id)
}

// popOperands removes the top n logical entries that routeOperands
// just brought up, for opcodes whose own instruction implicitly
// consumes its operands (e.g. u32.add pops two slots and pushes one).
func (e *emitter) popOperands(n int) {
	e.stack.PopTop(n)
}

// countUses precomputes, for every value in fn, how many operand
// positions (across every instruction and terminator argument list)
// reference it — the basis for the Move-vs-Copy constraint routeOperands
// derives at each use site (spec §4.4 "constraint ... Copy = value is
// live past this use").
func (e *emitter) countUses() {
	e.remaining = make(map[int]int)
	for _, b := range e.fn.Blocks() {
		for _, iid := range e.fn.BlockInsts(b) {
			inst := e.fn.InstData(iid)
			for _, v := range operandsOf(inst) {
				e.remaining[v.Index()]++
			}
		}
	}
}

func (e *emitter) liveAfter(v hir.ValueID) bool {
	return e.remaining[v.Index()] > 1
}

func (e *emitter) markUsed(v hir.ValueID) {
	if e.remaining[v.Index()] > 0 {
		e.remaining[v.Index()]--
	}
}

// operandsOf returns every value inst reads, including terminator
// branch-argument lists that don't appear in Operands.
func operandsOf(inst hir.Inst) []hir.ValueID {
	out := append([]hir.ValueID(nil), inst.Operands...)
	switch p := inst.Payload.(type) {
	case *hir.CondBrPayload:
		out = append(out, p.TrueArgs...)
		out = append(out, p.FalseArgs...)
	case *hir.SwitchPayload:
		out = append(out, p.DefaultArgs...)
		for _, c := range p.Cases {
			out = append(out, c.Args...)
		}
	}
	return out
}
