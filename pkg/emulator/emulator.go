// Package emulator implements a small interpreter for the ASM wire
// format (spec §4.7, component C8), used as a test oracle: it lets the
// test suite assert that emitted code actually computes what the HIR
// said it should, without needing the real target VM or its final
// assembler.
//
// Grounded on original_source/codegen/masm/src/emulator/functions.rs
// (the Miden compiler's own emulator) for the activation-record and
// control-stack shape; adapted rather than transliterated, because
// this repo's ASM (pkg/asm) is a flat label/jump stream (spec §6
// leaves the wire format's exact control-flow shape to the emitter),
// not the original's nested-block IR. The four ControlFrame kinds are
// kept for API fidelity with the original and for forward
// compatibility with a future structured-control emitter, but only
// Block frames are ever pushed by this package today — see DESIGN.md.
package emulator

import (
	"fmt"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/feltvm/feltc/pkg/asm"
)

// Prime is the modulus of the field the VM's native word ("felt") is an
// element of: the Goldilocks prime 2^64 - 2^32 + 1, matching the
// target's "prime just below 2^64" (spec §3 "Type system").
const Prime uint64 = 0xFFFFFFFF00000001

func reduce(v uint64) uint64 {
	if v >= Prime {
		return v - Prime
	}
	return v
}

// FrameKind discriminates a ControlStack entry (spec §4.7).
type FrameKind uint8

const (
	FrameBlock FrameKind = iota
	FrameWhile
	FrameRepeat
	FrameLoopback
)

func (k FrameKind) String() string {
	switch k {
	case FrameWhile:
		return "while"
	case FrameRepeat:
		return "repeat"
	case FrameLoopback:
		return "loopback"
	default:
		return "block"
	}
}

// ControlFrame is one entry of an activation record's control stack
// (spec §4.7): besides the resumption instruction pointer, a Repeat
// frame additionally tracks its iteration bound and count.
type ControlFrame struct {
	Kind       FrameKind
	IP         int
	Iterations int // Repeat only: completed so far
	N          int // Repeat only: target iteration count
}

// activation is one call stack frame: the function currently
// executing, its frame pointer (base of its locals/shadow-stack
// region), and its own control stack (spec §4.7 "a call stack of
// activation records (each with frame pointer, current function
// reference, and a control stack)").
type activation struct {
	fn      *asm.Function
	fp      int
	control []ControlFrame
	labels  map[asm.Label]int
}

func (a *activation) top() *ControlFrame { return &a.control[len(a.control)-1] }

// EmulationError reports a trap: an assertion failure, stack underflow,
// or invalid address (spec §7 error kind 5, §4.7).
type EmulationError struct {
	Func string
	IP   int
	Msg  string
}

func (e *EmulationError) Error() string {
	return fmt.Sprintf("%s:%d: %s", e.Func, e.IP, e.Msg)
}

// Options configures an Emulator's resource limits; all are optional
// test-harness conveniences, not part of the specification proper
// (spec §4.7 "optional breakpoints and cycle-budgets are supported for
// tests but are not part of the specification proper").
type Options struct {
	MemoryWords  int // number of 32-bit words of memory; 0 uses DefaultMemoryWords
	CycleBudget  int // 0 means unbounded
	Breakpoints  map[string]int // function name -> instruction index
	Log          *zap.SugaredLogger
}

// DefaultMemoryWords is large enough to hold the spec's 64 KiB shadow
// stack plus a modest data segment for test fixtures.
const DefaultMemoryWords = 1 << 16 / 4 * 8

func (o Options) logger() *zap.SugaredLogger {
	if o.Log == nil {
		return zap.NewNop().Sugar()
	}
	return o.Log
}

// Emulator interprets a linked asm.Program. Memory is a flat array of
// 32-bit elements, but mem.loadw/mem.storew always move a whole
// 4-element window at a time: the address on top of stack is a flat
// element index, and Memory[addr+N : addr+N+4] is the window's
// backing slice. Sub-word and unaligned access are built on top of
// this primitive by pkg/emit/memory.go's realignment sequences, not by
// the emulator itself — see DESIGN.md.
type Emulator struct {
	prog *asm.Program
	fns  map[string]*asm.Function

	Stack  []uint64
	Memory []uint32

	frames []activation
	opts   Options
	cycles int
	halted bool
}

// New creates an Emulator over prog.
func New(prog *asm.Program, opts Options) *Emulator {
	fns := make(map[string]*asm.Function, len(prog.Functions))
	for _, fn := range prog.Functions {
		fns[fn.Name] = fn
	}
	words := opts.MemoryWords
	if words == 0 {
		words = DefaultMemoryWords
	}
	return &Emulator{
		prog:   prog,
		fns:    fns,
		Memory: make([]uint32, words),
		opts:   opts,
	}
}

func labelIndex(fn *asm.Function) map[asm.Label]int {
	m := make(map[asm.Label]int)
	for i, instr := range fn.Code {
		if instr.Op == asm.MnLabel {
			m[instr.Target] = i
		}
	}
	return m
}

func (e *Emulator) push(v uint64)  { e.Stack = append(e.Stack, v) }
func (e *Emulator) cur() *activation {
	return &e.frames[len(e.frames)-1]
}

func (e *Emulator) pop(fn string, ip int) (uint64, error) {
	if len(e.Stack) == 0 {
		return 0, &EmulationError{Func: fn, IP: ip, Msg: "stack underflow"}
	}
	v := e.Stack[len(e.Stack)-1]
	e.Stack = e.Stack[:len(e.Stack)-1]
	return v, nil
}

func (e *Emulator) peekAt(n int) (uint64, error) {
	if n < 0 || n >= len(e.Stack) {
		return 0, errors.Errorf("stack index %d out of range (depth %d)", n, len(e.Stack))
	}
	return e.Stack[len(e.Stack)-1-n], nil
}

// Invoke calls function name with args pushed (args[0] deepest) and
// runs it to completion via Resume, returning the values left on the
// stack above where it started.
func (e *Emulator) Invoke(name string, args []uint64) ([]uint64, error) {
	fn, ok := e.fns[name]
	if !ok {
		return nil, errors.Errorf("emulator: undefined function %q", name)
	}
	base := len(e.Stack)
	for _, a := range args {
		e.push(a)
	}
	e.frames = append(e.frames, activation{
		fn:     fn,
		fp:     base,
		labels: labelIndex(fn),
		control: []ControlFrame{{Kind: FrameBlock, IP: 0}},
	})
	e.halted = false
	if err := e.Resume(); err != nil {
		return nil, err
	}
	return append([]uint64(nil), e.Stack[base:]...), nil
}

// Resume runs Step until the call stack empties (the entrypoint
// function returns) or a trap/cycle-budget/breakpoint halts execution.
func (e *Emulator) Resume() error {
	for len(e.frames) > 0 {
		if e.opts.CycleBudget > 0 && e.cycles >= e.opts.CycleBudget {
			return errors.New("emulator: cycle budget exhausted")
		}
		if e.atBreakpoint() {
			return nil
		}
		done, err := e.Step()
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
	return nil
}

func (e *Emulator) atBreakpoint() bool {
	if len(e.opts.Breakpoints) == 0 || len(e.frames) == 0 {
		return false
	}
	a := e.cur()
	bp, ok := e.opts.Breakpoints[a.fn.Name]
	return ok && a.top().IP == bp
}

// StepOver executes exactly one instruction without descending into a
// call it makes (a call is still fully resolved before returning, the
// same way a debugger's "step over" treats a call as atomic).
func (e *Emulator) StepOver() (bool, error) {
	depth := len(e.frames)
	for {
		done, err := e.Step()
		if err != nil || done {
			return done, err
		}
		if len(e.frames) <= depth {
			return false, nil
		}
	}
}

// Step executes a single instruction of the currently active function.
// It returns true once the outermost invocation has returned.
func (e *Emulator) Step() (bool, error) {
	if len(e.frames) == 0 {
		return true, nil
	}
	e.cycles++
	a := e.cur()
	frame := a.top()
	if frame.IP >= len(a.fn.Code) {
		return e.ret()
	}
	instr := a.fn.Code[frame.IP]
	advance := true
	var err error
	if asm.IsWideLibMnemonic(instr.Op) {
		if err = e.execWideLib(instr); err != nil {
			return false, e.trap(err.Error())
		}
		frame.IP++
		return false, nil
	}
	switch instr.Op {
	case asm.MnLabel:
		// no-op marker
	case asm.MnPush:
		e.push(uint64(instr.Imm))
	case asm.MnDrop:
		n := instr.N
		if n == 0 {
			n = 1
		}
		for i := 0; i < n; i++ {
			if _, err = e.pop(a.fn.Name, frame.IP); err != nil {
				return false, err
			}
		}
	case asm.MnCopy:
		var v uint64
		if v, err = e.peekAt(instr.N); err != nil {
			return false, e.trap(err.Error())
		}
		e.push(v)
	case asm.MnMoveUp:
		if err = e.moveUp(instr.N); err != nil {
			return false, e.trap(err.Error())
		}
	case asm.MnMoveDn:
		if err = e.moveDown(instr.N); err != nil {
			return false, e.trap(err.Error())
		}
	case asm.MnSwap:
		if err = e.swap(instr.N); err != nil {
			return false, e.trap(err.Error())
		}
	case asm.MnAdd, asm.MnSub, asm.MnMul, asm.MnDiv, asm.MnAnd, asm.MnOr, asm.MnXor,
		asm.MnEq, asm.MnLt, asm.MnLte, asm.MnGt, asm.MnGte, asm.MnIncr:
		err = e.execFelt(instr)
	case asm.MnNeg:
		var v uint64
		if v, err = e.pop(a.fn.Name, frame.IP); err == nil {
			e.push(reduce(Prime - v%Prime))
		}
	case asm.MnInv:
		err = e.execFeltInv()
	case asm.MnNot:
		var v uint64
		if v, err = e.pop(a.fn.Name, frame.IP); err == nil {
			if v == 0 {
				e.push(1)
			} else {
				e.push(0)
			}
		}
	case asm.MnEqz:
		var v uint64
		if v, err = e.pop(a.fn.Name, frame.IP); err == nil {
			if v == 0 {
				e.push(1)
			} else {
				e.push(0)
			}
		}
	case asm.MnU32Add, asm.MnU32Sub, asm.MnU32Mul, asm.MnU32Div, asm.MnU32Mod,
		asm.MnU32DivMod, asm.MnU32And, asm.MnU32Or, asm.MnU32Xor, asm.MnU32Shl,
		asm.MnU32Shr, asm.MnU32Rotl, asm.MnU32Rotr, asm.MnU32Min, asm.MnU32Max:
		err = e.execU32(instr)
	case asm.MnU32Assert:
		err = e.execU32Assert(instr)
	case asm.MnI32LibAdd, asm.MnI32LibSub, asm.MnI32LibMul, asm.MnI32LibDiv,
		asm.MnI32LibMod, asm.MnI32LibShr, asm.MnI32LibCmp, asm.MnI32LibMin, asm.MnI32LibMax:
		err = e.execI32Lib(instr)
	case asm.MnFAdd, asm.MnFSub, asm.MnFMul, asm.MnFDiv, asm.MnFEq, asm.MnFLt, asm.MnFLte, asm.MnFGt, asm.MnFGte:
		err = e.execF64Binary(instr)
	case asm.MnFNeg, asm.MnFAbs:
		err = e.execF64Unary(instr)
	case asm.MnShl:
		var v uint64
		if v, err = e.pop(a.fn.Name, frame.IP); err == nil {
			e.push((v << uint(instr.N)) & u32Mask)
		}
	case asm.MnShr:
		var v uint64
		if v, err = e.pop(a.fn.Name, frame.IP); err == nil {
			e.push((v & u32Mask) >> uint(instr.N))
		}
	case asm.MnMemLoadWord:
		err = e.execMemLoad(instr)
	case asm.MnMemStoreWord:
		err = e.execMemStore(instr)
	case asm.MnJmp:
		frame.IP = a.labels[instr.Target]
		advance = false
	case asm.MnJmpIf:
		var v uint64
		if v, err = e.pop(a.fn.Name, frame.IP); err == nil && v != 0 {
			frame.IP = a.labels[instr.Target]
			advance = false
		}
	case asm.MnJmpIfZ:
		var v uint64
		if v, err = e.pop(a.fn.Name, frame.IP); err == nil && v == 0 {
			frame.IP = a.labels[instr.Target]
			advance = false
		}
	case asm.MnCall:
		frame.IP++
		return false, e.call(instr.Callee)
	case asm.MnCallIn:
		var v uint64
		if v, err = e.pop(a.fn.Name, frame.IP); err == nil {
			frame.IP++
			return false, e.callIndirectByOrdinal(v)
		}
	case asm.MnRet:
		return e.ret()
	case asm.MnUnreachable:
		return false, e.trap("reached unreachable instruction")
	case asm.MnRaw:
		// verbatim inline-asm text is opaque to the emulator; treated as a no-op.
	default:
		return false, e.trap(fmt.Sprintf("unhandled mnemonic %q", instr.Op))
	}
	if err != nil {
		return false, e.trap(err.Error())
	}
	if advance {
		frame.IP++
	}
	e.opts.logger().Debugw("emulator step", "fn", a.fn.Name, "ip", frame.IP, "op", instr.Op)
	return false, nil
}

func (e *Emulator) trap(msg string) error {
	fn := "<none>"
	ip := -1
	if len(e.frames) > 0 {
		a := e.cur()
		fn = a.fn.Name
		ip = a.top().IP
	}
	return &EmulationError{Func: fn, IP: ip, Msg: msg}
}

// call pushes a new Block-frame activation for callee, the direct-call
// counterpart of Invoke (used internally, as opposed to the external
// entrypoint).
func (e *Emulator) call(callee string) error {
	fn, ok := e.fns[callee]
	if !ok {
		return e.trap(fmt.Sprintf("call to undefined function %q", callee))
	}
	e.frames = append(e.frames, activation{
		fn:      fn,
		fp:      len(e.Stack),
		labels:  labelIndex(fn),
		control: []ControlFrame{{Kind: FrameBlock, IP: 0}},
	})
	return nil
}

// callIndirectByOrdinal resolves an indirect-call target: function
// pointers in this emulator are represented as the ordinal position of
// the callee in the program's function list (the linker assigns these,
// spec §4.6 step 7 "emit").
func (e *Emulator) callIndirectByOrdinal(ordinal uint64) error {
	if int(ordinal) >= len(e.prog.Functions) {
		return e.trap(fmt.Sprintf("indirect call: function ordinal %d out of range", ordinal))
	}
	return e.call(e.prog.Functions[ordinal].Name)
}

// ret pops the current activation; if no activations remain the
// outermost invocation has returned.
func (e *Emulator) ret() (bool, error) {
	e.frames = e.frames[:len(e.frames)-1]
	return len(e.frames) == 0, nil
}

func (e *Emulator) swap(n int) error {
	if n < 1 || n > 15 {
		return errors.Errorf("swap depth %d out of range [1,15]", n)
	}
	if n >= len(e.Stack) {
		return errors.New("stack underflow in swap")
	}
	i := len(e.Stack) - 1
	j := i - n
	e.Stack[i], e.Stack[j] = e.Stack[j], e.Stack[i]
	return nil
}

func (e *Emulator) moveUp(n int) error {
	if n < 0 || n >= len(e.Stack) {
		return errors.New("stack underflow in movup")
	}
	idx := len(e.Stack) - 1 - n
	v := e.Stack[idx]
	e.Stack = append(e.Stack[:idx], e.Stack[idx+1:]...)
	e.push(v)
	return nil
}

func (e *Emulator) moveDown(n int) error {
	if len(e.Stack) == 0 {
		return errors.New("stack underflow in movdn")
	}
	v, err := e.pop("", 0)
	if err != nil {
		return err
	}
	if n < 0 || n > len(e.Stack) {
		return errors.New("movdn depth out of range")
	}
	idx := len(e.Stack) - n
	e.Stack = append(e.Stack[:idx], append([]uint64{v}, e.Stack[idx:]...)...)
	return nil
}
