package linker

import (
	"testing"

	"github.com/feltvm/feltc/pkg/hir"
	"github.com/feltvm/feltc/pkg/types"
	"github.com/stretchr/testify/require"
)

func publicSig() *types.Signature {
	return &types.Signature{
		Linkage: types.LinkagePublic,
		Params:  []types.Param{{Type: types.U32()}},
		Results: []types.Param{{Type: types.U32()}},
	}
}

func leafModule(modName, fnName string) *hir.Module {
	fn := hir.NewFunction(hir.FunctionIdent{Module: modName, Function: fnName}, publicSig())
	b := fn.CreateBlock()
	n := fn.AppendBlockParam(b, types.U32())
	fn.SetInsertPoint(b)
	fn.AppendInst(b, hir.InstSpec{Opcode: hir.OpReturn, Operands: []hir.ValueID{n}, Payload: &hir.ReturnPayload{}})
	m := hir.NewModule(modName)
	m.AddFunction(fn)
	return m
}

func TestLinkSingleModuleSucceeds(t *testing.T) {
	mod := leafModule("a", "f")
	prog, err := Link([]*hir.Module{mod}, Options{Entrypoint: "a::f"})
	require.NoError(t, err)
	require.Len(t, prog.Modules, 1)
	require.Equal(t, hir.FunctionIdent{Module: "a", Function: "f"}, prog.Entrypoint)
}

func TestLinkDuplicateModuleNameFails(t *testing.T) {
	a := leafModule("dup", "f")
	b := leafModule("dup", "g")
	_, err := Link([]*hir.Module{a, b}, Options{})
	require.Error(t, err)
	var le *LinkError
	require.ErrorAs(t, err, &le)
	require.Equal(t, "module-conflict", le.Kind)
}

func TestLinkUnknownEntrypointFails(t *testing.T) {
	mod := leafModule("a", "f")
	_, err := Link([]*hir.Module{mod}, Options{Entrypoint: "a::missing"})
	require.Error(t, err)
	var le *LinkError
	require.ErrorAs(t, err, &le)
	require.Equal(t, "entrypoint", le.Kind)
}

func TestLinkPrivateEntrypointRejected(t *testing.T) {
	fn := hir.NewFunction(hir.FunctionIdent{Module: "a", Function: "f"}, &types.Signature{Linkage: types.LinkagePrivate})
	b := fn.CreateBlock()
	fn.SetInsertPoint(b)
	fn.AppendInst(b, hir.InstSpec{Opcode: hir.OpReturn, Payload: &hir.ReturnPayload{}})
	m := hir.NewModule("a")
	m.AddFunction(fn)

	_, err := Link([]*hir.Module{m}, Options{Entrypoint: "a::f"})
	require.Error(t, err)
	var le *LinkError
	require.ErrorAs(t, err, &le)
	require.Equal(t, "entrypoint", le.Kind)
}

func TestLinkDetectsLocalRecursionCycle(t *testing.T) {
	sig := publicSig()
	fnA := hir.NewFunction(hir.FunctionIdent{Module: "m", Function: "a"}, sig)
	bA := fnA.CreateBlock()
	nA := fnA.AppendBlockParam(bA, types.U32())
	fnA.SetInsertPoint(bA)
	fnA.Imports = append(fnA.Imports, hir.FunctionIdent{Module: "m", Function: "b"})
	callA := fnA.AppendInst(bA, hir.InstSpec{
		Opcode:      hir.OpCallDirect,
		Operands:    []hir.ValueID{nA},
		ResultTypes: []types.Type{types.U32()},
		Payload:     &hir.CallPayload{Callee: hir.FunctionIdent{Module: "m", Function: "b"}, Sig: sig},
	})
	fnA.AppendInst(bA, hir.InstSpec{Opcode: hir.OpReturn, Operands: []hir.ValueID{fnA.InstData(callA).Results[0]}, Payload: &hir.ReturnPayload{}})

	fnB := hir.NewFunction(hir.FunctionIdent{Module: "m", Function: "b"}, sig)
	bB := fnB.CreateBlock()
	nB := fnB.AppendBlockParam(bB, types.U32())
	fnB.SetInsertPoint(bB)
	fnB.Imports = append(fnB.Imports, hir.FunctionIdent{Module: "m", Function: "a"})
	callB := fnB.AppendInst(bB, hir.InstSpec{
		Opcode:      hir.OpCallDirect,
		Operands:    []hir.ValueID{nB},
		ResultTypes: []types.Type{types.U32()},
		Payload:     &hir.CallPayload{Callee: hir.FunctionIdent{Module: "m", Function: "a"}, Sig: sig},
	})
	fnB.AppendInst(bB, hir.InstSpec{Opcode: hir.OpReturn, Operands: []hir.ValueID{fnB.InstData(callB).Results[0]}, Payload: &hir.ReturnPayload{}})

	m := hir.NewModule("m")
	m.AddFunction(fnA)
	m.AddFunction(fnB)

	_, err := Link([]*hir.Module{m}, Options{})
	require.Error(t, err)
	var le *LinkError
	require.ErrorAs(t, err, &le)
	require.Equal(t, "recursion", le.Kind)
}

func TestLinkRejectsSignatureMismatch(t *testing.T) {
	callee := hir.NewFunction(hir.FunctionIdent{Module: "m", Function: "callee"}, publicSig())
	cb := callee.CreateBlock()
	cn := callee.AppendBlockParam(cb, types.U32())
	callee.SetInsertPoint(cb)
	callee.AppendInst(cb, hir.InstSpec{Opcode: hir.OpReturn, Operands: []hir.ValueID{cn}, Payload: &hir.ReturnPayload{}})

	wrongSig := &types.Signature{
		Linkage: types.LinkagePublic,
		Params:  []types.Param{{Type: types.U32()}, {Type: types.U32()}},
		Results: []types.Param{{Type: types.U32()}},
	}
	caller := hir.NewFunction(hir.FunctionIdent{Module: "m", Function: "caller"}, publicSig())
	bc := caller.CreateBlock()
	nc := caller.AppendBlockParam(bc, types.U32())
	caller.SetInsertPoint(bc)
	caller.Imports = append(caller.Imports, hir.FunctionIdent{Module: "m", Function: "callee"})
	call := caller.AppendInst(bc, hir.InstSpec{
		Opcode:      hir.OpCallDirect,
		Operands:    []hir.ValueID{nc, nc},
		ResultTypes: []types.Type{types.U32()},
		Payload:     &hir.CallPayload{Callee: hir.FunctionIdent{Module: "m", Function: "callee"}, Sig: wrongSig},
	})
	caller.AppendInst(bc, hir.InstSpec{Opcode: hir.OpReturn, Operands: []hir.ValueID{caller.InstData(call).Results[0]}, Payload: &hir.ReturnPayload{}})

	m := hir.NewModule("m")
	m.AddFunction(callee)
	m.AddFunction(caller)

	_, err := Link([]*hir.Module{m}, Options{})
	require.Error(t, err)
	var le *LinkError
	require.ErrorAs(t, err, &le)
	require.Equal(t, "signature-mismatch", le.Kind)
}

func TestLinkUnresolvedSymbolRejectedUnlessAllowed(t *testing.T) {
	fn := hir.NewFunction(hir.FunctionIdent{Module: "m", Function: "f"}, publicSig())
	b := fn.CreateBlock()
	fn.SetInsertPoint(b)
	fn.Globals = append(fn.Globals, hir.GlobalIdent{Name: "undefined_sym"})
	addr := fn.AppendInst(b, hir.InstSpec{
		Opcode:      hir.OpGlobalValue,
		ResultTypes: []types.Type{types.Ptr{Pointee: types.U32()}},
		Payload:     &hir.GlobalValuePayload{Global: hir.GlobalIdent{Name: "undefined_sym"}},
	})
	fn.AppendInst(b, hir.InstSpec{Opcode: hir.OpReturn, Operands: []hir.ValueID{fn.InstData(addr).Results[0]}, Payload: &hir.ReturnPayload{}})
	m := hir.NewModule("m")
	m.AddFunction(fn)

	_, err := Link([]*hir.Module{m}, Options{})
	require.Error(t, err)
	var le *LinkError
	require.ErrorAs(t, err, &le)
	require.Equal(t, "unresolved-symbol", le.Kind)

	_, err = Link([]*hir.Module{m}, Options{AllowMissing: []string{"undefined_"}})
	require.NoError(t, err)
}

// functionSet collects a program's fully-qualified function names,
// independent of module/function list ordering.
func functionSet(prog *Program) map[string]bool {
	out := make(map[string]bool)
	for _, m := range prog.Modules {
		for _, fn := range m.Functions {
			out[fn.Name.String()] = true
		}
	}
	return out
}

// TestLinkIdempotence checks spec §8's link-idempotence property:
// linking {A} then {A, B} produces the same function set (up to
// internal ordering) as linking {A, B} directly.
func TestLinkIdempotence(t *testing.T) {
	a := leafModule("a", "f")
	b := leafModule("b", "g")

	progA, err := Link([]*hir.Module{a}, Options{})
	require.NoError(t, err)
	progAB1, err := Link([]*hir.Module{progA.Modules[0], b}, Options{})
	require.NoError(t, err)

	progAB2, err := Link([]*hir.Module{leafModule("a", "f"), leafModule("b", "g")}, Options{})
	require.NoError(t, err)

	require.Equal(t, functionSet(progAB2), functionSet(progAB1))
}

func TestLinkMergesIdenticalGlobals(t *testing.T) {
	a := leafModule("a", "f")
	a.AddGlobal(&hir.GlobalVariable{Name: hir.GlobalIdent{Module: "a", Name: "shared"}, Type: types.U32(), Init: []byte{1, 2, 3, 4}})
	b := leafModule("b", "g")
	b.AddGlobal(&hir.GlobalVariable{Name: hir.GlobalIdent{Module: "b", Name: "shared"}, Type: types.U32()})

	prog, err := Link([]*hir.Module{a, b}, Options{})
	require.NoError(t, err)
	require.Len(t, prog.Segments, 1)
}
