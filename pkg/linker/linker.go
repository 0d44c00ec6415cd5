// Package linker implements the multi-module linker (spec §4.6,
// component C7): it ingests a set of MIR modules plus, optionally, a
// library manifest describing pre-assembled routines the program is
// allowed to call without a local definition, and produces a single
// Program with a resolved global table, a validated call graph, and a
// laid-out data segment.
package linker

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/feltvm/feltc/pkg/asm"
	"github.com/feltvm/feltc/pkg/diag"
	"github.com/feltvm/feltc/pkg/emit"
	"github.com/feltvm/feltc/pkg/hir"
	"github.com/feltvm/feltc/pkg/types"
)

// Options configures a Link call.
type Options struct {
	// AllowMissing lists symbol-name prefixes the linker accepts as
	// unresolved (spec §6 "library search", default std::/intrinsics::
	// applied by Link regardless of this list).
	AllowMissing []string
	// Libraries are pre-assembled routine manifests consulted for both
	// AllowMissing prefixes and exported-symbol definitions.
	Libraries []*Manifest
	// Entrypoint, if non-empty, names the program's externally invoked
	// function as "module::function"; Link validates it per §4.6 step 6.
	Entrypoint string
	// GCUnusedFunctions opts into removing functions with no incoming
	// call edge after entrypoint validation (spec §9 "issue #26": left
	// optional by the source, defaults to false here to match it).
	GCUnusedFunctions bool
	Log               *zap.SugaredLogger
}

func (o Options) logger() *zap.SugaredLogger {
	if o.Log == nil {
		return zap.NewNop().Sugar()
	}
	return o.Log
}

// defaultAllowMissing covers the standard library and compiler
// intrinsics the spec names as the default library-search prefixes
// (spec §6 "Missing symbols whose fully-qualified names start with an
// allowed prefix (default std::, intrinsics::)").
var defaultAllowMissing = []string{"std::", "intrinsics::"}

// Program is the linker's output: the surviving modules (after global
// renaming/merging and optional function GC), the laid-out data
// segments, and the validated entrypoint.
type Program struct {
	Modules    []*hir.Module
	Segments   []hir.DataSegment
	Entrypoint hir.FunctionIdent
}

// LinkError is a structured link-time failure (spec §7 error kind 3):
// module-name conflict, segment overlap, signature mismatch, cycle, or
// unresolved symbol.
type LinkError struct {
	Kind    string
	Message string
}

func (e *LinkError) Error() string { return fmt.Sprintf("link error (%s): %s", e.Kind, e.Message) }

// Link ingests modules per spec §4.6 and returns the linked Program, or
// the first LinkError encountered. Modules are not mutated in place
// except for global-reference rewriting (step 2), which is required to
// apply a rename program-wide.
func Link(modules []*hir.Module, opts Options) (*Program, error) {
	log := opts.logger()

	if err := checkModuleNameUniqueness(modules); err != nil {
		return nil, err
	}

	// Step 2: global-variable conflict resolution, applied program-wide
	// before any other validation so later steps see final names.
	table, renames := resolveGlobals(modules)
	for _, r := range renames {
		for _, mod := range modules {
			if mod.Name != r.module {
				continue
			}
			for _, fn := range mod.Functions {
				rewriteGlobalRefs(fn, r.from, r.to)
			}
		}
	}
	log.Infow("linker: resolved globals", "count", len(table), "renames", len(renames))

	// Step 3: local call-graph cycle check, one module at a time.
	for _, mod := range modules {
		if err := checkLocalCycles(mod); err != nil {
			return nil, err
		}
	}

	// Step 4: global call-graph validation across the whole program.
	allEdges, allNames := collectProgramCallGraph(modules)
	if _, err := toposortFunctions(allNames, allEdges); err != nil {
		return nil, &LinkError{Kind: "cycle", Message: err.Error()}
	}
	if err := checkSignatures(modules, allEdges); err != nil {
		return nil, err
	}

	// Step 5: global-symbol dependency analysis + unresolved-symbol check.
	allowMissing := append(append([]string(nil), defaultAllowMissing...), opts.AllowMissing...)
	for _, lib := range opts.Libraries {
		allowMissing = append(allowMissing, lib.AllowMissing...)
	}
	exported := exportedSymbols(opts.Libraries)
	referenced, err := checkGlobalReferences(modules, table, allowMissing, exported)
	if err != nil {
		return nil, err
	}
	_ = referenced // dead-global GC is left to a later optimization pass; see DESIGN.md

	// Step 6: entrypoint validation.
	var entry hir.FunctionIdent
	if opts.Entrypoint != "" {
		entry, err = validateEntrypoint(modules, opts.Entrypoint)
		if err != nil {
			return nil, err
		}
	}

	if opts.GCUnusedFunctions {
		modules = gcUnusedFunctions(modules, allEdges, entry, allowMissing, exported)
	}

	names := make([]string, 0, len(table))
	for name := range table {
		names = append(names, name)
	}
	sort.Strings(names)
	segments := layoutSegments(table, names)

	log.Infow("linker: link complete", "modules", len(modules), "segments", len(segments), "entrypoint", opts.Entrypoint)
	return &Program{Modules: modules, Segments: segments, Entrypoint: entry}, nil
}

func checkModuleNameUniqueness(modules []*hir.Module) error {
	seen := make(map[string]bool, len(modules))
	for _, m := range modules {
		if seen[m.Name] {
			return &LinkError{Kind: "module-conflict", Message: fmt.Sprintf("module %q declared more than once", m.Name)}
		}
		seen[m.Name] = true
	}
	return nil
}

func checkLocalCycles(mod *hir.Module) error {
	var edges []callEdge
	names := make([]hir.FunctionIdent, 0, len(mod.Functions))
	for _, fn := range mod.Functions {
		names = append(names, fn.Name)
		edges = append(edges, collectCallEdges(fn)...)
	}
	if _, err := toposortFunctions(names, edges); err != nil {
		return &LinkError{Kind: "recursion", Message: fmt.Sprintf("module %q: %s", mod.Name, err)}
	}
	return nil
}

func collectProgramCallGraph(modules []*hir.Module) ([]callEdge, []hir.FunctionIdent) {
	var edges []callEdge
	var names []hir.FunctionIdent
	for _, mod := range modules {
		for _, fn := range mod.Functions {
			names = append(names, fn.Name)
			edges = append(edges, collectCallEdges(fn)...)
		}
	}
	return edges, names
}

// checkSignatures validates every call edge's caller-declared signature
// against the callee's actual definition (spec §4.6 step 4): parameter
// count/types, per-parameter extension compatibility, and result
// count/types.
func checkSignatures(modules []*hir.Module, edges []callEdge) error {
	defs := make(map[hir.FunctionIdent]*types.Signature)
	for _, mod := range modules {
		for _, fn := range mod.Functions {
			defs[fn.Name] = fn.Sig
		}
	}
	for _, e := range edges {
		callee, ok := defs[e.callee]
		if !ok {
			continue // external import; validated in checkGlobalReferences-adjacent symbol resolution
		}
		if !types.SignatureEqual(e.sig, callee) {
			return &LinkError{Kind: "signature-mismatch", Message: fmt.Sprintf("%s calls %s with incompatible signature: %s vs %s", e.caller, e.callee, e.sig, callee)}
		}
		for i := range e.sig.Params {
			if !types.ExtendCompatible(e.sig.Params[i].Extend, callee.Params[i].Extend) {
				return &LinkError{Kind: "signature-mismatch", Message: fmt.Sprintf("%s calls %s: parameter %d extension %s incompatible with required %s", e.caller, e.callee, i, e.sig.Params[i].Extend, callee.Params[i].Extend)}
			}
		}
	}
	return nil
}

func matchesAny(symbol string, prefixes []string) bool {
	return matchesAllowMissing(symbol, prefixes)
}

func exportedSymbols(libs []*Manifest) map[string]bool {
	out := make(map[string]bool)
	for _, lib := range libs {
		for _, s := range lib.ExportedSymbols {
			out[s] = true
		}
	}
	return out
}

// checkGlobalReferences walks every function's materialized-global
// table (spec §4.6 step 5), returning the set of referenced global
// names and erroring on any reference neither defined locally nor
// covered by allowMissing/exported.
func checkGlobalReferences(modules []*hir.Module, table map[string]*globalEntry, allowMissing []string, exported map[string]bool) (map[string]bool, error) {
	referenced := make(map[string]bool)
	funcNames := make(map[string]bool)
	for _, mod := range modules {
		for _, fn := range mod.Functions {
			funcNames[fn.Name.String()] = true
		}
	}
	for _, mod := range modules {
		for _, fn := range mod.Functions {
			for _, g := range fn.Globals {
				referenced[g.Name] = true
				if _, ok := table[g.Name]; ok {
					continue
				}
				if matchesAny(g.Name, allowMissing) || exported[g.Name] {
					continue
				}
				return nil, &LinkError{Kind: "unresolved-symbol", Message: fmt.Sprintf("%s: global %q is not defined in any module and matches no allow-missing prefix", fn.Name, g.Name)}
			}
			for _, imp := range fn.Imports {
				if funcNames[imp.String()] {
					continue
				}
				if matchesAny(imp.String(), allowMissing) || exported[imp.String()] {
					continue
				}
				return nil, &LinkError{Kind: "unresolved-symbol", Message: fmt.Sprintf("%s: imported function %q is not defined in any module and matches no allow-missing prefix", fn.Name, imp)}
			}
		}
	}
	return referenced, nil
}

// validateEntrypoint resolves "module::function" and checks it exists,
// is public, and belongs to a module in the program (spec §4.6 step 6).
func validateEntrypoint(modules []*hir.Module, qualified string) (hir.FunctionIdent, error) {
	modName, fnName, ok := splitQualified(qualified)
	if !ok {
		return hir.FunctionIdent{}, &LinkError{Kind: "entrypoint", Message: fmt.Sprintf("entrypoint %q must be module-qualified (module::function)", qualified)}
	}
	for _, mod := range modules {
		if mod.Name != modName {
			continue
		}
		fn := mod.FindFunction(fnName)
		if fn == nil {
			return hir.FunctionIdent{}, &LinkError{Kind: "entrypoint", Message: fmt.Sprintf("entrypoint %q: function not found in module %q", qualified, modName)}
		}
		if fn.Sig.Linkage != types.LinkagePublic && fn.Sig.Linkage != types.LinkageExternal {
			return hir.FunctionIdent{}, &LinkError{Kind: "entrypoint", Message: fmt.Sprintf("entrypoint %q is not public", qualified)}
		}
		return fn.Name, nil
	}
	return hir.FunctionIdent{}, &LinkError{Kind: "entrypoint", Message: fmt.Sprintf("entrypoint %q: module %q not in program", qualified, modName)}
}

func splitQualified(s string) (module, fn string, ok bool) {
	for i := 0; i+1 < len(s); i++ {
		if s[i] == ':' && s[i+1] == ':' {
			return s[:i], s[i+2:], true
		}
	}
	return "", "", false
}

// gcUnusedFunctions removes functions with no incoming call edge and no
// obligation to remain (the entrypoint, or a symbol an allow-missing
// prefix/exported-library entry depends on), opt-in per
// Options.GCUnusedFunctions (spec §9 "issue #26").
func gcUnusedFunctions(modules []*hir.Module, edges []callEdge, entry hir.FunctionIdent, allowMissing []string, exported map[string]bool) []*hir.Module {
	called := make(map[hir.FunctionIdent]bool)
	for _, e := range edges {
		called[e.callee] = true
	}
	out := make([]*hir.Module, len(modules))
	for mi, mod := range modules {
		keep := make([]*hir.Function, 0, len(mod.Functions))
		for _, fn := range mod.Functions {
			if fn.Name == entry || called[fn.Name] ||
				fn.Sig.Linkage == types.LinkagePublic || fn.Sig.Linkage == types.LinkageExternal ||
				matchesAny(fn.Name.String(), allowMissing) || exported[fn.Name.String()] {
				keep = append(keep, fn)
			}
		}
		clone := *mod
		clone.Functions = keep
		out[mi] = &clone
	}
	return out
}

// Compile lowers every surviving function of a linked Program to ASM
// (spec §4.6 step 7 "emit"), running the per-function pipeline
// (C3 analyses -> C4 schedule -> C6 emission) for each, and assembles
// the result into a single asm.Program ready for the external
// assembler.
func Compile(prog *Program, opts emit.Options, h *diag.Handler) *asm.Program {
	out := &asm.Program{Segments: make([]asm.DataSegment, len(prog.Segments))}
	for i, seg := range prog.Segments {
		out.Segments[i] = asm.DataSegment{Name: seg.Name, Offset: seg.Offset, Bytes: seg.Bytes}
	}
	for _, mod := range prog.Modules {
		for _, fn := range mod.Functions {
			out.Functions = append(out.Functions, emit.EmitFunction(fn, opts, h))
		}
	}
	if prog.Entrypoint.Function != "" {
		out.Entry = prog.Entrypoint.String()
	}
	return out
}
