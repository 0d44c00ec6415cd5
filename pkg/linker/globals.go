package linker

import (
	"bytes"

	"github.com/feltvm/feltc/pkg/hir"
	"github.com/feltvm/feltc/pkg/types"
)

// globalEntry is one surviving global in the merged table, after
// conflict resolution (spec §4.6 step 2).
type globalEntry struct {
	Name     hir.GlobalIdent
	Type     types.Type
	Init     []byte
	ReadOnly bool
	Offset   uint32
}

// rename records that every reference to from within its originating
// module must be rewritten to to.
type rename struct {
	module string
	from   hir.GlobalIdent
	to     hir.GlobalIdent
}

// resolveGlobals merges every module's globals into one table, per
// spec §4.6 step 2: same name + same type + compatible linkage merges
// (the ODR rule: the non-empty initializer wins); same name with a
// conflicting type is renamed with a fresh suffix, and the rename is
// recorded so the caller can rewrite every reference in the
// originating module.
func resolveGlobals(modules []*hir.Module) (map[string]*globalEntry, []rename) {
	table := make(map[string]*globalEntry)
	var renames []rename

	for _, mod := range modules {
		for _, g := range mod.Globals {
			key := g.Name.Name
			existing, ok := table[key]
			if !ok {
				table[key] = &globalEntry{
					Name:     hir.GlobalIdent{Name: key},
					Type:     g.Type,
					Init:     g.Init,
					ReadOnly: g.ReadOnly,
				}
				continue
			}
			if types.Equal(existing.Type, g.Type) {
				if len(existing.Init) == 0 && len(g.Init) > 0 {
					existing.Init = g.Init
				}
				if !bytes.Equal(existing.Init, g.Init) && len(existing.Init) > 0 && len(g.Init) > 0 {
					// Distinct non-empty initializers under the same name
					// and type are still a conflict; rename rather than
					// silently picking one (ODR only covers the
					// empty-vs-non-empty case cleanly).
					renamed := freshName(table, key, mod.Name)
					table[renamed] = &globalEntry{
						Name:     hir.GlobalIdent{Name: renamed},
						Type:     g.Type,
						Init:     g.Init,
						ReadOnly: g.ReadOnly,
					}
					renames = append(renames, rename{module: mod.Name, from: g.Name, to: hir.GlobalIdent{Name: renamed}})
				}
				continue
			}
			renamed := freshName(table, key, mod.Name)
			table[renamed] = &globalEntry{
				Name:     hir.GlobalIdent{Name: renamed},
				Type:     g.Type,
				Init:     g.Init,
				ReadOnly: g.ReadOnly,
			}
			renames = append(renames, rename{module: mod.Name, from: g.Name, to: hir.GlobalIdent{Name: renamed}})
		}
	}
	return table, renames
}

func freshName(table map[string]*globalEntry, base, module string) string {
	candidate := base + "$" + module
	for i := 2; ; i++ {
		if _, taken := table[candidate]; !taken {
			return candidate
		}
		candidate = base + "$" + module + itoa(i)
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [8]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

// rewriteGlobalRefs rewrites every OpGlobalValue reference to from
// within fn to to. Payload is stored as a pointer behind the Function's
// instruction arena, so mutating the field reached through InstData's
// snapshot mutates the shared underlying payload.
func rewriteGlobalRefs(fn *hir.Function, from, to hir.GlobalIdent) {
	for i, g := range fn.Globals {
		if g == from {
			fn.Globals[i] = to
		}
	}
	for _, b := range fn.Blocks() {
		for _, iid := range fn.BlockInsts(b) {
			inst := fn.InstData(iid)
			if inst.Opcode != hir.OpGlobalValue {
				continue
			}
			p := inst.Payload.(*hir.GlobalValuePayload)
			if p.Global == from {
				p.Global = to
			}
		}
	}
}

// layoutSegments assigns each surviving global a word-aligned offset
// after the reserved 64 KiB shadow stack (spec §4.6 "Data-segment
// layout"), and returns one DataSegment per global in table-iteration
// order (stable by name for determinism).
func layoutSegments(table map[string]*globalEntry, names []string) []hir.DataSegment {
	const shadowStackBytes = 64 * 1024
	offset := uint32(shadowStackBytes)
	segments := make([]hir.DataSegment, 0, len(names))
	for _, name := range names {
		g := table[name]
		align := g.Type.Align()
		if align == 0 {
			align = 4
		}
		if rem := offset % align; rem != 0 {
			offset += align - rem
		}
		g.Offset = offset
		segments = append(segments, hir.DataSegment{Name: name, Offset: offset, Bytes: g.Init})
		offset += g.Type.SizeBytes()
	}
	return segments
}
