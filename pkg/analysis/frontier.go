package analysis

import (
	"github.com/bits-and-blooms/bitset"

	"github.com/feltvm/feltc/pkg/hir"
)

// Frontier holds the dominance frontier of every block in a function,
// keyed by arena index and backed by a bitset per block (spec §4.2
// "Dominance frontier"): used by reload/phi-insertion passes that sit
// outside the core stackification pipeline but consume this interface.
type Frontier struct {
	byIndex map[int]*bitset.BitSet
	order   []hir.BlockID
}

// BuildFrontier computes the dominance frontier of every block reachable
// in cfg, given its dominator tree dt.
//
// For each block b with >= 2 predecessors, for each predecessor p, walk
// p's idom chain upward until reaching idom(b), inserting b into every
// visited block's frontier set.
func BuildFrontier(cfg *CFG, dt *DomTree) *Frontier {
	f := &Frontier{byIndex: make(map[int]*bitset.BitSet), order: cfg.Blocks()}
	for _, b := range cfg.Blocks() {
		preds := cfg.Predecessors(b)
		if len(preds) < 2 {
			continue
		}
		idomB, ok := dt.Idom(b)
		if !ok {
			continue
		}
		for _, e := range preds {
			runner := e.Pred
			for runner != idomB {
				f.add(runner, b)
				parent, ok := dt.Idom(runner)
				if !ok || parent == runner {
					break
				}
				runner = parent
			}
		}
	}
	return f
}

func (f *Frontier) add(block, member hir.BlockID) {
	bs, ok := f.byIndex[block.Index()]
	if !ok {
		bs = bitset.New(uint(len(f.order) + 1))
		f.byIndex[block.Index()] = bs
	}
	bs.Set(uint(member.Index()))
}

// Of returns the set of blocks in block's dominance frontier, as a
// slice for caller convenience.
func (f *Frontier) Of(block hir.BlockID) []hir.BlockID {
	bs, ok := f.byIndex[block.Index()]
	if !ok {
		return nil
	}
	var out []hir.BlockID
	for _, b := range f.order {
		if bs.Test(uint(b.Index())) {
			out = append(out, b)
		}
	}
	return out
}

// Contains reports whether member is in block's dominance frontier.
func (f *Frontier) Contains(block, member hir.BlockID) bool {
	bs, ok := f.byIndex[block.Index()]
	if !ok {
		return false
	}
	return bs.Test(uint(member.Index()))
}
