// Package schedule orders the instructions of a single block for
// stack-oriented code generation: a dependency graph capturing value
// producer/consumer edges, condensed into a tree graph whose
// topological order is the emission order (spec §4.3).
package schedule

import (
	"fmt"

	"github.com/feltvm/feltc/pkg/hir"
)

// NodeKind distinguishes the four dependency-graph node shapes.
type NodeKind uint8

const (
	NodeInstruction NodeKind = iota
	NodeResult
	NodeArgument
	NodeStack
)

// NodeID identifies a dependency-graph node. Nodes are numbered in
// visitation order (a monotonically increasing counter), which doubles
// as the source-order tie-breaker Kahn's algorithm needs.
type NodeID int

// Node is one dependency-graph node.
type Node struct {
	ID   NodeID
	Kind NodeKind

	Inst     hir.InstID  // Instruction, Argument
	ArgIndex int         // Argument
	Value    hir.ValueID // Result, Stack
}

func (n Node) String() string {
	switch n.Kind {
	case NodeInstruction:
		return fmt.Sprintf("inst(%d)", n.Inst.Index())
	case NodeResult:
		return fmt.Sprintf("result(%d)", n.Value.Index())
	case NodeArgument:
		return fmt.Sprintf("arg(%d,#%d)", n.Inst.Index(), n.ArgIndex)
	default:
		return fmt.Sprintf("stack(%d)", n.Value.Index())
	}
}

// edge is a dependent -> dependency edge: From consumes the value
// produced by To.
type edge struct {
	From NodeID
	To   NodeID
}

// DependencyGraph is the per-block graph of node edges and the
// bottom-up visitation index used to break ties within a tree.
type DependencyGraph struct {
	nodes []Node
	edges []edge

	instNode   map[int]NodeID      // hir InstID index -> its Instruction node
	resultNode map[int]NodeID      // value index -> its Result/Stack node
	out        map[NodeID][]NodeID // dependent -> dependencies (producers)
	in         map[NodeID][]NodeID // dependency -> dependents (consumers)
	index      map[NodeID]int      // bottom-up visitation index, smaller = earlier
}

// depgraphBuilder holds the mutually-recursive construction state for
// one BuildDependencyGraph call; it exists only to let ensureInst and
// ensureValue call each other without package-level mutable state.
type depgraphBuilder struct {
	fn      *hir.Function
	g       *DependencyGraph
	counter int
}

// BuildDependencyGraph visits block's instructions bottom-up from its
// terminator, lazily materializing nodes for values as they are first
// referenced (spec §4.3 "Construction").
func BuildDependencyGraph(fn *hir.Function, block hir.BlockID) *DependencyGraph {
	b := &depgraphBuilder{
		fn: fn,
		g: &DependencyGraph{
			instNode:   make(map[int]NodeID),
			resultNode: make(map[int]NodeID),
			out:        make(map[NodeID][]NodeID),
			in:         make(map[NodeID][]NodeID),
			index:      make(map[NodeID]int),
		},
	}
	insts := fn.BlockInsts(block)
	// Visit in reverse program order (terminator first) so that the
	// first-referenced value along any path gets materialized as part of
	// that bottom-up walk, per spec §4.3.
	for i := len(insts) - 1; i >= 0; i-- {
		b.ensureInst(insts[i])
	}
	return b.g
}

func (b *depgraphBuilder) newNode(n Node) NodeID {
	n.ID = NodeID(len(b.g.nodes))
	b.g.nodes = append(b.g.nodes, n)
	b.counter++
	b.g.index[n.ID] = b.counter
	return n.ID
}

func (b *depgraphBuilder) addEdge(from, to NodeID) {
	b.g.edges = append(b.g.edges, edge{From: from, To: to})
	b.g.out[from] = append(b.g.out[from], to)
	b.g.in[to] = append(b.g.in[to], from)
}

// ensureValue returns (creating if needed) the Result or Stack node for
// a value, recording its bottom-up visitation index the first time it
// is materialized.
func (b *depgraphBuilder) ensureValue(v hir.ValueID) NodeID {
	if id, ok := b.g.resultNode[v.Index()]; ok {
		return id
	}
	vd := b.fn.ValueData(v)
	var id NodeID
	if vd.Kind == hir.ValueInstResult {
		id = b.newNode(Node{Kind: NodeResult, Value: v})
		instID := b.ensureInst(vd.Inst)
		b.addEdge(id, instID)
	} else {
		id = b.newNode(Node{Kind: NodeStack, Value: v})
	}
	b.g.resultNode[v.Index()] = id
	return id
}

func (b *depgraphBuilder) ensureInst(iid hir.InstID) NodeID {
	if id, ok := b.g.instNode[iid.Index()]; ok {
		return id
	}
	id := b.newNode(Node{Kind: NodeInstruction, Inst: iid})
	b.g.instNode[iid.Index()] = id

	inst := b.fn.InstData(iid)
	for i, operand := range inst.Operands {
		argID := b.newNode(Node{Kind: NodeArgument, Inst: iid, ArgIndex: i})
		b.addEdge(id, argID)
		producer := b.ensureValue(operand)
		b.addEdge(argID, producer)
	}
	return id
}

// Nodes returns every node in the graph.
func (g *DependencyGraph) Nodes() []Node { return g.nodes }

// Dependents returns the nodes that consume (depend on) n.
func (g *DependencyGraph) Dependents(n NodeID) []NodeID { return g.in[n] }

// Dependencies returns the nodes that n consumes.
func (g *DependencyGraph) Dependencies(n NodeID) []NodeID { return g.out[n] }

// Index returns n's bottom-up visitation index.
func (g *DependencyGraph) Index(n NodeID) int { return g.index[n] }
