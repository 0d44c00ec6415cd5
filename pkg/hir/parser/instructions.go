package parser

import (
	"strconv"

	"github.com/feltvm/feltc/pkg/hir"
	"github.com/feltvm/feltc/pkg/types"
)

var binaryOpNames = map[string]hir.BinaryOp{
	"add": hir.BAdd, "sub": hir.BSub, "mul": hir.BMul, "div": hir.BDiv,
	"mod": hir.BMod, "divmod": hir.BDivMod, "and": hir.BAnd, "or": hir.BOr,
	"xor": hir.BXor, "shl": hir.BShl, "shr": hir.BShr, "rotl": hir.BRotl,
	"rotr": hir.BRotr, "min": hir.BMin, "max": hir.BMax, "eq": hir.BEq,
	"neq": hir.BNeq, "lt": hir.BLt, "lte": hir.BLte, "gt": hir.BGt, "gte": hir.BGte,
}

var unaryOpNames = map[string]hir.UnaryOp{
	"neg": hir.UNeg, "not": hir.UNot, "inc": hir.UInc, "dec": hir.UDec,
	"trunc": hir.UTrunc, "zext": hir.UZext, "sext": hir.USext,
	"int_to_int": hir.UIntToInt, "int_to_uint": hir.UIntToUint, "is_zero": hir.UIsZero,
}

var primOpNames = map[string]hir.PrimOp{
	"memset": hir.PrimMemSet, "memcpy": hir.PrimMemCpy, "assert": hir.PrimAssert,
	"assert_eq": hir.PrimAssertEq, "store_with_address": hir.PrimStoreWithAddress,
}

// opcodeHead is the decoded `<name>[.<suffix>]*` token run that precedes
// an instruction's operand list, mirroring opcodeText/tryVariant/the
// overflow suffix in pkg/hir/printer in reverse.
type opcodeHead struct {
	name     string
	imm      bool
	indirect bool
	overflow hir.OverflowMode
	try      bool
}

func (p *Parser) parseOpcodeHead() opcodeHead {
	base, _ := p.expect(TokenIdent)
	h := opcodeHead{name: base.Literal}
	for p.at(TokenDot) {
		p.advance()
		suf, _ := p.expect(TokenIdent)
		switch suf.Literal {
		case "imm":
			h.imm = true
		case "indirect":
			h.indirect = true
		case "checked":
			h.overflow = hir.OverflowChecked
		case "wrapping":
			h.overflow = hir.OverflowWrapping
		case "overflowing":
			h.overflow = hir.OverflowOverflowing
		case "try":
			h.try = true
		default:
			p.addErrorf("unknown opcode suffix %q", suf.Literal)
		}
	}
	return h
}

// parseInst reads one `<results> = <opcode>[.<suffix>] <payload>;` line
// (or a bare terminator with no result list) and appends it to block via
// the builder, dispatching on the decoded opcode head the same way
// pkg/hir/printer's opcodeText/printOperandsAndPayload pick their
// payload shape.
func (p *Parser) parseInst(fn *hir.Function, block hir.BlockID) {
	var resultNames []string
	if p.at(TokenPercent) {
		resultNames = p.parseResultList()
		p.expect(TokenAssign)
	}

	head := p.parseOpcodeHead()

	var iid hir.InstID
	switch {
	case head.name == "call":
		iid = p.parseCall(fn, block, head, resultNames)
	case head.name == "br":
		iid = p.parseBr(fn, block)
	case head.name == "cond_br":
		iid = p.parseCondBr(fn, block)
	case head.name == "switch":
		iid = p.parseSwitch(fn, block)
	case head.name == "return":
		iid = p.parseReturn(fn, block)
	case head.name == "unreachable":
		p.parseOperandList()
		iid = fn.AppendInst(block, hir.InstSpec{Opcode: hir.OpUnreachable})
	case head.name == "load":
		iid = p.parseLoad(fn, block)
	case head.name == "store":
		iid = p.parseStore(fn, block)
	case head.name == "global_value":
		iid = p.parseGlobalValue(fn, block, resultNames)
	case head.name == "local_addr":
		iid = p.parseLocalAddr(fn, block, resultNames)
	case head.name == "local_load":
		iid = p.parseLocalLoad(fn, block, resultNames)
	case head.name == "local_store":
		iid = p.parseLocalStore(fn, block)
	case head.name == "inline_asm":
		iid = p.parseInlineAsm(fn, block, resultNames)
	case isPrimOp(head.name):
		iid = p.parsePrim(fn, block, head)
	case isBinaryOp(head.name):
		iid = p.parseBinary(fn, block, head, resultNames)
	case isUnaryOp(head.name):
		iid = p.parseUnary(fn, block, head, resultNames)
	default:
		p.addErrorf("unknown opcode %q", head.name)
		p.skipToSemicolon()
		return
	}

	p.bindResults(fn, iid, resultNames)
	p.expect(TokenSemicolon)
}

func isBinaryOp(name string) bool { _, ok := binaryOpNames[name]; return ok }
func isUnaryOp(name string) bool  { _, ok := unaryOpNames[name]; return ok }
func isPrimOp(name string) bool   { _, ok := primOpNames[name]; return ok }

// resultTypesFor builds the ResultTypes slice for an instruction whose
// arity is driven entirely by how many `%N` names appeared on the LHS
// (the textual form carries no separate arity field): every slot gets
// primary, except the last one when tryVariant is set, which is always
// Bool (the "try" convention, spec §4.5).
func resultTypesFor(resultNames []string, primary types.Type, tryVariant bool) []types.Type {
	count := len(resultNames)
	if count == 0 {
		count = 1
	}
	out := make([]types.Type, count)
	for i := range out {
		out[i] = primary
	}
	if tryVariant {
		out[count-1] = types.Bool{}
	}
	return out
}

func (p *Parser) parseResultList() []string {
	var names []string
	for {
		p.expect(TokenPercent)
		n, _ := p.expect(TokenInt)
		names = append(names, n.Literal)
		if p.at(TokenComma) {
			p.advance()
			continue
		}
		break
	}
	return names
}

// bindResults records the types.Type of each freshly created result
// value into the value/type tables, keyed by the literal %N the source
// used, so later operand references (`%N`) resolve to the right
// hir.ValueID regardless of its underlying entity index.
func (p *Parser) bindResults(fn *hir.Function, iid hir.InstID, names []string) {
	if iid.IsNil() || len(names) == 0 {
		return
	}
	inst := fn.InstData(iid)
	for i, name := range names {
		if i >= len(inst.Results) {
			break
		}
		v := fn.ValueData(inst.Results[i])
		p.bind(name, inst.Results[i], v.Type)
	}
}

// parseOperandList reads a parenthesized, comma-separated %value list.
func (p *Parser) parseOperandList() []hir.ValueID {
	p.expect(TokenLParen)
	vals := p.parseOperandListBare(TokenRParen)
	p.expect(TokenRParen)
	return vals
}

// parseOperandListBare reads comma-separated %values until (not
// consuming) stop.
func (p *Parser) parseOperandListBare(stop TokenType) []hir.ValueID {
	var vals []hir.ValueID
	for !p.at(stop) && !p.at(TokenEOF) {
		p.expect(TokenPercent)
		n, _ := p.expect(TokenInt)
		vals = append(vals, p.value(n.Literal))
		if p.at(TokenComma) {
			p.advance()
			continue
		}
		break
	}
	return vals
}

func (p *Parser) parseBinary(fn *hir.Function, block hir.BlockID, head opcodeHead, resultNames []string) hir.InstID {
	op := binaryOpNames[head.name]
	operands := p.parseOperandList()
	if head.imm {
		p.expect(TokenComma)
		imm := p.parseSignedInt()
		p.expect(TokenColon)
		ty := p.parseType()
		return fn.AppendInst(block, hir.InstSpec{
			Opcode: hir.OpBinaryImm, Operands: operands, ResultTypes: resultTypesFor(resultNames, ty, false),
			Overflow: head.overflow, Payload: &hir.BinaryImmPayload{Op: op, Type: ty, Imm: imm},
		})
	}
	p.expect(TokenColon)
	ty := p.parseType()
	return fn.AppendInst(block, hir.InstSpec{
		Opcode: hir.OpBinary, Operands: operands, ResultTypes: resultTypesFor(resultNames, ty, head.try),
		Overflow: head.overflow, Payload: &hir.BinaryPayload{Op: op, Type: ty, Try: head.try},
	})
}

func (p *Parser) parseUnary(fn *hir.Function, block hir.BlockID, head opcodeHead, resultNames []string) hir.InstID {
	op := unaryOpNames[head.name]
	operands := p.parseOperandList()
	if head.imm {
		p.expect(TokenComma)
		imm := p.parseSignedInt()
		p.expect(TokenColon)
		ty := p.parseType()
		return fn.AppendInst(block, hir.InstSpec{
			Opcode: hir.OpUnaryImm, Operands: operands, ResultTypes: resultTypesFor(resultNames, ty, false),
			Payload: &hir.UnaryImmPayload{Op: op, Type: ty, Imm: imm},
		})
	}
	p.expect(TokenColon)
	from := p.parseType()
	p.expect(TokenArrow)
	to := p.parseType()
	return fn.AppendInst(block, hir.InstSpec{
		Opcode: hir.OpUnary, Operands: operands, ResultTypes: resultTypesFor(resultNames, to, head.try),
		Payload: &hir.UnaryPayload{Op: op, FromType: from, ToType: to, Try: head.try},
	})
}

func (p *Parser) parsePrim(fn *hir.Function, block hir.BlockID, head opcodeHead) hir.InstID {
	op, ok := primOpNames[head.name]
	if !ok {
		p.addErrorf("unknown prim op %q", head.name)
	}
	operands := p.parseOperandList()
	return fn.AppendInst(block, hir.InstSpec{Opcode: hir.OpPrim, Operands: operands, Payload: &hir.PrimPayload{Op: op}})
}

func (p *Parser) parseCall(fn *hir.Function, block hir.BlockID, head opcodeHead, resultNames []string) hir.InstID {
	var callee hir.FunctionIdent
	if p.at(TokenIdent) {
		modTok := p.advance()
		p.expect(TokenColonColon)
		fnTok, _ := p.expect(TokenIdent)
		callee = hir.FunctionIdent{Module: modTok.Literal, Function: fnTok.Literal}
	}
	operands := p.parseOperandList()
	opcode := hir.OpCallDirect
	if head.indirect {
		opcode = hir.OpCallIndirect
	}
	var resultTypes []types.Type
	if len(resultNames) > 0 {
		// The textual form doesn't carry the callee's signature (see
		// DESIGN.md); i32 is a filler that keeps the IR well-typed
		// enough to print and schedule, not a claim about the real ABI.
		resultTypes = resultTypesFor(resultNames, types.I32(), false)
	}
	return fn.AppendInst(block, hir.InstSpec{
		Opcode: opcode, Operands: operands, ResultTypes: resultTypes,
		Payload: &hir.CallPayload{Callee: callee},
	})
}

func (p *Parser) parseBr(fn *hir.Function, block hir.BlockID) hir.InstID {
	target, args := p.parseBlockTargetWithArgs()
	return fn.AppendInst(block, hir.InstSpec{Opcode: hir.OpBr, Operands: args, Payload: &hir.BrPayload{Target: target}})
}

func (p *Parser) parseCondBr(fn *hir.Function, block hir.BlockID) hir.InstID {
	p.expect(TokenPercent)
	condTok, _ := p.expect(TokenInt)
	cond := p.value(condTok.Literal)
	p.expect(TokenComma)
	trueTarget, trueArgs := p.parseBlockTargetWithArgs()
	p.expect(TokenComma)
	falseTarget, falseArgs := p.parseBlockTargetWithArgs()
	return fn.AppendInst(block, hir.InstSpec{
		Opcode:   hir.OpCondBr,
		Operands: []hir.ValueID{cond},
		Payload:  &hir.CondBrPayload{TrueTarget: trueTarget, FalseTarget: falseTarget, TrueArgs: trueArgs, FalseArgs: falseArgs},
	})
}

// parseBlockTargetWithArgs reads `bb<N>(<args>)`.
func (p *Parser) parseBlockTargetWithArgs() (hir.BlockID, []hir.ValueID) {
	label, _ := p.expect(TokenIdent)
	idx, ok := bbIndex(label.Literal)
	if !ok || idx >= len(p.blocks) {
		p.addErrorf("unknown branch target %q", label.Literal)
		return hir.BlockID{}, nil
	}
	args := p.parseOperandList()
	return p.blocks[idx], args
}

func (p *Parser) parseSwitch(fn *hir.Function, block hir.BlockID) hir.InstID {
	p.expect(TokenPercent)
	scrutTok, _ := p.expect(TokenInt)
	scrut := p.value(scrutTok.Literal)
	p.expect(TokenLBracket)

	var cases []hir.SwitchCase
	var defaultDest hir.BlockID
	for !p.at(TokenRBracket) && !p.at(TokenEOF) {
		if p.atIdent("default") {
			p.advance()
			p.expect(TokenColon)
			target, _ := p.parseBareBlockLabel()
			defaultDest = target
		} else {
			n, _ := p.expect(TokenInt)
			val, _ := strconv.ParseInt(n.Literal, 0, 64)
			p.expect(TokenColon)
			target, _ := p.parseBareBlockLabel()
			cases = append(cases, hir.SwitchCase{Value: val, Target: target})
		}
		if p.at(TokenComma) {
			p.advance()
		}
	}
	p.expect(TokenRBracket)
	return fn.AppendInst(block, hir.InstSpec{
		Opcode:   hir.OpSwitch,
		Operands: []hir.ValueID{scrut},
		Payload:  &hir.SwitchPayload{Cases: cases, DefaultDest: defaultDest},
	})
}

// parseBareBlockLabel reads a plain `bb<N>` with no argument list (the
// compact form pkg/hir/printer uses inside a switch's case table).
func (p *Parser) parseBareBlockLabel() (hir.BlockID, bool) {
	label, ok := p.expect(TokenIdent)
	if !ok {
		return hir.BlockID{}, false
	}
	idx, ok := bbIndex(label.Literal)
	if !ok || idx >= len(p.blocks) {
		p.addErrorf("unknown block label %q", label.Literal)
		return hir.BlockID{}, false
	}
	return p.blocks[idx], true
}

func (p *Parser) parseReturn(fn *hir.Function, block hir.BlockID) hir.InstID {
	operands := p.parseOperandListBare(TokenSemicolon)
	return fn.AppendInst(block, hir.InstSpec{Opcode: hir.OpReturn, Operands: operands, Payload: &hir.ReturnPayload{}})
}

func (p *Parser) parseLoad(fn *hir.Function, block hir.BlockID) hir.InstID {
	operands := p.parseOperandList()
	p.expectIdent("offset")
	p.expect(TokenAssign)
	offTok, _ := p.expect(TokenInt)
	offset, _ := strconv.ParseInt(offTok.Literal, 0, 64)
	p.expect(TokenColon)
	ty := p.parseType()
	return fn.AppendInst(block, hir.InstSpec{
		Opcode: hir.OpLoad, Operands: operands, ResultTypes: []types.Type{ty},
		Payload: &hir.LoadPayload{Chunk: chunkForType(ty), Offset: offset, Type: ty},
	})
}

func (p *Parser) parseStore(fn *hir.Function, block hir.BlockID) hir.InstID {
	operands := p.parseOperandList()
	p.expectIdent("offset")
	p.expect(TokenAssign)
	offTok, _ := p.expect(TokenInt)
	offset, _ := strconv.ParseInt(offTok.Literal, 0, 64)
	ty := types.I32()
	if len(operands) == 2 {
		if t, ok := p.types[lastValueIndex(p, operands[1])]; ok {
			ty = t
		}
	}
	return fn.AppendInst(block, hir.InstSpec{
		Opcode: hir.OpStore, Operands: operands,
		Payload: &hir.StorePayload{Chunk: chunkForType(ty), Offset: offset},
	})
}

// lastValueIndex recovers the literal %N that names vid by scanning the
// parser's current value table; stores don't re-print their operands'
// types, so this is how parseStore infers the chunk width.
func lastValueIndex(p *Parser, vid hir.ValueID) int {
	for n, v := range p.values {
		if v == vid {
			return n
		}
	}
	return -1
}

func (p *Parser) parseGlobalValue(fn *hir.Function, block hir.BlockID, resultNames []string) hir.InstID {
	p.expect(TokenAt)
	name := p.parseQualifiedIdent()
	ty := types.Ptr{Pointee: types.I32()}
	return fn.AppendInst(block, hir.InstSpec{
		Opcode: hir.OpGlobalValue, ResultTypes: []types.Type{ty},
		Payload: &hir.GlobalValuePayload{Global: name},
	})
}

func (p *Parser) parseQualifiedIdent() hir.GlobalIdent {
	first, _ := p.expect(TokenIdent)
	if p.at(TokenColonColon) {
		p.advance()
		second, _ := p.expect(TokenIdent)
		return hir.GlobalIdent{Module: first.Literal, Name: second.Literal}
	}
	return hir.GlobalIdent{Name: first.Literal}
}

func (p *Parser) parseLocalAddr(fn *hir.Function, block hir.BlockID, resultNames []string) hir.InstID {
	local := p.parseLocalRef(fn, types.I32())
	ty := types.Ptr{Pointee: types.I32()}
	return fn.AppendInst(block, hir.InstSpec{
		Opcode: hir.OpLocalAddr, ResultTypes: []types.Type{ty},
		Payload: &hir.LocalAddrPayload{Local: local},
	})
}

func (p *Parser) parseLocalLoad(fn *hir.Function, block hir.BlockID, resultNames []string) hir.InstID {
	local := p.parseLocalRef(fn, types.I32())
	p.expect(TokenColon)
	ty := p.parseType()
	p.setLocalType(local, ty)
	return fn.AppendInst(block, hir.InstSpec{
		Opcode: hir.OpLocalLoad, ResultTypes: []types.Type{ty},
		Payload: &hir.LocalLoadPayload{Local: local, Type: ty},
	})
}

func (p *Parser) parseLocalStore(fn *hir.Function, block hir.BlockID) hir.InstID {
	local := p.parseLocalRef(fn, types.I32())
	p.expect(TokenComma)
	operands := p.parseOperandListBare(TokenSemicolon)
	return fn.AppendInst(block, hir.InstSpec{
		Opcode: hir.OpLocalStore, Operands: operands,
		Payload: &hir.LocalStorePayload{Local: local},
	})
}

// parseLocalRef reads `$local<N>`, lazily declaring the slot on first
// reference (the textual form has no separate local-declaration
// production, see DESIGN.md).
func (p *Parser) parseLocalRef(fn *hir.Function, fallback types.Type) hir.LocalID {
	p.expect(TokenDollar)
	tok, _ := p.expect(TokenIdent) // "local3"
	n, ok := localIndex(tok.Literal)
	if !ok {
		p.addErrorf("malformed local reference %q", tok.Literal)
		return hir.LocalID{}
	}
	if id, ok := p.locals[n]; ok {
		return id
	}
	id := fn.CreateLocal(tok.Literal, fallback)
	p.locals[n] = id
	return id
}

func (p *Parser) setLocalType(id hir.LocalID, ty types.Type) {
	// Locals are immutably typed at CreateLocal time; the declared type
	// observed at a local_load site is informational only once the slot
	// already exists; nothing further to do when it was just created
	// with that very type.
	_ = id
	_ = ty
}

func localIndex(s string) (int, bool) {
	if len(s) <= 5 || s[:5] != "local" {
		return 0, false
	}
	n, err := strconv.Atoi(s[5:])
	if err != nil {
		return 0, false
	}
	return n, true
}

func (p *Parser) parseInlineAsm(fn *hir.Function, block hir.BlockID, resultNames []string) hir.InstID {
	tok, _ := p.expect(TokenString)
	return fn.AppendInst(block, hir.InstSpec{
		Opcode:  hir.OpInlineAsm,
		Payload: &hir.InlineAsmPayload{Text: tok.Literal},
	})
}

// parseSignedInt reads one integer literal; the lexer folds a leading
// '-' into the TokenInt literal itself (see Lexer.readNumber), so no
// separate sign token ever needs handling here.
func (p *Parser) parseSignedInt() int64 {
	tok, _ := p.expect(TokenInt)
	n, _ := strconv.ParseInt(tok.Literal, 0, 64)
	return n
}

func (p *Parser) skipToSemicolon() {
	for !p.at(TokenSemicolon) && !p.at(TokenEOF) {
		p.advance()
	}
	if p.at(TokenSemicolon) {
		p.advance()
	}
}

// chunkForType picks the MemChunk matching ty's natural representation
// (spec §4.5 "Memory model"), recovering the field pkg/hir/printer
// elides when it prints a load/store's result/operand type alone.
func chunkForType(ty types.Type) hir.MemChunk {
	switch t := ty.(type) {
	case types.Bool:
		return hir.ChunkI32
	case types.Int:
		switch t.Width {
		case 8:
			if t.Signed {
				return hir.ChunkI8Signed
			}
			return hir.ChunkI8Unsigned
		case 16:
			if t.Signed {
				return hir.ChunkI16Signed
			}
			return hir.ChunkI16Unsigned
		case 64:
			return hir.ChunkI64
		case 128:
			return hir.ChunkI128
		default:
			return hir.ChunkI32
		}
	case types.U256:
		return hir.ChunkU256
	case types.F64:
		return hir.ChunkF64
	case types.Felt:
		return hir.ChunkFelt
	default:
		return hir.ChunkI32
	}
}
