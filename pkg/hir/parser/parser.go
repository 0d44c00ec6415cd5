package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/feltvm/feltc/pkg/hir"
	"github.com/feltvm/feltc/pkg/types"
)

// Parser reads the MIR textual form (spec §6) into an hir.Module,
// driving the same builder API (hir.Function.CreateBlock/AppendInst/...)
// a textual front end outside this repo's scope would use. Modeled on
// ralph-cc's pkg/parser: a hand-written recursive-descent reader over a
// fully pre-lexed token stream rather than a streaming lexer, because
// branch targets and block arguments can forward-reference a block that
// is only declared later in the same function body.
type Parser struct {
	toks []Token
	pos  int

	moduleName string
	errors     []string

	// per-function parse state, reset by parseFunction
	values map[int]hir.ValueID
	types  map[int]types.Type // declared type of value %N, for chunk inference on stores
	locals map[int]hir.LocalID
	blocks []hir.BlockID // index i holds the BlockID for bbI
}

// New creates a Parser over the given MIR source text.
func New(src string) *Parser {
	p := &Parser{}
	l := NewLexer(src)
	for {
		t := l.NextToken()
		p.toks = append(p.toks, t)
		if t.Type == TokenEOF {
			break
		}
	}
	return p
}

// Errors returns every parse error accumulated so far.
func (p *Parser) Errors() []string { return p.errors }

func (p *Parser) addErrorf(format string, args ...any) {
	t := p.cur()
	p.errors = append(p.errors, fmt.Sprintf("line %d, col %d: %s", t.Line, t.Column, fmt.Sprintf(format, args...)))
}

func (p *Parser) cur() Token  { return p.toks[p.pos] }
func (p *Parser) peek() Token { return p.peekN(1) }
func (p *Parser) peekN(n int) Token {
	i := p.pos + n
	if i >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[i]
}
func (p *Parser) advance() Token {
	t := p.cur()
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *Parser) at(tt TokenType) bool { return p.cur().Type == tt }

func (p *Parser) atIdent(lit string) bool {
	return p.cur().Type == TokenIdent && p.cur().Literal == lit
}

func (p *Parser) expect(tt TokenType) (Token, bool) {
	if p.cur().Type != tt {
		p.addErrorf("expected %s, got %s %q", tt, p.cur().Type, p.cur().Literal)
		return Token{}, false
	}
	return p.advance(), true
}

func (p *Parser) expectIdent(lit string) bool {
	if !p.atIdent(lit) {
		p.addErrorf("expected %q, got %s %q", lit, p.cur().Type, p.cur().Literal)
		return false
	}
	p.advance()
	return true
}

// ParseModule parses one complete module (kernel or not), its globals,
// and its function bodies.
func (p *Parser) ParseModule() (*hir.Module, error) {
	isKernel := false
	switch {
	case p.atIdent("kernel"):
		isKernel = true
		p.advance()
	case p.atIdent("module"):
		p.advance()
	default:
		p.addErrorf("expected 'module' or 'kernel'")
	}

	nameTok, ok := p.expect(TokenIdent)
	if !ok {
		return nil, p.errOrNil()
	}
	p.moduleName = nameTok.Literal
	mod := hir.NewModule(p.moduleName)
	mod.IsKernel = isKernel

	for !p.at(TokenEOF) {
		switch {
		case p.atIdent("global"):
			mod.AddGlobal(p.parseGlobal())
		case p.atIdent("fn"):
			mod.AddFunction(p.parseFunction())
		default:
			p.addErrorf("expected 'global' or 'fn' at module level, got %q", p.cur().Literal)
			p.advance()
		}
	}
	return mod, p.errOrNil()
}

func (p *Parser) errOrNil() error {
	if len(p.errors) == 0 {
		return nil
	}
	return fmt.Errorf("parse errors:\n%s", strings.Join(p.errors, "\n"))
}

// parseGlobal reads: global <linkage> @<name> : <type> [= <N> bytes];
func (p *Parser) parseGlobal() *hir.GlobalVariable {
	p.advance() // "global"
	linkage := p.parseLinkage()
	p.expect(TokenAt)
	name, _ := p.expect(TokenIdent)
	p.expect(TokenColon)
	ty := p.parseType()

	g := &hir.GlobalVariable{Name: hir.GlobalIdent{Name: name.Literal}, Type: ty, Linkage: linkage}
	if p.at(TokenAssign) {
		p.advance()
		n, _ := p.expect(TokenInt)
		count, _ := strconv.Atoi(n.Literal)
		p.expectIdent("bytes")
		g.Init = make([]byte, count)
	}
	p.expect(TokenSemicolon)
	return g
}

func (p *Parser) parseLinkage() types.Linkage {
	if !p.at(TokenIdent) {
		return types.LinkagePrivate
	}
	switch p.cur().Literal {
	case "public":
		p.advance()
		return types.LinkagePublic
	case "external":
		p.advance()
		return types.LinkageExternal
	case "odr":
		p.advance()
		return types.LinkageOdr
	case "common":
		p.advance()
		return types.LinkageCommon
	case "private":
		p.advance()
		return types.LinkagePrivate
	default:
		return types.LinkagePrivate
	}
}

// parseFunction reads: fn <linkage> <cc> <name>(<types>) -> (<types>) { <blocks> }
func (p *Parser) parseFunction() *hir.Function {
	p.advance() // "fn"
	linkage := p.parseLinkage()

	cc := types.CCFast
	if p.atIdent("kernel") {
		cc = types.CCKernel
		p.advance()
	} else {
		p.expectIdent("fast")
	}

	fnName := p.parseFunctionName()
	sig := &types.Signature{CC: cc, Linkage: linkage}

	p.expect(TokenLParen)
	for !p.at(TokenRParen) && !p.at(TokenEOF) {
		sig.Params = append(sig.Params, types.Param{Type: p.parseType()})
		if p.at(TokenComma) {
			p.advance()
		}
	}
	p.expect(TokenRParen)
	p.expect(TokenArrow)
	p.expect(TokenLParen)
	for !p.at(TokenRParen) && !p.at(TokenEOF) {
		sig.Results = append(sig.Results, types.Param{Type: p.parseType()})
		if p.at(TokenComma) {
			p.advance()
		}
	}
	p.expect(TokenRParen)

	fn := hir.NewFunction(fnName, sig)

	p.expect(TokenLBrace)
	p.prescanBlocks(fn)
	for !p.at(TokenRBrace) && !p.at(TokenEOF) {
		p.parseBlockBody(fn)
	}
	p.expect(TokenRBrace)
	return fn
}

// parseFunctionName reads `<module>::<function>`, the qualified form
// FunctionIdent.String always prints (unlike GlobalIdent, it has no
// unqualified short form).
func (p *Parser) parseFunctionName() hir.FunctionIdent {
	modTok, _ := p.expect(TokenIdent)
	p.expect(TokenColonColon)
	fnTok, _ := p.expect(TokenIdent)
	return hir.FunctionIdent{Module: modTok.Literal, Function: fnTok.Literal}
}

// prescanBlocks looks ahead over the token stream from the current
// position (just past the function's opening brace) to the matching
// closing brace, finds every distinct `bb<N>` label, and pre-creates
// that many blocks via fn.CreateBlock() so forward branch targets
// (a block referenced before its own header appears in program order)
// resolve to a real BlockID. Block bodies are parsed in a second,
// normal left-to-right pass starting at the same position; this relies
// on CreateBlock assigning BlockIDs in allocation order, which matches
// the order the printer numbers blocks in (bb%d == entity index).
func (p *Parser) prescanBlocks(fn *hir.Function) {
	depth := 1
	maxIdx := -1
	for i := p.pos; i < len(p.toks) && depth > 0; i++ {
		switch p.toks[i].Type {
		case TokenLBrace:
			depth++
		case TokenRBrace:
			depth--
		case TokenIdent:
			if depth == 1 {
				if idx, ok := bbIndex(p.toks[i].Literal); ok && idx > maxIdx {
					maxIdx = idx
				}
			}
		}
	}
	p.blocks = make([]hir.BlockID, maxIdx+1)
	for i := range p.blocks {
		p.blocks[i] = fn.CreateBlock()
	}
	p.values = map[int]hir.ValueID{}
	p.types = map[int]types.Type{}
	p.locals = map[int]hir.LocalID{}
}

func bbIndex(s string) (int, bool) {
	if !strings.HasPrefix(s, "bb") || len(s) <= 2 {
		return 0, false
	}
	n, err := strconv.Atoi(s[2:])
	if err != nil {
		return 0, false
	}
	return n, true
}

// parseBlockBody reads: bb<N>(<params>): <inst>* (terminator last).
func (p *Parser) parseBlockBody(fn *hir.Function) {
	label, ok := p.expect(TokenIdent)
	if !ok {
		p.advance()
		return
	}
	idx, ok := bbIndex(label.Literal)
	if !ok || idx >= len(p.blocks) {
		p.addErrorf("unknown block label %q", label.Literal)
		return
	}
	block := p.blocks[idx]

	p.expect(TokenLParen)
	for !p.at(TokenRParen) && !p.at(TokenEOF) {
		vtok, _ := p.expect(TokenPercent)
		_ = vtok
		n, _ := p.expect(TokenInt)
		p.expect(TokenColon)
		ty := p.parseType()
		vid := fn.AppendBlockParam(block, ty)
		p.bind(n.Literal, vid, ty)
		if p.at(TokenComma) {
			p.advance()
		}
	}
	p.expect(TokenRParen)
	p.expect(TokenColon)

	fn.SetInsertPoint(block)
	for !p.isBlockLabel() && !p.at(TokenRBrace) && !p.at(TokenEOF) {
		p.parseInst(fn, block)
	}
}

func (p *Parser) isBlockLabel() bool {
	return p.at(TokenIdent) && strings.HasPrefix(p.cur().Literal, "bb")
}

func (p *Parser) bind(numLit string, vid hir.ValueID, ty types.Type) {
	n, err := strconv.Atoi(numLit)
	if err != nil {
		return
	}
	p.values[n] = vid
	p.types[n] = ty
}

func (p *Parser) value(numLit string) hir.ValueID {
	n, err := strconv.Atoi(numLit)
	if err != nil {
		p.addErrorf("invalid value reference %%%s", numLit)
		return hir.ValueID{}
	}
	vid, ok := p.values[n]
	if !ok {
		p.addErrorf("reference to undefined value %%%d", n)
	}
	return vid
}
