package parser

import (
	"strconv"

	"github.com/feltvm/feltc/pkg/types"
)

// parseType reads one type per the String() forms in pkg/types: i1,
// i8/i16/.../u128, u256, felt, f64, *T, [T; N], a bare name for an
// opaque struct reference, or (params) -> (results) for a function
// pointer's signature.
func (p *Parser) parseType() types.Type {
	switch p.cur().Type {
	case TokenStar:
		p.advance()
		return types.Ptr{Pointee: p.parseType()}
	case TokenLBracket:
		p.advance()
		elem := p.parseType()
		p.expect(TokenSemicolon)
		n, _ := p.expect(TokenInt)
		length, _ := strconv.Atoi(n.Literal)
		p.expect(TokenRBracket)
		return types.Array{Elem: elem, Len: uint32(length)}
	case TokenLParen:
		sig := p.parseSignature()
		return types.Function{Sig: sig}
	case TokenIdent:
		return p.parseNamedType()
	default:
		p.addErrorf("expected a type, got %s %q", p.cur().Type, p.cur().Literal)
		p.advance()
		return types.I32()
	}
}

func (p *Parser) parseNamedType() types.Type {
	tok := p.advance()
	name := tok.Literal
	switch name {
	case "i1":
		return types.Bool{}
	case "u256":
		return types.U256{}
	case "felt":
		return types.Felt{}
	case "f64":
		return types.F64{}
	}
	if w, signed, ok := intWidth(name); ok {
		return types.Int{Width: w, Signed: signed}
	}
	// Not a builtin scalar: treat as an opaque, field-less struct
	// reference. The MIR textual form (spec §6) has no production for
	// struct field declarations, so a struct's field layout can only
	// round-trip through the builder API, not through text; see
	// DESIGN.md.
	return types.Struct{Name: name}
}

func intWidth(name string) (width uint8, signed bool, ok bool) {
	if len(name) < 2 {
		return 0, false, false
	}
	var sign bool
	switch name[0] {
	case 'i':
		sign = true
	case 'u':
		sign = false
	default:
		return 0, false, false
	}
	n, err := strconv.Atoi(name[1:])
	if err != nil {
		return 0, false, false
	}
	switch n {
	case 8, 16, 32, 64, 128:
		return uint8(n), sign, true
	default:
		return 0, false, false
	}
}

// parseSignature reads (<types>) -> (<types>) for a function-pointer
// type reference. It carries no calling convention or linkage of its
// own in the textual form (those are properties of a *definition*, not
// a type), so both default to the zero value.
func (p *Parser) parseSignature() *types.Signature {
	sig := &types.Signature{}
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
	return sig
}

