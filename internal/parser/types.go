package parser

import (
	"github.com/windstream-lang/windstreamc/internal/ast"
	"github.com/windstream-lang/windstreamc/internal/token"
)

// parseType parses a type annotation per spec.md §4.2 "Types": a primitive
// name; *T/**T; &T/&mut T; [T]; [T; N]; Name[T1, T2, ...]; T?.
func (p *Parser) parseType() *ast.TypeExpr {
	tok := p.peek()
	var t *ast.TypeExpr
	switch tok.Kind {
	case token.STAR:
		p.advance()
		t = &ast.TypeExpr{Base: at(tok.Pos), PointerTo: p.parseType()}
	case token.AMP:
		p.advance()
		mut := p.match(token.MUT)
		t = &ast.TypeExpr{Base: at(tok.Pos), RefTo: p.parseType(), RefMutable: mut}
	case token.LBRACKET:
		p.advance()
		elem := p.parseType()
		if p.match(token.SEMI) {
			sizeTok := p.expect(token.INT)
			p.expect(token.RBRACKET)
			size := int64(0)
			if sizeTok.Literal != nil {
				size = sizeTok.Literal.Int
			}
			t = &ast.TypeExpr{Base: at(tok.Pos), ArrayOf: elem, ArraySize: size}
		} else {
			p.expect(token.RBRACKET)
			t = &ast.TypeExpr{Base: at(tok.Pos), ListOf: elem}
		}
	case token.IDENT:
		name := p.advance().Lexeme
		t = &ast.TypeExpr{Base: at(tok.Pos), Name: name}
		if p.at(token.LBRACKET) {
			p.advance()
			for !p.at(token.RBRACKET) && !p.atEnd() {
				t.GenericArgs = append(t.GenericArgs, p.parseType())
				if !p.match(token.COMMA) {
					break
				}
			}
			p.expect(token.RBRACKET)
		}
	default:
		// Primitive keyword-like type names (int, float, string, ...) lex as
		// IDENT in this grammar; anything else is a type error recovered by
		// producing an `unknown` placeholder type.
		p.errf("expectedIdentifier: expected a type, found %s", token.Name(tok.Kind))
		p.advance()
		t = &ast.TypeExpr{Base: at(tok.Pos), Name: "unknown"}
	}
	if p.at(token.QUESTION) {
		p.advance()
		t.Nullable = true
	}
	return t
}

// parseTypeParams parses an optional `[T, U: Bound, V = default]`
// generic-parameter list following a fn/record/union/trait name.
func (p *Parser) parseTypeParams() []*ast.TypeParam {
	if !p.at(token.LBRACKET) {
		return nil
	}
	p.advance()
	var params []*ast.TypeParam
	for !p.at(token.RBRACKET) && !p.atEnd() {
		name := p.expectIdent()
		tp := &ast.TypeParam{Name: name}
		if p.match(token.COLON) {
			tp.Bounds = append(tp.Bounds, p.expectIdent())
			for p.match(token.PLUS) {
				tp.Bounds = append(tp.Bounds, p.expectIdent())
			}
		}
		if p.match(token.ASSIGN) {
			tp.Default = p.parseType()
		}
		params = append(params, tp)
		if !p.match(token.COMMA) {
			break
		}
	}
	p.expect(token.RBRACKET)
	return params
}

// parseAttributes consumes zero or more leading `#[...]` ATTRIBUTE tokens
// and parses their bracketed payload into structured Attribute values
// (spec.md §4.2 "Attributes").
func (p *Parser) parseAttributes() []ast.Attribute {
	var attrs []ast.Attribute
	for p.at(token.ATTRIBUTE) {
		raw := p.advance().Lexeme
		attrs = append(attrs, parseAttributeText(raw)...)
	}
	return attrs
}

func parseAttributeText(raw string) []ast.Attribute {
	var attrs []ast.Attribute
	name := ""
	var args []string
	depth := 0
	flush := func() {
		if name != "" {
			attrs = append(attrs, ast.Attribute{Name: name, Args: args})
		}
		name, args = "", nil
	}
	cur := ""
	for _, c := range raw {
		switch c {
		case '(':
			depth++
			if depth == 1 {
				name = cur
				cur = ""
				continue
			}
			cur += string(c)
		case ')':
			depth--
			if depth == 0 {
				args = append(args, trimSpace(cur))
				cur = ""
				continue
			}
			cur += string(c)
		case ',':
			if depth <= 1 {
				if depth == 0 {
					flush()
					name = trimSpace(cur)
					flush()
					cur = ""
				} else {
					args = append(args, trimSpace(cur))
					cur = ""
				}
				continue
			}
			cur += string(c)
		default:
			cur += string(c)
		}
	}
	if depth == 0 {
		if t := trimSpace(cur); t != "" {
			name = t
			flush()
		}
	}
	flush()
	return attrs
}

func trimSpace(s string) string {
	start, end := 0, len(s)
	for start < end && (s[start] == ' ' || s[start] == '\t') {
		start++
	}
	for end > start && (s[end-1] == ' ' || s[end-1] == '\t') {
		end--
	}
	return s[start:end]
}
