package parser

import (
	"github.com/windstream-lang/windstreamc/internal/ast"
	"github.com/windstream-lang/windstreamc/internal/token"
)

// parsePostfixOps applies `.member`, `[index]`, explicit type-arg call
// blocks, `(args)`, postfix `!`, and postfix `?` in a loop, per spec.md
// §4.2 "Postfix operators".
func (p *Parser) parsePostfixOps(node ast.Expression) ast.Expression {
	for {
		switch p.peek().Kind {
		case token.DOT:
			dotTok := p.advance()
			name := p.expectIdent()
			node = &ast.Member{Base: at(dotTok.Pos), Receiver: node, Name: name}
		case token.LBRACKET:
			if typeArgs, ok := p.tryParseExplicitTypeArgsCall(node); ok {
				node = typeArgs
				continue
			}
			brTok := p.advance()
			idx := p.parseExpr(precAssignment)
			p.expect(token.RBRACKET)
			node = &ast.Index{Base: at(brTok.Pos), Receiver: node, Index: idx}
		case token.LPAREN:
			parTok := p.advance()
			args := p.parseArgsUntil(token.RPAREN)
			p.expect(token.RPAREN)
			node = &ast.Call{Base: at(parTok.Pos), Callee: node, Args: args}
		case token.BANG:
			bangTok := p.advance()
			if id, ok := node.(*ast.Ident); ok {
				node = &ast.Call{Base: at(bangTok.Pos), Callee: id}
			}
		case token.QUESTION:
			if p.isStatementTerminator(p.peekAt(1).Kind) {
				qTok := p.advance()
				node = &ast.Propagate{Base: at(qTok.Pos), Operand: node}
				continue
			}
			return node // ternary is handled at the infix level
		default:
			return node
		}
	}
}

func (p *Parser) isStatementTerminator(k token.Kind) bool {
	switch k {
	case token.NEWLINE, token.EOF, token.DEDENT, token.RPAREN, token.RBRACKET, token.RBRACE, token.COMMA:
		return true
	}
	return false
}

// tryParseExplicitTypeArgsCall speculatively parses `name[T1, T2](args)`:
// an identifier/member run of comma-separated type-like identifiers
// followed by '(' confirms an explicit-type-argument call; otherwise it
// backtracks and returns false so the caller parses a plain index
// expression instead (spec.md §4.2 "Postfix operators").
func (p *Parser) tryParseExplicitTypeArgsCall(callee ast.Expression) (ast.Expression, bool) {
	save := p.pos
	brTok := p.advance() // '['
	var typeArgs []*ast.TypeExpr
	ok := true
	for !p.at(token.RBRACKET) {
		if !p.at(token.IDENT) {
			ok = false
			break
		}
		typeArgs = append(typeArgs, p.parseType())
		if p.at(token.COMMA) {
			p.advance()
			continue
		}
		break
	}
	if ok && p.at(token.RBRACKET) && p.peekAt(1).Kind == token.LPAREN {
		p.advance() // ']'
		p.advance() // '('
		args := p.parseArgsUntil(token.RPAREN)
		p.expect(token.RPAREN)
		return &ast.Call{Base: at(brTok.Pos), Callee: callee, Args: args, TypeArgs: typeArgs}, true
	}
	p.pos = save
	return nil, false
}

// parseArgsUntil parses a call argument list (positional or named via
// `name: value`), stopping before end.
func (p *Parser) parseArgsUntil(end token.Kind) []ast.Arg {
	var args []ast.Arg
	for !p.at(end) && !p.atEnd() {
		if p.at(token.IDENT) && p.peekAt(1).Kind == token.COLON {
			name := p.advance().Lexeme
			p.advance() // ':'
			val := p.parseExpr(precAssignment)
			args = append(args, ast.Arg{Name: name, Value: val})
		} else {
			val := p.parseExpr(precAssignment)
			args = append(args, ast.Arg{Value: val})
		}
		if !p.match(token.COMMA) {
			break
		}
	}
	return args
}
