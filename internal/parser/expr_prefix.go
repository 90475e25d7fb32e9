package parser

import (
	"strings"

	"github.com/windstream-lang/windstreamc/internal/ast"
	"github.com/windstream-lang/windstreamc/internal/lexer"
	"github.com/windstream-lang/windstreamc/internal/token"
)

// parsePrefix parses a prefix expression and any postfix operators applied
// to it, per spec.md §4.2 "Prefix"/"Postfix operators".
func (p *Parser) parsePrefix() ast.Expression {
	tok := p.peek()
	switch tok.Kind {
	case token.MINUS, token.BANG, token.NOT, token.TILDE:
		p.advance()
		operand := p.parseExpr(precUnary)
		return &ast.Unary{Base: at(tok.Pos), Op: tok.Kind, Operand: operand}
	case token.AMP:
		p.advance()
		operand := p.parseExpr(precUnary)
		return &ast.AddressOf{Base: at(tok.Pos), Operand: operand}
	case token.STAR:
		p.advance()
		operand := p.parseExpr(precUnary)
		return &ast.Deref{Base: at(tok.Pos), Operand: operand}
	case token.AWAIT:
		p.advance()
		operand := p.parseExpr(precUnary)
		return p.parsePostfixOps(&ast.Await{Base: at(tok.Pos), Operand: operand})
	case token.SPAWN:
		p.advance()
		call := p.parseExpr(precUnary)
		return &ast.Spawn{Base: at(tok.Pos), Call: call}
	case token.DELETE:
		p.advance()
		operand := p.parseExpr(precUnary)
		return operand // delete is parsed as a statement; bare use in expr position returns its operand for recovery
	case token.NEW:
		return p.parseNewExpr()
	case token.MAKE_CHAN, token.MAKE_MUTEX, token.MAKE_RWLOCK, token.MAKE_COND, token.MAKE_SEMAPHORE:
		return p.parseMakeSync()
	}
	return p.parsePostfixOps(p.parsePrimary())
}

func (p *Parser) parseNewExpr() ast.Expression {
	tok := p.advance() // 'new'
	typeExpr := p.parsePrimary()
	if p.at(token.LBRACE) {
		p.advance()
		args := p.parseRecordArgsUntil(token.RBRACE)
		p.expect(token.RBRACE)
		return &ast.NewExpr{Base: at(tok.Pos), Type: typeExpr, Args: args, IsRecordLiteral: true}
	}
	p.expect(token.LPAREN)
	args := p.parseArgsUntil(token.RPAREN)
	p.expect(token.RPAREN)
	return &ast.NewExpr{Base: at(tok.Pos), Type: typeExpr, Args: args}
}

func (p *Parser) parseRecordArgsUntil(end token.Kind) []ast.Arg {
	var args []ast.Arg
	for !p.at(end) && !p.atEnd() {
		name := p.expectIdent()
		p.expect(token.COLON)
		val := p.parseExpr(precAssignment)
		args = append(args, ast.Arg{Name: name, Value: val})
		if !p.match(token.COMMA) {
			break
		}
	}
	return args
}

func (p *Parser) parseMakeSync() ast.Expression {
	tok := p.advance()
	var kind ast.SyncKind
	switch tok.Kind {
	case token.MAKE_CHAN:
		kind = ast.SyncChan
	case token.MAKE_MUTEX:
		kind = ast.SyncMutex
	case token.MAKE_RWLOCK:
		kind = ast.SyncRWLock
	case token.MAKE_COND:
		kind = ast.SyncCond
	case token.MAKE_SEMAPHORE:
		kind = ast.SyncSemaphore
	}
	p.expect(token.LPAREN)
	m := &ast.MakeSync{Base: at(tok.Pos), Kind: kind}
	if !p.at(token.RPAREN) {
		m.ElemType = p.parseType()
		if p.match(token.COMMA) {
			m.Capacity = p.parseExpr(precAssignment)
		}
	}
	p.expect(token.RPAREN)
	return m
}

// parsePrimary parses literals, parenthesized/tuple expressions, list/map/
// record literals, lambdas, and identifiers (including DSL-block capture),
// per spec.md §4.2 "Falls through to primary".
func (p *Parser) parsePrimary() ast.Expression {
	tok := p.peek()
	switch tok.Kind {
	case token.INT:
		p.advance()
		return &ast.IntLit{Base: at(tok.Pos), Value: tok.Literal.Int}
	case token.FLOAT:
		p.advance()
		return &ast.FloatLit{Base: at(tok.Pos), Value: tok.Literal.Float}
	case token.TRUE:
		p.advance()
		return &ast.BoolLit{Base: at(tok.Pos), Value: true}
	case token.FALSE:
		p.advance()
		return &ast.BoolLit{Base: at(tok.Pos), Value: false}
	case token.NIL:
		p.advance()
		return &ast.NilLit{Base: at(tok.Pos)}
	case token.STRING:
		p.advance()
		return p.parseInterpString(tok)
	case token.LPAREN:
		return p.parseParenOrTuple()
	case token.LBRACKET:
		return p.parseListOrComprehension()
	case token.LBRACE:
		return p.parseBraceLit()
	case token.PIPE:
		return p.parseLambda()
	case token.IDENT:
		return p.parseIdentOrDSL()
	}
	p.errf("expectedExpression: unexpected token %s", token.Name(tok.Kind))
	p.advance()
	return &ast.NilLit{Base: at(tok.Pos)}
}

// parseInterpString decodes the lexer's \x01..\x02-delimited wire payload
// into plain-text and embedded-expression parts, recursively re-parsing
// each expression segment (spec.md §4.1).
func (p *Parser) parseInterpString(tok token.Token) ast.Expression {
	payload := tok.Literal.String
	const exprStart, exprEnd = '\x01', '\x02'
	if !strings.ContainsRune(payload, exprStart) {
		return &ast.StringLit{Base: at(tok.Pos), Value: payload}
	}
	var parts []ast.InterpStringPart
	i := 0
	for i < len(payload) {
		j := strings.IndexByte(payload[i:], exprStart)
		if j < 0 {
			parts = append(parts, ast.InterpStringPart{Text: payload[i:]})
			break
		}
		if j > 0 {
			parts = append(parts, ast.InterpStringPart{Text: payload[i : i+j]})
		}
		i += j + 1
		k := strings.IndexByte(payload[i:], exprEnd)
		if k < 0 {
			k = len(payload) - i
		}
		exprSrc := payload[i : i+k]
		i += k + 1
		exprToks, _ := lexer.Tokenize(tok.Pos.File, []byte(exprSrc))
		sub := New(tok.Pos.File, exprToks)
		parts = append(parts, ast.InterpStringPart{Expr: sub.ParseExpr()})
	}
	return &ast.InterpString{Base: at(tok.Pos), Parts: parts}
}

func (p *Parser) parseParenOrTuple() ast.Expression {
	tok := p.advance() // '('
	if p.at(token.RPAREN) {
		p.advance()
		return &ast.RecordLit{Base: at(tok.Pos)} // unit value, represented as an empty record literal
	}
	first := p.parseExpr(precAssignment)
	if p.at(token.COMMA) {
		elems := []ast.Expression{first}
		for p.match(token.COMMA) {
			if p.at(token.RPAREN) {
				break
			}
			elems = append(elems, p.parseExpr(precAssignment))
		}
		p.expect(token.RPAREN)
		return &ast.ListLit{Base: at(tok.Pos), Elems: elems} // tuple literal modeled as a list literal
	}
	p.expect(token.RPAREN)
	return first
}

func (p *Parser) parseListOrComprehension() ast.Expression {
	tok := p.advance() // '['
	if p.at(token.RBRACKET) {
		p.advance()
		return &ast.ListLit{Base: at(tok.Pos)}
	}
	first := p.parseExpr(precAssignment)
	if p.at(token.FOR) {
		p.advance()
		varName := p.expectIdent()
		p.expect(token.IN)
		iter := p.parseExpr(precAssignment)
		var guard ast.Expression
		if p.at(token.IF) {
			p.advance()
			guard = p.parseExpr(precAssignment)
		}
		p.expect(token.RBRACKET)
		return &ast.ListComprehension{Base: at(tok.Pos), Elem: first, VarName: varName, Iter: iter, Guard: guard}
	}
	elems := []ast.Expression{first}
	for p.match(token.COMMA) {
		if p.at(token.RBRACKET) {
			break
		}
		elems = append(elems, p.parseExpr(precAssignment))
	}
	p.expect(token.RBRACKET)
	return &ast.ListLit{Base: at(tok.Pos), Elems: elems}
}

// parseBraceLit distinguishes a record literal from a map literal by
// whether the first key looks like an identifier (`name: value`) or a
// string/expression key (`"k": v` or any other expression), per spec.md
// §4.2.
func (p *Parser) parseBraceLit() ast.Expression {
	tok := p.advance() // '{'
	if p.at(token.RBRACE) {
		p.advance()
		return &ast.RecordLit{Base: at(tok.Pos)}
	}
	if p.at(token.IDENT) && p.peekAt(1).Kind == token.COLON {
		var fields []ast.RecordFieldValue
		for !p.at(token.RBRACE) && !p.atEnd() {
			name := p.expectIdent()
			p.expect(token.COLON)
			val := p.parseExpr(precAssignment)
			fields = append(fields, ast.RecordFieldValue{Name: name, Value: val})
			if !p.match(token.COMMA) {
				break
			}
		}
		p.expect(token.RBRACE)
		return &ast.RecordLit{Base: at(tok.Pos), Fields: fields}
	}
	var entries []ast.MapEntry
	for !p.at(token.RBRACE) && !p.atEnd() {
		key := p.parseExpr(precAssignment)
		p.expect(token.COLON)
		val := p.parseExpr(precAssignment)
		entries = append(entries, ast.MapEntry{Key: key, Value: val})
		if !p.match(token.COMMA) {
			break
		}
	}
	p.expect(token.RBRACE)
	return &ast.MapLit{Base: at(tok.Pos), Entries: entries}
}

func (p *Parser) parseLambda() ast.Expression {
	tok := p.advance() // '|'
	var params []*ast.Param
	for !p.at(token.PIPE) && !p.atEnd() {
		ptok := p.peek()
		name := p.expectIdent()
		param := &ast.Param{Base: at(ptok.Pos), Name: name}
		if p.at(token.COLON) {
			p.advance()
			param.Type = p.parseType()
		}
		params = append(params, param)
		if !p.match(token.COMMA) {
			break
		}
	}
	p.expect(token.PIPE)
	body := p.parseExpr(precAssignment)
	return &ast.Lambda{Base: at(tok.Pos), Params: params, Body: body}
}

// parseIdentOrDSL handles a bare identifier, possibly followed by a DSL
// block capture (`name:` + NEWLINE + INDENT of a known DSL name), per
// spec.md §4.2.
func (p *Parser) parseIdentOrDSL() ast.Expression {
	tok := p.advance()
	if token.IsDSLName(tok.Lexeme) && p.at(token.COLON) && p.peekAt(1).Kind == token.NEWLINE {
		p.advance() // ':'
		p.advance() // NEWLINE
		raw := p.captureIndentedRaw()
		return &ast.DSLBlock{Base: at(tok.Pos), Name: tok.Lexeme, Raw: raw}
	}
	return &ast.Ident{Base: at(tok.Pos), Name: tok.Lexeme}
}

// captureIndentedRaw consumes an INDENT..DEDENT-bracketed block and
// reconstructs its raw lexeme text, used for DSL blocks whose content is
// opaque to the core parser (spec.md §4.2).
func (p *Parser) captureIndentedRaw() string {
	if !p.at(token.INDENT) {
		return ""
	}
	p.advance()
	depth := 1
	var sb strings.Builder
	for depth > 0 && !p.atEnd() {
		tok := p.peek()
		switch tok.Kind {
		case token.INDENT:
			depth++
		case token.DEDENT:
			depth--
			if depth == 0 {
				p.advance()
				return sb.String()
			}
		case token.NEWLINE:
			sb.WriteString("\n")
		default:
			sb.WriteString(tok.Lexeme)
			sb.WriteString(" ")
		}
		p.advance()
	}
	return sb.String()
}
