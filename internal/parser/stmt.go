package parser

import (
	"github.com/windstream-lang/windstreamc/internal/ast"
	"github.com/windstream-lang/windstreamc/internal/source"
	"github.com/windstream-lang/windstreamc/internal/token"
)

// parseDeclOrStmt parses one top-level-or-nested declaration/statement,
// dispatching on the current token per spec.md §4.2 "Statements".
func (p *Parser) parseDeclOrStmt() ast.Statement {
	attrs := p.parseAttributes()
	p.skipNewlines()
	stmt := p.parseStmtInner(attrs)
	p.skipTrailingNewline()
	return stmt
}

func (p *Parser) skipTrailingNewline() {
	if p.at(token.NEWLINE) {
		p.advance()
	}
}

func (p *Parser) parseStmtInner(attrs []ast.Attribute) ast.Statement {
	tok := p.peek()
	switch tok.Kind {
	case token.FN:
		return p.parseFuncDecl(attrs)
	case token.RECORD:
		return p.parseRecordDecl(attrs)
	case token.UNION:
		return p.parseUnionDecl()
	case token.ENUM:
		return p.parseEnumDecl()
	case token.TYPE:
		return p.parseTypeAliasDecl()
	case token.TRAIT:
		return p.parseTraitDecl()
	case token.IMPL:
		return p.parseImplDecl()
	case token.USE:
		return p.parseUseOrImport(true)
	case token.IMPORT:
		return p.parseUseOrImport(false)
	case token.MODULE:
		return p.parseModuleDecl()
	case token.EXTERN:
		if p.peekAt(1).Kind == token.STRING {
			return p.parseExternBlock()
		}
		return p.parseModifiedFuncDecl(attrs)
	case token.PUB, token.HOT, token.COLD, token.NAKED, token.ASYNC, token.VARIADIC,
		token.CDECL, token.STDCALL, token.WIN64:
		return p.parseModifiedFuncDecl(attrs)
	case token.MACRO:
		return p.parseRawDecl(token.MACRO, "macro")
	case token.SYNTAX:
		return p.parseRawDecl(token.SYNTAX, "syntax")
	case token.LAYER:
		return p.parseRawDecl(token.LAYER, "layer")
	case token.UNSAFE:
		return p.parseUnsafeStmt()
	case token.ASM:
		return p.parseAsmStmt()
	case token.LET, token.MUT:
		return p.parseVarOrDestructure()
	case token.CONST:
		return p.parseConstDecl()
	case token.IF:
		return p.parseIfStmt()
	case token.WHILE:
		return p.parseWhileStmt()
	case token.FOR:
		return p.parseForInStmt()
	case token.MATCH:
		return p.parseMatchStmt()
	case token.RETURN:
		return p.parseReturnStmt()
	case token.BREAK:
		p.advance()
		return &ast.BreakStmt{Base: at(tok.Pos)}
	case token.CONTINUE:
		p.advance()
		return &ast.ContinueStmt{Base: at(tok.Pos)}
	case token.DELETE:
		p.advance()
		operand := p.parseExpr(precAssignment)
		return &ast.DeleteStmt{Base: at(tok.Pos), Operand: operand}
	case token.LOCK:
		return p.parseLockStmt()
	case token.TRY:
		return p.parseTryElseStmt()
	case token.LBRACE:
		return p.parseBlock()
	}
	return p.parseSimpleStmt()
}

// parseBlock parses `INDENT declaration* DEDENT` (spec.md §4.2
// "Indentation-structured blocks"). When the current token isn't INDENT
// (e.g. a single-line body), it falls back to parsing one statement.
func (p *Parser) parseBlock() *ast.BlockStmt {
	tok := p.peek()
	blk := &ast.BlockStmt{Base: at(tok.Pos)}
	if !p.at(token.INDENT) {
		if s := p.parseDeclOrStmt(); s != nil {
			blk.Statements = append(blk.Statements, s)
		}
		return blk
	}
	p.advance() // INDENT
	for !p.at(token.DEDENT) && !p.atEnd() {
		p.skipNewlines()
		if p.at(token.DEDENT) || p.atEnd() {
			break
		}
		s := p.parseDeclOrStmt()
		if s != nil {
			blk.Statements = append(blk.Statements, s)
		}
	}
	if p.at(token.DEDENT) {
		p.advance()
	}
	return blk
}

func (p *Parser) parseColonBlock() *ast.BlockStmt {
	p.expect(token.COLON)
	p.skipNewlines()
	return p.parseBlock()
}

func (p *Parser) parseIfStmt() ast.Statement {
	tok := p.advance() // 'if'
	cond := p.parseExpr(precAssignment)
	then := p.parseColonBlock()
	stmt := &ast.IfStmt{Base: at(tok.Pos), Cond: cond, Then: then}
	for p.at(token.ELIF) {
		p.advance()
		c := p.parseExpr(precAssignment)
		b := p.parseColonBlock()
		stmt.Elifs = append(stmt.Elifs, ast.ElifBranch{Cond: c, Body: b})
	}
	if p.at(token.ELSE) {
		p.advance()
		stmt.Else = p.parseColonBlock()
	}
	return stmt
}

func (p *Parser) parseWhileStmt() ast.Statement {
	tok := p.advance()
	cond := p.parseExpr(precAssignment)
	body := p.parseColonBlock()
	return &ast.WhileStmt{Base: at(tok.Pos), Cond: cond, Body: body}
}

func (p *Parser) parseForInStmt() ast.Statement {
	tok := p.advance()
	name := p.expectIdent()
	p.expect(token.IN)
	iter := p.parseExpr(precAssignment)
	body := p.parseColonBlock()
	return &ast.ForInStmt{Base: at(tok.Pos), VarName: name, Iter: iter, Body: body}
}

func (p *Parser) parseMatchStmt() ast.Statement {
	tok := p.advance()
	val := p.parseExpr(precAssignment)
	p.expect(token.COLON)
	p.skipNewlines()
	stmt := &ast.MatchStmt{Base: at(tok.Pos), Value: val}
	if !p.at(token.INDENT) {
		return stmt
	}
	p.advance()
	for !p.at(token.DEDENT) && !p.atEnd() {
		p.skipNewlines()
		if p.at(token.DEDENT) || p.atEnd() {
			break
		}
		stmt.Cases = append(stmt.Cases, p.parseMatchCase())
	}
	if p.at(token.DEDENT) {
		p.advance()
	}
	return stmt
}

func (p *Parser) parseMatchCase() ast.MatchCase {
	patTok := p.peek()
	pat := &ast.Pattern{Base: at(patTok.Pos)}
	if p.at(token.IDENT) && p.peek().Lexeme == "_" {
		p.advance()
		pat.Wildcard = true
	} else if p.at(token.IDENT) && p.peekAt(1).Kind != token.LPAREN {
		pat.Ident = p.advance().Lexeme
	} else {
		pat.Literal = p.parseExpr(precAssignment)
	}
	var guard ast.Expression
	if p.at(token.IF) {
		p.advance()
		guard = p.parseExpr(precAssignment)
	}
	p.expect(token.ARROW)
	body := p.parseBlock()
	if len(body.Statements) == 0 {
		// parseBlock already handles a same-line `pattern -> expr` arm; this
		// only keeps an empty arm's statement list non-nil.
		body.Statements = []ast.Statement{}
	}
	return ast.MatchCase{Pattern: pat, Guard: guard, Body: body}
}

func (p *Parser) parseReturnStmt() ast.Statement {
	tok := p.advance()
	if p.isStatementTerminator(p.peek().Kind) {
		return &ast.ReturnStmt{Base: at(tok.Pos)}
	}
	val := p.parseExpr(precAssignment)
	return &ast.ReturnStmt{Base: at(tok.Pos), Value: val}
}

func (p *Parser) parseLockStmt() ast.Statement {
	tok := p.advance()
	guard := p.parseExpr(precAssignment)
	body := p.parseColonBlock()
	return &ast.LockStmt{Base: at(tok.Pos), Guard: guard, Body: body}
}

func (p *Parser) parseUnsafeStmt() ast.Statement {
	tok := p.advance()
	body := p.parseColonBlock()
	return &ast.UnsafeStmt{Base: at(tok.Pos), Body: body}
}

func (p *Parser) parseTryElseStmt() ast.Statement {
	tok := p.advance()
	tryBlk := p.parseColonBlock()
	name := ""
	var elseBlk *ast.BlockStmt
	if p.at(token.ELSE) {
		p.advance()
		if p.at(token.IDENT) {
			name = p.advance().Lexeme
		}
		elseBlk = p.parseColonBlock()
	} else {
		elseBlk = &ast.BlockStmt{Base: at(tok.Pos)}
	}
	return &ast.TryElseStmt{Base: at(tok.Pos), Try: tryBlk, Name: name, Else: elseBlk}
}

// parseVarOrDestructure parses `let`/`mut` variable declarations and
// tuple/record destructuring declarations, per spec.md §3 "Destructuring
// declaration".
func (p *Parser) parseVarOrDestructure() ast.Statement {
	tok := p.advance() // LET or MUT
	mutable := tok.Kind == token.MUT
	if p.at(token.LPAREN) {
		return p.parseTupleDestructure(tok.Pos, mutable)
	}
	if p.at(token.LBRACE) {
		return p.parseRecordDestructure(tok.Pos, mutable)
	}
	name := p.expectIdent()
	decl := &ast.VarDecl{Base: at(tok.Pos), Name: name, Mutable: mutable}
	if p.at(token.COLON) {
		p.advance()
		decl.Type = p.parseType()
	}
	if p.at(token.ASSIGN) {
		p.advance()
		decl.Init = p.parseExpr(precAssignment)
	}
	return decl
}

func (p *Parser) parseTupleDestructure(pos source.Pos, mutable bool) ast.Statement {
	p.advance() // '('
	d := &ast.DestructureDecl{Base: at(pos), Mutable: mutable}
	for !p.at(token.RPAREN) && !p.atEnd() {
		name := p.expectIdent()
		d.Patterns = append(d.Patterns, ast.DestructurePattern{Name: name})
		if !p.match(token.COMMA) {
			break
		}
	}
	p.expect(token.RPAREN)
	p.expect(token.ASSIGN)
	d.Value = p.parseExpr(precAssignment)
	return d
}

func (p *Parser) parseRecordDestructure(pos source.Pos, mutable bool) ast.Statement {
	p.advance() // '{'
	d := &ast.DestructureDecl{Base: at(pos), Mutable: mutable, IsRecordShape: true}
	for !p.at(token.RBRACE) && !p.atEnd() {
		field := p.expectIdent()
		name := field
		if p.match(token.COLON) {
			name = p.expectIdent()
		}
		d.Patterns = append(d.Patterns, ast.DestructurePattern{Name: name, Field: field})
		if !p.match(token.COMMA) {
			break
		}
	}
	p.expect(token.RBRACE)
	p.expect(token.ASSIGN)
	d.Value = p.parseExpr(precAssignment)
	return d
}

func (p *Parser) parseConstDecl() ast.Statement {
	tok := p.advance()
	name := p.expectIdent()
	p.expect(token.COLONCOLON)
	val := p.parseExpr(precAssignment)
	return &ast.ConstDecl{Base: at(tok.Pos), Name: name, Value: val}
}

// parseSimpleStmt parses an expression statement, recognizing the `NAME ::
// value` constant form and compound-assignment statements along the way.
func (p *Parser) parseSimpleStmt() ast.Statement {
	tok := p.peek()
	if p.at(token.IDENT) && p.peekAt(1).Kind == token.COLONCOLON {
		return p.parseConstDecl()
	}
	expr := p.parseExpr(precAssignment)
	if assign, ok := expr.(*ast.AssignExpr); ok {
		return &ast.CompoundAssignStmt{Base: at(tok.Pos), Target: assign.Target, Op: assign.Op, Value: assign.Value}
	}
	return &ast.ExprStmt{Base: at(tok.Pos), X: expr}
}
