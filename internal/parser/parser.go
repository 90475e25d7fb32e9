// Package parser implements the Pratt expression parser and recursive-
// descent statement/declaration parser described in spec.md §4.2. The
// precedence-ladder and prefix/infix-loop shape is grounded on the
// teacher's std/compiler/parser.go (parseBinaryExpr/precedence/
// parsePrimaryExpr/parsePostfixOps); the statement dispatch on
// parseStmt/parseIfStmt/parseForStmt/parseSwitchStmt.
package parser

import (
	"fmt"

	"github.com/windstream-lang/windstreamc/internal/ast"
	"github.com/windstream-lang/windstreamc/internal/source"
	"github.com/windstream-lang/windstreamc/internal/token"
)

// Error is a parse-time failure at the statement level. It is recorded and
// parsing goes on from the current token rather than aborting the whole
// parse; synchronize is not called on this path, so no tokens are skipped.
type Error struct {
	Diag source.Diagnostic
}

func (e *Error) Error() string { return e.Diag.Error() }

// Parser consumes a flat token slice (as produced by internal/lexer) and
// builds an ast.Program.
type Parser struct {
	toks   []token.Token
	pos    int
	file   string
	errors []*Error

	// customIdentOps tracks user-defined infix operator names populated by a
	// pre-scan (spec.md §4.2 "custom operators plug in ... via a registry
	// populated by a pre-scan").
	customIdentOps map[string]bool
}

// New creates a Parser over toks, whose positions are attributed to file.
func New(file string, toks []token.Token) *Parser {
	p := &Parser{toks: toks, file: file, customIdentOps: map[string]bool{}}
	p.prescanCustomOperators()
	return p
}

// Parse runs the full statement-level parse and returns the Program along
// with every error recorded along the way (an error is fatal to its
// statement, not the whole file).
func Parse(file string, toks []token.Token) (*ast.Program, []*Error) {
	p := New(file, toks)
	prog := &ast.Program{}
	if len(toks) > 0 {
		prog.Pos = toks[0].Pos
	}
	for !p.atEnd() {
		p.skipNewlines()
		if p.atEnd() {
			break
		}
		stmt := p.parseDeclOrStmt()
		if stmt != nil {
			prog.Statements = append(prog.Statements, stmt)
		}
	}
	return prog, p.errors
}

// prescanCustomOperators walks the token stream once looking for infix
// identifiers declared via a hypothetical `syntax infix NAME` form (opaque
// to the core per spec.md §1) so the expression parser knows which bare
// identifiers to treat as user-defined infix operators at COMPARISON
// precedence, per spec.md §4.2.
func (p *Parser) prescanCustomOperators() {
	for i := 0; i+2 < len(p.toks); i++ {
		if p.toks[i].Kind == token.SYNTAX && p.toks[i+1].Kind == token.IDENT && p.toks[i+1].Lexeme == "infix" && p.toks[i+2].Kind == token.IDENT {
			p.customIdentOps[p.toks[i+2].Lexeme] = true
		}
	}
}

func (p *Parser) atEnd() bool { return p.peek().Kind == token.EOF }

func (p *Parser) peek() token.Token { return p.toks[p.pos] }

func (p *Parser) peekAt(off int) token.Token {
	idx := p.pos + off
	if idx >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[idx]
}

func (p *Parser) advance() token.Token {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *Parser) at(kind token.Kind) bool { return p.peek().Kind == kind }

func (p *Parser) match(kinds ...token.Kind) bool {
	for _, k := range kinds {
		if p.at(k) {
			p.advance()
			return true
		}
	}
	return false
}

func (p *Parser) expect(kind token.Kind) token.Token {
	if p.at(kind) {
		return p.advance()
	}
	p.errf("expectedToken: expected %s, found %s", token.Name(kind), token.Name(p.peek().Kind))
	return p.peek()
}

func (p *Parser) expectIdent() string {
	if p.at(token.IDENT) {
		return p.advance().Lexeme
	}
	p.errf("expectedIdentifier: expected identifier, found %s", token.Name(p.peek().Kind))
	return ""
}

func (p *Parser) errf(format string, args ...interface{}) {
	e := &Error{Diag: source.Diagnostic{Level: source.Error, Message: fmt.Sprintf(format, args...), Pos: p.peek().Pos}}
	p.errors = append(p.errors, e)
}

// skipNewlines tolerantly consumes NEWLINE tokens between statements
// (spec.md §4.2 "Newlines between statements are expected but skipped
// tolerantly").
func (p *Parser) skipNewlines() {
	for p.at(token.NEWLINE) {
		p.advance()
	}
}

// synchronize advances to the next statement boundary after a parse error:
// a NEWLINE, comma, DEDENT, or a keyword that starts a top-level
// declaration, per spec.md §4.2/§7.
func (p *Parser) synchronize() {
	for !p.atEnd() {
		switch p.peek().Kind {
		case token.NEWLINE, token.COMMA, token.DEDENT:
			p.advance()
			return
		case token.FN, token.RECORD, token.UNION, token.ENUM, token.TYPE,
			token.TRAIT, token.IMPL, token.USE, token.IMPORT, token.MODULE,
			token.EXTERN, token.LET, token.CONST, token.IF, token.WHILE,
			token.FOR, token.MATCH, token.RETURN:
			return
		}
		p.advance()
	}
}

// --- Precedence ladder (spec.md §4.2) ---

type prec int

const (
	precNone prec = iota
	precAssignment
	precTernary
	precNullCoalesce
	precPipe
	precOr
	precAnd
	precBitOr
	precBitXor
	precBitAnd
	precEquality
	precComparison
	precRange
	precTerm
	precFactor
	precUnary
	precPostfix
	precPrimary
)

func precedenceOf(k token.Kind, customIdentOps map[string]bool) prec {
	switch k {
	case token.ASSIGN, token.PLUS_ASSIGN, token.MINUS_ASSIGN, token.STAR_ASSIGN, token.SLASH_ASSIGN, token.PERCENT_ASSIGN:
		return precAssignment
	case token.QUESTION:
		return precTernary
	case token.NULLCOALESCE:
		return precNullCoalesce
	case token.PIPEGT:
		return precPipe
	case token.OR, token.OROR:
		return precOr
	case token.AND, token.ANDAND:
		return precAnd
	case token.PIPE:
		return precBitOr
	case token.CARET:
		return precBitXor
	case token.AMP:
		return precBitAnd
	case token.EQ, token.NE:
		return precEquality
	case token.LT, token.GT, token.LE, token.GE, token.SPACESHIP:
		return precComparison
	case token.AS:
		return precComparison
	case token.DOTDOT:
		return precRange
	case token.PLUS, token.MINUS:
		return precTerm
	case token.STAR, token.SLASH, token.PERCENT:
		return precFactor
	case token.CUSTOM_OP:
		return precFactor
	case token.IDENT:
		return precComparison // custom infix identifiers plug in here, if registered
	}
	return precNone
}

func isRightAssoc(k token.Kind) bool {
	switch k {
	case token.ASSIGN, token.PLUS_ASSIGN, token.MINUS_ASSIGN, token.STAR_ASSIGN, token.SLASH_ASSIGN, token.PERCENT_ASSIGN:
		return true
	}
	return false
}

// ParseExpr parses a single expression at the lowest binding level
// (precAssignment), exported
// for reuse by the lexer's interpolated-string re-parse step (spec.md
// §4.1: "The parser later re-parses each expr segment recursively").
func (p *Parser) ParseExpr() ast.Expression {
	return p.parseExpr(precAssignment)
}

func (p *Parser) parseExpr(minPrec prec) ast.Expression {
	left := p.parsePrefix()
	for {
		tk := p.peek()
		if tk.Kind == token.IDENT && !p.customIdentOps[tk.Lexeme] {
			break
		}
		pr := precedenceOf(tk.Kind, p.customIdentOps)
		if pr < minPrec || pr == precNone {
			break
		}
		left = p.parseInfix(left, pr)
	}
	return left
}

func (p *Parser) parseInfix(left ast.Expression, pr prec) ast.Expression {
	opTok := p.advance()
	switch opTok.Kind {
	case token.ASSIGN, token.PLUS_ASSIGN, token.MINUS_ASSIGN, token.STAR_ASSIGN, token.SLASH_ASSIGN, token.PERCENT_ASSIGN:
		right := p.parseExpr(pr) // right-associative
		return &ast.AssignExpr{Base: at(opTok.Pos), Target: left, Op: opTok.Kind, Value: right}
	case token.QUESTION:
		then := p.parseExpr(precAssignment)
		p.expect(token.COLON)
		els := p.parseExpr(precTernary)
		return &ast.Ternary{Base: at(opTok.Pos), Cond: left, Then: then, Else: els}
	case token.PIPEGT:
		right := p.parseExpr(pr + 1)
		if call, ok := right.(*ast.Call); ok {
			call.Args = append([]ast.Arg{{Value: left}}, call.Args...)
			return call
		}
		return &ast.Call{Base: at(opTok.Pos), Callee: right, Args: []ast.Arg{{Value: left}}}
	case token.AS:
		t := p.parseType()
		return &ast.Cast{Base: at(opTok.Pos), Operand: left, Type: t}
	case token.DOTDOT:
		end := p.parseExpr(pr + 1)
		var step ast.Expression
		if p.at(token.BY) {
			p.advance()
			step = p.parseExpr(pr + 1)
		}
		return &ast.RangeLit{Base: at(opTok.Pos), Start: left, End: end, Step: step}
	default:
		right := p.parseExpr(pr + 1)
		return &ast.Binary{Base: at(opTok.Pos), Op: opTok.Kind, Left: left, Right: right}
	}
}

// at constructs the embedded position field shared by every concrete node
// literal built throughout this package.
func at(pos source.Pos) ast.Base {
	return ast.Base{Pos: pos}
}
