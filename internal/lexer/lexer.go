// Package lexer implements the indentation-aware tokenizer: an
// INDENT/DEDENT-producing scanner over UTF-8 source bytes, with
// interpolated-string wire encoding and custom-operator collapsing,
// following spec.md §4.1.
//
// The scanning style (character-at-a-time over a byte slice, building
// Token values with manual line/column tracking) is grounded on the
// teacher's std/compiler/parser.go Lexer; indentation handling and string
// interpolation are new, since the teacher's source language is not
// indentation-sensitive.
package lexer

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/windstream-lang/windstreamc/internal/source"
	"github.com/windstream-lang/windstreamc/internal/token"
	"golang.org/x/text/width"
)

const tabWidth = 4

// Error is a fatal lex-time failure; the lexer stops at the first one,
// per spec.md §7 ("Lex: all errors fatal").
type Error struct {
	Diag source.Diagnostic
}

func (e *Error) Error() string { return e.Diag.Error() }

// Lexer scans one source file into a flat token slice.
type Lexer struct {
	file   string
	src    []byte
	pos    int // byte offset
	line   int
	col    int
	indent []int // indentation-width stack, starts at [0]

	atLineStart bool
	parenDepth  int // newlines inside (), [], {} don't start a new logical line

	toks []token.Token
}

// New creates a Lexer over src, attributing positions to file.
func New(file string, src []byte) *Lexer {
	return &Lexer{
		file:        file,
		src:         src,
		line:        1,
		col:         1,
		indent:      []int{0},
		atLineStart: true,
	}
}

// Tokenize runs the lexer to completion and returns the full token stream,
// always ending in a token.EOF. On the first fatal error it returns
// whatever tokens were scanned so far plus a non-nil *Error.
func Tokenize(file string, src []byte) ([]token.Token, error) {
	l := New(file, src)
	if err := l.run(); err != nil {
		return l.toks, err
	}
	return l.toks, nil
}

func (l *Lexer) pos_() source.Pos {
	return source.Pos{File: l.file, Line: l.line, Column: l.col}
}

func (l *Lexer) errf(format string, args ...interface{}) error {
	return &Error{Diag: source.Diagnostic{Level: source.Error, Message: fmt.Sprintf(format, args...), Pos: l.pos_()}}
}

func (l *Lexer) atEnd() bool { return l.pos >= len(l.src) }

func (l *Lexer) peek() byte {
	if l.atEnd() {
		return 0
	}
	return l.src[l.pos]
}

func (l *Lexer) peekAt(off int) byte {
	if l.pos+off >= len(l.src) {
		return 0
	}
	return l.src[l.pos+off]
}

func (l *Lexer) advance() byte {
	c := l.src[l.pos]
	l.pos++
	if c == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	return c
}

func (l *Lexer) emit(kind token.Kind, lexeme string, pos source.Pos) {
	l.toks = append(l.toks, token.Token{Kind: kind, Lexeme: lexeme, Pos: pos})
}

func (l *Lexer) emitLit(kind token.Kind, lexeme string, pos source.Pos, lit *token.Literal) {
	l.toks = append(l.toks, token.Token{Kind: kind, Lexeme: lexeme, Pos: pos, Literal: lit})
}

func isIdentStart(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || b >= utf8.RuneSelf
}

func isIdentCont(b byte) bool {
	return isIdentStart(b) || (b >= '0' && b <= '9')
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

// run performs the full tokenize pass.
func (l *Lexer) run() error {
	for {
		if l.atLineStart && l.parenDepth == 0 {
			if err := l.handleIndentation(); err != nil {
				return err
			}
			if l.atEnd() {
				break
			}
		}
		if l.atEnd() {
			break
		}
		if err := l.scanToken(); err != nil {
			return err
		}
	}
	// Balance any remaining DEDENTs at EOF, per spec.md §4.1.
	for len(l.indent) > 1 {
		l.indent = l.indent[:len(l.indent)-1]
		l.emit(token.DEDENT, "", l.pos_())
	}
	l.emit(token.EOF, "", l.pos_())
	return nil
}

// handleIndentation consumes leading whitespace of a new logical line,
// measures its width (tabs count as tabWidth), and emits INDENT/DEDENT
// tokens to reconcile it against the indentation stack. Blank and
// comment-only lines are skipped without affecting the stack.
func (l *Lexer) handleIndentation() error {
	for {
		width := 0
		for !l.atEnd() {
			c := l.peek()
			if c == ' ' {
				width++
				l.advance()
			} else if c == '\t' {
				width += tabWidth
				l.advance()
			} else {
				break
			}
		}
		if l.atEnd() {
			l.atLineStart = false
			return nil
		}
		c := l.peek()
		if c == '\n' {
			l.advance()
			continue // blank line: doesn't affect indentation
		}
		if c == '\r' && l.peekAt(1) == '\n' {
			l.advance()
			l.advance()
			continue
		}
		if c == '#' && l.peekAt(1) != '[' && l.peekAt(1) != '!' {
			l.skipLineComment()
			continue
		}
		if c == '/' && l.peekAt(1) == '/' {
			l.skipLineComment()
			continue
		}
		if c == '#' && l.peekAt(1) == '!' {
			l.skipLineComment() // shebang treated as comment
			continue
		}
		// Real content: reconcile width against the stack.
		top := l.indent[len(l.indent)-1]
		if width > top {
			l.indent = append(l.indent, width)
			l.emit(token.INDENT, "", l.pos_())
		} else if width < top {
			matched := false
			for len(l.indent) > 1 {
				l.indent = l.indent[:len(l.indent)-1]
				l.emit(token.DEDENT, "", l.pos_())
				if l.indent[len(l.indent)-1] == width {
					matched = true
					break
				}
				if l.indent[len(l.indent)-1] < width {
					break
				}
			}
			if !matched && l.indent[len(l.indent)-1] != width {
				return l.errf("inconsistentIndentation: indentation does not match any enclosing level")
			}
		}
		l.atLineStart = false
		return nil
	}
}

func (l *Lexer) skipLineComment() {
	for !l.atEnd() && l.peek() != '\n' {
		l.advance()
	}
}

// scanToken scans exactly one token (after indentation has been handled).
func (l *Lexer) scanToken() error {
	// Skip intra-line whitespace.
	for !l.atEnd() {
		c := l.peek()
		if c == ' ' || c == '\t' || c == '\r' {
			l.advance()
			continue
		}
		break
	}
	if l.atEnd() {
		return nil
	}
	start := l.pos_()
	c := l.peek()

	if c == '\n' {
		l.advance()
		if l.parenDepth == 0 {
			l.emit(token.NEWLINE, "\n", start)
			l.atLineStart = true
		}
		return nil
	}
	if c == '/' && l.peekAt(1) == '/' {
		l.skipLineComment()
		return nil
	}
	if c == '#' && l.peekAt(1) == '[' {
		return l.scanAttribute(start)
	}
	if c == '#' {
		l.skipLineComment()
		return nil
	}
	if isIdentStart(c) {
		return l.scanIdent(start)
	}
	if isDigit(c) {
		return l.scanNumber(start)
	}
	if c == '"' || c == '\'' {
		return l.scanString(start, c)
	}
	return l.scanOperator(start)
}

func (l *Lexer) scanAttribute(start source.Pos) error {
	l.advance() // '#'
	l.advance() // '['
	depth := 1
	var sb strings.Builder
	for !l.atEnd() && depth > 0 {
		c := l.peek()
		if c == '[' {
			depth++
		} else if c == ']' {
			depth--
			if depth == 0 {
				l.advance()
				break
			}
		}
		sb.WriteByte(c)
		l.advance()
	}
	if depth != 0 {
		return l.errf("unterminatedAttribute: missing closing ']'")
	}
	l.emit(token.ATTRIBUTE, sb.String(), start)
	return nil
}

func (l *Lexer) scanIdent(start source.Pos) error {
	s := l.pos
	for !l.atEnd() && isIdentCont(l.peek()) {
		l.advance()
	}
	text := string(l.src[s:l.pos])
	if token.IsDSLName(text) && l.peek() == ':' {
		// Looked ahead for a DSL block; the parser decides based on the
		// following INDENT whether to treat this as a DSL capture or a
		// plain identifier followed by ':'. We only emit the identifier
		// here — the parser re-reads raw source for DSL capture via the
		// Cache, keeping the lexer single-pass.
	}
	if kw, ok := token.Lookup(text); ok {
		l.emit(kw, text, start)
		return nil
	}
	l.emit(token.IDENT, text, start)
	return nil
}

func (l *Lexer) scanNumber(start source.Pos) error {
	s := l.pos
	isFloat := false
	for !l.atEnd() && isDigit(l.peek()) {
		l.advance()
	}
	if l.peek() == '.' && isDigit(l.peekAt(1)) {
		isFloat = true
		l.advance()
		for !l.atEnd() && isDigit(l.peek()) {
			l.advance()
		}
	}
	if l.peek() == 'e' || l.peek() == 'E' {
		save := l.pos
		saveLine, saveCol := l.line, l.col
		l.advance()
		if l.peek() == '+' || l.peek() == '-' {
			l.advance()
		}
		if isDigit(l.peek()) {
			isFloat = true
			for !l.atEnd() && isDigit(l.peek()) {
				l.advance()
			}
		} else {
			l.pos, l.line, l.col = save, saveLine, saveCol
		}
	}
	text := string(l.src[s:l.pos])
	if isFloat {
		var f float64
		fmt.Sscanf(text, "%g", &f)
		l.emitLit(token.FLOAT, text, start, &token.Literal{Float: f})
	} else {
		var n int64
		fmt.Sscanf(text, "%d", &n)
		l.emitLit(token.INT, text, start, &token.Literal{Int: n})
	}
	return nil
}

// Interpolation markers used in the wire-encoded STRING literal payload:
// plain text segments are separated from embedded-expression segments by
// \x01 (expr-start) ... \x02 (expr-end), per spec.md §4.1. The parser
// re-parses each \x01..\x02 segment recursively as an expression.
const (
	exprStart = '\x01'
	exprEnd   = '\x02'
)

func (l *Lexer) scanString(start source.Pos, quote byte) error {
	l.advance() // opening quote
	var sb strings.Builder
	for {
		if l.atEnd() {
			return l.errf("unterminatedString: missing closing quote")
		}
		c := l.peek()
		if c == quote {
			l.advance()
			break
		}
		if c == '\n' {
			return l.errf("unterminatedString: newline in string literal")
		}
		if c == '\\' {
			l.advance()
			if l.atEnd() {
				return l.errf("unterminatedString: dangling escape")
			}
			e := l.advance()
			switch e {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case 'r':
				sb.WriteByte('\r')
			case '\\':
				sb.WriteByte('\\')
			case '"':
				sb.WriteByte('"')
			case '\'':
				sb.WriteByte('\'')
			case '{':
				sb.WriteByte('{')
			default:
				sb.WriteByte('\\')
				sb.WriteByte(e)
			}
			continue
		}
		if c == '{' {
			l.advance()
			depth := 1
			var expr strings.Builder
			for !l.atEnd() && depth > 0 {
				ec := l.peek()
				if ec == '{' {
					depth++
				} else if ec == '}' {
					depth--
					if depth == 0 {
						l.advance()
						break
					}
				}
				expr.WriteByte(ec)
				l.advance()
			}
			if depth != 0 {
				return l.errf("unterminatedInterpolation: missing closing '}'")
			}
			sb.WriteByte(exprStart)
			sb.WriteString(expr.String())
			sb.WriteByte(exprEnd)
			continue
		}
		sb.WriteByte(c)
		l.advance()
	}
	text := sb.String()
	l.emitLit(token.STRING, text, start, &token.Literal{String: text})
	return nil
}

// fixedOperators maps exact multi/single-character punctuator spellings to
// their token kind. Longer spellings must be tried first by the caller.
var fixedOperators = []struct {
	text string
	kind token.Kind
}{
	{"<=>", token.SPACESHIP},
	{"|>", token.PIPEGT},
	{"??", token.NULLCOALESCE},
	{"::", token.COLONCOLON},
	{"..", token.DOTDOT},
	{"->", token.ARROW},
	{"=>", token.FATARROW},
	{"==", token.EQ},
	{"!=", token.NE},
	{"<=", token.LE},
	{">=", token.GE},
	{"&&", token.ANDAND},
	{"||", token.OROR},
	{"+=", token.PLUS_ASSIGN},
	{"-=", token.MINUS_ASSIGN},
	{"*=", token.STAR_ASSIGN},
	{"/=", token.SLASH_ASSIGN},
	{"%=", token.PERCENT_ASSIGN},
	{"(", token.LPAREN}, {")", token.RPAREN},
	{"{", token.LBRACE}, {"}", token.RBRACE},
	{"[", token.LBRACKET}, {"]", token.RBRACKET},
	{",", token.COMMA}, {".", token.DOT}, {":", token.COLON}, {";", token.SEMI},
	{"?", token.QUESTION}, {"!", token.BANG}, {"&", token.AMP}, {"*", token.STAR},
	{"+", token.PLUS}, {"-", token.MINUS}, {"/", token.SLASH}, {"%", token.PERCENT},
	{"^", token.CARET}, {"|", token.PIPE}, {"~", token.TILDE},
	{"<", token.LT}, {">", token.GT}, {"=", token.ASSIGN},
}

// punctChars is the set of bytes that can appear in a run of punctuation to
// be considered for CUSTOM_OP collapsing when no fixed operator matches.
func isPunctByte(b byte) bool {
	switch b {
	case '+', '-', '*', '/', '%', '=', '<', '>', '!', '&', '|', '^', '~', '?', ':', '.':
		return true
	}
	return false
}

func (l *Lexer) scanOperator(start source.Pos) error {
	for _, op := range fixedOperators {
		if l.hasPrefix(op.text) {
			for range op.text {
				l.advance()
			}
			l.emit(op.kind, op.text, start)
			return nil
		}
	}
	if isPunctByte(l.peek()) {
		s := l.pos
		for !l.atEnd() && isPunctByte(l.peek()) {
			l.advance()
		}
		text := string(l.src[s:l.pos])
		// foldWidth narrows full-width forms to ASCII, but this run holds
		// only the ASCII bytes isPunctByte accepts, so it comes back
		// unchanged: a full-width glyph never reaches here, since any byte
		// >= 0x80 starts an identifier (isIdentStart).
		folded := foldWidth(text)
		l.emit(token.CUSTOM_OP, folded, start)
		return nil
	}
	r, size := utf8.DecodeRune(l.src[l.pos:])
	if r == utf8.RuneError && size <= 1 {
		return l.errf("unexpectedChar: invalid UTF-8 byte")
	}
	if unicode.IsLetter(r) {
		return l.scanIdent(start)
	}
	return l.errf("unexpectedChar: unexpected character %q", r)
}

func foldWidth(s string) string {
	var sb strings.Builder
	for _, r := range s {
		sb.WriteRune(width.Narrow.Rune(r))
	}
	return sb.String()
}

func (l *Lexer) hasPrefix(s string) bool {
	if l.pos+len(s) > len(l.src) {
		return false
	}
	return string(l.src[l.pos:l.pos+len(s)]) == s
}
