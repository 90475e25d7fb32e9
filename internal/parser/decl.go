package parser

import (
	"github.com/windstream-lang/windstreamc/internal/ast"
	"github.com/windstream-lang/windstreamc/internal/token"
)

// parseFuncDecl parses an unmodified `fn name(...) -> T:` declaration.
func (p *Parser) parseFuncDecl(attrs []ast.Attribute) ast.Statement {
	return p.parseFuncSignatureAndBody(attrs, ast.FuncFlags{}, ast.ConvDefault)
}

// parseModifiedFuncDecl handles a function declaration preceded by one or
// more modifier keywords (pub/hot/cold/naked/async/variadic/extern) and/or a
// calling-convention keyword, per spec.md §3's function declaration flags.
func (p *Parser) parseModifiedFuncDecl(attrs []ast.Attribute) ast.Statement {
	return p.parseModifiedFuncSignature(attrs)
}

func (p *Parser) parseModifiedFuncSignature(attrs []ast.Attribute) *ast.FuncDecl {
	var flags ast.FuncFlags
	conv := ast.ConvDefault
	for {
		switch p.peek().Kind {
		case token.PUB:
			flags.Pub = true
			p.advance()
		case token.HOT:
			flags.Hot = true
			p.advance()
		case token.COLD:
			flags.Cold = true
			p.advance()
		case token.NAKED:
			flags.Naked = true
			p.advance()
		case token.ASYNC:
			flags.Async = true
			p.advance()
		case token.VARIADIC:
			flags.Variadic = true
			p.advance()
		case token.EXTERN:
			flags.Extern = true
			p.advance()
		case token.CDECL:
			conv = ast.ConvCDecl
			p.advance()
		case token.STDCALL:
			conv = ast.ConvStdCall
			p.advance()
		case token.WIN64:
			conv = ast.ConvWin64
			p.advance()
		default:
			return p.parseFuncSignatureAndBody(attrs, flags, conv)
		}
	}
}

func (p *Parser) parseFuncSignatureAndBody(attrs []ast.Attribute, flags ast.FuncFlags, conv ast.CallingConvention) *ast.FuncDecl {
	tok := p.expect(token.FN)
	name := p.expectIdent()
	typeParams := p.parseTypeParams()
	p.expect(token.LPAREN)
	params := p.parseParamList(token.RPAREN)
	p.expect(token.RPAREN)
	var ret *ast.TypeExpr
	if p.match(token.ARROW) {
		ret = p.parseType()
	}
	decl := &ast.FuncDecl{
		Base: at(tok.Pos), Name: name, TypeParams: typeParams, Params: params,
		ReturnType: ret, Conv: conv, Flags: flags, Attrs: attrs,
	}
	if flags.Extern || !p.at(token.COLON) {
		return decl
	}
	decl.Body = p.parseColonBlock()
	return decl
}

func (p *Parser) parseParamList(end token.Kind) []*ast.Param {
	var params []*ast.Param
	for !p.at(end) && !p.atEnd() {
		ptok := p.peek()
		name := p.expectIdent()
		param := &ast.Param{Base: at(ptok.Pos), Name: name}
		if p.match(token.COLON) {
			param.Type = p.parseType()
		}
		params = append(params, param)
		if !p.match(token.COMMA) {
			break
		}
	}
	return params
}

// bitfieldWidth reports whether a sized-integer type name like "u3" denotes
// a sub-byte bitfield member (as opposed to an ordinary sized integer like
// u8/u16/u32/u64), per spec.md §3's record bitfield members.
func bitfieldWidth(name string) (int, bool) {
	if len(name) < 2 || name[0] != 'u' {
		return 0, false
	}
	w := 0
	for _, c := range name[1:] {
		if c < '0' || c > '9' {
			return 0, false
		}
		w = w*10 + int(c-'0')
	}
	if w == 0 || w >= 64 || w%8 == 0 {
		return 0, false
	}
	return w, true
}

func (p *Parser) parseRecordField() ast.RecordField {
	name := p.expectIdent()
	p.expect(token.COLON)
	typ := p.parseType()
	field := ast.RecordField{Name: name, Type: typ}
	if w, ok := bitfieldWidth(typ.Name); ok {
		field.Bitfield = &ast.BitfieldSpec{FieldName: name, BitWidth: w, BitOffset: -1}
	}
	return field
}

func (p *Parser) parseRecordDecl(attrs []ast.Attribute) ast.Statement {
	tok := p.advance() // 'record'
	name := p.expectIdent()
	typeParams := p.parseTypeParams()
	decl := &ast.RecordDecl{Base: at(tok.Pos), Name: name, TypeParams: typeParams, Attrs: attrs}
	p.expect(token.COLON)
	p.skipNewlines()
	if !p.at(token.INDENT) {
		return decl
	}
	p.advance()
	for !p.at(token.DEDENT) && !p.atEnd() {
		p.skipNewlines()
		if p.at(token.DEDENT) || p.atEnd() {
			break
		}
		decl.Fields = append(decl.Fields, p.parseRecordField())
		p.skipTrailingNewline()
	}
	if p.at(token.DEDENT) {
		p.advance()
	}
	return decl
}

func (p *Parser) parseUnionDecl() ast.Statement {
	tok := p.advance() // 'union'
	name := p.expectIdent()
	typeParams := p.parseTypeParams()
	decl := &ast.UnionDecl{Base: at(tok.Pos), Name: name, TypeParams: typeParams}
	p.expect(token.COLON)
	p.skipNewlines()
	if !p.at(token.INDENT) {
		return decl
	}
	p.advance()
	for !p.at(token.DEDENT) && !p.atEnd() {
		p.skipNewlines()
		if p.at(token.DEDENT) || p.atEnd() {
			break
		}
		decl.Fields = append(decl.Fields, p.parseRecordField())
		p.skipTrailingNewline()
	}
	if p.at(token.DEDENT) {
		p.advance()
	}
	return decl
}

func (p *Parser) parseEnumDecl() ast.Statement {
	tok := p.advance() // 'enum'
	name := p.expectIdent()
	decl := &ast.EnumDecl{Base: at(tok.Pos), Name: name}
	p.expect(token.COLON)
	p.skipNewlines()
	if !p.at(token.INDENT) {
		return decl
	}
	p.advance()
	for !p.at(token.DEDENT) && !p.atEnd() {
		p.skipNewlines()
		if p.at(token.DEDENT) || p.atEnd() {
			break
		}
		vname := p.expectIdent()
		variant := ast.EnumVariant{Name: vname}
		if p.match(token.LPAREN) {
			for !p.at(token.RPAREN) && !p.atEnd() {
				variant.Fields = append(variant.Fields, p.parseType())
				if !p.match(token.COMMA) {
					break
				}
			}
			p.expect(token.RPAREN)
		}
		decl.Variants = append(decl.Variants, variant)
		p.skipTrailingNewline()
	}
	if p.at(token.DEDENT) {
		p.advance()
	}
	return decl
}

func (p *Parser) parseTypeAliasDecl() ast.Statement {
	tok := p.advance() // 'type'
	name := p.expectIdent()
	p.expect(token.ASSIGN)
	t := p.parseType()
	return &ast.TypeAliasDecl{Base: at(tok.Pos), Name: name, Type: t}
}

func (p *Parser) parseMethodSig() ast.MethodSig {
	p.expect(token.FN)
	name := p.expectIdent()
	p.expect(token.LPAREN)
	params := p.parseParamList(token.RPAREN)
	p.expect(token.RPAREN)
	var ret *ast.TypeExpr
	if p.match(token.ARROW) {
		ret = p.parseType()
	}
	sig := ast.MethodSig{Name: name, Params: params, ReturnType: ret}
	if p.at(token.COLON) {
		sig.HasDefault = true
		sig.Default = p.parseColonBlock()
	}
	return sig
}

func (p *Parser) parseTraitDecl() ast.Statement {
	tok := p.advance() // 'trait'
	name := p.expectIdent()
	typeParams := p.parseTypeParams()
	decl := &ast.TraitDecl{Base: at(tok.Pos), Name: name, TypeParams: typeParams}
	p.expect(token.COLON)
	if p.at(token.IDENT) {
		decl.Supers = append(decl.Supers, p.advance().Lexeme)
		for p.match(token.PLUS) {
			decl.Supers = append(decl.Supers, p.expectIdent())
		}
		p.expect(token.COLON)
	}
	p.skipNewlines()
	if !p.at(token.INDENT) {
		return decl
	}
	p.advance()
	for !p.at(token.DEDENT) && !p.atEnd() {
		p.skipNewlines()
		if p.at(token.DEDENT) || p.atEnd() {
			break
		}
		decl.Methods = append(decl.Methods, p.parseMethodSig())
		p.skipTrailingNewline()
	}
	if p.at(token.DEDENT) {
		p.advance()
	}
	return decl
}

func (p *Parser) parseImplMethod() *ast.FuncDecl {
	attrs := p.parseAttributes()
	if p.at(token.FN) {
		return p.parseFuncSignatureAndBody(attrs, ast.FuncFlags{}, ast.ConvDefault)
	}
	return p.parseModifiedFuncSignature(attrs)
}

func (p *Parser) parseImplDecl() ast.Statement {
	tok := p.advance() // 'impl'
	decl := &ast.ImplDecl{Base: at(tok.Pos)}
	name := p.expectIdent()
	var typeArgs []*ast.TypeExpr
	if p.at(token.LBRACKET) {
		p.advance()
		for !p.at(token.RBRACKET) && !p.atEnd() {
			typeArgs = append(typeArgs, p.parseType())
			if !p.match(token.COMMA) {
				break
			}
		}
		p.expect(token.RBRACKET)
	}
	if p.match(token.FOR) {
		decl.TraitName = name
		decl.TypeArgs = typeArgs
		decl.ForType = p.parseType()
	} else {
		decl.ForType = &ast.TypeExpr{Base: at(tok.Pos), Name: name, GenericArgs: typeArgs}
	}
	p.expect(token.COLON)
	p.skipNewlines()
	if !p.at(token.INDENT) {
		return decl
	}
	p.advance()
	for !p.at(token.DEDENT) && !p.atEnd() {
		p.skipNewlines()
		if p.at(token.DEDENT) || p.atEnd() {
			break
		}
		decl.Methods = append(decl.Methods, p.parseImplMethod())
		p.skipTrailingNewline()
	}
	if p.at(token.DEDENT) {
		p.advance()
	}
	return decl
}

func (p *Parser) parseImportPath() string {
	if p.at(token.STRING) {
		return p.advance().Literal.String
	}
	path := p.expectIdent()
	for p.match(token.DOT) {
		path += "." + p.expectIdent()
	}
	return path
}

func (p *Parser) parseUseOrImport(isUse bool) ast.Statement {
	tok := p.advance() // USE or IMPORT
	path := p.parseImportPath()
	if isUse {
		return &ast.UseDecl{Base: at(tok.Pos), Path: path}
	}
	return &ast.ImportStmt{Base: at(tok.Pos), Path: path}
}

func (p *Parser) parseModuleDecl() ast.Statement {
	tok := p.advance() // 'module'
	name := p.expectIdent()
	decl := &ast.ModuleDecl{Base: at(tok.Pos), Name: name}
	p.expect(token.COLON)
	p.skipNewlines()
	if !p.at(token.INDENT) {
		return decl
	}
	p.advance()
	for !p.at(token.DEDENT) && !p.atEnd() {
		p.skipNewlines()
		if p.at(token.DEDENT) || p.atEnd() {
			break
		}
		if s := p.parseDeclOrStmt(); s != nil {
			decl.Body = append(decl.Body, s)
		}
	}
	if p.at(token.DEDENT) {
		p.advance()
	}
	return decl
}

func (p *Parser) parseExternFuncSig() ast.ExternFuncDecl {
	p.expect(token.FN)
	name := p.expectIdent()
	p.expect(token.LPAREN)
	var params []ast.ExternParam
	variadic := false
	for !p.at(token.RPAREN) && !p.atEnd() {
		if p.at(token.DOTDOT) {
			p.advance()
			variadic = true
			break
		}
		pname := p.expectIdent()
		var ptype *ast.TypeExpr
		if p.match(token.COLON) {
			ptype = p.parseType()
		}
		params = append(params, ast.ExternParam{Name: pname, Type: ptype})
		if !p.match(token.COMMA) {
			break
		}
	}
	p.expect(token.RPAREN)
	var ret *ast.TypeExpr
	if p.match(token.ARROW) {
		ret = p.parseType()
	}
	return ast.ExternFuncDecl{Name: name, Params: params, ReturnType: ret, Variadic: variadic}
}

// parseExternBlock parses `extern "library.dll" [cdecl|stdcall|win64]:`
// followed by an indented block of bare function signatures (spec.md
// §4.10.9 FFI).
func (p *Parser) parseExternBlock() ast.Statement {
	tok := p.advance() // 'extern'
	lib := ""
	if p.at(token.STRING) {
		lib = p.advance().Literal.String
	}
	conv := ast.ConvDefault
	switch p.peek().Kind {
	case token.CDECL:
		conv = ast.ConvCDecl
		p.advance()
	case token.STDCALL:
		conv = ast.ConvStdCall
		p.advance()
	case token.WIN64:
		conv = ast.ConvWin64
		p.advance()
	}
	decl := &ast.ExternBlock{Base: at(tok.Pos), Conv: conv, Library: lib}
	p.expect(token.COLON)
	p.skipNewlines()
	if !p.at(token.INDENT) {
		return decl
	}
	p.advance()
	for !p.at(token.DEDENT) && !p.atEnd() {
		p.skipNewlines()
		if p.at(token.DEDENT) || p.atEnd() {
			break
		}
		decl.Funcs = append(decl.Funcs, p.parseExternFuncSig())
		p.skipTrailingNewline()
	}
	if p.at(token.DEDENT) {
		p.advance()
	}
	return decl
}

// parseRawDecl captures an opaque macro/syntax-extension/layer declaration
// verbatim: these are out of the core pipeline's scope (spec.md §1) and are
// recorded as raw text for a downstream tool to interpret.
func (p *Parser) parseRawDecl(kind token.Kind, label string) ast.Statement {
	tok := p.advance()
	name := ""
	if p.at(token.IDENT) {
		name = p.advance().Lexeme
	}
	for !p.at(token.COLON) && !p.at(token.NEWLINE) && !p.atEnd() {
		p.advance()
	}
	raw := ""
	if p.match(token.COLON) {
		p.skipNewlines()
		raw = p.captureIndentedRaw()
	}
	switch kind {
	case token.MACRO:
		return &ast.MacroDecl{Base: at(tok.Pos), Name: name, Raw: raw}
	case token.SYNTAX:
		return &ast.SyntaxMacroDecl{Base: at(tok.Pos), Name: name, Raw: raw}
	default:
		return &ast.LayerDecl{Base: at(tok.Pos), Name: name, Raw: raw}
	}
}

// parseAsmStmt parses an inline-assembly statement: a template string
// followed by optional in(...)/out(...)/clobbers(...) operand clauses
// (spec.md §4.10.9).
func (p *Parser) parseAsmStmt() ast.Statement {
	tok := p.advance() // 'asm'
	text := ""
	if p.at(token.STRING) {
		text = p.advance().Literal.String
	}
	stmt := &ast.AsmStmt{Base: at(tok.Pos), Text: text}
	for !p.isStatementTerminator(p.peek().Kind) {
		if p.at(token.IDENT) && p.peek().Lexeme == "in" && p.peekAt(1).Kind == token.LPAREN {
			p.advance()
			stmt.Inputs = p.parseAsmOperands()
		} else if p.at(token.IDENT) && p.peek().Lexeme == "out" && p.peekAt(1).Kind == token.LPAREN {
			p.advance()
			stmt.Outputs = p.parseAsmOperands()
		} else if p.at(token.IDENT) && p.peek().Lexeme == "clobbers" && p.peekAt(1).Kind == token.LPAREN {
			p.advance()
			p.advance() // '('
			for !p.at(token.RPAREN) && !p.atEnd() {
				stmt.Clobbers = append(stmt.Clobbers, p.expectIdent())
				if !p.match(token.COMMA) {
					break
				}
			}
			p.expect(token.RPAREN)
		} else {
			p.advance()
		}
	}
	return stmt
}

func (p *Parser) parseAsmOperands() []ast.AsmOperand {
	p.expect(token.LPAREN)
	var ops []ast.AsmOperand
	for !p.at(token.RPAREN) && !p.atEnd() {
		constraint := p.expectIdent()
		p.expect(token.COLON)
		val := p.parseExpr(precAssignment)
		ops = append(ops, ast.AsmOperand{Constraint: constraint, Value: val})
		if !p.match(token.COMMA) {
			break
		}
	}
	p.expect(token.RPAREN)
	return ops
}
