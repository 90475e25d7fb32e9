// Package check implements the type checker described in spec.md §4.5: a
// single pass over the parsed program that infers a type for every
// expression (stored by AST node identity), validates calls/fields/trait
// impls, and accumulates diagnostics without ever aborting early. Grounded
// on the teacher's std/compiler/frontend.go ValidateModule/validateNode
// pattern (walk the tree, push into a shared *[]string error collector,
// never panic), generalized from symbol-existence checks into full
// expression type inference since this spec's type system is much richer
// than the teacher's Go-subset.
package check

import (
	"strings"

	"github.com/windstream-lang/windstreamc/internal/ast"
	"github.com/windstream-lang/windstreamc/internal/source"
	"github.com/windstream-lang/windstreamc/internal/symtab"
	"github.com/windstream-lang/windstreamc/internal/types"
)

// Checker walks a Program, inferring and recording a type for every
// expression node.
type Checker struct {
	reg    *types.Registry
	syms   *symtab.Table
	diags  *source.Bag
	result map[ast.Expression]*types.Type

	loopDepth  int
	funcDepth  int
	curReturn  *types.Type
}

// New creates a Checker with a freshly seeded type registry.
func New() *Checker {
	return &Checker{
		reg:    types.NewRegistry(),
		syms:   symtab.New(),
		diags:  &source.Bag{},
		result: map[ast.Expression]*types.Type{},
	}
}

// Registry exposes the type registry so the monomorphizer and code
// generator can reuse it after checking completes.
func (c *Checker) Registry() *types.Registry { return c.reg }

// Symbols exposes the symbol table built while checking.
func (c *Checker) Symbols() *symtab.Table { return c.syms }

// Diagnostics exposes the accumulated diagnostic bag.
func (c *Checker) Diagnostics() *source.Bag { return c.diags }

// TypeOf returns the inferred type of expr, previously recorded by Check.
func (c *Checker) TypeOf(expr ast.Expression) (*types.Type, bool) {
	t, ok := c.result[expr]
	return t, ok
}

func (c *Checker) setType(e ast.Expression, t *types.Type) *types.Type {
	c.result[e] = t
	return t
}

// Check type-checks an entire program, always running to completion (spec.md
// §4.5: "type checking always runs to completion so the user sees every
// problem").
func (c *Checker) Check(prog *ast.Program) {
	c.registerTopLevelTypes(prog)
	for _, stmt := range prog.Statements {
		c.checkStmt(stmt)
	}
}

// registerTopLevelTypes does a first pass installing every record/union/
// enum/trait/type-alias name in the registry before bodies are checked, so
// forward references between declarations resolve.
func (c *Checker) registerTopLevelTypes(prog *ast.Program) {
	for _, stmt := range prog.Statements {
		switch d := stmt.(type) {
		case *ast.RecordDecl:
			c.reg.RegisterNamed(d.Name, &types.Type{Kind: types.Record, Name: d.Name})
		case *ast.UnionDecl:
			c.reg.RegisterNamed(d.Name, &types.Type{Kind: types.Union, Name: d.Name})
		case *ast.EnumDecl:
			c.reg.RegisterNamed(d.Name, &types.Type{Kind: types.Union, Name: d.Name})
		case *ast.TraitDecl:
			c.reg.RegisterTrait(&types.TraitDef{Name: d.Name, Supers: d.Supers, Methods: c.traitMethodSigs(d)})
		}
	}
	// second sub-pass: now that every name exists, fill in record/union
	// field types, which may reference other named types declared later.
	for _, stmt := range prog.Statements {
		switch d := stmt.(type) {
		case *ast.RecordDecl:
			t, _ := c.reg.Lookup(d.Name)
			t.Fields = c.resolveFields(d.Fields)
		case *ast.UnionDecl:
			t, _ := c.reg.Lookup(d.Name)
			t.Fields = c.resolveFields(d.Fields)
		}
	}
}

func (c *Checker) traitMethodSigs(d *ast.TraitDecl) []types.MethodSig {
	sigs := make([]types.MethodSig, 0, len(d.Methods))
	for _, m := range d.Methods {
		params := make([]*types.Type, 0, len(m.Params))
		for _, p := range m.Params {
			params = append(params, c.resolveTypeExpr(p.Type))
		}
		sigs = append(sigs, types.MethodSig{
			Name: m.Name, Params: params, Result: c.resolveTypeExpr(m.ReturnType), HasDefault: m.HasDefault,
		})
	}
	return sigs
}

func (c *Checker) resolveFields(fields []ast.RecordField) []types.Field {
	out := make([]types.Field, 0, len(fields))
	for _, f := range fields {
		out = append(out, types.Field{Name: f.Name, Type: c.resolveTypeExpr(f.Type)})
	}
	return out
}

// resolveTypeExpr turns a parsed *ast.TypeExpr into a canonical *types.Type,
// per spec.md §4.4's fromString grammar, but working directly off the AST
// rather than round-tripping through a string.
func (c *Checker) resolveTypeExpr(te *ast.TypeExpr) *types.Type {
	if te == nil {
		return c.reg.MustLookup("void")
	}
	var t *types.Type
	switch {
	case te.PointerTo != nil:
		t = &types.Type{Kind: types.Pointer, Elem: c.resolveTypeExpr(te.PointerTo)}
	case te.RefTo != nil:
		t = &types.Type{Kind: types.Reference, Mutable: te.RefMutable, Elem: c.resolveTypeExpr(te.RefTo)}
	case te.ListOf != nil:
		t = &types.Type{Kind: types.List, Elem: c.resolveTypeExpr(te.ListOf)}
	case te.ArrayOf != nil:
		t = &types.Type{Kind: types.FixedArray, Elem: c.resolveTypeExpr(te.ArrayOf), ArrayLen: te.ArraySize}
	default:
		base, ok := c.reg.Lookup(te.Name)
		if !ok {
			c.diags.Errorf(te.Pos, "unknownType: %q is not a known type", te.Name)
			base = c.reg.MustLookup("unknown")
		}
		if len(te.GenericArgs) > 0 {
			args := make([]*types.Type, 0, len(te.GenericArgs))
			for _, a := range te.GenericArgs {
				args = append(args, c.resolveTypeExpr(a))
			}
			t = types.GenericType(base, args)
		} else {
			t = base
		}
	}
	if te.Nullable {
		t = t.Clone()
		t.Nullable = true
	}
	return t
}

// --- Statements ---

func (c *Checker) checkStmt(stmt ast.Statement) {
	switch s := stmt.(type) {
	case *ast.ExprStmt:
		c.checkExpr(s.X)
	case *ast.VarDecl:
		c.checkVarDecl(s)
	case *ast.ConstDecl:
		c.checkExpr(s.Value)
	case *ast.DestructureDecl:
		c.checkDestructure(s)
	case *ast.CompoundAssignStmt:
		c.checkExpr(s.Target)
		c.checkExpr(s.Value)
	case *ast.BlockStmt:
		c.checkBlock(s, symtab.ScopeBlock)
	case *ast.IfStmt:
		c.checkExpr(s.Cond)
		c.checkBlock(s.Then, symtab.ScopeBlock)
		for _, elif := range s.Elifs {
			c.checkExpr(elif.Cond)
			c.checkBlock(elif.Body, symtab.ScopeBlock)
		}
		if s.Else != nil {
			c.checkBlock(s.Else, symtab.ScopeBlock)
		}
	case *ast.WhileStmt:
		c.checkExpr(s.Cond)
		c.loopDepth++
		c.checkBlock(s.Body, symtab.ScopeLoop)
		c.loopDepth--
	case *ast.ForInStmt:
		iterType := c.checkExpr(s.Iter)
		c.syms.PushScope(symtab.ScopeLoop)
		elem := c.elementTypeOf(iterType)
		c.syms.Define(&symtab.Symbol{Name: s.VarName, Kind: symtab.KindVar, Type: elem})
		c.loopDepth++
		for _, st := range s.Body.Statements {
			c.checkStmt(st)
		}
		c.loopDepth--
		c.popScopeWarnUnused()
	case *ast.MatchStmt:
		c.checkMatch(s)
	case *ast.ReturnStmt:
		if s.Value != nil {
			c.checkExpr(s.Value)
		}
	case *ast.BreakStmt, *ast.ContinueStmt:
		if !c.syms.InLoop() && c.loopDepth == 0 {
			c.diags.Errorf(stmt.Location(), "breakOutsideLoop: break/continue used outside a loop")
		}
	case *ast.DeleteStmt:
		c.checkExpr(s.Operand)
	case *ast.LockStmt:
		c.checkExpr(s.Guard)
		c.checkBlock(s.Body, symtab.ScopeBlock)
	case *ast.UnsafeStmt:
		c.syms.PushScope(symtab.ScopeUnsafe)
		for _, st := range s.Body.Statements {
			c.checkStmt(st)
		}
		c.popScopeWarnUnused()
	case *ast.TryElseStmt:
		c.checkBlock(s.Try, symtab.ScopeBlock)
		c.checkBlock(s.Else, symtab.ScopeBlock)
	case *ast.FuncDecl:
		c.checkFuncDecl(s)
	case *ast.RecordDecl, *ast.UnionDecl, *ast.EnumDecl, *ast.TypeAliasDecl:
		// types were already registered by registerTopLevelTypes.
	case *ast.TraitDecl:
		// already registered; default-method bodies are checked as part of
		// impl validation when no override is supplied.
	case *ast.ImplDecl:
		c.checkImplDecl(s)
	case *ast.ExternBlock, *ast.UseDecl, *ast.ImportStmt, *ast.ModuleDecl,
		*ast.MacroDecl, *ast.SyntaxMacroDecl, *ast.LayerDecl, *ast.AsmStmt:
		// extern signatures need no body checking; macro/syntax/layer/module
		// bodies are opaque to this pass per spec.md §1; asm operands are
		// checked structurally by codegen, not the type checker.
	}
}

func (c *Checker) checkBlock(b *ast.BlockStmt, kind symtab.ScopeKind) {
	if b == nil {
		return
	}
	c.syms.PushScope(kind)
	for _, st := range b.Statements {
		c.checkStmt(st)
	}
	c.popScopeWarnUnused()
}

// popScopeWarnUnused pops the current scope and emits the unused-variable
// warnings described in spec.md §4.5: any VARIABLE/PARAMETER symbol whose
// isUsed is false and whose name doesn't start with `_` or `$`.
func (c *Checker) popScopeWarnUnused() {
	scope := c.syms.PopScope()
	for _, sym := range scope.All() {
		if (sym.Kind != symtab.KindVar && sym.Kind != symtab.KindParam) || sym.IsUsed {
			continue
		}
		if strings.HasPrefix(sym.Name, "_") || strings.HasPrefix(sym.Name, "$") {
			continue
		}
		c.diags.Warnf(source.Pos{}, "unusedVariable: %q is never used", sym.Name)
	}
}

func (c *Checker) checkVarDecl(s *ast.VarDecl) {
	var declared *types.Type
	if s.Type != nil {
		declared = c.resolveTypeExpr(s.Type)
	}
	var inferred *types.Type
	if s.Init != nil {
		inferred = c.checkExpr(s.Init)
	}
	t := declared
	if t == nil {
		t = inferred
	}
	if t == nil {
		t = c.reg.MustLookup("unknown")
	}
	c.syms.Define(&symtab.Symbol{Name: s.Name, Kind: symtab.KindVar, Type: t, Mutable: s.Mutable})
}

// checkDestructure resolves element types for tuple and record-shape
// destructuring declarations, per spec.md §4.5: "for tuple shape (a, b, c) =
// rhs, element types are read from a list type if known; for record shape
// {a, b, c} = rhs, field types are read from a record type."
func (c *Checker) checkDestructure(s *ast.DestructureDecl) {
	rhsType := c.checkExpr(s.Value)
	for _, pat := range s.Patterns {
		t := c.reg.MustLookup("unknown")
		if s.IsRecordShape {
			if rhsType != nil && (rhsType.Kind == types.Record || rhsType.Kind == types.Union) {
				field := pat.Field
				if field == "" {
					field = pat.Name
				}
				for _, f := range rhsType.Fields {
					if f.Name == field {
						t = f.Type
						break
					}
				}
			}
		} else if rhsType != nil && rhsType.Kind == types.List {
			t = rhsType.Elem
		}
		c.syms.Define(&symtab.Symbol{Name: pat.Name, Kind: symtab.KindVar, Type: t, Mutable: s.Mutable})
	}
}

func (c *Checker) checkMatch(s *ast.MatchStmt) {
	c.checkExpr(s.Value)
	var unified *types.Type
	for _, cs := range s.Cases {
		c.syms.PushScope(symtab.ScopeBlock)
		if cs.Pattern != nil && !cs.Pattern.Wildcard && cs.Pattern.Ident != "" && cs.Pattern.Literal == nil {
			// wildcard `_` does not participate in pattern type inference
			// (spec.md §4.5); a plain identifier binds the matched value.
			c.syms.Define(&symtab.Symbol{Name: cs.Pattern.Ident, Kind: symtab.KindVar, Type: c.reg.MustLookup("unknown")})
		} else if cs.Pattern != nil && cs.Pattern.Literal != nil {
			c.checkExpr(cs.Pattern.Literal)
		}
		if cs.Guard != nil {
			c.checkExpr(cs.Guard)
		}
		for _, st := range cs.Body.Statements {
			c.checkStmt(st)
		}
		if len(cs.Body.Statements) > 0 {
			if es, ok := cs.Body.Statements[len(cs.Body.Statements)-1].(*ast.ExprStmt); ok {
				t := c.checkExpr(es.X)
				unified = c.unify(unified, t)
			}
		}
		c.popScopeWarnUnused()
	}
	_ = unified // arm-unification result; not recorded, since a MatchStmt has no expression entry to attach it to
}

func (c *Checker) unify(a, b *types.Type) *types.Type {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	if a.Equals(b) {
		return a
	}
	if a.IsNumeric() && b.IsNumeric() && (a.IsFloat() || b.IsFloat()) {
		return c.reg.MustLookup("f64")
	}
	return c.reg.MustLookup("any")
}

func (c *Checker) checkFuncDecl(d *ast.FuncDecl) {
	retType := c.resolveTypeExpr(d.ReturnType)
	c.syms.PushScope(symtab.ScopeFunction)
	c.funcDepth++
	prevReturn := c.curReturn
	c.curReturn = retType
	for _, p := range d.Params {
		c.syms.Define(&symtab.Symbol{Name: p.Name, Kind: symtab.KindParam, Type: c.resolveTypeExpr(p.Type)})
	}
	if d.Body != nil {
		for _, st := range d.Body.Statements {
			c.checkStmt(st)
		}
	}
	c.curReturn = prevReturn
	c.funcDepth--
	c.popScopeWarnUnused()
}

// checkImplDecl validates trait-impl completeness when TraitName is set, per
// spec.md §4.4: "validates that every non-default method from the trait and
// all super-traits is supplied; missing methods are diagnostics at the impl
// site."
func (c *Checker) checkImplDecl(d *ast.ImplDecl) {
	forType := c.resolveTypeExpr(d.ForType)
	for _, m := range d.Methods {
		c.checkFuncDecl(m)
	}
	if d.TraitName == "" {
		return
	}
	provided := map[string]bool{}
	for _, m := range d.Methods {
		provided[m.Name] = true
	}
	missing := c.reg.ValidateImplCompleteness(d.TraitName, provided)
	for _, name := range missing {
		c.diags.Errorf(d.Pos, "incompleteImpl: impl of trait %q for %s is missing method %q", d.TraitName, forType, name)
	}
	labels := make(map[string]string, len(provided))
	for name := range provided {
		labels[name] = ""
	}
	c.reg.RegisterImpl(&types.TraitImpl{TraitName: d.TraitName, ForType: forType, Methods: labels})
}

func (c *Checker) elementTypeOf(t *types.Type) *types.Type {
	if t == nil {
		return c.reg.MustLookup("unknown")
	}
	switch t.Kind {
	case types.List, types.FixedArray, types.Channel:
		return t.Elem
	default:
		return c.reg.MustLookup("unknown")
	}
}
