// Package mono implements the monomorphization pre-pass described in
// spec.md §4.6: it runs after type checking, collects every call site of a
// generic function, infers concrete type arguments, and produces one
// specialized AST copy per distinct (name, type-args) pair seen, keyed by a
// mangled name. Grounded on original_source/src/semantic/generics/
// monomorphizer.h (GenericInstantiation/mangleTypeArgs/instantiatedNames_ —
// a dedup set of mangled names, not re-instantiated), since the teacher's
// Go-subset compiler has no generics to model this on.
package mono

import (
	"strings"

	"github.com/windstream-lang/windstreamc/internal/ast"
	"github.com/windstream-lang/windstreamc/internal/check"
	"github.com/windstream-lang/windstreamc/internal/types"
)

// Instantiation is one recorded specialization of a generic function.
type Instantiation struct {
	BaseName    string
	TypeArgs    []*types.Type
	MangledName string
	Specialized *ast.FuncDecl
}

// Monomorphizer collects generic call sites and produces specialized copies.
type Monomorphizer struct {
	reg    *types.Registry
	chk    *check.Checker
	generic map[string]*ast.FuncDecl // name -> declaration, only entries with TypeParams
	seen    map[string]bool          // mangled names already instantiated
	order   []*Instantiation         // instantiation order, for deterministic codegen emission
}

// New creates a Monomorphizer that reads inferred expression types from chk.
func New(reg *types.Registry, chk *check.Checker) *Monomorphizer {
	return &Monomorphizer{
		reg:     reg,
		chk:     chk,
		generic: map[string]*ast.FuncDecl{},
		seen:    map[string]bool{},
	}
}

// Instantiations returns every recorded specialization, in first-seen order.
func (m *Monomorphizer) Instantiations() []*Instantiation { return m.order }

// Run collects generic function declarations, walks every call site in
// prog, and returns the set of specializations required. It does not
// mutate prog; call sites are rewritten to the mangled name separately by
// the code generator (spec.md §4.6: "Call sites use the mangled name when
// calling"), which looks up the mangled name for a given (callee, args) via
// MangledNameFor.
func (m *Monomorphizer) Run(prog *ast.Program) []*Instantiation {
	m.collectGenericDecls(prog)
	if len(m.generic) == 0 {
		return nil
	}
	for _, stmt := range prog.Statements {
		m.walkStmt(stmt)
	}
	return m.order
}

func (m *Monomorphizer) collectGenericDecls(prog *ast.Program) {
	for _, stmt := range prog.Statements {
		if fn, ok := stmt.(*ast.FuncDecl); ok && len(fn.TypeParams) > 0 {
			m.generic[fn.Name] = fn
		}
		if impl, ok := stmt.(*ast.ImplDecl); ok {
			for _, meth := range impl.Methods {
				if len(meth.TypeParams) > 0 {
					m.generic[meth.Name] = meth
				}
			}
		}
	}
}

// walkStmt recurses over every statement looking for call expressions; it
// does not need to be a full generalized visitor (spec.md §9 dropped the
// teacher's ~90-method visitor interface) since only Call sites matter here.
func (m *Monomorphizer) walkStmt(stmt ast.Statement) {
	switch s := stmt.(type) {
	case *ast.ExprStmt:
		m.walkExpr(s.X)
	case *ast.VarDecl:
		m.walkExpr(s.Init)
	case *ast.ConstDecl:
		m.walkExpr(s.Value)
	case *ast.DestructureDecl:
		m.walkExpr(s.Value)
	case *ast.CompoundAssignStmt:
		m.walkExpr(s.Target)
		m.walkExpr(s.Value)
	case *ast.BlockStmt:
		for _, st := range s.Statements {
			m.walkStmt(st)
		}
	case *ast.IfStmt:
		m.walkExpr(s.Cond)
		m.walkStmt(s.Then)
		for _, e := range s.Elifs {
			m.walkExpr(e.Cond)
			m.walkStmt(e.Body)
		}
		if s.Else != nil {
			m.walkStmt(s.Else)
		}
	case *ast.WhileStmt:
		m.walkExpr(s.Cond)
		m.walkStmt(s.Body)
	case *ast.ForInStmt:
		m.walkExpr(s.Iter)
		m.walkStmt(s.Body)
	case *ast.MatchStmt:
		m.walkExpr(s.Value)
		for _, c := range s.Cases {
			if c.Guard != nil {
				m.walkExpr(c.Guard)
			}
			m.walkStmt(c.Body)
		}
	case *ast.ReturnStmt:
		m.walkExpr(s.Value)
	case *ast.DeleteStmt:
		m.walkExpr(s.Operand)
	case *ast.LockStmt:
		m.walkExpr(s.Guard)
		m.walkStmt(s.Body)
	case *ast.UnsafeStmt:
		m.walkStmt(s.Body)
	case *ast.TryElseStmt:
		m.walkStmt(s.Try)
		m.walkStmt(s.Else)
	case *ast.FuncDecl:
		if len(s.TypeParams) == 0 {
			m.walkStmt(s.Body)
		}
	case *ast.ImplDecl:
		for _, meth := range s.Methods {
			if len(meth.TypeParams) == 0 {
				m.walkStmt(meth.Body)
			}
		}
	}
}

func (m *Monomorphizer) walkExpr(e ast.Expression) {
	switch x := e.(type) {
	case nil:
		return
	case *ast.InterpString:
		for _, p := range x.Parts {
			m.walkExpr(p.Expr)
		}
	case *ast.Binary:
		m.walkExpr(x.Left)
		m.walkExpr(x.Right)
	case *ast.Unary:
		m.walkExpr(x.Operand)
	case *ast.Ternary:
		m.walkExpr(x.Cond)
		m.walkExpr(x.Then)
		m.walkExpr(x.Else)
	case *ast.Call:
		for _, a := range x.Args {
			m.walkExpr(a.Value)
		}
		m.walkExpr(x.Callee)
		m.tryInstantiate(x)
	case *ast.Member:
		m.walkExpr(x.Receiver)
	case *ast.Index:
		m.walkExpr(x.Receiver)
		m.walkExpr(x.Index)
	case *ast.ListLit:
		for _, el := range x.Elems {
			m.walkExpr(el)
		}
	case *ast.RecordLit:
		for _, f := range x.Fields {
			m.walkExpr(f.Value)
		}
	case *ast.MapLit:
		for _, en := range x.Entries {
			m.walkExpr(en.Key)
			m.walkExpr(en.Value)
		}
	case *ast.RangeLit:
		m.walkExpr(x.Start)
		m.walkExpr(x.End)
		m.walkExpr(x.Step)
	case *ast.Lambda:
		m.walkExpr(x.Body)
	case *ast.ListComprehension:
		m.walkExpr(x.Iter)
		m.walkExpr(x.Elem)
		m.walkExpr(x.Guard)
	case *ast.AddressOf:
		m.walkExpr(x.Operand)
	case *ast.Deref:
		m.walkExpr(x.Operand)
	case *ast.NewExpr:
		for _, a := range x.Args {
			m.walkExpr(a.Value)
		}
	case *ast.Cast:
		m.walkExpr(x.Operand)
	case *ast.Await:
		m.walkExpr(x.Operand)
	case *ast.Spawn:
		m.walkExpr(x.Call)
	case *ast.AssignExpr:
		m.walkExpr(x.Target)
		m.walkExpr(x.Value)
	case *ast.Propagate:
		m.walkExpr(x.Operand)
	case *ast.MakeSync:
		m.walkExpr(x.Capacity)
	case *ast.SyncOp:
		m.walkExpr(x.Receiver)
		for _, a := range x.Args {
			m.walkExpr(a)
		}
	}
}

// tryInstantiate checks whether call targets a known generic function and,
// if so, infers type arguments and records an instantiation.
func (m *Monomorphizer) tryInstantiate(call *ast.Call) {
	id, ok := call.Callee.(*ast.Ident)
	if !ok {
		return
	}
	fn, ok := m.generic[id.Name]
	if !ok {
		return
	}
	args := m.inferTypeArgs(fn, call)
	mangled := MangleName(fn.Name, args)
	if m.seen[mangled] {
		return
	}
	m.seen[mangled] = true
	subst := make(map[string]string, len(fn.TypeParams))
	for i, tp := range fn.TypeParams {
		if i < len(args) {
			subst[tp.Name] = args[i].String()
		}
	}
	spec := specializeFunc(fn, subst, mangled)
	inst := &Instantiation{BaseName: fn.Name, TypeArgs: args, MangledName: mangled, Specialized: spec}
	m.order = append(m.order, inst)
}

// inferTypeArgs implements spec.md §4.6's inference rule: float-literal ->
// float, int-literal -> int, identifier whose declared type is known ->
// that type; any other argument takes the type the checker recorded for
// it, and `any` only when there is none.
func (m *Monomorphizer) inferTypeArgs(fn *ast.FuncDecl, call *ast.Call) []*types.Type {
	out := make([]*types.Type, len(fn.TypeParams))
	for i := range fn.TypeParams {
		out[i] = m.reg.MustLookup("any")
	}
	paramIndexOf := map[string]int{}
	for i, tp := range fn.TypeParams {
		paramIndexOf[tp.Name] = i
	}
	for argIdx, a := range call.Args {
		if argIdx >= len(fn.Params) {
			break
		}
		pt := fn.Params[argIdx].Type
		if pt == nil || pt.Name == "" {
			continue
		}
		slot, isTypeParam := paramIndexOf[pt.Name]
		if !isTypeParam {
			continue
		}
		out[slot] = m.inferArgType(a.Value)
	}
	return out
}

func (m *Monomorphizer) inferArgType(e ast.Expression) *types.Type {
	switch e.(type) {
	case *ast.FloatLit:
		return m.reg.MustLookup("float")
	case *ast.IntLit:
		return m.reg.MustLookup("int")
	}
	if id, ok := e.(*ast.Ident); ok {
		if t, known := m.lookupIdentType(id); known {
			return t
		}
	}
	if t, ok := m.chk.TypeOf(e); ok && t != nil {
		return t
	}
	return m.reg.MustLookup("any")
}

func (m *Monomorphizer) lookupIdentType(id *ast.Ident) (*types.Type, bool) {
	if t, ok := m.chk.TypeOf(id); ok && t != nil {
		return t, true
	}
	return nil, false
}

// MangleName builds the `$`-joined mangled name for a generic instantiation
// (spec.md §4.6: "assign a mangled name ... baseName + $-joined concrete
// type strings"), matching the teacher-independent original_source
// mangleTypeArgs convention. Type strings are joined without escaping, so
// a type string that itself contains `$` can yield an ambiguous name.
func MangleName(base string, args []*types.Type) string {
	if len(args) == 0 {
		return base
	}
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, base)
	for _, a := range args {
		parts = append(parts, a.String())
	}
	return strings.Join(parts, "$")
}
