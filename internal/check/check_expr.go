package check

import (
	"github.com/windstream-lang/windstreamc/internal/ast"
	"github.com/windstream-lang/windstreamc/internal/symtab"
	"github.com/windstream-lang/windstreamc/internal/token"
	"github.com/windstream-lang/windstreamc/internal/types"
)

// checkExpr infers and records the type of e, per the rules of spec.md
// §4.5. It never returns nil: unresolvable expressions get the `unknown`
// type so callers can keep walking without nil-checking every result.
func (c *Checker) checkExpr(e ast.Expression) *types.Type {
	if e == nil {
		return c.reg.MustLookup("void")
	}
	switch x := e.(type) {
	case *ast.IntLit:
		return c.setType(e, c.reg.MustLookup("int"))
	case *ast.FloatLit:
		return c.setType(e, c.reg.MustLookup("float"))
	case *ast.BoolLit:
		return c.setType(e, c.reg.MustLookup("bool"))
	case *ast.StringLit:
		return c.setType(e, c.reg.MustLookup("string"))
	case *ast.NilLit:
		return c.setType(e, c.reg.MustLookup("any"))
	case *ast.InterpString:
		for _, part := range x.Parts {
			if part.Expr != nil {
				c.checkExpr(part.Expr)
			}
		}
		return c.setType(e, c.reg.MustLookup("string"))
	case *ast.Ident:
		return c.setType(e, c.checkIdent(x))
	case *ast.Binary:
		return c.setType(e, c.checkBinary(x))
	case *ast.Unary:
		operand := c.checkExpr(x.Operand)
		if x.Op == token.NOT || x.Op == token.BANG {
			return c.setType(e, c.reg.MustLookup("bool"))
		}
		return c.setType(e, operand)
	case *ast.Ternary:
		c.checkExpr(x.Cond)
		thenT := c.checkExpr(x.Then)
		elseT := c.checkExpr(x.Else)
		return c.setType(e, c.unify(thenT, elseT))
	case *ast.Call:
		return c.setType(e, c.checkCall(x))
	case *ast.Member:
		return c.setType(e, c.checkMember(x))
	case *ast.Index:
		return c.setType(e, c.checkIndex(x))
	case *ast.ListLit:
		return c.setType(e, c.checkListLit(x))
	case *ast.RecordLit:
		return c.setType(e, c.checkRecordLit(x))
	case *ast.MapLit:
		return c.setType(e, c.checkMapLit(x))
	case *ast.RangeLit:
		c.checkExpr(x.Start)
		c.checkExpr(x.End)
		if x.Step != nil {
			c.checkExpr(x.Step)
		}
		return c.setType(e, &types.Type{Kind: types.List, Elem: c.reg.MustLookup("int")})
	case *ast.Lambda:
		return c.setType(e, c.checkLambda(x))
	case *ast.ListComprehension:
		return c.setType(e, c.checkListComprehension(x))
	case *ast.AddressOf:
		if !c.syms.InUnsafe() {
			c.diags.Errorf(x.Pos, "unsafeRequired: address-of requires an enclosing unsafe scope")
		}
		inner := c.checkExpr(x.Operand)
		return c.setType(e, &types.Type{Kind: types.Pointer, Elem: inner})
	case *ast.Deref:
		if !c.syms.InUnsafe() {
			c.diags.Errorf(x.Pos, "unsafeRequired: dereference requires an enclosing unsafe scope")
		}
		inner := c.checkExpr(x.Operand)
		if inner != nil && inner.Kind == types.Pointer {
			return c.setType(e, inner.Elem)
		}
		return c.setType(e, c.reg.MustLookup("unknown"))
	case *ast.NewExpr:
		return c.setType(e, c.checkNewExpr(x))
	case *ast.Cast:
		c.checkExpr(x.Operand)
		return c.setType(e, c.resolveTypeExpr(x.Type))
	case *ast.Await:
		c.checkExpr(x.Operand)
		return c.setType(e, c.reg.MustLookup("any"))
	case *ast.Spawn:
		c.checkExpr(x.Call)
		return c.setType(e, c.reg.MustLookup("any"))
	case *ast.AssignExpr:
		valType := c.checkExpr(x.Value)
		c.checkExpr(x.Target)
		c.markIdentUsed(x.Target)
		return c.setType(e, valType)
	case *ast.Propagate:
		inner := c.checkExpr(x.Operand)
		if inner != nil && inner.Kind == types.ErrorResult {
			return c.setType(e, inner.Elem)
		}
		return c.setType(e, inner)
	case *ast.DSLBlock:
		return c.setType(e, c.reg.MustLookup("string"))
	case *ast.MakeSync:
		return c.setType(e, c.checkMakeSync(x))
	case *ast.SyncOp:
		c.checkExpr(x.Receiver)
		for _, a := range x.Args {
			c.checkExpr(a)
		}
		return c.setType(e, c.reg.MustLookup("any"))
	}
	return c.reg.MustLookup("unknown")
}

func (c *Checker) markIdentUsed(e ast.Expression) {
	if id, ok := e.(*ast.Ident); ok {
		if sym, found := c.syms.Lookup(id.Name); found {
			sym.IsUsed = true
		}
	}
}

func (c *Checker) checkIdent(x *ast.Ident) *types.Type {
	sym, ok := c.syms.Lookup(x.Name)
	if !ok {
		c.diags.Errorf(x.Pos, "unresolvedSymbol: %q is not defined", x.Name)
		return c.reg.MustLookup("unknown")
	}
	sym.IsUsed = true
	return sym.Type
}

// checkBinary implements spec.md §4.5's numeric-promotion, string-concat,
// comparison, and and/or rules.
func (c *Checker) checkBinary(x *ast.Binary) *types.Type {
	left := c.checkExpr(x.Left)
	right := c.checkExpr(x.Right)
	switch x.Op {
	case token.AND, token.OR, token.ANDAND, token.OROR:
		return c.reg.MustLookup("bool")
	case token.EQ, token.NE, token.LT, token.GT, token.LE, token.GE, token.SPACESHIP:
		if left != nil && right != nil && !left.Equals(right) && !(left.IsNumeric() && right.IsNumeric()) {
			c.diags.Warnf(x.Pos, "incomparableTypes: comparing %s and %s", left, right)
		}
		return c.reg.MustLookup("bool")
	case token.PLUS:
		if left != nil && left.Kind == types.String || right != nil && right.Kind == types.String {
			return c.reg.MustLookup("string")
		}
		return c.promoteNumeric(left, right)
	default:
		return c.promoteNumeric(left, right)
	}
}

// promoteNumeric promotes to the wider of the two operands: int + float ->
// float, per spec.md §4.5.
func (c *Checker) promoteNumeric(left, right *types.Type) *types.Type {
	if left != nil && right != nil && left.Kind == right.Kind && right.Width > left.Width {
		return right
	}
	if left != nil && left.IsFloat() {
		return left
	}
	if right != nil && right.IsFloat() {
		return right
	}
	if left != nil && left.IsInteger() {
		return left
	}
	if right != nil && right.IsInteger() {
		return right
	}
	return c.reg.MustLookup("unknown")
}

// checkCall checks each argument expression and, for a callee bound to a
// function type, reports an argument-count mismatch and returns the declared
// result type. Argument types are not matched against parameter types, and
// no generic type arguments are inferred here (internal/mono infers those
// when it specializes a generic function).
func (c *Checker) checkCall(x *ast.Call) *types.Type {
	for _, a := range x.Args {
		c.checkExpr(a.Value)
	}
	calleeName, isIdent := calleeIdentName(x.Callee)
	if !isIdent {
		c.checkExpr(x.Callee)
		return c.reg.MustLookup("unknown")
	}
	sym, ok := c.syms.Lookup(calleeName)
	if !ok {
		// unresolved callee: best-effort per spec.md §4.10.11, not a checker
		// error by itself (codegen falls back to a closure call).
		return c.reg.MustLookup("unknown")
	}
	sym.IsUsed = true
	fnType := sym.Type
	if fnType == nil || fnType.Kind != types.Function {
		return c.reg.MustLookup("unknown")
	}
	if len(x.Args) != len(fnType.Params) {
		c.diags.Errorf(x.Pos, "argCountMismatch: %q expects %d argument(s), got %d", calleeName, len(fnType.Params), len(x.Args))
	}
	return fnType.Results
}

func calleeIdentName(e ast.Expression) (string, bool) {
	id, ok := e.(*ast.Ident)
	if !ok {
		return "", false
	}
	return id.Name, true
}

func (c *Checker) checkMember(x *ast.Member) *types.Type {
	recv := c.checkExpr(x.Receiver)
	if recv == nil {
		return c.reg.MustLookup("unknown")
	}
	t := recv
	if t.Kind == types.Pointer || t.Kind == types.Reference {
		t = t.Elem
	}
	if t != nil && (t.Kind == types.Record || t.Kind == types.Union) {
		for _, f := range t.Fields {
			if f.Name == x.Name {
				return f.Type
			}
		}
		c.diags.Errorf(x.Pos, "unknownField: %s has no field %q", t, x.Name)
	}
	return c.reg.MustLookup("unknown")
}

func (c *Checker) checkIndex(x *ast.Index) *types.Type {
	recv := c.checkExpr(x.Receiver)
	c.checkExpr(x.Index)
	if recv == nil {
		return c.reg.MustLookup("unknown")
	}
	switch recv.Kind {
	case types.List, types.FixedArray:
		return recv.Elem
	case types.Map:
		return recv.Elem
	}
	return c.reg.MustLookup("unknown")
}

func (c *Checker) checkListLit(x *ast.ListLit) *types.Type {
	var elem *types.Type
	for _, e := range x.Elems {
		t := c.checkExpr(e)
		elem = c.unify(elem, t)
	}
	if elem == nil {
		elem = c.reg.MustLookup("unknown")
	}
	return &types.Type{Kind: types.List, Elem: elem}
}

func (c *Checker) checkRecordLit(x *ast.RecordLit) *types.Type {
	var named *types.Type
	if x.TypeName != "" {
		named, _ = c.reg.Lookup(x.TypeName)
	}
	for _, f := range x.Fields {
		c.checkExpr(f.Value)
	}
	if named != nil {
		return named
	}
	fields := make([]types.Field, 0, len(x.Fields))
	for _, f := range x.Fields {
		fields = append(fields, types.Field{Name: f.Name, Type: c.result[f.Value]})
	}
	return &types.Type{Kind: types.Record, Fields: fields}
}

func (c *Checker) checkMapLit(x *ast.MapLit) *types.Type {
	var key, val *types.Type
	for _, e := range x.Entries {
		k := c.checkExpr(e.Key)
		v := c.checkExpr(e.Value)
		key = c.unify(key, k)
		val = c.unify(val, v)
	}
	if key == nil {
		key = c.reg.MustLookup("unknown")
	}
	if val == nil {
		val = c.reg.MustLookup("unknown")
	}
	return &types.Type{Kind: types.Map, Key: key, Elem: val}
}

func (c *Checker) checkLambda(x *ast.Lambda) *types.Type {
	c.syms.PushScope(symtab.ScopeFunction)
	params := make([]*types.Type, 0, len(x.Params))
	for _, p := range x.Params {
		pt := c.resolveTypeExpr(p.Type)
		c.syms.Define(&symtab.Symbol{Name: p.Name, Kind: symtab.KindParam, Type: pt})
		params = append(params, pt)
	}
	body := c.checkExpr(x.Body)
	c.popScopeWarnUnused()
	return &types.Type{Kind: types.Function, Params: params, Results: body}
}

func (c *Checker) checkListComprehension(x *ast.ListComprehension) *types.Type {
	iterType := c.checkExpr(x.Iter)
	c.syms.PushScope(symtab.ScopeBlock)
	c.syms.Define(&symtab.Symbol{Name: x.VarName, Kind: symtab.KindVar, Type: c.elementTypeOf(iterType)})
	elem := c.checkExpr(x.Elem)
	if x.Guard != nil {
		c.checkExpr(x.Guard)
	}
	c.popScopeWarnUnused()
	return &types.Type{Kind: types.List, Elem: elem}
}

// checkNewExpr requires the referenced type to be known, per spec.md §4.5
// ("new Type(args) requires the referenced type to be known"); whether the
// allocation is heap (GC) or stack is later decided by codegen based on
// whether the enclosing scope is unsafe.
func (c *Checker) checkNewExpr(x *ast.NewExpr) *types.Type {
	for _, a := range x.Args {
		c.checkExpr(a.Value)
	}
	name, ok := calleeIdentName(x.Type)
	if !ok {
		c.checkExpr(x.Type)
		return c.reg.MustLookup("unknown")
	}
	t, found := c.reg.Lookup(name)
	if !found {
		c.diags.Errorf(x.Pos, "unknownType: new %q: no such type", name)
		return c.reg.MustLookup("unknown")
	}
	return &types.Type{Kind: types.Pointer, Elem: t}
}

func (c *Checker) checkMakeSync(x *ast.MakeSync) *types.Type {
	if x.Capacity != nil {
		c.checkExpr(x.Capacity)
	}
	var elem *types.Type
	if x.ElemType != nil {
		elem = c.resolveTypeExpr(x.ElemType)
	}
	switch x.Kind {
	case ast.SyncChan:
		return &types.Type{Kind: types.Channel, Elem: elem}
	case ast.SyncMutex:
		return &types.Type{Kind: types.Mutex, Name: "mutex"}
	case ast.SyncRWLock:
		return &types.Type{Kind: types.RWLock, Name: "rwlock"}
	case ast.SyncCond:
		return &types.Type{Kind: types.Cond, Name: "cond"}
	default:
		return &types.Type{Kind: types.Semaphore, Name: "semaphore"}
	}
}
