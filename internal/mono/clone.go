package mono

import "github.com/windstream-lang/windstreamc/internal/ast"

// specializeFunc builds an independent copy of original with every
// occurrence of a type-parameter identifier in a type annotation replaced
// by its concrete string form, per spec.md §4.6 ("every occurrence of each
// type-parameter identifier in param types, return type, and body
// annotations"). The copy's Name is set to mangledName so the code
// generator can emit it as an ordinary, independently-labeled function.
func specializeFunc(original *ast.FuncDecl, subst map[string]string, mangledName string) *ast.FuncDecl {
	out := &ast.FuncDecl{
		Base:       original.Base,
		Name:       mangledName,
		TypeParams: nil, // fully concrete now
		ReturnType: cloneTypeExpr(original.ReturnType, subst),
		Conv:       original.Conv,
		Flags:      original.Flags,
		Attrs:      append([]ast.Attribute(nil), original.Attrs...),
	}
	out.Params = make([]*ast.Param, len(original.Params))
	for i, p := range original.Params {
		out.Params[i] = &ast.Param{Base: p.Base, Name: p.Name, Type: cloneTypeExpr(p.Type, subst)}
	}
	out.Body = cloneBlock(original.Body, subst)
	return out
}

func cloneTypeExpr(te *ast.TypeExpr, subst map[string]string) *ast.TypeExpr {
	if te == nil {
		return nil
	}
	out := &ast.TypeExpr{
		Base:       te.Base,
		Name:       te.Name,
		RefMutable: te.RefMutable,
		ArraySize:  te.ArraySize,
		Nullable:   te.Nullable,
	}
	if concrete, ok := subst[te.Name]; ok {
		out.Name = concrete
	}
	out.PointerTo = cloneTypeExpr(te.PointerTo, subst)
	out.RefTo = cloneTypeExpr(te.RefTo, subst)
	out.ListOf = cloneTypeExpr(te.ListOf, subst)
	out.ArrayOf = cloneTypeExpr(te.ArrayOf, subst)
	if te.GenericArgs != nil {
		out.GenericArgs = make([]*ast.TypeExpr, len(te.GenericArgs))
		for i, a := range te.GenericArgs {
			out.GenericArgs[i] = cloneTypeExpr(a, subst)
		}
	}
	return out
}

func cloneBlock(b *ast.BlockStmt, subst map[string]string) *ast.BlockStmt {
	if b == nil {
		return nil
	}
	out := &ast.BlockStmt{Base: b.Base, Statements: make([]ast.Statement, len(b.Statements))}
	for i, s := range b.Statements {
		out.Statements[i] = cloneStmt(s, subst)
	}
	return out
}

func cloneStmt(stmt ast.Statement, subst map[string]string) ast.Statement {
	switch s := stmt.(type) {
	case *ast.ExprStmt:
		return &ast.ExprStmt{Base: s.Base, X: cloneExpr(s.X, subst)}
	case *ast.VarDecl:
		return &ast.VarDecl{Base: s.Base, Name: s.Name, Mutable: s.Mutable, Type: cloneTypeExpr(s.Type, subst), Init: cloneExpr(s.Init, subst)}
	case *ast.ConstDecl:
		return &ast.ConstDecl{Base: s.Base, Name: s.Name, Value: cloneExpr(s.Value, subst)}
	case *ast.DestructureDecl:
		return &ast.DestructureDecl{Base: s.Base, IsRecordShape: s.IsRecordShape, Mutable: s.Mutable, Patterns: append([]ast.DestructurePattern(nil), s.Patterns...), Value: cloneExpr(s.Value, subst)}
	case *ast.CompoundAssignStmt:
		return &ast.CompoundAssignStmt{Base: s.Base, Target: cloneExpr(s.Target, subst), Op: s.Op, Value: cloneExpr(s.Value, subst)}
	case *ast.BlockStmt:
		return cloneBlock(s, subst)
	case *ast.IfStmt:
		out := &ast.IfStmt{Base: s.Base, Cond: cloneExpr(s.Cond, subst), Then: cloneBlock(s.Then, subst), Else: cloneBlock(s.Else, subst)}
		out.Elifs = make([]ast.ElifBranch, len(s.Elifs))
		for i, e := range s.Elifs {
			out.Elifs[i] = ast.ElifBranch{Cond: cloneExpr(e.Cond, subst), Body: cloneBlock(e.Body, subst)}
		}
		return out
	case *ast.WhileStmt:
		return &ast.WhileStmt{Base: s.Base, Cond: cloneExpr(s.Cond, subst), Body: cloneBlock(s.Body, subst)}
	case *ast.ForInStmt:
		return &ast.ForInStmt{Base: s.Base, VarName: s.VarName, Iter: cloneExpr(s.Iter, subst), Body: cloneBlock(s.Body, subst)}
	case *ast.MatchStmt:
		out := &ast.MatchStmt{Base: s.Base, Value: cloneExpr(s.Value, subst)}
		out.Cases = make([]ast.MatchCase, len(s.Cases))
		for i, c := range s.Cases {
			out.Cases[i] = ast.MatchCase{Pattern: clonePattern(c.Pattern, subst), Guard: cloneExpr(c.Guard, subst), Body: cloneBlock(c.Body, subst)}
		}
		return out
	case *ast.ReturnStmt:
		return &ast.ReturnStmt{Base: s.Base, Value: cloneExpr(s.Value, subst)}
	case *ast.BreakStmt:
		return &ast.BreakStmt{Base: s.Base}
	case *ast.ContinueStmt:
		return &ast.ContinueStmt{Base: s.Base}
	case *ast.DeleteStmt:
		return &ast.DeleteStmt{Base: s.Base, Operand: cloneExpr(s.Operand, subst)}
	case *ast.LockStmt:
		return &ast.LockStmt{Base: s.Base, Guard: cloneExpr(s.Guard, subst), Body: cloneBlock(s.Body, subst)}
	case *ast.UnsafeStmt:
		return &ast.UnsafeStmt{Base: s.Base, Body: cloneBlock(s.Body, subst)}
	case *ast.TryElseStmt:
		return &ast.TryElseStmt{Base: s.Base, Try: cloneBlock(s.Try, subst), Name: s.Name, Else: cloneBlock(s.Else, subst)}
	case *ast.AsmStmt:
		out := &ast.AsmStmt{Base: s.Base, Text: s.Text, Clobbers: append([]string(nil), s.Clobbers...)}
		out.Inputs = make([]ast.AsmOperand, len(s.Inputs))
		for i, o := range s.Inputs {
			out.Inputs[i] = ast.AsmOperand{Constraint: o.Constraint, Value: cloneExpr(o.Value, subst)}
		}
		out.Outputs = make([]ast.AsmOperand, len(s.Outputs))
		for i, o := range s.Outputs {
			out.Outputs[i] = ast.AsmOperand{Constraint: o.Constraint, Value: cloneExpr(o.Value, subst)}
		}
		return out
	default:
		// Declarations that cannot meaningfully nest inside a generic
		// function body (FuncDecl, RecordDecl, TraitDecl, ImplDecl, import/
		// module forms) are returned unchanged; none of them carry a type
		// annotation that could reference an enclosing type parameter.
		return stmt
	}
}

func clonePattern(p *ast.Pattern, subst map[string]string) *ast.Pattern {
	if p == nil {
		return nil
	}
	return &ast.Pattern{Base: p.Base, Wildcard: p.Wildcard, Ident: p.Ident, Literal: cloneExpr(p.Literal, subst)}
}

func cloneExpr(e ast.Expression, subst map[string]string) ast.Expression {
	switch x := e.(type) {
	case nil:
		return nil
	case *ast.IntLit, *ast.FloatLit, *ast.BoolLit, *ast.StringLit, *ast.NilLit, *ast.Ident:
		return e
	case *ast.InterpString:
		out := &ast.InterpString{Base: x.Base, Parts: make([]ast.InterpStringPart, len(x.Parts))}
		for i, p := range x.Parts {
			out.Parts[i] = ast.InterpStringPart{Text: p.Text, Expr: cloneExpr(p.Expr, subst)}
		}
		return out
	case *ast.Binary:
		return &ast.Binary{Base: x.Base, Op: x.Op, Left: cloneExpr(x.Left, subst), Right: cloneExpr(x.Right, subst)}
	case *ast.Unary:
		return &ast.Unary{Base: x.Base, Op: x.Op, Operand: cloneExpr(x.Operand, subst)}
	case *ast.Ternary:
		return &ast.Ternary{Base: x.Base, Cond: cloneExpr(x.Cond, subst), Then: cloneExpr(x.Then, subst), Else: cloneExpr(x.Else, subst)}
	case *ast.Call:
		out := &ast.Call{Base: x.Base, Callee: cloneExpr(x.Callee, subst), HotCallSite: x.HotCallSite}
		out.Args = make([]ast.Arg, len(x.Args))
		for i, a := range x.Args {
			out.Args[i] = ast.Arg{Name: a.Name, Value: cloneExpr(a.Value, subst)}
		}
		if x.TypeArgs != nil {
			out.TypeArgs = make([]*ast.TypeExpr, len(x.TypeArgs))
			for i, t := range x.TypeArgs {
				out.TypeArgs[i] = cloneTypeExpr(t, subst)
			}
		}
		return out
	case *ast.Member:
		return &ast.Member{Base: x.Base, Receiver: cloneExpr(x.Receiver, subst), Name: x.Name}
	case *ast.Index:
		return &ast.Index{Base: x.Base, Receiver: cloneExpr(x.Receiver, subst), Index: cloneExpr(x.Index, subst)}
	case *ast.ListLit:
		out := &ast.ListLit{Base: x.Base, Elems: make([]ast.Expression, len(x.Elems))}
		for i, el := range x.Elems {
			out.Elems[i] = cloneExpr(el, subst)
		}
		return out
	case *ast.RecordLit:
		out := &ast.RecordLit{Base: x.Base, TypeName: x.TypeName, Fields: make([]ast.RecordFieldValue, len(x.Fields))}
		for i, f := range x.Fields {
			out.Fields[i] = ast.RecordFieldValue{Name: f.Name, Value: cloneExpr(f.Value, subst)}
		}
		return out
	case *ast.MapLit:
		out := &ast.MapLit{Base: x.Base, Entries: make([]ast.MapEntry, len(x.Entries))}
		for i, en := range x.Entries {
			out.Entries[i] = ast.MapEntry{Key: cloneExpr(en.Key, subst), Value: cloneExpr(en.Value, subst)}
		}
		return out
	case *ast.RangeLit:
		return &ast.RangeLit{Base: x.Base, Start: cloneExpr(x.Start, subst), End: cloneExpr(x.End, subst), Step: cloneExpr(x.Step, subst)}
	case *ast.Lambda:
		out := &ast.Lambda{Base: x.Base, Body: cloneExpr(x.Body, subst)}
		out.Params = make([]*ast.Param, len(x.Params))
		for i, p := range x.Params {
			out.Params[i] = &ast.Param{Base: p.Base, Name: p.Name, Type: cloneTypeExpr(p.Type, subst)}
		}
		return out
	case *ast.ListComprehension:
		return &ast.ListComprehension{Base: x.Base, Elem: cloneExpr(x.Elem, subst), VarName: x.VarName, Iter: cloneExpr(x.Iter, subst), Guard: cloneExpr(x.Guard, subst)}
	case *ast.AddressOf:
		return &ast.AddressOf{Base: x.Base, Operand: cloneExpr(x.Operand, subst)}
	case *ast.Deref:
		return &ast.Deref{Base: x.Base, Operand: cloneExpr(x.Operand, subst)}
	case *ast.NewExpr:
		out := &ast.NewExpr{Base: x.Base, Type: cloneExpr(x.Type, subst), IsRecordLiteral: x.IsRecordLiteral}
		out.Args = make([]ast.Arg, len(x.Args))
		for i, a := range x.Args {
			out.Args[i] = ast.Arg{Name: a.Name, Value: cloneExpr(a.Value, subst)}
		}
		return out
	case *ast.Cast:
		return &ast.Cast{Base: x.Base, Operand: cloneExpr(x.Operand, subst), Type: cloneTypeExpr(x.Type, subst)}
	case *ast.Await:
		return &ast.Await{Base: x.Base, Operand: cloneExpr(x.Operand, subst)}
	case *ast.Spawn:
		return &ast.Spawn{Base: x.Base, Call: cloneExpr(x.Call, subst)}
	case *ast.AssignExpr:
		return &ast.AssignExpr{Base: x.Base, Target: cloneExpr(x.Target, subst), Op: x.Op, Value: cloneExpr(x.Value, subst)}
	case *ast.Propagate:
		return &ast.Propagate{Base: x.Base, Operand: cloneExpr(x.Operand, subst)}
	case *ast.DSLBlock:
		return &ast.DSLBlock{Base: x.Base, Name: x.Name, Raw: x.Raw}
	case *ast.MakeSync:
		return &ast.MakeSync{Base: x.Base, Kind: x.Kind, ElemType: cloneTypeExpr(x.ElemType, subst), Capacity: cloneExpr(x.Capacity, subst)}
	case *ast.SyncOp:
		out := &ast.SyncOp{Base: x.Base, Op: x.Op, Receiver: cloneExpr(x.Receiver, subst)}
		out.Args = make([]ast.Expression, len(x.Args))
		for i, a := range x.Args {
			out.Args[i] = cloneExpr(a, subst)
		}
		return out
	}
	return e
}
