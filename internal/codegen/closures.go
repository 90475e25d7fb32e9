package codegen

import (
	"github.com/windstream-lang/windstreamc/internal/ast"
	"github.com/windstream-lang/windstreamc/internal/gcrt"
	"github.com/windstream-lang/windstreamc/internal/types"
	"github.com/windstream-lang/windstreamc/internal/x64asm"
)

// pendingLambda records a lambda expression encountered mid-function; its
// body is compiled as a standalone labeled function only after every
// top-level declaration has been walked (see emitPendingLambdas), the same
// post-pass shape compileDynamicDispatch's vtable finalization and the GC
// collect routine use, so a lambda body never falls straight through from
// its enclosing function's own code.
type pendingLambda struct {
	label    string
	lambda   *ast.Lambda
	captures []string
}

// compileLambda implements spec.md §4.10.7: analyze x.Body for identifiers
// bound in the enclosing frame, allocate a closure object
// {func_ptr, capture_count, capture0, capture1, ...}, and defer the lambda body itself to
// emitPendingLambdas. The closure pointer left in rax is the value a
// `LambdaExpr` site produces.
func (g *Generator) compileLambda(x *ast.Lambda) {
	label := g.newLabel("lambda")
	captures := g.collectCaptures(x)
	g.pendingLambdas = append(g.pendingLambdas, pendingLambda{label: label, lambda: x, captures: captures})

	n := len(captures)
	g.asm.MovRegImm64(x64asm.RCX, uint64(16+n*8))
	gcrt.EmitAllocSite(g.asm, g.pe, g.gc, x64asm.RCX, gcrt.TagClosure)
	g.asm.MovRR(x64asm.R12, x64asm.RAX)

	g.asm.LeaRegLabelFixup(x64asm.R9, label)
	g.asm.StoreMem(x64asm.R12, 0, x64asm.R9)
	g.asm.MovRegImm64(x64asm.R9, uint64(n))
	g.asm.StoreMem(x64asm.R12, 8, x64asm.R9)

	for i, name := range captures {
		if g.frame != nil {
			if off, ok := g.frame.locals[name]; ok {
				g.asm.LoadLocal(off, x64asm.R9)
			} else {
				g.asm.XorRR(x64asm.R9, x64asm.R9)
			}
		} else {
			g.asm.XorRR(x64asm.R9, x64asm.R9)
		}
		g.asm.StoreMem(x64asm.R12, 16+i*8, x64asm.R9)
	}

	g.asm.MovRR(x64asm.RAX, x64asm.R12)
}

// collectCaptures walks x.Body for Ident references that name neither a
// lambda parameter nor a global, and that resolve to a slot in the
// enclosing function's frame — those are exactly the values that must be
// copied into the closure object, since the lambda body runs as its own
// independent stack frame with no access to the caller's rbp. DSL blocks are
// not scanned (their raw text is never parsed into expressions), and names
// bound inside the body by a nested lambda's parameters or a comprehension's
// loop variable are not excluded, so one that shadows an enclosing local is
// copied in as a capture too (see DESIGN.md).
func (g *Generator) collectCaptures(x *ast.Lambda) []string {
	params := map[string]bool{}
	for _, p := range x.Params {
		params[p.Name] = true
	}
	seen := map[string]bool{}
	var order []string
	add := func(name string) {
		if params[name] || seen[name] {
			return
		}
		if g.frame == nil {
			return
		}
		if _, ok := g.frame.locals[name]; !ok {
			return
		}
		seen[name] = true
		order = append(order, name)
	}

	var walk func(e ast.Expression)
	walk = func(e ast.Expression) {
		if e == nil {
			return
		}
		switch n := e.(type) {
		case *ast.Ident:
			add(n.Name)
		case *ast.Binary:
			walk(n.Left)
			walk(n.Right)
		case *ast.Unary:
			walk(n.Operand)
		case *ast.Ternary:
			walk(n.Cond)
			walk(n.Then)
			walk(n.Else)
		case *ast.Call:
			walk(n.Callee)
			for _, a := range n.Args {
				walk(a.Value)
			}
		case *ast.Member:
			walk(n.Receiver)
		case *ast.Index:
			walk(n.Receiver)
			walk(n.Index)
		case *ast.ListLit:
			for _, el := range n.Elems {
				walk(el)
			}
		case *ast.RecordLit:
			for _, fv := range n.Fields {
				walk(fv.Value)
			}
		case *ast.MapLit:
			for _, me := range n.Entries {
				walk(me.Key)
				walk(me.Value)
			}
		case *ast.RangeLit:
			walk(n.Start)
			walk(n.End)
			walk(n.Step)
		case *ast.NewExpr:
			for _, a := range n.Args {
				walk(a.Value)
			}
		case *ast.Cast:
			walk(n.Operand)
		case *ast.AddressOf:
			walk(n.Operand)
		case *ast.Deref:
			walk(n.Operand)
		case *ast.AssignExpr:
			walk(n.Target)
			walk(n.Value)
		case *ast.Propagate:
			walk(n.Operand)
		case *ast.Await:
			walk(n.Operand)
		case *ast.Spawn:
			walk(n.Call)
		case *ast.Lambda:
			walk(n.Body)
		case *ast.ListComprehension:
			walk(n.Iter)
			walk(n.Guard)
			walk(n.Elem)
		case *ast.InterpString:
			for _, p := range n.Parts {
				if p.Expr != nil {
					walk(p.Expr)
				}
			}
		case *ast.MakeSync:
			walk(n.Capacity)
		case *ast.SyncOp:
			walk(n.Receiver)
			for _, a := range n.Args {
				walk(a)
			}
		}
	}
	walk(x.Body)
	return order
}

// emitPendingLambdas drains g.pendingLambdas, compiling new lambda bodies
// discovered while compiling earlier ones (a lambda nested in another
// lambda's body) until none remain.
func (g *Generator) emitPendingLambdas() {
	for len(g.pendingLambdas) > 0 {
		pl := g.pendingLambdas[0]
		g.pendingLambdas = g.pendingLambdas[1:]
		g.compileLambdaFunc(pl.label, pl.lambda, pl.captures)
	}
}

// compileLambdaFunc emits label's body: an rbp-frame whose first GP
// argument register (rcx) is the closure pointer rather than the lambda's
// first declared parameter, shifting every real integer/pointer parameter
// one GP register over (float parameters still start at xmm0) — grounded on spec.md §4.10.7's "implicit first argument ...
// fills in local slots for each captured variable from
// [closure + 16 + 8*i]".
func (g *Generator) compileLambdaFunc(label string, lambda *ast.Lambda, captures []string) {
	prevFrame := g.frame
	f := &frame{locals: map[string]int{}}
	offset := 0
	declare := func(name string) {
		if name == "" {
			return
		}
		if _, ok := f.locals[name]; ok {
			return
		}
		offset += 8
		f.locals[name] = offset
	}
	for _, c := range captures {
		declare(c)
	}
	for _, p := range lambda.Params {
		declare(p.Name)
	}
	f.size = alignUp16(offset)
	f.epilogue = label + "_epilogue"
	g.frame = f

	g.asm.Label(label)
	g.asm.PushR(x64asm.RBP)
	g.asm.MovRbpRsp()
	if f.size > 0 {
		g.asm.SubRspImm32(int32(f.size))
	}

	g.asm.MovRR(x64asm.R12, x64asm.RCX) // closure pointer, kept across param stores
	for i, name := range captures {
		off := f.locals[name]
		g.asm.LoadMem(x64asm.R12, 16+i*8, x64asm.RAX)
		g.asm.StoreLocal(off, x64asm.RAX)
	}

	gpIdx, fpIdx := 1, 0 // gp slot 0 (rcx) is the closure pointer, already consumed above
	for _, p := range lambda.Params {
		off := f.locals[p.Name]
		if g.resolveParamKind(p.Type) == types.Float && fpIdx < len(xmmParamRegs) {
			g.asm.MovqFromXmm(x64asm.RAX, xmmParamRegs[fpIdx])
			g.asm.StoreLocal(off, x64asm.RAX)
			fpIdx++
			continue
		}
		if gpIdx < len(gpParamRegs) {
			g.asm.StoreLocal(off, gpParamRegs[gpIdx])
			gpIdx++
		}
	}

	g.compileExpr(lambda.Body)

	g.asm.Label(f.epilogue)
	g.asm.Leave()
	g.asm.Ret()

	g.frame = prevFrame
}
