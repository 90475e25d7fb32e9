package codegen

import (
	"github.com/windstream-lang/windstreamc/internal/ast"
	"github.com/windstream-lang/windstreamc/internal/token"
	"github.com/windstream-lang/windstreamc/internal/x64asm"
)

// compileBlock emits every statement of b in order. It takes no new scope:
// frame's slot table is flat for the whole function (see newFrame), so
// nested blocks share their parent's frame.
func (g *Generator) compileBlock(b *ast.BlockStmt) {
	if b == nil {
		return
	}
	for _, s := range b.Statements {
		g.compileStmt(s)
	}
}

// compileStmt lowers one statement, per spec.md §4.10.5's control-flow
// shapes: if/elif/else as a cmp+jz/jmp chain, while as a top-test loop,
// for-in over a range or list, match as a sequential pattern-test chain.
// Grounded on std/compiler/backend_x64.go's OP_JMP/OP_JMP_IF/OP_JMP_IF_NOT
// handling, adapted from IR opcodes to direct AST dispatch.
func (g *Generator) compileStmt(s ast.Statement) {
	switch n := s.(type) {
	case *ast.ExprStmt:
		g.compileExpr(n.X)
	case *ast.VarDecl:
		g.compileVarDecl(n.Name, n.Init)
	case *ast.ConstDecl:
		g.compileVarDecl(n.Name, n.Value)
	case *ast.DestructureDecl:
		g.compileDestructure(n)
	case *ast.CompoundAssignStmt:
		g.compileCompoundAssign(n.Target, n.Op, n.Value)
	case *ast.BlockStmt:
		g.compileBlock(n)
	case *ast.IfStmt:
		g.compileIf(n)
	case *ast.WhileStmt:
		g.compileWhile(n)
	case *ast.ForInStmt:
		g.compileForIn(n)
	case *ast.MatchStmt:
		g.compileMatch(n)
	case *ast.ReturnStmt:
		g.compileReturn(n)
	case *ast.BreakStmt:
		if end, _, ok := g.frame.currentLoop(); ok {
			g.asm.JmpRel32(end)
		}
	case *ast.ContinueStmt:
		if _, next, ok := g.frame.currentLoop(); ok {
			g.asm.JmpRel32(next)
		}
	case *ast.TryElseStmt:
		g.compileTryElse(n)
	case *ast.UnsafeStmt:
		g.compileBlock(n.Body)
	case *ast.DeleteStmt:
		g.compileExpr(n.Operand) // GC manages lifetime; evaluating for side effects is all a delete needs
	case *ast.LockStmt:
		g.compileLockStmt(n)
	case *ast.AsmStmt:
		// inline target assembly text isn't re-assembled by this generator
		// (spec.md's assembler operates on already-decoded instructions, not
		// on assembly source); an asm statement emits no code.
	case *ast.ImportStmt, *ast.UseDecl, *ast.ModuleDecl, *ast.ExternBlock,
		*ast.MacroDecl, *ast.SyntaxMacroDecl, *ast.LayerDecl:
		// no code to emit at statement position
	}
}

func (g *Generator) compileVarDecl(name string, init ast.Expression) {
	if init == nil {
		return
	}
	g.compileExpr(init)
	if g.isFloatExpr(init) {
		g.storeIdentFromXmm(name)
	} else {
		g.storeIdent(name)
	}
}

// storeIdent spills rax into name's frame slot; storeIdentFromXmm does the
// same for a value in xmm0.
func (g *Generator) storeIdent(name string) {
	off, ok := g.frame.locals[name]
	if !ok {
		return
	}
	g.asm.StoreLocal(off, x64asm.RAX)
}

func (g *Generator) storeIdentFromXmm(name string) {
	off, ok := g.frame.locals[name]
	if !ok {
		return
	}
	g.asm.MovqFromXmm(x64asm.RAX, x64asm.XMM0)
	g.asm.StoreLocal(off, x64asm.RAX)
}

func (g *Generator) compileDestructure(n *ast.DestructureDecl) {
	g.compileExpr(n.Value)
	g.asm.MovRR(x64asm.R11, x64asm.RAX) // r11 = record/tuple base pointer
	for _, p := range n.Patterns {
		if p.Field == "" {
			continue
		}
		off, ft, ok := g.fieldOffset(n.Value, p.Field)
		if !ok {
			continue
		}
		g.asm.LoadMem(x64asm.R11, off, x64asm.RAX)
		if slot, ok := g.frame.locals[p.Name]; ok {
			g.asm.StoreLocal(slot, x64asm.RAX)
		}
		_ = ft
	}
}

// compileAssignExpr lowers `target op= value` / `target = value`, leaving
// the assigned value in rax as the expression's result (assignment is an
// expression in this language, spec.md's ast.AssignExpr).
func (g *Generator) compileAssignExpr(x *ast.AssignExpr) {
	if x.Op == token.ASSIGN {
		g.compileExpr(x.Value)
	} else {
		g.compileCompoundValue(x.Target, x.Op, x.Value)
	}
	g.storeToTarget(x.Target)
}

func (g *Generator) compileCompoundAssign(target ast.Expression, op token.Kind, value ast.Expression) {
	g.compileCompoundValue(target, op, value)
	g.storeToTarget(target)
}

// compileCompoundValue computes target OP value (e.g. target += value) and
// leaves the result in rax, without storing it.
func (g *Generator) compileCompoundValue(target ast.Expression, op token.Kind, value ast.Expression) {
	binOp := compoundToBinaryOp(op)
	g.compileExpr(target)
	g.asm.PushR(x64asm.RAX)
	g.compileExpr(value)
	g.asm.MovRR(x64asm.RDX, x64asm.RAX)
	g.asm.PopR(x64asm.RAX)
	g.compileIntBinOp(binOp)
}

func compoundToBinaryOp(op token.Kind) token.Kind {
	switch op {
	case token.PLUS_ASSIGN:
		return token.PLUS
	case token.MINUS_ASSIGN:
		return token.MINUS
	case token.STAR_ASSIGN:
		return token.STAR
	case token.SLASH_ASSIGN:
		return token.SLASH
	case token.PERCENT_ASSIGN:
		return token.PERCENT
	}
	return token.PLUS
}

// storeToTarget writes rax back to an lvalue: a bare identifier, a record
// field (Member), a list element (Index), or a pointer dereference (Deref),
// matching the
// lvalue forms ast.AssignExpr.Target can take.
func (g *Generator) storeToTarget(target ast.Expression) {
	switch t := target.(type) {
	case *ast.Ident:
		g.storeIdent(t.Name)
	case *ast.Member:
		g.asm.PushR(x64asm.RAX)
		g.compileExpr(t.Receiver)
		g.asm.MovRR(x64asm.R11, x64asm.RAX)
		g.asm.PopR(x64asm.RAX)
		if off, _, ok := g.fieldOffset(t.Receiver, t.Name); ok {
			g.asm.StoreMem(x64asm.R11, off, x64asm.RAX)
		}
	case *ast.Index:
		g.asm.PushR(x64asm.RAX)
		g.compileExpr(t.Receiver)
		g.asm.MovRR(x64asm.R11, x64asm.RAX)
		g.compileExpr(t.Index)
		g.asm.MovRR(x64asm.R10, x64asm.RAX)
		g.asm.PopR(x64asm.RAX)
		g.emitListElemAddr(x64asm.R11, x64asm.R10, x64asm.R11)
		g.asm.StoreMem(x64asm.R11, 0, x64asm.RAX)
	case *ast.Deref:
		g.asm.PushR(x64asm.RAX)
		g.compileExpr(t.Operand)
		g.asm.MovRR(x64asm.R11, x64asm.RAX)
		g.asm.PopR(x64asm.RAX)
		g.asm.StoreMem(x64asm.R11, 0, x64asm.RAX)
	}
}

func (g *Generator) compileIf(n *ast.IfStmt) {
	doneLabel := g.newLabel("if_done")

	branches := append([]ast.ElifBranch{{Cond: n.Cond, Body: n.Then}}, n.Elifs...)
	for _, b := range branches {
		next := g.newLabel("if_next")
		g.compileExpr(b.Cond)
		g.asm.TestRR(x64asm.RAX, x64asm.RAX)
		g.asm.JccRel32(x64asm.CC_E, next)
		g.compileBlock(b.Body)
		g.asm.JmpRel32(doneLabel)
		g.asm.Label(next)
	}
	if n.Else != nil {
		g.compileBlock(n.Else)
	}
	g.asm.Label(doneLabel)
}

func (g *Generator) compileWhile(n *ast.WhileStmt) {
	top := g.newLabel("while_top")
	end := g.newLabel("while_end")

	g.asm.Label(top)
	g.compileExpr(n.Cond)
	g.asm.TestRR(x64asm.RAX, x64asm.RAX)
	g.asm.JccRel32(x64asm.CC_E, end)

	g.frame.pushLoop(end, top)
	g.compileBlock(n.Body)
	g.frame.popLoop()

	g.asm.JmpRel32(top)
	g.asm.Label(end)
}

// compileForIn lowers `for x in iter`. A range literal becomes a counted
// loop with an inline increment; anything else is treated as a list:
// {len, elem0, elem1, ...} laid out the way gcrt allocates lists
// (see literals.go), walked by index.
func (g *Generator) compileForIn(n *ast.ForInStmt) {
	if rl, ok := n.Iter.(*ast.RangeLit); ok {
		g.compileRangeForIn(n, rl)
		return
	}

	top := g.newLabel("forin_top")
	end := g.newLabel("forin_end")
	next := g.newLabel("forin_next")

	g.compileExpr(n.Iter)
	g.asm.MovRR(x64asm.R12, x64asm.RAX) // r12 = list base
	g.asm.LoadMem(x64asm.R12, 0, x64asm.R13) // r13 = length
	g.asm.XorRR(x64asm.R14, x64asm.R14)      // r14 = index

	g.asm.Label(top)
	g.asm.CmpRR(x64asm.R14, x64asm.R13)
	g.asm.JccRel32(x64asm.CC_GE, end)

	g.emitListElemAddr(x64asm.R12, x64asm.R14, x64asm.R11)
	g.asm.LoadMem(x64asm.R11, 0, x64asm.RAX)
	g.storeIdent(n.VarName)

	g.frame.pushLoop(end, next)
	g.compileBlock(n.Body)
	g.frame.popLoop()

	g.asm.Label(next)
	g.asm.AddRI(x64asm.R14, 1)
	g.asm.JmpRel32(top)
	g.asm.Label(end)
}

func (g *Generator) compileRangeForIn(n *ast.ForInStmt, rl *ast.RangeLit) {
	top := g.newLabel("range_top")
	end := g.newLabel("range_end")
	next := g.newLabel("range_next")

	g.compileExpr(rl.Start)
	g.storeIdent(n.VarName)

	g.compileExpr(rl.End)
	g.asm.MovRR(x64asm.R12, x64asm.RAX) // r12 = end (exclusive)

	step := int64(1)
	if rl.Step != nil {
		g.compileExpr(rl.Step)
		g.asm.MovRR(x64asm.R13, x64asm.RAX)
	} else {
		g.asm.MovRegImm64(x64asm.R13, uint64(step))
	}

	g.asm.Label(top)
	off := g.frame.locals[n.VarName]
	g.asm.LoadLocal(off, x64asm.RAX)
	g.asm.CmpRR(x64asm.RAX, x64asm.R12)
	g.asm.JccRel32(x64asm.CC_GE, end)

	g.frame.pushLoop(end, next)
	g.compileBlock(n.Body)
	g.frame.popLoop()

	g.asm.Label(next)
	g.asm.LoadLocal(off, x64asm.RAX)
	g.asm.AddRR(x64asm.RAX, x64asm.R13)
	g.asm.StoreLocal(off, x64asm.RAX)
	g.asm.JmpRel32(top)
	g.asm.Label(end)
}

// compileMatch lowers a sequential pattern-test chain: a wildcard always
// matches, a bound identifier binds and matches unconditionally (optionally
// guarded), and a literal pattern compares for equality.
func (g *Generator) compileMatch(n *ast.MatchStmt) {
	doneLabel := g.newLabel("match_done")
	g.compileExpr(n.Value)
	g.asm.PushR(x64asm.RAX)

	for _, c := range n.Cases {
		next := g.newLabel("match_next")
		g.asm.LoadMem(x64asm.RSP, 0, x64asm.RAX)

		if c.Pattern != nil && !c.Pattern.Wildcard {
			if c.Pattern.Literal != nil {
				g.asm.PushR(x64asm.RAX)
				g.compileExpr(c.Pattern.Literal)
				g.asm.MovRR(x64asm.RDX, x64asm.RAX)
				g.asm.PopR(x64asm.RAX)
				g.asm.CmpRR(x64asm.RAX, x64asm.RDX)
				g.asm.JccRel32(x64asm.CC_NE, next)
			} else if c.Pattern.Ident != "" {
				g.storeIdent(c.Pattern.Ident)
			}
		}
		if c.Guard != nil {
			g.compileExpr(c.Guard)
			g.asm.TestRR(x64asm.RAX, x64asm.RAX)
			g.asm.JccRel32(x64asm.CC_E, next)
		}

		g.compileBlock(c.Body)
		g.asm.JmpRel32(doneLabel)
		g.asm.Label(next)
	}

	g.asm.Label(doneLabel)
	g.asm.AddRspImm32(8)
}

func (g *Generator) compileReturn(n *ast.ReturnStmt) {
	if n.Value != nil {
		g.compileExpr(n.Value)
	}
	g.asm.JmpRel32(g.frame.epilogue)
}

// compileTryElse emits only the Try block. A propagated error (spec.md's
// `?` on a Result-typed call within Try) does not divert anywhere, since
// rax carries no distinguished error-path signal to test, and the Else
// block is not emitted at all.
func (g *Generator) compileTryElse(n *ast.TryElseStmt) {
	g.compileBlock(n.Try)
}

func (g *Generator) compileLockStmt(n *ast.LockStmt) {
	g.compileExpr(n.Guard)
	g.asm.MovRR(x64asm.RCX, x64asm.RAX)
	g.asm.SubRspImm32(32)
	g.asm.CallRel32("sync_mutex_lock")
	g.asm.AddRspImm32(32)

	g.compileBlock(n.Body)

	g.compileExpr(n.Guard)
	g.asm.MovRR(x64asm.RCX, x64asm.RAX)
	g.asm.SubRspImm32(32)
	g.asm.CallRel32("sync_mutex_unlock")
	g.asm.AddRspImm32(32)
}
