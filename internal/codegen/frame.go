package codegen

import (
	"github.com/windstream-lang/windstreamc/internal/ast"
	"github.com/windstream-lang/windstreamc/internal/types"
	"github.com/windstream-lang/windstreamc/internal/x64asm"
)

// frame tracks the rbp-relative stack slot for every local name (parameter,
// var/const declaration, destructure binding, for-in/match/try-else bound
// name) visible anywhere in the function currently being compiled, plus the
// break/continue targets of any loop currently being emitted. Grounded on
// std/compiler/backend_x64.go's compileFunc, which likewise resolves every
// local to a single frame-wide slot table (curFrameSize = len(f.Locals))
// rather than a per-block scope stack; here the slot table is built by a
// pre-pass over the AST instead of being handed down from an already-
// flattened IR, since this generator walks the AST directly.
type frame struct {
	locals map[string]int // name -> positive byte offset, used as [rbp-offset]
	size   int             // total bytes reserved below rbp, 16-aligned

	loopEnd  []string
	loopNext []string

	epilogue string // label the function's return path jumps to
}

// newFrame pre-assigns a stack slot to every name the function body ever
// declares. Two declarations of the same name (e.g. the same loop variable
// name reused in sibling, non-overlapping blocks) share one slot; true
// shadowing of an outer variable by an inner one of the same name is not
// distinguished and will alias the outer slot, a known simplification; the
// language's examples make no use of it.
func newFrame(fn *ast.FuncDecl) *frame {
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
	for _, p := range fn.Params {
		declare(p.Name)
	}
	walkLocalNames(fn.Body, declare)
	f.size = alignUp16(offset)
	return f
}

func walkLocalNames(b *ast.BlockStmt, declare func(string)) {
	if b == nil {
		return
	}
	for _, s := range b.Statements {
		walkStmtLocalNames(s, declare)
	}
}

func walkStmtLocalNames(s ast.Statement, declare func(string)) {
	switch n := s.(type) {
	case *ast.VarDecl:
		declare(n.Name)
	case *ast.ConstDecl:
		declare(n.Name)
	case *ast.DestructureDecl:
		for _, p := range n.Patterns {
			declare(p.Name)
		}
	case *ast.BlockStmt:
		walkLocalNames(n, declare)
	case *ast.IfStmt:
		walkLocalNames(n.Then, declare)
		for _, e := range n.Elifs {
			walkLocalNames(e.Body, declare)
		}
		walkLocalNames(n.Else, declare)
	case *ast.WhileStmt:
		walkLocalNames(n.Body, declare)
	case *ast.ForInStmt:
		declare(n.VarName)
		walkLocalNames(n.Body, declare)
	case *ast.MatchStmt:
		for _, c := range n.Cases {
			if c.Pattern != nil {
				declare(c.Pattern.Ident)
			}
			walkLocalNames(c.Body, declare)
		}
	case *ast.TryElseStmt:
		walkLocalNames(n.Try, declare)
		declare(n.Name)
		walkLocalNames(n.Else, declare)
	case *ast.UnsafeStmt:
		walkLocalNames(n.Body, declare)
	case *ast.LockStmt:
		walkLocalNames(n.Body, declare)
	}
}

func alignUp16(v int) int { return (v + 15) &^ 15 }

func (f *frame) pushLoop(end, next string) {
	f.loopEnd = append(f.loopEnd, end)
	f.loopNext = append(f.loopNext, next)
}

func (f *frame) popLoop() {
	f.loopEnd = f.loopEnd[:len(f.loopEnd)-1]
	f.loopNext = f.loopNext[:len(f.loopNext)-1]
}

func (f *frame) currentLoop() (end, next string, ok bool) {
	if len(f.loopEnd) == 0 {
		return "", "", false
	}
	i := len(f.loopEnd) - 1
	return f.loopEnd[i], f.loopNext[i], true
}

var gpParamRegs = []int{x64asm.RCX, x64asm.RDX, x64asm.R8, x64asm.R9}
var xmmParamRegs = []int{x64asm.XMM0, x64asm.XMM1, x64asm.XMM2, x64asm.XMM3}

// resolveParamType mirrors check.Checker's unexported resolveTypeExpr just
// enough to classify a parameter as float-passed (xmm) or integer/pointer-
// passed (gp); codegen otherwise leans on TypeOf for expressions already
// walked by the checker, but parameter declarations themselves were never
// handed to the checker as expressions.
func (g *Generator) resolveParamKind(te *ast.TypeExpr) types.Kind {
	if te == nil || te.Name == "" {
		return types.Void
	}
	if te.PointerTo != nil || te.RefTo != nil || te.ListOf != nil {
		return types.Pointer
	}
	t, ok := g.reg.Lookup(te.Name)
	if !ok {
		return types.Unknown
	}
	return t.Kind
}

// compileFunc emits label's prologue, body, and epilogue into the shared
// Assembler. Leaf-frame elision (skipping sub rsp entirely when a function
// declares no locals and takes no address-of-local) is left for a later
// pass; every function currently gets a full rbp-frame, matching
// std/compiler/backend_x64.go's compileFunc unconditionally.
func (g *Generator) compileFunc(fn *ast.FuncDecl, label string) {
	prevFrame := g.frame
	f := newFrame(fn)
	f.epilogue = label + "_epilogue"
	g.frame = f

	g.asm.Label(label)
	g.asm.PushR(x64asm.RBP)
	g.asm.MovRbpRsp()
	if f.size > 0 {
		g.asm.SubRspImm32(int32(f.size))
	}

	gpIdx, fpIdx := 0, 0
	for _, p := range fn.Params {
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

	g.compileBlock(fn.Body)

	g.asm.Label(f.epilogue)
	g.asm.Leave()
	g.asm.Ret()

	g.frame = prevFrame
}
