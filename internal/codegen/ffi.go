package codegen

import (
	"github.com/windstream-lang/windstreamc/internal/ast"
	"github.com/windstream-lang/windstreamc/internal/x64asm"
)

// pendingTrampoline records a user function that has been passed by address
// to an extern call; its stub is emitted once, alongside the rest of the
// spawn thunks, rather than inline at the call site it was first seen at.
type pendingTrampoline struct {
	label  string
	target string
}

// loadExternArgs is loadArgsIntoRegisters specialized for extern (FFI) call
// sites per spec.md §4.10.9: a bare top-level function name passed as an
// argument is routed through a trampoline stub rather than its own label,
// and a variadic extern gets each floating-point argument of its variadic
// tail (past the fixed parameters) duplicated into its paired integer
// register, since the Windows x64 ABI requires a
// variadic callee to be able to read float arguments from either register
// file (the callee has no prototype to tell it which one was used).
func (g *Generator) loadExternArgs(args []ast.Arg, ext externInfo) {
	n := len(args)
	if n > len(gpParamRegs) {
		n = len(gpParamRegs)
	}
	for i := 0; i < n; i++ {
		if label, ok := g.trampolineTarget(args[i].Value); ok {
			g.asm.LeaRegLabelFixup(x64asm.RAX, label)
		} else {
			g.compileExpr(args[i].Value)
			if g.isFloatExpr(args[i].Value) {
				g.asm.MovqFromXmm(x64asm.RAX, x64asm.XMM0)
			}
		}
		g.asm.PushR(x64asm.RAX)
	}
	for i := n - 1; i >= 0; i-- {
		if g.isFloatExpr(args[i].Value) {
			g.asm.PopR(x64asm.RAX)
			g.asm.MovqToXmm(xmmParamRegs[i], x64asm.RAX)
			// Only the variadic tail needs the integer-register mirror: a
			// fixed, prototyped parameter's callee reads it from xmm alone.
			if ext.variadic && i >= ext.fixedParams {
				g.asm.MovRR(gpParamRegs[i], x64asm.RAX)
			}
			continue
		}
		g.asm.PopR(gpParamRegs[i])
	}
}

// trampolineTarget reports the trampoline label to use for e if e is a bare
// identifier naming a top-level function (not a local, not a closure
// value) — exactly the case spec.md §4.10.9 calls out: "a user function
// referenced by address and passed to an extern". Any other expression form
// (an already-built closure, a local holding a function pointer) carries its
// own runtime value and needs no trampoline.
func (g *Generator) trampolineTarget(e ast.Expression) (string, bool) {
	id, ok := e.(*ast.Ident)
	if !ok {
		return "", false
	}
	if g.frame != nil {
		if _, ok := g.frame.locals[id.Name]; ok {
			return "", false
		}
	}
	if _, ok := g.funcs[id.Name]; !ok {
		return "", false
	}
	return g.trampolineLabelFor(id.Name), true
}

// trampolineLabelFor memoizes one trampoline stub per callback target, so
// passing the same function to two different extern calls reuses a single
// label rather than emitting a duplicate stub.
func (g *Generator) trampolineLabelFor(target string) string {
	if g.trampolines == nil {
		g.trampolines = map[string]string{}
	}
	if label, ok := g.trampolines[target]; ok {
		return label
	}
	label := g.newLabel("trampoline_" + target)
	g.trampolines[target] = label
	g.pendingTrampolines = append(g.pendingTrampolines, pendingTrampoline{label: label, target: target})
	return label
}

// emitPendingTrampolines emits every trampoline stub collected by
// loadExternArgs. On this target, an extern's declared calling convention
// (cdecl/stdcall/win64) shares the same register assignment, since the
// Windows x64 ABI unifies them — the distinction spec.md §4.10.9 describes
// only matters on 32-bit targets. The stub is still emitted as its own
// labeled tail-jump rather than handing out the user function's address
// directly, so a callback keeps a stable address independent of how the
// user function itself is compiled, and so this is the one place a richer
// per-convention adaptation (stack cleanup differences, register
// reordering) would be added if a non-x64 backend were ever wired in.
func (g *Generator) emitPendingTrampolines() {
	for _, t := range g.pendingTrampolines {
		g.asm.Label(t.label)
		g.asm.JmpRel32(t.target)
	}
	g.pendingTrampolines = nil
}
