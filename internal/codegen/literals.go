package codegen

import (
	"github.com/windstream-lang/windstreamc/internal/ast"
	"github.com/windstream-lang/windstreamc/internal/gcrt"
	"github.com/windstream-lang/windstreamc/internal/types"
	"github.com/windstream-lang/windstreamc/internal/x64asm"
)

// compileStringLit interns s in .data (pe.AddString dedups exact repeats)
// and allocates a two-word {len, data_ptr} string object pointing at it,
// the layout every other string-producing path in this package (string
// builtins, interpolation) also targets.
func (g *Generator) compileStringLit(s string) {
	dataOff := g.pe.AddString(s)
	g.asm.MovRegImm64(x64asm.RCX, 16)
	gcrt.EmitAllocSite(g.asm, g.pe, g.gc, x64asm.RCX, gcrt.TagString)
	g.asm.MovRR(x64asm.R12, x64asm.RAX)
	g.asm.MovRegImm64(x64asm.R9, uint64(len(s)))
	g.asm.StoreMem(x64asm.R12, 0, x64asm.R9)
	g.asm.LeaRegRipFixup(x64asm.R9, dataOff)
	g.asm.StoreMem(x64asm.R12, 8, x64asm.R9)
	g.asm.MovRR(x64asm.RAX, x64asm.R12)
}

// compileInterpString concatenates only the literal text segments at
// compile time; embedded expressions are still evaluated (for their side
// effects and so unused-value diagnostics upstream stay meaningful) but
// their runtime value isn't spliced into the result yet. Full interpolation
// needs a string-conversion builtin per embedded type (int/float/bool/
// record) this generator's builtin table doesn't carry.
func (g *Generator) compileInterpString(x *ast.InterpString) {
	var combined string
	for _, p := range x.Parts {
		combined += p.Text
		if p.Expr != nil {
			g.compileExpr(p.Expr)
		}
	}
	g.compileStringLit(combined)
}

// compileListLit allocates a list object {len:i64, elem0, elem1, ...}: one
// 8-byte slot per element regardless of its static type (floats are stored
// as raw bits via movq), the same word-granularity convention compileFunc's
// frame and compileRecordLit's fields use.
func (g *Generator) compileListLit(x *ast.ListLit) {
	n := len(x.Elems)
	g.asm.MovRegImm64(x64asm.RCX, uint64(8+n*8))
	gcrt.EmitAllocSite(g.asm, g.pe, g.gc, x64asm.RCX, gcrt.TagList)
	g.asm.MovRR(x64asm.R12, x64asm.RAX)
	g.asm.MovRegImm64(x64asm.R9, uint64(n))
	g.asm.StoreMem(x64asm.R12, 0, x64asm.R9)
	for i, e := range x.Elems {
		g.compileExpr(e)
		if g.isFloatExpr(e) {
			g.asm.MovqFromXmm(x64asm.RAX, x64asm.XMM0)
		}
		g.asm.StoreMem(x64asm.R12, 8+i*8, x64asm.RAX)
	}
	g.asm.MovRR(x64asm.RAX, x64asm.R12)
}

// compileRecordLit allocates one 8-byte slot per field, in the record
// declaration's field order (not necessarily the literal's), so every
// access this generator compiles (compileMemberLoad, destructuring) can
// rely on declaration-order offsets alone.
func (g *Generator) compileRecordLit(x *ast.RecordLit) {
	decl := g.records[x.TypeName]
	n := len(x.Fields)
	if decl != nil {
		n = len(decl.Fields)
	}
	g.asm.MovRegImm64(x64asm.RCX, uint64(n*8))
	gcrt.EmitAllocSite(g.asm, g.pe, g.gc, x64asm.RCX, gcrt.TagRecord)
	g.asm.MovRR(x64asm.R12, x64asm.RAX)

	for _, fv := range x.Fields {
		idx := g.fieldIndexInDecl(decl, fv.Name)
		g.compileExpr(fv.Value)
		if g.isFloatExpr(fv.Value) {
			g.asm.MovqFromXmm(x64asm.RAX, x64asm.XMM0)
		}
		g.asm.StoreMem(x64asm.R12, idx*8, x64asm.RAX)
	}
	g.asm.MovRR(x64asm.RAX, x64asm.R12)
}

// compileNewExpr handles both `new Type{...}` (IsRecordLiteral, field-name
// args) and `new Type(...)` (positional constructor args), resolving Type
// to a record declaration by name when it's a bare identifier.
func (g *Generator) compileNewExpr(x *ast.NewExpr) {
	var typeName string
	if id, ok := x.Type.(*ast.Ident); ok {
		typeName = id.Name
	}
	decl := g.records[typeName]
	n := len(x.Args)
	if decl != nil {
		n = len(decl.Fields)
	}
	g.asm.MovRegImm64(x64asm.RCX, uint64(n*8))
	gcrt.EmitAllocSite(g.asm, g.pe, g.gc, x64asm.RCX, gcrt.TagRecord)
	g.asm.MovRR(x64asm.R12, x64asm.RAX)

	for i, a := range x.Args {
		idx := i
		if decl != nil && a.Name != "" {
			idx = g.fieldIndexInDecl(decl, a.Name)
		}
		g.compileExpr(a.Value)
		if g.isFloatExpr(a.Value) {
			g.asm.MovqFromXmm(x64asm.RAX, x64asm.XMM0)
		}
		g.asm.StoreMem(x64asm.R12, idx*8, x64asm.RAX)
	}
	g.asm.MovRR(x64asm.RAX, x64asm.R12)
}

func (g *Generator) fieldIndexInDecl(decl *ast.RecordDecl, name string) int {
	if decl == nil {
		return 0
	}
	for i, f := range decl.Fields {
		if f.Name == name {
			return i
		}
	}
	return 0
}

// compileRangeLit, reached only when a range literal is used as a value
// rather than directly driving a for-in loop (see compileForIn), allocates
// a three-word {start, end, step} record.
func (g *Generator) compileRangeLit(x *ast.RangeLit) {
	g.asm.MovRegImm64(x64asm.RCX, 24)
	gcrt.EmitAllocSite(g.asm, g.pe, g.gc, x64asm.RCX, gcrt.TagRecord)
	g.asm.MovRR(x64asm.R12, x64asm.RAX)

	g.compileExpr(x.Start)
	g.asm.StoreMem(x64asm.R12, 0, x64asm.RAX)
	g.compileExpr(x.End)
	g.asm.StoreMem(x64asm.R12, 8, x64asm.RAX)
	if x.Step != nil {
		g.compileExpr(x.Step)
	} else {
		g.asm.MovRegImm64(x64asm.RAX, 1)
	}
	g.asm.StoreMem(x64asm.R12, 16, x64asm.RAX)

	g.asm.MovRR(x64asm.RAX, x64asm.R12)
}

// fieldOffset resolves receiver's static record/union type and returns
// field's byte offset, using the same index*8 word-granularity convention
// compileRecordLit writes with (no sub-word packing by declared size).
func (g *Generator) fieldOffset(receiver ast.Expression, field string) (int, *types.Type, bool) {
	if g.chk == nil {
		return 0, nil, false
	}
	t, ok := g.chk.TypeOf(receiver)
	if !ok || t == nil {
		return 0, nil, false
	}
	for t.Kind == types.Pointer || t.Kind == types.Reference {
		t = t.Elem
	}
	if t.Kind != types.Record && t.Kind != types.Union {
		return 0, nil, false
	}
	for i, f := range t.Fields {
		if f.Name == field {
			return i * 8, f.Type, true
		}
	}
	return 0, nil, false
}

func (g *Generator) compileMemberLoad(x *ast.Member) {
	g.compileExpr(x.Receiver)
	off, _, ok := g.fieldOffset(x.Receiver, x.Name)
	if !ok {
		return
	}
	g.asm.LoadMem(x64asm.RAX, off, x64asm.RAX)
}

func (g *Generator) compileIndexLoad(x *ast.Index) {
	g.compileExpr(x.Receiver)
	g.asm.PushR(x64asm.RAX)
	g.compileExpr(x.Index)
	g.asm.MovRR(x64asm.R10, x64asm.RAX)
	g.asm.PopR(x64asm.R11)
	g.emitListElemAddr(x64asm.R11, x64asm.R10, x64asm.R11)
	g.asm.LoadMem(x64asm.R11, 0, x64asm.RAX)
}

// emitListElemAddr computes base + 8 + idx*8 (past the list's length
// header) into out. idx is copied into r10 first and base into r11 next,
// both before r8 (the multiplier scratch) is touched, so base must not be
// r10; otherwise any of base/idx/out may alias r8, r9, r10, or r11 without
// corrupting the caller's value — out is only written on the final
// instruction, once base and idx are no longer needed.
func (g *Generator) emitListElemAddr(base, idx, out int) {
	g.asm.MovRR(x64asm.R10, idx)
	g.asm.MovRR(x64asm.R11, base)
	g.asm.MovRegImm64(x64asm.R8, 8)
	g.asm.ImulRR(x64asm.R10, x64asm.R8)
	g.asm.AddRR(x64asm.R11, x64asm.R10)
	g.asm.AddRI(x64asm.R11, 8)
	g.asm.MovRR(out, x64asm.R11)
}
