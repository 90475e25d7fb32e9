// Package codegen implements the native code generator described in
// spec.md §4.10: a single visitor walks the AST and emits x64 bytes
// directly (no intermediate representation), keeping one piece of
// per-function state: a local-name to stack-offset map (see frame.go).
// There is no register allocation — every local lives in its stack slot —
// and whether a result sits in rax or xmm0 is decided per expression from
// the checker's recorded type (isFloatExpr). Grounded
// on std/compiler/backend_x64.go's compileFunc/compileInst/compileBinOp/
// compileCompare shape (stack-machine evaluation via push/pop, a giant
// opcode switch) and std/compiler/backend_windows_x64.go's emitStart_win64
// (entry point wiring, Windows calling convention, import-table-backed
// syscalls), adapted from the teacher's IR-opcode dispatch to a direct
// AST-node dispatch per spec.md's "no IR" design (see internal/mono's doc
// comment for the same redesign rationale).
package codegen

import (
	"strconv"

	"github.com/windstream-lang/windstreamc/internal/ast"
	"github.com/windstream-lang/windstreamc/internal/check"
	"github.com/windstream-lang/windstreamc/internal/gcrt"
	"github.com/windstream-lang/windstreamc/internal/mono"
	"github.com/windstream-lang/windstreamc/internal/pefile"
	"github.com/windstream-lang/windstreamc/internal/types"
	"github.com/windstream-lang/windstreamc/internal/x64asm"
)

// Generator owns the single Assembler every function, builtin thunk, and
// gcrt routine is emitted into; spec.md §4.7's label namespace is shared
// per Assembler, so every label this package mints (function names are
// already unique; synthetic control-flow labels get a monotonic suffix)
// must not collide across functions.
type Generator struct {
	asm *x64asm.Assembler
	pe  *pefile.Builder
	gc  *gcrt.Globals
	reg *types.Registry
	chk *check.Checker

	funcs   map[string]*ast.FuncDecl // name (or mangled name) -> declaration
	records map[string]*ast.RecordDecl
	unions  map[string]*ast.UnionDecl

	vtables     map[string]map[string]string // "Type#Trait" -> method -> label
	traitOrder  map[string][]string          // trait name -> method names, declaration order
	traitOf     map[string]*ast.TraitDecl
	methodImpls map[string][]string // method name -> every impl label providing it, declaration order

	externs map[string]externInfo // function name -> extern binding

	labelSeq int
	frame    *frame // the function currently being compiled, nil at top level

	pendingLambdas     []pendingLambda     // lambda bodies discovered mid-function, emitted after collectTopLevel's pass
	pendingThunks      []pendingThunk      // spawn thunks discovered mid-function, emitted alongside the sync runtime
	pendingTrampolines []pendingTrampoline // FFI callback stubs discovered mid-function, emitted alongside the sync runtime
	trampolines        map[string]string   // function name -> its memoized trampoline label
}

type externInfo struct {
	dll         string
	conv        ast.CallingConvention
	variadic    bool
	fixedParams int
}

// New creates a Generator writing into pe, sharing reg/chk for type
// queries (the checker's TypeOf(expr) is the only state codegen reuses from
// type-checking; variable-offset/register assignment is redone from
// scratch per function, same as the teacher's compileFunc builds its own
// pushScope/addLocal table independent of the frontend's symbol table).
func New(pe *pefile.Builder, reg *types.Registry, chk *check.Checker) *Generator {
	return &Generator{
		asm:        x64asm.New(),
		pe:         pe,
		reg:        reg,
		chk:        chk,
		funcs:      map[string]*ast.FuncDecl{},
		records:    map[string]*ast.RecordDecl{},
		unions:     map[string]*ast.UnionDecl{},
		vtables:     map[string]map[string]string{},
		traitOrder:  map[string][]string{},
		traitOf:     map[string]*ast.TraitDecl{},
		methodImpls: map[string][]string{},
		externs:     map[string]externInfo{},
	}
}

// newLabel mints a globally unique label, for control-flow constructs that
// need more than one branch target within a function body.
func (g *Generator) newLabel(prefix string) string {
	g.labelSeq++
	return prefix + "_" + strconv.Itoa(g.labelSeq)
}

// Generate lowers prog (plus every monomorphized specialization) into the
// Builder passed to New, placing the GC runtime, every function body, the
// vtables, and the entry point, then resolving labels and handing the
// final code buffer to the PE writer. It returns the finished image bytes.
func (g *Generator) Generate(prog *ast.Program, instantiations []*mono.Instantiation) []byte {
	base, entryOffset := g.assemble(prog, instantiations)
	g.pe.SetEntry(base + entryOffset)
	return g.pe.Build()
}

// assemble runs every pass shared by Generate and GenerateObject: top-level
// collection, function body compilation, deferred-emission drains, label
// resolution, and handing the finished code buffer to the Builder. It
// returns the buffer's base offset within g.pe's .text (needed to rebase
// the entry point and, for GenerateObject, every exported symbol) and the
// entry point's offset within this function's own code.
func (g *Generator) assemble(prog *ast.Program, instantiations []*mono.Instantiation) (base, entryOffset int) {
	g.gc = gcrt.Place(g.pe)

	g.collectTopLevel(prog)
	for _, inst := range instantiations {
		g.funcs[inst.MangledName] = inst.Specialized
	}

	g.emitEntryPoint(prog)

	for _, stmt := range prog.Statements {
		g.compileTopLevel(stmt)
	}
	for _, inst := range instantiations {
		g.compileFunc(inst.Specialized, inst.MangledName)
	}

	g.emitPendingLambdas()
	g.emitSyncRuntime()
	g.emitPendingThunks()
	g.emitPendingTrampolines()
	gcrt.EmitCollectRoutine(g.asm, g.pe, g.gc)
	g.finalizeVtables()

	entryOffset, ok := g.asm.LabelOffset("_start")
	if !ok {
		panic("codegen: _start label never emitted")
	}

	if err := g.asm.Resolve(0); err != nil {
		panic(err)
	}
	base = g.pe.AddFunctionCode(g.asm.Code(), g.asm.RipFixups())
	return base, entryOffset
}

// collectTopLevel registers every named declaration before compiling any
// function body, so forward references (a function calling one declared
// later in the file) resolve.
func (g *Generator) collectTopLevel(prog *ast.Program) {
	for _, stmt := range prog.Statements {
		switch d := stmt.(type) {
		case *ast.FuncDecl:
			g.funcs[d.Name] = d
		case *ast.RecordDecl:
			g.records[d.Name] = d
		case *ast.UnionDecl:
			g.unions[d.Name] = d
		case *ast.TraitDecl:
			g.traitOf[d.Name] = d
			names := make([]string, len(d.Methods))
			for i, m := range d.Methods {
				names[i] = m.Name
			}
			g.traitOrder[d.Name] = names
		case *ast.ImplDecl:
			for _, m := range d.Methods {
				g.funcs[implMethodLabel(d, m.Name)] = m
			}
		case *ast.ExternBlock:
			for _, f := range d.Funcs {
				g.externs[f.Name] = externInfo{
					dll:         d.Library,
					conv:        d.Conv,
					variadic:    f.Variadic,
					fixedParams: len(f.Params),
				}
			}
		}
	}
}

// implMethodLabel names the emitted label for a trait/inherent impl method,
// qualified by the implementing type so overloaded method names across
// types (and across an inherent impl vs a trait impl) don't collide.
func implMethodLabel(impl *ast.ImplDecl, method string) string {
	typeName := typeExprName(impl.ForType)
	if impl.TraitName == "" {
		return typeName + "_" + method
	}
	return typeName + "_" + impl.TraitName + "_" + method
}

func typeExprName(te *ast.TypeExpr) string {
	if te == nil {
		return ""
	}
	if te.Name != "" {
		return te.Name
	}
	if te.PointerTo != nil {
		return typeExprName(te.PointerTo)
	}
	if te.RefTo != nil {
		return typeExprName(te.RefTo)
	}
	return ""
}

// compileTopLevel emits code for the declarations that produce code
// directly; type-only declarations (records/unions/enums/trait
// signatures/type aliases) and the out-of-scope macro/module forms are
// structurally skipped, matching spec.md §1's scope boundary.
func (g *Generator) compileTopLevel(stmt ast.Statement) {
	switch d := stmt.(type) {
	case *ast.FuncDecl:
		if d.Body != nil && !d.Flags.Extern {
			g.compileFunc(d, d.Name)
		}
	case *ast.ImplDecl:
		for _, m := range d.Methods {
			if m.Body != nil {
				g.compileFunc(m, implMethodLabel(d, m.Name))
			}
		}
		g.recordImpl(d)
	case *ast.RecordDecl, *ast.UnionDecl, *ast.EnumDecl, *ast.TypeAliasDecl,
		*ast.TraitDecl, *ast.ImportStmt, *ast.UseDecl, *ast.ModuleDecl,
		*ast.MacroDecl, *ast.SyntaxMacroDecl, *ast.LayerDecl, *ast.ExternBlock:
		// no code to emit
	}
}

// emitEntryPoint emits the PE entry point: capture the initial stack
// pointer as the GC's conservative-scan upper bound, then call main and
// exit with its return code (0 if main returns void), per spec.md §4.9's
// "stack bottom ... captured once at program start" and §6's process model.
func (g *Generator) emitEntryPoint(prog *ast.Program) {
	g.asm.Label("_start")
	g.asm.PushR(x64asm.RBP)
	g.asm.MovRbpRsp()
	g.asm.SubRspImm32(32)

	g.asm.LeaRegRipFixup(x64asm.R11, g.gc.RVA)
	g.asm.StoreMem(x64asm.R11, gcrt.StackBottomOffset(), x64asm.RBP)

	hasMain, mainVoid := false, false
	for _, stmt := range prog.Statements {
		if fn, ok := stmt.(*ast.FuncDecl); ok && fn.Name == "main" {
			hasMain = true
			mainVoid = fn.ReturnType == nil
		}
	}

	exitProcess := g.pe.AddImport("kernel32.dll", "ExitProcess")
	if hasMain {
		g.asm.CallRel32("main")
		if mainVoid {
			g.asm.XorRR(x64asm.RAX, x64asm.RAX)
		}
	} else {
		g.asm.XorRR(x64asm.RAX, x64asm.RAX)
	}
	g.asm.MovRR(x64asm.RCX, x64asm.RAX)
	g.asm.CallMemRip(exitProcess)
}
