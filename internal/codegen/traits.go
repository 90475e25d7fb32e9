package codegen

import "github.com/windstream-lang/windstreamc/internal/ast"

// recordImpl records every method an impl block provides, both under its
// qualified vtable key ("Type#Trait" -> method -> label, spec.md §4.10.8's
// vtable shape) and under a flat method-name fallback table dynamic
// dispatch uses until real vtables are wired (see compileDynamicDispatch).
func (g *Generator) recordImpl(d *ast.ImplDecl) {
	typeName := typeExprName(d.ForType)
	key := typeName + "#" + d.TraitName
	if g.vtables[key] == nil {
		g.vtables[key] = map[string]string{}
	}
	for _, m := range d.Methods {
		label := implMethodLabel(d, m.Name)
		g.vtables[key][m.Name] = label
		g.methodImpls[m.Name] = append(g.methodImpls[m.Name], label)
	}
}

// anyImplLabel returns some implementation of method, preferring the first
// one recorded (in source declaration order).
func (g *Generator) anyImplLabel(method string) (string, bool) {
	labels := g.methodImpls[method]
	if len(labels) == 0 {
		return "", false
	}
	return labels[0], true
}

// compileDynamicDispatch handles a method call whose receiver's concrete
// type codegen couldn't resolve statically (an interface/trait-object
// value, spec.md §4.10.8). Real vtable dispatch needs a data-section slot
// holding a code address, which requires a data-referencing-code fixup kind
// internal/pefile doesn't implement (AddDataFixup/AddImportFixup only patch
// *.text* instructions that reference data/imports, not the reverse) —
// until that's added, every dynamic call resolves to whichever impl
// registered the method first. Single-implementor traits (the overwhelming
// common case) dispatch correctly; genuine runtime polymorphism across
// multiple implementors of the same trait is not supported.
func (g *Generator) compileDynamicDispatch(m *ast.Member, args []ast.Arg) {
	label, ok := g.anyImplLabel(m.Name)
	if !ok {
		return
	}
	g.loadArgsIntoRegisters(args)
	g.asm.SubRspImm32(32)
	g.asm.CallRel32(label)
	g.asm.AddRspImm32(32)
}

// finalizeVtables is a placeholder hook called once after every function
// body is compiled; vtable bookkeeping itself happens eagerly in recordImpl
// as impl blocks are walked; kept as its own step since a future
// data-referencing-code fixup (see compileDynamicDispatch) would build the
// actual vtable arrays here, once every method label's final address is
// known.
func (g *Generator) finalizeVtables() {}
