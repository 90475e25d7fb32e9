package codegen

import (
	"github.com/windstream-lang/windstreamc/internal/ast"
	"github.com/windstream-lang/windstreamc/internal/mono"
	"github.com/windstream-lang/windstreamc/internal/objfile"
	"github.com/windstream-lang/windstreamc/internal/pefile"
)

// GenerateObject runs the same passes as Generate but stops short of
// building a PE image, snapshotting the Builder's accumulated .text/.data
// bytes and deferred fixups into an internal/objfile.Object instead, per
// spec.md §6's "-S/--obj" CLI mode and §4.11's object-file input to the
// linker. Every top-level function name becomes a Strong-bound .text
// symbol so a later `--link` invocation can resolve calls across objects
// by name, the way the linker's symbol-collection step expects.
func (g *Generator) GenerateObject(prog *ast.Program, instantiations []*mono.Instantiation) *objfile.Object {
	base, entryOffset := g.assemble(prog, instantiations)

	obj := objfile.NewObject()
	obj.AddSection(objfile.SectionText, g.pe.Code())
	obj.AddSection(objfile.SectionData, g.pe.Data())

	for name := range g.funcs {
		if off, ok := g.asm.LabelOffset(name); ok {
			obj.Symbols = append(obj.Symbols, objfile.Symbol{
				Name:    name,
				Section: objfile.SectionText,
				Offset:  uint32(base + off),
				Binding: objfile.Strong,
			})
		}
	}
	obj.Entry = "_start"
	obj.Symbols = append(obj.Symbols, objfile.Symbol{
		Name:    "_start",
		Section: objfile.SectionText,
		Offset:  uint32(base + entryOffset),
		Binding: objfile.Strong,
	})

	for _, f := range g.pe.Fixups() {
		switch f.Kind {
		case pefile.FixupData:
			obj.Relocations = append(obj.Relocations, objfile.Relocation{
				Section: objfile.SectionText,
				Offset:  uint32(f.CodeOffset),
				Symbol:  objfile.SectionData, // synthetic: "this object's own .data base"
				Addend:  int64(f.DataOffset),
				Kind:    objfile.RelData,
			})
		case pefile.FixupImport:
			obj.Relocations = append(obj.Relocations, objfile.Relocation{
				Section: objfile.SectionText,
				Offset:  uint32(f.CodeOffset),
				Symbol:  f.DLL + "!" + f.Func,
				Kind:    objfile.RelImport,
			})
		}
	}
	return obj
}
