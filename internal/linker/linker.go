// Package linker implements spec.md §4.11: merging one or more
// internal/objfile objects into a single PE32+ image. Grounded on
// std/compiler/elf_x64.go and pe64.go's section-building style, generalized
// from the teacher's "one module, one image" assumption to a standalone
// multi-object merge, and on std/compiler/backend.go's CallFixup/JumpFixup/
// symEntry bookkeeping, which this package's relocation-rewriting step
// mirrors at link time instead of assembly time.
package linker

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/windstream-lang/windstreamc/internal/objfile"
	"github.com/windstream-lang/windstreamc/internal/pefile"
)

// Error reports a spec.md §4.11/§7 fatal linker condition: unresolved
// external symbol, duplicate strong symbol, or a missing object file.
type Error struct {
	Message string
}

func (e *Error) Error() string { return e.Message }

// resolvedSymbol is one entry of the merged symbol table, with Offset
// rebased to the final merged section (not the defining object's own
// section-relative offset).
type resolvedSymbol struct {
	objfile.Symbol
	objIndex int
}

// Linker accumulates objects and produces one merged PE image. Log is the
// logrus entry used for -v/--debug trace output (spec.md AMBIENT STACK);
// callers pass a field-scoped entry so pipeline-stage attribution stays
// consistent with internal/driver's own logging.
type Linker struct {
	Log *logrus.Entry

	objects []*objfile.Object
	names   []string // object source name, parallel to objects, for .map / duplicate-symbol diagnostics
}

// New creates a Linker. If log is nil, a discarding entry is used so Link
// can be called without wiring logging in tests.
func New(log *logrus.Entry) *Linker {
	if log == nil {
		silent := logrus.New()
		silent.SetOutput(io.Discard)
		log = logrus.NewEntry(silent)
	}
	return &Linker{Log: log}
}

// AddObject registers obj, read from the file named name (used only for
// diagnostics and the .map file's "source object" column).
func (l *Linker) AddObject(name string, obj *objfile.Object) {
	l.objects = append(l.objects, obj)
	l.names = append(l.names, name)
}

// LoadObjectFile reads and registers the object stored at path, per spec.md
// §6 "-l <file.o>"; a missing file is a fatal linker error (spec.md §7).
func (l *Linker) LoadObjectFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return &Error{Message: fmt.Sprintf("linker: missing object file %s: %v", path, err)}
	}
	defer f.Close()
	obj, err := objfile.Read(f)
	if err != nil {
		return &Error{Message: fmt.Sprintf("linker: %s: %v", path, err)}
	}
	l.AddObject(path, obj)
	return nil
}

// Link runs spec.md §4.11's four steps and returns the finished PE32+
// image plus a `.map` listing (symbol, final RVA, source object) for every
// defined symbol, sorted by RVA.
func (l *Linker) Link() (image []byte, mapText string, err error) {
	l.Log.WithField("objects", len(l.objects)).Info("linker: merging objects")

	global, err := l.collectSymbols()
	if err != nil {
		return nil, "", err
	}
	if err := l.verifyReferences(global); err != nil {
		return nil, "", err
	}

	pe := pefile.New()
	textBase := make([]int, len(l.objects))
	dataBase := make([]uint32, len(l.objects))
	var entryRVA int = -1

	for i, obj := range l.objects {
		textBase[i] = pe.AddCode(obj.Sections[objfile.SectionText])
		dataBase[i] = pe.AddData(obj.Sections[objfile.SectionData])
	}
	for i, obj := range l.objects {
		if err := l.rewriteRelocations(pe, obj, i, textBase, dataBase, global); err != nil {
			return nil, "", err
		}
		if obj.Entry != "" {
			if sym, ok := global[obj.Entry]; ok && sym.objIndex == i {
				entryRVA = textBase[i] + int(sym.Offset)
			}
		}
	}
	if entryRVA < 0 {
		return nil, "", &Error{Message: "linker: no object defines an entry point"}
	}
	pe.SetEntry(entryRVA)

	return pe.Build(), l.buildMap(global, textBase), nil
}

// collectSymbols implements spec.md §4.11 step 1.
func (l *Linker) collectSymbols() (map[string]resolvedSymbol, error) {
	global := map[string]resolvedSymbol{}
	for i, obj := range l.objects {
		for _, sym := range obj.Symbols {
			if sym.Import {
				continue
			}
			existing, ok := global[sym.Name]
			switch {
			case !ok:
				global[sym.Name] = resolvedSymbol{Symbol: sym, objIndex: i}
			case existing.Binding == objfile.Weak && sym.Binding == objfile.Strong:
				global[sym.Name] = resolvedSymbol{Symbol: sym, objIndex: i}
			case existing.Binding == objfile.Strong && sym.Binding == objfile.Weak:
				// existing strong definition wins, nothing to do
			default:
				return nil, &Error{Message: fmt.Sprintf(
					"linker: duplicate strong symbol %q defined in %s and %s",
					sym.Name, l.names[existing.objIndex], l.names[i])}
			}
		}
	}
	return global, nil
}

// verifyReferences implements spec.md §4.11 step 2 for named (non-import,
// non-self-data) relocations; the synthetic ".data" self-reference every
// object's own data fixups use (see internal/codegen/object.go) is not a
// cross-object symbol and needs no lookup.
func (l *Linker) verifyReferences(global map[string]resolvedSymbol) error {
	for i, obj := range l.objects {
		for _, rl := range obj.Relocations {
			if rl.Kind == objfile.RelImport || rl.Symbol == objfile.SectionData {
				continue
			}
			if _, ok := global[rl.Symbol]; !ok {
				return &Error{Message: fmt.Sprintf(
					"linker: %s: undefined reference to %q", l.names[i], rl.Symbol)}
			}
		}
	}
	return nil
}

// rewriteRelocations implements spec.md §4.11 step 3: each relocation's
// target is recomputed against the merged sections' final layout before
// being handed to pefile.Builder as an ordinary code-buffer fixup.
func (l *Linker) rewriteRelocations(pe *pefile.Builder, obj *objfile.Object, objIndex int, textBase []int, dataBase []uint32, global map[string]resolvedSymbol) error {
	for _, rl := range obj.Relocations {
		codeOffset := textBase[objIndex] + int(rl.Offset)
		switch rl.Kind {
		case objfile.RelImport:
			dll, fn, ok := strings.Cut(rl.Symbol, "!")
			if !ok {
				return &Error{Message: fmt.Sprintf("linker: malformed import symbol %q", rl.Symbol)}
			}
			pe.AddImportFixup(codeOffset, dll, fn)
		case objfile.RelData:
			if rl.Symbol == objfile.SectionData {
				pe.AddDataFixup(codeOffset, dataBase[objIndex]+uint32(rl.Addend))
				continue
			}
			sym, ok := global[rl.Symbol]
			if !ok {
				return &Error{Message: fmt.Sprintf("linker: undefined reference to %q", rl.Symbol)}
			}
			pe.AddDataFixup(codeOffset, dataBase[sym.objIndex]+sym.Offset+uint32(rl.Addend))
		}
	}
	return nil
}

// buildMap renders spec.md §4.11's optional `.map` file: every defined
// symbol, its final RVA, and the object it came from, sorted by RVA.
func (l *Linker) buildMap(global map[string]resolvedSymbol, textBase []int) string {
	type row struct {
		name string
		rva  int
		src  string
	}
	rows := make([]row, 0, len(global))
	for name, sym := range global {
		rows = append(rows, row{name: name, rva: textBase[sym.objIndex] + int(sym.Offset), src: l.names[sym.objIndex]})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].rva < rows[j].rva })

	var b strings.Builder
	for _, r := range rows {
		fmt.Fprintf(&b, "%08x %-40s %s\n", r.rva, r.name, r.src)
	}
	return b.String()
}
