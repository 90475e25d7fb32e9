// Package pefile implements the PE32+ writer described in spec.md §4.8:
// three growing byte buffers (.text/.data/.idata), deferred RVA
// calculation once section sizes are known, and a fixup pass that patches
// RIP-relative displacements recorded during code emission. Grounded
// directly on std/compiler/pe64.go's buildPE64/buildIData64/fixupIData64
// (DOS/COFF/optional-header byte offsets, PE32+ layout, ILT/IAT/hint-name
// table construction), trimmed to the three sections spec.md §4.8 names
// (no DWARF debug sections, no ARM64 .reloc, no COFF symbol table — this
// target is windows/amd64 only) and rebased to spec.md's image base
// 0x140000000 instead of the teacher's 0x400000.
package pefile

import (
	"github.com/windstream-lang/windstreamc/internal/x64asm"
)

const (
	fileAlignment    = 0x200
	sectionAlignment = 0x1000
	imageBase        = 0x140000000
	textRVA          = sectionAlignment // fixed per spec.md §4.8
)

// importSlot tags an AddImport token so AddFunctionCode can tell apart a
// RipFixup targeting .data from one targeting an IAT slot without needing
// a second fixup channel through the x64asm package.
const importSlot = 0x80000000

// FixupKind distinguishes the two kinds of deferred code-buffer patches a
// Builder tracks.
type FixupKind int

const (
	// FixupData patches a RIP-relative disp32 pointing at an offset within
	// the .data buffer (spec.md §4.7 lea_rax_rip_fixup/§4.8 applyFixups).
	FixupData FixupKind = iota
	// FixupImport patches a RIP-relative disp32 pointing at an import's IAT
	// slot (spec.md §4.7 call_mem_rip/§4.8 "yields an indirect call through
	// the IAT slot").
	FixupImport
)

// Fixup is one deferred patch site in the .text buffer.
type Fixup struct {
	CodeOffset int // offset of the 4-byte rel32 operand within .text
	Kind       FixupKind
	DataOffset uint32 // meaningful iff Kind == FixupData
	DLL        string // meaningful iff Kind == FixupImport
	Func       string // meaningful iff Kind == FixupImport
}

// Builder accumulates code, data, and imports, and assembles a PE32+
// executable image once every function has been emitted.
type Builder struct {
	code []byte
	data []byte

	// imports groups imported function names by the DLL they come from, in
	// first-seen order for a deterministic .idata layout.
	importOrder []string
	imports     map[string][]string
	importFlat  []importRef // index -> (dll, func), in AddImport call order

	fixups []Fixup

	stringOffsets map[string]uint32 // dedup cache for AddString

	entryOffset int // .text-relative offset of the entry point, set via SetEntry
}

// New creates an empty Builder.
func New() *Builder {
	return &Builder{
		imports:       map[string][]string{},
		stringOffsets: map[string]uint32{},
	}
}

// AddCode appends code to the .text buffer and returns the offset it was
// placed at, letting callers (the linker merging multiple objects) rebase
// their own recorded Fixup.CodeOffset values.
func (b *Builder) AddCode(code []byte) int {
	base := len(b.code)
	b.code = append(b.code, code...)
	return base
}

// AddData appends bytes to the .data buffer and returns their offset
// within it (spec.md §4.8 "addData(bytes) -> rva" — the returned value is
// section-relative until Build resolves the section's actual RVA and
// applies every recorded Fixup against it).
func (b *Builder) AddData(bytes []byte) uint32 {
	off := uint32(len(b.data))
	b.data = append(b.data, bytes...)
	return off
}

// AddString appends a null-terminated string to .data, deduplicating by
// exact content so repeated literals share one copy, and returns its
// offset.
func (b *Builder) AddString(s string) uint32 {
	if off, ok := b.stringOffsets[s]; ok {
		return off
	}
	off := b.AddData(append([]byte(s), 0))
	b.stringOffsets[s] = off
	return off
}

type importRef struct{ DLL, Func string }

// AddImport records dll!func as needed and returns a token identifying the
// slot: callers pass this token to x64asm's CallMemRip/LeaRaxRipFixup in
// place of a real RVA (which isn't known until the .idata section's
// layout is finalized in Build), and thread the resulting RipFixups back
// through AddFunctionCode.
func (b *Builder) AddImport(dll, fn string) uint32 {
	for i, ref := range b.importFlat {
		if ref.DLL == dll && ref.Func == fn {
			return importSlot | uint32(i)
		}
	}
	if _, ok := b.imports[dll]; !ok {
		b.importOrder = append(b.importOrder, dll)
	}
	b.imports[dll] = append(b.imports[dll], fn)
	idx := len(b.importFlat)
	b.importFlat = append(b.importFlat, importRef{DLL: dll, Func: fn})
	return importSlot | uint32(idx)
}

// AddDataFixup records a code-buffer disp32 site that must be patched to
// point at dataOffset once the .data section's RVA is known.
func (b *Builder) AddDataFixup(codeOffset int, dataOffset uint32) {
	b.fixups = append(b.fixups, Fixup{CodeOffset: codeOffset, Kind: FixupData, DataOffset: dataOffset})
}

// AddImportFixup records a `call [rip+disp32]` site that must be patched
// to point at dll!fn's IAT slot once imports are finalized.
func (b *Builder) AddImportFixup(codeOffset int, dll, fn string) {
	b.fixups = append(b.fixups, Fixup{CodeOffset: codeOffset, Kind: FixupImport, DLL: dll, Func: fn})
}

// AddFunctionCode appends one function's already-assembled code and
// translates its RipFixups (recorded against LeaRaxRipFixup/CallMemRip
// targets obtained from AddData/AddString/AddImport) into this Builder's
// own fixup list, rebased to the code's position in the shared .text
// buffer. The Assembler's own Resolve (label fixups) must already have
// run; no peephole pass is applied to the code.
func (b *Builder) AddFunctionCode(code []byte, fixups []x64asm.RipFixup) int {
	base := b.AddCode(code)
	for _, f := range fixups {
		if f.TargetRVA&importSlot != 0 {
			idx := f.TargetRVA &^ importSlot
			ref := b.importFlat[idx]
			b.AddImportFixup(base+f.CodeOffset, ref.DLL, ref.Func)
		} else {
			b.AddDataFixup(base+f.CodeOffset, f.TargetRVA)
		}
	}
	return base
}

func alignUp(v, align int) int { return (v + align - 1) & ^(align - 1) }
