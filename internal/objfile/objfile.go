// Package objfile implements the custom object file format described in
// spec.md §6 "Object file format" and §4.11: a header with magic bytes,
// section descriptors, a symbol table, a relocation table, and raw section
// bytes. internal/codegen produces objects (one per compiled source), and
// internal/linker consumes them. Grounded on std/compiler/backend.go's
// CallFixup/JumpFixup/symEntry bookkeeping structs, generalized from the
// teacher's in-memory-only fixup lists into a format that round-trips
// through encoding/binary so separately invoked `-S` runs can be linked
// together later, per spec.md §6's positional "-l <file.o>" CLI surface.
package objfile

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// magic identifies a windstreamc object file; byte layout is
// implementation-defined but stable across a single toolchain build, per
// spec.md §6.
var magic = [4]byte{'W', 'S', 'O', 1}

// Binding distinguishes a strongly- from a weakly-defined symbol, per
// spec.md §4.11 step 1: "duplicate strong definitions are errors; duplicates
// where one is weak yield the strong one."
type Binding uint8

const (
	Strong Binding = iota
	Weak
)

// Section names this format supports (.text and .data only), so the linker can lay each object's sections end to end per
// section before calling pefile.Builder.
const (
	SectionText = ".text"
	SectionData = ".data"
)

// Symbol is one entry in an object's symbol table: a name bound to an
// offset within one of the object's sections.
type Symbol struct {
	Name    string
	Section string
	Offset  uint32
	Binding Binding
	Import  bool // true if Name names an external "dll!func" rather than a local definition
}

// RelocKind distinguishes the two deferred patch kinds pefile.Fixup already
// tracks per compiled function; the linker hands RelData to
// pefile.AddDataFixup and RelImport to pefile.AddImportFixup.
type RelocKind uint8

const (
	// RelData targets a symbol defined in this object's own .data section.
	RelData RelocKind = iota
	// RelImport targets a "dll!func" import symbol resolved by the PE
	// writer's import table rather than by a section offset.
	RelImport
)

// Relocation is one deferred disp32 patch site within Section at Offset.
type Relocation struct {
	Section string
	Offset  uint32
	Symbol  string
	Addend  int64
	Kind    RelocKind
}

// Object is one compiled unit: section bytes plus the symbol table and
// relocation list needed to merge it with others.
type Object struct {
	Sections    map[string][]byte
	SectionList []string // Sections' keys in deterministic emission order
	Symbols     []Symbol
	Relocations []Relocation
	Entry       string // symbol name of the entry point, "" if this object defines none
}

// NewObject creates an empty Object ready to accumulate section bytes.
func NewObject() *Object {
	return &Object{Sections: map[string][]byte{}}
}

// AddSection appends bytes to name (creating it if new) and returns the
// offset they were placed at within that section.
func (o *Object) AddSection(name string, data []byte) uint32 {
	if _, ok := o.Sections[name]; !ok {
		o.SectionList = append(o.SectionList, name)
	}
	off := uint32(len(o.Sections[name]))
	o.Sections[name] = append(o.Sections[name], data...)
	return off
}

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(r io.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// Write serializes o as: magic, section count, then per section (name,
// length, bytes), symbol count, then per symbol (name, section, offset,
// binding, import flag), relocation count, then per relocation (section,
// offset, symbol, addend, kind), and finally the entry symbol name (empty
// string if none).
func (o *Object) Write(w io.Writer) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.Write(magic[:]); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint32(len(o.SectionList))); err != nil {
		return err
	}
	for _, name := range o.SectionList {
		if err := writeString(bw, name); err != nil {
			return err
		}
		data := o.Sections[name]
		if err := binary.Write(bw, binary.LittleEndian, uint32(len(data))); err != nil {
			return err
		}
		if _, err := bw.Write(data); err != nil {
			return err
		}
	}
	if err := binary.Write(bw, binary.LittleEndian, uint32(len(o.Symbols))); err != nil {
		return err
	}
	for _, s := range o.Symbols {
		if err := writeString(bw, s.Name); err != nil {
			return err
		}
		if err := writeString(bw, s.Section); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.LittleEndian, s.Offset); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.LittleEndian, s.Binding); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.LittleEndian, s.Import); err != nil {
			return err
		}
	}
	if err := binary.Write(bw, binary.LittleEndian, uint32(len(o.Relocations))); err != nil {
		return err
	}
	for _, rl := range o.Relocations {
		if err := writeString(bw, rl.Section); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.LittleEndian, rl.Offset); err != nil {
			return err
		}
		if err := writeString(bw, rl.Symbol); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.LittleEndian, rl.Addend); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.LittleEndian, rl.Kind); err != nil {
			return err
		}
	}
	if err := writeString(bw, o.Entry); err != nil {
		return err
	}
	return bw.Flush()
}

// Read deserializes an Object previously written by Write.
func Read(r io.Reader) (*Object, error) {
	var got [4]byte
	if _, err := io.ReadFull(r, got[:]); err != nil {
		return nil, err
	}
	if got != magic {
		return nil, fmt.Errorf("objfile: bad magic %v", got)
	}
	o := NewObject()

	var nsec uint32
	if err := binary.Read(r, binary.LittleEndian, &nsec); err != nil {
		return nil, err
	}
	for i := uint32(0); i < nsec; i++ {
		name, err := readString(r)
		if err != nil {
			return nil, err
		}
		var n uint32
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return nil, err
		}
		data := make([]byte, n)
		if _, err := io.ReadFull(r, data); err != nil {
			return nil, err
		}
		o.AddSection(name, data)
	}

	var nsym uint32
	if err := binary.Read(r, binary.LittleEndian, &nsym); err != nil {
		return nil, err
	}
	for i := uint32(0); i < nsym; i++ {
		var s Symbol
		var err error
		if s.Name, err = readString(r); err != nil {
			return nil, err
		}
		if s.Section, err = readString(r); err != nil {
			return nil, err
		}
		if err := binary.Read(r, binary.LittleEndian, &s.Offset); err != nil {
			return nil, err
		}
		if err := binary.Read(r, binary.LittleEndian, &s.Binding); err != nil {
			return nil, err
		}
		if err := binary.Read(r, binary.LittleEndian, &s.Import); err != nil {
			return nil, err
		}
		o.Symbols = append(o.Symbols, s)
	}

	var nrel uint32
	if err := binary.Read(r, binary.LittleEndian, &nrel); err != nil {
		return nil, err
	}
	for i := uint32(0); i < nrel; i++ {
		var rl Relocation
		var err error
		if rl.Section, err = readString(r); err != nil {
			return nil, err
		}
		if err := binary.Read(r, binary.LittleEndian, &rl.Offset); err != nil {
			return nil, err
		}
		if rl.Symbol, err = readString(r); err != nil {
			return nil, err
		}
		if err := binary.Read(r, binary.LittleEndian, &rl.Addend); err != nil {
			return nil, err
		}
		if err := binary.Read(r, binary.LittleEndian, &rl.Kind); err != nil {
			return nil, err
		}
		o.Relocations = append(o.Relocations, rl)
	}

	entry, err := readString(r)
	if err != nil {
		return nil, err
	}
	o.Entry = entry
	return o, nil
}
