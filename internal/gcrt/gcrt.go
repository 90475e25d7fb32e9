// Package gcrt generates the x64 bytes implementing the conservative
// mark-and-sweep collector described in spec.md §4.9: it is not a Go
// garbage collector, it is a code generator for one, emitted into the
// target program's own `.text`/`.data` the way std/runtime/runtime.go's
// Alloc/Memcopy/Memzero supply the teacher language's runtime support as
// ordinary functions compiled alongside user code — here the "functions"
// are hand-emitted x64 sequences instead of Go source the teacher's own
// compiler subset would lower, since this target has no such subset to
// rely on.
package gcrt

import (
	"github.com/windstream-lang/windstreamc/internal/pefile"
)

// Header field byte offsets within the 16-byte GC object header (spec.md
// §4.6: "size_in_bytes:u32, type_tag:u16, marked:u8, flags:u8, next:u64").
const (
	HeaderSize       = 16
	OffSizeInBytes   = 0
	OffTypeTag       = 4
	OffMarked        = 6
	OffFlags         = 7
	OffNext          = 8
	PinnedFlagBit    = 0x01
)

// Object type tags distinguishing the heap-allocated shapes spec.md §4.6
// names (list, record, closure, string, map, map entry).
const (
	TagList = iota
	TagRecord
	TagClosure
	TagString
	TagMap
	TagMapEntry
)

// Globals describes the byte offsets of the GC-global record spec.md §4.9
// places in `.data`: the allocation head pointer, the running byte
// counter and its collection threshold, the two overridable allocator
// function pointers, the captured stack-bottom pointer used for the
// conservative stack scan, and the explicit root set (a fixed 64-slot array
// of pointers plus a count; EmitAddRoot drops roots past that capacity).
type Globals struct {
	RVA uint32 // base RVA of the record, once placed in .data via Place
}

const (
	offAllocHead       = 0
	offBytesAllocated  = 8
	offThreshold       = 16
	offCustomAllocFn   = 24
	offCustomFreeFn    = 32
	offStackBottom     = 40
	offRootsPtr        = 48
	offRootsCount      = 56
	offRootsCap        = 64
	offPeakBytes       = 72
	globalsRecordSize  = 80

	defaultThreshold = 1 << 20 // 1 MiB, per spec.md §4.9
	defaultRootsCap  = 64
)

// Place reserves the roots array and the GC-globals record in the PE
// builder's .data section, in that order so the record can be seeded with
// the array's RVA directly (pefile's AddData is append-only, so the roots
// array must exist before the record that points at it is built). The
// allocation head, byte counter, custom allocator pointers, stack bottom,
// and live root count all start zeroed, matching the zero-value globals
// idiom std/runtime/runtime.go uses for `var heapPtr uintptr` / `var
// heapEnd uintptr`.
func Place(pe *pefile.Builder) *Globals {
	rootsRVA := pe.AddData(make([]byte, defaultRootsCap*8))

	buf := make([]byte, globalsRecordSize)
	putU64(buf[offThreshold:], uint64(defaultThreshold))
	putU64(buf[offRootsPtr:], uint64(rootsRVA))
	putU64(buf[offRootsCap:], uint64(defaultRootsCap))
	rva := pe.AddData(buf)
	return &Globals{RVA: rva}
}

// StackBottomOffset returns the GC-globals field holding the captured
// initial stack pointer, the upper bound of the conservative stack scan.
// The entry point the code generator emits writes this once at program
// start; everything else in this package only reads it.
func StackBottomOffset() int { return offStackBottom }

func putU64(buf []byte, v uint64) {
	for i := 0; i < 8; i++ {
		buf[i] = byte(v >> (8 * uint(i)))
	}
}
