package gcrt

import (
	"strconv"

	"github.com/windstream-lang/windstreamc/internal/pefile"
	"github.com/windstream-lang/windstreamc/internal/x64asm"
)

const (
	heapZeroMemory = 8
)

// allocSiteCounter gives every EmitAllocSite call its own label namespace:
// a program emits one allocation site per `new` expression, all sharing a
// single Assembler's label map, so reusing "gcrt_alloc_ok" verbatim across
// calls would let the second call's Label rebind the first call's forward
// jump target.
var allocSiteCounter int

// EmitAllocSite emits the inline allocation sequence spec.md §4.9
// describes: "compute total = 16 + user_size, align up to 8, call
// HeapAlloc(GetProcessHeap(), HEAP_ZERO_MEMORY, total), write the header
// fields, return ptr + 16." sizeReg holds the requested user payload size
// on entry; the result (a pointer past the header) is left in rax. rbx,
// r9, r10, and r11 are clobbered as scratch, and rcx, rdx, and r8 by the
// allocator call — callers must not rely on them
// surviving an allocation site, matching how the teacher's own Alloc in
// std/runtime/runtime.go treats its bump pointer as freely rewritable
// working state rather than a preserved register.
func EmitAllocSite(a *x64asm.Assembler, pe *pefile.Builder, g *Globals, sizeReg int, typeTag uint16) {
	if sizeReg != x64asm.RBX {
		a.MovRR(x64asm.RBX, sizeReg)
	}
	a.AddRI(x64asm.RBX, HeaderSize)
	a.AddRI(x64asm.RBX, 7)
	a.MovRegImm64(x64asm.R9, 0xFFFFFFFFFFFFFFF8)
	a.AndRR(x64asm.RBX, x64asm.R9)

	getProcessHeap := pe.AddImport("kernel32.dll", "GetProcessHeap")
	heapAlloc := pe.AddImport("kernel32.dll", "HeapAlloc")
	exitProcess := pe.AddImport("kernel32.dll", "ExitProcess")

	allocSiteCounter++
	okLabel := "gcrt_alloc_ok_" + strconv.Itoa(allocSiteCounter)
	skipLabel := "gcrt_alloc_skip_collect_" + strconv.Itoa(allocSiteCounter)
	customLabel := "gcrt_alloc_custom_" + strconv.Itoa(allocSiteCounter)
	doneAllocLabel := "gcrt_alloc_done_" + strconv.Itoa(allocSiteCounter)

	a.LeaRegRipFixup(x64asm.R11, g.RVA)
	a.LoadMem(x64asm.R11, offCustomAllocFn, x64asm.R10)
	a.TestRR(x64asm.R10, x64asm.R10)
	a.JccRel32(x64asm.CC_NE, customLabel)

	a.SubRspImm32(32)
	a.CallMemRip(getProcessHeap)
	a.MovRR(x64asm.RCX, x64asm.RAX)
	a.MovRegImm64(x64asm.RDX, heapZeroMemory)
	a.MovRR(x64asm.R8, x64asm.RBX)
	a.CallMemRip(heapAlloc)
	a.AddRspImm32(32)
	a.JmpRel32(doneAllocLabel)

	// custom allocator: call through the function pointer in the GC
	// globals with the requested byte count in rcx (spec.md §4.9 point 5).
	a.Label(customLabel)
	a.SubRspImm32(32)
	a.MovRR(x64asm.RCX, x64asm.RBX)
	a.CallR(x64asm.R10)
	a.AddRspImm32(32)
	a.Label(doneAllocLabel)

	a.TestRR(x64asm.RAX, x64asm.RAX)
	a.JccRel32(x64asm.CC_NE, okLabel)
	a.SubRspImm32(32)
	a.MovRegImm64(x64asm.RCX, 1)
	a.CallMemRip(exitProcess)
	a.Label(okLabel)

	a.StoreMemDword(x64asm.RAX, OffSizeInBytes, x64asm.RBX)
	a.MovRegImm64(x64asm.R10, uint64(typeTag))
	a.StoreMemWord(x64asm.RAX, OffTypeTag, x64asm.R10)
	a.StoreMemByte(x64asm.RAX, OffMarked, zeroReg(a))
	a.StoreMemByte(x64asm.RAX, OffFlags, zeroReg(a))

	a.LeaRegRipFixup(x64asm.R11, g.RVA)
	a.LoadMem(x64asm.R11, offAllocHead, x64asm.R10)
	a.StoreMem(x64asm.RAX, OffNext, x64asm.R10)
	a.StoreMem(x64asm.R11, offAllocHead, x64asm.RAX)

	a.LoadMem(x64asm.R11, offBytesAllocated, x64asm.R10)
	a.AddRR(x64asm.R10, x64asm.RBX)
	a.StoreMem(x64asm.R11, offBytesAllocated, x64asm.R10)

	peakLabel := "gcrt_alloc_peak_ok_" + strconv.Itoa(allocSiteCounter)
	a.LoadMem(x64asm.R11, offPeakBytes, x64asm.R9)
	a.CmpRR(x64asm.R10, x64asm.R9)
	a.JccRel32(x64asm.CC_LE, peakLabel)
	a.StoreMem(x64asm.R11, offPeakBytes, x64asm.R10)
	a.Label(peakLabel)

	a.LoadMem(x64asm.R11, offThreshold, x64asm.R9)
	a.CmpRR(x64asm.R10, x64asm.R9)
	a.JccRel32(x64asm.CC_L, skipLabel)
	a.CallRel32("gc_collect")
	a.Label(skipLabel)

	a.AddRI(x64asm.RAX, HeaderSize)
}

// zeroReg emits `xor r9, r9` and returns R9, a throwaway zero source for
// the single-byte header field writes.
func zeroReg(a *x64asm.Assembler) int {
	a.XorRR(x64asm.R9, x64asm.R9)
	return x64asm.R9
}
