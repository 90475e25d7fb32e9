package gcrt

import (
	"strconv"

	"github.com/windstream-lang/windstreamc/internal/pefile"
	"github.com/windstream-lang/windstreamc/internal/x64asm"
)

// EmitCollectRoutine emits the `gc_collect` routine spec.md §4.9 describes:
// a conservative stack scan that marks every heap object whose header a
// live stack slot plausibly points into, followed by a sweep that unlinks
// and frees every unmarked, unpinned node from the allocation list. It
// must be emitted exactly once per program into the same Assembler that
// will later resolve every EmitAllocSite's `call_rel32(gc_collect)`, since
// x64asm's label namespace is shared within one Assembler rather than
// scoped per routine.
//
// Register use: rsi holds the globals-record address throughout —
// non-volatile across the Windows API calls this routine makes, unlike
// r11, which the calling convention leaves caller-saved. The mark phase
// uses rbx/r12/r13/r14/r15 as scan/list-walk state; the sweep phase
// reuses r13/r14/r15/r9 once marking is done. rsp and r12 are never used
// as a memory-operand base (x64asm's LoadMem/StoreMem require a non-SIB
// base register), matching the restriction x64asm/mem.go documents.
func EmitCollectRoutine(a *x64asm.Assembler, pe *pefile.Builder, g *Globals) {
	a.Label("gc_collect")
	a.PushR(x64asm.RBP)
	a.MovRbpRsp()
	a.PushR(x64asm.RBX)
	a.PushR(x64asm.RSI)
	a.PushR(x64asm.R12)
	a.PushR(x64asm.R13)
	a.PushR(x64asm.R14)
	a.PushR(x64asm.R15)

	a.LeaRegRipFixup(x64asm.RSI, g.RVA)

	// --- mark phase: conservative scan of [rsp, stackBottom) ---
	a.MovRR(x64asm.RBX, x64asm.RSP)
	a.LoadMem(x64asm.RSI, offStackBottom, x64asm.R12)

	a.Label("gc_mark_loop")
	a.CmpRR(x64asm.RBX, x64asm.R12)
	a.JccRel32(x64asm.CC_GE, "gc_mark_done")
	a.LoadMem(x64asm.RBX, 0, x64asm.R13) // candidate value at this stack slot

	a.LoadMem(x64asm.RSI, offAllocHead, x64asm.R14)
	a.Label("gc_scan_list")
	a.TestRR(x64asm.R14, x64asm.R14)
	a.JccRel32(x64asm.CC_E, "gc_scan_list_done")
	a.MovRR(x64asm.R15, x64asm.R14)
	a.AddRI(x64asm.R15, HeaderSize) // r15 = this node's user-data pointer
	a.CmpRR(x64asm.R13, x64asm.R15)
	a.JccRel32(x64asm.CC_NE, "gc_scan_list_next")
	a.MovRegImm64(x64asm.R9, 1)
	a.StoreMemByte(x64asm.R14, OffMarked, x64asm.R9)
	a.JmpRel32("gc_scan_list_done")
	a.Label("gc_scan_list_next")
	a.LoadMem(x64asm.R14, OffNext, x64asm.R14)
	a.JmpRel32("gc_scan_list")
	a.Label("gc_scan_list_done")

	a.AddRI(x64asm.RBX, 8)
	a.JmpRel32("gc_mark_loop")
	a.Label("gc_mark_done")

	// --- mark phase: explicit roots, always scanned regardless of where
	// the stack scan's conservative [rsp, stackBottom) window missed them
	// (e.g. a root stashed only in a register-spilled closure environment) ---
	a.LoadMem(x64asm.RSI, offRootsPtr, x64asm.RBX)
	a.XorRR(x64asm.R12, x64asm.R12) // root index

	a.Label("gc_root_loop")
	a.LoadMem(x64asm.RSI, offRootsCount, x64asm.R9)
	a.CmpRR(x64asm.R12, x64asm.R9)
	a.JccRel32(x64asm.CC_GE, "gc_root_done")

	a.MovRR(x64asm.R13, x64asm.R12)
	a.MovRegImm64(x64asm.R9, 8)
	a.ImulRR(x64asm.R13, x64asm.R9)
	a.AddRR(x64asm.R13, x64asm.RBX)
	a.LoadMem(x64asm.R13, 0, x64asm.R13) // r13 = roots[index], the root pointer

	a.LoadMem(x64asm.RSI, offAllocHead, x64asm.R14)
	a.Label("gc_root_scan_list")
	a.TestRR(x64asm.R14, x64asm.R14)
	a.JccRel32(x64asm.CC_E, "gc_root_scan_list_done")
	a.MovRR(x64asm.R15, x64asm.R14)
	a.AddRI(x64asm.R15, HeaderSize)
	a.CmpRR(x64asm.R13, x64asm.R15)
	a.JccRel32(x64asm.CC_NE, "gc_root_scan_list_next")
	a.MovRegImm64(x64asm.R9, 1)
	a.StoreMemByte(x64asm.R14, OffMarked, x64asm.R9)
	a.JmpRel32("gc_root_scan_list_done")
	a.Label("gc_root_scan_list_next")
	a.LoadMem(x64asm.R14, OffNext, x64asm.R14)
	a.JmpRel32("gc_root_scan_list")
	a.Label("gc_root_scan_list_done")

	a.AddRI(x64asm.R12, 1)
	a.JmpRel32("gc_root_loop")
	a.Label("gc_root_done")

	// --- sweep phase ---
	a.XorRR(x64asm.R15, x64asm.R15) // prev = null
	a.LoadMem(x64asm.RSI, offAllocHead, x64asm.R13)

	a.Label("gc_sweep_loop")
	a.TestRR(x64asm.R13, x64asm.R13)
	a.JccRel32(x64asm.CC_E, "gc_sweep_done")

	a.LoadMemByte(x64asm.R13, OffMarked, x64asm.R14)
	a.TestRR(x64asm.R14, x64asm.R14)
	a.JccRel32(x64asm.CC_NE, "gc_sweep_keep")

	a.LoadMemByte(x64asm.R13, OffFlags, x64asm.R14)
	a.MovRegImm64(x64asm.R9, PinnedFlagBit)
	a.AndRR(x64asm.R14, x64asm.R9)
	a.TestRR(x64asm.R14, x64asm.R14)
	a.JccRel32(x64asm.CC_NE, "gc_sweep_keep")

	// unlink: next = cur->next; if prev == null, head = next, else prev->next = next
	a.LoadMem(x64asm.R13, OffNext, x64asm.R14)
	a.TestRR(x64asm.R15, x64asm.R15)
	a.JccRel32(x64asm.CC_E, "gc_sweep_unlink_head")
	a.StoreMem(x64asm.R15, OffNext, x64asm.R14)
	a.JmpRel32("gc_sweep_unlinked")
	a.Label("gc_sweep_unlink_head")
	a.StoreMem(x64asm.RSI, offAllocHead, x64asm.R14)
	a.Label("gc_sweep_unlinked")

	emitHeapFree(a, pe, x64asm.R13)

	a.MovRR(x64asm.R13, x64asm.R14) // cur = next, prev unchanged
	a.JmpRel32("gc_sweep_loop")

	a.Label("gc_sweep_keep")
	a.XorRR(x64asm.R9, x64asm.R9)
	a.StoreMemByte(x64asm.R13, OffMarked, x64asm.R9) // clear mark for next cycle
	a.MovRR(x64asm.R15, x64asm.R13)                  // prev = cur
	a.LoadMem(x64asm.R13, OffNext, x64asm.R14)
	a.MovRR(x64asm.R13, x64asm.R14)
	a.JmpRel32("gc_sweep_loop")

	a.Label("gc_sweep_done")
	a.PopR(x64asm.R15)
	a.PopR(x64asm.R14)
	a.PopR(x64asm.R13)
	a.PopR(x64asm.R12)
	a.PopR(x64asm.RSI)
	a.PopR(x64asm.RBX)
	a.Leave()
	a.Ret()
}

// emitHeapFree frees the node whose header is at ptrReg, through the
// custom free function in the GC globals if one is set (spec.md §4.9
// point 5), else via HeapFree(GetProcessHeap(), 0, ptrReg). ptrReg must
// not be rcx/rdx/r8 (clobbered as argument registers) nor rsi (holds the
// globals pointer across this call); gc_collect always calls this with
// the node pointer in r13.
func emitHeapFree(a *x64asm.Assembler, pe *pefile.Builder, ptrReg int) {
	getProcessHeap := pe.AddImport("kernel32.dll", "GetProcessHeap")
	heapFree := pe.AddImport("kernel32.dll", "HeapFree")

	freeSiteCounter++
	customLabel := "gcrt_free_custom_" + strconv.Itoa(freeSiteCounter)
	doneLabel := "gcrt_free_done_" + strconv.Itoa(freeSiteCounter)

	a.LoadMem(x64asm.RSI, offCustomFreeFn, x64asm.R9)
	a.TestRR(x64asm.R9, x64asm.R9)
	a.JccRel32(x64asm.CC_NE, customLabel)

	a.SubRspImm32(32)
	a.CallMemRip(getProcessHeap)
	a.MovRR(x64asm.RCX, x64asm.RAX)
	a.XorRR(x64asm.RDX, x64asm.RDX)
	a.MovRR(x64asm.R8, ptrReg)
	a.CallMemRip(heapFree)
	a.AddRspImm32(32)
	a.JmpRel32(doneLabel)

	a.Label(customLabel)
	a.SubRspImm32(32)
	a.MovRR(x64asm.RCX, ptrReg)
	a.CallR(x64asm.R9)
	a.AddRspImm32(32)
	a.Label(doneLabel)
}

var freeSiteCounter int
