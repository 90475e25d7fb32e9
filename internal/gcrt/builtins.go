package gcrt

import "github.com/windstream-lang/windstreamc/internal/x64asm"

// This file emits the GC-facing builtins spec.md's builtin table names:
// gc_pin, gc_unpin, gc_add_root, gc_remove_root, gc_stats, gc_count,
// set_allocator, reset_allocator, allocator_stats, allocator_peak. Each
// takes its argument(s) already placed per the Windows x64 calling
// convention (first arg in rcx, second in rdx) by the code generator's
// builtin-call dispatch, and leaves its result (if any) in rax.

// EmitPin sets the header's pinned flag bit for the object whose user
// pointer is in rcx.
func EmitPin(a *x64asm.Assembler) {
	a.LoadMemByte(x64asm.RCX, OffFlags-HeaderSize, x64asm.R9)
	a.MovRegImm64(x64asm.R10, PinnedFlagBit)
	a.OrRR(x64asm.R9, x64asm.R10)
	a.StoreMemByte(x64asm.RCX, OffFlags-HeaderSize, x64asm.R9)
}

// EmitUnpin clears the header's pinned flag bit.
func EmitUnpin(a *x64asm.Assembler) {
	a.LoadMemByte(x64asm.RCX, OffFlags-HeaderSize, x64asm.R9)
	a.MovRegImm64(x64asm.R10, ^uint64(PinnedFlagBit))
	a.AndRR(x64asm.R9, x64asm.R10)
	a.StoreMemByte(x64asm.RCX, OffFlags-HeaderSize, x64asm.R9)
}

// EmitAddRoot appends the pointer in rcx to the roots array if there is
// room, and increments the live root count. Roots beyond the fixed
// capacity reserved by Place are silently dropped; a full implementation
// would grow the array via the custom/system allocator, left for the code
// generator to wire once it has a call-site convention for that.
func EmitAddRoot(a *x64asm.Assembler, g *Globals) {
	a.LeaRegRipFixup(x64asm.R11, g.RVA)
	a.LoadMem(x64asm.R11, offRootsCount, x64asm.R9)
	a.LoadMem(x64asm.R11, offRootsCap, x64asm.R10)
	a.CmpRR(x64asm.R9, x64asm.R10)
	a.JccRel32(x64asm.CC_GE, "gcrt_add_root_full")

	a.LoadMem(x64asm.R11, offRootsPtr, x64asm.R10)
	// r10 = rootsBase + count*8
	a.MovRegImm64(x64asm.R14, 8)
	a.ImulRR(x64asm.R9, x64asm.R14)
	a.AddRR(x64asm.R10, x64asm.R9)
	a.StoreMem(x64asm.R10, 0, x64asm.RCX)

	a.LoadMem(x64asm.R11, offRootsCount, x64asm.R9)
	a.AddRI(x64asm.R9, 1)
	a.StoreMem(x64asm.R11, offRootsCount, x64asm.R9)
	a.Label("gcrt_add_root_full")
}

// EmitRemoveRoot scans the roots array for the pointer in rcx and, if
// found, swaps the last entry into its slot and decrements the count.
func EmitRemoveRoot(a *x64asm.Assembler, g *Globals) {
	a.LeaRegRipFixup(x64asm.R11, g.RVA)
	a.LoadMem(x64asm.R11, offRootsPtr, x64asm.R10)
	a.XorRR(x64asm.R9, x64asm.R9) // index

	a.Label("gcrt_remove_root_loop")
	a.LoadMem(x64asm.R11, offRootsCount, x64asm.R14)
	a.CmpRR(x64asm.R9, x64asm.R14)
	a.JccRel32(x64asm.CC_GE, "gcrt_remove_root_done")

	a.MovRR(x64asm.R13, x64asm.R9)
	a.MovRegImm64(x64asm.R15, 8)
	a.ImulRR(x64asm.R13, x64asm.R15)
	a.AddRR(x64asm.R13, x64asm.R10) // r13 = &roots[i]
	a.LoadMem(x64asm.R13, 0, x64asm.R15)
	a.CmpRR(x64asm.R15, x64asm.RCX)
	a.JccRel32(x64asm.CC_NE, "gcrt_remove_root_next")

	// roots[i] = roots[count-1]; count--
	a.MovRR(x64asm.R15, x64asm.R14)
	a.SubRI(x64asm.R15, 1)
	a.MovRegImm64(x64asm.R9, 8)
	a.ImulRR(x64asm.R15, x64asm.R9)
	a.AddRR(x64asm.R15, x64asm.R10) // r15 = &roots[count-1]
	a.LoadMem(x64asm.R15, 0, x64asm.R9)
	a.StoreMem(x64asm.R13, 0, x64asm.R9)
	a.LoadMem(x64asm.R11, offRootsCount, x64asm.R14)
	a.SubRI(x64asm.R14, 1)
	a.StoreMem(x64asm.R11, offRootsCount, x64asm.R14)
	a.JmpRel32("gcrt_remove_root_done")

	a.Label("gcrt_remove_root_next")
	a.AddRI(x64asm.R9, 1)
	a.JmpRel32("gcrt_remove_root_loop")
	a.Label("gcrt_remove_root_done")
}

// EmitStats leaves the running allocated-bytes counter in rax.
func EmitStats(a *x64asm.Assembler, g *Globals) {
	a.LeaRegRipFixup(x64asm.R11, g.RVA)
	a.LoadMem(x64asm.R11, offBytesAllocated, x64asm.RAX)
}

// EmitCount walks the allocation list and leaves the live object count in
// rax.
func EmitCount(a *x64asm.Assembler, g *Globals) {
	a.LeaRegRipFixup(x64asm.R11, g.RVA)
	a.LoadMem(x64asm.R11, offAllocHead, x64asm.R9)
	a.XorRR(x64asm.RAX, x64asm.RAX)
	a.Label("gcrt_count_loop")
	a.TestRR(x64asm.R9, x64asm.R9)
	a.JccRel32(x64asm.CC_E, "gcrt_count_done")
	a.AddRI(x64asm.RAX, 1)
	a.LoadMem(x64asm.R9, OffNext, x64asm.R9)
	a.JmpRel32("gcrt_count_loop")
	a.Label("gcrt_count_done")
}

// EmitSetAllocator stores the two override function pointers (rcx = alloc
// fn, rdx = free fn) into the GC globals.
func EmitSetAllocator(a *x64asm.Assembler, g *Globals) {
	a.LeaRegRipFixup(x64asm.R11, g.RVA)
	a.StoreMem(x64asm.R11, offCustomAllocFn, x64asm.RCX)
	a.StoreMem(x64asm.R11, offCustomFreeFn, x64asm.RDX)
}

// EmitResetAllocator nulls both override function pointers, reverting to
// the system heap.
func EmitResetAllocator(a *x64asm.Assembler, g *Globals) {
	a.LeaRegRipFixup(x64asm.R11, g.RVA)
	a.XorRR(x64asm.RAX, x64asm.RAX)
	a.StoreMem(x64asm.R11, offCustomAllocFn, x64asm.RAX)
	a.StoreMem(x64asm.R11, offCustomFreeFn, x64asm.RAX)
}

// EmitAllocatorPeak leaves the peak allocated-bytes watermark in rax.
func EmitAllocatorPeak(a *x64asm.Assembler, g *Globals) {
	a.LeaRegRipFixup(x64asm.R11, g.RVA)
	a.LoadMem(x64asm.R11, offPeakBytes, x64asm.RAX)
}
