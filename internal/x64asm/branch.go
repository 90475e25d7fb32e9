package x64asm

// CallRel32 emits `call rel32` to label, recording a fixup resolved by
// Resolve, per spec.md §4.7.
func (a *Assembler) CallRel32(label string) {
	a.emitByte(0xe8)
	off := len(a.code)
	a.emitU32(0)
	a.labelFixups = append(a.labelFixups, LabelFixup{CodeOffset: off, Label: label})
}

// CallMemRip emits an indirect call through a RIP-relative memory operand,
// `call [rip+disp32]`, used for calls through an import's IAT slot (spec.md
// §4.7 "call_mem_rip(rva)"); the displacement is recorded as a RipFixup,
// patched once the target's actual RVA is known.
func (a *Assembler) CallMemRip(targetRVA uint32) {
	a.emitBytes(0xff, 0x15)
	off := len(a.code)
	a.emitU32(0)
	a.ripFixups = append(a.ripFixups, RipFixup{CodeOffset: off, TargetRVA: targetRVA})
}

// JmpRel32 emits `jmp rel32` to label.
func (a *Assembler) JmpRel32(label string) {
	a.emitByte(0xe9)
	off := len(a.code)
	a.emitU32(0)
	a.labelFixups = append(a.labelFixups, LabelFixup{CodeOffset: off, Label: label})
}

// JccRel32 emits a conditional jump `jCC rel32` to label.
func (a *Assembler) JccRel32(cc byte, label string) {
	a.emitBytes(0x0f, cc)
	off := len(a.code)
	a.emitU32(0)
	a.labelFixups = append(a.labelFixups, LabelFixup{CodeOffset: off, Label: label})
}

// Jz/Jnz/Jl/Jge name the condition codes spec.md §4.7 calls out explicitly
// (jz/jnz/jl/jge_rel32) as thin wrappers over JccRel32.
func (a *Assembler) Jz(label string)  { a.JccRel32(CC_E, label) }
func (a *Assembler) Jnz(label string) { a.JccRel32(CC_NE, label) }
func (a *Assembler) Jl(label string)  { a.JccRel32(CC_L, label) }
func (a *Assembler) Jge(label string) { a.JccRel32(CC_GE, label) }

// LeaRaxRipFixup emits `lea rax, [rip+disp32]` targeting a data-section
// RVA not yet known, recording a RipFixup for the PE writer (spec.md §4.7).
func (a *Assembler) LeaRaxRipFixup(targetRVA uint32) { a.LeaRegRipFixup(RAX, targetRVA) }

// LeaRegRipFixup generalizes LeaRaxRipFixup to an arbitrary destination
// register, needed when rax is already holding a live value (internal/gcrt
// uses this to address the GC-globals record from a scratch register while
// rax holds a heap pointer).
func (a *Assembler) LeaRegRipFixup(reg int, targetRVA uint32) {
	rex := byte(0x48)
	if reg >= 8 {
		rex = 0x4c
	}
	a.emitBytes(rex, 0x8d, byte(0x05|((reg&7)<<3)))
	off := len(a.code)
	a.emitU32(0)
	a.ripFixups = append(a.ripFixups, RipFixup{CodeOffset: off, TargetRVA: targetRVA})
}

// LeaRegLabelFixup emits `lea reg, [rip+disp32]` targeting another label in
// this same Assembler, for callers that need a function's own address as a
// runtime value rather than a branch target (a thread thunk handed to
// CreateThread, a vtable slot). The fixup is resolved by Resolve the same
// way CallRel32/JmpRel32 are: the code buffer's internal offsets are fixed
// relative to each other regardless of the section's eventual load RVA, so
// the same code-buffer-relative rel32 patch that makes a call/jmp work makes
// this LEA compute the correct absolute address at runtime too.
func (a *Assembler) LeaRegLabelFixup(reg int, label string) {
	rex := byte(0x48)
	if reg >= 8 {
		rex = 0x4c
	}
	a.emitBytes(rex, 0x8d, byte(0x05|((reg&7)<<3)))
	off := len(a.code)
	a.emitU32(0)
	a.labelFixups = append(a.labelFixups, LabelFixup{CodeOffset: off, Label: label})
}
