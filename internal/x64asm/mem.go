package x64asm

// General [base+disp] memory operand helpers, extending the std/compiler/
// x64.go loadMem/storeMem/loadMemByte/storeMemByte idiom (there specialized
// to rbp-relative locals via LoadLocal/StoreLocal) to an arbitrary base
// register. Used by internal/gcrt to walk GC object headers and the
// allocation list through heap pointers, not just stack slots.
//
// For an RSP or R12 base, mod!=11 r/m==100 means "SIB follows" rather than
// "[base]", so memModRM emits the SIB byte 0x24 (no index, that base)
// ahead of the displacement.

func memModRM(reg, base, disp int) (modrm byte, dispBytes []byte) {
	var sib []byte
	if base&7 == 4 {
		sib = []byte{0x24}
	}
	mod := byte(0x80)
	useImm8 := disp >= -128 && disp <= 127
	if useImm8 {
		mod = 0x40
	}
	if disp == 0 && base&7 != 5 {
		mod = 0x00
		return mod | ((byte(reg) & 7) << 3) | (byte(base) & 7), sib
	}
	modrm = mod | ((byte(reg) & 7) << 3) | (byte(base) & 7)
	if useImm8 {
		return modrm, append(sib, byte(int8(disp)))
	}
	d := uint32(int32(disp))
	return modrm, append(sib, byte(d), byte(d>>8), byte(d>>16), byte(d>>24))
}

// LoadMem emits `mov dst, [base+disp]` (64-bit).
func (a *Assembler) LoadMem(base, disp, dst int) {
	a.emitByte(rexRR(dst, base))
	a.emitByte(0x8b)
	modrm, db := memModRM(dst, base, disp)
	a.emitByte(modrm)
	a.emitBytes(db...)
}

// StoreMem emits `mov [base+disp], src` (64-bit).
func (a *Assembler) StoreMem(base, disp, src int) {
	a.emitByte(rexRR(src, base))
	a.emitByte(0x89)
	modrm, db := memModRM(src, base, disp)
	a.emitByte(modrm)
	a.emitBytes(db...)
}

// LoadMemDword emits `mov e_dst, dword [base+disp]` (32-bit, zero-extended
// into the full 64-bit register).
func (a *Assembler) LoadMemDword(base, disp, dst int) {
	if dst >= 8 || base >= 8 {
		rex := byte(0x40)
		if dst >= 8 {
			rex |= 0x04
		}
		if base >= 8 {
			rex |= 0x01
		}
		a.emitByte(rex)
	}
	a.emitByte(0x8b)
	modrm, db := memModRM(dst, base, disp)
	a.emitByte(modrm)
	a.emitBytes(db...)
}

// StoreMemDword emits `mov dword [base+disp], e_src` (32-bit).
func (a *Assembler) StoreMemDword(base, disp, src int) {
	if src >= 8 || base >= 8 {
		rex := byte(0x40)
		if src >= 8 {
			rex |= 0x04
		}
		if base >= 8 {
			rex |= 0x01
		}
		a.emitByte(rex)
	}
	a.emitByte(0x89)
	modrm, db := memModRM(src, base, disp)
	a.emitByte(modrm)
	a.emitBytes(db...)
}

// StoreMemWord emits `mov word [base+disp], x_src` (16-bit, operand-size
// override prefix 0x66).
func (a *Assembler) StoreMemWord(base, disp, src int) {
	a.emitByte(0x66)
	if src >= 8 || base >= 8 {
		rex := byte(0x40)
		if src >= 8 {
			rex |= 0x04
		}
		if base >= 8 {
			rex |= 0x01
		}
		a.emitByte(rex)
	}
	a.emitByte(0x89)
	modrm, db := memModRM(src, base, disp)
	a.emitByte(modrm)
	a.emitBytes(db...)
}

// StoreMemByte emits `mov byte [base+disp], src_lo8`.
func (a *Assembler) StoreMemByte(base, disp, src int) {
	if src >= 8 || base >= 8 {
		rex := byte(0x40)
		if src >= 8 {
			rex |= 0x04
		}
		if base >= 8 {
			rex |= 0x01
		}
		a.emitByte(rex)
	}
	a.emitByte(0x88)
	modrm, db := memModRM(src, base, disp)
	a.emitByte(modrm)
	a.emitBytes(db...)
}

// LoadMemByte emits `movzx dst, byte [base+disp]`.
func (a *Assembler) LoadMemByte(base, disp, dst int) {
	rex := byte(0x48)
	if dst >= 8 {
		rex |= 0x04
	}
	if base >= 8 {
		rex |= 0x01
	}
	a.emitByte(rex)
	a.emitBytes(0x0f, 0xb6)
	modrm, db := memModRM(dst, base, disp)
	a.emitByte(modrm)
	a.emitBytes(db...)
}
