package x64asm

// SSE2 scalar-double helpers. The teacher's backend never emits floating
// point code (std/compiler/backend_x64.go has no SSE encoding to ground
// this on); these follow the same REX/ModR.M buffer-emission idiom as the
// integer helpers in x64asm.go, extended to the 0F-escaped SSE2 opcode map
// per spec.md §4.7's explicit instruction list (movsd/addsd/subsd/mulsd/
// divsd/cvtsi2sd/cvttsd2si/movq). XMM register numbers share the same 0-15
// numbering and REX.R/REX.B extension rules as the general-purpose regs.

// XMM register constants, aliasing the same 0-15 numbering the GP registers
// use (see the package doc above); named separately so call sites read as
// xmm operands rather than as general-purpose registers.
const (
	XMM0 = 0
	XMM1 = 1
	XMM2 = 2
	XMM3 = 3
	XMM4 = 4
	XMM5 = 5
)

func rexOpt(r, rm int, w bool) (rex byte, present bool) {
	if w {
		rex = 0x48
	}
	if r >= 8 {
		rex |= 0x44
	}
	if rm >= 8 {
		rex |= 0x41
	}
	return rex, rex != 0
}

func (a *Assembler) emitRexIfNeeded(rex byte, present bool) {
	if present {
		a.emitByte(rex)
	}
}

// MovsdXX emits `movsd dst, src` (xmm-to-xmm).
func (a *Assembler) MovsdXX(dst, src int) {
	rex, present := rexOpt(dst, src, false)
	a.emitByte(0xf2)
	a.emitRexIfNeeded(rex, present)
	a.emitBytes(0x0f, 0x10, modrmRR(dst, src))
}

// AddSD emits `addsd dst, src`.
func (a *Assembler) AddSD(dst, src int) {
	rex, present := rexOpt(dst, src, false)
	a.emitByte(0xf2)
	a.emitRexIfNeeded(rex, present)
	a.emitBytes(0x0f, 0x58, modrmRR(dst, src))
}

// SubSD emits `subsd dst, src`.
func (a *Assembler) SubSD(dst, src int) {
	rex, present := rexOpt(dst, src, false)
	a.emitByte(0xf2)
	a.emitRexIfNeeded(rex, present)
	a.emitBytes(0x0f, 0x5c, modrmRR(dst, src))
}

// MulSD emits `mulsd dst, src`.
func (a *Assembler) MulSD(dst, src int) {
	rex, present := rexOpt(dst, src, false)
	a.emitByte(0xf2)
	a.emitRexIfNeeded(rex, present)
	a.emitBytes(0x0f, 0x59, modrmRR(dst, src))
}

// DivSD emits `divsd dst, src`.
func (a *Assembler) DivSD(dst, src int) {
	rex, present := rexOpt(dst, src, false)
	a.emitByte(0xf2)
	a.emitRexIfNeeded(rex, present)
	a.emitBytes(0x0f, 0x5e, modrmRR(dst, src))
}

// CvtSI2SD emits `cvtsi2sd xmmDst, gpSrc` (signed 64-bit int -> double).
func (a *Assembler) CvtSI2SD(xmmDst, gpSrc int) {
	a.emitByte(0xf2)
	a.emitByte(rexRR(xmmDst, gpSrc) | 0x08) // force REX.W
	a.emitBytes(0x0f, 0x2a, modrmRR(xmmDst, gpSrc))
}

// CvtTSD2SI emits `cvttsd2si gpDst, xmmSrc` (double -> signed 64-bit int,
// truncating).
func (a *Assembler) CvtTSD2SI(gpDst, xmmSrc int) {
	a.emitByte(0xf2)
	a.emitByte(rexRR(gpDst, xmmSrc) | 0x08)
	a.emitBytes(0x0f, 0x2c, modrmRR(gpDst, xmmSrc))
}

// MovqToXmm emits `movq xmmDst, gpSrc`, transferring raw 64-bit bits.
func (a *Assembler) MovqToXmm(xmmDst, gpSrc int) {
	a.emitByte(0x66)
	a.emitByte(rexRR(xmmDst, gpSrc) | 0x08)
	a.emitBytes(0x0f, 0x6e, modrmRR(xmmDst, gpSrc))
}

// MovqFromXmm emits `movq gpDst, xmmSrc`, transferring raw 64-bit bits.
func (a *Assembler) MovqFromXmm(gpDst, xmmSrc int) {
	a.emitByte(0x66)
	a.emitByte(rexRR(xmmSrc, gpDst) | 0x08)
	a.emitBytes(0x0f, 0x7e, modrmRR(xmmSrc, gpDst))
}
