package x64asm

// Peephole runs the redundancy-elimination pass described in spec.md §4.7:
// collapses a redundant `mov rax, rax`, merges `push r; pop r` into
// nothing, combines `xor rax, rax; mov rax, imm` into a single `mov rax,
// imm`, and prunes `add rsp, 0`. It works on raw bytes and adjusts no
// LabelFixup or RipFixup, so removing bytes shifts the offsets that recorded
// fixups and resolved rel32 displacements rely on. The compiler's emission
// path (codegen, pefile) does not call it.
func Peephole(code []byte) []byte {
	out := make([]byte, 0, len(code))
	for i := 0; i < len(code); {
		if n, ok := matchMovRaxRax(code, i); ok {
			i += n
			continue
		}
		if n, ok := matchPushPopSame(code, i); ok {
			i += n
			continue
		}
		if n, replaced, ok := matchXorThenMovImm(code, i); ok {
			out = append(out, replaced...)
			i += n
			continue
		}
		if n, ok := matchAddRspZero(code, i); ok {
			i += n
			continue
		}
		out = append(out, code[i])
		i++
	}
	return out
}

// matchMovRaxRax recognizes REX.W mov rax, rax (48 89 C0).
func matchMovRaxRax(code []byte, i int) (int, bool) {
	if i+3 <= len(code) && code[i] == 0x48 && code[i+1] == 0x89 && code[i+2] == 0xc0 {
		return 3, true
	}
	return 0, false
}

// matchPushPopSame recognizes `push reg; pop reg` for the same reg, both in
// single-byte form (0x50+r / 0x58+r) with no REX prefix (r0-r7).
func matchPushPopSame(code []byte, i int) (int, bool) {
	if i+2 > len(code) {
		return 0, false
	}
	b0, b1 := code[i], code[i+1]
	if b0 >= 0x50 && b0 <= 0x57 && b1 == byte(0x58+(b0-0x50)) {
		return 2, true
	}
	return 0, false
}

// matchXorThenMovImm recognizes `xor rax, rax` (48 31 C0) immediately
// followed by `movabs rax, imm64` (48 B8 imm64) and replaces the pair with
// just the mov, since the xor's zeroing is redundant once the immediate
// load overwrites the whole register.
func matchXorThenMovImm(code []byte, i int) (int, []byte, bool) {
	if i+3+10 > len(code) {
		return 0, nil, false
	}
	if code[i] == 0x48 && code[i+1] == 0x31 && code[i+2] == 0xc0 &&
		code[i+3] == 0x48 && code[i+4] == 0xb8 {
		movLen := 10 // REX + opcode + imm64
		return 3 + movLen, append([]byte(nil), code[i+3:i+3+movLen]...), true
	}
	return 0, nil, false
}

// matchAddRspZero recognizes `add rsp, 0` in its imm8 form (48 83 C4 00).
func matchAddRspZero(code []byte, i int) (int, bool) {
	if i+4 <= len(code) && code[i] == 0x48 && code[i+1] == 0x83 && code[i+2] == 0xc4 && code[i+3] == 0x00 {
		return 4, true
	}
	return 0, false
}
