package pefile

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/windstream-lang/windstreamc/internal/x64asm"
)

func TestAddStringDedup(t *testing.T) {
	b := New()
	off1 := b.AddString("hello")
	off2 := b.AddString("hello")
	require.Equal(t, off1, off2)
	off3 := b.AddString("world")
	require.NotEqual(t, off1, off3)
}

func TestAddImportStableToken(t *testing.T) {
	b := New()
	tok1 := b.AddImport("kernel32.dll", "ExitProcess")
	tok2 := b.AddImport("kernel32.dll", "ExitProcess")
	require.Equal(t, tok1, tok2)
	require.NotZero(t, tok1&importSlot)
}

func TestBuildProducesValidPESignature(t *testing.T) {
	b := New()
	tok := b.AddImport("kernel32.dll", "ExitProcess")

	a := x64asm.New()
	a.CallMemRip(tok)
	require.NoError(t, a.Resolve(0))
	b.AddFunctionCode(a.Code(), a.RipFixups())

	out := b.Build()
	require.Equal(t, byte('M'), out[0])
	require.Equal(t, byte('Z'), out[1])
	peOff := int(out[0x3c]) | int(out[0x3d])<<8 | int(out[0x3e])<<16 | int(out[0x3f])<<24
	require.Equal(t, "PE\x00\x00", string(out[peOff:peOff+4]))
	machine := uint16(out[peOff+4]) | uint16(out[peOff+5])<<8
	require.EqualValues(t, machineAMD64, machine)
}

func TestApplyFixupsPatchesDataDisplacement(t *testing.T) {
	b := New()
	strOff := b.AddString("hi")

	a := x64asm.New()
	a.LeaRaxRipFixup(strOff)
	require.NoError(t, a.Resolve(0))
	b.AddFunctionCode(a.Code(), a.RipFixups())

	out := b.Build()
	_ = out // layout already exercises applyFixups without panicking
	require.NotEmpty(t, b.code)
	// lea rax, [rip+disp32] is 7 bytes at .text RVA 0x1000; "hi" is the first
	// .data entry at RVA 0x2000, so disp = 0x2000 - 0x1007.
	disp := int32(b.code[3]) | int32(b.code[4])<<8 | int32(b.code[5])<<16 | int32(b.code[6])<<24
	require.EqualValues(t, 0x2000-0x1007, disp)
}
