package x64asm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMovRegImm64(t *testing.T) {
	a := New()
	a.MovRegImm64(RAX, 0x1122334455667788)
	require.Equal(t, []byte{0x48, 0xb8, 0x88, 0x77, 0x66, 0x55, 0x44, 0x33, 0x22, 0x11}, a.Code())
}

func TestMovRegImm64ExtendedReg(t *testing.T) {
	a := New()
	a.MovRegImm64(R9, 1)
	require.Equal(t, byte(0x49), a.Code()[0])
	require.Equal(t, byte(0xb8+1), a.Code()[1])
}

func TestPushPopRoundTrip(t *testing.T) {
	a := New()
	a.PushR(RBX)
	a.PopR(RBX)
	require.Equal(t, []byte{0x53, 0x5b}, a.Code())
}

func TestPushPopExtendedReg(t *testing.T) {
	a := New()
	a.PushR(R12)
	a.PopR(R12)
	require.Equal(t, []byte{0x41, 0x54, 0x41, 0x5c}, a.Code())
}

func TestLabelResolveForwardJump(t *testing.T) {
	a := New()
	a.JmpRel32("end")
	a.AddRI(RAX, 1)
	a.Label("end")
	require.NoError(t, a.Resolve(0x1000))
	// jmp opcode + 4-byte rel32, then the add, so target offset is 5+4=9.
	rel := int32(a.Code()[1]) | int32(a.Code()[2])<<8 | int32(a.Code()[3])<<16 | int32(a.Code()[4])<<24
	require.EqualValues(t, 9-5, rel)
}

func TestResolveUnknownLabel(t *testing.T) {
	a := New()
	a.JmpRel32("nowhere")
	err := a.Resolve(0)
	require.Error(t, err)
}

func TestPeepholeRemovesMovRaxRax(t *testing.T) {
	a := New()
	a.MovRR(RAX, RAX)
	a.Ret()
	out := Peephole(a.Code())
	require.Equal(t, []byte{0xc3}, out)
}

func TestPeepholeRemovesPushPopSame(t *testing.T) {
	a := New()
	a.PushR(RCX)
	a.PopR(RCX)
	a.Ret()
	out := Peephole(a.Code())
	require.Equal(t, []byte{0xc3}, out)
}

func TestPeepholeFoldsXorThenMovImm(t *testing.T) {
	a := New()
	a.XorRR(RAX, RAX)
	a.MovRegImm64(RAX, 42)
	out := Peephole(a.Code())
	require.Equal(t, a.Code()[3:], out)
}

func TestPeepholePrunesAddRspZero(t *testing.T) {
	a := New()
	a.AddRspImm32(0)
	a.Ret()
	out := Peephole(a.Code())
	require.Equal(t, []byte{0xc3}, out)
}

func TestSetccLowByteOnly(t *testing.T) {
	a := New()
	a.Setcc(CC_E, RAX)
	require.Equal(t, []byte{0x0f, 0x94, 0xc0}, a.Code())
}
