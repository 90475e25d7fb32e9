package gcrt

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/windstream-lang/windstreamc/internal/pefile"
	"github.com/windstream-lang/windstreamc/internal/x64asm"
)

func TestPlaceLaysOutGlobalsRecord(t *testing.T) {
	pe := pefile.New()
	g := Place(pe)
	require.NotZero(t, g.RVA)
}

func TestEmitAllocSiteResolves(t *testing.T) {
	pe := pefile.New()
	g := Place(pe)

	a := x64asm.New()
	a.MovRegImm64(x64asm.RCX, 24)
	EmitAllocSite(a, pe, g, x64asm.RCX, TagRecord)
	EmitCollectRoutine(a, pe, g)
	require.NoError(t, a.Resolve(0))
	require.NotEmpty(t, a.Code())
}

func TestEmitAllocSiteTwiceDoesNotCollideLabels(t *testing.T) {
	pe := pefile.New()
	g := Place(pe)

	a := x64asm.New()
	a.MovRegImm64(x64asm.RCX, 8)
	EmitAllocSite(a, pe, g, x64asm.RCX, TagString)
	a.MovRegImm64(x64asm.RCX, 16)
	EmitAllocSite(a, pe, g, x64asm.RCX, TagList)
	EmitCollectRoutine(a, pe, g)
	require.NoError(t, a.Resolve(0))
}

func TestEmitCollectRoutineResolvesAlone(t *testing.T) {
	pe := pefile.New()
	g := Place(pe)

	a := x64asm.New()
	EmitCollectRoutine(a, pe, g)
	require.NoError(t, a.Resolve(0))
}

func TestBuiltinsResolve(t *testing.T) {
	pe := pefile.New()
	g := Place(pe)

	a := x64asm.New()
	EmitPin(a)
	EmitUnpin(a)
	EmitAddRoot(a, g)
	EmitRemoveRoot(a, g)
	EmitStats(a, g)
	EmitCount(a, g)
	EmitSetAllocator(a, g)
	EmitResetAllocator(a, g)
	EmitAllocatorPeak(a, g)
	require.NoError(t, a.Resolve(0))
	require.NotEmpty(t, a.Code())
}

func TestHeaderLayoutMatchesSpecOffsets(t *testing.T) {
	require.Equal(t, 0, OffSizeInBytes)
	require.Equal(t, 4, OffTypeTag)
	require.Equal(t, 6, OffMarked)
	require.Equal(t, 7, OffFlags)
	require.Equal(t, 8, OffNext)
	require.Equal(t, 16, HeaderSize)
}
