package codegen

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/windstream-lang/windstreamc/internal/ast"
	"github.com/windstream-lang/windstreamc/internal/check"
	"github.com/windstream-lang/windstreamc/internal/gcrt"
	"github.com/windstream-lang/windstreamc/internal/pefile"
	"github.com/windstream-lang/windstreamc/internal/token"
	"github.com/windstream-lang/windstreamc/internal/types"
	"github.com/windstream-lang/windstreamc/internal/x64asm"
)

// newTestGenerator builds a Generator wired the same way Generate does
// (gcrt.Place before anything else runs), but without driving the full
// lex/parse/check/monomorphize pipeline, so each test below can exercise a
// single codegen concern in isolation the way gcrt_test.go exercises the GC
// emitters directly against a bare Assembler.
func newTestGenerator() *Generator {
	pe := pefile.New()
	g := New(pe, types.NewRegistry(), check.New())
	g.gc = gcrt.Place(pe)
	return g
}

func TestCompileLambdaIIFEResolves(t *testing.T) {
	g := newTestGenerator()
	lambda := &ast.Lambda{
		Params: []*ast.Param{{Name: "x"}},
		Body:   &ast.Ident{Name: "x"},
	}
	call := &ast.Call{
		Callee: lambda,
		Args:   []ast.Arg{{Value: &ast.IntLit{Value: 41}}},
	}
	g.compileCall(call)
	g.emitPendingLambdas()

	require.NoError(t, g.asm.Resolve(0))
	require.NotEmpty(t, g.asm.Code())
}

func TestCollectCapturesFindsEnclosingLocalOnly(t *testing.T) {
	g := newTestGenerator()
	g.frame = &frame{locals: map[string]int{"n": 8, "unused": 16}, size: 16}

	lambda := &ast.Lambda{
		Params: []*ast.Param{{Name: "x"}},
		Body: &ast.Binary{
			Op:    token.PLUS,
			Left:  &ast.Ident{Name: "x"},
			Right: &ast.Ident{Name: "n"},
		},
	}
	require.Equal(t, []string{"n"}, g.collectCaptures(lambda))
}

func TestCompileLambdaCapturingLocalResolves(t *testing.T) {
	g := newTestGenerator()
	g.frame = &frame{locals: map[string]int{"n": 8}, size: 16}

	lambda := &ast.Lambda{
		Params: []*ast.Param{{Name: "x"}},
		Body: &ast.Binary{
			Op:    token.PLUS,
			Left:  &ast.Ident{Name: "x"},
			Right: &ast.Ident{Name: "n"},
		},
	}
	g.compileLambda(lambda)
	g.frame = nil
	g.emitPendingLambdas()

	require.NoError(t, g.asm.Resolve(0))
}

func TestCompileSpawnAwaitResolves(t *testing.T) {
	g := newTestGenerator()
	g.asm.Label("worker")
	g.asm.Ret()

	spawn := &ast.Spawn{
		Call: &ast.Call{
			Callee: &ast.Ident{Name: "worker"},
			Args: []ast.Arg{
				{Value: &ast.IntLit{Value: 1}},
				{Value: &ast.IntLit{Value: 2}},
			},
		},
	}
	g.compileSpawn(spawn)
	g.compileAwait(&ast.Await{Operand: &ast.IntLit{Value: 0}})
	g.emitPendingThunks()

	require.NoError(t, g.asm.Resolve(0))
}

func TestCompileSpawnNonCallIsSafeNoOp(t *testing.T) {
	g := newTestGenerator()
	spawn := &ast.Spawn{Call: &ast.IntLit{Value: 1}}
	g.compileSpawn(spawn)
	require.NoError(t, g.asm.Resolve(0))
}

// storeSyncObject runs a MakeSync constructor and spills the resulting
// object pointer into local, so a later compileExpr(receiver) call can
// reload it the way a real function body would.
func storeSyncObject(g *Generator, local int, kind ast.SyncKind, capacity ast.Expression) {
	g.compileMakeSync(&ast.MakeSync{Kind: kind, Capacity: capacity})
	g.asm.StoreLocal(local, x64asm.RAX)
}

func TestCompileMutexLockUnlockResolves(t *testing.T) {
	g := newTestGenerator()
	g.frame = &frame{locals: map[string]int{"m": 8}, size: 16}
	storeSyncObject(g, 8, ast.SyncMutex, nil)

	receiver := &ast.Ident{Name: "m"}
	g.compileSyncOp(&ast.SyncOp{Op: ast.OpLock, Receiver: receiver})
	g.compileSyncOp(&ast.SyncOp{Op: ast.OpUnlock, Receiver: receiver})
	g.emitSyncRuntime()

	require.NoError(t, g.asm.Resolve(0))
}

func TestCompileRWLockAcquireReleaseResolves(t *testing.T) {
	g := newTestGenerator()
	g.frame = &frame{locals: map[string]int{"rw": 8}, size: 16}
	storeSyncObject(g, 8, ast.SyncRWLock, nil)

	receiver := &ast.Ident{Name: "rw"}
	g.compileSRWAcquire(receiver, false)
	g.compileSRWRelease(receiver, false)
	g.compileSRWAcquire(receiver, true)
	g.compileSRWRelease(receiver, true)

	require.NoError(t, g.asm.Resolve(0))
}

func TestCompileConditionVariableWaitSignalResolves(t *testing.T) {
	g := newTestGenerator()
	g.frame = &frame{locals: map[string]int{"cv": 8, "lock": 16}, size: 32}
	storeSyncObject(g, 8, ast.SyncCond, nil)
	storeSyncObject(g, 16, ast.SyncRWLock, nil)

	g.compileCondWait(&ast.SyncOp{
		Receiver: &ast.Ident{Name: "cv"},
		Args:     []ast.Expression{&ast.Ident{Name: "lock"}},
	})
	g.compileCondSignal(&ast.Ident{Name: "cv"}, false)
	g.compileCondSignal(&ast.Ident{Name: "cv"}, true)

	require.NoError(t, g.asm.Resolve(0))
}

func TestCompileSemaphoreAcquireReleaseResolves(t *testing.T) {
	g := newTestGenerator()
	g.frame = &frame{locals: map[string]int{"sem": 8}, size: 16}
	storeSyncObject(g, 8, ast.SyncSemaphore, &ast.IntLit{Value: 3})

	receiver := &ast.Ident{Name: "sem"}
	g.compileSemaphoreAcquire(receiver)
	g.compileSemaphoreRelease(receiver)

	require.NoError(t, g.asm.Resolve(0))
}

func TestCompileChannelSendRecvResolves(t *testing.T) {
	g := newTestGenerator()
	g.frame = &frame{locals: map[string]int{"ch": 8}, size: 16}
	storeSyncObject(g, 8, ast.SyncChan, &ast.IntLit{Value: 4})

	receiver := &ast.Ident{Name: "ch"}
	g.compileChanSend(receiver, []ast.Expression{&ast.IntLit{Value: 99}})
	g.compileChanRecv(receiver)

	require.NoError(t, g.asm.Resolve(0))
}

// TestCompileChannelSendWithAllocatingValuePreservesRingBufferBase guards
// the register-clobber fix in compileChanSend: a list-literal send value
// allocates its own object and, internally, reuses r12 as scratch the same
// way compileChanSend does for the ring buffer base. Without evaluating the
// value before loading the ring buffer base, this would corrupt the buffer
// pointer before it's stored through.
func TestCompileChannelSendWithAllocatingValuePreservesRingBufferBase(t *testing.T) {
	g := newTestGenerator()
	g.frame = &frame{locals: map[string]int{"ch": 8}, size: 16}
	storeSyncObject(g, 8, ast.SyncChan, &ast.IntLit{Value: 4})

	receiver := &ast.Ident{Name: "ch"}
	listVal := &ast.ListLit{Elems: []ast.Expression{&ast.IntLit{Value: 1}, &ast.IntLit{Value: 2}}}
	g.compileChanSend(receiver, []ast.Expression{listVal})

	require.NoError(t, g.asm.Resolve(0))
	// mov r12, [rax+8]; pop r9; mov rbx, [r12+8]: the base is loaded after
	// the value was evaluated and pushed, and used with nothing in between.
	require.True(t, bytes.Contains(g.asm.Code(), []byte{0x4c, 0x8b, 0x60, 0x08, 0x41, 0x59, 0x49, 0x8b, 0x5c, 0x24, 0x08}))
}

func TestCompileExternCallVariadicDuplicatesFloatIntoGPRegister(t *testing.T) {
	g := newTestGenerator()
	ext := externInfo{dll: "msvcrt.dll", variadic: true, fixedParams: 1}
	args := []ast.Arg{
		{Value: &ast.IntLit{Value: 1}},
		{Value: &ast.FloatLit{Value: 2.5}},
	}
	g.loadExternArgs(args, ext)
	require.NoError(t, g.asm.Resolve(0))
}

func TestTrampolineTargetMemoizesPerFunction(t *testing.T) {
	g := newTestGenerator()
	g.funcs["callback"] = &ast.FuncDecl{Name: "callback"}
	g.asm.Label("callback")
	g.asm.Ret()

	ref := &ast.Ident{Name: "callback"}
	label1, ok1 := g.trampolineTarget(ref)
	require.True(t, ok1)
	label2, ok2 := g.trampolineTarget(ref)
	require.True(t, ok2)
	require.Equal(t, label1, label2)

	g.emitPendingTrampolines()
	require.NoError(t, g.asm.Resolve(0))
}

func TestTrampolineTargetIgnoresLocalVariable(t *testing.T) {
	g := newTestGenerator()
	g.frame = &frame{locals: map[string]int{"callback": 8}, size: 16}
	g.funcs["callback"] = &ast.FuncDecl{Name: "callback"}

	_, ok := g.trampolineTarget(&ast.Ident{Name: "callback"})
	require.False(t, ok)
}

func TestCompileExternCallWithCallbackArgumentResolves(t *testing.T) {
	g := newTestGenerator()
	g.funcs["callback"] = &ast.FuncDecl{Name: "callback"}
	g.asm.Label("callback")
	g.asm.Ret()

	ext := externInfo{dll: "user32.dll"}
	g.compileExternCall("EnumWindows", ext, []ast.Arg{
		{Value: &ast.Ident{Name: "callback"}},
		{Value: &ast.IntLit{Value: 0}},
	})
	g.emitPendingTrampolines()

	require.NoError(t, g.asm.Resolve(0))
}

func TestCompileIndirectCallThroughClosureLocalResolves(t *testing.T) {
	g := newTestGenerator()
	g.frame = &frame{locals: map[string]int{"fn": 8}, size: 16}

	lambda := &ast.Lambda{
		Params: []*ast.Param{{Name: "a"}, {Name: "b"}},
		Body:   &ast.Ident{Name: "a"},
	}
	g.compileLambda(lambda)
	g.asm.StoreLocal(8, x64asm.RAX)

	call := &ast.Call{
		Callee: &ast.Ident{Name: "fn"},
		Args: []ast.Arg{
			{Value: &ast.IntLit{Value: 10}},
			{Value: &ast.IntLit{Value: 20}},
		},
	}
	g.compileCall(call)
	g.emitPendingLambdas()

	require.NoError(t, g.asm.Resolve(0))
}
