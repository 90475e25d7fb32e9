package codegen

import (
	"github.com/windstream-lang/windstreamc/internal/ast"
	"github.com/windstream-lang/windstreamc/internal/gcrt"
	"github.com/windstream-lang/windstreamc/internal/types"
	"github.com/windstream-lang/windstreamc/internal/x64asm"
)

// pendingThunk records a spawn call site; its thunk body (the function
// CreateThread actually starts) is emitted once, alongside the rest of the
// synchronization runtime, rather than inline at the spawn site.
type pendingThunk struct {
	label    string
	target   string
	argCount int
}

// compileSpawn implements spec.md §4.10.10: heap-allocate an argument block
// holding the call's evaluated arguments, emit a thunk that unpacks it and
// calls the target, then start it with CreateThread. The handle CreateThread
// returns (left in rax) is the value a SpawnExpr produces; compileAwait
// consumes it. Only a bare-name call target is supported — spawning an
// arbitrary callee expression (a closure value) would need the thunk to also
// carry a closure pointer, not just an argument block, a gap noted in
// DESIGN.md alongside the indirect-call-via-closure limitation.
func (g *Generator) compileSpawn(x *ast.Spawn) {
	call, ok := x.Call.(*ast.Call)
	if !ok {
		g.asm.XorRR(x64asm.RAX, x64asm.RAX)
		return
	}
	name, ok := calleeName(call.Callee)
	if !ok {
		g.asm.XorRR(x64asm.RAX, x64asm.RAX)
		return
	}

	n := len(call.Args)
	if n > 4 {
		n = 4
	}
	size := 8
	if n > 0 {
		size = n * 8
	}
	// Every argument is evaluated and spilled to the real stack before the
	// block is allocated, since a nested literal argument would otherwise
	// clobber r12's use as the allocated block's own scratch base pointer
	// (see compileListLit/compileRecordLit/compileNewExpr).
	for i := 0; i < n; i++ {
		g.compileExpr(call.Args[i].Value)
		if g.isFloatExpr(call.Args[i].Value) {
			g.asm.MovqFromXmm(x64asm.RAX, x64asm.XMM0)
		}
		g.asm.PushR(x64asm.RAX)
	}
	g.asm.MovRegImm64(x64asm.RCX, uint64(size))
	gcrt.EmitAllocSite(g.asm, g.pe, g.gc, x64asm.RCX, gcrt.TagList)
	g.asm.MovRR(x64asm.R12, x64asm.RAX)
	for i := n - 1; i >= 0; i-- {
		g.asm.PopR(x64asm.RAX)
		g.asm.StoreMem(x64asm.R12, i*8, x64asm.RAX)
	}

	thunk := g.newLabel("spawn_thunk")
	g.pendingThunks = append(g.pendingThunks, pendingThunk{label: thunk, target: name, argCount: n})

	createThread := g.pe.AddImport("kernel32.dll", "CreateThread")
	g.asm.XorRR(x64asm.RCX, x64asm.RCX)       // lpThreadAttributes = NULL
	g.asm.XorRR(x64asm.RDX, x64asm.RDX)       // dwStackSize = 0 (default)
	g.asm.LeaRegLabelFixup(x64asm.R8, thunk)  // lpStartAddress
	g.asm.MovRR(x64asm.R9, x64asm.R12)        // lpParameter = arg block
	g.asm.SubRspImm32(48)
	g.asm.XorRR(x64asm.RAX, x64asm.RAX)
	g.asm.StoreMem(x64asm.RSP, 32, x64asm.RAX) // dwCreationFlags = 0
	g.asm.StoreMem(x64asm.RSP, 40, x64asm.RAX) // lpThreadId = NULL
	g.asm.CallMemRip(createThread)
	g.asm.AddRspImm32(48)
}

// compileAwait implements spec.md §4.10.10's `await handle`: block on the
// thread handle with WaitForSingleObject, then read its exit code.
func (g *Generator) compileAwait(x *ast.Await) {
	g.compileExpr(x.Operand)
	g.asm.MovRR(x64asm.R12, x64asm.RAX)

	waitFn := g.pe.AddImport("kernel32.dll", "WaitForSingleObject")
	g.asm.MovRR(x64asm.RCX, x64asm.R12)
	g.asm.MovRegImm64(x64asm.RDX, 0xffffffff) // INFINITE
	g.asm.SubRspImm32(32)
	g.asm.CallMemRip(waitFn)
	g.asm.AddRspImm32(32)

	getExit := g.pe.AddImport("kernel32.dll", "GetExitCodeThread")
	g.asm.SubRspImm32(48)
	g.asm.MovRR(x64asm.RCX, x64asm.R12)
	g.asm.MovRR(x64asm.RDX, x64asm.RSP)
	g.asm.AddRI(x64asm.RDX, 40)
	g.asm.CallMemRip(getExit)
	g.asm.LoadMemDword(x64asm.RSP, 40, x64asm.RAX)
	g.asm.AddRspImm32(48)
}

// emitPendingThunks emits every spawn thunk recorded by compileSpawn: each
// unpacks its argument block (passed as the Windows thread-proc's sole
// argument, rcx) into the target's own argument registers and calls it.
// Spawned functions are assumed integer/pointer-only; a float-typed spawned
// parameter is a known gap (see DESIGN.md).
func (g *Generator) emitPendingThunks() {
	for _, t := range g.pendingThunks {
		g.asm.Label(t.label)
		g.asm.PushR(x64asm.RBP)
		g.asm.MovRbpRsp()
		g.asm.SubRspImm32(32)
		g.asm.MovRR(x64asm.R12, x64asm.RCX)
		for i := 0; i < t.argCount && i < len(gpParamRegs); i++ {
			g.asm.LoadMem(x64asm.R12, i*8, gpParamRegs[i])
		}
		g.asm.CallRel32(t.target)
		g.asm.AddRspImm32(32)
		g.asm.XorRR(x64asm.RAX, x64asm.RAX)
		g.asm.Leave()
		g.asm.Ret()
	}
	g.pendingThunks = nil
}

// emitSyncRuntime emits the two labeled helpers compileLockStmt and
// OpLock/OpUnlock call by name: sync_mutex_lock/sync_mutex_unlock, each
// taking the sync object pointer in rcx and dereferencing its handle slot.
// Unlike gcrt's builtin-emitting helpers, these are real out-of-line
// functions (called via CallRel32, possibly from more than one call site
// per program) rather than inlined at every call site.
func (g *Generator) emitSyncRuntime() {
	waitFn := g.pe.AddImport("kernel32.dll", "WaitForSingleObject")
	releaseMutex := g.pe.AddImport("kernel32.dll", "ReleaseMutex")

	g.asm.Label("sync_mutex_lock")
	g.asm.PushR(x64asm.RBP)
	g.asm.MovRbpRsp()
	g.asm.SubRspImm32(32)
	g.asm.LoadMem(x64asm.RCX, 0, x64asm.RCX)
	g.asm.MovRegImm64(x64asm.RDX, 0xffffffff)
	g.asm.CallMemRip(waitFn)
	g.asm.AddRspImm32(32)
	g.asm.Leave()
	g.asm.Ret()

	g.asm.Label("sync_mutex_unlock")
	g.asm.PushR(x64asm.RBP)
	g.asm.MovRbpRsp()
	g.asm.SubRspImm32(32)
	g.asm.LoadMem(x64asm.RCX, 0, x64asm.RCX)
	g.asm.CallMemRip(releaseMutex)
	g.asm.AddRspImm32(32)
	g.asm.Leave()
	g.asm.Ret()
}

// compileMakeMutex backs the make_mutex builtin (no source-level MakeSync
// node exists at that call site, since it's reached as an ordinary function
// call rather than the `make_mutex(...)` expression form).
func (g *Generator) compileMakeMutex() {
	g.compileMakeSync(&ast.MakeSync{Kind: ast.SyncMutex})
}

// compileMakeSync implements the `{handle, data_ptr, element_size}` object
// layout spec.md §3/§4.10.10 describes for every synchronization primitive,
// allocated through the GC like any other heap object. Mutex/rwlock/cond
// store their Win32 primitive (a HANDLE or an in-place SRWLOCK/
// CONDITION_VARIABLE, both pointer-sized) directly in the object; channel
// additionally allocates a backing ring buffer reachable through data_ptr.
func (g *Generator) compileMakeSync(x *ast.MakeSync) {
	g.asm.MovRegImm64(x64asm.RCX, 24)
	gcrt.EmitAllocSite(g.asm, g.pe, g.gc, x64asm.RCX, gcrt.TagRecord)
	g.asm.MovRR(x64asm.R12, x64asm.RAX)
	g.asm.XorRR(x64asm.R9, x64asm.R9)
	g.asm.StoreMem(x64asm.R12, 0, x64asm.R9)
	g.asm.StoreMem(x64asm.R12, 8, x64asm.R9)
	g.asm.MovRegImm64(x64asm.R9, 8)
	g.asm.StoreMem(x64asm.R12, 16, x64asm.R9)

	switch x.Kind {
	case ast.SyncMutex:
		createMutex := g.pe.AddImport("kernel32.dll", "CreateMutexA")
		g.asm.XorRR(x64asm.RCX, x64asm.RCX)
		g.asm.XorRR(x64asm.RDX, x64asm.RDX)
		g.asm.XorRR(x64asm.R8, x64asm.R8)
		g.asm.SubRspImm32(32)
		g.asm.CallMemRip(createMutex)
		g.asm.AddRspImm32(32)
		g.asm.StoreMem(x64asm.R12, 0, x64asm.RAX)
	case ast.SyncRWLock:
		initSRW := g.pe.AddImport("kernel32.dll", "InitializeSRWLock")
		g.asm.MovRR(x64asm.RCX, x64asm.R12)
		g.asm.SubRspImm32(32)
		g.asm.CallMemRip(initSRW)
		g.asm.AddRspImm32(32)
	case ast.SyncCond:
		initCond := g.pe.AddImport("kernel32.dll", "InitializeConditionVariable")
		g.asm.MovRR(x64asm.RCX, x64asm.R12)
		g.asm.SubRspImm32(32)
		g.asm.CallMemRip(initCond)
		g.asm.AddRspImm32(32)
	case ast.SyncSemaphore:
		createSem := g.pe.AddImport("kernel32.dll", "CreateSemaphoreA")
		g.asm.PushR(x64asm.R12) // preserved across the capacity expression, see compileMakeChan
		if x.Capacity != nil {
			g.compileExpr(x.Capacity)
		} else {
			g.asm.XorRR(x64asm.RAX, x64asm.RAX)
		}
		g.asm.PushR(x64asm.RAX)
		g.asm.XorRR(x64asm.RCX, x64asm.RCX)
		g.asm.PopR(x64asm.RDX)
		g.asm.PopR(x64asm.R12)
		g.asm.MovRegImm64(x64asm.R8, 0x7fffffff)
		g.asm.XorRR(x64asm.R9, x64asm.R9)
		g.asm.SubRspImm32(32)
		g.asm.CallMemRip(createSem)
		g.asm.AddRspImm32(32)
		g.asm.StoreMem(x64asm.R12, 0, x64asm.RAX)
	case ast.SyncChan:
		g.compileMakeChan(x)
	}

	g.asm.MovRR(x64asm.RAX, x64asm.R12)
}

// compileMakeChan allocates a ring buffer {head, tail, cap, elem0, ...} and
// wires it into the sync object's data_ptr slot. Channel operations here are
// a deliberate simplification over the real blocking semantics spec.md §5
// describes for channels: send/receive wrap the index modulo cap without
// ever blocking a full buffer or an empty one (see compileSyncOp), noted in
// DESIGN.md.
func (g *Generator) compileMakeChan(x *ast.MakeSync) {
	// r12 already holds the sync object pointer (set by compileMakeSync
	// before dispatching here); preserved across the capacity expression
	// since a nested literal there would otherwise reuse r12 as its own
	// scratch base pointer.
	g.asm.PushR(x64asm.R12)
	if x.Capacity != nil {
		g.compileExpr(x.Capacity)
	} else {
		g.asm.MovRegImm64(x64asm.RAX, 8)
	}
	g.asm.MovRR(x64asm.R13, x64asm.RAX)
	g.asm.PopR(x64asm.R12)

	g.asm.MovRR(x64asm.RCX, x64asm.R13)
	g.asm.MovRegImm64(x64asm.R9, 8)
	g.asm.ImulRR(x64asm.RCX, x64asm.R9)
	g.asm.AddRI(x64asm.RCX, 24)
	gcrt.EmitAllocSite(g.asm, g.pe, g.gc, x64asm.RCX, gcrt.TagList)
	g.asm.MovRR(x64asm.R14, x64asm.RAX)
	g.asm.XorRR(x64asm.R9, x64asm.R9)
	g.asm.StoreMem(x64asm.R14, 0, x64asm.R9)
	g.asm.StoreMem(x64asm.R14, 8, x64asm.R9)
	g.asm.StoreMem(x64asm.R14, 16, x64asm.R13)

	g.asm.StoreMem(x64asm.R12, 8, x64asm.R14)
	g.asm.MovRegImm64(x64asm.R9, 8)
	g.asm.StoreMem(x64asm.R12, 16, x64asm.R9)
}

func (g *Generator) syncKindOf(e ast.Expression) types.Kind {
	if g.chk == nil {
		return types.Unknown
	}
	t, ok := g.chk.TypeOf(e)
	if !ok || t == nil {
		return types.Unknown
	}
	return t.Kind
}

// compileSyncOp dispatches every lock/unlock/read/write/wait/signal/
// broadcast/acquire/release operation per spec.md §4.10.10/§5, distinguishing
// a rwlock's shared-vs-exclusive lock and a channel's send/receive by the
// receiver's static sync kind (both reuse OpRead/OpWrite, since the
// language's surface reuses those names for both concepts).
func (g *Generator) compileSyncOp(x *ast.SyncOp) {
	switch x.Op {
	case ast.OpLock:
		// sync_mutex_lock takes the sync object pointer itself and
		// dereferences its handle slot internally (see emitSyncRuntime).
		g.compileExpr(x.Receiver)
		g.asm.MovRR(x64asm.RCX, x64asm.RAX)
		g.asm.SubRspImm32(32)
		g.asm.CallRel32("sync_mutex_lock")
		g.asm.AddRspImm32(32)
	case ast.OpUnlock:
		if g.syncKindOf(x.Receiver) == types.RWLock {
			g.compileSRWRelease(x.Receiver, true)
			return
		}
		g.compileExpr(x.Receiver)
		g.asm.MovRR(x64asm.RCX, x64asm.RAX)
		g.asm.SubRspImm32(32)
		g.asm.CallRel32("sync_mutex_unlock")
		g.asm.AddRspImm32(32)
	case ast.OpRead:
		if g.syncKindOf(x.Receiver) == types.Channel {
			g.compileChanRecv(x.Receiver)
			return
		}
		g.compileSRWAcquire(x.Receiver, false)
	case ast.OpWrite:
		if g.syncKindOf(x.Receiver) == types.Channel {
			g.compileChanSend(x.Receiver, x.Args)
			return
		}
		g.compileSRWAcquire(x.Receiver, true)
	case ast.OpRelease:
		if g.syncKindOf(x.Receiver) == types.Semaphore {
			g.compileSemaphoreRelease(x.Receiver)
			return
		}
		g.compileSRWRelease(x.Receiver, false)
	case ast.OpAcquire:
		g.compileSemaphoreAcquire(x.Receiver)
	case ast.OpWait:
		g.compileCondWait(x)
	case ast.OpSignal:
		g.compileCondSignal(x.Receiver, false)
	case ast.OpBroadcast:
		g.compileCondSignal(x.Receiver, true)
	}
}

func (g *Generator) syncLoadHandle(receiver ast.Expression) {
	g.compileExpr(receiver)
	g.asm.LoadMem(x64asm.RAX, 0, x64asm.RCX)
}

func (g *Generator) compileSRWAcquire(receiver ast.Expression, exclusive bool) {
	name := "AcquireSRWLockShared"
	if exclusive {
		name = "AcquireSRWLockExclusive"
	}
	fn := g.pe.AddImport("kernel32.dll", name)
	g.compileExpr(receiver)
	g.asm.MovRR(x64asm.RCX, x64asm.RAX)
	g.asm.SubRspImm32(32)
	g.asm.CallMemRip(fn)
	g.asm.AddRspImm32(32)
}

func (g *Generator) compileSRWRelease(receiver ast.Expression, exclusive bool) {
	name := "ReleaseSRWLockShared"
	if exclusive {
		name = "ReleaseSRWLockExclusive"
	}
	fn := g.pe.AddImport("kernel32.dll", name)
	g.compileExpr(receiver)
	g.asm.MovRR(x64asm.RCX, x64asm.RAX)
	g.asm.SubRspImm32(32)
	g.asm.CallMemRip(fn)
	g.asm.AddRspImm32(32)
}

func (g *Generator) compileSemaphoreAcquire(receiver ast.Expression) {
	fn := g.pe.AddImport("kernel32.dll", "WaitForSingleObject")
	g.syncLoadHandle(receiver)
	g.asm.MovRegImm64(x64asm.RDX, 0xffffffff)
	g.asm.SubRspImm32(32)
	g.asm.CallMemRip(fn)
	g.asm.AddRspImm32(32)
}

func (g *Generator) compileSemaphoreRelease(receiver ast.Expression) {
	fn := g.pe.AddImport("kernel32.dll", "ReleaseSemaphore")
	g.syncLoadHandle(receiver)
	g.asm.MovRegImm64(x64asm.RDX, 1)
	g.asm.XorRR(x64asm.R8, x64asm.R8) // lpPreviousCount = NULL
	g.asm.SubRspImm32(32)
	g.asm.CallMemRip(fn)
	g.asm.AddRspImm32(32)
}

// compileCondWait implements SleepConditionVariableSRW(cv, lock, INFINITE,
// 0); the associated lock is x.Args[0], the same lock the caller already
// holds, per the normal Win32 condition-variable protocol.
func (g *Generator) compileCondWait(x *ast.SyncOp) {
	fn := g.pe.AddImport("kernel32.dll", "SleepConditionVariableSRW")
	g.compileExpr(x.Receiver)
	g.asm.PushR(x64asm.RAX)
	if len(x.Args) > 0 {
		g.compileExpr(x.Args[0])
	} else {
		g.asm.XorRR(x64asm.RAX, x64asm.RAX)
	}
	g.asm.MovRR(x64asm.RDX, x64asm.RAX)
	g.asm.PopR(x64asm.RCX)
	g.asm.MovRegImm64(x64asm.R8, 0xffffffff)
	g.asm.XorRR(x64asm.R9, x64asm.R9)
	g.asm.SubRspImm32(32)
	g.asm.CallMemRip(fn)
	g.asm.AddRspImm32(32)
}

func (g *Generator) compileCondSignal(receiver ast.Expression, all bool) {
	name := "WakeConditionVariable"
	if all {
		name = "WakeAllConditionVariable"
	}
	fn := g.pe.AddImport("kernel32.dll", name)
	g.compileExpr(receiver)
	g.asm.MovRR(x64asm.RCX, x64asm.RAX)
	g.asm.SubRspImm32(32)
	g.asm.CallMemRip(fn)
	g.asm.AddRspImm32(32)
}

// compileChanSend/compileChanRecv push/pop the ring buffer behind a
// channel's data_ptr slot, wrapping head/tail modulo the stored capacity.
// The index and capacity are kept in rbx/r15 (untouched by
// emitListElemAddr's own r8/r10/r11 scratch use) across the address
// computation, since both are still needed afterward to store the advanced
// index back.
func (g *Generator) compileChanSend(receiver ast.Expression, args []ast.Expression) {
	// The value is evaluated before the receiver so that a nested
	// allocating expression (a record/list literal argument, which uses r12
	// as its own scratch) can't clobber the ring buffer base computed below.
	if len(args) > 0 {
		g.compileExpr(args[0])
	} else {
		g.asm.XorRR(x64asm.RAX, x64asm.RAX)
	}
	g.asm.PushR(x64asm.RAX)
	g.compileExpr(receiver)
	g.asm.LoadMem(x64asm.RAX, 8, x64asm.R12) // ring buffer base
	g.asm.PopR(x64asm.R9)                    // value to send

	g.asm.LoadMem(x64asm.R12, 8, x64asm.RBX)  // tail
	g.asm.LoadMem(x64asm.R12, 16, x64asm.R15) // cap
	g.emitListElemAddr(x64asm.R12, x64asm.RBX, x64asm.RAX)
	g.asm.AddRI(x64asm.RAX, 16) // past the {head,tail,cap} header into the slot array
	g.asm.StoreMem(x64asm.RAX, 0, x64asm.R9)

	g.asm.MovRR(x64asm.RAX, x64asm.RBX)
	g.asm.AddRI(x64asm.RAX, 1)
	g.asm.Cqo()
	g.asm.IdivR(x64asm.R15)
	g.asm.StoreMem(x64asm.R12, 8, x64asm.RDX)
	g.asm.MovRR(x64asm.RAX, x64asm.R9)
}

func (g *Generator) compileChanRecv(receiver ast.Expression) {
	g.compileExpr(receiver)
	g.asm.LoadMem(x64asm.RAX, 8, x64asm.R12) // ring buffer base

	g.asm.LoadMem(x64asm.R12, 0, x64asm.RBX)  // head
	g.asm.LoadMem(x64asm.R12, 16, x64asm.R15) // cap
	g.emitListElemAddr(x64asm.R12, x64asm.RBX, x64asm.RAX)
	g.asm.AddRI(x64asm.RAX, 16)
	g.asm.LoadMem(x64asm.RAX, 0, x64asm.R9) // received value

	g.asm.MovRR(x64asm.RAX, x64asm.RBX)
	g.asm.AddRI(x64asm.RAX, 1)
	g.asm.Cqo()
	g.asm.IdivR(x64asm.R15)
	g.asm.StoreMem(x64asm.R12, 0, x64asm.RDX)
	g.asm.MovRR(x64asm.RAX, x64asm.R9)
}
