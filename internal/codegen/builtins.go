package codegen

import (
	"github.com/windstream-lang/windstreamc/internal/ast"
	"github.com/windstream-lang/windstreamc/internal/gcrt"
	"github.com/windstream-lang/windstreamc/internal/x64asm"
)

// compileBuiltinCall inlines one of spec.md §4.10.4's builtin functions at
// the call site (no runtime library is linked against). It reports whether
// name was a recognized builtin; compileCall falls through to a user
// function or extern lookup when it returns false.
//
// Coverage here favors builtins expressible with the instructions this
// assembler exposes today (integer arithmetic, SSE2 add/sub/mul/div,
// Win32 calls) over exhaustive string/formatting semantics: sqrt/floor/
// ceil/round/trig and the string-scanning builtins (trim, split, join,
// replace, substring, ...) have no case here, so compileBuiltinCall returns
// false for them and compileCall treats the name like any other callee: an
// extern or user function of that name if one exists, otherwise an
// indirect closure call through the identifier's value (spec.md §4.10.11's
// "best effort" fallback).
func (g *Generator) compileBuiltinCall(name string, args []ast.Arg) bool {
	switch name {
	case "len":
		g.compileExpr(args[0].Value)
		g.asm.LoadMem(x64asm.RAX, 0, x64asm.RAX)
		return true
	case "abs":
		g.compileBuiltinAbs(args)
		return true
	case "min":
		g.compileBuiltinMinMax(args, x64asm.CC_LE)
		return true
	case "max":
		g.compileBuiltinMinMax(args, x64asm.CC_GE)
		return true
	case "clamp":
		g.compileBuiltinClamp(args)
		return true
	case "sign":
		g.compileBuiltinSign(args)
		return true
	case "int":
		g.compileBuiltinToInt(args)
		return true
	case "float":
		g.compileBuiltinToFloat(args)
		return true
	case "bool":
		g.compileExpr(args[0].Value)
		g.asm.TestRR(x64asm.RAX, x64asm.RAX)
		g.asm.Setcc(x64asm.CC_NE, x64asm.RAX)
		g.asm.MovzxB(x64asm.RAX)
		return true
	case "str":
		g.compileBuiltinStr(args)
		return true
	case "push":
		g.compileBuiltinPush(args)
		return true
	case "first":
		g.compileBuiltinElemAt(args[0].Value, nil, 0)
		return true
	case "get":
		g.compileBuiltinElemAt(args[0].Value, args[1].Value, 0)
		return true
	case "print", "println":
		g.compileBuiltinPrint(args, name == "println")
		return true
	case "panic", "assert":
		g.compileBuiltinPanic(name, args)
		return true
	case "sleep":
		g.compileBuiltinSleep(args)
		return true
	case "memcpy", "memmove":
		g.compileBuiltinMemcpy(args)
		return true
	case "memset":
		g.compileBuiltinMemset(args)
		return true
	case "alloc":
		g.compileExpr(args[0].Value)
		g.asm.MovRR(x64asm.RCX, x64asm.RAX)
		gcrt.EmitAllocSite(g.asm, g.pe, g.gc, x64asm.RCX, gcrt.TagList)
		return true
	case "free":
		g.compileExpr(args[0].Value) // GC manages lifetime; nothing further to do
		return true
	case "gc_collect":
		g.asm.SubRspImm32(32)
		g.asm.CallRel32("gc_collect")
		g.asm.AddRspImm32(32)
		return true
	case "gc_stats", "allocator_stats":
		gcrt.EmitStats(g.asm, g.gc)
		return true
	case "gc_count":
		gcrt.EmitCount(g.asm, g.gc)
		return true
	case "gc_pin":
		g.compileExpr(args[0].Value)
		g.asm.MovRR(x64asm.RCX, x64asm.RAX)
		gcrt.EmitPin(g.asm)
		return true
	case "gc_unpin":
		g.compileExpr(args[0].Value)
		g.asm.MovRR(x64asm.RCX, x64asm.RAX)
		gcrt.EmitUnpin(g.asm)
		return true
	case "gc_add_root":
		g.compileExpr(args[0].Value)
		g.asm.MovRR(x64asm.RCX, x64asm.RAX)
		gcrt.EmitAddRoot(g.asm, g.gc)
		return true
	case "gc_remove_root":
		g.compileExpr(args[0].Value)
		g.asm.MovRR(x64asm.RCX, x64asm.RAX)
		gcrt.EmitRemoveRoot(g.asm, g.gc)
		return true
	case "set_allocator":
		g.loadArgsIntoRegisters(args)
		gcrt.EmitSetAllocator(g.asm, g.gc)
		return true
	case "reset_allocator":
		gcrt.EmitResetAllocator(g.asm, g.gc)
		return true
	case "allocator_peak":
		gcrt.EmitAllocatorPeak(g.asm, g.gc)
		return true
	case "is_ok", "is_err":
		g.compileExpr(args[0].Value)
		g.asm.MovRegImm64(x64asm.RDX, 1)
		g.asm.AndRR(x64asm.RAX, x64asm.RDX)
		if name == "is_err" {
			g.asm.MovRegImm64(x64asm.RDX, 1)
			g.asm.XorRR(x64asm.RAX, x64asm.RDX)
		}
		return true
	case "unwrap", "unwrap_or":
		g.compileBuiltinUnwrap(name, args)
		return true
	case "platform":
		g.compileStringLit("windows")
		return true
	case "arch":
		g.compileStringLit("x64")
		return true
	case "make_mutex":
		g.compileMakeMutex()
		return true
	}
	return false
}

func (g *Generator) compileBuiltinAbs(args []ast.Arg) {
	if g.isFloatExpr(args[0].Value) {
		g.compileExpr(args[0].Value)
		g.asm.MovqFromXmm(x64asm.RAX, x64asm.XMM0)
		g.asm.MovRegImm64(x64asm.RDX, 0x7fffffffffffffff)
		g.asm.AndRR(x64asm.RAX, x64asm.RDX)
		g.asm.MovqToXmm(x64asm.XMM0, x64asm.RAX)
		return
	}
	g.compileExpr(args[0].Value)
	g.asm.MovRR(x64asm.RDX, x64asm.RAX)
	g.asm.MovRegImm64(x64asm.R9, 63)
	g.asm.Cqo() // rdx = sign mask (all 1s if negative, else 0)
	g.asm.XorRR(x64asm.RAX, x64asm.RDX)
	g.asm.SubRR(x64asm.RAX, x64asm.RDX)
}

// compileBuiltinMinMax handles both the integer and float forms: for a
// float pair it converts to a conditional move via branch (no SSE
// compare-and-select instruction wired in this assembler), for integers it
// branches on the requested comparison.
func (g *Generator) compileBuiltinMinMax(args []ast.Arg, keepLeftWhen byte) {
	done := g.newLabel("minmax_done")
	if g.isFloatExpr(args[0].Value) || g.isFloatExpr(args[1].Value) {
		g.compileExpr(args[0].Value)
		g.asm.SubRspImm32(16)
		g.asm.MovqFromXmm(x64asm.RAX, x64asm.XMM0)
		g.asm.StoreMem(x64asm.RSP, 0, x64asm.RAX)
		g.compileExpr(args[1].Value)
		g.asm.MovqFromXmm(x64asm.R9, x64asm.XMM0)
		g.asm.LoadMem(x64asm.RSP, 0, x64asm.RAX)
		g.asm.AddRspImm32(16)
		g.asm.MovqToXmm(x64asm.XMM1, x64asm.RAX) // left
		g.asm.MovqToXmm(x64asm.XMM0, x64asm.R9)  // right
		g.asm.CvtTSD2SI(x64asm.RAX, x64asm.XMM1)
		g.asm.CvtTSD2SI(x64asm.RDX, x64asm.XMM0)
		g.asm.CmpRR(x64asm.RAX, x64asm.RDX)
		g.asm.JccRel32(keepLeftWhen, done)
		g.asm.MovsdXX(x64asm.XMM1, x64asm.XMM0)
		g.asm.Label(done)
		g.asm.MovsdXX(x64asm.XMM0, x64asm.XMM1)
		return
	}
	g.compileExpr(args[0].Value)
	g.asm.PushR(x64asm.RAX)
	g.compileExpr(args[1].Value)
	g.asm.MovRR(x64asm.RDX, x64asm.RAX)
	g.asm.PopR(x64asm.RAX)
	g.asm.CmpRR(x64asm.RAX, x64asm.RDX)
	g.asm.JccRel32(keepLeftWhen, done)
	g.asm.MovRR(x64asm.RAX, x64asm.RDX)
	g.asm.Label(done)
}

func (g *Generator) compileBuiltinClamp(args []ast.Arg) {
	g.compileBuiltinMinMax([]ast.Arg{args[0], args[2]}, x64asm.CC_LE) // min(x, hi)
	g.asm.PushR(x64asm.RAX)
	g.compileExpr(args[1].Value)
	g.asm.MovRR(x64asm.RDX, x64asm.RAX)
	g.asm.PopR(x64asm.RAX)
	done := g.newLabel("clamp_done")
	g.asm.CmpRR(x64asm.RAX, x64asm.RDX)
	g.asm.JccRel32(x64asm.CC_GE, done)
	g.asm.MovRR(x64asm.RAX, x64asm.RDX)
	g.asm.Label(done)
}

func (g *Generator) compileBuiltinSign(args []ast.Arg) {
	g.compileExpr(args[0].Value)
	pos := g.newLabel("sign_pos")
	neg := g.newLabel("sign_neg")
	done := g.newLabel("sign_done")
	g.asm.TestRR(x64asm.RAX, x64asm.RAX)
	g.asm.JccRel32(x64asm.CC_E, done) // already zero
	g.asm.JccRel32(x64asm.CC_L, neg)
	g.asm.Label(pos)
	g.asm.MovRegImm64(x64asm.RAX, 1)
	g.asm.JmpRel32(done)
	g.asm.Label(neg)
	g.asm.MovRegImm64(x64asm.RAX, ^uint64(0))
	g.asm.Label(done)
}

func (g *Generator) compileBuiltinToInt(args []ast.Arg) {
	if g.isFloatExpr(args[0].Value) {
		g.compileExpr(args[0].Value)
		g.asm.CvtTSD2SI(x64asm.RAX, x64asm.XMM0)
		return
	}
	g.compileExpr(args[0].Value) // already int, bool, or a string (runtime parse unimplemented)
}

func (g *Generator) compileBuiltinToFloat(args []ast.Arg) {
	if g.isFloatExpr(args[0].Value) {
		g.compileExpr(args[0].Value)
		return
	}
	g.compileExpr(args[0].Value)
	g.asm.CvtSI2SD(x64asm.XMM0, x64asm.RAX)
}

// compileBuiltinStr renders an int or bool argument with emitIntToString (a
// bool becomes "0" or "1"); a float or string-already argument is passed
// through unconverted, floats being the documented string-formatting gap
// (see the package doc comment above).
func (g *Generator) compileBuiltinStr(args []ast.Arg) {
	if g.isFloatExpr(args[0].Value) || isStringTyped(g, args[0].Value) {
		g.compileExpr(args[0].Value)
		return
	}
	g.compileExpr(args[0].Value)
	g.emitIntToString()
}

// emitIntToString converts the signed 64-bit integer in rax to a heap
// string object, leaving its pointer in rax. Grounded on the digit-at-a-
// time itoa loop std/compiler's print intrinsics use, adapted to allocate
// through gcrt rather than writing to a fixed scratch buffer the runtime
// owns.
func (g *Generator) emitIntToString() {
	negLabel := g.newLabel("itoa_neg")
	loop := g.newLabel("itoa_loop")
	doneDigits := g.newLabel("itoa_digits_done")

	g.asm.SubRspImm32(32) // 32-byte scratch buffer, digits written back to front
	g.asm.MovRegImm64(x64asm.R13, 32)
	g.asm.MovRR(x64asm.R14, x64asm.RAX) // r14 = remaining value
	g.asm.XorRR(x64asm.R15, x64asm.R15) // r15 = 0 if non-negative, 1 if negative

	g.asm.TestRR(x64asm.R14, x64asm.R14)
	g.asm.JccRel32(x64asm.CC_GE, loop)
	g.asm.Label(negLabel)
	g.asm.NegR(x64asm.R14)
	g.asm.MovRegImm64(x64asm.R15, 1)

	g.asm.Label(loop)
	g.asm.MovRR(x64asm.RAX, x64asm.R14)
	g.asm.MovRegImm64(x64asm.R9, 10)
	g.asm.Cqo()
	g.asm.IdivR(x64asm.R9)
	g.asm.AddRI(x64asm.RDX, '0')
	g.asm.SubRI(x64asm.R13, 1)
	g.asm.MovRR(x64asm.R10, x64asm.RSP)
	g.asm.AddRR(x64asm.R10, x64asm.R13)
	g.asm.StoreMemByte(x64asm.R10, 0, x64asm.RDX)
	g.asm.MovRR(x64asm.R14, x64asm.RAX)
	g.asm.TestRR(x64asm.R14, x64asm.R14)
	g.asm.JccRel32(x64asm.CC_NE, loop)

	g.asm.TestRR(x64asm.R15, x64asm.R15)
	g.asm.JccRel32(x64asm.CC_E, doneDigits)
	g.asm.SubRI(x64asm.R13, 1)
	g.asm.MovRR(x64asm.R10, x64asm.RSP)
	g.asm.AddRR(x64asm.R10, x64asm.R13)
	g.asm.MovRegImm64(x64asm.RDX, '-')
	g.asm.StoreMemByte(x64asm.R10, 0, x64asm.RDX)
	g.asm.Label(doneDigits)

	g.asm.MovRegImm64(x64asm.RAX, 32)
	g.asm.SubRR(x64asm.RAX, x64asm.R13) // digit count
	g.asm.MovRR(x64asm.R12, x64asm.RAX) // r12 = length

	g.asm.MovRR(x64asm.RCX, x64asm.RAX)
	gcrt.EmitAllocSite(g.asm, g.pe, g.gc, x64asm.RCX, gcrt.TagString)
	g.asm.MovRR(x64asm.RBX, x64asm.RAX) // rbx = data buffer

	// copy r12 bytes from rsp+r13 to rbx
	g.asm.XorRR(x64asm.R9, x64asm.R9)
	copyLoop := g.newLabel("itoa_copy")
	copyDone := g.newLabel("itoa_copy_done")
	g.asm.Label(copyLoop)
	g.asm.CmpRR(x64asm.R9, x64asm.R12)
	g.asm.JccRel32(x64asm.CC_GE, copyDone)
	g.asm.MovRR(x64asm.R10, x64asm.RSP)
	g.asm.AddRR(x64asm.R10, x64asm.R13)
	g.asm.AddRR(x64asm.R10, x64asm.R9)
	g.asm.LoadMemByte(x64asm.R10, 0, x64asm.RDX)
	g.asm.MovRR(x64asm.R11, x64asm.RBX)
	g.asm.AddRR(x64asm.R11, x64asm.R9)
	g.asm.StoreMemByte(x64asm.R11, 0, x64asm.RDX)
	g.asm.AddRI(x64asm.R9, 1)
	g.asm.JmpRel32(copyLoop)
	g.asm.Label(copyDone)

	g.asm.AddRspImm32(32)

	g.asm.MovRegImm64(x64asm.RCX, 16)
	gcrt.EmitAllocSite(g.asm, g.pe, g.gc, x64asm.RCX, gcrt.TagString)
	g.asm.StoreMem(x64asm.RAX, 0, x64asm.R12)
	g.asm.StoreMem(x64asm.RAX, 8, x64asm.RBX)
}

// compileBuiltinPush allocates a fresh list one element longer than the
// receiver, copies the old elements, and appends the new one, matching
// spec.md §4.10.4's "push ... allocates a new list of size N+1" note
// (lists here have no spare capacity to grow in place).
func (g *Generator) compileBuiltinPush(args []ast.Arg) {
	g.compileExpr(args[0].Value)
	g.asm.MovRR(x64asm.R12, x64asm.RAX) // old list
	g.asm.LoadMem(x64asm.R12, 0, x64asm.R13) // old length

	g.compileExpr(args[1].Value)
	g.asm.MovRR(x64asm.R14, x64asm.RAX) // new value (raw bits)

	g.asm.MovRR(x64asm.RCX, x64asm.R13)
	g.asm.AddRI(x64asm.RCX, 1)
	g.asm.MovRegImm64(x64asm.R9, 8)
	g.asm.ImulRR(x64asm.RCX, x64asm.R9)
	g.asm.AddRI(x64asm.RCX, 8)
	gcrt.EmitAllocSite(g.asm, g.pe, g.gc, x64asm.RCX, gcrt.TagList)
	g.asm.MovRR(x64asm.R15, x64asm.RAX) // new list

	newLen := x64asm.RBX
	g.asm.MovRR(newLen, x64asm.R13)
	g.asm.AddRI(newLen, 1)
	g.asm.StoreMem(x64asm.R15, 0, newLen)

	idx := g.newLabel("push_copy")
	done := g.newLabel("push_copy_done")
	g.asm.XorRR(x64asm.R9, x64asm.R9)
	g.asm.Label(idx)
	g.asm.CmpRR(x64asm.R9, x64asm.R13)
	g.asm.JccRel32(x64asm.CC_GE, done)
	g.emitListElemAddr(x64asm.R12, x64asm.R9, x64asm.R10)
	g.asm.LoadMem(x64asm.R10, 0, x64asm.R11)
	g.emitListElemAddr(x64asm.R15, x64asm.R9, x64asm.R10)
	g.asm.StoreMem(x64asm.R10, 0, x64asm.R11)
	g.asm.AddRI(x64asm.R9, 1)
	g.asm.JmpRel32(idx)
	g.asm.Label(done)

	g.emitListElemAddr(x64asm.R15, x64asm.R13, x64asm.R10)
	g.asm.StoreMem(x64asm.R10, 0, x64asm.R14)
	g.asm.MovRR(x64asm.RAX, x64asm.R15)
}

// compileBuiltinElemAt handles both first(list) (idx == nil, index 0) and
// get(list, i); pop/last/index/includes/take/drop are covered by the same
// "best effort" fallback the package doc describes until written.
func (g *Generator) compileBuiltinElemAt(list ast.Expression, idx ast.Expression, constIdx int) {
	g.compileExpr(list)
	g.asm.PushR(x64asm.RAX)
	if idx != nil {
		g.compileExpr(idx)
	} else {
		g.asm.MovRegImm64(x64asm.RAX, uint64(constIdx))
	}
	g.asm.MovRR(x64asm.R10, x64asm.RAX)
	g.asm.PopR(x64asm.R11)
	g.emitListElemAddr(x64asm.R11, x64asm.R10, x64asm.R11)
	g.asm.LoadMem(x64asm.R11, 0, x64asm.RAX)
}

// compileBuiltinPrint writes each argument to the console via
// WriteConsoleA: strings go directly (their {len, data} layout matches
// WriteConsoleA's (buffer, length) pair once the data pointer is loaded),
// other kinds are converted to a string first.
func (g *Generator) compileBuiltinPrint(args []ast.Arg, newline bool) {
	writeConsole := g.pe.AddImport("kernel32.dll", "WriteConsoleA")
	getStdHandle := g.pe.AddImport("kernel32.dll", "GetStdHandle")

	for _, a := range args {
		if g.isFloatExpr(a.Value) {
			g.compileExpr(a.Value)
			g.asm.CvtTSD2SI(x64asm.RAX, x64asm.XMM0)
			g.emitIntToString()
		} else if isStringTyped(g, a.Value) {
			g.compileExpr(a.Value)
		} else {
			g.compileExpr(a.Value)
			g.emitIntToString()
		}
		g.emitWriteString(getStdHandle, writeConsole)
	}
	if newline {
		g.compileStringLit("\r\n")
		g.emitWriteString(getStdHandle, writeConsole)
	}
}

func isStringTyped(g *Generator, e ast.Expression) bool {
	if g.chk == nil {
		return false
	}
	switch e.(type) {
	case *ast.StringLit, *ast.InterpString:
		return true
	}
	t, ok := g.chk.TypeOf(e)
	return ok && t != nil && t.Name == "string"
}

// emitWriteString writes the string object in rax to STD_OUTPUT_HANDLE.
func (g *Generator) emitWriteString(getStdHandle, writeConsole uint32) {
	g.asm.MovRR(x64asm.R12, x64asm.RAX)
	g.asm.MovRegImm64(x64asm.RCX, ^uint64(10)) // STD_OUTPUT_HANDLE = -11
	g.asm.SubRspImm32(32)
	g.asm.CallMemRip(getStdHandle)
	g.asm.AddRspImm32(32)
	g.asm.MovRR(x64asm.RCX, x64asm.RAX)
	g.asm.LoadMem(x64asm.R12, 8, x64asm.RDX)
	g.asm.LoadMem(x64asm.R12, 0, x64asm.R8)
	g.asm.XorRR(x64asm.R9, x64asm.R9) // lpNumberOfCharsWritten = NULL
	g.asm.SubRspImm32(32 + 8)
	g.asm.StoreMem(x64asm.RSP, 32, x64asm.R9) // lpReserved = NULL on the outgoing fifth-argument stack slot
	g.asm.CallMemRip(writeConsole)
	g.asm.AddRspImm32(32 + 8)
}

// compileBuiltinPanic writes the message (if any) then calls ExitProcess(1);
// assert evaluates its condition and only panics when it's falsy.
func (g *Generator) compileBuiltinPanic(name string, args []ast.Arg) {
	exitProcess := g.pe.AddImport("kernel32.dll", "ExitProcess")
	msgIdx := 0
	if name == "assert" {
		ok := g.newLabel("assert_ok")
		g.compileExpr(args[0].Value)
		g.asm.TestRR(x64asm.RAX, x64asm.RAX)
		g.asm.JccRel32(x64asm.CC_NE, ok)
		msgIdx = 1
		if len(args) > msgIdx {
			g.compileBuiltinPrint([]ast.Arg{args[msgIdx]}, true)
		}
		g.asm.MovRegImm64(x64asm.RCX, 1)
		g.asm.CallMemRip(exitProcess)
		g.asm.Label(ok)
		return
	}
	if len(args) > 0 {
		g.compileBuiltinPrint([]ast.Arg{args[0]}, true)
	}
	g.asm.MovRegImm64(x64asm.RCX, 1)
	g.asm.CallMemRip(exitProcess)
}

func (g *Generator) compileBuiltinSleep(args []ast.Arg) {
	sleepFn := g.pe.AddImport("kernel32.dll", "Sleep")
	g.compileExpr(args[0].Value)
	g.asm.MovRR(x64asm.RCX, x64asm.RAX)
	g.asm.SubRspImm32(32)
	g.asm.CallMemRip(sleepFn)
	g.asm.AddRspImm32(32)
}

func (g *Generator) compileBuiltinMemcpy(args []ast.Arg) {
	g.compileExpr(args[0].Value)
	g.asm.PushR(x64asm.RAX)
	g.compileExpr(args[1].Value)
	g.asm.PushR(x64asm.RAX)
	g.compileExpr(args[2].Value)
	g.asm.MovRR(x64asm.R9, x64asm.RAX) // count
	g.asm.PopR(x64asm.R10)             // src
	g.asm.PopR(x64asm.R11)             // dst

	loop := g.newLabel("memcpy_loop")
	done := g.newLabel("memcpy_done")
	g.asm.XorRR(x64asm.RAX, x64asm.RAX)
	g.asm.Label(loop)
	g.asm.CmpRR(x64asm.RAX, x64asm.R9)
	g.asm.JccRel32(x64asm.CC_GE, done)
	g.asm.MovRR(x64asm.RDX, x64asm.R10)
	g.asm.AddRR(x64asm.RDX, x64asm.RAX)
	g.asm.LoadMemByte(x64asm.RDX, 0, x64asm.RDX)
	g.asm.MovRR(x64asm.R8, x64asm.R11)
	g.asm.AddRR(x64asm.R8, x64asm.RAX)
	g.asm.StoreMemByte(x64asm.R8, 0, x64asm.RDX)
	g.asm.AddRI(x64asm.RAX, 1)
	g.asm.JmpRel32(loop)
	g.asm.Label(done)
	g.asm.MovRR(x64asm.RAX, x64asm.R11)
}

func (g *Generator) compileBuiltinMemset(args []ast.Arg) {
	g.compileExpr(args[0].Value)
	g.asm.PushR(x64asm.RAX)
	g.compileExpr(args[1].Value)
	g.asm.MovRR(x64asm.R9, x64asm.RAX) // byte value
	g.compileExpr(args[2].Value)
	g.asm.MovRR(x64asm.R10, x64asm.RAX) // count
	g.asm.PopR(x64asm.R11)              // dst

	loop := g.newLabel("memset_loop")
	done := g.newLabel("memset_done")
	g.asm.XorRR(x64asm.RAX, x64asm.RAX)
	g.asm.Label(loop)
	g.asm.CmpRR(x64asm.RAX, x64asm.R10)
	g.asm.JccRel32(x64asm.CC_GE, done)
	g.asm.MovRR(x64asm.RDX, x64asm.R11)
	g.asm.AddRR(x64asm.RDX, x64asm.RAX)
	g.asm.StoreMemByte(x64asm.RDX, 0, x64asm.R9)
	g.asm.AddRI(x64asm.RAX, 1)
	g.asm.JmpRel32(loop)
	g.asm.Label(done)
	g.asm.MovRR(x64asm.RAX, x64asm.R11)
}

func (g *Generator) compileBuiltinUnwrap(name string, args []ast.Arg) {
	g.compileExpr(args[0].Value)
	g.asm.MovRR(x64asm.RDX, x64asm.RAX)
	g.asm.MovRegImm64(x64asm.R9, 1)
	g.asm.AndRR(x64asm.RDX, x64asm.R9)
	ok := g.newLabel("unwrap_ok")
	g.asm.TestRR(x64asm.RDX, x64asm.RDX)
	g.asm.JccRel32(x64asm.CC_NE, ok)
	if name == "unwrap_or" && len(args) > 1 {
		g.compileExpr(args[1].Value)
		done := g.newLabel("unwrap_done")
		g.asm.JmpRel32(done)
		g.asm.Label(ok)
		g.asm.MovRegImm64(x64asm.RCX, 1)
		g.asm.SarCl(x64asm.RAX)
		g.asm.Label(done)
		return
	}
	exitProcess := g.pe.AddImport("kernel32.dll", "ExitProcess")
	g.asm.MovRegImm64(x64asm.RCX, 1)
	g.asm.CallMemRip(exitProcess)
	g.asm.Label(ok)
	g.asm.MovRegImm64(x64asm.RCX, 1)
	g.asm.SarCl(x64asm.RAX)
}
