package jit

import (
	"reflect"

	"github.com/xyproto/sbpfvm/interp"
	"github.com/xyproto/sbpfvm/isa"
)

// gate indices passed as invokeGate's first stack argument by compiled
// code when it needs to call back
// into Go. Kept small and numeric, rather than function pointers, so
// compiled code only ever needs one call target (invokeGate) plus a
// constant, mirroring the teacher's own "emit a placeholder, patch it
// later" discipline rather than inventing a second dispatch mechanism.
const (
	gateConsumeMeter = 1
	gateHostUpcall   = 2
	gateTrace        = 3
	gateReportError  = 4
	gateLoadMeter    = 5
	gateInterpretOne = 6
	gateStoreMeter   = 7
)

// fallback gate statuses (gateInterpretOne's return value): 0 means
// continue at ctx.nextPC (resolved through the pc_section table), 1
// means ctx.pendingErr was set, 2 means the program exited normally
// (ctx.regs[isa.ReturnRegister] already holds the result).
const (
	fallbackContinue = 0
	fallbackError    = 1
	fallbackDone     = 2
)

// error kinds passed as gateReportError's arg0, one per anchor
// (anchors.go). Kept separate from the gate constants above since
// several different faults all funnel through the same gate.
const (
	errKindCallDepthExceeded      = 1
	errKindCallOutsideText        = 2
	errKindDivideByZero           = 3
	errKindDivideOverflow         = 4
	errKindUnsupportedInstruction = 5
	errKindInvalidInstruction     = 6
)

// invokeGateAddr is invokeGate's entry address, resolved once via
// reflection rather than hand-assembled position-independent addressing:
// Go's garbage collector never moves compiled code, so this value is
// good for the process's whole lifetime, and compile.go bakes it into
// every emitted gate call as a 64-bit immediate (emitGateCall,
// gatecall.go) the same way the teacher's callSymbolX86 bakes a resolved
// symbol address into a direct call when one is already known.
var invokeGateAddr = uint64(reflect.ValueOf(invokeGate).Pointer())

// invokeGate is implemented in trampoline_amd64.s: it loads its three
// stack arguments into DI/SI/DX, calls nativeCallGate and stores AX as
// its result. Compiled code calls this, never nativeCallGate directly.
// gatecall.go's convention: arg0 carries whatever is already a compile-time
// constant at the call site (a charge amount, a symbol hash, a pc when the
// call site itself is pc-specific); arg1 carries the one value that has
// to be read from a register because the call site is a shared anchor
// serving many guest instructions (almost always the guest pc).
//
//go:noescape
func invokeGate(gate uint64, arg0 uint64, arg1 uint64) uint64

// runContext is the state one compiled invocation shares with
// nativeCallGate. Compiled code keeps its own copies of the guest
// registers in host CPU registers (regalloc.go's registerMap) for speed,
// but spills the full register file into regs before any gate call,
// since a gate call only carries two integer arguments — the same
// "register windows don't cross a Go call boundary" constraint the
// teacher's own callSymbolX86 path works around by keeping everything
// it needs in the stack-backed ExecutableBuilder rather than live
// registers.
//
// Compiled code receives a pointer to this struct in rdi from runCompiled
// (runner_amd64.s) and keeps it in rbp for the whole run (prologue.go's
// emitPrologue): Go's garbage collector does not relocate heap objects,
// so the raw address stays valid for the
// lifetime of the call as long as runContext itself is kept reachable,
// which Run does by holding its own reference for the call's duration.
type runContext struct {
	vm            *interp.Interpreter
	nextPC        uint64 // set by gateInterpretOne when it returns fallbackContinue
	pcSectionBase uint64 // absolute address of Compiled.pcSection, loaded once in the prologue
	regs          [isa.NumRegisters]uint64
	pendingErr    error
}

var currentCtx *runContext

// nativeCallGate is the actual Go-side implementation of each gate.
// Reached only through invokeGate's assembly shim.
func nativeCallGate(gate uint64, arg0 uint64, arg1 uint64) uint64 {
	ctx := currentCtx
	switch gate {
	case gateConsumeMeter:
		// Reached only from the exceededMaxInstructions anchor, once
		// meterReg has counted the whole budget down: bring the real
		// meter to zero before charging the faulting instruction.
		n, pc := arg0, arg1
		if ctx.vm.Meter.Enabled() {
			ctx.vm.Meter.SetRemaining(0)
		}
		if err := ctx.vm.Meter.Consume(pc, n); err != nil {
			ctx.pendingErr = err
			return 1
		}
		return 0

	case gateHostUpcall:
		hash := uint32(arg0)
		pc := arg1
		fn, ok := ctx.vm.HostUpcalls[hash]
		if !ok {
			ctx.pendingErr = &UnsupportedInstruction{PC: pc}
			return 1
		}
		var args [5]uint64
		copy(args[:], ctx.regs[1:6])
		var out uint64
		if err := fn(args, ctx.vm.Mem, &out); err != nil {
			ctx.pendingErr = &SyscallException{PC: pc, Inner: err}
			return 1
		}
		ctx.regs[0] = out
		return 0

	case gateLoadMeter:
		if !ctx.vm.Meter.Enabled() {
			return 1<<63 - 1 // a disabled meter never runs out
		}
		return ctx.vm.Meter.Remaining()

	case gateStoreMeter:
		// Only the success paths reconcile meterReg's final countdown
		// back into the real *meter.Meter: the error anchors
		// (gateReportError, and gateConsumeMeter's own
		// exceededMaxInstructions case) already leave ctx.vm.Meter in
		// its authoritative state, and meterReg has gone negative by
		// the time those paths reach the epilogue, so writing it back
		// here would stomp a correct value with a wrapped-around one.
		if ctx.pendingErr == nil && ctx.vm.Meter.Enabled() {
			ctx.vm.Meter.SetRemaining(arg1)
		}
		return 0

	case gateInterpretOne:
		idx := arg0
		next, result, done, err := ctx.vm.StepExternal(idx, &ctx.regs)
		if err != nil {
			ctx.pendingErr = err
			return fallbackError
		}
		if done {
			ctx.regs[isa.ReturnRegister] = result
			return fallbackDone
		}
		ctx.nextPC = next
		return fallbackContinue

	case gateTrace:
		if ctx.vm.Tracer != nil {
			var snapshot [12]uint64
			copy(snapshot[:], ctx.regs[:])
			snapshot[11] = ctx.regs[isa.FrameRegister]
			ctx.vm.Tracer.Record(arg0, snapshot)
		}
		return 0

	case gateReportError:
		pc := arg1
		switch uint32(arg0) {
		case errKindCallDepthExceeded:
			ctx.pendingErr = &CallDepthExceeded{PC: pc, Limit: ctx.vm.MaxCallDepth}
		case errKindCallOutsideText:
			ctx.pendingErr = &CallOutsideTextSegment{PC: pc}
		case errKindDivideByZero:
			ctx.pendingErr = &DivideByZero{PC: pc}
		case errKindDivideOverflow:
			ctx.pendingErr = &DivideOverflow{PC: pc}
		case errKindUnsupportedInstruction:
			ctx.pendingErr = &UnsupportedInstruction{PC: pc}
		case errKindInvalidInstruction:
			ctx.pendingErr = &InvalidInstruction{PC: pc}
		}
		return 1
	}
	return 0
}
