package jit

import (
	"sync"
	"unsafe"

	"github.com/xyproto/sbpfvm/interp"
	"github.com/xyproto/sbpfvm/isa"
)

// runCompiled is implemented in runner_amd64.s.
//
//go:noescape
func runCompiled(codeAddr, ctxAddr uintptr) uint64

// runMu serializes Run calls: currentCtx (trampoline.go) is a single
// package-level variable nativeCallGate reads through, so two Runs on
// the same process at once would stomp on each other's context. A real
// multi-tenant host would instead thread the context through a register
// dedicated to it; this package doesn't have a spare one (regalloc.go
// hands out all sixteen), so it falls back to a lock the way the
// teacher's own single ExecutableBuilder-per-compile model avoids needing
// one in the first place.
var runMu sync.Mutex

// Run invokes compiled code against vm, which supplies the program's
// memory map, instruction meter, tracer and host upcalls — the same
// dependencies interp.Interpreter.Run takes, so callers can switch
// between the two execution strategies without touching anything but
// which one they call (spec.md §8.1's interpreter/JIT parity
// requirement leans on exactly this symmetry).
func Run(compiled *Compiled, vm *interp.Interpreter) (uint64, error) {
	runMu.Lock()
	defer runMu.Unlock()

	ctx := &runContext{
		vm:            vm,
		pcSectionBase: uint64(uintptr(unsafe.Pointer(&compiled.pcSection[0]))),
		regs:          vm.Registers(),
	}
	currentCtx = ctx
	defer func() { currentCtx = nil }()

	codeAddr := uintptr(unsafe.Pointer(&compiled.text[compiled.entry]))
	runCompiled(codeAddr, uintptr(unsafe.Pointer(ctx)))

	if ctx.pendingErr != nil {
		return 0, ctx.pendingErr
	}
	return ctx.regs[isa.ReturnRegister], nil
}
