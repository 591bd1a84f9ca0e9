package jit

import "github.com/xyproto/sbpfvm/isa"

// regsFieldOffset is runContext.regs's byte offset within runContext.
// Hand-computed rather than using unsafe.Offsetof from within the
// compiler package (compile.go has no *runContext value to take the
// address of at compile time — compilation happens once, long before
// any particular runContext exists); trampoline.go's field order must
// not change without updating this constant, which is exactly the kind
// of fragile-but-documented coupling the teacher's own backend.go
// accepts between ExecutableBuilder's layout and the offsets mov.go's
// helpers hard-code.
const (
	nextPCFieldOffset        = 8  // after the `vm` pointer (8 bytes)
	pcSectionBaseFieldOffset = 16 // after `nextPC` (8 bytes)
	regsFieldOffset          = 24 // after `pcSectionBase` (8 bytes)
)

// emitPrologue emits the native entry sequence: stash the incoming
// runContext pointer (passed in rdi by runner_amd64.s, following the
// SysV x86-64 calling convention) into the long-lived ctx register, save
// the native callee-saved registers this compiled function will clobber,
// load the pc_section base address, then load every guest register from
// ctx.regs into its assigned host register (regalloc.go's registerMap).
func (c *compiler) emitPrologue() {
	for _, r := range calleeSavedHostRegs {
		c.e.pushReg(r)
	}

	c.e.movRegToReg(rbp, rdi) // ctx pointer now lives in rbp for the whole run

	// pcSectionReg is loaded once here and never touched again: every
	// entry is an absolute native address (compile.go's seal), so the
	// fallback-gate continuation (emitFallback, emit_instruction.go), which
	// also carries call-register, can jump through it with no further
	// relocation.
	c.e.loadMemDisp32(pcSectionReg, rbp, pcSectionBaseFieldOffset)

	for g := 0; g < isa.NumRegisters; g++ {
		c.emitLoadGuestReg(g)
	}

	// Seed the in-register instruction-meter countdown (meterReg,
	// compile.go) from the real *meter.Meter's current budget, so the
	// common case — decrementing a register on every checkpoint — never
	// has to call back into Go at all; only running out reconciles with
	// the authoritative meter (anchors.go's exceededMaxInstructions).
	c.emitGateCallImm(gateLoadMeter, 0, 0)
	c.e.movRegToReg(meterReg, scratch)
}

// emitLoadGuestReg emits MOV hostReg, [rbp + regsFieldOffset + 8*g].
func (c *compiler) emitLoadGuestReg(g int) {
	host := registerMap[g]
	c.e.byte(rex(true, bool(host >= 8), false))
	c.e.byte(0x8B) // MOV r64, r/m64
	c.e.byte(0x85 | ((byte(host) & 7) << 3))
	c.e.u32(uint32(regsFieldOffset + 8*g))
}

// emitStoreGuestReg emits MOV [rbp + regsFieldOffset + 8*g], hostReg.
func (c *compiler) emitStoreGuestReg(g int) {
	host := registerMap[g]
	c.e.byte(rex(true, bool(host >= 8), false))
	c.e.byte(0x89) // MOV r/m64, r64
	c.e.byte(0x85 | ((byte(host) & 7) << 3))
	c.e.u32(uint32(regsFieldOffset + 8*g))
}

// emitEpilogue reconciles the in-register meter countdown (meterReg)
// back into the real *meter.Meter, spills every guest register back to
// ctx.regs (so Go can read the final state), restores native
// callee-saved registers, and returns. Guest r0 is left in rax as the
// native return value, but Run (run.go) ignores it and reads the result
// from ctx.regs[0], which this epilogue has just written.
//
// The meter gate call must run before rbp is popped back to the
// caller's frame pointer, since it still addresses ctx through rbp the
// same way every other gate call in this function does.
func (c *compiler) emitEpilogue() {
	c.emitGateCall(gateStoreMeter, 0, meterReg)

	for g := 0; g < isa.NumRegisters; g++ {
		c.emitStoreGuestReg(g)
	}
	for i := len(calleeSavedHostRegs) - 1; i >= 0; i-- {
		c.e.popReg(calleeSavedHostRegs[i])
	}
	c.e.ret()
}
