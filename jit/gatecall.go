package jit

import "github.com/xyproto/sbpfvm/isa"

// emitGateCall and emitGateCallImm cross from compiled guest code into Go
// (trampoline.go's nativeCallGate) by hand-assembling invokeGate's ABI0
// stack calling convention: arguments live at fixed offsets from the
// callee's virtual frame pointer, not in registers, the same convention
// the teacher would have to reproduce by hand if it ever called a
// hand-assembled Go stub rather than another compiled symbol.
//
// Neither the Go runtime's register-based calling convention nor Go's
// reservation of r14 as the running goroutine's g pointer make any
// promise about what a Go function is free to do to the other
// registers, so every guest register is spilled to ctx.regs (the same
// slots the prologue/epilogue use) before the call and reloaded after —
// the call is treated as opaquely hostile to every host register except
// the ones this package itself never assigns to a guest register
// (rsp, rbp, scratch).

// spillAllGuestRegs and reloadAllGuestRegs bracket a gate call: compiled
// code cannot know what nativeCallGate's Go body might do to the
// registers currently holding guest state, so the safe assumption is
// that a call into Go clobbers everything a plain function call
// normally would.
func (c *compiler) spillAllGuestRegs() {
	for g := 0; g < isa.NumRegisters; g++ {
		c.emitStoreGuestReg(g)
	}
}

func (c *compiler) reloadAllGuestRegs() {
	for g := 0; g < isa.NumRegisters; g++ {
		c.emitLoadGuestReg(g)
	}
}

// emitGateCall emits a call to nativeCallGate with one dynamic argument,
// pcReg — conventionally scratch, loaded by the caller with a compile-time
// constant (a guest pc) before the jump into a shared anchor (anchors.go)
// that serves many call sites.
func (c *compiler) emitGateCall(gate uint32, arg0 uint32, pcReg hostReg) {
	c.spillAllGuestRegs()

	e := c.e
	// Push in reverse field order so the last push (gate) lands at the
	// lowest address: gate+0(FP), arg0+8(FP), arg1+16(FP), ret+24(FP).
	e.pushImm32(0)
	e.pushReg(pcReg)
	e.pushImm32(int32(arg0))
	e.pushImm32(int32(gate))

	e.movImm64(scratch, invokeGateAddr)
	e.callReg(scratch)
	e.loadRspDisp8(scratch, 24) // gate's status, read before the frame is torn down

	e.popReg(rax) // discard the 4 pushed slots (values irrelevant, only rsp matters)
	e.popReg(rax)
	e.popReg(rax)
	e.popReg(rax)

	c.reloadAllGuestRegs()
}

// emitGateCallImm is emitGateCall's fully-immediate sibling, for the
// checkpoint gates (meter, trace) whose arguments are all known at
// compile time, so nothing needs to round-trip through a register.
func (c *compiler) emitGateCallImm(gate uint32, arg0 uint32, arg1 uint32) {
	c.spillAllGuestRegs()

	e := c.e
	e.pushImm32(0)
	e.pushImm32(int32(arg1))
	e.pushImm32(int32(arg0))
	e.pushImm32(int32(gate))

	e.movImm64(scratch, invokeGateAddr)
	e.callReg(scratch)
	e.loadRspDisp8(scratch, 24)

	e.popReg(rax)
	e.popReg(rax)
	e.popReg(rax)
	e.popReg(rax)

	c.reloadAllGuestRegs()
}
