package jit

// emitAnchors emits each fault/exit handler exactly once, immediately
// after the prologue, recording its native offset on the compiler so
// the per-instruction emission loop (emit_instruction.go) can jump to
// one with a single patched rel32 rather than inlining the full
// gate-call sequence at every site that can fail — the same
// "anchored once, jumped to from anywhere" shape original_source/src/jit.rs
// uses for its exception handlers, needed here because a single guest
// program can have thousands of instructions capable of, say, dividing
// by zero, and duplicating ~40 bytes of handler code at every one of
// them would bloat the text section for no benefit: the fault path is
// cold.
//
// Every anchor expects the faulting (or current) guest instruction
// index already sitting in scratch, loaded by the jump site with a
// single compile-time-constant mov immediately before the jump.
func (c *compiler) emitAnchors() {
	c.callDepthExceeded = c.e.pos()
	c.emitGateCall(gateReportError, errKindCallDepthExceeded, scratch)
	c.emitJumpToEpilogue()

	c.callOutsideText = c.e.pos()
	c.emitGateCall(gateReportError, errKindCallOutsideText, scratch)
	c.emitJumpToEpilogue()

	c.divideByZero = c.e.pos()
	c.emitGateCall(gateReportError, errKindDivideByZero, scratch)
	c.emitJumpToEpilogue()

	c.divideOverflow = c.e.pos()
	c.emitGateCall(gateReportError, errKindDivideOverflow, scratch)
	c.emitJumpToEpilogue()

	c.unsupportedInstruction = c.e.pos()
	c.emitGateCall(gateReportError, errKindUnsupportedInstruction, scratch)
	c.emitJumpToEpilogue()

	// Reached when the in-register countdown (meterReg) goes negative;
	// reconciles with the real *meter.Meter, which re-derives the exact
	// overrun error (and leaves the meter's bookkeeping authoritative)
	// rather than trusting the register-only countdown to format one.
	c.exceededMaxInstructions = c.e.pos()
	c.emitGateCall(gateConsumeMeter, 1, scratch)
	c.emitJumpToEpilogue()

	c.epilogue = c.e.pos()
	c.emitEpilogue()
}

// emitJumpToEpilogue emits an unconditional jump to the epilogue anchor.
// Called only after c.epilogue would already be known to be emitted
// later in program order (it's the last anchor), so this one case does
// go through the deferred patch list rather than a direct patch.
func (c *compiler) emitJumpToEpilogue() {
	at := c.e.jmpRel32()
	c.epiloguePatches = append(c.epiloguePatches, at)
}
