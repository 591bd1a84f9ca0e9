package jit

// emitMeterCheckpoint emits the per-instruction side of the
// instruction-meter telescoping sum: decrement the in-register countdown
// (meterReg, seeded once in the prologue) rather than calling into Go on
// every single instruction, and only fall back to the real *meter.Meter
// — by way of the exceededMaxInstructions anchor — once the countdown
// actually goes negative. jccRel32's condition code 0x8C is JL (signed
// less-than), since meterReg is interpreted as a signed remaining count.
func (c *compiler) emitMeterCheckpoint(i uint64) {
	c.e.aluImm32(5, meterReg, 1) // SUB meterReg, 1
	c.e.movImm64(scratch, i)     // anchors read the faulting pc from scratch
	ph := c.e.jccRel32(0x8C)     // JL exceededMaxInstructions
	c.e.patchRel32(ph, c.exceededMaxInstructions)
}

// emitTraceCheckpoint emits a call into the tracer gate when tracing is
// enabled. Unlike the meter, tracing has no fast path worth inlining —
// it's a debugging/conformance aid (interp/tracer parity, spec.md's
// interpreter-vs-JIT equivalence checks), not something production
// execution pays for, so every checkpoint just calls through; Execute
// (executable.go) only gives the interpreter a Tracer when a caller
// actually asked for one, and
// nativeCallGate's gateTrace case is a no-op when it's nil.
func (c *compiler) emitTraceCheckpoint(i uint64) {
	c.emitGateCallImm(gateTrace, uint32(i), 0)
}
