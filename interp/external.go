package interp

import "github.com/xyproto/sbpfvm/isa"

// StepExternal executes exactly one guest instruction against a
// caller-supplied register file rather than the Interpreter's own regs,
// so a different execution strategy can reuse this package's opcode
// semantics without adopting its register storage. The JIT's fallback
// path (jit.nativeCallGate's gateInterpretOne) is the only caller: it
// keeps guest register state live in host CPU registers instead, and
// only needs the interpreter's instruction semantics for the handful of
// opcodes it doesn't compile to native code directly (loads, stores,
// calls, exit, multiply/divide, endianness conversion).
func (it *Interpreter) StepExternal(idx uint64, regs *[isa.NumRegisters]uint64) (next uint64, result uint64, done bool, err error) {
	insn, derr := it.Program.Instruction(int(idx))
	if derr != nil {
		return 0, 0, false, &InvalidInstruction{PC: idx}
	}

	savedRegs, savedPC := it.regs, it.pc
	it.regs, it.pc = *regs, idx

	next, result, done, err = it.step(insn)

	*regs = it.regs
	it.regs, it.pc = savedRegs, savedPC
	return next, result, done, err
}
