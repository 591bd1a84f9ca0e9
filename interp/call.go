package interp

import "github.com/xyproto/sbpfvm/isa"

// execCall implements call-immediate: insn.Imm is always a symbol hash by
// the time the loader hands a Program to the interpreter (elf.Load's
// "fixup relative calls" step rewrites every pc-relative call into one).
// The hash resolves against either the bytecode function registry (an
// ordinary call, pushing a frame) or the host-upcall table supplied by
// the caller (an immediate host call, no frame pushed).
func (it *Interpreter) execCall(insn isa.Instruction) (next uint64, result uint64, done bool, err error) {
	hash := uint32(insn.Imm)

	if target, ok := it.Program.LookupFunction(hash); ok {
		return it.pushCallAndJump(uint64(target))
	}

	if fn, ok := it.HostUpcalls[hash]; ok {
		var args [5]uint64
		copy(args[:], it.regs[isa.FirstArgRegister:isa.LastArgRegister+1])
		var out uint64
		if callErr := fn(args, it.Mem, &out); callErr != nil {
			return 0, 0, false, &SyscallException{PC: it.pc, Inner: callErr}
		}
		it.regs[isa.ReturnRegister] = out
		return it.pc + 1, 0, false, nil
	}

	return 0, 0, false, &UnsupportedInstruction{PC: it.pc}
}

// execCallReg implements call-register: the target is a computed
// instruction index in src (or, per the variable-register convention,
// insn.Imm selects the register when nonzero); it must land inside the
// text segment and be instruction-aligned.
func (it *Interpreter) execCallReg(insn isa.Instruction) (next uint64, result uint64, done bool, err error) {
	reg := insn.Src
	if insn.Imm != 0 {
		reg = uint8(insn.Imm)
	}
	target := it.regs[reg]

	n := uint64(it.Program.TextInstructionCount())
	if target >= n {
		return 0, 0, false, &CallOutsideTextSegment{PC: it.pc, Target: target}
	}

	return it.pushCallAndJump(target)
}

func (it *Interpreter) pushCallAndJump(target uint64) (next uint64, result uint64, done bool, err error) {
	if len(it.stack) >= it.MaxCallDepth {
		return 0, 0, false, &CallDepthExceeded{PC: it.pc, Limit: it.MaxCallDepth}
	}

	frame := Frame{ReturnPC: it.pc + 1, StackTop: it.regs[isa.FrameRegister]}
	copy(frame.SavedRegs[:], it.regs[isa.FirstCalleeSaved:isa.LastCalleeSaved+1])
	it.stack = append(it.stack, frame)

	if !it.EnableSbpfV2 {
		it.regs[isa.FrameRegister] += it.StackFrameSize
	}

	return target, 0, false, nil
}

// execExit implements exit: pop the current frame and resume at its
// return address, restoring callee-saved registers and the frame
// pointer. Exiting the outermost frame ends the run with r0 as the
// result, per spec.md §4.F.
func (it *Interpreter) execExit() (next uint64, result uint64, done bool, err error) {
	if len(it.stack) == 0 {
		return 0, it.regs[isa.ReturnRegister], true, nil
	}

	top := len(it.stack) - 1
	frame := it.stack[top]
	it.stack = it.stack[:top]

	copy(it.regs[isa.FirstCalleeSaved:isa.LastCalleeSaved+1], frame.SavedRegs[:])
	it.regs[isa.FrameRegister] = frame.StackTop
	return frame.ReturnPC, 0, false, nil
}
