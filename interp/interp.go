// Package interp implements the reference, one-instruction-per-step
// interpreter: a straightforward switch-dispatch executor over
// isa.Program, used both as the default execution strategy and as the
// ground truth the JIT is checked against (spec.md §8.1).
//
// The dispatch shape — a single big switch over the decoded opcode,
// walking one instruction at a time with an explicit register file — is
// the same shape KTStephano-GVM's vm.go uses for its own bytecode
// dispatch loop; the teacher repo itself never interprets bytecode (it
// only ever compiles ahead-of-time to native code), so this package
// borrows the interpreter idiom from the rest of the example pack and
// otherwise follows the teacher's conventions for errors and state.
package interp

import (
	"github.com/xyproto/sbpfvm/isa"
	"github.com/xyproto/sbpfvm/memmap"
	"github.com/xyproto/sbpfvm/meter"
)

// Frame is one entry of the call stack pushed by a bytecode call and
// popped by exit.
type Frame struct {
	ReturnPC  uint64
	SavedRegs [4]uint64 // r6..r9, the callee-saved window
	StackTop  uint64    // r10 at the time of the call, restored on return
}

// HostUpcall is the shape every registered host function implements,
// per spec.md §6. args holds r1..r5 at the call site; the upcall writes
// its result to *result and may return an error, which the interpreter
// wraps in sbpfvm.SyscallException.
type HostUpcall func(args [5]uint64, mm *memmap.MemoryMap, result *uint64) error

// Interpreter executes one isa.Program invocation. It is not safe for
// concurrent use by multiple goroutines on the same instance; callers
// share one *isa.Program across threads but build a fresh Interpreter
// (with its own registers, stack and memory map) per call, per spec.md's
// concurrency model.
type Interpreter struct {
	Program  *isa.Program
	Mem      *memmap.MemoryMap
	Meter    *meter.Meter
	Tracer   *meter.Tracer
	HostUpcalls map[uint32]HostUpcall

	MaxCallDepth   int
	StackFrameSize uint64
	EnableSbpfV2   bool

	regs  [isa.NumRegisters]uint64
	pc    uint64
	stack []Frame
}

// New builds an Interpreter ready to Run starting at program.EntryPoint.
// initialStackPointer seeds r10 (the frame pointer); callers typically
// pass isa.StackStart plus the size of the stack region they mapped.
func New(program *isa.Program, mm *memmap.MemoryMap, met *meter.Meter, tracer *meter.Tracer, hostUpcalls map[uint32]HostUpcall, maxCallDepth int, stackFrameSize uint64, enableSbpfV2 bool, initialStackPointer uint64) *Interpreter {
	it := &Interpreter{
		Program:        program,
		Mem:            mm,
		Meter:          met,
		Tracer:         tracer,
		HostUpcalls:    hostUpcalls,
		MaxCallDepth:   maxCallDepth,
		StackFrameSize: stackFrameSize,
		EnableSbpfV2:   enableSbpfV2,
		pc:             uint64(program.EntryPoint),
	}
	it.regs[isa.FrameRegister] = initialStackPointer
	return it
}

// Registers returns the live register file, r0..r10, for inspection after
// Run returns (or, for test harnesses, mid-run via a traced callback).
func (it *Interpreter) Registers() [isa.NumRegisters]uint64 {
	return it.regs
}

// Run executes until exit, or until an error — a verifier-caliber fault
// discovered at runtime, a meter exhaustion, a memory access violation, or
// a propagated host-upcall error — stops it. On success it returns r0.
func (it *Interpreter) Run() (uint64, error) {
	n := uint64(it.Program.TextInstructionCount())
	for {
		if it.pc >= n {
			return 0, &ExecutionOverrun{PC: it.pc}
		}

		insn, err := it.Program.Instruction(int(it.pc))
		if err != nil {
			return 0, &InvalidInstruction{PC: it.pc}
		}

		if err := it.Meter.Consume(it.pc, 1); err != nil {
			return 0, err
		}

		if it.Tracer != nil {
			var snapshot [12]uint64
			copy(snapshot[:], it.regs[:])
			snapshot[11] = it.regs[isa.FrameRegister]
			it.Tracer.Record(it.pc, snapshot)
		}

		next, result, done, err := it.step(insn)
		if err != nil {
			return 0, err
		}
		if done {
			return result, nil
		}
		it.pc = next
	}
}

func (it *Interpreter) step(insn isa.Instruction) (next uint64, result uint64, done bool, err error) {
	pc := it.pc

	switch {
	case insn.Op == isa.OpLddw:
		cont, cerr := it.Program.Instruction(int(pc) + 1)
		if cerr != nil {
			return 0, 0, false, &InvalidInstruction{PC: pc}
		}
		it.regs[insn.Dst] = uint64(uint32(insn.Imm)) | uint64(uint32(cont.Imm))<<32
		return pc + 2, 0, false, nil

	case insn.IsClassAlu():
		if err := it.execALU(insn, false); err != nil {
			return 0, 0, false, err
		}
		return pc + 1, 0, false, nil

	case insn.IsClassAlu64():
		if err := it.execALU(insn, true); err != nil {
			return 0, 0, false, err
		}
		return pc + 1, 0, false, nil

	case isLoad(insn.Op):
		if err := it.execLoad(insn); err != nil {
			return 0, 0, false, err
		}
		return pc + 1, 0, false, nil

	case isStore(insn.Op):
		if err := it.execStore(insn); err != nil {
			return 0, 0, false, err
		}
		return pc + 1, 0, false, nil

	case insn.Op == isa.OpJa:
		return uint64(int64(pc) + 1 + int64(insn.Offset)), 0, false, nil

	case isConditionalJump(insn.Op):
		taken := it.evalBranch(insn)
		if taken {
			return uint64(int64(pc) + 1 + int64(insn.Offset)), 0, false, nil
		}
		return pc + 1, 0, false, nil

	case insn.Op == isa.OpCall:
		return it.execCall(insn)

	case insn.Op == isa.OpCallReg:
		return it.execCallReg(insn)

	case insn.Op == isa.OpExit:
		return it.execExit()

	default:
		return 0, 0, false, &InvalidInstruction{PC: pc}
	}
}

func isLoad(op isa.Opcode) bool {
	switch op {
	case isa.OpLdxB, isa.OpLdxH, isa.OpLdxW, isa.OpLdxDW:
		return true
	}
	return false
}

func isStore(op isa.Opcode) bool {
	switch op {
	case isa.OpStB, isa.OpStH, isa.OpStW, isa.OpStDW,
		isa.OpStxB, isa.OpStxH, isa.OpStxW, isa.OpStxDW:
		return true
	}
	return false
}

func isConditionalJump(op isa.Opcode) bool {
	switch op {
	case isa.OpJEqImm, isa.OpJEqReg, isa.OpJGtImm, isa.OpJGtReg, isa.OpJGeImm, isa.OpJGeReg,
		isa.OpJLtImm, isa.OpJLtReg, isa.OpJLeImm, isa.OpJLeReg, isa.OpJSetImm, isa.OpJSetReg,
		isa.OpJNeImm, isa.OpJNeReg, isa.OpJSGtImm, isa.OpJSGtReg, isa.OpJSGeImm, isa.OpJSGeReg,
		isa.OpJSLtImm, isa.OpJSLtReg, isa.OpJSLeImm, isa.OpJSLeReg:
		return true
	}
	return false
}
