// Package verifier implements the pre-execution structural check described
// in spec.md §4.D: a total, side-effect-free walk over a loaded program
// that rejects malformed bytecode before it ever reaches the interpreter
// or the JIT.
package verifier

import (
	"fmt"

	"github.com/xyproto/sbpfvm/isa"
)

// Kind names one of the rejection reasons below. Carried in
// sbpfvm.VerifierRejected{Kind, PC}.
type Kind string

const (
	KindBadRegister        Kind = "register out of range"
	KindBadWideImmediate    Kind = "wide immediate missing or malformed continuation slot"
	KindBadJumpTarget       Kind = "jump target out of range or into a wide-immediate slot"
	KindMissingTrailingExit Kind = "text does not end in exit"
	KindUnknownOpcode       Kind = "unknown opcode"
	KindDivModByZeroLiteral Kind = "division or modulo by a literal zero"
	KindBadShiftAmount      Kind = "shift amount out of range"
	KindUnresolvedCallTarget Kind = "call target is neither a known function nor a known host upcall"
)

// Error is returned by Verify. PC is the instruction index at which the
// problem was found.
type Error struct {
	Kind Kind
	PC   uint64
}

func (e *Error) Error() string {
	return fmt.Sprintf("verifier: %s at pc %d", e.Kind, e.PC)
}

// Config carries the subset of sbpfvm.Config the verifier consults.
type Config struct {
	RejectBrokenELFs bool
	EnableSbpfV2     bool
}

// Verifier is implemented by both the structural verifier and the
// tautology (accept-anything) verifier used for fuzz-harness parity with
// the original Rust implementation's fuzzing mode.
type Verifier interface {
	Verify(p *isa.Program, cfg Config) error
	// Name identifies which verifier ran, so Executable can refuse to
	// execute a program that was only ever waved through by Tautology.
	Name() string
}

// Tautology accepts any program unconditionally.
type Tautology struct{}

func (Tautology) Verify(*isa.Program, Config) error { return nil }
func (Tautology) Name() string                       { return "tautology" }

// Structural is the requisite verifier: the one execution actually
// requires.
type Structural struct{}

func (Structural) Name() string { return "structural" }

// Verify walks every instruction in p.Text once, rejecting the program at
// the first violation found, per the eight bullets of spec.md §4.D.
func (Structural) Verify(p *isa.Program, cfg Config) error {
	n := p.TextInstructionCount()
	if n == 0 {
		return &Error{Kind: KindMissingTrailingExit, PC: 0}
	}

	// A wide-immediate's second slot is a continuation, not an
	// independently valid instruction; jumps/entry points must not land
	// there. Track which indices are continuations as we scan.
	isContinuation := make([]bool, n)

	for i := 0; i < n; i++ {
		if isContinuation[i] {
			continue
		}
		insn, err := p.Instruction(i)
		if err != nil {
			return &Error{Kind: KindUnknownOpcode, PC: uint64(i)}
		}

		if insn.Dst >= isa.NumRegisters || insn.Src >= isa.NumRegisters {
			return &Error{Kind: KindBadRegister, PC: uint64(i)}
		}

		if insn.IsWideLoad() {
			if i+1 >= n {
				return &Error{Kind: KindBadWideImmediate, PC: uint64(i)}
			}
			cont, err := p.Instruction(i + 1)
			if err != nil || cont.Op != 0 {
				return &Error{Kind: KindBadWideImmediate, PC: uint64(i)}
			}
			isContinuation[i+1] = true
			i++
			continue
		}

		if insn.IsClassJmp() && insn.Op != isa.OpCall && insn.Op != isa.OpCallReg && insn.Op != isa.OpExit {
			target := i + 1 + int(insn.Offset)
			if target < 0 || target >= n || isContinuation[target] {
				return &Error{Kind: KindBadJumpTarget, PC: uint64(i)}
			}
		}

		if err := verifyOpcodeKnown(insn); err != nil {
			return &Error{Kind: KindUnknownOpcode, PC: uint64(i)}
		}

		if isDivOrMod(insn) && insn.UsesImmediateOperand() && insn.Imm == 0 {
			return &Error{Kind: KindDivModByZeroLiteral, PC: uint64(i)}
		}

		if isShift(insn) && insn.UsesImmediateOperand() {
			max := int32(31)
			if insn.IsClassAlu64() {
				max = 63
			}
			if insn.Imm < 0 || insn.Imm > max {
				return &Error{Kind: KindBadShiftAmount, PC: uint64(i)}
			}
		}

		if insn.Op == isa.OpCall && insn.Imm != isa.PCRelativeSentinel && cfg.RejectBrokenELFs {
			hash := uint32(insn.Imm)
			if _, ok := p.LookupFunction(hash); !ok {
				if _, ok := p.LookupHostUpcall(hash); !ok {
					return &Error{Kind: KindUnresolvedCallTarget, PC: uint64(i)}
				}
			}
		}

		if i == n-1 && insn.Op != isa.OpExit {
			return &Error{Kind: KindMissingTrailingExit, PC: uint64(i)}
		}
	}

	return nil
}

func verifyOpcodeKnown(insn isa.Instruction) error {
	switch insn.Op {
	case isa.OpAddImm, isa.OpAddReg, isa.OpSubImm, isa.OpSubReg, isa.OpMulImm, isa.OpMulReg,
		isa.OpDivImm, isa.OpDivReg, isa.OpOrImm, isa.OpOrReg, isa.OpAndImm, isa.OpAndReg,
		isa.OpLshImm, isa.OpLshReg, isa.OpRshImm, isa.OpRshReg, isa.OpNeg, isa.OpModImm,
		isa.OpModReg, isa.OpXorImm, isa.OpXorReg, isa.OpMovImm, isa.OpMovReg, isa.OpArshImm,
		isa.OpArshReg, isa.OpLe, isa.OpBe,
		isa.OpAdd64Imm, isa.OpAdd64Reg, isa.OpSub64Imm, isa.OpSub64Reg, isa.OpMul64Imm, isa.OpMul64Reg,
		isa.OpDiv64Imm, isa.OpDiv64Reg, isa.OpOr64Imm, isa.OpOr64Reg, isa.OpAnd64Imm, isa.OpAnd64Reg,
		isa.OpLsh64Imm, isa.OpLsh64Reg, isa.OpRsh64Imm, isa.OpRsh64Reg, isa.OpNeg64, isa.OpMod64Imm,
		isa.OpMod64Reg, isa.OpXor64Imm, isa.OpXor64Reg, isa.OpMov64Imm, isa.OpMov64Reg, isa.OpArsh64Imm,
		isa.OpArsh64Reg, isa.OpLddw,
		isa.OpLdxB, isa.OpLdxH, isa.OpLdxW, isa.OpLdxDW, isa.OpStB, isa.OpStH, isa.OpStW, isa.OpStDW,
		isa.OpStxB, isa.OpStxH, isa.OpStxW, isa.OpStxDW,
		isa.OpJa, isa.OpJEqImm, isa.OpJEqReg, isa.OpJGtImm, isa.OpJGtReg, isa.OpJGeImm, isa.OpJGeReg,
		isa.OpJLtImm, isa.OpJLtReg, isa.OpJLeImm, isa.OpJLeReg, isa.OpJSetImm, isa.OpJSetReg,
		isa.OpJNeImm, isa.OpJNeReg, isa.OpJSGtImm, isa.OpJSGtReg, isa.OpJSGeImm, isa.OpJSGeReg,
		isa.OpJSLtImm, isa.OpJSLtReg, isa.OpJSLeImm, isa.OpJSLeReg,
		isa.OpCall, isa.OpCallReg, isa.OpExit:
		return nil
	default:
		return fmt.Errorf("unknown opcode 0x%x", uint8(insn.Op))
	}
}

func isDivOrMod(insn isa.Instruction) bool {
	switch insn.Op {
	case isa.OpDivImm, isa.OpDiv64Imm, isa.OpModImm, isa.OpMod64Imm:
		return true
	}
	return false
}

func isShift(insn isa.Instruction) bool {
	switch insn.Op {
	case isa.OpLshImm, isa.OpLsh64Imm, isa.OpRshImm, isa.OpRsh64Imm, isa.OpArshImm, isa.OpArsh64Imm:
		return true
	}
	return false
}
