package interp

import (
	"github.com/xyproto/sbpfvm/isa"
)

// execALU performs one ALU32 or ALU64 instruction. is64 selects 64-bit
// (no zero-extension of the result) vs. 32-bit (result written as the
// low 32 bits of dst, upper 32 bits zeroed) semantics, per spec.md §4.F.
func (it *Interpreter) execALU(insn isa.Instruction, is64 bool) error {
	if insn.Op == isa.OpLe || insn.Op == isa.OpBe {
		return it.execEndian(insn)
	}

	dst := it.regs[insn.Dst]
	var src uint64
	if insn.UsesImmediateOperand() {
		src = uint64(uint32(insn.Imm))
		if is64 {
			src = uint64(int64(insn.Imm)) // sign-extend for ALU64 immediates
		}
	} else {
		src = it.regs[insn.Src]
	}

	var result uint64
	switch insn.Op {
	case isa.OpAddImm, isa.OpAddReg, isa.OpAdd64Imm, isa.OpAdd64Reg:
		result = dst + src
	case isa.OpSubImm, isa.OpSubReg, isa.OpSub64Imm, isa.OpSub64Reg:
		result = dst - src
	case isa.OpMulImm, isa.OpMulReg, isa.OpMul64Imm, isa.OpMul64Reg:
		result = dst * src
	case isa.OpDivImm, isa.OpDivReg, isa.OpDiv64Imm, isa.OpDiv64Reg:
		if src == 0 {
			return &DivideByZero{PC: it.pc}
		}
		if isSignedDivideOverflow(dst, src, is64) {
			return &DivideOverflow{PC: it.pc}
		}
		if is64 {
			result = dst / src
		} else {
			result = uint64(uint32(dst) / uint32(src))
		}
	case isa.OpModImm, isa.OpModReg, isa.OpMod64Imm, isa.OpMod64Reg:
		if src == 0 {
			return &DivideByZero{PC: it.pc}
		}
		if isSignedDivideOverflow(dst, src, is64) {
			return &DivideOverflow{PC: it.pc}
		}
		if is64 {
			result = dst % src
		} else {
			result = uint64(uint32(dst) % uint32(src))
		}
	case isa.OpOrImm, isa.OpOrReg, isa.OpOr64Imm, isa.OpOr64Reg:
		result = dst | src
	case isa.OpAndImm, isa.OpAndReg, isa.OpAnd64Imm, isa.OpAnd64Reg:
		result = dst & src
	case isa.OpLshImm, isa.OpLshReg, isa.OpLsh64Imm, isa.OpLsh64Reg:
		shift := src & shiftMask(is64)
		result = dst << shift
	case isa.OpRshImm, isa.OpRshReg, isa.OpRsh64Imm, isa.OpRsh64Reg:
		shift := src & shiftMask(is64)
		if is64 {
			result = dst >> shift
		} else {
			result = uint64(uint32(dst) >> shift)
		}
	case isa.OpNeg, isa.OpNeg64:
		result = uint64(-int64(dst))
	case isa.OpXorImm, isa.OpXorReg, isa.OpXor64Imm, isa.OpXor64Reg:
		result = dst ^ src
	case isa.OpMovImm, isa.OpMovReg, isa.OpMov64Imm, isa.OpMov64Reg:
		result = src
	case isa.OpArshImm, isa.OpArshReg, isa.OpArsh64Imm, isa.OpArsh64Reg:
		shift := src & shiftMask(is64)
		if is64 {
			result = uint64(int64(dst) >> shift)
		} else {
			result = uint64(uint32(int32(dst) >> shift))
		}
	default:
		return &InvalidInstruction{PC: it.pc}
	}

	if !is64 {
		result = uint64(uint32(result))
	}
	it.regs[insn.Dst] = result
	return nil
}

func shiftMask(is64 bool) uint64 {
	if is64 {
		return 63
	}
	return 31
}

// isSignedDivideOverflow reports the one division that traps instead of
// wrapping: INT_MIN / -1, per spec.md §4.F's "signed division of
// INT_MIN / -1 raises DivideOverflow(pc)" — checked at both operand
// widths, since a 32-bit div/mod reduces dst and src to int32 before
// dividing just as the 64-bit form reduces them to int64.
func isSignedDivideOverflow(dst, src uint64, is64 bool) bool {
	if is64 {
		return dst == 1<<63 && int64(src) == -1
	}
	return uint32(dst) == 1<<31 && int32(uint32(src)) == -1
}

// execEndian implements be16/32/64 and le16/32/64: insn.Imm names the
// width (16, 32 or 64) and insn.Op distinguishes the target byte order.
func (it *Interpreter) execEndian(insn isa.Instruction) error {
	v := it.regs[insn.Dst]
	width := insn.Imm

	toBigEndian := insn.Op == isa.OpBe

	switch width {
	case 16:
		lo := uint16(v)
		if toBigEndian {
			lo = swap16(lo)
		}
		it.regs[insn.Dst] = uint64(lo)
	case 32:
		lo := uint32(v)
		if toBigEndian {
			lo = swap32(lo)
		}
		it.regs[insn.Dst] = uint64(lo)
	case 64:
		if toBigEndian {
			v = swap64(v)
		}
		it.regs[insn.Dst] = v
	default:
		return &InvalidInstruction{PC: it.pc}
	}
	return nil
}

// The host architectures this VM targets (x86-64, arm64) are
// little-endian, so le* is a no-op and be* always byte-swaps.

func swap16(v uint16) uint16 {
	return v<<8 | v>>8
}

func swap32(v uint32) uint32 {
	return v<<24 | (v&0xff00)<<8 | (v>>8)&0xff00 | v>>24
}

func swap64(v uint64) uint64 {
	return v<<56 | (v&0xff00)<<40 | (v&0xff0000)<<24 | (v&0xff000000)<<8 |
		(v>>8)&0xff000000 | (v>>24)&0xff0000 | (v>>40)&0xff00 | v>>56
}
