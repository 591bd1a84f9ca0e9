package interp

import "github.com/xyproto/sbpfvm/isa"

// evalBranch evaluates a conditional jump's predicate. ALU64-width
// comparisons operate on the full 64-bit register value; the class-jmp32
// forms (not currently emitted by this ISA's opcode table, which reuses
// one comparison family for both) would narrow to 32 bits, so this stays
// a single 64-bit comparison path matching the opcode table in isa.go.
func (it *Interpreter) evalBranch(insn isa.Instruction) bool {
	dst := it.regs[insn.Dst]
	var src uint64
	if insn.UsesImmediateOperand() {
		src = uint64(int64(insn.Imm))
	} else {
		src = it.regs[insn.Src]
	}

	switch insn.Op {
	case isa.OpJEqImm, isa.OpJEqReg:
		return dst == src
	case isa.OpJNeImm, isa.OpJNeReg:
		return dst != src
	case isa.OpJGtImm, isa.OpJGtReg:
		return dst > src
	case isa.OpJGeImm, isa.OpJGeReg:
		return dst >= src
	case isa.OpJLtImm, isa.OpJLtReg:
		return dst < src
	case isa.OpJLeImm, isa.OpJLeReg:
		return dst <= src
	case isa.OpJSetImm, isa.OpJSetReg:
		return dst&src != 0
	case isa.OpJSGtImm, isa.OpJSGtReg:
		return int64(dst) > int64(src)
	case isa.OpJSGeImm, isa.OpJSGeReg:
		return int64(dst) >= int64(src)
	case isa.OpJSLtImm, isa.OpJSLtReg:
		return int64(dst) < int64(src)
	case isa.OpJSLeImm, isa.OpJSLeReg:
		return int64(dst) <= int64(src)
	}
	return false
}
