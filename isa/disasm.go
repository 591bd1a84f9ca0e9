package isa

import "fmt"

// mnemonics names every opcode this VM dispatches, for Disassemble and for
// error messages elsewhere that want a human name instead of a raw byte.
// The "print the mnemonic, not just the byte" idiom follows the teacher's
// own verbose-mode instruction tracing (testmnemonic.go's VerboseMode
// stderr prints), generalized here into one lookup table instead of
// scattered ad hoc Fprintf calls per codegen file.
var mnemonics = map[Opcode]string{
	OpAddImm: "add32", OpAddReg: "add32",
	OpSubImm: "sub32", OpSubReg: "sub32",
	OpMulImm: "mul32", OpMulReg: "mul32",
	OpDivImm: "div32", OpDivReg: "div32",
	OpOrImm: "or32", OpOrReg: "or32",
	OpAndImm: "and32", OpAndReg: "and32",
	OpLshImm: "lsh32", OpLshReg: "lsh32",
	OpRshImm: "rsh32", OpRshReg: "rsh32",
	OpNeg:    "neg32",
	OpModImm: "mod32", OpModReg: "mod32",
	OpXorImm: "xor32", OpXorReg: "xor32",
	OpMovImm: "mov32", OpMovReg: "mov32",
	OpArshImm: "arsh32", OpArshReg: "arsh32",
	OpLe: "le", OpBe: "be",

	OpAdd64Imm: "add64", OpAdd64Reg: "add64",
	OpSub64Imm: "sub64", OpSub64Reg: "sub64",
	OpMul64Imm: "mul64", OpMul64Reg: "mul64",
	OpDiv64Imm: "div64", OpDiv64Reg: "div64",
	OpOr64Imm: "or64", OpOr64Reg: "or64",
	OpAnd64Imm: "and64", OpAnd64Reg: "and64",
	OpLsh64Imm: "lsh64", OpLsh64Reg: "lsh64",
	OpRsh64Imm: "rsh64", OpRsh64Reg: "rsh64",
	OpNeg64:    "neg64",
	OpMod64Imm: "mod64", OpMod64Reg: "mod64",
	OpXor64Imm: "xor64", OpXor64Reg: "xor64",
	OpMov64Imm: "mov64", OpMov64Reg: "mov64",
	OpArsh64Imm: "arsh64", OpArsh64Reg: "arsh64",

	OpLddw: "lddw",

	OpLdxB: "ldxb", OpLdxH: "ldxh", OpLdxW: "ldxw", OpLdxDW: "ldxdw",
	OpStB: "stb", OpStH: "sth", OpStW: "stw", OpStDW: "stdw",
	OpStxB: "stxb", OpStxH: "stxh", OpStxW: "stxw", OpStxDW: "stxdw",

	OpJa: "ja",
	OpJEqImm: "jeq", OpJEqReg: "jeq",
	OpJGtImm: "jgt", OpJGtReg: "jgt",
	OpJGeImm: "jge", OpJGeReg: "jge",
	OpJLtImm: "jlt", OpJLtReg: "jlt",
	OpJLeImm: "jle", OpJLeReg: "jle",
	OpJSetImm: "jset", OpJSetReg: "jset",
	OpJNeImm: "jne", OpJNeReg: "jne",
	OpJSGtImm: "jsgt", OpJSGtReg: "jsgt",
	OpJSGeImm: "jsge", OpJSGeReg: "jsge",
	OpJSLtImm: "jslt", OpJSLtReg: "jslt",
	OpJSLeImm: "jsle", OpJSLeReg: "jsle",

	OpCall: "call", OpCallReg: "callx", OpExit: "exit",
}

// Disassemble renders p's text segment as one line per instruction index,
// skipping the continuation slot of every lddw (it has no mnemonic of its
// own; its immediate is folded into the lddw line).
func Disassemble(p *Program) []string {
	n := p.TextInstructionCount()
	lines := make([]string, 0, n)
	for i := 0; i < n; i++ {
		insn, err := p.Instruction(i)
		if err != nil {
			lines = append(lines, fmt.Sprintf("%4d: <decode error: %v>", i, err))
			continue
		}
		if insn.IsWideLoad() && i+1 < n {
			cont, cerr := p.Instruction(i + 1)
			if cerr == nil {
				imm64 := uint64(uint32(insn.Imm)) | uint64(uint32(cont.Imm))<<32
				lines = append(lines, fmt.Sprintf("%4d: lddw r%d, 0x%x", i, insn.Dst, imm64))
				i++ // the continuation slot is folded into the line above
				continue
			}
		}
		lines = append(lines, fmt.Sprintf("%4d: %s", i, formatInstruction(insn)))
	}
	return lines
}

func formatInstruction(insn Instruction) string {
	name, ok := mnemonics[insn.Op]
	if !ok {
		return fmt.Sprintf("<unknown opcode 0x%02x>", uint8(insn.Op))
	}

	switch insn.Op {
	case OpExit:
		return name
	case OpJa:
		return fmt.Sprintf("%s %+d", name, insn.Offset)
	case OpCall:
		if insn.Imm == PCRelativeSentinel {
			return fmt.Sprintf("%s <pc-relative>", name)
		}
		return fmt.Sprintf("%s 0x%08x", name, uint32(insn.Imm))
	case OpCallReg:
		return fmt.Sprintf("%s r%d", name, insn.Src)
	case OpLddw:
		return fmt.Sprintf("%s r%d, 0x%x", name, insn.Dst, uint32(insn.Imm))
	}

	if isLoadOp(insn.Op) {
		return fmt.Sprintf("%s r%d, [r%d%+d]", name, insn.Dst, insn.Src, insn.Offset)
	}
	if isImmediateStoreOp(insn.Op) {
		return fmt.Sprintf("%s [r%d%+d], 0x%x", name, insn.Dst, insn.Offset, uint32(insn.Imm))
	}
	if isRegisterStoreOp(insn.Op) {
		return fmt.Sprintf("%s [r%d%+d], r%d", name, insn.Dst, insn.Offset, insn.Src)
	}
	if insn.IsClassJmp() {
		if insn.UsesImmediateOperand() {
			return fmt.Sprintf("%s r%d, 0x%x, %+d", name, insn.Dst, uint32(insn.Imm), insn.Offset)
		}
		return fmt.Sprintf("%s r%d, r%d, %+d", name, insn.Dst, insn.Src, insn.Offset)
	}
	if insn.UsesImmediateOperand() {
		return fmt.Sprintf("%s r%d, 0x%x", name, insn.Dst, uint32(insn.Imm))
	}
	return fmt.Sprintf("%s r%d, r%d", name, insn.Dst, insn.Src)
}

func isLoadOp(op Opcode) bool {
	switch op {
	case OpLdxB, OpLdxH, OpLdxW, OpLdxDW:
		return true
	}
	return false
}

func isImmediateStoreOp(op Opcode) bool {
	switch op {
	case OpStB, OpStH, OpStW, OpStDW:
		return true
	}
	return false
}

func isRegisterStoreOp(op Opcode) bool {
	switch op {
	case OpStxB, OpStxH, OpStxW, OpStxDW:
		return true
	}
	return false
}
