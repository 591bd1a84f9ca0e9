package interp

import (
	"encoding/binary"

	"github.com/xyproto/sbpfvm/isa"
)

func widthOf(op isa.Opcode) int {
	switch op {
	case isa.OpLdxB, isa.OpStB, isa.OpStxB:
		return 1
	case isa.OpLdxH, isa.OpStH, isa.OpStxH:
		return 2
	case isa.OpLdxW, isa.OpStW, isa.OpStxW:
		return 4
	case isa.OpLdxDW, isa.OpStDW, isa.OpStxDW:
		return 8
	}
	return 0
}

// execLoad implements ldxb/ldxh/ldxw/ldxdw: dst = *(width *)(src + offset).
func (it *Interpreter) execLoad(insn isa.Instruction) error {
	width := widthOf(insn.Op)
	addr := uint64(int64(it.regs[insn.Src]) + int64(insn.Offset))
	b, err := it.Mem.Load(it.pc, addr, uint64(width))
	if err != nil {
		return err
	}
	it.regs[insn.Dst] = decodeWidth(b, width)
	return nil
}

// execStore implements stb/sth/stw/stdw (an immediate source) and
// stxb/stxh/stxw/stxdw (a register source): *(width *)(dst + offset) =
// src.
func (it *Interpreter) execStore(insn isa.Instruction) error {
	width := widthOf(insn.Op)
	addr := uint64(int64(it.regs[insn.Dst]) + int64(insn.Offset))

	var value uint64
	if isImmediateStore(insn.Op) {
		value = uint64(uint32(insn.Imm))
	} else {
		value = it.regs[insn.Src]
	}

	buf := make([]byte, width)
	encodeWidth(buf, value, width)
	return it.Mem.Store(it.pc, addr, buf)
}

func isImmediateStore(op isa.Opcode) bool {
	switch op {
	case isa.OpStB, isa.OpStH, isa.OpStW, isa.OpStDW:
		return true
	}
	return false
}

func decodeWidth(b []byte, width int) uint64 {
	switch width {
	case 1:
		return uint64(b[0])
	case 2:
		return uint64(binary.LittleEndian.Uint16(b))
	case 4:
		return uint64(binary.LittleEndian.Uint32(b))
	case 8:
		return binary.LittleEndian.Uint64(b)
	}
	return 0
}

func encodeWidth(b []byte, v uint64, width int) {
	switch width {
	case 1:
		b[0] = byte(v)
	case 2:
		binary.LittleEndian.PutUint16(b, uint16(v))
	case 4:
		binary.LittleEndian.PutUint32(b, uint32(v))
	case 8:
		binary.LittleEndian.PutUint64(b, v)
	}
}
