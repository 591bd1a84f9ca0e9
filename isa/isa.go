// Package isa defines the instruction encoding, opcode table, register
// file layout and symbol hashing shared by the loader, verifier,
// interpreter and JIT.
package isa

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
)

// InsnSize is the fixed width, in bytes, of one bytecode instruction.
const InsnSize = 8

// NumRegisters is the number of general-purpose registers, r0..r10.
const NumRegisters = 11

// FrameRegister is the read-only frame pointer register index.
const FrameRegister = 10

// ReturnRegister holds a program's result value on exit.
const ReturnRegister = 0

// FirstArgRegister..LastArgRegister are passed to host upcalls.
const (
	FirstArgRegister = 1
	LastArgRegister  = 5
)

// FirstCalleeSaved..LastCalleeSaved must be preserved across bytecode calls.
const (
	FirstCalleeSaved = 6
	LastCalleeSaved  = 9
)

// Reserved guest virtual address windows. Stable per ABI.
const (
	ProgramStart = uint64(0x100000000)
	StackStart   = uint64(0x200000000)
	HeapStart    = uint64(0x300000000)
	InputStart   = uint64(0x400000000)
)

// PCRelativeSentinel marks a call-immediate whose target is computed
// relative to the call site rather than looked up via symbol hash.
const PCRelativeSentinel = int32(-1)

// Opcode is the first byte of an instruction.
type Opcode uint8

// Instruction classes, mirrored from the published eBPF-derived ISA.
const (
	classLd  = 0x00
	classLdx = 0x01
	classSt  = 0x02
	classStx = 0x03
	classAlu = 0x04
	classJmp = 0x05
	classJmp32 = 0x06
	classAlu64 = 0x07
)

// Opcodes actually dispatched by this VM. Values follow the conventional
// eBPF numbering so that reference disassemblers (out of scope here, but
// used by downstream tools) stay compatible.
const (
	OpAddImm   Opcode = 0x04
	OpAddReg   Opcode = 0x0c
	OpSubImm   Opcode = 0x14
	OpSubReg   Opcode = 0x1c
	OpMulImm   Opcode = 0x24
	OpMulReg   Opcode = 0x2c
	OpDivImm   Opcode = 0x34
	OpDivReg   Opcode = 0x3c
	OpOrImm    Opcode = 0x44
	OpOrReg    Opcode = 0x4c
	OpAndImm   Opcode = 0x54
	OpAndReg   Opcode = 0x5c
	OpLshImm   Opcode = 0x64
	OpLshReg   Opcode = 0x6c
	OpRshImm   Opcode = 0x74
	OpRshReg   Opcode = 0x7c
	OpNeg      Opcode = 0x84
	OpModImm   Opcode = 0x94
	OpModReg   Opcode = 0x9c
	OpXorImm   Opcode = 0xa4
	OpXorReg   Opcode = 0xac
	OpMovImm   Opcode = 0xb4
	OpMovReg   Opcode = 0xbc
	OpArshImm  Opcode = 0xc4
	OpArshReg  Opcode = 0xcc
	OpLe       Opcode = 0xd4
	OpBe       Opcode = 0xdc

	OpAdd64Imm  Opcode = 0x07
	OpAdd64Reg  Opcode = 0x0f
	OpSub64Imm  Opcode = 0x17
	OpSub64Reg  Opcode = 0x1f
	OpMul64Imm  Opcode = 0x27
	OpMul64Reg  Opcode = 0x2f
	OpDiv64Imm  Opcode = 0x37
	OpDiv64Reg  Opcode = 0x3f
	OpOr64Imm   Opcode = 0x47
	OpOr64Reg   Opcode = 0x4f
	OpAnd64Imm  Opcode = 0x57
	OpAnd64Reg  Opcode = 0x5f
	OpLsh64Imm  Opcode = 0x67
	OpLsh64Reg  Opcode = 0x6f
	OpRsh64Imm  Opcode = 0x77
	OpRsh64Reg  Opcode = 0x7f
	OpNeg64     Opcode = 0x87
	OpMod64Imm  Opcode = 0x97
	OpMod64Reg  Opcode = 0x9f
	OpXor64Imm  Opcode = 0xa7
	OpXor64Reg  Opcode = 0xaf
	OpMov64Imm  Opcode = 0xb7
	OpMov64Reg  Opcode = 0xbf
	OpArsh64Imm Opcode = 0xc7
	OpArsh64Reg Opcode = 0xcf

	OpLddw Opcode = 0x18 // wide immediate load, occupies two slots

	OpLdxB  Opcode = 0x71
	OpLdxH  Opcode = 0x69
	OpLdxW  Opcode = 0x61
	OpLdxDW Opcode = 0x79
	OpStB   Opcode = 0x72
	OpStH   Opcode = 0x6a
	OpStW   Opcode = 0x62
	OpStDW  Opcode = 0x7a
	OpStxB  Opcode = 0x73
	OpStxH  Opcode = 0x6b
	OpStxW  Opcode = 0x63
	OpStxDW Opcode = 0x7b

	OpJa      Opcode = 0x05
	OpJEqImm  Opcode = 0x15
	OpJEqReg  Opcode = 0x1d
	OpJGtImm  Opcode = 0x25
	OpJGtReg  Opcode = 0x2d
	OpJGeImm  Opcode = 0x35
	OpJGeReg  Opcode = 0x3d
	OpJLtImm  Opcode = 0xa5
	OpJLtReg  Opcode = 0xad
	OpJLeImm  Opcode = 0xb5
	OpJLeReg  Opcode = 0xbd
	OpJSetImm Opcode = 0x45
	OpJSetReg Opcode = 0x4d
	OpJNeImm  Opcode = 0x55
	OpJNeReg  Opcode = 0x5d
	OpJSGtImm Opcode = 0x65
	OpJSGtReg Opcode = 0x6d
	OpJSGeImm Opcode = 0x75
	OpJSGeReg Opcode = 0x7d
	OpJSLtImm Opcode = 0xc5
	OpJSLtReg Opcode = 0xcd
	OpJSLeImm Opcode = 0xd5
	OpJSLeReg Opcode = 0xdd

	OpCall    Opcode = 0x85
	OpCallReg Opcode = 0x8d
	OpExit    Opcode = 0x95
)

// Instruction is the decoded form of one 8-byte bytecode record.
type Instruction struct {
	Op     Opcode
	Dst    uint8 // 4 bits
	Src    uint8 // 4 bits
	Offset int16
	Imm    int32
}

// IsWideLoad reports whether this instruction occupies two instruction
// slots (the "lddw" form).
func (i Instruction) IsWideLoad() bool {
	return i.Op == OpLddw
}

// IsClassAlu reports whether the opcode belongs to the 32-bit ALU class
// (as opposed to ALU64, jump, load or store).
func (i Instruction) IsClassAlu() bool {
	return i.Op&0x07 == classAlu
}

// IsClassAlu64 reports whether the opcode belongs to the 64-bit ALU class.
func (i Instruction) IsClassAlu64() bool {
	return i.Op&0x07 == classAlu64
}

// IsClassJmp reports whether the opcode is a branch.
func (i Instruction) IsClassJmp() bool {
	if i.Op == OpCall || i.Op == OpCallReg || i.Op == OpExit {
		return false
	}
	c := i.Op & 0x07
	return c == classJmp || c == classJmp32
}

// UsesImmediateOperand reports whether the ALU/jump source operand is the
// immediate field rather than the src register (bit 3 of the opcode byte).
func (i Instruction) UsesImmediateOperand() bool {
	return i.Op&0x08 == 0
}

// Decode reads one instruction from b at the given instruction index.
// idx is the instruction index, not the byte offset.
func Decode(b []byte, idx int) (Instruction, error) {
	off := idx * InsnSize
	if off < 0 || off+InsnSize > len(b) {
		return Instruction{}, fmt.Errorf("isa: instruction index %d out of range (text is %d bytes)", idx, len(b))
	}
	chunk := b[off : off+InsnSize]
	return Instruction{
		Op:     Opcode(chunk[0]),
		Dst:    chunk[1] & 0x0f,
		Src:    (chunk[1] >> 4) & 0x0f,
		Offset: int16(binary.LittleEndian.Uint16(chunk[2:4])),
		Imm:    int32(binary.LittleEndian.Uint32(chunk[4:8])),
	}, nil
}

// Encode serializes an instruction back into its 8-byte wire form.
func Encode(i Instruction) [InsnSize]byte {
	var out [InsnSize]byte
	out[0] = uint8(i.Op)
	out[1] = (i.Dst & 0x0f) | ((i.Src & 0x0f) << 4)
	binary.LittleEndian.PutUint16(out[2:4], uint16(i.Offset))
	binary.LittleEndian.PutUint32(out[4:8], uint32(i.Imm))
	return out
}

// NumInstructions returns how many instruction slots fit in a text segment
// of the given byte length. Callers must independently check that length
// is a multiple of InsnSize (the verifier does; this helper does not).
func NumInstructions(textLen int) int {
	return textLen / InsnSize
}

// HashSymbolName computes the 32-bit FNV-1a hash used everywhere a symbol
// hash appears: the loader's call-site rewriting and relocation
// resolution, and the verifier/runtime's dispatch against the function and
// host-upcall registries. The specific algorithm is not part of the
// external contract (see DESIGN.md); what matters is that this one
// function is used at every call site.
func HashSymbolName(name []byte) uint32 {
	h := fnv.New32a()
	h.Write(name)
	return h.Sum32()
}

// HashIndexKey hashes a little-endian u64 instruction index, as used by
// the loader when it mints a function-registry key for a relative call
// that has no symbol name (see elf.Load's "fixup relative calls" step).
func HashIndexKey(index uint64) uint32 {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], index)
	return HashSymbolName(b[:])
}
