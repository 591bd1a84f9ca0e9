package elf

// BPF relocation types, per spec.md §6: "Relocation kinds honored". Named
// and laid out the same way the teacher collects on-disk format constants
// in elf_sections.go (SHT_NULL, R_X86_64_JUMP_SLOT, ...) — here for the
// BPF machine's relocation numbering instead of x86_64's.
const (
	RelocationNone     = 0  // R_BPF_NONE: recognized, not required
	RelocationAbs64    = 1  // R_BPF_64_64: recognized, not required
	RelocationRelative = 8  // R_BPF_64_RELATIVE: honored
	RelocationAbs32    = 10 // R_BPF_64_32: honored
)

// MachineBPF is EM_BPF (247). Declared locally rather than depended on
// debug/elf's own constant of the same name so this loader doesn't need a
// minimum Go toolchain version bump just for one enum value.
const MachineBPF = 247

// byteOffsetImmediate / byteLengthImmediate locate the 32-bit immediate
// field within one 8-byte instruction, per isa.Instruction's wire layout.
const (
	byteOffsetImmediate = 4
	byteLengthImmediate = 4
)

const insnSize = 8
