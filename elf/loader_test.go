package elf

import (
	stdelf "debug/elf"
	"testing"

	"github.com/xyproto/sbpfvm/isa"
)

func TestValidateHeaderAcceptsWellFormedHeader(t *testing.T) {
	f := &stdelf.File{FileHeader: stdelf.FileHeader{
		Class:  stdelf.ELFCLASS64,
		Data:   stdelf.ELFDATA2LSB,
		OSABI:  stdelf.ELFOSABI_NONE,
		Type:   stdelf.ET_DYN,
		Machine: stdelf.Machine(MachineBPF),
	}}
	if err := validateHeader(f); err != nil {
		t.Fatalf("unexpected rejection: %v", err)
	}
}

func TestValidateHeaderRejectsWrongMachine(t *testing.T) {
	f := &stdelf.File{FileHeader: stdelf.FileHeader{
		Class:  stdelf.ELFCLASS64,
		Data:   stdelf.ELFDATA2LSB,
		OSABI:  stdelf.ELFOSABI_NONE,
		Type:   stdelf.ET_DYN,
		Machine: stdelf.EM_X86_64,
	}}
	if err := validateHeader(f); err == nil {
		t.Fatal("expected rejection of a non-BPF machine type")
	}
}

func TestValidateHeaderRejectsWrongClass(t *testing.T) {
	f := &stdelf.File{FileHeader: stdelf.FileHeader{
		Class:  stdelf.ELFCLASS32,
		Data:   stdelf.ELFDATA2LSB,
		OSABI:  stdelf.ELFOSABI_NONE,
		Type:   stdelf.ET_DYN,
		Machine: stdelf.Machine(MachineBPF),
	}}
	if err := validateHeader(f); err == nil {
		t.Fatal("expected rejection of a 32-bit ELF class")
	}
}

func TestEntryPointIndex(t *testing.T) {
	f := &stdelf.File{FileHeader: stdelf.FileHeader{Entry: isa.ProgramStart + 16}}
	textSec := &stdelf.Section{SectionHeader: stdelf.SectionHeader{Addr: isa.ProgramStart, Size: 64}}

	idx, err := entryPointIndex(f, textSec)
	if err != nil {
		t.Fatalf("entryPointIndex: %v", err)
	}
	if idx != 2 {
		t.Errorf("got %d, want 2", idx)
	}
}

func TestEntryPointIndexRejectsOutOfBounds(t *testing.T) {
	f := &stdelf.File{FileHeader: stdelf.FileHeader{Entry: isa.ProgramStart + 1000}}
	textSec := &stdelf.Section{SectionHeader: stdelf.SectionHeader{Addr: isa.ProgramStart, Size: 64}}
	if _, err := entryPointIndex(f, textSec); err == nil {
		t.Fatal("expected rejection of an out-of-bounds entry point")
	}
}

func TestEntryPointIndexRejectsMisaligned(t *testing.T) {
	f := &stdelf.File{FileHeader: stdelf.FileHeader{Entry: isa.ProgramStart + 3}}
	textSec := &stdelf.Section{SectionHeader: stdelf.SectionHeader{Addr: isa.ProgramStart, Size: 64}}
	if _, err := entryPointIndex(f, textSec); err == nil {
		t.Fatal("expected rejection of a misaligned entry point")
	}
}

func TestParseRelocations(t *testing.T) {
	// Two Elf64_Rel entries: r_offset(8) + r_info(8), no addend.
	b := make([]byte, 32)
	putU64LE(b[0:8], 0x1000)
	putU64LE(b[8:16], (uint64(5)<<32)|RelocationAbs32)
	putU64LE(b[16:24], 0x2000)
	putU64LE(b[24:32], (uint64(9)<<32)|RelocationRelative)

	relocs, err := parseRelocations(b)
	if err != nil {
		t.Fatalf("parseRelocations: %v", err)
	}
	if len(relocs) != 2 {
		t.Fatalf("got %d relocs, want 2", len(relocs))
	}
	if relocs[0].addr != 0x1000 || relocs[0].sym != 5 || relocs[0].rtype != RelocationAbs32 {
		t.Errorf("unexpected first reloc: %+v", relocs[0])
	}
	if relocs[1].addr != 0x2000 || relocs[1].sym != 9 || relocs[1].rtype != RelocationRelative {
		t.Errorf("unexpected second reloc: %+v", relocs[1])
	}
}

func TestParseRelocationsRejectsMalformedLength(t *testing.T) {
	if _, err := parseRelocations(make([]byte, 15)); err == nil {
		t.Fatal("expected rejection of a non-multiple-of-16 relocation table")
	}
}

func TestFixupRelativeCallsRewritesToSymbolHash(t *testing.T) {
	// instruction 0: call pc-relative, target = 0+1+1 = 2 (the exit at
	// index 2, one instruction past the mov that follows the call).
	insns := []isa.Instruction{
		{Op: isa.OpCall, Imm: 1},
		{Op: isa.OpMovImm, Dst: 0, Imm: 7},
		{Op: isa.OpExit},
	}
	text := make([]byte, 0, len(insns)*insnSize)
	for _, in := range insns {
		w := isa.Encode(in)
		text = append(text, w[:]...)
	}

	registry := make(map[uint32]uint32)
	if err := fixupRelativeCalls(text, registry); err != nil {
		t.Fatalf("fixupRelativeCalls: %v", err)
	}

	rewritten, err := isa.Decode(text, 0)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	key := isa.HashIndexKey(0)
	if uint32(rewritten.Imm) != key {
		t.Errorf("got imm 0x%x, want hash 0x%x", uint32(rewritten.Imm), key)
	}
	target, ok := registry[key]
	if !ok || target != 2 {
		t.Errorf("registry[0x%x] = %d, %v; want 2, true", key, target, ok)
	}
}

func TestFixupRelativeCallsLeavesSentinelAlone(t *testing.T) {
	insns := []isa.Instruction{
		{Op: isa.OpCall, Imm: isa.PCRelativeSentinel},
		{Op: isa.OpExit},
	}
	text := make([]byte, 0, len(insns)*insnSize)
	for _, in := range insns {
		w := isa.Encode(in)
		text = append(text, w[:]...)
	}
	registry := make(map[uint32]uint32)
	if err := fixupRelativeCalls(text, registry); err != nil {
		t.Fatalf("fixupRelativeCalls: %v", err)
	}
	if len(registry) != 0 {
		t.Errorf("expected no registry entries for a pc-relative-sentinel call, got %d", len(registry))
	}
}

func TestFixupRelativeCallsRejectsOutOfBoundsTarget(t *testing.T) {
	insns := []isa.Instruction{
		{Op: isa.OpCall, Imm: 1000},
		{Op: isa.OpExit},
	}
	text := make([]byte, 0, len(insns)*insnSize)
	for _, in := range insns {
		w := isa.Encode(in)
		text = append(text, w[:]...)
	}
	if err := fixupRelativeCalls(text, make(map[uint32]uint32)); err == nil {
		t.Fatal("expected rejection of an out-of-bounds relative call target")
	}
}

func putU64LE(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}
