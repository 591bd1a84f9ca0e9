// Package elf parses a position-independent BPF object, validates its
// machine/ABI, lifts sections into an in-memory layout, resolves the two
// honored relocation kinds, and rewrites call instructions to use
// stable symbol-hash dispatch — spec.md §4.E.
//
// Header and section-table parsing uses the standard library's
// debug/elf, grounded directly on the teacher's own test suite
// (elf_test.go imports debug/elf to validate the ELF files the teacher's
// writers produce). Relocation-entry and symbol-table decoding is done by
// hand against raw section bytes, mirroring the original Rust
// implementation's own approach — its elfkit dependency "does not form
// BPF relocations and instead just provides raw bytes", so it hand-rolls
// a small big-endian-free Elf64_Rel reader; debug/elf is in the same
// position for the BPF machine type, so this loader does the same thing.
package elf

import (
	"debug/elf"
	"encoding/binary"
	"fmt"

	"github.com/xyproto/sbpfvm/isa"
)

// Config carries the subset of sbpfvm.Config the loader consults.
type Config struct {
	RejectBrokenELFs bool
}

type rawReloc struct {
	addr uint64
	sym  uint32
	rtype uint32
}

// Load parses, validates and relocates a BPF ELF object, producing an
// isa.Program ready for verification.
func Load(data []byte, cfg Config) (*isa.Program, error) {
	f, err := elf.NewFile(bytesReaderAt(data))
	if err != nil {
		return nil, &InvalidElf{Detail: fmt.Sprintf("failed to parse ELF: %v", err)}
	}

	if err := validateHeader(f); err != nil {
		return nil, err
	}

	textSections := sectionsNamed(f, ".text")
	if len(textSections) != 1 {
		return nil, &InvalidElf{Detail: fmt.Sprintf("expected exactly one .text section, found %d", len(textSections))}
	}
	textSec := textSections[0]
	textBytes, err := textSec.Data()
	if err != nil {
		return nil, &InvalidElf{Detail: fmt.Sprintf("failed to read .text: %v", err)}
	}
	// Work on a private copy: relocation and call-fixup rewrite in place.
	text := append([]byte(nil), textBytes...)

	type loadedSection struct {
		name string
		addr uint64
		data []byte // nil for .text, whose bytes live in `text`
	}
	sections := []loadedSection{{name: ".text", addr: textSec.Addr}}
	for _, name := range []string{".rodata", ".data.rel.ro"} {
		for _, s := range sectionsNamed(f, name) {
			b, err := s.Data()
			if err != nil {
				return nil, &InvalidElf{Detail: fmt.Sprintf("failed to read %s: %v", name, err)}
			}
			sections = append(sections, loadedSection{name: name, addr: s.Addr, data: append([]byte(nil), b...)})
		}
	}

	funcRegistry := make(map[uint32]uint32)
	hostRegistry := make(map[uint32]uint32)

	if err := fixupRelativeCalls(text, funcRegistry); err != nil {
		return nil, err
	}

	relSec := sectionNamed(f, ".rel.dyn")
	if relSec != nil {
		relBytes, err := relSec.Data()
		if err != nil {
			return nil, &InvalidElf{Detail: fmt.Sprintf("failed to read .rel.dyn: %v", err)}
		}
		relocs, err := parseRelocations(relBytes)
		if err != nil {
			return nil, err
		}

		symbols, err := f.DynamicSymbols()
		if err != nil && len(relocs) > 0 {
			return nil, &InvalidElf{Detail: fmt.Sprintf("failed to read .dynsym: %v", err)}
		}

		textDelta := int64(isa.ProgramStart) - int64(textSec.Addr)

		findSection := func(va uint64) int {
			for i, s := range sections {
				length := uint64(len(s.data))
				if i == 0 {
					length = uint64(len(text))
				}
				if va >= s.addr && va < s.addr+length {
					return i
				}
			}
			return -1
		}

		sectionBytes := func(i int) []byte {
			if i == 0 {
				return text
			}
			return sections[i].data
		}

		for _, r := range relocs {
			switch r.rtype {
			case RelocationRelative:
				targetIdx := findSection(r.addr)
				if targetIdx < 0 {
					return nil, &RelocationFailure{Detail: fmt.Sprintf("no loadable section contains virtual address 0x%x", r.addr)}
				}
				targetOffset := r.addr - sections[targetIdx].addr
				immOffset := targetOffset + byteOffsetImmediate
				tb := sectionBytes(targetIdx)
				if int(immOffset)+byteLengthImmediate > len(tb) {
					return nil, &RelocationFailure{Detail: "relocation site runs past end of section"}
				}
				refdVA := uint64(binary.LittleEndian.Uint32(tb[immOffset : immOffset+byteLengthImmediate]))
				if refdVA == 0 {
					continue // zero-valued stored addresses are skipped, per spec.md §4.E
				}

				refdIdx := findSection(refdVA)
				if refdIdx < 0 {
					return nil, &RelocationFailure{Detail: fmt.Sprintf("relocation referenced virtual address 0x%x is not in any loadable section", refdVA)}
				}
				refdOffset := refdVA - sections[refdIdx].addr
				finalVA := sections[refdIdx].addr + refdOffset
				if refdIdx == 0 {
					// The referenced object lives in .text, whose runtime
					// base is MM_PROGRAM_START, not its ELF-declared
					// address: translate. Sections other than .text keep
					// their ELF-declared virtual address per spec.md §3.
					finalVA = uint64(int64(finalVA) + textDelta)
				}

				// Emit a *virtual* address, never a host pointer: this is
				// the fix for the "write physical address back" anti-
				// pattern spec.md §9 calls out. The MMU resolves this
				// value to a host address at access time.
				if targetIdx == 0 {
					binary.LittleEndian.PutUint32(tb[immOffset:immOffset+byteLengthImmediate], uint32(finalVA&0xffffffff))
					hiOff := int(immOffset) + insnSize
					if hiOff+byteLengthImmediate > len(tb) {
						return nil, &RelocationFailure{Detail: "wide-immediate relocation missing its continuation slot"}
					}
					binary.LittleEndian.PutUint32(tb[hiOff:hiOff+byteLengthImmediate], uint32(finalVA>>32))
				} else {
					if int(targetOffset)+8 > len(tb) {
						return nil, &RelocationFailure{Detail: "relocation site runs past end of section"}
					}
					binary.LittleEndian.PutUint64(tb[targetOffset:targetOffset+8], finalVA)
				}

			case RelocationAbs32:
				if int(r.sym) >= len(symbols) {
					return nil, &RelocationFailure{Detail: fmt.Sprintf("relocation references out-of-range symbol %d", r.sym)}
				}
				sym := symbols[r.sym]
				hash := isa.HashSymbolName([]byte(sym.Name))
				insnOffset := r.addr - sections[0].addr
				immOffset := insnOffset + byteOffsetImmediate
				if int(immOffset)+byteLengthImmediate > len(text) {
					return nil, &RelocationFailure{Detail: "relocation site runs past end of .text"}
				}
				binary.LittleEndian.PutUint32(text[immOffset:immOffset+byteLengthImmediate], hash)

				if sym.Info&0x0f == uint8(elf.STT_FUNC) && sym.Value != 0 {
					funcRegistry[hash] = uint32((sym.Value - sections[0].addr) / insnSize)
				} else if sym.Section == elf.SHN_UNDEF {
					if cfg.RejectBrokenELFs {
						return nil, &UnresolvedSymbol{Name: sym.Name, Code: hash, FileOffset: r.addr}
					}
					// Left unresolved: the host-upcall registry is
					// populated by the caller at execution time, per
					// spec.md §4.E's R_BPF_64_32 semantics.
				}

			case RelocationNone, RelocationAbs64:
				// Recognized but not required.

			default:
				return nil, &RelocationFailure{Detail: fmt.Sprintf("unhandled relocation type %d", r.rtype)}
			}
		}
	}

	entryIdx, err := entryPointIndex(f, textSec)
	if err != nil {
		return nil, err
	}

	progSections := make([]isa.Section, 0, len(sections)-1)
	for _, s := range sections[1:] {
		progSections = append(progSections, isa.Section{Name: s.name, VMAddr: s.addr, Data: s.data})
	}

	return &isa.Program{
		Text:               text,
		Sections:           progSections,
		FunctionRegistry:   funcRegistry,
		HostUpcallRegistry: hostRegistry,
		EntryPoint:         entryIdx,
	}, nil
}

func validateHeader(f *elf.File) error {
	if f.Class != elf.ELFCLASS64 {
		return &InvalidElf{Detail: "wrong class, expected ELFCLASS64"}
	}
	if f.Data != elf.ELFDATA2LSB {
		return &InvalidElf{Detail: "wrong endianness, expected little-endian"}
	}
	if f.OSABI != elf.ELFOSABI_NONE {
		return &InvalidElf{Detail: "wrong ABI, expected SysV"}
	}
	if uint16(f.Machine) != MachineBPF {
		return &InvalidElf{Detail: "wrong machine, expected BPF"}
	}
	if f.Type != elf.ET_DYN {
		return &InvalidElf{Detail: "wrong type, expected DYN"}
	}
	return nil
}

func sectionsNamed(f *elf.File, name string) []*elf.Section {
	var out []*elf.Section
	for _, s := range f.Sections {
		if s.Name == name {
			out = append(out, s)
		}
	}
	return out
}

func sectionNamed(f *elf.File, name string) *elf.Section {
	for _, s := range f.Sections {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// fixupRelativeCalls rewrites every call-immediate whose immediate is not
// the pc-relative sentinel into a stable symbol-hash dispatch key, per
// spec.md §4.E.
func fixupRelativeCalls(text []byte, funcRegistry map[uint32]uint32) error {
	n := len(text) / insnSize
	for i := 0; i < n; i++ {
		insn, err := isa.Decode(text, i)
		if err != nil {
			return &InvalidElf{Detail: err.Error()}
		}
		if insn.Op != isa.OpCall || insn.Imm == isa.PCRelativeSentinel {
			continue
		}
		targetIdx := i + 1 + int(insn.Imm)
		if targetIdx < 0 || targetIdx >= n {
			return &RelocationFailure{Detail: fmt.Sprintf("relative call at instruction %d is out of bounds", i)}
		}
		key := isa.HashIndexKey(uint64(i))
		if _, exists := funcRegistry[key]; exists {
			return &RelocationFailure{Detail: fmt.Sprintf("relocation hash collision while encoding instruction %d", i)}
		}
		funcRegistry[key] = uint32(targetIdx)

		insn.Imm = int32(key)
		encoded := isa.Encode(insn)
		copy(text[i*insnSize:(i+1)*insnSize], encoded[:])
	}
	return nil
}

func entryPointIndex(f *elf.File, textSec *elf.Section) (uint32, error) {
	entry := f.Entry
	if entry < textSec.Addr || entry > textSec.Addr+textSec.Size {
		return 0, &InvalidElf{Detail: "entrypoint out of bounds"}
	}
	offset := entry - textSec.Addr
	if offset%insnSize != 0 {
		return 0, &InvalidElf{Detail: "entrypoint not a multiple of the instruction size"}
	}
	return uint32(offset / insnSize), nil
}

func parseRelocations(b []byte) ([]rawReloc, error) {
	const entrySize = 16 // Elf64_Rel: r_offset(8) + r_info(8), no addend
	if len(b)%entrySize != 0 {
		return nil, &RelocationFailure{Detail: "malformed .rel.dyn: size is not a multiple of the entry size"}
	}
	out := make([]rawReloc, 0, len(b)/entrySize)
	for off := 0; off+entrySize <= len(b); off += entrySize {
		addr := binary.LittleEndian.Uint64(b[off : off+8])
		info := binary.LittleEndian.Uint64(b[off+8 : off+16])
		out = append(out, rawReloc{
			addr:  addr,
			sym:   uint32(info >> 32),
			rtype: uint32(info & 0xffffffff),
		})
	}
	return out, nil
}
