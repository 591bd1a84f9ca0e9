package jit

import (
	"fmt"
	"unsafe"

	"github.com/xyproto/sbpfvm/align"
	"github.com/xyproto/sbpfvm/isa"
)

// meterReg and pcSectionReg are the two host registers left over once
// the eleven guest registers, the scratch register and the native
// stack/ctx-pointer registers are assigned (regalloc.go). meterReg holds
// the running instruction-meter countdown: rather than calling back into
// Go to decrement a counter on every instruction, the compiled code
// subtracts one from this register per instruction (checkpoints.go) and
// only reconciles it with the *meter.Meter when it goes negative
// (anchors.go's exceededMaxInstructions) and in the epilogue
// (gateStoreMeter). pcSectionReg holds the base address of the pc_section
// lookup table, for the fallback gate's indirect continuation
// (emitFallback), which also carries call-register.
const (
	meterReg     = r9
	pcSectionReg = r10
)

// patch is a deferred fixup: a placeholder emitted before its target
// instruction's native address was known. Mirrors the teacher's
// CallPatch (mov.go/backend.go), generalized to jumps as well as calls.
type patch struct {
	at         int
	targetInsn int
}

// compiler holds one single-pass compilation's state.
type compiler struct {
	program *isa.Program
	e       *emitter

	pcOffsets []int // native byte offset of each guest instruction, -1 until emitted
	patches   []patch

	// epiloguePatches are jumps emitted by emitAnchors before the
	// epilogue anchor's own offset was known; resolved right after it.
	epiloguePatches []int

	maxCallDepth   int
	stackFrameSize uint64
	enableSbpfV2   bool

	exceededMaxInstructions int
	callDepthExceeded       int
	callOutsideText         int
	divideByZero            int
	divideOverflow          int
	unsupportedInstruction  int
	epilogue                int
}

// Compiled is a sealed, executable translation of one isa.Program,
// ready to Run. It owns one mmap'd region (text_section) plus a
// pc_section table held in ordinary Go memory (an align.Buffer), and
// must be released with Release once no caller will invoke it again.
type Compiled struct {
	text      []byte // RX
	pcSection []byte // Go heap memory, one uint64 native address per guest instruction
	entry     int    // byte offset of program.EntryPoint's native code
}

// Compile translates a verified program into native x86-64 code. Compile
// must only be called on a program that has already passed Verify — the
// JIT does not re-check structural invariants, per spec.md §4.H.
func Compile(program *isa.Program, maxCallDepth int, stackFrameSize uint64, enableSbpfV2 bool) (*Compiled, error) {
	n := program.TextInstructionCount()
	c := &compiler{
		program:        program,
		e:              newEmitter(),
		pcOffsets:      make([]int, n),
		maxCallDepth:   maxCallDepth,
		stackFrameSize: stackFrameSize,
		enableSbpfV2:   enableSbpfV2,
	}
	for i := range c.pcOffsets {
		c.pcOffsets[i] = -1
	}

	c.emitPrologue()
	c.emitAnchors()
	for _, at := range c.epiloguePatches {
		c.e.patchRel32(at, c.epilogue)
	}

	for i := 0; i < n; i++ {
		insn, err := program.Instruction(i)
		if err != nil {
			return nil, fmt.Errorf("jit: %w", &InvalidInstruction{PC: uint64(i)})
		}
		emitIdx := i
		c.pcOffsets[i] = c.e.pos()
		c.emitTraceCheckpoint(uint64(i))
		c.emitMeterCheckpoint(uint64(i))

		if err := c.emitInstruction(emitIdx, insn); err != nil {
			return nil, err
		}

		if insn.Op == isa.OpLddw {
			i++ // consume the wide-immediate continuation slot: it has no native code or pc_section entry of its own
		}
	}

	for _, p := range c.patches {
		target := c.pcOffsets[p.targetInsn]
		if target < 0 {
			return nil, fmt.Errorf("jit: patch referenced unemitted instruction %d", p.targetInsn)
		}
		c.e.patchRel32(p.at, target)
	}

	return c.seal(program.EntryPoint)
}

func (c *compiler) seal(entryInsn uint32) (*Compiled, error) {
	textMem, err := allocExecutable(len(c.e.code))
	if err != nil {
		return nil, fmt.Errorf("jit: allocating text pages: %w", err)
	}
	copy(textMem, c.e.code)
	if err := sealPages(textMem); err != nil {
		return nil, fmt.Errorf("jit: sealing text pages: %w", err)
	}

	// pc_section holds one absolute native address per guest instruction,
	// not a bare offset: the fallback-gate continuation, which also
	// carries call-register, jumps straight through it (emitFallback,
	// emit_instruction.go) and does not know textMem's base address
	// independently.
	textBase := uint64(uintptr(unsafe.Pointer(&textMem[0])))

	pcBuf, err := align.New(len(c.pcOffsets)*8, 8)
	if err != nil {
		return nil, fmt.Errorf("jit: allocating pc_section: %w", err)
	}
	for _, off := range c.pcOffsets {
		var word [8]byte
		v := uint64(0)
		if off >= 0 {
			v = textBase + uint64(off)
		}
		for k := 0; k < 8; k++ {
			word[k] = byte(v >> (8 * k))
		}
		if err := pcBuf.Append(word[:]); err != nil {
			return nil, err
		}
	}

	return &Compiled{
		text:      textMem,
		pcSection: pcBuf.AsSlice(),
		entry:     c.pcOffsets[entryInsn],
	}, nil
}

// Release frees the native code pages; the pc_section table is ordinary
// Go memory left to the garbage collector. Callers must not
// invoke Run on a Compiled after Release, and must not call Release
// while a Run on the same Compiled is in flight, per spec.md §5.
func (c *Compiled) Release() error {
	return freeExecutable(c.text)
}
