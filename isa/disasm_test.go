package isa

import "testing"

func TestDisassembleBasicProgram(t *testing.T) {
	insns := []Instruction{
		{Op: OpMovImm, Dst: 0, Imm: 5},
		{Op: OpLddw, Dst: 1, Imm: 0x11223344},
		{Op: 0, Imm: 0x55667788},
		{Op: OpJEqImm, Dst: 0, Imm: 5, Offset: 1},
		{Op: OpExit},
		{Op: OpStxW, Dst: 2, Src: 0, Offset: 4},
		{Op: OpExit},
	}
	text := make([]byte, 0, len(insns)*InsnSize)
	for _, in := range insns {
		w := Encode(in)
		text = append(text, w[:]...)
	}
	p := &Program{Text: text}

	lines := Disassemble(p)
	// 7 slots, one of them a folded-away lddw continuation -> 6 lines.
	if len(lines) != 6 {
		t.Fatalf("got %d lines, want 6: %v", len(lines), lines)
	}
	if lines[0] != "   0: mov32 r0, 0x5" {
		t.Errorf("line 0: got %q", lines[0])
	}
	if lines[1] != "   1: lddw r1, 0x5566778811223344" {
		t.Errorf("line 1: got %q", lines[1])
	}
	if lines[2] != "   3: jeq r0, 0x5, +1" {
		t.Errorf("line 2: got %q", lines[2])
	}
	if lines[3] != "   4: exit" {
		t.Errorf("line 3: got %q", lines[3])
	}
	if lines[4] != "   5: stxw [r2+4], r0" {
		t.Errorf("line 4: got %q", lines[4])
	}
}

func TestDisassembleUnknownOpcode(t *testing.T) {
	insns := []Instruction{{Op: 0xff}}
	text := make([]byte, 0, InsnSize)
	w := Encode(insns[0])
	text = append(text, w[:]...)
	p := &Program{Text: text}

	lines := Disassemble(p)
	if len(lines) != 1 || lines[0] != "   0: <unknown opcode 0xff>" {
		t.Errorf("got %v", lines)
	}
}
