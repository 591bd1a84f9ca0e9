package verifier

import (
	"testing"

	"github.com/xyproto/sbpfvm/isa"
)

func programFrom(insns ...isa.Instruction) *isa.Program {
	text := make([]byte, 0, len(insns)*isa.InsnSize)
	for _, in := range insns {
		w := isa.Encode(in)
		text = append(text, w[:]...)
	}
	return &isa.Program{
		Text:               text,
		FunctionRegistry:   map[uint32]uint32{},
		HostUpcallRegistry: map[uint32]uint32{},
	}
}

func TestStructuralAcceptsTrivialProgram(t *testing.T) {
	p := programFrom(
		isa.Instruction{Op: isa.OpMovImm, Dst: 0, Imm: 7},
		isa.Instruction{Op: isa.OpExit},
	)
	if err := (Structural{}).Verify(p, Config{}); err != nil {
		t.Fatalf("unexpected rejection: %v", err)
	}
}

func TestStructuralRejectsEmptyProgram(t *testing.T) {
	p := programFrom()
	assertRejected(t, p, Config{}, KindMissingTrailingExit)
}

func TestStructuralRejectsMissingTrailingExit(t *testing.T) {
	p := programFrom(
		isa.Instruction{Op: isa.OpMovImm, Dst: 0, Imm: 1},
	)
	assertRejected(t, p, Config{}, KindMissingTrailingExit)
}

func TestStructuralRejectsBadRegister(t *testing.T) {
	p := programFrom(
		isa.Instruction{Op: isa.OpMovImm, Dst: isa.NumRegisters, Imm: 1},
		isa.Instruction{Op: isa.OpExit},
	)
	assertRejected(t, p, Config{}, KindBadRegister)
}

func TestStructuralRejectsUnknownOpcode(t *testing.T) {
	p := programFrom(
		isa.Instruction{Op: 0xff},
		isa.Instruction{Op: isa.OpExit},
	)
	assertRejected(t, p, Config{}, KindUnknownOpcode)
}

func TestStructuralRejectsDivByZeroLiteral(t *testing.T) {
	p := programFrom(
		isa.Instruction{Op: isa.OpDivImm, Dst: 0, Imm: 0},
		isa.Instruction{Op: isa.OpExit},
	)
	assertRejected(t, p, Config{}, KindDivModByZeroLiteral)
}

func TestStructuralAllowsDivByZeroRegister(t *testing.T) {
	// only a literal-zero immediate divisor is statically rejected; a
	// register divisor of zero is a runtime concern (interp/jit), not
	// a structural one.
	p := programFrom(
		isa.Instruction{Op: isa.OpDivReg, Dst: 0, Src: 1},
		isa.Instruction{Op: isa.OpExit},
	)
	if err := (Structural{}).Verify(p, Config{}); err != nil {
		t.Fatalf("unexpected rejection: %v", err)
	}
}

func TestStructuralRejectsBadShiftAmount(t *testing.T) {
	p := programFrom(
		isa.Instruction{Op: isa.OpLshImm, Dst: 0, Imm: 64},
		isa.Instruction{Op: isa.OpExit},
	)
	assertRejected(t, p, Config{}, KindBadShiftAmount)

	p64 := programFrom(
		isa.Instruction{Op: isa.OpLsh64Imm, Dst: 0, Imm: 64},
		isa.Instruction{Op: isa.OpExit},
	)
	assertRejected(t, p64, Config{}, KindBadShiftAmount)
}

func TestStructuralAllowsMaxShiftAmount(t *testing.T) {
	p := programFrom(
		isa.Instruction{Op: isa.OpLshImm, Dst: 0, Imm: 31},
		isa.Instruction{Op: isa.OpLsh64Imm, Dst: 0, Imm: 63},
		isa.Instruction{Op: isa.OpExit},
	)
	if err := (Structural{}).Verify(p, Config{}); err != nil {
		t.Fatalf("unexpected rejection: %v", err)
	}
}

func TestStructuralRejectsBadJumpTarget(t *testing.T) {
	p := programFrom(
		isa.Instruction{Op: isa.OpJa, Offset: 100},
		isa.Instruction{Op: isa.OpExit},
	)
	assertRejected(t, p, Config{}, KindBadJumpTarget)
}

func TestStructuralRejectsJumpIntoWideImmediateSlot(t *testing.T) {
	p := programFrom(
		isa.Instruction{Op: isa.OpLddw, Dst: 0, Imm: 1},
		isa.Instruction{Op: 0}, // continuation of the lddw above
		isa.Instruction{Op: isa.OpJa, Offset: -2}, // targets index 1, the continuation slot
		isa.Instruction{Op: isa.OpExit},
	)
	assertRejected(t, p, Config{}, KindBadJumpTarget)
}

func TestStructuralRejectsMalformedWideImmediate(t *testing.T) {
	p := programFrom(
		isa.Instruction{Op: isa.OpLddw, Dst: 0, Imm: 1},
		isa.Instruction{Op: isa.OpExit}, // not a zero-opcode continuation slot
	)
	assertRejected(t, p, Config{}, KindBadWideImmediate)
}

func TestStructuralAcceptsWellFormedWideImmediate(t *testing.T) {
	p := programFrom(
		isa.Instruction{Op: isa.OpLddw, Dst: 0, Imm: 1},
		isa.Instruction{Op: 0, Imm: 2}, // continuation: high half of the immediate
		isa.Instruction{Op: isa.OpExit},
	)
	if err := (Structural{}).Verify(p, Config{}); err != nil {
		t.Fatalf("unexpected rejection: %v", err)
	}
}

func TestStructuralRejectsUnresolvedCallTarget(t *testing.T) {
	hash := isa.HashSymbolName([]byte("nowhere"))
	p := programFrom(
		isa.Instruction{Op: isa.OpCall, Imm: int32(hash)},
		isa.Instruction{Op: isa.OpExit},
	)
	assertRejected(t, p, Config{RejectBrokenELFs: true}, KindUnresolvedCallTarget)
}

func TestStructuralIgnoresUnresolvedCallWhenNotRejectingBrokenELFs(t *testing.T) {
	hash := isa.HashSymbolName([]byte("nowhere"))
	p := programFrom(
		isa.Instruction{Op: isa.OpCall, Imm: int32(hash)},
		isa.Instruction{Op: isa.OpExit},
	)
	if err := (Structural{}).Verify(p, Config{RejectBrokenELFs: false}); err != nil {
		t.Fatalf("unexpected rejection: %v", err)
	}
}

func TestStructuralAcceptsResolvedCallTarget(t *testing.T) {
	hash := isa.HashSymbolName([]byte("helper"))
	p := programFrom(
		isa.Instruction{Op: isa.OpCall, Imm: int32(hash)},
		isa.Instruction{Op: isa.OpExit},
	)
	p.FunctionRegistry[hash] = 0
	if err := (Structural{}).Verify(p, Config{RejectBrokenELFs: true}); err != nil {
		t.Fatalf("unexpected rejection: %v", err)
	}
}

func TestStructuralAcceptsPCRelativeCallSentinel(t *testing.T) {
	p := programFrom(
		isa.Instruction{Op: isa.OpCall, Imm: isa.PCRelativeSentinel},
		isa.Instruction{Op: isa.OpExit},
	)
	if err := (Structural{}).Verify(p, Config{RejectBrokenELFs: true}); err != nil {
		t.Fatalf("unexpected rejection: %v", err)
	}
}

func TestTautologyAcceptsAnything(t *testing.T) {
	p := programFrom(isa.Instruction{Op: 0xff})
	if err := (Tautology{}).Verify(p, Config{}); err != nil {
		t.Fatalf("Tautology should never reject, got: %v", err)
	}
	if (Tautology{}).Name() != "tautology" {
		t.Errorf("got %q, want %q", (Tautology{}).Name(), "tautology")
	}
	if (Structural{}).Name() != "structural" {
		t.Errorf("got %q, want %q", (Structural{}).Name(), "structural")
	}
}

func assertRejected(t *testing.T, p *isa.Program, cfg Config, want Kind) {
	t.Helper()
	err := (Structural{}).Verify(p, cfg)
	if err == nil {
		t.Fatalf("expected rejection with kind %q, got none", want)
	}
	verr, ok := err.(*Error)
	if !ok {
		t.Fatalf("expected *Error, got %T: %v", err, err)
	}
	if verr.Kind != want {
		t.Errorf("got kind %q, want %q", verr.Kind, want)
	}
}
