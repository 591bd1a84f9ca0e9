package jit

import "testing"

func assertBytes(t *testing.T, got []byte, want ...byte) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d bytes (% x), want %d bytes (% x)", len(got), got, len(want), want)
	}
	for i, b := range want {
		if got[i] != b {
			t.Errorf("byte %d: got 0x%02x, want 0x%02x", i, got[i], b)
		}
	}
}

func TestMovRegToReg(t *testing.T) {
	e := newEmitter()
	e.movRegToReg(rax, rbx)
	// REX.W + MOV r/m64,r64 + ModR/M = 48 89 d8
	assertBytes(t, e.code, 0x48, 0x89, 0xD8)
}

func TestMovRegToRegExtendedRegisters(t *testing.T) {
	e := newEmitter()
	e.movRegToReg(r12, r13)
	// REX.WRB + MOV + ModR/M
	assertBytes(t, e.code, 0x4D, 0x89, 0xEC)
}

func TestMovImm64(t *testing.T) {
	e := newEmitter()
	e.movImm64(rax, 0x1122334455667788)
	assertBytes(t, e.code,
		0x48, 0xB8,
		0x88, 0x77, 0x66, 0x55, 0x44, 0x33, 0x22, 0x11,
	)
}

func TestAluRegRegAdd(t *testing.T) {
	e := newEmitter()
	e.aluRegReg(0x01, rax, rbx) // ADD rax, rbx
	assertBytes(t, e.code, 0x48, 0x01, 0xD8)
}

func TestAluImm32Sub(t *testing.T) {
	e := newEmitter()
	e.aluImm32(5, rax, 5) // SUB rax, 5
	assertBytes(t, e.code, 0x48, 0x81, 0xE8, 0x05, 0x00, 0x00, 0x00)
}

func TestShiftImm(t *testing.T) {
	e := newEmitter()
	e.shiftImm(4, rax, 3) // SHL rax, 3
	assertBytes(t, e.code, 0x48, 0xC1, 0xE0, 0x03)
}

func TestNegReg(t *testing.T) {
	e := newEmitter()
	e.negReg(rbx)
	assertBytes(t, e.code, 0x48, 0xF7, 0xDB)
}

func TestJmpRel32PlaceholderThenPatch(t *testing.T) {
	e := newEmitter()
	at := e.jmpRel32()
	assertBytes(t, e.code, 0xE9, 0x00, 0x00, 0x00, 0x00)

	e.patchRel32(at, 10) // displacement = 10 - (at+4) = 10 - 5 = 5
	if e.code[at] != 5 || e.code[at+1] != 0 || e.code[at+2] != 0 || e.code[at+3] != 0 {
		t.Errorf("unexpected patched bytes: % x", e.code[at:at+4])
	}
}

func TestJccRel32(t *testing.T) {
	e := newEmitter()
	e.jccRel32(0x84) // JE
	assertBytes(t, e.code, 0x0F, 0x84, 0x00, 0x00, 0x00, 0x00)
}

func TestPushPopReg(t *testing.T) {
	e := newEmitter()
	e.pushReg(rbx)
	e.pushReg(r12)
	e.popReg(rbx)
	e.popReg(r12)
	assertBytes(t, e.code,
		0x53,       // push rbx
		0x41, 0x54, // push r12
		0x5B,       // pop rbx
		0x41, 0x5C, // pop r12
	)
}

func TestCallReg(t *testing.T) {
	e := newEmitter()
	e.callReg(r11)
	// REX.B + CALL r/m64 /2 + ModR/M(mod=11,reg=2,rm=r11&7=3)
	assertBytes(t, e.code, 0x41, 0xFF, 0xD3)
}

func TestLoadRspDisp8(t *testing.T) {
	e := newEmitter()
	e.loadRspDisp8(rax, 24)
	assertBytes(t, e.code, 0x48, 0x8B, 0x44, 0x24, 0x18)
}

func TestMovImm32ZeroExtends(t *testing.T) {
	e := newEmitter()
	e.movImm32(rax, -1) // guest ALU32 mov of 0xffffffff
	assertBytes(t, e.code, 0xB8, 0xFF, 0xFF, 0xFF, 0xFF)
}

func TestAluRegReg32OmitsRexWhenUnneeded(t *testing.T) {
	e := newEmitter()
	e.aluRegReg32(0x01, rax, rbx) // ADD eax, ebx, no extended regs -> no REX at all
	assertBytes(t, e.code, 0x01, 0xD8)
}

func TestAluRegReg32EmitsRexForExtendedRegister(t *testing.T) {
	e := newEmitter()
	e.aluRegReg32(0x01, r8, rax) // ADD r8d, eax
	assertBytes(t, e.code, 0x41, 0x01, 0xC0)
}
