package jit

import "testing"

// TestEmitGateCallImmPushOrder locks down the stack layout emitGateCallImm
// builds for invokeGate: gate must land at the lowest address (gate+0(FP))
// so trampoline_amd64.s's fixed FP-relative reads line up, per gatecall.go's
// comment. Each spillAllGuestRegs/reloadAllGuestRegs bracket is exactly
// isa.NumRegisters * 7 bytes (rex + opcode + modrm + disp32), so the four
// PUSH imm32 instructions start right after the spill and are found at a
// fixed, computable offset.
func TestEmitGateCallImmPushOrder(t *testing.T) {
	c := &compiler{e: newEmitter()}
	c.emitGateCallImm(7, 100, 200)

	const spillBytes = 11 * 7 // isa.NumRegisters * (rex+opcode+modrm+disp32)
	code := c.e.code

	checkPush := func(offset int, want int32) {
		t.Helper()
		if code[offset] != 0x68 {
			t.Fatalf("offset %d: got opcode 0x%02x, want 0x68 (PUSH imm32)", offset, code[offset])
		}
		got := int32(uint32(code[offset+1]) | uint32(code[offset+2])<<8 | uint32(code[offset+3])<<16 | uint32(code[offset+4])<<24)
		if got != want {
			t.Errorf("offset %d: pushed %d, want %d", offset, got, want)
		}
	}

	// Pushed in reverse field order: ret-slot(0), arg1(200), arg0(100),
	// gate(7) — so gate ends up at the lowest address (the current rsp).
	checkPush(spillBytes, 0)
	checkPush(spillBytes+5, 200)
	checkPush(spillBytes+10, 100)
	checkPush(spillBytes+15, 7)

	wantLen := spillBytes + 4*5 + 10 /*movImm64*/ + 3 /*callReg*/ + 5 /*loadRspDisp8*/ + 4 /*4x popReg*/ + spillBytes
	if len(code) != wantLen {
		t.Errorf("got %d total bytes, want %d", len(code), wantLen)
	}
}
