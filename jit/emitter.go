// Package jit implements the x86-64 single-pass ahead-of-time compiler:
// translate a verified isa.Program directly into native machine code
// once, rather than re-dispatching through interp's switch on every
// step.
//
// Byte-level emission follows the teacher's own style in mov.go/add.go/
// cmp.go/jmp.go: REX prefixes and ModR/M bytes are computed by hand and
// written one byte at a time into a growing buffer, with a patch list
// recording fixup sites (the teacher's CallPatch) for addresses not yet
// known at emission time. The teacher emits those bytes into its own
// ExecutableBuilder text buffer; this package emits into a plain byte
// slice grown by append, which seal (compile.go) copies into freshly
// mapped pages once emission is done. Nothing refers to the slice's own
// addresses in the meantime: every jump is a relative displacement
// patched by offset.
package jit

// emitter accumulates one function's worth (here: the whole program's)
// of native machine code and tracks patch sites the same way the
// teacher's ExecutableBuilder.callPatches does.
type emitter struct {
	code []byte
}

func newEmitter() *emitter {
	return &emitter{code: make([]byte, 0, 4096)}
}

func (e *emitter) pos() int { return len(e.code) }

func (e *emitter) byte(b byte) { e.code = append(e.code, b) }

func (e *emitter) bytes(bs ...byte) { e.code = append(e.code, bs...) }

func (e *emitter) u32(v uint32) {
	e.bytes(byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

func (e *emitter) u64(v uint64) {
	e.u32(uint32(v))
	e.u32(uint32(v >> 32))
}

// rex builds a REX prefix. w selects 64-bit operand size (REX.W); r and b
// are the high bits of the ModR/M reg and rm fields, the same three flags
// the teacher's movX86RegToReg computes by hand.
func rex(w, r, b bool) byte {
	v := byte(0x40)
	if w {
		v |= 0x08
	}
	if r {
		v |= 0x04
	}
	if b {
		v |= 0x01
	}
	return v
}

// modrmRegDirect builds a ModR/M byte for register-direct addressing
// (mod=11), as every mov.go/add.go helper does.
func modrmRegDirect(regField, rmField byte) byte {
	return 0xC0 | ((regField & 7) << 3) | (rmField & 7)
}

// movRegToReg emits MOV dst, src (both 64-bit GP registers), per
// mov.go's movX86RegToReg (opcode 0x89: MOV r/m64, r64).
func (e *emitter) movRegToReg(dst, src hostReg) {
	e.byte(rex(true, bool(src >= 8), bool(dst >= 8)))
	e.byte(0x89)
	e.byte(modrmRegDirect(byte(src), byte(dst)))
}

// movImm64 emits MOV dst, imm64 (opcode REX.W B8+r, per the teacher's
// "MOV with immediate encoding" comment in movX86ImmToReg, extended here
// to the full 64-bit immediate form since guest wide-immediate loads
// need the full 64 bits, not just imm32 sign-extension).
func (e *emitter) movImm64(dst hostReg, imm uint64) {
	e.byte(rex(true, false, bool(dst >= 8)))
	e.byte(0xB8 + byte(dst&7))
	e.u64(imm)
}

// aluRegReg emits a two-operand ALU instruction (add/sub/or/and/xor/cmp)
// between two 64-bit registers. opcode is the "r/m64, r64" form's opcode
// byte (e.g. 0x01 for ADD, 0x29 for SUB, 0x09 for OR, 0x21 for AND, 0x31
// for XOR, 0x39 for CMP), mirroring add.go/cmp.go's own opcode tables.
func (e *emitter) aluRegReg(opcode byte, dst, src hostReg) {
	e.byte(rex(true, bool(src >= 8), bool(dst >= 8)))
	e.byte(opcode)
	e.byte(modrmRegDirect(byte(src), byte(dst)))
}

// aluImm32 emits an ALU instruction against a sign-extended 32-bit
// immediate (opcode 0x81 /digit, per add.go's immediate form). digit
// selects the operation: 0=ADD 1=OR 4=AND 5=SUB 6=XOR 7=CMP.
func (e *emitter) aluImm32(digit byte, dst hostReg, imm int32) {
	e.byte(rex(true, false, bool(dst >= 8)))
	e.byte(0x81)
	e.byte(modrmRegDirect(digit, byte(dst)))
	e.u32(uint32(imm))
}

// shiftImm emits a shift/rotate by an immediate count (opcode 0xC1
// /digit ib). digit: 4=SHL 5=SHR 7=SAR, per shl.go/shr.go.
func (e *emitter) shiftImm(digit byte, dst hostReg, count uint8) {
	e.byte(rex(true, false, bool(dst >= 8)))
	e.byte(0xC1)
	e.byte(modrmRegDirect(digit, byte(dst)))
	e.byte(count)
}

// shiftImm32 is shiftImm's 32-bit-operand sibling. Needed distinctly
// (not just truncated after a 64-bit op) for SAR: a 32-bit arithmetic
// shift sign-extends from bit 31, but a 64-bit SAR sign-extends from bit
// 63, which under this package's zero-upper-32-bits invariant is always
// 0 — silently turning a negative 32-bit value's arithmetic shift into a
// logical one if the two were conflated.
func (e *emitter) shiftImm32(digit byte, dst hostReg, count uint8) {
	if dst >= 8 {
		e.byte(rex(false, false, true))
	}
	e.byte(0xC1)
	e.byte(modrmRegDirect(digit, byte(dst)))
	e.byte(count)
}

// negReg emits NEG dst (opcode 0xF7 /3), per neg.go.
func (e *emitter) negReg(dst hostReg) {
	e.byte(rex(true, false, bool(dst >= 8)))
	e.byte(0xF7)
	e.byte(modrmRegDirect(3, byte(dst)))
}

// negReg32 emits the 32-bit NEG, zero-extending the result — needed
// separately from negReg because, although the low 32 bits match those
// of a 64-bit NEG, a 64-bit NEG of a nonzero value leaves the upper 32
// bits set.
func (e *emitter) negReg32(dst hostReg) {
	if dst >= 8 {
		e.byte(rex(false, false, true))
	}
	e.byte(0xF7)
	e.byte(modrmRegDirect(3, byte(dst)))
}

// jmpRel32 emits a near unconditional jump with a placeholder rel32,
// returning the offset of that placeholder for later patching — the
// same two-step "emit placeholder, record patch site" shape as the
// teacher's callSymbolX86.
func (e *emitter) jmpRel32() int {
	e.byte(0xE9)
	p := e.pos()
	e.u32(0)
	return p
}

// jccRel32 emits a conditional near jump (0x0F 0x8x) for the given
// condition code cc (e.g. 0x84 = JE, 0x85 = JNE, ...), placeholder rel32.
func (e *emitter) jccRel32(cc byte) int {
	e.byte(0x0F)
	e.byte(cc)
	p := e.pos()
	e.u32(0)
	return p
}

// patchRel32 fills in a placeholder emitted by jmpRel32/jccRel32/callRel32
// once the target address is known, computing the displacement relative
// to the first byte following the 4-byte field (standard x86 rel32
// semantics).
func (e *emitter) patchRel32(placeholder int, target int) {
	rel := int32(target - (placeholder + 4))
	b := uint32(rel)
	e.code[placeholder] = byte(b)
	e.code[placeholder+1] = byte(b >> 8)
	e.code[placeholder+2] = byte(b >> 16)
	e.code[placeholder+3] = byte(b >> 24)
}

// callRel32 emits a direct relative CALL with a placeholder, per
// callSymbolX86's non-Windows path (0xE8).
func (e *emitter) callRel32() int {
	e.byte(0xE8)
	p := e.pos()
	e.u32(0)
	return p
}

// ret emits RET.
func (e *emitter) ret() { e.byte(0xC3) }

// push/pop a 64-bit GP register.
func (e *emitter) pushReg(r hostReg) {
	if r >= 8 {
		e.byte(rex(false, false, true))
	}
	e.byte(0x50 + byte(r&7))
}

func (e *emitter) popReg(r hostReg) {
	if r >= 8 {
		e.byte(rex(false, false, true))
	}
	e.byte(0x58 + byte(r&7))
}

// pushImm32 emits PUSH imm32 (opcode 0x68), sign-extended to 64 bits by
// the processor. Used instead of loading an immediate into a register
// first, so the emitGateCall sequence (gatecall.go) never clobbers a
// register it still needs to push.
func (e *emitter) pushImm32(v int32) {
	e.byte(0x68)
	e.u32(uint32(v))
}

// callReg emits an indirect CALL r/m64 (opcode 0xFF /2), per the
// teacher's own indirect-call sites in backend.go.
func (e *emitter) callReg(r hostReg) {
	if r >= 8 {
		e.byte(rex(false, false, true))
	}
	e.byte(0xFF)
	e.byte(modrmRegDirect(2, byte(r)))
}

// loadRspDisp8 emits MOV dst, [rsp+disp8]. rsp as a base register always
// needs a SIB byte (x86's one addressing-mode wrinkle mov.go's helpers
// already work around for rbp/r13); the SIB here is the fixed
// "base=rsp, no index, scale=1" encoding (0x24).
func (e *emitter) loadRspDisp8(dst hostReg, disp int8) {
	e.byte(rex(true, bool(dst >= 8), false))
	e.byte(0x8B)
	e.byte(0x44 | ((byte(dst) & 7) << 3))
	e.byte(0x24)
	e.byte(byte(disp))
}

// loadMemDisp32 emits MOV dst, [base+disp32]. base must not be rsp/r12
// (the SIB-required encodings this package never needs here, since the
// only bases used are rbp, the meterReg/pcSectionReg pair, and scratch).
func (e *emitter) loadMemDisp32(dst, base hostReg, disp int32) {
	e.byte(rex(true, bool(dst >= 8), bool(base >= 8)))
	e.byte(0x8B)
	e.byte(0x80 | ((byte(dst) & 7) << 3) | (byte(base) & 7))
	e.u32(uint32(disp))
}

// storeMemDisp32 emits MOV [base+disp32], src.
func (e *emitter) storeMemDisp32(base, src hostReg, disp int32) {
	e.byte(rex(true, bool(src >= 8), bool(base >= 8)))
	e.byte(0x89)
	e.byte(0x80 | ((byte(src) & 7) << 3) | (byte(base) & 7))
	e.u32(uint32(disp))
}

// jmpReg emits an indirect JMP r/m64 (opcode 0xFF /4), used for the
// call-register/pc_section dispatch and for falling through to a
// dynamically-resolved continuation after a fallback gate call.
func (e *emitter) jmpReg(r hostReg) {
	if r >= 8 {
		e.byte(rex(false, false, true))
	}
	e.byte(0xFF)
	e.byte(modrmRegDirect(4, byte(r)))
}

// aluRegReg32 and aluImm32Only32 are aluRegReg/aluImm32's 32-bit-operand
// siblings: dropping REX.W gives the guest ALU32 class's "results are
// zero-extended into the full 64-bit register" semantics for free, since
// that's what every 32-bit x86 instruction already does to its
// destination register.
func (e *emitter) aluRegReg32(opcode byte, dst, src hostReg) {
	if dst >= 8 || src >= 8 {
		e.byte(rex(false, bool(src >= 8), bool(dst >= 8)))
	}
	e.byte(opcode)
	e.byte(modrmRegDirect(byte(src), byte(dst)))
}

func (e *emitter) aluImm32Only32(digit byte, dst hostReg, imm int32) {
	if dst >= 8 {
		e.byte(rex(false, false, true))
	}
	e.byte(0x81)
	e.byte(modrmRegDirect(digit, byte(dst)))
	e.u32(uint32(imm))
}

// movImm32 emits MOV dst(32-bit), imm32 — zero-extending, per guest
// ALU32 mov-immediate semantics (opcode B8+r with no REX.W).
func (e *emitter) movImm32(dst hostReg, imm int32) {
	if dst >= 8 {
		e.byte(rex(false, false, true))
	}
	e.byte(0xB8 + byte(dst&7))
	e.u32(uint32(imm))
}

// movRegToReg32 emits MOV dst(32-bit), src(32-bit) — zero-extending.
func (e *emitter) movRegToReg32(dst, src hostReg) {
	if dst >= 8 || src >= 8 {
		e.byte(rex(false, bool(src >= 8), bool(dst >= 8)))
	}
	e.byte(0x89)
	e.byte(modrmRegDirect(byte(src), byte(dst)))
}
