package jit

import "github.com/xyproto/sbpfvm/isa"

// hostReg names one x86-64 general-purpose register by its 4-bit
// encoding (0=rax, 1=rcx, ..., 15=r15), the same numbering the teacher's
// reg.go table uses.
type hostReg uint8

const (
	rax hostReg = 0
	rcx hostReg = 1
	rdx hostReg = 2
	rbx hostReg = 3
	rsp hostReg = 4
	rbp hostReg = 5
	rsi hostReg = 6
	rdi hostReg = 7
	r8  hostReg = 8
	r9  hostReg = 9
	r10 hostReg = 10
	r11 hostReg = 11
	r12 hostReg = 12
	r13 hostReg = 13
	r14 hostReg = 14
	r15 hostReg = 15
)

// registerMap is the fixed guest-register-to-host-register assignment.
// Because the guest ISA has exactly 11 registers and x86-64 has 16,
// every guest register gets a permanently assigned host register for
// the lifetime of a compiled function: there is no spilling, unlike a
// general-purpose register allocator (contrast with the teacher's own
// register_allocator.go, which tracks live intervals and free lists
// because its source language has unboundedly many live values). rsp
// and rbp are reserved for the native stack frame; r11 is a scratch
// register the emitter uses for address computation and is never a
// guest register's home.
var registerMap = [isa.NumRegisters]hostReg{
	rax, // r0: return value
	rdi, // r1
	rsi, // r2
	rdx, // r3
	rcx, // r4
	r8,  // r5
	rbx, // r6: callee-saved
	r13, // r7: callee-saved
	r14, // r8: callee-saved
	r15, // r9: callee-saved
	r12, // r10: frame pointer
}

// scratch is a host register never assigned to a guest register, free
// for the emitter to clobber within one instruction's code.
const scratch hostReg = r11

// calleeSavedHostRegs is the set of host registers the prologue must
// save and the epilogue restore, because the native calling convention
// (not the guest one) requires it: rbx, r12-r15 are callee-saved on the
// SysV x86-64 ABI this JIT targets.
var calleeSavedHostRegs = []hostReg{rbx, r12, r13, r14, r15, rbp}
