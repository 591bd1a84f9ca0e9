package sbpfvm

import "fmt"

// This file defines every error kind the core can surface to a caller, per
// spec.md §7. Each is a concrete struct implementing error and carrying
// its payload as fields, grounded on the teacher's errors.go (CompilerError
// et al.): named, inspectable error types rather than sentinel values,
// because callers (and this module's own tests comparing interpreter vs.
// JIT behavior) need the payload, not just a boolean "it failed".

// InvalidElf reports a load-time ELF parse or validation failure.
type InvalidElf struct {
	Detail string
}

func (e *InvalidElf) Error() string { return fmt.Sprintf("invalid ELF: %s", e.Detail) }

// UnresolvedSymbol reports a call-immediate or relocation whose symbol
// could not be resolved against either registry.
type UnresolvedSymbol struct {
	Name       string
	Code       uint32
	FileOffset uint64
}

func (e *UnresolvedSymbol) Error() string {
	return fmt.Sprintf("unresolved symbol %q (hash 0x%x) at file offset %d", e.Name, e.Code, e.FileOffset)
}

// RelocationFailure reports a malformed or unsupported relocation entry.
type RelocationFailure struct {
	Detail string
}

func (e *RelocationFailure) Error() string { return fmt.Sprintf("relocation failure: %s", e.Detail) }

// VerifierRejected reports a structural verification failure. Kind names
// one of the eight rejection reasons in spec.md §4.D.
type VerifierRejected struct {
	Kind string
	PC   uint64
}

func (e *VerifierRejected) Error() string {
	return fmt.Sprintf("verifier rejected program at pc %d: %s", e.PC, e.Kind)
}

// DivideByZero reports a division or modulo by a runtime-zero divisor.
type DivideByZero struct {
	PC uint64
}

func (e *DivideByZero) Error() string { return fmt.Sprintf("divide by zero at pc %d", e.PC) }

// DivideOverflow reports signed INT_MIN / -1.
type DivideOverflow struct {
	PC uint64
}

func (e *DivideOverflow) Error() string { return fmt.Sprintf("divide overflow at pc %d", e.PC) }

// InvalidInstruction reports a malformed instruction encoding discovered
// at runtime (the verifier should normally catch these first).
type InvalidInstruction struct {
	PC uint64
}

func (e *InvalidInstruction) Error() string { return fmt.Sprintf("invalid instruction at pc %d", e.PC) }

// UnsupportedInstruction reports an opcode, or a call target, this VM
// cannot execute.
type UnsupportedInstruction struct {
	PC uint64
}

func (e *UnsupportedInstruction) Error() string {
	return fmt.Sprintf("unsupported instruction at pc %d", e.PC)
}

// AccessViolation reports a load or store the MMU refused. Re-exported
// here (rather than requiring callers to import memmap) because it is
// part of the core's public error contract per spec.md §7.
type AccessViolation struct {
	PC         uint64
	Access     string // "load" or "store"
	VMAddr     uint64
	Len        uint64
	RegionName string
}

func (e *AccessViolation) Error() string {
	return fmt.Sprintf("access violation at pc %d: %s of %d byte(s) at 0x%x (region %q)",
		e.PC, e.Access, e.Len, e.VMAddr, e.RegionName)
}

// CallDepthExceeded reports a call that would push the frame stack past
// its configured limit.
type CallDepthExceeded struct {
	PC    uint64
	Limit int
}

func (e *CallDepthExceeded) Error() string {
	return fmt.Sprintf("call depth exceeded %d at pc %d", e.Limit, e.PC)
}

// CallOutsideTextSegment reports a call-register whose target address
// does not land inside the program's text segment.
type CallOutsideTextSegment struct {
	PC     uint64
	Target uint64
}

func (e *CallOutsideTextSegment) Error() string {
	return fmt.Sprintf("call at pc %d targets 0x%x, outside the text segment", e.PC, e.Target)
}

// ExceededMaxInstructions reports that the instruction meter ran out.
type ExceededMaxInstructions struct {
	PC uint64
}

func (e *ExceededMaxInstructions) Error() string {
	return fmt.Sprintf("exceeded max instructions at pc %d", e.PC)
}

// ExecutionOverrun reports that the text segment ended without hitting an
// exit instruction.
type ExecutionOverrun struct {
	PC uint64
}

func (e *ExecutionOverrun) Error() string {
	return fmt.Sprintf("execution ran past the end of text at pc %d without exiting", e.PC)
}

// SyscallException wraps a host-upcall error with the pc of its call
// site, per spec.md §6's host-upcall ABI.
type SyscallException struct {
	PC    uint64
	Inner error
}

func (e *SyscallException) Error() string {
	return fmt.Sprintf("syscall exception at pc %d: %v", e.PC, e.Inner)
}

func (e *SyscallException) Unwrap() error { return e.Inner }
