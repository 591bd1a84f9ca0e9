package jit

import "fmt"

// Mirrors of the root package's error types, field for field — the same
// pattern elf/errors.go and interp/errors.go use so this package doesn't
// need to import the root sbpfvm package (which imports jit).

type DivideByZero struct{ PC uint64 }

func (e *DivideByZero) Error() string { return fmt.Sprintf("divide by zero at pc %d", e.PC) }

type DivideOverflow struct{ PC uint64 }

func (e *DivideOverflow) Error() string { return fmt.Sprintf("divide overflow at pc %d", e.PC) }

type InvalidInstruction struct{ PC uint64 }

func (e *InvalidInstruction) Error() string { return fmt.Sprintf("invalid instruction at pc %d", e.PC) }

type UnsupportedInstruction struct{ PC uint64 }

func (e *UnsupportedInstruction) Error() string {
	return fmt.Sprintf("unsupported instruction at pc %d", e.PC)
}

type CallDepthExceeded struct {
	PC    uint64
	Limit int
}

func (e *CallDepthExceeded) Error() string {
	return fmt.Sprintf("call depth exceeded %d at pc %d", e.Limit, e.PC)
}

type CallOutsideTextSegment struct {
	PC     uint64
	Target uint64
}

func (e *CallOutsideTextSegment) Error() string {
	return fmt.Sprintf("call at pc %d targets 0x%x, outside the text segment", e.PC, e.Target)
}

type ExecutionOverrun struct{ PC uint64 }

func (e *ExecutionOverrun) Error() string {
	return fmt.Sprintf("execution ran past the end of text at pc %d without exiting", e.PC)
}

type SyscallException struct {
	PC    uint64
	Inner error
}

func (e *SyscallException) Error() string {
	return fmt.Sprintf("syscall exception at pc %d: %v", e.PC, e.Inner)
}

func (e *SyscallException) Unwrap() error { return e.Inner }
