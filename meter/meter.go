// Package meter implements the instruction budget and the per-instruction
// trace log shared by the interpreter and the JIT. Both execution
// strategies must leave a Meter in the same final state and, when tracing
// is enabled, must produce byte-identical trace logs (see spec.md §8.1).
package meter

import "fmt"

// ExceededMaxInstructions is returned by Consume when the budget would go
// negative.
type ExceededMaxInstructions struct {
	PC uint64
}

func (e *ExceededMaxInstructions) Error() string {
	return fmt.Sprintf("exceeded max instructions at pc %d", e.PC)
}

// Meter holds a decrementing instruction budget.
type Meter struct {
	remaining uint64
	enabled   bool
}

// New creates a meter with the given initial budget. If enabled is false,
// Consume never fails and Remaining always reports the initial budget
// untouched (spec.md §6: "when false, branches do not update meter").
func New(budget uint64, enabled bool) *Meter {
	return &Meter{remaining: budget, enabled: enabled}
}

// Consume decrements the budget by n, returning ExceededMaxInstructions
// (tagged with pc) if n exceeds the remaining budget. A disabled meter
// never errors and never decrements.
func (m *Meter) Consume(pc uint64, n uint64) error {
	if !m.enabled {
		return nil
	}
	if n > m.remaining {
		return &ExceededMaxInstructions{PC: pc}
	}
	m.remaining -= n
	return nil
}

// Remaining returns the current budget.
func (m *Meter) Remaining() uint64 {
	return m.remaining
}

// Enabled reports whether metering is active.
func (m *Meter) Enabled() bool {
	return m.enabled
}

// SetRemaining forcibly sets the remaining budget. Used by the JIT's
// prologue/epilogue, which snapshots and restores the meter's backing
// value directly rather than calling Consume per instruction (see
// spec.md §4.H's "instruction-meter integral").
func (m *Meter) SetRemaining(v uint64) {
	m.remaining = v
}
