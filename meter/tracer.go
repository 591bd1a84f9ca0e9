package meter

// TraceEntry is one snapshot of VM state taken immediately before an
// instruction executes: the program counter and the full register file
// (r0..r10, the last slot being the frame pointer — which for most of
// execution duplicates r10, but is recorded separately so a trace
// comparison doesn't depend on that coincidence holding in future ISA
// revisions).
type TraceEntry struct {
	PC    uint64
	Regs  [12]uint64
}

// Tracer accumulates an ordered trace log. A nil *Tracer is valid and
// Record is a no-op on it, so callers can pass a nil tracer when
// EnableInstructionTracing is false without branching at every call site.
type Tracer struct {
	entries []TraceEntry
}

// NewTracer returns an empty, enabled tracer.
func NewTracer() *Tracer {
	return &Tracer{}
}

// Record appends a snapshot. Safe to call on a nil *Tracer.
func (t *Tracer) Record(pc uint64, regs [12]uint64) {
	if t == nil {
		return
	}
	t.entries = append(t.entries, TraceEntry{PC: pc, Regs: regs})
}

// Entries returns the recorded trace in execution order.
func (t *Tracer) Entries() []TraceEntry {
	if t == nil {
		return nil
	}
	return t.entries
}

// Equal reports whether two traces are identical, entry for entry. Used
// by the interpreter/JIT parity tests (spec.md §8.1).
func (t *Tracer) Equal(other *Tracer) bool {
	a, b := t.Entries(), other.Entries()
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].PC != b[i].PC || a[i].Regs != b[i].Regs {
			return false
		}
	}
	return true
}
