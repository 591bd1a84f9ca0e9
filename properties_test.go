package sbpfvm

import (
	"testing"

	"github.com/xyproto/sbpfvm/interp"
	"github.com/xyproto/sbpfvm/isa"
	"github.com/xyproto/sbpfvm/memmap"
	"github.com/xyproto/sbpfvm/meter"
)

// The six quantified invariants are covered as follows:
//
//  1. Interpreter/JIT parity: not covered by a test in this tree — it
//     needs the JIT to actually run mmap'd native code, which this
//     module's test suite cannot exercise (see DESIGN.md).
//  2. MMU map permission: TestInvariantMMUStoreRequiresWritableRegion below.
//  3. Every call-immediate resolves or faults at load time when
//     reject_broken_elfs: verifier.TestStructuralRejectsUnresolvedCallTarget
//     and TestStructuralIgnoresUnresolvedCallWhenNotRejectingBrokenELFs.
//  4. Encode/decode round trip: isa.TestEncodeDecodeRoundTrip.
//  5. Meter monotonicity: TestInvariantMeterNeverIncreases below.
//  6. Frame discipline: TestInvariantCalleeSavedRegistersRestoredAcrossCall
//     below.

// TestInvariantMMUStoreRequiresWritableRegion checks invariant 2: a store
// only ever succeeds into a region marked writable, while a load succeeds
// against any region regardless of its writability.
func TestInvariantMMUStoreRequiresWritableRegion(t *testing.T) {
	rw := make([]byte, 8)
	ro := make([]byte, 8)
	mm, err := memmap.New([]memmap.Region{
		{Name: "rw", HostBase: memmap.HostBaseFor(rw), VMBase: 0x1000, Length: 8, Writable: true},
		{Name: "ro", HostBase: memmap.HostBaseFor(ro), VMBase: 0x2000, Length: 8, Writable: false},
	})
	if err != nil {
		t.Fatalf("memmap.New: %v", err)
	}

	if _, err := mm.Map(0, memmap.AccessStore, 0x1000, 4); err != nil {
		t.Errorf("store into a writable region: unexpected error: %v", err)
	}
	if _, err := mm.Map(0, memmap.AccessStore, 0x2000, 4); err == nil {
		t.Error("store into a read-only region: expected an error")
	}
	if _, err := mm.Map(0, memmap.AccessLoad, 0x1000, 4); err != nil {
		t.Errorf("load from a writable region: unexpected error: %v", err)
	}
	if _, err := mm.Map(0, memmap.AccessLoad, 0x2000, 4); err != nil {
		t.Errorf("load from a read-only region: unexpected error: %v", err)
	}
}

// TestInvariantMeterNeverIncreases checks invariant 5: Remaining() is
// non-increasing across any sequence of Consume calls.
func TestInvariantMeterNeverIncreases(t *testing.T) {
	met := meter.New(1000, true)
	last := met.Remaining()
	for pc := uint64(0); pc < 50; pc++ {
		n := pc%3 + 1 // vary the per-step cost, same as a wide-immediate load costing more than a plain ALU op would
		if err := met.Consume(pc, n); err != nil {
			t.Fatalf("Consume: %v", err)
		}
		got := met.Remaining()
		if got > last {
			t.Fatalf("Remaining() increased from %d to %d at pc %d", last, got, pc)
		}
		last = got
	}
}

// TestInvariantCalleeSavedRegistersRestoredAcrossCall checks invariant 6:
// r6..r9 at a matching exit equal their values at the call site, even
// though the callee is free to clobber them in between.
func TestInvariantCalleeSavedRegistersRestoredAcrossCall(t *testing.T) {
	hash := isa.HashSymbolName([]byte("clobber"))
	p := scenarioProgram(
		isa.Instruction{Op: isa.OpMovImm, Dst: 6, Imm: 100},
		isa.Instruction{Op: isa.OpMovImm, Dst: 7, Imm: 101},
		isa.Instruction{Op: isa.OpMovImm, Dst: 8, Imm: 102},
		isa.Instruction{Op: isa.OpMovImm, Dst: 9, Imm: 103},
		isa.Instruction{Op: isa.OpCall, Imm: int32(hash)},
		isa.Instruction{Op: isa.OpExit}, // index 5: caller's continuation, reached via the callee's exit below

		isa.Instruction{Op: isa.OpMovImm, Dst: 6, Imm: 999}, // index 6: callee clobbers every callee-saved register
		isa.Instruction{Op: isa.OpMovImm, Dst: 7, Imm: 998},
		isa.Instruction{Op: isa.OpMovImm, Dst: 8, Imm: 997},
		isa.Instruction{Op: isa.OpMovImm, Dst: 9, Imm: 996},
		isa.Instruction{Op: isa.OpMovImm, Dst: 0, Imm: 55},
		isa.Instruction{Op: isa.OpExit}, // pops the frame, restoring r6..r9 and jumping back to index 5
	)
	p.FunctionRegistry[hash] = 6

	mm, _ := memmap.New(nil)
	it := interp.New(p, mm, meter.New(1000, true), nil, nil, 64, 4096, false, isa.StackStart)

	result, err := it.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result != 55 {
		t.Fatalf("got result %d, want 55 (r0 is not callee-saved, so the callee's value survives)", result)
	}

	regs := it.Registers()
	want := [4]uint64{100, 101, 102, 103}
	for i, r := range want {
		if got := regs[isa.FirstCalleeSaved+i]; got != r {
			t.Errorf("r%d after return: got %d, want %d", isa.FirstCalleeSaved+i, got, r)
		}
	}
}
