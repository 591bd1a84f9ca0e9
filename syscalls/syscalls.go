// Package syscalls implements a demonstration set of host upcalls, the
// Go equivalent of original_source/src/syscalls.rs's built-in syscall
// library: a handful of functions a bytecode program can reach through
// the call ABI (spec.md §6), registered by symbol-hash the same way a
// loaded program's own functions are.
//
// Every upcall has the shape interp.HostUpcall: five uint64 arguments
// (r1..r5 at the call site), the live memory map for translating any
// guest pointers among them, and a single uint64 result.
package syscalls

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/xyproto/sbpfvm/interp"
	"github.com/xyproto/sbpfvm/isa"
	"github.com/xyproto/sbpfvm/memmap"
)

// Name-to-hash constants, computed the same way the loader hashes a
// call-immediate's target symbol (isa.HashSymbolName), so a registry
// built from Registry() lines up with whatever hash a relocated call
// instruction actually carries.
var (
	TimeGetNsHash  = isa.HashSymbolName([]byte("time_get_ns"))
	TracePrintfHash = isa.HashSymbolName([]byte("trace_printf"))
	GatherBytesHash = isa.HashSymbolName([]byte("gather_bytes"))
	MemFrobHash    = isa.HashSymbolName([]byte("mem_frob"))
	SqrtHash       = isa.HashSymbolName([]byte("sqrt_i"))
	StrCmpHash     = isa.HashSymbolName([]byte("strcmp"))
	RandHash       = isa.HashSymbolName([]byte("rand"))
)

// Registry returns the full demonstration set, keyed by symbol hash, for
// callers that want every upcall this package defines wired in at once.
// A caller that only wants a subset builds its own map literal instead —
// Registry exists for the common "give me everything" case (the ambient
// CLI's default, cmd/sbpfrun).
func Registry() map[uint32]interp.HostUpcall {
	return map[uint32]interp.HostUpcall{
		TimeGetNsHash:   TimeGetNs,
		TracePrintfHash: TracePrintf,
		GatherBytesHash: GatherBytes,
		MemFrobHash:     MemFrob,
		SqrtHash:        Sqrt,
		StrCmpHash:      StrCmp,
		RandHash:        Rand,
	}
}

// clockNanos is a variable so a deterministic clock can be swapped in for
// TimeGetNs; by default it reads the wall clock.
var clockNanos = defaultClockNanos

// TimeGetNs mirrors BpfTimeGetNs: all five arguments are unused, the
// result is the wall-clock time in nanoseconds since the Unix epoch.
func TimeGetNs(args [5]uint64, mm *memmap.MemoryMap, result *uint64) error {
	*result = clockNanos()
	return nil
}

// TracePrintf mirrors BpfTracePrintf: args[0] and args[1] are unused (the
// original reserves them for a format string the Rust version never
// actually consumes either), args[2..4] are printed as hex, and the
// result is the byte length of what Linux's bpf_trace_printk would have
// written.
func TracePrintf(args [5]uint64, mm *memmap.MemoryMap, result *uint64) error {
	a3, a4, a5 := args[2], args[3], args[4]
	line := fmt.Sprintf("trace_printf: 0x%x, 0x%x, 0x%x\n", a3, a4, a5)
	fmt.Print(line)
	*result = uint64(len(line))
	return nil
}

// GatherBytes mirrors BpfGatherBytes: ORs the five arguments shifted left
// by 32, 24, 16, 8 and 0 bits, so five single-byte arguments are packed
// into one uint64, most significant first. Arguments are not masked to
// their low byte.
func GatherBytes(args [5]uint64, mm *memmap.MemoryMap, result *uint64) error {
	*result = args[0]<<32 | args[1]<<24 | args[2]<<16 | args[3]<<8 | args[4]
	return nil
}

// MemFrob mirrors BpfMemFrob: XORs len bytes at the guest address vmAddr
// with 0b101010, in place. Calling it twice on the same range restores
// the original bytes.
func MemFrob(args [5]uint64, mm *memmap.MemoryMap, result *uint64) error {
	vmAddr, length := args[0], args[1]
	hostAddr, err := mm.Map(0, memmap.AccessStore, vmAddr, length)
	if err != nil {
		return err
	}
	buf := memmap.Bytes(hostAddr, length)
	for i := range buf {
		buf[i] ^= 0b101010
	}
	*result = 0
	return nil
}

// Sqrt mirrors BpfSqrtI: returns the integer square root of arg1, cast
// through float64 the same way the original does.
func Sqrt(args [5]uint64, mm *memmap.MemoryMap, result *uint64) error {
	*result = uint64(math.Sqrt(float64(args[0])))
	return nil
}

// StrCmp mirrors BpfStrCmp: a byte-at-a-time C strcmp over two
// NUL-terminated guest strings, returning the absolute difference of the
// first mismatching byte pair (0 if the strings are equal), or
// math.MaxUint64 if either pointer is null.
func StrCmp(args [5]uint64, mm *memmap.MemoryMap, result *uint64) error {
	aAddr, bAddr := args[0], args[1]
	if aAddr == 0 || bAddr == 0 {
		*result = math.MaxUint64
		return nil
	}
	for i := uint64(0); ; i++ {
		a, err := mm.Load(0, aAddr+i, 1)
		if err != nil {
			return err
		}
		b, err := mm.Load(0, bAddr+i, 1)
		if err != nil {
			return err
		}
		if a[0] != b[0] || a[0] == 0 || b[0] == 0 {
			if a[0] >= b[0] {
				*result = uint64(a[0] - b[0])
			} else {
				*result = uint64(b[0] - a[0])
			}
			return nil
		}
	}
}

// Rand mirrors BpfRand: a uniform random value in [min, max] when
// min < max, or an unconstrained random uint64 otherwise. Uses
// math/rand rather than libc's rand()/srand() pair the original calls
// through cgo, since this module has no cgo dependency to seed.
func Rand(args [5]uint64, mm *memmap.MemoryMap, result *uint64) error {
	min, max := args[0], args[1]
	n := rand.Uint64()
	if min < max {
		n = min + n%(max+1-min)
	}
	*result = n
	return nil
}
