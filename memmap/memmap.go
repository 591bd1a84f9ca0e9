// Package memmap implements the software MMU: an ordered table of memory
// regions mapping guest virtual addresses to host pointers with
// per-region permission checks. It sits on the hot path of every bytecode
// load and store, so region lookup is kept allocation-free.
//
// The ordered-small-set lookup shape (linear scan below a threshold,
// binary search above it) is grounded on the teacher's
// register_allocator.go, which picks among a small number of live
// intervals/free registers the same way: linear when the set is tiny,
// sorted lookup once it grows.
package memmap

import (
	"fmt"
	"sort"
)

// Access distinguishes loads from stores for permission checking and for
// error reporting.
type Access int

const (
	AccessLoad Access = iota
	AccessStore
)

func (a Access) String() string {
	if a == AccessStore {
		return "store"
	}
	return "load"
}

// binarySearchThreshold is the region count at or above which Map switches from
// a linear scan to sort.Search, per spec.md §4.C ("linear (or binary, for
// N >= 4)").
const binarySearchThreshold = 4

// Region describes one guest-addressable window of host memory.
type Region struct {
	Name     string
	HostBase uintptr
	VMBase   uint64
	Length   uint64
	Writable bool
}

func (r Region) contains(vmAddr, length uint64) bool {
	if vmAddr < r.VMBase {
		return false
	}
	end, ok := addNoOverflow(vmAddr, length)
	if !ok {
		return false
	}
	regionEnd, ok := addNoOverflow(r.VMBase, r.Length)
	if !ok {
		return false
	}
	return end <= regionEnd
}

func addNoOverflow(a, b uint64) (uint64, bool) {
	sum := a + b
	if sum < a {
		return 0, false
	}
	return sum, true
}

// AccessViolation reports a load or store that could not be mapped to any
// writable (for stores) or any (for loads) region.
type AccessViolation struct {
	PC         uint64
	AccessKind Access
	VMAddr     uint64
	Len        uint64
	RegionName string // best-effort: the region containing VMAddr, or "" if none does
}

func (e *AccessViolation) Error() string {
	if e.RegionName != "" {
		return fmt.Sprintf("access violation at pc %d: %s of %d byte(s) at 0x%x (region %q)",
			e.PC, e.AccessKind, e.Len, e.VMAddr, e.RegionName)
	}
	return fmt.Sprintf("access violation at pc %d: %s of %d byte(s) at 0x%x", e.PC, e.AccessKind, e.Len, e.VMAddr)
}

// MemoryMap holds the region table for a single VM invocation. The table
// is immutable once built: regions are supplied up front by the caller
// (stack, heap, input, program sections) and never added to or removed
// from during a run.
type MemoryMap struct {
	regions []Region // kept sorted by VMBase once len(regions) >= binarySearchThreshold
	sorted  bool
}

// New builds a memory map from the given regions. Regions must not
// overlap in virtual address space; New returns an error if they do.
func New(regions []Region) (*MemoryMap, error) {
	cp := make([]Region, len(regions))
	copy(cp, regions)
	sort.Slice(cp, func(i, j int) bool { return cp[i].VMBase < cp[j].VMBase })
	for i := 1; i < len(cp); i++ {
		prevEnd, ok := addNoOverflow(cp[i-1].VMBase, cp[i-1].Length)
		if !ok || prevEnd > cp[i].VMBase {
			return nil, fmt.Errorf("memmap: region %q overlaps region %q", cp[i-1].Name, cp[i].Name)
		}
	}
	return &MemoryMap{regions: cp, sorted: true}, nil
}

// Map translates a guest virtual address range to a host address, or
// returns an *AccessViolation if no region covers it under the requested
// access mode.
func (m *MemoryMap) Map(pc uint64, access Access, vmAddr, length uint64) (uint64, error) {
	r, ok := m.find(vmAddr, length)
	if !ok {
		return 0, &AccessViolation{PC: pc, AccessKind: access, VMAddr: vmAddr, Len: length, RegionName: m.nearestName(vmAddr)}
	}
	if access == AccessStore && !r.Writable {
		return 0, &AccessViolation{PC: pc, AccessKind: access, VMAddr: vmAddr, Len: length, RegionName: r.Name}
	}
	return uint64(r.HostBase) + (vmAddr - r.VMBase), nil
}

func (m *MemoryMap) find(vmAddr, length uint64) (Region, bool) {
	if len(m.regions) < binarySearchThreshold {
		for _, r := range m.regions {
			if r.contains(vmAddr, length) {
				return r, true
			}
		}
		return Region{}, false
	}
	i := sort.Search(len(m.regions), func(i int) bool { return m.regions[i].VMBase+m.regions[i].Length > vmAddr })
	if i < len(m.regions) && m.regions[i].contains(vmAddr, length) {
		return m.regions[i], true
	}
	return Region{}, false
}

// nearestName returns the name of the region containing vmAddr, or "" if
// none does, purely to make AccessViolation messages more actionable; it
// has no effect on whether the access is permitted.
func (m *MemoryMap) nearestName(vmAddr uint64) string {
	for _, r := range m.regions {
		if vmAddr >= r.VMBase && vmAddr < r.VMBase+r.Length {
			return r.Name
		}
	}
	return ""
}

// Regions returns the region table, sorted by VMBase.
func (m *MemoryMap) Regions() []Region {
	return m.regions
}
