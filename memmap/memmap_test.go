package memmap

import (
	"errors"
	"testing"
)

func TestLoadStoreRoundTrip(t *testing.T) {
	buf := make([]byte, 16)
	mm, err := New([]Region{
		{Name: "heap", HostBase: HostBaseFor(buf), VMBase: 0x300000000, Length: uint64(len(buf)), Writable: true},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := mm.Store(0, 0x300000000, []byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("Store: %v", err)
	}
	got, err := mm.Load(0, 0x300000000, 4)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := []byte{1, 2, 3, 4}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("byte %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestStoreToReadOnlyRegionFails(t *testing.T) {
	buf := make([]byte, 8)
	mm, err := New([]Region{
		{Name: "rodata", HostBase: HostBaseFor(buf), VMBase: 0x100000000, Length: uint64(len(buf)), Writable: false},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	err = mm.Store(42, 0x100000000, []byte{1})
	if err == nil {
		t.Fatal("expected an access violation storing to a read-only region")
	}
	var av *AccessViolation
	if !errors.As(err, &av) {
		t.Fatalf("expected *AccessViolation, got %T: %v", err, err)
	}
	if av.PC != 42 || av.AccessKind != AccessStore || av.RegionName != "rodata" {
		t.Errorf("unexpected violation fields: %+v", av)
	}
}

func TestLoadOutOfRangeFails(t *testing.T) {
	buf := make([]byte, 8)
	mm, err := New([]Region{
		{Name: "heap", HostBase: HostBaseFor(buf), VMBase: 0x300000000, Length: uint64(len(buf)), Writable: true},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := mm.Load(0, 0x300000000, 100); err == nil {
		t.Fatal("expected an access violation reading past the end of the region")
	}
	if _, err := mm.Load(0, 0x999999999, 1); err == nil {
		t.Fatal("expected an access violation reading an unmapped address")
	}
}

func TestNewRejectsOverlappingRegions(t *testing.T) {
	buf := make([]byte, 16)
	_, err := New([]Region{
		{Name: "a", HostBase: HostBaseFor(buf), VMBase: 0x1000, Length: 16},
		{Name: "b", HostBase: HostBaseFor(buf), VMBase: 0x1008, Length: 16},
	})
	if err == nil {
		t.Fatal("expected New to reject overlapping regions")
	}
}

func TestFindAboveBinarySearchThreshold(t *testing.T) {
	buf := make([]byte, 8)
	regions := make([]Region, 0, binarySearchThreshold+2)
	for i := 0; i < binarySearchThreshold+2; i++ {
		regions = append(regions, Region{
			Name:     "r",
			HostBase: HostBaseFor(buf),
			VMBase:   uint64(i * 0x1000),
			Length:   8,
			Writable: true,
		})
	}
	mm, err := New(regions)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if len(mm.regions) < binarySearchThreshold {
		t.Fatalf("test setup: need at least %d regions, got %d", binarySearchThreshold, len(mm.regions))
	}

	last := uint64((binarySearchThreshold + 1) * 0x1000)
	if _, err := mm.Map(0, AccessLoad, last, 4); err != nil {
		t.Fatalf("Map of last region via binary search: %v", err)
	}
	if _, err := mm.Map(0, AccessLoad, last+4096, 4); err == nil {
		t.Fatal("expected an access violation past every region")
	}
}

