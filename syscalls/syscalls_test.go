package syscalls

import (
	"testing"

	"github.com/xyproto/sbpfvm/memmap"
)

func TestGatherBytes(t *testing.T) {
	var result uint64
	args := [5]uint64{0x11, 0x22, 0x33, 0x44, 0x55}
	if err := GatherBytes(args, nil, &result); err != nil {
		t.Fatalf("GatherBytes: %v", err)
	}
	if want := uint64(0x1122334455); result != want {
		t.Errorf("got 0x%x, want 0x%x", result, want)
	}
}

func TestSqrt(t *testing.T) {
	var result uint64
	if err := Sqrt([5]uint64{9, 0, 0, 0, 0}, nil, &result); err != nil {
		t.Fatalf("Sqrt: %v", err)
	}
	if result != 3 {
		t.Errorf("got %d, want 3", result)
	}
}

func TestRandBounded(t *testing.T) {
	var result uint64
	for i := 0; i < 100; i++ {
		if err := Rand([5]uint64{3, 6, 0, 0, 0}, nil, &result); err != nil {
			t.Fatalf("Rand: %v", err)
		}
		if result < 3 || result > 6 {
			t.Fatalf("got %d, want in [3,6]", result)
		}
	}
}

func TestMemFrobIsInvolution(t *testing.T) {
	buf := []byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x11, 0x22, 0x33}
	mm, err := memmap.New([]memmap.Region{
		{Name: "buf", HostBase: memmap.HostBaseFor(buf), VMBase: 0x1000, Length: uint64(len(buf)), Writable: true},
	})
	if err != nil {
		t.Fatalf("memmap.New: %v", err)
	}

	var result uint64
	if err := MemFrob([5]uint64{0x1000, uint64(len(buf)), 0, 0, 0}, mm, &result); err != nil {
		t.Fatalf("MemFrob: %v", err)
	}
	want := []byte{0x2a, 0x2a, 0x2a, 0x2a, 0x2a, 0x3b, 0x08, 0x19}
	for i := range want {
		if buf[i] != want[i] {
			t.Fatalf("byte %d: got 0x%02x, want 0x%02x", i, buf[i], want[i])
		}
	}

	if err := MemFrob([5]uint64{0x1000, uint64(len(buf)), 0, 0, 0}, mm, &result); err != nil {
		t.Fatalf("MemFrob (second pass): %v", err)
	}
	orig := []byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x11, 0x22, 0x33}
	for i := range orig {
		if buf[i] != orig[i] {
			t.Fatalf("byte %d after second frob: got 0x%02x, want 0x%02x", i, buf[i], orig[i])
		}
	}
}

func TestStrCmp(t *testing.T) {
	foo := append([]byte("This is a string."), 0)
	bar := append([]byte("This is another sting."), 0)
	mm, err := memmap.New([]memmap.Region{
		{Name: "foo", HostBase: memmap.HostBaseFor(foo), VMBase: 0x1000, Length: uint64(len(foo))},
		{Name: "bar", HostBase: memmap.HostBaseFor(bar), VMBase: 0x2000, Length: uint64(len(bar))},
	})
	if err != nil {
		t.Fatalf("memmap.New: %v", err)
	}

	var result uint64
	if err := StrCmp([5]uint64{0x1000, 0x1000, 0, 0, 0}, mm, &result); err != nil {
		t.Fatalf("StrCmp: %v", err)
	}
	if result != 0 {
		t.Errorf("identical strings: got %d, want 0", result)
	}

	if err := StrCmp([5]uint64{0x1000, 0x2000, 0, 0, 0}, mm, &result); err != nil {
		t.Fatalf("StrCmp: %v", err)
	}
	if result == 0 {
		t.Errorf("differing strings: got 0, want nonzero")
	}
}

func TestRegistryKeysMatchHashes(t *testing.T) {
	reg := Registry()
	for _, hash := range []uint32{TimeGetNsHash, TracePrintfHash, GatherBytesHash, MemFrobHash, SqrtHash, StrCmpHash, RandHash} {
		if _, ok := reg[hash]; !ok {
			t.Errorf("Registry missing entry for hash 0x%x", hash)
		}
	}
	if len(reg) != 7 {
		t.Errorf("got %d registry entries, want 7", len(reg))
	}
}
