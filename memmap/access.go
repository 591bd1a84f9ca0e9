package memmap

import "unsafe"

// Bytes returns a slice viewing length bytes of host memory starting at
// hostAddr, as returned by Map. Used by the interpreter (and by host
// upcalls) to turn a translated address back into a Go byte slice without
// copying.
func Bytes(hostAddr uint64, length uint64) []byte {
	if length == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(uintptr(hostAddr))), int(length))
}

// Load translates vmAddr and returns a read-only view of length bytes.
func (m *MemoryMap) Load(pc uint64, vmAddr, length uint64) ([]byte, error) {
	hostAddr, err := m.Map(pc, AccessLoad, vmAddr, length)
	if err != nil {
		return nil, err
	}
	return Bytes(hostAddr, length), nil
}

// Store translates vmAddr and copies data into the mapped host memory.
func (m *MemoryMap) Store(pc uint64, vmAddr uint64, data []byte) error {
	hostAddr, err := m.Map(pc, AccessStore, vmAddr, uint64(len(data)))
	if err != nil {
		return err
	}
	copy(Bytes(hostAddr, uint64(len(data))), data)
	return nil
}

// HostBaseFor exposes a []byte's address as a uintptr suitable for
// Region.HostBase, so callers building a MemoryMap over their own stack,
// heap and input buffers don't need to reach for unsafe themselves.
func HostBaseFor(b []byte) uintptr {
	if len(b) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&b[0]))
}
