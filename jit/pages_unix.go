//go:build linux || darwin
// +build linux darwin

package jit

import "golang.org/x/sys/unix"

// sealPages flips a freshly-written code page from RW to RX, the W^X
// transition spec.md §4.H requires before any guest call can reach it.
// Grounded on the teacher's own use of golang.org/x/sys/unix for raw
// syscalls in filewatcher_unix.go/filewatcher_darwin.go; mmap/mprotect
// are the same family of "talk to the kernel directly" syscalls those
// files wrap for inotify/kqueue.
func sealPages(mem []byte) error {
	if len(mem) == 0 {
		return nil
	}
	return unix.Mprotect(mem, unix.PROT_READ|unix.PROT_EXEC)
}

// allocExecutable maps a zeroed, page-aligned, initially-RW region of at
// least size bytes, suitable for writing native code into before sealing
// it with sealPages.
func allocExecutable(size int) ([]byte, error) {
	if size == 0 {
		size = 1
	}
	return unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
}

// freeExecutable releases a region obtained from allocExecutable. The
// JIT calls this from Executable.Release rather than waiting on a
// finalizer, per spec.md §5's explicit-release requirement.
func freeExecutable(mem []byte) error {
	if len(mem) == 0 {
		return nil
	}
	return unix.Munmap(mem)
}
