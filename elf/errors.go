package elf

import (
	"bytes"
	"fmt"
	"io"
)

// InvalidElf, RelocationFailure and UnresolvedSymbol mirror the shape of
// the root package's InvalidElf/RelocationFailure/UnresolvedSymbol error
// types (errors.go). This package cannot import the root sbpfvm package —
// the root package imports elf to call Load — so Load returns these local
// equivalents; executable.go translates them into the public error types
// at the loader/executable boundary via errors.As.
type InvalidElf struct {
	Detail string
}

func (e *InvalidElf) Error() string { return fmt.Sprintf("invalid ELF: %s", e.Detail) }

type RelocationFailure struct {
	Detail string
}

func (e *RelocationFailure) Error() string { return fmt.Sprintf("relocation failure: %s", e.Detail) }

type UnresolvedSymbol struct {
	Name       string
	Code       uint32
	FileOffset uint64
}

func (e *UnresolvedSymbol) Error() string {
	return fmt.Sprintf("unresolved symbol %q (hash 0x%x) at file offset %d", e.Name, e.Code, e.FileOffset)
}

// bytesReaderAt adapts a byte slice to io.ReaderAt, the shape debug/elf's
// NewFile wants, without copying.
func bytesReaderAt(b []byte) io.ReaderAt {
	return bytes.NewReader(b)
}
