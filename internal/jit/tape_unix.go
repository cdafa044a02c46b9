//go:build unix

package jit

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Tape is a zeroed cell array mapped outside the Go heap. The cells are
// placed so that their last byte abuts a PROT_NONE guard page, and another
// guard page precedes the mapping, so running off either end faults.
type Tape struct {
	mem   []byte
	cells []byte
}

func NewTape(size int) (*Tape, error) {
	if size <= 0 {
		return nil, fmt.Errorf("tape size must be positive, got %d", size)
	}
	pageSize := unix.Getpagesize()
	cellPages := ((size + pageSize - 1) / pageSize) * pageSize
	total := cellPages + 2*pageSize

	mem, err := unix.Mmap(-1, 0, total, unix.PROT_NONE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("mmap tape: %w", err)
	}
	usable := mem[pageSize : pageSize+cellPages]
	if err := unix.Mprotect(usable, unix.PROT_READ|unix.PROT_WRITE); err != nil {
		_ = unix.Munmap(mem)
		return nil, fmt.Errorf("mprotect tape: %w", err)
	}

	return &Tape{
		mem:   mem,
		cells: usable[cellPages-size:],
	}, nil
}

// Base returns the address of cell zero.
func (t *Tape) Base() uintptr {
	return uintptr(unsafe.Pointer(&t.cells[0]))
}

// Cells exposes the tape contents. The slice is invalid after Close.
func (t *Tape) Cells() []byte { return t.cells }

func (t *Tape) Len() int { return len(t.cells) }

func (t *Tape) Close() error {
	if t.mem == nil {
		return nil
	}
	err := unix.Munmap(t.mem)
	t.mem, t.cells = nil, nil
	if err != nil {
		return fmt.Errorf("munmap tape: %w", err)
	}
	return nil
}
