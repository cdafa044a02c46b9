//go:build !unix

package jit

import (
	"fmt"
	"unsafe"
)

// Tape is a zeroed cell array. Without mmap there are no guard pages.
type Tape struct {
	cells []byte
}

func NewTape(size int) (*Tape, error) {
	if size <= 0 {
		return nil, fmt.Errorf("tape size must be positive, got %d", size)
	}
	return &Tape{cells: make([]byte, size)}, nil
}

func (t *Tape) Base() uintptr {
	return uintptr(unsafe.Pointer(&t.cells[0]))
}

func (t *Tape) Cells() []byte { return t.cells }

func (t *Tape) Len() int { return len(t.cells) }

func (t *Tape) Close() error {
	t.cells = nil
	return nil
}
