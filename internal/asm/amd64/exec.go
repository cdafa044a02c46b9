//go:build linux && amd64

package amd64

import (
	"fmt"
	"unsafe"

	"github.com/ebitengine/purego"
	"golang.org/x/sys/unix"
)

// Func is a block of generated code mapped executable. It takes one pointer
// sized argument in RDI and returns nothing.
type Func struct {
	entry uintptr
	size  int
	call  func(arg uintptr)
}

// Call runs the code to completion on the current goroutine.
func (fn Func) Call(arg uintptr) {
	if fn.call == nil {
		panic("amd64.Func: call on zero value")
	}
	fn.call(arg)
}

// Entry returns the address of the first instruction.
func (fn Func) Entry() uintptr {
	return fn.entry
}

// Size returns the number of code bytes that were mapped.
func (fn Func) Size() int {
	return fn.size
}

// Prepare maps code into fresh anonymous memory, drops the write permission
// and returns a callable handle plus a release function that unmaps it. The
// caller must not use the Func after release.
func Prepare(code []byte) (Func, func(), error) {
	size := len(code)
	if size == 0 {
		return Func{}, nil, fmt.Errorf("empty code")
	}

	pageSize := unix.Getpagesize()
	allocSize := ((size + pageSize - 1) / pageSize) * pageSize

	mem, err := unix.Mmap(-1, 0, allocSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return Func{}, nil, fmt.Errorf("mmap code region: %w", err)
	}
	release := true
	defer func() {
		if release {
			_ = unix.Munmap(mem)
		}
	}()

	copy(mem, code)

	if err := unix.Mprotect(mem, unix.PROT_READ|unix.PROT_EXEC); err != nil {
		return Func{}, nil, fmt.Errorf("mprotect code region: %w", err)
	}

	base := uintptr(unsafe.Pointer(&mem[0]))

	fn := Func{entry: base, size: size}
	purego.RegisterFunc(&fn.call, base)

	release = false
	return fn, func() {
		_ = unix.Munmap(mem)
	}, nil
}
