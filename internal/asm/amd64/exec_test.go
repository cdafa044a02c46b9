//go:build linux && amd64

package amd64

import (
	"testing"
	"unsafe"

	"github.com/tinyrange/bfjit/internal/asm"
	"golang.org/x/sys/unix"
)

func TestSyscallNumbers(t *testing.T) {
	if SysWrite != unix.SYS_WRITE {
		t.Fatalf("SysWrite=%d, want %d", SysWrite, unix.SYS_WRITE)
	}
	if SysExit != unix.SYS_EXIT {
		t.Fatalf("SysExit=%d, want %d", SysExit, unix.SYS_EXIT)
	}
}

func TestPrepareRunsCode(t *testing.T) {
	buf := asm.NewBuffer(64)
	Push(buf, RBX)
	MovReg(buf, RBX, RDI)
	IncByte(buf, RBX)
	IncReg(buf, RBX)
	IncByte(buf, RBX)
	IncByte(buf, RBX)
	Pop(buf, RBX)
	Ret(buf)
	if err := buf.Err(); err != nil {
		t.Fatalf("emit failed: %v", err)
	}

	fn, release, err := Prepare(buf.Bytes())
	if err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	defer release()

	if fn.Entry() == 0 {
		t.Fatalf("Entry() returned zero")
	}
	if got, want := fn.Size(), buf.Len(); got != want {
		t.Fatalf("Size()=%d, want %d", got, want)
	}

	cells := make([]byte, 4)
	fn.Call(uintptr(unsafe.Pointer(&cells[0])))

	if got, want := cells[0], byte(1); got != want {
		t.Fatalf("cells[0]=%d, want %d", got, want)
	}
	if got, want := cells[1], byte(2); got != want {
		t.Fatalf("cells[1]=%d, want %d", got, want)
	}
}

func TestPrepareRejectsEmptyCode(t *testing.T) {
	if _, _, err := Prepare(nil); err == nil {
		t.Fatalf("Prepare accepted empty code")
	}
}

func TestZeroFuncPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("Call on zero Func did not panic")
		}
	}()
	var fn Func
	fn.Call(0)
}
