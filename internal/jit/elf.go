package jit

import (
	"fmt"

	"github.com/tinyrange/bfjit/internal/asm"
	"github.com/tinyrange/bfjit/internal/asm/amd64"
)

// StandaloneELF wraps the code in a static linux/amd64 executable. A small
// entry stub passes a zero-filled tape of tapeSize cells, placed right after
// the code, and exits with status 0 when the program returns.
func (c *Code) StandaloneELF(tapeSize int) ([]byte, error) {
	if tapeSize <= 0 {
		return nil, fmt.Errorf("tape size must be positive, got %d", tapeSize)
	}

	const stubSize = 64
	buf := asm.NewBuffer(len(c.code) + stubSize)
	body := asm.NewLabel("body")
	tape := asm.NewLabel("tape")

	amd64.LeaRelative(buf, amd64.RDI, tape)
	amd64.Call(buf, body)
	amd64.MovImm32(buf, amd64.RAX, amd64.SysExit)
	amd64.XorReg32(buf, amd64.RDI)
	amd64.Syscall(buf)

	buf.Bind(body)
	buf.EmitBytes(c.code...)
	for buf.Len()%16 != 0 {
		buf.EmitByte(0xCC)
	}
	buf.Bind(tape)

	if err := buf.Err(); err != nil {
		return nil, fmt.Errorf("emit entry stub: %w", err)
	}
	return amd64.StandaloneELF(buf.Bytes(), uint64(tapeSize))
}
