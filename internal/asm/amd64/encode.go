package amd64

import (
	"errors"
	"fmt"

	"github.com/tinyrange/bfjit/internal/asm"
)

// SysWrite is the write(2) system call number on linux/amd64.
const SysWrite = 1

// SysExit is the exit(2) system call number on linux/amd64.
const SysExit = 60

// ErrUnsupportedHost is returned by Prepare when generated code cannot run on
// the current GOOS/GOARCH.
var ErrUnsupportedHost = errors.New("native execution requires linux/amd64")

type jumpKind int

const (
	jumpEqual jumpKind = iota
	jumpNotEqual
)

func Push(buf *asm.Buffer, r Register) {
	info, err := regInfo(r)
	if err != nil {
		buf.Fail(err)
		return
	}
	if p := (rexState{b: info.high}).prefix(); p != 0 {
		buf.EmitByte(p)
	}
	buf.EmitByte(0x50 | info.code)
}

func Pop(buf *asm.Buffer, r Register) {
	info, err := regInfo(r)
	if err != nil {
		buf.Fail(err)
		return
	}
	if p := (rexState{b: info.high}).prefix(); p != 0 {
		buf.EmitByte(p)
	}
	buf.EmitByte(0x58 | info.code)
}

// unaryReg emits FF /sub on a 64-bit register.
func unaryReg(buf *asm.Buffer, r Register, sub byte) {
	info, err := regInfo(r)
	if err != nil {
		buf.Fail(err)
		return
	}
	rex := rexState{w: true, b: info.high}
	buf.EmitBytes(rex.prefix(), 0xFF, 0xC0|sub<<3|info.code)
}

// IncReg emits inc r64.
func IncReg(buf *asm.Buffer, r Register) { unaryReg(buf, r, 0) }

// DecReg emits dec r64.
func DecReg(buf *asm.Buffer, r Register) { unaryReg(buf, r, 1) }

func emitMemOp(buf *asm.Buffer, opcode byte, sub byte, base Register, imm []byte) {
	enc, err := encodeBaseOperand(base)
	if err != nil {
		buf.Fail(err)
		return
	}
	if p := enc.rex.prefix(); p != 0 {
		buf.EmitByte(p)
	}
	buf.EmitBytes(opcode, enc.modrm|sub<<3)
	buf.EmitBytes(enc.sib...)
	buf.EmitBytes(enc.disp...)
	buf.EmitBytes(imm...)
}

// IncByte emits inc byte [base].
func IncByte(buf *asm.Buffer, base Register) { emitMemOp(buf, 0xFE, 0, base, nil) }

// DecByte emits dec byte [base].
func DecByte(buf *asm.Buffer, base Register) { emitMemOp(buf, 0xFE, 1, base, nil) }

// CmpByteImm emits cmp byte [base], imm8.
func CmpByteImm(buf *asm.Buffer, base Register, imm byte) {
	emitMemOp(buf, 0x80, 7, base, []byte{imm})
}

// MovReg emits mov dst, src on 64-bit registers.
func MovReg(buf *asm.Buffer, dst, src Register) {
	dstInfo, err := regInfo(dst)
	if err != nil {
		buf.Fail(err)
		return
	}
	srcInfo, err := regInfo(src)
	if err != nil {
		buf.Fail(err)
		return
	}
	rex := rexState{w: true, r: srcInfo.high, b: dstInfo.high}
	buf.EmitBytes(rex.prefix(), 0x89, 0xC0|srcInfo.code<<3|dstInfo.code)
}

// MovImm32 emits mov r32, imm32, which zero-extends into the full register.
func MovImm32(buf *asm.Buffer, r Register, value uint32) {
	info, err := regInfo(r)
	if err != nil {
		buf.Fail(err)
		return
	}
	if p := (rexState{b: info.high}).prefix(); p != 0 {
		buf.EmitByte(p)
	}
	buf.EmitByte(0xB8 + info.code)
	buf.EmitWord32(value)
}

// XorReg32 emits xor r32, r32 on the same register.
func XorReg32(buf *asm.Buffer, r Register) {
	info, err := regInfo(r)
	if err != nil {
		buf.Fail(err)
		return
	}
	if p := (rexState{r: info.high, b: info.high}).prefix(); p != 0 {
		buf.EmitByte(p)
	}
	buf.EmitBytes(0x31, 0xC0|info.code<<3|info.code)
}

// LeaRelative emits lea r64, [rip + rel32] with the displacement taken from
// target.
func LeaRelative(buf *asm.Buffer, r Register, target *asm.Label) {
	info, err := regInfo(r)
	if err != nil {
		buf.Fail(err)
		return
	}
	rex := rexState{w: true, r: info.high}
	buf.EmitBytes(rex.prefix(), 0x8D, 0x05|info.code<<3)
	buf.EmitRel32(target)
}

// Call emits call rel32.
func Call(buf *asm.Buffer, target *asm.Label) {
	buf.EmitByte(0xE8)
	buf.EmitRel32(target)
}

func Syscall(buf *asm.Buffer) { buf.EmitBytes(0x0F, 0x05) }

func Ret(buf *asm.Buffer) { buf.EmitByte(0xC3) }

func emitJump(buf *asm.Buffer, kind jumpKind, target *asm.Label) {
	switch kind {
	case jumpEqual:
		buf.EmitBytes(0x0F, 0x84)
	case jumpNotEqual:
		buf.EmitBytes(0x0F, 0x85)
	default:
		buf.Fail(fmt.Errorf("unsupported jump kind %d", kind))
		return
	}
	buf.EmitRel32(target)
}

// JumpIfEqual emits je rel32. An unbound target leaves a zero placeholder
// that is patched when the label is bound.
func JumpIfEqual(buf *asm.Buffer, target *asm.Label) { emitJump(buf, jumpEqual, target) }

// JumpIfNotEqual emits jne rel32.
func JumpIfNotEqual(buf *asm.Buffer, target *asm.Label) { emitJump(buf, jumpNotEqual, target) }
