// Package nasm writes a program as NASM source for a static linux/amd64
// executable. The output links against libc for calloc:
//
//	nasm -f elf64 prog.asm && ld -o prog prog.o -lc --dynamic-linker /lib64/ld-linux-x86-64.so.2
package nasm

import (
	"bufio"
	"fmt"
	"io"

	"github.com/tinyrange/bfjit/internal/bf"
)

// DefaultTapeSize is the number of cells allocated by the program prologue.
const DefaultTapeSize = 1 << 20

// Options configures Emit.
type Options struct {
	// TapeSize is passed to calloc. Zero selects DefaultTapeSize.
	TapeSize int
}

// Emit writes NASM source for src to w. The cell pointer lives in rsi so the
// write and read system calls can use it as their buffer argument directly.
// Unbalanced brackets are reported before anything is written.
func Emit(w io.Writer, src []byte, opts Options) error {
	if opts.TapeSize <= 0 {
		opts.TapeSize = DefaultTapeSize
	}
	if _, err := bf.Match(src); err != nil {
		return err
	}

	e := &emitter{w: bufio.NewWriter(w)}
	e.prologue(opts.TapeSize)

	var stack []int
	next := 0
	for _, c := range src {
		switch bf.Op(c) {
		case bf.Right:
			e.ins("inc rsi")
		case bf.Left:
			e.ins("dec rsi")
		case bf.Inc:
			e.ins("inc byte [rsi]")
		case bf.Dec:
			e.ins("dec byte [rsi]")
		case bf.Out:
			e.ins("mov rax, 1")
			e.ins("mov rdi, 1")
			e.ins("mov rdx, 1")
			e.ins("syscall")
		case bf.In:
			e.ins("xor rax, rax")
			e.ins("xor rdi, rdi")
			e.ins("mov rdx, 1")
			e.ins("syscall")
		case bf.Open:
			id := next
			next++
			stack = append(stack, id)
			e.label("loop_start_%d", id)
			e.ins("cmp byte [rsi], 0")
			e.ins("je loop_end_%d", id)
		case bf.Close:
			id := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			e.ins("cmp byte [rsi], 0")
			e.ins("jne loop_start_%d", id)
			e.label("loop_end_%d", id)
		}
	}

	e.epilogue()
	if e.err != nil {
		return fmt.Errorf("write assembly: %w", e.err)
	}
	if err := e.w.Flush(); err != nil {
		return fmt.Errorf("write assembly: %w", err)
	}
	return nil
}

type emitter struct {
	w   *bufio.Writer
	err error
}

func (e *emitter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}

func (e *emitter) ins(format string, args ...any) {
	e.printf("\t"+format+"\n", args...)
}

func (e *emitter) label(format string, args ...any) {
	e.printf(format+":\n", args...)
}

func (e *emitter) prologue(tapeSize int) {
	e.printf("section .text\n")
	e.ins("global _start")
	e.printf("\n")
	e.label("_start")
	e.ins("mov rdi, %d", tapeSize)
	e.ins("mov rsi, 1")
	e.ins("extern calloc")
	e.ins("call calloc")
	e.ins("mov rsi, rax")
}

func (e *emitter) epilogue() {
	e.ins("mov rax, 60")
	e.ins("xor rdi, rdi")
	e.ins("syscall")
}
