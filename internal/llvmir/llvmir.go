// Package llvmir writes a program as textual LLVM IR. The module defines
// main, keeps the tape in a private zero-initialized global and the cell index
// in an i64 stack slot, and prints with putchar:
//
//	clang -O2 -o prog prog.ll
package llvmir

import (
	"bufio"
	"fmt"
	"io"

	"github.com/tinyrange/bfjit/internal/bf"
)

// DefaultTapeSize is the length of the @memory global.
const DefaultTapeSize = 1 << 20

// Options configures Emit.
type Options struct {
	// TapeSize is the number of cells. Zero selects DefaultTapeSize.
	TapeSize int
	// ModuleID names the module. Empty selects "bfjit".
	ModuleID string
}

// Emit writes LLVM IR for src to w. ',' has no effect. Unbalanced brackets
// are reported before anything is written.
func Emit(w io.Writer, src []byte, opts Options) error {
	if opts.TapeSize <= 0 {
		opts.TapeSize = DefaultTapeSize
	}
	if opts.ModuleID == "" {
		opts.ModuleID = "bfjit"
	}
	if _, err := bf.Match(src); err != nil {
		return err
	}

	e := &emitter{
		w:    bufio.NewWriter(w),
		tape: fmt.Sprintf("[%d x i8]", opts.TapeSize),
	}
	e.header(opts.ModuleID)

	var stack []int
	next := 0
	for _, c := range src {
		switch bf.Op(c) {
		case bf.Right:
			e.moveIndex("add")
		case bf.Left:
			e.moveIndex("sub")
		case bf.Inc:
			e.updateCell("add")
		case bf.Dec:
			e.updateCell("sub")
		case bf.Out:
			v := e.loadCell(e.cellPtr())
			wide := e.tmp()
			e.ins(fmt.Sprintf("%s = zext i8 %s to i32", wide, v))
			e.ins(fmt.Sprintf("%s = call i32 @putchar(i32 %s)", e.tmp(), wide))
		case bf.Open:
			id := next
			next++
			stack = append(stack, id)
			e.branchOnZero(id)
			e.label(fmt.Sprintf("loop_start_%d", id))
		case bf.Close:
			id := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			e.branchOnZero(id)
			e.label(fmt.Sprintf("loop_end_%d", id))
		}
	}

	e.ins("ret i32 0")
	e.printf("}\n")
	if e.err != nil {
		return fmt.Errorf("write IR: %w", e.err)
	}
	if err := e.w.Flush(); err != nil {
		return fmt.Errorf("write IR: %w", err)
	}
	return nil
}

type emitter struct {
	w    *bufio.Writer
	err  error
	tape string
	temp int
}

func (e *emitter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}

func (e *emitter) ins(s string) { e.printf("  %s\n", s) }

func (e *emitter) label(name string) { e.printf("%s:\n", name) }

// tmp returns a fresh local name. Named locals avoid LLVM's rule that
// numbered ones appear in order.
func (e *emitter) tmp() string {
	name := fmt.Sprintf("%%t%d", e.temp)
	e.temp++
	return name
}

func (e *emitter) header(moduleID string) {
	e.printf("; ModuleID = '%s'\n", moduleID)
	e.printf("source_filename = \"%s\"\n\n", moduleID)
	e.printf("@memory = private global %s zeroinitializer\n\n", e.tape)
	e.printf("declare i32 @putchar(i32)\n\n")
	e.printf("define i32 @main() {\n")
	e.label("entry")
	e.ins("%tap_index = alloca i64")
	e.ins("store i64 0, ptr %tap_index")
}

func (e *emitter) moveIndex(op string) {
	idx := e.tmp()
	e.ins(idx + " = load i64, ptr %tap_index")
	moved := e.tmp()
	e.ins(fmt.Sprintf("%s = %s i64 %s, 1", moved, op, idx))
	e.ins(fmt.Sprintf("store i64 %s, ptr %%tap_index", moved))
}

func (e *emitter) cellPtr() string {
	idx := e.tmp()
	e.ins(idx + " = load i64, ptr %tap_index")
	ptr := e.tmp()
	e.ins(fmt.Sprintf("%s = getelementptr inbounds %s, ptr @memory, i64 0, i64 %s", ptr, e.tape, idx))
	return ptr
}

func (e *emitter) loadCell(ptr string) string {
	v := e.tmp()
	e.ins(fmt.Sprintf("%s = load i8, ptr %s", v, ptr))
	return v
}

func (e *emitter) updateCell(op string) {
	ptr := e.cellPtr()
	v := e.loadCell(ptr)
	out := e.tmp()
	e.ins(fmt.Sprintf("%s = %s i8 %s, 1", out, op, v))
	e.ins(fmt.Sprintf("store i8 %s, ptr %s", out, ptr))
}

// branchOnZero ends the current block: a zero cell leaves loop id, anything
// else enters (or repeats) its body.
func (e *emitter) branchOnZero(id int) {
	v := e.loadCell(e.cellPtr())
	cond := e.tmp()
	e.ins(fmt.Sprintf("%s = icmp eq i8 %s, 0", cond, v))
	e.ins(fmt.Sprintf("br i1 %s, label %%loop_end_%d, label %%loop_start_%d", cond, id, id))
}
