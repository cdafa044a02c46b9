// Package jit translates tape programs into x86-64 machine code in a single
// left-to-right pass and runs the result in-process.
//
// The generated function follows the System V calling convention: it takes
// the tape base address in RDI, keeps the cell pointer in RBX and preserves
// every callee-saved register it touches.
package jit

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/tinyrange/bfjit/internal/asm"
	"github.com/tinyrange/bfjit/internal/asm/amd64"
	"github.com/tinyrange/bfjit/internal/bf"
)

const (
	// DefaultBufferSize bounds the generated code size.
	DefaultBufferSize = 1 << 20
	// DefaultTapeSize is the number of cells given to a program.
	DefaultTapeSize = 1 << 20
	// StdoutFD is the descriptor '.' writes to unless Options says otherwise.
	StdoutFD = 1
)

var (
	ErrUnmatchedOpen    = bf.ErrUnmatchedOpen
	ErrUnmatchedClose   = bf.ErrUnmatchedClose
	ErrNestingTooDeep   = errors.New("loop nesting too deep")
	ErrInputUnsupported = errors.New("',' is not supported by the native generator")
	ErrFinished         = errors.New("generator already finished")
)

// ErrUnsupportedPlatform is returned by Code.Run off linux/amd64.
var ErrUnsupportedPlatform = amd64.ErrUnsupportedHost

const pointerReg = amd64.RBX

// savedRegisters are pushed by the prologue and popped in reverse by the
// epilogue.
var savedRegisters = []amd64.Register{amd64.RBX, amd64.RBP, amd64.R12, amd64.R13, amd64.R14, amd64.R15}

// Options configures a Generator. Zero values select the defaults.
type Options struct {
	// BufferSize is the capacity of the encoding buffer in bytes.
	BufferSize int
	// MaxNesting limits loop depth. Zero means unbounded.
	MaxNesting int
	// OutputFD is the descriptor written by '.'. Zero selects stdout.
	OutputFD int
	// Strict rejects ',' instead of skipping it.
	Strict bool
}

func (o Options) withDefaults() Options {
	if o.BufferSize <= 0 {
		o.BufferSize = DefaultBufferSize
	}
	if o.OutputFD <= 0 {
		o.OutputFD = StdoutFD
	}
	if o.MaxNesting < 0 {
		o.MaxNesting = 0
	}
	return o
}

// Error describes a generation failure at a source offset.
type Error struct {
	Offset int
	Op     byte
	Err    error
}

func (e *Error) Error() string {
	if e.Op == 0 {
		return fmt.Sprintf("offset %d: %v", e.Offset, e.Err)
	}
	return fmt.Sprintf("offset %d (%q): %v", e.Offset, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// LoopSite records where one loop's branches ended up in the generated code.
// All code offsets are relative to the start of the function.
type LoopSite struct {
	// Open and Close are the source offsets of the bracket pair.
	Open  int
	Close int
	// Head is the first byte after the loop-open comparison. The loop-close
	// branch targets it.
	Head int
	// OpenBranch is the offset of the loop-open branch's rel32 field.
	OpenBranch int
	// CloseBranch is the offset of the loop-close branch's rel32 field.
	CloseBranch int
	// End is the first byte after the loop-close branch. The loop-open
	// branch targets it.
	End int
}

type openLoop struct {
	offset int
	head   *asm.Label
	exit   *asm.Label
	site   LoopSite
}

// Generator holds the state of one generation pass. It is not safe for
// concurrent use.
type Generator struct {
	opts  Options
	buf   *asm.Buffer
	loops []openLoop
	sites []LoopSite
	pos   int
	count int
	err   error
	done  bool
}

// NewGenerator returns a generator with the prologue already emitted.
func NewGenerator(opts Options) *Generator {
	opts = opts.withDefaults()
	g := &Generator{
		opts: opts,
		buf:  asm.NewBuffer(opts.BufferSize),
	}
	for _, r := range savedRegisters {
		amd64.Push(g.buf, r)
	}
	amd64.MovReg(g.buf, pointerReg, amd64.RDI)
	if err := g.buf.Err(); err != nil {
		g.err = &Error{Offset: 0, Err: fmt.Errorf("prologue: %w", err)}
	}
	return g
}

// Len returns the number of code bytes emitted so far.
func (g *Generator) Len() int { return g.buf.Len() }

// Depth returns the number of loops currently open.
func (g *Generator) Depth() int { return len(g.loops) }

// Err returns the error that stopped generation, if any.
func (g *Generator) Err() error { return g.err }

func (g *Generator) fail(offset int, op byte, err error) error {
	g.err = &Error{Offset: offset, Op: op, Err: err}
	return g.err
}

// Emit translates one source byte. Bytes that are not instructions advance
// the source offset and emit nothing.
func (g *Generator) Emit(c byte) error {
	if g.err != nil {
		return g.err
	}
	if g.done {
		return ErrFinished
	}
	offset := g.pos
	g.pos++

	switch bf.Op(c) {
	case bf.Right:
		amd64.IncReg(g.buf, pointerReg)
	case bf.Left:
		amd64.DecReg(g.buf, pointerReg)
	case bf.Inc:
		amd64.IncByte(g.buf, pointerReg)
	case bf.Dec:
		amd64.DecByte(g.buf, pointerReg)
	case bf.Out:
		g.emitOutput()
	case bf.In:
		if g.opts.Strict {
			return g.fail(offset, c, ErrInputUnsupported)
		}
	case bf.Open:
		if err := g.openLoop(offset); err != nil {
			return g.fail(offset, c, err)
		}
	case bf.Close:
		if err := g.closeLoop(offset); err != nil {
			return g.fail(offset, c, err)
		}
	}

	if err := g.buf.Err(); err != nil {
		return g.fail(offset, c, err)
	}
	return nil
}

// emitOutput issues write(fd, ptr, 1). The syscall clobbers RAX, RCX, R11 and
// the argument registers but never RBX.
func (g *Generator) emitOutput() {
	amd64.MovImm32(g.buf, amd64.RAX, amd64.SysWrite)
	amd64.MovImm32(g.buf, amd64.RDI, uint32(g.opts.OutputFD))
	amd64.MovReg(g.buf, amd64.RSI, pointerReg)
	amd64.MovImm32(g.buf, amd64.RDX, 1)
	amd64.Syscall(g.buf)
}

func (g *Generator) openLoop(offset int) error {
	if g.opts.MaxNesting > 0 && len(g.loops) >= g.opts.MaxNesting {
		return fmt.Errorf("%w: limit is %d", ErrNestingTooDeep, g.opts.MaxNesting)
	}

	id := g.count
	g.count++
	l := openLoop{
		offset: offset,
		head:   asm.NewLabel(fmt.Sprintf("loop_start_%d", id)),
		exit:   asm.NewLabel(fmt.Sprintf("loop_end_%d", id)),
	}

	amd64.CmpByteImm(g.buf, pointerReg, 0)
	g.buf.Bind(l.head)
	l.site.Head = g.buf.Len()
	amd64.JumpIfEqual(g.buf, l.exit)
	l.site.OpenBranch = g.buf.Len() - 4
	l.site.Open = offset

	g.loops = append(g.loops, l)
	return nil
}

func (g *Generator) closeLoop(offset int) error {
	if len(g.loops) == 0 {
		return ErrUnmatchedClose
	}
	l := g.loops[len(g.loops)-1]
	g.loops = g.loops[:len(g.loops)-1]

	amd64.CmpByteImm(g.buf, pointerReg, 0)
	amd64.JumpIfNotEqual(g.buf, l.head)
	l.site.CloseBranch = g.buf.Len() - 4
	g.buf.Bind(l.exit)
	l.site.End = g.buf.Len()
	l.site.Close = offset

	g.sites = append(g.sites, l.site)
	return nil
}

// Finish emits the epilogue and returns the finished code. Every loop must be
// closed.
func (g *Generator) Finish() (*Code, error) {
	if g.err != nil {
		return nil, g.err
	}
	if g.done {
		return nil, ErrFinished
	}
	if n := len(g.loops); n > 0 {
		return nil, g.fail(g.loops[n-1].offset, byte(bf.Open), ErrUnmatchedOpen)
	}

	for i := len(savedRegisters) - 1; i >= 0; i-- {
		amd64.Pop(g.buf, savedRegisters[i])
	}
	amd64.Ret(g.buf)
	if err := g.buf.Err(); err != nil {
		return nil, g.fail(g.pos, 0, fmt.Errorf("epilogue: %w", err))
	}
	g.done = true

	return &Code{
		code:  g.buf.Bytes(),
		loops: append([]LoopSite(nil), g.sites...),
	}, nil
}

// Compile generates native code for src. Nothing is executed.
func Compile(src []byte, opts Options) (*Code, error) {
	g := NewGenerator(opts)
	for _, c := range src {
		if err := g.Emit(c); err != nil {
			return nil, err
		}
	}
	code, err := g.Finish()
	if err != nil {
		return nil, err
	}
	slog.Debug("generated native code", "bytes", code.Len(), "loops", len(code.loops))
	return code, nil
}

// Code is a finished, fully patched function.
type Code struct {
	code  []byte
	loops []LoopSite
}

// Bytes returns a copy of the machine code.
func (c *Code) Bytes() []byte {
	return append([]byte(nil), c.code...)
}

func (c *Code) Len() int { return len(c.code) }

// Loops returns the patch sites in the order the loops were closed.
func (c *Code) Loops() []LoopSite {
	return append([]LoopSite(nil), c.loops...)
}

// Run maps the code executable and calls it with the tape base address. It
// blocks until the program returns.
func (c *Code) Run(tape *Tape) error {
	if tape == nil || tape.Len() == 0 {
		return fmt.Errorf("run native code: empty tape")
	}
	fn, release, err := amd64.Prepare(c.code)
	if err != nil {
		return fmt.Errorf("prepare native code: %w", err)
	}
	defer release()

	slog.Debug("running native code", "entry", fmt.Sprintf("%#x", fn.Entry()), "tape", tape.Len())
	fn.Call(tape.Base())
	return nil
}
