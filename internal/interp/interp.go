// Package interp is the bounds-checked tree-walking engine. It accepts the
// full instruction set, including ',', and is the reference the native
// generator is tested against.
package interp

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/tinyrange/bfjit/internal/bf"
)

const DefaultTapeSize = 1 << 20

var (
	ErrTapeOverflow  = errors.New("tape overflow")
	ErrTapeUnderflow = errors.New("tape underflow")
)

type Options struct {
	// TapeSize is the number of cells. Zero selects DefaultTapeSize.
	TapeSize int
	// Input feeds ','. A nil reader behaves as an empty one.
	Input io.Reader
	// Output receives '.'. A nil writer discards output.
	Output io.Writer
}

// Machine is a loaded program plus its tape.
type Machine struct {
	prog  []byte
	jumps []int
	tape  []byte
	ptr   int
	in    io.ByteReader
	out   *bufio.Writer
}

// New checks the brackets of src, filters it and allocates the tape. Bracket
// errors carry offsets into src, comments included.
func New(src []byte, opts Options) (*Machine, error) {
	if err := bf.Validate(src); err != nil {
		return nil, err
	}
	prog := bf.Filter(src)
	jumps, err := bf.Match(prog)
	if err != nil {
		return nil, fmt.Errorf("match filtered program: %w", err)
	}
	size := opts.TapeSize
	if size <= 0 {
		size = DefaultTapeSize
	}

	m := &Machine{
		prog:  prog,
		jumps: jumps,
		tape:  make([]byte, size),
	}
	switch r := opts.Input.(type) {
	case nil:
	case io.ByteReader:
		m.in = r
	default:
		m.in = bufio.NewReader(r)
	}
	out := opts.Output
	if out == nil {
		out = io.Discard
	}
	m.out = bufio.NewWriter(out)
	return m, nil
}

// Tape returns the cells. It is live while the machine runs.
func (m *Machine) Tape() []byte { return m.tape }

// Pointer returns the index of the current cell.
func (m *Machine) Pointer() int { return m.ptr }

// Run executes the program to completion. Cancellation is observed on every
// backward jump, so a non-terminating loop can be stopped.
func (m *Machine) Run(ctx context.Context) (err error) {
	defer func() {
		if ferr := m.out.Flush(); ferr != nil && err == nil {
			err = fmt.Errorf("flush output: %w", ferr)
		}
	}()

	for pc := 0; pc < len(m.prog); pc++ {
		switch bf.Op(m.prog[pc]) {
		case bf.Right:
			if m.ptr+1 >= len(m.tape) {
				return fmt.Errorf("%w at instruction %d", ErrTapeOverflow, pc)
			}
			m.ptr++
		case bf.Left:
			if m.ptr == 0 {
				return fmt.Errorf("%w at instruction %d", ErrTapeUnderflow, pc)
			}
			m.ptr--
		case bf.Inc:
			m.tape[m.ptr]++
		case bf.Dec:
			m.tape[m.ptr]--
		case bf.Out:
			if err := m.out.WriteByte(m.tape[m.ptr]); err != nil {
				return fmt.Errorf("write output: %w", err)
			}
		case bf.In:
			if err := m.read(); err != nil {
				return err
			}
		case bf.Open:
			if m.tape[m.ptr] == 0 {
				pc = m.jumps[pc]
			}
		case bf.Close:
			if m.tape[m.ptr] != 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
				pc = m.jumps[pc]
			}
		}
	}
	return nil
}

// read stores the next input byte. At end of input the cell is left as is.
func (m *Machine) read() error {
	if err := m.out.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	if m.in == nil {
		return nil
	}
	c, err := m.in.ReadByte()
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	m.tape[m.ptr] = c
	return nil
}

// Run is New followed by Machine.Run. It returns the final tape.
func Run(ctx context.Context, src []byte, opts Options) ([]byte, error) {
	m, err := New(src, opts)
	if err != nil {
		return nil, err
	}
	if err := m.Run(ctx); err != nil {
		return m.tape, err
	}
	return m.tape, nil
}
