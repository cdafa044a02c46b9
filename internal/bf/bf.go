// Package bf defines the eight-symbol tape language shared by every engine.
package bf

import (
	"errors"
	"fmt"
)

// Op is one instruction symbol.
type Op byte

const (
	Right Op = '>'
	Left  Op = '<'
	Inc   Op = '+'
	Dec   Op = '-'
	Out   Op = '.'
	In    Op = ','
	Open  Op = '['
	Close Op = ']'
)

var (
	ErrUnmatchedOpen  = errors.New("unmatched '['")
	ErrUnmatchedClose = errors.New("unmatched ']'")
)

// IsOp reports whether c is one of the eight instruction symbols.
func IsOp(c byte) bool {
	switch Op(c) {
	case Right, Left, Inc, Dec, Out, In, Open, Close:
		return true
	}
	return false
}

// Filter returns the instruction symbols of src in order. Every other byte is
// commentary and is dropped.
func Filter(src []byte) []byte {
	out := make([]byte, 0, len(src))
	for _, c := range src {
		if IsOp(c) {
			out = append(out, c)
		}
	}
	return out
}

// BracketError reports an unbalanced bracket at a byte offset of the
// program it was found in.
type BracketError struct {
	Offset int
	Err    error
}

func (e *BracketError) Error() string {
	return fmt.Sprintf("%v at offset %d", e.Err, e.Offset)
}

func (e *BracketError) Unwrap() error { return e.Err }

// Match pairs every bracket in prog with its partner. The result maps the
// offset of each '[' to its ']' and back; other offsets are -1.
func Match(prog []byte) ([]int, error) {
	jumps := make([]int, len(prog))
	var open []int
	for i, c := range prog {
		jumps[i] = -1
		switch Op(c) {
		case Open:
			open = append(open, i)
		case Close:
			if len(open) == 0 {
				return nil, &BracketError{Offset: i, Err: ErrUnmatchedClose}
			}
			j := open[len(open)-1]
			open = open[:len(open)-1]
			jumps[i] = j
			jumps[j] = i
		}
	}
	if len(open) > 0 {
		return nil, &BracketError{Offset: open[len(open)-1], Err: ErrUnmatchedOpen}
	}
	return jumps, nil
}

// Validate checks bracket balance.
func Validate(prog []byte) error {
	_, err := Match(prog)
	return err
}
