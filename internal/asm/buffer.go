package asm

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	ErrBufferOverflow  = errors.New("encoding buffer overflow")
	ErrPatchOutOfRange = errors.New("patch offset out of range")
)

// Buffer is a fixed-capacity byte array with a write cursor that only moves
// forward. Emission errors are sticky: after the first failure every later
// write is dropped and Err reports the original cause.
type Buffer struct {
	data   []byte
	cursor int
	err    error
}

func NewBuffer(capacity int) *Buffer {
	if capacity < 0 {
		capacity = 0
	}
	return &Buffer{data: make([]byte, capacity)}
}

// Len returns the cursor, which is also the number of bytes emitted so far.
func (b *Buffer) Len() int { return b.cursor }

func (b *Buffer) Cap() int { return len(b.data) }

// Err returns the first error recorded by the buffer.
func (b *Buffer) Err() error { return b.err }

// Fail records err unless an earlier error is already pending.
func (b *Buffer) Fail(err error) {
	if b.err == nil && err != nil {
		b.err = err
	}
}

// Bytes returns a copy of the emitted code.
func (b *Buffer) Bytes() []byte {
	return append([]byte(nil), b.data[:b.cursor]...)
}

func (b *Buffer) reserve(n int) []byte {
	if b.err != nil {
		return nil
	}
	if n > len(b.data)-b.cursor {
		b.err = fmt.Errorf("%w: need %d bytes at offset %d, capacity %d", ErrBufferOverflow, n, b.cursor, len(b.data))
		return nil
	}
	out := b.data[b.cursor : b.cursor+n]
	b.cursor += n
	return out
}

func (b *Buffer) EmitByte(v byte) {
	if dst := b.reserve(1); dst != nil {
		dst[0] = v
	}
}

func (b *Buffer) EmitWord16(v uint16) {
	if dst := b.reserve(2); dst != nil {
		binary.LittleEndian.PutUint16(dst, v)
	}
}

func (b *Buffer) EmitWord32(v uint32) {
	if dst := b.reserve(4); dst != nil {
		binary.LittleEndian.PutUint32(dst, v)
	}
}

func (b *Buffer) EmitBytes(p ...byte) {
	if dst := b.reserve(len(p)); dst != nil {
		copy(dst, p)
	}
}

// PatchWord32 overwrites four already emitted bytes at offset. The cursor is
// left where it is.
func (b *Buffer) PatchWord32(offset int, v uint32) {
	if b.err != nil {
		return
	}
	if offset < 0 || offset+4 > b.cursor {
		b.err = fmt.Errorf("%w: offset %d, length %d", ErrPatchOutOfRange, offset, b.cursor)
		return
	}
	binary.LittleEndian.PutUint32(b.data[offset:], v)
}

// Word32 reads back an emitted little-endian word.
func (b *Buffer) Word32(offset int) (uint32, error) {
	if offset < 0 || offset+4 > b.cursor {
		return 0, fmt.Errorf("%w: offset %d, length %d", ErrPatchOutOfRange, offset, b.cursor)
	}
	return binary.LittleEndian.Uint32(b.data[offset:]), nil
}
