package amd64

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"fmt"
)

const (
	elfHeaderSize  = 64
	progHeaderSize = 56
	maxSegmentOff  = 1 << 20
)

// ELFLayout places the single loadable segment of a standalone executable.
type ELFLayout struct {
	// Base is the virtual address of the first code byte and the entry point.
	Base uint64
	// Offset is the file offset of the segment. The ELF header and the program
	// header are written before it.
	Offset uint64
	// Align is the segment alignment and must be a power of two.
	Align uint64
}

// DefaultELFLayout is the layout a static linker would pick for a small
// program.
var DefaultELFLayout = ELFLayout{Base: 0x401000, Offset: 0x1000, Align: 0x1000}

func (l ELFLayout) check() error {
	if l.Offset < elfHeaderSize+progHeaderSize {
		return fmt.Errorf("segment offset %#x leaves no room for headers (%#x)", l.Offset, elfHeaderSize+progHeaderSize)
	}
	if l.Offset > maxSegmentOff {
		return fmt.Errorf("segment offset %#x is larger than %#x", l.Offset, maxSegmentOff)
	}
	if l.Align == 0 || l.Align&(l.Align-1) != 0 {
		return fmt.Errorf("segment alignment %#x is not a power of two", l.Align)
	}
	if l.Offset%l.Align != 0 {
		return fmt.Errorf("segment offset %#x is not aligned to %#x", l.Offset, l.Align)
	}
	if l.Base%l.Align != l.Offset%l.Align {
		return fmt.Errorf("base address %#x is not congruent to offset %#x modulo %#x", l.Base, l.Offset, l.Align)
	}
	return nil
}

// StandaloneELF wraps position-independent code in an executable using
// DefaultELFLayout.
func StandaloneELF(code []byte, bssSize uint64) ([]byte, error) {
	return DefaultELFLayout.Build(code, bssSize)
}

// Build emits an ET_EXEC image with one PT_LOAD segment holding code followed
// by bssSize zero bytes. The segment is mapped RWX because the zero-filled
// tail is written at run time.
func (l ELFLayout) Build(code []byte, bssSize uint64) ([]byte, error) {
	if len(code) == 0 {
		return nil, fmt.Errorf("empty code")
	}
	if err := l.check(); err != nil {
		return nil, err
	}

	hdr := elf.Header64{
		Type:      uint16(elf.ET_EXEC),
		Machine:   uint16(elf.EM_X86_64),
		Version:   uint32(elf.EV_CURRENT),
		Entry:     l.Base,
		Phoff:     elfHeaderSize,
		Ehsize:    elfHeaderSize,
		Phentsize: progHeaderSize,
		Phnum:     1,
	}
	copy(hdr.Ident[:], elf.ELFMAG)
	hdr.Ident[elf.EI_CLASS] = byte(elf.ELFCLASS64)
	hdr.Ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	hdr.Ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)
	hdr.Ident[elf.EI_OSABI] = byte(elf.ELFOSABI_NONE)

	prog := elf.Prog64{
		Type:   uint32(elf.PT_LOAD),
		Flags:  uint32(elf.PF_R | elf.PF_W | elf.PF_X),
		Off:    l.Offset,
		Vaddr:  l.Base,
		Paddr:  l.Base,
		Filesz: uint64(len(code)),
		Memsz:  uint64(len(code)) + bssSize,
		Align:  l.Align,
	}

	var out bytes.Buffer
	out.Grow(int(l.Offset) + len(code))
	if err := binary.Write(&out, binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("write ELF header: %w", err)
	}
	if err := binary.Write(&out, binary.LittleEndian, &prog); err != nil {
		return nil, fmt.Errorf("write program header: %w", err)
	}
	out.Write(make([]byte, int(l.Offset)-out.Len()))
	out.Write(code)
	return out.Bytes(), nil
}
