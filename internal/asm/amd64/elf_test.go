package amd64

import (
	"bytes"
	"debug/elf"
	"testing"

	"github.com/tinyrange/bfjit/internal/asm"
)

func exitProgram(t *testing.T, status uint32) []byte {
	t.Helper()
	buf := asm.NewBuffer(32)
	MovImm32(buf, RAX, SysExit)
	MovImm32(buf, RDI, status)
	Syscall(buf)
	if err := buf.Err(); err != nil {
		t.Fatalf("emit failed: %v", err)
	}
	return buf.Bytes()
}

func TestStandaloneELFHeader(t *testing.T) {
	code := exitProgram(t, 0)
	const bss = 4096

	layout := DefaultELFLayout
	elfBytes, err := StandaloneELF(code, bss)
	if err != nil {
		t.Fatalf("StandaloneELF failed: %v", err)
	}

	f, err := elf.NewFile(bytes.NewReader(elfBytes))
	if err != nil {
		t.Fatalf("parse ELF: %v", err)
	}
	defer f.Close()

	if got, want := f.FileHeader.Type, elf.ET_EXEC; got != want {
		t.Fatalf("ELF type=%v, want %v", got, want)
	}
	if got, want := f.FileHeader.Machine, elf.EM_X86_64; got != want {
		t.Fatalf("machine=%v, want %v", got, want)
	}
	if got, want := f.FileHeader.Entry, layout.Base; got != want {
		t.Fatalf("entry point=%#x, want %#x", got, want)
	}
	if len(f.Progs) != 1 {
		t.Fatalf("expected single program header, got %d", len(f.Progs))
	}
	ph := f.Progs[0]
	if got, want := ph.Type, elf.PT_LOAD; got != want {
		t.Fatalf("program header type=%v, want %v", got, want)
	}
	if got, want := ph.Flags, elf.PF_R|elf.PF_W|elf.PF_X; got != want {
		t.Fatalf("segment flags=%v, want %v", got, want)
	}
	if got, want := ph.Off, layout.Offset; got != want {
		t.Fatalf("segment offset=%#x, want %#x", got, want)
	}
	if got, want := ph.Filesz, uint64(len(code)); got != want {
		t.Fatalf("filesz=%d, want %d", got, want)
	}
	if got, want := ph.Memsz, uint64(len(code))+bss; got != want {
		t.Fatalf("memsz=%d, want %d", got, want)
	}
	if got, want := ph.Align, layout.Align; got != want {
		t.Fatalf("align=%#x, want %#x", got, want)
	}
	if got := elfBytes[layout.Offset:]; !bytes.Equal(got, code) {
		t.Fatalf("segment contents=%x, want %x", got, code)
	}
}

func TestELFLayoutValidation(t *testing.T) {
	code := exitProgram(t, 0)

	tests := []struct {
		name   string
		layout ELFLayout
	}{
		{"offset_too_small", ELFLayout{Base: 0x400040, Offset: 0x40, Align: 0x40}},
		{"offset_too_large", ELFLayout{Base: 0x1000000, Offset: 0x200000, Align: 0x1000}},
		{"alignment_zero", ELFLayout{Base: 0x401000, Offset: 0x1000}},
		{"alignment_not_power_of_two", ELFLayout{Base: 0x401800, Offset: 0x1800, Align: 0x1800}},
		{"offset_misaligned", ELFLayout{Base: 0x401000, Offset: 0x1080, Align: 0x1000}},
		{"base_misaligned", ELFLayout{Base: 0x401800, Offset: 0x1000, Align: 0x1000}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.layout.Build(code, 0); err == nil {
				t.Fatalf("Build accepted %+v", tt.layout)
			}
		})
	}

	custom := ELFLayout{Base: 0x10200, Offset: 0x200, Align: 0x200}
	elfBytes, err := custom.Build(code, 0)
	if err != nil {
		t.Fatalf("Build(%+v) failed: %v", custom, err)
	}
	if got, want := len(elfBytes), 0x200+len(code); got != want {
		t.Fatalf("len=%d, want %d", got, want)
	}

	if _, err := StandaloneELF(nil, 0); err == nil {
		t.Fatalf("StandaloneELF accepted empty code")
	}
}
