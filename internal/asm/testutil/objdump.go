// Package testutil checks generated machine code against GNU objdump.
package testutil

import (
	"bufio"
	"bytes"
	"debug/elf"
	"encoding/binary"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

// DisasmLine is one instruction line printed by objdump.
type DisasmLine struct {
	// Offset is the instruction's offset from the start of the code.
	Offset     int
	Text       string
	Normalized string
	Mnemonic   string
}

// Contains reports whether the normalized instruction text contains substr.
func (l DisasmLine) Contains(substr string) bool {
	return strings.Contains(l.Normalized, substr)
}

// DisassembleAMD64 disassembles x86-64 code in AT&T syntax. The code is
// placed at address zero, so branch targets read as code offsets. The test is
// skipped when objdump is not installed.
func DisassembleAMD64(t *testing.T, code []byte) []DisasmLine {
	t.Helper()

	tool, err := exec.LookPath("objdump")
	if err != nil {
		t.Skipf("objdump not found: %v", err)
	}

	path := filepath.Join(t.TempDir(), "code.o")
	if err := os.WriteFile(path, relocatableObject(code), 0o644); err != nil {
		t.Fatalf("write object: %v", err)
	}

	out, err := exec.Command(tool, "-d", "--no-show-raw-insn", "-M", "att", path).CombinedOutput()
	if err != nil {
		t.Fatalf("objdump failed: %v\n\n%s", err, out)
	}

	lines := parseObjdump(out)
	if len(lines) == 0 {
		t.Fatalf("objdump produced no instructions:\n%s", out)
	}
	return lines
}

// relocatableObject wraps code in an ELF64 object with a single .text section
// and the section name table objdump needs to find it.
func relocatableObject(code []byte) []byte {
	const (
		hdrSize  = 64
		shdrSize = 64
		textOff  = hdrSize
	)
	names := []byte("\x00.text\x00.shstrtab\x00")
	namesOff := textOff + len(code)
	shOff := (namesOff + len(names) + 7) &^ 7

	hdr := elf.Header64{
		Type:      uint16(elf.ET_REL),
		Machine:   uint16(elf.EM_X86_64),
		Version:   uint32(elf.EV_CURRENT),
		Shoff:     uint64(shOff),
		Ehsize:    hdrSize,
		Shentsize: shdrSize,
		Shnum:     3,
		Shstrndx:  2,
	}
	copy(hdr.Ident[:], elf.ELFMAG)
	hdr.Ident[elf.EI_CLASS] = byte(elf.ELFCLASS64)
	hdr.Ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	hdr.Ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)

	sections := []elf.Section64{
		{},
		{
			Name:      1,
			Type:      uint32(elf.SHT_PROGBITS),
			Flags:     uint64(elf.SHF_ALLOC | elf.SHF_EXECINSTR),
			Off:       textOff,
			Size:      uint64(len(code)),
			Addralign: 16,
		},
		{
			Name:      7,
			Type:      uint32(elf.SHT_STRTAB),
			Off:       uint64(namesOff),
			Size:      uint64(len(names)),
			Addralign: 1,
		},
	}

	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, &hdr)
	buf.Write(code)
	buf.Write(names)
	buf.Write(make([]byte, shOff-buf.Len()))
	_ = binary.Write(&buf, binary.LittleEndian, sections)
	return buf.Bytes()
}

// parseObjdump keeps lines of the form "  1f:\tje     2a <.text+0x2a>".
func parseObjdump(out []byte) []DisasmLine {
	var lines []DisasmLine
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		addr, text, ok := strings.Cut(scanner.Text(), ":")
		if !ok {
			continue
		}
		offset, err := strconv.ParseUint(strings.TrimSpace(addr), 16, 64)
		if err != nil {
			continue
		}
		text = strings.TrimSpace(text)
		fields := strings.Fields(text)
		if len(fields) == 0 || strings.HasPrefix(text, "<") {
			continue
		}
		lines = append(lines, DisasmLine{
			Offset:     int(offset),
			Text:       text,
			Normalized: strings.Join(fields, " "),
			Mnemonic:   strings.ToLower(fields[0]),
		})
	}
	return lines
}
