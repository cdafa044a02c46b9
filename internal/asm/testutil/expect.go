package testutil

import (
	"fmt"
	"strconv"
	"strings"
	"testing"
)

// Expectation describes a single instruction that should appear in the
// disassembly output.
type Expectation struct {
	Name     string
	Mnemonic string
	Contains []string
}

func (e Expectation) match(line DisasmLine) error {
	if e.Mnemonic != "" && line.Mnemonic != e.Mnemonic {
		return fmt.Errorf("mnemonic=%s, want %s", line.Mnemonic, e.Mnemonic)
	}
	for _, needle := range e.Contains {
		if !line.Contains(needle) {
			return fmt.Errorf("missing %q in %q", needle, line.Normalized)
		}
	}
	return nil
}

// VerifyExpectations checks that the first len(expect) instructions match
// expect in order. Anything after them is ignored.
func VerifyExpectations(t *testing.T, lines []DisasmLine, expect []Expectation) {
	t.Helper()
	if len(lines) < len(expect) {
		t.Fatalf("objdump returned %d instructions, want at least %d", len(lines), len(expect))
	}
	for idx, exp := range expect {
		line := lines[idx]
		if err := exp.match(line); err != nil {
			t.Fatalf("instruction %q mismatch at offset %#x: %v\nline: %s", exp.Name, line.Offset, err, line.Text)
		}
	}
}

// BranchTarget returns the absolute target objdump printed for a direct jump
// or call. Older binutils print "je 1f <.text+0x1f>", newer ones "je 0x1f".
func (l DisasmLine) BranchTarget() (int, error) {
	fields := strings.Fields(l.Normalized)
	if len(fields) < 2 {
		return 0, fmt.Errorf("no operand in %q", l.Normalized)
	}
	v, err := strconv.ParseInt(strings.TrimPrefix(fields[1], "0x"), 16, 64)
	if err != nil {
		return 0, fmt.Errorf("parse branch target in %q: %w", l.Normalized, err)
	}
	return int(v), nil
}

// Select returns the lines whose mnemonic is one of mnemonics, in order.
func Select(lines []DisasmLine, mnemonics ...string) []DisasmLine {
	var out []DisasmLine
	for _, line := range lines {
		for _, m := range mnemonics {
			if line.Mnemonic == m {
				out = append(out, line)
				break
			}
		}
	}
	return out
}
