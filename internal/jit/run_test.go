//go:build linux && amd64

package jit

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/tinyrange/bfjit/internal/interp"
)

const helloWorld = `++++++++[>++++[>++>+++>+++>+<<<<-]>+>+>->>+[<]<-]>>.>---.+++++++..+++.>>.<-.<.+++.------.--------.>>+.>++.`

const testTapeSize = 64

// runNative compiles src with output going to a pipe and returns what the
// program wrote plus a snapshot of the tape.
func runNative(t *testing.T, src string) ([]byte, []byte) {
	t.Helper()

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe failed: %v", err)
	}
	defer func() {
		_ = r.Close()
	}()

	code, err := Compile([]byte(src), Options{OutputFD: int(w.Fd())})
	if err != nil {
		_ = w.Close()
		t.Fatalf("Compile(%q) failed: %v", src, err)
	}

	tape, err := NewTape(testTapeSize)
	if err != nil {
		_ = w.Close()
		t.Fatalf("NewTape failed: %v", err)
	}
	defer tape.Close()

	if err := code.Run(tape); err != nil {
		_ = w.Close()
		t.Fatalf("Run(%q) failed: %v", src, err)
	}
	_ = w.Close()

	out, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	return out, append([]byte(nil), tape.Cells()...)
}

func TestRunPrintsCell(t *testing.T) {
	out, _ := runNative(t, "+++.")
	if want := []byte{3}; !bytes.Equal(out, want) {
		t.Fatalf("output=%v, want %v", out, want)
	}
}

func TestRunMovesValue(t *testing.T) {
	_, cells := runNative(t, "+++[->+<]")
	if got, want := cells[0], byte(0); got != want {
		t.Fatalf("cell 0=%d, want %d", got, want)
	}
	if got, want := cells[1], byte(3); got != want {
		t.Fatalf("cell 1=%d, want %d", got, want)
	}
}

func TestRunOutputKeepsPointer(t *testing.T) {
	out, _ := runNative(t, "+.>++.<.>>+++.")
	if want := []byte{1, 2, 1, 3}; !bytes.Equal(out, want) {
		t.Fatalf("output=%v, want %v", out, want)
	}
}

func TestRunMatchesInterpreter(t *testing.T) {
	progs := []string{
		"++[>++[>++<-]<-]",
		"+++++[>+++++[>++<-]<-]>>[-<+>]",
		"-[>+<-----]>",
		"[this loop never runs]+>++>+++<<[>[>+<-]<-]",
		helloWorld,
	}
	for _, src := range progs {
		out, cells := runNative(t, src)

		var want bytes.Buffer
		ref, err := interp.Run(context.Background(), []byte(src), interp.Options{
			TapeSize: testTapeSize,
			Output:   &want,
		})
		if err != nil {
			t.Fatalf("interp.Run(%q) failed: %v", src, err)
		}
		if !bytes.Equal(cells, ref) {
			t.Fatalf("%q: tape=%v, want %v", src, cells, ref)
		}
		if !bytes.Equal(out, want.Bytes()) {
			t.Fatalf("%q: output=%q, want %q", src, out, want.Bytes())
		}
	}
}

func TestRunHelloWorld(t *testing.T) {
	out, _ := runNative(t, helloWorld)
	if got, want := string(out), "Hello World!\n"; got != want {
		t.Fatalf("output=%q, want %q", got, want)
	}
}

func TestNewTapeZeroed(t *testing.T) {
	tape, err := NewTape(10000)
	if err != nil {
		t.Fatalf("NewTape failed: %v", err)
	}
	defer tape.Close()

	if got, want := tape.Len(), 10000; got != want {
		t.Fatalf("Len()=%d, want %d", got, want)
	}
	for i, c := range tape.Cells() {
		if c != 0 {
			t.Fatalf("cell %d=%d, want 0", i, c)
		}
	}
	if err := tape.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := tape.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
}

func TestStandaloneELFRuns(t *testing.T) {
	code, err := Compile([]byte(helloWorld), Options{})
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	elfBytes, err := code.StandaloneELF(DefaultTapeSize)
	if err != nil {
		t.Fatalf("StandaloneELF failed: %v", err)
	}

	path := filepath.Join(t.TempDir(), "hello")
	if err := os.WriteFile(path, elfBytes, 0o755); err != nil {
		t.Fatalf("write ELF: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	out, err := exec.CommandContext(ctx, path).Output()
	if err != nil {
		t.Fatalf("executing standalone ELF failed: %v", err)
	}
	if got, want := string(out), "Hello World!\n"; got != want {
		t.Fatalf("stdout=%q, want %q", got, want)
	}
}
