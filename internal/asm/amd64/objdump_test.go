package amd64

import (
	"testing"

	"github.com/tinyrange/bfjit/internal/asm"
	"github.com/tinyrange/bfjit/internal/asm/testutil"
)

func TestKitchenSinkDisassemblyAMD64(t *testing.T) {
	buf := asm.NewBuffer(256)
	expect := buildAMD64KitchenSink(buf)
	if err := buf.Err(); err != nil {
		t.Fatalf("emit failed: %v", err)
	}

	lines := testutil.DisassembleAMD64(t, buf.Bytes())
	testutil.VerifyExpectations(t, lines, expect)
}

type sinkBuilder struct {
	buf          *asm.Buffer
	expectations []testutil.Expectation
}

func (b *sinkBuilder) add(name, mnemonic string, emit func(*asm.Buffer), contains ...string) {
	emit(b.buf)
	b.expectations = append(b.expectations, testutil.Expectation{
		Name:     name,
		Mnemonic: mnemonic,
		Contains: contains,
	})
}

func buildAMD64KitchenSink(buf *asm.Buffer) []testutil.Expectation {
	builder := sinkBuilder{buf: buf}
	head := asm.NewLabel("head")
	exit := asm.NewLabel("exit")

	builder.add("push_rbx", "push", func(b *asm.Buffer) { Push(b, RBX) }, "%rbx")
	builder.add("push_r14", "push", func(b *asm.Buffer) { Push(b, R14) }, "%r14")
	builder.add("mov_reg", "mov", func(b *asm.Buffer) { MovReg(b, RBX, RDI) }, "%rdi,%rbx")
	builder.add("inc_reg", "inc", func(b *asm.Buffer) { IncReg(b, RBX) }, "%rbx")
	builder.add("dec_reg", "dec", func(b *asm.Buffer) { DecReg(b, R11) }, "%r11")
	builder.add("inc_byte", "incb", func(b *asm.Buffer) { IncByte(b, RBX) }, "(%rbx)")
	builder.add("dec_byte", "decb", func(b *asm.Buffer) { DecByte(b, R12) }, "(%r12)")
	builder.add("inc_byte_r13", "incb", func(b *asm.Buffer) { IncByte(b, R13) }, "0x0(%r13)")
	builder.add("cmp_byte", "cmpb", func(b *asm.Buffer) { CmpByteImm(b, RBX, 0) }, "$0x0,(%rbx)")
	buf.Bind(head)
	builder.add("je", "je", func(b *asm.Buffer) { JumpIfEqual(b, exit) })
	builder.add("mov_imm", "mov", func(b *asm.Buffer) { MovImm32(b, RDX, 1) }, "$0x1,%edx")
	builder.add("xor", "xor", func(b *asm.Buffer) { XorReg32(b, RDI) }, "%edi,%edi")
	builder.add("syscall", "syscall", Syscall)
	builder.add("jne", "jne", func(b *asm.Buffer) { JumpIfNotEqual(b, head) })
	buf.Bind(exit)
	builder.add("pop_r14", "pop", func(b *asm.Buffer) { Pop(b, R14) }, "%r14")
	builder.add("ret", "ret", Ret)

	return builder.expectations
}
