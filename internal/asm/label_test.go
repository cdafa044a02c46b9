package asm

import (
	"errors"
	"testing"
)

func TestLabelForwardReferences(t *testing.T) {
	buf := NewBuffer(64)
	exit := NewLabel("exit")

	buf.EmitBytes(0x0f, 0x84)
	buf.EmitRel32(exit)
	buf.EmitBytes(0x0f, 0x84)
	buf.EmitRel32(exit)
	if got, want := exit.Pending(), 2; got != want {
		t.Fatalf("Pending()=%d, want %d", got, want)
	}

	buf.EmitBytes(0x90, 0x90, 0x90)
	buf.Bind(exit)
	if err := buf.Err(); err != nil {
		t.Fatalf("Bind failed: %v", err)
	}
	if got := exit.Pending(); got != 0 {
		t.Fatalf("Pending()=%d after Bind, want 0", got)
	}

	for _, field := range []int{2, 8} {
		raw, err := buf.Word32(field)
		if err != nil {
			t.Fatalf("Word32(%d): %v", field, err)
		}
		if got, want := field+4+int(int32(raw)), buf.Len(); got != want {
			t.Fatalf("reference at %d lands on %d, want %d", field, got, want)
		}
	}
}

func TestLabelBackwardReference(t *testing.T) {
	buf := NewBuffer(64)
	head := NewLabel("head")

	buf.EmitBytes(0x90, 0x90)
	buf.Bind(head)
	buf.EmitBytes(0xfe, 0x03, 0x0f, 0x85)
	field := buf.Len()
	buf.EmitRel32(head)

	raw, err := buf.Word32(field)
	if err != nil {
		t.Fatalf("Word32: %v", err)
	}
	rel := int32(raw)
	if rel >= 0 {
		t.Fatalf("backward displacement %d is not negative", rel)
	}
	if got, want := field+4+int(rel), 2; got != want {
		t.Fatalf("backward reference lands on %d, want %d", got, want)
	}
	if got := head.Pending(); got != 0 {
		t.Fatalf("bound label recorded a reference: Pending()=%d", got)
	}
}

func TestLabelBindTwice(t *testing.T) {
	buf := NewBuffer(8)
	l := NewLabel("twice")
	buf.Bind(l)
	buf.Bind(l)
	if !errors.Is(buf.Err(), ErrLabelBound) {
		t.Fatalf("Err()=%v, want %v", buf.Err(), ErrLabelBound)
	}
}

func TestRel32(t *testing.T) {
	tests := []struct {
		field, target int
		want          uint32
	}{
		{field: 10, target: 14, want: 0},
		{field: 10, target: 20, want: 6},
		{field: 10, target: 0, want: 0xfffffff2},
	}
	for _, tt := range tests {
		got, err := Rel32(tt.field, tt.target)
		if err != nil {
			t.Fatalf("Rel32(%d, %d): %v", tt.field, tt.target, err)
		}
		if got != tt.want {
			t.Fatalf("Rel32(%d, %d)=0x%x, want 0x%x", tt.field, tt.target, got, tt.want)
		}
	}

	if _, err := Rel32(0, 1<<32); err == nil {
		t.Fatalf("Rel32 accepted an out of range displacement")
	}
}
