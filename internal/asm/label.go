package asm

import (
	"errors"
	"fmt"
	"math"
)

var ErrLabelBound = errors.New("label already bound")

// Label is a branch target whose position may not be known yet. Every rel32
// field emitted against an unbound label is remembered and filled in when the
// label is bound.
type Label struct {
	name  string
	pos   int
	bound bool
	refs  []int
}

func NewLabel(name string) *Label {
	return &Label{name: name}
}

func (l *Label) Name() string { return l.name }

// Position returns the bound offset.
func (l *Label) Position() (int, bool) {
	return l.pos, l.bound
}

// Pending returns the number of references still waiting for Bind.
func (l *Label) Pending() int {
	return len(l.refs)
}

// Rel32 computes the displacement stored in a rel32 field that starts at
// field and targets target. The processor adds it to the end of the field.
func Rel32(field, target int) (uint32, error) {
	rel := int64(target) - int64(field+4)
	if rel < math.MinInt32 || rel > math.MaxInt32 {
		return 0, fmt.Errorf("displacement %d out of rel32 range", rel)
	}
	return uint32(int32(rel)), nil
}

// EmitRel32 appends a 4-byte displacement to l. Backward references are
// resolved immediately; forward references get a zero placeholder.
func (b *Buffer) EmitRel32(l *Label) {
	field := b.cursor
	if !l.bound {
		b.EmitWord32(0)
		if b.err == nil {
			l.refs = append(l.refs, field)
		}
		return
	}
	rel, err := Rel32(field, l.pos)
	if err != nil {
		b.Fail(fmt.Errorf("label %q: %w", l.name, err))
		return
	}
	b.EmitWord32(rel)
}

// Bind fixes l at the current cursor and patches every recorded reference.
func (b *Buffer) Bind(l *Label) {
	if b.err != nil {
		return
	}
	if l.bound {
		b.Fail(fmt.Errorf("%w: %q at %d", ErrLabelBound, l.name, l.pos))
		return
	}
	l.pos = b.cursor
	l.bound = true
	for _, ref := range l.refs {
		rel, err := Rel32(ref, l.pos)
		if err != nil {
			b.Fail(fmt.Errorf("label %q: %w", l.name, err))
			return
		}
		b.PatchWord32(ref, rel)
	}
	l.refs = nil
}
