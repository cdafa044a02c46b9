// Package profile computes a static summary of a program. It is reporting
// only and never feeds back into code generation.
package profile

import (
	"fmt"
	"io"

	"github.com/tinyrange/bfjit/internal/bf"
	"gopkg.in/yaml.v3"
)

// MinRunLength is the shortest repeated run reported as foldable.
const MinRunLength = 2

// Report is the result of Analyze.
type Report struct {
	SourceBytes  int            `yaml:"source_bytes"`
	Instructions int            `yaml:"instructions"`
	Counts       map[string]int `yaml:"counts"`
	Loops        int            `yaml:"loops"`
	MaxNesting   int            `yaml:"max_nesting"`
	ClearLoops   []int          `yaml:"clear_loops,omitempty"`
	Runs         []Run          `yaml:"foldable_runs,omitempty"`
	// FoldSavings is the number of instructions a run-length encoder would
	// remove.
	FoldSavings int    `yaml:"fold_savings"`
	Error       string `yaml:"error,omitempty"`
}

// Run is a stretch of one repeated pointer or cell instruction. Comment
// bytes inside the stretch do not break it.
type Run struct {
	Offset int    `yaml:"offset"`
	Op     string `yaml:"op"`
	Length int    `yaml:"length"`
}

func foldable(op bf.Op) bool {
	switch op {
	case bf.Right, bf.Left, bf.Inc, bf.Dec:
		return true
	}
	return false
}

// Analyze scans src once. Bracket problems are recorded in Report.Error and
// the counts still cover the whole source.
func Analyze(src []byte) Report {
	r := Report{
		SourceBytes: len(src),
		Counts:      make(map[string]int),
	}

	type open struct{ offset, index int }
	var (
		run     Run
		prev    bf.Op
		pending []open
	)
	flush := func() {
		if run.Length >= MinRunLength {
			r.Runs = append(r.Runs, run)
			r.FoldSavings += run.Length - 1
		}
		run = Run{}
	}

	for i, c := range src {
		if !bf.IsOp(c) {
			continue
		}
		op := bf.Op(c)
		r.Instructions++
		r.Counts[string(c)]++

		if foldable(op) && run.Length > 0 && run.Op == string(c) {
			run.Length++
		} else {
			flush()
			if foldable(op) {
				run = Run{Offset: i, Op: string(c), Length: 1}
			}
		}

		index := r.Instructions - 1
		switch op {
		case bf.Open:
			pending = append(pending, open{offset: i, index: index})
			r.MaxNesting = max(r.MaxNesting, len(pending))
		case bf.Close:
			if len(pending) == 0 {
				if r.Error == "" {
					r.Error = (&bf.BracketError{Offset: i, Err: bf.ErrUnmatchedClose}).Error()
				}
				break
			}
			o := pending[len(pending)-1]
			pending = pending[:len(pending)-1]
			r.Loops++
			// "[-]" and "[+]" always leave the cell at zero.
			if index-o.index == 2 && (prev == bf.Dec || prev == bf.Inc) {
				r.ClearLoops = append(r.ClearLoops, o.offset)
			}
		}
		prev = op
	}
	flush()

	if len(pending) > 0 && r.Error == "" {
		r.Error = (&bf.BracketError{Offset: pending[len(pending)-1].offset, Err: bf.ErrUnmatchedOpen}).Error()
	}
	return r
}

// WriteYAML encodes the report to w.
func (r Report) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&r); err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close profile: %w", err)
	}
	return nil
}
