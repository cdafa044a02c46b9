package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/tinyrange/bfjit/internal/bf"
	"github.com/tinyrange/bfjit/internal/config"
	"github.com/tinyrange/bfjit/internal/interp"
	"github.com/tinyrange/bfjit/internal/jit"
	"github.com/tinyrange/bfjit/internal/llvmir"
	"github.com/tinyrange/bfjit/internal/nasm"
	"github.com/tinyrange/bfjit/internal/profile"
)

const (
	exitOK       = 0
	exitFailure  = 1
	exitGenerate = 2
)

// errUsage is returned for bad invocations; the usage text has already been
// printed.
var errUsage = errors.New("invalid usage")

func usage(fs *flag.FlagSet) func() {
	return func() {
		fmt.Fprintf(fs.Output(), `bfjit - compile and run tape programs

USAGE:
  bfjit [flags] <program> (use - to read the program from stdin)

ENGINES:
  jit      generate x86-64 code in memory and run it (linux/amd64)
  interp   run on the portable interpreter (supports ',')
  asm      write NASM source
  llvm     write LLVM IR
  elf      write a static linux/amd64 executable
  profile  write a YAML summary of the program

FLAGS:
`)
		fs.PrintDefaults()
	}
}

func run(args []string, stdin io.Reader, stdout io.Writer) error {
	fs := flag.NewFlagSet("bfjit", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	engine := fs.String("engine", config.DefaultEngine, "execution engine: jit, interp, asm, llvm, elf or profile")
	configPath := fs.String("config", "", "YAML configuration file; flags override its values")
	output := fs.String("o", "", "output path for asm, llvm, elf and profile (default stdout, a.out for elf)")
	strict := fs.Bool("strict", false, "reject ',' in the native generator instead of skipping it")
	tapeSize := fs.Int("tape-size", config.DefaultTapeSize, "number of tape cells")
	bufferSize := fs.Int("buffer-size", config.DefaultBufferSize, "maximum generated code size in bytes")
	maxNesting := fs.Int("max-nesting", 0, "maximum loop nesting for the native generator (0 = unbounded)")
	debug := fs.Bool("debug", false, "enable debug logging")
	fs.Usage = usage(fs)

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return errUsage
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return errUsage
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "engine":
			cfg.Engine = *engine
		case "strict":
			cfg.Strict = *strict
		case "tape-size":
			cfg.TapeSize = *tapeSize
		case "buffer-size":
			cfg.BufferSize = *bufferSize
		case "max-nesting":
			cfg.MaxNesting = *maxNesting
		case "debug":
			cfg.Debug = *debug
		}
	})
	if err := cfg.Validate(); err != nil {
		return err
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	src, err := readProgram(fs.Arg(0), stdin)
	if err != nil {
		return err
	}
	slog.Debug("loaded program", "path", fs.Arg(0), "bytes", len(src), "engine", cfg.Engine)

	jitOpts := jit.Options{
		BufferSize: cfg.BufferSize,
		MaxNesting: cfg.MaxNesting,
		OutputFD:   cfg.OutputFD,
		Strict:     cfg.Strict,
	}

	switch cfg.Engine {
	case "jit":
		return runNative(src, jitOpts, cfg.TapeSize)
	case "interp":
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		_, err := interp.Run(ctx, src, interp.Options{
			TapeSize: cfg.TapeSize,
			Input:    stdin,
			Output:   stdout,
		})
		return err
	case "asm":
		return writeOutput(*output, stdout, 0o644, func(w io.Writer) error {
			return nasm.Emit(w, src, nasm.Options{TapeSize: cfg.TapeSize})
		})
	case "llvm":
		return writeOutput(*output, stdout, 0o644, func(w io.Writer) error {
			return llvmir.Emit(w, src, llvmir.Options{TapeSize: cfg.TapeSize})
		})
	case "elf":
		code, err := jit.Compile(src, jitOpts)
		if err != nil {
			return err
		}
		exe, err := code.StandaloneELF(cfg.TapeSize)
		if err != nil {
			return err
		}
		path := *output
		if path == "" {
			path = "a.out"
		}
		return writeOutput(path, stdout, 0o755, func(w io.Writer) error {
			_, err := w.Write(exe)
			return err
		})
	case "profile":
		report := profile.Analyze(src)
		return writeOutput(*output, stdout, 0o644, report.WriteYAML)
	default:
		return fmt.Errorf("unknown engine %q", cfg.Engine)
	}
}

func runNative(src []byte, opts jit.Options, tapeSize int) error {
	code, err := jit.Compile(src, opts)
	if err != nil {
		return err
	}
	tape, err := jit.NewTape(tapeSize)
	if err != nil {
		return err
	}
	defer tape.Close()

	if err := code.Run(tape); err != nil {
		return fmt.Errorf("run: %w", err)
	}
	return nil
}

func readProgram(path string, stdin io.Reader) ([]byte, error) {
	if path == "-" {
		src, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read program from stdin: %w", err)
		}
		return src, nil
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read program: %w", err)
	}
	return src, nil
}

// writeOutput runs write against stdout when path is empty or "-", and
// against a newly created file otherwise.
func writeOutput(path string, stdout io.Writer, perm os.FileMode, write func(io.Writer) error) error {
	if path == "" || path == "-" {
		return write(stdout)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close output: %w", err)
	}
	slog.Debug("wrote output", "path", path)
	return nil
}

// exitCode maps an error from run to the process exit status. Problems found
// while translating the program exit with 2; everything else exits with 1.
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var genErr *jit.Error
	var bracketErr *bf.BracketError
	switch {
	case errors.As(err, &genErr), errors.As(err, &bracketErr):
		return exitGenerate
	case errors.Is(err, errUsage):
		return exitGenerate
	}
	return exitFailure
}

func main() {
	err := run(os.Args[1:], os.Stdin, os.Stdout)
	if err != nil && !errors.Is(err, errUsage) {
		fmt.Fprintf(os.Stderr, "bfjit: %v\n", err)
	}
	os.Exit(exitCode(err))
}
