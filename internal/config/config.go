// Package config loads the optional YAML run configuration for bfjit.
package config

import (
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

const (
	DefaultEngine     = "jit"
	DefaultTapeSize   = 1 << 20
	DefaultBufferSize = 1 << 20

	maxConfigSize = 1024 * 1024
)

// Engines lists the accepted values of Config.Engine.
var Engines = []string{"jit", "interp", "asm", "llvm", "elf", "profile"}

// Config holds the settings a run can take from a file. Command line flags
// override anything set here.
type Config struct {
	Engine     string `yaml:"engine"`
	TapeSize   int    `yaml:"tape_size"`
	BufferSize int    `yaml:"buffer_size"`
	// MaxNesting limits loop depth for the native generator. Zero means
	// unbounded.
	MaxNesting int  `yaml:"max_nesting,omitempty"`
	Strict     bool `yaml:"strict,omitempty"`
	OutputFD   int  `yaml:"output_fd,omitempty"`
	Debug      bool `yaml:"debug,omitempty"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	var c Config
	c.Normalize()
	return c
}

// Normalize fills zero fields with their defaults.
func (c *Config) Normalize() {
	if c.Engine == "" {
		c.Engine = DefaultEngine
	}
	if c.TapeSize == 0 {
		c.TapeSize = DefaultTapeSize
	}
	if c.BufferSize == 0 {
		c.BufferSize = DefaultBufferSize
	}
}

// Validate rejects values no engine can use.
func (c Config) Validate() error {
	if !slices.Contains(Engines, c.Engine) {
		return fmt.Errorf("unknown engine %q (want one of %v)", c.Engine, Engines)
	}
	if c.TapeSize <= 0 {
		return fmt.Errorf("tape_size must be positive, got %d", c.TapeSize)
	}
	if c.BufferSize <= 0 {
		return fmt.Errorf("buffer_size must be positive, got %d", c.BufferSize)
	}
	if c.MaxNesting < 0 {
		return fmt.Errorf("max_nesting must not be negative, got %d", c.MaxNesting)
	}
	if c.OutputFD < 0 {
		return fmt.Errorf("output_fd must not be negative, got %d", c.OutputFD)
	}
	return nil
}

// Parse decodes YAML data, applies defaults and validates the result.
func Parse(data []byte) (Config, error) {
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	c.Normalize()
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Load reads the configuration file at path.
func Load(path string) (Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Config{}, fmt.Errorf("stat config: %w", err)
	}
	if info.Size() > maxConfigSize {
		return Config{}, fmt.Errorf("config %s is too large (%d bytes)", path, info.Size())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	c, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}
