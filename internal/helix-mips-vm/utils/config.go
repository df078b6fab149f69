package utils

import (
	"fmt"
	"os"
	"strconv"
)

// Environment variables recognized by the pipeline. They form the external
// configuration surface of the host; CLI flags map onto the same fields.
const (
	EnvArgs           = "ARGS"
	EnvSegSize        = "SEG_SIZE"
	EnvSegOutput      = "SEG_OUTPUT"
	EnvPrecompilePath = "PRECOMPILE_PATH"
	EnvLogLevel       = "HELIX_LOG"
)

// DefaultSegSize is the default upper bound on execution steps per segment.
// It is an explicit contract: runs that never set SEG_SIZE are segmented at
// this boundary, and the value is part of the documented interface rather
// than an internal tuning knob.
const DefaultSegSize = 65536

// Config represents the configuration for a proving run
type Config struct {
	// Args is the argument buffer handed to the guest program. The guest
	// reads it through the deterministic hint syscalls.
	Args []byte

	// SegSize is the upper bound on steps per segment (must be positive)
	SegSize int

	// SegOutput is the directory where segment and aggregate proof
	// artifacts are written
	SegOutput string

	// PrecompilePath is the path to the compiled precompile circuit
	// artifact. Empty means no precompile circuits are registered.
	PrecompilePath string

	// Workers bounds the parallel segment-proving pool. Zero or negative
	// means one worker per segment up to GOMAXPROCS.
	Workers int

	// CommitmentHash selects the state commitment hash function
	// ("keccak256", "sha256" or "mimc")
	CommitmentHash string

	// LogLevel is the zerolog level name. Non-functional: it never
	// affects proof content.
	LogLevel string
}

// DefaultConfig returns the default run configuration
func DefaultConfig() *Config {
	return &Config{
		Args:           nil,
		SegSize:        DefaultSegSize,
		SegOutput:      "proofs",
		PrecompilePath: "",
		Workers:        0,
		CommitmentHash: "keccak256",
		LogLevel:       "info",
	}
}

// ConfigFromEnv builds a configuration from the recognized environment
// variables, starting from the defaults
func ConfigFromEnv() (*Config, error) {
	c := DefaultConfig()

	if v, ok := os.LookupEnv(EnvArgs); ok {
		c.Args = []byte(v)
	}
	if v, ok := os.LookupEnv(EnvSegSize); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", EnvSegSize, v, err)
		}
		c.SegSize = n
	}
	if v, ok := os.LookupEnv(EnvSegOutput); ok {
		c.SegOutput = v
	}
	if v, ok := os.LookupEnv(EnvPrecompilePath); ok {
		c.PrecompilePath = v
	}
	if v, ok := os.LookupEnv(EnvLogLevel); ok {
		c.LogLevel = v
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.SegSize <= 0 {
		return fmt.Errorf("segment size must be positive, got %d", c.SegSize)
	}

	if c.SegOutput == "" {
		return fmt.Errorf("segment output location must not be empty")
	}

	switch c.CommitmentHash {
	case "keccak256", "sha256", "mimc":
	default:
		return fmt.Errorf("commitment hash must be 'keccak256', 'sha256' or 'mimc', got '%s'", c.CommitmentHash)
	}

	return nil
}

// WithArgs sets the guest argument buffer
func (c *Config) WithArgs(args []byte) *Config {
	c.Args = append([]byte(nil), args...)
	return c
}

// WithSegSize sets the per-segment step bound
func (c *Config) WithSegSize(size int) *Config {
	c.SegSize = size
	return c
}

// WithSegOutput sets the artifact output directory
func (c *Config) WithSegOutput(dir string) *Config {
	c.SegOutput = dir
	return c
}

// WithPrecompilePath sets the precompile circuit artifact path
func (c *Config) WithPrecompilePath(path string) *Config {
	c.PrecompilePath = path
	return c
}

// WithWorkers sets the prover pool bound
func (c *Config) WithWorkers(n int) *Config {
	c.Workers = n
	return c
}

// WithCommitmentHash sets the state commitment hash function
func (c *Config) WithCommitmentHash(name string) *Config {
	c.CommitmentHash = name
	return c
}

// Clone creates a copy of the configuration
func (c *Config) Clone() *Config {
	clone := *c
	clone.Args = append([]byte(nil), c.Args...)
	return &clone
}
