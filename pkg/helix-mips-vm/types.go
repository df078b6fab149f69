package helixmipsvm

import (
	"github.com/helix-zk/helix-mips-vm/internal/helix-mips-vm/host"
	"github.com/helix-zk/helix-mips-vm/internal/helix-mips-vm/prove"
	"github.com/helix-zk/helix-mips-vm/internal/helix-mips-vm/trace"
	"github.com/helix-zk/helix-mips-vm/internal/helix-mips-vm/utils"
)

// Config holds the run configuration: guest arguments, segment size,
// output location, precompile binding, worker pool bound and commitment
// hash selection.
type Config = utils.Config

// DefaultConfig returns the default run configuration
func DefaultConfig() *Config {
	return utils.DefaultConfig()
}

// ConfigFromEnv builds a configuration from the process environment,
// falling back to defaults for anything unset
func ConfigFromEnv() (*Config, error) {
	return utils.ConfigFromEnv()
}

// Guest references the program to run: an in-process instruction
// sequence, an in-memory binary image, or a path on disk
type Guest = host.Guest

// Summary reports the outcome of a pipeline run
type Summary = host.Summary

// StateCommitment is a digest of the complete machine state at a segment
// boundary
type StateCommitment = trace.StateCommitment

// SegmentProof is the proof of one trace segment
type SegmentProof = prove.SegmentProof

// AggregateProof is the bundle of all segment proofs of a run, chained by
// boundary commitments
type AggregateProof = prove.AggregateProof

// ReadAggregateProof loads an aggregate proof artifact from disk
func ReadAggregateProof(path string) (*AggregateProof, error) {
	return prove.ReadAggregateProof(path)
}
