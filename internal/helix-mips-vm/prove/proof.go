// Package prove converts closed trace segments into proof artifacts and
// assembles them into one verifiable bundle. The cryptographic heavy
// lifting lives behind the Backend interface; this package owns the
// orchestration contracts: per-segment independence, defensive consistency
// checks, boundary-commitment continuity and all-or-nothing aggregation.
package prove

import (
	"errors"

	"github.com/helix-zk/helix-mips-vm/internal/helix-mips-vm/trace"
)

// Pipeline-internal defects. All of them are fatal for the run and are
// surfaced with full diagnostic context rather than repaired or retried:
// determinism means a retry with the same inputs reproduces the same fault.
var (
	// ErrProofGeneration means a segment's recorded step sequence is
	// inconsistent with its declared boundary data, indicating a
	// segmenter or VM core bug.
	ErrProofGeneration = errors.New("prove: segment inconsistent with declared commitments")

	// ErrContinuityViolation means adjacent segment boundary commitments
	// do not chain. This must never happen for a correctly produced run.
	ErrContinuityViolation = errors.New("prove: segment boundary commitments do not chain")

	// ErrInvalidProof means a proof artifact failed verification.
	ErrInvalidProof = errors.New("prove: proof verification failed")
)

// ProofVersion identifies the artifact layout. It changes whenever the
// proof byte format or the transcript derivation changes.
const ProofVersion uint32 = 1

// SegmentProof is the opaque proof artifact for one segment, bound to the
// segment's entry and exit state commitments. It is produced by the
// segment prover and owned by the aggregator afterwards.
type SegmentProof struct {
	Version      uint32                `cbor:"1,keyasint"`
	SegmentIndex int                   `cbor:"2,keyasint"`
	Entry        trace.StateCommitment `cbor:"3,keyasint"`
	Exit         trace.StateCommitment `cbor:"4,keyasint"`
	StepCount    uint64                `cbor:"5,keyasint"`
	StepRoot     [32]byte              `cbor:"6,keyasint"`
	Halted       bool                  `cbor:"7,keyasint"`
	Backend      string                `cbor:"8,keyasint"`
	ProofBytes   []byte                `cbor:"9,keyasint"`
}

// AggregateProof is the verifier-facing bundle for an entire run: the
// ordered segment proofs plus the run's overall entry and exit commitments.
// Only the aggregator assembles it, and only after every segment proof for
// the run has finished.
type AggregateProof struct {
	Version       uint32                `cbor:"1,keyasint"`
	SegmentProofs []*SegmentProof       `cbor:"2,keyasint"`
	RunEntry      trace.StateCommitment `cbor:"3,keyasint"`
	RunExit       trace.StateCommitment `cbor:"4,keyasint"`
	ProgramHash   [32]byte              `cbor:"5,keyasint"`
	TotalSteps    uint64                `cbor:"6,keyasint"`

	// ProofRoot is the Merkle root over the segment proof digests,
	// committing the aggregate to its exact constituent set.
	ProofRoot [32]byte `cbor:"7,keyasint"`
}
