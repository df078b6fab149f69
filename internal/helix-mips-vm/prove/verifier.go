package prove

import (
	"fmt"
	"hash"
)

// Verifier checks an aggregate proof against a public verification key,
// without re-executing the guest. It consumes only the aggregate: segment
// traces, memory images and machine state never reach the verifier.
type Verifier struct {
	backend Backend
	newHash func() hash.Hash
}

// NewVerifier creates a verifier over the run's commitment hash
func NewVerifier(backend Backend, newHash func() hash.Hash) *Verifier {
	return &Verifier{backend: backend, newHash: newHash}
}

// VerifyAggregate accepts or rejects a run's proof bundle. It re-validates
// boundary continuity, checks every constituent segment proof with the
// backend, and recomputes the proof root binding the bundle together.
func (v *Verifier) VerifyAggregate(agg *AggregateProof, vk []byte) error {
	if agg == nil {
		return fmt.Errorf("nil aggregate proof: %w", ErrInvalidProof)
	}
	if agg.Version != ProofVersion {
		return fmt.Errorf("aggregate proof version %d, want %d: %w", agg.Version, ProofVersion, ErrInvalidProof)
	}
	if len(agg.SegmentProofs) == 0 {
		return fmt.Errorf("aggregate proof has no segments: %w", ErrInvalidProof)
	}

	var totalSteps uint64
	for i, p := range agg.SegmentProofs {
		if p.Version != ProofVersion {
			return fmt.Errorf("segment %d proof version %d, want %d: %w", i, p.Version, ProofVersion, ErrInvalidProof)
		}
		if p.Backend != v.backend.Name() {
			return fmt.Errorf("segment %d proved by backend %q, verifier runs %q: %w", i, p.Backend, v.backend.Name(), ErrInvalidProof)
		}
		if p.SegmentIndex != i {
			return fmt.Errorf("segment proof at position %d has index %d: %w", i, p.SegmentIndex, ErrInvalidProof)
		}
		if i > 0 && agg.SegmentProofs[i-1].Exit != p.Entry {
			return fmt.Errorf("segment %d/%d boundary commitments do not chain: %w", i-1, i, ErrInvalidProof)
		}
		if err := v.backend.Verify(p.ProofBytes, vk, p.Entry, p.Exit, p.StepRoot, p.StepCount); err != nil {
			return fmt.Errorf("segment %d: %w", i, err)
		}
		totalSteps += p.StepCount
	}

	first := agg.SegmentProofs[0]
	last := agg.SegmentProofs[len(agg.SegmentProofs)-1]
	if first.Entry != agg.RunEntry {
		return fmt.Errorf("first segment entry does not match run entry: %w", ErrInvalidProof)
	}
	if last.Exit != agg.RunExit {
		return fmt.Errorf("last segment exit does not match run exit: %w", ErrInvalidProof)
	}
	if !last.Halted {
		return fmt.Errorf("run did not halt: %w", ErrInvalidProof)
	}
	if totalSteps != agg.TotalSteps {
		return fmt.Errorf("declared %d total steps, segments carry %d: %w", agg.TotalSteps, totalSteps, ErrInvalidProof)
	}

	agger := NewAggregator(v.newHash)
	if agger.proofRoot(agg.SegmentProofs) != agg.ProofRoot {
		return fmt.Errorf("proof root does not bind the segment proofs: %w", ErrInvalidProof)
	}

	return nil
}
