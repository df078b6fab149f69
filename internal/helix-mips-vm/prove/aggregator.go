package prove

import (
	"encoding/binary"
	"fmt"
	"hash"

	"github.com/helix-zk/helix-mips-vm/internal/helix-mips-vm/trace"
)

func be32(out []byte, v uint32) { binary.BigEndian.PutUint32(out, v) }
func be64(out []byte, v uint64) { binary.BigEndian.PutUint64(out, v) }

// Aggregator validates that segment proofs chain and bundles them into the
// run's AggregateProof. It is the single synchronization point of the
// pipeline: callers must not invoke it until every segment proof of the
// run has completed.
type Aggregator struct {
	newHash func() hash.Hash
}

// NewAggregator creates an aggregator over the run's commitment hash
func NewAggregator(newHash func() hash.Hash) *Aggregator {
	return &Aggregator{newHash: newHash}
}

// Aggregate checks boundary continuity across the ordered segment proofs
// and against the run's overall entry and exit commitments, then assembles
// the bundle. Any mismatch is ErrContinuityViolation: a hard pipeline
// defect that is surfaced, never repaired.
func (a *Aggregator) Aggregate(
	proofs []*SegmentProof,
	runEntry, runExit trace.StateCommitment,
	programHash [32]byte,
) (*AggregateProof, error) {
	if len(proofs) == 0 {
		return nil, fmt.Errorf("no segment proofs to aggregate: %w", ErrContinuityViolation)
	}

	var totalSteps uint64
	for i, p := range proofs {
		if p.SegmentIndex != i {
			return nil, fmt.Errorf("segment proof at position %d has index %d: %w",
				i, p.SegmentIndex, ErrContinuityViolation)
		}
		if i > 0 && proofs[i-1].Exit != p.Entry {
			return nil, fmt.Errorf(
				"segment %d exit %s does not match segment %d entry %s: %w",
				i-1, proofs[i-1].Exit.Hex(), i, p.Entry.Hex(), ErrContinuityViolation)
		}
		totalSteps += p.StepCount
	}

	if proofs[0].Entry != runEntry {
		return nil, fmt.Errorf("first segment entry %s does not match run entry %s: %w",
			proofs[0].Entry.Hex(), runEntry.Hex(), ErrContinuityViolation)
	}
	last := proofs[len(proofs)-1]
	if last.Exit != runExit {
		return nil, fmt.Errorf("last segment exit %s does not match run exit %s: %w",
			last.Exit.Hex(), runExit.Hex(), ErrContinuityViolation)
	}
	if !last.Halted {
		return nil, fmt.Errorf("last segment did not halt the guest: %w", ErrContinuityViolation)
	}

	return &AggregateProof{
		Version:       ProofVersion,
		SegmentProofs: proofs,
		RunEntry:      runEntry,
		RunExit:       runExit,
		ProgramHash:   programHash,
		TotalSteps:    totalSteps,
		ProofRoot:     a.proofRoot(proofs),
	}, nil
}

// proofRoot computes the Merkle root over segment proof digests,
// duplicating the last leaf on odd levels. Every field of each segment
// proof is part of its leaf, so no byte of the bundle is malleable.
func (a *Aggregator) proofRoot(proofs []*SegmentProof) [32]byte {
	h := a.newHash()

	level := make([][32]byte, len(proofs))
	for i, p := range proofs {
		var meta [17]byte
		be32(meta[0:], p.Version)
		be32(meta[4:], uint32(p.SegmentIndex))
		be64(meta[8:], p.StepCount)
		if p.Halted {
			meta[16] = 1
		}

		h.Reset()
		h.Write(meta[:])
		h.Write([]byte(p.Backend))
		h.Write(p.Entry[:])
		h.Write(p.Exit[:])
		h.Write(p.StepRoot[:])
		h.Write(p.ProofBytes)
		copy(level[i][:], h.Sum(nil))
	}

	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		next := level[:len(level)/2]
		for i := 0; i < len(level); i += 2 {
			h.Reset()
			h.Write(level[i][:])
			h.Write(level[i+1][:])
			var parent [32]byte
			copy(parent[:], h.Sum(nil))
			next[i/2] = parent
		}
		level = next
	}

	return level[0]
}
