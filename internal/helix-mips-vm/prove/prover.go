package prove

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/helix-zk/helix-mips-vm/internal/helix-mips-vm/trace"
)

// SegmentProver converts one closed segment into a SegmentProof. Proving is
// a pure function of the segment (including any precompile call bindings in
// its steps) and the run's verification key; distinct segments can be
// proved concurrently.
type SegmentProver struct {
	backend   Backend
	committer *trace.Committer
	vk        []byte
	log       zerolog.Logger
}

// NewSegmentProver creates a prover for one run
func NewSegmentProver(backend Backend, committer *trace.Committer, vk []byte, log zerolog.Logger) *SegmentProver {
	return &SegmentProver{
		backend:   backend,
		committer: committer,
		vk:        vk,
		log:       log.With().Str("component", "prover").Logger(),
	}
}

// Prove produces the proof artifact for one segment. Before invoking the
// backend it re-derives the step root from the recorded steps and compares
// it against the root captured at segment close; a mismatch means the
// segmenter or the VM core corrupted the trace and is fatal.
func (p *SegmentProver) Prove(ctx context.Context, seg *trace.Segment) (*SegmentProof, error) {
	if seg.Faulted {
		return nil, fmt.Errorf("segment %d was closed by a guest fault and cannot be proved: %w",
			seg.Index, ErrProofGeneration)
	}
	if len(seg.Steps) == 0 {
		return nil, fmt.Errorf("segment %d is empty: %w", seg.Index, ErrProofGeneration)
	}

	recomputed := trace.ComputeStepRoot(seg.Steps, p.committer.NewHash)
	if recomputed != seg.StepRoot {
		return nil, fmt.Errorf("segment %d step root mismatch: recorded %x, recomputed %x (entry %s, exit %s): %w",
			seg.Index, seg.StepRoot, recomputed,
			seg.EntryCommitment.Hex(), seg.ExitCommitment.Hex(), ErrProofGeneration)
	}

	proofBytes, err := p.backend.Prove(ctx, seg, p.vk)
	if err != nil {
		return nil, fmt.Errorf("backend %s on segment %d: %w", p.backend.Name(), seg.Index, err)
	}

	p.log.Debug().
		Int("segment", seg.Index).
		Int("steps", len(seg.Steps)).
		Str("entry", seg.EntryCommitment.Hex()).
		Str("exit", seg.ExitCommitment.Hex()).
		Msg("segment proved")

	return &SegmentProof{
		Version:      ProofVersion,
		SegmentIndex: seg.Index,
		Entry:        seg.EntryCommitment,
		Exit:         seg.ExitCommitment,
		StepCount:    uint64(len(seg.Steps)),
		StepRoot:     seg.StepRoot,
		Halted:       seg.Halted,
		Backend:      p.backend.Name(),
		ProofBytes:   proofBytes,
	}, nil
}
