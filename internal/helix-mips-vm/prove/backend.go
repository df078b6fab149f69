package prove

import (
	"bytes"
	"context"
	"fmt"
	"hash"

	"github.com/helix-zk/helix-mips-vm/internal/helix-mips-vm/trace"
)

// Backend turns a consistency-checked segment into proof bytes and checks
// them again later. Implementations must be pure in the segment and the
// verification key: no dependence on other segments or ambient state.
type Backend interface {
	// Name identifies the backend in artifacts
	Name() string

	// Prove produces the proof bytes for one segment
	Prove(ctx context.Context, seg *trace.Segment, vk []byte) ([]byte, error)

	// Verify checks proof bytes against the public segment data
	Verify(proofBytes, vk []byte, entry, exit trace.StateCommitment, stepRoot [32]byte, stepCount uint64) error
}

// Proof byte layout of the transcript backend, following the Groth16
// [A, B, C] convention: A(64) + B(128) + C(64) bytes.
const (
	transcriptPointASize = 64
	transcriptPointBSize = 128
	transcriptPointCSize = 64
	transcriptProofSize  = transcriptPointASize + transcriptPointBSize + transcriptPointCSize
)

// TranscriptBackend derives Groth16-shaped proof bytes from the segment
// transcript: every point is a chained digest over the verification key,
// the boundary commitments and the step root. It stands in for the
// external proving system, which is an external collaborator of this
// pipeline; the binding structure and the verification flow are identical.
type TranscriptBackend struct {
	newHash func() hash.Hash
}

// NewTranscriptBackend creates a transcript backend over the run's
// commitment hash
func NewTranscriptBackend(newHash func() hash.Hash) *TranscriptBackend {
	return &TranscriptBackend{newHash: newHash}
}

// Name implements Backend
func (t *TranscriptBackend) Name() string { return "transcript" }

func (t *TranscriptBackend) digest(parts ...[]byte) []byte {
	h := t.newHash()
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}

func (t *TranscriptBackend) derive(vk []byte, entry, exit trace.StateCommitment, stepRoot [32]byte, stepCount uint64) []byte {
	count := []byte{
		byte(stepCount >> 56), byte(stepCount >> 48), byte(stepCount >> 40), byte(stepCount >> 32),
		byte(stepCount >> 24), byte(stepCount >> 16), byte(stepCount >> 8), byte(stepCount),
	}

	a1 := t.digest(vk, entry[:], exit[:], stepRoot[:], count, []byte("A1"))
	a2 := t.digest(a1, []byte("A2"))

	b1 := t.digest(a1, a2, stepRoot[:], []byte("B1"))
	b2 := t.digest(b1, []byte("B2"))
	b3 := t.digest(b2, []byte("B3"))
	b4 := t.digest(b3, []byte("B4"))

	c1 := t.digest(a1, b1, b4, []byte("C1"))
	c2 := t.digest(c1, []byte("C2"))

	proof := make([]byte, 0, transcriptProofSize)
	proof = append(proof, a1...)
	proof = append(proof, a2...)
	proof = append(proof, b1...)
	proof = append(proof, b2...)
	proof = append(proof, b3...)
	proof = append(proof, b4...)
	proof = append(proof, c1...)
	proof = append(proof, c2...)
	return proof
}

// Prove implements Backend
func (t *TranscriptBackend) Prove(ctx context.Context, seg *trace.Segment, vk []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return t.derive(vk, seg.EntryCommitment, seg.ExitCommitment, seg.StepRoot, uint64(len(seg.Steps))), nil
}

// Verify implements Backend
func (t *TranscriptBackend) Verify(proofBytes, vk []byte, entry, exit trace.StateCommitment, stepRoot [32]byte, stepCount uint64) error {
	if len(proofBytes) != transcriptProofSize {
		return fmt.Errorf("proof is %d bytes, want %d: %w", len(proofBytes), transcriptProofSize, ErrInvalidProof)
	}
	want := t.derive(vk, entry, exit, stepRoot, stepCount)
	if !bytes.Equal(proofBytes, want) {
		return fmt.Errorf("proof bytes do not bind to declared commitments: %w", ErrInvalidProof)
	}
	return nil
}

// DeriveVerificationKey computes the run-level public verification key
// from the guest program hash and the commitment hash name. A verifier
// needs only this key and the aggregate proof.
func DeriveVerificationKey(newHash func() hash.Hash, programHash [32]byte, commitmentHash string) []byte {
	h := newHash()
	h.Write([]byte("helix-vk-v1"))
	h.Write(programHash[:])
	h.Write([]byte(commitmentHash))
	return h.Sum(nil)
}
