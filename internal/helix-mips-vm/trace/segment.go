package trace

import (
	"encoding/binary"
	"hash"
)

// Segment is a closed, bounded slice of the execution trace together with
// the state commitments at its boundaries. Segments are immutable once
// closed and are proved independently of each other.
type Segment struct {
	// Index is the zero-based position of the segment in the run
	Index int

	// Steps are the recorded execution steps, at most the configured
	// segment size
	Steps []*ExecutionStep

	// EntryCommitment is the state commitment immediately before the
	// first step; ExitCommitment immediately after the last
	EntryCommitment StateCommitment
	ExitCommitment  StateCommitment

	// StepRoot is the Merkle root over the encoded steps, recorded when
	// the segment closes. The prover recomputes it as a defensive check.
	StepRoot [32]byte

	// Halted is set when the segment ends with normal guest termination
	Halted bool

	// Faulted is set when the segment was closed by a guest fault; a
	// faulted segment is reported for diagnostics but never proved
	Faulted bool
}

// FirstCycle returns the cycle number of the segment's first step
func (s *Segment) FirstCycle() uint64 {
	if len(s.Steps) == 0 {
		return 0
	}
	return s.Steps[0].Cycle
}

// LastCycle returns the cycle number of the segment's last step
func (s *Segment) LastCycle() uint64 {
	if len(s.Steps) == 0 {
		return 0
	}
	return s.Steps[len(s.Steps)-1].Cycle
}

// EncodeStep serializes one execution step for hashing. The encoding is
// deterministic and covers everything the step record carries.
func EncodeStep(ev *ExecutionStep) []byte {
	// Worst-case size: fixed header plus per-access entries.
	out := make([]byte, 0, 32+9*len(ev.RegWrites)+9*len(ev.MemOps))

	var w8 [8]byte
	binary.BigEndian.PutUint64(w8[:], ev.Cycle)
	out = append(out, w8[:]...)
	out = be32(out, ev.PC)
	out = be32(out, ev.NextPC)
	out = be32(out, ev.Insn)
	out = append(out, uint8(len(ev.Op)))
	out = append(out, ev.Op...)

	out = append(out, uint8(len(ev.RegWrites)))
	for _, rw := range ev.RegWrites {
		out = append(out, rw.Reg)
		out = be32(out, rw.Old)
		out = be32(out, rw.New)
	}

	binary.BigEndian.PutUint64(w8[:], uint64(len(ev.MemOps)))
	out = append(out, w8[:]...)
	for _, op := range ev.MemOps {
		out = append(out, byte(op.Kind))
		out = be32(out, op.Addr)
		out = be32(out, op.Value)
	}

	if ev.Precompile != nil {
		out = append(out, 1)
		out = be32(out, ev.Precompile.ID)
		out = append(out, uint8(len(ev.Precompile.Inputs)))
		for _, v := range ev.Precompile.Inputs {
			out = be32(out, v)
		}
		out = append(out, uint8(len(ev.Precompile.Outputs)))
		for _, v := range ev.Precompile.Outputs {
			out = be32(out, v)
		}
	} else {
		out = append(out, 0)
	}

	if ev.Halted {
		out = append(out, 1)
	} else {
		out = append(out, 0)
	}

	return out
}

func be32(out []byte, v uint32) []byte {
	var w [4]byte
	binary.BigEndian.PutUint32(w[:], v)
	return append(out, w[:]...)
}

// ComputeStepRoot builds a binary Merkle root over the hashed step
// encodings, duplicating the last leaf on odd levels
func ComputeStepRoot(steps []*ExecutionStep, newHash func() hash.Hash) [32]byte {
	h := newHash()

	leaf := func(ev *ExecutionStep) [32]byte {
		h.Reset()
		h.Write(EncodeStep(ev))
		var out [32]byte
		copy(out[:], h.Sum(nil))
		return out
	}

	if len(steps) == 0 {
		h.Reset()
		var out [32]byte
		copy(out[:], h.Sum(nil))
		return out
	}

	level := make([][32]byte, len(steps))
	for i, ev := range steps {
		level[i] = leaf(ev)
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
