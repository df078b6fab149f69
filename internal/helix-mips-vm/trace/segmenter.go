package trace

import (
	"github.com/helix-zk/helix-mips-vm/internal/helix-mips-vm/mips"
)

// Segmenter partitions the step stream into segments of at most segSize
// steps, committing the machine state at every boundary. A segment closes
// exactly when it reaches segSize steps, or early when the guest halts or
// faults; a run whose step count is an exact multiple of segSize never
// produces a trailing empty segment.
type Segmenter struct {
	st        *mips.State
	committer *Committer
	segSize   int

	current  *Segment
	index    int
	runEntry StateCommitment
	runExit  StateCommitment
	hasEntry bool
	failed   bool
}

// NewSegmenter creates a segmenter over the machine whose trace is being
// recorded. segSize must be positive (validated by the config layer).
func NewSegmenter(st *mips.State, committer *Committer, segSize int) *Segmenter {
	return &Segmenter{
		st:        st,
		committer: committer,
		segSize:   segSize,
	}
}

// BeginStep must be called before each machine step. When no segment is
// open it captures the entry commitment of the next segment from the
// current (pre-step) machine state.
func (s *Segmenter) BeginStep() {
	if s.current != nil || s.failed {
		return
	}
	entry := s.committer.Commit(s.st)
	if !s.hasEntry {
		s.runEntry = entry
		s.hasEntry = true
	}
	s.current = &Segment{
		Index:           s.index,
		Steps:           make([]*ExecutionStep, 0, s.segSize),
		EntryCommitment: entry,
	}
}

// Append adds the step executed since BeginStep. It returns the closed
// segment when the step filled it or halted the guest, and nil while the
// segment is still open.
func (s *Segmenter) Append(ev *ExecutionStep) *Segment {
	if s.current == nil || s.failed {
		return nil
	}
	s.current.Steps = append(s.current.Steps, ev)

	if len(s.current.Steps) >= s.segSize || ev.Halted {
		return s.close(ev.Halted, false)
	}
	return nil
}

// CloseFaulted closes the in-progress segment after a guest fault and
// flags the run as failed; no further segments are produced. Returns nil
// when the fault happened on a segment boundary with no open segment.
func (s *Segmenter) CloseFaulted() *Segment {
	s.failed = true
	if s.current == nil {
		return nil
	}
	return s.close(false, true)
}

func (s *Segmenter) close(halted, faulted bool) *Segment {
	seg := s.current
	seg.ExitCommitment = s.committer.Commit(s.st)
	seg.StepRoot = ComputeStepRoot(seg.Steps, s.committer.NewHash)
	seg.Halted = halted
	seg.Faulted = faulted
	s.runExit = seg.ExitCommitment
	s.current = nil
	s.index++
	s.failed = s.failed || faulted
	return seg
}

// RunEntry returns the state commitment at the very start of the run
func (s *Segmenter) RunEntry() StateCommitment {
	return s.runEntry
}

// RunExit returns the exit commitment of the last closed segment
func (s *Segmenter) RunExit() StateCommitment {
	return s.runExit
}

// Segments returns how many segments have been closed
func (s *Segmenter) Segments() int {
	return s.index
}

// Failed reports whether the run was flagged as failed by a fault
func (s *Segmenter) Failed() bool {
	return s.failed
}
