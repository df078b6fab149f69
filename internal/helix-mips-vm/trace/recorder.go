package trace

import (
	"errors"

	"github.com/rs/zerolog"

	"github.com/helix-zk/helix-mips-vm/internal/helix-mips-vm/mips"
)

// Recorder drives the machine one step at a time and yields the ordered,
// finite step sequence. The sequence ends at guest halt or fault; it can
// only be restarted by re-running the machine from its initial state, since
// a trace is not reconstructible from a partial replay.
type Recorder struct {
	st    *mips.State
	log   zerolog.Logger
	steps uint64
	done  bool
}

// NewRecorder creates a recorder over the given machine state
func NewRecorder(st *mips.State, log zerolog.Logger) *Recorder {
	return &Recorder{
		st:  st,
		log: log.With().Str("component", "recorder").Logger(),
	}
}

// Next executes one step and returns its record. It returns (nil, nil) when
// the guest has halted normally; a non-nil error is a guest fault.
func (r *Recorder) Next() (*ExecutionStep, error) {
	if r.done {
		return nil, nil
	}

	ev, err := r.st.Step()
	if err != nil {
		if errors.Is(err, mips.ErrHalted) {
			r.done = true
			return nil, nil
		}
		r.done = true
		return nil, err
	}

	r.steps++
	if ev.Halted {
		r.done = true
	}

	if r.log.GetLevel() <= zerolog.TraceLevel {
		r.log.Trace().
			Uint64("cycle", ev.Cycle).
			Uint32("pc", ev.PC).
			Str("op", ev.Op).
			Msg("step")
	}

	return ev, nil
}

// Steps returns the number of steps recorded so far
func (r *Recorder) Steps() uint64 {
	return r.steps
}

// Done reports whether the trace has ended
func (r *Recorder) Done() bool {
	return r.done
}
