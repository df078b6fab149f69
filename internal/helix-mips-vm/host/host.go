// Package host drives the full pipeline: guest execution, trace
// segmentation, parallel segment proving and all-or-nothing aggregation.
// One Host value runs one guest at a time; all run state lives in the run
// itself, so independent runs never interfere.
package host

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/helix-zk/helix-mips-vm/internal/helix-mips-vm/mips"
	"github.com/helix-zk/helix-mips-vm/internal/helix-mips-vm/precompile"
	"github.com/helix-zk/helix-mips-vm/internal/helix-mips-vm/prove"
	"github.com/helix-zk/helix-mips-vm/internal/helix-mips-vm/trace"
	"github.com/helix-zk/helix-mips-vm/internal/helix-mips-vm/utils"
)

// Host orchestrates runs. Construct it once with New and reuse it across
// guests; per-run state is created inside Run.
type Host struct {
	cfg      *utils.Config
	log      zerolog.Logger
	registry *precompile.Registry
	backend  prove.Backend

	// emulate forces precompile syscalls through plain emulation without
	// trace tagging, regardless of artifact availability
	emulate bool
}

// Option adjusts a Host at construction time
type Option func(*Host)

// WithRegistry replaces the built-in precompile registry
func WithRegistry(reg *precompile.Registry) Option {
	return func(h *Host) { h.registry = reg }
}

// WithBackend replaces the proving backend
func WithBackend(b prove.Backend) Option {
	return func(h *Host) { h.backend = b }
}

// WithEmulatedPrecompiles disables precompile delegation: marked syscalls
// run through instruction-level emulation and produce untagged steps.
func WithEmulatedPrecompiles() Option {
	return func(h *Host) { h.emulate = true }
}

// New builds a Host over a validated configuration
func New(cfg *utils.Config, log zerolog.Logger, opts ...Option) (*Host, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid host configuration: %w", err)
	}
	h := &Host{
		cfg:      cfg.Clone(),
		log:      log,
		registry: precompile.DefaultRegistry(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

func (h *Host) workers() int {
	if h.cfg.Workers > 0 {
		return h.cfg.Workers
	}
	return runtime.GOMAXPROCS(0)
}

// Run executes the guest to completion, proves every complete segment in a
// bounded worker pool, and aggregates the segment proofs into a single
// bundle in the output directory.
//
// On a guest fault the run stops at the faulting step: segments closed
// before the fault keep their proofs on disk, a failure report replaces the
// aggregate, and the returned error wraps the fault. The Summary is
// populated in both outcomes.
func (h *Host) Run(ctx context.Context, guest Guest) (*Summary, error) {
	start := time.Now()

	committer, err := trace.NewCommitter(h.cfg.CommitmentHash)
	if err != nil {
		return nil, err
	}

	st := mips.NewState(h.cfg.Args)
	programHash, err := guest.load(st, func(image []byte) [32]byte {
		hsh := committer.NewHash()
		hsh.Write(image)
		var d [32]byte
		copy(d[:], hsh.Sum(nil))
		return d
	})
	if err != nil {
		return nil, err
	}

	if h.emulate {
		st.SetDispatcher(precompile.NewEmulatingDispatcher(h.registry, h.log))
	} else {
		st.SetDispatcher(precompile.NewDispatcher(h.registry, h.cfg.PrecompilePath, h.log))
	}

	if err := os.MkdirAll(h.cfg.SegOutput, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	backend := h.backend
	if backend == nil {
		backend = prove.NewTranscriptBackend(committer.NewHash)
	}
	vk := prove.DeriveVerificationKey(committer.NewHash, programHash, committer.Name())
	prover := prove.NewSegmentProver(backend, committer, vk, h.log)

	h.log.Info().
		Str("program", hexDigest(programHash)).
		Str("hash", committer.Name()).
		Int("seg_size", h.cfg.SegSize).
		Int("workers", h.workers()).
		Msg("starting run")

	// The pool is bounded: once it is full, the execution loop blocks on
	// enqueue until a prover slot frees up, which keeps the number of
	// in-memory segments proportional to the worker count.
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)
	g.SetLimit(h.workers())

	var mu sync.Mutex
	proofByIndex := make(map[int]*prove.SegmentProof)

	enqueue := func(seg *trace.Segment) {
		g.Go(func() error {
			// Queued work observes cancellation before starting; a
			// task already proving runs to completion but its proof
			// is discarded by the failed join below.
			if err := gctx.Err(); err != nil {
				return err
			}
			p, err := prover.Prove(gctx, seg)
			if err != nil {
				return err
			}
			if err := prove.WriteSegmentProof(h.cfg.SegOutput, p); err != nil {
				return err
			}
			mu.Lock()
			proofByIndex[seg.Index] = p
			mu.Unlock()
			return nil
		})
	}

	recorder := trace.NewRecorder(st, h.log)
	segmenter := trace.NewSegmenter(st, committer, h.cfg.SegSize)

	var guestFault error
	for {
		if err := gctx.Err(); err != nil {
			// A prover already failed; executing further segments
			// would only queue work destined to be discarded.
			break
		}
		segmenter.BeginStep()
		ev, err := recorder.Next()
		if err != nil {
			guestFault = err
			segmenter.CloseFaulted()
			break
		}
		if ev == nil {
			break
		}
		if seg := segmenter.Append(ev); seg != nil {
			h.log.Debug().
				Int("segment", seg.Index).
				Uint64("first_cycle", seg.FirstCycle()).
				Int("steps", len(seg.Steps)).
				Msg("segment closed")
			enqueue(seg)
		}
		if ev.Halted {
			break
		}
	}

	// Single join barrier: nothing is aggregated until every enqueued
	// segment has either proved or failed.
	proveErr := g.Wait()

	summary := &Summary{
		Halted:          st.Halted,
		ExitCode:        st.ExitCode,
		SegmentCount:    segmenter.Segments(),
		TotalSteps:      st.Cycle,
		RunEntry:        segmenter.RunEntry().Hex(),
		RunExit:         segmenter.RunExit().Hex(),
		ProgramHash:     hexDigest(programHash),
		VerificationKey: fmt.Sprintf("%x", vk),
		PublicValues:    append([]byte(nil), st.PublicValues...),
	}

	if guestFault != nil {
		if errors.Is(guestFault, precompile.ErrUnboundPrecompile) {
			// A host configuration defect, not a guest defect: no fault
			// flag and no failure report, the run just cannot proceed.
			summary.WallTime = time.Since(start)
			h.log.Error().
				Uint64("step", st.Cycle).
				Str("reason", guestFault.Error()).
				Msg("precompile delegation failed")
			return summary, fmt.Errorf("precompile delegation failed at step %d: %w", st.Cycle, guestFault)
		}

		summary.Faulted = true
		summary.FaultStep = st.Cycle
		summary.FaultReason = guestFault.Error()
		report := &FailureReport{
			FaultStep:   st.Cycle,
			PC:          st.PC,
			Reason:      guestFault.Error(),
			Segments:    segmenter.Segments(),
			ProgramHash: summary.ProgramHash,
			RunEntry:    summary.RunEntry,
		}
		if err := writeFailureReport(h.cfg.SegOutput, report); err != nil {
			h.log.Error().Err(err).Msg("could not persist failure report")
		}
		summary.WallTime = time.Since(start)
		h.log.Error().
			Uint64("step", st.Cycle).
			Str("reason", guestFault.Error()).
			Msg("guest faulted")
		return summary, fmt.Errorf("guest fault at step %d: %w", st.Cycle, guestFault)
	}

	if proveErr != nil {
		summary.WallTime = time.Since(start)
		return summary, fmt.Errorf("segment proving failed: %w", proveErr)
	}

	if !st.Halted {
		// Execution loop exited without halt or fault; only external
		// cancellation reaches here.
		summary.WallTime = time.Since(start)
		return summary, fmt.Errorf("run interrupted: %w", ctx.Err())
	}

	ordered := make([]*prove.SegmentProof, segmenter.Segments())
	for i := range ordered {
		p, ok := proofByIndex[i]
		if !ok {
			summary.WallTime = time.Since(start)
			return summary, fmt.Errorf("segment %d has no proof: %w", i, prove.ErrProofGeneration)
		}
		ordered[i] = p
	}

	agg, err := prove.NewAggregator(committer.NewHash).Aggregate(
		ordered, segmenter.RunEntry(), segmenter.RunExit(), programHash)
	if err != nil {
		summary.WallTime = time.Since(start)
		return summary, err
	}
	if err := prove.WriteAggregateProof(h.cfg.SegOutput, agg); err != nil {
		summary.WallTime = time.Since(start)
		return summary, err
	}

	summary.AggregatePath = filepath.Join(h.cfg.SegOutput, prove.AggregateFileName)
	summary.WallTime = time.Since(start)

	h.log.Info().
		Int("segments", summary.SegmentCount).
		Uint64("steps", summary.TotalSteps).
		Uint32("exit_code", summary.ExitCode).
		Dur("wall_time", summary.WallTime).
		Str("aggregate", summary.AggregatePath).
		Msg("run complete")
	return summary, nil
}

// VerifyAggregateFile checks an on-disk aggregate proof against the guest
// binary it claims to prove. The verification key is re-derived from the
// binary, so a proof for a different program fails the key check.
func VerifyAggregateFile(proofPath string, guest Guest, commitmentHash string) error {
	committer, err := trace.NewCommitter(commitmentHash)
	if err != nil {
		return err
	}

	st := mips.NewState(nil)
	programHash, err := guest.load(st, func(image []byte) [32]byte {
		hsh := committer.NewHash()
		hsh.Write(image)
		var d [32]byte
		copy(d[:], hsh.Sum(nil))
		return d
	})
	if err != nil {
		return err
	}

	agg, err := prove.ReadAggregateProof(proofPath)
	if err != nil {
		return err
	}
	if agg.ProgramHash != programHash {
		return fmt.Errorf("proof is for program %x, not %x: %w",
			agg.ProgramHash, programHash, prove.ErrInvalidProof)
	}

	vk := prove.DeriveVerificationKey(committer.NewHash, programHash, committer.Name())
	backend := prove.NewTranscriptBackend(committer.NewHash)
	return prove.NewVerifier(backend, committer.NewHash).VerifyAggregate(agg, vk)
}
