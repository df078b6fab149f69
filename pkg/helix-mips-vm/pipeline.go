package helixmipsvm

import (
	"context"
	"errors"
	"io"

	"github.com/rs/zerolog"

	"github.com/helix-zk/helix-mips-vm/internal/helix-mips-vm/host"
	"github.com/helix-zk/helix-mips-vm/internal/helix-mips-vm/mips"
	"github.com/helix-zk/helix-mips-vm/internal/helix-mips-vm/precompile"
	"github.com/helix-zk/helix-mips-vm/internal/helix-mips-vm/prove"
	"github.com/helix-zk/helix-mips-vm/internal/helix-mips-vm/utils"
)

// Pipeline is the public interface for the execution-and-proving pipeline
type Pipeline interface {
	// Run executes the guest, proves every segment and writes the
	// aggregate proof to the configured output directory
	Run(ctx context.Context, guest Guest) (*Summary, error)
}

// pipelineImpl is the internal implementation of Pipeline
type pipelineImpl struct {
	host *host.Host
}

// PipelineOption adjusts pipeline construction
type PipelineOption func(*pipelineOptions)

type pipelineOptions struct {
	logOut  io.Writer
	emulate bool
}

// WithLogOutput redirects pipeline logging. The default is stderr.
func WithLogOutput(w io.Writer) PipelineOption {
	return func(o *pipelineOptions) { o.logOut = w }
}

// WithEmulatedPrecompiles runs precompile syscalls through plain
// instruction-level emulation instead of circuit delegation
func WithEmulatedPrecompiles() PipelineOption {
	return func(o *pipelineOptions) { o.emulate = true }
}

// NewPipeline creates a pipeline over the given configuration
func NewPipeline(config *Config, opts ...PipelineOption) (Pipeline, error) {
	po := &pipelineOptions{}
	for _, opt := range opts {
		opt(po)
	}

	var log zerolog.Logger
	if po.logOut != nil {
		log = utils.NewLoggerTo(po.logOut, config.LogLevel)
	} else {
		log = utils.NewLogger(config.LogLevel)
	}

	var hostOpts []host.Option
	if po.emulate {
		hostOpts = append(hostOpts, host.WithEmulatedPrecompiles())
	}

	h, err := host.New(config, log, hostOpts...)
	if err != nil {
		return nil, &VMError{
			Code:    ErrInvalidConfig,
			Message: "pipeline construction failed",
			Cause:   err,
		}
	}
	return &pipelineImpl{host: h}, nil
}

// Run executes the guest and proves the run
func (p *pipelineImpl) Run(ctx context.Context, guest Guest) (*Summary, error) {
	summary, err := p.host.Run(ctx, guest)
	if err != nil {
		return summary, wrapRunError(err)
	}
	return summary, nil
}

// VerifyAggregateFile checks an on-disk aggregate proof against the guest
// binary it claims to prove
func VerifyAggregateFile(proofPath string, guest Guest, commitmentHash string) error {
	if err := host.VerifyAggregateFile(proofPath, guest, commitmentHash); err != nil {
		return &VMError{
			Code:    ErrProofVerification,
			Message: "aggregate proof verification failed",
			Cause:   err,
		}
	}
	return nil
}

func wrapRunError(err error) error {
	switch {
	case errors.Is(err, mips.ErrBadImage):
		return &VMError{Code: ErrGuestLoad, Message: "guest image rejected", Cause: err}
	case errors.Is(err, mips.ErrMemoryFault), errors.Is(err, mips.ErrIllegalInstruction):
		return &VMError{Code: ErrGuestFault, Message: "guest execution faulted", Cause: err}
	case errors.Is(err, precompile.ErrUnboundPrecompile):
		return &VMError{Code: ErrUnboundPrecompile, Message: "precompile circuit not bound", Cause: err}
	case errors.Is(err, prove.ErrContinuityViolation):
		return &VMError{Code: ErrContinuity, Message: "segment continuity violated", Cause: err}
	case errors.Is(err, prove.ErrProofGeneration):
		return &VMError{Code: ErrProofGeneration, Message: "segment proving failed", Cause: err}
	default:
		return &VMError{Code: ErrUnknown, Message: "pipeline run failed", Cause: err}
	}
}
