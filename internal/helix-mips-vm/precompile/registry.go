// Package precompile implements the dispatcher that short-circuits
// registered primitive operations to specialized proving circuits instead
// of full instruction-level emulation. The substituted result is always
// bit-identical to what emulation would have produced; the only difference
// is the single tagged pseudo-step in the trace.
package precompile

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/rs/zerolog"

	"github.com/helix-zk/helix-mips-vm/internal/helix-mips-vm/mips"
)

// ErrUnboundPrecompile is returned when a guest call matches a registered
// precompile signature but no compiled circuit artifact is available at the
// configured path. This is a configuration defect: fatal, never retried.
var ErrUnboundPrecompile = errors.New("precompile: no compiled circuit artifact bound")

// Precompile is the capability behind one registered call signature
type Precompile interface {
	// ID is the syscall number the guest uses to invoke the precompile
	ID() uint32

	// Name is a short identifier for logs and proof artifacts
	Name() string

	// Run computes the operation directly against the machine state,
	// returning the input and output words it bound. Run must leave the
	// machine exactly as full emulation would have.
	Run(st *mips.State) (inputs, outputs []uint32, err error)
}

// Registry maps call signatures to precompile capabilities. It is
// populated before a run starts and read-only afterwards.
type Registry struct {
	byID map[uint32]Precompile
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{byID: make(map[uint32]Precompile)}
}

// DefaultRegistry returns a registry with the built-in hash precompiles
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(Sha256Extend{})
	r.Register(Sha256Compress{})
	return r
}

// Register adds a precompile; a duplicate ID replaces the prior entry
func (r *Registry) Register(p Precompile) {
	r.byID[p.ID()] = p
}

// Lookup returns the precompile registered under id
func (r *Registry) Lookup(id uint32) (Precompile, bool) {
	p, ok := r.byID[id]
	return p, ok
}

// Names returns the registered precompile names, sorted for stable logs
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.byID))
	for _, p := range r.byID {
		names = append(names, p.Name())
	}
	sort.Strings(names)
	return names
}

// Dispatcher resolves the registry against the configured circuit artifact
// once at run start and then serves the machine's precompile hook. In
// emulation mode it computes the same results without tagging the step,
// which is the baseline for substitution-transparency checks.
type Dispatcher struct {
	reg          *Registry
	artifactPath string
	artifactOK   bool
	emulate      bool
	log          zerolog.Logger
}

// NewDispatcher builds a dispatcher over the registry. artifactPath names
// the compiled circuit artifact; it is checked once here, not per call.
func NewDispatcher(reg *Registry, artifactPath string, log zerolog.Logger) *Dispatcher {
	d := &Dispatcher{
		reg:          reg,
		artifactPath: artifactPath,
		log:          log.With().Str("component", "precompile").Logger(),
	}
	if artifactPath != "" {
		if _, err := os.Stat(artifactPath); err == nil {
			d.artifactOK = true
		}
	}
	d.log.Debug().
		Strs("registered", reg.Names()).
		Str("artifact", artifactPath).
		Bool("bound", d.artifactOK).
		Msg("precompile registry resolved")
	return d
}

// NewEmulatingDispatcher builds a dispatcher that computes precompile
// results by direct emulation, without circuit substitution. It needs no
// artifact and emits no tagged steps.
func NewEmulatingDispatcher(reg *Registry, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		reg:     reg,
		emulate: true,
		log:     log.With().Str("component", "precompile").Logger(),
	}
}

// ArtifactPath returns the configured circuit artifact path
func (d *Dispatcher) ArtifactPath() string {
	return d.artifactPath
}

// Handles reports whether id is a registered precompile signature
func (d *Dispatcher) Handles(id uint32) bool {
	_, ok := d.reg.Lookup(id)
	return ok
}

// Run computes the precompile bound to id against the machine state
func (d *Dispatcher) Run(st *mips.State, id uint32) (*mips.PrecompileCall, error) {
	p, ok := d.reg.Lookup(id)
	if !ok {
		return nil, fmt.Errorf("precompile id 0x%08x not registered: %w", id, mips.ErrIllegalInstruction)
	}

	if !d.emulate && !d.artifactOK {
		return nil, fmt.Errorf("%s (id 0x%08x) at %q: %w", p.Name(), id, d.artifactPath, ErrUnboundPrecompile)
	}

	inputs, outputs, err := p.Run(st)
	if err != nil {
		return nil, fmt.Errorf("precompile %s: %w", p.Name(), err)
	}

	if d.emulate {
		return nil, nil
	}
	return &mips.PrecompileCall{
		ID:      id,
		Name:    p.Name(),
		Inputs:  inputs,
		Outputs: outputs,
	}, nil
}
