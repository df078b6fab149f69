// Package helixmipsvm provides a segmented execution-and-proving pipeline
// for MIPS32 guest programs.
//
// Helix MIPS VM executes a big-endian MIPS32 binary in a deterministic
// virtual machine, records the execution trace, slices it into bounded
// segments, proves every segment independently in a parallel worker pool,
// and aggregates the segment proofs into one bundle whose boundary
// commitments chain across the whole run.
//
// # Features
//
// - Deterministic MIPS32 machine with branch delay slots and sparse paged memory
// - Trace recording at instruction granularity
// - Segmentation with state commitments on every segment boundary
// - Precompile delegation for SHA-256 extend and compress syscalls
// - Parallel segment proving with a bounded worker pool
// - All-or-nothing proof aggregation with continuity checking
// - Configurable state commitment hash: Keccak-256, SHA-256 or MiMC
//
// # Quick Start
//
// Executing and proving a guest binary:
//
//	config := helixmipsvm.DefaultConfig().
//		WithArgs([]byte("hello")).
//		WithSegOutput("proofs")
//
//	pipeline, err := helixmipsvm.NewPipeline(config)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	summary, err := pipeline.Run(context.Background(), helixmipsvm.Guest{
//		Path: "guest.elf",
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	fmt.Printf("proved %d segments in %s\n", summary.SegmentCount, summary.WallTime)
//
// Verifying the aggregate proof later, from the binary alone:
//
//	err := helixmipsvm.VerifyAggregateFile(
//		"proofs/aggregate.proof",
//		helixmipsvm.Guest{Path: "guest.elf"},
//		"keccak256",
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
//
// # Architecture
//
// Helix MIPS VM uses a hybrid public/private architecture:
//
// - pkg/helix-mips-vm/: Public API (this package)
// - internal/helix-mips-vm/: Private implementation (not importable)
//
// The public API provides stable interfaces for:
// - Pipeline execution and proving
// - Aggregate proof verification
// - Common types and errors
//
// Implementation details in internal/ can be refactored without breaking
// the public API.
//
// # Guest ABI
//
// Guests interact with the host through a small syscall surface: halt with
// an exit code, write to standard streams, commit public values, and read
// the host-supplied argument buffer through deterministic hint syscalls.
// The argument buffer is the only input channel, so a run is a pure
// function of the binary image and the arguments.
//
// # License
//
// See LICENSE file in the repository root.
package helixmipsvm
