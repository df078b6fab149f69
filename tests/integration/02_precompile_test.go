package integration_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/helix-zk/helix-mips-vm/internal/helix-mips-vm/mips"
	"github.com/helix-zk/helix-mips-vm/internal/helix-mips-vm/precompile"
	helixmipsvm "github.com/helix-zk/helix-mips-vm/pkg/helix-mips-vm"
)

// shaGuest seeds a SHA-256 message schedule, invokes the extend
// precompile, and exits with the first expanded word
func shaGuest() helixmipsvm.Guest {
	return helixmipsvm.Guest{Program: []uint32{
		mips.Ori(mips.RegA0, mips.RegZero, 0x4000),
		mips.Ori(9, mips.RegZero, 1),
		mips.Sw(9, mips.RegA0, 4),
		mips.Lui(mips.RegV0, uint16(precompile.IDSha256Extend>>16)),
		mips.Ori(mips.RegV0, mips.RegV0, uint16(precompile.IDSha256Extend&0xffff)),
		mips.Syscall(),
		mips.Lw(mips.RegA0, mips.RegA0, 64),
		mips.Ori(mips.RegV0, mips.RegZero, mips.SysHalt),
		mips.Syscall(),
	}}
}

// Test02_PrecompileDelegation proves a guest that uses the SHA-256
// precompile, with the circuit artifact bound, and checks the delegated
// run against plain emulation.
func Test02_PrecompileDelegation(t *testing.T) {
	t.Log("=== Test 02: Precompile Delegation ===")

	artifact := filepath.Join(t.TempDir(), "sha256.circuit")
	if err := os.WriteFile(artifact, []byte("circuit"), 0o644); err != nil {
		t.Fatalf("Failed to write artifact: %v", err)
	}

	t.Log("Step 1: Proving with the precompile bound...")
	boundCfg := helixmipsvm.DefaultConfig().
		WithSegOutput(t.TempDir()).
		WithPrecompilePath(artifact)
	bound, err := helixmipsvm.NewPipeline(boundCfg)
	if err != nil {
		t.Fatalf("Failed to create pipeline: %v", err)
	}
	boundSummary, err := bound.Run(context.Background(), shaGuest())
	if err != nil {
		t.Fatalf("Bound run failed: %v", err)
	}

	t.Log("Step 2: Proving with emulated precompiles...")
	emuCfg := helixmipsvm.DefaultConfig().WithSegOutput(t.TempDir())
	emulated, err := helixmipsvm.NewPipeline(emuCfg, helixmipsvm.WithEmulatedPrecompiles())
	if err != nil {
		t.Fatalf("Failed to create pipeline: %v", err)
	}
	emuSummary, err := emulated.Run(context.Background(), shaGuest())
	if err != nil {
		t.Fatalf("Emulated run failed: %v", err)
	}

	t.Log("Step 3: Comparing the two runs...")
	if boundSummary.ExitCode != emuSummary.ExitCode {
		t.Errorf("Exit codes differ: 0x%08x vs 0x%08x", boundSummary.ExitCode, emuSummary.ExitCode)
	}
	if boundSummary.RunExit != emuSummary.RunExit {
		t.Error("Delegated and emulated runs reached different final states")
	}
	if boundSummary.TotalSteps != emuSummary.TotalSteps {
		t.Errorf("Step counts differ: %d vs %d", boundSummary.TotalSteps, emuSummary.TotalSteps)
	}

	// Both aggregates verify independently
	if err := helixmipsvm.VerifyAggregateFile(boundSummary.AggregatePath, shaGuest(), boundCfg.CommitmentHash); err != nil {
		t.Errorf("Bound aggregate rejected: %v", err)
	}
	if err := helixmipsvm.VerifyAggregateFile(emuSummary.AggregatePath, shaGuest(), emuCfg.CommitmentHash); err != nil {
		t.Errorf("Emulated aggregate rejected: %v", err)
	}
}

// Test02_UnboundPrecompileFails checks that a guest precompile call with
// no bound circuit artifact fails the run with a configuration error
func Test02_UnboundPrecompileFails(t *testing.T) {
	config := helixmipsvm.DefaultConfig().
		WithSegOutput(t.TempDir()).
		WithPrecompilePath(filepath.Join(t.TempDir(), "missing.circuit"))
	pipeline, err := helixmipsvm.NewPipeline(config)
	if err != nil {
		t.Fatalf("Failed to create pipeline: %v", err)
	}

	_, err = pipeline.Run(context.Background(), shaGuest())
	if err == nil {
		t.Fatal("Run succeeded with an unbound precompile")
	}
	if !errors.Is(err, precompile.ErrUnboundPrecompile) {
		t.Fatalf("Error = %v, want ErrUnboundPrecompile", err)
	}

	var vmErr *helixmipsvm.VMError
	if !errors.As(err, &vmErr) {
		t.Fatalf("Error %v is not a VMError", err)
	}
	if vmErr.Code != helixmipsvm.ErrUnboundPrecompile {
		t.Errorf("Error code = %d, want ErrUnboundPrecompile", vmErr.Code)
	}
}
