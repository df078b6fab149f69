package host

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helix-zk/helix-mips-vm/internal/helix-mips-vm/mips"
	"github.com/helix-zk/helix-mips-vm/internal/helix-mips-vm/precompile"
	"github.com/helix-zk/helix-mips-vm/internal/helix-mips-vm/prove"
	"github.com/helix-zk/helix-mips-vm/internal/helix-mips-vm/utils"
)

// countdownGuest loops n times, then halts with exit code 7
func countdownGuest(n uint16) Guest {
	return Guest{Program: []uint32{
		mips.Ori(8, mips.RegZero, n),
		mips.Addiu(8, 8, 0xffff),
		mips.Bne(8, mips.RegZero, 0xfffe),
		mips.Nop(),
		mips.Ori(mips.RegA0, mips.RegZero, 7),
		mips.Ori(mips.RegV0, mips.RegZero, mips.SysHalt),
		mips.Syscall(),
	}}
}

// faultingGuest loops a few times and then hits an illegal opcode
func faultingGuest() Guest {
	return Guest{Program: []uint32{
		mips.Ori(8, mips.RegZero, 20),
		mips.Addiu(8, 8, 0xffff),
		mips.Bne(8, mips.RegZero, 0xfffe),
		mips.Nop(),
		0xfc00_0000,
	}}
}

func newTestHost(t *testing.T, cfg *utils.Config, opts ...Option) *Host {
	t.Helper()
	h, err := New(cfg, utils.NewLogger("warn"), opts...)
	require.NoError(t, err)
	return h
}

func TestRunEndToEnd(t *testing.T) {
	dir := t.TempDir()
	cfg := utils.DefaultConfig().
		WithSegSize(64).
		WithSegOutput(dir).
		WithWorkers(2)

	h := newTestHost(t, cfg)
	summary, err := h.Run(context.Background(), countdownGuest(100))
	require.NoError(t, err)

	assert.True(t, summary.Halted)
	assert.False(t, summary.Faulted)
	assert.Equal(t, uint32(7), summary.ExitCode)
	assert.Greater(t, summary.SegmentCount, 1)
	assert.NotEmpty(t, summary.RunEntry)
	assert.NotEqual(t, summary.RunEntry, summary.RunExit)

	// One proof artifact per segment, plus the aggregate
	for i := 0; i < summary.SegmentCount; i++ {
		_, err := os.Stat(filepath.Join(dir, prove.SegmentFileName(i)))
		assert.NoError(t, err, "segment %d proof missing", i)
	}
	require.FileExists(t, summary.AggregatePath)

	agg, err := prove.ReadAggregateProof(summary.AggregatePath)
	require.NoError(t, err)
	assert.Equal(t, summary.SegmentCount, len(agg.SegmentProofs))
	assert.Equal(t, summary.TotalSteps, agg.TotalSteps)
	assert.Equal(t, summary.RunEntry, agg.RunEntry.Hex())
	assert.Equal(t, summary.RunExit, agg.RunExit.Hex())
}

func TestRunVerifyRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := utils.DefaultConfig().WithSegSize(64).WithSegOutput(dir)

	guest := countdownGuest(100)
	h := newTestHost(t, cfg)
	summary, err := h.Run(context.Background(), guest)
	require.NoError(t, err)

	t.Run("Accepts", func(t *testing.T) {
		require.NoError(t, VerifyAggregateFile(summary.AggregatePath, guest, cfg.CommitmentHash))
	})

	t.Run("RejectsOtherProgram", func(t *testing.T) {
		err := VerifyAggregateFile(summary.AggregatePath, countdownGuest(101), cfg.CommitmentHash)
		require.ErrorIs(t, err, prove.ErrInvalidProof)
	})

	t.Run("RejectsTamperedArtifact", func(t *testing.T) {
		agg, err := prove.ReadAggregateProof(summary.AggregatePath)
		require.NoError(t, err)
		agg.SegmentProofs[0].ProofBytes[0] ^= 1
		tampered := filepath.Join(t.TempDir(), "aggregate.proof")
		require.NoError(t, prove.WriteAggregateProof(filepath.Dir(tampered), agg))
		require.Error(t, VerifyAggregateFile(tampered, guest, cfg.CommitmentHash))
	})
}

func TestRunFault(t *testing.T) {
	dir := t.TempDir()
	cfg := utils.DefaultConfig().WithSegSize(16).WithSegOutput(dir)

	// Replay the guest step by step to pin the exact faulting index; the
	// orchestrated run must report the same step.
	replay := mips.NewState(nil)
	_, err := faultingGuest().load(replay, func([]byte) [32]byte { return [32]byte{} })
	require.NoError(t, err)
	for {
		if _, err := replay.Step(); err != nil {
			break
		}
	}
	faultAt := replay.Cycle
	require.NotZero(t, faultAt)

	h := newTestHost(t, cfg)
	summary, err := h.Run(context.Background(), faultingGuest())
	require.Error(t, err)
	require.ErrorIs(t, err, mips.ErrIllegalInstruction)

	assert.True(t, summary.Faulted)
	assert.False(t, summary.Halted)
	assert.Equal(t, faultAt, summary.FaultStep)
	assert.Contains(t, summary.FaultReason, "illegal instruction")

	// Complete segments before the fault, plus the faulted partial one
	complete := int(faultAt) / cfg.SegSize
	require.NotZero(t, int(faultAt)%cfg.SegSize)
	assert.Equal(t, complete+1, summary.SegmentCount)

	// No aggregate, but the failure report exists and names the step
	assert.Empty(t, summary.AggregatePath)
	assert.NoFileExists(t, filepath.Join(dir, prove.AggregateFileName))

	data, err := os.ReadFile(filepath.Join(dir, FailureFileName))
	require.NoError(t, err)
	var report FailureReport
	require.NoError(t, json.Unmarshal(data, &report))
	assert.Equal(t, faultAt, report.FaultStep)
	assert.Equal(t, summary.SegmentCount, report.Segments)
	assert.NotEmpty(t, report.Reason)

	// Segments closed before the fault still have proofs; the faulted
	// partial segment has none
	for i := 0; i < complete; i++ {
		_, err = os.Stat(filepath.Join(dir, prove.SegmentFileName(i)))
		assert.NoError(t, err, "segment %d proof missing", i)
	}
	assert.NoFileExists(t, filepath.Join(dir, prove.SegmentFileName(complete)))
}

func TestRunExitIndependentOfSegmentation(t *testing.T) {
	run := func(segSize, workers int) *Summary {
		cfg := utils.DefaultConfig().
			WithSegSize(segSize).
			WithSegOutput(t.TempDir()).
			WithWorkers(workers)
		h := newTestHost(t, cfg)
		summary, err := h.Run(context.Background(), countdownGuest(200))
		require.NoError(t, err)
		return summary
	}

	a := run(32, 1)
	b := run(500, 4)
	assert.Equal(t, a.RunEntry, b.RunEntry)
	assert.Equal(t, a.RunExit, b.RunExit)
	assert.Equal(t, a.TotalSteps, b.TotalSteps)
	assert.Equal(t, a.ProgramHash, b.ProgramHash)
	assert.Equal(t, a.VerificationKey, b.VerificationKey)
	// A smaller segment size never yields fewer segments
	assert.Greater(t, a.SegmentCount, b.SegmentCount)
}

func TestRunHashSelection(t *testing.T) {
	for _, name := range []string{"keccak256", "sha256", "mimc"} {
		t.Run(name, func(t *testing.T) {
			cfg := utils.DefaultConfig().
				WithSegSize(64).
				WithSegOutput(t.TempDir()).
				WithCommitmentHash(name)
			h := newTestHost(t, cfg)
			guest := countdownGuest(50)
			summary, err := h.Run(context.Background(), guest)
			require.NoError(t, err)
			require.NoError(t, VerifyAggregateFile(summary.AggregatePath, guest, name))

			// The wrong hash selection must not verify
			other := "sha256"
			if name == "sha256" {
				other = "keccak256"
			}
			require.Error(t, VerifyAggregateFile(summary.AggregatePath, guest, other))
		})
	}
}

func TestRunPublicValues(t *testing.T) {
	// The guest writes four bytes to the public values stream
	guest := Guest{Program: []uint32{
		mips.Ori(8, mips.RegZero, 0x3000),
		mips.Lui(9, 0xcafe),
		mips.Ori(9, 9, 0xf00d),
		mips.Sw(9, 8, 0),
		mips.Ori(mips.RegA0, mips.RegZero, mips.FdPublicValues),
		mips.Ori(mips.RegA1, mips.RegZero, 0x3000),
		mips.Ori(mips.RegA2, mips.RegZero, 4),
		mips.Ori(mips.RegV0, mips.RegZero, mips.SysWrite),
		mips.Syscall(),
		mips.Ori(mips.RegA0, mips.RegZero, 0),
		mips.Ori(mips.RegV0, mips.RegZero, mips.SysHalt),
		mips.Syscall(),
	}}

	cfg := utils.DefaultConfig().WithSegOutput(t.TempDir())
	h := newTestHost(t, cfg)
	summary, err := h.Run(context.Background(), guest)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xca, 0xfe, 0xf0, 0x0d}, summary.PublicValues)
}

func TestRunArguments(t *testing.T) {
	// The guest reads the argument buffer and exits with its first byte
	guest := Guest{Program: []uint32{
		mips.Ori(mips.RegV0, mips.RegZero, mips.SysHintLen),
		mips.Syscall(),
		mips.Ori(10, mips.RegV0, 0),
		mips.Ori(mips.RegA0, mips.RegZero, 0x3000),
		mips.Ori(mips.RegA1, 10, 0),
		mips.Ori(mips.RegV0, mips.RegZero, mips.SysHintRead),
		mips.Syscall(),
		mips.Lbu(mips.RegA0, mips.RegA0, 0),
		mips.Ori(mips.RegV0, mips.RegZero, mips.SysHalt),
		mips.Syscall(),
	}}

	cfg := utils.DefaultConfig().
		WithArgs([]byte("hello")).
		WithSegOutput(t.TempDir())
	h := newTestHost(t, cfg)
	summary, err := h.Run(context.Background(), guest)
	require.NoError(t, err)
	assert.Equal(t, uint32('h'), summary.ExitCode)
}

func TestGuestValidation(t *testing.T) {
	cfg := utils.DefaultConfig().WithSegOutput(t.TempDir())
	h := newTestHost(t, cfg)

	t.Run("Empty", func(t *testing.T) {
		_, err := h.Run(context.Background(), Guest{})
		require.ErrorIs(t, err, mips.ErrBadImage)
	})

	t.Run("ConflictingSources", func(t *testing.T) {
		_, err := h.Run(context.Background(), Guest{
			Program: []uint32{mips.Nop()},
			Image:   []byte{0, 0, 0, 0},
		})
		require.ErrorIs(t, err, mips.ErrBadImage)
	})

	t.Run("MissingFile", func(t *testing.T) {
		_, err := h.Run(context.Background(), Guest{Path: filepath.Join(t.TempDir(), "nope.elf")})
		require.Error(t, err)
	})
}

func TestInvalidConfigRejected(t *testing.T) {
	cfg := utils.DefaultConfig().WithSegSize(0)
	_, err := New(cfg, utils.NewLogger("warn"))
	require.Error(t, err)
}

func TestRunUnboundPrecompile(t *testing.T) {
	// A registered precompile invoked with no circuit artifact bound is a
	// host configuration defect, not a guest fault
	guest := Guest{Program: []uint32{
		mips.Ori(mips.RegA0, mips.RegZero, 0x4000),
		mips.Lui(mips.RegV0, uint16(precompile.IDSha256Extend>>16)),
		mips.Ori(mips.RegV0, mips.RegV0, uint16(precompile.IDSha256Extend&0xffff)),
		mips.Syscall(),
	}}

	dir := t.TempDir()
	cfg := utils.DefaultConfig().
		WithSegOutput(dir).
		WithPrecompilePath(filepath.Join(t.TempDir(), "missing.circuit"))

	h := newTestHost(t, cfg)
	summary, err := h.Run(context.Background(), guest)
	require.Error(t, err)
	require.ErrorIs(t, err, precompile.ErrUnboundPrecompile)

	assert.False(t, summary.Faulted, "configuration defect flagged as guest fault")
	assert.Empty(t, summary.FaultReason)
	assert.NoFileExists(t, filepath.Join(dir, FailureFileName))
	assert.Empty(t, summary.AggregatePath)
}

func TestRunsAreIndependent(t *testing.T) {
	// Two hosts over distinct configs do not share state
	guest := countdownGuest(50)
	dirA, dirB := t.TempDir(), t.TempDir()

	hA := newTestHost(t, utils.DefaultConfig().WithSegSize(16).WithSegOutput(dirA))
	hB := newTestHost(t, utils.DefaultConfig().WithSegSize(64).WithSegOutput(dirB))

	sA, err := hA.Run(context.Background(), guest)
	require.NoError(t, err)
	sB, err := hB.Run(context.Background(), guest)
	require.NoError(t, err)

	assert.Equal(t, sA.RunExit, sB.RunExit)
	require.FileExists(t, filepath.Join(dirA, prove.AggregateFileName))
	require.FileExists(t, filepath.Join(dirB, prove.AggregateFileName))

	// Re-running the same host is also clean
	sA2, err := hA.Run(context.Background(), guest)
	require.NoError(t, err)
	assert.Equal(t, sA.RunExit, sA2.RunExit)
	assert.Equal(t, sA.TotalSteps, sA2.TotalSteps)
}
