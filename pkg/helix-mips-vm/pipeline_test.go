package helixmipsvm

import (
	"context"
	"errors"
	"testing"

	"github.com/helix-zk/helix-mips-vm/internal/helix-mips-vm/mips"
)

func TestNewPipeline(t *testing.T) {
	t.Run("DefaultConfig", func(t *testing.T) {
		config := DefaultConfig().WithSegOutput(t.TempDir())
		if _, err := NewPipeline(config); err != nil {
			t.Fatalf("Failed to create pipeline: %v", err)
		}
	})

	t.Run("InvalidConfig", func(t *testing.T) {
		config := DefaultConfig().WithSegSize(-5)
		_, err := NewPipeline(config)
		var vmErr *VMError
		if !errors.As(err, &vmErr) || vmErr.Code != ErrInvalidConfig {
			t.Fatalf("Error = %v, want VMError with ErrInvalidConfig", err)
		}
	})
}

func TestPipelineRun(t *testing.T) {
	config := DefaultConfig().WithSegSize(32).WithSegOutput(t.TempDir())
	pipeline, err := NewPipeline(config)
	if err != nil {
		t.Fatalf("Failed to create pipeline: %v", err)
	}

	t.Run("CleanExit", func(t *testing.T) {
		summary, err := pipeline.Run(context.Background(), Guest{Program: []uint32{
			mips.Ori(mips.RegA0, mips.RegZero, 9),
			mips.Ori(mips.RegV0, mips.RegZero, mips.SysHalt),
			mips.Syscall(),
		}})
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		if summary.ExitCode != 9 {
			t.Errorf("Exit code = %d, want 9", summary.ExitCode)
		}
		if summary.AggregatePath == "" {
			t.Error("No aggregate path in summary")
		}
	})

	t.Run("GuestFaultCode", func(t *testing.T) {
		_, err := pipeline.Run(context.Background(), Guest{Program: []uint32{0xfc00_0000}})
		var vmErr *VMError
		if !errors.As(err, &vmErr) {
			t.Fatalf("Error %v is not a VMError", err)
		}
		if vmErr.Code != ErrGuestFault {
			t.Errorf("Code = %d, want ErrGuestFault", vmErr.Code)
		}
	})

	t.Run("BadGuestCode", func(t *testing.T) {
		_, err := pipeline.Run(context.Background(), Guest{})
		var vmErr *VMError
		if !errors.As(err, &vmErr) {
			t.Fatalf("Error %v is not a VMError", err)
		}
		if vmErr.Code != ErrGuestLoad {
			t.Errorf("Code = %d, want ErrGuestLoad", vmErr.Code)
		}
	})
}
