package host

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// FailureFileName is written to the output directory instead of an
// aggregate proof when the guest faults.
const FailureFileName = "failure.json"

// Summary reports the outcome of a run. A run that halts cleanly carries
// the guest exit code and the aggregate proof location; a faulted run
// carries the fault step and reason instead.
type Summary struct {
	// Halted is true when the guest exited through the halt syscall
	Halted bool
	// ExitCode is the guest-supplied exit code, valid when Halted
	ExitCode uint32

	// Faulted is true when execution stopped on a guest fault
	Faulted bool
	// FaultStep is the zero-based index of the faulting step
	FaultStep uint64
	// FaultReason describes the fault
	FaultReason string

	// SegmentCount is the number of segments closed by the run. On the
	// fault path this includes the faulted partial segment, which never
	// gets a proof.
	SegmentCount int
	// TotalSteps is the number of executed steps across all segments
	TotalSteps uint64

	// RunEntry and RunExit are the boundary state commitments of the run
	RunEntry string
	RunExit  string

	// ProgramHash binds the run to the exact guest binary
	ProgramHash string
	// VerificationKey is the key the aggregate proof verifies against
	VerificationKey string

	// PublicValues are the bytes the guest committed through the public
	// values stream
	PublicValues []byte

	// AggregatePath is the aggregate proof location, empty on failure
	AggregatePath string

	// WallTime is the total run duration, execution and proving included
	WallTime time.Duration
}

// FailureReport is the on-disk record of a faulted run. Complete segments
// closed before the fault still have proofs in the output directory; the
// report explains why no aggregate accompanies them.
type FailureReport struct {
	FaultStep   uint64 `json:"fault_step"`
	PC          uint32 `json:"pc"`
	Reason      string `json:"reason"`
	Segments    int    `json:"segments_closed"`
	ProgramHash string `json:"program_hash"`
	RunEntry    string `json:"run_entry"`
	ReportedAt  string `json:"reported_at"`
}

func writeFailureReport(dir string, report *FailureReport) error {
	report.ReportedAt = time.Now().UTC().Format(time.RFC3339)
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding failure report: %w", err)
	}
	path := filepath.Join(dir, FailureFileName)
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing failure report: %w", err)
	}
	return nil
}

func hexDigest(d [32]byte) string {
	return hex.EncodeToString(d[:])
}
