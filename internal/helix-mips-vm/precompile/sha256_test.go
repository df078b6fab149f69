package precompile

import (
	"crypto/sha256"
	"errors"
	"math/bits"
	"os"
	"path/filepath"
	"testing"

	"github.com/helix-zk/helix-mips-vm/internal/helix-mips-vm/mips"
	"github.com/helix-zk/helix-mips-vm/internal/helix-mips-vm/utils"
)

const schedAddr = 0x4000
const stateAddr = 0x5000

// sha256InitState is the standard initial hash state H0..H7
var sha256InitState = [8]uint32{
	0x6a09e667, 0xbb67ae85, 0x3c6ef372, 0xa54ff53a,
	0x510e527f, 0x9b05688c, 0x1f83d9ab, 0x5be0cd19,
}

func TestSha256Extend(t *testing.T) {
	st := mips.NewState(nil)
	st.Regs[mips.RegA0] = schedAddr

	// Message block: w[i] = i + 1
	var w [64]uint32
	for i := 0; i < 16; i++ {
		w[i] = uint32(i + 1)
		if err := st.Memory.SetWord(schedAddr+4*uint32(i), w[i]); err != nil {
			t.Fatalf("Failed to seed schedule: %v", err)
		}
	}

	inputs, outputs, err := Sha256Extend{}.Run(st)
	if err != nil {
		t.Fatalf("Extend failed: %v", err)
	}
	if len(inputs) != 16 || len(outputs) != 48 {
		t.Fatalf("Binding sizes = %d/%d, want 16/48", len(inputs), len(outputs))
	}

	// Reference expansion
	for i := 16; i < 64; i++ {
		s0 := bits.RotateLeft32(w[i-15], -7) ^ bits.RotateLeft32(w[i-15], -18) ^ w[i-15]>>3
		s1 := bits.RotateLeft32(w[i-2], -17) ^ bits.RotateLeft32(w[i-2], -19) ^ w[i-2]>>10
		w[i] = w[i-16] + s0 + w[i-7] + s1
	}
	for i := 16; i < 64; i++ {
		got, err := st.Memory.Word(schedAddr + 4*uint32(i))
		if err != nil {
			t.Fatalf("Failed to read schedule: %v", err)
		}
		if got != w[i] {
			t.Errorf("w[%d] = 0x%08x, want 0x%08x", i, got, w[i])
		}
		if outputs[i-16] != w[i] {
			t.Errorf("Output binding [%d] = 0x%08x, want 0x%08x", i-16, outputs[i-16], w[i])
		}
	}
}

func TestSha256CompressMatchesStdlib(t *testing.T) {
	// One full block through extend + compress must reproduce
	// crypto/sha256 on the same 64-byte message.
	msg := make([]byte, 64)
	for i := range msg {
		msg[i] = byte(i)
	}

	// SHA-256 padding of a 64-byte message: a second block with the 0x80
	// marker and the 512-bit length.
	pad := make([]byte, 64)
	pad[0] = 0x80
	pad[62] = 0x02 // 512 = 0x0200 bits

	st := mips.NewState(nil)
	st.Regs[mips.RegA0] = schedAddr
	st.Regs[mips.RegA1] = stateAddr
	for i, v := range sha256InitState {
		if err := st.Memory.SetWord(stateAddr+4*uint32(i), v); err != nil {
			t.Fatalf("Failed to seed state: %v", err)
		}
	}

	for _, block := range [][]byte{msg, pad} {
		if err := st.Memory.SetRange(schedAddr, block); err != nil {
			t.Fatalf("Failed to write block: %v", err)
		}
		if _, _, err := (Sha256Extend{}).Run(st); err != nil {
			t.Fatalf("Extend failed: %v", err)
		}
		if _, _, err := (Sha256Compress{}).Run(st); err != nil {
			t.Fatalf("Compress failed: %v", err)
		}
	}

	want := sha256.Sum256(msg)
	for i := 0; i < 8; i++ {
		got, err := st.Memory.Word(stateAddr + 4*uint32(i))
		if err != nil {
			t.Fatalf("Failed to read state: %v", err)
		}
		ref := uint32(want[4*i])<<24 | uint32(want[4*i+1])<<16 | uint32(want[4*i+2])<<8 | uint32(want[4*i+3])
		if got != ref {
			t.Errorf("H[%d] = 0x%08x, want 0x%08x", i, got, ref)
		}
	}
}

// precompileGuest invokes the extend precompile on a schedule with w[1]=1
// and halts with the expanded word w[16]
func precompileGuest() []uint32 {
	return []uint32{
		mips.Ori(mips.RegA0, mips.RegZero, schedAddr),
		mips.Ori(9, mips.RegZero, 1),
		mips.Sw(9, mips.RegA0, 4),
		mips.Lui(mips.RegV0, uint16(IDSha256Extend>>16)),
		mips.Ori(mips.RegV0, mips.RegV0, uint16(IDSha256Extend&0xffff)),
		mips.Syscall(),
		mips.Lw(mips.RegA0, mips.RegA0, 64),
		mips.Ori(mips.RegV0, mips.RegZero, mips.SysHalt),
		mips.Syscall(),
	}
}

func runGuest(t *testing.T, d *Dispatcher) *mips.State {
	t.Helper()
	st := mips.NewState(nil)
	st.SetDispatcher(d)
	if err := mips.LoadProgram(st, precompileGuest()); err != nil {
		t.Fatalf("Failed to load program: %v", err)
	}
	for !st.Halted {
		if _, err := st.Step(); err != nil {
			t.Fatalf("Execution failed: %v", err)
		}
	}
	return st
}

func TestSubstitutionTransparency(t *testing.T) {
	log := utils.NewLogger("warn")

	artifact := filepath.Join(t.TempDir(), "sha256.circuit")
	if err := os.WriteFile(artifact, []byte("circuit"), 0o644); err != nil {
		t.Fatalf("Failed to write artifact: %v", err)
	}

	delegated := runGuest(t, NewDispatcher(DefaultRegistry(), artifact, log))
	emulated := runGuest(t, NewEmulatingDispatcher(DefaultRegistry(), log))

	if delegated.ExitCode != emulated.ExitCode {
		t.Errorf("Exit codes differ: 0x%08x vs 0x%08x", delegated.ExitCode, emulated.ExitCode)
	}
	if delegated.Cycle != emulated.Cycle {
		t.Errorf("Step counts differ: %d vs %d", delegated.Cycle, emulated.Cycle)
	}
	// w[16] for a schedule with only w[1]=1 is sigma0(1)
	want := bits.RotateLeft32(1, -7) ^ bits.RotateLeft32(1, -18) ^ uint32(1)>>3
	if delegated.ExitCode != want {
		t.Errorf("Exit code = 0x%08x, want 0x%08x", delegated.ExitCode, want)
	}
}

func TestDelegatedStepTagging(t *testing.T) {
	log := utils.NewLogger("warn")
	artifact := filepath.Join(t.TempDir(), "sha256.circuit")
	if err := os.WriteFile(artifact, []byte("circuit"), 0o644); err != nil {
		t.Fatalf("Failed to write artifact: %v", err)
	}

	collect := func(d *Dispatcher) []*mips.StepEvent {
		st := mips.NewState(nil)
		st.SetDispatcher(d)
		if err := mips.LoadProgram(st, precompileGuest()); err != nil {
			t.Fatalf("Failed to load program: %v", err)
		}
		var events []*mips.StepEvent
		for !st.Halted {
			ev, err := st.Step()
			if err != nil {
				t.Fatalf("Execution failed: %v", err)
			}
			events = append(events, ev)
		}
		return events
	}

	tagged := 0
	for _, ev := range collect(NewDispatcher(DefaultRegistry(), artifact, log)) {
		if ev.Precompile != nil {
			tagged++
			if ev.Precompile.Name != "sha256-extend" {
				t.Errorf("Tagged call name = %q, want sha256-extend", ev.Precompile.Name)
			}
			if len(ev.Precompile.Inputs) != 16 || len(ev.Precompile.Outputs) != 48 {
				t.Errorf("Binding sizes = %d/%d, want 16/48",
					len(ev.Precompile.Inputs), len(ev.Precompile.Outputs))
			}
		}
	}
	if tagged != 1 {
		t.Errorf("Tagged steps = %d, want 1", tagged)
	}

	for _, ev := range collect(NewEmulatingDispatcher(DefaultRegistry(), log)) {
		if ev.Precompile != nil {
			t.Error("Emulated run produced a tagged step")
		}
	}
}

func TestUnboundPrecompile(t *testing.T) {
	log := utils.NewLogger("warn")

	t.Run("MissingArtifact", func(t *testing.T) {
		d := NewDispatcher(DefaultRegistry(), filepath.Join(t.TempDir(), "missing.circuit"), log)
		st := mips.NewState(nil)
		st.SetDispatcher(d)
		if err := mips.LoadProgram(st, precompileGuest()); err != nil {
			t.Fatalf("Failed to load program: %v", err)
		}
		var err error
		for !st.Halted && err == nil {
			_, err = st.Step()
		}
		if !errors.Is(err, ErrUnboundPrecompile) {
			t.Fatalf("Error = %v, want ErrUnboundPrecompile", err)
		}
	})

	t.Run("EmptyPath", func(t *testing.T) {
		d := NewDispatcher(DefaultRegistry(), "", log)
		_, err := d.Run(mips.NewState(nil), IDSha256Extend)
		if !errors.Is(err, ErrUnboundPrecompile) {
			t.Fatalf("Error = %v, want ErrUnboundPrecompile", err)
		}
	})
}

func TestRegistry(t *testing.T) {
	r := DefaultRegistry()
	if _, ok := r.Lookup(IDSha256Extend); !ok {
		t.Error("sha256-extend not registered")
	}
	if _, ok := r.Lookup(IDSha256Compress); !ok {
		t.Error("sha256-compress not registered")
	}
	if _, ok := r.Lookup(0xdeadbeef); ok {
		t.Error("Unknown id resolved")
	}
	names := r.Names()
	if len(names) != 2 || names[0] != "sha256-compress" || names[1] != "sha256-extend" {
		t.Errorf("Names = %v, want sorted pair", names)
	}
}
