// Package mips implements the virtual machine core: a deterministic MIPS32
// interpreter over a sparse memory image, producing one step record per
// executed instruction for the trace and proving layers above it.
package mips

import (
	"bytes"
	"encoding/binary"
	"hash"
	"io"
)

// Register indices with an architectural role
const (
	RegZero = 0  // hardwired zero
	RegV0   = 2  // syscall number / return value
	RegA0   = 4  // syscall argument 0
	RegA1   = 5  // syscall argument 1
	RegA2   = 6  // syscall argument 2
	RegSP   = 29 // stack pointer
	RegRA   = 31 // return address
)

// MemOpKind distinguishes reads from writes in a step record
type MemOpKind uint8

const (
	MemRead MemOpKind = iota
	MemWrite
)

// MemOp records one memory access of a step, with its address and the
// 32-bit word value read or written
type MemOp struct {
	Kind  MemOpKind
	Addr  uint32
	Value uint32
}

// RegWrite records one register update of a step
type RegWrite struct {
	Reg uint8
	Old uint32
	New uint32
}

// PrecompileCall marks a step whose work was delegated to a specialized
// proving circuit instead of instruction-level emulation. It binds the
// precompile's inputs and outputs into the surrounding trace.
type PrecompileCall struct {
	ID      uint32
	Name    string
	Inputs  []uint32
	Outputs []uint32
}

// StepEvent is the record of one executed instruction: the minimal data the
// proving layers need to reproduce and check the state transition. It is
// immutable once Step returns it.
type StepEvent struct {
	Cycle      uint64
	PC         uint32
	NextPC     uint32
	Insn       uint32
	Op         string
	RegWrites  []RegWrite
	MemOps     []MemOp
	Precompile *PrecompileCall
	Halted     bool
}

// PrecompileDispatcher is the hook through which the machine hands marked
// syscalls to the precompile layer. Run must leave the machine in exactly
// the state full emulation of the call would have produced.
type PrecompileDispatcher interface {
	// Handles reports whether the syscall number is a registered
	// precompile identifier.
	Handles(id uint32) bool

	// Run computes the precompile directly against the machine state and
	// returns the call binding, or nil if the call should be tagged as
	// plain emulation.
	Run(st *State, id uint32) (*PrecompileCall, error)
}

// State is the complete machine state of one run. It is mutated only by
// Step and is deterministic: identical state and inputs always produce the
// identical successor state.
type State struct {
	PC     uint32
	NextPC uint32
	HI     uint32
	LO     uint32
	Regs   [32]uint32

	Memory *Memory

	Halted   bool
	ExitCode uint32

	// Cycle is the number of steps executed so far
	Cycle uint64

	// Argument buffer served to the guest through the hint syscalls,
	// and the cursor of how much has been consumed.
	input       []byte
	inputCursor uint32

	// Public values committed by the guest (fd 13 write stream plus the
	// indexed commit words).
	PublicValues []byte
	Committed    [8]uint32

	Stdout io.Writer
	Stderr io.Writer

	dispatcher PrecompileDispatcher

	// Step record under construction; reset at the top of every Step.
	ev *StepEvent
}

// NewState creates a machine state with an empty memory image. The argument
// buffer is the only input channel of the guest; it is fixed for the whole
// run.
func NewState(args []byte) *State {
	st := &State{
		Memory: NewMemory(),
		input:  append([]byte(nil), args...),
		Stdout: io.Discard,
		Stderr: io.Discard,
	}
	st.NextPC = st.PC + 4
	return st
}

// SetEntry sets the program counter to the guest entry point, with the
// delay-slot successor immediately after it
func (st *State) SetEntry(pc uint32) {
	st.PC = pc
	st.NextPC = pc + 4
}

// SetDispatcher installs the precompile dispatcher. A nil dispatcher means
// every precompile syscall is fully emulated in-process without a tagged
// step (the transparency baseline).
func (st *State) SetDispatcher(d PrecompileDispatcher) {
	st.dispatcher = d
}

// InputCursor returns how many bytes of the argument buffer the guest has
// consumed
func (st *State) InputCursor() uint32 {
	return st.inputCursor
}

func (st *State) writeReg(reg uint8, v uint32) {
	if reg == RegZero {
		return
	}
	if st.ev != nil {
		st.ev.RegWrites = append(st.ev.RegWrites, RegWrite{Reg: reg, Old: st.Regs[reg], New: v})
	}
	st.Regs[reg] = v
}

// ReadWord reads an aligned word and records the access in the current
// step. It is also the accessor precompile circuits use, so their memory
// traffic stays visible in the trace.
func (st *State) ReadWord(addr uint32) (uint32, error) {
	v, err := st.Memory.Word(addr)
	if err != nil {
		return 0, err
	}
	if st.ev != nil {
		st.ev.MemOps = append(st.ev.MemOps, MemOp{Kind: MemRead, Addr: addr, Value: v})
	}
	return v, nil
}

// WriteWord writes an aligned word and records the access in the current
// step
func (st *State) WriteWord(addr uint32, v uint32) error {
	if err := st.Memory.SetWord(addr, v); err != nil {
		return err
	}
	if st.ev != nil {
		st.ev.MemOps = append(st.ev.MemOps, MemOp{Kind: MemWrite, Addr: addr, Value: v})
	}
	return nil
}

// EncodeWitness serializes the committed view of the machine state: program
// counters, HI/LO, the register file, the memory Merkle root, halt status
// and the deterministic I/O cursors. Two states with equal witness encodings
// are indistinguishable to the proof system.
func (st *State) EncodeWitness(newHash func() hash.Hash) []byte {
	var buf bytes.Buffer
	be := func(v uint32) {
		var w [4]byte
		binary.BigEndian.PutUint32(w[:], v)
		buf.Write(w[:])
	}

	be(st.PC)
	be(st.NextPC)
	be(st.HI)
	be(st.LO)
	for _, r := range st.Regs {
		be(r)
	}
	root := st.Memory.Root(newHash)
	buf.Write(root[:])
	if st.Halted {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
	be(st.ExitCode)
	be(st.inputCursor)
	for _, w := range st.Committed {
		be(w)
	}

	// The public-values stream is variable length; bind its digest.
	h := newHash()
	h.Write(st.PublicValues)
	buf.Write(h.Sum(nil))

	return buf.Bytes()
}
