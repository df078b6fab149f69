package mips

import (
	"fmt"
)

// Syscall numbers of the guest runtime ABI. The guest places the number in
// v0 and arguments in a0..a2; results come back in v0. All of them are
// deterministic: the only input channel is the pre-supplied argument
// buffer, so re-running a guest always reproduces the same trace.
const (
	// SysHalt terminates the guest; exit code in a0.
	SysHalt = 4246

	// SysWrite writes a0=fd, a1=ptr, a2=len. Fds 1 and 2 are captured
	// stdout/stderr; FdPublicValues appends to the committed
	// public-values stream.
	SysWrite = 4004

	// SysCommit records one public word: a0=index (0..7), a1=word.
	SysCommit = 0x00_00_00_10

	// SysHintLen returns the number of unconsumed argument-buffer bytes.
	SysHintLen = 0x00_00_00_f0

	// SysHintRead copies a0=ptr, a1=len bytes of the argument buffer into
	// guest memory and advances the input cursor.
	SysHintRead = 0x00_00_00_f1
)

// FdPublicValues is the file descriptor whose writes form the committed
// public-values stream
const FdPublicValues = 13

func (st *State) syscall() error {
	num := st.Regs[RegV0]
	a0, a1, a2 := st.Regs[RegA0], st.Regs[RegA1], st.Regs[RegA2]

	switch num {
	case SysHalt:
		st.ExitCode = a0
		st.Halted = true
		st.advance()
		return nil

	case SysWrite:
		data, err := st.readRange(a1, int(a2))
		if err != nil {
			return err
		}
		switch a0 {
		case 1:
			_, _ = st.Stdout.Write(data)
		case 2:
			_, _ = st.Stderr.Write(data)
		case FdPublicValues:
			st.PublicValues = append(st.PublicValues, data...)
		}
		st.writeReg(RegV0, a2)
		st.advance()
		return nil

	case SysCommit:
		if a0 >= uint32(len(st.Committed)) {
			return fmt.Errorf("commit index %d out of range: %w", a0, ErrIllegalInstruction)
		}
		st.Committed[a0] = a1
		st.advance()
		return nil

	case SysHintLen:
		st.writeReg(RegV0, uint32(len(st.input))-st.inputCursor)
		st.advance()
		return nil

	case SysHintRead:
		n := uint32(len(st.input)) - st.inputCursor
		if a1 < n {
			n = a1
		}
		if err := st.writeRange(a0, st.input[st.inputCursor:st.inputCursor+n]); err != nil {
			return err
		}
		st.inputCursor += n
		st.writeReg(RegV0, n)
		st.advance()
		return nil
	}

	if st.dispatcher != nil && st.dispatcher.Handles(num) {
		call, err := st.dispatcher.Run(st, num)
		if err != nil {
			return err
		}
		st.ev.Precompile = call
		st.advance()
		return nil
	}

	return fmt.Errorf("syscall %d: %w", num, ErrIllegalInstruction)
}

// readRange reads a byte span through word-granular recorded accesses, so
// syscall reads stay visible in the step record like any other memory
// access
func (st *State) readRange(addr uint32, n int) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	first := addr &^ 3
	last := (addr + uint32(n) - 1) &^ 3
	for a := first; ; a += 4 {
		if _, err := st.ReadWord(a); err != nil {
			return nil, err
		}
		if a == last {
			break
		}
	}
	return st.Memory.Range(addr, n)
}

// writeRange writes a byte span and records the resulting word values
func (st *State) writeRange(addr uint32, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if err := st.Memory.SetRange(addr, data); err != nil {
		return err
	}
	first := addr &^ 3
	last := (addr + uint32(len(data)) - 1) &^ 3
	for a := first; ; a += 4 {
		v, err := st.Memory.Word(a)
		if err != nil {
			return err
		}
		st.ev.MemOps = append(st.ev.MemOps, MemOp{Kind: MemWrite, Addr: a, Value: v})
		if a == last {
			break
		}
	}
	return nil
}
