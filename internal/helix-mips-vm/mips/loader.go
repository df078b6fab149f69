package mips

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
)

// Loader errors
var (
	ErrBadImage = errors.New("mips: unsupported guest image")
)

// DefaultLoadBase is where flat images are placed, with the entry point at
// the image start
const DefaultLoadBase = 0x0000_1000

// DefaultStackTop is the initial stack pointer for loaded guests
const DefaultStackTop = 0x7fff_f000

// LoadProgram places an assembled instruction sequence at DefaultLoadBase
// and points the machine at it. It is the in-process analog of loading a
// flat binary image.
func LoadProgram(st *State, program []uint32) error {
	buf := make([]byte, 4*len(program))
	for i, insn := range program {
		binary.BigEndian.PutUint32(buf[4*i:], insn)
	}
	return LoadFlat(st, buf, DefaultLoadBase, DefaultLoadBase)
}

// LoadFlat copies a raw big-endian image into memory at base and sets the
// entry point
func LoadFlat(st *State, image []byte, base, entry uint32) error {
	if len(image) == 0 {
		return fmt.Errorf("empty image: %w", ErrBadImage)
	}
	if err := st.Memory.SetRange(base, image); err != nil {
		return err
	}
	st.SetEntry(entry)
	st.Regs[RegSP] = DefaultStackTop
	return nil
}

// LoadELF loads a statically linked big-endian MIPS32 executable: every
// PT_LOAD segment is copied to its virtual address and the program counter
// is set to the ELF entry point. Dynamic binaries and other architectures
// are rejected.
func LoadELF(st *State, image []byte) error {
	f, err := elf.NewFile(bytes.NewReader(image))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadImage, err)
	}
	defer f.Close()

	if f.Machine != elf.EM_MIPS {
		return fmt.Errorf("%w: machine %s, want MIPS", ErrBadImage, f.Machine)
	}
	if f.Class != elf.ELFCLASS32 {
		return fmt.Errorf("%w: class %s, want ELF32", ErrBadImage, f.Class)
	}
	if f.Type != elf.ET_EXEC {
		return fmt.Errorf("%w: type %s, want EXEC (statically linked)", ErrBadImage, f.Type)
	}

	for _, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD {
			continue
		}
		data := make([]byte, prog.Filesz)
		if _, err := prog.ReadAt(data, 0); err != nil {
			return fmt.Errorf("%w: reading segment at 0x%x: %v", ErrBadImage, prog.Vaddr, err)
		}
		// Memsz beyond Filesz is BSS; sparse memory already reads zero.
		if err := st.Memory.SetRange(uint32(prog.Vaddr), data); err != nil {
			return err
		}
	}

	st.SetEntry(uint32(f.Entry))
	st.Regs[RegSP] = DefaultStackTop
	return nil
}

// LoadELFFile is LoadELF over a file path
func LoadELFFile(st *State, path string) error {
	image, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading guest binary: %w", err)
	}
	return LoadELF(st, image)
}
