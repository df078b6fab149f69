package host

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/helix-zk/helix-mips-vm/internal/helix-mips-vm/mips"
)

var elfMagic = []byte{0x7f, 'E', 'L', 'F'}

// Guest references the program to execute and prove. Exactly one of the
// fields must be set.
type Guest struct {
	// Program is an in-process assembled instruction sequence, loaded at
	// the default base address
	Program []uint32

	// Image is a guest binary: an ELF32 big-endian MIPS executable, or a
	// raw flat image loaded at the default base
	Image []byte

	// Path reads the binary from disk
	Path string
}

// load places the guest into machine memory and returns the program hash:
// the digest of the exact binary image, which ties every proof of this run
// to the program that produced it.
func (g Guest) load(st *mips.State, hashBytes func([]byte) [32]byte) ([32]byte, error) {
	var zero [32]byte

	image := g.Image
	switch {
	case g.Path != "":
		if g.Program != nil || g.Image != nil {
			return zero, fmt.Errorf("guest: Path is exclusive with Program and Image: %w", mips.ErrBadImage)
		}
		data, err := os.ReadFile(g.Path)
		if err != nil {
			return zero, fmt.Errorf("reading guest binary: %w", err)
		}
		image = data

	case g.Program != nil:
		if g.Image != nil {
			return zero, fmt.Errorf("guest: Program is exclusive with Image: %w", mips.ErrBadImage)
		}
		buf := make([]byte, 4*len(g.Program))
		for i, insn := range g.Program {
			binary.BigEndian.PutUint32(buf[4*i:], insn)
		}
		image = buf

	case g.Image == nil:
		return zero, fmt.Errorf("guest: no program, image or path: %w", mips.ErrBadImage)
	}

	if bytes.HasPrefix(image, elfMagic) {
		if err := mips.LoadELF(st, image); err != nil {
			return zero, err
		}
	} else {
		if err := mips.LoadFlat(st, image, mips.DefaultLoadBase, mips.DefaultLoadBase); err != nil {
			return zero, err
		}
	}

	return hashBytes(image), nil
}
