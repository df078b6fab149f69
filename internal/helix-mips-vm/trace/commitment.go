// Package trace turns the machine's step stream into bounded, provable
// segments: it records execution steps, computes binding state commitments
// at segment boundaries, and closes segments at the configured step bound.
package trace

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"

	gchash "github.com/consensys/gnark-crypto/hash"
	"golang.org/x/crypto/sha3"

	"github.com/helix-zk/helix-mips-vm/internal/helix-mips-vm/mips"
)

// ExecutionStep is the per-cycle record produced by the machine
type ExecutionStep = mips.StepEvent

// StateCommitment is a compact, binding digest of full machine state. It is
// the only information carried across segment boundaries into proofs.
type StateCommitment [32]byte

// Hex returns the commitment as a hex string
func (c StateCommitment) Hex() string {
	return hex.EncodeToString(c[:])
}

// Committer computes state commitments with a configured hash function.
// Supported: "keccak256" (default), "sha256", and "mimc" (MiMC over BN254,
// for verifiers that need a field-friendly digest).
type Committer struct {
	name    string
	newHash func() hash.Hash
}

// NewCommitter creates a committer for the named hash function
func NewCommitter(name string) (*Committer, error) {
	var newHash func() hash.Hash
	switch name {
	case "keccak256":
		newHash = sha3.NewLegacyKeccak256
	case "sha256":
		newHash = sha256.New
	case "mimc":
		newHash = newMimcHasher
	default:
		return nil, fmt.Errorf("unknown commitment hash %q", name)
	}
	return &Committer{name: name, newHash: newHash}, nil
}

// Name returns the configured hash function name
func (c *Committer) Name() string {
	return c.name
}

// NewHash returns a fresh instance of the configured hash function
func (c *Committer) NewHash() hash.Hash {
	return c.newHash()
}

// Commit computes the state commitment of a machine state
func (c *Committer) Commit(st *mips.State) StateCommitment {
	h := c.newHash()
	h.Write(st.EncodeWitness(c.newHash))
	var out StateCommitment
	copy(out[:], h.Sum(nil))
	return out
}

// mimcHasher adapts gnark-crypto's MiMC to arbitrary byte input. MiMC only
// accepts canonical field elements, so the buffered input is split into
// 31-byte limbs, each left-padded to a 32-byte block below the BN254
// modulus.
type mimcHasher struct {
	inner hash.Hash
	buf   []byte
}

func newMimcHasher() hash.Hash {
	return &mimcHasher{inner: gchash.MIMC_BN254.New()}
}

func (m *mimcHasher) Write(p []byte) (int, error) {
	m.buf = append(m.buf, p...)
	return len(p), nil
}

func (m *mimcHasher) Sum(b []byte) []byte {
	m.inner.Reset()
	var block [32]byte
	for off := 0; off < len(m.buf); off += 31 {
		end := off + 31
		if end > len(m.buf) {
			end = len(m.buf)
		}
		for i := range block {
			block[i] = 0
		}
		copy(block[32-(end-off):], m.buf[off:end])
		m.inner.Write(block[:])
	}
	sum := m.inner.Sum(nil)
	// Pad to the 32-byte commitment width; MiMC digests are field-sized.
	out := make([]byte, 32)
	copy(out[32-len(sum):], sum)
	return append(b, out...)
}

func (m *mimcHasher) Reset() {
	m.buf = m.buf[:0]
}

func (m *mimcHasher) Size() int { return 32 }

func (m *mimcHasher) BlockSize() int { return 31 }
