package precompile

import (
	"math/bits"

	"github.com/helix-zk/helix-mips-vm/internal/helix-mips-vm/mips"
)

// Precompile call signatures (syscall numbers)
const (
	// IDSha256Extend expands a SHA-256 message schedule: a0 points at a
	// 64-word array whose first 16 words are the message block; words
	// 16..63 are computed in place.
	IDSha256Extend = 0x00_30_01_05

	// IDSha256Compress runs the SHA-256 compression function: a0 points
	// at the 64-word schedule, a1 at the 8-word hash state, updated in
	// place.
	IDSha256Compress = 0x00_01_01_06
)

var sha256K = [64]uint32{
	0x428a2f98, 0x71374491, 0xb5c0fbcf, 0xe9b5dba5, 0x3956c25b, 0x59f111f1, 0x923f82a4, 0xab1c5ed5,
	0xd807aa98, 0x12835b01, 0x243185be, 0x550c7dc3, 0x72be5d74, 0x80deb1fe, 0x9bdc06a7, 0xc19bf174,
	0xe49b69c1, 0xefbe4786, 0x0fc19dc6, 0x240ca1cc, 0x2de92c6f, 0x4a7484aa, 0x5cb0a9dc, 0x76f988da,
	0x983e5152, 0xa831c66d, 0xb00327c8, 0xbf597fc7, 0xc6e00bf3, 0xd5a79147, 0x06ca6351, 0x14292967,
	0x27b70a85, 0x2e1b2138, 0x4d2c6dfc, 0x53380d13, 0x650a7354, 0x766a0abb, 0x81c2c92e, 0x92722c85,
	0xa2bfe8a1, 0xa81a664b, 0xc24b8b70, 0xc76c51a3, 0xd192e819, 0xd6990624, 0xf40e3585, 0x106aa070,
	0x19a4c116, 0x1e376c08, 0x2748774c, 0x34b0bcb5, 0x391c0cb3, 0x4ed8aa4a, 0x5b9cca4f, 0x682e6ff3,
	0x748f82ee, 0x78a5636f, 0x84c87814, 0x8cc70208, 0x90befffa, 0xa4506ceb, 0xbef9a3f7, 0xc67178f2,
}

// Sha256Extend is the message-schedule expansion precompile
type Sha256Extend struct{}

// ID implements Precompile
func (Sha256Extend) ID() uint32 { return IDSha256Extend }

// Name implements Precompile
func (Sha256Extend) Name() string { return "sha256-extend" }

// Run implements Precompile
func (Sha256Extend) Run(st *mips.State) ([]uint32, []uint32, error) {
	wPtr := st.Regs[mips.RegA0]

	inputs := make([]uint32, 16)
	var w [64]uint32
	for i := 0; i < 16; i++ {
		v, err := st.ReadWord(wPtr + 4*uint32(i))
		if err != nil {
			return nil, nil, err
		}
		w[i] = v
		inputs[i] = v
	}

	outputs := make([]uint32, 0, 48)
	for i := 16; i < 64; i++ {
		s0 := bits.RotateLeft32(w[i-15], -7) ^ bits.RotateLeft32(w[i-15], -18) ^ w[i-15]>>3
		s1 := bits.RotateLeft32(w[i-2], -17) ^ bits.RotateLeft32(w[i-2], -19) ^ w[i-2]>>10
		w[i] = w[i-16] + s0 + w[i-7] + s1
		if err := st.WriteWord(wPtr+4*uint32(i), w[i]); err != nil {
			return nil, nil, err
		}
		outputs = append(outputs, w[i])
	}

	return inputs, outputs, nil
}

// Sha256Compress is the compression-function precompile
type Sha256Compress struct{}

// ID implements Precompile
func (Sha256Compress) ID() uint32 { return IDSha256Compress }

// Name implements Precompile
func (Sha256Compress) Name() string { return "sha256-compress" }

// Run implements Precompile
func (Sha256Compress) Run(st *mips.State) ([]uint32, []uint32, error) {
	wPtr := st.Regs[mips.RegA0]
	hPtr := st.Regs[mips.RegA1]

	var w [64]uint32
	inputs := make([]uint32, 0, 64+8)
	for i := range w {
		v, err := st.ReadWord(wPtr + 4*uint32(i))
		if err != nil {
			return nil, nil, err
		}
		w[i] = v
		inputs = append(inputs, v)
	}

	var hs [8]uint32
	for i := range hs {
		v, err := st.ReadWord(hPtr + 4*uint32(i))
		if err != nil {
			return nil, nil, err
		}
		hs[i] = v
		inputs = append(inputs, v)
	}

	a, b, c, d, e, f, g, h := hs[0], hs[1], hs[2], hs[3], hs[4], hs[5], hs[6], hs[7]
	for i := 0; i < 64; i++ {
		s1 := bits.RotateLeft32(e, -6) ^ bits.RotateLeft32(e, -11) ^ bits.RotateLeft32(e, -25)
		ch := e&f ^ ^e&g
		t1 := h + s1 + ch + sha256K[i] + w[i]
		s0 := bits.RotateLeft32(a, -2) ^ bits.RotateLeft32(a, -13) ^ bits.RotateLeft32(a, -22)
		maj := a&b ^ a&c ^ b&c
		t2 := s0 + maj

		h, g, f, e, d, c, b, a = g, f, e, d+t1, c, b, a, t1+t2
	}

	hs[0] += a
	hs[1] += b
	hs[2] += c
	hs[3] += d
	hs[4] += e
	hs[5] += f
	hs[6] += g
	hs[7] += h

	outputs := make([]uint32, 0, 8)
	for i, v := range hs {
		if err := st.WriteWord(hPtr+4*uint32(i), v); err != nil {
			return nil, nil, err
		}
		outputs = append(outputs, v)
	}

	return inputs, outputs, nil
}
