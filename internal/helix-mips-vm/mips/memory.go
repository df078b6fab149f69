package mips

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"sort"
)

// Memory faults are guest program defects: the run terminates and the fault
// is reported, it is never retried.
var (
	ErrMemoryFault        = errors.New("mips: memory access fault")
	ErrIllegalInstruction = errors.New("mips: illegal instruction")
	ErrHalted             = errors.New("mips: machine is halted")
)

const (
	// PageSize is the granularity of the sparse memory image
	PageSize = 4096

	pageAddrBits = 12
	pageAddrMask = PageSize - 1

	// MaxMemory is the end of the guest-addressable region. Accesses at or
	// above it fault.
	MaxMemory = 0x7ff0_0000

	// pageTreeDepth is the depth of the page-level Merkle tree:
	// 2^32 address space / 2^12 page size = 2^20 pages.
	pageTreeDepth = 32 - pageAddrBits
)

// Page is one aligned unit of the sparse memory image
type Page [PageSize]byte

// Memory is the sparse, paged memory image of the machine. Pages are
// allocated on first touch; untouched memory reads as zero. The image is
// big-endian, matching the MIPS target.
type Memory struct {
	pages map[uint32]*Page
}

// NewMemory creates an empty memory image
func NewMemory() *Memory {
	return &Memory{pages: make(map[uint32]*Page)}
}

func (m *Memory) pageFor(addr uint32, allocate bool) *Page {
	key := addr >> pageAddrBits
	p, ok := m.pages[key]
	if !ok && allocate {
		p = new(Page)
		m.pages[key] = p
	}
	return p
}

func checkAccess(addr uint32, size uint32) error {
	if addr >= MaxMemory || addr+size > MaxMemory {
		return fmt.Errorf("address 0x%08x out of bounds: %w", addr, ErrMemoryFault)
	}
	if addr%size != 0 {
		return fmt.Errorf("misaligned %d-byte access at 0x%08x: %w", size, addr, ErrMemoryFault)
	}
	return nil
}

// Word reads a 32-bit big-endian word. The address must be word-aligned.
func (m *Memory) Word(addr uint32) (uint32, error) {
	if err := checkAccess(addr, 4); err != nil {
		return 0, err
	}
	p := m.pageFor(addr, false)
	if p == nil {
		return 0, nil
	}
	off := addr & pageAddrMask
	return binary.BigEndian.Uint32(p[off : off+4]), nil
}

// SetWord writes a 32-bit big-endian word. The address must be word-aligned.
func (m *Memory) SetWord(addr uint32, v uint32) error {
	if err := checkAccess(addr, 4); err != nil {
		return err
	}
	p := m.pageFor(addr, true)
	off := addr & pageAddrMask
	binary.BigEndian.PutUint32(p[off:off+4], v)
	return nil
}

// Byte reads a single byte
func (m *Memory) Byte(addr uint32) (byte, error) {
	if err := checkAccess(addr, 1); err != nil {
		return 0, err
	}
	p := m.pageFor(addr, false)
	if p == nil {
		return 0, nil
	}
	return p[addr&pageAddrMask], nil
}

// SetByte writes a single byte
func (m *Memory) SetByte(addr uint32, v byte) error {
	if err := checkAccess(addr, 1); err != nil {
		return err
	}
	p := m.pageFor(addr, true)
	p[addr&pageAddrMask] = v
	return nil
}

// Half reads a 16-bit big-endian halfword. The address must be half-aligned.
func (m *Memory) Half(addr uint32) (uint16, error) {
	if err := checkAccess(addr, 2); err != nil {
		return 0, err
	}
	p := m.pageFor(addr, false)
	if p == nil {
		return 0, nil
	}
	off := addr & pageAddrMask
	return binary.BigEndian.Uint16(p[off : off+2]), nil
}

// SetHalf writes a 16-bit big-endian halfword
func (m *Memory) SetHalf(addr uint32, v uint16) error {
	if err := checkAccess(addr, 2); err != nil {
		return err
	}
	p := m.pageFor(addr, true)
	off := addr & pageAddrMask
	binary.BigEndian.PutUint16(p[off:off+2], v)
	return nil
}

// SetRange copies data into memory starting at addr, without alignment
// requirements. Used by the loader and the hint syscalls.
func (m *Memory) SetRange(addr uint32, data []byte) error {
	if uint64(addr)+uint64(len(data)) > MaxMemory {
		return fmt.Errorf("range [0x%08x, +%d) out of bounds: %w", addr, len(data), ErrMemoryFault)
	}
	for len(data) > 0 {
		p := m.pageFor(addr, true)
		off := addr & pageAddrMask
		n := copy(p[off:], data)
		data = data[n:]
		addr += uint32(n)
	}
	return nil
}

// Range reads n bytes starting at addr
func (m *Memory) Range(addr uint32, n int) ([]byte, error) {
	if uint64(addr)+uint64(n) > MaxMemory {
		return nil, fmt.Errorf("range [0x%08x, +%d) out of bounds: %w", addr, n, ErrMemoryFault)
	}
	out := make([]byte, n)
	buf := out
	for len(buf) > 0 {
		p := m.pageFor(addr, false)
		off := addr & pageAddrMask
		span := PageSize - int(off)
		if span > len(buf) {
			span = len(buf)
		}
		if p != nil {
			copy(buf[:span], p[off:int(off)+span])
		}
		buf = buf[span:]
		addr += uint32(span)
	}
	return out, nil
}

// PageCount returns the number of allocated pages
func (m *Memory) PageCount() int {
	return len(m.pages)
}

// Root computes the Merkle root of the memory image over page hashes,
// using the supplied hash constructor. Untouched subtrees hash as all-zero
// pages, cached per level, so the cost scales with the touched pages rather
// than the 2^20-page address space.
func (m *Memory) Root(newHash func() hash.Hash) [32]byte {
	h := newHash()

	hashPair := func(l, r [32]byte) [32]byte {
		h.Reset()
		h.Write(l[:])
		h.Write(r[:])
		var out [32]byte
		copy(out[:], h.Sum(nil))
		return out
	}

	// Zero-subtree hashes: zero[0] is the hash of an untouched page,
	// zero[d] covers 2^d untouched pages.
	var zero [pageTreeDepth + 1][32]byte
	h.Reset()
	h.Write(make([]byte, PageSize))
	copy(zero[0][:], h.Sum(nil))
	for d := 1; d <= pageTreeDepth; d++ {
		zero[d] = hashPair(zero[d-1], zero[d-1])
	}

	hashPage := func(p *Page) [32]byte {
		h.Reset()
		h.Write(p[:])
		var out [32]byte
		copy(out[:], h.Sum(nil))
		return out
	}

	// Sorted page keys give a deterministic traversal.
	keys := make([]uint32, 0, len(m.pages))
	for k := range m.pages {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	// merkleize computes the subtree root covering page keys
	// [base, base+2^depth) from the sorted keys slice.
	var merkleize func(keys []uint32, base uint32, depth int) [32]byte
	merkleize = func(keys []uint32, base uint32, depth int) [32]byte {
		if len(keys) == 0 {
			return zero[depth]
		}
		if depth == 0 {
			return hashPage(m.pages[base])
		}
		mid := base + 1<<(depth-1)
		split := sort.Search(len(keys), func(i int) bool { return keys[i] >= mid })
		left := merkleize(keys[:split], base, depth-1)
		right := merkleize(keys[split:], mid, depth-1)
		return hashPair(left, right)
	}

	return merkleize(keys, 0, pageTreeDepth)
}
