package molecule

import (
	"encoding/binary"
	"hash"
	"hash/crc32"
)

// crcTable is the PNG/zlib CRC-32 table (reflected polynomial 0xEDB88320).
// The hash/crc32 digest seeds with 0xFFFFFFFF and applies the final XOR.
var crcTable = crc32.IEEETable

// checksum accumulates the byte stream hashed into an atom identity.
type checksum struct {
	h   hash.Hash32
	buf [4]byte
}

func newChecksum() *checksum {
	return &checksum{h: crc32.New(crcTable)}
}

// byte feeds the low eight bits of v.
func (c *checksum) byte(v int) {
	c.buf[0] = byte(v)
	c.h.Write(c.buf[:1])
}

// word feeds v as four big-endian bytes.
func (c *checksum) word(v uint32) {
	binary.BigEndian.PutUint32(c.buf[:], v)
	c.h.Write(c.buf[:])
}

func (c *checksum) sum() uint32 {
	return c.h.Sum32()
}

// AtomInvariant computes the initial identity of one atom from its static
// properties: heavy-neighbour count, degree, atomic number, formal charge,
// hydrogen count and ring membership, packed into four bytes and hashed.
//
// Degree is the element's standard valence less its hydrogen count, floored
// at zero.
func AtomInvariant(g Graph, atom int) uint32 {
	adj, _ := g.Neighbors(atom)
	heavy := 0
	for _, nb := range adj {
		if g.AtomicNumber(nb) != 1 {
			heavy++
		}
	}
	hcount := g.Hydrogens(atom)
	degree := StandardValence(g.AtomicNumber(atom)) - hcount
	if degree < 0 {
		degree = 0
	}
	ring := 0
	if g.RingBlock(atom) > 0 {
		ring = 1
	}

	crc := newChecksum()
	crc.byte(heavy<<4 | degree)
	crc.byte(g.AtomicNumber(atom))
	crc.byte(g.Charge(atom) + 128)
	crc.byte(hcount<<4 | ring)
	return crc.sum()
}
