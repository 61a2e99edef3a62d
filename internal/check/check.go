// Package check implements the xz integrity checks: CRC32, CRC64, and
// SHA-256, selected per stream by a one-byte check id (§4.2, §6.1).
package check

import (
	"crypto/sha256"
	"errors"
	"hash"
	"hash/crc32"
	"hash/crc64"
)

// ID identifies an integrity check algorithm as stored in the stream flags
// byte (low 4 bits).
type ID byte

// Known check ids (§6.1). Ids 2-3, 5-9, 11-15 are reserved; their sizes are
// tabulated in Size so unknown-but-reserved ids can still be skipped.
const (
	None   ID = 0
	CRC32  ID = 1
	CRC64  ID = 4
	SHA256 ID = 10
)

// reservedSizes gives the trailer size in bytes for every possible 4-bit
// check id, including reserved ones per the specification table in §6.1.
var reservedSizes = [16]int{
	0:  0,
	1:  4,
	2:  4,
	3:  4,
	4:  8,
	5:  8,
	6:  8,
	7:  16,
	8:  16,
	9:  16,
	10: 32,
	11: 32,
	12: 32,
	13: 64,
	14: 64,
	15: 64,
}

// ErrInvalidID is returned when a check id is outside the 4-bit range.
var ErrInvalidID = errors.New("check: id out of range")

// Size returns the number of trailer bytes an id occupies. Valid for any
// id in [0,15], including reserved ones that are not separately
// implemented.
func Size(id ID) (int, error) {
	if id > 15 {
		return 0, ErrInvalidID
	}
	return reservedSizes[id], nil
}

// Known reports whether id is one this package can compute and verify
// (as opposed to only sized for skipping).
func Known(id ID) bool {
	switch id {
	case None, CRC32, CRC64, SHA256:
		return true
	default:
		return false
	}
}

// crc64ECMATable uses the ECMA-182 polynomial xz specifies, which differs
// from the ISO polynomial the standard library exposes as crc64.ISO.
var crc64ECMATable = crc64.MakeTable(0xC96C5795D7870F42)

// Hash computes a running integrity check and reports its final trailer
// bytes in the wire's little-endian-per-word layout.
type Hash interface {
	hash.Hash
	// ID reports which check this hash implements.
	ID() ID
}

// New returns a new running Hash for id. It returns nil and no error for
// None and for the reserved ids up to 15 that have no implementation here;
// ErrInvalidID is returned only for ids above 15.
func New(id ID) (Hash, error) {
	switch id {
	case None:
		return nil, nil
	case CRC32:
		return &crc32Hash{crc32.NewIEEE()}, nil
	case CRC64:
		return &crc64Hash{crc64.New(crc64ECMATable)}, nil
	case SHA256:
		return &sha256Hash{sha256.New()}, nil
	default:
		if id > 15 {
			return nil, ErrInvalidID
		}
		return nil, nil
	}
}

type crc32Hash struct{ hash.Hash32 }

func (h *crc32Hash) ID() ID { return CRC32 }

// Sum returns the 4-byte little-endian CRC32, matching the wire layout.
func (h *crc32Hash) Sum(b []byte) []byte {
	v := h.Sum32()
	return append(b, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

type crc64Hash struct{ hash.Hash64 }

func (h *crc64Hash) ID() ID { return CRC64 }

func (h *crc64Hash) Sum(b []byte) []byte {
	v := h.Sum64()
	out := make([]byte, 8)
	for i := range out {
		out[i] = byte(v)
		v >>= 8
	}
	return append(b, out...)
}

type sha256Hash struct{ hash.Hash }

func (h *sha256Hash) ID() ID { return SHA256 }
