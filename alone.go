package xz

import (
	"bytes"
	"fmt"
	"io"
	"math/bits"

	"github.com/vela-compress/xz/lzma"
)

// aloneUnknownSize is the legacy format's "uncompressed size unknown"
// marker (all-ones 64-bit field), in which case the payload ends at the
// LZMA1 end-of-stream marker instead of a declared byte count (§6.1).
const aloneUnknownSize = 1<<64 - 1

// EncodeAlone writes the legacy LZMA_Alone (.lzma) container: a
// properties byte, 4-byte little-endian dictionary size, 8-byte
// little-endian uncompressed size, then a raw LZMA1 stream (§6.1, §9).
// The uncompressed size is always written explicitly (never the unknown
// marker), since the whole input is available up front.
func EncodeAlone(w io.Writer, input []byte, params lzma.EncoderParams) error {
	propsByte, err := params.Params.PropsByte()
	if err != nil {
		return taxError(OptionsError, err)
	}
	header := make([]byte, 13)
	header[0] = propsByte
	putUint32LE(header[1:5], params.Params.DictSize)
	putUint64LE(header[5:13], uint64(len(input)))
	if _, err := w.Write(header); err != nil {
		return err
	}

	enc, err := lzma.NewEncoder(w, params)
	if err != nil {
		return taxError(OptionsError, err)
	}
	if _, err := enc.Write(input); err != nil {
		return err
	}
	return enc.Close()
}

// DecodeAlone reads a legacy LZMA_Alone stream from r. If the header
// declares the unknown-size marker, decoding continues until the LZMA1
// end-of-stream marker; otherwise exactly the declared number of bytes
// are decoded.
//
// The dictionary-size sanity check below is the heuristic described in
// §9: the original decoder rejects sizes that are neither a power of two
// nor 1.5× a power of two, to reject files that merely look like valid
// LZMA_Alone headers by coincidence. It is not part of any format
// requirement.
func DecodeAlone(r io.Reader) ([]byte, error) {
	header := make([]byte, 13)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}
	lc, lp, pb, err := lzma.DecodeProps(header[0])
	if err != nil {
		return nil, taxError(OptionsError, err)
	}
	dictSize := uint32LE(header[1:5])
	if !plausibleAloneDictSize(dictSize) {
		return nil, taxError(FormatError, fmt.Errorf("%w: implausible LZMA_Alone dictionary size %d", ErrFormat, dictSize))
	}
	size := uint64LE(header[5:13])

	params := lzma.Params{LC: lc, LP: lp, PB: pb, DictSize: dictSize}
	dec, err := lzma.NewDecoder(r, params)
	if err != nil {
		return nil, taxError(OptionsError, err)
	}

	var out bytes.Buffer
	if size == aloneUnknownSize {
		if err := dec.DecodeUntilEnd(&out); err != nil {
			return nil, taxError(DataError, err)
		}
	} else {
		if err := dec.DecodeTo(&out, int64(size)); err != nil {
			return nil, taxError(DataError, err)
		}
	}
	return out.Bytes(), nil
}

// plausibleAloneDictSize implements the §9 heuristic: accept only 2^n or
// 2^n + 2^(n-1) for some n, matching the set of dictionary sizes real
// LZMA_Alone encoders actually emit.
func plausibleAloneDictSize(size uint32) bool {
	if size == 0 {
		return false
	}
	if bits.OnesCount32(size) == 1 {
		return true
	}
	low := size & (size - 1)
	if bits.OnesCount32(low) != 1 {
		return false
	}
	// size has exactly two set bits; accept only when they are adjacent
	// (2^n + 2^(n-1)).
	hiBit := 31 - bits.LeadingZeros32(size)
	loBit := bits.TrailingZeros32(size)
	return hiBit-loBit == 1
}

func putUint32LE(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func uint32LE(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func putUint64LE(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

func uint64LE(b []byte) uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}
