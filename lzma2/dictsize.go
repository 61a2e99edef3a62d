package lzma2

import "errors"

// ErrInvalidDictSizeProp is returned when an LZMA2 filter-flags properties
// byte does not decode to a valid dictionary size (§6.1).
var ErrInvalidDictSizeProp = errors.New("lzma2: invalid dictionary size property byte")

// EncodeDictSize encodes size into the one-byte LZMA2 filter-flags
// properties value `((2 | (b & 1)) << ((b >> 1) + 11))`, rounding up to
// the smallest representable size (§6.1). This is the block header's
// filter-flags byte for the LZMA2 filter, distinct from the per-chunk
// lc/lp/pb properties byte used inside compressed chunks.
func EncodeDictSize(size uint32) byte {
	if size >= 0xFFFFFFFF {
		return 40
	}
	for b := 0; b <= 40; b++ {
		if dictSizeForProp(byte(b)) >= size {
			return byte(b)
		}
	}
	return 40
}

// DecodeDictSize decodes a filter-flags properties byte into a dictionary
// size.
func DecodeDictSize(b byte) (uint32, error) {
	if b > 40 {
		return 0, ErrInvalidDictSizeProp
	}
	return dictSizeForProp(b), nil
}

func dictSizeForProp(b byte) uint32 {
	if b == 40 {
		return 0xFFFFFFFF
	}
	return (uint32(2) | (uint32(b) & 1)) << (uint(b)/2 + 11)
}
