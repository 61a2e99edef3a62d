// Package block implements the xz block header and block engine (§4.10):
// the per-block filter-flags descriptor plus the logic that runs a
// block's payload through a filter chain and an integrity check.
package block

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/vela-compress/xz/filter"
	"github.com/vela-compress/xz/internal/check"
	"github.com/vela-compress/xz/internal/memlimit"
	"github.com/vela-compress/xz/internal/vli"
	"github.com/vela-compress/xz/lzma"
	"github.com/vela-compress/xz/lzma2"
)

// Header flag bits (§6.1).
const (
	filterCountMask    = 0x03
	compressedPresent  = 0x40
	uncompressedPresent = 0x80
	reservedFlagsMask  = 0x3C
)

const (
	minHeaderSize = 8
	maxHeaderSize = 1024
)

var (
	// ErrHeaderTooShort is returned when a declared header size falls
	// outside [8, 1024] or isn't a multiple of four.
	ErrHeaderTooShort = errors.New("block: header size out of range")
	// ErrReservedFlags is returned when reserved header-flag bits are set.
	ErrReservedFlags = errors.New("block: reserved header flags set")
	// ErrHeaderCRC is returned when a block header's trailing CRC32 does
	// not match its preceding bytes.
	ErrHeaderCRC = errors.New("block: header checksum mismatch")
	// ErrFilterCount is returned when a header declares zero or more than
	// four filters.
	ErrFilterCount = errors.New("block: invalid filter count")
	// ErrPadding is returned when header or block padding contains a
	// non-zero byte.
	ErrPadding = errors.New("block: non-zero padding byte")
	// ErrSizeMismatch is returned when a decoded payload's length
	// disagrees with a size declared in the block header.
	ErrSizeMismatch = errors.New("block: declared size does not match payload")
	// ErrCheckMismatch is returned when a block's trailing integrity
	// check does not match the decoded payload.
	ErrCheckMismatch = errors.New("block: integrity check mismatch")
	// ErrTailNotLZMA2 is returned when a block header's last filter is
	// not the LZMA2 id — the only tail codec this engine implements.
	ErrTailNotLZMA2 = errors.New("block: last filter must be LZMA2")
)

// FilterFlag is one entry of a block header's filter-flags list (§6.1):
// a filter id plus its raw properties bytes, independent of whether this
// package has a live Stage implementation for that id.
type FilterFlag struct {
	ID         uint64
	Properties []byte
}

// Header is the decoded content of a block header (§4.10).
type Header struct {
	CompressedSize   int64 // -1 if not present
	UncompressedSize int64 // -1 if not present
	Filters          []FilterFlag
}

// MarshalBinary encodes h into a complete block header, including the
// leading size byte and trailing CRC32, with zero padding to a 4-byte
// boundary (§4.10, §6.1).
func (h *Header) MarshalBinary() ([]byte, error) {
	if len(h.Filters) < 1 || len(h.Filters) > filter.MaxFilters {
		return nil, ErrFilterCount
	}
	var body bytes.Buffer
	body.WriteByte(0) // size placeholder

	flags := byte(len(h.Filters) - 1)
	if h.CompressedSize >= 0 {
		flags |= compressedPresent
	}
	if h.UncompressedSize >= 0 {
		flags |= uncompressedPresent
	}
	body.WriteByte(flags)

	if h.CompressedSize >= 0 {
		enc, err := vli.Encode(nil, uint64(h.CompressedSize))
		if err != nil {
			return nil, err
		}
		body.Write(enc)
	}
	if h.UncompressedSize >= 0 {
		enc, err := vli.Encode(nil, uint64(h.UncompressedSize))
		if err != nil {
			return nil, err
		}
		body.Write(enc)
	}

	for _, f := range h.Filters {
		enc, err := vli.Encode(nil, f.ID)
		if err != nil {
			return nil, err
		}
		body.Write(enc)
		enc, err = vli.Encode(nil, uint64(len(f.Properties)))
		if err != nil {
			return nil, err
		}
		body.Write(enc)
		body.Write(f.Properties)
	}

	for body.Len()%4 != 0 {
		body.WriteByte(0)
	}
	body.Write(make([]byte, 4)) // crc placeholder

	data := body.Bytes()
	if len(data)%4 != 0 {
		return nil, ErrHeaderTooShort
	}
	trueSize := len(data)
	if trueSize < minHeaderSize || trueSize > maxHeaderSize {
		return nil, ErrHeaderTooShort
	}
	data[0] = byte(trueSize/4 - 1)

	h32, err := check.New(check.CRC32)
	if err != nil {
		return nil, err
	}
	h32.Write(data[:trueSize-4])
	copy(data[trueSize-4:], h32.Sum(nil))

	return data, nil
}

// ReadHeader reads and validates a block header from r, returning the
// decoded Header and the number of bytes consumed. A leading zero byte
// (the index indicator) is reported via ErrIndexIndicator so callers
// parsing a stream body can tell a block from the index.
var ErrIndexIndicator = errors.New("block: found index indicator, not a block header")

func ReadHeader(r io.Reader) (*Header, int, error) {
	var sizeByte [1]byte
	if _, err := io.ReadFull(r, sizeByte[:]); err != nil {
		return nil, 0, err
	}
	if sizeByte[0] == 0 {
		return nil, 1, ErrIndexIndicator
	}
	trueSize := (int(sizeByte[0]) + 1) * 4
	rest := make([]byte, trueSize-1)
	if _, err := io.ReadFull(r, rest); err != nil {
		return nil, 1, err
	}
	data := append(sizeByte[:], rest...)

	h32, err := check.New(check.CRC32)
	if err != nil {
		return nil, trueSize, err
	}
	h32.Write(data[:trueSize-4])
	want := h32.Sum(nil)
	if !bytes.Equal(want, data[trueSize-4:]) {
		return nil, trueSize, ErrHeaderCRC
	}

	flags := data[1]
	if flags&reservedFlagsMask != 0 {
		return nil, trueSize, ErrReservedFlags
	}

	h := &Header{CompressedSize: -1, UncompressedSize: -1}
	body := data[2 : trueSize-4]

	if flags&compressedPresent != 0 {
		v, n, err := vli.Decode(body)
		if err != nil {
			return nil, trueSize, err
		}
		h.CompressedSize = int64(v)
		body = body[n:]
	}
	if flags&uncompressedPresent != 0 {
		v, n, err := vli.Decode(body)
		if err != nil {
			return nil, trueSize, err
		}
		h.UncompressedSize = int64(v)
		body = body[n:]
	}

	count := int(flags&filterCountMask) + 1
	for i := 0; i < count; i++ {
		id, n, err := vli.Decode(body)
		if err != nil {
			return nil, trueSize, err
		}
		body = body[n:]
		plen, n, err := vli.Decode(body)
		if err != nil {
			return nil, trueSize, err
		}
		body = body[n:]
		if uint64(len(body)) < plen {
			return nil, trueSize, ErrPadding
		}
		props := append([]byte(nil), body[:plen]...)
		body = body[plen:]
		h.Filters = append(h.Filters, FilterFlag{ID: id, Properties: props})
	}

	for _, b := range body {
		if b != 0 {
			return nil, trueSize, ErrPadding
		}
	}

	return h, trueSize, nil
}

// Size returns the encoded header's true byte length (a multiple of 4 in
// [8,1024]), matching what MarshalBinary would produce.
func (h *Header) Size() (int, error) {
	data, err := h.MarshalBinary()
	if err != nil {
		return 0, err
	}
	return len(data), nil
}

// Config describes how to build and run a block's filter chain and
// integrity check when encoding, and which check to verify on decoding.
type Config struct {
	Filters  []filter.Stage // non-tail filters, head-to-tail order; may be empty
	LZMA     lzma.EncoderParams
	CheckID  check.ID
}

// Encode filters plain through Filters, compresses the result with
// LZMA2, and writes a complete block (header, payload, check, padding)
// to w (§4.10 encoding flow). It returns the unpadded_size the caller
// should record in the stream index.
func Encode(w io.Writer, plain []byte, cfg Config) (unpaddedSize int64, err error) {
	buf := append([]byte(nil), plain...)
	filter.EncodeChain(cfg.Filters, buf)

	var compressed bytes.Buffer
	zw := lzma2.NewWriter(&compressed, cfg.LZMA)
	if _, err := zw.Write(buf); err != nil {
		return 0, err
	}
	if err := zw.Close(); err != nil {
		return 0, err
	}

	hdr := &Header{
		CompressedSize:   int64(compressed.Len()),
		UncompressedSize: int64(len(plain)),
	}
	for _, f := range cfg.Filters {
		props, err := filter.Properties(f)
		if err != nil {
			return 0, err
		}
		hdr.Filters = append(hdr.Filters, FilterFlag{ID: f.ID(), Properties: props})
	}
	hdr.Filters = append(hdr.Filters, FilterFlag{
		ID:         filter.IDLZMA2,
		Properties: []byte{lzma2DictProp(cfg.LZMA.DictSize)},
	})

	headerBytes, err := hdr.MarshalBinary()
	if err != nil {
		return 0, err
	}
	if _, err := w.Write(headerBytes); err != nil {
		return 0, err
	}
	if _, err := w.Write(compressed.Bytes()); err != nil {
		return 0, err
	}

	checkSize := 0
	if cfg.CheckID != check.None {
		h, err := check.New(cfg.CheckID)
		if err != nil {
			return 0, err
		}
		if h != nil {
			h.Write(plain)
			sum := h.Sum(nil)
			if _, err := w.Write(sum); err != nil {
				return 0, err
			}
			checkSize = len(sum)
		}
	}

	unpaddedSize = int64(len(headerBytes) + compressed.Len() + checkSize)
	padded := (unpaddedSize + 3) &^ 3
	if pad := padded - unpaddedSize; pad > 0 {
		if _, err := w.Write(make([]byte, pad)); err != nil {
			return 0, err
		}
	}
	return unpaddedSize, nil
}

// lzma2DictProp is a small adapter kept local so block.go does not import
// lzma2's dict-size codec under a different name at every call site.
func lzma2DictProp(size uint32) byte { return lzma2.EncodeDictSize(size) }

// DecodeConfig controls block decoding: which check id the enclosing
// stream declared, and an optional memory-tracked allocator (§4.3) the
// compressed payload buffer is drawn through. The decoded plaintext is
// not allocated through it.
type DecodeConfig struct {
	CheckID   check.ID
	Allocator memlimit.Allocator
}

// Decode reads one complete block (header, payload, check, padding) from
// r per cfg, returning the decoded plaintext and the block's
// unpadded_size (header + compressed payload + check, pre-padding), for
// cross-checking against the stream index (§4.10 decoding flow, §4.11).
func Decode(r io.Reader, cfg DecodeConfig) (plain []byte, unpaddedSize int64, err error) {
	alloc := cfg.Allocator
	if alloc == nil {
		alloc = memlimit.Default()
	}
	checkID := cfg.CheckID

	hdr, headerLen, err := ReadHeader(r)
	if err != nil {
		return nil, 0, err
	}
	if len(hdr.Filters) == 0 || hdr.Filters[len(hdr.Filters)-1].ID != filter.IDLZMA2 {
		return nil, 0, ErrTailNotLZMA2
	}

	var stages []filter.Stage
	for _, ff := range hdr.Filters[:len(hdr.Filters)-1] {
		s, err := filter.NewFromID(ff.ID, ff.Properties)
		if err != nil {
			return nil, 0, err
		}
		stages = append(stages, s)
	}
	dictProp := hdr.Filters[len(hdr.Filters)-1].Properties
	dictSize := lzma.DefaultParams().DictSize
	if len(dictProp) == 1 {
		dictSize, err = lzma2.DecodeDictSize(dictProp[0])
		if err != nil {
			return nil, 0, err
		}
	}

	if hdr.CompressedSize < 0 {
		return nil, 0, fmt.Errorf("block: %w: compressed size required to bound payload read", ErrSizeMismatch)
	}
	payload, err := alloc.Alloc(1, int(hdr.CompressedSize))
	if err != nil {
		return nil, 0, err
	}
	defer alloc.Free(payload)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, 0, err
	}

	zr, err := lzma2.NewReader(bytes.NewReader(payload), lzma.Params{DictSize: dictSize, LC: 3, LP: 0, PB: 2})
	if err != nil {
		return nil, 0, err
	}
	plain, err = io.ReadAll(zr)
	if err != nil {
		return nil, 0, err
	}

	filter.DecodeChain(stages, plain)

	if hdr.UncompressedSize >= 0 && int64(len(plain)) != hdr.UncompressedSize {
		return nil, 0, ErrSizeMismatch
	}

	checkSize, err := check.Size(checkID)
	if err != nil {
		return nil, 0, err
	}
	if checkSize > 0 {
		sum := make([]byte, checkSize)
		if _, err := io.ReadFull(r, sum); err != nil {
			return nil, 0, err
		}
		if check.Known(checkID) {
			h, err := check.New(checkID)
			if err != nil {
				return nil, 0, err
			}
			h.Write(plain)
			if !bytes.Equal(h.Sum(nil), sum) {
				return nil, 0, ErrCheckMismatch
			}
		}
	}

	unpaddedSize = int64(headerLen) + hdr.CompressedSize + int64(checkSize)
	if pad := ((unpaddedSize + 3) &^ 3) - unpaddedSize; pad > 0 {
		padding := make([]byte, pad)
		if _, err := io.ReadFull(r, padding); err != nil {
			return nil, 0, err
		}
		for _, b := range padding {
			if b != 0 {
				return nil, 0, ErrPadding
			}
		}
	}

	return plain, unpaddedSize, nil
}
