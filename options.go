package xz

import (
	"github.com/vela-compress/xz/filter"
	"github.com/vela-compress/xz/internal/check"
	"github.com/vela-compress/xz/internal/memlimit"
	"github.com/vela-compress/xz/lzma"
)

// WriterConfig configures a Writer, following the teacher's
// options-struct-with-defaults convention.
type WriterConfig struct {
	// CheckID selects the stream's integrity check. Its zero value is
	// check.None (no integrity check); use DefaultWriterConfig, or set
	// this explicitly, for CRC64.
	CheckID check.ID
	// LZMA controls the tail LZMA2 codec's dictionary size, match
	// finder, and search parameters.
	LZMA lzma.EncoderParams
	// Filters lists non-tail filters (delta/BCJ) to apply ahead of
	// LZMA2, head-to-tail order. Empty means LZMA2 only.
	Filters []filter.Stage
	// BlockSize caps how many plaintext bytes accumulate per block
	// before Writer closes it and starts the next (§4.10). Zero means
	// one block for the whole stream.
	BlockSize int64
}

// DefaultWriterConfig returns a WriterConfig with CRC64 checking, the
// default LZMA2 parameters, no extra filters, and single-block streams.
func DefaultWriterConfig() *WriterConfig {
	return &WriterConfig{
		CheckID: check.CRC64,
		LZMA:    lzma.EncoderParams{Params: lzma.DefaultParams()},
	}
}

// fill resolves any zero-valued fields that downstream code (block
// headers, the LZMA2 tail filter's memory estimate) needs a concrete
// value for. It only touches DictSize — lzma.NewEncoder fills its own
// NiceLen/Depth/Mode defaults per chunk, and overwriting LC/LP/PB here
// would silently discard a caller's explicit entropy-coder parameters.
func (c *WriterConfig) fill() {
	if c.LZMA.DictSize == 0 {
		c.LZMA.DictSize = lzma.DefaultParams().DictSize
	}
}

// ReaderConfig configures a Reader.
type ReaderConfig struct {
	// Allocator, if set, routes each block's compressed payload buffer
	// through a memory-tracked allocator (§4.3), surfacing MemlimitError
	// when that buffer exceeds the limit. Decoded plaintext buffers are
	// not tracked by it.
	Allocator memlimit.Allocator
}

// DefaultReaderConfig returns a ReaderConfig with no memory limit.
func DefaultReaderConfig() *ReaderConfig { return &ReaderConfig{} }
