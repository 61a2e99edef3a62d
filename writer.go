package xz

import (
	"fmt"
	"io"

	"github.com/vela-compress/xz/block"
	"github.com/vela-compress/xz/filter"
)

// lzma2TailStage is a validation-only filter.Stage standing in for the
// LZMA2 tail codec, so a Writer's filter list can be run through
// filter.NewChain's construction checks (§4.9) alongside the real
// delta/BCJ stages. Its EncodeBlock/DecodeBlock are never called:
// filter.EncodeChain/DecodeChain skip any IsLastOnly stage, since the
// actual LZMA2 coding is driven by the block package, not by this
// package's Stage interface.
type lzma2TailStage struct{ dictSize uint32 }

func (lzma2TailStage) ID() uint64         { return filter.IDLZMA2 }
func (lzma2TailStage) IsLastOnly() bool   { return true }
func (lzma2TailStage) EncodeBlock(b []byte) int { return len(b) }
func (lzma2TailStage) DecodeBlock(b []byte) int { return len(b) }
func (s lzma2TailStage) MemoryEstimate() uint64 { return uint64(s.dictSize) * 12 }

// Writer encodes plaintext into a complete xz stream: header, one block
// per BlockSize-sized accumulation, index, footer (§4.11).
type Writer struct {
	w       io.Writer
	cfg     WriterConfig
	flags   streamFlags
	pend    []byte
	records []indexRecord
	closed  bool
	headerWritten bool
}

// NewWriter validates cfg and writes the stream header immediately.
func NewWriter(w io.Writer, cfg *WriterConfig) (*Writer, error) {
	if cfg == nil {
		cfg = DefaultWriterConfig()
	}
	c := *cfg
	c.fill()

	full := append(append([]filter.Stage(nil), c.Filters...), lzma2TailStage{dictSize: c.LZMA.DictSize})
	if _, err := filter.NewChain(full, 0); err != nil {
		return nil, taxError(OptionsError, err)
	}

	zw := &Writer{w: w, cfg: c, flags: streamFlags{checkID: c.CheckID}}
	if err := writeStreamHeader(w, zw.flags); err != nil {
		return nil, err
	}
	zw.headerWritten = true
	return zw, nil
}

// Write buffers p, encoding a block each time BlockSize bytes have
// accumulated. With BlockSize 0, Write only buffers: the data is encoded
// on Flush or Close, so a stream with no Flush calls is one block.
func (zw *Writer) Write(p []byte) (int, error) {
	if zw.closed {
		return 0, taxError(ProgError, fmt.Errorf("%w: write after close", ErrProg))
	}
	zw.pend = append(zw.pend, p...)
	if zw.cfg.BlockSize > 0 {
		for int64(len(zw.pend)) >= zw.cfg.BlockSize {
			chunk := zw.pend[:zw.cfg.BlockSize]
			if err := zw.flushBlock(chunk); err != nil {
				return len(p), err
			}
			zw.pend = zw.pend[:copy(zw.pend, zw.pend[zw.cfg.BlockSize:])]
		}
	}
	return len(p), nil
}

func (zw *Writer) flushBlock(data []byte) error {
	cfg := block.Config{Filters: zw.cfg.Filters, LZMA: zw.cfg.LZMA, CheckID: zw.cfg.CheckID}
	unpadded, err := block.Encode(zw.w, data, cfg)
	if err != nil {
		return err
	}
	zw.records = append(zw.records, indexRecord{
		unpaddedSize:     uint64(unpadded),
		uncompressedSize: uint64(len(data)),
	})
	return nil
}

// Flush closes the current block: any buffered plaintext is encoded and
// emitted as a complete block, and the next Write starts a fresh one
// (§4.11 FULL_FLUSH). Flushing with nothing buffered is a no-op.
func (zw *Writer) Flush() error {
	if zw.closed {
		return taxError(ProgError, fmt.Errorf("%w: flush after close", ErrProg))
	}
	if len(zw.pend) == 0 {
		return nil
	}
	err := zw.flushBlock(zw.pend)
	zw.pend = zw.pend[:0]
	return err
}

// Close flushes any buffered plaintext as a final block (if non-empty),
// then writes the index and stream footer.
func (zw *Writer) Close() error {
	if zw.closed {
		return nil
	}
	zw.closed = true
	if len(zw.pend) > 0 {
		if err := zw.flushBlock(zw.pend); err != nil {
			return err
		}
		zw.pend = nil
	}
	indexSize, err := writeIndex(zw.w, zw.records)
	if err != nil {
		return err
	}
	return writeStreamFooter(zw.w, zw.flags, indexSize)
}
