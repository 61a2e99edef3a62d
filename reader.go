package xz

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/vela-compress/xz/block"
)

// Reader decodes an xz stream (or several concatenated streams, §4.11
// "Multi-stream files") into its plaintext.
type Reader struct {
	r   io.Reader
	cfg ReaderConfig

	buf  []byte
	done bool

	flags        streamFlags
	builtRecords []indexRecord
}

// NewReader reads and validates the first stream header. Subsequent
// blocks are parsed lazily as Read is called.
func NewReader(r io.Reader, cfg *ReaderConfig) (*Reader, error) {
	if cfg == nil {
		cfg = DefaultReaderConfig()
	}
	flags, err := readStreamHeader(r)
	if err != nil {
		return nil, err
	}
	return &Reader{r: r, cfg: *cfg, flags: flags}, nil
}

func (zr *Reader) Read(p []byte) (int, error) {
	for len(zr.buf) == 0 {
		if zr.done {
			return 0, io.EOF
		}
		if err := zr.advance(); err != nil {
			return 0, err
		}
	}
	n := copy(p, zr.buf)
	zr.buf = zr.buf[n:]
	return n, nil
}

// advance decodes the next block, or — on an index indicator — finishes
// the current stream (verifying the index against the blocks actually
// observed, per §4.11's decoder state machine) and transparently starts
// the next concatenated stream if one follows.
func (zr *Reader) advance() error {
	marker := make([]byte, 1)
	if _, err := io.ReadFull(zr.r, marker); err != nil {
		if errors.Is(err, io.EOF) {
			zr.done = true
			return nil
		}
		return err
	}
	mr := io.MultiReader(bytes.NewReader(marker), zr.r)

	if marker[0] == indexIndicator {
		return zr.finishStream(mr)
	}

	plain, unpadded, err := block.Decode(mr, block.DecodeConfig{CheckID: zr.flags.checkID, Allocator: zr.cfg.Allocator})
	if err != nil {
		return err
	}
	zr.builtRecords = append(zr.builtRecords, indexRecord{
		unpaddedSize:     uint64(unpadded),
		uncompressedSize: uint64(len(plain)),
	})
	zr.buf = plain
	return nil
}

func (zr *Reader) finishStream(r io.Reader) error {
	// r starts with the 0x00 index indicator already consumed from the
	// wire and re-supplied by advance's MultiReader; readIndex expects
	// the indicator to have been consumed by the caller already, so skip
	// it here.
	var skip [1]byte
	if _, err := io.ReadFull(r, skip[:]); err != nil {
		return err
	}
	records, indexSize, err := readIndex(r)
	if err != nil {
		return err
	}
	if len(records) != len(zr.builtRecords) {
		return taxError(DataError, fmt.Errorf("%w: index has %d records, decoder observed %d", ErrIndexMismatch, len(records), len(zr.builtRecords)))
	}
	for i, rec := range records {
		if rec.uncompressedSize != zr.builtRecords[i].uncompressedSize ||
			rec.unpaddedSize != zr.builtRecords[i].unpaddedSize {
			return taxError(DataError, fmt.Errorf("%w: record %d size mismatch", ErrIndexMismatch, i))
		}
	}

	footerFlags, backwardSize, err := readStreamFooter(r)
	if err != nil {
		return err
	}
	if backwardSize != indexSize {
		return taxError(DataError, fmt.Errorf("%w: footer backward_size %d does not match index size %d", ErrIndexMismatch, backwardSize, indexSize))
	}
	if footerFlags.checkID != zr.flags.checkID {
		return taxError(DataError, fmt.Errorf("%w", ErrFlagsMismatch))
	}

	zr.builtRecords = nil

	// A further stream may follow, possibly after zero-padding to a
	// 4-byte boundary; padding is tolerated and skipped transparently.
	if err := zr.skipPaddingAndMaybeNextStream(); err != nil {
		return err
	}
	return nil
}

func (zr *Reader) skipPaddingAndMaybeNextStream() error {
	var probe [1]byte
	padded := 0
	for {
		n, err := io.ReadFull(zr.r, probe[:])
		if n == 0 {
			if errors.Is(err, io.EOF) {
				if padded%4 != 0 {
					return taxError(DataError, fmt.Errorf("%w: %d bytes of stream padding, want a multiple of 4", ErrData, padded))
				}
				zr.done = true
				return nil
			}
			return err
		}
		if probe[0] != 0 {
			if padded%4 != 0 {
				return taxError(DataError, fmt.Errorf("%w: %d bytes of stream padding before next stream, want a multiple of 4", ErrData, padded))
			}
			rest := make([]byte, streamHeaderLen-1)
			if _, err := io.ReadFull(zr.r, rest); err != nil {
				return err
			}
			full := append(append([]byte(nil), probe[0]), rest...)
			flags, err := readStreamHeaderFromBytes(full)
			if err != nil {
				return err
			}
			zr.flags = flags
			return nil
		}
		padded++
	}
}

// readStreamHeaderFromBytes validates a 12-byte buffer already read off
// the wire as a stream header, the tail of skipPaddingAndMaybeNextStream
// having consumed the leading non-zero byte to decide padding had ended.
func readStreamHeaderFromBytes(data []byte) (streamFlags, error) {
	return readStreamHeader(bytes.NewReader(data))
}
