// Package lzma2 implements the LZMA2 chunk framing described in §4.7: a
// self-describing wrapper around LZMA1 allowing uncompressed chunks and
// mid-stream dictionary/property resets.
package lzma2

import (
	"bufio"
	"bytes"
	"errors"
	"io"

	"github.com/vela-compress/xz/lzma"
)

// Control byte values (§4.7).
const (
	ctrlEnd                 = 0x00
	ctrlUncompressedReset   = 0x01
	ctrlUncompressedNoReset = 0x02
	ctrlCompressedBase      = 0x80
)

// Chunk size limits. The format allows compressed chunks to cover up to
// 2,097,152 uncompressed bytes; this implementation caps every chunk
// (compressed or not) at 65,536 bytes for simplicity.
// Streams produced by Writer are always valid LZMA2 regardless, since
// smaller chunks are legal; only the compression ratio on very large
// inputs is affected.
const (
	MaxUncompressedChunk = 1 << 16
	MaxCompressedChunk   = 1 << 16
)

type resetMode byte

const (
	resetNone resetMode = iota
	resetState
	resetStateProps
	resetStatePropsDict
)

var (
	// ErrCorruptChunk is returned when a chunk's control byte or header
	// fields cannot describe a valid LZMA2 chunk (§7 DATA_ERROR).
	ErrCorruptChunk = errors.New("lzma2: corrupt chunk header")
	errWriteAfterClose = errors.New("lzma2: write after close")
)

// Writer compresses a byte stream into LZMA2 chunk framing. Every
// compressed chunk is emitted as a full reset (state + properties +
// dictionary), so no dictionary contents carry over from one chunk to the
// next.
type Writer struct {
	w      io.Writer
	params lzma.EncoderParams
	pend   bytes.Buffer
	closed bool
}

// NewWriter creates a Writer using params for every chunk's LZMA1 coder.
func NewWriter(w io.Writer, params lzma.EncoderParams) *Writer {
	return &Writer{w: w, params: params}
}

// Write buffers p, flushing complete 64KiB chunks as they accumulate.
func (zw *Writer) Write(p []byte) (int, error) {
	if zw.closed {
		return 0, errWriteAfterClose
	}
	total := 0
	for len(p) > 0 {
		room := MaxUncompressedChunk - zw.pend.Len()
		n := len(p)
		if n > room {
			n = room
		}
		zw.pend.Write(p[:n])
		p = p[n:]
		total += n
		if zw.pend.Len() >= MaxUncompressedChunk {
			if err := zw.flushChunk(); err != nil {
				return total, err
			}
		}
	}
	return total, nil
}

// Close flushes any buffered input and writes the end-of-stream marker.
func (zw *Writer) Close() error {
	if zw.closed {
		return nil
	}
	zw.closed = true
	if err := zw.flushChunk(); err != nil {
		return err
	}
	_, err := zw.w.Write([]byte{ctrlEnd})
	return err
}

func (zw *Writer) flushChunk() error {
	data := zw.pend.Bytes()
	if len(data) == 0 {
		return nil
	}
	var compressed bytes.Buffer
	enc, err := lzma.NewEncoder(&compressed, zw.params)
	if err != nil {
		return err
	}
	if _, err := enc.Write(data); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}

	var werr error
	if compressed.Len() < len(data) && compressed.Len() <= MaxCompressedChunk {
		werr = zw.writeCompressedChunk(data, compressed.Bytes())
	} else {
		werr = zw.writeUncompressedChunks(data)
	}
	zw.pend.Reset()
	return werr
}

func (zw *Writer) writeCompressedChunk(data, compressed []byte) error {
	usize := uint32(len(data) - 1)
	csize := uint32(len(compressed) - 1)
	props, err := zw.params.Params.PropsByte()
	if err != nil {
		return err
	}
	ctrl := byte(ctrlCompressedBase) | byte(resetStatePropsDict)<<5 | byte(usize>>16)
	header := []byte{
		ctrl,
		byte(usize >> 8), byte(usize),
		byte(csize >> 8), byte(csize),
		props,
	}
	if _, err := zw.w.Write(header); err != nil {
		return err
	}
	_, err = zw.w.Write(compressed)
	return err
}

func (zw *Writer) writeUncompressedChunks(data []byte) error {
	for len(data) > 0 {
		n := len(data)
		if n > MaxUncompressedChunk {
			n = MaxUncompressedChunk
		}
		usize := uint32(n - 1)
		header := []byte{ctrlUncompressedReset, byte(usize >> 8), byte(usize)}
		if _, err := zw.w.Write(header); err != nil {
			return err
		}
		if _, err := zw.w.Write(data[:n]); err != nil {
			return err
		}
		data = data[n:]
	}
	return nil
}

// Reader decompresses an LZMA2 chunk stream. Unlike Writer, it handles
// all four reset modes on read, so it can decode streams produced by any
// conforming LZMA2 encoder, not only this package's Writer.
type Reader struct {
	r    *bufio.Reader
	dec  *lzma.Decoder
	buf  []byte
	done bool
}

// NewReader creates a Reader. params supplies the dictionary size (and
// initial lc/lp/pb, used only if the stream's first chunk is an
// uncompressed chunk that is later referenced before any properties
// reset arrives — conforming streams always reset properties before the
// first compressed chunk).
func NewReader(r io.Reader, params lzma.Params) (*Reader, error) {
	dec, err := lzma.NewBareDecoder(params)
	if err != nil {
		return nil, err
	}
	return &Reader{r: bufio.NewReader(r), dec: dec}, nil
}

func (zr *Reader) Read(p []byte) (int, error) {
	for len(zr.buf) == 0 {
		if zr.done {
			return 0, io.EOF
		}
		if err := zr.readChunk(); err != nil {
			return 0, err
		}
	}
	n := copy(p, zr.buf)
	zr.buf = zr.buf[n:]
	return n, nil
}

func (zr *Reader) readChunk() error {
	ctrl, err := zr.r.ReadByte()
	if err != nil {
		return err
	}
	switch {
	case ctrl == ctrlEnd:
		zr.done = true
		return nil
	case ctrl == ctrlUncompressedReset || ctrl == ctrlUncompressedNoReset:
		return zr.readUncompressedChunk(ctrl == ctrlUncompressedReset)
	case ctrl >= ctrlCompressedBase:
		return zr.readCompressedChunk(ctrl)
	default:
		return ErrCorruptChunk
	}
}

func (zr *Reader) readUncompressedChunk(resetDict bool) error {
	hi, err := zr.r.ReadByte()
	if err != nil {
		return err
	}
	lo, err := zr.r.ReadByte()
	if err != nil {
		return err
	}
	usize := (int(hi)<<8 | int(lo)) + 1
	buf := make([]byte, usize)
	if _, err := io.ReadFull(zr.r, buf); err != nil {
		return err
	}
	if resetDict {
		zr.dec.ResetDict()
	}
	zr.dec.SeedDictionary(buf)
	zr.buf = buf
	return nil
}

func (zr *Reader) readCompressedChunk(ctrl byte) error {
	mode := resetMode((ctrl >> 5) & 0x3)
	top5 := uint32(ctrl & 0x1F)

	hdr := make([]byte, 4)
	if _, err := io.ReadFull(zr.r, hdr); err != nil {
		return err
	}
	usize := (top5<<16 | uint32(hdr[0])<<8 | uint32(hdr[1])) + 1
	csize := (uint32(hdr[2])<<8 | uint32(hdr[3])) + 1

	var props *lzma.Params
	if mode == resetStateProps || mode == resetStatePropsDict {
		pb, err := zr.r.ReadByte()
		if err != nil {
			return err
		}
		lc, lp, pbits, err := lzma.DecodeProps(pb)
		if err != nil {
			return err
		}
		props = &lzma.Params{LC: lc, LP: lp, PB: pbits}
	}

	payload := make([]byte, csize)
	if _, err := io.ReadFull(zr.r, payload); err != nil {
		return err
	}

	resetDict := mode == resetStatePropsDict
	resetState := mode >= resetState
	resetProps := mode >= resetStateProps
	if err := zr.dec.ResetForChunk(bytes.NewReader(payload), resetDict, resetState, resetProps, props); err != nil {
		return err
	}

	var out bytes.Buffer
	if err := zr.dec.DecodeTo(&out, int64(usize)); err != nil {
		return err
	}
	zr.buf = out.Bytes()
	return nil
}
