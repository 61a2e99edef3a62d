package xz

import (
	"bytes"
	"fmt"
	"io"

	"github.com/vela-compress/xz/internal/vli"
)

// maxIndexRecords bounds how many records readIndex will preallocate for
// in one call, guarding against a corrupt or hostile record-count VLI
// forcing an unbounded allocation before any record bytes are verified.
const maxIndexRecords = 1 << 24

// indexRecord is one block's entry in the stream index (§4.11, §6.1).
type indexRecord struct {
	unpaddedSize     uint64
	uncompressedSize uint64
}

// writeIndex writes the index: indicator byte, record count, records,
// zero padding to a 4-byte boundary, and a trailing CRC32 over
// everything from the indicator through the padding. It returns the
// total byte length written (needed for the footer's backward-size).
func writeIndex(w io.Writer, records []indexRecord) (int64, error) {
	var buf bytes.Buffer
	buf.WriteByte(indexIndicator)

	enc, err := vli.Encode(nil, uint64(len(records)))
	if err != nil {
		return 0, taxError(ProgError, err)
	}
	buf.Write(enc)

	for _, rec := range records {
		enc, err := vli.Encode(nil, rec.unpaddedSize)
		if err != nil {
			return 0, taxError(ProgError, err)
		}
		buf.Write(enc)
		enc, err = vli.Encode(nil, rec.uncompressedSize)
		if err != nil {
			return 0, taxError(ProgError, err)
		}
		buf.Write(enc)
	}

	for buf.Len()%4 != 0 {
		buf.WriteByte(0)
	}

	sum := crc32Of(buf.Bytes())
	buf.Write(sum)

	n, err := w.Write(buf.Bytes())
	return int64(n), err
}

// readIndex reads an index body (the indicator byte already consumed by
// the caller, which uses it to distinguish a block header from the
// index per §4.11) and verifies its trailing CRC32. It returns the
// index's total on-wire size (indicator through CRC32, inclusive) so the
// caller can cross-check it against the footer's declared backward_size.
func readIndex(r io.Reader) (records []indexRecord, size int64, err error) {
	var body bytes.Buffer
	body.WriteByte(indexIndicator)

	br := &byteCounter{r: r}
	countVal, _, err := vliDecodeFrom(br)
	if err != nil {
		return nil, 0, taxError(DataError, err)
	}
	body.Write(br.consumed)
	br.consumed = nil

	if countVal > maxIndexRecords {
		return nil, 0, taxError(DataError, fmt.Errorf("%w: implausible index record count %d", ErrData, countVal))
	}
	records = make([]indexRecord, countVal)
	for i := range records {
		u, _, err := vliDecodeFrom(br)
		if err != nil {
			return nil, 0, taxError(DataError, err)
		}
		body.Write(br.consumed)
		br.consumed = nil
		records[i].unpaddedSize = u

		u, _, err = vliDecodeFrom(br)
		if err != nil {
			return nil, 0, taxError(DataError, err)
		}
		body.Write(br.consumed)
		br.consumed = nil
		records[i].uncompressedSize = u
	}

	for body.Len()%4 != 0 {
		b, err := br.readByte()
		if err != nil {
			return nil, 0, err
		}
		if b != 0 {
			return nil, 0, taxError(DataError, fmt.Errorf("%w: non-zero index padding", ErrData))
		}
		body.WriteByte(0)
	}

	sum := make([]byte, 4)
	if _, err := io.ReadFull(r, sum); err != nil {
		return nil, 0, err
	}
	if !bytes.Equal(crc32Of(body.Bytes()), sum) {
		return nil, 0, taxError(DataError, fmt.Errorf("%w: index CRC mismatch", ErrData))
	}

	return records, int64(body.Len() + len(sum)), nil
}

// byteCounter is a minimal io.ByteReader over r that also records every
// byte it hands out, so readIndex can feed the running CRC32 without a
// second pass over the stream.
type byteCounter struct {
	r        io.Reader
	consumed []byte
	one      [1]byte
}

func (b *byteCounter) readByte() (byte, error) {
	if _, err := io.ReadFull(b.r, b.one[:]); err != nil {
		return 0, err
	}
	b.consumed = append(b.consumed, b.one[0])
	return b.one[0], nil
}

// vliDecodeFrom decodes one VLI value a byte at a time from br.
func vliDecodeFrom(br *byteCounter) (uint64, int, error) {
	var d vli.Decoder
	n := 0
	for {
		b, err := br.readByte()
		if err != nil {
			return 0, n, err
		}
		n++
		_, done, err := d.Feed([]byte{b})
		if err != nil {
			return 0, n, err
		}
		if done {
			return d.Value(), n, nil
		}
	}
}
