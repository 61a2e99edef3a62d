package xz

import (
	"bytes"
	"io"
	"testing"

	"github.com/vela-compress/xz/filter"
	"github.com/vela-compress/xz/internal/check"
	"github.com/vela-compress/xz/internal/memlimit"
	"github.com/vela-compress/xz/lzma"
)

func TestStreamHeaderMagicAndFooterMagic(t *testing.T) {
	var buf bytes.Buffer
	zw, err := NewWriter(&buf, DefaultWriterConfig())
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data := buf.Bytes()
	if len(data) < streamHeaderLen+streamFooterLen {
		t.Fatalf("stream too short: %d bytes", len(data))
	}
	if !bytes.Equal(data[:6], headerMagic[:]) {
		t.Errorf("header magic = % x, want % x", data[:6], headerMagic[:])
	}
	if !bytes.Equal(data[len(data)-2:], footerMagic[:]) {
		t.Errorf("footer magic = % x, want % x", data[len(data)-2:], footerMagic[:])
	}
	if len(data)%4 != 0 {
		t.Errorf("stream length %d not a multiple of 4", len(data))
	}
}

func TestEmptyStreamRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	zw, err := NewWriter(&buf, DefaultWriterConfig())
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	zr, err := NewReader(bytes.NewReader(buf.Bytes()), DefaultReaderConfig())
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	got, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d bytes from empty stream, want 0", len(got))
	}
}

func TestSingleBlockRoundTrip(t *testing.T) {
	plain := []byte("HELLO\n")

	var buf bytes.Buffer
	zw, err := NewWriter(&buf, DefaultWriterConfig())
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if _, err := zw.Write(plain); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	zr, err := NewReader(bytes.NewReader(buf.Bytes()), DefaultReaderConfig())
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	got, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(got, plain) {
		t.Fatalf("got %q, want %q", got, plain)
	}
}

func TestMultiBlockRoundTrip(t *testing.T) {
	plain := bytes.Repeat([]byte("0123456789"), 5000) // 50000 bytes

	cfg := DefaultWriterConfig()
	cfg.BlockSize = 8192
	var buf bytes.Buffer
	zw, err := NewWriter(&buf, cfg)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if _, err := zw.Write(plain); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	zr, err := NewReader(bytes.NewReader(buf.Bytes()), DefaultReaderConfig())
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	got, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(got, plain) {
		t.Fatal("multi-block round trip mismatch")
	}
}

func TestConcatenatedStreamsRoundTrip(t *testing.T) {
	var full bytes.Buffer

	writeStream := func(plain []byte) {
		zw, err := NewWriter(&full, DefaultWriterConfig())
		if err != nil {
			t.Fatalf("NewWriter: %v", err)
		}
		if _, err := zw.Write(plain); err != nil {
			t.Fatalf("Write: %v", err)
		}
		if err := zw.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
	}

	a := []byte("stream A payload")
	b := []byte("stream B payload, a different length")
	writeStream(a)
	writeStream(b)

	zr, err := NewReader(bytes.NewReader(full.Bytes()), DefaultReaderConfig())
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	got, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	want := append(append([]byte(nil), a...), b...)
	if !bytes.Equal(got, want) {
		t.Fatalf("got %q, want %q", got, want)
	}
}

// Inter-stream zero padding must be a multiple of 4 bytes (§4.11, §6.1);
// a misaligned run is a DataError whether another stream follows or not.
func TestReaderRejectsMisalignedStreamPadding(t *testing.T) {
	encode := func(plain []byte) []byte {
		var buf bytes.Buffer
		zw, err := NewWriter(&buf, DefaultWriterConfig())
		if err != nil {
			t.Fatalf("NewWriter: %v", err)
		}
		if _, err := zw.Write(plain); err != nil {
			t.Fatalf("Write: %v", err)
		}
		if err := zw.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
		return buf.Bytes()
	}
	a := encode([]byte("stream A payload"))
	b := encode([]byte("stream B payload"))

	t.Run("between streams", func(t *testing.T) {
		full := append(append(append([]byte(nil), a...), 0, 0), b...)
		zr, err := NewReader(bytes.NewReader(full), DefaultReaderConfig())
		if err != nil {
			t.Fatalf("NewReader: %v", err)
		}
		if _, err := io.ReadAll(zr); err == nil {
			t.Fatal("expected a data error for 2 bytes of stream padding, got nil")
		}
	})

	t.Run("trailing", func(t *testing.T) {
		full := append(append([]byte(nil), a...), 0, 0, 0)
		zr, err := NewReader(bytes.NewReader(full), DefaultReaderConfig())
		if err != nil {
			t.Fatalf("NewReader: %v", err)
		}
		if _, err := io.ReadAll(zr); err == nil {
			t.Fatal("expected a data error for 3 trailing padding bytes, got nil")
		}
	})

	t.Run("aligned run accepted", func(t *testing.T) {
		full := append(append(append([]byte(nil), a...), 0, 0, 0, 0, 0, 0, 0, 0), b...)
		zr, err := NewReader(bytes.NewReader(full), DefaultReaderConfig())
		if err != nil {
			t.Fatalf("NewReader: %v", err)
		}
		got, err := io.ReadAll(zr)
		if err != nil {
			t.Fatalf("ReadAll: %v", err)
		}
		want := append(append([]byte(nil), []byte("stream A payload")...), []byte("stream B payload")...)
		if !bytes.Equal(got, want) {
			t.Fatalf("got %q, want %q", got, want)
		}
	})
}

func TestCRC64ChecksumDetectsCorruption(t *testing.T) {
	plain := make([]byte, 1<<20)
	for i := range plain {
		plain[i] = byte(i * 131)
	}

	cfg := DefaultWriterConfig()
	cfg.CheckID = check.CRC64
	var buf bytes.Buffer
	zw, err := NewWriter(&buf, cfg)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if _, err := zw.Write(plain); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	good := append([]byte(nil), buf.Bytes()...)
	zr, err := NewReader(bytes.NewReader(good), DefaultReaderConfig())
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	if _, err := io.ReadAll(zr); err != nil {
		t.Fatalf("unexpected error on uncorrupted stream: %v", err)
	}

	corrupt := append([]byte(nil), buf.Bytes()...)
	corrupt[20] ^= 0xFF // inside the first block's compressed payload
	zr2, err := NewReader(bytes.NewReader(corrupt), DefaultReaderConfig())
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	if _, err := io.ReadAll(zr2); err == nil {
		t.Fatal("expected an error reading a corrupted stream, got nil")
	}
}

func TestFilterChainX86RoundTrip(t *testing.T) {
	plain := make([]byte, 256)
	for i := range plain {
		plain[i] = byte(i)
	}
	copy(plain[16:], []byte{0xE8, 0x00, 0x00, 0x00, 0x00})

	cfg := DefaultWriterConfig()
	cfg.Filters = []filter.Stage{filter.NewX86(0)}
	var buf bytes.Buffer
	zw, err := NewWriter(&buf, cfg)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if _, err := zw.Write(plain); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	zr, err := NewReader(bytes.NewReader(buf.Bytes()), DefaultReaderConfig())
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	got, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(got, plain) {
		t.Fatal("x86+LZMA2 filter chain round trip mismatch")
	}
}

func TestReaderRejectsBadMagic(t *testing.T) {
	bad := bytes.Repeat([]byte{0xAA}, 12)
	if _, err := NewReader(bytes.NewReader(bad), DefaultReaderConfig()); err == nil {
		t.Fatal("expected an error for bad stream magic, got nil")
	}
}

func TestReaderRejectsReservedHeaderBit(t *testing.T) {
	var buf bytes.Buffer
	zw, err := NewWriter(&buf, DefaultWriterConfig())
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	data := append([]byte(nil), buf.Bytes()...)
	data[6] = 0x01 // reserved header flag byte must be zero
	// header CRC32 now mismatches, but the reserved-byte check runs first
	if _, err := NewReader(bytes.NewReader(data), DefaultReaderConfig()); err == nil {
		t.Fatal("expected an error for a set reserved header bit, got nil")
	}
}

func TestWriterWithMemoryAllocator(t *testing.T) {
	plain := bytes.Repeat([]byte("memory-limited round trip "), 1000)

	var buf bytes.Buffer
	zw, err := NewWriter(&buf, DefaultWriterConfig())
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if _, err := zw.Write(plain); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	tracker := memlimit.NewTracker(0)
	zr, err := NewReader(bytes.NewReader(buf.Bytes()), &ReaderConfig{Allocator: tracker})
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	got, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(got, plain) {
		t.Fatal("round trip with tracked allocator mismatch")
	}
	if tracker.Peak() <= 0 {
		t.Error("tracker recorded no peak usage")
	}
}

func TestWriterWithTightMemoryLimitFails(t *testing.T) {
	plain := bytes.Repeat([]byte("x"), 1<<20)

	var buf bytes.Buffer
	zw, err := NewWriter(&buf, DefaultWriterConfig())
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if _, err := zw.Write(plain); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	tracker := memlimit.NewTracker(16) // far too small for a real payload
	zr, err := NewReader(bytes.NewReader(buf.Bytes()), &ReaderConfig{Allocator: tracker})
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	if _, err := io.ReadAll(zr); err == nil {
		t.Fatal("expected a memory-limit error, got nil")
	}
}

// driveEncodeStream pushes plain through es in input chunks of at most k
// bytes, draining output into chunks of exactly k, and returns the
// concatenated compressed bytes.
func driveEncodeStream(t *testing.T, es *Stream, plain []byte, k int) []byte {
	t.Helper()
	var compressed []byte
	out := make([]byte, k)
	in := plain
	for len(in) > 0 {
		chunk := in
		if len(chunk) > k {
			chunk = chunk[:k]
		}
		consumed, produced, code, err := es.Code(chunk, out, Run)
		if err != nil {
			t.Fatalf("Code(Run): %v", err)
		}
		if code != OK {
			t.Fatalf("Code(Run) code = %v, want OK", code)
		}
		compressed = append(compressed, out[:produced]...)
		in = in[consumed:]
	}
	for {
		_, produced, code, err := es.Code(nil, out, Finish)
		if err != nil {
			t.Fatalf("Code(Finish): %v", err)
		}
		compressed = append(compressed, out[:produced]...)
		if code == StreamEnd {
			return compressed
		}
		if code != OK {
			t.Fatalf("Code(Finish) code = %v, want OK or StreamEnd", code)
		}
	}
}

func TestCodeStreamEncodeDecode(t *testing.T) {
	es, err := NewEncodeStream(DefaultWriterConfig())
	if err != nil {
		t.Fatalf("NewEncodeStream: %v", err)
	}
	plain := []byte("push-based streaming input")
	compressed := driveEncodeStream(t, es, plain, 512)
	if err := es.End(); err != nil {
		t.Fatalf("End: %v", err)
	}

	zr, err := NewReader(bytes.NewReader(compressed), DefaultReaderConfig())
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	got, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(got, plain) {
		t.Fatalf("got %q, want %q", got, plain)
	}
}

// Segmenting the input and output buffers must not change a single byte
// of the encoded stream relative to a single-shot Writer encode (§8
// suspension property).
func TestCodeStreamSegmentedOutputMatchesSingleShot(t *testing.T) {
	plain := bytes.Repeat([]byte("suspension property payload "), 200)

	var ref bytes.Buffer
	zw, err := NewWriter(&ref, DefaultWriterConfig())
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if _, err := zw.Write(plain); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	for _, k := range []int{1, 7, 4096} {
		es, err := NewEncodeStream(DefaultWriterConfig())
		if err != nil {
			t.Fatalf("NewEncodeStream: %v", err)
		}
		got := driveEncodeStream(t, es, plain, k)
		if !bytes.Equal(got, ref.Bytes()) {
			t.Fatalf("k=%d: segmented encode differs from single-shot (%d vs %d bytes)", k, len(got), ref.Len())
		}
	}
}

func TestCodeStreamFullFlushSplitsBlocks(t *testing.T) {
	es, err := NewEncodeStream(DefaultWriterConfig())
	if err != nil {
		t.Fatalf("NewEncodeStream: %v", err)
	}
	a := []byte("first block payload")
	b := []byte("second block payload")

	var compressed []byte
	out := make([]byte, 4096)
	_, produced, _, err := es.Code(a, out, FullFlush)
	if err != nil {
		t.Fatalf("Code(FullFlush): %v", err)
	}
	compressed = append(compressed, out[:produced]...)
	for {
		_, produced, code, err := es.Code(b, out, Finish)
		if err != nil {
			t.Fatalf("Code(Finish): %v", err)
		}
		compressed = append(compressed, out[:produced]...)
		b = nil
		if code == StreamEnd {
			break
		}
	}

	zr, err := NewReader(bytes.NewReader(compressed), DefaultReaderConfig())
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	got, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	want := append(append([]byte(nil), []byte("first block payload")...), []byte("second block payload")...)
	if !bytes.Equal(got, want) {
		t.Fatalf("got %q, want %q", got, want)
	}
	if n := len(streamBlockSizes(t, compressed)); n != 2 {
		t.Fatalf("stream has %d blocks, want 2 (FullFlush must end the first)", n)
	}
}

// streamBlockSizes decodes just the index of a single-stream buffer and
// returns the per-block uncompressed sizes recorded there.
func streamBlockSizes(t *testing.T, stream []byte) []uint64 {
	t.Helper()
	zr, err := NewReader(bytes.NewReader(stream), DefaultReaderConfig())
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	if _, err := io.ReadAll(zr); err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	// Re-parse the index directly: it sits between the last block and the
	// 12-byte footer, beginning at the indicator byte the footer's
	// backward_size points at.
	_, indexSize, err := readStreamFooter(bytes.NewReader(stream[len(stream)-streamFooterLen:]))
	if err != nil {
		t.Fatalf("readStreamFooter: %v", err)
	}
	idxStart := len(stream) - streamFooterLen - int(indexSize)
	records, _, err := readIndex(bytes.NewReader(stream[idxStart+1 : len(stream)-streamFooterLen]))
	if err != nil {
		t.Fatalf("readIndex: %v", err)
	}
	sizes := make([]uint64, len(records))
	for i, rec := range records {
		sizes[i] = rec.uncompressedSize
	}
	return sizes
}

func TestCodeStreamNoProgressReturnsBufError(t *testing.T) {
	es, err := NewEncodeStream(DefaultWriterConfig())
	if err != nil {
		t.Fatalf("NewEncodeStream: %v", err)
	}

	// No input and no output space: one retry is tolerated, the second
	// consecutive no-progress call must return BufError.
	if _, _, code, err := es.Code(nil, nil, Run); err != nil || code != OK {
		t.Fatalf("first no-progress call: code=%v err=%v, want OK", code, err)
	}
	if _, _, code, _ := es.Code(nil, nil, Run); code != BufError {
		t.Fatalf("second no-progress call: code=%v, want BufError", code)
	}

	// BufError is non-fatal: supplying buffers resumes the stream.
	out := make([]byte, 64)
	_, produced, code, err := es.Code(nil, out, Run)
	if err != nil {
		t.Fatalf("Code after BufError: %v", err)
	}
	if code != OK || produced == 0 {
		t.Fatalf("Code after BufError = (produced=%d, code=%v), want staged header bytes and OK", produced, code)
	}
}

func TestCodeStreamRejectsUnboundHandle(t *testing.T) {
	s := &Stream{}
	_, _, code, err := s.Code(nil, nil, Run)
	if code != ProgError || err == nil {
		t.Errorf("got (code=%v, err=%v), want (ProgError, non-nil)", code, err)
	}
}

func TestAloneRoundTrip(t *testing.T) {
	plain := bytes.Repeat([]byte("legacy .lzma container payload "), 300)

	params := lzma.EncoderParams{Params: lzma.DefaultParams()}
	var buf bytes.Buffer
	if err := EncodeAlone(&buf, plain, params); err != nil {
		t.Fatalf("EncodeAlone: %v", err)
	}

	got, err := DecodeAlone(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("DecodeAlone: %v", err)
	}
	if !bytes.Equal(got, plain) {
		t.Fatal("LZMA_Alone round trip mismatch")
	}
}

func TestAloneRejectsImplausibleDictSize(t *testing.T) {
	params := lzma.EncoderParams{Params: lzma.DefaultParams()}
	var buf bytes.Buffer
	if err := EncodeAlone(&buf, []byte("x"), params); err != nil {
		t.Fatalf("EncodeAlone: %v", err)
	}
	data := buf.Bytes()
	// Overwrite the 4-byte little-endian dict size with a value that is
	// neither a power of two nor 1.5x one.
	data[1], data[2], data[3], data[4] = 0x07, 0x00, 0x00, 0x00

	if _, err := DecodeAlone(bytes.NewReader(data)); err == nil {
		t.Fatal("expected an error for an implausible dictionary size, got nil")
	}
}
