package block

import (
	"bytes"
	"testing"

	"github.com/vela-compress/xz/filter"
	"github.com/vela-compress/xz/internal/check"
	"github.com/vela-compress/xz/lzma"
)

func TestHeaderMarshalUnmarshalRoundTrip(t *testing.T) {
	h := &Header{
		CompressedSize:   1000,
		UncompressedSize: 2000,
		Filters: []FilterFlag{
			{ID: filter.IDDelta, Properties: []byte{3}},
			{ID: filter.IDLZMA2, Properties: []byte{18}},
		},
	}
	data, err := h.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	if len(data)%4 != 0 {
		t.Fatalf("header length %d not a multiple of 4", len(data))
	}

	got, n, err := ReadHeader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if n != len(data) {
		t.Errorf("consumed %d bytes, want %d", n, len(data))
	}
	if got.CompressedSize != h.CompressedSize || got.UncompressedSize != h.UncompressedSize {
		t.Errorf("sizes = (%d,%d), want (%d,%d)", got.CompressedSize, got.UncompressedSize, h.CompressedSize, h.UncompressedSize)
	}
	if len(got.Filters) != len(h.Filters) {
		t.Fatalf("got %d filters, want %d", len(got.Filters), len(h.Filters))
	}
	for i, f := range got.Filters {
		if f.ID != h.Filters[i].ID || !bytes.Equal(f.Properties, h.Filters[i].Properties) {
			t.Errorf("filter %d = %+v, want %+v", i, f, h.Filters[i])
		}
	}
}

func TestHeaderMarshalRejectsBadFilterCount(t *testing.T) {
	h := &Header{CompressedSize: -1, UncompressedSize: -1}
	if _, err := h.MarshalBinary(); err != ErrFilterCount {
		t.Errorf("zero filters: got %v, want ErrFilterCount", err)
	}
}

func TestReadHeaderRejectsReservedFlags(t *testing.T) {
	h := &Header{
		UncompressedSize: -1,
		CompressedSize:   -1,
		Filters:          []FilterFlag{{ID: filter.IDLZMA2, Properties: []byte{18}}},
	}
	data, err := h.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	data[1] |= 0x04 // set a reserved flag bit

	h32, _ := check.New(check.CRC32)
	h32.Write(data[:len(data)-4])
	copy(data[len(data)-4:], h32.Sum(nil))

	if _, _, err := ReadHeader(bytes.NewReader(data)); err != ErrReservedFlags {
		t.Errorf("got %v, want ErrReservedFlags", err)
	}
}

func TestReadHeaderRejectsBadCRC(t *testing.T) {
	h := &Header{
		UncompressedSize: -1,
		CompressedSize:   -1,
		Filters:          []FilterFlag{{ID: filter.IDLZMA2, Properties: []byte{18}}},
	}
	data, err := h.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	data[len(data)-1] ^= 0xFF

	if _, _, err := ReadHeader(bytes.NewReader(data)); err != ErrHeaderCRC {
		t.Errorf("got %v, want ErrHeaderCRC", err)
	}
}

func testLZMAParams() lzma.EncoderParams {
	return lzma.EncoderParams{Params: lzma.DefaultParams()}
}

func TestEncodeDecodeRoundTripNoFilters(t *testing.T) {
	plain := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog\n"), 200)

	cfg := Config{LZMA: testLZMAParams(), CheckID: check.CRC32}
	var buf bytes.Buffer
	unpadded, err := Encode(&buf, plain, cfg)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if unpadded <= 0 {
		t.Fatalf("unpaddedSize = %d, want > 0", unpadded)
	}
	if buf.Len()%4 != 0 {
		t.Fatalf("encoded block length %d not padded to 4 bytes", buf.Len())
	}

	got, gotUnpadded, err := Decode(bytes.NewReader(buf.Bytes()), DecodeConfig{CheckID: check.CRC32})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(got, plain) {
		t.Fatal("decoded plaintext does not match original")
	}
	if int64(gotUnpadded) != unpadded {
		t.Errorf("decode-observed unpaddedSize = %d, want %d", gotUnpadded, unpadded)
	}
}

func TestEncodeDecodeRoundTripWithDeltaFilter(t *testing.T) {
	plain := make([]byte, 4096)
	for i := range plain {
		plain[i] = byte(i % 251)
	}

	delta, err := filter.NewDelta(4)
	if err != nil {
		t.Fatalf("NewDelta: %v", err)
	}
	cfg := Config{Filters: []filter.Stage{delta}, LZMA: testLZMAParams(), CheckID: check.CRC64}

	var buf bytes.Buffer
	if _, err := Encode(&buf, plain, cfg); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	got, _, err := Decode(bytes.NewReader(buf.Bytes()), DecodeConfig{CheckID: check.CRC64})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(got, plain) {
		t.Fatal("decoded plaintext with delta filter does not match original")
	}
}

func TestDecodeDetectsCheckMismatch(t *testing.T) {
	plain := []byte("hello, world")
	cfg := Config{LZMA: testLZMAParams(), CheckID: check.CRC32}
	var buf bytes.Buffer
	if _, err := Encode(&buf, plain, cfg); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	data := buf.Bytes()
	data[len(data)-1] ^= 0xFF // corrupt the last byte of the check trailer / padding

	if _, _, err := Decode(bytes.NewReader(data), DecodeConfig{CheckID: check.CRC32}); err == nil {
		t.Fatal("expected an error decoding a corrupted block, got nil")
	}
}

func TestDecodeRejectsNonLZMA2Tail(t *testing.T) {
	h := &Header{
		UncompressedSize: -1,
		CompressedSize:   0,
		Filters:          []FilterFlag{{ID: filter.IDDelta, Properties: []byte{0}}},
	}
	data, err := h.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}

	if _, _, err := Decode(bytes.NewReader(data), DecodeConfig{CheckID: check.None}); err != ErrTailNotLZMA2 {
		t.Errorf("got %v, want ErrTailNotLZMA2", err)
	}
}
