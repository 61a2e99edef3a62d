package filter

import (
	"bytes"
	"testing"
)

func TestDeltaRoundTrip(t *testing.T) {
	for _, distance := range []int{1, 2, 4, 16, 256} {
		orig := make([]byte, 1024)
		for i := range orig {
			orig[i] = byte(i*7 + i*i)
		}

		enc, err := NewDelta(distance)
		if err != nil {
			t.Fatalf("distance %d: NewDelta: %v", distance, err)
		}
		buf := append([]byte(nil), orig...)
		if n := enc.EncodeBlock(buf); n != len(buf) {
			t.Fatalf("distance %d: EncodeBlock consumed %d, want %d", distance, n, len(buf))
		}

		dec, err := NewDelta(distance)
		if err != nil {
			t.Fatalf("distance %d: NewDelta: %v", distance, err)
		}
		if n := dec.DecodeBlock(buf); n != len(buf) {
			t.Fatalf("distance %d: DecodeBlock consumed %d, want %d", distance, n, len(buf))
		}
		if !bytes.Equal(buf, orig) {
			t.Fatalf("distance %d: round trip mismatch", distance)
		}
	}
}

func TestDeltaInvalidDistance(t *testing.T) {
	if _, err := NewDelta(0); err != ErrInvalidDistance {
		t.Errorf("distance 0: got %v, want ErrInvalidDistance", err)
	}
	if _, err := NewDelta(257); err != ErrInvalidDistance {
		t.Errorf("distance 257: got %v, want ErrInvalidDistance", err)
	}
}

func TestDeltaAcrossCalls(t *testing.T) {
	orig := make([]byte, 600)
	for i := range orig {
		orig[i] = byte(i * 3)
	}

	enc, _ := NewDelta(3)
	whole := append([]byte(nil), orig...)
	enc.EncodeBlock(whole)

	enc2, _ := NewDelta(3)
	split := append([]byte(nil), orig...)
	enc2.EncodeBlock(split[:200])
	enc2.EncodeBlock(split[200:])

	if !bytes.Equal(whole, split) {
		t.Fatal("delta state did not carry across EncodeBlock calls")
	}
}
