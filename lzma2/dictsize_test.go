package lzma2

import "testing"

func TestDictSizeRoundTrip(t *testing.T) {
	for b := 0; b <= 40; b++ {
		size, err := DecodeDictSize(byte(b))
		if err != nil {
			t.Fatalf("DecodeDictSize(%d): %v", b, err)
		}
		got := EncodeDictSize(size)
		if got != byte(b) {
			t.Errorf("EncodeDictSize(DecodeDictSize(%d)=%d) = %d, want %d", b, size, got, b)
		}
	}
}

func TestDecodeDictSizeInvalid(t *testing.T) {
	if _, err := DecodeDictSize(41); err != ErrInvalidDictSizeProp {
		t.Errorf("got %v, want ErrInvalidDictSizeProp", err)
	}
	if _, err := DecodeDictSize(255); err != ErrInvalidDictSizeProp {
		t.Errorf("got %v, want ErrInvalidDictSizeProp", err)
	}
}

func TestEncodeDictSizeMonotonic(t *testing.T) {
	prev := uint32(0)
	for b := 0; b <= 40; b++ {
		size, err := DecodeDictSize(byte(b))
		if err != nil {
			t.Fatalf("DecodeDictSize(%d): %v", b, err)
		}
		if size < prev {
			t.Fatalf("dict size not monotonic at b=%d: %d < %d", b, size, prev)
		}
		prev = size
	}
}

func TestEncodeDictSizeSmallestFit(t *testing.T) {
	// 64 KiB should encode to the smallest property byte whose decoded
	// size is >= 64KiB.
	b := EncodeDictSize(64 * 1024)
	size, err := DecodeDictSize(b)
	if err != nil {
		t.Fatalf("DecodeDictSize: %v", err)
	}
	if size < 64*1024 {
		t.Fatalf("encoded dict size %d smaller than requested 64KiB", size)
	}
}

func TestEncodeDictSizeMax(t *testing.T) {
	if got := EncodeDictSize(0xFFFFFFFF); got != 40 {
		t.Errorf("EncodeDictSize(max) = %d, want 40", got)
	}
}
