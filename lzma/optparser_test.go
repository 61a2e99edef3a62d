package lzma

import (
	"bytes"
	"math/rand"
	"testing"
)

// Freshly rebuilt price tables must agree with the distance coder's
// direct price computation for every cached distance.
func TestDistPricesMatchDistCoder(t *testing.T) {
	c := newDistCoder()
	var dp distPrices
	dp.refreshSlots(c)
	dp.refreshAlign(c)

	for _, lenField := range []uint32{0, 1, 2, 3, 100} {
		for _, dist := range []uint32{0, 1, 3, 4, 17, numFullDistances - 1, numFullDistances, 1 << 10, 1<<20 - 3} {
			want := c.Price(dist, lenField)
			got := dp.price(dist, lenField)
			if got != want {
				t.Fatalf("price(dist=%d, len=%d) = %d, want %d", dist, lenField, got, want)
			}
		}
	}
	if dp.matchCountdown != 128 || dp.alignCountdown != 16 {
		t.Fatalf("refresh countdowns = (%d, %d), want (128, 16)", dp.matchCountdown, dp.alignCountdown)
	}
}

// The parser must prefer a rep-coded repeat over re-sending the same
// distance as a new match: on strongly periodic input the stream should
// come out far smaller than what literal-heavy coding would produce.
func TestNormalModeCompressesPeriodicInput(t *testing.T) {
	in := bytes.Repeat([]byte("the quick brown fox "), 300)
	var buf bytes.Buffer
	params := EncoderParams{Params: DefaultParams(), Mode: ModeNormal, MatchFinder: BT4}
	enc, err := NewEncoder(&buf, params)
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}
	if _, err := enc.Write(in); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if buf.Len() >= len(in)/10 {
		t.Fatalf("periodic input compressed to %d bytes, want < %d", buf.Len(), len(in)/10)
	}

	dec, err := NewDecoder(&buf, params.Params)
	if err != nil {
		t.Fatalf("NewDecoder: %v", err)
	}
	var out bytes.Buffer
	if err := dec.DecodeTo(&out, int64(len(in))); err != nil {
		t.Fatalf("DecodeTo: %v", err)
	}
	if !bytes.Equal(out.Bytes(), in) {
		t.Fatalf("round trip mismatch")
	}
}

// Input longer than numOpts with no nice-length match forces the parser
// to cut windows at the numOpts cap; the stream must stay decodeable
// across those backtrack-and-resume boundaries.
func TestNormalModeWindowBoundary(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	in := make([]byte, numOpts*3+511)
	rng.Read(in)
	got := roundTripParams(t, EncoderParams{Params: DefaultParams(), Mode: ModeNormal}, in)
	if !bytes.Equal(got, in) {
		t.Fatalf("round trip mismatch across parser window boundaries")
	}
}
