package lzma

import (
	"bytes"
	"math/rand"
	"testing"
)

func TestRoundTripBT4(t *testing.T) {
	for _, mode := range []Mode{ModeFast, ModeNormal} {
		for name, in := range testInputSet() {
			in := in
			mode := mode
			t.Run(name, func(t *testing.T) {
				params := EncoderParams{Params: DefaultParams(), Mode: mode, MatchFinder: BT4}
				got := roundTripParams(t, params, in)
				if !bytes.Equal(got, in) {
					t.Fatalf("round trip mismatch: got %d bytes, want %d", len(got), len(in))
				}
			})
		}
	}
}

// The tree must survive cyclic-slot reuse and window trimming: feed it
// several dictionaries' worth of input so positions wrap the cyclic
// buffer multiple times.
func TestRoundTripBT4SmallDict(t *testing.T) {
	params := EncoderParams{
		Params:      Params{LC: 3, LP: 0, PB: 2, DictSize: MinDictSize},
		Mode:        ModeNormal,
		MatchFinder: BT4,
	}
	rng := rand.New(rand.NewSource(7))
	in := make([]byte, int(MinDictSize)*3+17)
	rng.Read(in)
	copy(in[len(in)-700:], in[500:1200])

	got := roundTripParams(t, params, in)
	if !bytes.Equal(got, in) {
		t.Fatalf("round trip mismatch across cyclic buffer reuse")
	}
}

func TestBTFinderMatchesContract(t *testing.T) {
	data := []byte("abcdefgh_abcdefgh_abcd_xyz_abcdefgh")
	bt := newBTFinder(MinDictSize, 64, 48)
	defer bt.Close()
	bt.SetInput(data)

	for pos := 0; pos < len(data); pos++ {
		bt.EnsureInserted(pos + 1)
		lengths, dists := bt.Matches(pos)
		if len(lengths) != len(dists) {
			t.Fatalf("pos %d: %d lengths vs %d distances", pos, len(lengths), len(dists))
		}
		prev := 0
		for i, l := range lengths {
			if l <= prev {
				t.Fatalf("pos %d: lengths not strictly increasing: %v", pos, lengths)
			}
			prev = l
			d := int(dists[i])
			if d < 1 || d > pos {
				t.Fatalf("pos %d: distance %d out of range", pos, d)
			}
			if !bytes.Equal(data[pos:pos+l], data[pos-d:pos-d+l]) {
				t.Fatalf("pos %d: reported match len=%d dist=%d does not match bytes", pos, l, d)
			}
		}
	}

	// The second "abcdefgh_" must be findable as a long match against the
	// first at distance 9.
	bt2 := newBTFinder(MinDictSize, 64, 48)
	defer bt2.Close()
	bt2.SetInput(data)
	bt2.EnsureInserted(10)
	lengths, dists := bt2.Matches(9)
	if len(lengths) == 0 {
		t.Fatalf("expected a match at position 9")
	}
	bestLen := lengths[len(lengths)-1]
	bestDist := dists[len(dists)-1]
	if bestLen < 9 || bestDist != 9 {
		t.Fatalf("best match at position 9: len=%d dist=%d, want len>=9 dist=9", bestLen, bestDist)
	}
}

func TestBTFinderSkip(t *testing.T) {
	data := bytes.Repeat([]byte("0123456789"), 20)
	bt := newBTFinder(MinDictSize, 64, 48)
	defer bt.Close()
	bt.SetInput(data)

	bt.Skip(50)
	if got := bt.InsertedThrough(); got != 50 {
		t.Fatalf("InsertedThrough after Skip(50) = %d, want 50", got)
	}
	bt.EnsureInserted(51)
	lengths, dists := bt.Matches(50)
	if len(lengths) == 0 {
		t.Fatalf("expected matches at position 50 after skipping")
	}
	if d := dists[len(dists)-1]; d%10 != 0 {
		t.Fatalf("best distance %d not a multiple of the period", d)
	}
}
