// Package lzma implements the LZMA1 entropy-coded dictionary codec: the
// sliding-dictionary match finder, the 12-state sub-state machine, and the
// literal/length/distance probability models driving the range coder
// (§3, §4.5, §4.6).
package lzma

import "errors"

// Match length bounds (§3).
const (
	MinMatchLen = 2
	MaxMatchLen = 273
)

// Dictionary size bounds (§3). Encoding caps out well below the decode-side
// maximum; decoding accepts any 32-bit size the container declares.
const (
	MinDictSize uint32 = 1 << 12       // 4096
	MaxEncodeDictSize uint32 = 1536 << 20 // ~1.5 GiB
	MaxDictSize uint32 = 1<<32 - 1
)

// Number of recent-distance slots (§3).
const NumReps = 4

// ErrInvalidParams is returned when lc/lp/pb are out of their allowed
// ranges.
var ErrInvalidParams = errors.New("lzma: invalid lc/lp/pb parameters")

// Params holds the LZMA literal/position-context parameters and the
// dictionary size, exactly the fields carried in the one-byte LZMA1
// properties byte plus the out-of-band dictionary size (§3, §6.1).
type Params struct {
	// LC is the number of high bits of the previous byte used to select
	// a literal-coder bank. Range [0,4].
	LC int
	// LP is the number of low position bits used to select a literal
	// bank. Range [0,4].
	LP int
	// PB is the number of low position bits used for pos-state
	// selection elsewhere (is_match, length/distance coders). Range
	// [0,4].
	PB int
	// DictSize is the sliding dictionary size in bytes.
	DictSize uint32
}

// Validate checks lc+lp<=4 and pb/lc/lp ranges (§3).
func (p Params) Validate() error {
	if p.LC < 0 || p.LC > 4 || p.LP < 0 || p.LP > 4 || p.PB < 0 || p.PB > 4 {
		return ErrInvalidParams
	}
	if p.LC+p.LP > 4 {
		return ErrInvalidParams
	}
	return nil
}

// DefaultParams returns the conservative lc=3,lp=0,pb=2 parameter set used
// when a caller supplies no explicit Params (matches the de facto default
// used throughout the LZMA ecosystem for the LZMA1 properties byte).
func DefaultParams() Params {
	return Params{LC: 3, LP: 0, PB: 2, DictSize: 1 << 20}
}

// PropsByte encodes lc/lp/pb into the single LZMA1 properties byte
// `(pb*5+lp)*9+lc` (§6.1).
func (p Params) PropsByte() (byte, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}
	return byte((p.PB*5+p.LP)*9 + p.LC), nil
}

// DecodeProps decodes the single LZMA1 properties byte into lc/lp/pb.
func DecodeProps(b byte) (lc, lp, pb int, err error) {
	v := int(b)
	if v >= 9*5*5 {
		return 0, 0, 0, ErrInvalidParams
	}
	lc = v % 9
	v /= 9
	lp = v % 5
	pb = v / 5
	if lc+lp > 4 || pb > 4 {
		return 0, 0, 0, ErrInvalidParams
	}
	return lc, lp, pb, nil
}

// Mode selects between the fast (greedy) and normal (priced lookahead)
// encoder strategies (§4.6).
type Mode int

const (
	// ModeFast is the greedy encoder: at each position it emits the match
	// finder's result at once, taking the longest rep match instead when
	// that is at most one byte shorter. It does not look ahead to later
	// positions.
	ModeFast Mode = iota
	// ModeNormal is the optimal parser: a forward dynamic program over a
	// window of positions, pricing literal/rep/match candidates with the
	// range coder's price tables and backtracking the cheapest path.
	ModeNormal
)

// MatchFinderKind selects the match finder algorithm (§4.5).
type MatchFinderKind int

const (
	// HC4 is the 4-byte hash-chain finder: fast, lower ratio.
	HC4 MatchFinderKind = iota
	// BT4 is the 4-byte binary-tree finder: a BST over suffixes behind
	// the 4-byte hash, slower but with deeper, better-ordered candidate
	// lists. The usual pairing for ModeNormal.
	BT4
)

// EncoderParams bundles Params with the search controls §3 lists under
// "LZMA parameters": match-finder choice, nice-length, depth, and mode.
type EncoderParams struct {
	Params
	MatchFinder MatchFinderKind
	NiceLen     int // stop searching once a match of this length is found
	Depth       int // hash-chain/tree cycle cap
	Mode        Mode
	// PresetDict optionally seeds the dictionary history before the
	// first byte is encoded; valid only in raw (non-container) mode
	// per the "Optional dictionary preset" design note in §9.
	PresetDict []byte
}

// fill applies defaults for zero-valued fields.
func (p *EncoderParams) fill() {
	if p.NiceLen <= 0 {
		p.NiceLen = 64
	}
	if p.NiceLen > MaxMatchLen {
		p.NiceLen = MaxMatchLen
	}
	if p.Depth <= 0 {
		switch {
		case p.MatchFinder == BT4:
			p.Depth = 16 + p.NiceLen/2
		case p.Mode == ModeNormal:
			p.Depth = 32
		default:
			p.Depth = 8
		}
	}
	if p.DictSize == 0 {
		p.DictSize = DefaultParams().DictSize
	}
}
