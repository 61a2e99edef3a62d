package lzma

import (
	"bufio"
	"errors"
	"io"

	"github.com/vela-compress/xz/rangecoder"
)

// ErrEncoderClosed is returned by Write after Close has run.
var ErrEncoderClosed = errors.New("lzma: encoder is closed")

// probStates holds every adaptive probability table outside the literal,
// length and distance coders (§4.6): the is_match/is_rep family that
// chooses between literal, new match, and the four recent-distance reps.
type probStates struct {
	isMatch    [numStates][numPosStates]rangecoder.Prob
	isRep      [numStates]rangecoder.Prob
	isRepG0    [numStates]rangecoder.Prob
	isRepG1    [numStates]rangecoder.Prob
	isRepG2    [numStates]rangecoder.Prob
	isRep0Long [numStates][numPosStates]rangecoder.Prob
}

func newProbStates() *probStates {
	ps := &probStates{}
	for i := range ps.isMatch {
		for j := range ps.isMatch[i] {
			ps.isMatch[i][j] = rangecoder.NewProb()
			ps.isRep0Long[i][j] = rangecoder.NewProb()
		}
		ps.isRep[i] = rangecoder.NewProb()
		ps.isRepG0[i] = rangecoder.NewProb()
		ps.isRepG1[i] = rangecoder.NewProb()
		ps.isRepG2[i] = rangecoder.NewProb()
	}
	return ps
}

// Encoder compresses a byte stream into raw LZMA1 data (§4.6): no
// container framing, just the probability models described by Params
// driving the range coder over the match finder's output. The container
// and LZMA2 chunking layers above are responsible for properties bytes,
// dictionary resets, and chunk boundaries.
type Encoder struct {
	p   EncoderParams
	bw  *bufio.Writer
	rc  *rangecoder.Encoder
	mf  finder
	dict *window
	lit  *literalCoder
	mlen *lengthCoder
	rlen *lengthCoder
	dist *distCoder
	ps   *probStates

	state state
	reps  [NumReps]uint32 // 0-based recent distances
	pbMask uint32

	encPos int // next position in mf.buf not yet encoded
	closed bool

	// Normal-mode parser state (optparser.go).
	opt []optNode
	dp  distPrices
}

// NewEncoder creates an Encoder writing raw LZMA1 data to w.
func NewEncoder(w io.Writer, p EncoderParams) (*Encoder, error) {
	p.fill()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	bw := bufio.NewWriter(w)
	var mf finder
	if p.MatchFinder == BT4 {
		mf = newBTFinder(p.DictSize, p.NiceLen, p.Depth)
	} else {
		mf = newMatchFinder(p.DictSize, p.NiceLen, p.Depth)
	}
	e := &Encoder{
		p:      p,
		bw:     bw,
		rc:     rangecoder.NewEncoder(bw),
		mf:     mf,
		dict:   newWindow(p.DictSize, p.PresetDict),
		lit:    newLiteralCoder(p.LC, p.LP),
		mlen:   newLengthCoder(),
		rlen:   newLengthCoder(),
		dist:   newDistCoder(),
		ps:     newProbStates(),
		pbMask: uint32(1)<<uint(p.PB) - 1,
	}
	if len(p.PresetDict) > 0 {
		e.mf.SetInput(p.PresetDict)
		e.mf.EnsureInserted(len(p.PresetDict))
		e.encPos = len(p.PresetDict)
	}
	return e, nil
}

// Write buffers p for later encoding. The encoder is not required to have
// produced any output by the time Write returns (§4.2's buffer-in/
// buffer-out contract is provided one level up, by the block/filter
// layer driving Write/Close against a bounded output buffer).
func (e *Encoder) Write(p []byte) (int, error) {
	if e.closed {
		return 0, ErrEncoderClosed
	}
	e.mf.SetInput(p)
	return len(p), nil
}

// Close encodes any buffered input, flushes the range coder, and flushes
// the underlying writer. It must be called exactly once.
func (e *Encoder) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	var err error
	if e.p.Mode == ModeNormal {
		err = e.encodeNormal()
	} else {
		err = e.encodeFast()
	}
	e.mf.Close()
	if err != nil {
		return err
	}
	if err := e.rc.Flush(); err != nil {
		return err
	}
	return e.bw.Flush()
}

func (e *Encoder) posState() int {
	return int(uint32(e.dict.total) & e.pbMask)
}

func bestMatch(lengths []int, dists []uint32) (length int, dist uint32, ok bool) {
	if len(lengths) == 0 {
		return 0, 0, false
	}
	n := len(lengths) - 1
	return lengths[n], dists[n], true
}

// repMatchLen returns how far the input at the encoder's current position
// agrees with the bytes `dist0+1` positions back, capped at MaxMatchLen.
func (e *Encoder) repMatchLen(dist0 uint32) int {
	distBytes := int(dist0) + 1
	pos := e.encPos
	if pos-distBytes < 0 {
		return 0
	}
	max := e.mf.Len() - pos
	if max > MaxMatchLen {
		max = MaxMatchLen
	}
	n := 0
	for n < max && e.mf.ByteAt(pos-distBytes+n) == e.mf.ByteAt(pos+n) {
		n++
	}
	return n
}

func (e *Encoder) bestRep() (length, idx int) {
	for i := 0; i < NumReps; i++ {
		if n := e.repMatchLen(e.reps[i]); n > length {
			length = n
			idx = i
		}
	}
	return length, idx
}

func (e *Encoder) prevByte() byte {
	if e.dict.total == 0 {
		return 0
	}
	return e.dict.ByteAt(1)
}

func (e *Encoder) encodeLiteral() error {
	posState := e.posState()
	pos := uint32(e.dict.total)
	b := e.mf.ByteAt(e.encPos)
	if err := e.rc.EncodeBit(&e.ps.isMatch[e.state][posState], 0); err != nil {
		return err
	}
	var err error
	if e.state.isLiteral() {
		err = e.lit.EncodeLiteral(e.rc, pos, e.prevByte(), b)
	} else {
		matchByte := e.dict.ByteAt(e.reps[0] + 1)
		err = e.lit.EncodeMatchedLiteral(e.rc, pos, e.prevByte(), matchByte, b)
	}
	if err != nil {
		return err
	}
	e.dict.PutByte(b)
	e.state = e.state.afterLiteral()
	e.encPos++
	e.mf.Trim(e.encPos)
	return nil
}

// commitBytes copies `length` raw input bytes (already known, unlike a
// decoder which must reconstruct them from the dictionary) into the
// encoder's window, advancing encPos.
func (e *Encoder) commitBytes(length int) {
	for i := 0; i < length; i++ {
		e.dict.PutByte(e.mf.ByteAt(e.encPos + i))
	}
	e.encPos += length
	e.mf.Trim(e.encPos)
}

// encodeMatch encodes a new (non-rep) match. dist is the match finder's
// 1-based byte distance (§4.5); the distance coder and rep array are
// 0-based (distcoder.go: "0 means distance 1"), so it is converted once
// here before coding and before entering the rep array.
func (e *Encoder) encodeMatch(length int, dist uint32) error {
	posState := e.posState()
	if err := e.rc.EncodeBit(&e.ps.isMatch[e.state][posState], 1); err != nil {
		return err
	}
	if err := e.rc.EncodeBit(&e.ps.isRep[e.state], 0); err != nil {
		return err
	}
	lenField := uint32(length - MinMatchLen)
	if err := e.mlen.Encode(e.rc, lenField, posState); err != nil {
		return err
	}
	dist0 := dist - 1
	if err := e.dist.Encode(e.rc, dist0, lenField); err != nil {
		return err
	}
	e.reps[3], e.reps[2], e.reps[1], e.reps[0] = e.reps[2], e.reps[1], e.reps[0], dist0
	e.commitBytes(length)
	e.state = e.state.afterMatch()
	return nil
}

func (e *Encoder) encodeRep(repIndex, length int) error {
	posState := e.posState()
	if err := e.rc.EncodeBit(&e.ps.isMatch[e.state][posState], 1); err != nil {
		return err
	}
	if err := e.rc.EncodeBit(&e.ps.isRep[e.state], 1); err != nil {
		return err
	}
	if repIndex == 0 {
		if err := e.rc.EncodeBit(&e.ps.isRepG0[e.state], 0); err != nil {
			return err
		}
		if length == 1 {
			if err := e.rc.EncodeBit(&e.ps.isRep0Long[e.state][posState], 0); err != nil {
				return err
			}
			e.commitBytes(1)
			e.state = e.state.afterShortRep()
			return nil
		}
		if err := e.rc.EncodeBit(&e.ps.isRep0Long[e.state][posState], 1); err != nil {
			return err
		}
	} else {
		if err := e.rc.EncodeBit(&e.ps.isRepG0[e.state], 1); err != nil {
			return err
		}
		if repIndex == 1 {
			if err := e.rc.EncodeBit(&e.ps.isRepG1[e.state], 0); err != nil {
				return err
			}
		} else {
			if err := e.rc.EncodeBit(&e.ps.isRepG1[e.state], 1); err != nil {
				return err
			}
			if repIndex == 2 {
				if err := e.rc.EncodeBit(&e.ps.isRepG2[e.state], 0); err != nil {
					return err
				}
			} else {
				if err := e.rc.EncodeBit(&e.ps.isRepG2[e.state], 1); err != nil {
					return err
				}
			}
		}
		dist := e.reps[repIndex]
		copy(e.reps[1:repIndex+1], e.reps[0:repIndex])
		e.reps[0] = dist
	}
	lenField := uint32(length - MinMatchLen)
	if err := e.rlen.Encode(e.rc, lenField, posState); err != nil {
		return err
	}
	e.commitBytes(length)
	e.state = e.state.afterRep()
	return nil
}

// encodeFast is the greedy encoder (§4.6 Mode=ModeFast): at each position
// it takes the best of (longest new match, best rep match) if either
// clears MinMatchLen, otherwise a literal. No lookahead.
func (e *Encoder) encodeFast() error {
	for e.encPos < e.mf.Len() {
		e.mf.EnsureInserted(e.encPos + 1)
		lengths, dists := e.mf.Matches(e.encPos)
		length, dist, ok := bestMatch(lengths, dists)
		repLen, repIdx := e.bestRep()

		switch {
		case repLen >= 2 && (repLen+1 >= length || !ok):
			if err := e.encodeRep(repIdx, repLen); err != nil {
				return err
			}
		case ok && length >= MinMatchLen:
			if err := e.encodeMatch(length, dist); err != nil {
				return err
			}
		default:
			if err := e.encodeLiteral(); err != nil {
				return err
			}
		}
	}
	return nil
}

// encodeNormal, the priced optimal parser, lives in optparser.go.
