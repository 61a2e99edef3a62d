package lzma

import (
	"bufio"
	"errors"
	"io"

	"github.com/vela-compress/xz/rangecoder"
)

// ErrCorruptData is returned when the decoder observes a combination of
// decoded values that cannot occur in a well-formed LZMA1 stream (§7
// DATA_ERROR), distinct from rangecoder.ErrCorruptStream which flags
// corruption detected inside the range coder itself.
var ErrCorruptData = errors.New("lzma: corrupt compressed data")

// Decoder reconstructs the original byte stream from raw LZMA1 data
// (§4.6): the mirror image of Encoder, sharing the same state machine
// and probability model shapes so that every Encoder output round-trips.
type Decoder struct {
	p    Params
	rd   *bufio.Reader
	rc   *rangecoder.Decoder
	dict *window
	lit  *literalCoder
	mlen *lengthCoder
	rlen *lengthCoder
	dist *distCoder
	ps   *probStates

	state  state
	reps   [NumReps]uint32
	pbMask uint32
}

// NewDecoder creates a Decoder reading raw LZMA1 data from r using the
// given static parameters (lc/lp/pb/dict size), as would be supplied out
// of band by a container (§4.6, §6.1).
func NewDecoder(r io.Reader, p Params) (*Decoder, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if p.DictSize == 0 {
		p.DictSize = MinDictSize
	}
	rd := bufio.NewReader(r)
	rc, err := rangecoder.NewDecoder(rd)
	if err != nil {
		return nil, err
	}
	return &Decoder{
		p:      p,
		rd:     rd,
		rc:     rc,
		dict:   newWindow(p.DictSize, nil),
		lit:    newLiteralCoder(p.LC, p.LP),
		mlen:   newLengthCoder(),
		rlen:   newLengthCoder(),
		dist:   newDistCoder(),
		ps:     newProbStates(),
		pbMask: uint32(1)<<uint(p.PB) - 1,
	}, nil
}

// SetPresetDict seeds the dictionary before decoding begins (mirrors
// EncoderParams.PresetDict).
func (d *Decoder) SetPresetDict(preset []byte) {
	d.dict = newWindow(d.p.DictSize, preset)
}

// NewBareDecoder creates a Decoder with its dictionary and probability
// models initialized but no range-coder stream bound yet. Used by lzma2,
// whose first chunk may be uncompressed (and so carries no LZMA1 stream
// to construct a Decoder from in the usual way); call ResetForChunk
// before the first DecodeTo.
func NewBareDecoder(p Params) (*Decoder, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if p.DictSize == 0 {
		p.DictSize = MinDictSize
	}
	return &Decoder{
		p:      p,
		dict:   newWindow(p.DictSize, nil),
		lit:    newLiteralCoder(p.LC, p.LP),
		mlen:   newLengthCoder(),
		rlen:   newLengthCoder(),
		dist:   newDistCoder(),
		ps:     newProbStates(),
		pbMask: uint32(1)<<uint(p.PB) - 1,
	}, nil
}

// ResetDict clears the dictionary, as LZMA2's dictionary-reset chunks
// require (§4.7).
func (d *Decoder) ResetDict() {
	d.dict.Reset()
}

// SeedDictionary pushes raw bytes (e.g. an LZMA2 uncompressed chunk's
// payload) into the dictionary without touching probability state, so
// later chunks can reference them as match distances.
func (d *Decoder) SeedDictionary(b []byte) {
	for _, c := range b {
		d.dict.PutByte(c)
	}
}

// ResetForChunk reinitializes the decoder to read a new LZMA2 chunk from
// r (§4.7): every chunk carries its own independent range-coder stream,
// but the dictionary and probability models persist across chunks unless
// the chunk's control byte says otherwise.
func (d *Decoder) ResetForChunk(r io.Reader, resetDict, resetState, resetProps bool, newParams *Params) error {
	if resetProps {
		if newParams == nil {
			return ErrCorruptData
		}
		if err := newParams.Validate(); err != nil {
			return err
		}
		d.p.LC, d.p.LP, d.p.PB = newParams.LC, newParams.LP, newParams.PB
		d.lit = newLiteralCoder(d.p.LC, d.p.LP)
		d.pbMask = uint32(1)<<uint(d.p.PB) - 1
	}
	if resetState {
		d.state = stateLitLit
		d.reps = [NumReps]uint32{}
		d.ps = newProbStates()
		d.mlen = newLengthCoder()
		d.rlen = newLengthCoder()
		d.dist = newDistCoder()
		if !resetProps {
			d.lit = newLiteralCoder(d.p.LC, d.p.LP)
		}
	}
	if resetDict {
		d.dict.Reset()
	}
	d.rd = bufio.NewReader(r)
	rc, err := rangecoder.NewDecoder(d.rd)
	if err != nil {
		return err
	}
	d.rc = rc
	return nil
}

func (d *Decoder) posState() int {
	return int(uint32(d.dict.total) & d.pbMask)
}

func (d *Decoder) prevByte() byte {
	if d.dict.total == 0 {
		return 0
	}
	return d.dict.ByteAt(1)
}

// DecodeTo decodes exactly n bytes of uncompressed output into w. It is
// the raw-stream counterpart of a container's "read the declared
// uncompressed size" loop (§4.6); unbounded decoding (unknown size, as
// used by the legacy .lzma alone format, §9) is handled by DecodeUntilEnd.
func (d *Decoder) DecodeTo(w io.Writer, n int64) error {
	var produced int64
	for produced < n {
		before := d.dict.total
		if err := d.decodeSymbol(w); err != nil {
			return err
		}
		produced += int64(d.dict.total - before)
	}
	return nil
}

// DecodeUntilEnd decodes until the range coder's end-of-stream marker (a
// new, non-rep match with distance field 0xFFFFFFFF) is seen, used by containers
// with no declared uncompressed size (§9).
func (d *Decoder) DecodeUntilEnd(w io.Writer) error {
	for {
		end, err := d.decodeSymbolEOS(w)
		if err != nil {
			return err
		}
		if end {
			return nil
		}
	}
}

// decodeSymbol decodes exactly one literal/match/rep symbol, writing any
// produced bytes to w immediately.
func (d *Decoder) decodeSymbol(w io.Writer) error {
	_, err := d.decodeSymbolEOS(w)
	return err
}

// decodeSymbolEOS decodes one symbol and reports whether it was the
// end-of-stream marker (only possible for a new, non-rep match).
func (d *Decoder) decodeSymbolEOS(w io.Writer) (isEnd bool, err error) {
	posState := d.posState()
	isMatchBit, err := d.rc.DecodeBit(&d.ps.isMatch[d.state][posState])
	if err != nil {
		return false, err
	}
	if isMatchBit == 0 {
		b, err := d.decodeLiteral()
		if err != nil {
			return false, err
		}
		if _, err := w.Write([]byte{b}); err != nil {
			return false, err
		}
		return false, nil
	}

	isRepBit, err := d.rc.DecodeBit(&d.ps.isRep[d.state])
	if err != nil {
		return false, err
	}
	if isRepBit == 0 {
		length, dist, err := d.decodeNewMatch(posState)
		if err != nil {
			return false, err
		}
		if dist == 0xFFFFFFFF {
			return true, nil
		}
		if err := d.dict.CheckDistance(dist + 1); err != nil {
			return false, err
		}
		if err := d.emitMatch(w, dist, length); err != nil {
			return false, err
		}
		return false, nil
	}

	length, repIdx, short, err := d.decodeRepSelector(posState)
	if err != nil {
		return false, err
	}
	if !short {
		lenField, err := d.rlen.Decode(d.rc, posState)
		if err != nil {
			return false, err
		}
		length = int(lenField) + MinMatchLen
	}
	if repIdx > 0 {
		dist := d.reps[repIdx]
		copy(d.reps[1:repIdx+1], d.reps[0:repIdx])
		d.reps[0] = dist
	}
	if err := d.dict.CheckDistance(d.reps[0] + 1); err != nil {
		return false, err
	}
	if err := d.emitMatch(w, d.reps[0], length); err != nil {
		return false, err
	}
	if short {
		d.state = d.state.afterShortRep()
	} else {
		d.state = d.state.afterRep()
	}
	return false, nil
}

func (d *Decoder) decodeLiteral() (byte, error) {
	pos := uint32(d.dict.total)
	var b byte
	var err error
	if d.state.isLiteral() {
		b, err = d.lit.DecodeLiteral(d.rc, pos, d.prevByte())
	} else {
		matchByte := d.dict.ByteAt(d.reps[0] + 1)
		b, err = d.lit.DecodeMatchedLiteral(d.rc, pos, d.prevByte(), matchByte)
	}
	if err != nil {
		return 0, err
	}
	d.dict.PutByte(b)
	d.state = d.state.afterLiteral()
	return b, nil
}

// decodeNewMatch decodes a fresh (length, 0-based distance) pair and
// updates the rep history. A returned dist of 0xFFFFFFFF is the
// end-of-stream marker and must not be pushed into reps or used to copy.
func (d *Decoder) decodeNewMatch(posState int) (length int, dist uint32, err error) {
	lenField, err := d.mlen.Decode(d.rc, posState)
	if err != nil {
		return 0, 0, err
	}
	distVal, err := d.dist.Decode(d.rc, lenField)
	if err != nil {
		return 0, 0, err
	}
	length = int(lenField) + MinMatchLen
	if distVal == vliAllOnes32 {
		return length, distVal, nil
	}
	d.reps[3], d.reps[2], d.reps[1], d.reps[0] = d.reps[2], d.reps[1], d.reps[0], distVal
	d.state = d.state.afterMatch()
	return length, distVal, nil
}

const vliAllOnes32 = 0xFFFFFFFF

// decodeRepSelector decodes which of the 4 reps is used and whether it is
// a length-1 "short rep" (isRep0Long==0). When short is true the caller
// must not also decode a length from rlen.
func (d *Decoder) decodeRepSelector(posState int) (length, repIdx int, short bool, err error) {
	g0, err := d.rc.DecodeBit(&d.ps.isRepG0[d.state])
	if err != nil {
		return 0, 0, false, err
	}
	if g0 == 0 {
		longBit, err := d.rc.DecodeBit(&d.ps.isRep0Long[d.state][posState])
		if err != nil {
			return 0, 0, false, err
		}
		if longBit == 0 {
			return 1, 0, true, nil
		}
		return 0, 0, false, nil
	}
	g1, err := d.rc.DecodeBit(&d.ps.isRepG1[d.state])
	if err != nil {
		return 0, 0, false, err
	}
	if g1 == 0 {
		return 0, 1, false, nil
	}
	g2, err := d.rc.DecodeBit(&d.ps.isRepG2[d.state])
	if err != nil {
		return 0, 0, false, err
	}
	if g2 == 0 {
		return 0, 2, false, nil
	}
	return 0, 3, false, nil
}

// emitMatch copies length bytes from the dictionary at 0-based distance
// dist and writes them to w.
func (d *Decoder) emitMatch(w io.Writer, dist uint32, length int) error {
	out := make([]byte, length)
	for i := 0; i < length; i++ {
		b := d.dict.ByteAt(dist + 1)
		d.dict.PutByte(b)
		out[i] = b
	}
	_, err := w.Write(out)
	return err
}
