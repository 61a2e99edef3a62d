// Package rangecoder implements the binary range (arithmetic) coder at the
// heart of LZMA: an 11-bit adaptive probability model per context bit,
// bit-tree coding for multi-bit symbols, fixed-probability direct bits, and
// a price table for the optimal parser (§4.4).
package rangecoder

import (
	"errors"
	"io"
	"math/bits"
)

// ProbBits is the width of a probability value; probabilities range over
// [0, 1<<ProbBits].
const ProbBits = 11

// ProbTotal is BIT_MODEL_TOTAL: the denominator every probability is out
// of.
const ProbTotal = 1 << ProbBits

// moveBits is the adaptation shift applied to a probability on every
// coded bit.
const moveBits = 5

// probInit is the value an untouched probability variable holds (50%).
const probInit uint16 = ProbTotal / 2

// topValue is the renormalization threshold: whenever range drops below
// this, one byte is flushed/read and range is shifted left by 8 bits.
const topValue = 1 << 24

// Prob is a single adaptive probability-of-zero variable.
type Prob uint16

// NewProb returns a freshly initialized probability (50%).
func NewProb() Prob { return Prob(probInit) }

// NewProbs returns a slice of n freshly initialized probabilities.
func NewProbs(n int) []Prob {
	p := make([]Prob, n)
	for i := range p {
		p[i] = Prob(probInit)
	}
	return p
}

func (p *Prob) updateBit0() {
	*p += (ProbTotal - Prob(*p)) >> moveBits
}

func (p *Prob) updateBit1() {
	*p -= Prob(*p) >> moveBits
}

// Encoder is a binary range encoder writing to an io.ByteWriter.
type Encoder struct {
	w       io.ByteWriter
	low     uint64 // 33 bits used; top bit captures carry
	rng     uint32
	cache   byte
	cacheSz int64 // pending-bytes counter; starts at 1 to absorb the first, unreal cache byte
}

// NewEncoder creates a range encoder writing to w.
func NewEncoder(w io.ByteWriter) *Encoder {
	return &Encoder{
		w:       w,
		rng:     0xFFFFFFFF,
		cache:   0,
		cacheSz: 1,
	}
}

// EncodeBit encodes one bit using and updating probability p.
func (e *Encoder) EncodeBit(p *Prob, bit uint32) error {
	bound := (e.rng >> ProbBits) * uint32(*p)
	if bit == 0 {
		e.rng = bound
		p.updateBit0()
	} else {
		e.low += uint64(bound)
		e.rng -= bound
		p.updateBit1()
	}
	return e.normalize()
}

// EncodeDirectBits encodes nbits bits of v with fixed 50% probability (no
// model, no adaptation) — used for the high bits of long distances.
func (e *Encoder) EncodeDirectBits(v uint32, nbits int) error {
	for i := nbits - 1; i >= 0; i-- {
		e.rng >>= 1
		bit := (v >> uint(i)) & 1
		if bit != 0 {
			e.low += uint64(e.rng)
		}
		if err := e.normalize(); err != nil {
			return err
		}
	}
	return nil
}

func (e *Encoder) normalize() error {
	for e.rng < topValue {
		if err := e.shiftLow(); err != nil {
			return err
		}
		e.rng <<= 8
	}
	return nil
}

func (e *Encoder) shiftLow() error {
	if uint32(e.low>>32) != 0 || e.low < 0xFF000000 {
		temp := e.cache
		carry := byte(e.low >> 32)
		for {
			if err := e.w.WriteByte(temp + carry); err != nil {
				return err
			}
			temp = 0xFF
			e.cacheSz--
			if e.cacheSz == 0 {
				break
			}
		}
		e.cache = byte(e.low >> 24)
	}
	e.cacheSz++
	e.low = (e.low << 8) & 0xFFFFFFFF
	return nil
}

// Flush finishes the stream, flushing the 5 pending bytes that resolve any
// outstanding carry. Callers must call Flush exactly once, after which no
// further Encode* calls are valid.
func (e *Encoder) Flush() error {
	for i := 0; i < 5; i++ {
		if err := e.shiftLow(); err != nil {
			return err
		}
	}
	return nil
}

// BitTreeEncode encodes an nbits-wide symbol as a path through a balanced
// tree of 2^nbits-1 probabilities, most-significant bit first.
func BitTreeEncode(e *Encoder, probs []Prob, nbits int, symbol uint32) error {
	m := uint32(1)
	for i := nbits - 1; i >= 0; i-- {
		bit := (symbol >> uint(i)) & 1
		if err := e.EncodeBit(&probs[m], bit); err != nil {
			return err
		}
		m = (m << 1) | bit
	}
	return nil
}

// BitTreeReverseEncode is BitTreeEncode but reads symbol bits
// least-significant first, as used for the LZMA alignment bits.
func BitTreeReverseEncode(e *Encoder, probs []Prob, nbits int, symbol uint32) error {
	m := uint32(1)
	for i := 0; i < nbits; i++ {
		bit := symbol & 1
		symbol >>= 1
		if err := e.EncodeBit(&probs[m], bit); err != nil {
			return err
		}
		m = (m << 1) | bit
	}
	return nil
}

// Decoder is a binary range decoder reading from an io.ByteReader.
type Decoder struct {
	r    io.ByteReader
	rng  uint32
	code uint32
}

// ErrCorruptStream is returned when the decoder observes a state that is
// provably impossible for a well-formed range-coded stream (§4.6, §7
// DATA_ERROR).
var ErrCorruptStream = errors.New("rangecoder: corrupt stream")

// NewDecoder creates a range decoder reading from r. Per the LZMA wire
// format, the first byte is always zero and is discarded before priming
// the 4-byte code window.
func NewDecoder(r io.ByteReader) (*Decoder, error) {
	d := &Decoder{r: r, rng: 0xFFFFFFFF}
	b, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if b != 0 {
		return nil, ErrCorruptStream
	}
	for i := 0; i < 4; i++ {
		c, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		d.code = (d.code << 8) | uint32(c)
	}
	return d, nil
}

// DecodeBit decodes one bit using and updating probability p.
func (d *Decoder) DecodeBit(p *Prob) (uint32, error) {
	bound := (d.rng >> ProbBits) * uint32(*p)
	var bit uint32
	if d.code < bound {
		d.rng = bound
		p.updateBit0()
		bit = 0
	} else {
		d.code -= bound
		d.rng -= bound
		p.updateBit1()
		bit = 1
	}
	return bit, d.normalize()
}

// DecodeDirectBits decodes nbits bits with fixed 50% probability.
func (d *Decoder) DecodeDirectBits(nbits int) (uint32, error) {
	var v uint32
	for i := 0; i < nbits; i++ {
		d.rng >>= 1
		d.code -= d.rng
		t := 0 - (d.code >> 31)
		d.code += d.rng & t
		if err := d.normalize(); err != nil {
			return 0, err
		}
		v = (v << 1) + (t + 1)
	}
	return v, nil
}

func (d *Decoder) normalize() error {
	for d.rng < topValue {
		c, err := d.r.ReadByte()
		if err != nil {
			return err
		}
		d.code = (d.code << 8) | uint32(c)
		d.rng <<= 8
	}
	return nil
}

// BitTreeDecode decodes an nbits-wide symbol, most-significant bit first.
func BitTreeDecode(d *Decoder, probs []Prob, nbits int) (uint32, error) {
	m := uint32(1)
	for i := 0; i < nbits; i++ {
		bit, err := d.DecodeBit(&probs[m])
		if err != nil {
			return 0, err
		}
		m = (m << 1) | bit
	}
	return m - (1 << uint(nbits)), nil
}

// BitTreeReverseDecode decodes an nbits-wide symbol whose bits were
// written least-significant first.
func BitTreeReverseDecode(d *Decoder, probs []Prob, nbits int) (uint32, error) {
	m := uint32(1)
	var symbol uint32
	for i := 0; i < nbits; i++ {
		bit, err := d.DecodeBit(&probs[m])
		if err != nil {
			return 0, err
		}
		m = (m << 1) | bit
		symbol |= bit << uint(i)
	}
	return symbol, nil
}

// Price table: negative log-probability in 1/64-bit units, indexed by
// (prob >> 4). Computed once at init and never mutated afterward, matching
// the "static and precomputed tables" design note in §9 — no visible init
// call is exposed.
const (
	priceShiftBits = 4
	priceTableSize = ProbTotal >> priceShiftBits
	infinityPrice  = 1 << 30
)

var priceTable [priceTableSize]uint32

func init() {
	for i := 0; i < priceTableSize; i++ {
		w := uint32(i<<priceShiftBits) + (1 << (priceShiftBits - 1))
		if w == 0 {
			w = 1
		}
		bitCount := 0
		for j := 0; j < 6; j++ {
			w *= w
			bitCount <<= 1
			for w >= 1<<16 {
				w >>= 1
				bitCount++
			}
		}
		priceTable[i] = uint32((ProbBits<<6)-15-bitCount) / 2 * 2
	}
}

// Price returns the cost, in 1/64-bit units, of coding bit against
// probability p.
func Price(p Prob, bit uint32) uint32 {
	if bit == 0 {
		return priceTable[p>>priceShiftBits]
	}
	return priceTable[(ProbTotal-Prob(p))>>priceShiftBits]
}

// BitTreePrice returns the total price of encoding symbol through an
// nbits-wide bit tree.
func BitTreePrice(probs []Prob, nbits int, symbol uint32) uint32 {
	price := uint32(0)
	m := uint32(1)
	for i := nbits - 1; i >= 0; i-- {
		bit := (symbol >> uint(i)) & 1
		price += Price(probs[m], bit)
		m = (m << 1) | bit
	}
	return price
}

// BitTreeReversePrice is BitTreePrice for reverse (LSB-first) bit trees.
func BitTreeReversePrice(probs []Prob, nbits int, symbol uint32) uint32 {
	price := uint32(0)
	m := uint32(1)
	for i := 0; i < nbits; i++ {
		bit := symbol & 1
		symbol >>= 1
		price += Price(probs[m], bit)
		m = (m << 1) | bit
	}
	return price
}

// DirectBitsPrice returns the price of nbits fixed-probability bits: always
// exactly one bit (64 units) per bit, since there is no adaptation.
func DirectBitsPrice(nbits int) uint32 {
	return uint32(nbits) << 6
}

// NumBits returns the position of the highest set bit in v (like
// liblzma's get_pos_slot fast-path helper), used by the distance slot
// coder. Returns 0 for v == 0.
func NumBits(v uint32) int {
	return bits.Len32(v)
}
