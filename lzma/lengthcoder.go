package lzma

import "github.com/vela-compress/xz/rangecoder"

// numPosStates is the maximum number of pos-state buckets (2^pb, pb<=4).
const numPosStates = 1 << 4

// lengthCoder implements §4.6's length coder: a choice bit selects between
// a 3-bit "low" tree (per pos-state), a 3-bit "mid" tree (per pos-state),
// or an 8-bit "high" tree (shared); decoded length = 2 + {0..7,8..15,16..271}.
type lengthCoder struct {
	choice  rangecoder.Prob
	choice2 rangecoder.Prob
	low     [numPosStates][]rangecoder.Prob // 8 leaves each
	mid     [numPosStates][]rangecoder.Prob // 8 leaves each
	high    []rangecoder.Prob               // 256 leaves
}

func newLengthCoder() *lengthCoder {
	c := &lengthCoder{
		choice:  rangecoder.NewProb(),
		choice2: rangecoder.NewProb(),
		high:    rangecoder.NewProbs(1 << 8),
	}
	for i := range c.low {
		c.low[i] = rangecoder.NewProbs(1 << 3)
		c.mid[i] = rangecoder.NewProbs(1 << 3)
	}
	return c
}

// Encode encodes length (already offset so 0 means MinMatchLen) for the
// given pos-state.
func (c *lengthCoder) Encode(e *rangecoder.Encoder, length uint32, posState int) error {
	if length < 8 {
		if err := e.EncodeBit(&c.choice, 0); err != nil {
			return err
		}
		return rangecoder.BitTreeEncode(e, c.low[posState], 3, length)
	}
	if err := e.EncodeBit(&c.choice, 1); err != nil {
		return err
	}
	if length < 16 {
		if err := e.EncodeBit(&c.choice2, 0); err != nil {
			return err
		}
		return rangecoder.BitTreeEncode(e, c.mid[posState], 3, length-8)
	}
	if err := e.EncodeBit(&c.choice2, 1); err != nil {
		return err
	}
	return rangecoder.BitTreeEncode(e, c.high, 8, length-16)
}

// Decode decodes a length, returning the 0-based value (caller adds
// MinMatchLen).
func (c *lengthCoder) Decode(d *rangecoder.Decoder, posState int) (uint32, error) {
	bit, err := d.DecodeBit(&c.choice)
	if err != nil {
		return 0, err
	}
	if bit == 0 {
		return rangecoder.BitTreeDecode(d, c.low[posState], 3)
	}
	bit, err = d.DecodeBit(&c.choice2)
	if err != nil {
		return 0, err
	}
	if bit == 0 {
		v, err := rangecoder.BitTreeDecode(d, c.mid[posState], 3)
		return v + 8, err
	}
	v, err := rangecoder.BitTreeDecode(d, c.high, 8)
	return v + 16, err
}

// Price returns the price of encoding length (0-based) at posState.
func (c *lengthCoder) Price(length uint32, posState int) uint32 {
	if length < 8 {
		return rangecoder.Price(c.choice, 0) + rangecoder.BitTreePrice(c.low[posState], 3, length)
	}
	p := rangecoder.Price(c.choice, 1)
	if length < 16 {
		return p + rangecoder.Price(c.choice2, 0) + rangecoder.BitTreePrice(c.mid[posState], 3, length-8)
	}
	return p + rangecoder.Price(c.choice2, 1) + rangecoder.BitTreePrice(c.high, 8, length-16)
}
