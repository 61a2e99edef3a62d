package lzma

import "github.com/vela-compress/xz/rangecoder"

// literalCoder holds the 2^(lc+lp) banks of 768 probabilities used to code
// literal bytes (§4.6). Each bank is a plain 256-leaf bit tree (positions
// 1..255 used; 256..767 are reserved for the three interleaved
// matched-literal sub-banks used when the previous symbol was a match).
type literalCoder struct {
	lc, lp int
	probs  []rangecoder.Prob // len = numBanks(lc,lp) * 0x300
}

const literalBankSize = 0x300

func newLiteralCoder(lc, lp int) *literalCoder {
	banks := 1 << uint(lc+lp)
	return &literalCoder{
		lc:    lc,
		lp:    lp,
		probs: rangecoder.NewProbs(banks * literalBankSize),
	}
}

// bankIndex selects a bank by the low lp bits of position and the high lc
// bits of the previous byte (§4.6).
func (c *literalCoder) bankIndex(pos uint32, prevByte byte) int {
	posMask := uint32(1)<<uint(c.lp) - 1
	lpPart := pos & posMask
	lcPart := uint32(prevByte) >> uint(8-c.lc)
	return int((lpPart << uint(c.lc)) | lcPart)
}

func (c *literalCoder) bank(idx int) []rangecoder.Prob {
	off := idx * literalBankSize
	return c.probs[off : off+literalBankSize]
}

// EncodeLiteral encodes a plain literal byte using a normal 8-bit bit
// tree.
func (c *literalCoder) EncodeLiteral(e *rangecoder.Encoder, pos uint32, prevByte, b byte) error {
	probs := c.bank(c.bankIndex(pos, prevByte))
	m := uint32(1)
	for i := 7; i >= 0; i-- {
		bit := uint32(b>>uint(i)) & 1
		if err := e.EncodeBit(&probs[m], bit); err != nil {
			return err
		}
		m = (m << 1) | bit
	}
	return nil
}

// EncodeMatchedLiteral encodes a literal that follows a match or rep,
// interleaving against the bits of matchByte (the byte at distance rep0)
// so that a literal identical to what the match "would have produced" is
// cheap to encode (§4.6).
func (c *literalCoder) EncodeMatchedLiteral(e *rangecoder.Encoder, pos uint32, prevByte, matchByte, b byte) error {
	probs := c.bank(c.bankIndex(pos, prevByte))
	m := uint32(1)
	match := uint32(matchByte)
	for i := 7; i >= 0; i-- {
		matchBit := (match >> uint(i)) & 1
		bit := uint32(b>>uint(i)) & 1
		idx := ((1 + matchBit) << 8) + m
		if err := e.EncodeBit(&probs[idx], bit); err != nil {
			return err
		}
		m = (m << 1) | bit
		if matchBit != bit {
			// Once the decoded bit diverges from the match byte, the
			// remaining bits fall back to the plain (non-matched) tree.
			for i--; i >= 0; i-- {
				bit = uint32(b>>uint(i)) & 1
				if err := e.EncodeBit(&probs[m], bit); err != nil {
					return err
				}
				m = (m << 1) | bit
			}
			return nil
		}
	}
	return nil
}

// PriceLiteral returns the cost of coding b as a plain literal.
func (c *literalCoder) PriceLiteral(pos uint32, prevByte, b byte) uint32 {
	probs := c.bank(c.bankIndex(pos, prevByte))
	price := uint32(0)
	m := uint32(1)
	for i := 7; i >= 0; i-- {
		bit := uint32(b>>uint(i)) & 1
		price += rangecoder.Price(probs[m], bit)
		m = (m << 1) | bit
	}
	return price
}

// PriceMatchedLiteral returns the cost of coding b as a literal
// interleaved against matchByte, mirroring EncodeMatchedLiteral's
// divergence rule.
func (c *literalCoder) PriceMatchedLiteral(pos uint32, prevByte, matchByte, b byte) uint32 {
	probs := c.bank(c.bankIndex(pos, prevByte))
	price := uint32(0)
	m := uint32(1)
	match := uint32(matchByte)
	for i := 7; i >= 0; i-- {
		matchBit := (match >> uint(i)) & 1
		bit := uint32(b>>uint(i)) & 1
		price += rangecoder.Price(probs[((1+matchBit)<<8)+m], bit)
		m = (m << 1) | bit
		if matchBit != bit {
			for i--; i >= 0; i-- {
				bit = uint32(b>>uint(i)) & 1
				price += rangecoder.Price(probs[m], bit)
				m = (m << 1) | bit
			}
			break
		}
	}
	return price
}

// DecodeLiteral decodes a plain literal byte.
func (c *literalCoder) DecodeLiteral(d *rangecoder.Decoder, pos uint32, prevByte byte) (byte, error) {
	probs := c.bank(c.bankIndex(pos, prevByte))
	m := uint32(1)
	for m < 0x100 {
		bit, err := d.DecodeBit(&probs[m])
		if err != nil {
			return 0, err
		}
		m = (m << 1) | bit
	}
	return byte(m), nil
}

// DecodeMatchedLiteral mirrors EncodeMatchedLiteral.
func (c *literalCoder) DecodeMatchedLiteral(d *rangecoder.Decoder, pos uint32, prevByte, matchByte byte) (byte, error) {
	probs := c.bank(c.bankIndex(pos, prevByte))
	m := uint32(1)
	match := uint32(matchByte)
	for m < 0x100 {
		matchBit := (match >> 7) & 1
		match <<= 1
		idx := ((1 + matchBit) << 8) + m
		bit, err := d.DecodeBit(&probs[idx])
		if err != nil {
			return 0, err
		}
		m = (m << 1) | bit
		if matchBit != bit {
			for m < 0x100 {
				bit, err := d.DecodeBit(&probs[m])
				if err != nil {
					return 0, err
				}
				m = (m << 1) | bit
			}
			break
		}
	}
	return byte(m), nil
}
