package lzma

import "github.com/vela-compress/xz/rangecoder"

// Distance-coder constants (§4.6): 6-bit slot per one of 4 length-to-
// pos-state buckets; slots >= 4 add (slot>>1 - 1) extra bits; slots >= 14
// encode their middle bits as fixed-probability direct bits followed by a
// shared 4-bit "alignment" bit-tree.
const (
	numLenToPosStates = 4
	numPosSlotBits    = 6
	numFullDistances  = 1 << (endPosModelIndex >> 1)
	startPosModelIndex = 4
	endPosModelIndex   = 14
	alignBits          = 4
)

// distCoder holds the probability tables for distance coding.
type distCoder struct {
	posSlot   [numLenToPosStates][]rangecoder.Prob // 64 leaves each
	specPos   []rangecoder.Prob                    // shared, offset-addressed
	align     []rangecoder.Prob                    // 16 leaves
}

func newDistCoder() *distCoder {
	c := &distCoder{
		specPos: rangecoder.NewProbs(numFullDistances - endPosModelIndex),
		align:   rangecoder.NewProbs(1 << alignBits),
	}
	for i := range c.posSlot {
		c.posSlot[i] = rangecoder.NewProbs(1 << numPosSlotBits)
	}
	return c
}

// lenToPosState maps a 0-based match length to one of the 4 length
// buckets used to select a posSlot tree.
func lenToPosState(length uint32) int {
	if length < numLenToPosStates {
		return int(length)
	}
	return numLenToPosStates - 1
}

// Encode encodes dist (0-based: 0 means distance 1) given the 0-based
// match length.
func (c *distCoder) Encode(e *rangecoder.Encoder, dist uint32, length uint32) error {
	posState := lenToPosState(length)
	slot := distSlot(dist)
	if err := rangecoder.BitTreeEncode(e, c.posSlot[posState], numPosSlotBits, slot); err != nil {
		return err
	}
	if slot < startPosModelIndex {
		return nil
	}
	footerBits := int(slot>>1) - 1
	base := (2 | (slot & 1)) << uint(footerBits)
	rest := dist - base
	if slot < endPosModelIndex {
		return bitTreeReverseEncodeAt(e, c.specPos, int(base)-int(slot)-1, footerBits, rest)
	}
	if err := e.EncodeDirectBits(rest>>alignBits, footerBits-alignBits); err != nil {
		return err
	}
	return rangecoder.BitTreeReverseEncode(e, c.align, alignBits, rest&((1<<alignBits)-1))
}

// Decode decodes a 0-based distance given the 0-based match length.
func (c *distCoder) Decode(d *rangecoder.Decoder, length uint32) (uint32, error) {
	posState := lenToPosState(length)
	slot, err := rangecoder.BitTreeDecode(d, c.posSlot[posState], numPosSlotBits)
	if err != nil {
		return 0, err
	}
	if slot < startPosModelIndex {
		return slot, nil
	}
	footerBits := int(slot>>1) - 1
	base := (2 | (slot & 1)) << uint(footerBits)
	if slot < endPosModelIndex {
		rest, err := bitTreeReverseDecodeAt(d, c.specPos, int(base)-int(slot)-1, footerBits)
		if err != nil {
			return 0, err
		}
		return base + rest, nil
	}
	direct, err := d.DecodeDirectBits(footerBits - alignBits)
	if err != nil {
		return 0, err
	}
	align, err := rangecoder.BitTreeReverseDecode(d, c.align, alignBits)
	if err != nil {
		return 0, err
	}
	return base + (direct << alignBits) + align, nil
}

// Price returns the price of encoding dist at the given 0-based length.
func (c *distCoder) Price(dist uint32, length uint32) uint32 {
	posState := lenToPosState(length)
	slot := distSlot(dist)
	price := rangecoder.BitTreePrice(c.posSlot[posState], numPosSlotBits, slot)
	if slot < startPosModelIndex {
		return price
	}
	footerBits := int(slot>>1) - 1
	base := (2 | (slot & 1)) << uint(footerBits)
	rest := dist - base
	if slot < endPosModelIndex {
		return price + bitTreeReversePriceAt(c.specPos, int(base)-int(slot)-1, footerBits, rest)
	}
	price += rangecoder.DirectBitsPrice(footerBits - alignBits)
	price += rangecoder.BitTreeReversePrice(c.align, alignBits, rest&((1<<alignBits)-1))
	return price
}

// distSlot computes the 6-bit slot for a 0-based distance: the slot packs
// the position of the highest set bit plus one extra bit, matching
// liblzma's get_pos_slot / get_pos_slot2 fast tables.
func distSlot(dist uint32) uint32 {
	if dist < startPosModelIndex {
		return dist
	}
	n := rangecoder.NumBits(dist)
	return uint32((n-1)<<1) | ((dist >> uint(n-2)) & 1)
}

// bitTreeReverseEncodeAt/-DecodeAt/-PriceAt implement a reverse bit tree
// whose probabilities live inside a larger shared slice at a (possibly
// negative relative, but in-bounds) offset, mirroring the overlapping
// "PosDecoders" addressing scheme from the reference LZMA decoder, which
// shares one probability array across all pos-slots in [startPosModelIndex,
// endPosModelIndex).
func bitTreeReverseEncodeAt(e *rangecoder.Encoder, probs []rangecoder.Prob, offset, nbits int, symbol uint32) error {
	m := uint32(1)
	for i := 0; i < nbits; i++ {
		bit := symbol & 1
		symbol >>= 1
		if err := e.EncodeBit(&probs[offset+int(m)], bit); err != nil {
			return err
		}
		m = (m << 1) | bit
	}
	return nil
}

func bitTreeReverseDecodeAt(d *rangecoder.Decoder, probs []rangecoder.Prob, offset, nbits int) (uint32, error) {
	m := uint32(1)
	var symbol uint32
	for i := 0; i < nbits; i++ {
		bit, err := d.DecodeBit(&probs[offset+int(m)])
		if err != nil {
			return 0, err
		}
		m = (m << 1) | bit
		symbol |= bit << uint(i)
	}
	return symbol, nil
}

func bitTreeReversePriceAt(probs []rangecoder.Prob, offset, nbits int, symbol uint32) uint32 {
	price := uint32(0)
	m := uint32(1)
	for i := 0; i < nbits; i++ {
		bit := symbol & 1
		symbol >>= 1
		price += rangecoder.Price(probs[offset+int(m)], bit)
		m = (m << 1) | bit
	}
	return price
}
