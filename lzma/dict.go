package lzma

import "errors"

// ErrDistance is returned when a decoded match distance would reach before
// the start of the stream (§4.6 "rejects a match into the first byte").
var ErrDistance = errors.New("lzma: match distance exceeds available history")

// window is the circular sliding dictionary described in §3: a byte buffer
// of size D holding recently emitted uncompressed bytes. The write
// position advances and wraps; after the first wrap the full D bytes of
// history are valid.
//
// Both encoder and decoder embed a window: the decoder's is the
// authoritative output history, the encoder's mirrors the bytes it has
// committed to the range coder so far (needed to evaluate rep-distance
// candidates and literal-after-match coding).
type window struct {
	buf     []byte
	size    uint32 // D
	pos     uint32 // next write index into buf; wraps to 0 on reaching size
	full    bool   // true once the buffer has wrapped at least once
	total   uint64 // total bytes ever written, for distance validation
	presetN uint32 // bytes preloaded from a preset dictionary
}

func newWindow(size uint32, preset []byte) *window {
	if size < MinDictSize {
		size = MinDictSize
	}
	w := &window{buf: make([]byte, size), size: size}
	if len(preset) > 0 {
		n := len(preset)
		if uint32(n) > size {
			preset = preset[n-int(size):]
			n = int(size)
		}
		copy(w.buf, preset)
		w.pos = uint32(n) % size
		w.full = uint32(n) >= size
		w.total = uint64(n)
		w.presetN = uint32(n)
	}
	return w
}

// PutByte appends one byte to the dictionary.
func (w *window) PutByte(b byte) {
	w.buf[w.pos] = b
	w.pos++
	if w.pos == w.size {
		w.pos = 0
		w.full = true
	}
	w.total++
}

// ByteAt returns the byte `dist` positions behind the current write
// position (dist=1 is the most recently written byte).
func (w *window) ByteAt(dist uint32) byte {
	var idx uint32
	if dist <= w.pos {
		idx = w.pos - dist
	} else {
		idx = w.size - (dist - w.pos)
	}
	return w.buf[idx]
}

// Available returns how many valid history bytes exist right now.
func (w *window) Available() uint64 {
	if w.total < uint64(w.size) {
		return w.total
	}
	return uint64(w.size)
}

// CheckDistance validates that dist (1-based, in [1,size]) references
// bytes that have actually been written (§4.6 decoder distance
// validation).
func (w *window) CheckDistance(dist uint32) error {
	if uint64(dist) > w.Available() {
		return ErrDistance
	}
	return nil
}

// CopyMatch copies `length` bytes from `dist` positions back to the
// current write position, byte by byte (LZ77 back-reference semantics,
// including overlapping copies where dist < length).
func (w *window) CopyMatch(dist uint32, length int) {
	for i := 0; i < length; i++ {
		w.PutByte(w.ByteAt(dist))
	}
}

// Reset clears the dictionary back to empty (used by LZMA2's dictionary
// reset chunk, §4.7).
func (w *window) Reset() {
	w.pos = 0
	w.full = false
	w.total = 0
}
