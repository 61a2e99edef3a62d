package lzma

import "sync"

// finder is the contract both match-finder families satisfy: feed input
// in, advance an insertion cursor over it, and answer match queries at
// already-inserted positions. Matches returns alternating monotonically
// increasing lengths with the nearest distance achieving each; Skip
// advances without emitting; Trim releases bytes no future distance can
// reach.
type finder interface {
	SetInput(b []byte)
	Close()
	Trim(safePos int)
	EnsureInserted(upto int)
	Matches(pos int) (lengths []int, distances []uint32)
	Skip(n int)
	ByteAt(p int) byte
	Len() int
}

// matchFinder is the hash-chain LZ77 match finder (HC4, §4.5) over a
// sliding dictionary, generalized from the teacher's LZO
// `slidingWindowDict` (ring buffer + chainNext + hash heads) to LZMA's
// 2/3/4-byte hashing, 273-byte match cap, and distances up to dictSize-1.
// The binary-tree family lives in btfinder.go.
type matchFinder struct {
	buf      []byte // sliding window; buf[i] holds logical position base+i
	base     int    // logical position of buf[0]; advances as trim discards dead bytes
	pos      int    // insertion cursor (logical): hash tables hold entries for [0, pos)
	dictSize uint32
	niceLen  int
	maxChain int

	hash2 []int32 // 2-byte hash heads, logical positions, -1 = empty
	hash3 []int32 // 3-byte hash heads
	hash4 []int32 // 4-byte hash heads
	chain []int32 // per-position (buf-relative) "previous logical position with same 4-byte hash"
}

const (
	mfHash2Bits = 10
	mfHash3Bits = 16
	mfHash4Bits = 20
)

// hash4Pool recycles the largest match-finder table (2^20 int32s, 4MiB)
// across encoder lifetimes, following the teacher's sliding_window_pool.go
// pattern of pooling the one genuinely large scratch buffer rather than
// every small one.
var hash4Pool = sync.Pool{
	New: func() any {
		return newFilledInt32(1<<mfHash4Bits, -1)
	},
}

func newMatchFinder(dictSize uint32, niceLen, maxChain int) *matchFinder {
	h4 := hash4Pool.Get().([]int32)
	for i := range h4 {
		h4[i] = -1
	}
	return &matchFinder{
		dictSize: dictSize,
		niceLen:  niceLen,
		maxChain: maxChain,
		hash2:    newFilledInt32(1<<mfHash2Bits, -1),
		hash3:    newFilledInt32(1<<mfHash3Bits, -1),
		hash4:    h4,
	}
}

// Close returns the match finder's large hash table to the shared pool.
// Callers that create many short-lived Encoders in sequence (as the
// lzma2/block chunking layers do) should call this once a finder is no
// longer needed.
func (mf *matchFinder) Close() {
	if mf.hash4 != nil {
		hash4Pool.Put(mf.hash4)
		mf.hash4 = nil
	}
}

func newFilledInt32(n int, v int32) []int32 {
	s := make([]int32, n)
	for i := range s {
		s[i] = v
	}
	return s
}

// SetInput appends newly available bytes to the match finder's view. The
// caller (Encoder) owns deciding how much input is available; the finder
// never looks beyond len(buf).
func (mf *matchFinder) SetInput(b []byte) {
	mf.buf = append(mf.buf, b...)
	if need := len(mf.buf) - len(mf.chain); need > 0 {
		mf.chain = append(mf.chain, make([]int32, need)...)
	}
}

// rel converts a logical position into an index into buf/chain.
func (mf *matchFinder) rel(pos int) int { return pos - mf.base }

// Trim discards buffered bytes that are now further than dictSize behind
// safePos, the caller's (Encoder's) actual committed position: no future
// match distance can reach them (§4.5 caps distances at dictSize-1), so
// keeping them allocated only grows memory with total input size instead
// of staying bounded by DictSize.
//
// The caller, not the insertion cursor, must drive safePos: EnsureInserted
// runs ahead of it (ModeNormal's optimal parser inserts positions across
// its whole window before any of them has been committed), so trimming
// against mf.pos
// instead of the encoder's real position could discard a byte a later
// rep-match query at the lower, uncommitted position still needs.
//
// Stale hash/chain entries that still point below the new base are left
// in place; every reader already rejects positions behind the window's
// floor (the `>= floor` checks in Matches), so they retire naturally as
// they're overwritten or skipped.
//
// Trimming is batched (only once at least dictSize bytes are dead) so
// the amortized cost of the slice copy stays a small fraction of the
// hashing/chasing work already done per byte.
func (mf *matchFinder) Trim(safePos int) {
	floor := safePos - int(mf.dictSize)
	if floor <= 0 {
		return
	}
	drop := floor - mf.base
	if drop < int(mf.dictSize) {
		return
	}
	mf.buf = mf.buf[drop:]
	mf.chain = mf.chain[drop:]
	mf.base += drop
}

func hash2(b []byte) uint32 {
	return (uint32(b[0]) | uint32(b[1])<<8) & (1<<mfHash2Bits - 1)
}

func hash3(b []byte) uint32 {
	h := uint32(b[0])
	h = h*0x9E3779B1 + uint32(b[1])
	h = h*0x9E3779B1 + uint32(b[2])
	return h & (1<<mfHash3Bits - 1)
}

func hash4(b []byte) uint32 {
	h := uint32(b[0])
	h = h*0x9E3779B1 + uint32(b[1])
	h = h*0x9E3779B1 + uint32(b[2])
	h = h*0x9E3779B1 + uint32(b[3])
	return h & (1<<mfHash4Bits - 1)
}

// insert records buf[pos:] (which must have at least 4 bytes, or fewer at
// the very end of input) into the hash tables.
func (mf *matchFinder) insert(pos int) {
	rel := mf.rel(pos)
	rem := len(mf.buf) - rel
	if rem >= 2 {
		h := hash2(mf.buf[rel:])
		mf.hash2[h] = int32(pos)
	}
	if rem >= 3 {
		h := hash3(mf.buf[rel:])
		mf.hash3[h] = int32(pos)
	}
	if rem >= 4 {
		h := hash4(mf.buf[rel:])
		mf.chain[rel] = mf.hash4[h]
		mf.hash4[h] = int32(pos)
	} else {
		mf.chain[rel] = -1
	}
}

// minDistantPos returns the oldest position still inside the dictionary
// window relative to pos.
func (mf *matchFinder) minDistantPos(pos int) int {
	if uint32(pos) <= mf.dictSize {
		return 0
	}
	return pos - int(mf.dictSize)
}

// matchLenAt returns how many bytes match between the logical positions
// a and b, capped at MaxMatchLen and by remaining input.
func (mf *matchFinder) matchLenAt(a, b int) int {
	max := mf.Len() - b
	if lim := mf.Len() - a; lim < max {
		max = lim
	}
	if max > MaxMatchLen {
		max = MaxMatchLen
	}
	ra, rb := mf.rel(a), mf.rel(b)
	n := 0
	for n < max && mf.buf[ra+n] == mf.buf[rb+n] {
		n++
	}
	return n
}

// EnsureInserted inserts hash entries for every position up to (but not
// including) upto that has not yet been inserted. It never decreases the
// insertion cursor. Callers use this to make a position's bytes visible
// to Matches queries before peeking ahead of the symbol they have
// actually committed to encoding (§4.5: the finder's insertion order only
// needs to track "bytes seen so far", independent of how the caller
// chooses to parse them into literals/matches).
func (mf *matchFinder) EnsureInserted(upto int) {
	for mf.pos < upto && mf.pos < mf.Len() {
		mf.insert(mf.pos)
		mf.pos++
	}
}

// Matches returns the match candidates at pos as alternating (length,
// distance) pairs with strictly increasing length, each the nearest
// distance achieving that length, per §4.5. pos must already be inserted
// (EnsureInserted(pos+1) or later). This is a pure query: it does not
// mutate finder state.
func (mf *matchFinder) Matches(pos int) (lengths []int, distances []uint32) {
	rem := mf.Len() - pos
	if rem < 2 {
		return nil, nil
	}
	rel := mf.rel(pos)
	bestLen := 1
	floor := mf.minDistantPos(pos)

	if h := mf.hash2[hash2(mf.buf[rel:])]; h >= 0 && int(h) >= floor && int(h) != pos {
		if n := mf.matchLenAt(int(h), pos); n >= 2 && n > bestLen {
			bestLen = n
			lengths = append(lengths, n)
			distances = append(distances, uint32(pos-int(h)))
		}
	}
	if rem >= 3 {
		if h := mf.hash3[hash3(mf.buf[rel:])]; h >= 0 && int(h) >= floor && int(h) != pos {
			if n := mf.matchLenAt(int(h), pos); n >= 3 && n > bestLen {
				bestLen = n
				lengths = append(lengths, n)
				distances = append(distances, uint32(pos-int(h)))
			}
		}
	}

	if rem >= 4 {
		node := mf.hash4[hash4(mf.buf[rel:])]
		for chainLen := 0; node >= 0 && int(node) >= floor && chainLen < mf.maxChain; chainLen++ {
			if int(node) == pos {
				node = mf.chain[mf.rel(int(node))]
				continue
			}
			n := mf.matchLenAt(int(node), pos)
			if n > bestLen {
				bestLen = n
				lengths = append(lengths, n)
				distances = append(distances, uint32(pos-int(node)))
				if bestLen >= mf.niceLen || bestLen >= MaxMatchLen {
					break
				}
			}
			node = mf.chain[mf.rel(int(node))]
		}
	}
	return lengths, distances
}

// Skip advances the insertion cursor by n positions from its current
// value, updating hashes but never returning matches (§4.5).
func (mf *matchFinder) Skip(n int) {
	mf.EnsureInserted(mf.pos + n)
}

// InsertedThrough returns how many positions have been inserted so far.
func (mf *matchFinder) InsertedThrough() int { return mf.pos }

// ByteAt returns the input byte at logical position p. p must be within
// dictSize of the insertion cursor; EnsureInserted/Matches callers never
// ask further back than that.
func (mf *matchFinder) ByteAt(p int) byte { return mf.buf[mf.rel(p)] }

// Len returns how much input the finder has been given, in logical
// position terms (independent of how much of that input trim has
// already freed).
func (mf *matchFinder) Len() int { return mf.base + len(mf.buf) }
