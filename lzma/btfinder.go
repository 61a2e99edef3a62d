package lzma

// btFinder is the binary-tree match finder (BT4, §4.5). Like the
// hash-chain finder it keeps 2/3/4-byte hash heads over a sliding buffer,
// but behind the 4-byte head sits a binary search tree of suffixes in
// lexicographic order instead of a simple chain: `son` holds two child
// references per dictionary position, indexed by position modulo the
// cyclic buffer size. Node references are logical positions stored as
// int32, navigated by index — an arena, not a pointer graph.
//
// Searching and inserting are the same tree descent, so match candidates
// for a position are collected when that position is inserted and served
// to Matches from a small ring of recent results. The callers in
// encoder.go and optparser.go always query the position they inserted
// last, so the ring never misses in practice; a miss degrades to "no
// match found", never to a wrong match.
type btFinder struct {
	buf      []byte
	base     int // logical position of buf[0]
	pos      int // insertion cursor
	dictSize uint32
	niceLen  int
	depth    int
	cbSize   int // cyclic buffer size, dictSize+1 so live positions never collide

	hash2 []int32
	hash3 []int32
	hash4 []int32
	son   []int32 // son[2k] = left child of cyclic slot k, son[2k+1] = right

	found    [btFoundKeep]btFound
	foundIdx int
}

// btFoundKeep bounds the ring of per-insertion match results kept for
// Matches queries. Callers query at most the last couple of inserted
// positions (current position plus one byte of lookahead).
const btFoundKeep = 8

type btFound struct {
	pos     int
	lengths []int
	dists   []uint32
}

func newBTFinder(dictSize uint32, niceLen, depth int) *btFinder {
	h4 := hash4Pool.Get().([]int32)
	for i := range h4 {
		h4[i] = -1
	}
	bt := &btFinder{
		dictSize: dictSize,
		niceLen:  niceLen,
		depth:    depth,
		cbSize:   int(dictSize) + 1,
		hash2:    newFilledInt32(1<<mfHash2Bits, -1),
		hash3:    newFilledInt32(1<<mfHash3Bits, -1),
		hash4:    h4,
		son:      make([]int32, 2*(int(dictSize)+1)),
	}
	// son needs no -1 fill: a slot is only ever read after the position
	// owning it has been inserted, which writes both children first.
	for i := range bt.found {
		bt.found[i].pos = -1
	}
	return bt
}

// Close returns the shared 4-byte hash table to the pool.
func (bt *btFinder) Close() {
	if bt.hash4 != nil {
		hash4Pool.Put(bt.hash4)
		bt.hash4 = nil
	}
}

func (bt *btFinder) SetInput(b []byte) {
	bt.buf = append(bt.buf, b...)
}

func (bt *btFinder) rel(pos int) int { return pos - bt.base }

// Trim discards buffered bytes more than dictSize behind safePos, exactly
// as matchFinder.Trim does. The son arena is untouched: it is indexed by
// position modulo cbSize, and stale entries below the window floor are
// rejected on read before their buffer bytes are ever dereferenced.
func (bt *btFinder) Trim(safePos int) {
	floor := safePos - int(bt.dictSize)
	if floor <= 0 {
		return
	}
	drop := floor - bt.base
	if drop < int(bt.dictSize) {
		return
	}
	bt.buf = bt.buf[drop:]
	bt.base += drop
}

func (bt *btFinder) floorFor(pos int) int {
	if f := pos - int(bt.dictSize); f > 0 {
		return f
	}
	return 0
}

func (bt *btFinder) matchLenAt(a, b int) int {
	max := bt.Len() - b
	if max > MaxMatchLen {
		max = MaxMatchLen
	}
	ra, rb := bt.rel(a), bt.rel(b)
	n := 0
	for n < max && bt.buf[ra+n] == bt.buf[rb+n] {
		n++
	}
	return n
}

func (bt *btFinder) EnsureInserted(upto int) {
	for bt.pos < upto && bt.pos < bt.Len() {
		lengths, dists := bt.insert(bt.pos)
		bt.found[bt.foundIdx] = btFound{pos: bt.pos, lengths: lengths, dists: dists}
		bt.foundIdx = (bt.foundIdx + 1) % btFoundKeep
		bt.pos++
	}
}

// Matches serves the candidates collected when pos was inserted. pos must
// already be inserted (EnsureInserted(pos+1) or later).
func (bt *btFinder) Matches(pos int) (lengths []int, distances []uint32) {
	for i := range bt.found {
		if bt.found[i].pos == pos {
			return bt.found[i].lengths, bt.found[i].dists
		}
	}
	return nil, nil
}

func (bt *btFinder) Skip(n int) {
	bt.EnsureInserted(bt.pos + n)
}

func (bt *btFinder) InsertedThrough() int { return bt.pos }

func (bt *btFinder) ByteAt(p int) byte { return bt.buf[bt.rel(p)] }

func (bt *btFinder) Len() int { return bt.base + len(bt.buf) }

// insert adds pos to the hash heads and the suffix tree, returning the
// match candidates discovered during the descent as alternating
// increasing (length, distance) pairs.
func (bt *btFinder) insert(pos int) (lengths []int, dists []uint32) {
	rel := bt.rel(pos)
	rem := len(bt.buf) - rel
	cyc := pos % bt.cbSize
	floor := bt.floorFor(pos)

	if rem < 4 {
		// Tail of the input: too short for the 4-byte tree. The node
		// becomes a leaf; the short-hash heads still serve 2/3-byte
		// matches.
		bt.son[2*cyc] = -1
		bt.son[2*cyc+1] = -1
		bestLen := 1
		if rem >= 2 {
			h := hash2(bt.buf[rel:])
			if c := bt.hash2[h]; c >= 0 && int(c) >= floor && int(c) != pos {
				if n := bt.matchLenAt(int(c), pos); n >= 2 {
					bestLen = n
					lengths = append(lengths, n)
					dists = append(dists, uint32(pos-int(c)))
				}
			}
			bt.hash2[h] = int32(pos)
		}
		if rem >= 3 {
			h := hash3(bt.buf[rel:])
			if c := bt.hash3[h]; c >= 0 && int(c) >= floor && int(c) != pos {
				if n := bt.matchLenAt(int(c), pos); n >= 3 && n > bestLen {
					lengths = append(lengths, n)
					dists = append(dists, uint32(pos-int(c)))
				}
			}
			bt.hash3[h] = int32(pos)
		}
		return lengths, dists
	}

	lenLimit := rem
	if lenLimit > MaxMatchLen {
		lenLimit = MaxMatchLen
	}

	h2v := hash2(bt.buf[rel:])
	h3v := hash3(bt.buf[rel:])
	h4v := hash4(bt.buf[rel:])
	d2 := bt.hash2[h2v]
	d3 := bt.hash3[h3v]
	cur := bt.hash4[h4v]
	bt.hash2[h2v] = int32(pos)
	bt.hash3[h3v] = int32(pos)
	bt.hash4[h4v] = int32(pos)

	bestLen := 1
	if d2 >= 0 && int(d2) >= floor && int(d2) != pos {
		if n := bt.matchLenAt(int(d2), pos); n >= 2 {
			bestLen = n
			lengths = append(lengths, n)
			dists = append(dists, uint32(pos-int(d2)))
		}
	}
	if d3 >= 0 && int(d3) >= floor && int(d3) != pos && d3 != d2 {
		if n := bt.matchLenAt(int(d3), pos); n >= 3 && n > bestLen {
			bestLen = n
			lengths = append(lengths, n)
			dists = append(dists, uint32(pos-int(d3)))
		}
	}

	// Descend the tree rooted at the 4-byte hash head, splitting it into
	// the "smaller than this suffix" frontier (ptr1) and the "greater"
	// frontier (ptr0). len0/len1 track how many bytes each frontier is
	// already known to share with the current suffix, so comparisons
	// resume past the shared prefix.
	ptr0 := 2*cyc + 1
	ptr1 := 2 * cyc
	len0, len1 := 0, 0
	for depth := bt.depth; ; depth-- {
		if cur < 0 || int(cur) < floor || depth == 0 {
			bt.son[ptr0] = -1
			bt.son[ptr1] = -1
			break
		}
		pair := 2 * (int(cur) % bt.cbSize)
		crel := bt.rel(int(cur))
		l := len0
		if len1 < l {
			l = len1
		}
		if bt.buf[crel+l] == bt.buf[rel+l] {
			l++
			for l < lenLimit && bt.buf[crel+l] == bt.buf[rel+l] {
				l++
			}
			if l > bestLen {
				bestLen = l
				lengths = append(lengths, l)
				dists = append(dists, uint32(pos-int(cur)))
			}
			if l == lenLimit {
				// Full-limit match: the node's suffix is a prefix-equal
				// duplicate of ours, so it is spliced out by adopting
				// its children.
				bt.son[ptr1] = bt.son[pair]
				bt.son[ptr0] = bt.son[pair+1]
				break
			}
		}
		if bt.buf[crel+l] < bt.buf[rel+l] {
			bt.son[ptr1] = cur
			ptr1 = pair + 1
			cur = bt.son[ptr1]
			len1 = l
		} else {
			bt.son[ptr0] = cur
			ptr0 = pair
			cur = bt.son[ptr0]
			len0 = l
		}
	}
	return lengths, dists
}
