package lzma

import "github.com/vela-compress/xz/rangecoder"

// numOpts is how many positions one priced sub-window of the normal-mode
// parser may cover before it must backtrack and emit (§4.6).
const numOpts = 4096

const infPrice = 1 << 30

type optKind uint8

const (
	optLiteral optKind = iota
	optShortRep
	optRep
	optMatch
)

// optNode is one slot of the forward dynamic program: the cheapest known
// way to have encoded exactly that many bytes past the window start,
// together with the coder state and rep distances that choice leaves
// behind. Storing the full (state, reps) per node keeps the prices exact
// and lets composite paths (literal then rep0, match then literal then
// rep0) fall out of ordinary per-position relaxation instead of needing
// special-cased two-step candidates.
type optNode struct {
	price  uint32
	prev   int32
	kind   optKind
	repIdx uint8
	dist   uint32 // 1-based match distance, optMatch only
	state  state
	reps   [NumReps]uint32
}

// distPrices caches the distance coder's price queries: a per-slot table
// rebuilt every 128 match emissions and an alignment-bits table rebuilt
// every 16 alignment emissions (§4.6). Distances below numFullDistances
// are fully precomputed; longer ones combine the slot price (which folds
// in the fixed direct-bits cost) with the cached alignment price.
type distPrices struct {
	slot  [numLenToPosStates][1 << numPosSlotBits]uint32
	full  [numLenToPosStates][numFullDistances]uint32
	align [1 << alignBits]uint32

	matchCountdown int
	alignCountdown int
}

func (dp *distPrices) refreshSlots(c *distCoder) {
	for ls := 0; ls < numLenToPosStates; ls++ {
		for s := uint32(0); s < 1<<numPosSlotBits; s++ {
			p := rangecoder.BitTreePrice(c.posSlot[ls], numPosSlotBits, s)
			if s >= endPosModelIndex {
				p += rangecoder.DirectBitsPrice(int(s>>1) - 1 - alignBits)
			}
			dp.slot[ls][s] = p
		}
		for d := uint32(0); d < numFullDistances; d++ {
			s := distSlot(d)
			p := dp.slot[ls][s]
			if s >= startPosModelIndex {
				footerBits := int(s>>1) - 1
				base := (2 | (s & 1)) << uint(footerBits)
				p += bitTreeReversePriceAt(c.specPos, int(base)-int(s)-1, footerBits, d-base)
			}
			dp.full[ls][d] = p
		}
	}
	dp.matchCountdown = 128
}

func (dp *distPrices) refreshAlign(c *distCoder) {
	for a := uint32(0); a < 1<<alignBits; a++ {
		dp.align[a] = rangecoder.BitTreeReversePrice(c.align, alignBits, a)
	}
	dp.alignCountdown = 16
}

// price returns the cached cost of coding the 0-based distance dist0 at
// the 0-based match length lenField.
func (dp *distPrices) price(dist0, lenField uint32) uint32 {
	ls := lenToPosState(lenField)
	if dist0 < numFullDistances {
		return dp.full[ls][dist0]
	}
	return dp.slot[ls][distSlot(dist0)] + dp.align[dist0&(1<<alignBits-1)]
}

// encodeNormal is the normal-mode encoder (§4.6): a forward dynamic
// program over a window of up to numOpts positions. Each reachable
// position stores its best cumulative price and back-pointer; candidates
// at every step are a literal, a short-rep, each viable rep distance at
// every length, and every (length, distance) the match finder reports.
// A match reaching nice-length ends the window immediately. The window
// is then backtracked into the actual symbol sequence and emitted.
func (e *Encoder) encodeNormal() error {
	e.opt = make([]optNode, numOpts+MaxMatchLen+1)
	for e.encPos < e.mf.Len() {
		if e.dp.matchCountdown <= 0 {
			e.dp.refreshSlots(e.dist)
		}
		if e.dp.alignCountdown <= 0 {
			e.dp.refreshAlign(e.dist)
		}
		target := e.fillOptWindow()
		if err := e.emitOptPath(target); err != nil {
			return err
		}
	}
	return nil
}

func (e *Encoder) fillOptWindow() int {
	opt := e.opt
	for i := range opt {
		opt[i].price = infPrice
	}
	opt[0] = optNode{prev: -1, state: e.state, reps: e.reps}

	for cur := 0; ; cur++ {
		pos := e.encPos + cur
		if pos == e.mf.Len() || cur == numOpts {
			return cur
		}
		node := &opt[cur]
		posState := int(uint32(pos) & e.pbMask)
		price0 := node.price + rangecoder.Price(e.ps.isMatch[node.state][posState], 0)
		price1 := node.price + rangecoder.Price(e.ps.isMatch[node.state][posState], 1)
		repChoice := price1 + rangecoder.Price(e.ps.isRep[node.state], 1)
		matchChoice := price1 + rangecoder.Price(e.ps.isRep[node.state], 0)

		b := e.mf.ByteAt(pos)
		var prevByte byte
		if pos > 0 {
			prevByte = e.mf.ByteAt(pos - 1)
		}
		var litPrice uint32
		if node.state.isLiteral() {
			litPrice = e.lit.PriceLiteral(uint32(pos), prevByte, b)
		} else {
			matchByte := e.mf.ByteAt(pos - int(node.reps[0]) - 1)
			litPrice = e.lit.PriceMatchedLiteral(uint32(pos), prevByte, matchByte, b)
		}
		e.relaxOpt(cur+1, price0+litPrice, cur, optLiteral, 0, 0)

		rem := e.mf.Len() - pos
		for k := 0; k < NumReps; k++ {
			l := e.repLenFrom(pos, node.reps[k], rem)
			if k == 0 && l >= 1 {
				srPrice := repChoice +
					rangecoder.Price(e.ps.isRepG0[node.state], 0) +
					rangecoder.Price(e.ps.isRep0Long[node.state][posState], 0)
				e.relaxOpt(cur+1, srPrice, cur, optShortRep, 0, 0)
			}
			if l < MinMatchLen {
				continue
			}
			base := repChoice + e.repSelectorPrice(node.state, posState, k)
			for n := MinMatchLen; n <= l; n++ {
				price := base + e.rlen.Price(uint32(n-MinMatchLen), posState)
				e.relaxOpt(cur+n, price, cur, optRep, uint8(k), 0)
			}
		}

		e.mf.EnsureInserted(pos + 1)
		lengths, dists := e.mf.Matches(pos)
		if len(lengths) == 0 {
			continue
		}
		mainLen := lengths[len(lengths)-1]
		if mainLen >= e.p.NiceLen {
			dist := dists[len(dists)-1]
			lenField := uint32(mainLen - MinMatchLen)
			price := matchChoice + e.mlen.Price(lenField, posState) + e.dp.price(dist-1, lenField)
			e.relaxOpt(cur+mainLen, price, cur, optMatch, 0, dist)
			return cur + mainLen
		}
		i := 0
		for n := MinMatchLen; n <= mainLen; n++ {
			for lengths[i] < n {
				i++
			}
			lenField := uint32(n - MinMatchLen)
			price := matchChoice + e.mlen.Price(lenField, posState) + e.dp.price(dists[i]-1, lenField)
			e.relaxOpt(cur+n, price, cur, optMatch, 0, dists[i])
		}
	}
}

// relaxOpt installs a cheaper path into opt[idx], deriving the coder
// state the choice leaves behind with the same transition rules the
// emitters apply, so backtracked sequences reproduce node states exactly.
func (e *Encoder) relaxOpt(idx int, price uint32, from int, kind optKind, repIdx uint8, dist uint32) {
	n := &e.opt[idx]
	if price >= n.price {
		return
	}
	prev := &e.opt[from]
	n.price = price
	n.prev = int32(from)
	n.kind = kind
	n.repIdx = repIdx
	n.dist = dist
	n.reps = prev.reps
	switch kind {
	case optLiteral:
		n.state = prev.state.afterLiteral()
	case optShortRep:
		n.state = prev.state.afterShortRep()
	case optRep:
		if repIdx > 0 {
			d := n.reps[repIdx]
			copy(n.reps[1:repIdx+1], n.reps[0:repIdx])
			n.reps[0] = d
		}
		n.state = prev.state.afterRep()
	case optMatch:
		n.reps[3], n.reps[2], n.reps[1], n.reps[0] = prev.reps[2], prev.reps[1], prev.reps[0], dist-1
		n.state = prev.state.afterMatch()
	}
}

// repLenFrom returns how far the bytes at pos agree with those dist0+1
// positions back, capped by the remaining input and MaxMatchLen.
func (e *Encoder) repLenFrom(pos int, dist0 uint32, rem int) int {
	d := int(dist0) + 1
	if pos-d < 0 {
		return 0
	}
	max := rem
	if max > MaxMatchLen {
		max = MaxMatchLen
	}
	n := 0
	for n < max && e.mf.ByteAt(pos-d+n) == e.mf.ByteAt(pos+n) {
		n++
	}
	return n
}

// repSelectorPrice prices the isRepG0/isRepG1/isRepG2 (and, for rep0, the
// isRep0Long=1) bits that select rep index k for a long rep.
func (e *Encoder) repSelectorPrice(st state, posState, k int) uint32 {
	if k == 0 {
		return rangecoder.Price(e.ps.isRepG0[st], 0) +
			rangecoder.Price(e.ps.isRep0Long[st][posState], 1)
	}
	p := rangecoder.Price(e.ps.isRepG0[st], 1)
	if k == 1 {
		return p + rangecoder.Price(e.ps.isRepG1[st], 0)
	}
	p += rangecoder.Price(e.ps.isRepG1[st], 1)
	if k == 2 {
		return p + rangecoder.Price(e.ps.isRepG2[st], 0)
	}
	return p + rangecoder.Price(e.ps.isRepG2[st], 1)
}

// emitOptPath backtracks from opt[target] to the window start and emits
// the chosen symbols through the ordinary encode paths, which replay the
// exact state/rep transitions the relaxation predicted.
func (e *Encoder) emitOptPath(target int) error {
	steps := make([]int32, 0, 64)
	for idx := int32(target); idx > 0; idx = e.opt[idx].prev {
		steps = append(steps, idx)
	}
	for i := len(steps) - 1; i >= 0; i-- {
		n := &e.opt[steps[i]]
		length := int(steps[i] - n.prev)
		var err error
		switch n.kind {
		case optLiteral:
			err = e.encodeLiteral()
		case optShortRep:
			err = e.encodeRep(0, 1)
		case optRep:
			err = e.encodeRep(int(n.repIdx), length)
		case optMatch:
			e.dp.matchCountdown--
			if n.dist-1 >= numFullDistances {
				e.dp.alignCountdown--
			}
			err = e.encodeMatch(length, n.dist)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
