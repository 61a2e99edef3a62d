// Package filter implements the filter-chain runtime and the BCJ/delta
// byte-transform filters described in §4.8 and §4.9: reversible
// preprocessing stages composed in front of the LZMA1/LZMA2 codec to
// improve compressibility of executables and structured binary data.
package filter

import "errors"

// Filter ids (§6.1): the values stored in a block header's filter flags.
const (
	IDLZMA2   uint64 = 0x21
	IDDelta   uint64 = 0x03
	IDX86     uint64 = 0x04
	IDPowerPC uint64 = 0x05
	IDIA64    uint64 = 0x06
	IDARM     uint64 = 0x07
	IDARMThumb uint64 = 0x08
	IDSPARC   uint64 = 0x09
)

// MaxFilters is the maximum chain length (§3 "Filter descriptor").
const MaxFilters = 4

var (
	// ErrChainTooLong is returned when more than MaxFilters are chained,
	// and also when the chain is empty.
	ErrChainTooLong = errors.New("filter: chain exceeds maximum of 4 filters")
	// ErrDuplicateFilter is returned when the same filter id appears
	// twice in a chain.
	ErrDuplicateFilter = errors.New("filter: duplicate filter id in chain")
	// ErrMisplacedTailFilter is returned when a "last-only" filter (the
	// LZMA1/LZMA2 codec) appears anywhere but the tail, or a non-tail
	// filter is placed at the tail.
	ErrMisplacedTailFilter = errors.New("filter: tail-only filter must be last, and only the tail may be tail-only")
	// ErrMemoryLimitExceeded is returned when a chain's estimated memory
	// usage exceeds the caller's configured limit.
	ErrMemoryLimitExceeded = errors.New("filter: chain memory estimate exceeds limit")
)

// Stage is one filter in a chain: a reversible, in-place byte transform.
// EncodeBlock/DecodeBlock return how many leading bytes of buf were fully
// converted; any remainder must be represented again (with more trailing
// context) on the next call, which is how BCJ filters avoid splitting an
// instruction across a buffer boundary.
type Stage interface {
	ID() uint64
	// IsLastOnly reports whether this filter may only occupy a chain's
	// tail slot (true only for the LZMA1/LZMA2 codec itself; delta and
	// BCJ filters return false and may appear anywhere else, §4.9).
	IsLastOnly() bool
	EncodeBlock(buf []byte) int
	DecodeBlock(buf []byte) int
	// MemoryEstimate returns approximate bytes of working memory, for
	// the chain-level memory-limit check.
	MemoryEstimate() uint64
}

// MemoryEstimate implementations for the filters in this package: BCJ
// and delta carry only a few hundred bytes of state (the delta ring, a
// handful of position counters), unlike LZMA's multi-megabyte dictionary
// and hash tables.
func (d *Delta) MemoryEstimate() uint64    { return 256 }
func (f *X86) MemoryEstimate() uint64      { return 64 }
func (f *ARM) MemoryEstimate() uint64      { return 64 }
func (f *ARMThumb) MemoryEstimate() uint64 { return 64 }
func (f *PowerPC) MemoryEstimate() uint64  { return 64 }
func (f *SPARC) MemoryEstimate() uint64    { return 64 }
func (f *IA64) MemoryEstimate() uint64     { return 64 }

// Properties returns the filter-flags properties bytes for a stage, as
// stored in a block header's filter-flags list (§6.1): delta carries a
// single "distance-1" byte, BCJ filters carry either zero bytes (start
// offset 0) or a 4-byte little-endian start offset.
func Properties(s Stage) ([]byte, error) {
	switch f := s.(type) {
	case *Delta:
		return []byte{byte(f.Distance - 1)}, nil
	case *X86:
		return startOffsetProps(f.StartOffset), nil
	case *ARM:
		return startOffsetProps(f.StartOffset), nil
	case *ARMThumb:
		return startOffsetProps(f.StartOffset), nil
	case *PowerPC:
		return startOffsetProps(f.StartOffset), nil
	case *SPARC:
		return startOffsetProps(f.StartOffset), nil
	case *IA64:
		return startOffsetProps(f.StartOffset), nil
	default:
		return nil, nil
	}
}

func startOffsetProps(off uint32) []byte {
	if off == 0 {
		return nil
	}
	return []byte{byte(off), byte(off >> 8), byte(off >> 16), byte(off >> 24)}
}

func decodeStartOffsetProps(props []byte) (uint32, error) {
	switch len(props) {
	case 0:
		return 0, nil
	case 4:
		return uint32(props[0]) | uint32(props[1])<<8 | uint32(props[2])<<16 | uint32(props[3])<<24, nil
	default:
		return 0, ErrInvalidFilterProps
	}
}

// ErrInvalidFilterProps is returned when a filter-flags properties field
// has a length this package does not recognize for the given filter id.
var ErrInvalidFilterProps = errors.New("filter: invalid properties length")

// NewFromID constructs the filter with the given id from its wire
// properties bytes (the reverse of Properties), for decoding a block
// header's filter-flags list into live Stage values.
func NewFromID(id uint64, props []byte) (Stage, error) {
	switch id {
	case IDDelta:
		if len(props) != 1 {
			return nil, ErrInvalidFilterProps
		}
		return NewDelta(int(props[0]) + 1)
	case IDX86:
		off, err := decodeStartOffsetProps(props)
		if err != nil {
			return nil, err
		}
		return NewX86(off), nil
	case IDARM:
		off, err := decodeStartOffsetProps(props)
		if err != nil {
			return nil, err
		}
		return NewARM(off), nil
	case IDARMThumb:
		off, err := decodeStartOffsetProps(props)
		if err != nil {
			return nil, err
		}
		return NewARMThumb(off), nil
	case IDPowerPC:
		off, err := decodeStartOffsetProps(props)
		if err != nil {
			return nil, err
		}
		return NewPowerPC(off), nil
	case IDSPARC:
		off, err := decodeStartOffsetProps(props)
		if err != nil {
			return nil, err
		}
		return NewSPARC(off), nil
	case IDIA64:
		off, err := decodeStartOffsetProps(props)
		if err != nil {
			return nil, err
		}
		return NewIA64(off), nil
	default:
		return nil, ErrUnknownFilterID
	}
}

// ErrUnknownFilterID is returned by NewFromID for any id this package
// does not implement (the LZMA2 tail codec is handled separately by the
// block engine, not through this registry).
var ErrUnknownFilterID = errors.New("filter: unknown filter id")

// Chain validates and holds an ordered filter list (§4.9 construction
// rules): exactly one last-only filter, at the tail; no duplicate ids;
// at most MaxFilters entries; total memory estimate within limit.
type Chain struct {
	stages []Stage
}

// NewChain validates stages and returns a Chain. memLimit of 0 means
// unlimited.
func NewChain(stages []Stage, memLimit uint64) (*Chain, error) {
	if len(stages) == 0 || len(stages) > MaxFilters {
		return nil, ErrChainTooLong
	}
	seen := make(map[uint64]bool, len(stages))
	var total uint64
	for i, s := range stages {
		if seen[s.ID()] {
			return nil, ErrDuplicateFilter
		}
		seen[s.ID()] = true
		isTail := i == len(stages)-1
		if s.IsLastOnly() != isTail {
			return nil, ErrMisplacedTailFilter
		}
		total += s.MemoryEstimate()
	}
	if memLimit != 0 && total > memLimit {
		return nil, ErrMemoryLimitExceeded
	}
	return &Chain{stages: stages}, nil
}

// Stages returns the chain's filters in head-to-tail order (the order
// applied during encoding; decoding applies them tail-to-head).
func (c *Chain) Stages() []Stage { return c.stages }

// EncodeChain applies every non-tail filter to buf in head-to-tail order,
// in place, returning the number of leading bytes fully converted by all
// stages (the minimum any stage reported, since a stage can only pass
// along bytes its upstream neighbor actually finished).
func EncodeChain(stages []Stage, buf []byte) int {
	n := len(buf)
	for _, s := range stages {
		if s.IsLastOnly() {
			continue
		}
		if k := s.EncodeBlock(buf[:n]); k < n {
			n = k
		}
	}
	return n
}

// DecodeChain reverses EncodeChain: non-tail filters are applied in
// tail-to-head order.
func DecodeChain(stages []Stage, buf []byte) int {
	n := len(buf)
	for i := len(stages) - 1; i >= 0; i-- {
		s := stages[i]
		if s.IsLastOnly() {
			continue
		}
		if k := s.DecodeBlock(buf[:n]); k < n {
			n = k
		}
	}
	return n
}
