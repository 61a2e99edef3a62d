// Package memlimit implements the optional memory-tracked allocator shim
// described in §4.3: a caller-supplied allocator plus an optional bounded
// tracker that records current and peak usage and refuses allocations once
// a configured limit would be exceeded.
package memlimit

import (
	"errors"
	"sync"
)

// ErrMem is returned when the underlying allocator cannot satisfy a
// request (out of memory).
var ErrMem = errors.New("memlimit: allocation failed")

// ErrLimit is returned when a tracked allocation would exceed the
// configured limit. Distinct from ErrMem so callers can raise the limit
// and retry (§7).
var ErrLimit = errors.New("memlimit: usage limit exceeded")

// Allocator is the injection point every heap allocation in the core flows
// through, mirroring liblzma's lzma_allocator and the "Allocator injection"
// design note in §9.
type Allocator interface {
	// Alloc returns a byte slice of size nmemb*size, or nil (with
	// ErrMem/ErrLimit) if it cannot be provided.
	Alloc(nmemb, size int) ([]byte, error)
	// Free releases a slice previously returned by Alloc. It is a no-op
	// for allocators that rely on the garbage collector.
	Free(p []byte)
}

// allocation records one live allocation for the tracker's linked list.
type allocation struct {
	size int
	next *allocation
}

// Tracker is a single-threaded bounded allocator. Callers must serialize
// access (§4.3); it must not be shared across concurrent codec handles.
type Tracker struct {
	mu sync.Mutex

	limit int64 // 0 means unlimited
	used  int64
	peak  int64
	live  *allocation
}

// NewTracker returns a Tracker with the given limit in bytes. A limit of 0
// means unbounded (usage is still recorded for Peak/Used).
func NewTracker(limit int64) *Tracker {
	return &Tracker{limit: limit}
}

// SetLimit updates the limit. Lowering it below current usage does not
// fail already-live allocations; it only affects future Alloc calls.
func (t *Tracker) SetLimit(limit int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.limit = limit
}

// Used returns the current tracked usage in bytes.
func (t *Tracker) Used() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.used
}

// Peak returns the highest tracked usage seen so far.
func (t *Tracker) Peak() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.peak
}

// Alloc implements Allocator, accounting the request against the limit
// before delegating to the Go runtime allocator.
func (t *Tracker) Alloc(nmemb, size int) ([]byte, error) {
	if nmemb < 0 || size < 0 {
		return nil, ErrMem
	}
	n := int64(nmemb) * int64(size)
	if n < 0 {
		return nil, ErrMem
	}

	t.mu.Lock()
	if t.limit > 0 && t.used+n > t.limit {
		t.mu.Unlock()
		return nil, ErrLimit
	}
	t.used += n
	if t.used > t.peak {
		t.peak = t.used
	}
	rec := &allocation{size: int(n), next: t.live}
	t.live = rec
	t.mu.Unlock()

	buf := make([]byte, n)
	return buf, nil
}

// Free releases a slice previously returned by Alloc, decrementing tracked
// usage by its originally recorded size.
func (t *Tracker) Free(p []byte) {
	if p == nil {
		return
	}
	n := len(p)

	t.mu.Lock()
	defer t.mu.Unlock()

	// Remove the most recent live record matching this size. The tracker
	// does not need pointer identity — liblzma's tracker keys off the
	// allocation's recorded size the same way, since it never aliases two
	// live blocks of different provenance to the same accounting slot.
	prev := (*allocation)(nil)
	for cur := t.live; cur != nil; cur = cur.next {
		if cur.size == n {
			if prev == nil {
				t.live = cur.next
			} else {
				prev.next = cur.next
			}
			t.used -= int64(n)
			return
		}
		prev = cur
	}
}

// Default is a plain Allocator backed directly by the Go runtime, with no
// limit tracking. Used when the caller supplies no Tracker.
type passthrough struct{}

func (passthrough) Alloc(nmemb, size int) ([]byte, error) {
	if nmemb < 0 || size < 0 {
		return nil, ErrMem
	}
	return make([]byte, nmemb*size), nil
}

func (passthrough) Free([]byte) {}

// Default returns the zero-overhead Allocator used when no tracker is
// configured.
func Default() Allocator { return passthrough{} }
