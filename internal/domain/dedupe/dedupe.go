// Package dedupe keeps linked pairs from being registered twice: Check flags
// pairs that collide in time on the same work item, and Deduper refuses to
// dispatch the same key twice.
package dedupe

import (
	"context"
	"sync"
)

// Deduper records seen keys to ensure at-most-once dispatch.
type Deduper interface {
	// SeenAndRecord atomically checks if key was seen and records it if not.
	// Returns true if key was already seen.
	SeenAndRecord(ctx context.Context, key string) bool

	// Unrecord forgets key so it may be dispatched again, e.g. after the
	// queue rejected it.
	Unrecord(ctx context.Context, key string)

	Size() int64
}

// inMemoryDeduper is a set with FIFO eviction once maxSize keys are held.
// maxSize <= 0 disables eviction.
type inMemoryDeduper struct {
	mu      sync.Mutex
	seen    map[string]uint64 // key -> insertion sequence
	order   []orderEntry      // insertion order, may hold stale entries
	seq     uint64
	maxSize int
}

type orderEntry struct {
	key string
	seq uint64
}

// NewInMemoryDeduper creates a new in-memory deduper.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{
		maxSize: 50_000,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.seen = make(map[string]uint64)
	return d
}

func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[key]; ok {
		return true
	}
	if d.maxSize > 0 {
		for len(d.seen) >= d.maxSize {
			d.evictOldest()
		}
	}
	d.seq++
	d.seen[key] = d.seq
	if d.maxSize > 0 {
		d.order = append(d.order, orderEntry{key: key, seq: d.seq})
		if len(d.order) > 2*d.maxSize {
			d.compact()
		}
	}
	return false
}

// compact drops stale order entries left by Unrecord. Caller holds d.mu.
func (d *inMemoryDeduper) compact() {
	live := d.order[:0]
	for _, e := range d.order {
		if seq, ok := d.seen[e.key]; ok && seq == e.seq {
			live = append(live, e)
		}
	}
	d.order = live
}

func (d *inMemoryDeduper) Unrecord(_ context.Context, key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	// the order entry goes stale and is skipped on eviction
	delete(d.seen, key)
}

// evictOldest drops the earliest live key. Caller holds d.mu.
func (d *inMemoryDeduper) evictOldest() {
	for len(d.order) > 0 {
		head := d.order[0]
		d.order = d.order[1:]
		if seq, ok := d.seen[head.key]; ok && seq == head.seq {
			delete(d.seen, head.key)
			return
		}
	}
}

func (d *inMemoryDeduper) Size() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(len(d.seen))
}
