// Package tmap maintains the mapping between device sample counters and UTC
// time. A Ring holds an expiring history of timeq.TimeMap entries and serves
// bidirectional lookups (sample id to timestamp and back). A Filter reduces
// noisy (counter, UTC) observation pairs into a single stable TimeMap
// suitable for insertion into a Ring.
//
// The Ring supports one writer and any number of concurrent readers. Readers
// bracket their lookups with ReaderEnter/ReaderExit. Writer mutations issued
// while any reader is active are not applied in place: they are coalesced
// into a single pending update and applied when the last reader exits, so
// the writer never blocks on a reader critical section and readers never see
// the ring mid-mutation.
package tmap

import (
	"errors"
	"log"
	"sync"

	"github.com/jetperch/joulescope-driver-sub001/ring"
	"github.com/jetperch/joulescope-driver-sub001/timeq"
)

// ErrUnavailable is returned by lookups on an empty Ring: no time map has
// been added yet, so no conversion exists.
var ErrUnavailable = errors.New("tmap: no time map available")

// defaultCapacity is the initial entry allocation when NewRing is given 0.
const defaultCapacity = 128

// Ring is the expiring circular buffer of time-map entries. See the package
// documentation for the concurrency contract. The zero value is not usable;
// construct with NewRing.
type Ring struct {
	mu          sync.Mutex
	idx         ring.Index
	head        int
	tail        int
	refCount    int
	readerCount int

	timeMapUpdatePending bool
	timeMapUpdate        timeq.TimeMap

	tailUpdatePending bool
	tailUpdate        int

	entry []timeq.TimeMap
}

// NewRing allocates a Ring with the given initial entry capacity, rounded up
// to a power of two (128 when 0). The returned Ring has a reference count of
// one; the creator releases it with Release.
func NewRing(initialCapacity int) *Ring {
	if initialCapacity == 0 {
		initialCapacity = defaultCapacity
	}
	idx := ring.NewIndex(initialCapacity)
	return &Ring{
		idx:      idx,
		entry:    make([]timeq.TimeMap, idx.Capacity()),
		refCount: 1,
	}
}

// Retain increments the reference count. The writer calls this before
// handing the Ring to a reader thread.
func (r *Ring) Retain() {
	r.mu.Lock()
	r.refCount++
	r.mu.Unlock()
}

// Release decrements the reference count, discarding the storage when the
// count reaches zero. Releasing a Ring whose count is already zero is a
// programming error: it is logged and ignored.
func (r *Ring) Release() {
	if r == nil {
		return
	}
	r.mu.Lock()
	if r.refCount == 0 {
		r.mu.Unlock()
		log.Printf("tmap: Release called with refCount == 0")
		return
	}
	r.refCount--
	if r.refCount == 0 {
		r.entry = nil
		r.head = 0
		r.tail = 0
	}
	r.mu.Unlock()
}

func (r *Ring) size() int {
	return r.idx.Distance(r.tail, r.head)
}

// Size returns the number of entries currently in the ring.
func (r *Ring) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size()
}

// Clear removes all entries. Writer-side only.
func (r *Ring) Clear() {
	r.mu.Lock()
	r.head = 0
	r.tail = 0
	r.mu.Unlock()
}

// append adds an entry at the head, growing the storage by doubling when
// full. Callers hold r.mu with readerCount == 0.
func (r *Ring) append(tm timeq.TimeMap) {
	sz := r.size()
	if sz+1 >= len(r.entry) {
		oldLen := len(r.entry)
		entries := make([]timeq.TimeMap, oldLen*2)
		copy(entries, r.entry)
		if r.head < r.tail {
			// relink the wrapped portion above the old storage
			for i := 0; i < r.head; i++ {
				entries[i+oldLen] = r.entry[i]
			}
			r.head += oldLen
		}
		r.entry = entries
		r.idx = ring.NewIndex(len(entries))
	} else if sz > 0 {
		prev := r.entry[r.idx.Prev(r.head)]
		if tm.OffsetTime < prev.OffsetTime {
			log.Printf("tmap: add is not monotonically increasing in UTC")
			return
		}
	}
	r.entry[r.head] = tm
	r.head = r.idx.Next(r.head)
}

// Add inserts a new time-map entry. Entries with a non-positive counter rate
// are rejected. An entry identical to the most recent one is dropped. With
// active readers the entry is stored as the single pending update, applied
// on the last ReaderExit; an earlier undelivered pending entry is superseded.
func (r *Ring) Add(tm timeq.TimeMap) {
	if tm.CounterRate <= 0 {
		log.Printf("tmap: invalid counter rate: %g", tm.CounterRate)
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.size() > 0 {
		if tm == r.entry[r.idx.Prev(r.head)] {
			return // deduplicate
		}
	}
	if r.readerCount == 0 {
		r.append(tm)
	} else {
		r.timeMapUpdate = tm
		r.timeMapUpdatePending = true
	}
}

// ExpireBySampleID advances the tail to drop entries that no longer apply to
// any sample at or above sampleID, retaining the entry that covers sampleID.
// Deferred under active readers exactly like Add.
func (r *Ring) ExpireBySampleID(sampleID uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.head == r.tail {
		return // nothing to expire
	}
	tail := r.tail
	for {
		tailNext := r.idx.Next(tail)
		if tailNext == r.head {
			break
		}
		if sampleID < r.entry[tail].OffsetCounter {
			break
		}
		if sampleID > r.entry[tail].OffsetCounter && sampleID < r.entry[tailNext].OffsetCounter {
			break
		}
		tail = tailNext
	}

	if tail != r.tail {
		if r.readerCount == 0 {
			r.tail = tail
		} else {
			r.tailUpdate = tail
			r.tailUpdatePending = true
		}
	}
}

// ReaderEnter begins a reader critical section. Lookups are only valid
// between ReaderEnter and ReaderExit. Sections may nest.
func (r *Ring) ReaderEnter() {
	r.mu.Lock()
	r.readerCount++
	r.mu.Unlock()
}

// ReaderExit ends a reader critical section. On the transition to zero
// active readers, any deferred tail advance and pending time-map entry are
// applied.
func (r *Ring) ReaderExit() {
	r.mu.Lock()
	r.readerCount--
	if r.readerCount == 0 {
		if r.tailUpdatePending {
			r.tailUpdatePending = false
			r.tail = r.tailUpdate
		}
		if r.timeMapUpdatePending {
			r.timeMapUpdatePending = false
			r.append(r.timeMapUpdate)
		}
	}
	r.mu.Unlock()
}

// findEntryBySampleID locates the entry covering sampleID using an
// interpolation search: the initial index is estimated from the endpoint
// counter ratio and refined by walking until the entry brackets the query.
// Queries outside the covered range return the nearest endpoint.
func (r *Ring) findEntryBySampleID(sampleID uint64) *timeq.TimeMap {
	eStart := &r.entry[r.tail]
	eEnd := &r.entry[r.idx.Prev(r.head)]
	if sampleID <= eStart.OffsetCounter {
		return eStart
	} else if sampleID >= eEnd.OffsetCounter {
		return eEnd
	}
	offset := float64(sampleID-eStart.OffsetCounter) /
		float64(eEnd.OffsetCounter-eStart.OffsetCounter)
	idx := r.idx.Add(r.tail, int(float64(r.size())*offset))
	for {
		e := &r.entry[idx]
		if sampleID < e.OffsetCounter {
			idx = r.idx.Prev(idx)
			continue
		}
		idxNext := r.idx.Next(idx)
		if sampleID >= r.entry[idxNext].OffsetCounter {
			idx = idxNext
			continue
		}
		return e
	}
}

func (r *Ring) findEntryByTimestamp(timestamp timeq.Time) *timeq.TimeMap {
	eStart := &r.entry[r.tail]
	eEnd := &r.entry[r.idx.Prev(r.head)]
	if timestamp <= eStart.OffsetTime {
		return eStart
	} else if timestamp >= eEnd.OffsetTime {
		return eEnd
	}
	offset := float64(timestamp-eStart.OffsetTime) /
		float64(eEnd.OffsetTime-eStart.OffsetTime)
	idx := r.idx.Add(r.tail, int(float64(r.size())*offset))
	for {
		e := &r.entry[idx]
		if timestamp < e.OffsetTime {
			idx = r.idx.Prev(idx)
			continue
		}
		idxNext := r.idx.Next(idx)
		if timestamp >= r.entry[idxNext].OffsetTime {
			idx = idxNext
			continue
		}
		return e
	}
}

// SampleIDToTimestamp converts a sample id to UTC time. The caller must hold
// a reader critical section. Returns ErrUnavailable when the ring is empty.
func (r *Ring) SampleIDToTimestamp(sampleID uint64) (timeq.Time, error) {
	if r.size() == 0 {
		return 0, ErrUnavailable
	}
	e := r.findEntryBySampleID(sampleID)
	return e.TimeFromCounter(sampleID), nil
}

// TimestampToSampleID converts a UTC time to the sample id. The caller must
// hold a reader critical section. Returns ErrUnavailable when the ring is
// empty.
func (r *Ring) TimestampToSampleID(timestamp timeq.Time) (uint64, error) {
	if r.size() == 0 {
		return 0, ErrUnavailable
	}
	e := r.findEntryByTimestamp(timestamp)
	return e.CounterFromTime(timestamp), nil
}

// Get returns the index-th entry, 0 being the oldest. The second return
// value is false when index is out of range.
func (r *Ring) Get(index int) (timeq.TimeMap, bool) {
	if index < 0 || index >= r.size() {
		return timeq.TimeMap{}, false
	}
	return r.entry[r.idx.Add(r.tail, index)], true
}
