package tmap

import (
	"fmt"

	"github.com/jetperch/joulescope-driver-sub001/timeq"
)

type tmfPoint struct {
	counter uint64
	utc     timeq.Time
}

// Filter estimates a stable TimeMap from noisy (counter, UTC) observation
// pairs. Transport and scheduling jitter only ever delay an observed UTC
// relative to true device time, so the filter back-projects each retained
// point to a candidate time origin and keeps the minimum: a lower-envelope
// estimate that is robust to late outliers.
//
// A Filter is owned by a single producer and is not safe for concurrent use.
type Filter struct {
	timeMap     timeq.TimeMap
	counterRate uint32
	interval    timeq.Time
	head        int
	valid       int
	utcPrev     timeq.Time
	points      []tmfPoint
}

// NewFilter creates a Filter for a counter running at counterRate Hz,
// retaining up to points observations, and ignoring observations closer than
// interval to the previously accepted one. The interval must be at least one
// microsecond.
func NewFilter(counterRate uint32, points int, interval timeq.Time) (*Filter, error) {
	if counterRate == 0 {
		return nil, fmt.Errorf("tmap: filter counter rate must be positive")
	}
	if points <= 0 {
		return nil, fmt.Errorf("tmap: filter needs at least one point")
	}
	if interval < timeq.Microsecond {
		return nil, fmt.Errorf("tmap: filter interval %d below minimum %d", interval, timeq.Microsecond)
	}
	return &Filter{
		timeMap:     timeq.TimeMap{CounterRate: float64(counterRate)},
		counterRate: counterRate,
		interval:    interval,
		points:      make([]tmfPoint, points),
	}, nil
}

// Clear discards all observations and resets the estimate, keeping the
// configured counter rate.
func (f *Filter) Clear() {
	if f == nil {
		return
	}
	f.head = 0
	f.valid = 0
	f.utcPrev = 0
	f.timeMap.OffsetTime = 0
	f.timeMap.OffsetCounter = 0
}

// Add records one (counter, UTC) observation and updates the estimate.
// Observations arriving within the debounce interval of the previously
// accepted one are ignored.
func (f *Filter) Add(counter uint64, utc timeq.Time) {
	if f == nil {
		return
	}
	if utc-f.utcPrev < f.interval {
		return
	}

	f.points[f.head] = tmfPoint{counter: counter, utc: utc}
	f.utcPrev = utc
	f.head++
	if f.head >= len(f.points) {
		f.head = 0
	}
	if f.valid < len(f.points) {
		f.valid++
	}

	// recompute the lower envelope over the retained points, pinning the
	// counter offset to the oldest point
	tail := len(f.points) + f.head - f.valid
	if tail >= len(f.points) {
		tail -= len(f.points)
	}
	counterOffset := f.points[tail].counter
	utcEst := f.points[tail].utc
	for tail != f.head {
		counterDelta := f.points[tail].counter - counterOffset
		utcDelta := timeq.CounterToTime(counterDelta, uint64(f.counterRate))
		if est := f.points[tail].utc - utcDelta; est < utcEst {
			utcEst = est
		}
		tail++
		if tail >= len(f.points) {
			tail = 0
		}
	}
	f.timeMap.OffsetCounter = counterOffset
	f.timeMap.OffsetTime = utcEst
}

// Get returns the current estimate. It is nil-safe: an absent filter yields
// the zero TimeMap, which callers use as a null default.
func (f *Filter) Get() timeq.TimeMap {
	if f == nil {
		return timeq.TimeMap{}
	}
	return f.timeMap
}
