package jsdrv

import (
	"github.com/jetperch/joulescope-driver-sub001/timeq"
	"github.com/jetperch/joulescope-driver-sub001/tmap"
)

// TimeSync converts between device sample ids and UTC time for one source.
// It owns the writer side of a time-map ring: each (counter, UTC) observation
// from the instrument passes through a minimum-envelope filter that rejects
// host scheduling jitter, and the filtered estimate is appended to the ring.
// Consumers hold a retained reference to the ring and query it inside
// ReaderEnter/ReaderExit sections; the two query helpers here do that
// bracketing for callers that only need a single conversion.
//
// AddObservation and Expire must come from a single goroutine, normally the
// source's core loop. The queries may come from any goroutine.
type TimeSync struct {
	filter *tmap.Filter
	ring   *tmap.Ring
}

// NewTimeSync creates a TimeSync for a source producing counterRate samples
// per second. points and interval configure the observation filter: the
// estimate is the minimum over the last points observations, and observations
// closer together than interval are ignored.
func NewTimeSync(counterRate uint32, points int, interval timeq.Time) (*TimeSync, error) {
	filter, err := tmap.NewFilter(counterRate, points, interval)
	if err != nil {
		return nil, err
	}
	return &TimeSync{
		filter: filter,
		ring:   tmap.NewRing(0),
	}, nil
}

// AddObservation feeds one (sample counter, UTC) observation. The UTC value
// arrives late by the host's scheduling jitter, never early.
func (ts *TimeSync) AddObservation(counter uint64, utc timeq.Time) {
	ts.filter.Add(counter, utc)
	ts.ring.Add(ts.filter.Get())
}

// Expire drops time-map history no longer needed to convert sample ids at or
// after sampleID.
func (ts *TimeSync) Expire(sampleID uint64) {
	ts.ring.ExpireBySampleID(sampleID)
}

// TimestampAt converts a sample id to UTC. Returns tmap.ErrUnavailable
// before the first observation has been recorded.
func (ts *TimeSync) TimestampAt(sampleID uint64) (timeq.Time, error) {
	ts.ring.ReaderEnter()
	defer ts.ring.ReaderExit()
	return ts.ring.SampleIDToTimestamp(sampleID)
}

// SampleIDAt converts a UTC time to a sample id. Returns tmap.ErrUnavailable
// before the first observation has been recorded.
func (ts *TimeSync) SampleIDAt(t timeq.Time) (uint64, error) {
	ts.ring.ReaderEnter()
	defer ts.ring.ReaderExit()
	return ts.ring.TimestampToSampleID(t)
}

// Ring retains and returns the underlying time-map ring. The caller must
// Release it when done.
func (ts *TimeSync) Ring() *tmap.Ring {
	ts.ring.Retain()
	return ts.ring
}

// Size returns the number of time-map entries currently retained.
func (ts *TimeSync) Size() int {
	return ts.ring.Size()
}

// Clear discards the filter state and all ring history, as on a stream
// restart where the device counter resets.
func (ts *TimeSync) Clear() {
	ts.filter.Clear()
	ts.ring.Clear()
}

// Close releases the writer's reference to the ring. Consumers that retained
// the ring keep it alive until their own Release.
func (ts *TimeSync) Close() {
	ts.ring.Release()
}
