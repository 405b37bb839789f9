package timeq

import "math"

// TimeMap defines the affine relationship between a device sample counter and
// UTC fixed-point time:
//
//	timestamp = OffsetTime + (counter - OffsetCounter) / CounterRate
//
// CounterRate is the counter frequency in Hz and must be positive for the
// map to be valid.
type TimeMap struct {
	OffsetTime    Time    // UTC time at OffsetCounter
	OffsetCounter uint64  // sample counter value at OffsetTime
	CounterRate   float64 // counter frequency in Hz
}

// TimeFromCounter converts a sample counter value to UTC time using this map,
// rounding to the nearest time increment. Counter values before OffsetCounter
// extrapolate linearly backwards.
func (tm *TimeMap) TimeFromCounter(counter uint64) Time {
	delta := int64(counter - tm.OffsetCounter)
	scale := float64(Second) / tm.CounterRate
	return tm.OffsetTime + Time(math.Round(scale*float64(delta)))
}

// CounterFromTime converts a UTC time to the sample counter value using this
// map, rounding to the nearest counter tick.
func (tm *TimeMap) CounterFromTime(t Time) uint64 {
	dt := t - tm.OffsetTime
	scale := tm.CounterRate / float64(Second)
	return tm.OffsetCounter + uint64(int64(math.Round(scale*float64(dt))))
}
