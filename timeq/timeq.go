// Package timeq implements the driver's 64-bit fixed-point time
// representation. The value is 34Q30: the upper 34 bits hold whole seconds
// and the lower 30 bits hold fractional seconds, so 1<<30 represents exactly
// one second. The representation gives approximately 1 ns resolution over a
// range of ±272 years, which a float64 second count cannot match.
//
// The epoch is 2018-01-01T00:00:00Z, which is 1514764800 seconds after the
// UNIX epoch.
package timeq

import (
	"fmt"
	"math"
	"time"
)

// Q is the number of fractional bits in the fixed-point representation.
const Q = 30

// Fixed-point durations.
const (
	Second      Time = 1 << Q
	Millisecond Time = (Second + 500) / 1000
	// Microsecond is approximate: 240 ppm error.
	Microsecond Time = (Second + 500000) / 1000000
	// Nanosecond is approximate: 6.7% error.
	Nanosecond Time = 1
	Minute     Time = Second * 60
	Hour       Time = Minute * 60
	Day        Time = Hour * 24
	Week       Time = Day * 7
	Year       Time = Day * 365 // 365-day year
	Month      Time = Year / 12
)

// Max and Min are the time representation limits.
const (
	Max Time = math.MaxInt64
	Min Time = math.MinInt64
)

// EpochUnixOffsetSeconds translates between this epoch (2018-01-01T00:00:00Z)
// and the UNIX epoch.
const EpochUnixOffsetSeconds int64 = 1514764800

const fractMask = Second - 1

// Time is the 34Q30 fixed-point time in seconds, relative to the epoch.
// It is bit-compatible with the instrument's wire representation.
type Time int64

// FromFloat64 converts seconds to fixed-point time, rounding half away from
// zero.
func FromFloat64(x float64) Time {
	negate := false
	if x < 0 {
		negate = true
		x = -x
	}
	c := Time(x*float64(Second) + 0.5)
	if negate {
		return -c
	}
	return c
}

// ToFloat64 converts fixed-point time to seconds. Note that float64 has only
// 52 bits of precision, so the result is truncated for very small deltas far
// from the epoch.
func ToFloat64(t Time) float64 {
	return float64(t) * (1.0 / float64(Second))
}

// FromFloat32 converts seconds to fixed-point time, rounding half away from
// zero.
func FromFloat32(x float32) Time {
	negate := false
	if x < 0 {
		negate = true
		x = -x
	}
	c := Time(x*float32(Second) + 0.5)
	if negate {
		return -c
	}
	return c
}

// ToFloat32 converts fixed-point time to seconds with float32 precision.
func ToFloat32(t Time) float32 {
	return float32(t) * (1.0 / float32(Second))
}

// ToCounter converts time to counter ticks at frequency z Hz, rounded to
// nearest.
func ToCounter(t Time, z uint64) int64 {
	negate := false
	if t < 0 {
		negate = true
		t = -t
	}
	c := ((uint64(t) &^ uint64(fractMask)) >> (Q - 1)) * z
	fract := (uint64(t) & uint64(fractMask)) << 1
	c += ((fract * z) >> Q) + 1
	c >>= 1
	r := int64(c)
	if negate {
		r = -r
	}
	return r
}

// ToCounterRZero converts time to counter ticks at frequency z Hz, rounded
// toward zero.
func ToCounterRZero(t Time, z uint64) int64 {
	negate := false
	if t < 0 {
		negate = true
		t = -t
	}
	c := (uint64(t) >> Q) * z
	c += (uint64(t&fractMask) * z) >> Q
	r := int64(c)
	if negate {
		r = -r
	}
	return r
}

// ToCounterRInf converts time to counter ticks at frequency z Hz, rounded
// away from zero.
func ToCounterRInf(t Time, z uint64) int64 {
	negate := false
	if t < 0 {
		negate = true
		t = -t
	}
	t += Second - 1
	c := (uint64(t) >> Q) * z
	c += (uint64(t&fractMask) * z) >> Q
	r := int64(c)
	if negate {
		r = -r
	}
	return r
}

// CounterToTime converts x counter ticks at frequency z Hz to fixed-point
// time.
func CounterToTime(x, z uint64) Time {
	// compute (x << Q) / z without overflowing the intermediate
	seconds := x / z
	remainder := x - seconds*z
	fract := (remainder << Q) / z
	return Time((seconds << Q) + fract)
}

// ToSeconds converts time to whole seconds, rounded to nearest.
func ToSeconds(t Time) int64 { return ToCounter(t, 1) }

// ToMilliseconds converts time to milliseconds, rounded to nearest.
func ToMilliseconds(t Time) int64 { return ToCounter(t, 1000) }

// ToMicroseconds converts time to microseconds, rounded to nearest.
func ToMicroseconds(t Time) int64 { return ToCounter(t, 1000000) }

// ToNanoseconds converts time to nanoseconds, rounded to nearest.
func ToNanoseconds(t Time) int64 { return ToCounter(t, 1000000000) }

// SecondsToTime converts whole seconds to fixed-point time.
func SecondsToTime(x int64) Time { return Time(x) << Q }

// MillisecondsToTime converts milliseconds to fixed-point time.
func MillisecondsToTime(x int64) Time { return signedCounterToTime(x, 1000) }

// MicrosecondsToTime converts microseconds to fixed-point time.
func MicrosecondsToTime(x int64) Time { return signedCounterToTime(x, 1000000) }

// NanosecondsToTime converts nanoseconds to fixed-point time.
func NanosecondsToTime(x int64) Time { return signedCounterToTime(x, 1000000000) }

func signedCounterToTime(x int64, z uint64) Time {
	if x < 0 {
		return -CounterToTime(uint64(-x), z)
	}
	return CounterToTime(uint64(x), z)
}

// Now returns the current wall-clock time as fixed-point time.
func Now() Time {
	return FromTime(time.Now())
}

// FromTime converts a time.Time to fixed-point time.
func FromTime(t time.Time) Time {
	sec := t.Unix() - EpochUnixOffsetSeconds
	return Time(sec)<<Q + signedCounterToTime(int64(t.Nanosecond()), 1000000000)
}

// Abs returns the absolute value of t.
func Abs(t Time) Time {
	if t < 0 {
		return -t
	}
	return t
}

// MinT returns the smaller of a and b.
func MinT(a, b Time) Time {
	if a < b {
		return a
	}
	return b
}

// MaxT returns the larger of a and b.
func MaxT(a, b Time) Time {
	if a > b {
		return a
	}
	return b
}

// StringLength is the length of the string produced by ToStr.
const StringLength = 26

// ToStr converts t to an ISO 8601 string, always formatted as
// YYYY-MM-DDTHH:MM:SS.ffffff (StringLength characters) in the UTC proleptic
// Gregorian calendar with no leap-second adjustment.
func ToStr(t Time) string {
	microseconds := ToMicroseconds(t)
	seconds := microseconds / 1000000
	days := seconds / (60 * 60 * 24)
	// civil-from-days with the epoch shifted to 2018-01-01
	days += 719468 + 17532
	era := days / 146097
	doe := days - era*146097
	yoe := (doe - doe/1460 + doe/36524 - doe/146096) / 365 // [0, 399]
	y := yoe + era*400
	doy := doe - (365*yoe + yoe/4 - yoe/100) // [0, 365]
	mp := (5*doy + 2) / 153                  // [0, 11]
	d := doy - (153*mp+2)/5 + 1              // [1, 31]
	m := mp + 3
	if mp >= 10 {
		m = mp - 9
	}
	if m <= 2 {
		y++
	}

	us := microseconds - seconds*1000000
	ss := seconds % (60 * 60 * 24)
	hh := ss / (60 * 60)
	ss -= hh * (60 * 60)
	mm := ss / 60
	ss -= mm * 60
	return fmt.Sprintf("%04d-%02d-%02dT%02d:%02d:%02d.%06d", y, m, d, hh, mm, ss, us)
}
