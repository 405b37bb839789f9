// Package downsample reduces a raw sample stream to a lower rate by an
// integer factor whose only prime factors are 2 and 5. In flat-passband
// mode the reduction runs through a cascade of fixed-point FIR decimation
// stages (one per factor) for a flat frequency response; in average mode
// each output is the arithmetic mean of its input block.
//
// Samples are processed as 34Q30 fixed-point integers internally. A missing
// sample is a first-class value: float32 NaN inputs map to a reserved
// fixed-point sentinel that poisons every filter output it touches and then
// flushes through, surfacing as NaN outputs.
//
// A Downsampler is not safe for concurrent use; confine each instance to a
// single channel's producer.
package downsample

import (
	"fmt"
	"math"

	"github.com/jetperch/joulescope-driver-sub001/ring"
)

// Mode selects the reduction algorithm.
type Mode int

const (
	// ModeAverage emits the mean of each decimateFactor-sized input block.
	ModeAverage Mode = iota
	// ModeFlatPassband filters with the FIR cascade before decimating.
	ModeFlatPassband
)

const (
	stageBufferSize = 128 // must be a power of 2, >= 2*len(coef5)/2 per stage
	maxStages       = 14  // enough to go from 2 Msps to 1 sps
)

// q30NaN marks a missing sample in the fixed-point domain. floatToQ30
// saturates ordinary values short of this sentinel, so no representable
// input can collide with it.
const q30NaN = math.MinInt64

var stageIdx = ring.NewIndex(stageBufferSize)

type stage struct {
	taps       []int64
	tapsCenter int
	bufferIdx  int
	factor     int
	count      int
	buffer     [stageBufferSize]int64
}

// Downsampler converts a sample stream at rateIn to rateOut.
type Downsampler struct {
	mode           Mode
	sampleRateIn   uint32
	sampleRateOut  uint32
	decimateFactor uint32
	sampleDelay    int
	sampleCount    uint64
	avg            int64
	stages         []stage
}

// New creates a Downsampler from sampleRateIn to sampleRateOut in Hz. The
// output rate must be a nonzero integer divisor of the input rate, and in
// flat-passband mode the ratio must factor into powers of 2 and 5 with at
// most 14 cascade stages.
func New(sampleRateIn, sampleRateOut uint32, mode Mode) (*Downsampler, error) {
	if sampleRateOut == 0 {
		return nil, fmt.Errorf("downsample: sample rate out cannot be 0")
	}
	if sampleRateIn < sampleRateOut {
		return nil, fmt.Errorf("downsample: sample rate in %d < out %d", sampleRateIn, sampleRateOut)
	}
	decimateFactor := sampleRateIn / sampleRateOut
	if sampleRateOut*decimateFactor != sampleRateIn {
		return nil, fmt.Errorf("downsample: %d is not an integer multiple of %d", sampleRateIn, sampleRateOut)
	}
	if mode != ModeAverage && mode != ModeFlatPassband {
		return nil, fmt.Errorf("downsample: unsupported mode %d", mode)
	}

	d := &Downsampler{
		mode:           mode,
		sampleRateIn:   sampleRateIn,
		sampleRateOut:  sampleRateOut,
		decimateFactor: decimateFactor,
	}
	if mode == ModeAverage {
		return d, nil
	}

	// factor the ratio greedily: halve while even, otherwise divide by 5
	for f := decimateFactor; f > 1; {
		var s stage
		if f&1 == 0 {
			s.taps = coef2[:]
			s.factor = 2
			f >>= 1
		} else {
			q := f / 5
			if f != q*5 {
				return nil, fmt.Errorf("downsample: ratio %d has prime factors other than 2 and 5", decimateFactor)
			}
			s.taps = coef5[:]
			s.factor = 5
			f = q
		}
		s.tapsCenter = len(s.taps) >> 1
		d.sampleDelay += s.tapsCenter
		d.stages = append(d.stages, s)
		if len(d.stages) >= maxStages {
			return nil, fmt.Errorf("downsample: ratio %d needs too many stages", decimateFactor)
		}
	}
	return d, nil
}

// DecimateFactor returns the input-to-output sample rate ratio; a nil
// Downsampler passes samples through at factor 1.
func (d *Downsampler) DecimateFactor() uint32 {
	if d == nil {
		return 1
	}
	return d.decimateFactor
}

// SampleDelay returns the total group delay of the filter cascade in input
// samples of the final stage spacing, for callers aligning multi-channel
// streams. It is 0 in average mode.
func (d *Downsampler) SampleDelay() int {
	if d == nil {
		return 0
	}
	return d.sampleDelay
}

// Clear resets the stream state without reallocating, so the next sample
// realigns and reseeds as if the stream had just started.
func (d *Downsampler) Clear() {
	if d == nil {
		return
	}
	d.sampleCount = 0
	d.avg = 0
	for i := range d.stages {
		f := &d.stages[i]
		f.bufferIdx = 0
		for k := range f.buffer {
			f.buffer[k] = 0
		}
	}
}

// addQ30 feeds one fixed-point sample and reports one output sample when the
// decimation produces one.
func (d *Downsampler) addQ30(sampleID uint64, xIn int64) (int64, bool) {
	if d.mode == ModeAverage {
		if d.sampleCount == 0 {
			if sampleID%uint64(d.decimateFactor) != 0 {
				return 0, false // discard until aligned
			}
			d.avg = 0
		}
		d.avg += xIn
		d.sampleCount++
		if d.sampleCount >= uint64(d.decimateFactor) {
			out := d.avg / int64(d.sampleCount)
			d.sampleCount = 0
			return out, true
		}
		return 0, false
	}

	if d.sampleCount == 0 {
		if sampleID%uint64(d.decimateFactor) != 0 {
			return 0, false // discard until aligned
		}
		// seed every stage buffer with the first sample so the cascade
		// starts at steady state
		for i := range d.stages {
			f := &d.stages[i]
			for k := range f.buffer {
				f.buffer[k] = xIn
			}
			f.count = f.factor
		}
	}
	d.sampleCount++

	xFeed := xIn
	for i := range d.stages {
		f := &d.stages[i]
		bufferIdx := f.bufferIdx
		f.buffer[bufferIdx] = xFeed
		f.bufferIdx = stageIdx.Next(f.bufferIdx)
		f.count--
		if f.count != 0 {
			return 0, false
		}
		f.count = f.factor

		// symmetric-tap convolution centered tapsCenter behind the write
		fwd := stageIdx.Sub(bufferIdx, f.tapsCenter)
		bwd := fwd
		if f.buffer[fwd] == q30NaN {
			xFeed = q30NaN
		} else {
			xFeed = f.taps[f.tapsCenter] * f.buffer[fwd]
			for tap := f.tapsCenter + 1; tap < len(f.taps); tap++ {
				fwd = stageIdx.Next(fwd)
				bwd = stageIdx.Prev(bwd)
				if f.buffer[fwd] == q30NaN || f.buffer[bwd] == q30NaN {
					xFeed = q30NaN
					break
				}
				xFeed += (f.buffer[fwd] + f.buffer[bwd]) * f.taps[tap]
			}
		}
		if xFeed != q30NaN {
			xFeed >>= 23
		}
	}
	return xFeed, true
}

func floatToQ30(x float32) int64 {
	v := float64(x) * float64(int64(1)<<30)
	if math.IsNaN(v) {
		return q30NaN
	}
	// saturate so no value reaches the NaN sentinel
	if v >= math.MaxInt64 {
		return math.MaxInt64
	}
	if v <= -math.MaxInt64 {
		return -math.MaxInt64
	}
	return int64(v)
}

func q30ToFloat(x int64) float32 {
	if x == q30NaN {
		return float32(math.NaN())
	}
	return float32(x) * float32(1.0/float64(int64(1)<<30))
}

// AddF32 feeds one float32 sample tagged with its sample id. When the
// decimation emits an output, it is returned with true. A nil Downsampler
// passes every sample through unchanged.
func (d *Downsampler) AddF32(sampleID uint64, x float32) (float32, bool) {
	if d == nil {
		return x, true
	}
	out, ok := d.addQ30(sampleID, floatToQ30(x))
	if !ok {
		return 0, false
	}
	return q30ToFloat(out), true
}

// AddU8 feeds one uint8 sample (digital/logic channels). The output is
// rounded to nearest and saturated to [0, 255]. The u8 path carries no NaN
// semantics: missing-sample marking is deliberately a float-stream feature
// only.
func (d *Downsampler) AddU8(sampleID uint64, x uint8) (uint8, bool) {
	if d == nil {
		return x, true
	}
	out, ok := d.addQ30(sampleID, int64(x)<<30)
	if !ok {
		return 0, false
	}
	out += 1 << 29 // round to nearest on truncation
	if out < 0 {
		return 0, true
	}
	if v := out >> 30; v <= 255 {
		return uint8(v), true
	}
	return 255, true
}
