// Package stats implements single-pass streaming statistics over sample
// windows: mean, variance, minimum, and maximum. Accumulators from disjoint
// windows combine without revisiting the raw samples, which is how the
// driver merges per-block summaries into longer reporting intervals.
//
// An Accumulator is not safe for concurrent use; confine each instance to
// one producer.
package stats

import "math"

// Accumulator holds the running statistics state. The variance state s is
// the Welford sum of squared deviations from the running mean, so
// s/(k-1) is the Bessel-corrected sample variance.
type Accumulator struct {
	k    uint64
	mean float64
	s    float64
	min  float64
	max  float64
}

// New returns a reset Accumulator.
func New() *Accumulator {
	a := &Accumulator{}
	a.Reset()
	return a
}

// Reset returns the accumulator to the empty state.
func (a *Accumulator) Reset() {
	a.k = 0
	a.mean = 0.0
	a.s = 0.0
	a.min = math.MaxFloat64
	a.max = -math.MaxFloat64
}

// Invalidate marks the statistics as invalid (all NaN) while preserving the
// sample count.
func (a *Accumulator) Invalidate() {
	a.mean = math.NaN()
	a.s = math.NaN()
	a.min = math.NaN()
	a.max = math.NaN()
}

// Add accumulates one sample using Welford's online update.
func (a *Accumulator) Add(x float64) {
	a.k++
	meanOld := a.mean
	a.mean += (x - meanOld) / float64(a.k)
	a.s += (x - meanOld) * (x - a.mean)
	if x < a.min {
		a.min = x
	}
	if x > a.max {
		a.max = x
	}
}

// Count returns the number of accumulated samples.
func (a *Accumulator) Count() uint64 { return a.k }

// Mean returns the running mean.
func (a *Accumulator) Mean() float64 { return a.mean }

// Min returns the minimum accumulated sample.
func (a *Accumulator) Min() float64 { return a.min }

// Max returns the maximum accumulated sample.
func (a *Accumulator) Max() float64 { return a.max }

// Var returns the Bessel-corrected sample variance, or 0 when fewer than two
// samples have been accumulated.
func (a *Accumulator) Var() float64 {
	if a.k <= 1 {
		return 0.0
	}
	return a.s / float64(a.k-1)
}

// Std returns the Bessel-corrected sample standard deviation.
func (a *Accumulator) Std() float64 {
	return math.Sqrt(a.Var())
}

// AdjustK rescales the accumulator to a new sample count, scaling s
// proportionally. This is an approximation used when merging summary records
// whose producer reported a different sample count; it assumes the deviation
// sum redistributes uniformly.
func (a *Accumulator) AdjustK(k uint64) {
	if a.k > 0 {
		a.s /= float64(a.k)
		a.s *= float64(k)
	}
	a.k = k
}

// Copy overwrites a with the contents of src.
func (a *Accumulator) Copy(src *Accumulator) {
	*a = *src
}

// Combine merges the statistics of x and y into a, as if every sample seen
// by either had been added to a single accumulator. Either side may be
// empty. The merge uses the parallel-variance form: each side's s is
// corrected by k·d² where d is its mean's offset from the combined mean.
func (a *Accumulator) Combine(x, y *Accumulator) {
	kt := x.k + y.k
	switch {
	case kt == 0:
		a.Reset()
	case x.k == 0:
		a.Copy(y)
	case y.k == 0:
		a.Copy(x)
	default:
		f1 := float64(x.k) / float64(kt)
		meanNew := f1*x.mean + (1.0-f1)*y.mean
		d1 := x.mean - meanNew
		d2 := y.mean - meanNew
		a.s = (x.s + float64(x.k)*d1*d1) + (y.s + float64(y.k)*d2*d2)
		a.mean = meanNew
		a.min = math.Min(x.min, y.min)
		a.max = math.Max(x.max, y.max)
		a.k = kt
	}
}

// ComputeF32 replaces the accumulator contents with batch statistics over x
// using the two-pass algorithm (mean first, then deviations), which is more
// numerically stable than the online update for bulk arrays.
func (a *Accumulator) ComputeF32(x []float32) {
	if len(x) == 0 {
		a.Reset()
		return
	}
	vMean := 0.0
	vMin := float32(math.MaxFloat32)
	vMax := float32(-math.MaxFloat32)
	for _, v := range x {
		vMean += float64(v)
		if v < vMin {
			vMin = v
		}
		if v > vMax {
			vMax = v
		}
	}
	vMean /= float64(len(x))
	vVar := 0.0
	for _, v := range x {
		m := float64(v) - vMean
		vVar += m * m
	}
	a.k = uint64(len(x))
	a.mean = vMean
	a.s = vVar
	a.min = float64(vMin)
	a.max = float64(vMax)
}

// ComputeF64 replaces the accumulator contents with two-pass batch
// statistics over x.
func (a *Accumulator) ComputeF64(x []float64) {
	if len(x) == 0 {
		a.Reset()
		return
	}
	vMean := 0.0
	vMin := math.MaxFloat64
	vMax := -math.MaxFloat64
	for _, v := range x {
		vMean += v
		if v < vMin {
			vMin = v
		}
		if v > vMax {
			vMax = v
		}
	}
	vMean /= float64(len(x))
	vVar := 0.0
	for _, v := range x {
		m := v - vMean
		vVar += m * m
	}
	a.k = uint64(len(x))
	a.mean = vMean
	a.s = vVar
	a.min = vMin
	a.max = vMax
}
