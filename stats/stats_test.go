package stats

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/stat"
)

func TestEmpty(t *testing.T) {
	a := New()
	assert.Equal(t, uint64(0), a.Count())
	assert.Equal(t, 0.0, a.Var())
	assert.Equal(t, math.MaxFloat64, a.Min())
	assert.Equal(t, -math.MaxFloat64, a.Max())
}

func TestAddAgainstGonum(t *testing.T) {
	x := []float64{1.25, -0.5, 3.0, 2.0, 2.0, -7.5, 0.125, 4.5}
	a := New()
	for _, v := range x {
		a.Add(v)
	}
	assert.Equal(t, uint64(len(x)), a.Count())
	assert.InDelta(t, stat.Mean(x, nil), a.Mean(), 1e-12)
	assert.InDelta(t, stat.Variance(x, nil), a.Var(), 1e-12)
	assert.Equal(t, -7.5, a.Min())
	assert.Equal(t, 4.5, a.Max())
}

func TestVarSingleSample(t *testing.T) {
	a := New()
	a.Add(42.0)
	assert.Equal(t, 0.0, a.Var())
	assert.Equal(t, 0.0, a.Std())
}

// TestCombine splits one data set arbitrarily between two accumulators and
// requires the combined result to match statistics over the full set.
func TestCombine(t *testing.T) {
	x := []float64{0.5, 1.5, -2.25, 8.0, 3.5, 3.5, -1.0, 0.0, 12.5, -0.75}
	splits := []int{0, 1, 3, 5, 9, 10}
	for _, n := range splits {
		a := New()
		b := New()
		for _, v := range x[:n] {
			a.Add(v)
		}
		for _, v := range x[n:] {
			b.Add(v)
		}
		c := New()
		c.Combine(a, b)
		assert.Equal(t, uint64(len(x)), c.Count())
		assert.InDelta(t, stat.Mean(x, nil), c.Mean(), 1e-10, "split at %d", n)
		assert.InDelta(t, stat.Variance(x, nil), c.Var(), 1e-10, "split at %d", n)
		assert.Equal(t, -2.25, c.Min())
		assert.Equal(t, 12.5, c.Max())
	}
}

func TestCombineBothEmpty(t *testing.T) {
	c := New()
	c.Add(1.0) // stale state that Combine must clear
	c.Combine(New(), New())
	assert.Equal(t, uint64(0), c.Count())
}

func TestComputeF64(t *testing.T) {
	x := []float64{2.0, 4.0, 4.0, 4.0, 5.0, 5.0, 7.0, 9.0}
	a := New()
	a.ComputeF64(x)
	assert.InDelta(t, 5.0, a.Mean(), 1e-12)
	assert.InDelta(t, stat.Variance(x, nil), a.Var(), 1e-12)
	assert.Equal(t, 2.0, a.Min())
	assert.Equal(t, 9.0, a.Max())

	a.ComputeF64(nil)
	assert.Equal(t, uint64(0), a.Count())
}

func TestComputeF32MatchesOnline(t *testing.T) {
	x32 := []float32{1.0, 2.5, -3.0, 0.5, 10.0}
	a := New()
	a.ComputeF32(x32)
	b := New()
	for _, v := range x32 {
		b.Add(float64(v))
	}
	assert.InDelta(t, b.Mean(), a.Mean(), 1e-9)
	assert.InDelta(t, b.Var(), a.Var(), 1e-9)
	assert.Equal(t, b.Min(), a.Min())
	assert.Equal(t, b.Max(), a.Max())
}

func TestAdjustK(t *testing.T) {
	a := New()
	for _, v := range []float64{1, 2, 3, 4} {
		a.Add(v)
	}
	v0 := a.Var()
	a.AdjustK(8)
	assert.Equal(t, uint64(8), a.Count())
	// s doubled with k, so s/k is preserved
	assert.InDelta(t, v0*3.0/7.0*2.0, a.Var(), 1e-12)
}

func TestInvalidate(t *testing.T) {
	a := New()
	a.Add(1.0)
	a.Invalidate()
	assert.True(t, math.IsNaN(a.Mean()))
	assert.True(t, math.IsNaN(a.Min()))
	assert.True(t, math.IsNaN(a.Max()))
}

func TestEntryRoundTrip(t *testing.T) {
	a := New()
	for _, v := range []float64{1.0, 2.0, 3.0, 4.0, 5.0} {
		a.Add(v)
	}
	e := a.ToEntry()
	assert.InDelta(t, 3.0, float64(e.Avg), 1e-6)
	assert.InDelta(t, a.Std(), float64(e.Std), 1e-6)

	b := New()
	b.FromEntry(e, a.Count())
	assert.InDelta(t, a.Mean(), b.Mean(), 1e-6)
	assert.InDelta(t, a.Min(), b.Min(), 1e-6)
	assert.InDelta(t, a.Max(), b.Max(), 1e-6)
	// s was reconstructed as std²·k, so variance matches within the
	// k/(k-1) quantization of the float32 std
	assert.InDelta(t, a.Var(), b.Var()*float64(a.Count()-1)/float64(a.Count()), 1e-5)
}

func TestEntrySingleSampleStd(t *testing.T) {
	a := New()
	a.Add(7.0)
	e := a.ToEntry()
	assert.Equal(t, float32(0), e.Std)
}
