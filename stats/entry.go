package stats

import "math"

// SummaryEntry is the fixed-layout record published for one reduction
// window. The single-precision fields keep the summary stream compact; the
// sample count travels separately in the enclosing record header.
type SummaryEntry struct {
	Avg float32 // mean over the window
	Std float32 // standard deviation over the window
	Min float32 // minimum value over the window
	Max float32 // maximum value over the window
}

// FromEntry loads the accumulator from a summary entry with the given sample
// count, reconstructing s from the reported standard deviation.
func (a *Accumulator) FromEntry(e SummaryEntry, k uint64) {
	a.k = k
	a.mean = float64(e.Avg)
	a.s = float64(e.Std) * float64(e.Std) * float64(k)
	a.min = float64(e.Min)
	a.max = float64(e.Max)
}

// ToEntry converts the accumulator to a summary entry.
func (a *Accumulator) ToEntry() SummaryEntry {
	e := SummaryEntry{
		Avg: float32(a.mean),
		Min: float32(a.min),
		Max: float32(a.max),
	}
	if a.k > 1 {
		e.Std = float32(math.Sqrt(a.s / float64(a.k-1)))
	}
	return e
}
