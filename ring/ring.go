// Package ring provides index arithmetic for power-of-two circular buffers.
// The time-map ring, the sample buffers, and the downsampler filter stages
// all index their storage through this package so that the wraparound logic
// exists, and is tested, in exactly one place.
package ring

// RoundUpPow2 returns the smallest power of two >= n, or 1 for n <= 0.
func RoundUpPow2(n int) int {
	if n <= 0 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	return n + 1
}

// Index performs head/tail index arithmetic for a circular buffer whose
// capacity is a power of two. The zero value is not usable; construct with
// NewIndex.
type Index struct {
	mask int
}

// NewIndex returns index arithmetic for a buffer of the given capacity,
// rounded up to a power of two.
func NewIndex(capacity int) Index {
	return Index{mask: RoundUpPow2(capacity) - 1}
}

// Capacity returns the buffer capacity.
func (x Index) Capacity() int {
	return x.mask + 1
}

// Wrap maps an arbitrary offset onto a valid buffer index.
func (x Index) Wrap(i int) int {
	return i & x.mask
}

// Next returns the index after i.
func (x Index) Next(i int) int {
	return (i + 1) & x.mask
}

// Prev returns the index before i.
func (x Index) Prev(i int) int {
	return (i - 1) & x.mask
}

// Add returns the index n positions after i.
func (x Index) Add(i, n int) int {
	return (i + n) & x.mask
}

// Sub returns the index n positions before i.
func (x Index) Sub(i, n int) int {
	return (i - n) & x.mask
}

// Distance returns the number of occupied slots in [tail, head).
func (x Index) Distance(tail, head int) int {
	return (head - tail) & x.mask
}
