// Package sbuf provides fixed-size circular buffers of float32 samples
// keyed by sample id. Each buffer tracks the id one past its newest sample,
// fills gaps with NaN, skips duplicate ids, and drops the oldest samples on
// overflow. Two buffers holding simultaneously sampled channels can be
// multiplied over their overlapping id range, which is how instantaneous
// power is computed from current and voltage.
package sbuf

import (
	"math"

	"github.com/jetperch/joulescope-driver-sub001/ring"
)

// Length is the buffer capacity in samples. One slot is always reserved to
// distinguish full from empty, so at most Length-1 samples are retained.
const Length = 1024 // must be a power of 2

var idx = ring.NewIndex(Length)

// Buffer is a circular sample buffer. The zero value is not ready for use;
// call Clear first to establish the sample id decimation stride.
type Buffer struct {
	headSampleID     uint64
	head             int
	tail             int
	sampleIDDecimate uint64
	msgSampleID      uint32
	buffer           [Length]float32
}

// Clear empties the buffer and resets the sample id stride to the default
// of 2 ids per sample.
func (b *Buffer) Clear() {
	b.headSampleID = 0
	b.head = 0
	b.tail = 0
	b.sampleIDDecimate = 2
	b.msgSampleID = 0
}

// Len returns the number of samples currently in the buffer.
func (b *Buffer) Len() int {
	return idx.Distance(b.tail, b.head)
}

// HeadSampleID returns the sample id one stride past the newest sample.
func (b *Buffer) HeadSampleID() uint64 {
	return b.headSampleID
}

// TailSampleID returns the sample id of the oldest sample.
func (b *Buffer) TailSampleID() uint64 {
	return b.headSampleID - uint64(b.Len())*b.sampleIDDecimate
}

// MsgSampleID returns the 32-bit truncated id of the first sample produced
// by the most recent Mult.
func (b *Buffer) MsgSampleID() uint32 {
	return b.msgSampleID
}

// SampleIDDecimate returns the sample id stride between adjacent samples.
func (b *Buffer) SampleIDDecimate() uint64 {
	return b.sampleIDDecimate
}

// SetSampleIDDecimate sets the sample id stride. Call on an empty buffer.
func (b *Buffer) SetSampleIDDecimate(decimate uint64) {
	if decimate == 0 {
		decimate = 1
	}
	b.sampleIDDecimate = decimate
}

// Add appends data starting at the given sample id. Samples older than the
// current head are discarded as duplicates, a gap before sampleID is filled
// with NaN, and when the buffer overflows the oldest samples are dropped.
func (b *Buffer) Add(sampleID uint64, data []float32) {
	if b.headSampleID > sampleID {
		dup := (b.headSampleID - sampleID) / b.sampleIDDecimate
		if dup > uint64(len(data)) {
			return
		}
		data = data[dup:]
		sampleID += dup * b.sampleIDDecimate
	} else if b.headSampleID < sampleID {
		skips := (sampleID - b.headSampleID) / b.sampleIDDecimate
		if skips >= Length {
			skips = Length - 1
			b.headSampleID = sampleID - skips*b.sampleIDDecimate
		}
		for b.headSampleID < sampleID {
			b.buffer[b.head] = float32(math.NaN())
			b.head = idx.Next(b.head)
			if b.tail == b.head {
				b.tail = idx.Next(b.tail)
			}
			b.headSampleID += b.sampleIDDecimate
		}
	}
	if len(data) >= Length {
		skip := len(data) - (Length - 1)
		data = data[skip:]
		b.headSampleID += uint64(skip) * b.sampleIDDecimate
	}
	length := len(data)
	b.headSampleID += uint64(length) * b.sampleIDDecimate
	headInc := b.head + length
	if headInc >= Length {
		sz1 := Length - b.head
		copy(b.buffer[b.head:], data[:sz1])
		copy(b.buffer[:length-sz1], data[sz1:])
		b.tail = idx.Next(headInc)
	} else {
		copy(b.buffer[b.head:], data)
		if b.tail > b.head && b.tail <= headInc {
			b.tail = idx.Next(headInc)
		}
	}
	b.head = idx.Wrap(headInc)
}

// Advance consumes samples from the tail until the oldest retained sample
// id reaches sampleID. Earlier ids are ignored.
func (b *Buffer) Advance(sampleID uint64) {
	tailID := b.TailSampleID()
	for b.tail != b.head && tailID < sampleID {
		b.tail = idx.Next(b.tail)
		tailID += b.sampleIDDecimate
	}
}

// At returns the i-th sample counted from the tail. Valid for 0 <= i < Len.
func (b *Buffer) At(i int) float32 {
	return b.buffer[idx.Add(b.tail, i)]
}

// CopyTo copies up to len(dst) samples starting from the tail without
// consuming them and returns the number copied.
func (b *Buffer) CopyTo(dst []float32) int {
	n := b.Len()
	if n > len(dst) {
		n = len(dst)
	}
	for i := 0; i < n; i++ {
		dst[i] = b.buffer[idx.Add(b.tail, i)]
	}
	return n
}

// Mult fills r with the elementwise product of s1 and s2 over their
// overlapping sample id range and consumes both sources. The id of the
// first product is recorded in r's MsgSampleID. Both sources must share the
// same sample id stride.
func Mult(r, s1, s2 *Buffer) {
	s1SampleID := s1.TailSampleID()
	s2SampleID := s2.TailSampleID()
	r.Clear()

	if s1SampleID > s2SampleID {
		s1, s2 = s2, s1
		s1SampleID, s2SampleID = s2SampleID, s1SampleID
	}

	for s1.tail != s1.head && s1SampleID < s2SampleID {
		s1SampleID += s1.sampleIDDecimate
		s1.tail = idx.Next(s1.tail)
	}

	r.sampleIDDecimate = s1.sampleIDDecimate
	r.headSampleID = s1SampleID
	r.msgSampleID = uint32(s1SampleID)
	for s1.tail != s1.head && s2.tail != s2.head {
		r.buffer[r.head] = s1.buffer[s1.tail] * s2.buffer[s2.tail]
		r.head++
		s1.tail = idx.Next(s1.tail)
		s2.tail = idx.Next(s2.tail)
		r.headSampleID += r.sampleIDDecimate
	}
}
