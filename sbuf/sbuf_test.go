package sbuf

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAddOne(t *testing.T) {
	var b Buffer
	b.Clear()
	b.Add(0, []float32{1.0})
	assert.Equal(t, 1, b.Len())
	assert.Equal(t, float32(1.0), b.buffer[0])
	assert.Equal(t, uint64(2), b.HeadSampleID())
	assert.Equal(t, uint64(0), b.TailSampleID())
}

func TestAddOneSkip(t *testing.T) {
	var b Buffer
	b.Clear()
	b.Add(2, []float32{1.0})
	assert.Equal(t, 2, b.Len())
	assert.True(t, math.IsNaN(float64(b.buffer[0])))
	assert.Equal(t, float32(1.0), b.buffer[1])
	assert.Equal(t, uint64(4), b.HeadSampleID())
}

func TestAddOneDuplicate(t *testing.T) {
	var b Buffer
	b.Clear()
	b.Add(0, []float32{1.0})
	b.Add(0, []float32{1.0})
	assert.Equal(t, 1, b.Len())
	assert.Equal(t, float32(1.0), b.buffer[0])
	assert.Equal(t, uint64(2), b.HeadSampleID())
}

func TestAddWrap(t *testing.T) {
	var b Buffer
	b.Clear()
	data := make([]float32, Length/2)
	k := 0
	for j := 0; j < 3; j++ {
		sampleID := uint64(k * 2)
		for i := range data {
			data[i] = float32(k)
			k++
		}
		b.Add(sampleID, data)
	}
	assert.Equal(t, Length-1, b.Len())
	p := b.head
	for i := 0; i < Length-1; i++ {
		p = idx.Prev(p)
		k--
		assert.Equal(t, float32(k), b.buffer[p])
	}
}

func TestMult(t *testing.T) {
	var r, s1, s2 Buffer
	s1.Clear()
	s2.Clear()
	r.Clear()
	f1 := make([]float32, Length/2)
	f2 := make([]float32, Length/2)
	for i := range f1 {
		f1[i] = float32(i)
		f2[i] = float32(2*i + 1)
	}
	s1.Add(0, f1)
	s2.Add(0, f2)
	Mult(&r, &s1, &s2)
	assert.Equal(t, Length/2, r.Len())
	assert.Equal(t, 0, s1.Len())
	assert.Equal(t, 0, s2.Len())
	for i := 0; i < Length/2; i++ {
		assert.Equal(t, float32(i+2*i*i), r.buffer[i])
	}
	assert.Equal(t, uint32(0), r.MsgSampleID())
}

func TestMultNoOverlap(t *testing.T) {
	var r, s1, s2 Buffer
	s1.Clear()
	s2.Clear()
	r.Clear()
	s1.Add(0, []float32{10.0})
	s2.Add(s2.SampleIDDecimate()*(Length-1), []float32{11.0})
	Mult(&r, &s1, &s2)
	assert.Equal(t, 0, r.Len())
}

func TestMultSomeOverlap(t *testing.T) {
	var r, s1, s2 Buffer
	s1.Clear()
	s2.Clear()
	r.Clear()
	f1 := []float32{10.0, 11.0}
	f2 := []float32{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	s1.Add(10008, f1)
	s2.Add(10000, f2)
	assert.Equal(t, Length-1, s1.Len())
	assert.Equal(t, Length-1, s2.Len())
	Mult(&r, &s1, &s2)
	assert.Equal(t, Length-5, r.Len())
	assert.Equal(t, uint32(7974), r.MsgSampleID())
	assert.Equal(t, float32(40.0), r.buffer[Length-7])
	assert.Equal(t, float32(55.0), r.buffer[Length-6])
}

func TestAdvance(t *testing.T) {
	var b Buffer
	b.Clear()
	data := make([]float32, 10)
	for i := range data {
		data[i] = float32(i)
	}
	b.Add(0, data)
	b.Advance(6)
	assert.Equal(t, 7, b.Len())
	assert.Equal(t, uint64(6), b.TailSampleID())
	assert.Equal(t, float32(3.0), b.At(0))
	// earlier ids are ignored
	b.Advance(2)
	assert.Equal(t, 7, b.Len())
}

func TestCopyTo(t *testing.T) {
	var b Buffer
	b.Clear()
	b.Add(0, []float32{1, 2, 3})
	dst := make([]float32, 8)
	n := b.CopyTo(dst)
	assert.Equal(t, 3, n)
	assert.Equal(t, []float32{1, 2, 3}, dst[:3])
	assert.Equal(t, 3, b.Len())
}

func TestOversizeAddKeepsNewest(t *testing.T) {
	var b Buffer
	b.Clear()
	data := make([]float32, Length+100)
	for i := range data {
		data[i] = float32(i)
	}
	b.Add(0, data)
	assert.Equal(t, Length-1, b.Len())
	assert.Equal(t, uint64(2*(Length+100)), b.HeadSampleID())
	assert.Equal(t, float32(101), b.At(0))
	assert.Equal(t, float32(Length+99), b.At(Length-2))
}

func TestSetSampleIDDecimate(t *testing.T) {
	var b Buffer
	b.Clear()
	assert.Equal(t, uint64(2), b.SampleIDDecimate())
	b.SetSampleIDDecimate(1)
	b.Add(0, []float32{1.0})
	assert.Equal(t, uint64(1), b.HeadSampleID())
	b.SetSampleIDDecimate(0)
	assert.Equal(t, uint64(1), b.SampleIDDecimate())
}
