// Package getbytes converts numeric slices to []byte views without copying.
// The publishers use it to put sample payloads on the wire; the views share
// memory with the source slice and carry the host byte order (little endian
// on every supported platform).
package getbytes

import (
	"unsafe"
)

// FromSliceUint8 convert a []uint8 to []byte using unsafe
func FromSliceUint8(d []uint8) []byte {
	if len(d) == 0 {
		return []byte{}
	}
	outlength := uintptr(len(d)) * unsafe.Sizeof(d[0]) / unsafe.Sizeof(byte(0))
	return unsafe.Slice((*byte)(unsafe.Pointer(&d[0])), outlength)
}

// FromSliceUint32 convert a []uint32 to []byte using unsafe
func FromSliceUint32(d []uint32) []byte {
	if len(d) == 0 {
		return []byte{}
	}
	outlength := uintptr(len(d)) * unsafe.Sizeof(d[0]) / unsafe.Sizeof(byte(0))
	return unsafe.Slice((*byte)(unsafe.Pointer(&d[0])), outlength)
}

// FromSliceUint64 convert a []uint64 to []byte using unsafe
func FromSliceUint64(d []uint64) []byte {
	if len(d) == 0 {
		return []byte{}
	}
	outlength := uintptr(len(d)) * unsafe.Sizeof(d[0]) / unsafe.Sizeof(byte(0))
	return unsafe.Slice((*byte)(unsafe.Pointer(&d[0])), outlength)
}

// FromSliceInt64 convert a []int64 to []byte using unsafe
func FromSliceInt64(d []int64) []byte {
	if len(d) == 0 {
		return []byte{}
	}
	outlength := uintptr(len(d)) * unsafe.Sizeof(d[0]) / unsafe.Sizeof(byte(0))
	return unsafe.Slice((*byte)(unsafe.Pointer(&d[0])), outlength)
}

// FromSliceFloat32 convert a []float32 to []byte using unsafe
func FromSliceFloat32(d []float32) []byte {
	if len(d) == 0 {
		return []byte{}
	}
	outlength := uintptr(len(d)) * unsafe.Sizeof(d[0]) / unsafe.Sizeof(byte(0))
	return unsafe.Slice((*byte)(unsafe.Pointer(&d[0])), outlength)
}

// FromSliceFloat64 convert a []float64 to []byte using unsafe
func FromSliceFloat64(d []float64) []byte {
	if len(d) == 0 {
		return []byte{}
	}
	outlength := uintptr(len(d)) * unsafe.Sizeof(d[0]) / unsafe.Sizeof(byte(0))
	return unsafe.Slice((*byte)(unsafe.Pointer(&d[0])), outlength)
}

// FromUint32 converts a uint32 to []byte using unsafe
func FromUint32(d uint32) []byte {
	return FromSliceUint32([]uint32{d})
}

// FromUint64 converts a uint64 to []byte using unsafe
func FromUint64(d uint64) []byte {
	return FromSliceUint64([]uint64{d})
}

// FromInt64 converts a int64 to []byte using unsafe
func FromInt64(d int64) []byte {
	return FromSliceInt64([]int64{d})
}

// FromFloat64 converts a float64 to []byte using unsafe
func FromFloat64(d float64) []byte {
	return FromSliceFloat64([]float64{d})
}
