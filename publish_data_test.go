package jsdrv

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/jetperch/joulescope-driver-sub001/stats"
	"github.com/jetperch/joulescope-driver-sub001/timeq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlockHeaderLayout(t *testing.T) {
	block := &OutputBlock{
		SampleID:       0x1122334455667788,
		DecimateFactor: 10,
		Current:        make([]float32, 100),
		Voltage:        make([]float32, 100),
		GPI:            make([]uint8, 100),
	}
	h := blockHeader(block)
	require.Len(t, h, 24)
	assert.Equal(t, blockFormatVersion, binary.LittleEndian.Uint32(h[0:]))
	assert.EqualValues(t, 10, binary.LittleEndian.Uint32(h[4:]))
	assert.EqualValues(t, 0x1122334455667788, binary.LittleEndian.Uint64(h[8:]))
	assert.EqualValues(t, 100, binary.LittleEndian.Uint32(h[16:]))
	assert.EqualValues(t, 100, binary.LittleEndian.Uint32(h[20:]))
}

func TestSummaryPacketLayout(t *testing.T) {
	rec := &SummaryRecord{
		SampleID:    4000,
		UTC:         timeq.Time(0x0123456789abcdef),
		SampleCount: 1000,
		Current:     stats.SummaryEntry{Avg: 0.5, Std: 0.01, Min: 0.4, Max: 0.6},
		Voltage:     stats.SummaryEntry{Avg: 3.3, Std: 0.0, Min: 3.3, Max: 3.3},
		Power:       stats.SummaryEntry{Avg: 1.65, Std: 0.033, Min: 1.32, Max: 1.98},
		Charge:      0.5,
		Energy:      1.65,
	}
	b := summaryPacket(rec)
	require.Len(t, b, 96)
	assert.Equal(t, blockFormatVersion, binary.LittleEndian.Uint32(b[0:]))
	assert.EqualValues(t, 0, binary.LittleEndian.Uint32(b[4:]))
	assert.EqualValues(t, 4000, binary.LittleEndian.Uint64(b[8:]))
	assert.EqualValues(t, 0x0123456789abcdef, int64(binary.LittleEndian.Uint64(b[16:])))
	assert.EqualValues(t, 1000, binary.LittleEndian.Uint64(b[24:]))

	f32 := func(off int) float32 {
		return math.Float32frombits(binary.LittleEndian.Uint32(b[off:]))
	}
	assert.Equal(t, float32(0.5), f32(32))  // current mean
	assert.Equal(t, float32(0.01), f32(36)) // current std
	assert.Equal(t, float32(0.4), f32(40))  // current min
	assert.Equal(t, float32(0.6), f32(44))  // current max
	assert.Equal(t, float32(3.3), f32(48))  // voltage mean
	assert.Equal(t, float32(1.65), f32(64)) // power mean
	assert.Equal(t, 0.5, math.Float64frombits(binary.LittleEndian.Uint64(b[80:])))
	assert.Equal(t, 1.65, math.Float64frombits(binary.LittleEndian.Uint64(b[88:])))
}
