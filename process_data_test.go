package jsdrv

import (
	"math"
	"testing"
	"time"

	"github.com/jetperch/joulescope-driver-sub001/downsample"
	"github.com/jetperch/joulescope-driver-sub001/timeq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProcessor(t *testing.T, rateIn, rateOut uint32) (*StreamProcessor, *TimeSync) {
	t.Helper()
	ts, err := NewTimeSync(rateIn, defaultFilterPoints, defaultFilterInterval)
	require.NoError(t, err)
	t.Cleanup(ts.Close)
	p, err := NewStreamProcessor(rateIn, rateOut, downsample.ModeAverage, ts)
	require.NoError(t, err)
	return p, ts
}

func constantBlock(sampleID uint64, n int, current, voltage float32) *SampleBlock {
	b := &SampleBlock{
		sampleID: sampleID,
		current:  make([]float32, n),
		voltage:  make([]float32, n),
		gpi:      make([]uint8, n),
	}
	for i := 0; i < n; i++ {
		b.current[i] = current
		b.voltage[i] = voltage
		b.gpi[i] = 1
	}
	return b
}

// TestProcessBlockAverage pushes one second of constant data through a
// 10x average reduction and checks the output block, the summary record,
// and the charge and energy integrals.
func TestProcessBlockAverage(t *testing.T) {
	p, ts := newTestProcessor(t, 1000, 100)
	assert.EqualValues(t, 10, p.DecimateFactor())

	obsUTC := timeq.FromTime(time.Date(2022, 3, 4, 5, 6, 7, 0, time.UTC))
	ts.AddObservation(0, obsUTC)

	require.NoError(t, p.processBlock(constantBlock(0, 1000, 2.0, 5.0)))

	out := <-p.Blocks
	assert.EqualValues(t, 0, out.SampleID)
	assert.EqualValues(t, 10, out.DecimateFactor)
	require.Len(t, out.Current, 100)
	require.Len(t, out.Voltage, 100)
	require.Len(t, out.GPI, 100)
	for i := range out.Current {
		assert.InDelta(t, 2.0, out.Current[i], 1e-6)
		assert.InDelta(t, 5.0, out.Voltage[i], 1e-6)
		assert.EqualValues(t, 1, out.GPI[i])
	}

	// 100 output samples at the default 1-per-second cadence is one summary
	rec := <-p.Summaries
	assert.EqualValues(t, 0, rec.SampleID)
	assert.EqualValues(t, 100, rec.SampleCount)
	assert.Equal(t, obsUTC, rec.UTC)
	assert.InDelta(t, 2.0, float64(rec.Current.Avg), 1e-6)
	assert.InDelta(t, 5.0, float64(rec.Voltage.Avg), 1e-6)
	assert.InDelta(t, 10.0, float64(rec.Power.Avg), 1e-6)
	assert.InDelta(t, 0.0, float64(rec.Power.Std), 1e-6)
	assert.InDelta(t, 2.0, rec.Charge, 1e-9)
	assert.InDelta(t, 10.0, rec.Energy, 1e-9)

	// charge and energy keep integrating across summaries
	require.NoError(t, p.processBlock(constantBlock(1000, 1000, 4.0, 5.0)))
	<-p.Blocks
	rec = <-p.Summaries
	assert.EqualValues(t, 1000, rec.SampleID)
	assert.Equal(t, obsUTC+timeq.Second, rec.UTC)
	assert.InDelta(t, 4.0, float64(rec.Current.Avg), 1e-6)
	assert.InDelta(t, 20.0, float64(rec.Power.Avg), 1e-6)
	charge, energy := p.ChargeEnergy()
	assert.InDelta(t, 6.0, charge, 1e-9)
	assert.InDelta(t, 30.0, energy, 1e-9)
}

// TestProcessBlockAlignment starts the stream at a sample id that is not a
// multiple of the decimation factor, so samples should be discarded until
// the first aligned id.
func TestProcessBlockAlignment(t *testing.T) {
	p, _ := newTestProcessor(t, 1000, 100)
	require.NoError(t, p.processBlock(constantBlock(5, 100, 1.0, 1.0)))
	out := <-p.Blocks
	assert.EqualValues(t, 10, out.SampleID)
	assert.Len(t, out.Current, 9)
}

func TestProcessBlockMismatchedChannels(t *testing.T) {
	p, _ := newTestProcessor(t, 1000, 100)
	block := constantBlock(0, 100, 1.0, 1.0)
	block.voltage = block.voltage[:99]
	if err := p.processBlock(block); err == nil {
		t.Error("processBlock should reject blocks with mismatched channel lengths")
	}
}

func TestOldestRetainedSampleID(t *testing.T) {
	p, _ := newTestProcessor(t, 1000, 100)
	assert.EqualValues(t, 0, p.OldestRetainedSampleID())

	// current and voltage consume each other exactly, so nothing is retained
	require.NoError(t, p.processBlock(constantBlock(0, 1000, 1.0, 1.0)))
	<-p.Blocks
	<-p.Summaries
	assert.EqualValues(t, 1000, p.OldestRetainedSampleID())
}

func TestNoDecimation(t *testing.T) {
	ts, err := NewTimeSync(1000, defaultFilterPoints, defaultFilterInterval)
	require.NoError(t, err)
	defer ts.Close()
	p, err := NewStreamProcessor(1000, 1000, downsample.ModeFlatPassband, ts)
	require.NoError(t, err)
	assert.EqualValues(t, 1, p.DecimateFactor())

	require.NoError(t, p.processBlock(constantBlock(0, 10, 1.5, 2.0)))
	out := <-p.Blocks
	assert.Len(t, out.Current, 10)
	assert.InDelta(t, 1.5, out.Current[0], 1e-6)
}

func TestConfigureSummaryInterval(t *testing.T) {
	p, _ := newTestProcessor(t, 1000, 100)
	if err := p.ConfigureSummaryInterval(0); err == nil {
		t.Error("a zero summary interval should be rejected")
	}
	require.NoError(t, p.ConfigureSummaryInterval(10))

	require.NoError(t, p.processBlock(constantBlock(0, 1000, 1.0, 1.0)))
	<-p.Blocks
	count := 0
	for {
		select {
		case <-p.Summaries:
			count++
			continue
		default:
		}
		break
	}
	assert.Equal(t, 10, count)
}

func TestNaNGapPropagation(t *testing.T) {
	p, _ := newTestProcessor(t, 1000, 100)

	// a gap between blocks shows up as NaN fill in the alignment buffers,
	// which the statistics must ignore
	require.NoError(t, p.processBlock(constantBlock(0, 500, 2.0, 5.0)))
	require.NoError(t, p.processBlock(constantBlock(600, 400, 2.0, 5.0)))
	<-p.Blocks
	<-p.Blocks
	rec := <-p.Summaries
	assert.EqualValues(t, 100, rec.SampleCount, "gap samples still count toward the summary cadence")
	assert.False(t, math.IsNaN(float64(rec.Power.Avg)))
	assert.InDelta(t, 10.0, float64(rec.Power.Avg), 1e-6)
}
