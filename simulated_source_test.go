package jsdrv

import (
	"math"
	"testing"

	"github.com/jetperch/joulescope-driver-sub001/timeq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimSourceConfigure(t *testing.T) {
	ss := NewSimSource()
	if err := ss.Sample(); err == nil {
		t.Error("Sample should fail before Configure")
	}
	if err := ss.Configure(&SimSourceConfig{SampleRate: 0}); err == nil {
		t.Error("Configure should reject a zero sample rate")
	}
	if err := ss.Configure(&SimSourceConfig{SampleRate: 1000, MaxJitter: -0.1}); err == nil {
		t.Error("Configure should reject a negative jitter bound")
	}

	require.NoError(t, ss.Configure(&SimSourceConfig{SampleRate: 1000, Voltage: 3.3}))
	require.NoError(t, ss.Sample())
	assert.Equal(t, 1000.0, ss.SampleRate())
	assert.Equal(t, 10, ss.blockLen)
	assert.EqualValues(t, 1000, ss.obsStride, "UTC interval should default to 1 second")

	// very slow sources still produce at least 1 sample per block
	require.NoError(t, ss.Configure(&SimSourceConfig{SampleRate: 50}))
	assert.Equal(t, 1, ss.blockLen)

	require.NoError(t, ss.SetStateStarting())
	if err := ss.Configure(&SimSourceConfig{SampleRate: 1000}); err == nil {
		t.Error("Configure should fail on a source that is not Inactive")
	}
	require.NoError(t, ss.SetStateInactive())
}

func TestSimSourceMakeBlock(t *testing.T) {
	ss := NewSimSource()
	require.NoError(t, ss.Configure(&SimSourceConfig{
		SampleRate:  1000,
		CurrentAmp:  1.0,
		CurrentFreq: 250.0, // period of 4 samples
		Voltage:     5.0,
		UTCInterval: 0.005,
	}))
	require.NoError(t, ss.PrepareRun())
	require.NoError(t, ss.StartRun())
	defer func() {
		close(ss.abortSelf)
		<-ss.nextBlock
	}()

	block := <-ss.nextBlock
	require.NoError(t, block.err)
	assert.EqualValues(t, 0, block.sampleID)
	require.Len(t, block.current, 10)

	for i, want := range []float64{0, 1, 0, -1} {
		assert.InDelta(t, want, float64(block.current[i]), 1e-6, "sample %d", i)
		assert.InDelta(t, 5.0, float64(block.voltage[i]), 1e-6)
	}

	// observations at samples 0 and 5
	require.Len(t, block.utc, 2)
	assert.EqualValues(t, 0, block.utc[0].Counter)
	assert.EqualValues(t, 5, block.utc[1].Counter)
	assert.Equal(t, ss.startUTC, block.utc[0].UTC, "zero jitter should give exact observations")
}

func TestSimSourceJitterBounds(t *testing.T) {
	ss := NewSimSource()
	const maxJitter = 0.010
	require.NoError(t, ss.Configure(&SimSourceConfig{
		SampleRate:  10000,
		Voltage:     1.0,
		UTCInterval: 0.001,
		MaxJitter:   maxJitter,
	}))
	require.NoError(t, ss.PrepareRun())
	require.NoError(t, ss.StartRun())
	defer func() {
		close(ss.abortSelf)
		<-ss.nextBlock
	}()

	block := <-ss.nextBlock
	require.NotEmpty(t, block.utc)
	for _, obs := range block.utc {
		trueUTC := ss.startUTC + timeqScale(obs.Counter, 10000)
		delay := float64(obs.UTC-trueUTC) / float64(1<<30)
		if delay < 0 || delay > maxJitter+1e-9 {
			t.Errorf("observation at counter %d delayed %f s, want within [0, %f]",
				obs.Counter, delay, maxJitter)
		}
	}
}

// timeqScale converts a sample counter to stream time the way the simulated
// source stamps its observations.
func timeqScale(counter uint64, rate float64) timeq.Time {
	return timeq.Time(math.Round(float64(counter) / rate * float64(1<<30)))
}
