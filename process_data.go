package jsdrv

import (
	"fmt"
	"math"
	"sync"

	"github.com/jetperch/joulescope-driver-sub001/downsample"
	"github.com/jetperch/joulescope-driver-sub001/sbuf"
	"github.com/jetperch/joulescope-driver-sub001/stats"
	"github.com/jetperch/joulescope-driver-sub001/timeq"
)

// OutputBlock carries downsampled samples ready for publishing. SampleID is
// the raw sample id of the first sample; adjacent samples are DecimateFactor
// raw ids apart.
type OutputBlock struct {
	SampleID       uint64
	DecimateFactor uint32
	Current        []float32
	Voltage        []float32
	GPI            []uint8
}

// SummaryRecord aggregates one reporting interval: statistics over the
// downsampled current, voltage, and power streams, plus the running charge
// and energy integrals since the source started.
type SummaryRecord struct {
	SampleID    uint64
	UTC         timeq.Time
	SampleCount uint64
	Current     stats.SummaryEntry
	Voltage     stats.SummaryEntry
	Power       stats.SummaryEntry
	Charge      float64
	Energy      float64
}

// StreamProcessor contains all the state needed to downsample, align, and
// summarize one source's sample stream. Current and voltage each run through
// their own downsampler, meet in sample-id-aligned circular buffers where
// power is computed as their product, and per-interval statistics are
// accumulated over all three streams.
type StreamProcessor struct {
	sampleRateIn   uint32
	sampleRateOut  uint32
	decimateFactor uint32
	iDown          *downsample.Downsampler
	vDown          *downsample.Downsampler
	gDown          *downsample.Downsampler
	iBuf           sbuf.Buffer
	vBuf           sbuf.Buffer
	pBuf           sbuf.Buffer
	iStats         *stats.Accumulator
	vStats         *stats.Accumulator
	pStats         *stats.Accumulator
	charge         float64 // ampere seconds since start
	energy         float64 // joules since start
	summaryEvery   uint64  // power samples per summary record
	summaryCount   uint64
	summaryStartID uint64
	haveSummaryID  bool
	nextRawID      uint64
	timeSync       *TimeSync
	capture        *NpyCapture

	// Blocks and Summaries receive the processor's output. Sends never
	// block; records are dropped when a consumer falls behind.
	Blocks    chan *OutputBlock
	Summaries chan *SummaryRecord

	changeMutex sync.Mutex // Don't change key data without locking this.
}

// NewStreamProcessor creates and initializes a new StreamProcessor reducing
// rateIn samples per second to rateOut. A summary record is produced once
// per second of stream time.
func NewStreamProcessor(rateIn, rateOut uint32, mode downsample.Mode, timeSync *TimeSync) (*StreamProcessor, error) {
	p := &StreamProcessor{
		sampleRateIn:  rateIn,
		sampleRateOut: rateOut,
		iStats:        stats.New(),
		vStats:        stats.New(),
		pStats:        stats.New(),
		summaryEvery:  uint64(rateOut),
		timeSync:      timeSync,
		Blocks:        make(chan *OutputBlock, 16),
		Summaries:     make(chan *SummaryRecord, 16),
	}
	if rateIn != rateOut {
		var err error
		if p.iDown, err = downsample.New(rateIn, rateOut, mode); err != nil {
			return nil, fmt.Errorf("current downsampler: %w", err)
		}
		if p.vDown, err = downsample.New(rateIn, rateOut, mode); err != nil {
			return nil, fmt.Errorf("voltage downsampler: %w", err)
		}
		// digital inputs always use block averaging, a lowpass filter
		// would smear edges across many samples
		if p.gDown, err = downsample.New(rateIn, rateOut, downsample.ModeAverage); err != nil {
			return nil, fmt.Errorf("gpi downsampler: %w", err)
		}
	}
	p.decimateFactor = p.iDown.DecimateFactor()
	p.iBuf.Clear()
	p.vBuf.Clear()
	p.pBuf.Clear()
	p.iBuf.SetSampleIDDecimate(uint64(p.decimateFactor))
	p.vBuf.SetSampleIDDecimate(uint64(p.decimateFactor))
	return p, nil
}

// DecimateFactor returns the raw-to-output sample rate ratio.
func (p *StreamProcessor) DecimateFactor() uint32 {
	return p.decimateFactor
}

// ConfigureSummaryInterval sets the number of output samples aggregated into
// each summary record. The default is one second of stream time.
func (p *StreamProcessor) ConfigureSummaryInterval(outputSamples uint64) error {
	if outputSamples == 0 {
		return fmt.Errorf("summary interval must be at least 1 output sample")
	}
	p.changeMutex.Lock()
	defer p.changeMutex.Unlock()
	p.summaryEvery = outputSamples
	return nil
}

// SetCapture directs the downsampled current stream into an .npy capture.
// Pass nil to stop capturing.
func (p *StreamProcessor) SetCapture(c *NpyCapture) {
	p.changeMutex.Lock()
	defer p.changeMutex.Unlock()
	p.capture = c
}

// ChargeEnergy returns the running charge (coulombs) and energy (joules)
// integrals since the source started.
func (p *StreamProcessor) ChargeEnergy() (float64, float64) {
	p.changeMutex.Lock()
	defer p.changeMutex.Unlock()
	return p.charge, p.energy
}

// OldestRetainedSampleID returns the raw sample id of the oldest sample still
// held in the alignment buffers, or 0 before any sample has been processed.
func (p *StreamProcessor) OldestRetainedSampleID() uint64 {
	p.changeMutex.Lock()
	defer p.changeMutex.Unlock()
	if p.iBuf.Len() == 0 && p.vBuf.Len() == 0 {
		return p.nextRawID
	}
	oldest := p.iBuf.TailSampleID()
	if p.vBuf.Len() > 0 && (p.iBuf.Len() == 0 || p.vBuf.TailSampleID() < oldest) {
		oldest = p.vBuf.TailSampleID()
	}
	return oldest
}

func (p *StreamProcessor) processBlock(block *SampleBlock) error {
	p.changeMutex.Lock()
	defer p.changeMutex.Unlock()

	if len(block.current) != len(block.voltage) {
		return fmt.Errorf("sample block has %d current but %d voltage samples",
			len(block.current), len(block.voltage))
	}

	out := &OutputBlock{
		DecimateFactor: p.decimateFactor,
	}
	haveOutID := false
	for i := range block.current {
		id := block.sampleID + uint64(i)
		iOut, iOk := p.iDown.AddF32(id, block.current[i])
		vOut, vOk := p.vDown.AddF32(id, block.voltage[i])
		if iOk != vOk {
			return fmt.Errorf("current and voltage downsamplers diverged at sample %d", id)
		}
		if !iOk {
			continue
		}
		outID := id + 1 - uint64(p.decimateFactor)
		if !haveOutID {
			out.SampleID = outID
			haveOutID = true
		}
		out.Current = append(out.Current, iOut)
		out.Voltage = append(out.Voltage, vOut)
		p.iBuf.Add(outID, []float32{iOut})
		p.vBuf.Add(outID, []float32{vOut})
	}
	for i := range block.gpi {
		id := block.sampleID + uint64(i)
		if g, ok := p.gDown.AddU8(id, block.gpi[i]); ok {
			out.GPI = append(out.GPI, g)
		}
	}
	p.nextRawID = block.sampleID + uint64(len(block.current))

	p.updateStats(out.Current, out.Voltage)
	if p.capture != nil {
		if err := p.capture.Append(out.Current); err != nil {
			ProblemLogger.Printf("npy capture failed, stopping capture: %v", err)
			p.capture = nil
		}
	}
	if haveOutID {
		select {
		case p.Blocks <- out:
		default:
			ProblemLogger.Println("output block dropped: no consumer keeping up")
		}
	}
	return nil
}

// updateStats folds this block's downsampled samples into the running
// accumulators, computes power over the aligned overlap, and emits summary
// records at the configured cadence. The power cadence drives summaries
// since it lags the per-channel streams by the alignment overlap.
func (p *StreamProcessor) updateStats(current, voltage []float32) {
	dt := float64(p.decimateFactor) / float64(p.sampleRateIn)

	for i := range current {
		if iw := float64(current[i]); !math.IsNaN(iw) {
			p.iStats.Add(iw)
			p.charge += iw * dt
		}
		if vw := float64(voltage[i]); !math.IsNaN(vw) {
			p.vStats.Add(vw)
		}
	}

	// Mult consumes the overlapping region of both channel buffers;
	// whatever one channel has that the other does not yet stays behind
	// for the next block.
	sbuf.Mult(&p.pBuf, &p.iBuf, &p.vBuf)
	n := p.pBuf.Len()
	startID := p.pBuf.TailSampleID()
	for i := 0; i < n; i++ {
		id := startID + uint64(i)*uint64(p.decimateFactor)
		if !p.haveSummaryID {
			p.summaryStartID = id
			p.haveSummaryID = true
		}
		if pw := float64(p.pBuf.At(i)); !math.IsNaN(pw) {
			p.pStats.Add(pw)
			p.energy += pw * dt
		}
		p.summaryCount++
		if p.summaryCount >= p.summaryEvery {
			p.emitSummary(id + uint64(p.decimateFactor))
		}
	}
}

func (p *StreamProcessor) emitSummary(nextID uint64) {
	rec := &SummaryRecord{
		SampleID:    p.summaryStartID,
		SampleCount: p.summaryCount,
		Current:     p.iStats.ToEntry(),
		Voltage:     p.vStats.ToEntry(),
		Power:       p.pStats.ToEntry(),
		Charge:      p.charge,
		Energy:      p.energy,
	}
	if utc, err := p.timeSync.TimestampAt(p.summaryStartID); err == nil {
		rec.UTC = utc
	}
	select {
	case p.Summaries <- rec:
	default:
		ProblemLogger.Println("summary record dropped: no consumer keeping up")
	}
	p.iStats.Reset()
	p.vStats.Reset()
	p.pStats.Reset()
	p.summaryCount = 0
	p.summaryStartID = nextID
}
