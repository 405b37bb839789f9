package jsdrv

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/jetperch/joulescope-driver-sub001/downsample"
	"github.com/jetperch/joulescope-driver-sub001/timeq"
)

// SourceState is used to indicate the active/inactive/transition state of data sources
type SourceState int

// Names for the possible values of SourceState
const (
	Inactive SourceState = iota // Source is not active
	Starting                    // Source is in transition to Active state
	Active                      // Source is actively acquiring data
	Stopping                    // Source is in transition to Inactive state
)

// UTCObservation pairs a device sample counter with the UTC time at which
// the host saw that counter value.
type UTCObservation struct {
	Counter uint64
	UTC     timeq.Time
}

// SampleBlock contains one read's worth of raw samples from a source, plus
// any UTC observations that landed during the read. Current and Voltage are
// the same length; GPI may be empty for sources without digital inputs.
type SampleBlock struct {
	sampleID uint64 // id of the first sample in the block
	current  []float32
	voltage  []float32
	gpi      []uint8
	utc      []UTCObservation
	err      error
}

// DataSource is the interface for hardware or simulated data sources that
// produce measurement data.
type DataSource interface {
	Sample() error
	PrepareRun() error
	StartRun() error
	Stop() error
	Running() bool
	GetState() SourceState
	SetStateStarting() error
	SetStateInactive() error
	getNextBlock() chan *SampleBlock
	SampleRate() float64
	TimeSync() *TimeSync
	Processor() *StreamProcessor
	ConfigureDecimation(sampleRateOut uint32, mode downsample.Mode) error
	ProcessBlock(*SampleBlock) error
	RunDoneActivate()
	RunDoneDeactivate()
}

// AnySource implements features common to any object that implements
// DataSource, including the output channels and the abort channel.
type AnySource struct {
	name           string  // what kind of source is this?
	sampleRate     float64 // samples per second
	sampleRateOut  uint32  // downsampled output rate, 0 for no decimation
	decimationMode downsample.Mode
	lastread       time.Time
	processor      *StreamProcessor
	timeSync       *TimeSync
	abortSelf      chan struct{}     // Signal to the core loop of active sources to stop
	nextBlock      chan *SampleBlock // Signal from the core loop that a block is ready to process

	sourceState     SourceState
	sourceStateLock sync.Mutex // guards sourceState
	runDone         sync.WaitGroup
}

// Start will start the given DataSource, including sampling its data.
// Steps are: 1) Sample: a per-source method that determines the sample rate and
// other internal facts that we need to know. 2) PrepareRun: an AnySource method
// to build the processing pipeline and time synchronization. 3) StartRun: a
// per-source method to begin data acquisition. 4) CoreLoop drains blocks until
// graceful stop.
func Start(ds DataSource, queuedRequests chan func()) error {
	if err := ds.SetStateStarting(); err != nil {
		return err
	}

	if err := ds.Sample(); err != nil {
		ds.SetStateInactive()
		return err
	}

	if err := ds.PrepareRun(); err != nil {
		ds.SetStateInactive()
		return err
	}

	ds.RunDoneActivate() // We'll call RunDoneDeactivate when CoreLoop returns.
	if err := ds.StartRun(); err != nil {
		ds.RunDoneDeactivate()
		return err
	}

	go CoreLoop(ds, queuedRequests)
	return nil
}

// CoreLoop has the DataSource produce data until graceful stop.
// This will be a long-running goroutine, as long as a source is active.
func CoreLoop(ds DataSource, queuedRequests chan func()) {
	defer ds.RunDoneDeactivate()
	nextBlock := ds.getNextBlock()

	for {
		// Use select to interleave 2 activities that should NOT be done concurrently:
		// 1. Handle RPC requests to change processing parameters
		// 2. Handle new data and process it
		select {

		case request := <-queuedRequests:
			request()

		case block, ok := <-nextBlock:
			if !ok {
				log.Println("nextBlock channel was closed; stopping the source normally")
				return

			} else if block.err != nil {
				log.Printf("nextBlock receives Error; stopping source: %s\n", block.err.Error())
				return
			}
			if err := ds.ProcessBlock(block); err != nil {
				log.Printf("ProcessBlock returns Error; stopping source: %s\n", err.Error())
				return
			}
			nextBlock = ds.getNextBlock()
		}
	}
}

// RunDoneActivate adds one to ds.runDone, this should only be called in Start
func (ds *AnySource) RunDoneActivate() {
	ds.sourceStateLock.Lock()
	defer ds.sourceStateLock.Unlock()
	ds.sourceState = Active
	ds.runDone.Add(1)
}

// RunDoneDeactivate calls Done on ds.runDone, this should only be called in Start
func (ds *AnySource) RunDoneDeactivate() {
	ds.sourceStateLock.Lock()
	ds.sourceState = Inactive
	ds.runDone.Done()
	ds.sourceStateLock.Unlock()
}

// RunDoneWait returns when the source run is done, i.e., the source is stopped
func (ds *AnySource) RunDoneWait() {
	ds.runDone.Wait()
	if ds.timeSync != nil {
		ds.timeSync.Close()
		ds.timeSync = nil
	}
}

// getNextBlock returns the channel on which data sources send data and any errors.
// More importantly, wait on this channel to wait on the source to have a data block.
func (ds *AnySource) getNextBlock() chan *SampleBlock {
	return ds.nextBlock
}

// Stop tells the data supply to deactivate.
func (ds *AnySource) Stop() error {
	ds.sourceStateLock.Lock()
	switch ds.sourceState {
	case Inactive:
		ds.sourceStateLock.Unlock()
		return fmt.Errorf("AnySource not active, cannot stop")

	case Starting:
		log.Println("warning: Stop called on a Starting source")

	case Active:
		log.Println("AnySource.Stop() was called to stop an active source")
		// This is the normal case: Stop on an Active source

	case Stopping:
		// Ignore Stop if source is already Stopping.
		ds.sourceStateLock.Unlock()
		return nil
	}
	ds.sourceState = Stopping
	closeIfOpen(ds.abortSelf)
	ds.sourceStateLock.Unlock()

	ds.RunDoneWait()
	return nil
}

func closeIfOpen(c chan struct{}) {
	select {
	case <-c:
		log.Println("warning: tried to close a channel twice")
	default:
		close(c)
	}
}

// SampleRate returns the raw sample rate in samples per second.
func (ds *AnySource) SampleRate() float64 {
	return ds.sampleRate
}

// TimeSync returns the source's sample-id-to-UTC converter, valid between
// PrepareRun and the end of the run.
func (ds *AnySource) TimeSync() *TimeSync {
	return ds.timeSync
}

// Processor returns the source's stream processor, valid between PrepareRun
// and the end of the run.
func (ds *AnySource) Processor() *StreamProcessor {
	return ds.processor
}

// ConfigureDecimation sets the output rate and reduction mode applied when
// the source next starts. A zero sampleRateOut disables decimation.
func (ds *AnySource) ConfigureDecimation(sampleRateOut uint32, mode downsample.Mode) error {
	ds.sourceStateLock.Lock()
	defer ds.sourceStateLock.Unlock()
	if ds.sourceState != Inactive {
		return fmt.Errorf("cannot configure decimation on a source that's %v, not Inactive", ds.sourceState)
	}
	ds.sampleRateOut = sampleRateOut
	ds.decimationMode = mode
	return nil
}

// Running tells whether the source is actively running.
func (ds *AnySource) Running() bool {
	return ds.GetState() == Active
}

// GetState returns the sourceState value in a race-free fashion
func (ds *AnySource) GetState() SourceState {
	ds.sourceStateLock.Lock()
	defer ds.sourceStateLock.Unlock()
	return ds.sourceState
}

// SetStateStarting sets the sourceState value to Starting in a race-free fashion
func (ds *AnySource) SetStateStarting() error {
	ds.sourceStateLock.Lock()
	defer ds.sourceStateLock.Unlock()
	if ds.sourceState == Inactive {
		ds.sourceState = Starting
		return nil
	}
	return fmt.Errorf("cannot Start() a source that's %v, not Inactive", ds.sourceState)
}

// SetStateInactive sets the sourceState value to Inactive in a race-free fashion
func (ds *AnySource) SetStateInactive() error {
	ds.sourceStateLock.Lock()
	defer ds.sourceStateLock.Unlock()
	ds.sourceState = Inactive
	return nil
}

// PrepareRun configures an AnySource by initializing all data structures that
// cannot be prepared until we know the sample rate. It's an error for
// ds.sampleRate to be less than 1 sample per second.
func (ds *AnySource) PrepareRun() error {
	if ds.sampleRate < 1 {
		return fmt.Errorf("PrepareRun could not run with sample rate %f (expect >= 1)", ds.sampleRate)
	}
	ds.abortSelf = make(chan struct{})
	ds.nextBlock = make(chan *SampleBlock)

	rateIn := uint32(ds.sampleRate)
	rateOut := ds.sampleRateOut
	if rateOut == 0 {
		rateOut = rateIn
	}

	timeSync, err := NewTimeSync(rateIn, defaultFilterPoints, defaultFilterInterval)
	if err != nil {
		return err
	}

	processor, err := NewStreamProcessor(rateIn, rateOut, ds.decimationMode, timeSync)
	if err != nil {
		timeSync.Close()
		return err
	}

	ds.timeSync = timeSync
	ds.processor = processor
	ds.lastread = time.Now()
	return nil
}

// ProcessBlock runs one sample block through time sync and the stream
// processor.
func (ds *AnySource) ProcessBlock(block *SampleBlock) error {
	for _, obs := range block.utc {
		ds.timeSync.AddObservation(obs.Counter, obs.UTC)
	}
	if err := ds.processor.processBlock(block); err != nil {
		return err
	}
	// retire time maps which no samples still in the pipeline can reference
	if retained := ds.processor.OldestRetainedSampleID(); retained > 0 {
		ds.timeSync.Expire(retained)
	}
	return nil
}

const (
	defaultFilterPoints = 64
	// a shorter interval would let a burst of observations crowd out history
	defaultFilterInterval = 100 * timeq.Millisecond
)
