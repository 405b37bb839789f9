package jsdrv

import (
	"fmt"
	"log"
	"math"
	"math/rand"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/jetperch/joulescope-driver-sub001/timeq"
)

// SimSourceConfig holds the arguments needed to configure a SimSource by RPC.
type SimSourceConfig struct {
	SampleRate    float64 // raw samples per second
	CurrentAmp    float64 // amperes, sine amplitude
	CurrentFreq   float64 // Hz
	Voltage       float64 // volts, DC level
	VoltageRipple float64 // volts, sine amplitude at CurrentFreq
	UTCInterval   float64 // seconds between UTC observations
	MaxJitter     float64 // seconds, max observation delay
}

// SimSource synthesizes a current/voltage sample stream with periodic UTC
// observations, standing in for instrument hardware. The observation UTC
// values are jittered by a random delay in [0, MaxJitter]; the delay is
// always positive, the same asymmetry a real host scheduler produces.
type SimSource struct {
	config     SimSourceConfig
	timeperbuf time.Duration
	blockLen   int
	sampleID   uint64
	startUTC   timeq.Time
	nextObsID  uint64
	obsStride  uint64
	rng        *rand.Rand
	AnySource
}

// NewSimSource creates a new SimSource. Call Configure before starting it.
func NewSimSource() *SimSource {
	ss := new(SimSource)
	ss.name = "SimSource"
	return ss
}

// Configure sets up the synthesis parameters.
func (ss *SimSource) Configure(config *SimSourceConfig) error {
	if ss.GetState() != Inactive {
		return fmt.Errorf("cannot Configure a SimSource that is not Inactive")
	}
	if config.SampleRate < 1 {
		return fmt.Errorf("SimSource sample rate %f invalid (expect >= 1)", config.SampleRate)
	}
	if config.UTCInterval <= 0 {
		config.UTCInterval = 1.0
	}
	if config.MaxJitter < 0 {
		return fmt.Errorf("SimSource max jitter %f invalid (expect >= 0)", config.MaxJitter)
	}
	ss.config = *config
	ss.sampleRate = config.SampleRate

	// 10 ms blocks
	ss.blockLen = int(config.SampleRate / 100)
	if ss.blockLen < 1 {
		ss.blockLen = 1
	}
	ss.timeperbuf = time.Duration(float64(time.Second) * float64(ss.blockLen) / config.SampleRate)
	ss.obsStride = uint64(config.UTCInterval * config.SampleRate)
	if ss.obsStride < 1 {
		ss.obsStride = 1
	}
	log.Printf("SimSource configured:\n%s", spew.Sdump(config))
	return nil
}

// Sample determines key data facts by sampling some initial data.
// It's a no-op for simulated (software) sources.
func (ss *SimSource) Sample() error {
	if ss.sampleRate < 1 {
		return fmt.Errorf("SimSource is not configured")
	}
	return nil
}

// StartRun launches the goroutine that synthesizes sample blocks.
func (ss *SimSource) StartRun() error {
	ss.sampleID = 0
	ss.nextObsID = 0
	ss.startUTC = timeq.Now()
	ss.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	ss.lastread = time.Now()
	go ss.produce()
	return nil
}

func (ss *SimSource) produce() {
	defer close(ss.nextBlock)
	for {
		nextread := ss.lastread.Add(ss.timeperbuf)
		waittime := time.Until(nextread)
		if waittime > 0 {
			select {
			case <-ss.abortSelf:
				return
			case <-time.After(waittime):
			}
		} else {
			select {
			case <-ss.abortSelf:
				return
			default:
			}
		}
		ss.lastread = time.Now()

		block := ss.makeBlock()
		select {
		case <-ss.abortSelf:
			return
		case ss.nextBlock <- block:
		}
	}
}

func (ss *SimSource) makeBlock() *SampleBlock {
	block := &SampleBlock{
		sampleID: ss.sampleID,
		current:  make([]float32, ss.blockLen),
		voltage:  make([]float32, ss.blockLen),
		gpi:      make([]uint8, ss.blockLen),
	}
	w := 2 * math.Pi * ss.config.CurrentFreq / ss.config.SampleRate
	for i := 0; i < ss.blockLen; i++ {
		id := ss.sampleID + uint64(i)
		phase := w * float64(id)
		block.current[i] = float32(ss.config.CurrentAmp * math.Sin(phase))
		block.voltage[i] = float32(ss.config.Voltage + ss.config.VoltageRipple*math.Sin(phase))
		block.gpi[i] = uint8((id >> 10) & 1)

		if id == ss.nextObsID {
			trueUTC := ss.startUTC + timeq.Time(
				math.Round(float64(id)/ss.config.SampleRate*float64(timeq.Second)))
			delay := timeq.FromFloat64(ss.rng.Float64() * ss.config.MaxJitter)
			block.utc = append(block.utc, UTCObservation{
				Counter: id,
				UTC:     trueUTC + delay,
			})
			ss.nextObsID += ss.obsStride
		}
	}
	ss.sampleID += uint64(ss.blockLen)
	return block
}
