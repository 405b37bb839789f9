package jsdrv

import (
	"fmt"
	"log"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/jetperch/joulescope-driver-sub001/downsample"
	"github.com/jetperch/joulescope-driver-sub001/internal/rundb"
	"github.com/jetperch/joulescope-driver-sub001/timeq"
)

// SourceControl is the sub-server that handles configuration and operation
// of the driver's data sources.
type SourceControl struct {
	sim          *SimSource
	activeSource DataSource

	queuedRequests chan func()
	publishAbort   chan struct{}
	status         ServerStatus
	clientUpdates  chan<- ClientUpdate
	db             *rundb.Connection
	currentRun     *rundb.RunMessage
}

// ServerStatus is the status that SourceControl reports to clients.
type ServerStatus struct {
	Running        bool
	SourceName     string
	SampleRate     float64
	SampleRateOut  uint32
	DecimateFactor uint32
	TimeMapEntries int
}

// DecimationConfig holds the RPC arguments for ConfigureDecimation.
type DecimationConfig struct {
	SampleRateOut uint32
	AverageMode   bool
}

// TimeQueryArgs holds the RPC arguments for the two time conversions.
type TimeQueryArgs struct {
	SampleID uint64
	UTC      int64 // 34Q30 fixed point
}

// TimeQueryReply is the RPC reply for the two time conversions.
type TimeQueryReply struct {
	SampleID uint64
	UTC      int64
	ISO      string
}

// ConfigureSimSource configures the simulated data source.
func (s *SourceControl) ConfigureSimSource(args *SimSourceConfig, reply *bool) error {
	log.Printf("ConfigureSimSource: rate=%.3f, amp=%.3f\n", args.SampleRate, args.CurrentAmp)
	err := s.sim.Configure(args)
	s.clientUpdates <- ClientUpdate{"SIMSOURCE", args}
	*reply = (err == nil)
	return err
}

// ConfigureDecimation sets the output sample rate and reduction mode used
// when the source next starts.
func (s *SourceControl) ConfigureDecimation(args *DecimationConfig, reply *bool) error {
	log.Printf("ConfigureDecimation: rateOut=%d, average=%t\n", args.SampleRateOut, args.AverageMode)
	mode := downsample.ModeFlatPassband
	if args.AverageMode {
		mode = downsample.ModeAverage
	}
	err := s.sim.ConfigureDecimation(args.SampleRateOut, mode)
	if err == nil {
		s.status.SampleRateOut = args.SampleRateOut
		s.clientUpdates <- ClientUpdate{"DECIMATION", args}
	}
	*reply = (err == nil)
	return err
}

// ConfigureSummaryInterval sets the number of output samples per summary
// record on the running source.
func (s *SourceControl) ConfigureSummaryInterval(outputSamples *uint64, reply *bool) error {
	if s.activeSource == nil {
		return fmt.Errorf("no source is active")
	}
	n := *outputSamples
	errs := make(chan error)
	s.queuedRequests <- func() {
		errs <- s.activeSource.Processor().ConfigureSummaryInterval(n)
	}
	err := <-errs
	*reply = (err == nil)
	return err
}

// Start will identify the source given by sourceName, then Sample and Start it.
func (s *SourceControl) Start(sourceName *string, reply *bool) error {
	if s.activeSource != nil {
		return fmt.Errorf("activeSource is not nil, want nil (you should call Stop)")
	}
	name := strings.ToUpper(*sourceName)
	switch name {
	case "SIMSOURCE":
		s.activeSource = DataSource(s.sim)
		s.status.SourceName = "SimSource"

	default:
		return fmt.Errorf("data source %q is not recognized", *sourceName)
	}

	log.Printf("Starting data source named %s\n", *sourceName)
	if err := Start(s.activeSource, s.queuedRequests); err != nil {
		s.activeSource = nil
		s.status.SourceName = ""
		return err
	}

	s.status.Running = true
	s.status.SampleRate = s.activeSource.SampleRate()
	s.status.DecimateFactor = s.activeSource.Processor().DecimateFactor()

	s.publishAbort = make(chan struct{})
	go PublishBlocks(s.activeSource.Processor().Blocks, s.publishAbort, Ports.Blocks)
	go PublishSummaries(s.activeSource.Processor().Summaries, s.publishAbort, Ports.Summaries)

	s.currentRun = &rundb.RunMessage{
		ID:             rundb.NewID(),
		Source:         s.status.SourceName,
		SampleRateIn:   uint32(s.status.SampleRate),
		SampleRateOut:  s.status.SampleRateOut,
		DecimateFactor: s.status.DecimateFactor,
		UTCStart:       timeq.Now(),
		Start:          time.Now(),
	}
	s.db.RecordRun(s.currentRun)

	s.broadcastUpdate()
	*reply = true
	return nil
}

// Stop stops the running data source, if any.
func (s *SourceControl) Stop(dummy *string, reply *bool) error {
	if s.activeSource == nil {
		return fmt.Errorf("no source is active")
	}
	log.Printf("Stopping data source\n")
	s.activeSource.Stop()
	s.activeSource = nil
	close(s.publishAbort)
	s.db.FinishRun(s.currentRun)
	s.currentRun = nil

	s.status.Running = false
	s.status.SourceName = ""
	s.status.DecimateFactor = 0
	s.status.TimeMapEntries = 0
	s.broadcastUpdate()
	*reply = true
	return nil
}

// SampleIDToUTC converts a device sample id to UTC using the active source's
// time map.
func (s *SourceControl) SampleIDToUTC(args *TimeQueryArgs, reply *TimeQueryReply) error {
	if s.activeSource == nil {
		return fmt.Errorf("no source is active")
	}
	utc, err := s.activeSource.TimeSync().TimestampAt(args.SampleID)
	if err != nil {
		return err
	}
	reply.SampleID = args.SampleID
	reply.UTC = int64(utc)
	reply.ISO = timeq.ToStr(utc)
	return nil
}

// UTCToSampleID converts a UTC time to a device sample id using the active
// source's time map.
func (s *SourceControl) UTCToSampleID(args *TimeQueryArgs, reply *TimeQueryReply) error {
	if s.activeSource == nil {
		return fmt.Errorf("no source is active")
	}
	sampleID, err := s.activeSource.TimeSync().SampleIDAt(timeq.Time(args.UTC))
	if err != nil {
		return err
	}
	reply.SampleID = sampleID
	reply.UTC = args.UTC
	reply.ISO = timeq.ToStr(timeq.Time(args.UTC))
	return nil
}

// SendAllStatus causes a broadcast to clients containing all broadcastable status info
func (s *SourceControl) SendAllStatus(dummy *string, reply *bool) error {
	s.broadcastUpdate()
	s.clientUpdates <- ClientUpdate{"SENDALL", 0}
	*reply = true
	return nil
}

func (s *SourceControl) broadcastUpdate() {
	if s.activeSource != nil && s.activeSource.Running() {
		s.status.TimeMapEntries = s.activeSource.TimeSync().Size()
	}
	s.clientUpdates <- ClientUpdate{"STATUS", s.status}
}

// RunRPCServer sets up and runs a permanent JSON-RPC server. Streaming runs
// are recorded through db, which may be a dummy connection.
func RunRPCServer(portrpc int, block bool, db *rundb.Connection) {
	sourceControl := new(SourceControl)
	sourceControl.sim = NewSimSource()
	sourceControl.clientUpdates = clientMessageChan
	sourceControl.queuedRequests = make(chan func())
	sourceControl.db = db

	// Load stored settings
	var okay bool
	log.Printf("Using config file %s\n", viper.ConfigFileUsed())
	var ssc SimSourceConfig
	if err := viper.UnmarshalKey("simsource", &ssc); err == nil && ssc.SampleRate > 0 {
		sourceControl.ConfigureSimSource(&ssc, &okay)
	}
	var dc DecimationConfig
	if err := viper.UnmarshalKey("decimation", &dc); err == nil && dc.SampleRateOut > 0 {
		sourceControl.ConfigureDecimation(&dc, &okay)
	}

	go func() {
		for range time.Tick(2 * time.Second) {
			sourceControl.broadcastUpdate()
		}
	}()

	// Now launch the connection handler and accept connections.
	server := rpc.NewServer()
	server.Register(sourceControl)
	port := fmt.Sprintf(":%d", portrpc)
	listener, err := net.Listen("tcp", port)
	if err != nil {
		log.Fatal("listen error:", err)
	}
	serve := func() {
		for {
			if conn, err := listener.Accept(); err != nil {
				log.Fatal("accept error: " + err.Error())
			} else {
				log.Printf("new connection established\n")
				go server.ServeCodec(jsonrpc.NewServerCodec(conn))
			}
		}
	}
	if block {
		serve()
	} else {
		go serve()
	}
}
