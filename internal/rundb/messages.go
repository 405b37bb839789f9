package rundb

import (
	"time"

	"github.com/jetperch/joulescope-driver-sub001/timeq"
)

// The composite types used for messages to the ClickHouse database.

// ActivityMessage is the information for the jsdrvactivity table: one row
// per daemon process lifetime.
type ActivityMessage struct {
	ID        string
	Hostname  string
	Githash   string
	Version   string
	GoVersion string
	CPUs      int
	Start     time.Time
	End       time.Time
}

// RunMessage is the information required to make an entry in the streamruns
// table: one row per streaming run of a data source.
type RunMessage struct {
	ID             string
	ActivityID     string
	Source         string
	SampleRateIn   uint32
	SampleRateOut  uint32
	DecimateFactor uint32
	UTCStart       timeq.Time
	Start          time.Time
	End            time.Time
}
