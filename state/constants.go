package state

import "time"

var (
	// NeighbourTimeout is how long a neighbour stays in the table without a fresh announcement
	NeighbourTimeout = 60 * time.Second
	MaxNeighbours    = 16
	// AnnouncementInterval must stay below NeighbourTimeout or neighbours flap
	AnnouncementInterval = 8 * time.Second

	// TrickleTick is the unit of the imin console parameter (a 128Hz clock)
	TrickleTick      = time.Second / 128
	NewTokenInterval = 5 * time.Second
	NewTokenProb     = 2

	DefaultIMin  = int64(16)
	DefaultIMax  = int64(10)
	DefaultK     = int64(2)
	DefaultLimit = int64(1)

	// DataBufSize is how many payload bytes are kept for inspection
	DataBufSize = 6

	DispatchWarnThreshold = 4 * time.Millisecond
	FrameDedupTTL         = 5 * time.Second
)

const (
	PortAnnounce = uint16(2)
	PortMultihop = uint16(135)
	PortTrickle  = uint16(30001)

	// AnnouncementId is registered under the same id as the multihop channel
	AnnouncementId = uint16(135)

	DefaultUDPPort = 30135
)

// SinkAddr is the destination of button-originated messages
var SinkAddr = NodeId{1, 0}
