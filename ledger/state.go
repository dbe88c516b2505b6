package ledger

import (
	"fmt"
	"time"

	"indyforge.dev/forge/genesis"
)

// State is the connection lifecycle position.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Failed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Status is a point-in-time snapshot of a Connection.
type Status struct {
	State  State
	Source genesis.Source

	// StartedAt is set while Connecting.
	StartedAt time.Time
	// ConnectedAt and LastCheck are set while Connected.
	ConnectedAt time.Time
	LastCheck   time.Time

	// Err is the failure while Failed, or the reason a connection was lost
	// while Disconnected.
	Err error
}
