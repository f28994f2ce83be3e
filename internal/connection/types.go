package connection

import (
	"context"
	"errors"
	"time"

	"github.com/juju/clock"
)

// Errors
var (
	ErrTransportClosed = errors.New("transport closed")
	ErrBadAddress      = errors.New("bad replication address")
	ErrAlreadyStarted  = errors.New("connection manager already started")
)

// State is the connection manager's position in its lifecycle.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateBackingOff
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateBackingOff:
		return "backing_off"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

// Transport is a line-oriented duplex connection to the coordinator.
type Transport interface {
	// ReadLine blocks for the next line, without its terminator.
	ReadLine() ([]byte, error)

	// WriteLine sends one line. Safe for concurrent use.
	WriteLine(line []byte) error

	Close() error
	RemoteAddr() string
}

// Dialer opens transports.
type Dialer interface {
	Dial(ctx context.Context, address string) (Transport, error)
}

// Session drives one established connection until it ends.
type Session interface {
	Run(ctx context.Context) error
}

// SessionInfo identifies an established connection.
type SessionInfo struct {
	ConnID     string // Unique per connection, for log correlation
	ClientName string // Our identity
	ServerName string // Expected coordinator identity
	Clock      clock.Clock
}

// SessionFactory builds the session for a freshly established transport.
type SessionFactory func(t Transport, info SessionInfo) Session

// Recorder receives connection metrics.
type Recorder interface {
	SetConnectionState(prev, state string)
	ConnectAttempt(result string)
	SetBackoffDelay(d time.Duration)
}

// ManagerConfig holds Manager settings.
type ManagerConfig struct {
	Address      string
	ClientName   string
	ServerName   string
	InitialDelay time.Duration
	MaxDelay     time.Duration
	DelayFactor  float64
	DialTimeout  time.Duration
}
