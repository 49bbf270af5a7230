// Package connmgr drives the Hub-side agent lifecycle: discovery, connect,
// pairing, and automatic reconnect with exponential backoff.
package connmgr

import (
	"math"
	"time"

	"github.com/lobinuxsoft/capydeploy/pkg/discovery"
	"github.com/lobinuxsoft/capydeploy/pkg/protocol"
)

// ConnectionState is the lifecycle state of a single tracked Agent.
type ConnectionState int

const (
	StateDiscovered ConnectionState = iota
	StateConnecting
	StateConnected
	StatePairingRequired
	StateReconnecting
	StateDisconnected
)

func (s ConnectionState) String() string {
	switch s {
	case StateDiscovered:
		return "discovered"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StatePairingRequired:
		return "pairing_required"
	case StateReconnecting:
		return "reconnecting"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// ConnectedAgent is the manager's view of one Agent: its discovery record,
// its last known status, and its current lifecycle state.
type ConnectedAgent struct {
	Agent            discovery.DiscoveredAgent
	Status           protocol.AgentStatusResponse
	State            ConnectionState
	ReconnectAttempt int
	LastError        string
}

// EventKind tags the variant carried by a ConnectionEvent.
type EventKind string

const (
	EventAgentFound      EventKind = "agent_found"
	EventAgentUpdated    EventKind = "agent_updated"
	EventAgentLost       EventKind = "agent_lost"
	EventStateChanged    EventKind = "state_changed"
	EventPairingNeeded   EventKind = "pairing_needed"
	EventAgentEvent      EventKind = "agent_event"
	EventReconnecting    EventKind = "reconnecting"
	EventProtocolWarning EventKind = "protocol_warning"
)

// ConnectionEvent is emitted on the manager's event channel. Exactly the
// fields relevant to Kind are populated; the rest are zero values.
type ConnectionEvent struct {
	Kind      EventKind
	AgentID   string
	Agent     *discovery.DiscoveredAgent
	State     ConnectionState
	Attempt   int
	Delay     time.Duration
	Code      string
	Message   string
	Upload    *protocol.UploadProgressEvent
	Operation *protocol.OperationEvent
}

// ReconnectConfig tunes the backoff curve used between reconnect attempts.
// Defaults mirror the source implementation: start small, cap at 15s,
// double each attempt, with +/-25% jitter so a fleet of agents reconnecting
// after a Hub restart doesn't thunder in lockstep.
type ReconnectConfig struct {
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultReconnectConfig returns the standard tuning.
func DefaultReconnectConfig() ReconnectConfig {
	return ReconnectConfig{
		InitialDelay:  250 * time.Millisecond,
		MaxDelay:      15 * time.Second,
		BackoffFactor: 2.0,
	}
}

// MaxNoMDNSAttempts bounds how many reconnect attempts proceed without a
// corroborating mDNS sighting before the manager gives up and marks the
// agent lost outright.
const MaxNoMDNSAttempts = 30

// DelayForAttempt computes the backoff delay for the given 1-based attempt
// number, using jitterFn (in [-1.0, 1.0)) to perturb the capped delay by up
// to +/-25%. The floor is 50ms so a zero or negative jittered delay never
// produces a busy-loop.
func (c ReconnectConfig) DelayForAttempt(attempt int, jitterFn func() float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	exp := attempt - 1
	if exp > 62 {
		exp = 62
	}

	secs := c.InitialDelay.Seconds() * math.Pow(c.BackoffFactor, float64(exp))
	if secs > c.MaxDelay.Seconds() {
		secs = c.MaxDelay.Seconds()
	}

	jitter := secs * 0.25
	offset := jitterFn()
	withJitter := secs + jitter*offset
	if withJitter < 0.05 {
		withJitter = 0.05
	}

	return time.Duration(withJitter * float64(time.Second))
}
