// Package hubstate holds per-agent fan-out state on the Hub side: the
// rolling telemetry and console-log history each connected Agent pushes,
// keyed by agent id and created lazily on first push.
package hubstate

import (
	"sync"

	"github.com/lobinuxsoft/capydeploy/pkg/protocol"
	"github.com/lobinuxsoft/capydeploy/pkg/ringbuffer"
)

// telemetryHistoryCapacity bounds how many telemetry samples are retained
// per agent. At a typical 1s push interval this covers the last ~10 minutes.
const telemetryHistoryCapacity = 600

// consoleLogHistoryCapacity bounds how many console-log lines are retained
// per agent.
const consoleLogHistoryCapacity = 2000

// AgentTelemetry is the rolling telemetry history for a single Agent. The
// ring buffer is not internally synchronized, so every access goes through
// this type's mutex.
type AgentTelemetry struct {
	mu   sync.RWMutex
	ring *ringbuffer.Buffer[protocol.TelemetryData]
}

func newAgentTelemetry() *AgentTelemetry {
	return &AgentTelemetry{ring: ringbuffer.New[protocol.TelemetryData](telemetryHistoryCapacity)}
}

// Push records a new telemetry sample.
func (t *AgentTelemetry) Push(data protocol.TelemetryData) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ring.Push(data)
}

// Latest returns the most recent sample, if any.
func (t *AgentTelemetry) Latest() (protocol.TelemetryData, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.ring.Last()
}

// History returns every retained sample, oldest first.
func (t *AgentTelemetry) History() []protocol.TelemetryData {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.ring.Items()
}

// AgentConsoleLog is the rolling console-log history for a single Agent.
type AgentConsoleLog struct {
	mu   sync.RWMutex
	ring *ringbuffer.Buffer[protocol.ConsoleLogEntry]
}

func newAgentConsoleLog() *AgentConsoleLog {
	return &AgentConsoleLog{ring: ringbuffer.New[protocol.ConsoleLogEntry](consoleLogHistoryCapacity)}
}

// PushBatch records every entry in a console-log batch in order.
func (c *AgentConsoleLog) PushBatch(batch protocol.ConsoleLogBatch) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, entry := range batch.Entries {
		c.ring.Push(entry)
	}
}

// History returns every retained log line, oldest first.
func (c *AgentConsoleLog) History() []protocol.ConsoleLogEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ring.Items()
}

// Store fans telemetry and console-log pushes out per agent id, creating
// each agent's containers lazily on first push.
type Store struct {
	mu        sync.RWMutex
	telemetry map[string]*AgentTelemetry
	console   map[string]*AgentConsoleLog
}

// NewStore creates an empty per-agent fan-out store.
func NewStore() *Store {
	return &Store{
		telemetry: make(map[string]*AgentTelemetry),
		console:   make(map[string]*AgentConsoleLog),
	}
}

// Telemetry returns (creating if necessary) the telemetry history for agentID.
func (s *Store) Telemetry(agentID string) *AgentTelemetry {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.telemetry[agentID]
	if !ok {
		t = newAgentTelemetry()
		s.telemetry[agentID] = t
	}
	return t
}

// ConsoleLog returns (creating if necessary) the console-log history for agentID.
func (s *Store) ConsoleLog(agentID string) *AgentConsoleLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.console[agentID]
	if !ok {
		c = newAgentConsoleLog()
		s.console[agentID] = c
	}
	return c
}

// Forget drops all retained state for agentID, e.g. when it's unpaired.
func (s *Store) Forget(agentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.telemetry, agentID)
	delete(s.console, agentID)
}
