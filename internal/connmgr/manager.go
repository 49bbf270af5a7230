package connmgr

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/lobinuxsoft/capydeploy/apps/hub/wsclient"
	"github.com/lobinuxsoft/capydeploy/pkg/discovery"
	"github.com/lobinuxsoft/capydeploy/pkg/protocol"
)

// clientFactory lets tests substitute a fake wsclient.Client.
type clientFactory func(agent discovery.DiscoveredAgent) wsClient

// wsClient is the subset of *wsclient.Client the manager drives. Declared
// as an interface so reconnect-loop tests can run against a fake.
type wsClient interface {
	Connect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// Manager owns discovery and a pool of per-agent WebSocket clients, and
// drives automatic reconnect with backoff when an agent drops off.
type Manager struct {
	log    *slog.Logger
	config ReconnectConfig

	discoveryClient *discovery.Client
	newClient       clientFactory

	mu            sync.RWMutex
	authHubID     string
	authGetToken  func(string) string
	authSaveToken func(string, string) error
	clients       map[string]wsClient
	agents        map[string]*ConnectedAgent

	events chan ConnectionEvent

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a Manager. hubName/hubVersion are used to build each Agent's
// wsclient.Client via the default factory; pass a custom factory in tests.
func New(log *slog.Logger, hubName, hubVersion string) *Manager {
	if log == nil {
		log = slog.Default()
	}
	discoveryClient := discovery.NewClient()
	discoveryClient.SetLogger(log)
	m := &Manager{
		log:             log,
		config:          DefaultReconnectConfig(),
		discoveryClient: discoveryClient,
		clients:         make(map[string]wsClient),
		agents:          make(map[string]*ConnectedAgent),
		events:          make(chan ConnectionEvent, 64),
		baseCtx:         context.Background(),
	}
	m.newClient = func(agent discovery.DiscoveredAgent) wsClient {
		host := agent.Host
		if len(agent.IPs) > 0 {
			host = agent.IPs[0].String()
		}
		c := wsclient.NewClient(host, agent.Port, hubName, hubVersion)

		m.mu.RLock()
		hubID, getToken, saveToken := m.authHubID, m.authGetToken, m.authSaveToken
		m.mu.RUnlock()
		if getToken != nil && saveToken != nil {
			c.SetAuth(hubID, agent.Info.ID, getToken, saveToken)
		}
		c.SetPairingCallback(func(agentID string) {
			m.setState(agentID, StatePairingRequired)
			m.emit(ConnectionEvent{Kind: EventPairingNeeded, AgentID: agentID})
		})
		return c
	}
	return m
}

// SetReconnectConfig overrides the backoff tuning (used by tests).
func (m *Manager) SetReconnectConfig(cfg ReconnectConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config = cfg
}

// SetAuth configures paired-agent authentication: every client the manager
// creates from here on presents hubID and looks up/persists its token
// through getToken/saveToken (backed by the Hub's auth.TokenStore).
func (m *Manager) SetAuth(hubID string, getToken func(string) string, saveToken func(string, string) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.authHubID = hubID
	m.authGetToken = getToken
	m.authSaveToken = saveToken
}

// Events returns the channel of connection lifecycle events.
func (m *Manager) Events() <-chan ConnectionEvent {
	return m.events
}

// StartDiscovery begins continuous mDNS discovery and routes its events
// into agent lifecycle transitions.
func (m *Manager) StartDiscovery(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)
	m.baseCtx = ctx
	m.cancel = cancel

	m.wg.Add(2)
	go func() {
		defer m.wg.Done()
		m.discoveryClient.StartContinuousDiscovery(ctx, interval)
	}()
	go func() {
		defer m.wg.Done()
		m.routeDiscoveryEvents(ctx)
	}()
}

// RefreshDiscovery performs a single one-shot discovery pass.
func (m *Manager) RefreshDiscovery(ctx context.Context, timeout time.Duration) ([]*discovery.DiscoveredAgent, error) {
	return m.discoveryClient.Discover(ctx, timeout)
}

func (m *Manager) routeDiscoveryEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-m.discoveryClient.Events():
			if !ok {
				return
			}
			m.handleDiscoveryEvent(ctx, ev)
		}
	}
}

func (m *Manager) handleDiscoveryEvent(ctx context.Context, ev discovery.DiscoveryEvent) {
	if ev.Agent == nil {
		return
	}
	id := ev.Agent.Info.ID

	switch ev.Type {
	case discovery.EventDiscovered:
		m.mu.Lock()
		if _, exists := m.agents[id]; !exists {
			m.agents[id] = &ConnectedAgent{Agent: *ev.Agent, State: StateDiscovered}
		}
		m.mu.Unlock()
		m.emit(ConnectionEvent{Kind: EventAgentFound, AgentID: id, Agent: ev.Agent})

	case discovery.EventUpdated:
		m.mu.Lock()
		if ca, exists := m.agents[id]; exists {
			ca.Agent = *ev.Agent
		}
		m.mu.Unlock()
		m.emit(ConnectionEvent{Kind: EventAgentUpdated, AgentID: id, Agent: ev.Agent})

	case discovery.EventLost:
		// An mDNS loss does NOT cancel an in-flight reconnect backoff: the
		// agent may simply be between mDNS announce intervals. The reconnect
		// loop is the sole authority on giving up (MaxNoMDNSAttempts).
		m.mu.RLock()
		ca, exists := m.agents[id]
		m.mu.RUnlock()
		if exists && ca.State != StateReconnecting {
			m.setState(id, StateDisconnected)
			m.emit(ConnectionEvent{Kind: EventAgentLost, AgentID: id, Agent: ev.Agent})
		}
	}
}

// ConnectAgent dials the given agent and begins tracking it. If the agent
// drops afterward, the manager automatically reconnects with backoff.
func (m *Manager) ConnectAgent(ctx context.Context, agent discovery.DiscoveredAgent) error {
	id := agent.Info.ID
	client := m.newClient(agent)

	m.mu.Lock()
	m.clients[id] = client
	if m.agents[id] == nil {
		m.agents[id] = &ConnectedAgent{Agent: agent}
	}
	m.mu.Unlock()

	m.setState(id, StateConnecting)

	err := client.Connect(ctx)
	if err == wsclient.ErrPairingRequired {
		m.setState(id, StatePairingRequired)
		m.emit(ConnectionEvent{Kind: EventPairingNeeded, AgentID: id})
		return nil
	}
	if err != nil {
		m.setState(id, StateDisconnected)
		return err
	}

	m.setState(id, StateConnected)
	m.watchConnection(m.baseCtx, id, client, agent)
	return nil
}

// watchConnection spawns the reconnect loop for a connected agent.
func (m *Manager) watchConnection(ctx context.Context, id string, client wsClient, agent discovery.DiscoveredAgent) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.reconnectLoop(ctx, id, agent)
	}()
}

// reconnectLoop polls the client's connection state and, on disconnect,
// retries with exponential backoff. It gives up after MaxNoMDNSAttempts
// failed attempts only once mDNS discovery no longer lists the agent; while
// the agent is still listed, retries continue without limit. A successful
// reconnect resets the attempt counter.
func (m *Manager) reconnectLoop(ctx context.Context, id string, agent discovery.DiscoveredAgent) {
	const pollInterval = 2 * time.Second
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	attempt := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		m.mu.RLock()
		client, ok := m.clients[id]
		m.mu.RUnlock()
		if !ok {
			return
		}
		if client.IsConnected() {
			attempt = 0
			continue
		}

		attempt++
		if attempt > MaxNoMDNSAttempts {
			if m.discoveryClient.GetAgent(id) == nil {
				m.setState(id, StateDisconnected)
				m.emit(ConnectionEvent{Kind: EventAgentLost, AgentID: id})
				return
			}
			attempt = MaxNoMDNSAttempts
		}

		m.setState(id, StateReconnecting)
		delay := m.config.DelayForAttempt(attempt, cryptoJitter)
		m.emit(ConnectionEvent{Kind: EventReconnecting, AgentID: id, Attempt: attempt, Delay: delay})

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		newClient := m.newClient(agent)
		m.mu.Lock()
		m.clients[id] = newClient
		m.mu.Unlock()

		if err := newClient.Connect(ctx); err != nil {
			m.mu.Lock()
			if ca := m.agents[id]; ca != nil {
				ca.LastError = err.Error()
			}
			m.mu.Unlock()
			continue
		}
		m.setState(id, StateConnected)
		attempt = 0
	}
}

// ConfirmPairing completes a pending pairing for agent id with the code
// shown on the Agent, then starts the normal reconnect-on-drop watch.
func (m *Manager) ConfirmPairing(ctx context.Context, id string, code string) error {
	m.mu.RLock()
	client, ok := m.clients[id]
	agent, hasAgent := m.agents[id]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("agent %s not connected", id)
	}
	wc, ok := client.(*wsclient.Client)
	if !ok {
		return fmt.Errorf("agent %s: pairing confirmation unsupported by this client", id)
	}
	if err := wc.ConfirmPairing(ctx, code); err != nil {
		return err
	}

	m.setState(id, StateConnected)
	var a discovery.DiscoveredAgent
	if hasAgent {
		a = agent.Agent
	}
	m.watchConnection(m.baseCtx, id, client, a)
	return nil
}

// EmitUpload publishes an upload-progress event for agentID onto the
// manager's event channel, so a single consumer can watch connection
// lifecycle and upload progress together.
func (m *Manager) EmitUpload(agentID string, ev protocol.UploadProgressEvent) {
	m.emit(ConnectionEvent{Kind: EventAgentEvent, AgentID: agentID, Upload: &ev})
}

// EmitOperation publishes an operation (install/delete) progress event for
// agentID onto the manager's event channel.
func (m *Manager) EmitOperation(agentID string, ev protocol.OperationEvent) {
	m.emit(ConnectionEvent{Kind: EventAgentEvent, AgentID: agentID, Operation: &ev})
}

// RawClient returns the concrete *wsclient.Client backing agent id, for
// operations (uploads, pairing confirmation, artwork, info) outside the
// minimal wsClient interface the reconnect loop drives. Returns false if the
// agent has no tracked client or a test substituted a fake factory.
func (m *Manager) RawClient(id string) (*wsclient.Client, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.clients[id]
	if !ok {
		return nil, false
	}
	wc, ok := c.(*wsclient.Client)
	return wc, ok
}

// DisconnectAgent closes the client for id and stops tracking its reconnect loop.
func (m *Manager) DisconnectAgent(id string) error {
	m.mu.Lock()
	client, ok := m.clients[id]
	delete(m.clients, id)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("agent %s not connected", id)
	}
	m.setState(id, StateDisconnected)
	return client.Close()
}

// GetConnected returns a snapshot of every tracked agent.
func (m *Manager) GetConnected() []ConnectedAgent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ConnectedAgent, 0, len(m.agents))
	for _, ca := range m.agents {
		out = append(out, *ca)
	}
	return out
}

// Shutdown stops discovery and all reconnect loops, and closes every client.
func (m *Manager) Shutdown() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()

	m.mu.Lock()
	clients := make([]wsClient, 0, len(m.clients))
	for _, c := range m.clients {
		clients = append(clients, c)
	}
	m.mu.Unlock()

	for _, c := range clients {
		c.Close()
	}
	close(m.events)
}

func (m *Manager) setState(id string, state ConnectionState) {
	m.mu.Lock()
	ca, exists := m.agents[id]
	if !exists {
		ca = &ConnectedAgent{}
		m.agents[id] = ca
	}
	ca.State = state
	m.mu.Unlock()
	m.emit(ConnectionEvent{Kind: EventStateChanged, AgentID: id, State: state})
}

func (m *Manager) emit(ev ConnectionEvent) {
	select {
	case m.events <- ev:
	default:
		m.log.Warn("connmgr: event channel full, dropping event", "kind", ev.Kind, "agent", ev.AgentID)
	}
}

// cryptoJitter returns a uniform value in [-1.0, 1.0) sourced from
// crypto/rand, avoiding a dependency on math/rand's global seed.
func cryptoJitter() float64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0
	}
	u := binary.BigEndian.Uint64(buf[:])
	frac := float64(u) / float64(math.MaxUint64)
	return frac*2 - 1
}
