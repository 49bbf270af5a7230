// Package agentapp wires together the Agent's WebSocket server, firewall
// rules, persistent config, and pairing authority into a single runnable
// service, independent of any particular front end.
package agentapp

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/lobinuxsoft/capydeploy/apps/agents/desktop/auth"
	"github.com/lobinuxsoft/capydeploy/apps/agents/desktop/config"
	"github.com/lobinuxsoft/capydeploy/apps/agents/desktop/firewall"
	"github.com/lobinuxsoft/capydeploy/apps/agents/desktop/server"
	agentSteam "github.com/lobinuxsoft/capydeploy/apps/agents/desktop/steam"
	"github.com/lobinuxsoft/capydeploy/pkg/discovery"
	"github.com/lobinuxsoft/capydeploy/pkg/version"
)

// ConnectedHub is the Hub currently paired with this Agent, if any.
type ConnectedHub struct {
	ID   string
	Name string
	IP   string
}

// Status is a point-in-time snapshot of the Agent's state.
type Status struct {
	Running           bool
	Name              string
	Platform          string
	Version           string
	Port              int
	IPs               []string
	AcceptConnections bool
	ConnectedHub      *ConnectedHub
	TelemetryEnabled  bool
	TelemetryInterval int
}

// Service runs the Agent's WebSocket server for its entire process
// lifetime, independent of any desktop shell.
type Service struct {
	log *slog.Logger

	configMgr *config.Manager
	authMgr   *auth.Manager
	port      int

	mu         sync.RWMutex
	server     *server.Server
	cancel     context.CancelFunc
	accept     bool
	connHub    *ConnectedHub
}

// NewService creates an Agent service. port=0 lets the OS assign a port.
func NewService(log *slog.Logger, port int) *Service {
	if log == nil {
		log = slog.Default()
	}

	cfgMgr, err := config.NewManager()
	if err != nil {
		log.Warn("failed to load agent config, using defaults", "error", err)
	}

	var authMgr *auth.Manager
	if cfgMgr != nil {
		authMgr = auth.NewManager(auth.NewConfigStorage(cfgMgr))
	}

	return &Service{
		log:       log,
		configMgr: cfgMgr,
		authMgr:   authMgr,
		port:      port,
		accept:    true,
	}
}

func (s *Service) name() string {
	if s.configMgr != nil {
		return s.configMgr.GetName()
	}
	return discovery.GetHostname()
}

// Run starts the WebSocket server and blocks until ctx is cancelled or the
// server exits with an error.
func (s *Service) Run(ctx context.Context) error {
	serverCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	defer cancel()

	cfg := server.Config{
		Port:     s.port,
		Name:     s.name(),
		Version:  version.Version,
		Platform: discovery.GetPlatform(),
		Verbose:  false,
		AcceptConnections: func() bool {
			s.mu.RLock()
			defer s.mu.RUnlock()
			return s.accept
		},
		GetInstallPath: func() string {
			if s.configMgr != nil {
				return s.configMgr.GetInstallPath()
			}
			return "~/Games"
		},
		OnShortcutChange: func() {
			s.log.Debug("shortcuts changed")
		},
		OnOperation: func(event server.OperationEvent) {
			s.log.Info("operation", "type", event.Type, "status", event.Status, "game", event.GameName, "progress", event.Progress)
		},
		OnHubConnect: func(hubID, hubName, hubIP string) {
			s.mu.Lock()
			s.connHub = &ConnectedHub{ID: hubID, Name: hubName, IP: hubIP}
			s.mu.Unlock()
			s.log.Info("hub connected", "hub", hubName, "ip", hubIP)
		},
		OnHubDisconnect: func() {
			s.mu.Lock()
			s.connHub = nil
			s.mu.Unlock()
			s.log.Info("hub disconnected")
		},
		AuthManager: s.authMgr,
		OnPairingCode: func(code string, expiresIn time.Duration) {
			s.log.Info("pairing code generated", "code", code, "expiresIn", expiresIn.String())
		},
		OnPairingSuccess: func() {
			s.log.Info("pairing successful")
		},
		OnPortAssigned: func(port int) {
			s.mu.Lock()
			s.port = port
			s.mu.Unlock()
			s.log.Info("listening", "port", port)
			if err := firewall.EnsureRules(port); err != nil {
				s.log.Warn("could not configure firewall rules", "error", err)
			}
		},
		GetTelemetryEnabled: func() bool {
			if s.configMgr != nil {
				return s.configMgr.GetTelemetryEnabled()
			}
			return false
		},
		GetTelemetryInterval: func() int {
			if s.configMgr != nil {
				return s.configMgr.GetTelemetryInterval()
			}
			return 2
		},
		GetSteamStatus: func() (bool, bool) {
			ctrl := agentSteam.NewController()
			return ctrl.IsRunning(), ctrl.IsGamingMode()
		},
		GetConsoleLogEnabled: func() bool {
			if s.configMgr != nil {
				return s.configMgr.GetConsoleLogEnabled()
			}
			return false
		},
	}

	srv, err := server.New(cfg)
	if err != nil {
		return fmt.Errorf("create agent server: %w", err)
	}

	s.mu.Lock()
	s.server = srv
	s.mu.Unlock()

	s.log.Info("capydeploy agent starting", "version", version.Full(), "platform", cfg.Platform, "name", cfg.Name)

	defer func() {
		if err := firewall.RemoveRules(); err != nil {
			s.log.Warn("failed to remove firewall rules", "error", err)
		}
	}()

	if err := srv.Run(serverCtx); err != nil && err != context.Canceled {
		return err
	}
	return nil
}

// Stop cancels the running server, if any.
func (s *Service) Stop() {
	s.mu.RLock()
	cancel := s.cancel
	s.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
}

// Status returns a snapshot of the Agent's current state.
func (s *Service) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var telemetryEnabled bool
	var telemetryInterval int
	if s.configMgr != nil {
		telemetryEnabled = s.configMgr.GetTelemetryEnabled()
		telemetryInterval = s.configMgr.GetTelemetryInterval()
	}

	return Status{
		Running:           s.server != nil,
		Name:              s.name(),
		Platform:          discovery.GetPlatform(),
		Version:           version.Version,
		Port:              s.port,
		IPs:               localIPs(),
		AcceptConnections: s.accept,
		ConnectedHub:      s.connHub,
		TelemetryEnabled:  telemetryEnabled,
		TelemetryInterval: telemetryInterval,
	}
}

// SetAcceptConnections enables or disables accepting new Hub connections.
func (s *Service) SetAcceptConnections(accept bool) {
	s.mu.Lock()
	s.accept = accept
	s.mu.Unlock()
}

func localIPs() []string {
	var ips []string
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return ips
	}
	for _, addr := range addrs {
		ipnet, ok := addr.(*net.IPNet)
		if !ok || ipnet.IP.IsLoopback() {
			continue
		}
		ip4 := ipnet.IP.To4()
		if ip4 == nil {
			continue
		}
		if ip4[0] == 169 && ip4[1] == 254 {
			continue // link-local (APIPA)
		}
		ips = append(ips, ip4.String())
	}
	return ips
}
