// Package hubapp wires the Hub's discovery, connection management, game
// setup storage, and SteamGridDB artwork lookup into a single runnable
// service, independent of any particular front end.
package hubapp

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lobinuxsoft/capydeploy/apps/hub/auth"
	hubconfig "github.com/lobinuxsoft/capydeploy/apps/hub/config"
	"github.com/lobinuxsoft/capydeploy/apps/hub/wsclient"
	"github.com/lobinuxsoft/capydeploy/internal/connmgr"
	"github.com/lobinuxsoft/capydeploy/pkg/config"
	"github.com/lobinuxsoft/capydeploy/pkg/discovery"
	"github.com/lobinuxsoft/capydeploy/pkg/steamgriddb"
	"github.com/lobinuxsoft/capydeploy/pkg/version"
)

// AgentSummary is a point-in-time view of a tracked Agent, for listing and
// status reporting.
type AgentSummary struct {
	ID       string
	Name     string
	Platform string
	Host     string
	Port     int
	State    string
	Online   bool
}

// Service owns the Hub's connection manager, persistent config, and
// game-setup/artwork helpers for the process lifetime.
type Service struct {
	log *slog.Logger

	configMgr  *hubconfig.Manager
	tokenStore *auth.TokenStore
	manager    *connmgr.Manager

	metrics *metrics
}

// NewService creates a Hub service. Whether discovered Agents are dialed
// automatically is chosen later, by Run's autoConnect argument.
func NewService(log *slog.Logger) (*Service, error) {
	if log == nil {
		log = slog.Default()
	}

	configMgr, err := hubconfig.NewManager()
	if err != nil {
		log.Warn("failed to load hub config, using defaults", "error", err)
	}

	tokenStore, err := auth.NewTokenStore()
	if err != nil {
		log.Warn("failed to initialize token store, pairing will not persist", "error", err)
	}

	hubName := "CapyDeploy Hub"
	if configMgr != nil {
		hubName = configMgr.GetName()
	}

	manager := connmgr.New(log, hubName, version.Version)
	if tokenStore != nil {
		manager.SetAuth(tokenStore.GetHubID(), tokenStore.GetToken, tokenStore.SaveToken)
	}

	return &Service{
		log:        log,
		configMgr:  configMgr,
		tokenStore: tokenStore,
		manager:    manager,
		metrics:    newMetrics(),
	}, nil
}

// Events returns the stream of connection lifecycle events (agent found,
// state changes, pairing required, upload progress, reconnect attempts).
func (s *Service) Events() <-chan connmgr.ConnectionEvent {
	return s.manager.Events()
}

// Run starts continuous mDNS discovery and, when autoConnect is true,
// connects to every Agent as it is discovered. Blocks until ctx is
// cancelled.
func (s *Service) Run(ctx context.Context, autoConnect bool) error {
	s.manager.StartDiscovery(ctx, 5*time.Second)
	s.log.Info("capydeploy hub starting", "version", version.Full(), "name", s.hubName())

	if autoConnect {
		go s.autoConnectLoop(ctx)
	}

	go s.trackMetrics(ctx)

	<-ctx.Done()
	s.manager.Shutdown()
	return nil
}

// autoConnectLoop dials every newly discovered Agent this Hub hasn't
// connected to yet.
func (s *Service) autoConnectLoop(ctx context.Context) {
	for ev := range s.manager.Events() {
		if ev.Kind != connmgr.EventAgentFound || ev.Agent == nil {
			continue
		}
		agent := *ev.Agent
		go func() {
			dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			if err := s.manager.ConnectAgent(dialCtx, agent); err != nil {
				s.log.Warn("auto-connect failed", "agent", agent.Info.Name, "error", err)
			}
		}()
	}
}

func (s *Service) trackMetrics(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.metrics.setConnectedAgents(len(s.ConnectedAgents()))
		}
	}
}

func (s *Service) hubName() string {
	if s.configMgr != nil {
		return s.configMgr.GetName()
	}
	return "CapyDeploy Hub"
}

// ListAgents returns every Agent currently tracked by the connection
// manager (discovered, connecting, connected, or reconnecting).
func (s *Service) ListAgents() []AgentSummary {
	tracked := s.manager.GetConnected()
	out := make([]AgentSummary, 0, len(tracked))
	for _, ca := range tracked {
		out = append(out, AgentSummary{
			ID:       ca.Agent.Info.ID,
			Name:     ca.Agent.Info.Name,
			Platform: ca.Agent.Info.Platform,
			Host:     ca.Agent.Host,
			Port:     ca.Agent.Port,
			State:    ca.State.String(),
			Online:   ca.State == connmgr.StateConnected,
		})
	}
	return out
}

// ConnectedAgents returns only the Agents currently in the Connected state.
func (s *Service) ConnectedAgents() []AgentSummary {
	all := s.ListAgents()
	out := all[:0]
	for _, a := range all {
		if a.Online {
			out = append(out, a)
		}
	}
	return out
}

// RefreshDiscovery performs a one-shot mDNS scan and returns what it found.
func (s *Service) RefreshDiscovery(ctx context.Context) ([]*discovery.DiscoveredAgent, error) {
	return s.manager.RefreshDiscovery(ctx, 3*time.Second)
}

// ConnectAgent dials a specific discovered Agent by its full record.
func (s *Service) ConnectAgent(ctx context.Context, agent discovery.DiscoveredAgent) error {
	return s.manager.ConnectAgent(ctx, agent)
}

// DisconnectAgent closes the connection to id and stops tracking it for
// automatic reconnect.
func (s *Service) DisconnectAgent(id string) error {
	return s.manager.DisconnectAgent(id)
}

// ConfirmPairing completes a pending pairing for agentID using the code
// displayed on that Agent.
func (s *Service) ConfirmPairing(ctx context.Context, agentID, code string) error {
	return s.manager.ConfirmPairing(ctx, agentID, code)
}

// client returns the live wsclient.Client for a connected agent, or an
// error describing why it's unavailable.
func (s *Service) client(agentID string) (*wsclient.Client, error) {
	c, ok := s.manager.RawClient(agentID)
	if !ok {
		return nil, fmt.Errorf("agent %s is not connected", agentID)
	}
	return c, nil
}

// GameSetups returns all saved game setups.
func (s *Service) GameSetups() ([]config.GameSetup, error) {
	return config.GetGameSetups()
}

// AddGameSetup adds a new game setup.
func (s *Service) AddGameSetup(setup config.GameSetup) error {
	return config.AddGameSetup(setup)
}

// UpdateGameSetup updates an existing game setup.
func (s *Service) UpdateGameSetup(id string, setup config.GameSetup) error {
	return config.UpdateGameSetup(id, setup)
}

// RemoveGameSetup removes a game setup.
func (s *Service) RemoveGameSetup(id string) error {
	return config.RemoveGameSetup(id)
}

// HubInfo is the Hub's self-identity, reported to the operator and to
// connecting Agents.
type HubInfo struct {
	ID       string
	Name     string
	Platform string
}

// GetHubInfo returns the Hub's identity.
func (s *Service) GetHubInfo() HubInfo {
	if s.configMgr == nil {
		return HubInfo{Name: "CapyDeploy Hub"}
	}
	cfg := s.configMgr.GetConfig()
	return HubInfo{ID: cfg.ID, Name: cfg.Name, Platform: cfg.Platform}
}

// SetHubName sets the Hub's display name, advertised to Agents on connect.
func (s *Service) SetHubName(name string) error {
	if s.configMgr == nil {
		return fmt.Errorf("config manager not initialized")
	}
	return s.configMgr.SetName(name)
}

// GetSteamGridDBAPIKey returns the configured SteamGridDB API key.
func (s *Service) GetSteamGridDBAPIKey() (string, error) {
	return config.GetSteamGridDBAPIKey()
}

// SetSteamGridDBAPIKey saves the SteamGridDB API key.
func (s *Service) SetSteamGridDBAPIKey(apiKey string) error {
	return config.SetSteamGridDBAPIKey(apiKey)
}

// GetImageCacheEnabled returns whether local artwork caching is enabled.
func (s *Service) GetImageCacheEnabled() (bool, error) {
	return config.GetImageCacheEnabled()
}

// SetImageCacheEnabled enables or disables local artwork caching, clearing
// the cache immediately when disabling it.
func (s *Service) SetImageCacheEnabled(enabled bool) error {
	if err := config.SetImageCacheEnabled(enabled); err != nil {
		return err
	}
	if !enabled {
		return steamgriddb.ClearImageCache()
	}
	return nil
}

// GetCacheSize returns the size in bytes of the local artwork cache.
func (s *Service) GetCacheSize() (int64, error) {
	return steamgriddb.GetCacheSize()
}

// ClearImageCache deletes the local artwork cache.
func (s *Service) ClearImageCache() error {
	return steamgriddb.ClearImageCache()
}

func (s *Service) steamGridDBClient() (*steamgriddb.Client, error) {
	apiKey, err := config.GetSteamGridDBAPIKey()
	if err != nil || apiKey == "" {
		return nil, fmt.Errorf("steamgriddb API key not configured")
	}
	return steamgriddb.NewClient(apiKey), nil
}

// SearchGames searches SteamGridDB by title.
func (s *Service) SearchGames(query string) ([]steamgriddb.SearchResult, error) {
	client, err := s.steamGridDBClient()
	if err != nil {
		return nil, err
	}
	return client.Search(query)
}

// GetGrids returns grid artwork candidates for a SteamGridDB game ID.
func (s *Service) GetGrids(gameID int, filters steamgriddb.ImageFilters, page int) ([]steamgriddb.GridData, error) {
	client, err := s.steamGridDBClient()
	if err != nil {
		return nil, err
	}
	return client.GetGrids(gameID, &filters, page)
}

// GetHeroes returns hero banner candidates for a SteamGridDB game ID.
func (s *Service) GetHeroes(gameID int, filters steamgriddb.ImageFilters, page int) ([]steamgriddb.ImageData, error) {
	client, err := s.steamGridDBClient()
	if err != nil {
		return nil, err
	}
	return client.GetHeroes(gameID, &filters, page)
}

// GetLogos returns logo candidates for a SteamGridDB game ID.
func (s *Service) GetLogos(gameID int, filters steamgriddb.ImageFilters, page int) ([]steamgriddb.ImageData, error) {
	client, err := s.steamGridDBClient()
	if err != nil {
		return nil, err
	}
	return client.GetLogos(gameID, &filters, page)
}

// GetIcons returns icon candidates for a SteamGridDB game ID.
func (s *Service) GetIcons(gameID int, filters steamgriddb.ImageFilters, page int) ([]steamgriddb.ImageData, error) {
	client, err := s.steamGridDBClient()
	if err != nil {
		return nil, err
	}
	return client.GetIcons(gameID, &filters, page)
}
