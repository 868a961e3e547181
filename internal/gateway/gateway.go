// ABOUTME: Gateway orchestrator that builds the agent serving tables at startup
// ABOUTME: Manages the HTTP server lifecycle over TCP or Tailscale listeners

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"time"

	"tailscale.com/tsnet"

	"github.com/seacliff/grounding-gateway/internal/config"
	"github.com/seacliff/grounding-gateway/internal/foundry"
	"github.com/seacliff/grounding-gateway/internal/registry"
)

// Grounder is the backend seam: one grounded query against one agent
// instance. *foundry.Client implements it; tests substitute mocks.
type Grounder interface {
	Ground(ctx context.Context, query string) (*foundry.Result, error)
	AgentID() string
}

// Agent is one live serving entry: a discovered instance with a constructed
// backend client.
type Agent struct {
	Route   string
	Model   string
	Index   int
	AgentID string
	backend Grounder
}

// clientFactory constructs the backend client for one route entry.
// Split out so tests can inject mock backends.
type clientFactory func(entry registry.RouteEntry) (Grounder, error)

// Gateway serves the grounding HTTP API. The serving tables are built once
// in New and never mutated afterwards, so request handlers read them
// concurrently without locking.
type Gateway struct {
	config      *config.Config
	logger      *slog.Logger
	httpServer  *http.Server
	tsnetServer *tsnet.Server

	byRoute  map[string]*Agent
	byModel  map[string][]*Agent
	routes   []string // sorted, for /health and not-found enumeration
	selector Selector
}

// New discovers agents from the process environment, constructs one backend
// client per instance, and returns a gateway ready to Run.
//
// Construction failures are isolated per instance: a route that fails to
// build is logged and excluded while the rest of the pool serves. A missing
// project endpoint or an empty environment produces a gateway with zero
// agents, surfaced via /health rather than a startup error.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	models := registry.DefaultModelMap()
	if cfg.Agents.ModelMapPath != "" {
		var err error
		models, err = registry.LoadModelMap(cfg.Agents.ModelMapPath)
		if err != nil {
			return nil, fmt.Errorf("loading model map: %w", err)
		}
	}

	builder := registry.NewBuilder(models)
	entries := registry.Flatten(builder.Discover(registry.Snapshot()))

	return newGateway(cfg, logger, entries, foundryFactory(cfg))
}

// foundryFactory builds real backend clients against the configured project.
func foundryFactory(cfg *config.Config) clientFactory {
	return func(entry registry.RouteEntry) (Grounder, error) {
		return foundry.NewClient(foundry.Config{
			Endpoint:       cfg.Project.Endpoint,
			AgentID:        entry.AgentID,
			Token:          cfg.Project.Token,
			APIVersion:     cfg.Project.APIVersion,
			RequestTimeout: cfg.Agents.RequestTimeout,
			PollInterval:   cfg.Agents.PollInterval,
		})
	}
}

// newGateway assembles the serving tables and HTTP server from flattened
// route entries.
func newGateway(cfg *config.Config, logger *slog.Logger, entries []registry.RouteEntry, factory clientFactory) (*Gateway, error) {
	g := &Gateway{
		config:   cfg,
		logger:   logger.With("component", "gateway"),
		byRoute:  make(map[string]*Agent),
		byModel:  make(map[string][]*Agent),
		selector: UniformRandom(),
	}

	if cfg.Project.Endpoint == "" {
		g.logger.Warn("project endpoint not configured, serving with no agents (set AZURE_AI_PROJECT_ENDPOINT)")
	} else if len(entries) == 0 {
		g.logger.Warn("no agent bindings found in environment", "prefix", registry.EnvPrefix)
	}

	// Register in (model, index) order so byModel pools stay index-sorted.
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Model != entries[j].Model {
			return entries[i].Model < entries[j].Model
		}
		return entries[i].Index < entries[j].Index
	})

	for _, entry := range entries {
		backend, err := factory(entry)
		if err != nil {
			// Isolate the failure: the rest of the pool still serves.
			g.logger.Warn("failed to initialize agent, excluding from pool",
				"route", entry.Route,
				"agent_id", entry.AgentID,
				"error", err,
			)
			continue
		}

		agent := &Agent{
			Route:   entry.Route,
			Model:   entry.Model,
			Index:   entry.Index,
			AgentID: entry.AgentID,
			backend: backend,
		}
		g.byRoute[agent.Route] = agent
		g.byModel[agent.Model] = append(g.byModel[agent.Model], agent)
		g.routes = append(g.routes, agent.Route)

		g.logger.Info("registered agent",
			"route", agent.Route,
			"model", agent.Model,
			"agent_id", agent.AgentID,
		)
	}
	sort.Strings(g.routes)

	g.logger.Info("agent pool ready", "agents", len(g.byRoute), "models", len(g.byModel))

	mux := http.NewServeMux()
	mux.HandleFunc("/health", g.handleHealth)
	mux.HandleFunc("/health/ready", g.handleReady)
	mux.HandleFunc("/agents", g.handleListAgents)
	mux.HandleFunc("/bing-grounding", g.handleGroundModel)
	mux.HandleFunc("/bing-grounding/", g.handleGroundRoute)

	g.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return g, nil
}

// setupTCPListener creates a standard TCP listener for the HTTP server.
func (g *Gateway) setupTCPListener() (net.Listener, error) {
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return nil, fmt.Errorf("listening on HTTP address: %w", err)
	}
	return ln, nil
}

// resolveTailscaleStateDir returns the state directory, using default if not configured.
func resolveTailscaleStateDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory for tailscale state (set tailscale.state_dir explicitly): %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "grounding-gateway", "tailscale"), nil
}

// resolveTailscaleAuthKey returns the auth key from config or environment.
func resolveTailscaleAuthKey(configured string) (string, error) {
	authKey := configured
	if authKey == "" {
		authKey = os.Getenv("TS_AUTHKEY")
	}
	if authKey == "" {
		return "", errors.New("tailscale auth key required: set auth_key in config or TS_AUTHKEY environment variable")
	}
	return authKey, nil
}

// setupTailscaleListener creates a tsnet server and returns its HTTP listener.
func (g *Gateway) setupTailscaleListener(ctx context.Context) (net.Listener, error) {
	tsCfg := g.config.Tailscale

	stateDir, err := resolveTailscaleStateDir(tsCfg.StateDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return nil, fmt.Errorf("creating tailscale state dir: %w", err)
	}

	authKey, err := resolveTailscaleAuthKey(tsCfg.AuthKey)
	if err != nil {
		return nil, err
	}

	g.tsnetServer = &tsnet.Server{
		Hostname:  tsCfg.Hostname,
		Dir:       stateDir,
		Ephemeral: tsCfg.Ephemeral,
		AuthKey:   authKey,
	}

	g.logger.Info("starting tailscale node", "hostname", tsCfg.Hostname, "state_dir", stateDir, "ephemeral", tsCfg.Ephemeral)
	if _, err := g.tsnetServer.Up(ctx); err != nil {
		_ = g.tsnetServer.Close()
		return nil, fmt.Errorf("starting tailscale: %w", err)
	}

	ln, err := g.tsnetServer.Listen("tcp", ":80")
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, fmt.Errorf("listening on tailscale HTTP port: %w", err)
	}
	return ln, nil
}

// setupListener creates a listener based on configuration (Tailscale or TCP).
func (g *Gateway) setupListener(ctx context.Context) (net.Listener, error) {
	if g.config.Tailscale.Enabled {
		if g.config.Server.HTTPAddr != "" {
			g.logger.Warn("server.http_addr is ignored when tailscale is enabled", "http_addr", g.config.Server.HTTPAddr)
		}
		return g.setupTailscaleListener(ctx)
	}
	return g.setupTCPListener()
}

// Run starts the HTTP server and blocks until the context is canceled.
// Returns nil on graceful shutdown, or an error if the server fails.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := g.setupListener(ctx)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		g.logger.Error("server error", "error", serverErr)
	}

	shutdownErr := g.gracefulShutdown()
	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() intentionally since the original context is already canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// Shutdown gracefully stops the HTTP server and releases the tsnet node.
func (g *Gateway) Shutdown(ctx context.Context) error {
	var errs []error

	if err := g.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("HTTP server shutdown: %w", err))
	}

	if g.tsnetServer != nil {
		if err := g.tsnetServer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("tailscale close: %w", err))
		}
	}

	g.logger.Info("gateway stopped")
	return errors.Join(errs...)
}
