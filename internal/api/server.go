// Package api provides the local HTTP status and control API of the agent.
//
// It exposes the connection state, component health and the command
// journal, and lets local tooling publish subscribe requests and
// pre-encoded reports through the running session:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// The API has no authentication. Bind it to loopback.
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/nerrad567/thingplug-agent/internal/agent"
	"github.com/nerrad567/thingplug-agent/internal/infrastructure/config"
	"github.com/nerrad567/thingplug-agent/internal/infrastructure/logging"
	"github.com/nerrad567/thingplug-agent/internal/journal"
	"github.com/nerrad567/thingplug-agent/internal/message"
	"github.com/nerrad567/thingplug-agent/internal/status"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Agent is the part of agent.Agent the API drives.
type Agent interface {
	State() agent.State
	HealthCheck(ctx context.Context) error
	ReportRaw(ctx context.Context, kind message.Kind, format message.Format, payload []byte) (status.Code, error)
	Subscribe(ctx context.Context, req message.SubscribeRequest) (status.Code, error)
	AppendTelemetry(ctx context.Context, chunk []byte) (status.Code, error)
	ReportAppendedTelemetry(ctx context.Context) (status.Code, error)
}

// HealthChecker is a component reported by GET /health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// DropCounter reports journal entries lost to a full queue.
type DropCounter interface {
	Dropped() uint64
}

// Deps holds the dependencies of the API server. Journal, Dropped and
// Checks are optional.
type Deps struct {
	Config  config.APIConfig
	Logger  *logging.Logger
	Agent   Agent
	Journal journal.Repository
	Dropped DropCounter
	// Checks are extra components for GET /health, keyed by name.
	Checks  map[string]HealthChecker
	Version string
}

// Server is the HTTP API server.
type Server struct {
	cfg     config.APIConfig
	logger  *logging.Logger
	agent   Agent
	journal journal.Repository
	dropped DropCounter
	checks  map[string]HealthChecker
	version string

	server *http.Server

	mu       sync.Mutex
	listener net.Listener
}

// New creates an API server. It does not listen until Start.
//
// Parameters:
//   - deps: Logger and Agent are required
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Agent == nil {
		return nil, fmt.Errorf("agent is required")
	}

	return &Server{
		cfg:     deps.Config,
		logger:  deps.Logger,
		agent:   deps.Agent,
		journal: deps.Journal,
		dropped: deps.Dropped,
		checks:  deps.Checks,
		version: deps.Version,
	}, nil
}

// Start binds the listener and serves in the background. A bind failure
// (port in use, bad host) is returned here.
func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	s.logger.Info("API server listening", "address", ln.Addr().String())
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close gracefully shuts down the API server, waiting up to 10 seconds
// for in-flight requests.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}
