package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/gray-pulse/internal/infrastructure/config"
	"github.com/nerrad567/gray-pulse/internal/infrastructure/logging"
	"github.com/nerrad567/gray-pulse/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-pulse/internal/oscillator"
	"github.com/nerrad567/gray-pulse/internal/relay"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Actuator is the relay device capability the API needs.
// Implemented by *shelly.Client.
type Actuator interface {
	Relays(ctx context.Context) ([]bool, error)
	RelayState(ctx context.Context, relayID int) (bool, error)
	SetRelay(ctx context.Context, relayID int, on bool) (bool, error)
	Toggle(ctx context.Context, relayID int) (bool, error)
	HealthCheck(ctx context.Context) error
}

// Notifier receives command-driven relay changes so they reach MQTT and
// WebSocket subscribers. Implemented by *events.Publisher.
type Notifier interface {
	RelayCommanded(relayID int, on bool)
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config     config.APIConfig
	WS         config.WebSocketConfig
	Logger     *logging.Logger
	Actuator   Actuator
	Controller *oscillator.Controller
	Monitor    *relay.Monitor // optional: nil when background polling is disabled
	Notifier   Notifier       // optional: nil drops command events
	MQTT       *mqtt.Client   // optional: health/metrics reporting only
	Version    string
	Commit     string
	BuildDate  string
}

// Server is the HTTP API server for Gray Pulse.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg        config.APIConfig
	wsCfg      config.WebSocketConfig
	logger     *logging.Logger
	actuator   Actuator
	controller *oscillator.Controller
	monitor    *relay.Monitor
	notifier   Notifier
	mqtt       *mqtt.Client
	version    string
	commit     string
	buildDate  string
	startTime  time.Time
	server     *http.Server
	hub        *Hub
	cancel     context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Actuator == nil {
		return nil, fmt.Errorf("actuator is required")
	}
	if deps.Controller == nil {
		return nil, fmt.Errorf("oscillation controller is required")
	}
	// Monitor, Notifier and MQTT are optional; without them the server
	// still serves reads and direct relay control.

	return &Server{
		cfg:        deps.Config,
		wsCfg:      deps.WS,
		logger:     deps.Logger,
		actuator:   deps.Actuator,
		controller: deps.Controller,
		monitor:    deps.Monitor,
		notifier:   deps.Notifier,
		mqtt:       deps.MQTT,
		version:    deps.Version,
		commit:     deps.Commit,
		buildDate:  deps.BuildDate,
		startTime:  time.Now(),
		hub:        NewHub(deps.WS, deps.Logger),
	}, nil
}

// Hub returns the server's WebSocket hub. The hub exists as soon as the
// server is constructed, so the events publisher can be wired to it
// before Start().
func (s *Server) Hub() *Hub {
	return s.hub
}

// SetNotifier wires the command event notifier. The publisher needs the
// server's hub, so it is built after New(); call this before Start().
func (s *Server) SetNotifier(n Notifier) {
	s.notifier = n
}

// SetMonitor wires the background poller into health and metrics
// reporting. Call before Start().
func (s *Server) SetMonitor(m *relay.Monitor) {
	s.monitor = m
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub, builds the router, and launches the HTTP
// listener in a background goroutine. The server is stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	// Internal context so Close() can stop the hub independently of the
	// parent context.
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	go s.hub.Run(srvCtx)

	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	// Start listening in background
	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	// Stop the hub and disconnect WebSocket clients
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
