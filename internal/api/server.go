package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/stillhere/presence-core/internal/auth"
	"github.com/stillhere/presence-core/internal/history"
	"github.com/stillhere/presence-core/internal/infrastructure/config"
	"github.com/stillhere/presence-core/internal/infrastructure/logging"
	"github.com/stillhere/presence-core/internal/presence"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.ServerConfig
	WS       config.WebSocketConfig
	Presence config.PresenceConfig
	Frontend config.FrontendConfig
	Devices  map[string]presence.DeviceConfig
	Logger   *logging.Logger
	Manager  *presence.Manager
	Auth     auth.Authenticator
	History  history.Recorder // optional; nil disables the history endpoint
	Version  string
}

// Server is the HTTP API server for presence-core.
//
// It manages the HTTP listener, routes, middleware, and the WebSocket
// handlers for device sessions and frontend subscribers. The server is
// created with New() and started with Start().
type Server struct {
	cfg        config.ServerConfig
	wsCfg      config.WebSocketConfig
	prsCfg     config.PresenceConfig
	frontend   config.FrontendConfig
	deviceCfgs map[string]presence.DeviceConfig
	logger     *logging.Logger
	manager    *presence.Manager
	auth       auth.Authenticator
	history    history.Recorder
	version    string
	server     *http.Server
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Manager == nil {
		return nil, fmt.Errorf("device manager is required")
	}
	if deps.Auth == nil {
		return nil, fmt.Errorf("authenticator is required")
	}

	return &Server{
		cfg:        deps.Config,
		wsCfg:      deps.WS,
		prsCfg:     deps.Presence,
		frontend:   deps.Frontend,
		deviceCfgs: deps.Devices,
		logger:     deps.Logger,
		manager:    deps.Manager,
		auth:       deps.Auth,
		history:    deps.History,
		version:    deps.Version,
	}, nil
}

// Start begins listening for HTTP connections.
//
// It builds the router and launches the HTTP listener in a background
// goroutine. The server can be stopped with Close().
func (s *Server) Start(_ context.Context) error {
	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

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

// pollOfflineTimeout returns the heartbeat window as a duration. It also
// bounds the first-frame handshake on device WebSocket sessions.
func (s *Server) pollOfflineTimeout() time.Duration {
	return time.Duration(s.prsCfg.PollOfflineTimeout) * time.Second
}

// throttleWindow returns the per-subscriber debounce window.
func (s *Server) throttleWindow() time.Duration {
	return time.Duration(s.prsCfg.FrontendEventThrottle) * time.Millisecond
}
