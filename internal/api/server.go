package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/bluegauge/internal/device"
	"github.com/nerrad567/bluegauge/internal/infrastructure/config"
	"github.com/nerrad567/bluegauge/internal/infrastructure/logging"
	"github.com/nerrad567/bluegauge/internal/scheduler"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 5 * time.Second

// Refresher triggers an immediate update cycle.
type Refresher interface {
	Refresh()
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config    config.APIConfig
	Logger    *logging.Logger
	Registry  *device.Registry
	History   device.BatteryHistory // optional
	Publisher *scheduler.Publisher
	Refresher Refresher // optional

	// Configs exposes the notification settings for editing; ConfigPath
	// is where edits are saved. Both optional.
	Configs    ConfigStore
	ConfigPath string

	Version string
}

// Server is the local status API.
//
// It is created with New, started with Start and stopped with Close.
type Server struct {
	cfg       config.APIConfig
	logger    *logging.Logger
	registry  *device.Registry
	history   device.BatteryHistory
	publisher *scheduler.Publisher
	refresher Refresher
	version   string
	startedAt time.Time

	configs    ConfigStore
	configPath string
	configMu   sync.Mutex

	server *http.Server
	addr   net.Addr
	hub    *Hub
	cancel context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("device registry is required")
	}
	if deps.Publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}

	s := &Server{
		cfg:       deps.Config,
		logger:    deps.Logger,
		registry:  deps.Registry,
		history:   deps.History,
		publisher: deps.Publisher,
		refresher: deps.Refresher,
		version:   deps.Version,
		startedAt: time.Now(),

		configs:    deps.Configs,
		configPath: deps.ConfigPath,
	}
	s.hub = NewHub(deps.Config.WebSocket, deps.Logger)
	return s, nil
}

// Handler returns the router without starting a listener.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start binds the listener and serves in the background. The WebSocket hub
// relays presentations until ctx is cancelled or Close is called.
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	go s.hub.Run(srvCtx)
	go s.relayPresentations(srvCtx)

	s.server = &http.Server{
		Addr:              net.JoinHostPort(s.cfg.Host, fmt.Sprint(s.cfg.Port)),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		s.cancel()
		return fmt.Errorf("listening on %s: %w", s.server.Addr, err)
	}
	s.addr = ln.Addr()

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()
	s.logger.Info("API server listening", "address", s.addr.String())
	return nil
}

// Addr returns the bound address after Start, nil before.
func (s *Server) Addr() net.Addr { return s.addr }

// Close gracefully shuts down the API server.
func (s *Server) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
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

// HealthCheck verifies the API server is running.
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

// relayPresentations broadcasts every published presentation to
// WebSocket clients.
func (s *Server) relayPresentations(ctx context.Context) {
	updates, cancel := s.publisher.Subscribe()
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case p, ok := <-updates:
			if !ok {
				return
			}
			s.hub.Broadcast(WSEventTray, trayViewOf(p))
		}
	}
}
