package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/plantpot-core/internal/connectivity"
	"github.com/nerrad567/plantpot-core/internal/infrastructure/config"
	"github.com/nerrad567/plantpot-core/internal/infrastructure/logging"
	"github.com/nerrad567/plantpot-core/internal/readings"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// SeriesQuerier reads historical telemetry from a time-series database.
// Satisfied by *tsdb.Client.
type SeriesQuerier interface {
	QueryDeviceSeries(ctx context.Context, deviceID, field string, start, end time.Time, step time.Duration) (json.RawMessage, error)
}

// HealthChecker is a dependency whose health is reported by GET /health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config config.APIConfig
	WS     config.WebSocketConfig
	Logger *logging.Logger

	// Controller is the device connection controller. Required.
	Controller *connectivity.Controller

	// Readings serves the stored-reading routes. Required.
	Readings readings.Repository

	// Recorder stores readings created through the API. When nil the
	// server writes straight to Readings.
	Recorder *readings.Recorder

	// Series serves historical charts. Optional.
	Series SeriesQuerier

	// Gatherer is exposed on /metrics. Defaults to prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer

	// Health lists named dependencies reported by the health route.
	Health map[string]HealthChecker

	// DBStats reports connection pool statistics for the metrics route. Optional.
	DBStats DBStatser

	// ConnectTimeout bounds connect attempts started by the API.
	// Defaults to connectivity.DefaultConnectTimeout.
	ConnectTimeout time.Duration

	// DeviceID is used for readings that name no device.
	DeviceID string
	Version  string
}

// Server is the HTTP API server for plantpot-core.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg        config.APIConfig
	logger     *logging.Logger
	controller *connectivity.Controller
	readings   readings.Repository
	recorder   *readings.Recorder
	series     SeriesQuerier
	gatherer   prometheus.Gatherer
	health     map[string]HealthChecker
	dbStats    DBStatser
	deviceID   string
	version    string
	startTime  time.Time

	connectTimeout time.Duration

	server  *http.Server
	hub     *Hub
	hubOnce sync.Once
	mu      sync.Mutex
	unsubs  []func()

	// ctx parents background work (hub, API-initiated connects) and is
	// cancelled by Close.
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (logger, controller, readings repository)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Controller == nil {
		return nil, fmt.Errorf("connection controller is required")
	}
	if deps.Readings == nil {
		return nil, fmt.Errorf("readings repository is required")
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}
	if deps.DeviceID == "" {
		deps.DeviceID = connectivity.DefaultDeviceID
	}
	if deps.ConnectTimeout <= 0 {
		deps.ConnectTimeout = connectivity.DefaultConnectTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:        deps.Config,
		logger:     deps.Logger,
		controller: deps.Controller,
		readings:   deps.Readings,
		recorder:   deps.Recorder,
		series:     deps.Series,
		gatherer:   deps.Gatherer,
		health:     deps.Health,
		dbStats:    deps.DBStats,
		deviceID:   deps.DeviceID,
		version:    deps.Version,
		startTime:  time.Now(),

		connectTimeout: deps.ConnectTimeout,
		hub:            NewHub(deps.WS, deps.Logger),
		ctx:            ctx,
		cancel:         cancel,
	}, nil
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub, relays controller events to it and launches
// the HTTP listener in a background goroutine. The server can be stopped
// with Close().
//
// Parameters:
//   - ctx: Cancelling it stops the hub; the listener runs until Close
//
// Returns:
//   - error: If the server fails to start
func (s *Server) Start(ctx context.Context) error {
	context.AfterFunc(ctx, s.cancel)
	s.startHub()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
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

// Handler starts the WebSocket hub and returns the router without starting
// a listener, for callers that serve the API from their own http.Server.
// Close still stops the hub.
func (s *Server) Handler() http.Handler {
	s.startHub()
	return s.buildRouter()
}

// startHub runs the WebSocket hub and relays controller events to it.
func (s *Server) startHub() {
	s.hubOnce.Do(func() {
		go s.hub.Run(s.ctx)
		unsubs := s.relayControllerEvents()
		s.mu.Lock()
		s.unsubs = unsubs
		s.mu.Unlock()
	})
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
//
// Returns:
//   - error: If shutdown encounters an error
func (s *Server) Close() error {
	s.mu.Lock()
	unsubs := s.unsubs
	s.unsubs = nil
	s.mu.Unlock()
	for _, unsub := range unsubs {
		unsub()
	}
	s.cancel()

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
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
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
