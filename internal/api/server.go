package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/gray-logic-hub/internal/audit"
	"github.com/nerrad567/gray-logic-hub/internal/auth"
	"github.com/nerrad567/gray-logic-hub/internal/command"
	"github.com/nerrad567/gray-logic-hub/internal/device"
	"github.com/nerrad567/gray-logic-hub/internal/fanout"
	"github.com/nerrad567/gray-logic-hub/internal/history"
	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-hub/internal/ingest"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// DeviceStore is the read side of device.Store.
type DeviceStore interface {
	Read(id string) (device.State, error)
	List() []device.State
	ListByKind(k device.Kind) []device.State
	CountByKind() map[device.Kind]int
	Events(id string, limit int) []device.Event
}

// Commander dispatches verified device commands.
type Commander interface {
	Dispatch(ctx context.Context, req command.Request) (command.Result, error)
	DispatchLight(ctx context.Context, lightID string, cmd command.LightCommand) (command.Result, error)
	RotatePIN(ctx context.Context, actor, pin string) (uint64, error)

	SetAlarmTest(ctx context.Context, alarmID, actor string, on bool) (command.Result, error)
	SetAlarmSensitivity(ctx context.Context, alarmID, actor, level string) (command.Result, error)
	AcknowledgeAlarm(ctx context.Context, alarmID, actor string) (command.Result, error)
}

// PINInfo exposes PIN metadata without the value.
type PINInfo interface {
	Info() auth.PINInfo
}

// RelockStatus reports the auto-relock timers.
type RelockStatus interface {
	Active() []string
	Deadline(lockID string) (time.Time, bool)
	Fired() uint64
}

// IngestStats reports bus ingest counters.
type IngestStats interface {
	Stats() ingest.Stats
	Running() bool
}

// BusStatus reports the bus connection.
type BusStatus interface {
	IsConnected() bool
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig
	Logger   *logging.Logger
	Store    DeviceStore
	Commands Commander
	Fanout   *fanout.Hub

	// Optional.
	PIN        PINInfo
	Principals auth.PrincipalRepository
	History    history.Repository
	Audit      audit.Repository
	Relock     RelockStatus
	Ingest     IngestStats
	Bus        BusStatus
	Version    string
}

// Server is the HTTP API server for the hub.
//
// It manages the HTTP listener, routes, middleware, and WebSocket sessions.
// The server is created with New() and started with Start().
type Server struct {
	cfg        config.APIConfig
	wsCfg      config.WebSocketConfig
	secCfg     config.SecurityConfig
	logger     *logging.Logger
	store      DeviceStore
	commands   Commander
	hub        *fanout.Hub
	pin        PINInfo
	principals auth.PrincipalRepository
	history    history.Repository
	auditRepo  audit.Repository
	relock     RelockStatus
	ingest     IngestStats
	bus        BusStatus
	version    string
	startTime  time.Time

	server *http.Server
	cancel context.CancelFunc // cancels WebSocket sessions on Close()
	ctx    context.Context
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Logger, Store, Commands and Fanout are required
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("device store is required")
	}
	if deps.Commands == nil {
		return nil, fmt.Errorf("command dispatcher is required")
	}
	if deps.Fanout == nil {
		return nil, fmt.Errorf("fanout hub is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:        deps.Config,
		wsCfg:      deps.WS,
		secCfg:     deps.Security,
		logger:     deps.Logger,
		store:      deps.Store,
		commands:   deps.Commands,
		hub:        deps.Fanout,
		pin:        deps.PIN,
		principals: deps.Principals,
		history:    deps.History,
		auditRepo:  deps.Audit,
		relock:     deps.Relock,
		ingest:     deps.Ingest,
		bus:        deps.Bus,
		version:    deps.Version,
		startTime:  time.Now(),
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start begins listening for HTTP connections in a background goroutine.
// The server can be stopped with Close().
//
// Returns:
//   - error: If the server fails to start (port in use, etc.)
func (s *Server) Start(_ context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("API server starting", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It closes WebSocket sessions, then waits up to 10 seconds for in-flight
// requests to complete.
//
// Returns:
//   - error: If shutdown encounters an error
func (s *Server) Close() error {
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
