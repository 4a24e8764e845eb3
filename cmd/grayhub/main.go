// Gray Logic Hub - device state synchronisation and access-control dispatch.
//
// The hub ingests sensor, lock, lighting and smoke alarm state from the
// MQTT bus, keeps an authoritative in-memory view of every device, fans
// changes out to WebSocket subscribers, and verifies lock commands
// (PIN, fingerprint proxy, face) before publishing them back to the bus.
//
// Usage:
//
//	grayhub [--config path]
//	grayhub token [--config path] [--subject name] [--role admin|viewer] [--ttl 1h]
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/gray-logic-hub/internal/api"
	"github.com/nerrad567/gray-logic-hub/internal/audit"
	"github.com/nerrad567/gray-logic-hub/internal/auth"
	"github.com/nerrad567/gray-logic-hub/internal/clock"
	"github.com/nerrad567/gray-logic-hub/internal/command"
	"github.com/nerrad567/gray-logic-hub/internal/device"
	"github.com/nerrad567/gray-logic-hub/internal/fanout"
	"github.com/nerrad567/gray-logic-hub/internal/history"
	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-hub/internal/ingest"
	"github.com/nerrad567/gray-logic-hub/internal/relock"
	"github.com/nerrad567/gray-logic-hub/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	args := os.Args[1:]
	var err error
	if len(args) > 0 && args[0] == "token" {
		err = runToken(args[1:], os.Stdout)
	} else {
		err = run(ctx, args)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// configFlag registers --config on fs, defaulting to GRAYLOGIC_CONFIG.
func configFlag(fs *pflag.FlagSet) *string {
	def := defaultConfigPath
	if path := os.Getenv("GRAYLOGIC_CONFIG"); path != "" {
		def = path
	}
	return fs.StringP("config", "c", def, "path to config.yaml (env GRAYLOGIC_CONFIG)")
}

// runToken mints an access token for the admin API.
func runToken(args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("token", pflag.ContinueOnError)
	configPath := configFlag(fs)
	subject := fs.String("subject", "installer", "token subject recorded in audit entries")
	role := fs.String("role", string(auth.RoleAdmin), "token role: admin or viewer")
	ttl := fs.Duration("ttl", 0, "token lifetime (default security.jwt.access_token_ttl)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	r := auth.Role(*role)
	if r != auth.RoleAdmin && r != auth.RoleViewer {
		return fmt.Errorf("unknown role %q", *role)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	lifetime := *ttl
	if lifetime <= 0 {
		lifetime = time.Duration(cfg.Security.JWT.AccessTokenTTL) * time.Minute
	}

	token, err := auth.GenerateAccessToken(*subject, r, cfg.Security.JWT.Secret, lifetime)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}
	fmt.Fprintln(out, token)
	return nil
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - args: Command-line arguments without the program name
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("grayhub", pflag.ContinueOnError)
	configPath := configFlag(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	log := logging.Default()
	log.Info("starting Gray Logic Hub",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "path", *configPath, "level", cfg.Logging.Level)

	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log)
	mqttClient.SetOnConnect(func() { log.Info("MQTT reconnected") })
	mqttClient.SetOnDisconnect(func(err error) { log.Warn("MQTT disconnected", "error", err) })
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	influxClient, err := influxdb.Connect(ctx, cfg.InfluxDB)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		log.Info("InfluxDB disabled")
	case err != nil:
		return fmt.Errorf("connecting to InfluxDB: %w", err)
	default:
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) { log.Error("InfluxDB write error", "error", err) })
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	}

	h, err := build(cfg, db, mqttClient, influxClient, log)
	if err != nil {
		return err
	}
	defer h.hub.Close()
	if h.relock != nil {
		defer h.relock.Close()
	}

	if err := h.server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := h.server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return h.ingest.Run(gctx) })
	g.Go(func() error { return h.recorder.Run(gctx) })
	g.Go(func() error { return h.pruner.Run(gctx) })

	log.Info("initialisation complete, waiting for shutdown signal")
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("running hub: %w", err)
	}

	log.Info("Gray Logic Hub stopped")
	return nil
}

// hub holds the long-lived components assembled by build.
type hub struct {
	store    *device.Store
	hub      *fanout.Hub
	relock   *relock.Scheduler
	ingest   *ingest.Adapter
	recorder *history.Recorder
	pruner   *history.Pruner
	server   *api.Server
}

// build wires the store, observers, verifier, dispatcher, ingest and API.
// influx may be nil.
func build(cfg *config.Config, db *database.DB, bus *mqtt.Client, influx *influxdb.Client, log *logging.Logger) (*hub, error) {
	clk := clock.Real()

	store := device.NewStore(device.Config{
		EventBuffer: cfg.Store.EventBuffer,
		RejectStale: cfg.Store.RejectStale,
		Clock:       clk,
	})
	store.SetLogger(log)

	fan := fanout.NewHub(cfg.Fanout.QueueSize, clk)
	fan.SetLogger(log)
	store.AddObserver(fanout.NewNotifier(fan))

	historyRepo := history.NewSQLiteRepository(db.DB)
	recorder := history.NewRecorder(historyRepo, history.DefaultQueueSize)
	recorder.SetLogger(log)
	store.AddObserver(recorder)
	pruner := history.NewPruner(historyRepo, clk, cfg.History.GetRetention(), cfg.History.GetPruneInterval())
	pruner.SetLogger(log)
	if influx != nil {
		store.AddObserver(history.NewTelemetry(influx))
	}

	pin, err := auth.NewPINCell(cfg.Locks.InitialPIN, clk)
	if err != nil {
		return nil, fmt.Errorf("initial lock PIN: %w", err)
	}
	principals := auth.NewPrincipalRepository(db.DB)
	verifier := auth.NewVerifier(auth.VerifierOptions{
		PIN:        pin,
		Principals: principals,
		Policy: auth.FacePolicy{
			MinAbsScore: cfg.Locks.Face.MinAbsScore,
			MinGap:      cfg.Locks.Face.MinGap,
		},
	})
	verifier.SetLogger(log)
	auditRepo := audit.NewSQLiteRepository(db.DB)

	opts := command.Options{
		Publisher: bus,
		Store:     store,
		Verifier:  verifier,
		PIN:       pin,
		Audit:     auditRepo,
		Clock:     clk,
		Retry: command.RetryPolicy{
			Retries:        cfg.Locks.Dispatch.Retries,
			InitialBackoff: time.Duration(cfg.Locks.Dispatch.InitialBackoffMS) * time.Millisecond,
			MaxBackoff:     time.Duration(cfg.Locks.Dispatch.MaxBackoffMS) * time.Millisecond,
		},
	}

	// The scheduler needs the dispatcher and the dispatcher drives the
	// scheduler, so the lock func closes over a variable set below.
	var disp *command.Dispatcher
	var sched *relock.Scheduler
	if cfg.Locks.AutoRelockDelay > 0 {
		sched = relock.New(relock.Options{
			Store: store,
			Clock: clk,
			Delay: time.Duration(cfg.Locks.AutoRelockDelay) * time.Second,
			Lock: func(ctx context.Context, lockID string) error {
				_, err := disp.AutoLock(ctx, lockID)
				return err
			},
		})
		sched.SetLogger(log)
		store.AddObserver(sched)
		opts.Relock = sched
		opts.RelockDelay = sched.Delay()
	} else {
		log.Info("auto-relock disabled")
	}
	disp = command.New(opts)
	disp.SetLogger(log)

	adapter := ingest.New(ingest.Options{
		Store:      store,
		Subscriber: bus,
		Clock:      clk,
		QoS:        byte(cfg.MQTT.QoS), // #nosec G115 -- validated 0-2 by config
		Workers:    cfg.Ingest.Workers,
		QueueSize:  cfg.Ingest.QueueSize,
	})
	adapter.SetLogger(log)

	deps := api.Deps{
		Config:     cfg.API,
		WS:         cfg.WebSocket,
		Security:   cfg.Security,
		Logger:     log,
		Store:      store,
		Commands:   disp,
		Fanout:     fan,
		PIN:        pin,
		Principals: principals,
		History:    historyRepo,
		Audit:      auditRepo,
		Ingest:     adapter,
		Bus:        bus,
		Version:    version,
	}
	if sched != nil {
		deps.Relock = sched
	}
	server, err := api.New(deps)
	if err != nil {
		return nil, fmt.Errorf("creating API server: %w", err)
	}

	return &hub{
		store:    store,
		hub:      fan,
		relock:   sched,
		ingest:   adapter,
		recorder: recorder,
		pruner:   pruner,
		server:   server,
	}, nil
}
