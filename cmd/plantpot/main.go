// plantpot - plant pot telemetry daemon
//
// This is the main entry point for plantpot-core. It keeps a telemetry link
// to one plant pot (mock, REST polling, WebSocket or MQTT), reconnects with
// backoff when the link drops, stores classified readings and serves them
// to dashboards over HTTP and WebSocket.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/nerrad567/plantpot-core/internal/api"
	"github.com/nerrad567/plantpot-core/internal/connectivity"
	"github.com/nerrad567/plantpot-core/internal/infrastructure/broker"
	"github.com/nerrad567/plantpot-core/internal/infrastructure/config"
	"github.com/nerrad567/plantpot-core/internal/infrastructure/database"
	"github.com/nerrad567/plantpot-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/plantpot-core/internal/infrastructure/logging"
	"github.com/nerrad567/plantpot-core/internal/infrastructure/tsdb"
	"github.com/nerrad567/plantpot-core/internal/readings"
	"github.com/nerrad567/plantpot-core/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting plantpot",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	health := map[string]api.HealthChecker{"database": db}

	// Embedded MQTT broker (optional)
	if cfg.Broker.Enabled {
		b, startErr := broker.Start(broker.Config{
			Address:  cfg.Broker.Address,
			Username: cfg.Device.MQTT.Username,
			Password: cfg.Device.MQTT.Password,
		}, log.Logger)
		if startErr != nil {
			return fmt.Errorf("starting MQTT broker: %w", startErr)
		}
		defer func() {
			log.Info("stopping MQTT broker")
			if closeErr := b.Close(); closeErr != nil {
				log.Error("error stopping MQTT broker", "error", closeErr)
			}
		}()
		if cfg.Device.MQTT.BrokerURL == "" {
			cfg.Device.MQTT.BrokerURL = b.URL()
		}
		log.Info("MQTT broker started", "address", b.Address())
	}

	// Time-series sinks (optional)
	var sinks []readings.TelemetryWriter

	if cfg.InfluxDB.Enabled {
		influxClient, connErr := influxdb.Connect(ctx, cfg.InfluxDB)
		if connErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", connErr)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		sinks = append(sinks, influxClient)
		health["influxdb"] = influxClient
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	var series api.SeriesQuerier
	if cfg.TSDB.Enabled {
		tsdbClient, connErr := tsdb.Connect(ctx, cfg.TSDB)
		if connErr != nil {
			return fmt.Errorf("connecting to TSDB: %w", connErr)
		}
		defer func() {
			log.Info("closing TSDB connection")
			if closeErr := tsdbClient.Close(); closeErr != nil {
				log.Error("error closing TSDB", "error", closeErr)
			}
		}()
		tsdbClient.SetOnError(func(err error) {
			log.Error("TSDB write error", "error", err)
		})
		sinks = append(sinks, tsdbClient)
		series = tsdbClient
		health["tsdb"] = tsdbClient
		log.Info("TSDB connected", "url", cfg.TSDB.URL)
	} else {
		log.Info("TSDB disabled")
	}

	// Prometheus registry
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// Device connection
	connCfg, ctrlOpts := connectionSettings(cfg.Device)
	ctrlOpts.Logger = log.With("component", "connectivity")
	ctrlOpts.Metrics = connectivity.NewMetrics(registry)
	controller := connectivity.NewController(connCfg, ctrlOpts)
	defer func() {
		log.Info("closing device connection")
		controller.Close()
	}()
	log.Info("device connection ready",
		"transport", connCfg.EffectiveTransport(),
		"device_id", connCfg.DeviceID,
		"auto_connect", ctrlOpts.AutoConnect,
	)

	// Readings store
	repo := readings.NewSQLiteRepository(db.DB)
	recorder := readings.NewRecorder(repo, readings.RecorderOptions{
		QueueSize: cfg.Device.Recorder.QueueSize,
		Retention: time.Duration(cfg.Device.Recorder.RetentionDays) * 24 * time.Hour,
		Sinks:     sinks,
		Logger:    log.With("component", "recorder"),
	})
	if startErr := recorder.Start(ctx); startErr != nil {
		return fmt.Errorf("starting recorder: %w", startErr)
	}
	defer func() {
		log.Info("stopping recorder", "stats", recorder.Stats())
		recorder.Stop()
	}()
	if cfg.Device.Recorder.Enabled {
		detach := recorder.Attach(controller)
		defer detach()
		log.Info("recording device telemetry", "retention_days", cfg.Device.Recorder.RetentionDays)
	}

	// HTTP API
	server, err := api.New(api.Deps{
		Config:         cfg.API,
		WS:             cfg.WebSocket,
		Logger:         log,
		Controller:     controller,
		Readings:       repo,
		Recorder:       recorder,
		Series:         series,
		Gatherer:       registry,
		Health:         health,
		DBStats:        db,
		ConnectTimeout: ctrlOpts.ConnectTimeout,
		DeviceID:       connCfg.DeviceID,
		Version:        version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server
	// 2. Recorder (drains queued readings)
	// 3. Device connection
	// 4. TSDB and InfluxDB (flush pending points)
	// 5. MQTT broker
	// 6. Database

	log.Info("plantpot stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses PLANTPOT_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("PLANTPOT_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// connectionSettings maps the device section of the config file onto the
// connection layer's types. Millisecond and second fields become durations;
// zero values are left for the connection layer's defaults.
func connectionSettings(dev config.DeviceConfig) (connectivity.Config, connectivity.ControllerOptions) {
	transport, err := connectivity.ParseTransport(dev.Transport)
	if err != nil {
		// Validate has already rejected unknown names; keep the raw value so
		// the Service reports it on connect.
		transport = connectivity.Transport(dev.Transport)
	}

	connectTimeout := time.Duration(dev.ConnectTimeout) * time.Second

	cfg := connectivity.Config{
		Transport:     transport,
		MockMode:      dev.MockMode,
		RESTBaseURL:   dev.REST.BaseURL,
		WSURL:         dev.WebSocket.URL,
		MQTTBrokerURL: dev.MQTT.BrokerURL,
		MQTTTopic:     dev.MQTT.Topic,
		MQTTUsername:  dev.MQTT.Username,
		MQTTPassword:  dev.MQTT.Password,
		DeviceID:      dev.DeviceID,
		Timing: connectivity.Timing{
			RESTPollInterval: time.Duration(dev.REST.PollInterval) * time.Millisecond,
			ConnectTimeout:   connectTimeout,
		},
	}

	opts := connectivity.ControllerOptions{
		AutoConnect: dev.AutoConnect,
		Backoff: connectivity.BackoffPolicy{
			Initial: time.Duration(dev.Reconnect.InitialDelayMS) * time.Millisecond,
			Max:     time.Duration(dev.Reconnect.MaxDelayMS) * time.Millisecond,
		},
		ConnectTimeout: connectTimeout,
	}
	return cfg, opts
}
