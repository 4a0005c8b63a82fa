// presenced is the presence-core daemon: a self-hosted service that
// tracks the online/idle status of a person's devices and shares an
// aggregate "am I awake / at the computer" view with frontends.
//
// Devices report over HTTP polling or a long-lived WebSocket; frontends
// read a snapshot or subscribe to a debounced push feed. Optional
// integrations announce status over MQTT and record telemetry in
// InfluxDB, and an optional SQLite store keeps a transition history.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/stillhere/presence-core/migrations"

	"github.com/stillhere/presence-core/internal/api"
	"github.com/stillhere/presence-core/internal/auth"
	"github.com/stillhere/presence-core/internal/history"
	"github.com/stillhere/presence-core/internal/infrastructure/config"
	"github.com/stillhere/presence-core/internal/infrastructure/database"
	"github.com/stillhere/presence-core/internal/infrastructure/influxdb"
	"github.com/stillhere/presence-core/internal/infrastructure/logging"
	"github.com/stillhere/presence-core/internal/infrastructure/mqtt"
	"github.com/stillhere/presence-core/internal/presence"
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
	// Cancel on interrupt signals (Ctrl+C, SIGTERM) for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting presence-core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Device manager holds all live presence state
	manager := presence.NewManager(presence.ManagerOptions{
		Device: presence.DeviceOptions{
			PollTimeout: cfg.GetPollOfflineTimeout(),
			Preempt:     presence.PreemptPolicy(cfg.Presence.HTTPPreempt),
			Logger:      log.With("component", "device"),
		},
		UnknownAsOffline: cfg.Presence.UnknownAsOffline,
		Logger:           log.With("component", "manager"),
	}, cfg.Devices)
	log.Info("device manager initialised", "devices", manager.Count())

	// Transition history store (optional)
	var recorder history.Recorder
	if cfg.Database.Enabled {
		db, openErr := database.Open(database.Config{
			Path:        cfg.Database.Path,
			WALMode:     cfg.Database.WALMode,
			BusyTimeout: cfg.Database.BusyTimeout,
		})
		if openErr != nil {
			return fmt.Errorf("opening database: %w", openErr)
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		log.Info("database connected", "path", cfg.Database.Path)

		if migrateErr := db.Migrate(ctx); migrateErr != nil {
			return fmt.Errorf("running migrations: %w", migrateErr)
		}
		log.Info("database migrations complete")

		recorder = history.NewSQLiteRecorder(db.DB)
		tracker := history.NewTracker(recorder, log.With("component", "history"))
		defer manager.OnUpdate(tracker.HandleUpdate)()
	} else {
		log.Info("history store disabled")
	}

	// MQTT announcer (optional)
	if cfg.MQTT.Enabled {
		mqttClient, connErr := mqtt.Connect(cfg.MQTT)
		if connErr != nil {
			return fmt.Errorf("connecting to MQTT: %w", connErr)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		announcer := mqtt.NewAnnouncer(mqttClient, mqttClient.Topics(),
			manager.OverallStatus, log.With("component", "announcer"))
		defer manager.OnUpdate(announcer.HandleUpdate)()

		// Republish the aggregate after (re)connects so the retained
		// topics recover from broker restarts.
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT connected, republishing status")
			if pubErr := announcer.PublishOverall(); pubErr != nil {
				log.Warn("republishing overall status", "error", pubErr)
			}
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
	} else {
		log.Info("MQTT disabled")
	}

	// InfluxDB telemetry (optional)
	if cfg.InfluxDB.Enabled {
		influxClient, connErr := influxdb.Connect(cfg.InfluxDB)
		if connErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", connErr)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})

		telemetry := influxdb.NewTelemetry(influxClient, manager.Snapshot, manager.OverallStatus)
		defer manager.OnUpdate(telemetry.HandleUpdate)()
	} else {
		log.Info("InfluxDB disabled")
	}

	// Authenticator for mutating routes
	authenticator, err := auth.New(cfg.Security.Mode, cfg.Security.Secret)
	if err != nil {
		return fmt.Errorf("configuring auth: %w", err)
	}
	log.Info("authentication configured", "mode", cfg.Security.Mode)

	// API server
	server, err := api.New(api.Deps{
		Config:   cfg.Server,
		WS:       cfg.WebSocket,
		Presence: cfg.Presence,
		Frontend: cfg.Frontend,
		Devices:  cfg.Devices,
		Logger:   log.With("component", "api"),
		Manager:  manager,
		Auth:     authenticator,
		History:  recorder,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
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
	// 2. InfluxDB (if enabled)
	// 3. MQTT (if enabled)
	// 4. Database (if enabled)

	log.Info("presence-core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses PRESENCE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("PRESENCE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
