// Runtrack Core - Runtime & Connectivity State Engine
//
// This is the main entry point for the Runtrack Core service. It polls
// climate-control devices through the provider API, tracks equipment
// runtime sessions and connectivity, and serves the results over REST,
// WebSocket, MQTT and InfluxDB.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jmcalloway/runtrack-core/migrations"

	"github.com/jmcalloway/runtrack-core/internal/api"
	"github.com/jmcalloway/runtrack-core/internal/auth"
	"github.com/jmcalloway/runtrack-core/internal/device"
	"github.com/jmcalloway/runtrack-core/internal/dispatch"
	"github.com/jmcalloway/runtrack-core/internal/infrastructure/config"
	"github.com/jmcalloway/runtrack-core/internal/infrastructure/database"
	"github.com/jmcalloway/runtrack-core/internal/infrastructure/influxdb"
	"github.com/jmcalloway/runtrack-core/internal/infrastructure/logging"
	"github.com/jmcalloway/runtrack-core/internal/infrastructure/mqtt"
	"github.com/jmcalloway/runtrack-core/internal/poller"
	"github.com/jmcalloway/runtrack-core/internal/provider"
	"github.com/jmcalloway/runtrack-core/internal/runtime"
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
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
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
	log.Info("starting Runtrack Core",
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

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Seed the first-boot admin account if the user table is empty.
	// The generated password is logged once and must be changed.
	userRepo := auth.NewUserRepository(db.DB)
	if _, seedErr := auth.SeedAdmin(ctx, userRepo, log.Logger); seedErr != nil {
		return fmt.Errorf("seeding admin user: %w", seedErr)
	}

	// Runtime repositories: engine-owned state, completed sessions, and
	// emitted-event fingerprints.
	stateRepo := runtime.NewSQLiteStateRepository(db.DB)
	sessionRepo := runtime.NewSQLiteSessionRepository(db.DB)
	fingerprintRepo := runtime.NewSQLiteFingerprintRepository(db.DB)

	// Initialise device registry. The state repository seeds each new
	// device's runtime state row at registration.
	deviceRepo := device.NewSQLiteRepository(db.DB)
	deviceRegistry := device.NewRegistry(deviceRepo, stateRepo)
	deviceRegistry.SetLogger(log)

	if refreshErr := deviceRegistry.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading device registry: %w", refreshErr)
	}
	log.Info("device registry initialised", "devices", deviceRegistry.GetDeviceCount())

	// Connect to MQTT broker
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
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
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
	} else {
		log.Info("InfluxDB disabled")
	}

	// WebSocket hub, shared by the API server and the event dispatcher
	// so runtime events reach connected clients live.
	hub := api.NewHub(cfg.WebSocket, log)
	go hub.Run(ctx)

	// Event dispatcher: MQTT is the required delivery path, WebSocket
	// and InfluxDB are best-effort fan-out.
	var telemetry dispatch.TelemetryWriter
	if influxClient != nil {
		telemetry = influxClient
	}
	dispatcher := dispatch.New(mqttClient, hub, telemetry, byte(cfg.MQTT.QoS))
	dispatcher.SetLogger(log)

	// Provider client and runtime engine
	providerClient := provider.New(cfg.Provider)

	engine := runtime.NewEngine(providerClient, stateRepo, sessionRepo, fingerprintRepo, dispatcher, runtime.Config{
		MaxAccumulate:        time.Duration(cfg.Runtime.MaxAccumulate) * time.Second,
		Heartbeat:            time.Duration(cfg.Runtime.HeartbeatInterval) * time.Second,
		TempTolerance:        cfg.Runtime.TemperatureTolerance,
		TreatBareFanAsActive: cfg.Runtime.TreatBareFanAsActive,
		Scheduler: runtime.SchedulerConfig{
			Min:                  time.Duration(cfg.Runtime.PollIntervalMin) * time.Second,
			Max:                  time.Duration(cfg.Runtime.PollIntervalMax) * time.Second,
			LongSessionThreshold: time.Duration(cfg.Runtime.LongSessionThreshold) * time.Second,
		},
	})
	engine.SetLogger(log)

	// Poller drives the engine over all enabled devices
	devicePoller := poller.New(deviceRepo, engine, stateRepo, cfg.Poller)
	devicePoller.SetLogger(log)
	go func() {
		if runErr := devicePoller.Run(ctx); runErr != nil && ctx.Err() == nil {
			log.Error("poller stopped", "error", runErr)
		}
	}()

	// Start the API server
	apiServer, err := api.New(api.Deps{
		Config:      cfg.API,
		WS:          cfg.WebSocket,
		Security:    cfg.Security,
		Logger:      log,
		Registry:    deviceRegistry,
		Users:       userRepo,
		States:      stateRepo,
		Sessions:    sessionRepo,
		ExternalHub: hub,
		Version:     version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := apiServer.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server started", "address", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port))

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls will run in reverse order:
	// 1. API server
	// 2. InfluxDB (if enabled)
	// 3. MQTT
	// 4. Database

	log.Info("Runtrack Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses RUNTRACK_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("RUNTRACK_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
// influxClient may be nil when InfluxDB is disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
