// Gray Logic TP-Link Bridge
//
// This is the main entry point for the TP-Link smart plug bridge. It polls
// configured plugs and power strips, mirrors their state onto the Gray Logic
// MQTT bus, materializes one endpoint per outlet and routes on/off commands
// back to the devices.
//
// Startup order: config, logging, database, endpoint registry, MQTT,
// InfluxDB (optional), device driver, bridge, supervised poll loop.
// Shutdown runs in reverse.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/nerrad567/gray-logic-tplink/migrations"

	"github.com/nerrad567/gray-logic-tplink/internal/bridges/tplink"
	"github.com/nerrad567/gray-logic-tplink/internal/bridges/tplink/simulator"
	"github.com/nerrad567/gray-logic-tplink/internal/endpoint"
	"github.com/nerrad567/gray-logic-tplink/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-tplink/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-tplink/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-tplink/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-tplink/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-tplink/internal/supervisor"
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

// configEnvVar overrides defaultConfigPath.
const configEnvVar = "GRAYLOGIC_TPLINK_CONFIG"

func main() {
	// Cancel on Ctrl+C and SIGTERM for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application logic, separated from main for testability.
// It returns nil on clean shutdown.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Gray Logic TP-Link bridge",
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

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	history := endpoint.NewSQLiteStateHistoryRepository(db.DB)
	if days := cfg.Bridge.HistoryRetentionDays; days > 0 {
		pruned, pruneErr := history.PruneHistory(ctx, time.Duration(days)*24*time.Hour)
		if pruneErr != nil {
			log.Warn("state history prune failed", "error", pruneErr)
		} else {
			log.Info("state history pruned", "removed", pruned, "retention_days", days)
		}
	}

	endpoints := endpoint.NewRegistry(endpoint.NewSQLiteRepository(db.DB))
	endpoints.SetLogger(log)
	if refreshErr := endpoints.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading endpoint registry: %w", refreshErr)
	}
	log.Info("endpoint registry initialised", "endpoints", endpoints.Count())

	mqttClient, err := mqtt.Connect(cfg.MQTT, tplink.Protocol)
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
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// InfluxDB is optional. A nil *influxdb.Client must not reach the
	// bridge as a non-nil interface.
	var metrics tplink.EnergyMetrics
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
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
		metrics = influxClient
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	dialer, err := newDialer(cfg)
	if err != nil {
		return err
	}
	log.Info("device driver ready",
		"driver", cfg.TPLink.Driver,
		"strips", len(cfg.TPLink.PowerStrips),
		"plugs", len(cfg.TPLink.Plugs),
	)

	bridge, err := tplink.NewBridge(tplink.BridgeOptions{
		Config:     cfg,
		Dialer:     dialer,
		MQTTClient: mqttClient,
		Endpoints:  endpoints,
		History:    history,
		Metrics:    metrics,
		Version:    version,
		Logger:     log,
	})
	if err != nil {
		return fmt.Errorf("creating TP-Link bridge: %w", err)
	}
	if err := bridge.Start(ctx); err != nil {
		bridge.Stop()
		return fmt.Errorf("starting TP-Link bridge: %w", err)
	}
	defer func() {
		log.Info("stopping TP-Link bridge")
		bridge.Stop()
	}()

	pollLoop := newPollSupervisor(cfg, bridge.Poller())
	pollLoop.SetLogger(log)
	bridge.SetPollLoop(pollLoop)
	if err := pollLoop.Start(ctx); err != nil {
		return fmt.Errorf("starting poll loop: %w", err)
	}
	defer func() {
		log.Info("stopping poll loop")
		pollLoop.Stop()
	}()

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	if err := waitForShutdown(ctx, pollLoop); err != nil {
		log.Error("poll loop ended, shutting down", "error", err, "stats", pollLoop.Stats())
		return err
	}

	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order:
	// poll loop, bridge, InfluxDB (if enabled), MQTT, database.

	log.Info("Gray Logic TP-Link bridge stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses GRAYLOGIC_TPLINK_CONFIG if set, otherwise the default.
func getConfigPath() string {
	if path := os.Getenv(configEnvVar); path != "" {
		return path
	}
	return defaultConfigPath
}

// newDialer returns the device driver selected by tplink.driver.
func newDialer(cfg *config.Config) (tplink.Dialer, error) {
	switch cfg.TPLink.Driver {
	case config.DriverSimulator:
		return simulator.FromAddresses(cfg.TPLink.PowerStrips, cfg.TPLink.Plugs), nil
	default:
		return nil, fmt.Errorf("unsupported device driver %q", cfg.TPLink.Driver)
	}
}

// newPollSupervisor wraps the poll loop in a restarting supervisor.
func newPollSupervisor(cfg *config.Config, poller *tplink.Poller) *supervisor.Manager {
	restart := cfg.TPLink.Restart
	return supervisor.NewManager(supervisor.Config{
		Name:               "tplink-poller",
		Run:                poller.Run,
		RestartOnFailure:   restart.Enabled,
		RestartDelay:       cfg.GetRestartDelay(),
		MaxRestartAttempts: restart.MaxAttempts,
	})
}

var errPollLoopExited = errors.New("exited without an error")

// loopWatcher reports the end of poll loop supervision.
// Satisfied by *supervisor.Manager.
type loopWatcher interface {
	Done() <-chan struct{}
	LastError() error
}

// waitForShutdown blocks until ctx is cancelled or the poll loop's
// supervisor gives up. Only the latter returns an error.
func waitForShutdown(ctx context.Context, loop loopWatcher) error {
	select {
	case <-ctx.Done():
		return nil
	case <-loop.Done():
		if ctx.Err() != nil {
			return nil
		}
		err := loop.LastError()
		if err == nil {
			err = errPollLoopExited
		}
		return fmt.Errorf("poll loop: %w", err)
	}
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
