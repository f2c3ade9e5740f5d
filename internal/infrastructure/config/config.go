package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DriverSimulator selects the in-process device simulator. Hardware drivers
// plug in behind the tplink.Dialer interface.
const DriverSimulator = "simulator"

// Config is the root configuration structure for the TP-Link bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Bridge   BridgeConfig   `yaml:"bridge"`
	Database DatabaseConfig `yaml:"database"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
	TPLink   TPLinkConfig   `yaml:"tplink"`
}

// BridgeConfig identifies this bridge instance on the bus.
type BridgeConfig struct {
	ID string `yaml:"id"`

	// HealthInterval is how often health is published, in seconds.
	HealthInterval int `yaml:"health_interval"`

	// HistoryRetentionDays bounds the state_history table. 0 keeps everything.
	HistoryRetentionDays int `yaml:"history_retention_days"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TPLinkConfig lists the devices to manage and how they are polled.
type TPLinkConfig struct {
	// PowerStrips are network addresses of multi-outlet strips.
	PowerStrips []string `yaml:"power_strips"`

	// Plugs are network addresses of standalone smart plugs.
	Plugs []string `yaml:"plugs"`

	// TypeOther holds device ids materialized with the OTHER category
	// instead of SMARTPLUG.
	TypeOther []string `yaml:"type_other"`

	// Driver selects the device driver.
	// Default: "simulator"
	Driver string `yaml:"driver"`

	// PollInterval is the sleep between reconciliation passes, in seconds.
	// Default: 5
	PollInterval int `yaml:"poll_interval"`

	// DeviceTimeout bounds every individual device call, in seconds.
	// Default: 3
	DeviceTimeout int `yaml:"device_timeout"`

	// CommandTimeout bounds a full on/off command including the follow-up
	// refresh, in seconds.
	// Default: 5
	CommandTimeout int `yaml:"command_timeout"`

	// MaxParallelReads limits concurrent device reads within one pass.
	// Default: 4
	MaxParallelReads int `yaml:"max_parallel_reads"`

	// StaleAfter marks a record stale in health reports once it has not
	// been refreshed for this many seconds. 0 disables the check.
	StaleAfter int `yaml:"stale_after"`

	Restart RestartConfig `yaml:"restart"`
}

// RestartConfig controls supervised restarts of the poll loop.
type RestartConfig struct {
	Enabled bool `yaml:"enabled"`

	// Delay between restart attempts, in seconds.
	Delay int `yaml:"delay"`

	// MaxAttempts limits restarts. 0 means unlimited.
	MaxAttempts int `yaml:"max_attempts"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: GRAYLOGIC_TPLINK_SECTION_KEY
// For example: GRAYLOGIC_TPLINK_DATABASE_PATH, GRAYLOGIC_TPLINK_MQTT_HOST
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Bridge: BridgeConfig{
			ID:             "tplink-bridge-01",
			HealthInterval: 30,
		},
		Database: DatabaseConfig{
			Path:        "./data/tplink.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "graylogic-tplink",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		TPLink: TPLinkConfig{
			Driver:           DriverSimulator,
			PollInterval:     5,
			DeviceTimeout:    3,
			CommandTimeout:   5,
			MaxParallelReads: 4,
			Restart: RestartConfig{
				Enabled:     true,
				Delay:       5,
				MaxAttempts: 10,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GRAYLOGIC_TPLINK_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("GRAYLOGIC_TPLINK_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("GRAYLOGIC_TPLINK_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("GRAYLOGIC_TPLINK_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("GRAYLOGIC_TPLINK_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	if v := os.Getenv("GRAYLOGIC_TPLINK_DRIVER"); v != "" {
		cfg.TPLink.Driver = v
	}
	if v := os.Getenv("GRAYLOGIC_TPLINK_POLL_INTERVAL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.TPLink.PollInterval = n
		}
	}
}

// Validate checks the configuration for errors.
//
// All problems are reported together so an installer can fix the file in one pass.
func (c *Config) Validate() error {
	var errs []string

	if c.Bridge.ID == "" {
		errs = append(errs, "bridge.id is required")
	}
	if c.Bridge.HealthInterval < 1 {
		errs = append(errs, "bridge.health_interval must be at least 1 second")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	t := c.TPLink
	if t.Driver != DriverSimulator {
		errs = append(errs, fmt.Sprintf("tplink.driver %q is not supported (use %q)", t.Driver, DriverSimulator))
	}
	if t.PollInterval < 1 {
		errs = append(errs, "tplink.poll_interval must be at least 1 second")
	}
	if t.DeviceTimeout < 1 {
		errs = append(errs, "tplink.device_timeout must be at least 1 second")
	}
	if t.CommandTimeout < t.DeviceTimeout {
		errs = append(errs, "tplink.command_timeout must not be shorter than tplink.device_timeout")
	}
	if t.MaxParallelReads < 1 {
		errs = append(errs, "tplink.max_parallel_reads must be at least 1")
	}
	if t.StaleAfter < 0 {
		errs = append(errs, "tplink.stale_after must not be negative")
	}
	if t.Restart.Delay < 0 || t.Restart.MaxAttempts < 0 {
		errs = append(errs, "tplink.restart delay and max_attempts must not be negative")
	}
	if dup := firstDuplicate(append(append([]string{}, t.PowerStrips...), t.Plugs...)); dup != "" {
		errs = append(errs, fmt.Sprintf("tplink device address %q is listed more than once", dup))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func firstDuplicate(values []string) string {
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			return v
		}
		seen[v] = struct{}{}
	}
	return ""
}

// GetPollInterval returns the poll sleep as a Duration.
func (c *Config) GetPollInterval() time.Duration {
	return time.Duration(c.TPLink.PollInterval) * time.Second
}

// GetDeviceTimeout returns the per-device call timeout as a Duration.
func (c *Config) GetDeviceTimeout() time.Duration {
	return time.Duration(c.TPLink.DeviceTimeout) * time.Second
}

// GetCommandTimeout returns the command timeout as a Duration.
func (c *Config) GetCommandTimeout() time.Duration {
	return time.Duration(c.TPLink.CommandTimeout) * time.Second
}

// GetStaleAfter returns the staleness threshold as a Duration. Zero means disabled.
func (c *Config) GetStaleAfter() time.Duration {
	return time.Duration(c.TPLink.StaleAfter) * time.Second
}

// GetHealthInterval returns the health publishing interval as a Duration.
func (c *Config) GetHealthInterval() time.Duration {
	return time.Duration(c.Bridge.HealthInterval) * time.Second
}

// GetRestartDelay returns the poll-loop restart delay as a Duration.
func (c *Config) GetRestartDelay() time.Duration {
	return time.Duration(c.TPLink.Restart.Delay) * time.Second
}
