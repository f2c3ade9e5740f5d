package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	content := `
bridge:
  id: "tplink-test"
database:
  path: "/tmp/test.db"
mqtt:
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
tplink:
  driver: simulator
  power_strips:
    - "192.168.1.20"
  plugs:
    - "192.168.1.21"
    - "192.168.1.22"
  type_other:
    - "AABBCCDDEEFF"
  poll_interval: 10
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Bridge.ID != "tplink-test" {
		t.Errorf("Bridge.ID = %q, want %q", cfg.Bridge.ID, "tplink-test")
	}
	if len(cfg.TPLink.PowerStrips) != 1 || cfg.TPLink.PowerStrips[0] != "192.168.1.20" {
		t.Errorf("TPLink.PowerStrips = %v, want [192.168.1.20]", cfg.TPLink.PowerStrips)
	}
	if len(cfg.TPLink.Plugs) != 2 {
		t.Errorf("len(TPLink.Plugs) = %d, want 2", len(cfg.TPLink.Plugs))
	}
	if cfg.GetPollInterval() != 10*time.Second {
		t.Errorf("GetPollInterval() = %v, want 10s", cfg.GetPollInterval())
	}
	// Unset keys keep their defaults.
	if cfg.GetDeviceTimeout() != 3*time.Second {
		t.Errorf("GetDeviceTimeout() = %v, want 3s", cfg.GetDeviceTimeout())
	}
	if cfg.TPLink.MaxParallelReads != 4 {
		t.Errorf("TPLink.MaxParallelReads = %d, want 4", cfg.TPLink.MaxParallelReads)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "invalid: [yaml: content"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	content := `
bridge:
  id: ""
tplink:
  driver: "zigbee"
`
	_, err := Load(writeConfig(t, content))
	if err == nil {
		t.Fatal("Load() expected validation error, got nil")
	}
	// Both problems are reported at once.
	if !strings.Contains(err.Error(), "bridge.id") || !strings.Contains(err.Error(), "tplink.driver") {
		t.Errorf("Load() error = %v, want both bridge.id and tplink.driver", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "defaults are valid", mutate: func(*Config) {}, wantErr: false},
		{name: "missing bridge ID", mutate: func(c *Config) { c.Bridge.ID = "" }, wantErr: true},
		{name: "missing database path", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: true},
		{name: "invalid QoS", mutate: func(c *Config) { c.MQTT.QoS = 3 }, wantErr: true},
		{name: "influx enabled without url", mutate: func(c *Config) { c.InfluxDB.Enabled = true }, wantErr: true},
		{name: "unknown driver", mutate: func(c *Config) { c.TPLink.Driver = "hs1xx" }, wantErr: true},
		{name: "zero poll interval", mutate: func(c *Config) { c.TPLink.PollInterval = 0 }, wantErr: true},
		{name: "zero device timeout", mutate: func(c *Config) { c.TPLink.DeviceTimeout = 0 }, wantErr: true},
		{
			name:    "command timeout shorter than device timeout",
			mutate:  func(c *Config) { c.TPLink.DeviceTimeout = 5; c.TPLink.CommandTimeout = 2 },
			wantErr: true,
		},
		{name: "zero parallel reads", mutate: func(c *Config) { c.TPLink.MaxParallelReads = 0 }, wantErr: true},
		{name: "negative stale after", mutate: func(c *Config) { c.TPLink.StaleAfter = -1 }, wantErr: true},
		{
			name: "duplicate address across strips and plugs",
			mutate: func(c *Config) {
				c.TPLink.PowerStrips = []string{"10.0.0.5"}
				c.TPLink.Plugs = []string{"10.0.0.6", "10.0.0.5"}
			},
			wantErr: true,
		},
		{
			name: "distinct addresses",
			mutate: func(c *Config) {
				c.TPLink.PowerStrips = []string{"10.0.0.5"}
				c.TPLink.Plugs = []string{"10.0.0.6"}
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_GetDurations(t *testing.T) {
	cfg := &Config{
		Bridge: BridgeConfig{HealthInterval: 15},
		TPLink: TPLinkConfig{
			PollInterval:   5,
			DeviceTimeout:  2,
			CommandTimeout: 6,
			StaleAfter:     60,
			Restart:        RestartConfig{Delay: 7},
		},
	}

	checks := []struct {
		name string
		got  time.Duration
		want time.Duration
	}{
		{"GetPollInterval", cfg.GetPollInterval(), 5 * time.Second},
		{"GetDeviceTimeout", cfg.GetDeviceTimeout(), 2 * time.Second},
		{"GetCommandTimeout", cfg.GetCommandTimeout(), 6 * time.Second},
		{"GetStaleAfter", cfg.GetStaleAfter(), time.Minute},
		{"GetHealthInterval", cfg.GetHealthInterval(), 15 * time.Second},
		{"GetRestartDelay", cfg.GetRestartDelay(), 7 * time.Second},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s() = %v, want %v", c.name, c.got, c.want)
		}
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("GRAYLOGIC_TPLINK_DATABASE_PATH", "/custom/path.db")
	t.Setenv("GRAYLOGIC_TPLINK_MQTT_HOST", "mqtt.example.com")
	t.Setenv("GRAYLOGIC_TPLINK_MQTT_USERNAME", "testuser")
	t.Setenv("GRAYLOGIC_TPLINK_MQTT_PASSWORD", "testpass")
	t.Setenv("GRAYLOGIC_TPLINK_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("GRAYLOGIC_TPLINK_DRIVER", "simulator")
	t.Setenv("GRAYLOGIC_TPLINK_POLL_INTERVAL", "12")

	applyEnvOverrides(cfg)

	if cfg.Database.Path != "/custom/path.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/custom/path.db")
	}
	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}
	if cfg.MQTT.Auth.Username != "testuser" {
		t.Errorf("MQTT.Auth.Username = %q, want %q", cfg.MQTT.Auth.Username, "testuser")
	}
	if cfg.MQTT.Auth.Password != "testpass" {
		t.Errorf("MQTT.Auth.Password = %q, want %q", cfg.MQTT.Auth.Password, "testpass")
	}
	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}
	if cfg.TPLink.Driver != DriverSimulator {
		t.Errorf("TPLink.Driver = %q, want %q", cfg.TPLink.Driver, DriverSimulator)
	}
	if cfg.TPLink.PollInterval != 12 {
		t.Errorf("TPLink.PollInterval = %d, want 12", cfg.TPLink.PollInterval)
	}
}

func TestApplyEnvOverrides_BadPollIntervalIgnored(t *testing.T) {
	cfg := defaultConfig()
	t.Setenv("GRAYLOGIC_TPLINK_POLL_INTERVAL", "soon")

	applyEnvOverrides(cfg)

	if cfg.TPLink.PollInterval != 5 {
		t.Errorf("TPLink.PollInterval = %d, want 5", cfg.TPLink.PollInterval)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Bridge.ID == "" {
		t.Error("defaultConfig should have non-empty Bridge.ID")
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
	if cfg.TPLink.PollInterval != 5 {
		t.Errorf("defaultConfig TPLink.PollInterval = %d, want 5", cfg.TPLink.PollInterval)
	}
	if cfg.TPLink.StaleAfter != 0 {
		t.Errorf("defaultConfig TPLink.StaleAfter = %d, want 0", cfg.TPLink.StaleAfter)
	}
}
