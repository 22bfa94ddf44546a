package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the Gray Logic MELCloud bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	MELCloud MELCloudConfig `yaml:"melcloud"`
	Bridge   BridgeConfig   `yaml:"bridge"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Database DatabaseConfig `yaml:"database"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// MELCloudConfig contains MELCloud account and client settings.
type MELCloudConfig struct {
	// Email and Password authenticate against the MELCloud service.
	// Prefer setting these via MELBRIDGE_MELCLOUD_EMAIL / _PASSWORD.
	Email    string `yaml:"email"`
	Password string `yaml:"password"`

	// Token is an optional pre-obtained context key. When set, login is
	// skipped and the token is used directly.
	Token string `yaml:"token"`

	// ConfUpdateInterval rate-limits device configuration list refreshes.
	// Device state polls are not affected. Default: 5m.
	ConfUpdateInterval time.Duration `yaml:"conf_update_interval"`

	// SetDebounce is the quiet period between the last property write and
	// the consolidated update submission. Default: 1s.
	SetDebounce time.Duration `yaml:"set_debounce"`

	// RequestTimeout bounds individual HTTP calls to MELCloud. Default: 30s.
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// BridgeConfig contains bridge behaviour settings.
type BridgeConfig struct {
	// ID identifies this bridge instance in health and status topics.
	ID string `yaml:"id"`

	// PollInterval is how often each device's state is fetched.
	// MELCloud rate-limits aggressively; below 60s is not recommended.
	PollInterval time.Duration `yaml:"poll_interval"`

	// HealthInterval is how often health status is published. Default: 30s.
	HealthInterval time.Duration `yaml:"health_interval"`

	// HistoryRetention is how long state history rows are kept. Default: 720h.
	HistoryRetention time.Duration `yaml:"history_retention"`
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

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
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

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: MELBRIDGE_SECTION_KEY
// For example: MELBRIDGE_MELCLOUD_EMAIL, MELBRIDGE_MQTT_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	// Start with defaults
	cfg := defaultConfig()

	// Read and parse YAML file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		MELCloud: MELCloudConfig{
			ConfUpdateInterval: 5 * time.Minute,
			SetDebounce:        time.Second,
			RequestTimeout:     30 * time.Second,
		},
		Bridge: BridgeConfig{
			ID:               "melcloud-01",
			PollInterval:     60 * time.Second,
			HealthInterval:   30 * time.Second,
			HistoryRetention: 720 * time.Hour,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "graylogic-melcloud",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		Database: DatabaseConfig{
			Path:        "./data/melbridge.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: MELBRIDGE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// MELCloud credentials (always prefer env over file for secrets)
	if v := os.Getenv("MELBRIDGE_MELCLOUD_EMAIL"); v != "" {
		cfg.MELCloud.Email = v
	}
	if v := os.Getenv("MELBRIDGE_MELCLOUD_PASSWORD"); v != "" {
		cfg.MELCloud.Password = v
	}
	if v := os.Getenv("MELBRIDGE_MELCLOUD_TOKEN"); v != "" {
		cfg.MELCloud.Token = v
	}

	// MQTT
	if v := os.Getenv("MELBRIDGE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("MELBRIDGE_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("MELBRIDGE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("MELBRIDGE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// Database
	if v := os.Getenv("MELBRIDGE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// InfluxDB
	if v := os.Getenv("MELBRIDGE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// MELCloud validation: either a token or full credentials are required.
	if c.MELCloud.Token == "" && (c.MELCloud.Email == "" || c.MELCloud.Password == "") {
		errs = append(errs, "melcloud: email and password (or token) are required")
	}
	if c.MELCloud.ConfUpdateInterval <= 0 {
		errs = append(errs, "melcloud.conf_update_interval must be positive")
	}
	if c.MELCloud.SetDebounce <= 0 {
		errs = append(errs, "melcloud.set_debounce must be positive")
	}

	// Bridge validation
	if c.Bridge.ID == "" {
		errs = append(errs, "bridge.id is required")
	}
	if c.Bridge.PollInterval < 10*time.Second {
		errs = append(errs, "bridge.poll_interval must be at least 10s")
	}

	// MQTT validation
	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if c.MQTT.Broker.Port <= 0 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// InfluxDB validation (only when enabled)
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Org == "" {
			errs = append(errs, "influxdb.org is required when influxdb is enabled")
		}
		if c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.bucket is required when influxdb is enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}

	return nil
}
