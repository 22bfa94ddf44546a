package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// writeConfigFile writes a temporary config file and returns its path.
func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	return path
}

const validConfig = `
melcloud:
  email: "user@example.com"
  password: "hunter2"
bridge:
  id: "melcloud-test"
  poll_interval: 60s
mqtt:
  broker:
    host: "broker.local"
    port: 1883
`

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfigFile(t, validConfig)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.MELCloud.Email != "user@example.com" {
		t.Errorf("MELCloud.Email = %q, want %q", cfg.MELCloud.Email, "user@example.com")
	}
	if cfg.Bridge.ID != "melcloud-test" {
		t.Errorf("Bridge.ID = %q, want %q", cfg.Bridge.ID, "melcloud-test")
	}
	if cfg.MQTT.Broker.Host != "broker.local" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "broker.local")
	}
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfigFile(t, validConfig)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.MELCloud.ConfUpdateInterval != 5*time.Minute {
		t.Errorf("ConfUpdateInterval = %v, want 5m", cfg.MELCloud.ConfUpdateInterval)
	}
	if cfg.MELCloud.SetDebounce != time.Second {
		t.Errorf("SetDebounce = %v, want 1s", cfg.MELCloud.SetDebounce)
	}
	if cfg.Bridge.HealthInterval != 30*time.Second {
		t.Errorf("HealthInterval = %v, want 30s", cfg.Bridge.HealthInterval)
	}
	if cfg.MQTT.QoS != 1 {
		t.Errorf("MQTT.QoS = %d, want 1", cfg.MQTT.QoS)
	}
	if !cfg.Database.WALMode {
		t.Error("Database.WALMode = false, want true")
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "info")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfigFile(t, validConfig)

	t.Setenv("MELBRIDGE_MELCLOUD_EMAIL", "env@example.com")
	t.Setenv("MELBRIDGE_MQTT_HOST", "env-broker.local")
	t.Setenv("MELBRIDGE_MQTT_PORT", "8883")
	t.Setenv("MELBRIDGE_DATABASE_PATH", "/tmp/env.db")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.MELCloud.Email != "env@example.com" {
		t.Errorf("MELCloud.Email = %q, want env override", cfg.MELCloud.Email)
	}
	if cfg.MQTT.Broker.Host != "env-broker.local" {
		t.Errorf("MQTT.Broker.Host = %q, want env override", cfg.MQTT.Broker.Host)
	}
	if cfg.MQTT.Broker.Port != 8883 {
		t.Errorf("MQTT.Broker.Port = %d, want 8883", cfg.MQTT.Broker.Port)
	}
	if cfg.Database.Path != "/tmp/env.db" {
		t.Errorf("Database.Path = %q, want env override", cfg.Database.Path)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfigFile(t, "melcloud: [not: valid")

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "valid config",
			mutate:  func(*Config) {},
			wantErr: "",
		},
		{
			name: "missing credentials",
			mutate: func(c *Config) {
				c.MELCloud.Email = ""
				c.MELCloud.Password = ""
				c.MELCloud.Token = ""
			},
			wantErr: "email and password",
		},
		{
			name: "token alone is sufficient",
			mutate: func(c *Config) {
				c.MELCloud.Email = ""
				c.MELCloud.Password = ""
				c.MELCloud.Token = "abc123"
			},
			wantErr: "",
		},
		{
			name: "zero debounce",
			mutate: func(c *Config) {
				c.MELCloud.SetDebounce = 0
			},
			wantErr: "set_debounce",
		},
		{
			name: "poll interval too low",
			mutate: func(c *Config) {
				c.Bridge.PollInterval = time.Second
			},
			wantErr: "poll_interval",
		},
		{
			name: "missing bridge id",
			mutate: func(c *Config) {
				c.Bridge.ID = ""
			},
			wantErr: "bridge.id",
		},
		{
			name: "invalid qos",
			mutate: func(c *Config) {
				c.MQTT.QoS = 3
			},
			wantErr: "mqtt.qos",
		},
		{
			name: "influxdb enabled without url",
			mutate: func(c *Config) {
				c.InfluxDB.Enabled = true
				c.InfluxDB.Org = "graylogic"
				c.InfluxDB.Bucket = "metrics"
			},
			wantErr: "influxdb.url",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			cfg.MELCloud.Email = "user@example.com"
			cfg.MELCloud.Password = "hunter2"
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() = nil, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}
