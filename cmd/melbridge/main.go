// Gray Logic MELCloud Bridge
//
// This is the main entry point for the MELCloud bridge process. It
// connects Mitsubishi Electric climate devices (air-to-air heat pumps,
// air-to-water systems, energy recovery ventilators) to the Gray Logic
// MQTT bus through the vendor's MELCloud service.
//
// The bridge is a sibling process to Gray Logic Core: Core publishes
// commands, this bridge applies them upstream and feeds state back.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nerrad567/gray-logic-melcloud/internal/bridge"
	"github.com/nerrad567/gray-logic-melcloud/internal/history"
	"github.com/nerrad567/gray-logic-melcloud/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-melcloud/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-melcloud/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-melcloud/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-melcloud/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-melcloud/internal/melcloud"
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
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Gray Logic MELCloud bridge",
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

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(cfg.Database)
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
		return fmt.Errorf("preparing database schema: %w", migrateErr)
	}
	log.Info("database schema ready")

	// Log in to MELCloud and enumerate devices
	cloud, err := melcloud.Connect(ctx, cfg.MELCloud)
	if err != nil {
		return fmt.Errorf("connecting to MELCloud: %w", err)
	}
	log.Info("MELCloud authenticated")

	devices, err := cloud.Devices(ctx)
	if err != nil {
		return fmt.Errorf("listing MELCloud devices: %w", err)
	}
	climateDevices := collectDevices(devices)
	if len(climateDevices) == 0 {
		return fmt.Errorf("no devices on the MELCloud account")
	}
	log.Info("MELCloud devices enumerated",
		"ata", len(devices.Ata),
		"atw", len(devices.Atw),
		"erv", len(devices.Erv),
	)

	// Connect to MQTT broker. The registered will carries the same
	// health-message schema the bridge publishes, so subscribers on the
	// health topic parse one format whether the exit was clean or not.
	lwtPayload, err := json.Marshal(bridge.NewLWTMessage(cfg.Bridge.ID))
	if err != nil {
		return fmt.Errorf("building LWT payload: %w", err)
	}
	mqttClient, err := mqtt.Connect(cfg.MQTT, mqtt.WithWill(lwtPayload))
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
	var telemetry bridge.TelemetrySink
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
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		telemetry = influxClient
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Build and start the bridge
	repo := history.NewRepository(db)
	mel, err := bridge.New(bridge.Options{
		Config:     cfg.Bridge,
		QoS:        byte(cfg.MQTT.QoS), //nolint:gosec // QoS validated to 0..2
		MQTTClient: &mqttBridgeAdapter{client: mqttClient},
		Devices:    climateDevices,
		Version:    version,
		Logger:     log,
		History:    repo,
		Telemetry:  telemetry,
	})
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}
	if err := mel.Start(ctx); err != nil {
		return fmt.Errorf("starting bridge: %w", err)
	}
	defer func() {
		log.Info("stopping bridge")
		mel.Stop()
	}()

	// Publish initial retained state before settling into the poll loop
	mel.PollNow()

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. Bridge
	// 2. InfluxDB (if enabled)
	// 3. MQTT
	// 4. Database

	log.Info("Gray Logic MELCloud bridge stopped")
	return nil
}

// collectDevices flattens the typed device groups into the bridge's
// device list.
func collectDevices(devices *melcloud.Devices) []bridge.ClimateDevice {
	var out []bridge.ClimateDevice
	for _, d := range devices.Ata {
		out = append(out, d)
	}
	for _, d := range devices.Atw {
		out = append(out, d)
	}
	for _, d := range devices.Erv {
		out = append(out, d)
	}
	return out
}

// getConfigPath returns the configuration file path.
// Uses MELBRIDGE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("MELBRIDGE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// mqttBridgeAdapter adapts the infrastructure MQTT client to the
// bridge's MQTTClient interface. The difference is the Subscribe
// handler signature:
//   - Infrastructure mqtt: func(topic string, payload []byte) error
//   - Bridge expects: func(topic string, payload []byte)
type mqttBridgeAdapter struct {
	client *mqtt.Client
}

// Publish implements bridge.MQTTClient.
func (a *mqttBridgeAdapter) Publish(topic string, payload []byte, qos byte, retained bool) error {
	return a.client.Publish(topic, payload, qos, retained)
}

// Subscribe implements bridge.MQTTClient.
func (a *mqttBridgeAdapter) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	// Wrap the void handler; bridge handlers don't return errors
	return a.client.Subscribe(topic, qos, func(t string, p []byte) error {
		handler(t, p)
		return nil
	})
}

// IsConnected implements bridge.MQTTClient.
func (a *mqttBridgeAdapter) IsConnected() bool {
	return a.client.IsConnected()
}
