package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-melcloud/internal/history"
	"github.com/nerrad567/gray-logic-melcloud/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-melcloud/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-melcloud/internal/melcloud"
)

// Bridge operation constants.
const (
	// commandTimeout bounds a command round trip through MELCloud,
	// including the set debounce window.
	commandTimeout = 60 * time.Second

	// pollStagger is the delay between per-device polls within one
	// cycle, spreading load on the cloud service.
	pollStagger = 2 * time.Second

	// pruneInterval is how often old history rows are swept.
	pruneInterval = 24 * time.Hour
)

// Logger is the structured logging interface used by the bridge.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// MQTTClient is the interface for MQTT operations.
// This allows mocking in tests and flexibility in implementation.
type MQTTClient interface {
	// Publish sends a message to a topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// Subscribe registers a handler for a topic pattern.
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error

	// IsConnected returns true if connected to the broker.
	IsConnected() bool
}

// ClimateDevice is the device-side surface the bridge drives.
// Satisfied by the typed MELCloud devices.
type ClimateDevice interface {
	// ID returns the MELCloud device identifier.
	ID() int

	// Kind returns the device kind label ("ata", "atw", "erv").
	Kind() string

	// Name returns the device name.
	Name() string

	// Update fetches fresh conf and state records from the cloud.
	Update(ctx context.Context) error

	// Set schedules property writes; blocks until the coalesced
	// submission completes.
	Set(ctx context.Context, properties map[string]any) error

	// Snapshot returns the normalized state view, nil before the
	// first poll.
	Snapshot() map[string]any
}

// energyMeter is implemented by devices that report cumulative energy
// consumption. Checked per device during the telemetry pass.
type energyMeter interface {
	HasEnergyConsumedMeter() bool
	TotalEnergyConsumed() *float64
}

// HistoryRecorder persists state snapshots. Optional; if nil the
// bridge operates without local history.
type HistoryRecorder interface {
	RecordStateChange(ctx context.Context, deviceID int, deviceType string, state map[string]any, source string) error
	PruneHistory(ctx context.Context, olderThan time.Duration) (int64, error)
}

// TelemetrySink receives numeric device metrics. Optional; if nil the
// bridge operates without telemetry.
type TelemetrySink interface {
	WriteDeviceMetric(deviceID int, measurement string, value float64)
	WriteEnergyMetric(deviceID int, energyKWh float64)
}

// Bridge connects MELCloud devices to the Gray Logic MQTT bus.
// It handles:
//   - Receiving commands from Core via MQTT and applying them to devices
//   - Polling devices and publishing retained state on change
//   - Health reporting, history recording, telemetry, graceful shutdown
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	cfg       config.BridgeConfig
	qos       byte
	mqtt      MQTTClient
	health    *HealthReporter
	history   HistoryRecorder // Optional state history persistence
	telemetry TelemetrySink   // Optional metrics sink
	topics    mqtt.Topics

	// Devices keyed by MELCloud device ID (built at construction)
	devices map[int]ClimateDevice

	// State cache for change detection
	stateCache   map[int]map[string]any
	stateCacheMu sync.Mutex

	// Shutdown coordination
	done      chan struct{}
	wg        sync.WaitGroup
	stopOnce  sync.Once
	stopMu    sync.Mutex // Guards stopping against late wg.Add from command handlers
	stopping  bool
	ctx       context.Context    // Bridge-level context, cancelled on Stop()
	ctxCancel context.CancelFunc // Cancel function for ctx

	// Logger
	logger   Logger
	loggerMu sync.RWMutex
}

// Options holds configuration for creating a bridge.
type Options struct {
	// Config is the bridge section of the loaded configuration.
	Config config.BridgeConfig

	// QoS is the MQTT quality of service for bridge traffic.
	QoS byte

	// MQTTClient is the MQTT client implementation.
	MQTTClient MQTTClient

	// Devices are the MELCloud devices to manage.
	Devices []ClimateDevice

	// Version is the bridge software version, reported in health.
	Version string

	// Logger is optional structured logger.
	Logger Logger

	// History is optional state history persistence.
	History HistoryRecorder

	// Telemetry is optional metrics sink.
	Telemetry TelemetrySink
}

// New creates a bridge instance.
// Call Start to begin operation.
func New(opts Options) (*Bridge, error) {
	if opts.MQTTClient == nil {
		return nil, fmt.Errorf("MQTT client is required")
	}
	if len(opts.Devices) == 0 {
		return nil, fmt.Errorf("at least one device is required")
	}

	// Bridge-level context aborts in-flight commands on shutdown
	ctx, ctxCancel := context.WithCancel(context.Background())

	b := &Bridge{
		cfg:        opts.Config,
		qos:        opts.QoS,
		mqtt:       opts.MQTTClient,
		history:    opts.History,   // May be nil (optional)
		telemetry:  opts.Telemetry, // May be nil (optional)
		devices:    make(map[int]ClimateDevice, len(opts.Devices)),
		stateCache: make(map[int]map[string]any),
		done:       make(chan struct{}),
		ctx:        ctx,
		ctxCancel:  ctxCancel,
		logger:     opts.Logger,
	}
	for _, device := range opts.Devices {
		b.devices[device.ID()] = device
	}

	b.health = NewHealthReporter(HealthReporterConfig{
		BridgeID:  opts.Config.ID,
		Version:   opts.Version,
		Interval:  opts.Config.HealthInterval,
		Publisher: opts.MQTTClient,
	})
	b.health.SetDeviceCount(len(b.devices))
	if opts.Logger != nil {
		b.health.SetLogger(opts.Logger)
	}

	return b, nil
}

// Start begins bridge operation: subscribes to command topics, starts
// the poll loop and health reporting.
func (b *Bridge) Start(ctx context.Context) error {
	if err := b.health.PublishStarting(); err != nil {
		b.logError("failed to publish starting status", err)
	}

	commandTopic := b.topics.AllCommands()
	if err := b.mqtt.Subscribe(commandTopic, b.qos, b.handleCommandMessage); err != nil {
		return fmt.Errorf("subscribe to commands: %w", err)
	}
	b.logInfo("subscribed to commands", "topic", commandTopic)

	b.health.Start(ctx)

	b.wg.Add(1)
	go b.pollLoop()

	if b.history != nil {
		b.wg.Add(1)
		go b.pruneLoop()
	}

	b.logInfo("bridge started",
		"bridge_id", b.cfg.ID,
		"devices", len(b.devices),
		"poll_interval", b.cfg.PollInterval)

	return nil
}

// Stop gracefully shuts down the bridge.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.stopMu.Lock()
		b.stopping = true
		b.stopMu.Unlock()

		close(b.done)

		// Cancel bridge context to abort in-flight commands and polls
		b.ctxCancel()

		// Stop health reporting (publishes "stopping" status)
		b.health.Stop()

		b.wg.Wait()

		b.logInfo("bridge stopped")
	})
}

// PollNow polls every device once, outside the regular schedule.
// Used at startup to publish initial retained state.
func (b *Bridge) PollNow() {
	b.pollAll()
}

// pollLoop fetches device state on the configured interval.
func (b *Bridge) pollLoop() {
	defer b.wg.Done()

	interval := b.cfg.PollInterval
	if interval <= 0 {
		interval = 60 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-b.done:
			return
		case <-ticker.C:
			b.pollAll()
		}
	}
}

// pollAll updates every device in ID order, staggered to avoid bursts
// against the cloud service.
func (b *Bridge) pollAll() {
	ids := make([]int, 0, len(b.devices))
	for id := range b.devices {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	for i, id := range ids {
		if i > 0 {
			select {
			case <-b.done:
				return
			case <-time.After(pollStagger):
			}
		}
		b.pollDevice(b.devices[id])
	}
}

// pollDevice refreshes one device and fans the result out to state
// publication, history, and telemetry.
func (b *Bridge) pollDevice(device ClimateDevice) {
	if err := device.Update(b.ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		b.logError("device poll failed", err, "device_id", device.ID())
		return
	}

	b.publishStateIfChanged(device, history.SourcePoll)
	b.writeTelemetry(device)
}

// publishStateIfChanged diffs the device snapshot against the cache
// and, on change, publishes retained state and records history.
func (b *Bridge) publishStateIfChanged(device ClimateDevice, source string) {
	snap := device.Snapshot()
	if snap == nil {
		return
	}

	b.stateCacheMu.Lock()
	unchanged := reflect.DeepEqual(b.stateCache[device.ID()], snap)
	if !unchanged {
		b.stateCache[device.ID()] = snap
	}
	b.stateCacheMu.Unlock()
	if unchanged {
		return
	}

	msg := StateMessage{
		DeviceID:  device.ID(),
		Name:      device.Name(),
		Kind:      device.Kind(),
		Timestamp: time.Now().UTC(),
		State:     snap,
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		b.logError("failed to marshal state", err, "device_id", device.ID())
		return
	}
	if err := b.mqtt.Publish(b.topics.State(device.ID()), payload, b.qos, true); err != nil {
		b.logError("failed to publish state", err, "device_id", device.ID())
	}

	if b.history != nil {
		if err := b.history.RecordStateChange(b.ctx, device.ID(), device.Kind(), snap, source); err != nil {
			b.logError("failed to record state history", err, "device_id", device.ID())
		}
	}

	b.logDebug("state published", "device_id", device.ID(), "source", source)
}

// writeTelemetry forwards numeric snapshot fields and energy readings
// to the telemetry sink. Called on every successful poll so the series
// stay continuous even when state is unchanged.
func (b *Bridge) writeTelemetry(device ClimateDevice) {
	if b.telemetry == nil {
		return
	}

	snap := device.Snapshot()
	for field, value := range snap {
		if f, ok := value.(float64); ok {
			b.telemetry.WriteDeviceMetric(device.ID(), field, f)
		}
	}

	if meter, ok := device.(energyMeter); ok && meter.HasEnergyConsumedMeter() {
		if kwh := meter.TotalEnergyConsumed(); kwh != nil {
			b.telemetry.WriteEnergyMetric(device.ID(), *kwh)
		}
	}
}

// pruneLoop sweeps old history rows on a daily schedule.
func (b *Bridge) pruneLoop() {
	defer b.wg.Done()

	retention := b.cfg.HistoryRetention
	if retention <= 0 {
		return
	}
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.done:
			return
		case <-ticker.C:
			removed, err := b.history.PruneHistory(b.ctx, retention)
			if err != nil {
				b.logError("history prune failed", err)
				continue
			}
			if removed > 0 {
				b.logInfo("pruned state history", "rows", removed)
			}
		}
	}
}

// handleCommandMessage processes a command from Core.
func (b *Bridge) handleCommandMessage(topic string, payload []byte) {
	deviceID, err := deviceIDFromTopic(topic)
	if err != nil {
		b.logError("invalid command topic", err, "topic", topic)
		return
	}

	var cmd CommandMessage
	if err := json.Unmarshal(payload, &cmd); err != nil {
		b.logError("failed to parse command", err, "topic", topic)
		return
	}

	b.logInfo("received command",
		"command_id", cmd.ID,
		"device_id", deviceID,
		"properties", len(cmd.Properties))

	device, ok := b.devices[deviceID]
	if !ok {
		b.publishAckError(cmd, deviceID, ErrCodeNotConfigured,
			fmt.Sprintf("device %d not managed by this bridge", deviceID))
		return
	}
	if len(cmd.Properties) == 0 {
		b.publishAckError(cmd, deviceID, ErrCodeInvalidParameters, "command carries no properties")
		return
	}

	// Adding to the wait group after Stop has begun waiting is a
	// sync.WaitGroup misuse; drop commands that arrive mid-shutdown.
	// The mutex pairs with Stop setting stopping before wg.Wait.
	b.stopMu.Lock()
	if b.stopping {
		b.stopMu.Unlock()
		b.logInfo("dropping command received during shutdown", "command_id", cmd.ID)
		return
	}
	// Set blocks through the debounce window; run it off the MQTT
	// handler goroutine so a slow round trip cannot stall the client.
	b.wg.Add(1)
	b.stopMu.Unlock()

	go func() {
		defer b.wg.Done()
		b.executeCommand(device, cmd)
	}()
}

// executeCommand applies a command's properties to a device and acks
// the outcome.
func (b *Bridge) executeCommand(device ClimateDevice, cmd CommandMessage) {
	ctx, cancel := context.WithTimeout(b.ctx, commandTimeout)
	defer cancel()

	if err := device.Set(ctx, cmd.Properties); err != nil {
		b.publishAckError(cmd, device.ID(), ackErrorCode(err), err.Error())
		return
	}

	b.publishAck(cmd, device.ID(), AckAccepted)

	// The submission response already replaced device state; publish it
	// without waiting for the next poll.
	b.publishStateIfChanged(device, history.SourceCommand)
}

// ackErrorCode maps a device error to a bridge interface error code.
func ackErrorCode(err error) string {
	switch {
	case errors.Is(err, melcloud.ErrInvalidProperty),
		errors.Is(err, melcloud.ErrInvalidEnumValue):
		return ErrCodeInvalidParameters
	case errors.Is(err, melcloud.ErrStateNeverPolled),
		errors.Is(err, melcloud.ErrUnsupportedDevice):
		return ErrCodeInvalidCommand
	default:
		return ErrCodeCloudUnreachable
	}
}

// publishAck publishes a command acknowledgment.
func (b *Bridge) publishAck(cmd CommandMessage, deviceID int, status AckStatus) {
	ack := NewAckMessage(cmd, deviceID, status)

	payload, err := json.Marshal(ack)
	if err != nil {
		b.logError("failed to marshal ack", err)
		return
	}

	if err := b.mqtt.Publish(b.topics.Ack(deviceID), payload, b.qos, false); err != nil {
		b.logError("failed to publish ack", err)
	}
}

// publishAckError publishes a failed command acknowledgment.
func (b *Bridge) publishAckError(cmd CommandMessage, deviceID int, code, message string) {
	ack := NewAckError(cmd, deviceID, code, message)

	payload, err := json.Marshal(ack)
	if err != nil {
		b.logError("failed to marshal ack error", err)
		return
	}

	if err := b.mqtt.Publish(b.topics.Ack(deviceID), payload, b.qos, false); err != nil {
		b.logError("failed to publish ack error", err)
	}

	b.logError("command failed",
		fmt.Errorf("code=%s message=%s", code, message),
		"device_id", deviceID)
}

// deviceIDFromTopic extracts the trailing device ID segment of a
// command topic.
func deviceIDFromTopic(topic string) (int, error) {
	idx := strings.LastIndex(topic, "/")
	if idx < 0 || idx == len(topic)-1 {
		return 0, fmt.Errorf("topic %q carries no device id", topic)
	}
	id, err := strconv.Atoi(topic[idx+1:])
	if err != nil {
		return 0, fmt.Errorf("topic %q carries no device id: %w", topic, err)
	}
	return id, nil
}

// SetLogger sets the logger for the bridge.
func (b *Bridge) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()
}

func (b *Bridge) getLogger() Logger {
	b.loggerMu.RLock()
	defer b.loggerMu.RUnlock()
	return b.logger
}

func (b *Bridge) logInfo(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

func (b *Bridge) logDebug(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}

func (b *Bridge) logError(msg string, err error, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Error(msg, append([]any{"error", err}, keysAndValues...)...)
	}
}
