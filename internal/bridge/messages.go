package bridge

import "time"

// MQTT message types exchanged between Gray Logic Core and this bridge.
// The shapes match the wire contract shared by all Gray Logic protocol
// bridges.

// protocolName identifies this bridge in acks and health messages.
const protocolName = "melcloud"

// CommandMessage is sent from Core to the bridge to change device state.
// Topic: graylogic/command/melcloud/{device_id}
type CommandMessage struct {
	// ID uniquely identifies this command for correlation with acks.
	ID string `json:"id"`

	// Timestamp is when the command was issued (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// Properties maps writable property names to their new values,
	// e.g. {"power": true, "target_temperature": 21.5}.
	Properties map[string]any `json:"properties"`

	// Source indicates where the command originated.
	// Values: "api", "automation", "voice", "scene"
	Source string `json:"source,omitempty"`
}

// AckStatus represents the acknowledgment status of a command.
type AckStatus string

const (
	// AckAccepted indicates the command was submitted to MELCloud.
	AckAccepted AckStatus = "accepted"

	// AckFailed indicates the command could not be executed.
	AckFailed AckStatus = "failed"
)

// Error codes for command failures.
const (
	ErrCodeInvalidCommand    = "INVALID_COMMAND"
	ErrCodeInvalidParameters = "INVALID_PARAMETERS"
	ErrCodeNotConfigured     = "NOT_CONFIGURED"
	ErrCodeCloudUnreachable  = "CLOUD_UNREACHABLE"
)

// AckMessage is sent from the bridge to Core to acknowledge a command.
// Topic: graylogic/ack/melcloud/{device_id}
type AckMessage struct {
	// CommandID is the ID from the original command.
	CommandID string `json:"command_id"`

	// Timestamp is when the acknowledgment was sent (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// DeviceID is the MELCloud device identifier.
	DeviceID int `json:"device_id"`

	// Status indicates the acknowledgment status.
	Status AckStatus `json:"status"`

	// Protocol is the protocol identifier ("melcloud").
	Protocol string `json:"protocol"`

	// Error contains details if status is "failed".
	Error *AckError `json:"error,omitempty"`
}

// AckError contains error details for failed commands.
type AckError struct {
	// Code is the error code (e.g., "INVALID_PARAMETERS").
	Code string `json:"code"`

	// Message is a human-readable error description.
	Message string `json:"message"`
}

// NewAckMessage builds a success acknowledgment for a command.
func NewAckMessage(cmd CommandMessage, deviceID int, status AckStatus) AckMessage {
	return AckMessage{
		CommandID: cmd.ID,
		Timestamp: time.Now().UTC(),
		DeviceID:  deviceID,
		Status:    status,
		Protocol:  protocolName,
	}
}

// NewAckError builds a failure acknowledgment for a command.
func NewAckError(cmd CommandMessage, deviceID int, code, message string) AckMessage {
	return AckMessage{
		CommandID: cmd.ID,
		Timestamp: time.Now().UTC(),
		DeviceID:  deviceID,
		Status:    AckFailed,
		Protocol:  protocolName,
		Error:     &AckError{Code: code, Message: message},
	}
}

// StateMessage is published by the bridge when device state changes.
// Topic: graylogic/state/melcloud/{device_id}
// QoS: 1, Retained: Yes
type StateMessage struct {
	// DeviceID is the MELCloud device identifier.
	DeviceID int `json:"device_id"`

	// Name is the device name configured in the vendor app.
	Name string `json:"name"`

	// Kind is the device kind label ("ata", "atw", "erv").
	Kind string `json:"kind"`

	// Timestamp is when the state was observed (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// State is the normalized device state snapshot.
	State map[string]any `json:"state"`
}

// HealthStatus represents the operational status of the bridge.
type HealthStatus string

const (
	// HealthHealthy indicates the bridge is operating normally.
	HealthHealthy HealthStatus = "healthy"

	// HealthDegraded indicates the bridge is operating with issues.
	HealthDegraded HealthStatus = "degraded"

	// HealthStarting indicates the bridge is starting up.
	HealthStarting HealthStatus = "starting"

	// HealthStopping indicates the bridge is shutting down.
	HealthStopping HealthStatus = "stopping"

	// HealthOffline is published by the broker's LWT when the bridge
	// disappears without a clean shutdown.
	HealthOffline HealthStatus = "offline"
)

// HealthMessage is published periodically to report bridge health.
// Topic: graylogic/health/melcloud
// QoS: 1, Retained: Yes
type HealthMessage struct {
	// BridgeID is the bridge instance identifier.
	BridgeID string `json:"bridge_id"`

	// Protocol is the protocol identifier ("melcloud").
	Protocol string `json:"protocol"`

	// Version is the bridge software version.
	Version string `json:"version"`

	// Status is the current health status.
	Status HealthStatus `json:"status"`

	// Reason explains a degraded status.
	Reason string `json:"reason,omitempty"`

	// Timestamp is when the status was evaluated (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// UptimeSeconds is how long the bridge has been running.
	UptimeSeconds int64 `json:"uptime_seconds"`

	// DeviceCount is the number of devices managed by the bridge.
	DeviceCount int `json:"device_count"`
}

// NewHealthMessage builds a health message with current uptime.
func NewHealthMessage(bridgeID, version string, status HealthStatus, deviceCount int, startTime time.Time) HealthMessage {
	return HealthMessage{
		BridgeID:      bridgeID,
		Protocol:      protocolName,
		Version:       version,
		Status:        status,
		Timestamp:     time.Now().UTC(),
		UptimeSeconds: int64(time.Since(startTime).Seconds()),
		DeviceCount:   deviceCount,
	}
}

// LWTMessage is the Last Will and Testament registered with the broker.
// The broker publishes it on the health topic when the bridge drops
// without a clean shutdown.
type LWTMessage struct {
	BridgeID  string       `json:"bridge_id"`
	Protocol  string       `json:"protocol"`
	Status    HealthStatus `json:"status"`
	Timestamp time.Time    `json:"timestamp"`
}

// NewLWTMessage builds the LWT payload for a bridge instance.
func NewLWTMessage(bridgeID string) LWTMessage {
	return LWTMessage{
		BridgeID:  bridgeID,
		Protocol:  protocolName,
		Status:    HealthOffline,
		Timestamp: time.Now().UTC(),
	}
}
