package mqtt

import "fmt"

// Topic layout follows the Gray Logic flat bridge scheme:
//
//	graylogic/{category}/{protocol}/{address_or_id}
//
// The protocol segment for this bridge is always "melcloud" and the
// address is the numeric MELCloud device ID.
const (
	// topicPrefix is the base for all Gray Logic topics.
	topicPrefix = "graylogic"

	// protocolName identifies this bridge in the protocol segment.
	protocolName = "melcloud"
)

// Topics provides builders for the bridge's MQTT topics.
// Using these helpers keeps topic naming consistent across the codebase.
//
//	topics := mqtt.Topics{}
//	stateTopic := topics.State(67890)
//	// Returns: "graylogic/state/melcloud/67890"
type Topics struct{}

// Command returns the topic Core publishes device commands on.
//
// Example: graylogic/command/melcloud/67890
func (Topics) Command(deviceID int) string {
	return fmt.Sprintf("%s/command/%s/%d", topicPrefix, protocolName, deviceID)
}

// Ack returns the topic for command acknowledgements from the bridge.
//
// Example: graylogic/ack/melcloud/67890
func (Topics) Ack(deviceID int) string {
	return fmt.Sprintf("%s/ack/%s/%d", topicPrefix, protocolName, deviceID)
}

// State returns the topic for device state updates from the bridge.
// State messages are published retained so new subscribers see the
// last known state immediately.
//
// Example: graylogic/state/melcloud/67890
func (Topics) State(deviceID int) string {
	return fmt.Sprintf("%s/state/%s/%d", topicPrefix, protocolName, deviceID)
}

// Health returns the bridge health status topic. This is also the
// LWT topic so the broker marks the bridge offline on unexpected
// disconnect.
//
// Example: graylogic/health/melcloud
func (Topics) Health() string {
	return fmt.Sprintf("%s/health/%s", topicPrefix, protocolName)
}

// Discovery returns the topic the bridge announces its device list on.
//
// Example: graylogic/discovery/melcloud
func (Topics) Discovery() string {
	return fmt.Sprintf("%s/discovery/%s", topicPrefix, protocolName)
}

// AllCommands returns a pattern matching every command addressed to
// this bridge.
//
// Pattern: graylogic/command/melcloud/+
func (Topics) AllCommands() string {
	return fmt.Sprintf("%s/command/%s/+", topicPrefix, protocolName)
}
