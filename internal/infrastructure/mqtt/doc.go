// Package mqtt provides MQTT client connectivity for the MELCloud bridge.
//
// This package manages:
//   - Connection to the Gray Logic broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// The bridge is one of several protocol bridges hanging off the shared
// Mosquitto broker. Core publishes commands, the bridge translates them
// into cloud writes and publishes acknowledgements and state back:
//
//	Gray Logic Core ↔ MQTT Broker ↔ MELCloud Bridge ↔ MELCloud API
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//   - Message payloads are not encrypted beyond TLS transport
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Subscribe to all commands addressed to this bridge
//	err = client.Subscribe(mqtt.Topics{}.AllCommands(), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
//
//	// Publish device state
//	topic := mqtt.Topics{}.State(devices.ID)
//	client.PublishRetained(topic, payload)
package mqtt
