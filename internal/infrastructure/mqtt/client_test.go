package mqtt

import (
	"errors"
	"strings"
	"testing"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// disconnectedClient returns a client that was never connected.
// Validation paths run before any broker interaction, so these tests
// do not require a running Mosquitto instance.
func disconnectedClient() *Client {
	return &Client{
		subscriptions: make(map[string]subscription),
	}
}

// =============================================================================
// Topic Builder Tests
// =============================================================================

func TestTopics(t *testing.T) {
	topics := Topics{}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{name: "command", got: topics.Command(67890), want: "graylogic/command/melcloud/67890"},
		{name: "ack", got: topics.Ack(67890), want: "graylogic/ack/melcloud/67890"},
		{name: "state", got: topics.State(67890), want: "graylogic/state/melcloud/67890"},
		{name: "health", got: topics.Health(), want: "graylogic/health/melcloud"},
		{name: "discovery", got: topics.Discovery(), want: "graylogic/discovery/melcloud"},
		{name: "all commands", got: topics.AllCommands(), want: "graylogic/command/melcloud/+"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("topic = %q, want %q", tt.got, tt.want)
			}
		})
	}
}

// =============================================================================
// Validation Tests
// =============================================================================

func TestPublishValidation(t *testing.T) {
	c := disconnectedClient()

	if err := c.Publish("", []byte("x"), 1, false); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Publish(empty topic) error = %v, want ErrInvalidTopic", err)
	}

	if err := c.Publish("graylogic/test", []byte("x"), 3, false); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("Publish(qos 3) error = %v, want ErrInvalidQoS", err)
	}

	huge := make([]byte, maxPayloadSize+1)
	if err := c.Publish("graylogic/test", huge, 1, false); !errors.Is(err, ErrPublishFailed) {
		t.Errorf("Publish(oversize payload) error = %v, want ErrPublishFailed", err)
	}

	if err := c.Publish("graylogic/test", []byte("x"), 1, false); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish(disconnected) error = %v, want ErrNotConnected", err)
	}
}

func TestSubscribeValidation(t *testing.T) {
	c := disconnectedClient()
	handler := func(topic string, payload []byte) error { return nil }

	if err := c.Subscribe("", 1, handler); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Subscribe(empty topic) error = %v, want ErrInvalidTopic", err)
	}

	if err := c.Subscribe("graylogic/test", 5, handler); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("Subscribe(qos 5) error = %v, want ErrInvalidQoS", err)
	}

	if err := c.Subscribe("graylogic/test", 1, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("Subscribe(nil handler) error = %v, want ErrSubscribeFailed", err)
	}

	if err := c.Subscribe("graylogic/test", 1, handler); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Subscribe(disconnected) error = %v, want ErrNotConnected", err)
	}

	if c.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d after failed subscribes, want 0", c.SubscriptionCount())
	}
}

func TestUnsubscribeValidation(t *testing.T) {
	c := disconnectedClient()

	if err := c.Unsubscribe(""); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Unsubscribe(empty topic) error = %v, want ErrInvalidTopic", err)
	}

	if err := c.Unsubscribe("graylogic/test"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Unsubscribe(disconnected) error = %v, want ErrNotConnected", err)
	}
}

func TestCloseNeverConnected(t *testing.T) {
	c := &Client{}
	if err := c.Close(); err != nil {
		t.Errorf("Close() on unconnected client error = %v, want nil", err)
	}
}

func TestHasSubscription(t *testing.T) {
	c := disconnectedClient()
	c.subscriptions["graylogic/command/melcloud/+"] = subscription{
		topic: "graylogic/command/melcloud/+",
		qos:   1,
	}

	if !c.HasSubscription("graylogic/command/melcloud/+") {
		t.Error("HasSubscription() = false for tracked topic, want true")
	}
	if c.HasSubscription("graylogic/state/melcloud/1") {
		t.Error("HasSubscription() = true for untracked topic, want false")
	}
}

// =============================================================================
// Last Will and Testament
// =============================================================================

func TestConfigureLWTDefault(t *testing.T) {
	opts := pahomqtt.NewClientOptions()
	configureLWT(opts, "graylogic-melcloud", nil)

	if !opts.WillEnabled {
		t.Fatal("will not enabled")
	}
	if opts.WillTopic != "graylogic/health/melcloud" {
		t.Errorf("will topic = %q", opts.WillTopic)
	}
	if opts.WillQos != 1 || !opts.WillRetained {
		t.Errorf("will qos = %d retained = %v, want 1 retained", opts.WillQos, opts.WillRetained)
	}
	if !strings.Contains(string(opts.WillPayload), `"client_id":"graylogic-melcloud"`) {
		t.Errorf("will payload = %s", opts.WillPayload)
	}
}

func TestConfigureLWTCustomPayload(t *testing.T) {
	custom := []byte(`{"bridge_id":"melcloud-01","protocol":"melcloud","status":"offline"}`)

	opts := pahomqtt.NewClientOptions()
	configureLWT(opts, "graylogic-melcloud", custom)

	if string(opts.WillPayload) != string(custom) {
		t.Errorf("will payload = %s, want the caller's payload", opts.WillPayload)
	}
	if opts.WillTopic != "graylogic/health/melcloud" {
		t.Errorf("will topic = %q", opts.WillTopic)
	}
}
