//go:build integration

package mqtt

import (
	"testing"
	"time"

	"github.com/nerrad567/thingplug-agent/internal/infrastructure/config"
)

// Integration tests against a real broker.
// These tests require a running MQTT broker at 127.0.0.1:1883 that accepts
// anonymous clients.
//
// Run with:
//   go test -tags=integration -v ./internal/infrastructure/mqtt/...

func integrationConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker:       config.MQTTBrokerConfig{Host: "127.0.0.1", Port: 1883},
		QoS:          1,
		KeepAlive:    30,
		CleanSession: true,
	}
}

func TestIntegration_PublishLoopback(t *testing.T) {
	events := newRecordingEvents()
	s, err := Start(integrationConfig(), SessionOptions{
		ClientID:        "tpagent-integration-test",
		SubscribeTopics: []string{"v1/dev/itest/dev/down"},
	}, events)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Disconnect()

	events.expect(t, "connected:0")
	events.expect(t, "subscribed:0")

	if err := s.Publish("v1/dev/itest/dev/down", []byte(`{"cmd":"ping"}`)); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	// Delivery and the looped-back message may arrive in either order.
	seen := map[string]bool{}
	deadline := time.After(5 * time.Second)
	for len(seen) < 2 {
		select {
		case ev := <-events.ch:
			if ev == `message:v1/dev/itest/dev/down:{"cmd":"ping"}` {
				seen["message"] = true
			} else if len(ev) > len("delivered:") && ev[:len("delivered:")] == "delivered:" {
				seen["delivered"] = true
			}
		case <-deadline:
			t.Fatalf("timed out, seen %v", seen)
		}
	}
}

func TestIntegration_RefusedPort(t *testing.T) {
	cfg := integrationConfig()
	cfg.Broker.Port = 19999

	events := newRecordingEvents()
	s, err := Start(cfg, SessionOptions{ClientID: "tpagent-refused"}, events)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Disconnect()

	select {
	case ev := <-events.ch:
		if ev == "connected:0" {
			t.Fatal("connected to a closed port")
		}
	case <-time.After(15 * time.Second):
		t.Fatal("timed out waiting for connect result")
	}
}
