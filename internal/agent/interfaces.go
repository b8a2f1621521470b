package agent

import (
	"context"
	"time"

	"github.com/nerrad567/thingplug-agent/internal/infrastructure/config"
	"github.com/nerrad567/thingplug-agent/internal/journal"
)

// Actuator is the device output driven by control messages.
type Actuator interface {
	// SetColor applies code and returns 0, or non-zero if code is invalid.
	SetColor(code int) int

	// ColorStatus returns the last applied code.
	ColorStatus() int
}

// SensorReader reads a named sensor as pre-formatted text.
type SensorReader interface {
	// ReadSensor returns false for unknown names.
	ReadSensor(name string) (string, bool)
}

// SystemInfo provides host facts for the attribute report and client ID.
type SystemInfo interface {
	AvailableMemory() (uint64, error)
	DeviceIPAddress(iface string) (string, error)
	DeviceMACAddress(iface string) (string, error)
}

// Events receives transport callbacks. The mqtt.Session events interface
// has the same method set.
type Events interface {
	OnConnected(code int)
	OnSubscribed(code int)
	OnDisconnected(code int)
	OnConnectionLost(cause string)
	OnDelivered(token int)
	OnMessage(topic string, payload []byte)
}

// ConnectOptions describe one connection attempt.
type ConnectOptions struct {
	MQTT            config.MQTTConfig
	ClientID        string
	Username        string
	Password        string
	SubscribeTopics []string
}

// Transport is one live session.
type Transport interface {
	// Publish issues a message. A non-nil error carries a status code.
	Publish(topic string, payload []byte) error
	IsConnected() bool
	HealthCheck(ctx context.Context) error
	Disconnect()
}

// Connector starts sessions. Connect must not block on the network: the
// outcome is delivered to events.
type Connector interface {
	Connect(opts ConnectOptions, events Events) (Transport, error)
}

// TelemetrySink receives a local copy of published telemetry.
type TelemetrySink interface {
	WriteTelemetry(device string, ts time.Time, readings map[string]string)
	WriteConnectionEvent(device, state string)
}

// Journal records handled control messages. Submit must not block.
type Journal interface {
	Submit(e journal.Entry) bool
}

// Logger defines the logging interface used by the agent.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
