package mqtt

import (
	"errors"

	"github.com/nerrad567/thingplug-agent/internal/status"
)

// Domain-specific errors for MQTT operations.
// Use errors.Is() to check for these errors in calling code, and
// status.Of() to obtain the SDK result code.
var (
	// ErrNotConnected is returned when attempting operations on a disconnected session.
	ErrNotConnected = status.New(status.Disconnected, "mqtt: client not connected")

	// ErrNilEvents is returned when a session is started without an event sink.
	ErrNilEvents = status.New(status.NullParameter, "mqtt: events cannot be nil")

	// ErrInvalidClientID is returned when the client ID is empty.
	ErrInvalidClientID = status.New(status.InvalidParameter, "mqtt: client ID cannot be empty")

	// ErrInvalidQoS is returned when an invalid QoS level is specified.
	// Valid QoS levels are 0, 1, or 2.
	ErrInvalidQoS = status.New(status.BadQoS, "mqtt: invalid QoS level (must be 0, 1, or 2)")

	// ErrInvalidTopic is returned when an empty topic is provided.
	ErrInvalidTopic = status.New(status.InvalidParameter, "mqtt: topic cannot be empty")

	// ErrInvalidPayload is returned when the payload is empty.
	ErrInvalidPayload = status.New(status.InvalidParameter, "mqtt: payload cannot be empty")

	// ErrPublishFailed is returned when a publish cannot be issued.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrSessionClosed is returned by operations on a session after Disconnect.
	ErrSessionClosed = status.New(status.Disconnected, "mqtt: session closed")
)
