package mqtt

import (
	"fmt"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Maximum payload size for MQTT messages (1MB).
// This prevents resource exhaustion and aligns with typical broker limits.
const maxPayloadSize = 1 << 20 // 1MB

// Publish issues a message on topic and returns without waiting for it to
// complete.
//
// The returned error covers only what can be decided synchronously:
// invalid input, oversized payload, or no connection. Completion is
// reported later through Events.OnDelivered; a publish that fails after
// it was issued is logged and not reported.
//
// Parameters:
//   - topic: The topic to publish to (e.g., "v1/dev/svc/dev/telemetry")
//   - payload: The message payload (max 1MB)
//
// Returns:
//   - error: nil if the publish was issued, or a coded error (see status.Of)
func (s *Session) Publish(topic string, payload []byte) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if len(payload) == 0 {
		return ErrInvalidPayload
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}
	if s.closed() {
		return ErrSessionClosed
	}
	if !s.IsConnected() {
		return ErrNotConnected
	}

	token := s.client.Publish(topic, byte(s.cfg.QoS), false, payload)
	go s.awaitDelivery(topic, token)

	return nil
}

// awaitDelivery reports the outcome of one publish.
func (s *Session) awaitDelivery(topic string, token pahomqtt.Token) {
	if !s.wait(token) {
		return
	}
	if err := token.Error(); err != nil {
		if logger := s.getLogger(); logger != nil {
			logger.Warn("MQTT publish failed", "topic", topic, "error", err)
		}
		return
	}
	s.events.OnDelivered(messageID(token))
}

// messageID returns the packet identifier of a publish token, 0 for QoS 0.
func messageID(token pahomqtt.Token) int {
	if pt, ok := token.(interface{ MessageID() uint16 }); ok {
		return int(pt.MessageID())
	}
	return 0
}
