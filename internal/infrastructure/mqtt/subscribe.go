package mqtt

import (
	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/thingplug-agent/internal/status"
)

// subscribeFailure is the per-topic SUBACK code for a rejected filter.
const subscribeFailure = 0x80

// subscribe subscribes to the session topics and reports OnSubscribed.
//
// All topics are sent in one SUBSCRIBE packet at the configured QoS. The
// result is 0 only if the broker granted every filter.
func (s *Session) subscribe() {
	filters := make(map[string]byte, len(s.opts.SubscribeTopics))
	for _, topic := range s.opts.SubscribeTopics {
		filters[topic] = byte(s.cfg.QoS)
	}
	if len(filters) == 0 {
		s.events.OnSubscribed(int(status.Success))
		return
	}

	token := s.client.SubscribeMultiple(filters, s.wrapHandler())
	if !s.wait(token) {
		return
	}

	code := subscribeCode(token)
	if code != 0 {
		if logger := s.getLogger(); logger != nil {
			logger.Warn("MQTT subscribe failed", "topics", s.opts.SubscribeTopics, "error", token.Error())
		}
	}
	s.events.OnSubscribed(code)
}

// subscribeCode maps a completed subscribe token to a result code.
func subscribeCode(token pahomqtt.Token) int {
	if token.Error() != nil {
		return int(status.Failure)
	}
	if st, ok := token.(*pahomqtt.SubscribeToken); ok {
		for _, granted := range st.Result() {
			if granted == subscribeFailure {
				return int(status.Failure)
			}
		}
	}
	return int(status.Success)
}
