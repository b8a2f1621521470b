package agent

import "sync"

type eventKind int

const (
	evConnected eventKind = iota
	evSubscribed
	evDisconnected
	evConnectionLost
	evDelivered
	evMessage
)

func (k eventKind) String() string {
	switch k {
	case evConnected:
		return "connected"
	case evSubscribed:
		return "subscribed"
	case evDisconnected:
		return "disconnected"
	case evConnectionLost:
		return "connection_lost"
	case evDelivered:
		return "delivered"
	case evMessage:
		return "message"
	default:
		return "unknown"
	}
}

// event is one transport callback, tagged with the session that raised it.
type event struct {
	kind    eventKind
	gen     uint64
	code    int
	cause   string
	topic   string
	payload []byte
}

// sessionEvents posts the callbacks of one session into the mailbox.
//
// Posting blocks while the mailbox is full, so callbacks are never lost
// for a live session. retire unblocks and silences it before the session
// is torn down; otherwise a paho goroutine stuck on a full mailbox would
// hold up Disconnect on the loop goroutine.
type sessionEvents struct {
	gen     uint64
	mailbox chan<- event
	stop    <-chan struct{}

	quit     chan struct{}
	quitOnce sync.Once
}

func newSessionEvents(gen uint64, mailbox chan<- event, stop <-chan struct{}) *sessionEvents {
	return &sessionEvents{
		gen:     gen,
		mailbox: mailbox,
		stop:    stop,
		quit:    make(chan struct{}),
	}
}

func (s *sessionEvents) retire() {
	s.quitOnce.Do(func() { close(s.quit) })
}

func (s *sessionEvents) post(ev event) {
	select {
	case <-s.quit:
		return
	default:
	}

	ev.gen = s.gen
	select {
	case s.mailbox <- ev:
	case <-s.quit:
	case <-s.stop:
	}
}

func (s *sessionEvents) OnConnected(code int) {
	s.post(event{kind: evConnected, code: code})
}

func (s *sessionEvents) OnSubscribed(code int) {
	s.post(event{kind: evSubscribed, code: code})
}

func (s *sessionEvents) OnDisconnected(code int) {
	s.post(event{kind: evDisconnected, code: code})
}

func (s *sessionEvents) OnConnectionLost(cause string) {
	s.post(event{kind: evConnectionLost, cause: cause})
}

func (s *sessionEvents) OnDelivered(token int) {
	s.post(event{kind: evDelivered, code: token})
}

func (s *sessionEvents) OnMessage(topic string, payload []byte) {
	s.post(event{kind: evMessage, topic: topic, payload: append([]byte(nil), payload...)})
}
