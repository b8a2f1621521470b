package mqtt

import (
	"context"
	"fmt"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/thingplug-agent/internal/infrastructure/config"
	"github.com/nerrad567/thingplug-agent/internal/status"
)

// Events receives the lifecycle callbacks of a Session.
//
// Callbacks are invoked from paho and session goroutines, possibly
// concurrently. Implementations should hand them off (e.g. to a channel)
// and return quickly.
type Events interface {
	// OnConnected reports the connect outcome: 0 or a non-zero failure code.
	OnConnected(code int)

	// OnSubscribed reports the outcome of subscribing to the session topics.
	OnSubscribed(code int)

	// OnDisconnected reports a completed Disconnect.
	OnDisconnected(code int)

	// OnConnectionLost reports an unexpected loss of the connection.
	OnConnectionLost(cause string)

	// OnDelivered reports that a publish completed.
	OnDelivered(token int)

	// OnMessage delivers an inbound message.
	OnMessage(topic string, payload []byte)
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// SessionOptions are the per-session connection parameters.
type SessionOptions struct {
	// ClientID identifies the device to the broker.
	ClientID string

	// Username and Password are the broker credentials. ThingPlug uses the
	// device token as the user name and no password.
	Username string
	Password string

	// SubscribeTopics are subscribed as soon as the connection is accepted.
	SubscribeTopics []string
}

// newClient creates the paho client. Replaced in tests.
var newClient = pahomqtt.NewClient

// Session is one MQTT connection attempt and its lifetime.
//
// A Session never reconnects by itself. After a connection loss the owner
// is expected to Disconnect it and Start a new one.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Session struct {
	client pahomqtt.Client
	cfg    config.MQTTConfig
	opts   SessionOptions
	events Events

	// connected tracks the accepted CONNACK until loss or Disconnect.
	connected bool
	connMu    sync.RWMutex

	// done is closed by Disconnect to stop pending token waiters.
	done      chan struct{}
	closeOnce sync.Once

	// logger for error/panic logging (optional, set via SetLogger).
	logger   Logger
	loggerMu sync.RWMutex
}

// Start begins connecting to the broker and returns immediately.
//
// The outcome is reported asynchronously through events: OnConnected with
// the connect result, then (on success) OnSubscribed once the session
// topics are subscribed.
//
// Parameters:
//   - cfg: MQTT broker configuration
//   - opts: Client ID, credentials and topics for this session
//   - events: Receives lifecycle callbacks and inbound messages
//
// Returns:
//   - *Session: The session; Disconnect it when done
//   - error: If the parameters are invalid (nothing was started)
func Start(cfg config.MQTTConfig, opts SessionOptions, events Events) (*Session, error) {
	if events == nil {
		return nil, ErrNilEvents
	}
	if opts.ClientID == "" {
		return nil, ErrInvalidClientID
	}
	if cfg.QoS < 0 || cfg.QoS > maxQoS {
		return nil, ErrInvalidQoS
	}
	for _, topic := range opts.SubscribeTopics {
		if topic == "" {
			return nil, ErrInvalidTopic
		}
	}

	s := &Session{
		cfg:    cfg,
		opts:   opts,
		events: events,
		done:   make(chan struct{}),
	}

	clientOpts := buildClientOptions(cfg, opts)
	clientOpts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		s.handleConnectionLost(err)
	})

	s.client = newClient(clientOpts)
	token := s.client.Connect()
	go s.awaitConnect(token)

	return s, nil
}

// awaitConnect waits for the CONNACK and subscribes on success.
func (s *Session) awaitConnect(token pahomqtt.Token) {
	if !s.wait(token) {
		return
	}

	code := connectCode(token)
	if code != 0 {
		if logger := s.getLogger(); logger != nil {
			logger.Warn("MQTT connect failed", "client_id", s.opts.ClientID, "code", code, "error", token.Error())
		}
		s.events.OnConnected(code)
		return
	}

	s.connMu.Lock()
	s.connected = true
	s.connMu.Unlock()

	s.events.OnConnected(0)
	s.subscribe()
}

// handleConnectionLost is called by paho when an established connection drops.
func (s *Session) handleConnectionLost(err error) {
	s.connMu.Lock()
	s.connected = false
	s.connMu.Unlock()

	if s.closed() {
		return
	}

	cause := "connection lost"
	if err != nil {
		cause = err.Error()
	}
	s.events.OnConnectionLost(cause)
}

// Disconnect closes the session and reports OnDisconnected(0).
// Pending publishes are abandoned. Calling it more than once is a no-op.
func (s *Session) Disconnect() {
	s.closeOnce.Do(func() {
		close(s.done)

		if s.client != nil {
			s.client.Disconnect(defaultDisconnectQuiesce)
		}

		s.connMu.Lock()
		s.connected = false
		s.connMu.Unlock()

		s.events.OnDisconnected(int(status.Success))
	})
}

// HealthCheck verifies the MQTT connection is alive.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (s *Session) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if s.closed() {
		return ErrSessionClosed
	}
	if !s.IsConnected() {
		return ErrNotConnected
	}

	return nil
}

// IsConnected returns the current connection state.
func (s *Session) IsConnected() bool {
	s.connMu.RLock()
	defer s.connMu.RUnlock()
	return s.connected && s.client.IsConnected()
}

// SetLogger sets a logger for error and panic logging.
// If not set, errors in handlers are silently ignored.
func (s *Session) SetLogger(logger Logger) {
	s.loggerMu.Lock()
	s.logger = logger
	s.loggerMu.Unlock()
}

// getLogger returns the current logger (may be nil).
func (s *Session) getLogger() Logger {
	s.loggerMu.RLock()
	defer s.loggerMu.RUnlock()
	return s.logger
}

// closed reports whether Disconnect has been called.
func (s *Session) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// wait blocks until token completes. It returns false if the session was
// closed first.
func (s *Session) wait(token pahomqtt.Token) bool {
	select {
	case <-token.Done():
		return !s.closed()
	case <-s.done:
		return false
	}
}

// connectCode maps a completed connect token to a result code.
// A refused CONNACK yields its MQTT return code; other failures -1.
func connectCode(token pahomqtt.Token) int {
	if token.Error() == nil {
		return int(status.Success)
	}
	if ct, ok := token.(*pahomqtt.ConnectToken); ok && ct.ReturnCode() != 0 {
		return int(ct.ReturnCode())
	}
	return int(status.Failure)
}

// wrapHandler wraps the inbound message callback with panic recovery.
func (s *Session) wrapHandler() pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				if logger := s.getLogger(); logger != nil {
					logger.Error("MQTT handler panic recovered",
						"topic", msg.Topic(),
						"panic", r,
					)
				}
			}
		}()

		if s.closed() {
			return
		}
		s.events.OnMessage(msg.Topic(), msg.Payload())
	}
}
