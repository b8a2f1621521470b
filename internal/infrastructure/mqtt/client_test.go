package mqtt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/thingplug-agent/internal/infrastructure/config"
	"github.com/nerrad567/thingplug-agent/internal/status"
)

// =============================================================================
// Test doubles
// =============================================================================

// mockToken implements pahomqtt.Token.
type mockToken struct {
	done chan struct{}
	err  error
	id   uint16
}

// completedToken returns a token that is already done.
func completedToken(err error) *mockToken {
	t := &mockToken{done: make(chan struct{}), err: err}
	close(t.done)
	return t
}

// pendingToken returns a token that never completes.
func pendingToken() *mockToken {
	return &mockToken{done: make(chan struct{})}
}

func (t *mockToken) Wait() bool                     { <-t.done; return true }
func (t *mockToken) WaitTimeout(time.Duration) bool { return true }
func (t *mockToken) Done() <-chan struct{}          { return t.done }
func (t *mockToken) Error() error                   { return t.err }
func (t *mockToken) MessageID() uint16              { return t.id }

// mockMessage implements pahomqtt.Message.
type mockMessage struct {
	topic   string
	payload []byte
}

func (m mockMessage) Duplicate() bool   { return false }
func (m mockMessage) Qos() byte         { return 0 }
func (m mockMessage) Retained() bool    { return false }
func (m mockMessage) Topic() string     { return m.topic }
func (m mockMessage) MessageID() uint16 { return 0 }
func (m mockMessage) Payload() []byte   { return m.payload }
func (m mockMessage) Ack()              {}

type mockPublish struct {
	Topic   string
	Payload []byte
	QoS     byte
}

// MockPahoClient implements pahomqtt.Client for testing.
type MockPahoClient struct {
	mu           sync.Mutex
	opts         *pahomqtt.ClientOptions
	connected    bool
	connectToken pahomqtt.Token
	subToken     pahomqtt.Token
	filters      map[string]byte
	handler      pahomqtt.MessageHandler
	published    []mockPublish
	disconnects  int
	nextID       uint16
}

func (m *MockPahoClient) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MockPahoClient) IsConnectionOpen() bool { return m.IsConnected() }

func (m *MockPahoClient) Connect() pahomqtt.Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.connectToken == nil {
		m.connectToken = completedToken(nil)
	}
	if m.connectToken.Error() == nil {
		m.connected = true
	}
	return m.connectToken
}

func (m *MockPahoClient) Disconnect(uint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
	m.disconnects++
}

func (m *MockPahoClient) Publish(topic string, qos byte, _ bool, payload interface{}) pahomqtt.Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.published = append(m.published, mockPublish{Topic: topic, Payload: payload.([]byte), QoS: qos})
	t := completedToken(nil)
	t.id = m.nextID
	return t
}

func (m *MockPahoClient) Subscribe(topic string, qos byte, cb pahomqtt.MessageHandler) pahomqtt.Token {
	return m.SubscribeMultiple(map[string]byte{topic: qos}, cb)
}

func (m *MockPahoClient) SubscribeMultiple(filters map[string]byte, cb pahomqtt.MessageHandler) pahomqtt.Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.filters = filters
	m.handler = cb
	if m.subToken == nil {
		return completedToken(nil)
	}
	return m.subToken
}

func (m *MockPahoClient) Unsubscribe(...string) pahomqtt.Token { return completedToken(nil) }

func (m *MockPahoClient) AddRoute(string, pahomqtt.MessageHandler) {}

func (m *MockPahoClient) OptionsReader() pahomqtt.ClientOptionsReader {
	return pahomqtt.NewOptionsReader(m.opts)
}

// SimulateMessage delivers an inbound message through the subscribed handler.
func (m *MockPahoClient) SimulateMessage(topic string, payload []byte) {
	m.mu.Lock()
	handler := m.handler
	m.mu.Unlock()
	if handler != nil {
		handler(m, mockMessage{topic: topic, payload: payload})
	}
}

// SimulateConnectionLost invokes the connection lost handler.
func (m *MockPahoClient) SimulateConnectionLost(err error) {
	m.mu.Lock()
	m.connected = false
	handler := m.opts.OnConnectionLost
	m.mu.Unlock()
	handler(m, err)
}

func (m *MockPahoClient) GetPublished() []mockPublish {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mockPublish(nil), m.published...)
}

// recordingEvents implements Events, recording each callback as a string.
type recordingEvents struct {
	ch chan string
}

func newRecordingEvents() *recordingEvents {
	return &recordingEvents{ch: make(chan string, 32)}
}

func (r *recordingEvents) OnConnected(code int)     { r.ch <- fmt.Sprintf("connected:%d", code) }
func (r *recordingEvents) OnSubscribed(code int)    { r.ch <- fmt.Sprintf("subscribed:%d", code) }
func (r *recordingEvents) OnDisconnected(code int)  { r.ch <- fmt.Sprintf("disconnected:%d", code) }
func (r *recordingEvents) OnConnectionLost(c string) { r.ch <- "lost:" + c }
func (r *recordingEvents) OnDelivered(token int)    { r.ch <- fmt.Sprintf("delivered:%d", token) }
func (r *recordingEvents) OnMessage(topic string, payload []byte) {
	r.ch <- "message:" + topic + ":" + string(payload)
}

// expect waits for the next event and compares it.
func (r *recordingEvents) expect(t *testing.T, want string) {
	t.Helper()
	select {
	case got := <-r.ch:
		if got != want {
			t.Fatalf("event = %q, want %q", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for event %q", want)
	}
}

// expectNone verifies no event arrives within a short window.
func (r *recordingEvents) expectNone(t *testing.T) {
	t.Helper()
	select {
	case got := <-r.ch:
		t.Fatalf("unexpected event %q", got)
	case <-time.After(50 * time.Millisecond):
	}
}

// testConfig returns a valid MQTT configuration for testing.
func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker:       config.MQTTBrokerConfig{Host: "127.0.0.1"},
		QoS:          1,
		KeepAlive:    120,
		CleanSession: true,
	}
}

func testOptions() SessionOptions {
	return SessionOptions{
		ClientID:        "dev_0A1B2C3D4E5F",
		Username:        "device-token",
		SubscribeTopics: []string{"v1/dev/svc/dev/down"},
	}
}

// useMockClient installs mock as the paho client factory for one test.
func useMockClient(t *testing.T, mock *MockPahoClient) {
	t.Helper()
	orig := newClient
	newClient = func(o *pahomqtt.ClientOptions) pahomqtt.Client {
		mock.mu.Lock()
		mock.opts = o
		mock.mu.Unlock()
		return mock
	}
	t.Cleanup(func() { newClient = orig })
}

// =============================================================================
// Start Tests
// =============================================================================

func TestStart_InvalidParameters(t *testing.T) {
	events := newRecordingEvents()

	tests := []struct {
		name   string
		cfg    config.MQTTConfig
		opts   SessionOptions
		events Events
		want   error
		code   status.Code
	}{
		{"nil events", testConfig(), testOptions(), nil, ErrNilEvents, status.NullParameter},
		{"empty client id", testConfig(), SessionOptions{}, events, ErrInvalidClientID, status.InvalidParameter},
		{"bad qos", config.MQTTConfig{QoS: 3}, testOptions(), events, ErrInvalidQoS, status.BadQoS},
		{"empty topic", testConfig(), SessionOptions{ClientID: "c", SubscribeTopics: []string{""}}, events, ErrInvalidTopic, status.InvalidParameter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Start(tt.cfg, tt.opts, tt.events)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Start() error = %v, want %v", err, tt.want)
			}
			if got := status.Of(err); got != tt.code {
				t.Errorf("status.Of() = %v, want %v", got, tt.code)
			}
		})
	}
}

func TestStart_ConnectAndSubscribe(t *testing.T) {
	mock := &MockPahoClient{}
	useMockClient(t, mock)
	events := newRecordingEvents()

	s, err := Start(testConfig(), testOptions(), events)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Disconnect()

	events.expect(t, "connected:0")
	events.expect(t, "subscribed:0")

	if !s.IsConnected() {
		t.Error("IsConnected() = false, want true")
	}

	mock.mu.Lock()
	qos, ok := mock.filters["v1/dev/svc/dev/down"]
	mock.mu.Unlock()
	if !ok || qos != 1 {
		t.Errorf("subscribed filters = %v, want down topic at QoS 1", mock.filters)
	}
	if err := s.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestStart_ConnectFailure(t *testing.T) {
	mock := &MockPahoClient{connectToken: completedToken(errors.New("network unreachable"))}
	useMockClient(t, mock)
	events := newRecordingEvents()

	s, err := Start(testConfig(), testOptions(), events)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Disconnect()

	events.expect(t, "connected:-1")
	events.expectNone(t)

	if s.IsConnected() {
		t.Error("IsConnected() = true after failed connect")
	}
	if err := s.Publish("a/b", []byte("x")); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() error = %v, want ErrNotConnected", err)
	}
}

func TestStart_SubscribeFailure(t *testing.T) {
	mock := &MockPahoClient{subToken: completedToken(errors.New("not authorised"))}
	useMockClient(t, mock)
	events := newRecordingEvents()

	s, err := Start(testConfig(), testOptions(), events)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Disconnect()

	events.expect(t, "connected:0")
	events.expect(t, "subscribed:-1")
}

// =============================================================================
// Publish Tests
// =============================================================================

func TestPublish(t *testing.T) {
	mock := &MockPahoClient{}
	useMockClient(t, mock)
	events := newRecordingEvents()

	s, err := Start(testConfig(), testOptions(), events)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Disconnect()
	events.expect(t, "connected:0")
	events.expect(t, "subscribed:0")

	if err := s.Publish("v1/dev/svc/dev/telemetry", []byte(`{"ts":1}`)); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	events.expect(t, "delivered:1")

	published := mock.GetPublished()
	if len(published) != 1 {
		t.Fatalf("published %d messages, want 1", len(published))
	}
	if published[0].Topic != "v1/dev/svc/dev/telemetry" || string(published[0].Payload) != `{"ts":1}` {
		t.Errorf("published = %+v", published[0])
	}
}

func TestPublish_Validation(t *testing.T) {
	mock := &MockPahoClient{connectToken: pendingToken()}
	useMockClient(t, mock)

	s, err := Start(testConfig(), testOptions(), newRecordingEvents())
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Disconnect()

	tests := []struct {
		name    string
		topic   string
		payload []byte
		want    error
	}{
		{"empty topic", "", []byte("x"), ErrInvalidTopic},
		{"nil payload", "a/b", nil, ErrInvalidPayload},
		{"too large", "a/b", make([]byte, maxPayloadSize+1), ErrPublishFailed},
		{"not yet connected", "a/b", []byte("x"), ErrNotConnected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.Publish(tt.topic, tt.payload); !errors.Is(err, tt.want) {
				t.Errorf("Publish() error = %v, want %v", err, tt.want)
			}
		})
	}

	if got := status.Of(s.Publish("a/b", []byte("x"))); got != status.Disconnected {
		t.Errorf("status.Of(Publish) = %v, want disconnected", got)
	}
}

// =============================================================================
// Event Tests
// =============================================================================

func TestInboundMessage(t *testing.T) {
	mock := &MockPahoClient{}
	useMockClient(t, mock)
	events := newRecordingEvents()

	s, err := Start(testConfig(), testOptions(), events)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Disconnect()
	events.expect(t, "connected:0")
	events.expect(t, "subscribed:0")

	mock.SimulateMessage("v1/dev/svc/dev/down", []byte(`{"cmd":"x"}`))
	events.expect(t, `message:v1/dev/svc/dev/down:{"cmd":"x"}`)
}

func TestConnectionLost(t *testing.T) {
	mock := &MockPahoClient{}
	useMockClient(t, mock)
	events := newRecordingEvents()

	s, err := Start(testConfig(), testOptions(), events)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Disconnect()
	events.expect(t, "connected:0")
	events.expect(t, "subscribed:0")

	mock.SimulateConnectionLost(errors.New("EOF"))
	events.expect(t, "lost:EOF")

	if s.IsConnected() {
		t.Error("IsConnected() = true after connection lost")
	}
	if err := s.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}

func TestDisconnect(t *testing.T) {
	mock := &MockPahoClient{}
	useMockClient(t, mock)
	events := newRecordingEvents()

	s, err := Start(testConfig(), testOptions(), events)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	events.expect(t, "connected:0")
	events.expect(t, "subscribed:0")

	s.Disconnect()
	s.Disconnect()
	events.expect(t, "disconnected:0")
	events.expectNone(t)

	mock.mu.Lock()
	disconnects := mock.disconnects
	mock.mu.Unlock()
	if disconnects != 1 {
		t.Errorf("paho Disconnect called %d times, want 1", disconnects)
	}

	if err := s.Publish("a/b", []byte("x")); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Publish() after Disconnect error = %v, want ErrSessionClosed", err)
	}
	if err := s.HealthCheck(context.Background()); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("HealthCheck() error = %v, want ErrSessionClosed", err)
	}

	// Messages and losses after Disconnect are not reported.
	mock.SimulateMessage("v1/dev/svc/dev/down", []byte("late"))
	events.expectNone(t)
}

func TestDisconnect_AbandonsPendingConnect(t *testing.T) {
	mock := &MockPahoClient{connectToken: pendingToken()}
	useMockClient(t, mock)
	events := newRecordingEvents()

	s, err := Start(testConfig(), testOptions(), events)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	s.Disconnect()

	events.expect(t, "disconnected:0")
	events.expectNone(t)
}

func TestHealthCheckCancelled(t *testing.T) {
	mock := &MockPahoClient{}
	useMockClient(t, mock)

	s, err := Start(testConfig(), testOptions(), newRecordingEvents())
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Disconnect()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.HealthCheck(ctx); err == nil {
		t.Error("HealthCheck() expected error for cancelled context")
	}
}

func TestHandlerPanicRecovered(t *testing.T) {
	mock := &MockPahoClient{}
	useMockClient(t, mock)

	s, err := Start(testConfig(), testOptions(), panicEvents{})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Disconnect()

	logger := &recordingLogger{}
	s.SetLogger(logger)

	// Wait for the subscription to be registered.
	deadline := time.Now().Add(2 * time.Second)
	for {
		mock.mu.Lock()
		ready := mock.handler != nil
		mock.mu.Unlock()
		if ready || time.Now().After(deadline) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	mock.SimulateMessage("v1/dev/svc/dev/down", []byte("boom"))

	logger.mu.Lock()
	defer logger.mu.Unlock()
	if len(logger.errors) != 1 {
		t.Errorf("logged %d errors, want 1", len(logger.errors))
	}
}

type panicEvents struct{}

func (panicEvents) OnConnected(int)           {}
func (panicEvents) OnSubscribed(int)          {}
func (panicEvents) OnDisconnected(int)        {}
func (panicEvents) OnConnectionLost(string)   {}
func (panicEvents) OnDelivered(int)           {}
func (panicEvents) OnMessage(string, []byte) { panic("handler bug") }

type recordingLogger struct {
	mu     sync.Mutex
	errors []string
}

func (l *recordingLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	l.errors = append(l.errors, msg)
	l.mu.Unlock()
}

func (l *recordingLogger) Warn(string, ...any) {}
