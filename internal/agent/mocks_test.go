package agent

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/thingplug-agent/internal/capability"
	"github.com/nerrad567/thingplug-agent/internal/infrastructure/config"
	"github.com/nerrad567/thingplug-agent/internal/journal"
)

// published is one recorded Publish call.
type published struct {
	topic   string
	payload string
}

// mockTransport records publishes.
type mockTransport struct {
	mu           sync.Mutex
	messages     []published
	connected    bool
	publishErr   error
	disconnected int
}

func newMockTransport() *mockTransport {
	return &mockTransport{connected: true}
}

func (m *mockTransport) Publish(topic string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishErr != nil {
		return m.publishErr
	}
	m.messages = append(m.messages, published{topic: topic, payload: string(payload)})
	return nil
}

func (m *mockTransport) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *mockTransport) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !m.IsConnected() {
		return errors.New("mock transport not connected")
	}
	return nil
}

func (m *mockTransport) Disconnect() {
	m.mu.Lock()
	m.disconnected++
	m.connected = false
	m.mu.Unlock()
}

func (m *mockTransport) Published() []published {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]published(nil), m.messages...)
}

func (m *mockTransport) Disconnects() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.disconnected
}

// mockConnector hands out a new mockTransport per Connect.
type mockConnector struct {
	mu         sync.Mutex
	opts       []ConnectOptions
	events     []Events
	transports []*mockTransport
	err        error

	// onConnect, if set, is run in a goroutine after each Connect.
	onConnect func(ev Events)
}

func (m *mockConnector) Connect(opts ConnectOptions, events Events) (Transport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opts = append(m.opts, opts)
	if m.err != nil {
		return nil, m.err
	}
	t := newMockTransport()
	m.events = append(m.events, events)
	m.transports = append(m.transports, t)
	if m.onConnect != nil {
		go m.onConnect(events)
	}
	return t, nil
}

func (m *mockConnector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.opts)
}

func (m *mockConnector) LastOptions() ConnectOptions {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opts[len(m.opts)-1]
}

func (m *mockConnector) Transport(i int) *mockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transports[i]
}

// mockSensors returns fixed readings.
type mockSensors map[string]string

func (m mockSensors) ReadSensor(name string) (string, bool) {
	v, ok := m[name]
	return v, ok
}

// mockSystem returns fixed host facts.
type mockSystem struct {
	mem    uint64
	ip     string
	mac    string
	macErr error
}

func (m *mockSystem) AvailableMemory() (uint64, error) { return m.mem, nil }

func (m *mockSystem) DeviceIPAddress(string) (string, error) { return m.ip, nil }

func (m *mockSystem) DeviceMACAddress(string) (string, error) {
	if m.macErr != nil {
		return "", m.macErr
	}
	return m.mac, nil
}

// mockSink records mirrored telemetry and connection events.
type mockSink struct {
	mu          sync.Mutex
	readings    []map[string]string
	connections []string
}

func (m *mockSink) WriteTelemetry(_ string, _ time.Time, readings map[string]string) {
	m.mu.Lock()
	m.readings = append(m.readings, readings)
	m.mu.Unlock()
}

func (m *mockSink) WriteConnectionEvent(_ string, state string) {
	m.mu.Lock()
	m.connections = append(m.connections, state)
	m.mu.Unlock()
}

// mockJournal records submitted entries.
type mockJournal struct {
	mu      sync.Mutex
	entries []journal.Entry
}

func (m *mockJournal) Submit(e journal.Entry) bool {
	m.mu.Lock()
	m.entries = append(m.entries, e)
	m.mu.Unlock()
	return true
}

func (m *mockJournal) Last(t *testing.T) journal.Entry {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.entries) == 0 {
		t.Fatal("no journal entries")
	}
	return m.entries[len(m.entries)-1]
}

var errNoMAC = errors.New("no such interface")

// testConfig returns a valid configuration for service "svc", device "dev".
func testConfig() *config.Config {
	return &config.Config{
		Platform: config.PlatformConfig{
			ServiceName: "svc",
			DeviceName:  "dev",
			DeviceToken: "token-123",
		},
		MQTT: config.MQTTConfig{
			Broker:    config.MQTTBrokerConfig{Host: "mqtt.example.com"},
			KeepAlive: 120,
		},
		Agent: config.AgentConfig{
			Format:       "json",
			PollInterval: 10,
			Interface:    "eth0",
			Sensors:      []string{"temp1", "humi1", "light1"},
			ControlField: "act7colorLed",
			MailboxSize:  16,
		},
		Device: config.DeviceConfig{
			FirmwareVersion: "1.0",
			HardwareVersion: "1.0",
			SerialNumber:    "710DJC5I10000290",
			NetworkType:     "LTE",
			Latitude:        37.5,
			Longitude:       127,
		},
	}
}

// fixture bundles an agent with its mocks.
type fixture struct {
	agent     *Agent
	connector *mockConnector
	system    *mockSystem
	led       *capability.RGBLED
	sink      *mockSink
	journal   *mockJournal
}

func newFixture(t *testing.T, mutate func(*config.Config)) *fixture {
	t.Helper()
	cfg := testConfig()
	if mutate != nil {
		mutate(cfg)
	}

	f := &fixture{
		connector: &mockConnector{},
		system:    &mockSystem{mem: 1024, ip: "10.0.0.5", mac: "AABBCCDDEEFF"},
		led:       capability.NewRGBLED(),
		sink:      &mockSink{},
		journal:   &mockJournal{},
	}
	a, err := New(cfg, Dependencies{
		Connector: f.connector,
		Actuator:  f.led,
		Sensors:   mockSensors{"temp1": "23.50", "humi1": "45", "light1": "210"},
		System:    f.system,
		Sink:      f.sink,
		Journal:   f.journal,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	a.reporter.now = func() time.Time { return time.Unix(1700000000, 0) }
	f.agent = a
	return f
}

// attach gives the reporter a live transport without going through connect.
func (f *fixture) attach() *mockTransport {
	tr := newMockTransport()
	f.agent.reporter.transport = tr
	return tr
}
