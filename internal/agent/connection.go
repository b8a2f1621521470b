package agent

import (
	"github.com/nerrad567/thingplug-agent/internal/capability"
	"github.com/nerrad567/thingplug-agent/internal/infrastructure/config"
	"github.com/nerrad567/thingplug-agent/internal/message"
	"github.com/nerrad567/thingplug-agent/internal/status"
)

// ConnectionManager drives the connection state machine.
//
// Transitions happen only in apply (transport events) and tick (poll
// loop), both called from the run loop.
type ConnectionManager struct {
	state     *State
	reporter  *Reporter
	connector Connector
	system    SystemInfo
	actuator  Actuator
	sink      TelemetrySink
	logger    Logger

	platform     config.PlatformConfig
	mqtt         config.MQTTConfig
	iface        string
	maxTelemetry int

	mailbox chan<- event
	stop    <-chan struct{}

	// gen identifies the current session; events from older sessions are
	// discarded.
	gen       uint64
	session   Transport
	events    *sessionEvents
	published int
}

func (cm *ConnectionManager) configure(cfg *config.Config) {
	cm.platform = cfg.Platform
	cm.mqtt = cfg.MQTT
	cm.iface = cfg.Agent.Interface
	cm.maxTelemetry = cfg.Agent.MaxTelemetry
}

// ClientID returns "<deviceName>_<MAC>", or the device name alone when
// the MAC address cannot be read.
func (cm *ConnectionManager) ClientID() string {
	mac, err := cm.system.DeviceMACAddress(cm.iface)
	if err != nil || mac == "" {
		cm.logger.Warn("reading MAC address, using device name as client ID", "interface", cm.iface, "error", err)
		return cm.platform.DeviceName
	}
	return cm.platform.DeviceName + "_" + mac
}

// connect tears down any current session and starts a new one.
func (cm *ConnectionManager) connect() {
	if cm.state.Stopped() {
		return
	}
	cm.teardown()

	cm.state.restart()
	cm.state.Conn = Connecting

	// The actuator starts dark on every (re)connect.
	cm.actuator.SetColor(capability.ColorOff)

	down, err := message.ControlDownTopic(cm.platform.ServiceName, cm.platform.DeviceName)
	if err != nil {
		cm.fail(err)
		return
	}

	cm.gen++
	events := newSessionEvents(cm.gen, cm.mailbox, cm.stop)
	opts := ConnectOptions{
		MQTT:            cm.mqtt,
		ClientID:        cm.ClientID(),
		Username:        cm.platform.DeviceToken,
		SubscribeTopics: []string{down},
	}

	cm.logger.Info("connecting", "host", cm.mqtt.Broker.Host, "port", cm.mqtt.Broker.BrokerPort(), "client_id", opts.ClientID)
	session, err := cm.connector.Connect(opts, events)
	if err != nil {
		events.retire()
		cm.fail(err)
		return
	}

	cm.session = session
	cm.events = events
	cm.reporter.transport = session
}

func (cm *ConnectionManager) fail(err error) {
	cm.logger.Warn("connect failed", "error", err)
	cm.state.Conn = Disconnected
	cm.state.LastError = status.Of(err)
}

// teardown retires and disconnects the current session, if any.
func (cm *ConnectionManager) teardown() {
	if cm.events != nil {
		cm.events.retire()
		cm.events = nil
	}
	if cm.session != nil {
		cm.session.Disconnect()
		cm.session = nil
	}
	cm.reporter.transport = nil
}

// apply handles one transport event.
func (cm *ConnectionManager) apply(ev event, d *Dispatcher) {
	if ev.gen != cm.gen {
		cm.logger.Debug("discarding event from previous session", "event", ev.kind, "gen", ev.gen)
		return
	}

	switch ev.kind {
	case evConnected:
		cm.state.LastError = status.Code(ev.code)
		if ev.code != 0 {
			cm.logger.Warn("connection refused", "code", ev.code)
			cm.state.Conn = Disconnected
			return
		}
		cm.logger.Info("connected", "session", cm.gen)
		cm.state.Conn = Connected
		cm.writeConnectionEvent("connected")

	case evSubscribed:
		if cm.state.Stopped() {
			return
		}
		if ev.code != 0 {
			cm.logger.Warn("subscribe failed, reconnecting", "code", ev.code)
			cm.state.LastError = status.Code(ev.code)
			cm.state.Conn = Disconnected
			return
		}
		cm.state.advance(StepAttribute)
		code := cm.reporter.ReportAttribute()
		cm.logger.Info("attributes reported", "status", code)
		cm.state.advance(StepTelemetry)

	case evDisconnected:
		cm.logger.Info("disconnected", "code", ev.code)
		cm.state.Conn = Disconnected
		cm.writeConnectionEvent("disconnected")

	case evConnectionLost:
		cm.logger.Warn("connection lost", "cause", ev.cause)
		cm.state.Conn = Disconnected
		cm.writeConnectionEvent("lost")

	case evDelivered:
		cm.logger.Debug("publish delivered", "token", ev.code)

	case evMessage:
		d.Handle(ev.topic, ev.payload)
	}
}

// tick runs one poll iteration. It returns true once the telemetry limit
// has been reached.
func (cm *ConnectionManager) tick() bool {
	switch cm.state.Conn {
	case Connected:
		if cm.state.Step != StepTelemetry || cm.session == nil || !cm.session.IsConnected() {
			return false
		}
		code := cm.reporter.ReportTelemetry()
		cm.published++
		cm.logger.Debug("telemetry reported", "status", code, "count", cm.published)
		return cm.maxTelemetry > 0 && cm.published >= cm.maxTelemetry

	case Disconnected:
		cm.connect()
	}
	return false
}

// reconfigure swaps the endpoint and identity and forces a reconnect.
func (cm *ConnectionManager) reconfigure(cfg *config.Config) {
	cm.configure(cfg)
	cm.state.Conn = Disconnected
	cm.connect()
}

// shutdown ends the state machine and closes the session.
func (cm *ConnectionManager) shutdown() {
	cm.teardown()
	cm.state.Step = StepEnd
	cm.state.Conn = Disconnected
}

func (cm *ConnectionManager) writeConnectionEvent(state string) {
	if cm.sink != nil {
		cm.sink.WriteConnectionEvent(cm.platform.DeviceName, state)
	}
}
