package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/thingplug-agent/internal/infrastructure/config"
	"github.com/nerrad567/thingplug-agent/internal/message"
	"github.com/nerrad567/thingplug-agent/internal/status"
)

const (
	defaultMailboxSize  = 64
	defaultPollInterval = 10 * time.Second
)

// Dependencies are the collaborators of an Agent. Sink, Journal and
// Logger are optional.
type Dependencies struct {
	Connector Connector
	Actuator  Actuator
	Sensors   SensorReader
	System    SystemInfo
	Sink      TelemetrySink
	Journal   Journal
	Logger    Logger
}

// Agent runs the device session.
type Agent struct {
	state      State
	conn       *ConnectionManager
	reporter   *Reporter
	dispatcher *Dispatcher
	logger     Logger

	pollInterval time.Duration

	mailbox  chan event
	reconfig chan *config.Config
	requests chan func()

	// stop is closed when Run returns.
	stop     chan struct{}
	stopOnce sync.Once

	snapMu sync.RWMutex
	snap   State
}

// New creates an agent for cfg. The agent does nothing until Run.
//
// Parameters:
//   - cfg: Validated configuration
//   - deps: Transport and capabilities
//
// Returns:
//   - *Agent: Ready to Run
//   - error: ErrNilConfig, ErrNilDependency or an invalid report format
func New(cfg *config.Config, deps Dependencies) (*Agent, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}
	if deps.Connector == nil || deps.Actuator == nil || deps.Sensors == nil || deps.System == nil {
		return nil, ErrNilDependency
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	mailboxSize := cfg.Agent.MailboxSize
	if mailboxSize <= 0 {
		mailboxSize = defaultMailboxSize
	}

	pollInterval := cfg.GetPollInterval()
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	a := &Agent{
		logger:       logger,
		pollInterval: pollInterval,
		mailbox:      make(chan event, mailboxSize),
		reconfig:     make(chan *config.Config, 1),
		requests:     make(chan func()),
		stop:         make(chan struct{}),
	}

	a.reporter = &Reporter{
		state:    &a.state,
		actuator: deps.Actuator,
		sensors:  deps.Sensors,
		system:   deps.System,
		sink:     deps.Sink,
		logger:   logger,
		now:      time.Now,
	}
	if err := a.reporter.configure(cfg); err != nil {
		return nil, fmt.Errorf("configuring reporter: %w", err)
	}

	a.conn = &ConnectionManager{
		state:     &a.state,
		reporter:  a.reporter,
		connector: deps.Connector,
		system:    deps.System,
		actuator:  deps.Actuator,
		sink:      deps.Sink,
		logger:    logger,
		mailbox:   a.mailbox,
		stop:      a.stop,
	}
	a.conn.configure(cfg)

	a.dispatcher = &Dispatcher{
		state:        &a.state,
		reporter:     a.reporter,
		actuator:     deps.Actuator,
		journal:      deps.Journal,
		logger:       logger,
		controlField: cfg.Agent.ControlField,
		prefixMatch:  cfg.Agent.LegacyPrefixMatch,
	}

	a.snap = a.state
	return a, nil
}

// Run connects and serves until ctx is cancelled or the telemetry limit
// is reached. It always returns nil after closing the session; the error
// return is for errgroup.
func (a *Agent) Run(ctx context.Context) error {
	defer a.stopOnce.Do(func() { close(a.stop) })

	ticker := time.NewTicker(a.pollInterval)
	defer ticker.Stop()

	a.conn.connect()
	a.publishState()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("agent stopping", "reason", ctx.Err())
			a.conn.shutdown()
			a.publishState()
			return nil

		case ev := <-a.mailbox:
			a.conn.apply(ev, a.dispatcher)

		case cfg := <-a.reconfig:
			a.applyConfig(cfg, ticker)

		case fn := <-a.requests:
			fn()

		case <-ticker.C:
			if a.conn.tick() {
				a.logger.Info("telemetry limit reached", "count", a.conn.published)
				a.conn.shutdown()
				a.publishState()
				return nil
			}
		}
		a.publishState()
	}
}

func (a *Agent) applyConfig(cfg *config.Config, ticker *time.Ticker) {
	if err := a.reporter.configure(cfg); err != nil {
		a.logger.Warn("ignoring reloaded config", "error", err)
		return
	}
	a.dispatcher.controlField = cfg.Agent.ControlField
	a.dispatcher.prefixMatch = cfg.Agent.LegacyPrefixMatch

	if interval := cfg.GetPollInterval(); interval > 0 && interval != a.pollInterval {
		a.pollInterval = interval
		ticker.Reset(interval)
	}

	a.logger.Info("config reloaded, reconnecting", "host", cfg.MQTT.Broker.Host, "device", cfg.Platform.DeviceName)
	a.conn.reconfigure(cfg)
}

// Reconfigure hands a reloaded configuration to the run loop. Only the
// latest pending configuration is kept. Safe to call from any goroutine.
func (a *Agent) Reconfigure(cfg *config.Config) {
	if cfg == nil {
		return
	}
	for {
		select {
		case a.reconfig <- cfg:
			return
		default:
		}
		select {
		case <-a.reconfig:
		default:
		}
	}
}

// State returns a snapshot of the connection state as of the last
// processed event. Safe to call from any goroutine.
func (a *Agent) State() State {
	a.snapMu.RLock()
	defer a.snapMu.RUnlock()
	return a.snap
}

func (a *Agent) publishState() {
	a.snapMu.Lock()
	a.snap = a.state
	a.snapMu.Unlock()
}

// ReportRaw publishes a caller-encoded payload from the run loop.
func (a *Agent) ReportRaw(ctx context.Context, kind message.Kind, format message.Format, payload []byte) (status.Code, error) {
	return a.report(ctx, func() status.Code {
		return a.reporter.ReportRaw(kind, format, payload)
	})
}

// Subscribe publishes a subscribe or unsubscribe request from the run loop.
func (a *Agent) Subscribe(ctx context.Context, req message.SubscribeRequest) (status.Code, error) {
	return a.report(ctx, func() status.Code {
		return a.reporter.Subscribe(req)
	})
}

// AppendTelemetry adds a pre-encoded chunk to the pending telemetry
// payload. The chunk is copied.
func (a *Agent) AppendTelemetry(ctx context.Context, chunk []byte) (status.Code, error) {
	chunk = append([]byte(nil), chunk...)
	return a.report(ctx, func() status.Code {
		return a.reporter.AppendTelemetry(chunk)
	})
}

// ReportAppendedTelemetry publishes the chunks collected by
// AppendTelemetry as one telemetry payload.
func (a *Agent) ReportAppendedTelemetry(ctx context.Context) (status.Code, error) {
	return a.report(ctx, a.reporter.ReportAppendedTelemetry)
}

// HealthCheck reports whether the current session is connected.
func (a *Agent) HealthCheck(ctx context.Context) error {
	var result error
	err := a.do(ctx, func() {
		if a.reporter.transport == nil {
			result = ErrNoSession
			return
		}
		result = a.reporter.transport.HealthCheck(ctx)
	})
	if err != nil {
		return err
	}
	return result
}

func (a *Agent) report(ctx context.Context, fn func() status.Code) (status.Code, error) {
	code := status.Failure
	if err := a.do(ctx, func() { code = fn() }); err != nil {
		return status.Failure, err
	}
	return code, nil
}

// do runs fn on the loop goroutine and waits for it to finish.
func (a *Agent) do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	select {
	case a.requests <- func() { fn(); close(done) }:
	case <-a.stop:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
