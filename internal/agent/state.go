package agent

import "github.com/nerrad567/thingplug-agent/internal/status"

// ConnState is the connection state of the agent.
type ConnState int

const (
	Disconnected ConnState = iota
	Connecting
	Connected
)

// String returns the state name.
func (c ConnState) String() string {
	switch c {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Step gates what the agent announces: attributes once per connection,
// then telemetry on every tick.
type Step int

const (
	StepStart Step = iota
	StepAttribute
	StepTelemetry
	StepEnd
)

// String returns the step name.
func (s Step) String() string {
	switch s {
	case StepAttribute:
		return "attribute"
	case StepTelemetry:
		return "telemetry"
	case StepEnd:
		return "end"
	default:
		return "start"
	}
}

// State is the agent's mutable context. It is owned by the run loop.
type State struct {
	Conn ConnState
	Step Step

	// LastError is the status of the most recent report, connect result or
	// platform errorCode. Only the latest value is kept.
	LastError status.Code
}

// advance moves the step forward. It never moves backwards and never
// leaves StepEnd.
func (s *State) advance(to Step) {
	if s.Step == StepEnd || to <= s.Step {
		return
	}
	s.Step = to
}

// restart returns to StepStart for a new connection, unless stopped.
func (s *State) restart() {
	if s.Step == StepEnd {
		return
	}
	s.Step = StepStart
}

// Stopped reports whether the agent reached StepEnd.
func (s State) Stopped() bool {
	return s.Step == StepEnd
}
