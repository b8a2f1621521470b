package agent

import (
	"errors"

	"github.com/nerrad567/thingplug-agent/internal/status"
)

// Domain errors for the agent package.
var (
	// ErrNilDependency is returned by New when a required collaborator is nil.
	ErrNilDependency = errors.New("agent: required dependency is nil")

	// ErrNilConfig is returned by New when no configuration is given.
	ErrNilConfig = errors.New("agent: config is nil")

	// ErrStopped is returned by requests made after Run has returned.
	ErrStopped = errors.New("agent: stopped")

	// ErrNoSession is returned by HealthCheck between sessions.
	ErrNoSession = status.New(status.Disconnected, "agent: no session")

	// ErrNoControlField is returned when a control message lacks the
	// actuator field.
	ErrNoControlField = errors.New("agent: control field missing")
)
