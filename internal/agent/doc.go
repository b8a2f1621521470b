// Package agent is the device side of the ThingPlug messaging protocol.
//
// One goroutine (Agent.Run) owns the connection state. Transport callbacks
// never touch it directly: they are posted as events into a buffered
// mailbox and applied in order by the run loop, together with the poll
// ticker, configuration reloads and caller requests.
//
// The pieces:
//   - ConnectionManager reacts to connected/subscribed/lost events and to
//     poll ticks, reconnecting when the session is down.
//   - Reporter builds attribute and telemetry collections and publishes
//     them; every publish status lands in the last-error slot.
//   - Dispatcher decodes downstream control messages, runs the matching
//     capability and publishes the RPC result.
//
// Usage:
//
//	a, err := agent.New(cfg, agent.Dependencies{
//	    Connector: connector,
//	    Actuator:  capability.NewRGBLED(),
//	    Sensors:   capability.NewSimulatedSensors(),
//	    System:    capability.NewHost(),
//	    Logger:    log,
//	})
//	if err != nil {
//	    return err
//	}
//	return a.Run(ctx)
package agent
