// Package mqtt provides the MQTT session the agent uses to talk to ThingPlug.
//
// This package manages:
//   - One broker connection per Session, started asynchronously
//   - Subscribing to the control-down topic once connected
//   - Fire-and-forget publishing with asynchronous delivery reports
//   - Lifecycle events (connected, subscribed, disconnected, lost, delivered, message)
//
// # Architecture
//
// A Session reports everything through the Events interface and never
// reconnects by itself. The agent loop serialises those events and decides
// when to tear a session down and start a new one.
//
//	paho goroutines -> Events -> agent mailbox -> agent loop
//
// # Security Considerations
//
//   - TLS (port 8883) should be used outside of development
//   - The device token is sent as the MQTT user name
//   - insecure_skip_verify disables certificate checks; test brokers only
//
// # Usage
//
//	s, err := mqtt.Start(cfg.MQTT, mqtt.SessionOptions{
//	    ClientID:        "dev_0A1B2C3D4E5F",
//	    Username:        cfg.Platform.DeviceToken,
//	    SubscribeTopics: []string{"v1/dev/svc/dev/down"},
//	}, events)
//	if err != nil {
//	    return err
//	}
//	defer s.Disconnect()
//
//	// after events.OnSubscribed(0)
//	err = s.Publish("v1/dev/svc/dev/telemetry", payload)
package mqtt
