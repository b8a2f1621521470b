package main

import (
	"github.com/nerrad567/thingplug-agent/internal/agent"
	"github.com/nerrad567/thingplug-agent/internal/infrastructure/mqtt"
)

// mqttConnector starts paho sessions for the agent.
type mqttConnector struct {
	logger mqtt.Logger
}

// Connect implements agent.Connector.
func (c *mqttConnector) Connect(opts agent.ConnectOptions, events agent.Events) (agent.Transport, error) {
	session, err := mqtt.Start(opts.MQTT, mqtt.SessionOptions{
		ClientID:        opts.ClientID,
		Username:        opts.Username,
		Password:        opts.Password,
		SubscribeTopics: opts.SubscribeTopics,
	}, events)
	if err != nil {
		return nil, err
	}
	if c.logger != nil {
		session.SetLogger(c.logger)
	}
	return session, nil
}
