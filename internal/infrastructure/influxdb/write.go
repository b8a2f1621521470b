package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by the agent.
const (
	measurementTelemetry  = "telemetry"
	measurementConnection = "connection"
)

// WriteTelemetry mirrors one telemetry report.
//
// Each reading whose text parses as a number becomes a float field named
// after the sensor; other readings are skipped. Nothing is written when
// no reading is numeric. The write is non-blocking.
//
// Parameters:
//   - device: ThingPlug device name, stored as the "device" tag
//   - ts: Report timestamp (the "ts" value the agent published)
//   - readings: Sensor name to the text value that was published
func (c *Client) WriteTelemetry(device string, ts time.Time, readings map[string]string) {
	if !c.IsConnected() {
		return
	}

	fields := make(map[string]any, len(readings))
	for name, text := range readings {
		v, err := strconv.ParseFloat(text, 64)
		if err != nil {
			continue
		}
		fields[name] = v
	}
	if len(fields) == 0 {
		return
	}

	c.writeAPI.WritePoint(write.NewPoint(
		measurementTelemetry,
		map[string]string{"device": device},
		fields,
		ts,
	))
}

// WriteConnectionEvent records a connection state change, e.g.
// "connected" or "lost".
func (c *Client) WriteConnectionEvent(device, state string) {
	if !c.IsConnected() {
		return
	}

	c.writeAPI.WritePoint(write.NewPoint(
		measurementConnection,
		map[string]string{"device": device},
		map[string]any{"state": state},
		time.Now(),
	))
}
