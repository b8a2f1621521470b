package agent

import (
	"fmt"
	"math"
	"time"

	"github.com/nerrad567/thingplug-agent/internal/infrastructure/config"
	"github.com/nerrad567/thingplug-agent/internal/message"
	"github.com/nerrad567/thingplug-agent/internal/status"
)

// Attribute names reported after each connect.
const (
	AttrAvailableMemory = "sysAvailableMemory"
	AttrFirmwareVersion = "sysFirmwareVersion"
	AttrHardwareVersion = "sysHardwareVersion"
	AttrSerialNumber    = "sysSerialNumber"
	AttrErrorCode       = "sysErrorCode"
	AttrNetworkType     = "sysNetworkType"
	AttrDeviceIP        = "sysDeviceIpAddress"
	AttrPlatformIP      = "sysThingPlugIpAddress"
	AttrLatitude        = "sysLocationLatitude"
	AttrLongitude       = "sysLocationLongitude"
)

// TelemetryTimestamp is the leading element of every telemetry report.
const TelemetryTimestamp = "ts"

// maxPendingTelemetry caps appended telemetry at the transport payload limit.
const maxPendingTelemetry = 1 << 20

// Reporter builds and publishes attribute and telemetry reports.
//
// It is used only from the run loop. Each publish overwrites
// State.LastError with its status.
type Reporter struct {
	state *State

	platform     config.PlatformConfig
	device       config.DeviceConfig
	brokerHost   string
	iface        string
	sensorNames  []string
	controlField string
	format       message.Format

	actuator Actuator
	sensors  SensorReader
	system   SystemInfo
	sink     TelemetrySink
	logger   Logger

	// transport is the current session, nil between sessions.
	transport Transport

	// pending holds telemetry chunks appended by AppendTelemetry until
	// ReportAppendedTelemetry sends them as one payload.
	pending []byte

	now func() time.Time
}

// configure applies the report-related parts of cfg.
func (r *Reporter) configure(cfg *config.Config) error {
	format, err := message.ParseFormat(cfg.Agent.Format)
	if err != nil {
		return err
	}
	if format == message.FormatOffset {
		return fmt.Errorf("report format: %w", message.ErrUnsupportedFormat)
	}
	r.platform = cfg.Platform
	r.device = cfg.Device
	r.brokerHost = cfg.MQTT.Broker.Host
	r.iface = cfg.Agent.Interface
	r.sensorNames = append([]string(nil), cfg.Agent.Sensors...)
	r.controlField = cfg.Agent.ControlField
	r.format = format
	return nil
}

// attributeSchema is the attribute field order. CSV rows follow it.
func (r *Reporter) attributeSchema() []string {
	return []string{
		AttrAvailableMemory,
		AttrFirmwareVersion,
		AttrHardwareVersion,
		AttrSerialNumber,
		AttrErrorCode,
		AttrNetworkType,
		AttrDeviceIP,
		AttrPlatformIP,
		AttrLatitude,
		AttrLongitude,
		r.controlField,
	}
}

// Attributes builds the full attribute collection.
func (r *Reporter) Attributes() *message.Collection {
	mem, err := r.system.AvailableMemory()
	if err != nil {
		r.logger.Warn("reading available memory", "error", err)
	}
	ip, err := r.system.DeviceIPAddress(r.iface)
	if err != nil {
		r.logger.Warn("reading device IP address", "interface", r.iface, "error", err)
	}

	return message.NewCollection(
		message.Int64(AttrAvailableMemory, int64(min(mem, math.MaxInt64))), //nolint:gosec // clamped to MaxInt64
		message.String(AttrFirmwareVersion, r.device.FirmwareVersion),
		message.String(AttrHardwareVersion, r.device.HardwareVersion),
		message.String(AttrSerialNumber, r.device.SerialNumber),
		message.Int(AttrErrorCode, int(r.state.LastError)),
		message.String(AttrNetworkType, r.device.NetworkType),
		message.String(AttrDeviceIP, ip),
		message.String(AttrPlatformIP, r.brokerHost),
		message.Double(AttrLatitude, r.device.Latitude),
		message.Double(AttrLongitude, r.device.Longitude),
		message.Int(r.controlField, r.actuator.ColorStatus()),
	)
}

// Telemetry builds a telemetry collection: the timestamp first, then each
// configured sensor as a raw value. Unknown sensors are skipped.
// The readings map holds the same values by sensor name.
func (r *Reporter) Telemetry() (c *message.Collection, ts time.Time, readings map[string]string) {
	ts = r.now()
	c = message.NewCollection(message.Int64(TelemetryTimestamp, ts.Unix()))
	readings = make(map[string]string, len(r.sensorNames))

	for _, name := range r.sensorNames {
		text, ok := r.sensors.ReadSensor(name)
		if !ok {
			r.logger.Warn("unknown sensor skipped", "sensor", name)
			continue
		}
		c.Add(message.Raw(name, text))
		readings[name] = text
	}
	return c, ts, readings
}

// ReportAttribute publishes the full attribute set.
func (r *Reporter) ReportAttribute() status.Code {
	return r.report(message.KindAttribute, r.Attributes())
}

// ReportAttributeUpdate publishes a partial attribute update. In CSV the
// row is widened to the attribute schema with the other fields empty.
func (r *Reporter) ReportAttributeUpdate(c *message.Collection) status.Code {
	if r.format == message.FormatCSV {
		c = c.AlignTo(r.attributeSchema())
	}
	return r.report(message.KindAttribute, c)
}

// ReportTelemetry publishes one telemetry report and mirrors it to the sink.
func (r *Reporter) ReportTelemetry() status.Code {
	c, ts, readings := r.Telemetry()
	code := r.report(message.KindTelemetry, c)

	if r.sink != nil {
		r.sink.WriteTelemetry(r.platform.DeviceName, ts, readings)
	}
	return code
}

// ReportRaw publishes a payload that was encoded by the caller, e.g. an
// offset-format report. An empty payload is rejected without touching
// the last-error slot.
func (r *Reporter) ReportRaw(kind message.Kind, format message.Format, payload []byte) status.Code {
	if len(payload) == 0 {
		return status.InvalidParameter
	}
	topic, err := message.Topic(kind, format, r.platform.ServiceName, r.platform.DeviceName)
	if err != nil {
		return status.Of(err)
	}
	return r.publish(topic, payload)
}

// AppendTelemetry adds a pre-encoded chunk to the pending telemetry
// payload. Chunks are concatenated verbatim.
func (r *Reporter) AppendTelemetry(chunk []byte) status.Code {
	if len(chunk) == 0 {
		return status.Failure
	}
	if len(r.pending)+len(chunk) > maxPendingTelemetry {
		return status.InvalidParameter
	}
	r.pending = append(r.pending, chunk...)
	r.logger.Debug("telemetry chunk appended", "bytes", len(chunk), "pending", len(r.pending))
	return status.Success
}

// ReportAppendedTelemetry publishes the pending chunks on the JSON
// telemetry topic and clears them, whatever the publish outcome.
func (r *Reporter) ReportAppendedTelemetry() status.Code {
	if len(r.pending) == 0 {
		return status.InvalidParameter
	}
	payload := r.pending
	r.pending = nil

	topic, err := message.Topic(message.KindTelemetry, message.FormatJSON, r.platform.ServiceName, r.platform.DeviceName)
	if err != nil {
		return r.setStatus(status.Of(err))
	}
	return r.publish(topic, payload)
}

// Subscribe asks the platform to forward the listed attributes and
// telemetry of a device. Empty service and device names default to this
// device.
func (r *Reporter) Subscribe(req message.SubscribeRequest) status.Code {
	if req.ServiceName == "" {
		req.ServiceName = r.platform.ServiceName
	}
	if req.DeviceName == "" {
		req.DeviceName = r.platform.DeviceName
	}
	payload, err := message.EncodeSubscribe(req)
	if err != nil {
		return status.Of(err)
	}
	return r.publishUp(payload)
}

// PublishResult sends an RPC result on the upstream control topic.
func (r *Reporter) PublishResult(resp message.RPCResponse) status.Code {
	payload, err := message.EncodeResponse(resp)
	if err != nil {
		return status.Of(err)
	}
	return r.publishUp(payload)
}

func (r *Reporter) publishUp(payload []byte) status.Code {
	topic, err := message.Topic(message.KindUp, message.FormatJSON, r.platform.ServiceName, r.platform.DeviceName)
	if err != nil {
		return status.Of(err)
	}
	return r.publish(topic, payload)
}

func (r *Reporter) report(kind message.Kind, c *message.Collection) status.Code {
	payload, err := message.Encode(c, r.format)
	if err != nil {
		r.logger.Warn("encoding report", "kind", kind, "format", r.format, "error", err)
		return r.setStatus(status.Of(err))
	}
	topic, err := message.Topic(kind, r.format, r.platform.ServiceName, r.platform.DeviceName)
	if err != nil {
		return r.setStatus(status.Of(err))
	}
	return r.publish(topic, payload)
}

func (r *Reporter) publish(topic string, payload []byte) status.Code {
	if r.transport == nil {
		return r.setStatus(status.Disconnected)
	}
	err := r.transport.Publish(topic, payload)
	if err != nil {
		r.logger.Warn("publish failed", "topic", topic, "error", fmt.Errorf("publishing: %w", err))
	} else {
		r.logger.Debug("published", "topic", topic, "bytes", len(payload))
	}
	return r.setStatus(status.Of(err))
}

func (r *Reporter) setStatus(code status.Code) status.Code {
	r.state.LastError = code
	return code
}
