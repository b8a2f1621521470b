package message

import (
	"bytes"
	"strconv"
)

// Result values of an RPC response.
const (
	ResultSuccess = "success"
	ResultFail    = "fail"
)

// RPCResponse is an outbound RPC result.
type RPCResponse struct {
	Cmd   string
	CmdID int64

	// JSONRPC is echoed from the request; omitted when empty.
	JSONRPC string
	ID      int64

	Success bool

	// Body is rendered as rpcRsp.result on success and rpcRsp.error on
	// failure. Omitted when empty.
	Body *Collection
}

// EncodeResponse renders an RPC response as compact JSON with fields in
// the order cmd, cmdId, result, rpcRsp.
func EncodeResponse(r RPCResponse) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte('{')
	writeString(&buf, fieldCmd)
	buf.WriteByte(':')
	writeString(&buf, r.Cmd)

	buf.WriteByte(',')
	writeString(&buf, fieldCmdID)
	buf.WriteByte(':')
	buf.WriteString(strconv.FormatInt(r.CmdID, 10))

	buf.WriteByte(',')
	writeString(&buf, fieldResult)
	buf.WriteByte(':')
	if r.Success {
		writeString(&buf, ResultSuccess)
	} else {
		writeString(&buf, ResultFail)
	}

	buf.WriteByte(',')
	writeString(&buf, fieldRPCRsp)
	buf.WriteString(":{")
	if r.JSONRPC != "" {
		writeString(&buf, fieldJSONRPC)
		buf.WriteByte(':')
		writeString(&buf, r.JSONRPC)
		buf.WriteByte(',')
	}
	writeString(&buf, fieldID)
	buf.WriteByte(':')
	buf.WriteString(strconv.FormatInt(r.ID, 10))

	if r.Body.Len() > 0 {
		buf.WriteByte(',')
		if r.Success {
			writeString(&buf, fieldResult)
		} else {
			writeString(&buf, fieldError)
		}
		buf.WriteByte(':')
		if err := writeObject(&buf, r.Body); err != nil {
			return nil, err
		}
	}
	buf.WriteString("}}")

	return buf.Bytes(), nil
}

// Subscribe commands.
const (
	CmdSubscribe   = "subscribe"
	CmdUnsubscribe = "unsubscribe"
)

// SubscribeRequest asks the platform to start or stop forwarding
// attribute and telemetry changes for a device or sensor node.
type SubscribeRequest struct {
	Cmd          string
	CmdID        int64
	ServiceName  string
	DeviceName   string
	SensorNodeID string // omitted when empty
	IsTargetAll  bool
	Attributes   []string
	Telemetry    []string
}

// EncodeSubscribe renders a subscribe request. Both name lists are always
// present, as empty arrays when nil.
func EncodeSubscribe(r SubscribeRequest) ([]byte, error) {
	if r.Cmd == "" || r.ServiceName == "" || r.DeviceName == "" {
		return nil, ErrInvalidFormat
	}

	c := NewCollection(
		String(fieldCmd, r.Cmd),
		Int64(fieldCmdID, r.CmdID),
		String(fieldServiceName, r.ServiceName),
		String(fieldDeviceName, r.DeviceName),
	)
	if r.SensorNodeID != "" {
		c.Add(String(fieldSensorNodeID, r.SensorNodeID))
	}
	c.Add(Bool(fieldIsTargetAll, r.IsTargetAll))
	c.Add(Raw(fieldAttribute, stringArray(r.Attributes)))
	c.Add(Raw(fieldTelemetry, stringArray(r.Telemetry)))

	return EncodeJSON(c)
}

func stringArray(items []string) string {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, s := range items {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeString(&buf, s)
	}
	buf.WriteByte(']')
	return buf.String()
}
