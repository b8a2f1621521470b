package message

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// Shape identifies which inbound message layout a payload follows.
type Shape int

// Inbound shapes.
const (
	// ShapeUnknown is neither an RPC nor a generic command. Ignored.
	ShapeUnknown Shape = iota

	// ShapeRPC has a nested rpcReq object.
	ShapeRPC

	// ShapeCommand has cmd and cmdId but no rpcReq.
	ShapeCommand
)

// String returns the shape name.
func (s Shape) String() string {
	switch s {
	case ShapeRPC:
		return "rpc"
	case ShapeCommand:
		return "command"
	default:
		return "unknown"
	}
}

// Inbound field names.
const (
	fieldCmd          = "cmd"
	fieldCmdID        = "cmdId"
	fieldRPCReq       = "rpcReq"
	fieldRPCRsp       = "rpcRsp"
	fieldJSONRPC      = "jsonrpc"
	fieldID           = "id"
	fieldMethod       = "method"
	fieldParams       = "params"
	fieldResult       = "result"
	fieldError        = "error"
	fieldErrorCode    = "errorCode"
	fieldAttribute    = "attribute"
	fieldTelemetry    = "telemetry"
	fieldSensorNodeID = "sensorNodeId"
	fieldIsTargetAll  = "isTargetAll"
	fieldServiceName  = "serviceName"
	fieldDeviceName   = "deviceName"
)

// RPCRequest is the nested rpcReq object of an RPC message.
type RPCRequest struct {
	// JSONRPC is the protocol version, empty when the request carried none.
	JSONRPC string
	ID      int64
	Method  string
	// Params holds each params entry undecoded.
	Params []json.RawMessage
}

// Param decodes params[index] as an object.
// It returns ErrMalformedMessage when the entry is missing or not an object.
func (r *RPCRequest) Param(index int) (*Collection, error) {
	if r == nil || index < 0 || index >= len(r.Params) {
		return nil, fmt.Errorf("%w: params[%d] missing", ErrMalformedMessage, index)
	}
	c, err := DecodeCollection(r.Params[index])
	if err != nil {
		return nil, fmt.Errorf("%w: params[%d]: %w", ErrMalformedMessage, index, err)
	}
	return c, nil
}

// CommandEnvelope is a decoded downstream message.
type CommandEnvelope struct {
	Cmd   string
	CmdID int64

	// RPC is set for ShapeRPC messages.
	RPC *RPCRequest

	SensorNodeID string
	IsTargetAll  bool

	// Attribute is the attribute object of a setAttribute command.
	Attribute *Collection

	// AttributeNames and TelemetryNames are set when attribute or
	// telemetry are given as lists of names.
	AttributeNames []string
	TelemetryNames []string
}

// Inbound is the result of Decode.
type Inbound struct {
	Shape    Shape
	Envelope CommandEnvelope

	// ErrorCode is the top-level errorCode, valid when HasErrorCode is set.
	// It is extracted before shape validation, so it is reported even when
	// Decode returns an error.
	ErrorCode    int
	HasErrorCode bool
}

// Decode parses a downstream JSON payload.
//
// Parameters:
//   - payload: raw message body
//
// Returns:
//   - Inbound: the detected shape, envelope and optional errorCode
//   - error: ErrInvalidJSON if the payload is not a JSON object,
//     ErrMalformedMessage if a required field is missing or mistyped
func Decode(payload []byte) (Inbound, error) {
	var in Inbound

	var top map[string]json.RawMessage
	if err := json.Unmarshal(payload, &top); err != nil {
		return in, fmt.Errorf("%w: %w", ErrInvalidJSON, err)
	}
	if top == nil {
		return in, fmt.Errorf("%w: not an object", ErrInvalidJSON)
	}

	if raw, ok := top[fieldErrorCode]; ok {
		if code, ok := intValue(raw); ok {
			in.ErrorCode = int(code)
			in.HasErrorCode = true
		}
	}

	if raw, ok := top[fieldRPCReq]; ok {
		in.Shape = ShapeRPC
		env, err := decodeRPC(top, raw)
		if err != nil {
			return in, err
		}
		in.Envelope = env
		return in, nil
	}

	_, hasCmd := top[fieldCmd]
	_, hasCmdID := top[fieldCmdID]
	if hasCmd && hasCmdID {
		in.Shape = ShapeCommand
		env, err := decodeCommand(top)
		if err != nil {
			return in, err
		}
		in.Envelope = env
		return in, nil
	}

	return in, nil
}

func decodeRPC(top map[string]json.RawMessage, rawReq json.RawMessage) (CommandEnvelope, error) {
	var env CommandEnvelope

	cmd, ok := stringValue(top[fieldCmd])
	if !ok {
		return env, fmt.Errorf("%w: cmd must be a string", ErrMalformedMessage)
	}
	env.Cmd = cmd

	var req map[string]json.RawMessage
	if err := json.Unmarshal(rawReq, &req); err != nil || req == nil {
		return env, fmt.Errorf("%w: rpcReq must be an object", ErrMalformedMessage)
	}

	id, ok := intValue(req[fieldID])
	if !ok {
		return env, fmt.Errorf("%w: rpcReq.id must be an integer", ErrMalformedMessage)
	}
	method, ok := stringValue(req[fieldMethod])
	if !ok {
		return env, fmt.Errorf("%w: rpcReq.method must be a string", ErrMalformedMessage)
	}

	rpc := &RPCRequest{ID: id, Method: method}
	if v, ok := stringValue(req[fieldJSONRPC]); ok {
		rpc.JSONRPC = v
	}
	if raw, ok := req[fieldParams]; ok {
		var params []json.RawMessage
		if err := json.Unmarshal(raw, &params); err == nil {
			rpc.Params = params
		}
	}
	env.RPC = rpc

	// cmdId is optional on RPC requests; responses always use their own.
	if v, ok := intValue(top[fieldCmdID]); ok {
		env.CmdID = v
	}
	decodeTargeting(top, &env)
	return env, nil
}

func decodeCommand(top map[string]json.RawMessage) (CommandEnvelope, error) {
	var env CommandEnvelope

	cmd, ok := stringValue(top[fieldCmd])
	if !ok {
		return env, fmt.Errorf("%w: cmd must be a non-null string", ErrMalformedMessage)
	}
	cmdID, ok := intValue(top[fieldCmdID])
	if !ok {
		return env, fmt.Errorf("%w: cmdId must be an integer", ErrMalformedMessage)
	}
	env.Cmd = cmd
	env.CmdID = cmdID

	if raw, ok := top[fieldAttribute]; ok {
		switch firstByte(raw) {
		case '{':
			attr, err := DecodeCollection(raw)
			if err != nil {
				return env, fmt.Errorf("%w: attribute: %w", ErrMalformedMessage, err)
			}
			env.Attribute = attr
		case '[':
			env.AttributeNames = stringList(raw)
		}
	}
	if raw, ok := top[fieldTelemetry]; ok {
		env.TelemetryNames = stringList(raw)
	}
	decodeTargeting(top, &env)
	return env, nil
}

// decodeTargeting fills the optional sensor node fields.
func decodeTargeting(top map[string]json.RawMessage, env *CommandEnvelope) {
	if v, ok := stringValue(top[fieldSensorNodeID]); ok {
		env.SensorNodeID = v
	}
	var all bool
	if raw, ok := top[fieldIsTargetAll]; ok && json.Unmarshal(raw, &all) == nil {
		env.IsTargetAll = all
	}
}

// DecodeCollection parses a JSON object into a Collection, keeping field
// order. Strings decode as TypeString, booleans as TypeBool, integral
// numbers as TypeInt64 and other numbers as TypeDouble. Nested objects,
// arrays and null are kept verbatim as TypeRaw.
func DecodeCollection(payload []byte) (*Collection, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidJSON, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("%w: not an object", ErrInvalidJSON)
	}

	c := &Collection{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidJSON, err)
		}
		name, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("%w: expected field name", ErrInvalidJSON)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("%w: field %s: %w", ErrInvalidJSON, name, err)
		}
		e, err := elementFromRaw(name, raw)
		if err != nil {
			return nil, err
		}
		c.Add(e)
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidJSON, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after object", ErrInvalidJSON)
	}
	return c, nil
}

func elementFromRaw(name string, raw json.RawMessage) (Element, error) {
	switch firstByte(raw) {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return Element{}, fmt.Errorf("%w: field %s: %w", ErrInvalidJSON, name, err)
		}
		return String(name, s), nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return Element{}, fmt.Errorf("%w: field %s: %w", ErrInvalidJSON, name, err)
		}
		return Bool(name, b), nil
	case '{', '[', 'n':
		return Raw(name, string(raw)), nil
	default:
		if i, ok := intValue(raw); ok {
			return Int64(name, i), nil
		}
		f, err := strconv.ParseFloat(string(bytes.TrimSpace(raw)), 64)
		if err != nil {
			return Element{}, fmt.Errorf("%w: field %s: %w", ErrInvalidJSON, name, err)
		}
		return Double(name, f), nil
	}
}

// IntField returns the named element as an integer.
// Only TypeInt and TypeInt64 elements qualify.
func IntField(c *Collection, name string) (int64, bool) {
	e, ok := c.Get(name)
	if !ok {
		return 0, false
	}
	switch e.Type {
	case TypeInt, TypeInt64:
		return e.i64, true
	default:
		return 0, false
	}
}

// intValue parses raw as a JSON integer literal.
func intValue(raw json.RawMessage) (int64, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	i, err := strconv.ParseInt(string(bytes.TrimSpace(raw)), 10, 64)
	if err != nil {
		return 0, false
	}
	return i, true
}

// stringValue parses raw as a JSON string. null and other types fail.
func stringValue(raw json.RawMessage) (string, bool) {
	if firstByte(raw) != '"' {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// stringList parses raw as an array of strings, skipping non-string entries.
func stringList(raw json.RawMessage) []string {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := stringValue(item); ok {
			out = append(out, s)
		}
	}
	return out
}

func firstByte(raw json.RawMessage) byte {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return 0
	}
	return trimmed[0]
}
