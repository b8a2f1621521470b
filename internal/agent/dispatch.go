package agent

import (
	"fmt"
	"strings"

	"github.com/nerrad567/thingplug-agent/internal/journal"
	"github.com/nerrad567/thingplug-agent/internal/message"
	"github.com/nerrad567/thingplug-agent/internal/status"
)

// RPC method names sent by the platform.
const (
	MethodReset           = "tp_reset"
	MethodReboot          = "tp_reboot"
	MethodUpload          = "tp_upload"
	MethodDownload        = "tp_download"
	MethodInstall         = "tp_install"
	MethodReinstall       = "tp_reinstall"
	MethodUninstall       = "tp_uninstall"
	MethodUpdate          = "tp_update"
	MethodFirmwareUpgrade = "tp_fwupgrade"
	MethodClockSync       = "tp_clocksync"
	MethodSignalStatus    = "tp_sigstatusreport"
	MethodUser            = "tp_user"
	MethodRemote          = "tp_remote"
)

// CmdSetAttribute is the only generic command the agent acts on.
const CmdSetAttribute = "setAttribute"

// Actuator failure as reported in rpcRsp.error.
const (
	rpcErrorCode    = 106
	rpcErrorMessage = "FAIL"
)

// responseCmdID is the cmdId of every RPC result the device sends.
const responseCmdID = 1

// rpcHandler handles one RPC method. A non-nil error drops the message
// without a response.
type rpcHandler func(d *Dispatcher, env message.CommandEnvelope) (resp message.RPCResponse, outcome journal.Outcome, err error)

// methodOrder is the lookup order for prefix matching.
var methodOrder = []string{
	MethodReset,
	MethodReboot,
	MethodUpload,
	MethodDownload,
	MethodInstall,
	MethodReinstall,
	MethodUninstall,
	MethodUpdate,
	MethodFirmwareUpgrade,
	MethodClockSync,
	MethodSignalStatus,
	MethodUser,
	MethodRemote,
}

var rpcHandlers = map[string]rpcHandler{
	MethodReset:           (*Dispatcher).acknowledge,
	MethodReboot:          (*Dispatcher).acknowledge,
	MethodUpload:          (*Dispatcher).acknowledge,
	MethodDownload:        (*Dispatcher).acknowledge,
	MethodInstall:         (*Dispatcher).acknowledge,
	MethodReinstall:       (*Dispatcher).acknowledge,
	MethodUninstall:       (*Dispatcher).acknowledge,
	MethodUpdate:          (*Dispatcher).acknowledge,
	MethodFirmwareUpgrade: (*Dispatcher).acknowledge,
	MethodClockSync:       (*Dispatcher).acknowledge,
	MethodSignalStatus:    (*Dispatcher).acknowledge,
	MethodUser:            (*Dispatcher).userControl,
	MethodRemote:          (*Dispatcher).remote,
}

// Dispatcher routes downstream control messages to capabilities.
// It is used only from the run loop.
type Dispatcher struct {
	state    *State
	reporter *Reporter
	actuator Actuator
	journal  Journal
	logger   Logger

	controlField string
	prefixMatch  bool
}

// Handle decodes and dispatches one downstream message. Malformed
// messages are dropped without a response; nothing here is fatal.
func (d *Dispatcher) Handle(topic string, payload []byte) {
	in, err := message.Decode(payload)
	if in.HasErrorCode {
		d.state.LastError = status.Code(in.ErrorCode)
	}
	entry := journal.Entry{
		Topic:  topic,
		Cmd:    in.Envelope.Cmd,
		CmdID:  in.Envelope.CmdID,
		Method: rpcMethod(in.Envelope),
		RPCID:  rpcID(in.Envelope),
	}

	if err != nil {
		d.logger.Warn("dropping control message", "topic", topic, "error", err)
		d.record(entry, journal.OutcomeDropped, err.Error())
		return
	}

	switch in.Shape {
	case message.ShapeRPC:
		d.handleRPC(in.Envelope, entry)
	case message.ShapeCommand:
		d.handleCommand(in.Envelope, entry)
	default:
		d.logger.Debug("ignoring unrecognized control message", "topic", topic)
		d.record(entry, journal.OutcomeIgnored, "unrecognized shape")
	}
}

// lookup finds the handler for method: exact name, or the first known
// name that method starts with when prefix matching is on.
func (d *Dispatcher) lookup(method string) (rpcHandler, bool) {
	if h, ok := rpcHandlers[method]; ok {
		return h, true
	}
	if !d.prefixMatch {
		return nil, false
	}
	for _, name := range methodOrder {
		if strings.HasPrefix(method, name) {
			return rpcHandlers[name], true
		}
	}
	return nil, false
}

func (d *Dispatcher) handleRPC(env message.CommandEnvelope, entry journal.Entry) {
	handler, ok := d.lookup(env.RPC.Method)
	if !ok {
		handler = (*Dispatcher).remote
	}

	resp, outcome, err := handler(d, env)
	if err != nil {
		d.logger.Warn("dropping RPC", "method", env.RPC.Method, "id", env.RPC.ID, "error", err)
		d.record(entry, journal.OutcomeDropped, err.Error())
		return
	}

	code := d.reporter.PublishResult(resp)
	detail := ""
	if code != status.Success {
		detail = fmt.Sprintf("result publish: %s", code)
	}
	d.logger.Info("RPC handled", "method", env.RPC.Method, "id", env.RPC.ID, "outcome", outcome, "publish", code)
	d.record(entry, outcome, detail)
}

// acknowledge answers reserved methods that have no device action.
func (d *Dispatcher) acknowledge(env message.CommandEnvelope) (message.RPCResponse, journal.Outcome, error) {
	d.logger.Info("reserved RPC method acknowledged", "method", env.RPC.Method)
	return successStatus(env), journal.OutcomeIgnored, nil
}

func (d *Dispatcher) remote(env message.CommandEnvelope) (message.RPCResponse, journal.Outcome, error) {
	return successStatus(env), journal.OutcomeSuccess, nil
}

// userControl applies params[0].<controlField> to the actuator.
func (d *Dispatcher) userControl(env message.CommandEnvelope) (message.RPCResponse, journal.Outcome, error) {
	params, err := env.RPC.Param(0)
	if err != nil {
		return message.RPCResponse{}, "", err
	}
	value, ok := message.IntField(params, d.controlField)
	if !ok {
		return message.RPCResponse{}, "", fmt.Errorf("%w: %s", ErrNoControlField, d.controlField)
	}

	resp := newResponse(env)
	if d.actuator.SetColor(int(value)) != 0 {
		resp.Body = message.NewCollection(
			message.Int("code", rpcErrorCode),
			message.String("message", rpcErrorMessage),
		)
		return resp, journal.OutcomeFail, nil
	}

	resp.Success = true
	resp.Body = message.NewCollection(message.Int64(d.controlField, value))
	return resp, journal.OutcomeSuccess, nil
}

// handleCommand runs a generic command. Only setAttribute is supported.
func (d *Dispatcher) handleCommand(env message.CommandEnvelope, entry journal.Entry) {
	if env.Cmd != CmdSetAttribute {
		d.logger.Debug("ignoring command", "cmd", env.Cmd, "cmd_id", env.CmdID)
		d.record(entry, journal.OutcomeIgnored, "unsupported command")
		return
	}

	value, ok := message.IntField(env.Attribute, d.controlField)
	if !ok {
		err := fmt.Errorf("%w: %s", ErrNoControlField, d.controlField)
		d.logger.Warn("dropping setAttribute", "cmd_id", env.CmdID, "error", err)
		d.record(entry, journal.OutcomeDropped, err.Error())
		return
	}

	outcome := journal.OutcomeSuccess
	applied := int(value)
	if d.actuator.SetColor(applied) != 0 {
		outcome = journal.OutcomeFail
		applied = d.actuator.ColorStatus()
	}

	code := d.reporter.ReportAttributeUpdate(message.NewCollection(message.Int(d.controlField, applied)))
	d.logger.Info("setAttribute handled", "cmd_id", env.CmdID, "requested", value, "applied", applied, "publish", code)
	d.record(entry, outcome, fmt.Sprintf("%s=%d", d.controlField, applied))
}

func (d *Dispatcher) record(e journal.Entry, outcome journal.Outcome, detail string) {
	if d.journal == nil {
		return
	}
	e.Outcome = outcome
	e.Detail = detail
	if !d.journal.Submit(e) {
		d.logger.Warn("journal queue full, entry dropped", "topic", e.Topic, "outcome", outcome)
	}
}

func newResponse(env message.CommandEnvelope) message.RPCResponse {
	return message.RPCResponse{
		Cmd:     env.Cmd,
		CmdID:   responseCmdID,
		JSONRPC: env.RPC.JSONRPC,
		ID:      env.RPC.ID,
	}
}

func successStatus(env message.CommandEnvelope) message.RPCResponse {
	resp := newResponse(env)
	resp.Success = true
	resp.Body = message.NewCollection(message.String("status", "SUCCESS"))
	return resp
}

func rpcMethod(env message.CommandEnvelope) string {
	if env.RPC == nil {
		return ""
	}
	return env.RPC.Method
}

func rpcID(env message.CommandEnvelope) int64 {
	if env.RPC == nil {
		return 0
	}
	return env.RPC.ID
}
