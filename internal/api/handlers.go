package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/nerrad567/thingplug-agent/internal/agent"
	"github.com/nerrad567/thingplug-agent/internal/message"
	"github.com/nerrad567/thingplug-agent/internal/status"
)

// healthTimeout bounds all component checks of one health request.
const healthTimeout = 5 * time.Second

// handleHealth checks the MQTT session and every registered component.
// It answers 200 when all are healthy and 503 otherwise.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	components := map[string]string{"mqtt": healthText(s.agent.HealthCheck(ctx))}
	healthy := components["mqtt"] == "ok"

	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		text := healthText(s.checks[name].HealthCheck(ctx))
		components[name] = text
		healthy = healthy && text == "ok"
	}

	code, overall := http.StatusOK, "ok"
	if !healthy {
		code, overall = http.StatusServiceUnavailable, "degraded"
	}
	writeJSON(w, code, map[string]any{
		"status":     overall,
		"version":    s.version,
		"components": components,
	})
}

func healthText(err error) string {
	if err != nil {
		return err.Error()
	}
	return "ok"
}

type stateResponse struct {
	Connection     string  `json:"connection"`
	Step           string  `json:"step"`
	LastError      int     `json:"last_error"`
	LastErrorName  string  `json:"last_error_name"`
	JournalDropped *uint64 `json:"journal_dropped,omitempty"`
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	st := s.agent.State()
	resp := stateResponse{
		Connection:    st.Conn.String(),
		Step:          st.Step.String(),
		LastError:     int(st.LastError),
		LastErrorName: st.LastError.String(),
	}
	if s.dropped != nil {
		n := s.dropped.Dropped()
		resp.JournalDropped = &n
	}
	writeJSON(w, http.StatusOK, resp)
}

type journalEntryResponse struct {
	ID         string    `json:"id"`
	ReceivedAt time.Time `json:"received_at"`
	Topic      string    `json:"topic"`
	Cmd        string    `json:"cmd"`
	CmdID      int64     `json:"cmd_id"`
	Method     string    `json:"method,omitempty"`
	RPCID      int64     `json:"rpc_id,omitempty"`
	Outcome    string    `json:"outcome"`
	Detail     string    `json:"detail,omitempty"`
}

// handleListJournal returns the newest journal entries first.
//
// Query parameters:
//   - limit: max results (default 50, max 500)
func (s *Server) handleListJournal(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeUnavailable(w, "command journal disabled")
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeBadRequest(w, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	entries, err := s.journal.List(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to list journal", "error", err)
		writeInternalError(w, "failed to list journal")
		return
	}

	out := make([]journalEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, journalEntryResponse{
			ID:         e.ID,
			ReceivedAt: e.ReceivedAt,
			Topic:      e.Topic,
			Cmd:        e.Cmd,
			CmdID:      e.CmdID,
			Method:     e.Method,
			RPCID:      e.RPCID,
			Outcome:    string(e.Outcome),
			Detail:     e.Detail,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": out, "count": len(out)})
}

type subscribeRequest struct {
	Cmd          string   `json:"cmd"`
	CmdID        int64    `json:"cmd_id"`
	ServiceName  string   `json:"service_name"`
	DeviceName   string   `json:"device_name"`
	SensorNodeID string   `json:"sensor_node_id"`
	IsTargetAll  bool     `json:"is_target_all"`
	Attribute    []string `json:"attribute"`
	Telemetry    []string `json:"telemetry"`
}

// handleSubscribe publishes a subscribe or unsubscribe request. Service
// and device default to this device; cmd defaults to "subscribe".
func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Cmd == "" {
		req.Cmd = message.CmdSubscribe
	}
	if req.Cmd != message.CmdSubscribe && req.Cmd != message.CmdUnsubscribe {
		writeBadRequest(w, "cmd must be subscribe or unsubscribe")
		return
	}

	code, err := s.agent.Subscribe(r.Context(), message.SubscribeRequest{
		Cmd:          req.Cmd,
		CmdID:        req.CmdID,
		ServiceName:  req.ServiceName,
		DeviceName:   req.DeviceName,
		SensorNodeID: req.SensorNodeID,
		IsTargetAll:  req.IsTargetAll,
		Attributes:   req.Attribute,
		Telemetry:    req.Telemetry,
	})
	s.writeResult(w, code, err)
}

type rawReportRequest struct {
	Kind    string `json:"kind"`
	Format  string `json:"format"`
	Payload string `json:"payload"`
}

// handleReportRaw publishes a caller-encoded payload verbatim, e.g. an
// offset-format telemetry report.
func (s *Server) handleReportRaw(w http.ResponseWriter, r *http.Request) {
	var req rawReportRequest
	if !decodeBody(w, r, &req) {
		return
	}
	kind, err := message.ParseKind(req.Kind)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	format, err := message.ParseFormat(req.Format)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	code, err := s.agent.ReportRaw(r.Context(), kind, format, []byte(req.Payload))
	s.writeResult(w, code, err)
}

type chunkRequest struct {
	Data string `json:"data"`
}

func (s *Server) handleAppendTelemetry(w http.ResponseWriter, r *http.Request) {
	var req chunkRequest
	if !decodeBody(w, r, &req) {
		return
	}
	code, err := s.agent.AppendTelemetry(r.Context(), []byte(req.Data))
	s.writeResult(w, code, err)
}

func (s *Server) handleFlushTelemetry(w http.ResponseWriter, r *http.Request) {
	code, err := s.agent.ReportAppendedTelemetry(r.Context())
	s.writeResult(w, code, err)
}

type resultResponse struct {
	Code   int    `json:"code"`
	Status string `json:"status"`
}

// writeResult maps an agent status to an HTTP status. The body always
// carries the numeric status code.
func (s *Server) writeResult(w http.ResponseWriter, code status.Code, err error) {
	if err != nil {
		if errors.Is(err, agent.ErrStopped) {
			writeUnavailable(w, "agent stopped")
			return
		}
		writeUnavailable(w, err.Error())
		return
	}

	httpStatus := http.StatusOK
	switch code {
	case status.Success:
	case status.InvalidParameter, status.NullParameter, status.NotSupported:
		httpStatus = http.StatusUnprocessableEntity
	case status.Disconnected:
		httpStatus = http.StatusServiceUnavailable
	default:
		httpStatus = http.StatusBadGateway
	}
	writeJSON(w, httpStatus, resultResponse{Code: int(code), Status: code.String()})
}

// decodeBody decodes a JSON request body into v, writing a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeBadRequest(w, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}
