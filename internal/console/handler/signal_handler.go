package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/piata-ai/signalcore/internal/bus"
	"github.com/piata-ai/signalcore/internal/console/service"
	"github.com/piata-ai/signalcore/internal/domain"
	"go.uber.org/zap"
)

type SignalHandler struct {
	service *service.SignalService
	logger  *zap.Logger
}

func NewSignalHandler(s *service.SignalService, logger *zap.Logger) *SignalHandler {
	return &SignalHandler{service: s, logger: logger.Named("signal-handler")}
}

type logSignalRequest struct {
	SignalType string                `json:"signal_type"`
	FromAgent  string                `json:"from_agent"`
	ToAgent    string                `json:"to_agent,omitempty"`
	Content    json.RawMessage       `json:"content,omitempty"`
	Priority   domain.SignalPriority `json:"priority,omitempty"`
	Metadata   json.RawMessage       `json:"metadata,omitempty"`
}

// Log — POST /v1/signals
func (h *SignalHandler) Log(w http.ResponseWriter, r *http.Request) {
	var req logSignalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SignalType == "" || req.FromAgent == "" {
		writeError(w, http.StatusBadRequest, "signal_type and from_agent are required")
		return
	}

	payload, err := domain.UnmarshalPayload(req.Content)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id, err := h.service.LogSignal(r.Context(), &domain.Signal{
		SignalType: req.SignalType,
		FromAgent:  req.FromAgent,
		ToAgent:    req.ToAgent,
		Content:    payload,
		Priority:   req.Priority,
		Metadata:   req.Metadata,
	})
	if err != nil {
		h.logger.Error("log signal failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to log signal")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

// Get — GET /v1/signals/{id}
func (h *SignalHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid signal id")
		return
	}

	signal, err := h.service.GetSignal(r.Context(), id)
	if err != nil {
		h.logger.Error("get signal failed", zap.Int64("id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to get signal")
		return
	}
	if signal == nil {
		writeError(w, http.StatusNotFound, "signal not found")
		return
	}
	writeJSON(w, http.StatusOK, signal)
}

// List — GET /v1/signals?types=..&agents=..&statuses=..&priorities=..&from=..&to=..&limit=..
func (h *SignalHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := domain.SignalFilter{
		SignalTypes: splitParam(q.Get("types")),
		Agents:      splitParam(q.Get("agents")),
	}
	for _, p := range splitParam(q.Get("priorities")) {
		filter.Priorities = append(filter.Priorities, domain.SignalPriority(p))
	}
	for _, s := range splitParam(q.Get("statuses")) {
		filter.Statuses = append(filter.Statuses, domain.SignalStatus(s))
	}
	if t, ok := parseTimeParam(q.Get("from")); ok {
		filter.From = &t
	}
	if t, ok := parseTimeParam(q.Get("to")); ok {
		filter.To = &t
	}

	limit, _ := strconv.Atoi(q.Get("limit"))

	signals, err := h.service.GetSignals(r.Context(), filter, limit)
	if err != nil {
		h.logger.Error("list signals failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list signals")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"signals": signals,
		"count":   len(signals),
	})
}

type updateStatusRequest struct {
	Status domain.SignalStatus `json:"status"`
	Error  string              `json:"error_message,omitempty"`
}

// UpdateStatus — POST /v1/signals/{id}/status
func (h *SignalHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid signal id")
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.service.UpdateStatus(r.Context(), id, req.Status, req.Error); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type broadcastRequest struct {
	SignalType string                `json:"signal_type"`
	FromAgent  string                `json:"from_agent"`
	Content    json.RawMessage       `json:"content,omitempty"`
	Priority   domain.SignalPriority `json:"priority,omitempty"`
}

// Broadcast — POST /v1/broadcast
func (h *SignalHandler) Broadcast(w http.ResponseWriter, r *http.Request) {
	var req broadcastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SignalType == "" || req.FromAgent == "" {
		writeError(w, http.StatusBadRequest, "signal_type and from_agent are required")
		return
	}

	payload, err := domain.UnmarshalPayload(req.Content)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id, err := h.service.Broadcast(r.Context(), req.SignalType, payload, req.FromAgent, req.Priority)
	if err != nil {
		h.logger.Error("broadcast failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to broadcast")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

type callRequest struct {
	ToAgent   string                `json:"to_agent"`
	FromAgent string                `json:"from_agent"`
	Task      domain.TaskPayload    `json:"task"`
	Priority  domain.SignalPriority `json:"priority,omitempty"`
}

// Call — POST /v1/calls
func (h *SignalHandler) Call(w http.ResponseWriter, r *http.Request) {
	var req callRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ToAgent == "" || req.FromAgent == "" {
		writeError(w, http.StatusBadRequest, "to_agent and from_agent are required")
		return
	}

	id, err := h.service.CallAgent(r.Context(), req.ToAgent, req.Task, req.FromAgent, req.Priority)
	if err != nil {
		h.logger.Error("call agent failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to call agent")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"signal_id": id})
}

type completeCallRequest struct {
	Outcome domain.InteractionOutcome `json:"outcome"`
	Result  json.RawMessage           `json:"result,omitempty"`
	Error   string                    `json:"error_message,omitempty"`
}

// CompleteCall — POST /v1/calls/{id}/complete
func (h *SignalHandler) CompleteCall(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid signal id")
		return
	}

	var req completeCallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.service.CompleteCall(r.Context(), id, req.Outcome, req.Result, req.Error); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Heartbeat — POST /v1/agents/heartbeat (upsert реестра)
func (h *SignalHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	var rec domain.AgentRecord
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if rec.AgentName == "" {
		writeError(w, http.StatusBadRequest, "agent_name is required")
		return
	}
	if rec.Status == "" {
		rec.Status = "active"
	}

	if err := h.service.UpdateAgentRegistry(r.Context(), &rec); err != nil {
		h.logger.Error("registry update failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to update registry")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListAgents — GET /v1/agents
func (h *SignalHandler) ListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := h.service.GetRegisteredAgents(r.Context())
	if err != nil {
		h.logger.Error("list agents failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list agents")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"agents": agents})
}

// GetAgent — GET /v1/agents/{name}
func (h *SignalHandler) GetAgent(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	agent, err := h.service.GetAgentHealth(r.Context(), name)
	if err != nil {
		h.logger.Error("get agent failed", zap.String("agent", name), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to get agent")
		return
	}
	if agent == nil {
		writeError(w, http.StatusNotFound, "agent not registered")
		return
	}
	writeJSON(w, http.StatusOK, agent)
}

// AgentPerformance — GET /v1/agents/{name}/performance?window=5m&limit=50
func (h *SignalHandler) AgentPerformance(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	window := r.URL.Query().Get("window")
	if window == "" {
		window = "5m"
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	samples, err := h.service.GetAgentPerformance(r.Context(), name, window, limit)
	if err != nil {
		h.logger.Error("agent performance failed", zap.String("agent", name), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to get agent performance")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"samples": samples})
}

// Stream — GET /v1/signals/stream?agent=..
// SSE-поток уведомлений о новых сигналах. Пустой agent дает общий поток.
func (h *SignalHandler) Stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	agent := r.URL.Query().Get("agent")

	var mu sync.Mutex
	err := h.service.SubscribeSignals(r.Context(), agent, func(n bus.Notification) {
		body, merr := json.Marshal(map[string]interface{}{
			"signal_id":   n.SignalID,
			"signal_type": n.SignalType,
			"to_agent":    n.ToAgent,
		})
		if merr != nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(w, "event: signal\ndata: %s\n\n", body)
		flusher.Flush()
	})
	if err != nil {
		h.logger.Warn("signal stream unavailable", zap.Error(err))
	}
}

type requeueStaleRequest struct {
	OlderThan string `json:"older_than"` // напр. "10m"
}

// RequeueStale — POST /v1/maintenance/requeue-stale
func (h *SignalHandler) RequeueStale(w http.ResponseWriter, r *http.Request) {
	var req requeueStaleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	olderThan, err := time.ParseDuration(req.OlderThan)
	if err != nil || olderThan <= 0 {
		writeError(w, http.StatusBadRequest, "older_than must be a positive duration")
		return
	}

	n, err := h.service.RequeueStale(r.Context(), olderThan)
	if err != nil {
		h.logger.Error("requeue stale failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to requeue stale signals")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"requeued": n})
}

func splitParam(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseTimeParam(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
