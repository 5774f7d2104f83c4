package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/piata-ai/signalcore/internal/domain"
	"github.com/piata-ai/signalcore/internal/replay"
	"go.uber.org/zap"
)

type ReplayHandler struct {
	engine *replay.Engine
	logger *zap.Logger
}

func NewReplayHandler(e *replay.Engine, logger *zap.Logger) *ReplayHandler {
	return &ReplayHandler{engine: e, logger: logger.Named("replay-handler")}
}

type createSessionRequest struct {
	Name     string              `json:"name"`
	Filter   domain.SignalFilter `json:"filter"`
	Settings *replaySettingsDTO  `json:"settings,omitempty"`
}

// replaySettingsDTO — настройки с указателями: отличаем "не задано" от false.
type replaySettingsDTO struct {
	Speed             domain.ReplaySpeed `json:"speed,omitempty"`
	SimulateResponses *bool              `json:"simulate_responses,omitempty"`
	IncludeBreaks     *bool              `json:"include_breaks,omitempty"`
	BreakDurationMs   int64              `json:"break_duration_ms,omitempty"`
	AutoPauseOnErrors *bool              `json:"auto_pause_on_errors,omitempty"`
	OutputLogs        *bool              `json:"output_logs,omitempty"`
}

func (dto *replaySettingsDTO) merge(base domain.ReplaySettings) domain.ReplaySettings {
	if dto == nil {
		return base
	}
	if dto.Speed != "" {
		base.Speed = dto.Speed
	}
	if dto.SimulateResponses != nil {
		base.SimulateResponses = *dto.SimulateResponses
	}
	if dto.IncludeBreaks != nil {
		base.IncludeBreaks = *dto.IncludeBreaks
	}
	if dto.BreakDurationMs > 0 {
		base.BreakDuration = time.Duration(dto.BreakDurationMs) * time.Millisecond
	}
	if dto.AutoPauseOnErrors != nil {
		base.AutoPauseOnErrors = *dto.AutoPauseOnErrors
	}
	if dto.OutputLogs != nil {
		base.OutputLogs = *dto.OutputLogs
	}
	return base
}

// Create — POST /v1/replay
func (h *ReplayHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	settings := req.Settings.merge(replay.DefaultSettings())

	sessionID, err := h.engine.CreateSession(r.Context(), req.Name, req.Filter, settings)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"session_id": sessionID})
}

// List — GET /v1/replay
func (h *ReplayHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": h.engine.ListSessions()})
}

// Get — GET /v1/replay/{id}
func (h *ReplayHandler) Get(w http.ResponseWriter, r *http.Request) {
	session, err := h.engine.GetSession(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// Start — POST /v1/replay/{id}/start
func (h *ReplayHandler) Start(w http.ResponseWriter, r *http.Request) {
	// Фоновая горутина переживает HTTP-запрос, поэтому контекст запроса
	// для нее не годится
	if err := h.engine.StartReplay(context.Background(), chi.URLParam(r, "id")); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// Pause — POST /v1/replay/{id}/pause
func (h *ReplayHandler) Pause(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Pause(chi.URLParam(r, "id")); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Resume — POST /v1/replay/{id}/resume
func (h *ReplayHandler) Resume(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Resume(chi.URLParam(r, "id")); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Stop — POST /v1/replay/{id}/stop
func (h *ReplayHandler) Stop(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Stop(chi.URLParam(r, "id")); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type setSpeedRequest struct {
	Speed domain.ReplaySpeed `json:"speed"`
}

// SetSpeed — POST /v1/replay/{id}/speed
func (h *ReplayHandler) SetSpeed(w http.ResponseWriter, r *http.Request) {
	var req setSpeedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.engine.SetSpeed(chi.URLParam(r, "id"), req.Speed); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Report — GET /v1/replay/{id}/report
func (h *ReplayHandler) Report(w http.ResponseWriter, r *http.Request) {
	report, err := h.engine.GenerateReport(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Write([]byte(report))
}

// Export — GET /v1/replay/{id}/export
func (h *ReplayHandler) Export(w http.ResponseWriter, r *http.Request) {
	export, err := h.engine.Export(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, export)
}
