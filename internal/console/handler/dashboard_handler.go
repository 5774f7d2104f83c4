package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/piata-ai/signalcore/internal/dashboard"
	"github.com/piata-ai/signalcore/internal/infra/auth"
	"go.uber.org/zap"
)

type DashboardHandler struct {
	dash   *dashboard.Dashboard
	logger *zap.Logger
}

func NewDashboardHandler(d *dashboard.Dashboard, logger *zap.Logger) *DashboardHandler {
	return &DashboardHandler{dash: d, logger: logger.Named("dashboard-handler")}
}

// GetData — GET /api/v1/dashboard
func (h *DashboardHandler) GetData(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.dash.Data())
}

// AgentHistory — GET /api/v1/dashboard/agents/{name}/history?range=1h
func (h *DashboardHandler) AgentHistory(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	since := time.Hour
	switch r.URL.Query().Get("range") {
	case "", "1h":
	case "6h":
		since = 6 * time.Hour
	case "24h":
		since = 24 * time.Hour
	case "7d":
		since = 7 * 24 * time.Hour
	default:
		writeError(w, http.StatusBadRequest, "range must be one of 1h, 6h, 24h, 7d")
		return
	}

	history := h.dash.AgentHistory(name, since)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"agent":   name,
		"history": history,
	})
}

// AckAlert — POST /v1/alerts/{id}/ack
func (h *DashboardHandler) AckAlert(w http.ResponseWriter, r *http.Request) {
	alertID := chi.URLParam(r, "id")
	user := auth.UserFromContext(r.Context())

	if !h.dash.AcknowledgeAlert(alertID, user) {
		writeError(w, http.StatusNotFound, "active alert not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ResolveAlert — POST /v1/alerts/{id}/resolve
func (h *DashboardHandler) ResolveAlert(w http.ResponseWriter, r *http.Request) {
	alertID := chi.URLParam(r, "id")
	user := auth.UserFromContext(r.Context())

	if !h.dash.ResolveAlert(alertID, user) {
		writeError(w, http.StatusNotFound, "active alert not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
