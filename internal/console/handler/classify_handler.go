package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/piata-ai/signalcore/internal/classifier"
	"github.com/piata-ai/signalcore/internal/console/service"
	"github.com/piata-ai/signalcore/internal/domain"
	"go.uber.org/zap"
)

type ClassifyHandler struct {
	classifier *classifier.Classifier
	signals    *service.SignalService
	logger     *zap.Logger
}

func NewClassifyHandler(c *classifier.Classifier, signals *service.SignalService, logger *zap.Logger) *ClassifyHandler {
	return &ClassifyHandler{classifier: c, signals: signals, logger: logger.Named("classify-handler")}
}

type classifyRequest struct {
	SignalID int64 `json:"signal_id"`
}

// Classify — POST /v1/classify: прогоняет сохраненный сигнал через правила
// и ставит его в очередь (если не отфильтрован).
func (h *ClassifyHandler) Classify(w http.ResponseWriter, r *http.Request) {
	var req classifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	signal, err := h.signals.GetSignal(r.Context(), req.SignalID)
	if err != nil {
		h.logger.Error("classify fetch failed", zap.Int64("id", req.SignalID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to fetch signal")
		return
	}
	if signal == nil {
		writeError(w, http.StatusNotFound, "signal not found")
		return
	}

	result := h.classifier.ProcessSignal(signal)
	writeJSON(w, http.StatusOK, result)
}

// NextSignal — POST /v1/queue/next: снимает верхний сигнал очереди.
func (h *ClassifyHandler) NextSignal(w http.ResponseWriter, r *http.Request) {
	signal, score := h.classifier.NextSignal()
	if signal == nil {
		writeError(w, http.StatusNotFound, "queue is empty")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"signal": signal,
		"score":  score,
	})
}

// QueueStats — GET /v1/queue/stats
func (h *ClassifyHandler) QueueStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.classifier.QueueStats())
}

// ClearQueue — DELETE /v1/queue
func (h *ClassifyHandler) ClearQueue(w http.ResponseWriter, r *http.Request) {
	h.classifier.ClearQueue()
	w.WriteHeader(http.StatusNoContent)
}

// FilterStats — GET /v1/classifier/stats
func (h *ClassifyHandler) FilterStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.classifier.Stats())
}

// ListRules — GET /v1/rules
func (h *ClassifyHandler) ListRules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"rules": h.classifier.Rules()})
}

// CreateRule — POST /v1/rules
func (h *ClassifyHandler) CreateRule(w http.ResponseWriter, r *http.Request) {
	var rule domain.FilterRule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if rule.ID == "" || rule.Name == "" {
		writeError(w, http.StatusBadRequest, "id and name are required")
		return
	}

	h.classifier.AddRule(&rule)
	writeJSON(w, http.StatusCreated, rule)
}

// UpdateRule — PUT /v1/rules/{id}: полная замена тела правила.
func (h *ClassifyHandler) UpdateRule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var rule domain.FilterRule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ok := h.classifier.UpdateRule(id, func(existing *domain.FilterRule) {
		rule.ID = id
		*existing = rule
	})
	if !ok {
		writeError(w, http.StatusNotFound, "rule not found")
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

// DeleteRule — DELETE /v1/rules/{id}
func (h *ClassifyHandler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	if !h.classifier.RemoveRule(chi.URLParam(r, "id")) {
		writeError(w, http.StatusNotFound, "rule not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListEvents — GET /v1/events?status=active
func (h *ClassifyHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	status := domain.EventStatus(r.URL.Query().Get("status"))
	events := h.classifier.CriticalEvents(status)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"count":  len(events),
	})
}

type eventStatusRequest struct {
	Status domain.EventStatus `json:"status"`
}

// UpdateEventStatus — POST /v1/events/{id}/status
func (h *ClassifyHandler) UpdateEventStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req eventStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.classifier.UpdateEventStatus(id, req.Status); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
