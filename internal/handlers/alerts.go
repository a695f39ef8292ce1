package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/telhawk-systems/centrallog/common/httputil"
	"github.com/telhawk-systems/centrallog/internal/alerts"
	"github.com/telhawk-systems/centrallog/internal/models"
)

// ListAlerts handles GET /api/v1/alerts?tenantId&status&timeRange&user&limit.
func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tenantID, err := httputil.ParseOptionalInt64(q.Get("tenantId"))
	if err != nil {
		writeBadRequest(w, fmt.Errorf("tenantId: %w", err))
		return
	}

	list, err := h.alerts.List(r.Context(), alerts.Filter{
		TenantID:  tenantID,
		Status:    q.Get("status"),
		TimeRange: q.Get("timeRange"),
		User:      q.Get("user"),
		Limit:     max(httputil.ParseIntParam(q.Get("limit"), 0), 0),
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if list == nil {
		list = []*models.Alert{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"alerts": list, "total": len(list)})
}

type updateAlertRequest struct {
	Status string `json:"status"`
}

// UpdateAlert handles PATCH /api/v1/alerts/{id}.
func (h *Handler) UpdateAlert(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeBadRequest(w, fmt.Errorf("invalid alert id %q", chi.URLParam(r, "id")))
		return
	}

	var req updateAlertRequest
	if err := httputil.DecodeJSON(r, &req, h.maxBody); err != nil {
		writeBadRequest(w, err)
		return
	}
	if req.Status == "" {
		writeBadRequest(w, errors.New("status is required"))
		return
	}

	alert, err := h.alerts.UpdateStatus(r.Context(), id, req.Status)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, alert)
}
