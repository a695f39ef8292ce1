package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/telhawk-systems/centrallog/common/httputil"
	"github.com/telhawk-systems/centrallog/internal/dashboard"
)

// Dashboard handles GET /api/v1/dashboard?tenantId&range.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	tenantID, err := httputil.ParseOptionalInt64(r.URL.Query().Get("tenantId"))
	if err != nil {
		writeBadRequest(w, fmt.Errorf("tenantId: %w", err))
		return
	}

	sum, err := h.dashboard.Summary(r.Context(), tenantID, r.URL.Query().Get("range"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sum)
}

// UserActivity handles GET /api/v1/users/{user}/activity?tenantId&range.
func (h *Handler) UserActivity(w http.ResponseWriter, r *http.Request) {
	tenantID, err := httputil.ParseOptionalInt64(r.URL.Query().Get("tenantId"))
	if err != nil {
		writeBadRequest(w, fmt.Errorf("tenantId: %w", err))
		return
	}

	act, err := h.dashboard.UserActivity(r.Context(), tenantID, chi.URLParam(r, "user"), r.URL.Query().Get("range"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, act)
}

// SearchLogs handles GET /api/v1/logs?tenantId&user&from&to&q&page&limit.
func (h *Handler) SearchLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tenantID, err := httputil.ParseOptionalInt64(q.Get("tenantId"))
	if err != nil {
		writeBadRequest(w, fmt.Errorf("tenantId: %w", err))
		return
	}
	from, err := parseTime(q.Get("from"))
	if err != nil {
		writeBadRequest(w, fmt.Errorf("from: %w", err))
		return
	}
	to, err := parseTime(q.Get("to"))
	if err != nil {
		writeBadRequest(w, fmt.Errorf("to: %w", err))
		return
	}
	page := httputil.ParsePagination(r, dashboard.DefaultSearchLimit, dashboard.MaxSearchLimit)

	res, err := h.dashboard.Search(r.Context(), dashboard.SearchQuery{
		TenantID: tenantID,
		User:     q.Get("user"),
		From:     from,
		To:       to,
		Q:        q.Get("q"),
		Page:     page.Page,
		Limit:    page.Limit,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

// parseTime accepts RFC 3339 timestamps. Empty input is the zero time.
func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q, expected RFC 3339", s)
	}
	return t, nil
}
