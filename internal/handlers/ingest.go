package handlers

import (
	"errors"
	"net/http"

	"github.com/telhawk-systems/centrallog/common/httputil"
)

// Ingest handles POST /api/v1/ingest.
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	var raw map[string]any
	if err := httputil.DecodeJSON(r, &raw, h.maxBody); err != nil {
		writeBadRequest(w, err)
		return
	}
	if raw == nil {
		writeBadRequest(w, errors.New("event must be a JSON object"))
		return
	}

	ev, err := h.ingest.NormalizeAndPersist(r.Context(), raw)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, ev)
}

// IngestBatch handles POST /api/v1/ingest/batch. The body is a JSON array
// of events or an object with an "events" array. Responds 201 when every
// item was stored and 207 otherwise.
func (h *Handler) IngestBatch(w http.ResponseWriter, r *http.Request) {
	var body any
	if err := httputil.DecodeJSON(r, &body, h.maxBody); err != nil {
		writeBadRequest(w, err)
		return
	}
	items, err := batchItems(body)
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	res, err := h.ingest.IngestBatch(r.Context(), items)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	status := http.StatusCreated
	if res.Failed > 0 {
		status = http.StatusMultiStatus
	}
	httputil.WriteJSON(w, status, res)
}

// Normalize handles POST /api/v1/normalize: a dry run that returns the
// Central Log record without storing it.
func (h *Handler) Normalize(w http.ResponseWriter, r *http.Request) {
	var raw map[string]any
	if err := httputil.DecodeJSON(r, &raw, h.maxBody); err != nil {
		writeBadRequest(w, err)
		return
	}
	if raw == nil {
		writeBadRequest(w, errors.New("event must be a JSON object"))
		return
	}

	rec, err := h.ingest.Route(r.Context(), raw)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rec)
}

func batchItems(body any) ([]map[string]any, error) {
	var list []any
	switch v := body.(type) {
	case []any:
		list = v
	case map[string]any:
		events, ok := v["events"].([]any)
		if !ok {
			return nil, errors.New(`batch must be a JSON array or an object with an "events" array`)
		}
		list = events
	default:
		return nil, errors.New(`batch must be a JSON array or an object with an "events" array`)
	}

	items := make([]map[string]any, len(list))
	for i, item := range list {
		// Non-object items are passed through as empty events so the
		// batch reports them as validation failures at their index.
		m, _ := item.(map[string]any)
		if m == nil {
			m = map[string]any{}
		}
		items[i] = m
	}
	return items, nil
}
