// Package handlers exposes ingestion, alerts and the read-side views over
// HTTP.
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/telhawk-systems/centrallog/common/httputil"
	"github.com/telhawk-systems/centrallog/common/logging"
	"github.com/telhawk-systems/centrallog/internal/alerts"
	"github.com/telhawk-systems/centrallog/internal/dashboard"
	"github.com/telhawk-systems/centrallog/internal/ingest"
	"github.com/telhawk-systems/centrallog/internal/models"
	"github.com/telhawk-systems/centrallog/internal/normalizer"
	"github.com/telhawk-systems/centrallog/internal/storage"
	"github.com/telhawk-systems/centrallog/internal/tenant"
	"github.com/telhawk-systems/centrallog/internal/timerange"
)

type Ingester interface {
	NormalizeAndPersist(ctx context.Context, raw map[string]any) (*models.LogEvent, error)
	IngestBatch(ctx context.Context, items []map[string]any) (*ingest.BatchResult, error)
	Route(ctx context.Context, raw map[string]any) (*models.CentralLog, error)
}

type AlertService interface {
	List(ctx context.Context, f alerts.Filter) ([]*models.Alert, error)
	UpdateStatus(ctx context.Context, id int64, status string) (*models.Alert, error)
}

type TenantLister interface {
	List(ctx context.Context) ([]*models.Tenant, error)
}

type Dashboard interface {
	Summary(ctx context.Context, tenantID *int64, rangeToken string) (*dashboard.Summary, error)
	UserActivity(ctx context.Context, tenantID *int64, user, rangeToken string) (*dashboard.UserActivity, error)
	Search(ctx context.Context, q dashboard.SearchQuery) (*dashboard.SearchResult, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler provides the HTTP handlers. Construct it with New.
type Handler struct {
	ingest    Ingester
	alerts    AlertService
	tenants   TenantLister
	dashboard Dashboard
	health    Pinger
	maxBody   int64
	logger    *logging.Logger
}

type Option func(*Handler)

// WithMaxBodyBytes caps ingest request bodies.
func WithMaxBodyBytes(n int64) Option {
	return func(h *Handler) { h.maxBody = n }
}

func WithLogger(l *logging.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

func New(ing Ingester, al AlertService, tenants TenantLister, dash Dashboard, health Pinger, opts ...Option) *Handler {
	h := &Handler{
		ingest:    ing,
		alerts:    al,
		tenants:   tenants,
		dashboard: dash,
		health:    health,
		maxBody:   httputil.DefaultMaxBodyBytes,
		logger:    logging.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Healthz handles GET /healthz.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health.Ping(r.Context()); err != nil {
			h.logger.WarnContext(r.Context(), "health check failed", logging.Error(err))
			httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ListTenants handles GET /api/v1/tenants.
func (h *Handler) ListTenants(w http.ResponseWriter, r *http.Request) {
	tenants, err := h.tenants.List(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if tenants == nil {
		tenants = []*models.Tenant{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"tenants": tenants})
}

// writeServiceError maps domain errors onto status codes.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		ve *normalizer.ValidationError
		ue *normalizer.UnsupportedSourceError
		ne *normalizer.NormalizationError
		pe *storage.PersistenceError
	)
	switch {
	case errors.As(err, &ve):
		httputil.WriteErrorCode(w, http.StatusBadRequest, ingest.KindValidation, err.Error(), ve.Missing)
	case errors.As(err, &ue):
		httputil.WriteErrorCode(w, http.StatusBadRequest, ingest.KindUnsupportedSource, err.Error(), ue.Supported)
	case errors.As(err, &ne), errors.Is(err, tenant.ErrInvalidInput):
		httputil.WriteErrorCode(w, http.StatusUnprocessableEntity, ingest.KindNormalization, err.Error(), nil)
	case errors.Is(err, ingest.ErrEmptyBatch):
		httputil.WriteErrorCode(w, http.StatusBadRequest, "empty_batch", err.Error(), nil)
	case errors.Is(err, ingest.ErrBatchTooLarge):
		httputil.WriteErrorCode(w, http.StatusRequestEntityTooLarge, "batch_too_large", err.Error(), nil)
	case errors.Is(err, alerts.ErrAlertNotFound):
		httputil.WriteErrorCode(w, http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, alerts.ErrInvalidStatus):
		httputil.WriteErrorCode(w, http.StatusBadRequest, "invalid_status", err.Error(), nil)
	case errors.Is(err, alerts.ErrAlertResolved):
		httputil.WriteErrorCode(w, http.StatusConflict, "alert_resolved", err.Error(), nil)
	case errors.Is(err, timerange.ErrInvalidRange):
		httputil.WriteErrorCode(w, http.StatusBadRequest, "invalid_range", err.Error(), nil)
	case errors.As(err, &pe):
		h.logger.ErrorContext(r.Context(), "persistence failure", logging.Error(err))
		httputil.WriteErrorCode(w, http.StatusInternalServerError, ingest.KindPersistence, "failed to persist data", nil)
	default:
		h.logger.ErrorContext(r.Context(), "request failed", logging.Error(err))
		httputil.WriteErrorCode(w, http.StatusInternalServerError, ingest.KindInternal, "internal error", nil)
	}
}

func writeBadRequest(w http.ResponseWriter, err error) {
	httputil.WriteErrorCode(w, http.StatusBadRequest, "invalid_request", err.Error(), nil)
}
