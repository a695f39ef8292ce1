// Package alerts is the read/write surface over stored alerts used by the
// HTTP API and the CLI.
package alerts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/telhawk-systems/centrallog/common/logging"
	"github.com/telhawk-systems/centrallog/internal/models"
	"github.com/telhawk-systems/centrallog/internal/notify"
	"github.com/telhawk-systems/centrallog/internal/storage"
	"github.com/telhawk-systems/centrallog/internal/timerange"
)

var (
	ErrAlertNotFound = errors.New("alert not found")
	ErrInvalidStatus = errors.New("invalid alert status")
	ErrAlertResolved = errors.New("alert is already resolved")
)

// Filter narrows List. Status "all" or "" matches every status. TimeRange
// takes the tokens understood by timerange.Parse.
type Filter struct {
	TenantID  *int64
	Status    string
	TimeRange string
	User      string
	Limit     int
}

type Service struct {
	store    storage.AlertStore
	notifier *notify.Notifier
	now      func() time.Time
	logger   *slog.Logger
}

func NewService(store storage.AlertStore, notifier *notify.Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, notifier: notifier, now: time.Now, logger: logger}
}

// List returns matching alerts, newest first.
func (s *Service) List(ctx context.Context, f Filter) ([]*models.Alert, error) {
	af := storage.AlertFilter{TenantID: f.TenantID, User: f.User, Limit: f.Limit}

	if status := strings.ToUpper(strings.TrimSpace(f.Status)); status != "" && status != "ALL" {
		st, err := models.ParseAlertStatus(status)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidStatus, f.Status)
		}
		af.Status = st
	}

	r, err := timerange.Parse(f.TimeRange)
	if err != nil {
		return nil, err
	}
	af.Since = r.Since(s.now().UTC())

	alerts, err := s.store.ListAlerts(ctx, af)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	return alerts, nil
}

// UpdateStatus moves an alert to status. Alerts only move forward, and
// RESOLVED alerts cannot change.
func (s *Service) UpdateStatus(ctx context.Context, id int64, status string) (*models.Alert, error) {
	st, err := models.ParseAlertStatus(strings.ToUpper(strings.TrimSpace(status)))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidStatus, status)
	}

	alert, err := s.store.UpdateAlertStatus(ctx, id, st, s.now().UTC())
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return nil, ErrAlertNotFound
	case errors.Is(err, storage.ErrAlertResolved):
		return nil, ErrAlertResolved
	case errors.Is(err, storage.ErrStatusTransition):
		return nil, fmt.Errorf("%w: cannot move back to %s", ErrInvalidStatus, st)
	case err != nil:
		return nil, fmt.Errorf("failed to update alert status: %w", err)
	}

	s.logger.InfoContext(ctx, "alert status updated",
		logging.AlertID(alert.ID),
		logging.Rule(alert.RuleName),
		slog.String("alert_status", string(alert.Status)))
	s.notifier.Changed(ctx, alert)
	return alert, nil
}
