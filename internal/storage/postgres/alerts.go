package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/telhawk-systems/centrallog/internal/models"
	"github.com/telhawk-systems/centrallog/internal/sequence"
	"github.com/telhawk-systems/centrallog/internal/storage"
)

const alertColumns = `
	alerts.id, alerts.tenant_id, COALESCE((SELECT t.name FROM tenants t WHERE t.id = alerts.tenant_id), ''),
	alerts.created_at, alerts.rule_name, alerts.ip, alerts.involved_ips, alerts.user_name,
	alerts.event_count, alerts.status, alerts.last_event_time, alerts.resolved_at`

func scanAlert(row pgx.Row) (*models.Alert, error) {
	a := &models.Alert{}
	var (
		ip     *string
		status string
	)
	err := row.Scan(
		&a.ID, &a.TenantID, &a.Tenant, &a.Time, &a.RuleName, &ip, &a.InvolvedIPs,
		&a.User, &a.Count, &status, &a.LastEventTime, &a.ResolvedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	if ip != nil {
		a.IP = *ip
	}
	a.Status = models.AlertStatus(status)
	a.Time = a.Time.UTC()
	a.LastEventTime = a.LastEventTime.UTC()
	if a.ResolvedAt != nil {
		at := a.ResolvedAt.UTC()
		a.ResolvedAt = &at
	}
	return a, nil
}

func alertKeyIP(u storage.AlertUpsert) *string {
	if !u.KeyByIP {
		return nil
	}
	ip := u.IP
	return &ip
}

// UpsertOpenAlert first tries to update the active alert for the key. If
// none exists it inserts one; the partial unique indexes make a concurrent
// duplicate insert a no-op, in which case the update is retried.
func (s *Store) UpsertOpenAlert(ctx context.Context, u storage.AlertUpsert) (*models.Alert, bool, error) {
	for attempt := 0; attempt < 3; attempt++ {
		a, err := s.updateActiveAlert(ctx, u)
		if err == nil {
			return a, false, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, false, storage.Wrap("update active alert", err)
		}

		a, err = s.insertAlert(ctx, u)
		if err == nil {
			return a, true, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, false, storage.Wrap("insert alert", err)
		}
	}
	return nil, false, storage.Wrap("upsert alert", fmt.Errorf("contention on alert key %s/%s", u.User, u.RuleName))
}

func (s *Store) updateActiveAlert(ctx context.Context, u storage.AlertUpsert) (*models.Alert, error) {
	query := `
		UPDATE alerts
		SET event_count = $5, last_event_time = $6, involved_ips = COALESCE($7, involved_ips)
		WHERE tenant_id = $1 AND user_name = $2 AND rule_name = $3
			AND ip IS NOT DISTINCT FROM $4
			AND status IN ('OPEN', 'INVESTIGATING')
		RETURNING ` + alertColumns

	return scanAlert(s.pool.QueryRow(ctx, query,
		u.TenantID, u.User, u.RuleName, alertKeyIP(u), u.Count, u.LastEventTime, u.InvolvedIPs,
	))
}

func (s *Store) insertAlert(ctx context.Context, u storage.AlertUpsert) (*models.Alert, error) {
	id, err := s.ids.Next(ctx, sequence.Alert)
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO alerts (id, tenant_id, created_at, rule_name, ip, involved_ips,
			user_name, event_count, status, last_event_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'OPEN', $9)
		ON CONFLICT DO NOTHING
		RETURNING ` + alertColumns

	return scanAlert(s.pool.QueryRow(ctx, query,
		id, u.TenantID, u.Now, u.RuleName, alertKeyIP(u), u.InvolvedIPs,
		u.User, u.Count, u.LastEventTime,
	))
}

func (s *Store) ResolveOpenAlerts(ctx context.Context, tenantID int64, user string, at time.Time) ([]*models.Alert, error) {
	query := `
		UPDATE alerts SET status = 'RESOLVED', resolved_at = $3
		WHERE tenant_id = $1 AND user_name = $2 AND status IN ('OPEN', 'INVESTIGATING')
		RETURNING ` + alertColumns

	return s.collectAlerts(ctx, "resolve open alerts", query, tenantID, user, at)
}

func (s *Store) GetAlert(ctx context.Context, id int64) (*models.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE id = $1`

	a, err := scanAlert(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, storage.Wrap("get alert", err)
	}
	return a, nil
}

func (s *Store) UpdateAlertStatus(ctx context.Context, id int64, status models.AlertStatus, resolvedAt time.Time) (*models.Alert, error) {
	var at *time.Time
	if status == models.AlertStatusResolved {
		at = &resolvedAt
	}

	query := `
		UPDATE alerts SET status = $2, resolved_at = COALESCE($3, resolved_at)
		WHERE id = $1 AND status <> 'RESOLVED'
		  AND NOT (status = 'INVESTIGATING' AND $2 = 'OPEN')
		RETURNING ` + alertColumns

	a, err := scanAlert(s.pool.QueryRow(ctx, query, id, string(status), at))
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, storage.Wrap("update alert status", err)
	}

	// Nothing matched: missing, resolved, or a backwards move.
	current, getErr := s.GetAlert(ctx, id)
	if getErr != nil {
		return nil, getErr
	}
	if current.Status == models.AlertStatusResolved {
		return nil, storage.ErrAlertResolved
	}
	return nil, storage.ErrStatusTransition
}

func (s *Store) ListAlerts(ctx context.Context, f storage.AlertFilter) ([]*models.Alert, error) {
	where := "WHERE 1=1"
	args := []any{}
	argPos := 1

	if f.TenantID != nil {
		where += fmt.Sprintf(" AND tenant_id = $%d", argPos)
		args = append(args, *f.TenantID)
		argPos++
	}
	if f.Status != "" {
		where += fmt.Sprintf(" AND status = $%d", argPos)
		args = append(args, string(f.Status))
		argPos++
	}
	if f.User != "" {
		where += fmt.Sprintf(" AND user_name = $%d", argPos)
		args = append(args, f.User)
		argPos++
	}
	if !f.Since.IsZero() {
		where += fmt.Sprintf(" AND created_at >= $%d", argPos)
		args = append(args, f.Since)
	}

	query := `SELECT ` + alertColumns + ` FROM alerts ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	return s.collectAlerts(ctx, "list alerts", query, args...)
}

func (s *Store) collectAlerts(ctx context.Context, op, query string, args ...any) ([]*models.Alert, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, storage.Wrap(op, err)
	}
	defer rows.Close()

	alerts := []*models.Alert{}
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, storage.Wrap(op, err)
		}
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Wrap(op, err)
	}
	return alerts, nil
}
