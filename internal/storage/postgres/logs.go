package postgres

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/telhawk-systems/centrallog/internal/models"
	"github.com/telhawk-systems/centrallog/internal/sequence"
	"github.com/telhawk-systems/centrallog/internal/storage"
)

const logColumns = `
	id, tenant_id, tenant, source, ts, vendor, product, event_type, event_subtype,
	severity, action, src_ip, src_port, dst_ip, dst_port, protocol, user_name,
	host, process, url, http_method, status_code, rule_name, rule_id,
	cloud_account_id, cloud_region, cloud_service, tags, raw, created_at`

func (s *Store) InsertLogEvent(ctx context.Context, record *models.CentralLog) (*models.LogEvent, error) {
	raw, err := encodeRaw(record.Raw)
	if err != nil {
		return nil, storage.Wrap("encode raw payload", err)
	}

	id, err := s.ids.Next(ctx, sequence.LogEvent)
	if err != nil {
		return nil, storage.Wrap("allocate log event id", err)
	}

	var cloud models.CloudContext
	if record.Cloud != nil {
		cloud = *record.Cloud
	}

	query := `
		INSERT INTO log_events (` + logColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30)
	`

	ev := &models.LogEvent{ID: id, CentralLog: *record, CreatedAt: s.now().UTC()}
	_, err = s.pool.Exec(ctx, query,
		ev.ID, record.TenantID, record.Tenant, string(record.Source), record.Timestamp,
		record.Vendor, record.Product, record.EventType, record.EventSubtype,
		record.Severity, record.Action, record.SrcIP, record.SrcPort, record.DstIP,
		record.DstPort, record.Protocol, record.User, record.Host, record.Process,
		record.URL, record.HTTPMethod, record.StatusCode, record.RuleName, record.RuleID,
		cloud.AccountID, cloud.Region, cloud.Service, record.Tags, raw, ev.CreatedAt,
	)
	if err != nil {
		return nil, storage.Wrap("insert log event", fmt.Errorf("failed to insert log event: %w", err))
	}
	return ev, nil
}

func encodeRaw(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func decodeRaw(b []byte) (any, error) {
	if len(b) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

func scanLogEvent(row pgx.Row) (*models.LogEvent, error) {
	ev := &models.LogEvent{}
	var (
		source string
		cloud  models.CloudContext
		raw    []byte
	)
	err := row.Scan(
		&ev.ID, &ev.TenantID, &ev.Tenant, &source, &ev.Timestamp, &ev.Vendor,
		&ev.Product, &ev.EventType, &ev.EventSubtype, &ev.Severity, &ev.Action,
		&ev.SrcIP, &ev.SrcPort, &ev.DstIP, &ev.DstPort, &ev.Protocol, &ev.User,
		&ev.Host, &ev.Process, &ev.URL, &ev.HTTPMethod, &ev.StatusCode,
		&ev.RuleName, &ev.RuleID, &cloud.AccountID, &cloud.Region, &cloud.Service,
		&ev.Tags, &raw, &ev.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	ev.Source = models.Source(source)
	ev.Timestamp = ev.Timestamp.UTC()
	if !cloud.IsZero() {
		ev.Cloud = &cloud
	}
	if ev.Raw, err = decodeRaw(raw); err != nil {
		return nil, fmt.Errorf("failed to decode raw payload of event %d: %w", ev.ID, err)
	}
	return ev, nil
}

func (s *Store) CountEvents(ctx context.Context, q storage.WindowQuery) (int, error) {
	query := `
		SELECT COUNT(*) FROM log_events
		WHERE tenant_id = $1 AND user_name = $2 AND event_type = $3 AND ts >= $4
			AND ($5::text = '' OR src_ip = $5)
	`

	var n int
	err := s.pool.QueryRow(ctx, query, q.TenantID, q.User, q.EventType, q.Since, q.SrcIP).Scan(&n)
	if err != nil {
		return 0, storage.Wrap("count events", err)
	}
	return n, nil
}

func (s *Store) DistinctSourceIPs(ctx context.Context, q storage.WindowQuery) ([]string, error) {
	query := `
		SELECT DISTINCT src_ip FROM log_events
		WHERE tenant_id = $1 AND user_name = $2 AND event_type = $3 AND ts >= $4
			AND src_ip <> '' AND ($5::text = '' OR src_ip = $5)
		ORDER BY src_ip
	`

	rows, err := s.pool.Query(ctx, query, q.TenantID, q.User, q.EventType, q.Since, q.SrcIP)
	if err != nil {
		return nil, storage.Wrap("distinct source ips", err)
	}
	ips, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, storage.Wrap("distinct source ips", err)
	}
	return ips, nil
}

// logWhere renders f as a WHERE clause with positional args.
func logWhere(f storage.LogFilter) (string, []any) {
	where := "WHERE 1=1"
	args := []any{}
	argPos := 1

	if f.TenantID != nil {
		where += fmt.Sprintf(" AND tenant_id = $%d", argPos)
		args = append(args, *f.TenantID)
		argPos++
	}
	if f.User != "" {
		where += fmt.Sprintf(" AND user_name = $%d", argPos)
		args = append(args, f.User)
		argPos++
	}
	if !f.Since.IsZero() {
		where += fmt.Sprintf(" AND ts >= $%d", argPos)
		args = append(args, f.Since)
		argPos++
	}
	if !f.Until.IsZero() {
		where += fmt.Sprintf(" AND ts <= $%d", argPos)
		args = append(args, f.Until)
		argPos++
	}
	if f.Query != "" {
		where += fmt.Sprintf(` AND (event_type ILIKE $%[1]d OR user_name ILIKE $%[1]d
			OR src_ip ILIKE $%[1]d OR dst_ip ILIKE $%[1]d OR host ILIKE $%[1]d
			OR action ILIKE $%[1]d)`, argPos)
		args = append(args, "%"+f.Query+"%")
	}
	return where, args
}

func (s *Store) QueryLogEvents(ctx context.Context, f storage.LogFilter) ([]*models.LogEvent, int, error) {
	where, args := logWhere(f)

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM log_events "+where, args...).Scan(&total); err != nil {
		return nil, 0, storage.Wrap("count log events", err)
	}

	query := "SELECT " + logColumns + " FROM log_events " + where + " ORDER BY ts DESC, id DESC"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}
	if f.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", f.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, storage.Wrap("query log events", err)
	}
	defer rows.Close()

	events := []*models.LogEvent{}
	for rows.Next() {
		ev, err := scanLogEvent(rows)
		if err != nil {
			return nil, 0, storage.Wrap("scan log event", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, storage.Wrap("query log events", err)
	}
	return events, total, nil
}

func (s *Store) SummarizeLogs(ctx context.Context, f storage.LogFilter, bucket time.Duration) (*storage.LogSummary, error) {
	if bucket <= 0 {
		return nil, fmt.Errorf("bucket size must be positive, got %s", bucket)
	}
	where, args := logWhere(f)
	sum := &storage.LogSummary{}

	totals := `SELECT COUNT(*), COUNT(DISTINCT NULLIF(src_ip, '')), COUNT(DISTINCT NULLIF(user_name, ''))
		FROM log_events ` + where
	if err := s.pool.QueryRow(ctx, totals, args...).Scan(&sum.Total, &sum.UniqueIPs, &sum.UniqueUsers); err != nil {
		return nil, storage.Wrap("summarize logs", err)
	}

	overTime := fmt.Sprintf(`
		SELECT date_bin(make_interval(secs => $%d), ts, TIMESTAMPTZ '2000-01-01 00:00:00+00') AS bucket, COUNT(*)
		FROM log_events %s
		GROUP BY bucket ORDER BY bucket`, len(args)+1, where)
	rows, err := s.pool.Query(ctx, overTime, append(args, bucket.Seconds())...)
	if err != nil {
		return nil, storage.Wrap("summarize logs over time", err)
	}
	sum.OverTime, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (storage.Bucket, error) {
		var b storage.Bucket
		err := row.Scan(&b.Time, &b.Count)
		b.Time = b.Time.UTC()
		return b, err
	})
	if err != nil {
		return nil, storage.Wrap("summarize logs over time", err)
	}

	for _, top := range []struct {
		column string
		dst    *[]storage.KeyCount
	}{
		{"src_ip", &sum.TopIPs},
		{"user_name", &sum.TopUsers},
		{"event_type", &sum.TopEventTypes},
	} {
		if *top.dst, err = s.topN(ctx, top.column, where, args); err != nil {
			return nil, storage.Wrap("summarize logs top "+top.column, err)
		}
	}
	return sum, nil
}

func (s *Store) topN(ctx context.Context, column, where string, args []any) ([]storage.KeyCount, error) {
	query := fmt.Sprintf(`
		SELECT %[1]s, COUNT(*) AS n FROM log_events %[2]s AND %[1]s <> ''
		GROUP BY %[1]s ORDER BY n DESC, %[1]s LIMIT %[3]d`, column, where, storage.TopN)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (storage.KeyCount, error) {
		var kc storage.KeyCount
		err := row.Scan(&kc.Key, &kc.Count)
		return kc, err
	})
}
