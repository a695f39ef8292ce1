// Package storage defines persistence for tenants, log events and alerts,
// with an in-memory implementation. The PostgreSQL implementation lives in
// storage/postgres.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/telhawk-systems/centrallog/internal/models"
)

var (
	ErrNotFound = errors.New("not found")

	// ErrAlertResolved is returned when changing the status of a RESOLVED alert.
	ErrAlertResolved = errors.New("alert is already resolved")

	// ErrStatusTransition is returned when moving an alert backwards,
	// for example INVESTIGATING to OPEN.
	ErrStatusTransition = errors.New("alert status cannot move backwards")
)

// PersistenceError wraps a storage-layer failure.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence error: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Wrap returns err wrapped in a PersistenceError unless it is nil, one of
// the sentinel errors above, or already a PersistenceError.
func Wrap(op string, err error) error {
	if err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, ErrAlertResolved) {
		return err
	}
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

// WindowQuery selects events of one type for a tenant/user (and optionally
// source IP) whose timestamp is at or after Since.
type WindowQuery struct {
	TenantID  int64
	User      string
	SrcIP     string
	EventType string
	Since     time.Time
}

// AlertUpsert describes a threshold breach. Alerts are matched on tenant,
// user, rule and (when KeyByIP) IP among OPEN and INVESTIGATING alerts.
type AlertUpsert struct {
	TenantID      int64
	RuleName      string
	User          string
	IP            string
	KeyByIP       bool
	InvolvedIPs   []string
	Count         int
	LastEventTime time.Time
	Now           time.Time
}

// AlertFilter narrows ListAlerts. A zero Since means no lower bound.
type AlertFilter struct {
	TenantID *int64
	Status   models.AlertStatus
	User     string
	Since    time.Time
	Limit    int
}

// LogFilter narrows log queries. Query is a case-insensitive substring
// matched against event type, user, source/destination IP, host and action.
type LogFilter struct {
	TenantID *int64
	User     string
	Since    time.Time
	Until    time.Time
	Query    string
	Offset   int
	Limit    int
}

// KeyCount is one row of a top-N aggregation.
type KeyCount struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// Bucket is one row of a time histogram.
type Bucket struct {
	Time  time.Time `json:"time"`
	Count int       `json:"count"`
}

// LogSummary aggregates the events matched by a LogFilter.
type LogSummary struct {
	Total         int        `json:"total"`
	UniqueIPs     int        `json:"unique_ips"`
	UniqueUsers   int        `json:"unique_users"`
	OverTime      []Bucket   `json:"over_time"`
	TopIPs        []KeyCount `json:"top_ips"`
	TopUsers      []KeyCount `json:"top_users"`
	TopEventTypes []KeyCount `json:"top_event_types"`
}

// TopN is the size of every top-N list in a LogSummary.
const TopN = 5

type TenantStore interface {
	GetTenantByName(ctx context.Context, name string) (*models.Tenant, error)
	GetTenant(ctx context.Context, id int64) (*models.Tenant, error)

	// CreateTenant allocates an id and inserts the tenant. If a tenant with
	// the same name already exists it is returned instead.
	CreateTenant(ctx context.Context, name, key string) (*models.Tenant, error)
	ListTenants(ctx context.Context) ([]*models.Tenant, error)
}

type LogStore interface {
	// InsertLogEvent assigns the next logEvent id and persists the record.
	InsertLogEvent(ctx context.Context, record *models.CentralLog) (*models.LogEvent, error)
	CountEvents(ctx context.Context, q WindowQuery) (int, error)
	DistinctSourceIPs(ctx context.Context, q WindowQuery) ([]string, error)

	// QueryLogEvents returns a page of matching events, newest first, and
	// the total match count.
	QueryLogEvents(ctx context.Context, f LogFilter) ([]*models.LogEvent, int, error)
	SummarizeLogs(ctx context.Context, f LogFilter, bucket time.Duration) (*LogSummary, error)
}

type AlertStore interface {
	// UpsertOpenAlert atomically updates the active alert matching u or
	// creates a new OPEN one. created reports which happened.
	UpsertOpenAlert(ctx context.Context, u AlertUpsert) (alert *models.Alert, created bool, err error)

	// ResolveOpenAlerts moves every OPEN or INVESTIGATING alert of the
	// tenant's user to RESOLVED and returns them.
	ResolveOpenAlerts(ctx context.Context, tenantID int64, user string, at time.Time) ([]*models.Alert, error)
	GetAlert(ctx context.Context, id int64) (*models.Alert, error)

	// UpdateAlertStatus fails with ErrAlertResolved for RESOLVED alerts.
	// resolvedAt is stored when status is RESOLVED.
	UpdateAlertStatus(ctx context.Context, id int64, status models.AlertStatus, resolvedAt time.Time) (*models.Alert, error)

	// ListAlerts returns matching alerts newest first with Tenant filled in.
	ListAlerts(ctx context.Context, f AlertFilter) ([]*models.Alert, error)
}

// Store is the full persistence surface.
type Store interface {
	TenantStore
	LogStore
	AlertStore
	Ping(ctx context.Context) error
	Close() error
}
