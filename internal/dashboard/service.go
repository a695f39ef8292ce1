// Package dashboard aggregates stored events and alerts for the read-side
// views: the tenant dashboard, per-user activity and log search.
package dashboard

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/telhawk-systems/centrallog/internal/models"
	"github.com/telhawk-systems/centrallog/internal/storage"
	"github.com/telhawk-systems/centrallog/internal/timerange"
)

const (
	// AllUsers selects every user in UserActivity.
	AllUsers = "all"

	MaxRecentEvents    = 500
	MaxRelatedAlerts   = 5
	DefaultSearchLimit = 100
	MaxSearchLimit     = 100
)

// Store is the persistence the dashboard reads from.
type Store interface {
	QueryLogEvents(ctx context.Context, f storage.LogFilter) ([]*models.LogEvent, int, error)
	SummarizeLogs(ctx context.Context, f storage.LogFilter, bucket time.Duration) (*storage.LogSummary, error)
	ListAlerts(ctx context.Context, f storage.AlertFilter) ([]*models.Alert, error)
}

type Service struct {
	store Store
	now   func() time.Time
}

func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

type Summary struct {
	Range          string             `json:"range"`
	TotalEvents    int                `json:"totalEvents"`
	UniqueIPs      int                `json:"uniqueIps"`
	UniqueUsers    int                `json:"uniqueUsers"`
	TotalAlerts    int                `json:"totalAlerts"`
	EventsOverTime []storage.Bucket   `json:"eventsOverTime"`
	TopIPs         []storage.KeyCount `json:"topIps"`
	TopUsers       []storage.KeyCount `json:"topUsers"`
	TopEventTypes  []storage.KeyCount `json:"topEventTypes"`
}

// Summary aggregates events and alerts for a tenant, or every tenant when
// tenantID is nil.
func (s *Service) Summary(ctx context.Context, tenantID *int64, rangeToken string) (*Summary, error) {
	r, err := timerange.Parse(rangeToken)
	if err != nil {
		return nil, err
	}
	since := r.Since(s.now().UTC())

	sum, err := s.store.SummarizeLogs(ctx, storage.LogFilter{TenantID: tenantID, Since: since}, r.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize logs: %w", err)
	}
	alerts, err := s.store.ListAlerts(ctx, storage.AlertFilter{TenantID: tenantID, Since: since})
	if err != nil {
		return nil, fmt.Errorf("failed to count alerts: %w", err)
	}

	return &Summary{
		Range:          r.Token,
		TotalEvents:    sum.Total,
		UniqueIPs:      sum.UniqueIPs,
		UniqueUsers:    sum.UniqueUsers,
		TotalAlerts:    len(alerts),
		EventsOverTime: nonNil(sum.OverTime),
		TopIPs:         nonNil(sum.TopIPs),
		TopUsers:       nonNil(sum.TopUsers),
		TopEventTypes:  nonNil(sum.TopEventTypes),
	}, nil
}

type ActivitySummary struct {
	TotalEvents int `json:"totalEvents"`
	UniqueIPs   int `json:"uniqueIps"`
	UniqueUsers int `json:"uniqueUsers"`
	TotalAlerts int `json:"totalAlerts"`
}

type ActivityEvent struct {
	Time      time.Time     `json:"time"`
	EventType string        `json:"eventType"`
	Source    models.Source `json:"source"`
	IP        string        `json:"ip,omitempty"`
	TenantID  int64         `json:"tenantId"`
	User      string        `json:"user,omitempty"`
}

type UserActivity struct {
	User           string           `json:"user"`
	Range          string           `json:"range"`
	Summary        ActivitySummary  `json:"summary"`
	EventsOverTime []storage.Bucket `json:"eventsOverTime"`
	RecentEvents   []ActivityEvent  `json:"recentEvents"`
	RelatedAlerts  []*models.Alert  `json:"relatedAlerts"`
}

// UserActivity reports on one user, or on every user when user is "all".
// Events are bucketed by hour.
func (s *Service) UserActivity(ctx context.Context, tenantID *int64, user, rangeToken string) (*UserActivity, error) {
	user = strings.TrimSpace(user)
	if user == "" {
		user = AllUsers
	}
	r, err := timerange.Parse(rangeToken)
	if err != nil {
		return nil, err
	}
	since := r.Since(s.now().UTC())

	lf := storage.LogFilter{TenantID: tenantID, Since: since}
	af := storage.AlertFilter{TenantID: tenantID, Since: since}
	if user != AllUsers {
		lf.User = user
		af.User = user
	}

	sum, err := s.store.SummarizeLogs(ctx, lf, time.Hour)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize user activity: %w", err)
	}

	lf.Limit = MaxRecentEvents
	recent, _, err := s.store.QueryLogEvents(ctx, lf)
	if err != nil {
		return nil, fmt.Errorf("failed to load recent events: %w", err)
	}

	alerts, err := s.store.ListAlerts(ctx, af)
	if err != nil {
		return nil, fmt.Errorf("failed to load related alerts: %w", err)
	}

	out := &UserActivity{
		User:  user,
		Range: r.Token,
		Summary: ActivitySummary{
			TotalEvents: sum.Total,
			UniqueIPs:   sum.UniqueIPs,
			UniqueUsers: sum.UniqueUsers,
			TotalAlerts: len(alerts),
		},
		EventsOverTime: nonNil(sum.OverTime),
		RecentEvents:   make([]ActivityEvent, 0, len(recent)),
		RelatedAlerts:  nonNil(alerts[:min(len(alerts), MaxRelatedAlerts)]),
	}
	if user != AllUsers {
		out.Summary.UniqueUsers = 1
	}
	for _, ev := range recent {
		out.RecentEvents = append(out.RecentEvents, ActivityEvent{
			Time:      ev.Timestamp,
			EventType: ev.EventType,
			Source:    ev.Source,
			IP:        ev.SrcIP,
			TenantID:  ev.TenantID,
			User:      ev.User,
		})
	}
	return out, nil
}

// SearchQuery selects a page of events. Zero times are open bounds.
type SearchQuery struct {
	TenantID *int64
	User     string
	From     time.Time
	To       time.Time
	Q        string
	Page     int
	Limit    int
}

type SearchResult struct {
	Events []*models.LogEvent `json:"events"`
	Total  int                `json:"total"`
	Page   int                `json:"page"`
	Limit  int                `json:"limit"`
}

// Search returns events newest first.
func (s *Service) Search(ctx context.Context, q SearchQuery) (*SearchResult, error) {
	if q.Limit <= 0 {
		q.Limit = DefaultSearchLimit
	}
	q.Limit = min(q.Limit, MaxSearchLimit)
	q.Page = max(q.Page, 1)
	if !q.From.IsZero() && !q.To.IsZero() && q.To.Before(q.From) {
		return nil, fmt.Errorf("%w: to %s is before from %s", timerange.ErrInvalidRange, q.To.Format(time.RFC3339), q.From.Format(time.RFC3339))
	}

	events, total, err := s.store.QueryLogEvents(ctx, storage.LogFilter{
		TenantID: q.TenantID,
		User:     q.User,
		Since:    q.From,
		Until:    q.To,
		Query:    strings.TrimSpace(q.Q),
		Offset:   (q.Page - 1) * q.Limit,
		Limit:    q.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search logs: %w", err)
	}
	return &SearchResult{Events: nonNil(events), Total: total, Page: q.Page, Limit: q.Limit}, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
