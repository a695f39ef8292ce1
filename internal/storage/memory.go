package storage

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/telhawk-systems/centrallog/internal/models"
	"github.com/telhawk-systems/centrallog/internal/sequence"
)

// MemoryStore keeps everything in process memory. It backs the "memory"
// storage driver and the unit tests. All mutations happen under one lock,
// which makes UpsertOpenAlert atomic.
type MemoryStore struct {
	mu      sync.RWMutex
	ids     sequence.Allocator
	now     func() time.Time
	tenants map[int64]*models.Tenant
	byName  map[string]int64
	events  []*models.LogEvent
	alerts  map[int64]*models.Alert
}

// NewMemoryStore returns an empty store. A nil allocator selects a
// process-local one.
func NewMemoryStore(ids sequence.Allocator) *MemoryStore {
	if ids == nil {
		ids = sequence.NewMemoryAllocator()
	}
	return &MemoryStore{
		ids:     ids,
		now:     time.Now,
		tenants: make(map[int64]*models.Tenant),
		byName:  make(map[string]int64),
		alerts:  make(map[int64]*models.Alert),
	}
}

func (s *MemoryStore) Ping(context.Context) error { return nil }
func (s *MemoryStore) Close() error               { return nil }

func (s *MemoryStore) GetTenantByName(_ context.Context, name string) (*models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byName[name]
	if !ok {
		return nil, ErrNotFound
	}
	t := *s.tenants[id]
	return &t, nil
}

func (s *MemoryStore) GetTenant(_ context.Context, id int64) (*models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tenants[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *MemoryStore) CreateTenant(ctx context.Context, name, key string) (*models.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byName[name]; ok {
		t := *s.tenants[id]
		return &t, nil
	}

	id, err := s.ids.Next(ctx, sequence.Tenant)
	if err != nil {
		return nil, Wrap("allocate tenant id", err)
	}
	t := &models.Tenant{ID: id, Name: name, Key: key, CreatedAt: s.now().UTC()}
	s.tenants[id] = t
	s.byName[name] = id

	cp := *t
	return &cp, nil
}

func (s *MemoryStore) ListTenants(context.Context) ([]*models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Tenant, 0, len(s.tenants))
	for _, t := range s.tenants {
		cp := *t
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) InsertLogEvent(ctx context.Context, record *models.CentralLog) (*models.LogEvent, error) {
	id, err := s.ids.Next(ctx, sequence.LogEvent)
	if err != nil {
		return nil, Wrap("allocate log event id", err)
	}

	ev := &models.LogEvent{ID: id, CentralLog: *record, CreatedAt: s.now().UTC()}
	ev.Tags = slices.Clone(record.Tags)

	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()

	cp := *ev
	return &cp, nil
}

func (s *MemoryStore) matchWindow(ev *models.LogEvent, q WindowQuery) bool {
	return ev.TenantID == q.TenantID &&
		ev.User == q.User &&
		ev.EventType == q.EventType &&
		!ev.Timestamp.Before(q.Since) &&
		(q.SrcIP == "" || ev.SrcIP == q.SrcIP)
}

func (s *MemoryStore) CountEvents(_ context.Context, q WindowQuery) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, ev := range s.events {
		if s.matchWindow(ev, q) {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) DistinctSourceIPs(_ context.Context, q WindowQuery) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]bool)
	for _, ev := range s.events {
		if ev.SrcIP != "" && s.matchWindow(ev, q) {
			seen[ev.SrcIP] = true
		}
	}
	ips := make([]string, 0, len(seen))
	for ip := range seen {
		ips = append(ips, ip)
	}
	sort.Strings(ips)
	return ips, nil
}

func matchLog(ev *models.LogEvent, f LogFilter) bool {
	if f.TenantID != nil && ev.TenantID != *f.TenantID {
		return false
	}
	if f.User != "" && ev.User != f.User {
		return false
	}
	if !f.Since.IsZero() && ev.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && ev.Timestamp.After(f.Until) {
		return false
	}
	if f.Query != "" {
		q := strings.ToLower(f.Query)
		for _, field := range []string{ev.EventType, ev.User, ev.SrcIP, ev.DstIP, ev.Host, ev.Action} {
			if strings.Contains(strings.ToLower(field), q) {
				return true
			}
		}
		return false
	}
	return true
}

func (s *MemoryStore) filterLogs(f LogFilter) []*models.LogEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.LogEvent
	for _, ev := range s.events {
		if matchLog(ev, f) {
			out = append(out, ev)
		}
	}
	return out
}

func (s *MemoryStore) QueryLogEvents(_ context.Context, f LogFilter) ([]*models.LogEvent, int, error) {
	matched := s.filterLogs(f)
	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].Timestamp.Equal(matched[j].Timestamp) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})

	total := len(matched)
	start := min(max(f.Offset, 0), total)
	end := total
	if f.Limit > 0 {
		end = min(start+f.Limit, total)
	}

	page := make([]*models.LogEvent, 0, end-start)
	for _, ev := range matched[start:end] {
		cp := *ev
		page = append(page, &cp)
	}
	return page, total, nil
}

func (s *MemoryStore) SummarizeLogs(_ context.Context, f LogFilter, bucket time.Duration) (*LogSummary, error) {
	if bucket <= 0 {
		return nil, fmt.Errorf("bucket size must be positive, got %s", bucket)
	}
	matched := s.filterLogs(f)

	ips := map[string]int{}
	users := map[string]int{}
	types := map[string]int{}
	buckets := map[time.Time]int{}
	for _, ev := range matched {
		if ev.SrcIP != "" {
			ips[ev.SrcIP]++
		}
		if ev.User != "" {
			users[ev.User]++
		}
		types[ev.EventType]++
		buckets[ev.Timestamp.UTC().Truncate(bucket)]++
	}

	summary := &LogSummary{
		Total:         len(matched),
		UniqueIPs:     len(ips),
		UniqueUsers:   len(users),
		TopIPs:        topN(ips),
		TopUsers:      topN(users),
		TopEventTypes: topN(types),
		OverTime:      make([]Bucket, 0, len(buckets)),
	}
	for t, n := range buckets {
		summary.OverTime = append(summary.OverTime, Bucket{Time: t, Count: n})
	}
	sort.Slice(summary.OverTime, func(i, j int) bool {
		return summary.OverTime[i].Time.Before(summary.OverTime[j].Time)
	})
	return summary, nil
}

func topN(counts map[string]int) []KeyCount {
	out := make([]KeyCount, 0, len(counts))
	for k, n := range counts {
		out = append(out, KeyCount{Key: k, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count == out[j].Count {
			return out[i].Key < out[j].Key
		}
		return out[i].Count > out[j].Count
	})
	if len(out) > TopN {
		out = out[:TopN]
	}
	return out
}

func (s *MemoryStore) copyAlert(a *models.Alert) *models.Alert {
	cp := *a
	cp.InvolvedIPs = slices.Clone(a.InvolvedIPs)
	if a.ResolvedAt != nil {
		at := *a.ResolvedAt
		cp.ResolvedAt = &at
	}
	if t, ok := s.tenants[a.TenantID]; ok {
		cp.Tenant = t.Name
	}
	return &cp
}

func (s *MemoryStore) UpsertOpenAlert(ctx context.Context, u AlertUpsert) (*models.Alert, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.alerts {
		if a.TenantID != u.TenantID || a.User != u.User || a.RuleName != u.RuleName || !a.Status.Active() {
			continue
		}
		if u.KeyByIP && a.IP != u.IP {
			continue
		}
		if !u.KeyByIP && a.IP != "" {
			continue
		}
		a.Count = u.Count
		a.LastEventTime = u.LastEventTime
		if u.InvolvedIPs != nil {
			a.InvolvedIPs = slices.Clone(u.InvolvedIPs)
		}
		return s.copyAlert(a), false, nil
	}

	id, err := s.ids.Next(ctx, sequence.Alert)
	if err != nil {
		return nil, false, Wrap("allocate alert id", err)
	}
	a := &models.Alert{
		ID:            id,
		TenantID:      u.TenantID,
		Time:          u.Now,
		RuleName:      u.RuleName,
		User:          u.User,
		InvolvedIPs:   slices.Clone(u.InvolvedIPs),
		Count:         u.Count,
		Status:        models.AlertStatusOpen,
		LastEventTime: u.LastEventTime,
	}
	if u.KeyByIP {
		a.IP = u.IP
	}
	s.alerts[id] = a
	return s.copyAlert(a), true, nil
}

func (s *MemoryStore) ResolveOpenAlerts(_ context.Context, tenantID int64, user string, at time.Time) ([]*models.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var resolved []*models.Alert
	for _, a := range s.alerts {
		if a.TenantID != tenantID || a.User != user || !a.Status.Active() {
			continue
		}
		ts := at
		a.Status = models.AlertStatusResolved
		a.ResolvedAt = &ts
		resolved = append(resolved, s.copyAlert(a))
	}
	sort.Slice(resolved, func(i, j int) bool { return resolved[i].ID < resolved[j].ID })
	return resolved, nil
}

func (s *MemoryStore) GetAlert(_ context.Context, id int64) (*models.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.alerts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s.copyAlert(a), nil
}

func (s *MemoryStore) UpdateAlertStatus(_ context.Context, id int64, status models.AlertStatus, resolvedAt time.Time) (*models.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.alerts[id]
	if !ok {
		return nil, ErrNotFound
	}
	if a.Status == models.AlertStatusResolved {
		return nil, ErrAlertResolved
	}
	if !a.Status.CanMoveTo(status) {
		return nil, ErrStatusTransition
	}
	a.Status = status
	if status == models.AlertStatusResolved {
		ts := resolvedAt
		a.ResolvedAt = &ts
	}
	return s.copyAlert(a), nil
}

func (s *MemoryStore) ListAlerts(_ context.Context, f AlertFilter) ([]*models.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Alert
	for _, a := range s.alerts {
		if f.TenantID != nil && a.TenantID != *f.TenantID {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		if f.User != "" && a.User != f.User {
			continue
		}
		if !f.Since.IsZero() && a.Time.Before(f.Since) {
			continue
		}
		out = append(out, s.copyAlert(a))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Time.Equal(out[j].Time) {
			return out[i].ID > out[j].ID
		}
		return out[i].Time.After(out[j].Time)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}
