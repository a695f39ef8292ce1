// Package correlation evaluates stateful, time-windowed rules against
// persisted log events and maintains the resulting alerts.
package correlation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/telhawk-systems/centrallog/common/logging"
	"github.com/telhawk-systems/centrallog/internal/metrics"
	"github.com/telhawk-systems/centrallog/internal/models"
	"github.com/telhawk-systems/centrallog/internal/notify"
	"github.com/telhawk-systems/centrallog/internal/storage"
)

// Store is the persistence the engine needs.
type Store interface {
	CountEvents(ctx context.Context, q storage.WindowQuery) (int, error)
	DistinctSourceIPs(ctx context.Context, q storage.WindowQuery) ([]string, error)
	UpsertOpenAlert(ctx context.Context, u storage.AlertUpsert) (*models.Alert, bool, error)
	ResolveOpenAlerts(ctx context.Context, tenantID int64, user string, at time.Time) ([]*models.Alert, error)
}

// Result lists the alerts touched while evaluating one event.
type Result struct {
	Created  []*models.Alert
	Updated  []*models.Alert
	Resolved []*models.Alert
}

// Engine runs the rule set for each persisted event.
type Engine struct {
	store    Store
	rules    []Rule
	notifier *notify.Notifier
	now      func() time.Time
	logger   *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

func WithRules(rules []Rule) Option {
	return func(e *Engine) { e.rules = rules }
}

func WithNotifier(n *notify.Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

func NewEngine(store Store, opts ...Option) *Engine {
	e := &Engine{
		store:  store,
		rules:  DefaultRules(),
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Rules returns the configured rules.
func (e *Engine) Rules() []Rule {
	return e.rules
}

// Evaluate runs every rule that matches the event. Rule failures are
// logged and counted; they never propagate to the caller.
func (e *Engine) Evaluate(ctx context.Context, ev *models.LogEvent) *Result {
	res := &Result{}
	if ev == nil {
		return res
	}

	for _, rule := range e.rules {
		if !rule.Matches(ev.EventType) {
			continue
		}

		var err error
		switch rule.Type {
		case RuleTypeEventCount:
			err = e.evaluateEventCount(ctx, rule, ev, res)
		case RuleTypeValueCount:
			err = e.evaluateValueCount(ctx, rule, ev, res)
		case RuleTypeAutoResolve:
			err = e.evaluateAutoResolve(ctx, rule, ev, res)
		default:
			err = fmt.Errorf("unknown rule type %q", rule.Type)
		}

		if err != nil {
			metrics.CorrelationErrors.WithLabelValues(rule.Name).Inc()
			e.logger.ErrorContext(ctx, "correlation rule failed",
				logging.Rule(rule.Name),
				logging.EventID(ev.ID),
				logging.TenantID(ev.TenantID),
				logging.Error(err))
		}
	}
	return res
}

func (e *Engine) evaluateEventCount(ctx context.Context, rule Rule, ev *models.LogEvent, res *Result) error {
	if ev.User == "" || ev.SrcIP == "" {
		return nil
	}

	count, err := e.store.CountEvents(ctx, storage.WindowQuery{
		TenantID:  ev.TenantID,
		User:      ev.User,
		SrcIP:     ev.SrcIP,
		EventType: ev.EventType,
		Since:     e.now().Add(-rule.Window),
	})
	if err != nil {
		return fmt.Errorf("failed to count events: %w", err)
	}
	if !meetsThreshold(count, rule.Threshold, rule.Operator) {
		return nil
	}

	return e.upsert(ctx, rule, res, storage.AlertUpsert{
		TenantID:      ev.TenantID,
		RuleName:      rule.Name,
		User:          ev.User,
		IP:            ev.SrcIP,
		KeyByIP:       true,
		Count:         count,
		LastEventTime: ev.Timestamp,
		Now:           e.now().UTC(),
	})
}

func (e *Engine) evaluateValueCount(ctx context.Context, rule Rule, ev *models.LogEvent, res *Result) error {
	if ev.User == "" {
		return nil
	}

	ips, err := e.store.DistinctSourceIPs(ctx, storage.WindowQuery{
		TenantID:  ev.TenantID,
		User:      ev.User,
		EventType: ev.EventType,
		Since:     e.now().Add(-rule.Window),
	})
	if err != nil {
		return fmt.Errorf("failed to collect source ips: %w", err)
	}
	if !meetsThreshold(len(ips), rule.Threshold, rule.Operator) {
		return nil
	}

	return e.upsert(ctx, rule, res, storage.AlertUpsert{
		TenantID:      ev.TenantID,
		RuleName:      rule.Name,
		User:          ev.User,
		InvolvedIPs:   ips,
		Count:         len(ips),
		LastEventTime: ev.Timestamp,
		Now:           e.now().UTC(),
	})
}

func (e *Engine) upsert(ctx context.Context, rule Rule, res *Result, u storage.AlertUpsert) error {
	alert, created, err := e.store.UpsertOpenAlert(ctx, u)
	if err != nil {
		return fmt.Errorf("failed to upsert alert: %w", err)
	}

	attrs := []any{
		logging.Rule(rule.Name),
		logging.AlertID(alert.ID),
		logging.TenantID(alert.TenantID),
		logging.User(alert.User),
		logging.Count(alert.Count),
	}
	if alert.IP != "" {
		attrs = append(attrs, logging.IP(alert.IP))
	}

	if created {
		res.Created = append(res.Created, alert)
		metrics.AlertsTotal.WithLabelValues(rule.Name, notify.ActionCreated).Inc()
		e.logger.InfoContext(ctx, "alert created", attrs...)
		e.notifier.Created(ctx, alert)
		return nil
	}

	res.Updated = append(res.Updated, alert)
	metrics.AlertsTotal.WithLabelValues(rule.Name, notify.ActionUpdated).Inc()
	e.logger.DebugContext(ctx, "alert updated", attrs...)
	e.notifier.Updated(ctx, alert)
	return nil
}

// evaluateAutoResolve resolves every active alert of the user across the
// tenant, regardless of rule or source IP. Whether a success from one IP
// should clear alerts raised for another is pending product review.
func (e *Engine) evaluateAutoResolve(ctx context.Context, rule Rule, ev *models.LogEvent, res *Result) error {
	if ev.User == "" {
		return nil
	}

	resolved, err := e.store.ResolveOpenAlerts(ctx, ev.TenantID, ev.User, e.now().UTC())
	if err != nil {
		return fmt.Errorf("failed to resolve alerts: %w", err)
	}

	for _, alert := range resolved {
		metrics.AlertsTotal.WithLabelValues(alert.RuleName, notify.ActionResolved).Inc()
		e.notifier.Resolved(ctx, alert)
	}
	if len(resolved) > 0 {
		e.logger.InfoContext(ctx, "alerts auto-resolved",
			logging.Rule(rule.Name),
			logging.TenantID(ev.TenantID),
			logging.User(ev.User),
			logging.Count(len(resolved)))
	}
	res.Resolved = append(res.Resolved, resolved...)
	return nil
}
