// Package notify publishes alert lifecycle events to the message broker.
package notify

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/telhawk-systems/centrallog/common/logging"
	"github.com/telhawk-systems/centrallog/common/messaging"
	"github.com/telhawk-systems/centrallog/internal/metrics"
	"github.com/telhawk-systems/centrallog/internal/models"
)

// Lifecycle actions carried in AlertEvent.Action.
const (
	ActionCreated  = "created"
	ActionUpdated  = "updated"
	ActionResolved = "resolved"
)

// AlertEvent is the message body published for every alert transition.
type AlertEvent struct {
	Action    string        `json:"action"`
	Alert     *models.Alert `json:"alert"`
	Timestamp time.Time     `json:"timestamp"`
}

// Notifier publishes alert events. A nil Notifier, or one without a
// publisher, drops everything.
type Notifier struct {
	pub    messaging.Publisher
	logger *slog.Logger
}

func New(pub messaging.Publisher, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{pub: pub, logger: logger}
}

func (n *Notifier) Created(ctx context.Context, a *models.Alert) {
	n.publish(ctx, messaging.SubjectAlertsCreated, ActionCreated, a)
}

func (n *Notifier) Updated(ctx context.Context, a *models.Alert) {
	n.publish(ctx, messaging.SubjectAlertsUpdated, ActionUpdated, a)
}

func (n *Notifier) Resolved(ctx context.Context, a *models.Alert) {
	n.publish(ctx, messaging.SubjectAlertsResolved, ActionResolved, a)
}

// Changed publishes updated or resolved depending on the alert's status.
func (n *Notifier) Changed(ctx context.Context, a *models.Alert) {
	if a.Status == models.AlertStatusResolved {
		n.Resolved(ctx, a)
		return
	}
	n.Updated(ctx, a)
}

func (n *Notifier) publish(ctx context.Context, subject, action string, a *models.Alert) {
	if n == nil || n.pub == nil || a == nil {
		return
	}

	msg, err := messaging.NewJSONMessage(subject, AlertEvent{Action: action, Alert: a, Timestamp: time.Now().UTC()})
	if err == nil {
		msg.Set(messaging.HeaderTenantID, strconv.FormatInt(a.TenantID, 10)).
			Set(messaging.HeaderAlertID, strconv.FormatInt(a.ID, 10)).
			Set(messaging.HeaderAction, action)
		err = n.pub.Publish(ctx, msg)
	}
	if err != nil {
		metrics.NotifyErrors.Inc()
		n.logger.WarnContext(ctx, "failed to publish alert event",
			slog.String("subject", subject),
			logging.AlertID(a.ID),
			logging.Error(err))
	}
}
