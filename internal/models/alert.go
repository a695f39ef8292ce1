package models

import (
	"fmt"
	"time"
)

// AlertStatus is the lifecycle state of an alert.
type AlertStatus string

const (
	AlertStatusOpen          AlertStatus = "OPEN"
	AlertStatusInvestigating AlertStatus = "INVESTIGATING"
	AlertStatusResolved      AlertStatus = "RESOLVED"
)

// Active reports whether the alert still counts toward deduplication.
func (s AlertStatus) Active() bool {
	return s == AlertStatusOpen || s == AlertStatusInvestigating
}

// CanMoveTo reports whether an alert in s may be set to next. Alerts only
// move forward through OPEN, INVESTIGATING and RESOLVED; setting the
// current status again is allowed for active alerts.
func (s AlertStatus) CanMoveTo(next AlertStatus) bool {
	switch s {
	case AlertStatusOpen:
		return next.Active() || next == AlertStatusResolved
	case AlertStatusInvestigating:
		return next == AlertStatusInvestigating || next == AlertStatusResolved
	}
	return false
}

// ParseAlertStatus validates s.
func ParseAlertStatus(s string) (AlertStatus, error) {
	switch AlertStatus(s) {
	case AlertStatusOpen, AlertStatusInvestigating, AlertStatusResolved:
		return AlertStatus(s), nil
	}
	return "", fmt.Errorf("invalid alert status %q (valid: OPEN, INVESTIGATING, RESOLVED)", s)
}

// Alert is raised by the correlation engine.
type Alert struct {
	ID       int64  `json:"id"`
	TenantID int64  `json:"tenantId"`
	Tenant   string `json:"tenant,omitempty"`

	// Time is when the alert was created.
	Time        time.Time `json:"time"`
	RuleName    string    `json:"ruleName"`
	IP          string    `json:"ip,omitempty"`
	InvolvedIPs []string  `json:"involved_ips,omitempty"`
	User        string    `json:"user,omitempty"`
	Count       int       `json:"count"`

	Status        AlertStatus `json:"status"`
	LastEventTime time.Time   `json:"last_event_time"`
	ResolvedAt    *time.Time  `json:"resolved_at,omitempty"`
}
