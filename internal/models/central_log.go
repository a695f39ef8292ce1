// Package models defines the records shared by normalization, persistence
// and correlation.
package models

import "time"

// Source identifies where a raw event came from.
type Source string

const (
	SourceAPI         Source = "api"
	SourceFirewall    Source = "firewall"
	SourceNetwork     Source = "network"
	SourceCrowdStrike Source = "crowdstrike"
	SourceAWS         Source = "aws"
	SourceM365        Source = "m365"
	SourceAD          Source = "ad"
)

// Sources lists every supported source tag in a stable order.
var Sources = []Source{
	SourceAPI,
	SourceFirewall,
	SourceNetwork,
	SourceCrowdStrike,
	SourceAWS,
	SourceM365,
	SourceAD,
}

// Valid reports whether s is one of the supported source tags.
func (s Source) Valid() bool {
	for _, known := range Sources {
		if s == known {
			return true
		}
	}
	return false
}

// CloudContext carries cloud account details for cloud audit events.
type CloudContext struct {
	AccountID string `json:"account_id,omitempty"`
	Region    string `json:"region,omitempty"`
	Service   string `json:"service,omitempty"`
}

// IsZero reports whether no cloud field is set.
func (c *CloudContext) IsZero() bool {
	return c == nil || (c.AccountID == "" && c.Region == "" && c.Service == "")
}

// CentralLog is the source-agnostic shape every normalizer produces.
// Raw holds the original payload untouched.
type CentralLog struct {
	Timestamp time.Time `json:"timestamp"`
	Tenant    string    `json:"tenant" validate:"required"`
	TenantID  int64     `json:"tenantId" validate:"gt=0"`
	Source    Source    `json:"source" validate:"required,oneof=api firewall network crowdstrike aws m365 ad"`

	Vendor       string `json:"vendor,omitempty"`
	Product      string `json:"product,omitempty"`
	EventType    string `json:"event_type" validate:"required"`
	EventSubtype string `json:"event_subtype,omitempty"`
	Severity     *int   `json:"severity,omitempty" validate:"omitempty,min=0,max=10"`
	Action       string `json:"action,omitempty"`

	SrcIP    string `json:"src_ip,omitempty"`
	SrcPort  *int   `json:"src_port,omitempty" validate:"omitempty,min=0,max=65535"`
	DstIP    string `json:"dst_ip,omitempty"`
	DstPort  *int   `json:"dst_port,omitempty" validate:"omitempty,min=0,max=65535"`
	Protocol string `json:"protocol,omitempty"`

	User    string `json:"user,omitempty"`
	Host    string `json:"host,omitempty"`
	Process string `json:"process,omitempty"`

	URL        string `json:"url,omitempty"`
	HTTPMethod string `json:"http_method,omitempty"`
	StatusCode *int   `json:"status_code,omitempty"`

	RuleName string `json:"rule_name,omitempty"`
	RuleID   string `json:"rule_id,omitempty"`

	Cloud *CloudContext `json:"cloud,omitempty"`
	Tags  []string      `json:"tags,omitempty"`
	Raw   any           `json:"raw"`
}

// LogEvent is a persisted CentralLog with its sequence id.
type LogEvent struct {
	ID int64 `json:"id"`
	CentralLog
	CreatedAt time.Time `json:"created_at"`
}
