package normalizer

import (
	"context"

	"github.com/telhawk-systems/centrallog/internal/models"
)

// CrowdStrike normalizes Falcon endpoint detections.
type CrowdStrike struct {
	base
}

func (n *CrowdStrike) Normalize(ctx context.Context, raw map[string]any) (*models.CentralLog, error) {
	rec, err := n.envelope(ctx, raw)
	if err != nil {
		return nil, err
	}

	rec.Timestamp = n.eventTime(raw, "@timestamp", "timestamp")
	rec.Vendor = "CrowdStrike"
	rec.Product = "Falcon"
	rec.EventType = firstString(raw, "event_type", "eventType")
	if rec.EventType == "" {
		rec.EventType = "unknown"
	}
	rec.EventSubtype = firstString(raw, "event_subtype")
	rec.Severity = firstInt(raw, "severity")
	rec.Action = firstString(raw, "action")
	rec.Host = firstString(raw, "host", "hostname", "ComputerName")
	rec.Process = firstString(raw, "process", "ProcessName")
	rec.User = firstString(raw, "user", "UserName")
	rec.SrcIP = firstString(raw, "ip", "src_ip", "source_ip", "client_ip")

	rec.Tags = tagsFor(
		[2]string{"sha256", firstString(raw, "sha256")},
		[2]string{"md5", firstString(raw, "md5")},
		[2]string{"detection", firstString(raw, "detection_name")},
	)
	return rec, nil
}
