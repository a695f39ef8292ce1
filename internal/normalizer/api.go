package normalizer

import (
	"context"

	"github.com/telhawk-systems/centrallog/internal/models"
)

// API passes generic application events through almost verbatim.
type API struct {
	base
}

func (n *API) Normalize(ctx context.Context, raw map[string]any) (*models.CentralLog, error) {
	rec, err := n.envelope(ctx, raw)
	if err != nil {
		return nil, err
	}

	rec.Timestamp = n.eventTime(raw, "@timestamp", "timestamp")
	rec.EventType = firstString(raw, "event_type")
	if rec.EventType == "" {
		rec.EventType = "unknown"
	}
	rec.EventSubtype = firstString(raw, "event_subtype")
	rec.Vendor = firstString(raw, "vendor")
	rec.Product = firstString(raw, "product")
	rec.User = firstString(raw, "user")
	rec.SrcIP = firstString(raw, "ip", "src_ip", "source_ip", "client_ip")
	rec.DstIP = firstString(raw, "dst_ip")
	rec.Severity = firstInt(raw, "severity")
	rec.Action = firstString(raw, "action")
	rec.URL = firstString(raw, "url")
	rec.HTTPMethod = firstString(raw, "method", "http_method")
	rec.StatusCode = firstInt(raw, "status_code")
	rec.Host = firstString(raw, "host")
	return rec, nil
}
