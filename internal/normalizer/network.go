package normalizer

import (
	"context"

	"github.com/telhawk-systems/centrallog/internal/models"
	"github.com/telhawk-systems/centrallog/internal/syslog"
)

// Network normalizes router and switch syslog lines. Device specifics
// such as interface and MAC are kept as tags.
type Network struct {
	base
	parser *syslog.Parser
}

func (n *Network) Normalize(ctx context.Context, raw map[string]any) (*models.CentralLog, error) {
	rec, err := n.envelope(ctx, raw)
	if err != nil {
		return nil, err
	}

	text, frag := parseRawText(n.parser, raw)
	if text != "" {
		rec.Raw = text
	}

	rec.Timestamp = n.clock.Now()
	if frag.Timestamp != nil {
		rec.Timestamp = *frag.Timestamp
	}
	rec.Host = frag.Hostname

	rec.EventType = frag.First("event", "event_type")
	if rec.EventType == "" {
		rec.EventType = "network_event"
	}
	rec.Vendor = frag.First("vendor")
	rec.Product = frag.First("product")
	if rec.Product == "" {
		rec.Product = "router"
	}
	rec.Action = frag.First("action", "act")
	rec.Severity = intField(frag.First("severity"))
	applyNetworkFields(rec, frag)

	rec.Tags = tagsFor(
		[2]string{"interface", frag.First("if", "interface")},
		[2]string{"mac", frag.First("mac")},
		[2]string{"reason", frag.First("reason")},
		[2]string{"status", frag.First("status", "state")},
	)
	return rec, nil
}
