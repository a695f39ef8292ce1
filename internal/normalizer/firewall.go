package normalizer

import (
	"context"
	"strings"

	"github.com/telhawk-systems/centrallog/internal/models"
	"github.com/telhawk-systems/centrallog/internal/syslog"
)

// Firewall normalizes syslog lines from firewalls. The line is read from
// the "raw" field of the envelope.
type Firewall struct {
	base
	parser *syslog.Parser
}

var firewallSeverity = map[string]int{
	"deny":       7,
	"block":      7,
	"quarantine": 7,
	"alert":      5,
	"warn":       5,
	"allow":      2,
	"permit":     2,
}

// ActionSeverity maps a firewall action to a severity. Unknown or empty
// actions are medium.
func ActionSeverity(action string) int {
	if sev, ok := firewallSeverity[strings.ToLower(action)]; ok {
		return sev
	}
	return 5
}

func (n *Firewall) Normalize(ctx context.Context, raw map[string]any) (*models.CentralLog, error) {
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

	action := frag.First("action", "act")
	rec.Action = action
	rec.Vendor = frag.First("vendor", "vend")
	rec.Product = frag.First("product", "prod")
	if action != "" {
		rec.EventType = "firewall_" + action
	} else {
		rec.EventType = "firewall_unknown"
	}

	if sev := intField(frag.First("severity")); sev != nil {
		rec.Severity = sev
	} else {
		rec.Severity = intp(ActionSeverity(action))
	}

	applyNetworkFields(rec, frag)
	rec.RuleName = frag.First("rule", "rule_name")
	rec.RuleID = frag.First("rule_id", "ruleid")
	return rec, nil
}

// parseRawText extracts the syslog line carried in raw["raw"] and parses
// it. An absent line yields an empty fragment.
func parseRawText(p *syslog.Parser, raw map[string]any) (string, syslog.Fragment) {
	text, _ := raw["raw"].(string)
	if text == "" {
		return "", syslog.Fragment{Fields: map[string]string{}}
	}
	return text, p.Parse(text)
}

// applyNetworkFields copies the 5-tuple aliases shared by syslog sources.
func applyNetworkFields(rec *models.CentralLog, frag syslog.Fragment) {
	rec.SrcIP = frag.First("src", "src_ip", "source")
	rec.DstIP = frag.First("dst", "dst_ip", "destination", "dest")
	rec.Protocol = frag.First("protocol", "proto")
	rec.SrcPort = intField(frag.First("src_port", "sport"))
	rec.DstPort = intField(frag.First("dst_port", "dport"))
}
