package correlation

import "time"

// RuleType selects how a rule is evaluated.
type RuleType string

const (
	// RuleTypeEventCount counts matching events for tenant, user and source IP.
	RuleTypeEventCount RuleType = "event_count"
	// RuleTypeValueCount counts distinct source IPs for tenant and user.
	RuleTypeValueCount RuleType = "value_count"
	// RuleTypeAutoResolve resolves every active alert for tenant and user.
	RuleTypeAutoResolve RuleType = "auto_resolve"
)

// Rule names.
const (
	RuleMultipleFailedLogins   = "Multiple Failed Login Attempts"
	RuleDistributedFailedLogin = "Distributed Failed Login Attack"
	RuleAutoResolveOnSuccess   = "Auto Resolve On Login Success"
)

// Event types the default rules react to.
const (
	EventLoginFailed    = "login_failed"
	EventLoginSuccess   = "login_success"
	EventLoginSucceeded = "login_successed"
)

// Rule is one correlation rule.
type Rule struct {
	Name       string
	Type       RuleType
	EventTypes []string
	Window     time.Duration
	Threshold  int
	Operator   string
}

// Matches reports whether the rule reacts to eventType.
func (r Rule) Matches(eventType string) bool {
	for _, t := range r.EventTypes {
		if t == eventType {
			return true
		}
	}
	return false
}

// DefaultRules returns the built-in rule set.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:       RuleMultipleFailedLogins,
			Type:       RuleTypeEventCount,
			EventTypes: []string{EventLoginFailed},
			Window:     5 * time.Minute,
			Threshold:  3,
			Operator:   "gte",
		},
		{
			Name:       RuleDistributedFailedLogin,
			Type:       RuleTypeValueCount,
			EventTypes: []string{EventLoginFailed},
			Window:     10 * time.Minute,
			Threshold:  3,
			Operator:   "gte",
		},
		{
			Name:       RuleAutoResolveOnSuccess,
			Type:       RuleTypeAutoResolve,
			EventTypes: []string{EventLoginSuccess, EventLoginSucceeded},
		},
	}
}

// meetsThreshold checks if count meets threshold with given operator
func meetsThreshold(count, threshold int, operator string) bool {
	switch operator {
	case "gt":
		return count > threshold
	case "gte":
		return count >= threshold
	case "lt":
		return count < threshold
	case "lte":
		return count <= threshold
	case "eq":
		return count == threshold
	case "ne":
		return count != threshold
	default:
		return count > threshold
	}
}
