package normalizer

import (
	"context"
	"strings"

	"github.com/telhawk-systems/centrallog/internal/models"
)

// M365 normalizes Microsoft 365 unified audit records.
type M365 struct {
	base
}

var m365Actions = []rule[string]{
	{[]string{"login", "loggedin"}, "login"},
	{[]string{"logout", "loggedout"}, "logout"},
	{[]string{"create"}, "create"},
	{[]string{"delete"}, "delete"},
	{[]string{"update", "modify"}, "update"},
	{[]string{"read", "view", "access"}, "read"},
}

var m365Severity = []rule[int]{
	{[]string{"admin", "delete"}, 5},
}

func (n *M365) Normalize(ctx context.Context, raw map[string]any) (*models.CentralLog, error) {
	rec, err := n.envelope(ctx, raw)
	if err != nil {
		return nil, err
	}

	rec.Timestamp = n.eventTime(raw, "@timestamp", "timestamp", "CreationTime")
	rec.Vendor = "Microsoft"
	rec.Product = "Microsoft 365"

	operation := firstString(raw, "event_type", "Operation")
	rec.EventType = operation
	if rec.EventType == "" {
		rec.EventType = "unknown"
	}
	workload := firstString(raw, "Workload", "workload")
	rec.EventSubtype = workload
	rec.User = firstString(raw, "user", "UserId", "UserKey")
	rec.SrcIP = firstString(raw, "ip", "ClientIP", "client_ip")
	rec.URL = firstString(raw, "ObjectId", "url")
	rec.Action = classify(operation, m365Actions, "")

	status := firstString(raw, "status", "Status")
	if strings.Contains(strings.ToLower(status), "fail") {
		rec.Severity = intp(6)
	} else {
		rec.Severity = intp(classify(operation, m365Severity, 3))
	}

	rec.Tags = tagsFor(
		[2]string{"status", status},
		[2]string{"workload", firstString(raw, "workload", "Workload")},
	)
	return rec, nil
}
