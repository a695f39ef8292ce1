package normalizer

import (
	"context"

	"github.com/telhawk-systems/centrallog/internal/models"
)

// AWS normalizes CloudTrail records.
type AWS struct {
	base
}

var awsActions = []rule[string]{
	{[]string{"create"}, "create"},
	{[]string{"delete"}, "delete"},
	{[]string{"update", "modify"}, "update"},
	{[]string{"list", "describe", "get"}, "read"},
}

var awsSeverity = []rule[int]{
	{[]string{"delete", "terminate"}, 7},
	{[]string{"create", "update"}, 5},
}

func (n *AWS) Normalize(ctx context.Context, raw map[string]any) (*models.CentralLog, error) {
	rec, err := n.envelope(ctx, raw)
	if err != nil {
		return nil, err
	}
	rec.Timestamp = n.eventTime(raw, "@timestamp", "timestamp", "eventTime")
	rec.Vendor = "Amazon Web Services"
	rec.Product = "CloudTrail"

	eventName := firstString(raw, "event_type", "eventName")
	rec.EventType = eventName
	if rec.EventType == "" {
		rec.EventType = "unknown"
	}
	rec.EventSubtype = firstString(raw, "eventSource")
	rec.User = firstString(raw, "user", "userIdentity.userName", "userIdentity.principalId")
	rec.SrcIP = firstString(raw, "sourceIPAddress", "ip")

	cloud := &models.CloudContext{
		AccountID: firstString(raw, "cloud.account_id", "accountId", "recipientAccountId"),
		Region:    firstString(raw, "cloud.region", "awsRegion"),
		Service:   firstString(raw, "cloud.service", "eventSource"),
	}
	if !cloud.IsZero() {
		rec.Cloud = cloud
	}

	rec.Action = classify(eventName, awsActions, "")
	rec.Severity = intp(classify(eventName, awsSeverity, 3))
	return rec, nil
}
