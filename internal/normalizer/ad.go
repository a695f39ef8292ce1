package normalizer

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/telhawk-systems/centrallog/internal/models"
)

// AD normalizes Windows security log events from domain controllers.
type AD struct {
	base
}

var adEventTypes = map[int]string{
	4624: "LogonSuccess",
	4625: "LogonFailed",
	4634: "Logoff",
	4720: "UserCreated",
	4726: "UserDeleted",
	4728: "UserAddedToGroup",
	4732: "MemberAddedToGroup",
	4740: "UserLocked",
	4767: "UserUnlocked",
	4768: "KerberosAuthTicket",
	4769: "KerberosServiceTicket",
	4776: "CredentialValidation",
}

var (
	adHighSeverity   = []int{4625, 4740, 4720, 4726}
	adMediumSeverity = []int{4624, 4728, 4732}
)

// ADEventType names a Windows event id. Zero means no id.
func ADEventType(id int) string {
	if id == 0 {
		return "unknown"
	}
	if name, ok := adEventTypes[id]; ok {
		return name
	}
	return fmt.Sprintf("EventID_%d", id)
}

func adAction(eventType string, id int) string {
	t := strings.ToLower(eventType)
	switch {
	case strings.Contains(t, "logon") && !strings.Contains(t, "failed"):
		return "login"
	case strings.Contains(t, "logoff"):
		return "logout"
	case strings.Contains(t, "created"):
		return "create"
	case strings.Contains(t, "deleted"):
		return "delete"
	case strings.Contains(t, "failed"):
		return "deny"
	}

	switch id {
	case 4624:
		return "login"
	case 4625:
		return "deny"
	case 4634:
		return "logout"
	}
	return ""
}

func adSeverity(id int) int {
	switch {
	case id == 0:
		return 5
	case slices.Contains(adHighSeverity, id):
		return 7
	case slices.Contains(adMediumSeverity, id):
		return 5
	}
	return 3
}

func (n *AD) Normalize(ctx context.Context, raw map[string]any) (*models.CentralLog, error) {
	rec, err := n.envelope(ctx, raw)
	if err != nil {
		return nil, err
	}

	var id int
	if p := firstInt(raw, "event_id", "EventID"); p != nil {
		id = *p
	}

	rec.Timestamp = n.eventTime(raw, "@timestamp", "timestamp", "TimeGenerated")
	rec.Vendor = "Microsoft"
	rec.Product = "Active Directory"
	rec.EventType = firstString(raw, "event_type")
	if rec.EventType == "" {
		rec.EventType = ADEventType(id)
	}
	if id != 0 {
		rec.EventSubtype = "EventID:" + strconv.Itoa(id)
	}

	rec.User = firstString(raw, "user", "TargetUserName", "SubjectUserName")
	rec.Host = firstString(raw, "host", "Computer", "Workstation")
	rec.SrcIP = firstString(raw, "ip", "IpAddress", "src_ip")
	rec.Action = adAction(rec.EventType, id)
	rec.Severity = intp(adSeverity(id))

	var eventID string
	if id != 0 {
		eventID = strconv.Itoa(id)
	}
	rec.Tags = tagsFor(
		[2]string{"logon_type", firstString(raw, "logon_type", "LogonType")},
		[2]string{"event_id", eventID},
	)
	return rec, nil
}
