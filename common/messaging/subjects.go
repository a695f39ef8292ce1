package messaging

// Alert lifecycle subjects, following {domain}.{resource}.{action}.
const (
	SubjectAlertsCreated  = "centrallog.alerts.created"
	SubjectAlertsUpdated  = "centrallog.alerts.updated"
	SubjectAlertsResolved = "centrallog.alerts.resolved"

	// SubjectAlertsAll matches every alert lifecycle subject.
	SubjectAlertsAll = "centrallog.alerts.>"
)
