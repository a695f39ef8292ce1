package logging

import (
	"log/slog"
	"time"
)

// Common field names for consistent logging across components.
const (
	FieldService   = "service"
	FieldRequestID = "request_id"
	FieldTenant    = "tenant"
	FieldTenantID  = "tenant_id"
	FieldSource    = "source"
	FieldEventType = "event_type"
	FieldEventID   = "event_id"
	FieldAlertID   = "alert_id"
	FieldRule      = "rule"
	FieldUser      = "user"
	FieldIP        = "ip"
	FieldCount     = "count"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldDuration  = "duration_ms"
	FieldError     = "error"
)

func Service(name string) slog.Attr {
	return slog.String(FieldService, name)
}

func Tenant(name string) slog.Attr {
	return slog.String(FieldTenant, name)
}

func TenantID(id int64) slog.Attr {
	return slog.Int64(FieldTenantID, id)
}

func Source(source string) slog.Attr {
	return slog.String(FieldSource, source)
}

func EventType(t string) slog.Attr {
	return slog.String(FieldEventType, t)
}

func EventID(id int64) slog.Attr {
	return slog.Int64(FieldEventID, id)
}

func AlertID(id int64) slog.Attr {
	return slog.Int64(FieldAlertID, id)
}

// Rule returns a slog attribute for a correlation rule name.
func Rule(name string) slog.Attr {
	return slog.String(FieldRule, name)
}

func User(name string) slog.Attr {
	return slog.String(FieldUser, name)
}

func IP(ip string) slog.Attr {
	return slog.String(FieldIP, ip)
}

func Count(n int) slog.Attr {
	return slog.Int(FieldCount, n)
}

func Method(method string) slog.Attr {
	return slog.String(FieldMethod, method)
}

func Path(path string) slog.Attr {
	return slog.String(FieldPath, path)
}

func Status(code int) slog.Attr {
	return slog.Int(FieldStatus, code)
}

// Duration returns a slog attribute for an elapsed duration in milliseconds.
func Duration(d time.Duration) slog.Attr {
	return slog.Int64(FieldDuration, d.Milliseconds())
}

// Error returns a slog attribute for an error. A nil error logs as an empty string.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(FieldError, "")
	}
	return slog.String(FieldError, err.Error())
}
