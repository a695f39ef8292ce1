package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/centrallog/common/middleware"
)

func TestNewWithWriter_Formats(t *testing.T) {
	tests := []struct {
		name   string
		format string
		isJSON bool
	}{
		{name: "json", format: "json", isJSON: true},
		{name: "text", format: "text", isJSON: false},
		{name: "default is json", format: "", isJSON: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewWithWriter(&buf, slog.LevelInfo, tt.format)
			logger.Info("hello", Tenant("acme"))

			var decoded map[string]any
			err := json.Unmarshal(buf.Bytes(), &decoded)
			if tt.isJSON {
				require.NoError(t, err)
				assert.Equal(t, "acme", decoded[FieldTenant])
			} else {
				assert.Error(t, err)
				assert.Contains(t, buf.String(), "tenant=acme")
			}
		})
	}
}

func TestWithContext_RequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, slog.LevelInfo, "json")

	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-123")
	logger.InfoContext(ctx, "with id")

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "req-123", decoded[FieldRequestID])

	buf.Reset()
	logger.InfoContext(context.Background(), "without id")
	decoded = map[string]any{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	_, ok := decoded[FieldRequestID]
	assert.False(t, ok)
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, slog.LevelWarn, "json")

	logger.Info("dropped")
	assert.Empty(t, buf.String())

	logger.Warn("kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestFieldHelpers(t *testing.T) {
	tests := []struct {
		name string
		attr slog.Attr
		key  string
		want string
	}{
		{"tenant", Tenant("acme"), FieldTenant, "acme"},
		{"tenant id", TenantID(7), FieldTenantID, "7"},
		{"source", Source("firewall"), FieldSource, "firewall"},
		{"rule", Rule("Multiple Failed Login Attempts"), FieldRule, "Multiple Failed Login Attempts"},
		{"alert id", AlertID(42), FieldAlertID, "42"},
		{"event id", EventID(9), FieldEventID, "9"},
		{"duration", Duration(1500 * time.Millisecond), FieldDuration, "1500"},
		{"error", Error(errors.New("boom")), FieldError, "boom"},
		{"nil error", Error(nil), FieldError, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.key, tt.attr.Key)
			assert.Equal(t, tt.want, tt.attr.Value.String())
		})
	}
}

func TestRequestID_ThroughDerivedLoggers(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, slog.LevelInfo, "json").With(Service("centrallog"))
	plain := logger.Logger.With(Tenant("acme"))

	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-9")
	plain.WarnContext(ctx, "from a service")

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "req-9", decoded[FieldRequestID])
	assert.Equal(t, "acme", decoded[FieldTenant])
	assert.Equal(t, "centrallog", decoded[FieldService])
}

func TestNop(t *testing.T) {
	assert.NotPanics(t, func() { Nop().Error("nothing", Count(1)) })
}

func TestWith(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, slog.LevelInfo, "json").With(Service("centrallog"))
	logger.Info("started")

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "centrallog", decoded[FieldService])
}
