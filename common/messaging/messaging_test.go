package messaging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJSONMessage_RoundTrip(t *testing.T) {
	msg, err := NewJSONMessage(SubjectAlertsCreated, map[string]any{"id": 4})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":4}`, string(msg.Data))

	var out struct{ ID int }
	require.NoError(t, msg.Decode(&out))
	assert.Equal(t, 4, out.ID)
}

func TestNewJSONMessage_Unencodable(t *testing.T) {
	_, err := NewJSONMessage(SubjectAlertsCreated, make(chan int))
	assert.Error(t, err)
}

func TestMessage_TenantID(t *testing.T) {
	tests := []struct {
		name   string
		header map[string]string
		id     int64
		ok     bool
	}{
		{"missing", nil, 0, false},
		{"valid", map[string]string{HeaderTenantID: "42"}, 42, true},
		{"malformed", map[string]string{HeaderTenantID: "acme"}, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, ok := (&Message{Header: tt.header}).TenantID()
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.id, id)
		})
	}
}

func TestMessage_DecodeError(t *testing.T) {
	msg := &Message{Subject: SubjectAlertsUpdated, Data: []byte("{")}
	err := msg.Decode(&struct{}{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), SubjectAlertsUpdated)
}
