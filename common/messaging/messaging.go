// Package messaging is the broker-neutral surface used to fan alert
// lifecycle events out to subscribers.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Header keys set on alert lifecycle messages.
const (
	HeaderTenantID = "Centrallog-Tenant-Id"
	HeaderAlertID  = "Centrallog-Alert-Id"
	HeaderAction   = "Centrallog-Action"
)

// Message is a single payload on a subject. Header values are
// single-valued; brokers with multi-valued headers keep the first.
type Message struct {
	Subject  string
	Data     []byte
	Header   map[string]string
	Received time.Time
}

// NewJSONMessage encodes v as the message body.
func NewJSONMessage(subject string, v any) (*Message, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", subject, err)
	}
	return &Message{Subject: subject, Data: data, Header: map[string]string{}}, nil
}

// Set stores a header value, allocating the header map if needed.
func (m *Message) Set(key, value string) *Message {
	if m.Header == nil {
		m.Header = map[string]string{}
	}
	m.Header[key] = value
	return m
}

// TenantID parses HeaderTenantID. ok is false when it is missing or malformed.
func (m *Message) TenantID() (id int64, ok bool) {
	raw, found := m.Header[HeaderTenantID]
	if !found {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	return id, err == nil
}

// Decode unmarshals the JSON body into v.
func (m *Message) Decode(v any) error {
	if err := json.Unmarshal(m.Data, v); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", m.Subject, err)
	}
	return nil
}

// Handler processes a delivered message. Returned errors are logged by the
// subscriber and do not stop delivery.
type Handler func(ctx context.Context, msg *Message) error

// Publisher sends messages.
type Publisher interface {
	Publish(ctx context.Context, msg *Message) error
	Close() error
}

// Subscriber delivers messages matching subject to h until the returned
// function is called.
type Subscriber interface {
	Subscribe(subject string, h Handler) (unsubscribe func() error, err error)
	Close() error
}
