package consumer

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/centrallog/common/logging"
	"github.com/telhawk-systems/centrallog/internal/ingest"
	"github.com/telhawk-systems/centrallog/internal/normalizer"
	"github.com/telhawk-systems/centrallog/internal/storage"
	"github.com/telhawk-systems/centrallog/internal/tenant"
)

type fakeReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	fetchErrs []error
	committed []int64
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.fetchErrs) > 0 {
		err := r.fetchErrs[0]
		r.fetchErrs = r.fetchErrs[1:]
		return kafka.Message{}, err
	}
	if len(r.msgs) == 0 {
		return kafka.Message{}, io.EOF
	}
	m := r.msgs[0]
	r.msgs = r.msgs[1:]
	return m, nil
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.closed = true
	return nil
}

func newPipeline(t *testing.T) (*storage.MemoryStore, *ingest.Service) {
	t.Helper()
	store := storage.NewMemoryStore(nil)
	router := normalizer.NewRouter(normalizer.All(tenant.NewResolver(store, nil), nil, nil)...)
	return store, ingest.NewService(router, store)
}

func msg(offset int64, value string) kafka.Message {
	return kafka.Message{Topic: "raw-events", Offset: offset, Value: []byte(value)}
}

func countEvents(t *testing.T, store *storage.MemoryStore) int {
	t.Helper()
	_, total, err := store.QueryLogEvents(context.Background(), storage.LogFilter{})
	require.NoError(t, err)
	return total
}

func TestConfig_Validate(t *testing.T) {
	valid := Config{Brokers: []string{"localhost:9092"}, Topic: "raw-events", GroupID: "centrallog"}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no brokers", func(c *Config) { c.Brokers = nil }},
		{"no topic", func(c *Config) { c.Topic = "" }},
		{"no group", func(c *Config) { c.GroupID = "" }},
		{"bad offset", func(c *Config) { c.StartOffset = "middle" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestHandleMessage(t *testing.T) {
	ts := time.Now().UTC().Format(time.RFC3339)
	tests := []struct {
		name   string
		value  string
		status string
		stored int
	}{
		{
			name:   "single event",
			value:  `{"tenant":"acme","source":"api","event_type":"login_failed","user":"alice","ip":"10.0.0.1","@timestamp":"` + ts + `"}`,
			status: StatusOK,
			stored: 1,
		},
		{
			name: "array of events",
			value: `[{"tenant":"acme","source":"api","event_type":"login_failed","user":"alice","@timestamp":"` + ts + `"},
			         {"tenant":"acme","source":"api","event_type":"login_success","user":"alice","@timestamp":"` + ts + `"}]`,
			status: StatusOK,
			stored: 2,
		},
		{
			name:   "partially rejected array",
			value:  `[{"tenant":"acme","source":"api","event_type":"x","@timestamp":"` + ts + `"},{"source":"api"}]`,
			status: StatusPartial,
			stored: 1,
		},
		{name: "missing tenant", value: `{"source":"api","event_type":"x"}`, status: ingest.KindValidation},
		{name: "unknown source", value: `{"tenant":"acme","source":"mainframe"}`, status: ingest.KindUnsupportedSource},
		{name: "not json", value: `tenant=acme`, status: StatusDecode},
		{name: "empty", value: "  ", status: StatusDecode},
		{name: "empty array", value: `[]`, status: StatusDecode},
		{name: "null", value: `null`, status: StatusDecode},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, svc := newPipeline(t)
			c := NewWithReader(&fakeReader{}, svc, logging.Nop().Logger)

			assert.Equal(t, tt.status, c.HandleMessage(context.Background(), msg(0, tt.value)))
			assert.Equal(t, tt.stored, countEvents(t, store))
		})
	}
}

func TestRun_CommitsEveryMessage(t *testing.T) {
	store, svc := newPipeline(t)
	reader := &fakeReader{msgs: []kafka.Message{
		msg(10, `{"tenant":"acme","source":"api","event_type":"login_failed","user":"alice"}`),
		msg(11, `garbage`),
		msg(12, `{"source":"api"}`),
		msg(13, `{"tenant":"acme","source":"api","event_type":"login_success","user":"alice"}`),
	}}
	c := NewWithReader(reader, svc, logging.Nop().Logger)

	require.NoError(t, c.Run(context.Background()))
	assert.Equal(t, []int64{10, 11, 12, 13}, reader.committed)
	assert.Equal(t, 2, countEvents(t, store))
}

func TestRun_RetriesFetchErrors(t *testing.T) {
	_, svc := newPipeline(t)
	reader := &fakeReader{
		fetchErrs: []error{errors.New("broker unavailable")},
		msgs:      []kafka.Message{msg(1, `{"tenant":"acme","source":"api","event_type":"x"}`)},
	}
	c := NewWithReader(reader, svc, logging.Nop().Logger)
	c.backoff = time.Millisecond

	require.NoError(t, c.Run(context.Background()))
	assert.Equal(t, []int64{1}, reader.committed)
}

func TestRun_StopsOnCancel(t *testing.T) {
	_, svc := newPipeline(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	reader := &fakeReader{fetchErrs: []error{context.Canceled}}
	c := NewWithReader(reader, svc, logging.Nop().Logger)
	assert.NoError(t, c.Run(ctx))
	assert.Empty(t, reader.committed)
}

func TestClose(t *testing.T) {
	reader := &fakeReader{}
	c := NewWithReader(reader, nil, nil)
	require.NoError(t, c.Close())
	assert.True(t, reader.closed)
}
