package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/centrallog/internal/correlation"
	"github.com/telhawk-systems/centrallog/internal/models"
	"github.com/telhawk-systems/centrallog/internal/normalizer"
	"github.com/telhawk-systems/centrallog/internal/storage"
	"github.com/telhawk-systems/centrallog/internal/tenant"
)

type fakeIndexer struct {
	mu      sync.Mutex
	single  int
	batched int
	err     error
}

func (f *fakeIndexer) Index(context.Context, *models.LogEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.single++
	return f.err
}

func (f *fakeIndexer) IndexBatch(_ context.Context, evs []*models.LogEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batched += len(evs)
	return f.err
}

func newTestService(t *testing.T, store storage.Store, opts ...Option) *Service {
	t.Helper()
	router := normalizer.NewRouter(normalizer.All(tenant.NewResolver(store, nil), nil, nil)...)
	opts = append([]Option{WithCorrelator(correlation.NewEngine(store))}, opts...)
	return NewService(router, store, opts...)
}

func failedLogin(user, ip string) map[string]any {
	return map[string]any{
		"tenant":     "T",
		"source":     "api",
		"event_type": "login_failed",
		"user":       user,
		"ip":         ip,
		"@timestamp": time.Now().UTC().Format(time.RFC3339),
	}
}

func TestErrorKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&normalizer.ValidationError{Missing: []string{"tenant"}}, KindValidation},
		{&normalizer.UnsupportedSourceError{Source: "x"}, KindUnsupportedSource},
		{&normalizer.NormalizationError{Source: models.SourceAPI, Err: errors.New("x")}, KindNormalization},
		{fmt.Errorf("wrapped: %w", &storage.PersistenceError{Op: "insert", Err: errors.New("x")}), KindPersistence},
		{errors.New("boom"), KindInternal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ErrorKind(tt.err), tt.err.Error())
	}
}

func TestNormalizeAndPersist(t *testing.T) {
	store := storage.NewMemoryStore(nil)
	idx := &fakeIndexer{}
	svc := newTestService(t, store, WithIndexer(idx))

	ev, err := svc.NormalizeAndPersist(context.Background(), failedLogin("alice", "1.2.3.4"))
	require.NoError(t, err)
	assert.Positive(t, ev.ID)
	assert.Equal(t, "login_failed", ev.EventType)
	assert.Equal(t, 1, idx.single)

	_, total, err := store.QueryLogEvents(context.Background(), storage.LogFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestNormalizeAndPersist_Rejections(t *testing.T) {
	svc := newTestService(t, storage.NewMemoryStore(nil))

	_, err := svc.NormalizeAndPersist(context.Background(), map[string]any{"source": "api"})
	assert.Equal(t, KindValidation, ErrorKind(err))

	_, err = svc.NormalizeAndPersist(context.Background(), map[string]any{"tenant": "T", "source": "syslog"})
	assert.Equal(t, KindUnsupportedSource, ErrorKind(err))

	_, err = svc.NormalizeAndPersist(context.Background(), map[string]any{"tenant": "T", "source": "api", "severity": 99})
	assert.Equal(t, KindNormalization, ErrorKind(err))
}

type brokenLogStore struct {
	*storage.MemoryStore
}

func (brokenLogStore) InsertLogEvent(context.Context, *models.CentralLog) (*models.LogEvent, error) {
	return nil, errors.New("disk full")
}

func TestNormalizeAndPersist_PersistenceError(t *testing.T) {
	svc := newTestService(t, brokenLogStore{storage.NewMemoryStore(nil)})

	_, err := svc.NormalizeAndPersist(context.Background(), failedLogin("alice", "1.2.3.4"))
	var pe *storage.PersistenceError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, KindPersistence, ErrorKind(err))
}

func TestNormalizeAndPersist_IndexFailureIsNotFatal(t *testing.T) {
	svc := newTestService(t, storage.NewMemoryStore(nil), WithIndexer(&fakeIndexer{err: errors.New("cluster red")}))
	_, err := svc.NormalizeAndPersist(context.Background(), failedLogin("alice", "1.2.3.4"))
	assert.NoError(t, err)
}

type brokenAlertStore struct {
	*storage.MemoryStore
}

func (brokenAlertStore) UpsertOpenAlert(context.Context, storage.AlertUpsert) (*models.Alert, bool, error) {
	return nil, false, errors.New("alerts table locked")
}

func TestNormalizeAndPersist_CorrelationFailureKeepsEvent(t *testing.T) {
	store := brokenAlertStore{storage.NewMemoryStore(nil)}
	svc := newTestService(t, store)

	for range 3 {
		_, err := svc.NormalizeAndPersist(context.Background(), failedLogin("alice", "1.2.3.4"))
		require.NoError(t, err)
	}
	_, total, err := store.QueryLogEvents(context.Background(), storage.LogFilter{})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
}

func TestNormalizeAndPersist_CancelledContextStillCorrelates(t *testing.T) {
	store := storage.NewMemoryStore(nil)
	svc := newTestService(t, store)

	for range 2 {
		_, err := svc.NormalizeAndPersist(context.Background(), failedLogin("alice", "1.2.3.4"))
		require.NoError(t, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.NormalizeAndPersist(ctx, failedLogin("alice", "1.2.3.4"))
	require.NoError(t, err)

	alerts, err := store.ListAlerts(context.Background(), storage.AlertFilter{})
	require.NoError(t, err)
	assert.Len(t, alerts, 1)
}

func TestIngestBatch(t *testing.T) {
	store := storage.NewMemoryStore(nil)
	idx := &fakeIndexer{}
	svc := newTestService(t, store, WithIndexer(idx), WithBatchLimits(4, 100))

	items := []map[string]any{
		failedLogin("alice", "1.2.3.4"),
		{"source": "api"},
		failedLogin("alice", "1.2.3.4"),
		{"tenant": "T", "source": "mainframe"},
		failedLogin("alice", "1.2.3.4"),
	}
	res, err := svc.IngestBatch(context.Background(), items)
	require.NoError(t, err)

	assert.Equal(t, 5, res.Total)
	assert.Equal(t, 3, res.Succeeded)
	assert.Equal(t, 2, res.Failed)
	require.Len(t, res.Results, 3)
	assert.Equal(t, []int{0, 2, 4}, []int{res.Results[0].Index, res.Results[1].Index, res.Results[2].Index})
	require.Len(t, res.Errors, 2)
	assert.Equal(t, 1, res.Errors[0].Index)
	assert.Equal(t, KindValidation, res.Errors[0].Kind)
	assert.Contains(t, res.Errors[0].Error, "tenant")
	assert.Equal(t, 3, res.Errors[1].Index)
	assert.Equal(t, KindUnsupportedSource, res.Errors[1].Kind)
	assert.Equal(t, 3, idx.batched)
	assert.Zero(t, idx.single)

	alerts, err := store.ListAlerts(context.Background(), storage.AlertFilter{})
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, correlation.RuleMultipleFailedLogins, alerts[0].RuleName)
}

func TestIngestBatch_Limits(t *testing.T) {
	svc := newTestService(t, storage.NewMemoryStore(nil), WithBatchLimits(0, 2))

	_, err := svc.IngestBatch(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyBatch)

	_, err = svc.IngestBatch(context.Background(), []map[string]any{{}, {}, {}})
	assert.ErrorIs(t, err, ErrBatchTooLarge)
}

func TestRoute_DoesNotPersist(t *testing.T) {
	store := storage.NewMemoryStore(nil)
	svc := newTestService(t, store)

	rec, err := svc.Route(context.Background(), failedLogin("alice", "1.2.3.4"))
	require.NoError(t, err)
	assert.Equal(t, "alice", rec.User)

	_, total, err := store.QueryLogEvents(context.Background(), storage.LogFilter{})
	require.NoError(t, err)
	assert.Zero(t, total)
}
