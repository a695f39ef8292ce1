package alerts

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/centrallog/internal/models"
	"github.com/telhawk-systems/centrallog/internal/storage"
)

func seed(t *testing.T, now time.Time) (*Service, *storage.MemoryStore) {
	t.Helper()
	ctx := context.Background()
	store := storage.NewMemoryStore(nil)
	_, err := store.CreateTenant(ctx, "acme", "ACME")
	require.NoError(t, err)
	_, err = store.CreateTenant(ctx, "globex", "GLOBEX")
	require.NoError(t, err)

	for _, u := range []storage.AlertUpsert{
		{TenantID: 1, RuleName: "r1", User: "alice", Count: 3, Now: now.Add(-10 * time.Minute)},
		{TenantID: 1, RuleName: "r1", User: "bob", Count: 3, Now: now.Add(-2 * time.Hour)},
		{TenantID: 2, RuleName: "r1", User: "carol", Count: 3, Now: now.Add(-3 * 24 * time.Hour)},
	} {
		_, _, err := store.UpsertOpenAlert(ctx, u)
		require.NoError(t, err)
	}

	svc := NewService(store, nil, nil)
	svc.now = func() time.Time { return now }
	return svc, store
}

func TestService_List(t *testing.T) {
	now := time.Date(2025, 8, 20, 12, 0, 0, 0, time.UTC)
	svc, _ := seed(t, now)
	acme := int64(1)

	tests := []struct {
		name   string
		filter Filter
		users  []string
	}{
		{"default range is 24h", Filter{}, []string{"alice", "bob"}},
		{"15m", Filter{TimeRange: "15m"}, []string{"alice"}},
		{"7d all statuses", Filter{TimeRange: "7d", Status: "all"}, []string{"alice", "bob", "carol"}},
		{"tenant scoped", Filter{TimeRange: "7d", TenantID: &acme}, []string{"alice", "bob"}},
		{"status filter", Filter{TimeRange: "7d", Status: "RESOLVED"}, nil},
		{"lowercase status", Filter{TimeRange: "7d", Status: "open"}, []string{"alice", "bob", "carol"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.List(context.Background(), tt.filter)
			require.NoError(t, err)
			var users []string
			for _, a := range got {
				users = append(users, a.User)
			}
			assert.Equal(t, tt.users, users)
		})
	}
}

func TestService_ListJoinsTenantName(t *testing.T) {
	now := time.Date(2025, 8, 20, 12, 0, 0, 0, time.UTC)
	svc, _ := seed(t, now)
	got, err := svc.List(context.Background(), Filter{TimeRange: "7d"})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "acme", got[0].Tenant)
	assert.Equal(t, "globex", got[2].Tenant)
}

func TestService_ListInvalidInput(t *testing.T) {
	svc, _ := seed(t, time.Now())
	_, err := svc.List(context.Background(), Filter{Status: "CLOSED"})
	assert.ErrorIs(t, err, ErrInvalidStatus)
	_, err = svc.List(context.Background(), Filter{TimeRange: "90d"})
	assert.Error(t, err)
}

func TestService_UpdateStatus(t *testing.T) {
	now := time.Date(2025, 8, 20, 12, 0, 0, 0, time.UTC)
	svc, _ := seed(t, now)
	ctx := context.Background()

	a, err := svc.UpdateStatus(ctx, 1, "INVESTIGATING")
	require.NoError(t, err)
	assert.Equal(t, models.AlertStatusInvestigating, a.Status)
	assert.Nil(t, a.ResolvedAt)

	_, err = svc.UpdateStatus(ctx, 1, "open")
	assert.ErrorIs(t, err, ErrInvalidStatus)

	a, err = svc.UpdateStatus(ctx, 1, "resolved")
	require.NoError(t, err)
	assert.Equal(t, models.AlertStatusResolved, a.Status)
	require.NotNil(t, a.ResolvedAt)
	assert.Equal(t, now, *a.ResolvedAt)

	_, err = svc.UpdateStatus(ctx, 1, "OPEN")
	assert.ErrorIs(t, err, ErrAlertResolved)

	_, err = svc.UpdateStatus(ctx, 99, "OPEN")
	assert.ErrorIs(t, err, ErrAlertNotFound)

	_, err = svc.UpdateStatus(ctx, 2, "CLOSED")
	assert.ErrorIs(t, err, ErrInvalidStatus)
}
