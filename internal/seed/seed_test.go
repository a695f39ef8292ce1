package seed

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/centrallog/common/logging"
	"github.com/telhawk-systems/centrallog/internal/correlation"
	"github.com/telhawk-systems/centrallog/internal/ingest"
	"github.com/telhawk-systems/centrallog/internal/models"
	"github.com/telhawk-systems/centrallog/internal/normalizer"
	"github.com/telhawk-systems/centrallog/internal/storage"
	"github.com/telhawk-systems/centrallog/internal/tenant"
)

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func pipeline(t *testing.T) (*ingest.Service, *storage.MemoryStore) {
	t.Helper()
	logger := logging.Nop()
	store := storage.NewMemoryStore(nil)
	router := normalizer.NewRouter(normalizer.All(tenant.NewResolver(store, logger.Logger), nil, nil)...)
	svc := ingest.NewService(router, store,
		ingest.WithCorrelator(correlation.NewEngine(store, correlation.WithLogger(logger.Logger))),
		ingest.WithLogger(logger.Logger),
	)
	return svc, store
}

func TestEvents_RouteForEverySource(t *testing.T) {
	svc, _ := pipeline(t)
	g := New(42, "acme", "globex")

	events := g.Events(len(models.Sources) * 3)
	require.Len(t, events, len(models.Sources)*3)

	seen := map[models.Source]int{}
	for i, raw := range events {
		rec, err := svc.Route(context.Background(), raw)
		require.NoError(t, err, "event %d (%v)", i, raw["source"])
		assert.Contains(t, []string{"acme", "globex"}, rec.Tenant)
		assert.False(t, rec.Timestamp.IsZero())
		seen[rec.Source]++
	}
	for _, src := range models.Sources {
		assert.Equal(t, 3, seen[src], "source %s", src)
	}
}

func TestEvents_Deterministic(t *testing.T) {
	clock := func() time.Time { return fixedNow }
	a := New(7, "acme").WithClock(clock).Events(20)
	b := New(7, "acme").WithClock(clock).Events(20)
	assert.Equal(t, a, b)

	c := New(8, "acme").WithClock(clock).Events(20)
	assert.NotEqual(t, a, c)
}

func TestEvent_Spread(t *testing.T) {
	g := New(3, "acme").WithClock(func() time.Time { return fixedNow }).WithSpread(time.Hour)
	for range 50 {
		ev := g.Event(models.SourceAPI)
		ts, err := time.Parse(time.RFC3339Nano, ev["@timestamp"].(string))
		require.NoError(t, err)
		assert.False(t, ts.After(fixedNow))
		assert.False(t, ts.Before(fixedNow.Add(-time.Hour)))
	}
}

func TestBruteForce_RaisesAlert(t *testing.T) {
	svc, store := pipeline(t)
	g := New(1, "acme")

	events := g.BruteForce("acme", "mallory", "203.0.113.9", 5)
	require.Len(t, events, 5)
	for _, ev := range events {
		assert.Equal(t, correlation.EventLoginFailed, ev["event_type"])
		_, err := svc.NormalizeAndPersist(context.Background(), ev)
		require.NoError(t, err)
	}

	alerts, err := store.ListAlerts(context.Background(), storage.AlertFilter{User: "mallory"})
	require.NoError(t, err)
	require.NotEmpty(t, alerts)
	assert.Equal(t, correlation.RuleMultipleFailedLogins, alerts[0].RuleName)
	assert.Equal(t, "203.0.113.9", alerts[0].IP)
	assert.Equal(t, models.AlertStatusOpen, alerts[0].Status)
}

func TestDistributed_RaisesAlert(t *testing.T) {
	svc, store := pipeline(t)
	g := New(2, "acme")

	events := g.Distributed("acme", "victim", 4)
	require.Len(t, events, 4)
	ips := map[string]bool{}
	for _, ev := range events {
		ips[ev["ip"].(string)] = true
		_, err := svc.NormalizeAndPersist(context.Background(), ev)
		require.NoError(t, err)
	}
	assert.Len(t, ips, 4)

	alerts, err := store.ListAlerts(context.Background(), storage.AlertFilter{User: "victim"})
	require.NoError(t, err)
	var rules []string
	for _, a := range alerts {
		rules = append(rules, a.RuleName)
	}
	assert.Contains(t, rules, correlation.RuleDistributedFailedLogin)
}

func TestScenario(t *testing.T) {
	g := New(5, "acme")

	for _, name := range Scenarios {
		events, err := g.Scenario(name)
		require.NoError(t, err, name)
		assert.NotEmpty(t, events, name)
		for _, ev := range events {
			assert.Equal(t, "acme", ev["tenant"])
		}
	}

	recovery, err := g.Scenario(ScenarioRecovery)
	require.NoError(t, err)
	assert.Equal(t, correlation.EventLoginSuccess, recovery[len(recovery)-1]["event_type"])

	_, err = g.Scenario("nope")
	assert.ErrorContains(t, err, "unknown scenario")
}
