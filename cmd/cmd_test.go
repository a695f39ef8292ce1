package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/centrallog/common/logging"
	"github.com/telhawk-systems/centrallog/common/messaging"
	"github.com/telhawk-systems/centrallog/internal/config"
	"github.com/telhawk-systems/centrallog/internal/correlation"
	"github.com/telhawk-systems/centrallog/internal/ingest"
	"github.com/telhawk-systems/centrallog/internal/models"
	"github.com/telhawk-systems/centrallog/internal/seed"
)

func TestCommandsRegistered(t *testing.T) {
	expected := map[string]bool{
		"serve": false, "migrate": false, "ingest": false, "normalize": false,
		"alerts": false, "tenants": false, "dashboard": false, "activity": false,
		"logs": false, "seed": false,
	}
	for _, c := range rootCmd.Commands() {
		name := strings.Fields(c.Use)[0]
		if _, ok := expected[name]; ok {
			expected[name] = true
		}
	}
	for name, found := range expected {
		assert.True(t, found, "expected command %q to be registered", name)
	}
}

func TestSubcommandsRegistered(t *testing.T) {
	names := func(cmds ...string) map[string]bool {
		m := map[string]bool{}
		for _, c := range cmds {
			m[c] = true
		}
		return m
	}
	got := map[string]bool{}
	for _, c := range alertsCmd.Commands() {
		got[strings.Fields(c.Use)[0]] = true
	}
	assert.Equal(t, names("list", "update", "watch"), got)

	got = map[string]bool{}
	for _, c := range migrateCmd.Commands() {
		got[c.Use] = true
	}
	assert.Equal(t, names("up", "down", "version"), got)
}

func TestPersistentFlags(t *testing.T) {
	for _, name := range []string{"config", "output", "server", "no-color"} {
		assert.NotNil(t, rootCmd.PersistentFlags().Lookup(name), name)
	}
}

func TestReadEvents(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int
		wantErr string
	}{
		{name: "object", input: `{"tenant":"acme"}`, want: 1},
		{name: "array", input: ` [{"a":1},{"b":2}]`, want: 2},
		{name: "ndjson", input: "{\"a\":1}\n{\"b\":2}\n\n{\"c\":3}\n", want: 3},
		{name: "empty", input: "  \n", wantErr: "no events"},
		{name: "empty array", input: "[]", wantErr: "no events"},
		{name: "bad line", input: "{\"a\":1}\nnope\n", wantErr: "failed to parse event 2"},
		{name: "array of scalars", input: `[1,2]`, wantErr: "failed to parse event array"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events, err := readEvents(strings.NewReader(tt.input))
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Len(t, events, tt.want)
		})
	}
}

func TestReadEvents_KeepsNumbers(t *testing.T) {
	events, err := readEvents(strings.NewReader(`{"timestamp": 1740830400123}`))
	require.NoError(t, err)
	assert.Equal(t, json.Number("1740830400123"), events[0]["timestamp"])
}

func TestWatchesTenant(t *testing.T) {
	tenant := int64(2)
	tagged := (&messaging.Message{}).Set(messaging.HeaderTenantID, "2")
	other := (&messaging.Message{}).Set(messaging.HeaderTenantID, "5")
	untagged := &messaging.Message{}

	assert.True(t, watchesTenant(nil, tagged))
	assert.True(t, watchesTenant(nil, untagged))
	assert.True(t, watchesTenant(&tenant, tagged))
	assert.False(t, watchesTenant(&tenant, other))
	assert.False(t, watchesTenant(&tenant, untagged))
}

func TestMergeBatch(t *testing.T) {
	total := &ingest.BatchResult{}
	mergeBatch(total, &ingest.BatchResult{
		Total: 2, Succeeded: 2,
		Results: []ingest.ItemResult{{Index: 0, ID: 1}, {Index: 1, ID: 2}},
	}, 0)
	mergeBatch(total, &ingest.BatchResult{
		Total: 2, Succeeded: 1, Failed: 1,
		Results: []ingest.ItemResult{{Index: 0, ID: 3}},
		Errors:  []ingest.ItemError{{Index: 1, Kind: "validation"}},
	}, 2)

	assert.Equal(t, 4, total.Total)
	assert.Equal(t, 3, total.Succeeded)
	assert.Equal(t, 1, total.Failed)
	assert.Equal(t, 2, total.Results[2].Index)
	assert.Equal(t, 3, total.Errors[0].Index)
}

func TestGenerateSeed(t *testing.T) {
	events, err := generateSeed(seed.New(1, "acme"), 10, []string{seed.ScenarioBruteForce, " distributed "})
	require.NoError(t, err)
	assert.Len(t, events, 10+5+4)
	assert.Equal(t, correlation.EventLoginFailed, events[len(events)-1]["event_type"])

	_, err = generateSeed(seed.New(1, "acme"), 0, []string{"ddos"})
	assert.ErrorContains(t, err, "unknown scenario")
}

func newTestApp(t *testing.T, cfg *config.Config) *httptest.Server {
	t.Helper()
	a, err := newApp(context.Background(), cfg, logging.Nop())
	require.NoError(t, err)
	t.Cleanup(a.Close)

	srv := httptest.NewServer(a.router)
	t.Cleanup(srv.Close)
	return srv
}

func defaultConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	return cfg
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestNewApp_RedisSequences(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := defaultConfig(t)
	cfg.Sequence.Backend = "redis"
	cfg.Redis.URL = "redis://" + mr.Addr()

	a, err := newApp(context.Background(), cfg, logging.Nop())
	require.NoError(t, err)
	defer a.Close()

	ev, err := a.ingest.NormalizeAndPersist(context.Background(), map[string]any{
		"tenant": "acme", "source": "api", "event_type": "login_success", "user": "bob", "ip": "10.0.0.1",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), ev.ID)
	assert.NotEmpty(t, mr.Keys())
}

func TestNewApp_BadSyslogPolicy(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.Normalizer.SyslogYearPolicy = "someday"
	_, err := newApp(context.Background(), cfg, logging.Nop())
	assert.Error(t, err)
}

func TestCLI_SeedAndTriage(t *testing.T) {
	srv := newTestApp(t, defaultConfig(t))

	out, err := run(t, "seed", "--server", srv.URL, "-o", "json",
		"--count", "0", "--seed", "11", "--tenants", "acme", "--scenario", seed.ScenarioBruteForce)
	require.NoError(t, err, out)

	var batch ingest.BatchResult
	require.NoError(t, json.Unmarshal([]byte(out), &batch))
	assert.Equal(t, 5, batch.Succeeded)
	assert.Zero(t, batch.Failed)

	out, err = run(t, "alerts", "list", "--server", srv.URL, "-o", "json")
	require.NoError(t, err, out)
	var list []models.Alert
	require.NoError(t, json.Unmarshal([]byte(out), &list))
	require.Len(t, list, 1)
	assert.Equal(t, correlation.RuleMultipleFailedLogins, list[0].RuleName)
	assert.Equal(t, 5, list[0].Count)

	out, err = run(t, "alerts", "update", "1", "INVESTIGATING", "--server", srv.URL, "-o", "json")
	require.NoError(t, err, out)
	var updated models.Alert
	require.NoError(t, json.Unmarshal([]byte(out), &updated))
	assert.Equal(t, models.AlertStatusInvestigating, updated.Status)

	_, err = run(t, "alerts", "update", "99", "RESOLVED", "--server", srv.URL, "-o", "json")
	assert.ErrorContains(t, err, "not_found")
}

func TestCLI_IngestInline(t *testing.T) {
	srv := newTestApp(t, defaultConfig(t))

	out, err := run(t, "ingest", "--server", srv.URL, "-o", "json",
		"--json", `{"tenant":"acme","source":"api","event_type":"login_success","user":"bob","ip":"10.0.0.1"}`)
	require.NoError(t, err, out)

	var ev models.LogEvent
	require.NoError(t, json.Unmarshal([]byte(out), &ev))
	assert.Equal(t, "acme", ev.Tenant)
	assert.Equal(t, "login_success", ev.EventType)

	out, err = run(t, "tenants", "--server", srv.URL, "-o", "json")
	require.NoError(t, err, out)
	assert.Contains(t, out, `"name": "acme"`)
}
