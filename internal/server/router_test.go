package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/centrallog/common/logging"
	"github.com/telhawk-systems/centrallog/internal/alerts"
	"github.com/telhawk-systems/centrallog/internal/correlation"
	"github.com/telhawk-systems/centrallog/internal/dashboard"
	"github.com/telhawk-systems/centrallog/internal/handlers"
	"github.com/telhawk-systems/centrallog/internal/ingest"
	"github.com/telhawk-systems/centrallog/internal/normalizer"
	"github.com/telhawk-systems/centrallog/internal/storage"
	"github.com/telhawk-systems/centrallog/internal/tenant"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	logger := logging.Nop()
	store := storage.NewMemoryStore(nil)
	tenants := tenant.NewResolver(store, logger.Logger)
	router := normalizer.NewRouter(normalizer.All(tenants, nil, nil)...)
	ing := ingest.NewService(router, store,
		ingest.WithCorrelator(correlation.NewEngine(store, correlation.WithLogger(logger.Logger))),
		ingest.WithLogger(logger.Logger),
	)
	h := handlers.New(ing, alerts.NewService(store, nil, logger.Logger), tenants, dashboard.NewService(store), store,
		handlers.WithLogger(logger))

	srv := httptest.NewServer(NewRouter(h, logger.Logger))
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path, body string) (int, map[string]any) {
	t.Helper()
	var rdr *bytes.Reader
	if body != "" {
		rdr = bytes.NewReader([]byte(body))
	} else {
		rdr = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, srv.URL+path, rdr)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func loginEvent(eventType, user, ip string) string {
	return fmt.Sprintf(`{"tenant":"acme","source":"api","event_type":%q,"user":%q,"ip":%q,"@timestamp":%q}`,
		eventType, user, ip, time.Now().UTC().Format(time.RFC3339))
}

func TestRouter_Health(t *testing.T) {
	srv := newTestServer(t)

	status, body := do(t, srv, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])

	resp, err := srv.Client().Get(srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestRouter_IngestErrors(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"missing tenant", `{"source":"api"}`, http.StatusBadRequest, ingest.KindValidation},
		{"unsupported source", `{"tenant":"acme","source":"mainframe"}`, http.StatusBadRequest, ingest.KindUnsupportedSource},
		{"invalid record", `{"tenant":"acme","source":"api","event_type":"x","severity":99}`, http.StatusUnprocessableEntity, ingest.KindNormalization},
		{"malformed json", `{"tenant":`, http.StatusBadRequest, "invalid_request"},
		{"not an object", `[1,2]`, http.StatusBadRequest, "invalid_request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := do(t, srv, http.MethodPost, "/api/v1/ingest", tt.body)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, body["code"])
		})
	}
}

func TestRouter_BruteForceLifecycle(t *testing.T) {
	srv := newTestServer(t)

	var tenantID float64
	for range 3 {
		status, body := do(t, srv, http.MethodPost, "/api/v1/ingest", loginEvent("login_failed", "alice", "10.0.0.1"))
		require.Equal(t, http.StatusCreated, status)
		assert.NotZero(t, body["id"])
		tenantID = body["tenantId"].(float64)
	}

	status, body := do(t, srv, http.MethodGet, fmt.Sprintf("/api/v1/alerts?tenantId=%d&status=OPEN", int64(tenantID)), "")
	require.Equal(t, http.StatusOK, status)
	list := body["alerts"].([]any)
	require.Len(t, list, 1)
	alert := list[0].(map[string]any)
	assert.Equal(t, correlation.RuleMultipleFailedLogins, alert["ruleName"])
	assert.Equal(t, float64(3), alert["count"])
	assert.Equal(t, "acme", alert["tenant"])
	id := int64(alert["id"].(float64))

	status, body = do(t, srv, http.MethodPatch, fmt.Sprintf("/api/v1/alerts/%d", id), `{"status":"investigating"}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "INVESTIGATING", body["status"])

	status, body = do(t, srv, http.MethodPatch, fmt.Sprintf("/api/v1/alerts/%d", id), `{"status":"OPEN"}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid_status", body["code"])

	status, body = do(t, srv, http.MethodPatch, fmt.Sprintf("/api/v1/alerts/%d", id), `{"status":"RESOLVED"}`)
	require.Equal(t, http.StatusOK, status)
	assert.NotEmpty(t, body["resolved_at"])

	status, _ = do(t, srv, http.MethodPatch, fmt.Sprintf("/api/v1/alerts/%d", id), `{"status":"OPEN"}`)
	assert.Equal(t, http.StatusConflict, status)

	status, _ = do(t, srv, http.MethodPatch, fmt.Sprintf("/api/v1/alerts/%d", id), `{"status":"CLOSED"}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = do(t, srv, http.MethodPatch, "/api/v1/alerts/999", `{"status":"OPEN"}`)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = do(t, srv, http.MethodPatch, "/api/v1/alerts/abc", `{"status":"OPEN"}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = do(t, srv, http.MethodPatch, fmt.Sprintf("/api/v1/alerts/%d", id), `{}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = do(t, srv, http.MethodGet, "/api/v1/alerts?timeRange=forever", "")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestRouter_AutoResolve(t *testing.T) {
	srv := newTestServer(t)
	for range 3 {
		status, _ := do(t, srv, http.MethodPost, "/api/v1/ingest", loginEvent("login_failed", "bob", "10.0.0.9"))
		require.Equal(t, http.StatusCreated, status)
	}
	status, _ := do(t, srv, http.MethodPost, "/api/v1/ingest", loginEvent("login_success", "bob", "10.0.0.9"))
	require.Equal(t, http.StatusCreated, status)

	_, body := do(t, srv, http.MethodGet, "/api/v1/alerts?status=RESOLVED", "")
	assert.Len(t, body["alerts"].([]any), 1)
	_, body = do(t, srv, http.MethodGet, "/api/v1/alerts?status=OPEN", "")
	assert.Empty(t, body["alerts"].([]any))
}

func TestRouter_Batch(t *testing.T) {
	srv := newTestServer(t)

	all := fmt.Sprintf(`[%s,%s]`, loginEvent("login_failed", "a", "1.1.1.1"), loginEvent("login_failed", "b", "1.1.1.2"))
	status, body := do(t, srv, http.MethodPost, "/api/v1/ingest/batch", all)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, float64(2), body["succeeded"])

	mixed := fmt.Sprintf(`{"events":[%s,{"source":"api"},"junk"]}`, loginEvent("login_failed", "c", "1.1.1.3"))
	status, body = do(t, srv, http.MethodPost, "/api/v1/ingest/batch", mixed)
	require.Equal(t, http.StatusMultiStatus, status)
	assert.Equal(t, float64(3), body["total"])
	assert.Equal(t, float64(1), body["succeeded"])
	assert.Equal(t, float64(2), body["failed"])
	errs := body["errors"].([]any)
	require.Len(t, errs, 2)
	assert.Equal(t, float64(1), errs[0].(map[string]any)["index"])
	assert.Equal(t, ingest.KindValidation, errs[1].(map[string]any)["kind"])

	status, body = do(t, srv, http.MethodPost, "/api/v1/ingest/batch", `[]`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "empty_batch", body["code"])

	status, _ = do(t, srv, http.MethodPost, "/api/v1/ingest/batch", `"nope"`)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestRouter_Normalize(t *testing.T) {
	srv := newTestServer(t)

	status, body := do(t, srv, http.MethodPost, "/api/v1/normalize",
		`{"tenant":"acme","source":"firewall","raw":"<134>Mar  1 12:00:00 fw01 action=deny src=10.1.1.1 dst=10.2.2.2 user=eve"}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "firewall", body["source"])
	assert.Equal(t, "10.1.1.1", body["src_ip"])

	_, body = do(t, srv, http.MethodGet, "/api/v1/logs", "")
	assert.Equal(t, float64(0), body["total"], "dry run must not persist")

	_, body = do(t, srv, http.MethodGet, "/api/v1/tenants", "")
	tenants := body["tenants"].([]any)
	require.Len(t, tenants, 1)
	assert.Equal(t, "acme", tenants[0].(map[string]any)["name"])
}

func TestRouter_Views(t *testing.T) {
	srv := newTestServer(t)
	for _, ip := range []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"} {
		status, _ := do(t, srv, http.MethodPost, "/api/v1/ingest", loginEvent("login_failed", "carol", ip))
		require.Equal(t, http.StatusCreated, status)
	}
	status, _ := do(t, srv, http.MethodPost, "/api/v1/ingest", loginEvent("file_access", "dave", "192.168.1.7"))
	require.Equal(t, http.StatusCreated, status)

	status, body := do(t, srv, http.MethodGet, "/api/v1/dashboard?range=last_1h", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(4), body["totalEvents"])
	assert.Equal(t, float64(4), body["uniqueIps"])
	assert.Equal(t, float64(1), body["totalAlerts"], "distributed attack alert")

	status, _ = do(t, srv, http.MethodGet, "/api/v1/dashboard?range=1y", "")
	assert.Equal(t, http.StatusBadRequest, status)
	status, _ = do(t, srv, http.MethodGet, "/api/v1/dashboard?tenantId=x", "")
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = do(t, srv, http.MethodGet, "/api/v1/users/carol/activity?range=1h", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "carol", body["user"])
	summary := body["summary"].(map[string]any)
	assert.Equal(t, float64(3), summary["totalEvents"])
	assert.Equal(t, float64(1), summary["uniqueUsers"])
	assert.Len(t, body["recentEvents"].([]any), 3)
	assert.Len(t, body["relatedAlerts"].([]any), 1)

	status, body = do(t, srv, http.MethodGet, "/api/v1/logs?q=192.168&limit=10", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1), body["total"])
	assert.Equal(t, float64(10), body["limit"])

	status, _ = do(t, srv, http.MethodGet, "/api/v1/logs?from=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestRun_Shutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, Config{Addr: "127.0.0.1:0", ShutdownTimeout: time.Second}, http.NotFoundHandler(), logging.Nop().Logger)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
