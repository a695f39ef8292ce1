// Package client is the HTTP client the CLI uses to talk to a running server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/telhawk-systems/centrallog/common/httputil"
	"github.com/telhawk-systems/centrallog/internal/dashboard"
	"github.com/telhawk-systems/centrallog/internal/ingest"
	"github.com/telhawk-systems/centrallog/internal/models"
)

const DefaultTimeout = 30 * time.Second

// APIError is a non-2xx response decoded from the server's error envelope.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Details    any
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%d %s)", e.Message, e.StatusCode, e.Code)
	}
	return fmt.Sprintf("%s (%d)", e.Message, e.StatusCode)
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

type Client struct {
	baseURL string
	client  *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: DefaultTimeout},
	}
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any, accept ...int) (int, error) {
	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, bodyReader)
	if err != nil {
		return 0, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if len(accept) == 0 {
		accept = []int{http.StatusOK}
	}
	ok := false
	for _, code := range accept {
		ok = ok || resp.StatusCode == code
	}
	if !ok {
		return resp.StatusCode, decodeError(resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

func decodeError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	apiErr := &APIError{StatusCode: resp.StatusCode}

	var env httputil.ErrorResponse
	if err := json.Unmarshal(body, &env); err == nil && env.Error != "" {
		apiErr.Message = env.Error
		apiErr.Code = env.Code
		apiErr.Details = env.Details
		return apiErr
	}
	apiErr.Message = strings.TrimSpace(string(body))
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}

func (c *Client) Health(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "/healthz", nil, nil, nil)
	return err
}

func (c *Client) Ingest(ctx context.Context, raw map[string]any) (*models.LogEvent, error) {
	var ev models.LogEvent
	if _, err := c.do(ctx, http.MethodPost, "/api/v1/ingest", nil, raw, &ev, http.StatusCreated); err != nil {
		return nil, err
	}
	return &ev, nil
}

// IngestBatch posts items as one batch. A 207 is not an error; inspect
// BatchResult.Errors for the rejected items.
func (c *Client) IngestBatch(ctx context.Context, items []map[string]any) (*ingest.BatchResult, error) {
	var res ingest.BatchResult
	if _, err := c.do(ctx, http.MethodPost, "/api/v1/ingest/batch", nil, items, &res,
		http.StatusCreated, http.StatusMultiStatus); err != nil {
		return nil, err
	}
	return &res, nil
}

// Normalize routes raw without persisting it.
func (c *Client) Normalize(ctx context.Context, raw map[string]any) (*models.CentralLog, error) {
	var rec models.CentralLog
	if _, err := c.do(ctx, http.MethodPost, "/api/v1/normalize", nil, raw, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (c *Client) ListTenants(ctx context.Context) ([]*models.Tenant, error) {
	var resp struct {
		Tenants []*models.Tenant `json:"tenants"`
	}
	if _, err := c.do(ctx, http.MethodGet, "/api/v1/tenants", nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Tenants, nil
}

type AlertQuery struct {
	TenantID  *int64
	Status    string
	TimeRange string
	User      string
	Limit     int
}

func (q AlertQuery) values() url.Values {
	v := url.Values{}
	setTenant(v, q.TenantID)
	setNonEmpty(v, "status", q.Status)
	setNonEmpty(v, "timeRange", q.TimeRange)
	setNonEmpty(v, "user", q.User)
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	return v
}

func (c *Client) ListAlerts(ctx context.Context, q AlertQuery) ([]*models.Alert, error) {
	var resp struct {
		Alerts []*models.Alert `json:"alerts"`
		Total  int             `json:"total"`
	}
	if _, err := c.do(ctx, http.MethodGet, "/api/v1/alerts", q.values(), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Alerts, nil
}

func (c *Client) UpdateAlertStatus(ctx context.Context, id int64, status string) (*models.Alert, error) {
	var alert models.Alert
	path := "/api/v1/alerts/" + strconv.FormatInt(id, 10)
	if _, err := c.do(ctx, http.MethodPatch, path, nil, map[string]string{"status": status}, &alert); err != nil {
		return nil, err
	}
	return &alert, nil
}

func (c *Client) Dashboard(ctx context.Context, tenantID *int64, rangeToken string) (*dashboard.Summary, error) {
	v := url.Values{}
	setTenant(v, tenantID)
	setNonEmpty(v, "range", rangeToken)

	var sum dashboard.Summary
	if _, err := c.do(ctx, http.MethodGet, "/api/v1/dashboard", v, nil, &sum); err != nil {
		return nil, err
	}
	return &sum, nil
}

func (c *Client) UserActivity(ctx context.Context, tenantID *int64, user, rangeToken string) (*dashboard.UserActivity, error) {
	v := url.Values{}
	setTenant(v, tenantID)
	setNonEmpty(v, "range", rangeToken)
	if user == "" {
		user = dashboard.AllUsers
	}

	var act dashboard.UserActivity
	path := "/api/v1/users/" + url.PathEscape(user) + "/activity"
	if _, err := c.do(ctx, http.MethodGet, path, v, nil, &act); err != nil {
		return nil, err
	}
	return &act, nil
}

func (c *Client) SearchLogs(ctx context.Context, q dashboard.SearchQuery) (*dashboard.SearchResult, error) {
	v := url.Values{}
	setTenant(v, q.TenantID)
	setNonEmpty(v, "user", q.User)
	setNonEmpty(v, "q", q.Q)
	if !q.From.IsZero() {
		v.Set("from", q.From.UTC().Format(time.RFC3339Nano))
	}
	if !q.To.IsZero() {
		v.Set("to", q.To.UTC().Format(time.RFC3339Nano))
	}
	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}

	var res dashboard.SearchResult
	if _, err := c.do(ctx, http.MethodGet, "/api/v1/logs", v, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func setTenant(v url.Values, id *int64) {
	if id != nil {
		v.Set("tenantId", strconv.FormatInt(*id, 10))
	}
}

func setNonEmpty(v url.Values, key, val string) {
	if val != "" {
		v.Set(key, val)
	}
}
