// Package searchindex mirrors persisted log events into OpenSearch, one
// index per tenant per day.
package searchindex

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"
	"github.com/opensearch-project/opensearch-go/v2/opensearchutil"

	"github.com/telhawk-systems/centrallog/common/logging"
	"github.com/telhawk-systems/centrallog/internal/models"
)

// Config holds OpenSearch connection and index settings.
type Config struct {
	URL             string
	Username        string
	Password        string
	TLSSkipVerify   bool
	IndexPrefix     string
	ShardCount      int
	ReplicaCount    int
	RefreshInterval string
	BulkWorkers     int
}

func DefaultConfig() Config {
	return Config{
		URL:             "https://localhost:9200",
		Username:        "admin",
		Password:        "admin",
		TLSSkipVerify:   true,
		IndexPrefix:     "centrallog",
		ShardCount:      1,
		ReplicaCount:    0,
		RefreshInterval: "5s",
		BulkWorkers:     2,
	}
}

type Client struct {
	os     *opensearch.Client
	config Config
	logger *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.IndexPrefix == "" {
		cfg.IndexPrefix = DefaultConfig().IndexPrefix
	}
	if cfg.BulkWorkers <= 0 {
		cfg.BulkWorkers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}

	transport := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: cfg.TLSSkipVerify}, //nolint:gosec // self-signed dev clusters
	}
	client, err := opensearch.NewClient(opensearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: transport,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create opensearch client: %w", err)
	}
	return &Client{os: client, config: cfg, logger: logger}, nil
}

// document is the indexed shape of an event. Raw is stored as an opaque
// string because sources disagree on its type.
type document struct {
	*models.LogEvent
	Raw string `json:"raw,omitempty"`
}

func newDocument(ev *models.LogEvent) ([]byte, error) {
	doc := document{LogEvent: ev}
	switch raw := ev.Raw.(type) {
	case nil:
	case string:
		doc.Raw = raw
	default:
		b, err := json.Marshal(raw)
		if err != nil {
			return nil, err
		}
		doc.Raw = string(b)
	}
	return json.Marshal(doc)
}

// IndexName returns the index an event is written to:
// <prefix>-<tenantID>-<yyyy.mm.dd> of the event timestamp in UTC.
func (c *Client) IndexName(ev *models.LogEvent) string {
	return fmt.Sprintf("%s-%d-%s", c.config.IndexPrefix, ev.TenantID, ev.Timestamp.UTC().Format("2006.01.02"))
}

// Initialize verifies connectivity and installs the index template.
func (c *Client) Initialize(ctx context.Context) error {
	info, err := c.os.Info(c.os.Info.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to connect to opensearch: %w", err)
	}
	defer info.Body.Close()
	if info.IsError() {
		return fmt.Errorf("opensearch returned error: %s", info.Status())
	}

	body, err := json.Marshal(c.template())
	if err != nil {
		return err
	}
	res, err := c.os.Indices.PutIndexTemplate(
		c.config.IndexPrefix+"-template",
		bytes.NewReader(body),
		c.os.Indices.PutIndexTemplate.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("failed to create index template: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		msg, _ := io.ReadAll(res.Body)
		return fmt.Errorf("failed to create index template: %s - %s", res.Status(), string(msg))
	}

	c.logger.Info("opensearch initialized", slog.String("index_prefix", c.config.IndexPrefix))
	return nil
}

// Index writes a single event. The document id is the event id, so
// re-indexing overwrites.
func (c *Client) Index(ctx context.Context, ev *models.LogEvent) error {
	data, err := newDocument(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event %d: %w", ev.ID, err)
	}

	req := opensearchapi.IndexRequest{
		Index:      c.IndexName(ev),
		DocumentID: strconv.FormatInt(ev.ID, 10),
		Body:       bytes.NewReader(data),
	}
	res, err := req.Do(ctx, c.os)
	if err != nil {
		return fmt.Errorf("failed to index event %d: %w", ev.ID, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		msg, _ := io.ReadAll(res.Body)
		return fmt.Errorf("failed to index event %d: %s - %s", ev.ID, res.Status(), string(msg))
	}
	return nil
}

// IndexBatch writes events through the bulk indexer. It reports the number
// of failed documents along with the first failure.
func (c *Client) IndexBatch(ctx context.Context, evs []*models.LogEvent) error {
	if len(evs) == 0 {
		return nil
	}

	bi, err := opensearchutil.NewBulkIndexer(opensearchutil.BulkIndexerConfig{
		Client:     c.os,
		NumWorkers: c.config.BulkWorkers,
	})
	if err != nil {
		return fmt.Errorf("failed to create bulk indexer: %w", err)
	}

	var (
		mu       sync.Mutex
		firstErr error
	)
	record := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		if firstErr == nil {
			firstErr = err
		}
	}

	for _, ev := range evs {
		data, err := newDocument(ev)
		if err != nil {
			record(fmt.Errorf("failed to marshal event %d: %w", ev.ID, err))
			continue
		}
		id := ev.ID
		err = bi.Add(ctx, opensearchutil.BulkIndexerItem{
			Action:     "index",
			Index:      c.IndexName(ev),
			DocumentID: strconv.FormatInt(id, 10),
			Body:       bytes.NewReader(data),
			OnFailure: func(ctx context.Context, item opensearchutil.BulkIndexerItem, res opensearchutil.BulkIndexerResponseItem, err error) {
				if err == nil {
					err = fmt.Errorf("%s: %s", res.Error.Type, res.Error.Reason)
				}
				c.logger.WarnContext(ctx, "bulk index item failed", logging.EventID(id), logging.Error(err))
				record(fmt.Errorf("event %d: %w", id, err))
			},
		})
		if err != nil {
			record(fmt.Errorf("failed to add event %d to bulk indexer: %w", id, err))
		}
	}

	start := time.Now()
	if err := bi.Close(ctx); err != nil {
		record(fmt.Errorf("bulk indexer close: %w", err))
	}
	stats := bi.Stats()
	c.logger.DebugContext(ctx, "bulk index complete",
		logging.Count(int(stats.NumIndexed)),
		slog.Uint64("failed", stats.NumFailed),
		logging.Duration(time.Since(start)),
	)

	if firstErr != nil {
		return fmt.Errorf("failed to index %d of %d events: %w", len(evs)-int(stats.NumIndexed), len(evs), firstErr)
	}
	return nil
}

func (c *Client) template() map[string]any {
	keyword := map[string]any{"type": "keyword"}
	return map[string]any{
		"index_patterns": []string{c.config.IndexPrefix + "-*"},
		"template": map[string]any{
			"settings": map[string]any{
				"number_of_shards":   c.config.ShardCount,
				"number_of_replicas": c.config.ReplicaCount,
				"refresh_interval":   c.config.RefreshInterval,
			},
			"mappings": map[string]any{
				"dynamic": true,
				"properties": map[string]any{
					"id":            map[string]any{"type": "long"},
					"timestamp":     map[string]any{"type": "date"},
					"created_at":    map[string]any{"type": "date"},
					"tenant":        keyword,
					"tenantId":      map[string]any{"type": "long"},
					"source":        keyword,
					"vendor":        keyword,
					"product":       keyword,
					"event_type":    keyword,
					"event_subtype": keyword,
					"severity":      map[string]any{"type": "integer"},
					"action":        keyword,
					"src_ip":        map[string]any{"type": "ip", "ignore_malformed": true},
					"src_port":      map[string]any{"type": "integer"},
					"dst_ip":        map[string]any{"type": "ip", "ignore_malformed": true},
					"dst_port":      map[string]any{"type": "integer"},
					"protocol":      keyword,
					"user":          keyword,
					"host":          keyword,
					"process":       keyword,
					"url":           keyword,
					"http_method":   keyword,
					"status_code":   map[string]any{"type": "integer"},
					"rule_name":     keyword,
					"rule_id":       keyword,
					"tags":          keyword,
					"cloud": map[string]any{
						"properties": map[string]any{
							"account_id": keyword,
							"region":     keyword,
							"service":    keyword,
						},
					},
					"raw":           map[string]any{"type": "text", "index": false},
				},
			},
		},
		"priority": 100,
	}
}
