// Package ingest runs the normalize, persist, correlate unit of work for
// single events and batches.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/telhawk-systems/centrallog/common/logging"
	"github.com/telhawk-systems/centrallog/internal/correlation"
	"github.com/telhawk-systems/centrallog/internal/metrics"
	"github.com/telhawk-systems/centrallog/internal/models"
	"github.com/telhawk-systems/centrallog/internal/normalizer"
	"github.com/telhawk-systems/centrallog/internal/storage"
	"github.com/telhawk-systems/centrallog/internal/tenant"
)

var (
	ErrEmptyBatch    = errors.New("batch contains no events")
	ErrBatchTooLarge = errors.New("batch exceeds maximum size")
)

// Router normalizes raw events.
type Router interface {
	Route(ctx context.Context, raw map[string]any) (*models.CentralLog, error)
}

// Correlator evaluates rules against a persisted event.
type Correlator interface {
	Evaluate(ctx context.Context, ev *models.LogEvent) *correlation.Result
}

// Indexer mirrors persisted events into a search index.
type Indexer interface {
	Index(ctx context.Context, ev *models.LogEvent) error
	IndexBatch(ctx context.Context, evs []*models.LogEvent) error
}

// Error kinds reported per item and used as metric labels.
const (
	KindValidation        = "validation"
	KindUnsupportedSource = "unsupported_source"
	KindNormalization     = "normalization"
	KindPersistence       = "persistence"
	KindInternal          = "internal"
)

// ErrorKind classifies an error returned by NormalizeAndPersist.
func ErrorKind(err error) string {
	var (
		ve *normalizer.ValidationError
		ue *normalizer.UnsupportedSourceError
		ne *normalizer.NormalizationError
		pe *storage.PersistenceError
	)
	switch {
	case errors.As(err, &ve):
		return KindValidation
	case errors.As(err, &ue):
		return KindUnsupportedSource
	case errors.As(err, &ne), errors.Is(err, tenant.ErrInvalidInput):
		return KindNormalization
	case errors.As(err, &pe):
		return KindPersistence
	}
	return KindInternal
}

type Service struct {
	router      Router
	store       storage.LogStore
	correlator  Correlator
	indexer     Indexer
	logger      *slog.Logger
	concurrency int
	maxBatch    int
}

// Option configures a Service.
type Option func(*Service)

func WithCorrelator(c Correlator) Option {
	return func(s *Service) { s.correlator = c }
}

func WithIndexer(i Indexer) Option {
	return func(s *Service) { s.indexer = i }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithBatchLimits bounds batch concurrency and size. Non-positive values
// keep the defaults.
func WithBatchLimits(concurrency, maxBatch int) Option {
	return func(s *Service) {
		if concurrency > 0 {
			s.concurrency = concurrency
		}
		if maxBatch > 0 {
			s.maxBatch = maxBatch
		}
	}
}

func NewService(router Router, store storage.LogStore, opts ...Option) *Service {
	s := &Service{
		router:      router,
		store:       store,
		logger:      slog.Default(),
		concurrency: 8,
		maxBatch:    10000,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Route normalizes raw without persisting it.
func (s *Service) Route(ctx context.Context, raw map[string]any) (*models.CentralLog, error) {
	return s.normalize(ctx, raw)
}

// NormalizeAndPersist runs the full unit of work for one event. Only
// normalization and persistence failures are returned; correlation and
// indexing failures are logged.
func (s *Service) NormalizeAndPersist(ctx context.Context, raw map[string]any) (*models.LogEvent, error) {
	ev, err := s.persist(ctx, raw)
	if err != nil {
		return nil, err
	}
	if s.indexer != nil {
		if err := s.indexer.Index(ctx, ev); err != nil {
			s.indexFailed(ctx, 1, err)
		}
	}
	s.correlate(ctx, ev)
	return ev, nil
}

func (s *Service) normalize(ctx context.Context, raw map[string]any) (*models.CentralLog, error) {
	start := time.Now()
	rec, err := s.router.Route(ctx, raw)
	metrics.NormalizationDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		kind := ErrorKind(err)
		metrics.NormalizationErrors.WithLabelValues(kind).Inc()
		metrics.EventsTotal.WithLabelValues(sourceLabel(raw), "rejected").Inc()
		return nil, err
	}
	return rec, nil
}

func (s *Service) persist(ctx context.Context, raw map[string]any) (*models.LogEvent, error) {
	rec, err := s.normalize(ctx, raw)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	ev, err := s.store.InsertLogEvent(ctx, rec)
	metrics.StorageDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.StorageErrors.Inc()
		metrics.EventsTotal.WithLabelValues(string(rec.Source), "failed").Inc()
		return nil, storage.Wrap("insert log event", err)
	}

	metrics.EventsTotal.WithLabelValues(string(rec.Source), "accepted").Inc()
	s.logger.DebugContext(ctx, "event ingested",
		logging.EventID(ev.ID),
		logging.TenantID(ev.TenantID),
		logging.Source(string(ev.Source)),
		logging.EventType(ev.EventType))
	return ev, nil
}

// correlate runs after the write has committed and must not be cut short
// by the caller going away.
func (s *Service) correlate(ctx context.Context, ev *models.LogEvent) {
	if s.correlator == nil {
		return
	}
	s.correlator.Evaluate(context.WithoutCancel(ctx), ev)
}

func (s *Service) indexFailed(ctx context.Context, n int, err error) {
	metrics.IndexErrors.Inc()
	s.logger.WarnContext(ctx, "failed to index events",
		logging.Count(n),
		logging.Error(err))
}

// ItemResult describes one persisted batch item.
type ItemResult struct {
	Index     int    `json:"index"`
	ID        int64  `json:"id"`
	EventType string `json:"event_type"`
}

// ItemError describes one rejected batch item.
type ItemError struct {
	Index int    `json:"index"`
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// BatchResult tallies a batch. Results and Errors are ordered by index.
type BatchResult struct {
	Total     int          `json:"total"`
	Succeeded int          `json:"succeeded"`
	Failed    int          `json:"failed"`
	Results   []ItemResult `json:"results"`
	Errors    []ItemError  `json:"errors"`
}

// IngestBatch processes items concurrently. A failing item never aborts the
// batch; the only errors returned concern the batch as a whole.
func (s *Service) IngestBatch(ctx context.Context, items []map[string]any) (*BatchResult, error) {
	if len(items) == 0 {
		return nil, ErrEmptyBatch
	}
	if len(items) > s.maxBatch {
		return nil, fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, len(items), s.maxBatch)
	}
	metrics.BatchSize.Observe(float64(len(items)))

	events := make([]*models.LogEvent, len(items))
	errs := make([]error, len(items))

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, raw := range items {
		g.Go(func() error {
			events[i], errs[i] = s.persist(ctx, raw)
			return nil
		})
	}
	_ = g.Wait()

	res := &BatchResult{
		Total:   len(items),
		Results: []ItemResult{},
		Errors:  []ItemError{},
	}
	persisted := make([]*models.LogEvent, 0, len(items))
	for i := range items {
		if errs[i] != nil {
			res.Failed++
			res.Errors = append(res.Errors, ItemError{Index: i, Error: errs[i].Error(), Kind: ErrorKind(errs[i])})
			continue
		}
		res.Succeeded++
		res.Results = append(res.Results, ItemResult{Index: i, ID: events[i].ID, EventType: events[i].EventType})
		persisted = append(persisted, events[i])
	}

	if s.indexer != nil && len(persisted) > 0 {
		if err := s.indexer.IndexBatch(ctx, persisted); err != nil {
			s.indexFailed(ctx, len(persisted), err)
		}
	}

	// Correlate in input order so window counts grow the way they would
	// for sequential ingestion.
	for _, ev := range persisted {
		s.correlate(ctx, ev)
	}

	s.logger.InfoContext(ctx, "batch ingested",
		slog.Int("total", res.Total),
		slog.Int("succeeded", res.Succeeded),
		slog.Int("failed", res.Failed))
	return res, nil
}

func sourceLabel(raw map[string]any) string {
	if s, ok := raw["source"].(string); ok && models.Source(s).Valid() {
		return s
	}
	return "unknown"
}
