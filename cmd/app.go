package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/telhawk-systems/centrallog/common/logging"
	natsclient "github.com/telhawk-systems/centrallog/common/messaging/nats"
	"github.com/telhawk-systems/centrallog/internal/alerts"
	"github.com/telhawk-systems/centrallog/internal/config"
	"github.com/telhawk-systems/centrallog/internal/consumer"
	"github.com/telhawk-systems/centrallog/internal/correlation"
	"github.com/telhawk-systems/centrallog/internal/dashboard"
	"github.com/telhawk-systems/centrallog/internal/handlers"
	"github.com/telhawk-systems/centrallog/internal/ingest"
	"github.com/telhawk-systems/centrallog/internal/normalizer"
	"github.com/telhawk-systems/centrallog/internal/notify"
	"github.com/telhawk-systems/centrallog/internal/searchindex"
	"github.com/telhawk-systems/centrallog/internal/sequence"
	"github.com/telhawk-systems/centrallog/internal/server"
	"github.com/telhawk-systems/centrallog/internal/storage"
	"github.com/telhawk-systems/centrallog/internal/storage/postgres"
	"github.com/telhawk-systems/centrallog/internal/syslog"
	"github.com/telhawk-systems/centrallog/internal/tenant"
	"github.com/telhawk-systems/centrallog/internal/timestamp"
)

// app holds the wired services behind serve.
type app struct {
	store    storage.Store
	ingest   *ingest.Service
	router   http.Handler
	consumer *consumer.Consumer

	closers []func() error
	logger  *logging.Logger
}

func newApp(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*app, error) {
	a := &app{logger: logger}
	if err := a.wire(ctx, cfg); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context, cfg *config.Config) error {
	logger := a.logger

	ids, err := a.allocator(ctx, cfg)
	if err != nil {
		return err
	}
	if a.store, err = a.openStore(ctx, cfg, ids); err != nil {
		return err
	}

	var notifier *notify.Notifier
	if cfg.NATS.Enabled {
		nc, err := natsclient.Connect(cfg.NATS.ClientConfig(), logger.Logger)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, nc.Close)
		notifier = notify.New(nc, logger.Logger)
		logger.Info("alert notifications enabled", slog.String("url", cfg.NATS.URL))
	}

	policy, err := syslog.ParseYearPolicy(cfg.Normalizer.SyslogYearPolicy)
	if err != nil {
		return err
	}
	tenants := tenant.NewResolver(a.store, logger.Logger)
	routes := normalizer.NewRouter(normalizer.All(tenants, timestamp.New(), syslog.NewParser(policy))...)

	opts := []ingest.Option{
		ingest.WithLogger(logger.Logger),
		ingest.WithBatchLimits(cfg.Ingest.BatchConcurrency, cfg.Ingest.MaxBatchSize),
	}
	if cfg.Correlation.Enabled {
		opts = append(opts, ingest.WithCorrelator(correlation.NewEngine(a.store,
			correlation.WithNotifier(notifier),
			correlation.WithLogger(logger.Logger),
		)))
	} else {
		logger.Warn("correlation disabled")
	}
	if cfg.OpenSearch.Enabled {
		idx, err := searchindex.NewClient(cfg.OpenSearch.ClientConfig(), logger.Logger)
		if err != nil {
			return err
		}
		initCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		if err := idx.Initialize(initCtx); err != nil {
			logger.Warn("failed to initialize search index, events may fail to index", logging.Error(err))
		}
		cancel()
		opts = append(opts, ingest.WithIndexer(idx))
	}
	a.ingest = ingest.NewService(routes, a.store, opts...)

	h := handlers.New(
		a.ingest,
		alerts.NewService(a.store, notifier, logger.Logger),
		tenants,
		dashboard.NewService(a.store),
		a.store,
		handlers.WithMaxBodyBytes(cfg.Server.MaxBodyBytes),
		handlers.WithLogger(logger),
	)
	a.router = server.NewRouter(h, logger.Logger)

	if cfg.Kafka.Enabled {
		c, err := consumer.New(consumer.Config{
			Brokers:     cfg.Kafka.Brokers,
			Topic:       cfg.Kafka.Topic,
			GroupID:     cfg.Kafka.GroupID,
			MinBytes:    cfg.Kafka.MinBytes,
			MaxBytes:    cfg.Kafka.MaxBytes,
			MaxWait:     cfg.Kafka.MaxWait,
			StartOffset: cfg.Kafka.StartOffset,
		}, a.ingest, logger.Logger)
		if err != nil {
			return err
		}
		a.consumer = c
		a.closers = append(a.closers, c.Close)
	}
	return nil
}

func (a *app) allocator(ctx context.Context, cfg *config.Config) (sequence.Allocator, error) {
	switch cfg.Sequence.Backend {
	case "redis":
		r, err := sequence.NewRedisAllocator(ctx, cfg.Redis.URL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, r.Close)
		return r, nil
	case "memory":
		return sequence.NewMemoryAllocator(), nil
	}
	// postgres: the store falls back to its own sequences table.
	return nil, nil
}

func (a *app) openStore(ctx context.Context, cfg *config.Config, ids sequence.Allocator) (storage.Store, error) {
	if cfg.Storage.Driver != "postgres" {
		return storage.NewMemoryStore(ids), nil
	}

	conn := cfg.Database.Postgres.ConnString()
	if cfg.Storage.MigrateOnStart {
		if err := postgres.Migrate(conn); err != nil {
			return nil, err
		}
		a.logger.Info("database migrations applied")
	}

	var opts []postgres.Option
	if n := cfg.Database.Postgres.MaxConns; n > 0 {
		opts = append(opts, postgres.WithPoolSize(min(2, n), n))
	}
	if ids != nil {
		opts = append(opts, postgres.WithAllocator(ids))
	}
	s, err := postgres.New(ctx, conn, opts...)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, s.Close)
	return s, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("failed to close resource", logging.Error(err))
		}
	}
	a.closers = nil
}

func serverConfig(cfg *config.Config) server.Config {
	return server.Config{
		Addr:            cfg.Server.Addr(),
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     cfg.Server.IdleTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
