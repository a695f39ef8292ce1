// Package consumer feeds raw events from a Kafka topic into the ingest
// pipeline.
package consumer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/telhawk-systems/centrallog/common/logging"
	"github.com/telhawk-systems/centrallog/internal/ingest"
	"github.com/telhawk-systems/centrallog/internal/metrics"
	"github.com/telhawk-systems/centrallog/internal/models"
)

// Message outcomes, used as metric labels alongside ingest error kinds.
const (
	StatusOK      = "ok"
	StatusDecode  = "decode_error"
	StatusPartial = "partial"
)

type Config struct {
	Brokers     []string
	Topic       string
	GroupID     string
	MinBytes    int
	MaxBytes    int
	MaxWait     time.Duration
	StartOffset string // "first" or "last"
}

func (c Config) Validate() error {
	if len(c.Brokers) == 0 {
		return errors.New("kafka: at least one broker is required")
	}
	if c.Topic == "" {
		return errors.New("kafka: topic is required")
	}
	if c.GroupID == "" {
		return errors.New("kafka: consumer group is required")
	}
	switch c.StartOffset {
	case "", "first", "last":
	default:
		return fmt.Errorf("kafka: invalid start offset %q (valid: first, last)", c.StartOffset)
	}
	return nil
}

// Handler is the slice of ingest.Service the consumer drives.
type Handler interface {
	NormalizeAndPersist(ctx context.Context, raw map[string]any) (*models.LogEvent, error)
}

// Reader is satisfied by *kafka.Reader.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	reader  Reader
	handler Handler
	logger  *slog.Logger
	backoff time.Duration
}

func New(cfg Config, handler Handler, logger *slog.Logger) (*Consumer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	start := kafka.LastOffset
	if cfg.StartOffset == "first" {
		start = kafka.FirstOffset
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		GroupID:        cfg.GroupID,
		Topic:          cfg.Topic,
		MinBytes:       cfg.MinBytes,
		MaxBytes:       cfg.MaxBytes,
		MaxWait:        cfg.MaxWait,
		StartOffset:    start,
		ReadBackoffMin: 100 * time.Millisecond,
		ReadBackoffMax: time.Second,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Error(fmt.Sprintf(msg, args...), "component", "kafka-reader")
		}),
	})

	logger.Info("kafka consumer initialized",
		"brokers", cfg.Brokers,
		"topic", cfg.Topic,
		"group", cfg.GroupID,
	)
	return NewWithReader(reader, handler, logger), nil
}

func NewWithReader(reader Reader, handler Handler, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{reader: reader, handler: handler, logger: logger, backoff: time.Second}
}

// Run consumes until ctx is cancelled or the reader is closed. Every
// fetched message is committed whatever its outcome: a payload that failed
// normalization will fail the same way on redelivery.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			c.logger.ErrorContext(ctx, "failed to fetch message", logging.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.backoff):
				continue
			}
		}

		status := c.HandleMessage(ctx, msg)
		metrics.ConsumerMessages.WithLabelValues(status).Inc()

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.ErrorContext(ctx, "failed to commit offset",
				logging.Error(err),
				slog.Int("partition", msg.Partition),
				slog.Int64("offset", msg.Offset),
			)
		}
	}
}

// HandleMessage ingests one message value: a JSON object, or a JSON array of
// objects. It returns the outcome label.
func (c *Consumer) HandleMessage(ctx context.Context, msg kafka.Message) string {
	log := c.logger.With(
		slog.String("topic", msg.Topic),
		slog.Int("partition", msg.Partition),
		slog.Int64("offset", msg.Offset),
	)

	items, err := decode(msg.Value)
	if err != nil {
		log.WarnContext(ctx, "dropping undecodable message", logging.Error(err))
		return StatusDecode
	}

	var failed int
	var lastErr error
	for _, raw := range items {
		if _, err := c.handler.NormalizeAndPersist(ctx, raw); err != nil {
			failed++
			lastErr = err
			log.WarnContext(ctx, "message rejected", logging.Error(err), slog.String("kind", ingest.ErrorKind(err)))
		}
	}

	switch {
	case failed == 0:
		return StatusOK
	case failed < len(items):
		return StatusPartial
	default:
		return ingest.ErrorKind(lastErr)
	}
}

func (c *Consumer) Close() error {
	if err := c.reader.Close(); err != nil {
		return fmt.Errorf("kafka: failed to close consumer: %w", err)
	}
	return nil
}

func decode(value []byte) ([]map[string]any, error) {
	value = bytes.TrimSpace(value)
	if len(value) == 0 {
		return nil, errors.New("empty message")
	}

	dec := json.NewDecoder(bytes.NewReader(value))
	dec.UseNumber()
	if value[0] == '[' {
		var items []map[string]any
		if err := dec.Decode(&items); err != nil {
			return nil, fmt.Errorf("failed to decode event array: %w", err)
		}
		if len(items) == 0 {
			return nil, errors.New("empty event array")
		}
		return items, nil
	}

	var item map[string]any
	if err := dec.Decode(&item); err != nil {
		return nil, fmt.Errorf("failed to decode event: %w", err)
	}
	if item == nil {
		return nil, errors.New("event is null")
	}
	return []map[string]any{item}, nil
}
