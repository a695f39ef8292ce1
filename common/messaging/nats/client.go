// Package nats implements the messaging interfaces on core NATS.
package nats

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/telhawk-systems/centrallog/common/logging"
	"github.com/telhawk-systems/centrallog/common/messaging"
)

// Config describes how to reach the server.
type Config struct {
	URL  string
	Name string

	// MaxReconnects of -1 retries forever.
	MaxReconnects int
	ReconnectWait time.Duration
	Timeout       time.Duration

	Username string
	Password string
	Token    string
}

func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		Name:          "centrallog",
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	}
}

func (c Config) options(logger *slog.Logger) []nats.Option {
	opts := []nats.Option{
		nats.Name(c.Name),
		nats.MaxReconnects(c.MaxReconnects),
		nats.ReconnectWait(c.ReconnectWait),
		nats.Timeout(c.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("lost broker connection", logging.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("broker connection restored", slog.String("url", nc.ConnectedUrl()))
		}),
	}
	switch {
	case c.Token != "":
		opts = append(opts, nats.Token(c.Token))
	case c.Username != "":
		opts = append(opts, nats.UserInfo(c.Username, c.Password))
	}
	return opts
}

// Client publishes and subscribes over a single NATS connection.
type Client struct {
	conn   *nats.Conn
	logger *slog.Logger

	mu   sync.Mutex
	subs map[*nats.Subscription]struct{}
}

// Connect dials cfg.URL. A nil logger uses slog.Default.
func Connect(cfg Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "nats"))

	conn, err := nats.Connect(cfg.URL, cfg.options(logger)...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.URL, err)
	}
	return &Client{conn: conn, logger: logger, subs: map[*nats.Subscription]struct{}{}}, nil
}

func (c *Client) Publish(ctx context.Context, msg *messaging.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	out := nats.NewMsg(msg.Subject)
	out.Data = msg.Data
	for k, v := range msg.Header {
		out.Header.Set(k, v)
	}
	return c.conn.PublishMsg(out)
}

func (c *Client) Subscribe(subject string, h messaging.Handler) (func() error, error) {
	sub, err := c.conn.Subscribe(subject, func(m *nats.Msg) {
		if err := h(context.Background(), fromNATS(m)); err != nil {
			c.logger.Warn("message handler failed",
				slog.String("subject", m.Subject),
				logging.Error(err))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}

	c.mu.Lock()
	c.subs[sub] = struct{}{}
	c.mu.Unlock()

	return func() error {
		c.mu.Lock()
		delete(c.subs, sub)
		c.mu.Unlock()
		return sub.Unsubscribe()
	}, nil
}

// Connected reports whether the connection is currently up.
func (c *Client) Connected() bool {
	return c.conn.IsConnected()
}

// Close drops subscriptions and drains pending publishes.
func (c *Client) Close() error {
	c.mu.Lock()
	for sub := range c.subs {
		_ = sub.Unsubscribe()
	}
	clear(c.subs)
	c.mu.Unlock()

	if err := c.conn.Drain(); err != nil {
		c.conn.Close()
		return err
	}
	return nil
}

func fromNATS(m *nats.Msg) *messaging.Message {
	msg := &messaging.Message{Subject: m.Subject, Data: m.Data, Received: time.Now()}
	for k := range m.Header {
		msg.Set(k, m.Header.Get(k))
	}
	return msg
}
