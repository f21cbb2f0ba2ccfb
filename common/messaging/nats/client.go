// Package nats implements the messaging interfaces on NATS core.
package nats

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/moebius-network/moebius/common/config"
	"github.com/moebius-network/moebius/common/logging"
	"github.com/moebius-network/moebius/common/messaging"
)

// Config holds NATS client configuration.
type Config struct {
	URL  string
	Name string
	// MaxReconnects of -1 reconnects forever.
	MaxReconnects int
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// DefaultConfig returns a Config for a local server.
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		Name:          "moebius",
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	}
}

// FromConfig builds a Config from the nats section of the service config.
func FromConfig(c config.NATSConfig, name string) Config {
	cfg := DefaultConfig()
	cfg.Name = name
	if c.URL != "" {
		cfg.URL = c.URL
	}
	cfg.MaxReconnects = c.MaxReconnects
	if c.ReconnectWait > 0 {
		cfg.ReconnectWait = c.ReconnectWait
	}
	return cfg
}

func (c Config) options(logger *logging.Logger) []nats.Option {
	return []nats.Option{
		nats.Name(c.Name),
		nats.MaxReconnects(c.MaxReconnects),
		nats.ReconnectWait(c.ReconnectWait),
		nats.Timeout(c.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", logging.Error(err))
			}
		}),
		nats.ReconnectHandler(func(conn *nats.Conn) {
			logger.Info("nats reconnected", "url", conn.ConnectedUrl())
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			logger.Debug("nats connection closed")
		}),
	}
}

// Client implements messaging.Client using NATS. Contexts handed to
// subscription handlers are cancelled when the client closes.
type Client struct {
	conn    *nats.Conn
	logger  *logging.Logger
	timeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	subs []*nats.Subscription
}

var _ messaging.Client = (*Client)(nil)

// NewClient connects to NATS.
func NewClient(cfg Config, logger *logging.Logger) (*Client, error) {
	if logger == nil {
		logger = logging.Default()
	}
	conn, err := nats.Connect(cfg.URL, cfg.options(logger)...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.URL, err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{conn: conn, logger: logger, timeout: cfg.Timeout, ctx: ctx, cancel: cancel}, nil
}

// Publish sends data to subject.
func (c *Client) Publish(ctx context.Context, subject string, data []byte) error {
	return c.send(ctx, &nats.Msg{Subject: subject, Data: data})
}

// PublishMsg sends msg with its metadata as NATS headers.
func (c *Client) PublishMsg(ctx context.Context, msg *messaging.Message) error {
	return c.send(ctx, toNATS(msg))
}

// send publishes m. When ctx carries a deadline the connection is flushed
// within it, so the call returns only once the server has the message.
func (c *Client) send(ctx context.Context, m *nats.Msg) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.conn.PublishMsg(m); err != nil {
		return fmt.Errorf("publish %s: %w", m.Subject, err)
	}
	if _, ok := ctx.Deadline(); ok {
		if err := c.conn.FlushWithContext(ctx); err != nil {
			return fmt.Errorf("flush %s: %w", m.Subject, err)
		}
	}
	return nil
}

// Flush returns once the server has processed everything published so far.
// Without a ctx deadline the client's connect timeout bounds the wait.
func (c *Client) Flush(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, flushTimeout(c.timeout))
		defer cancel()
	}
	if err := c.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	return nil
}

func flushTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		return DefaultConfig().Timeout
	}
	return d
}

// Subscribe delivers every message on subject to handler. Handler errors are
// logged.
func (c *Client) Subscribe(subject string, handler messaging.MessageHandler) (messaging.Subscription, error) {
	sub, err := c.conn.Subscribe(subject, func(m *nats.Msg) {
		if err := handler(c.ctx, fromNATS(m)); err != nil {
			c.logger.Error("message handler failed", "subject", m.Subject, logging.Error(err))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}

	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()
	return subscription{sub}, nil
}

// Close unsubscribes everything and closes the connection.
func (c *Client) Close() error {
	c.cancel()

	c.mu.Lock()
	for _, sub := range c.subs {
		_ = sub.Unsubscribe()
	}
	c.subs = nil
	c.mu.Unlock()

	c.conn.Close()
	return nil
}

// Drain delivers in-flight messages, then closes the connection.
func (c *Client) Drain() error {
	defer c.cancel()
	return c.conn.Drain()
}

// IsConnected returns true if connected to NATS.
func (c *Client) IsConnected() bool {
	return c.conn.IsConnected()
}

type subscription struct {
	*nats.Subscription
}

func (s subscription) Subject() string {
	return s.Subscription.Subject
}

func toNATS(msg *messaging.Message) *nats.Msg {
	m := nats.NewMsg(msg.Subject)
	m.Data = msg.Data
	for k, v := range msg.Metadata {
		m.Header.Set(k, v)
	}
	return m
}

func fromNATS(m *nats.Msg) *messaging.Message {
	msg := &messaging.Message{
		Subject:   m.Subject,
		Data:      m.Data,
		Timestamp: time.Now(),
	}
	if len(m.Header) > 0 {
		msg.Metadata = make(map[string]string, len(m.Header))
		for k := range m.Header {
			msg.Metadata[k] = m.Header.Get(k)
		}
	}
	return msg
}
