// Package messaging provides a NATS client wrapper that publishes moderation
// and catalog events for other services (dashboards, log shippers, sibling
// bot instances) to consume.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"github.com/whisper/spamguard/internal/catalog"
	"github.com/whisper/spamguard/internal/moderation"
)

// NATS subjects published by spamguard.
const (
	SubjectFlagged        = "moderation.flagged" // + .<chat_id>
	SubjectCatalogUpdated = "catalog.updated"
)

// NATSClient wraps the NATS connection with helper methods for pub/sub.
type NATSClient struct {
	conn   *nats.Conn
	logger *logrus.Entry
	mu     sync.Mutex
	subs   map[string]*nats.Subscription
}

// NATSConfig holds NATS connection settings.
type NATSConfig struct {
	URL           string        // nats://localhost:4222
	Name          string        // client name for identification
	ReconnectWait time.Duration // time between reconnect attempts
	MaxReconnects int           // max reconnect attempts (-1 for infinite)
}

// DefaultNATSConfig returns sensible defaults.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           "nats://localhost:4222",
		Name:          "spamguard",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1,
	}
}

// NewNATSClient connects to NATS with the given config and returns a ready client.
// It returns an error if the initial connection fails.
func NewNATSClient(config NATSConfig, logger *logrus.Logger) (*NATSClient, error) {
	log := logger.WithField("component", "nats")
	opts := []nats.Option{
		nats.Name(config.Name),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.WithError(err).Warn("disconnected")
			} else {
				log.Warn("disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Infof("reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Info("connection closed")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	log.Infof("connected to %s", nc.ConnectedUrl())

	return &NATSClient{
		conn:   nc,
		logger: log,
		subs:   make(map[string]*nats.Subscription),
	}, nil
}

// Publish sends data to the given NATS subject.
func (c *NATSClient) Publish(subject string, data []byte) error {
	return c.conn.Publish(subject, data)
}

// Subscribe calls handler for every message on subject, which may contain
// wildcards. Subscribing to the same subject again replaces the handler.
func (c *NATSClient) Subscribe(subject string, handler func(subject string, data []byte)) error {
	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Subject, msg.Data)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", subject, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if prev, ok := c.subs[subject]; ok {
		_ = prev.Unsubscribe()
	}
	c.subs[subject] = sub
	return c.conn.Flush()
}

// FlaggedSubject returns the subject flagged-message events for a chat are
// published on.
func FlaggedSubject(chatID int64) string {
	return SubjectFlagged + "." + strconv.FormatInt(chatID, 10)
}

// Record publishes a flagged-message event. It implements
// moderation.Auditor.
func (c *NATSClient) Record(_ context.Context, ev moderation.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("nats: marshal event: %w", err)
	}
	return c.Publish(FlaggedSubject(ev.ChatID), data)
}

// PublishCatalogChange announces a committed keyword change. It is used as
// the catalog observer, so failures are logged rather than returned.
func (c *NATSClient) PublishCatalogChange(change catalog.Change) {
	data, err := json.Marshal(change)
	if err != nil {
		c.logger.WithError(err).Error("marshal catalog change")
		return
	}
	if err := c.Publish(SubjectCatalogUpdated, data); err != nil {
		c.logger.WithError(err).Warn("publish catalog change")
	}
}

// Close drains all active subscriptions and closes the NATS connection.
func (c *NATSClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for subject, sub := range c.subs {
		if err := sub.Drain(); err != nil {
			c.logger.WithError(err).Warnf("drain %s", subject)
		}
	}
	c.subs = make(map[string]*nats.Subscription)

	if err := c.conn.Drain(); err != nil {
		c.logger.WithError(err).Warn("connection drain")
	}

	c.logger.Info("client closed")
}
