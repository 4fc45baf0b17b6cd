// Package privilege answers "is this sender an administrator of this chat?"
// with a TTL-bounded cache in front of the platform's member lookup.
//
// Freshness is evaluated on every read from the stored check time; a verdict
// older than the TTL is never trusted. Lookup failures fail closed: the
// sender is treated as unprivileged and nothing is cached.
package privilege

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/whisper/spamguard/internal/metrics"
	"github.com/whisper/spamguard/internal/moderation"
)

// Member statuses that grant moderation rights.
const (
	StatusCreator       = "creator"
	StatusOwner         = "owner"
	StatusAdministrator = "administrator"
)

// IsPrivilegedStatus reports whether a platform member status grants
// moderation rights.
func IsPrivilegedStatus(status string) bool {
	switch status {
	case StatusCreator, StatusOwner, StatusAdministrator:
		return true
	}
	return false
}

// Lookup fetches a member's status from the chat platform.
type Lookup interface {
	PrivilegeStatus(ctx context.Context, chatID, userID int64) (string, error)
}

// Key identifies a member of a chat.
type Key struct {
	ChatID int64
	UserID int64
}

// Entry is a cached privilege verdict.
type Entry struct {
	CheckedAt  time.Time
	Privileged bool
}

// Fresh reports whether the verdict is younger than ttl at now.
func (e Entry) Fresh(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.CheckedAt) < ttl
}

// Store holds cached verdicts. Implementations must make Put of a single key
// atomic so readers never see a mixed timestamp and verdict.
type Store interface {
	Get(ctx context.Context, key Key) (Entry, bool, error)
	Put(ctx context.Context, key Key, entry Entry) error
	// Sweep removes entries checked before olderThan and returns how many
	// were removed.
	Sweep(ctx context.Context, olderThan time.Time) (int, error)
}

// Config holds cache settings.
type Config struct {
	TTL           time.Duration // verdict lifetime
	EvictAfter    time.Duration // age at which the sweeper drops entries
	SweepSchedule string        // cron expression driving the sweeper
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		TTL:           300 * time.Second,
		EvictAfter:    20 * time.Minute,
		SweepSchedule: "*/10 * * * *",
	}
}

// Cache implements moderation.PrivilegeChecker.
type Cache struct {
	lookup Lookup
	store  Store
	config Config
	group  singleflight.Group
	logger *logrus.Entry
	now    func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock overrides the clock used for check timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// NewCache creates a cache over lookup. A nil store uses a MemoryStore.
func NewCache(lookup Lookup, store Store, config Config, logger *logrus.Logger, opts ...Option) *Cache {
	if store == nil {
		store = NewMemoryStore()
	}
	c := &Cache{
		lookup: lookup,
		store:  store,
		config: config,
		logger: logger.WithField("component", "privilege"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IsPrivileged reports whether userID may bypass moderation in chat. Private
// chats are always privileged. Group verdicts are served from the cache while
// fresh and refreshed from the platform otherwise.
func (c *Cache) IsPrivileged(ctx context.Context, chat moderation.Chat, userID int64) bool {
	if !chat.IsGroup() {
		return true
	}
	key := Key{ChatID: chat.ID, UserID: userID}

	entry, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.WithError(err).Debug("privilege store read failed, treating as miss")
	}
	if ok && entry.Fresh(c.now(), c.config.TTL) {
		metrics.PrivilegeLookupsTotal.WithLabelValues("hit").Inc()
		return entry.Privileged
	}
	metrics.PrivilegeLookupsTotal.WithLabelValues("miss").Inc()

	v, err, _ := c.group.Do(fmt.Sprintf("%d/%d", key.ChatID, key.UserID), func() (interface{}, error) {
		return c.refresh(ctx, key)
	})
	if err != nil {
		metrics.PrivilegeLookupsTotal.WithLabelValues("error").Inc()
		c.logger.WithError(err).WithFields(logrus.Fields{
			"chat_id": key.ChatID,
			"user_id": key.UserID,
		}).Error("failed to check admin permissions")
		return false
	}
	return v.(bool)
}

func (c *Cache) refresh(ctx context.Context, key Key) (bool, error) {
	status, err := c.lookup.PrivilegeStatus(ctx, key.ChatID, key.UserID)
	if err != nil {
		return false, err
	}

	entry := Entry{CheckedAt: c.now(), Privileged: IsPrivilegedStatus(status)}
	if err := c.store.Put(ctx, key, entry); err != nil {
		c.logger.WithError(err).Warn("failed to cache privilege verdict")
	}
	return entry.Privileged, nil
}
