package privilege

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// KeyPrefix is the Redis key prefix for cached verdicts. Each verdict is a
// hash shared by every bot instance pointed at the same Redis:
//
//	Key:    privilege:<chat_id>:<user_id>
//	Fields: checked_at (unix nanos), privileged ("1" or "0")
//	TTL:    evictAfter
const KeyPrefix = "privilege:"

// RedisStore is a Store backed by Redis hashes. The key TTL only bounds
// memory; freshness is still decided from checked_at on read.
type RedisStore struct {
	client     *redis.Client
	evictAfter time.Duration
}

// NewRedisStore creates a RedisStore. A zero evictAfter leaves keys without
// expiry, relying on Sweep.
func NewRedisStore(client *redis.Client, evictAfter time.Duration) *RedisStore {
	return &RedisStore{client: client, evictAfter: evictAfter}
}

func redisKey(k Key) string {
	return KeyPrefix + strconv.FormatInt(k.ChatID, 10) + ":" + strconv.FormatInt(k.UserID, 10)
}

func (s *RedisStore) Get(ctx context.Context, key Key) (Entry, bool, error) {
	vals, err := s.client.HGetAll(ctx, redisKey(key)).Result()
	if err != nil {
		return Entry{}, false, fmt.Errorf("privilege: redis get: %w", err)
	}
	if len(vals) == 0 {
		return Entry{}, false, nil
	}
	return parseEntry(vals)
}

func parseEntry(vals map[string]string) (Entry, bool, error) {
	nanos, err := strconv.ParseInt(vals["checked_at"], 10, 64)
	if err != nil {
		return Entry{}, false, fmt.Errorf("privilege: bad checked_at %q: %w", vals["checked_at"], err)
	}
	return Entry{
		CheckedAt:  time.Unix(0, nanos),
		Privileged: vals["privileged"] == "1",
	}, true, nil
}

// Put writes both fields and the expiry in one transaction.
func (s *RedisStore) Put(ctx context.Context, key Key, entry Entry) error {
	k := redisKey(key)
	privileged := "0"
	if entry.Privileged {
		privileged = "1"
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, k, "checked_at", entry.CheckedAt.UnixNano(), "privileged", privileged)
		if s.evictAfter > 0 {
			pipe.Expire(ctx, k, s.evictAfter)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("privilege: redis put: %w", err)
	}
	return nil
}

// Sweep scans privilege keys and deletes those checked before olderThan.
// Keys that disappear or fail to parse mid-scan are skipped.
func (s *RedisStore) Sweep(ctx context.Context, olderThan time.Time) (int, error) {
	removed := 0
	iter := s.client.Scan(ctx, 0, KeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		k := iter.Val()
		raw, err := s.client.HGet(ctx, k, "checked_at").Result()
		if err != nil {
			continue
		}
		nanos, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || !time.Unix(0, nanos).Before(olderThan) {
			continue
		}
		if err := s.client.Del(ctx, k).Err(); err == nil {
			removed++
		}
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("privilege: redis sweep: %w", err)
	}
	return removed, nil
}
