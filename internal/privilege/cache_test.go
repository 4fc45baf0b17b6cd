package privilege

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whisper/spamguard/internal/moderation"
)

type fakeLookup struct {
	mu       sync.Mutex
	statuses map[Key]string
	err      error
	calls    int
}

func (f *fakeLookup) PrivilegeStatus(_ context.Context, chatID, userID int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.statuses[Key{ChatID: chatID, UserID: userID}], nil
}

func (f *fakeLookup) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

var group = moderation.Chat{ID: -1001, Type: moderation.ChatSupergroup}

func newTestCache(lookup Lookup, store Store) (*Cache, *clock) {
	clk := &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	return NewCache(lookup, store, DefaultConfig(), testLogger(), WithClock(clk.Now)), clk
}

func TestIsPrivilegedStatus(t *testing.T) {
	tests := []struct {
		status string
		want   bool
	}{
		{"creator", true},
		{"owner", true},
		{"administrator", true},
		{"member", false},
		{"restricted", false},
		{"left", false},
		{"kicked", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsPrivilegedStatus(tt.status), tt.status)
	}
}

func TestIsPrivileged_PrivateChatAlwaysTrue(t *testing.T) {
	lookup := &fakeLookup{err: errors.New("must not be called")}
	c, _ := newTestCache(lookup, nil)

	for _, typ := range []string{moderation.ChatPrivate, moderation.ChatChannel, ""} {
		assert.True(t, c.IsPrivileged(context.Background(), moderation.Chat{ID: 5, Type: typ}, 5))
	}
	assert.Zero(t, lookup.callCount())
}

func TestIsPrivileged_FreshEntryServedFromCache(t *testing.T) {
	lookup := &fakeLookup{statuses: map[Key]string{{ChatID: group.ID, UserID: 1}: "administrator"}}
	c, clk := newTestCache(lookup, nil)
	ctx := context.Background()

	assert.True(t, c.IsPrivileged(ctx, group, 1))
	assert.Equal(t, 1, lookup.callCount())

	clk.Advance(299 * time.Second)
	assert.True(t, c.IsPrivileged(ctx, group, 1))
	assert.Equal(t, 1, lookup.callCount(), "verdict younger than ttl must not be re-fetched")
}

func TestIsPrivileged_StaleEntryTriggersOneLookup(t *testing.T) {
	key := Key{ChatID: group.ID, UserID: 1}
	lookup := &fakeLookup{statuses: map[Key]string{key: "administrator"}}
	c, clk := newTestCache(lookup, nil)
	ctx := context.Background()

	require.True(t, c.IsPrivileged(ctx, group, 1))

	// Demoted while cached.
	lookup.statuses[key] = "member"
	clk.Advance(300 * time.Second)

	assert.False(t, c.IsPrivileged(ctx, group, 1), "stale privileged verdict must not survive ttl")
	assert.Equal(t, 2, lookup.callCount())

	assert.False(t, c.IsPrivileged(ctx, group, 1))
	assert.Equal(t, 2, lookup.callCount(), "refreshed verdict is cached again")
}

func TestIsPrivileged_NegativeVerdictCached(t *testing.T) {
	lookup := &fakeLookup{statuses: map[Key]string{}}
	c, _ := newTestCache(lookup, nil)

	assert.False(t, c.IsPrivileged(context.Background(), group, 9))
	assert.False(t, c.IsPrivileged(context.Background(), group, 9))
	assert.Equal(t, 1, lookup.callCount())
}

func TestIsPrivileged_LookupErrorFailsClosedAndIsNotCached(t *testing.T) {
	key := Key{ChatID: group.ID, UserID: 1}
	lookup := &fakeLookup{statuses: map[Key]string{key: "creator"}, err: errors.New("timeout")}
	store := NewMemoryStore()
	c, _ := newTestCache(lookup, store)
	ctx := context.Background()

	assert.False(t, c.IsPrivileged(ctx, group, 1))
	assert.Zero(t, store.Len())

	lookup.err = nil
	assert.True(t, c.IsPrivileged(ctx, group, 1), "next message re-attempts the lookup")
	assert.Equal(t, 2, lookup.callCount())
}

func TestIsPrivileged_KeysDoNotCollide(t *testing.T) {
	// "1" + "23" and "12" + "3" would collide under string concatenation.
	a := moderation.Chat{ID: 1, Type: moderation.ChatGroup}
	b := moderation.Chat{ID: 12, Type: moderation.ChatGroup}
	lookup := &fakeLookup{statuses: map[Key]string{
		{ChatID: 1, UserID: 23}: "administrator",
		{ChatID: 12, UserID: 3}: "member",
	}}
	c, _ := newTestCache(lookup, nil)

	assert.True(t, c.IsPrivileged(context.Background(), a, 23))
	assert.False(t, c.IsPrivileged(context.Background(), b, 3))
}

type failingStore struct{}

func (failingStore) Get(context.Context, Key) (Entry, bool, error) {
	return Entry{}, false, errors.New("connection refused")
}
func (failingStore) Put(context.Context, Key, Entry) error { return errors.New("connection refused") }
func (failingStore) Sweep(context.Context, time.Time) (int, error) {
	return 0, errors.New("connection refused")
}

func TestIsPrivileged_StoreErrorsDegradeToLookup(t *testing.T) {
	lookup := &fakeLookup{statuses: map[Key]string{{ChatID: group.ID, UserID: 1}: "administrator"}}
	c, _ := newTestCache(lookup, failingStore{})

	assert.True(t, c.IsPrivileged(context.Background(), group, 1))
	assert.True(t, c.IsPrivileged(context.Background(), group, 1))
	assert.Equal(t, 2, lookup.callCount())
}

func TestIsPrivileged_Concurrent(t *testing.T) {
	lookup := &fakeLookup{statuses: map[Key]string{{ChatID: group.ID, UserID: 1}: "administrator"}}
	c, clk := newTestCache(lookup, nil)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%8 == 0 {
				clk.Advance(time.Minute)
			}
			assert.True(t, c.IsPrivileged(context.Background(), group, 1))
			assert.False(t, c.IsPrivileged(context.Background(), group, 2))
		}(i)
	}
	wg.Wait()
	assert.GreaterOrEqual(t, lookup.callCount(), 2)
}

func TestEntryFresh(t *testing.T) {
	now := time.Now()
	ttl := 5 * time.Minute

	assert.True(t, Entry{CheckedAt: now}.Fresh(now, ttl))
	assert.True(t, Entry{CheckedAt: now.Add(-ttl + time.Nanosecond)}.Fresh(now, ttl))
	assert.False(t, Entry{CheckedAt: now.Add(-ttl)}.Fresh(now, ttl))
	assert.False(t, Entry{}.Fresh(now, ttl))
}
