package audit

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whisper/spamguard/internal/moderation"
)

// testChatID keeps test rows apart from anything else in the database.
const testChatID = -424242

// newTestStore connects to the database named by TEST_DATABASE_URL, applies
// migrations and clears the test chat's rows.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	db, err := Open(ctx, dsn)
	if err != nil {
		t.Skipf("postgres not available: %v", err)
	}
	require.NoError(t, Migrate(db))
	// A second run is a no-op.
	require.NoError(t, Migrate(db))

	clean := func() {
		_, _ = db.ExecContext(ctx, `DELETE FROM moderation_events WHERE chat_id = $1`, testChatID)
	}
	clean()
	t.Cleanup(func() {
		clean()
		db.Close()
	})
	return NewStore(db)
}

func event(term string, at time.Time) moderation.Event {
	return moderation.Event{
		ID:        uuid.NewString(),
		ChatID:    testChatID,
		MessageID: 1,
		SenderID:  2,
		Term:      term,
		Category:  "gambling",
		Deleted:   true,
		Notified:  true,
		Excerpt:   "充值提现" + term,
		Ts:        at.Unix(),
	}
}

func TestRecordAndCountRecent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.Record(ctx, event("上分", now)))
	require.NoError(t, store.Record(ctx, event("上分", now.Add(-time.Hour))))
	require.NoError(t, store.Record(ctx, event("提现", now.Add(-48*time.Hour))))

	n, err := store.CountRecent(ctx, testChatID, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = store.CountRecent(ctx, testChatID, 72*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestTopTerms(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	for _, term := range []string{"a", "b", "b", "c", "c", "c"} {
		require.NoError(t, store.Record(ctx, event(term, now)))
	}

	top, err := store.TopTerms(ctx, testChatID, time.Hour, 2)
	require.NoError(t, err)
	assert.Equal(t, []TermCount{{"c", 3}, {"b", 2}}, top)
}

func TestRecord_DuplicateID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ev := event("x", time.Now())
	require.NoError(t, store.Record(ctx, ev))
	assert.Error(t, store.Record(ctx, ev))
}

func TestRecord_MissingID(t *testing.T) {
	store := NewStore(nil)
	err := store.Record(context.Background(), moderation.Event{Term: "x"})
	assert.EqualError(t, err, "audit: event without id")
}
