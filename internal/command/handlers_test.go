package command

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whisper/spamguard/internal/audit"
	"github.com/whisper/spamguard/internal/catalog"
	"github.com/whisper/spamguard/internal/moderation"
)

type failingPersister struct{}

func (failingPersister) Save(catalog.Categories) error { return errors.New("read-only file system") }

// spyCatalog fails the test if any catalog method is reached.
type spyCatalog struct{ t *testing.T }

func (s spyCatalog) Add(string, string) (bool, error) {
	s.t.Fatal("catalog accessed")
	return false, nil
}
func (s spyCatalog) Remove(string) (bool, error) {
	s.t.Fatal("catalog accessed")
	return false, nil
}
func (s spyCatalog) Snapshot() catalog.Snapshot {
	s.t.Fatal("catalog accessed")
	return catalog.Snapshot{}
}

type fakeHistory struct {
	n      int
	err    error
	top    []audit.TermCount
	topErr error
}

func (f fakeHistory) CountRecent(context.Context, int64, time.Duration) (int, error) {
	return f.n, f.err
}

func (f fakeHistory) TopTerms(context.Context, int64, time.Duration, int) ([]audit.TermCount, error) {
	return f.top, f.topErr
}

var (
	groupChat = moderation.Chat{ID: -100, Type: moderation.ChatSupergroup}
	admin     = int64(1)
	member    = int64(2)
)

type adminChecker struct{}

func (adminChecker) IsPrivileged(_ context.Context, chat moderation.Chat, userID int64) bool {
	return !chat.IsGroup() || userID == admin
}

func newDispatcher(c Catalog, history History) *Dispatcher {
	d := NewDispatcher("bot", testLogger())
	NewHandlers(c, history, testLogger()).Register(d, adminChecker{}, nil)
	return d
}

func send(t *testing.T, d *Dispatcher, sender int64, text string) string {
	t.Helper()
	reply, ok := d.Dispatch(context.Background(), moderation.Message{Chat: groupChat, SenderID: sender, MessageID: 1, Text: text})
	require.True(t, ok, text)
	return reply
}

func TestAddTwice(t *testing.T) {
	d := newDispatcher(catalog.New(nil, catalog.Default()), nil)

	assert.Equal(t, "✅ Added keyword: 测试词", send(t, d, admin, "/add 测试词"))
	assert.Equal(t, "❌ Keyword already exists: 测试词", send(t, d, admin, "/add 测试词"))
}

func TestAddJoinsArguments(t *testing.T) {
	c := catalog.New(nil, catalog.Categories{{Name: catalog.CategoryCustom}})
	d := newDispatcher(c, nil)

	assert.Equal(t, "✅ Added keyword: free money", send(t, d, admin, "/add free   money"))
	assert.Equal(t, []string{"free money"}, c.Flatten())
}

func TestAddUsage(t *testing.T) {
	d := newDispatcher(catalog.New(nil, nil), nil)
	assert.Equal(t, addUsageText, send(t, d, admin, "/add"))
	assert.Equal(t, deleteUsageText, send(t, d, admin, "/delete"))
}

func TestPersistFailure(t *testing.T) {
	c := catalog.New(failingPersister{}, catalog.Categories{{Name: catalog.CategoryCustom, Keywords: []string{"old"}}})
	d := newDispatcher(c, nil)

	assert.Equal(t, saveFailedText, send(t, d, admin, "/add new"))
	assert.Equal(t, saveFailedText, send(t, d, admin, "/delete old"))
	assert.Equal(t, []string{"old"}, c.Flatten())
}

func TestDelete(t *testing.T) {
	d := newDispatcher(catalog.New(nil, catalog.Default()), nil)

	assert.Equal(t, "✅ Deleted keyword: 上分", send(t, d, admin, "/delete 上分"))
	assert.Equal(t, "❌ Keyword not found: 上分", send(t, d, admin, "/delete 上分"))
}

func TestAdminCommandsRejectMembersWithoutCatalogAccess(t *testing.T) {
	d := newDispatcher(spyCatalog{t: t}, nil)

	for _, cmd := range []string{"/add x", "/delete x", "/list", "/stats"} {
		assert.Equal(t, RejectText, send(t, d, member, cmd), cmd)
	}
}

func TestPublicCommands(t *testing.T) {
	d := newDispatcher(spyCatalog{t: t}, nil)

	assert.Equal(t, WelcomeText, send(t, d, member, "/start"))
	assert.Equal(t, HealthText, send(t, d, member, "/health"))
}

func TestList(t *testing.T) {
	c := catalog.New(nil, catalog.Categories{{Name: catalog.CategoryCustom}})
	d := newDispatcher(c, nil)

	assert.Equal(t, "📝 Keyword list is empty", send(t, d, admin, "/list"))

	_, err := c.Add("上分", "")
	require.NoError(t, err)
	assert.Equal(t, "📝 Current keyword list:\n\n\n⚙️ Custom:\n1. 上分", send(t, d, admin, "/list"))
}

func TestStats(t *testing.T) {
	c := catalog.New(nil, catalog.Default())

	top := []audit.TermCount{{Term: "上分", Count: 5}, {Term: "vip", Count: 2}}
	reply := send(t, newDispatcher(c, fakeHistory{n: 7, top: top}), admin, "/stats")
	assert.True(t, strings.HasPrefix(reply, "📊 Bot Statistics\n\n🔢 Total keywords: 46\n"), reply)
	assert.Contains(t, reply, "• 🎰 Gambling: 21\n")
	assert.Contains(t, reply, "• 🔞 Adult: 16\n")
	assert.Contains(t, reply, "• 🪙 Crypto scam: 9\n")
	assert.Contains(t, reply, "• ⚙️ Custom: 0\n")
	assert.Contains(t, reply, "🧹 Removed in last 24h: 7\n🔝 Top matches: 上分 (5), vip (2)\n")
	assert.True(t, strings.HasSuffix(reply, "🟢 Status: Running normally"))

	reply = send(t, newDispatcher(c, fakeHistory{n: 1, topErr: errors.New("timeout")}), admin, "/stats")
	assert.Contains(t, reply, "🧹 Removed in last 24h: 1")
	assert.NotContains(t, reply, "Top matches")

	reply = send(t, newDispatcher(c, fakeHistory{err: errors.New("db down")}), admin, "/stats")
	assert.NotContains(t, reply, "Removed in last 24h")

	reply = send(t, newDispatcher(c, nil), admin, "/stats")
	assert.NotContains(t, reply, "Removed in last 24h")
}
