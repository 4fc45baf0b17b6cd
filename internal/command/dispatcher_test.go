package command

import (
	"context"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/whisper/spamguard/internal/moderation"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestParse(t *testing.T) {
	d := NewDispatcher("SpamGuardBot", testLogger())

	tests := []struct {
		text string
		name string
		args []string
		ok   bool
	}{
		{"/add 测试词", "add", []string{"测试词"}, true},
		{"/ADD two  words", "add", []string{"two", "words"}, true},
		{"/list@SpamGuardBot", "list", []string{}, true},
		{"/list@spamguardbot", "list", []string{}, true},
		{"/list@OtherBot", "", nil, false},
		{"/", "", nil, false},
		{"/@SpamGuardBot", "", nil, false},
		{"hello /add x", "", nil, false},
		{"", "", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			name, args, ok := d.Parse(tt.text)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.name, name)
			if tt.ok {
				assert.Equal(t, tt.args, args)
			}
		})
	}
}

func TestDispatch(t *testing.T) {
	d := NewDispatcher("bot", testLogger())
	var got Request
	d.Register("Echo", func(_ context.Context, req Request) string {
		got = req
		return "echo"
	})

	chat := moderation.Chat{ID: -1, Type: moderation.ChatGroup}
	reply, ok := d.Dispatch(context.Background(), moderation.Message{Chat: chat, MessageID: 3, SenderID: 9, Text: "/echo a b"})
	assert.True(t, ok)
	assert.Equal(t, "echo", reply)
	assert.Equal(t, Request{Chat: chat, SenderID: 9, MessageID: 3, Name: "echo", Args: []string{"a", "b"}}, got)

	_, ok = d.Dispatch(context.Background(), moderation.Message{Chat: chat, Text: "/unknown 上分"})
	assert.False(t, ok, "unregistered commands are ordinary messages")

	_, ok = d.Dispatch(context.Background(), moderation.Message{Chat: chat, Text: "plain text"})
	assert.False(t, ok)
}

type staticChecker bool

func (s staticChecker) IsPrivileged(context.Context, moderation.Chat, int64) bool { return bool(s) }

func TestRequirePrivilege(t *testing.T) {
	group := moderation.Chat{ID: -1, Type: moderation.ChatSupergroup}
	private := moderation.Chat{ID: 5, Type: moderation.ChatPrivate}

	tests := []struct {
		name       string
		chat       moderation.Chat
		sender     int64
		privileged bool
		allow      []int64
		runs       bool
	}{
		{"group admin", group, 5, true, nil, true},
		{"group member", group, 5, false, nil, false},
		{"private allowlisted", private, 5, true, []int64{5}, true},
		{"private not allowlisted", private, 6, true, []int64{5}, false},
		{"private without allowlist", private, 5, true, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ran := false
			h := RequirePrivilege(staticChecker(tt.privileged), tt.allow, func(context.Context, Request) string {
				ran = true
				return "done"
			})

			reply := h(context.Background(), Request{Chat: tt.chat, SenderID: tt.sender})
			assert.Equal(t, tt.runs, ran)
			if tt.runs {
				assert.Equal(t, "done", reply)
			} else {
				assert.Equal(t, RejectText, reply)
			}
		})
	}
}
