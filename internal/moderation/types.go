package moderation

import "time"

// Chat types reported by the platform.
const (
	ChatPrivate    = "private"
	ChatGroup      = "group"
	ChatSupergroup = "supergroup"
	ChatChannel    = "channel"
)

// Chat identifies a conversation and its kind.
type Chat struct {
	ID   int64
	Type string
}

// IsGroup reports whether the chat is a group or supergroup. Only group
// chats are moderated and privilege-checked.
func (c Chat) IsGroup() bool {
	return c.Type == ChatGroup || c.Type == ChatSupergroup
}

// Message is an inbound chat message as seen by the pipeline. Text is empty
// for non-text messages.
type Message struct {
	Chat      Chat
	MessageID int
	SenderID  int64
	Text      string
	Date      time.Time
}

// NoticeHandle references a posted moderation notice.
type NoticeHandle struct {
	ChatID    int64
	MessageID int
}

// Event records a flagged message and what was done about it. It is written
// to the audit log and published on moderation.flagged.<chat_id>.
type Event struct {
	ID        string `json:"id"`
	ChatID    int64  `json:"chat_id"`
	MessageID int    `json:"message_id"`
	SenderID  int64  `json:"sender_id"`
	Term      string `json:"term"`
	Category  string `json:"category"`
	Deleted   bool   `json:"deleted"`
	Notified  bool   `json:"notified"`
	Excerpt   string `json:"excerpt"`
	Ts        int64  `json:"ts"`
}
