// Package command implements the chat command surface: parsing "/name args"
// messages, gating admin commands on privilege, and rendering replies.
package command

import (
	"context"
	"slices"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/whisper/spamguard/internal/metrics"
	"github.com/whisper/spamguard/internal/moderation"
)

// RejectText is the reply to an admin command from a non-privileged sender.
const RejectText = "❌ This command is only for group admins"

// Request is a parsed command invocation.
type Request struct {
	Chat      moderation.Chat
	SenderID  int64
	MessageID int
	Name      string   // lower-case, without slash or @bot suffix
	Args      []string // whitespace-separated arguments
}

// Handler handles a command and returns the reply text. An empty reply sends
// nothing.
type Handler func(ctx context.Context, req Request) string

// Dispatcher routes command messages to registered handlers by name.
type Dispatcher struct {
	handlers map[string]Handler
	botName  string
	logger   *logrus.Entry
}

// NewDispatcher creates a Dispatcher. botName is the bot's username; commands
// addressed to another bot ("/list@otherbot") are ignored.
func NewDispatcher(botName string, logger *logrus.Logger) *Dispatcher {
	return &Dispatcher{
		handlers: make(map[string]Handler),
		botName:  botName,
		logger:   logger.WithField("component", "command"),
	}
}

// Register associates a Handler with a command name. If a handler was already
// registered for the name, it is silently replaced.
func (d *Dispatcher) Register(name string, handler Handler) {
	d.handlers[strings.ToLower(name)] = handler
}

// Parse splits a command message into its name and arguments. It reports
// false for text that is not a command or is addressed to another bot.
func (d *Dispatcher) Parse(text string) (name string, args []string, ok bool) {
	if !strings.HasPrefix(text, "/") {
		return "", nil, false
	}
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return "", nil, false
	}

	name = strings.TrimPrefix(fields[0], "/")
	if at := strings.IndexByte(name, '@'); at >= 0 {
		target := name[at+1:]
		if d.botName != "" && !strings.EqualFold(target, d.botName) {
			return "", nil, false
		}
		name = name[:at]
	}
	if name == "" {
		return "", nil, false
	}
	return strings.ToLower(name), fields[1:], true
}

// Dispatch runs the handler for msg if it is a registered command. It reports
// false when msg is not one, in which case the caller treats it as an
// ordinary message.
func (d *Dispatcher) Dispatch(ctx context.Context, msg moderation.Message) (string, bool) {
	name, args, ok := d.Parse(msg.Text)
	if !ok {
		return "", false
	}
	handler, ok := d.handlers[name]
	if !ok {
		return "", false
	}

	req := Request{
		Chat:      msg.Chat,
		SenderID:  msg.SenderID,
		MessageID: msg.MessageID,
		Name:      name,
		Args:      args,
	}
	reply := handler(ctx, req)

	result := "ok"
	if reply == RejectText {
		result = "rejected"
	}
	metrics.CommandsTotal.WithLabelValues(name, result).Inc()
	d.logger.WithFields(logrus.Fields{
		"command": name,
		"chat_id": msg.Chat.ID,
		"user_id": msg.SenderID,
		"result":  result,
	}).Debug("command handled")

	return reply, true
}

// RequirePrivilege wraps h so it only runs for privileged senders. In group
// chats that means a chat administrator. Private chats are privileged for
// moderation purposes, but catalog changes from a private chat are limited to
// the user ids in allowPrivate.
func RequirePrivilege(checker moderation.PrivilegeChecker, allowPrivate []int64, h Handler) Handler {
	return func(ctx context.Context, req Request) string {
		if !req.Chat.IsGroup() {
			if !slices.Contains(allowPrivate, req.SenderID) {
				return RejectText
			}
			return h(ctx, req)
		}
		if !checker.IsPrivileged(ctx, req.Chat, req.SenderID) {
			return RejectText
		}
		return h(ctx, req)
	}
}
