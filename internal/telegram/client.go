// Package telegram adapts the Telegram Bot API (via telego) to the narrow
// interfaces the moderation core depends on, and runs the long-poll update
// loop.
package telegram

import (
	"context"
	"errors"
	"fmt"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	"github.com/sirupsen/logrus"

	"github.com/whisper/spamguard/internal/moderation"
)

// ErrMissingToken is returned when the bot token is empty.
var ErrMissingToken = errors.New("telegram: bot token is required")

// Client implements moderation.Platform, privilege.Lookup and
// notice.Remover over a telego bot.
type Client struct {
	bot    *telego.Bot
	logger *logrus.Entry
}

// NewClient creates a bot client. It does not contact Telegram.
func NewClient(token string, logger *logrus.Logger) (*Client, error) {
	if token == "" {
		return nil, ErrMissingToken
	}
	log := logger.WithField("component", "telegram")

	bot, err := telego.NewBot(token, telego.WithLogger(log))
	if err != nil {
		return nil, fmt.Errorf("telegram: new bot: %w", err)
	}
	return &Client{bot: bot, logger: log}, nil
}

// Username returns the bot's username, verifying the token on the way.
func (c *Client) Username(ctx context.Context) (string, error) {
	me, err := c.bot.GetMe(ctx)
	if err != nil {
		return "", fmt.Errorf("telegram: get me: %w", err)
	}
	return me.Username, nil
}

// PrivilegeStatus returns the member status of userID in chatID, such as
// "administrator" or "member".
func (c *Client) PrivilegeStatus(ctx context.Context, chatID, userID int64) (string, error) {
	member, err := c.bot.GetChatMember(ctx, &telego.GetChatMemberParams{
		ChatID: tu.ID(chatID),
		UserID: userID,
	})
	if err != nil {
		return "", fmt.Errorf("telegram: get chat member: %w", err)
	}
	return member.MemberStatus(), nil
}

// DeleteMessage deletes a message. Already-deleted messages and missing
// rights both surface as errors.
func (c *Client) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	err := c.bot.DeleteMessage(ctx, &telego.DeleteMessageParams{
		ChatID:    tu.ID(chatID),
		MessageID: messageID,
	})
	if err != nil {
		return fmt.Errorf("telegram: delete message: %w", err)
	}
	return nil
}

// SendMessage posts text to a chat and returns a handle to the new message.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) (moderation.NoticeHandle, error) {
	msg, err := c.bot.SendMessage(ctx, tu.Message(tu.ID(chatID), text))
	if err != nil {
		return moderation.NoticeHandle{}, fmt.Errorf("telegram: send message: %w", err)
	}
	return moderation.NoticeHandle{ChatID: msg.Chat.ID, MessageID: msg.MessageID}, nil
}

// Reply answers a message in the same chat. The reply is still sent if the
// original was deleted in the meantime.
func (c *Client) Reply(ctx context.Context, chatID int64, replyTo int, text string) error {
	params := tu.Message(tu.ID(chatID), text).WithReplyParameters(&telego.ReplyParameters{
		MessageID:                replyTo,
		AllowSendingWithoutReply: true,
	})
	if _, err := c.bot.SendMessage(ctx, params); err != nil {
		return fmt.Errorf("telegram: reply: %w", err)
	}
	return nil
}

// Updates starts long polling for message updates. The channel is closed
// once ctx is cancelled.
func (c *Client) Updates(ctx context.Context) (<-chan telego.Update, error) {
	updates, err := c.bot.UpdatesViaLongPolling(ctx, &telego.GetUpdatesParams{
		Timeout:        30,
		AllowedUpdates: []string{"message"},
	})
	if err != nil {
		return nil, fmt.Errorf("telegram: long polling: %w", err)
	}
	return updates, nil
}
