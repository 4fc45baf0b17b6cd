package telegram

import (
	"context"
	"sync"
	"time"

	"github.com/mymmrac/telego"
	"github.com/sirupsen/logrus"

	"github.com/whisper/spamguard/internal/moderation"
)

// UpdateSource yields platform updates until ctx is cancelled.
type UpdateSource interface {
	Updates(ctx context.Context) (<-chan telego.Update, error)
}

// CommandRouter handles command messages. It reports false for messages
// that are not registered commands.
type CommandRouter interface {
	Dispatch(ctx context.Context, msg moderation.Message) (string, bool)
}

// MessageHandler moderates ordinary messages.
type MessageHandler interface {
	Handle(ctx context.Context, msg moderation.Message) moderation.Outcome
}

// Replier answers a command message.
type Replier interface {
	Reply(ctx context.Context, chatID int64, replyTo int, text string) error
}

// PollerConfig holds update loop settings.
type PollerConfig struct {
	Workers       int           // max updates processed concurrently
	HandleTimeout time.Duration // bound on processing a single update
}

// DefaultPollerConfig returns sensible defaults.
func DefaultPollerConfig() PollerConfig {
	return PollerConfig{
		Workers:       64,
		HandleTimeout: 30 * time.Second,
	}
}

// Poller fans updates out to a bounded pool of goroutines, one per update.
// There is no ordering between updates, even within a chat.
type Poller struct {
	source   UpdateSource
	commands CommandRouter
	pipeline MessageHandler
	replier  Replier
	config   PollerConfig
	logger   *logrus.Entry

	sem chan struct{}
	wg  sync.WaitGroup
}

// NewPoller wires the update loop.
func NewPoller(source UpdateSource, commands CommandRouter, pipeline MessageHandler, replier Replier, config PollerConfig, logger *logrus.Logger) *Poller {
	if config.Workers <= 0 {
		config.Workers = 1
	}
	return &Poller{
		source:   source,
		commands: commands,
		pipeline: pipeline,
		replier:  replier,
		config:   config,
		logger:   logger.WithField("component", "poller"),
		sem:      make(chan struct{}, config.Workers),
	}
}

// Run processes updates until ctx is cancelled or the source closes, then
// waits for in-flight updates to finish.
func (p *Poller) Run(ctx context.Context) error {
	updates, err := p.source.Updates(ctx)
	if err != nil {
		return err
	}
	p.logger.WithField("workers", p.config.Workers).Info("polling for updates")
	defer p.wg.Wait()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("update loop stopped")
			return nil
		case u, ok := <-updates:
			if !ok {
				p.logger.Info("update channel closed")
				return nil
			}
			msg, ok := ToMessage(u)
			if !ok {
				continue
			}

			select {
			case p.sem <- struct{}{}:
			case <-ctx.Done():
				return nil
			}
			p.wg.Add(1)
			go func() {
				defer func() {
					<-p.sem
					p.wg.Done()
				}()
				p.process(ctx, msg)
			}()
		}
	}
}

// process handles one message. Accepted updates are not cancelled by
// shutdown, only bounded by HandleTimeout.
func (p *Poller) process(parent context.Context, msg moderation.Message) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), p.config.HandleTimeout)
	defer cancel()

	if reply, ok := p.commands.Dispatch(ctx, msg); ok {
		if reply == "" {
			return
		}
		if err := p.replier.Reply(ctx, msg.Chat.ID, msg.MessageID, reply); err != nil {
			p.logger.WithError(err).WithField("chat_id", msg.Chat.ID).Warn("failed to send command reply")
		}
		return
	}

	if !msg.Chat.IsGroup() {
		return
	}
	out := p.pipeline.Handle(ctx, msg)
	p.logger.WithFields(logrus.Fields{
		"chat_id":    msg.Chat.ID,
		"message_id": msg.MessageID,
		"state":      out.State.String(),
	}).Debug("message moderated")
}

// ToMessage converts a Telegram update into a moderation message. Updates
// without a message are skipped. Messages with no sender, such as channel
// posts, get sender id 0.
func ToMessage(u telego.Update) (moderation.Message, bool) {
	m := u.Message
	if m == nil {
		return moderation.Message{}, false
	}

	msg := moderation.Message{
		Chat:      moderation.Chat{ID: m.Chat.ID, Type: m.Chat.Type},
		MessageID: m.MessageID,
		Text:      m.Text,
		Date:      time.Unix(m.Date, 0),
	}
	if m.From != nil {
		msg.SenderID = m.From.ID
	}
	return msg, true
}
