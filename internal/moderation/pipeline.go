package moderation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/whisper/spamguard/internal/metrics"
)

// State is a point in a message's moderation lifecycle.
type State int

const (
	StateReceived State = iota
	StateBypassed
	StateChecked
	StateClean
	StateFlagged
	StateDeleted
	StateNotified
	StateNotificationExpired
	StateNotificationFailed
)

var stateNames = [...]string{
	StateReceived:            "received",
	StateBypassed:            "bypassed",
	StateChecked:             "checked",
	StateClean:               "clean",
	StateFlagged:             "flagged",
	StateDeleted:             "deleted",
	StateNotified:            "notified",
	StateNotificationExpired: "notification_expired",
	StateNotificationFailed:  "notification_failed",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// PrivilegeChecker reports whether a sender is exempt from moderation.
type PrivilegeChecker interface {
	IsPrivileged(ctx context.Context, chat Chat, userID int64) bool
}

// Platform is the subset of the chat platform the pipeline acts through.
type Platform interface {
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
	SendMessage(ctx context.Context, chatID int64, text string) (NoticeHandle, error)
}

// NoticeScheduler arranges the delayed removal of a posted notice.
type NoticeScheduler interface {
	Schedule(handle NoticeHandle) error
}

// Auditor receives an Event for every flagged message.
type Auditor interface {
	Record(ctx context.Context, ev Event) error
}

// MultiAuditor fans an event out to several auditors. All are called; the
// first error is returned.
type MultiAuditor []Auditor

func (m MultiAuditor) Record(ctx context.Context, ev Event) error {
	var first error
	for _, a := range m {
		if err := a.Record(ctx, ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// NoticeText is the notice posted after a spam message is removed.
func NoticeText(term string) string {
	return fmt.Sprintf("🗑️ Deleted spam message (matched: %s)", term)
}

// excerptRunes bounds how much of a flagged message is logged and audited.
const excerptRunes = 50

// Outcome is the state a message reached synchronously. For flagged
// messages that were notified, the notice removal is still pending.
type Outcome struct {
	State    State
	Term     string
	Category string
	Deleted  bool
	Notice   NoticeHandle
}

// PipelineConfig holds pipeline settings.
type PipelineConfig struct {
	// CallTimeout bounds each platform call made after a message is flagged.
	CallTimeout time.Duration
}

// DefaultPipelineConfig returns sensible defaults.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		CallTimeout: 10 * time.Second,
	}
}

// Pipeline runs each inbound message through bypass, match and act.
type Pipeline struct {
	filter     *Filter
	privileges PrivilegeChecker
	platform   Platform
	notices    NoticeScheduler
	auditor    Auditor
	config     PipelineConfig
	logger     *logrus.Entry
	now        func() time.Time
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithAuditor records every flagged message through a.
func WithAuditor(a Auditor) PipelineOption {
	return func(p *Pipeline) { p.auditor = a }
}

// WithPipelineConfig overrides DefaultPipelineConfig.
func WithPipelineConfig(cfg PipelineConfig) PipelineOption {
	return func(p *Pipeline) { p.config = cfg }
}

// NewPipeline wires a pipeline from its collaborators.
func NewPipeline(filter *Filter, privileges PrivilegeChecker, platform Platform, notices NoticeScheduler, logger *logrus.Logger, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		filter:     filter,
		privileges: privileges,
		platform:   platform,
		notices:    notices,
		config:     DefaultPipelineConfig(),
		logger:     logger.WithField("component", "pipeline"),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Handle moderates a single message. It never returns an error: platform
// and storage failures are logged and reflected in the returned Outcome.
func (p *Pipeline) Handle(ctx context.Context, msg Message) Outcome {
	start := p.now()
	defer func() {
		metrics.ModerationLatency.Observe(p.now().Sub(start).Seconds())
	}()

	if msg.Text == "" || p.privileges.IsPrivileged(ctx, msg.Chat, msg.SenderID) {
		metrics.MessagesTotal.WithLabelValues("bypassed").Inc()
		return Outcome{State: StateBypassed}
	}

	result := p.filter.Check(msg.Text)
	if !result.Blocked {
		metrics.MessagesTotal.WithLabelValues("clean").Inc()
		return Outcome{State: StateClean}
	}
	metrics.MessagesTotal.WithLabelValues("flagged").Inc()

	// Once flagged, deletion and notification are attempted even if the
	// caller goes away.
	ctx = context.WithoutCancel(ctx)
	out := p.act(ctx, msg, result)
	p.audit(ctx, msg, out)
	return out
}

func (p *Pipeline) act(ctx context.Context, msg Message, result FilterResult) Outcome {
	out := Outcome{State: StateFlagged, Term: result.Term, Category: result.Category}
	log := p.logger.WithFields(logrus.Fields{
		"chat_id":    msg.Chat.ID,
		"message_id": msg.MessageID,
		"matched":    result.Term,
	})

	if err := p.call(ctx, func(ctx context.Context) error {
		return p.platform.DeleteMessage(ctx, msg.Chat.ID, msg.MessageID)
	}); err != nil {
		metrics.DeletionsTotal.WithLabelValues("error").Inc()
		log.WithError(err).Warn("failed to delete spam message")
	} else {
		metrics.DeletionsTotal.WithLabelValues("ok").Inc()
		out.Deleted = true
		log.Infof("deleted spam message: %s... (matched: %s)", excerpt(msg.Text), result.Term)
	}
	out.State = StateDeleted

	var handle NoticeHandle
	if err := p.call(ctx, func(ctx context.Context) error {
		var err error
		handle, err = p.platform.SendMessage(ctx, msg.Chat.ID, NoticeText(result.Term))
		return err
	}); err != nil {
		metrics.NoticesTotal.WithLabelValues("send_failed").Inc()
		log.WithError(err).Error("failed to post moderation notice")
		out.State = StateNotificationFailed
		return out
	}
	metrics.NoticesTotal.WithLabelValues("sent").Inc()
	out.State = StateNotified
	out.Notice = handle

	if err := p.notices.Schedule(handle); err != nil {
		log.WithError(err).Warn("notice removal not scheduled, notice stays visible")
	}
	return out
}

func (p *Pipeline) call(ctx context.Context, fn func(context.Context) error) error {
	if p.config.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.CallTimeout)
		defer cancel()
	}
	return fn(ctx)
}

func (p *Pipeline) audit(ctx context.Context, msg Message, out Outcome) {
	if p.auditor == nil {
		return
	}
	ev := Event{
		ID:        uuid.NewString(),
		ChatID:    msg.Chat.ID,
		MessageID: msg.MessageID,
		SenderID:  msg.SenderID,
		Term:      out.Term,
		Category:  out.Category,
		Deleted:   out.Deleted,
		Notified:  out.State == StateNotified,
		Excerpt:   excerpt(msg.Text),
		Ts:        p.now().Unix(),
	}
	if err := p.call(ctx, func(ctx context.Context) error {
		return p.auditor.Record(ctx, ev)
	}); err != nil {
		p.logger.WithError(err).WithField("event_id", ev.ID).Warn("failed to record moderation event")
	}
}

func excerpt(text string) string {
	r := []rune(text)
	if len(r) <= excerptRunes {
		return text
	}
	return string(r[:excerptRunes])
}
