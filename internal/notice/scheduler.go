// Package notice removes moderation notices after a fixed delay without
// blocking the message that triggered them.
//
// Removals are best effort: they live only in memory, deletion errors are
// swallowed, and on shutdown pending removals are either fired immediately
// (Drain) or dropped (Abandon).
package notice

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/whisper/spamguard/internal/metrics"
	"github.com/whisper/spamguard/internal/moderation"
)

// ErrClosed is returned by Schedule after Drain or Abandon.
var ErrClosed = errors.New("notice: scheduler closed")

// Shutdown modes.
const (
	ModeDrain   = "drain"
	ModeAbandon = "abandon"
)

// Remover deletes a posted notice.
type Remover interface {
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
}

// Config holds scheduler settings.
type Config struct {
	Delay         time.Duration // time a notice stays visible
	RemoveTimeout time.Duration // bound on each removal call
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Delay:         5 * time.Second,
		RemoveTimeout: 10 * time.Second,
	}
}

type task struct {
	handle moderation.NoticeHandle
	timer  *time.Timer
}

// Scheduler implements moderation.NoticeScheduler.
type Scheduler struct {
	remover Remover
	config  Config
	logger  *logrus.Entry

	mu     sync.Mutex
	tasks  map[string]*task
	closed bool
	wg     sync.WaitGroup

	onRemoved func(moderation.NoticeHandle, moderation.State)
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithOnRemoved registers a hook called after each removal attempt with
// StateNotificationExpired, or StateNotificationFailed when the platform
// refused the deletion.
func WithOnRemoved(fn func(moderation.NoticeHandle, moderation.State)) Option {
	return func(s *Scheduler) { s.onRemoved = fn }
}

// NewScheduler creates a Scheduler that deletes notices through remover.
func NewScheduler(remover Remover, config Config, logger *logrus.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		remover: remover,
		config:  config,
		logger:  logger.WithField("component", "notice"),
		tasks:   make(map[string]*task),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Schedule arms removal of handle after the configured delay.
func (s *Scheduler) Schedule(handle moderation.NoticeHandle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	id := uuid.NewString()
	t := &task{handle: handle}
	s.tasks[id] = t
	s.wg.Add(1)
	t.timer = time.AfterFunc(s.config.Delay, func() { s.fire(id) })

	metrics.PendingNotices.Inc()
	return nil
}

// Pending returns the number of notices awaiting removal.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// fire claims the task and removes its notice. A task claimed by Abandon or
// Drain first is left alone.
func (s *Scheduler) fire(id string) {
	s.mu.Lock()
	t, ok := s.tasks[id]
	if ok {
		delete(s.tasks, id)
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	defer s.wg.Done()
	metrics.PendingNotices.Dec()

	s.remove(t.handle)
}

func (s *Scheduler) remove(h moderation.NoticeHandle) {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.RemoveTimeout)
	defer cancel()

	state := moderation.StateNotificationExpired
	if err := s.remover.DeleteMessage(ctx, h.ChatID, h.MessageID); err != nil {
		// The notice lingering is acceptable.
		state = moderation.StateNotificationFailed
		metrics.NoticesTotal.WithLabelValues("remove_failed").Inc()
		s.logger.WithError(err).WithField("chat_id", h.ChatID).Debug("notice removal failed")
	} else {
		metrics.NoticesTotal.WithLabelValues("removed").Inc()
	}

	if s.onRemoved != nil {
		s.onRemoved(h, state)
	}
}

// claimAll closes the scheduler, stops every timer and returns the tasks
// whose timers had not fired yet.
func (s *Scheduler) claimAll() []*task {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	claimed := make([]*task, 0, len(s.tasks))
	for id, t := range s.tasks {
		t.timer.Stop()
		delete(s.tasks, id)
		claimed = append(claimed, t)
	}
	return claimed
}

// Abandon stops all pending timers. Their notices stay visible.
func (s *Scheduler) Abandon() int {
	claimed := s.claimAll()
	for range claimed {
		s.wg.Done()
		metrics.PendingNotices.Dec()
		metrics.NoticesTotal.WithLabelValues("abandoned").Inc()
	}
	if n := len(claimed); n > 0 {
		s.logger.WithField("abandoned", n).Info("pending notice removals abandoned")
	}
	return len(claimed)
}

// Drain removes every pending notice now and waits for all removals,
// including ones already in flight, or for ctx.
func (s *Scheduler) Drain(ctx context.Context) error {
	claimed := s.claimAll()
	for _, t := range claimed {
		go func(t *task) {
			defer s.wg.Done()
			metrics.PendingNotices.Dec()
			s.remove(t.handle)
		}(t)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("notice: drain: %w", ctx.Err())
	}
}

// Shutdown closes the scheduler according to mode.
func (s *Scheduler) Shutdown(ctx context.Context, mode string) error {
	switch mode {
	case ModeAbandon:
		s.Abandon()
		return nil
	case ModeDrain, "":
		return s.Drain(ctx)
	default:
		return fmt.Errorf("notice: unknown shutdown mode %q", mode)
	}
}
