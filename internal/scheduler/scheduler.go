// Package scheduler implements the Scheduler (C8): a map of active timers
// keyed by scheduled-message id, arming a time.Timer per entry and
// enqueueing a derived message into the message queue (C5) when it fires.
//
// Grounded on the teacher's internal/orchestrator's timer-driven task
// re-checks for the single-timer-per-entity, cancel-then-rearm shape, and on
// internal/workflow/repository for the persistence layer (store.go).
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/crewly/crewly/internal/common/config"
	"github.com/crewly/crewly/internal/common/logger"
	"github.com/crewly/crewly/internal/messagequeue"
	v1 "github.com/crewly/crewly/pkg/api/v1"
)

// Enqueuer is the subset of messagequeue.Queue the scheduler drives.
type Enqueuer interface {
	Enqueue(partial messagequeue.PartialMessage) (string, error)
}

// Scheduler owns one time.Timer per active ScheduledMessage. Auto-assign
// entries additionally funnel through a single sequential worker so two
// concurrent firings never dispatch at once.
type Scheduler struct {
	store  *Store
	queue  Enqueuer
	logger *logger.Logger
	cfg    config.SchedulerConfig

	mu     sync.Mutex
	timers map[string]*time.Timer
	closed bool

	autoAssignCh chan v1.ScheduledMessage
	stopCh       chan struct{}
	doneCh       chan struct{}
}

// New builds a Scheduler. Call Start to arm timers for every currently
// active scheduled message and begin the auto-assign worker.
func New(store *Store, queue Enqueuer, cfg config.SchedulerConfig, log *logger.Logger) *Scheduler {
	return &Scheduler{
		store:        store,
		queue:        queue,
		logger:       log.WithFields(zap.String("component", "scheduler")),
		cfg:          cfg,
		timers:       make(map[string]*time.Timer),
		autoAssignCh: make(chan v1.ScheduledMessage, 64),
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}
}

// Start loads every active scheduled message from the store and arms its
// timer, and starts the sequential auto-assign worker goroutine.
func (s *Scheduler) Start(ctx context.Context) error {
	go s.runAutoAssignWorker()

	return s.rescheduleAllMessagesLocked(ctx)
}

// Stop cancels every timer and halts the auto-assign worker. Does not touch
// persisted state: a subsequent Start reloads and re-arms from the store.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for id, timer := range s.timers {
		timer.Stop()
		delete(s.timers, id)
	}
	s.mu.Unlock()

	close(s.stopCh)
	<-s.doneCh
}

// ScheduleMessage persists m (insert or full overwrite) and (re)arms its
// timer, cancelling any prior timer for the same id first.
func (s *Scheduler) ScheduleMessage(ctx context.Context, m v1.ScheduledMessage) error {
	if _, err := s.store.Get(ctx, m.ID); err == ErrNotFound {
		if err := s.store.Create(ctx, m); err != nil {
			return err
		}
	} else if err != nil {
		return err
	} else if err := s.store.Update(ctx, m); err != nil {
		return err
	}

	s.armTimer(m)
	return nil
}

// CancelMessage stops m's timer (if any) and marks it inactive.
func (s *Scheduler) CancelMessage(ctx context.Context, id string) error {
	s.mu.Lock()
	if timer, ok := s.timers[id]; ok {
		timer.Stop()
		delete(s.timers, id)
	}
	s.mu.Unlock()

	return s.store.SetActive(ctx, id, false)
}

// CancelAllMessages stops every armed timer without touching persisted
// state. Used by RescheduleAllMessages and Cleanup.
func (s *Scheduler) CancelAllMessages() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, timer := range s.timers {
		timer.Stop()
		delete(s.timers, id)
	}
}

// Cleanup is an alias for CancelAllMessages, matching spec.md's naming.
func (s *Scheduler) Cleanup() {
	s.CancelAllMessages()
}

// RescheduleAllMessages cancels every timer, reloads active entries from
// the store, and re-arms them. Start performs the same reload and re-arm,
// without the cancel step.
func (s *Scheduler) RescheduleAllMessages(ctx context.Context) error {
	s.CancelAllMessages()
	return s.rescheduleAllMessagesLocked(ctx)
}

func (s *Scheduler) rescheduleAllMessagesLocked(ctx context.Context) error {
	messages, err := s.store.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("scheduler: reschedule: %w", err)
	}
	for _, m := range messages {
		s.armTimer(m)
	}
	s.logger.Info("rearmed scheduled messages", zap.Int("count", len(messages)))
	return nil
}

func (s *Scheduler) armTimer(m v1.ScheduledMessage) {
	delay := m.Delay.AsTimeDuration()
	if delay < 0 {
		delay = 0
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if existing, ok := s.timers[m.ID]; ok {
		existing.Stop()
	}
	s.timers[m.ID] = time.AfterFunc(delay, func() { s.fire(m) })
	s.mu.Unlock()
}

// fire runs on the timer's own goroutine. Auto-assign entries are handed off
// to the sequential worker instead of enqueuing directly, so two timers that
// land close together never race each other into the queue.
func (s *Scheduler) fire(m v1.ScheduledMessage) {
	if m.AutoAssign {
		select {
		case s.autoAssignCh <- m:
		case <-s.stopCh:
		}
		return
	}
	s.dispatch(m)
}

// runAutoAssignWorker serializes auto-assign firings, pausing
// AutoAssignSettle between each so consecutive auto-assignments never
// overlap in the orchestrator's attention.
func (s *Scheduler) runAutoAssignWorker() {
	defer close(s.doneCh)
	for {
		select {
		case <-s.stopCh:
			return
		case m := <-s.autoAssignCh:
			s.dispatch(m)
			settle := s.cfg.AutoAssignSettle
			if settle <= 0 {
				settle = 2 * time.Second
			}
			timer := time.NewTimer(settle)
			select {
			case <-timer.C:
			case <-s.stopCh:
				timer.Stop()
				return
			}
		}
	}
}

// dispatch enqueues m's derived message and persists the next run, or marks
// m inactive once a one-shot entry has fired.
func (s *Scheduler) dispatch(m v1.ScheduledMessage) {
	ctx := context.Background()

	_, err := s.queue.Enqueue(messagequeue.PartialMessage{
		Content:        m.Body,
		ConversationID: scheduledConversationID(m),
		Source:         v1.SourceSystemEvent,
		SourceMetadata: v1.SourceMetadata{SystemEvent: &v1.SystemEventMetadata{ProjectPath: m.TargetProject}},
	})
	if err != nil {
		s.logger.Warn("failed to enqueue scheduled message", zap.String("scheduledMessageId", m.ID), zap.Error(err))
	}

	now := time.Now().UTC()
	if m.IsRecurring {
		next := now.Add(m.Delay.AsTimeDuration())
		if err := s.store.RecordRun(ctx, m.ID, now, &next); err != nil {
			s.logger.Warn("failed to record scheduled message run", zap.String("scheduledMessageId", m.ID), zap.Error(err))
		}
		m.LastRun = &now
		s.armTimer(m)
		return
	}

	if err := s.store.RecordRun(ctx, m.ID, now, nil); err != nil {
		s.logger.Warn("failed to record scheduled message run", zap.String("scheduledMessageId", m.ID), zap.Error(err))
	}
	if err := s.store.SetActive(ctx, m.ID, false); err != nil {
		s.logger.Warn("failed to deactivate one-shot scheduled message", zap.String("scheduledMessageId", m.ID), zap.Error(err))
	}

	s.mu.Lock()
	delete(s.timers, m.ID)
	s.mu.Unlock()
}

var _ Enqueuer = (*messagequeue.Queue)(nil)

// scheduledConversationID derives a stable conversation id for a scheduler-
// originated message. Scheduled messages have no chat conversation of their
// own, so the team/project pair they target stands in for one (a judgment
// call recorded in DESIGN.md).
func scheduledConversationID(m v1.ScheduledMessage) string {
	return "schedule:" + m.TargetTeam + ":" + m.TargetProject
}
