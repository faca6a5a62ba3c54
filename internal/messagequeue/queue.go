// Package messagequeue implements the Message Queue (C5): an in-process
// FIFO with bounded pending size and a small bounded completion history.
//
// Grounded on the teacher's internal/orchestrator/queue.TaskQueue (mutex-
// guarded slice + map-for-lookup, sentinel errors) but FIFO-ordered rather
// than priority-heap-ordered — spec.md's per-source FIFO invariant rules
// out a heap.
package messagequeue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/crewly/crewly/internal/common/logger"
	"github.com/crewly/crewly/internal/events"
	"github.com/crewly/crewly/internal/events/bus"
	"github.com/crewly/crewly/internal/mcpserver"
	v1 "github.com/crewly/crewly/pkg/api/v1"
)

var (
	// ErrQueueFull is returned by Enqueue when pending has reached MaxSize.
	ErrQueueFull = errors.New("messagequeue: queue is full")
	// ErrNotFound is returned by any op addressing an unknown message id.
	ErrNotFound = errors.New("messagequeue: message not found")
	// ErrAlreadyProcessing is returned by StartProcessing when another
	// message already occupies the single in-flight slot.
	ErrAlreadyProcessing = errors.New("messagequeue: another message is already processing")
)

// AuditSink receives each terminal transition for durable
// append-only logging (A6). Implemented by internal/audit.Logger; declared
// here to avoid an import cycle.
type AuditSink interface {
	Record(ctx context.Context, eventType string, msg v1.QueuedMessage, detail string)
}

// PartialMessage is the caller-supplied subset of QueuedMessage that
// Enqueue needs; the queue assigns ID, EnqueuedAt, and Status itself.
type PartialMessage struct {
	Content        string
	ConversationID string
	Source         v1.MessageSource
	SourceMetadata v1.SourceMetadata
	TraceID        string
}

// Queue is the FIFO: order []string preserves arrival order (head = oldest
// pending), entries holds full message state keyed by ID.
type Queue struct {
	logger *logger.Logger
	bus    bus.EventBus
	audit  AuditSink

	maxSize     int
	maxHistory  int

	mu         sync.Mutex
	order      []string
	entries    map[string]*v1.QueuedMessage
	processing string // id currently in the single in-flight slot, or ""
	history    []v1.HistoryEntry
}

// New builds a Queue. audit may be nil (no durable audit trail).
func New(maxSize, maxHistory int, eventBus bus.EventBus, audit AuditSink, log *logger.Logger) *Queue {
	return &Queue{
		logger:     log.WithFields(zap.String("component", "messagequeue")),
		bus:        eventBus,
		audit:      audit,
		maxSize:    maxSize,
		maxHistory: maxHistory,
		entries:    make(map[string]*v1.QueuedMessage),
	}
}

// Enqueue appends partial to the tail of the FIFO, assigning a new id and
// pending status. Returns ErrQueueFull once the pending count reaches
// MaxSize.
func (q *Queue) Enqueue(partial PartialMessage) (string, error) {
	q.mu.Lock()
	if q.maxSize > 0 && len(q.order) >= q.maxSize {
		q.mu.Unlock()
		return "", ErrQueueFull
	}

	id := uuid.New().String()
	msg := &v1.QueuedMessage{
		ID:             id,
		Content:        partial.Content,
		ConversationID: partial.ConversationID,
		Source:         partial.Source,
		SourceMetadata: partial.SourceMetadata,
		EnqueuedAt:     time.Now().UTC(),
		Status:         v1.StatusPending,
		TraceID:        partial.TraceID,
	}
	q.entries[id] = msg
	q.order = append(q.order, id)
	q.mu.Unlock()

	q.publish(events.QueueEnqueued, *msg)
	return id, nil
}

// Peek returns the oldest pending message without removing it, or nil.
func (q *Queue) Peek() *v1.QueuedMessage {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, id := range q.order {
		if msg := q.entries[id]; msg.Status == v1.StatusPending {
			clone := *msg
			return &clone
		}
	}
	return nil
}

// StartProcessing transitions id from pending to processing and claims the
// single in-flight slot, per C6's "at most one message in flight" invariant.
func (q *Queue) StartProcessing(id string) error {
	q.mu.Lock()
	msg, ok := q.entries[id]
	if !ok {
		q.mu.Unlock()
		return ErrNotFound
	}
	if q.processing != "" && q.processing != id {
		q.mu.Unlock()
		return ErrAlreadyProcessing
	}
	msg.Status = v1.StatusProcessing
	q.processing = id
	snapshot := *msg
	q.mu.Unlock()

	q.publish(events.QueueProcessingStarted, snapshot)
	return nil
}

// Complete marks id completed, appends a bounded history entry, and
// releases the in-flight slot.
func (q *Queue) Complete(id string, responseRef string) error {
	return q.finish(id, v1.StatusCompleted, responseRef, "")
}

// Fail marks id failed, appends a bounded history entry, and releases the
// in-flight slot.
func (q *Queue) Fail(id string, cause error) error {
	detail := ""
	if cause != nil {
		detail = cause.Error()
	}
	return q.finish(id, v1.StatusFailed, "", detail)
}

func (q *Queue) finish(id string, status v1.MessageStatus, responseRef, errDetail string) error {
	q.mu.Lock()
	msg, ok := q.entries[id]
	if !ok {
		q.mu.Unlock()
		return ErrNotFound
	}

	msg.Status = status
	q.removeFromOrder(id)
	delete(q.entries, id)
	if q.processing == id {
		q.processing = ""
	}

	entry := v1.HistoryEntry{Message: *msg, FinishedAt: time.Now().UTC(), ResponseRef: responseRef, Err: errDetail}
	q.history = append(q.history, entry)
	if q.maxHistory > 0 && len(q.history) > q.maxHistory {
		q.history = q.history[len(q.history)-q.maxHistory:]
	}
	q.mu.Unlock()

	subject := events.QueueCompleted
	if status == v1.StatusFailed {
		subject = events.QueueFailed
	}
	q.publish(subject, *msg)
	if q.audit != nil {
		q.audit.Record(context.Background(), subject, *msg, errDetail)
	}
	return nil
}

// Requeue returns id to pending and increments retryCount, reinserting it
// at the FIFO head so ordering relative to later arrivals is preserved.
func (q *Queue) Requeue(id string) error {
	q.mu.Lock()
	msg, ok := q.entries[id]
	if !ok {
		q.mu.Unlock()
		return ErrNotFound
	}

	msg.Status = v1.StatusPending
	msg.RetryCount++
	if q.processing == id {
		q.processing = ""
	}

	q.removeFromOrder(id)
	q.order = append([]string{id}, q.order...)
	q.mu.Unlock()

	q.publish(events.QueueStatusUpdate, *msg)
	return nil
}

// Cancel transitions any non-terminal message to cancelled.
func (q *Queue) Cancel(id string) error {
	q.mu.Lock()
	msg, ok := q.entries[id]
	if !ok {
		q.mu.Unlock()
		return ErrNotFound
	}
	if msg.Status.IsTerminal() {
		q.mu.Unlock()
		return fmt.Errorf("messagequeue: message %q already terminal (%s)", id, msg.Status)
	}

	msg.Status = v1.StatusCancelled
	q.removeFromOrder(id)
	delete(q.entries, id)
	if q.processing == id {
		q.processing = ""
	}

	entry := v1.HistoryEntry{Message: *msg, FinishedAt: time.Now().UTC()}
	q.history = append(q.history, entry)
	if q.maxHistory > 0 && len(q.history) > q.maxHistory {
		q.history = q.history[len(q.history)-q.maxHistory:]
	}
	q.mu.Unlock()

	q.publish(events.QueueCancelled, *msg)
	if q.audit != nil {
		q.audit.Record(context.Background(), events.QueueCancelled, *msg, "")
	}
	return nil
}

// Get returns a copy of the message for id, if present (pending or
// processing — terminal messages only live in history).
func (q *Queue) Get(id string) (v1.QueuedMessage, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	msg, ok := q.entries[id]
	if !ok {
		return v1.QueuedMessage{}, false
	}
	return *msg, true
}

// PendingCount returns the number of messages still pending or processing.
func (q *Queue) PendingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.order)
}

// StatusSnapshot satisfies mcpserver.QueueStatusProvider: it reports the
// pending queue for a conversation so a spawned CLI can call
// crewly_queue_status on itself.
func (q *Queue) StatusSnapshot(conversationID string) (mcpserver.QueueSnapshot, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	snapshot := mcpserver.QueueSnapshot{ConversationID: conversationID}
	for _, id := range q.order {
		msg := q.entries[id]
		if conversationID != "" && msg.ConversationID != conversationID {
			continue
		}
		snapshot.PendingIDs = append(snapshot.PendingIDs, id)
		if msg.Status == v1.StatusPending {
			snapshot.PendingCount++
		}
		if id == q.processing {
			snapshot.ActiveStatus = string(msg.Status)
		}
	}
	if snapshot.ActiveStatus == "" {
		snapshot.ActiveStatus = string(v1.StatusPending)
	}
	return snapshot, nil
}

// removeFromOrder deletes id from the order slice. Caller must hold q.mu.
func (q *Queue) removeFromOrder(id string) {
	for i, existing := range q.order {
		if existing == id {
			q.order = append(q.order[:i], q.order[i+1:]...)
			return
		}
	}
}

func (q *Queue) publish(subject string, msg v1.QueuedMessage) {
	if q.bus == nil {
		return
	}
	event := bus.NewEvent(subject, "messagequeue", map[string]interface{}{
		"messageId":      msg.ID,
		"conversationId": msg.ConversationID,
		"status":         string(msg.Status),
		"retryCount":     msg.RetryCount,
	})
	if err := q.bus.Publish(context.Background(), subject, event); err != nil {
		q.logger.Warn("failed to publish queue event", zap.String("subject", subject), zap.Error(err))
	}
}

var _ mcpserver.QueueStatusProvider = (*Queue)(nil)
