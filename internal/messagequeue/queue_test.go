package messagequeue

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewly/crewly/internal/common/logger"
	"github.com/crewly/crewly/internal/events/bus"
	v1 "github.com/crewly/crewly/pkg/api/v1"
)

func newTestLogger(t *testing.T) *logger.Logger {
	log, err := logger.NewLogger(logger.LoggingConfig{Level: "error", Format: "console", OutputPath: "stdout"})
	require.NoError(t, err)
	return log
}

type fakeAudit struct {
	records []string
}

func (f *fakeAudit) Record(ctx context.Context, eventType string, msg v1.QueuedMessage, detail string) {
	f.records = append(f.records, eventType+":"+msg.ID)
}

func newTestQueue(t *testing.T) *Queue {
	memBus := bus.NewMemoryEventBus(newTestLogger(t))
	t.Cleanup(memBus.Close)
	return New(10, 50, memBus, &fakeAudit{}, newTestLogger(t))
}

func TestEnqueueAssignsPendingStatus(t *testing.T) {
	q := newTestQueue(t)

	id, err := q.Enqueue(PartialMessage{Content: "hello", ConversationID: "c1", Source: v1.SourceWebChat})

	require.NoError(t, err)
	assert.NotEmpty(t, id)

	msg, ok := q.Get(id)
	require.True(t, ok)
	assert.Equal(t, v1.StatusPending, msg.Status)
	assert.Equal(t, "hello", msg.Content)
}

func TestEnqueueReturnsQueueFullAtCapacity(t *testing.T) {
	q := New(1, 10, nil, nil, newTestLogger(t))

	_, err := q.Enqueue(PartialMessage{Content: "first", ConversationID: "c1"})
	require.NoError(t, err)

	_, err = q.Enqueue(PartialMessage{Content: "second", ConversationID: "c1"})
	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestPeekReturnsOldestPending(t *testing.T) {
	q := newTestQueue(t)

	id1, _ := q.Enqueue(PartialMessage{Content: "first", ConversationID: "c1"})
	_, _ = q.Enqueue(PartialMessage{Content: "second", ConversationID: "c1"})

	peeked := q.Peek()
	require.NotNil(t, peeked)
	assert.Equal(t, id1, peeked.ID)
}

func TestStartProcessingBlocksSecondMessage(t *testing.T) {
	q := newTestQueue(t)

	id1, _ := q.Enqueue(PartialMessage{Content: "first", ConversationID: "c1"})
	id2, _ := q.Enqueue(PartialMessage{Content: "second", ConversationID: "c1"})

	require.NoError(t, q.StartProcessing(id1))
	err := q.StartProcessing(id2)

	assert.ErrorIs(t, err, ErrAlreadyProcessing)
}

func TestStartProcessingUnknownIDReturnsNotFound(t *testing.T) {
	q := newTestQueue(t)
	assert.ErrorIs(t, q.StartProcessing("missing"), ErrNotFound)
}

func TestCompleteAppendsHistoryAndFreesSlot(t *testing.T) {
	q := newTestQueue(t)
	id, _ := q.Enqueue(PartialMessage{Content: "hi", ConversationID: "c1"})
	require.NoError(t, q.StartProcessing(id))

	require.NoError(t, q.Complete(id, "response-ref"))

	_, ok := q.Get(id)
	assert.False(t, ok, "completed message should leave the entry map")
	assert.Equal(t, 0, q.PendingCount())

	id2, _ := q.Enqueue(PartialMessage{Content: "next", ConversationID: "c1"})
	assert.NoError(t, q.StartProcessing(id2), "slot should be free after Complete")
}

func TestFailRecordsErrorDetail(t *testing.T) {
	q := newTestQueue(t)
	id, _ := q.Enqueue(PartialMessage{Content: "hi", ConversationID: "c1"})
	require.NoError(t, q.StartProcessing(id))

	require.NoError(t, q.Fail(id, errors.New("session not found")))

	_, ok := q.Get(id)
	assert.False(t, ok)
}

func TestRequeueIncrementsRetryCountAndReturnsToHead(t *testing.T) {
	q := newTestQueue(t)
	id1, _ := q.Enqueue(PartialMessage{Content: "first", ConversationID: "c1"})
	id2, _ := q.Enqueue(PartialMessage{Content: "second", ConversationID: "c1"})

	require.NoError(t, q.StartProcessing(id1))
	require.NoError(t, q.Requeue(id1))

	msg, ok := q.Get(id1)
	require.True(t, ok)
	assert.Equal(t, v1.StatusPending, msg.Status)
	assert.Equal(t, 1, msg.RetryCount)

	peeked := q.Peek()
	require.NotNil(t, peeked)
	assert.Equal(t, id1, peeked.ID, "requeued message returns to the head, ahead of id2")
	_ = id2
}

func TestCancelNonTerminalMessage(t *testing.T) {
	q := newTestQueue(t)
	id, _ := q.Enqueue(PartialMessage{Content: "hi", ConversationID: "c1"})

	require.NoError(t, q.Cancel(id))

	_, ok := q.Get(id)
	assert.False(t, ok)
}

func TestCancelTerminalMessageFails(t *testing.T) {
	q := newTestQueue(t)
	id, _ := q.Enqueue(PartialMessage{Content: "hi", ConversationID: "c1"})
	require.NoError(t, q.StartProcessing(id))
	require.NoError(t, q.Complete(id, ""))

	err := q.Cancel(id)
	assert.Error(t, err)
}

func TestStatusSnapshotFiltersByConversation(t *testing.T) {
	q := newTestQueue(t)
	_, _ = q.Enqueue(PartialMessage{Content: "a", ConversationID: "c1"})
	_, _ = q.Enqueue(PartialMessage{Content: "b", ConversationID: "c2"})

	snapshot, err := q.StatusSnapshot("c1")

	require.NoError(t, err)
	assert.Equal(t, 1, snapshot.PendingCount)
	assert.Len(t, snapshot.PendingIDs, 1)
}

func TestAuditSinkRecordsTerminalTransitions(t *testing.T) {
	memBus := bus.NewMemoryEventBus(newTestLogger(t))
	t.Cleanup(memBus.Close)
	audit := &fakeAudit{}
	q := New(10, 50, memBus, audit, newTestLogger(t))

	id, _ := q.Enqueue(PartialMessage{Content: "hi", ConversationID: "c1"})
	require.NoError(t, q.StartProcessing(id))
	require.NoError(t, q.Complete(id, ""))

	assert.Len(t, audit.records, 1)
}
