package scheduler

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/crewly/crewly/internal/common/config"
	"github.com/crewly/crewly/internal/common/database"
	"github.com/crewly/crewly/internal/common/logger"
	"github.com/crewly/crewly/internal/messagequeue"
	v1 "github.com/crewly/crewly/pkg/api/v1"
)

func newTestLogger(t *testing.T) *logger.Logger {
	log, err := logger.NewLogger(logger.LoggingConfig{Level: "error", Format: "console", OutputPath: "stdout"})
	require.NoError(t, err)
	return log
}

func newTestDB(t *testing.T) *database.DB {
	dbPath := filepath.Join(t.TempDir(), "scheduler-test.db")
	db, err := database.Open(context.Background(), config.DatabaseConfig{Driver: "sqlite3", Path: dbPath})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

type fakeEnqueuer struct {
	mu       sync.Mutex
	enqueued []messagequeue.PartialMessage
}

func (f *fakeEnqueuer) Enqueue(partial messagequeue.PartialMessage) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enqueued = append(f.enqueued, partial)
	return "msg-id", nil
}

func (f *fakeEnqueuer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.enqueued)
}

func oneShot(id string, delaySeconds int64) v1.ScheduledMessage {
	return v1.ScheduledMessage{
		ID:            id,
		Name:          "reminder",
		TargetTeam:    "team-a",
		TargetProject: "proj-a",
		Body:          "check in",
		Delay:         v1.Duration{Amount: delaySeconds, Unit: v1.UnitSeconds},
		IsActive:      true,
	}
}

func TestScheduleMessageFiresOnceAndDeactivates(t *testing.T) {
	db := newTestDB(t)
	store, err := NewStore(context.Background(), db)
	require.NoError(t, err)
	enq := &fakeEnqueuer{}
	s := New(store, enq, config.SchedulerConfig{AutoAssignSettle: 10 * time.Millisecond}, newTestLogger(t))
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	m := oneShot("m1", 1)
	require.NoError(t, s.ScheduleMessage(context.Background(), m))

	require.Eventually(t, func() bool { return enq.count() == 1 }, 3*time.Second, 10*time.Millisecond)

	stored, err := store.Get(context.Background(), "m1")
	require.NoError(t, err)
	require.False(t, stored.IsActive, "one-shot message must deactivate after firing")
	require.NotNil(t, stored.LastRun)
	require.Nil(t, stored.NextRun)
}

func TestScheduleMessageRecurringRearms(t *testing.T) {
	db := newTestDB(t)
	store, err := NewStore(context.Background(), db)
	require.NoError(t, err)
	enq := &fakeEnqueuer{}
	s := New(store, enq, config.SchedulerConfig{AutoAssignSettle: 10 * time.Millisecond}, newTestLogger(t))
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	m := oneShot("m2", 1)
	m.IsRecurring = true
	require.NoError(t, s.ScheduleMessage(context.Background(), m))

	require.Eventually(t, func() bool { return enq.count() >= 2 }, 5*time.Second, 10*time.Millisecond)

	stored, err := store.Get(context.Background(), "m2")
	require.NoError(t, err)
	require.True(t, stored.IsActive, "recurring messages stay active")
}

func TestCancelMessageStopsFutureFiring(t *testing.T) {
	db := newTestDB(t)
	store, err := NewStore(context.Background(), db)
	require.NoError(t, err)
	enq := &fakeEnqueuer{}
	s := New(store, enq, config.SchedulerConfig{AutoAssignSettle: 10 * time.Millisecond}, newTestLogger(t))
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	m := oneShot("m3", 3600)
	require.NoError(t, s.ScheduleMessage(context.Background(), m))
	require.NoError(t, s.CancelMessage(context.Background(), "m3"))

	stored, err := store.Get(context.Background(), "m3")
	require.NoError(t, err)
	require.False(t, stored.IsActive)
	require.Equal(t, 0, enq.count())
}

func TestRescheduleAllMessagesReloadsFromStore(t *testing.T) {
	db := newTestDB(t)
	store, err := NewStore(context.Background(), db)
	require.NoError(t, err)

	m := oneShot("m4", 1)
	require.NoError(t, store.Create(context.Background(), m))

	enq := &fakeEnqueuer{}
	s := New(store, enq, config.SchedulerConfig{AutoAssignSettle: 10 * time.Millisecond}, newTestLogger(t))
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	require.Eventually(t, func() bool { return enq.count() == 1 }, 3*time.Second, 10*time.Millisecond)
}

func TestAutoAssignFiringsAreSerializedWithSettleDelay(t *testing.T) {
	db := newTestDB(t)
	store, err := NewStore(context.Background(), db)
	require.NoError(t, err)
	enq := &fakeEnqueuer{}
	settle := 100 * time.Millisecond
	s := New(store, enq, config.SchedulerConfig{AutoAssignSettle: settle}, newTestLogger(t))
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	a := oneShot("a1", 0)
	a.AutoAssign = true
	b := oneShot("a2", 0)
	b.AutoAssign = true

	require.NoError(t, s.ScheduleMessage(context.Background(), a))
	require.NoError(t, s.ScheduleMessage(context.Background(), b))

	start := time.Now()
	require.Eventually(t, func() bool { return enq.count() == 2 }, 3*time.Second, 5*time.Millisecond)
	elapsed := time.Since(start)
	require.GreaterOrEqual(t, elapsed, settle, "second auto-assign firing must wait out the settle delay")
}
