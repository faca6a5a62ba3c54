// Package audit implements the durable queue-event audit log (A6): an
// append-only sqlite table recording every terminal message transition
// (completed, failed, cancelled) the message queue (C5) reports through
// its AuditSink.
//
// Grounded on the teacher's internal/analytics/repository/sqlite.Repository:
// same NewWithDB + ensureIndexes shape, same "own nothing, index what's
// already there" posture.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/crewly/crewly/internal/common/database"
	"github.com/crewly/crewly/internal/common/logger"
	v1 "github.com/crewly/crewly/pkg/api/v1"
)

// Entry is one row of the append-only queue_events table.
type Entry struct {
	ID             int64     `db:"id"`
	MessageID      string    `db:"message_id"`
	ConversationID string    `db:"conversation_id"`
	EventType      string    `db:"event_type"`
	Status         string    `db:"status"`
	Detail         string    `db:"detail"`
	RetryCount     int       `db:"retry_count"`
	SourceMetadata string    `db:"source_metadata"`
	RecordedAt     time.Time `db:"recorded_at"`
}

// Logger persists queue transitions to the queue_events table. It satisfies
// messagequeue.AuditSink.
type Logger struct {
	db     *database.DB
	logger *logger.Logger
}

// New builds a Logger against db, creating the table and its indexes if
// they don't already exist.
func New(ctx context.Context, db *database.DB, log *logger.Logger) (*Logger, error) {
	l := &Logger{db: db, logger: log.WithFields(zap.String("component", "audit"))}
	if err := l.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("audit: ensure schema: %w", err)
	}
	return l, nil
}

func (l *Logger) ensureSchema(ctx context.Context) error {
	_, err := l.db.Writer().ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS queue_events (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			message_id      TEXT NOT NULL,
			conversation_id TEXT NOT NULL,
			event_type      TEXT NOT NULL,
			status          TEXT NOT NULL,
			detail          TEXT NOT NULL DEFAULT '',
			retry_count     INTEGER NOT NULL DEFAULT 0,
			source_metadata TEXT NOT NULL DEFAULT '{}',
			recorded_at     TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return err
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_queue_events_conversation_recorded
			ON queue_events(conversation_id, recorded_at)`,
		`CREATE INDEX IF NOT EXISTS idx_queue_events_message
			ON queue_events(message_id)`,
		`CREATE INDEX IF NOT EXISTS idx_queue_events_recorded
			ON queue_events(recorded_at)`,
	}
	for _, idx := range indexes {
		if _, err := l.db.Writer().ExecContext(ctx, idx); err != nil {
			return err
		}
	}
	return nil
}

// Record appends one transition. Write failures are logged, never returned:
// the audit trail is best-effort and must never block or fail the dispatch
// loop it observes.
func (l *Logger) Record(ctx context.Context, eventType string, msg v1.QueuedMessage, detail string) {
	metadataJSON, err := json.Marshal(describeSource(msg))
	if err != nil {
		metadataJSON = []byte("{}")
	}

	_, err = l.db.Writer().ExecContext(ctx, `
		INSERT INTO queue_events
			(message_id, conversation_id, event_type, status, detail, retry_count, source_metadata, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		msg.ID, msg.ConversationID, eventType, string(msg.Status), detail, msg.RetryCount, string(metadataJSON), time.Now().UTC(),
	)
	if err != nil {
		l.logger.Warn("failed to record audit entry",
			zap.String("messageId", msg.ID), zap.String("eventType", eventType), zap.Error(err))
	}
}

// describeSource reduces msg's closed-sum-type SourceMetadata to a small
// JSON-friendly map for the audit trail, without leaking callback funcs.
func describeSource(msg v1.QueuedMessage) map[string]string {
	meta := msg.SourceMetadata
	switch {
	case meta.Slack != nil:
		return map[string]string{"source": string(v1.SourceSlack), "channelId": meta.Slack.ChannelID}
	case meta.WhatsApp != nil:
		return map[string]string{"source": string(v1.SourceWhatsApp), "chatId": meta.WhatsApp.ChatID}
	case meta.Discord != nil:
		return map[string]string{"source": string(v1.SourceDiscord), "channelId": meta.Discord.ChannelID}
	case meta.WebChat != nil:
		return map[string]string{"source": string(v1.SourceWebChat)}
	case meta.SystemEvent != nil:
		return map[string]string{"source": string(v1.SourceSystemEvent), "outcomeKind": meta.SystemEvent.OutcomeKind}
	default:
		return map[string]string{"source": string(msg.Source)}
	}
}

// Recent returns up to limit of the most recently recorded entries,
// optionally filtered to one conversation. Used by crewlyctl's "queue
// history" inspection command.
func (l *Logger) Recent(ctx context.Context, conversationID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}

	var entries []Entry
	var err error
	if conversationID != "" {
		err = l.db.Reader().SelectContext(ctx, &entries, `
			SELECT id, message_id, conversation_id, event_type, status, detail, retry_count, source_metadata, recorded_at
			FROM queue_events
			WHERE conversation_id = ?
			ORDER BY id DESC
			LIMIT ?
		`, conversationID, limit)
	} else {
		err = l.db.Reader().SelectContext(ctx, &entries, `
			SELECT id, message_id, conversation_id, event_type, status, detail, retry_count, source_metadata, recorded_at
			FROM queue_events
			ORDER BY id DESC
			LIMIT ?
		`, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("audit: query recent entries: %w", err)
	}
	return entries, nil
}
