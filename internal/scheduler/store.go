package scheduler

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/crewly/crewly/internal/common/database"
	v1 "github.com/crewly/crewly/pkg/api/v1"
)

// ErrNotFound is returned by Store.Get when no scheduled message has the id.
var ErrNotFound = errors.New("scheduler: scheduled message not found")

// Store persists v1.ScheduledMessage rows. Grounded on the teacher's
// internal/workflow/repository.Repository: NewWithDB + initSchema shape,
// plain parameterized CRUD, no ORM.
type Store struct {
	db *database.DB
}

// NewStore builds a Store against db, creating its table if needed.
func NewStore(ctx context.Context, db *database.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.initSchema(ctx); err != nil {
		return nil, fmt.Errorf("scheduler: init schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	_, err := s.db.Writer().ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS scheduled_messages (
			id             TEXT PRIMARY KEY,
			name           TEXT NOT NULL,
			target_team    TEXT NOT NULL DEFAULT '',
			target_project TEXT NOT NULL DEFAULT '',
			body           TEXT NOT NULL,
			delay_amount   INTEGER NOT NULL,
			delay_unit     TEXT NOT NULL,
			is_recurring   INTEGER NOT NULL DEFAULT 0,
			is_active      INTEGER NOT NULL DEFAULT 1,
			auto_assign    INTEGER NOT NULL DEFAULT 0,
			last_run       TIMESTAMP,
			next_run       TIMESTAMP
		)
	`)
	if err != nil {
		return err
	}
	_, err = s.db.Writer().ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS idx_scheduled_messages_active ON scheduled_messages(is_active)`)
	return err
}

// row mirrors scheduled_messages for sqlx scanning; ScheduledMessage itself
// uses *time.Time and a nested Duration that don't map 1:1 onto columns.
type row struct {
	ID            string     `db:"id"`
	Name          string     `db:"name"`
	TargetTeam    string     `db:"target_team"`
	TargetProject string     `db:"target_project"`
	Body          string     `db:"body"`
	DelayAmount   int64      `db:"delay_amount"`
	DelayUnit     string     `db:"delay_unit"`
	IsRecurring   bool       `db:"is_recurring"`
	IsActive      bool       `db:"is_active"`
	AutoAssign    bool       `db:"auto_assign"`
	LastRun       *time.Time `db:"last_run"`
	NextRun       *time.Time `db:"next_run"`
}

func (r row) toMessage() v1.ScheduledMessage {
	return v1.ScheduledMessage{
		ID:            r.ID,
		Name:          r.Name,
		TargetTeam:    r.TargetTeam,
		TargetProject: r.TargetProject,
		Body:          r.Body,
		Delay:         v1.Duration{Amount: r.DelayAmount, Unit: v1.DurationUnit(r.DelayUnit)},
		IsRecurring:   r.IsRecurring,
		IsActive:      r.IsActive,
		LastRun:       r.LastRun,
		NextRun:       r.NextRun,
		AutoAssign:    r.AutoAssign,
	}
}

// Create inserts m, storing its IsActive flag as given.
func (s *Store) Create(ctx context.Context, m v1.ScheduledMessage) error {
	_, err := s.db.Writer().ExecContext(ctx, `
		INSERT INTO scheduled_messages
			(id, name, target_team, target_project, body, delay_amount, delay_unit, is_recurring, is_active, auto_assign, last_run, next_run)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		m.ID, m.Name, m.TargetTeam, m.TargetProject, m.Body,
		m.Delay.Amount, string(m.Delay.Unit), m.IsRecurring, m.IsActive, m.AutoAssign, m.LastRun, m.NextRun,
	)
	if err != nil {
		return fmt.Errorf("scheduler: create scheduled message: %w", err)
	}
	return nil
}

// Update overwrites every field of the row matching m.ID.
func (s *Store) Update(ctx context.Context, m v1.ScheduledMessage) error {
	res, err := s.db.Writer().ExecContext(ctx, `
		UPDATE scheduled_messages
		SET name = ?, target_team = ?, target_project = ?, body = ?, delay_amount = ?, delay_unit = ?,
		    is_recurring = ?, is_active = ?, auto_assign = ?, last_run = ?, next_run = ?
		WHERE id = ?
	`,
		m.Name, m.TargetTeam, m.TargetProject, m.Body, m.Delay.Amount, string(m.Delay.Unit),
		m.IsRecurring, m.IsActive, m.AutoAssign, m.LastRun, m.NextRun, m.ID,
	)
	if err != nil {
		return fmt.Errorf("scheduler: update scheduled message: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetActive flips is_active for id without touching any other column.
func (s *Store) SetActive(ctx context.Context, id string, active bool) error {
	res, err := s.db.Writer().ExecContext(ctx,
		`UPDATE scheduled_messages SET is_active = ? WHERE id = ?`, active, id)
	if err != nil {
		return fmt.Errorf("scheduler: set active: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordRun stamps lastRun/nextRun after a firing.
func (s *Store) RecordRun(ctx context.Context, id string, lastRun time.Time, nextRun *time.Time) error {
	_, err := s.db.Writer().ExecContext(ctx,
		`UPDATE scheduled_messages SET last_run = ?, next_run = ? WHERE id = ?`, lastRun, nextRun, id)
	if err != nil {
		return fmt.Errorf("scheduler: record run: %w", err)
	}
	return nil
}

// Delete removes the row for id. Deleting an unknown id is a no-op.
func (s *Store) Delete(ctx context.Context, id string) error {
	_, err := s.db.Writer().ExecContext(ctx, `DELETE FROM scheduled_messages WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("scheduler: delete scheduled message: %w", err)
	}
	return nil
}

// Get returns one row by id, or ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (v1.ScheduledMessage, error) {
	var r row
	err := s.db.Reader().GetContext(ctx, &r, `
		SELECT id, name, target_team, target_project, body, delay_amount, delay_unit, is_recurring, is_active, auto_assign, last_run, next_run
		FROM scheduled_messages WHERE id = ?
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return v1.ScheduledMessage{}, ErrNotFound
	}
	if err != nil {
		return v1.ScheduledMessage{}, fmt.Errorf("scheduler: get scheduled message: %w", err)
	}
	return r.toMessage(), nil
}

// ListActive returns every row with is_active = true, in no particular
// order; the scheduler arms one timer per result.
func (s *Store) ListActive(ctx context.Context) ([]v1.ScheduledMessage, error) {
	var rows []row
	err := s.db.Reader().SelectContext(ctx, &rows, `
		SELECT id, name, target_team, target_project, body, delay_amount, delay_unit, is_recurring, is_active, auto_assign, last_run, next_run
		FROM scheduled_messages WHERE is_active = 1
	`)
	if err != nil {
		return nil, fmt.Errorf("scheduler: list active scheduled messages: %w", err)
	}
	messages := make([]v1.ScheduledMessage, 0, len(rows))
	for _, r := range rows {
		messages = append(messages, r.toMessage())
	}
	return messages, nil
}
