package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/slonigiraf/slonledger/internal/record"
)

// InsertScheduledEvent persists a deferred side effect and fires the
// change hook so the drain loop wakes up.
func (s *Store) InsertScheduledEvent(ctx context.Context, typ record.EventType, deadline time.Time, data string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO scheduled_events (type, deadline, data) VALUES (?, ?, ?)
	`, string(typ), timeCol(deadline), data)
	if err != nil {
		return 0, fmt.Errorf("insert scheduled event: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert scheduled event: last insert id: %w", err)
	}
	s.notifyChange()
	return id, nil
}

// EarliestDueEvent returns the not-yet-acknowledged event of the given
// type with the earliest deadline at or before now. ok=false if none
// is due.
func (s *Store) EarliestDueEvent(ctx context.Context, typ record.EventType, now time.Time) (record.ScheduledEvent, bool, error) {
	var (
		e        record.ScheduledEvent
		evType   string
		deadline int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, type, deadline, data FROM scheduled_events
		WHERE type = ? AND deadline <= ?
		ORDER BY deadline ASC, id ASC
		LIMIT 1
	`, string(typ), timeCol(now)).Scan(&e.ID, &evType, &deadline, &e.Data)
	if errors.Is(err, sql.ErrNoRows) {
		return record.ScheduledEvent{}, false, nil
	}
	if err != nil {
		return record.ScheduledEvent{}, false, fmt.Errorf("earliest due event: %w", err)
	}
	e.Type = record.EventType(evType)
	e.Deadline = colTime(deadline)
	return e, true, nil
}

// EarliestDueAny is EarliestDueEvent without the type filter; the
// drain loop uses it to process events of every type in deadline
// order.
func (s *Store) EarliestDueAny(ctx context.Context, now time.Time) (record.ScheduledEvent, bool, error) {
	var (
		e        record.ScheduledEvent
		evType   string
		deadline int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, type, deadline, data FROM scheduled_events
		WHERE deadline <= ?
		ORDER BY deadline ASC, id ASC
		LIMIT 1
	`, timeCol(now)).Scan(&e.ID, &evType, &deadline, &e.Data)
	if errors.Is(err, sql.ErrNoRows) {
		return record.ScheduledEvent{}, false, nil
	}
	if err != nil {
		return record.ScheduledEvent{}, false, fmt.Errorf("earliest due event: %w", err)
	}
	e.Type = record.EventType(evType)
	e.Deadline = colTime(deadline)
	return e, true, nil
}

// NextDeadline returns the earliest deadline of any pending event,
// due or not. ok=false when the table is empty.
func (s *Store) NextDeadline(ctx context.Context) (time.Time, bool, error) {
	var deadline int64
	err := s.db.QueryRowContext(ctx, `
		SELECT deadline FROM scheduled_events ORDER BY deadline ASC LIMIT 1
	`).Scan(&deadline)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("next deadline: %w", err)
	}
	return colTime(deadline), true, nil
}

// DeleteScheduledEvent acknowledges an event. Acknowledging an
// already-deleted event is a no-op; delivery is at-least-once and a
// consumer may observe the same event twice.
func (s *Store) DeleteScheduledEvent(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM scheduled_events WHERE id = ?
	`, id)
	if err != nil {
		return fmt.Errorf("delete scheduled event: %w", err)
	}
	return nil
}

// AllScheduledEvents returns every pending event.
func (s *Store) AllScheduledEvents(ctx context.Context) ([]record.ScheduledEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, deadline, data FROM scheduled_events ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query scheduled events: %w", err)
	}
	defer rows.Close()

	out := []record.ScheduledEvent{}
	for rows.Next() {
		var (
			e        record.ScheduledEvent
			evType   string
			deadline int64
		)
		if err := rows.Scan(&e.ID, &evType, &deadline, &e.Data); err != nil {
			return nil, fmt.Errorf("scan scheduled event: %w", err)
		}
		e.Type = record.EventType(evType)
		e.Deadline = colTime(deadline)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scheduled events: %w", err)
	}
	return out, nil
}
