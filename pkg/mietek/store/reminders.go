package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Reminder statuses.
const (
	ReminderPending = "pending"
	ReminderSent    = "sent"
)

// Reminder recurrence values. Empty means one-shot.
const (
	RecurDaily  = "daily"
	RecurWeekly = "weekly"
)

// Reminder is a scheduled note delivered by the heartbeat sweep.
type Reminder struct {
	ID         int64
	Text       string
	DueAt      time.Time
	Recurrence string
	Status     string
	CreatedAt  time.Time
}

// Reminders stores scheduled reminders.
type Reminders struct {
	db *sql.DB
}

// Add schedules a reminder. recurrence is "", "daily" or "weekly".
func (r *Reminders) Add(text string, dueAt time.Time, recurrence string) (int64, error) {
	res, err := r.db.Exec(`
		INSERT INTO reminders (text, due_at, recurrence, status, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		text, formatTime(dueAt), recurrence, ReminderPending, now())
	if err != nil {
		return 0, fmt.Errorf("add reminder: %w", err)
	}
	return res.LastInsertId()
}

// Due returns pending reminders whose due time has passed.
func (r *Reminders) Due(asOf time.Time) ([]*Reminder, error) {
	rows, err := r.db.Query(`
		SELECT id, text, due_at, COALESCE(recurrence, ''), status, created_at
		FROM reminders
		WHERE status = ? AND due_at <= ?
		ORDER BY due_at ASC`,
		ReminderPending, formatTime(asOf))
	if err != nil {
		return nil, fmt.Errorf("list due reminders: %w", err)
	}
	defer rows.Close()

	var out []*Reminder
	for rows.Next() {
		var rem Reminder
		var dueAt, createdAt string
		if err := rows.Scan(&rem.ID, &rem.Text, &dueAt, &rem.Recurrence, &rem.Status, &createdAt); err != nil {
			return nil, fmt.Errorf("scan reminder: %w", err)
		}
		rem.DueAt = parseTime(dueAt)
		rem.CreatedAt = parseTime(createdAt)
		out = append(out, &rem)
	}
	return out, rows.Err()
}

// Upcoming returns pending reminders ordered by due time, for /status.
func (r *Reminders) Upcoming(limit int) ([]*Reminder, error) {
	rows, err := r.db.Query(`
		SELECT id, text, due_at, COALESCE(recurrence, ''), status, created_at
		FROM reminders
		WHERE status = ?
		ORDER BY due_at ASC
		LIMIT ?`,
		ReminderPending, limit)
	if err != nil {
		return nil, fmt.Errorf("list upcoming reminders: %w", err)
	}
	defer rows.Close()

	var out []*Reminder
	for rows.Next() {
		var rem Reminder
		var dueAt, createdAt string
		if err := rows.Scan(&rem.ID, &rem.Text, &dueAt, &rem.Recurrence, &rem.Status, &createdAt); err != nil {
			return nil, fmt.Errorf("scan reminder: %w", err)
		}
		rem.DueAt = parseTime(dueAt)
		rem.CreatedAt = parseTime(createdAt)
		out = append(out, &rem)
	}
	return out, rows.Err()
}

// Reschedule moves a recurring reminder's due time forward, keeping it
// pending.
func (r *Reminders) Reschedule(id int64, nextDue time.Time) error {
	_, err := r.db.Exec(`UPDATE reminders SET due_at = ? WHERE id = ?`,
		formatTime(nextDue), id)
	if err != nil {
		return fmt.Errorf("reschedule reminder %d: %w", id, err)
	}
	return nil
}

// MarkSent finalizes a one-shot reminder.
func (r *Reminders) MarkSent(id int64) error {
	_, err := r.db.Exec(`UPDATE reminders SET status = ? WHERE id = ?`,
		ReminderSent, id)
	if err != nil {
		return fmt.Errorf("mark reminder %d sent: %w", id, err)
	}
	return nil
}

// NextOccurrence computes the due time after firing. Unknown recurrence
// values behave as daily so a malformed row cannot fire forever.
func NextOccurrence(dueAt time.Time, recurrence string) time.Time {
	switch recurrence {
	case RecurWeekly:
		return dueAt.Add(7 * 24 * time.Hour)
	default:
		return dueAt.Add(24 * time.Hour)
	}
}
