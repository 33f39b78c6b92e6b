package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Alert severities.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Alerts records sent heartbeat alerts for cooldown deduplication.
type Alerts struct {
	db *sql.DB
}

// RecentlySent reports whether an alert with this dedup key was sent within
// the cooldown window.
func (a *Alerts) RecentlySent(dedupKey string, cooldown time.Duration) (bool, error) {
	if cooldown <= 0 {
		return false, nil
	}
	cutoff := formatTime(time.Now().Add(-cooldown))
	var n int
	err := a.db.QueryRow(`
		SELECT COUNT(*) FROM alert_history
		WHERE dedup_key = ? AND sent_at >= ?`,
		dedupKey, cutoff).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check alert cooldown for %q: %w", dedupKey, err)
	}
	return n > 0, nil
}

// Record logs a sent alert so the cooldown window applies to repeats.
func (a *Alerts) Record(dedupKey, alertType, severity, message string) error {
	_, err := a.db.Exec(`
		INSERT INTO alert_history (dedup_key, type, severity, message, sent_at)
		VALUES (?, ?, ?, ?, ?)`,
		dedupKey, alertType, severity, message, now())
	if err != nil {
		return fmt.Errorf("record alert %q: %w", dedupKey, err)
	}
	return nil
}

// SummaryItem is a deferred non-critical alert waiting for the morning
// summary.
type SummaryItem struct {
	ID        int64
	Type      string
	Message   string
	CreatedAt time.Time
}

// Summary buffers alerts deferred during quiet hours.
type Summary struct {
	db *sql.DB
}

// Defer queues an alert for the next daily summary.
func (s *Summary) Defer(alertType, message string) error {
	_, err := s.db.Exec(`
		INSERT INTO pending_summary_items (type, message, created_at)
		VALUES (?, ?, ?)`,
		alertType, message, now())
	if err != nil {
		return fmt.Errorf("defer summary item: %w", err)
	}
	return nil
}

// Drain returns and removes all buffered items, oldest first.
func (s *Summary) Drain() ([]*SummaryItem, error) {
	rows, err := s.db.Query(`
		SELECT id, type, message, created_at FROM pending_summary_items
		ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list summary items: %w", err)
	}
	defer rows.Close()

	var items []*SummaryItem
	for rows.Next() {
		var it SummaryItem
		var createdAt string
		if err := rows.Scan(&it.ID, &it.Type, &it.Message, &createdAt); err != nil {
			return nil, fmt.Errorf("scan summary item: %w", err)
		}
		it.CreatedAt = parseTime(createdAt)
		items = append(items, &it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	if _, err := s.db.Exec(`DELETE FROM pending_summary_items`); err != nil {
		return nil, fmt.Errorf("clear summary items: %w", err)
	}
	return items, nil
}
