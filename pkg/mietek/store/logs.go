package store

import (
	"database/sql"
	"fmt"
)

// maxLogRows bounds the bot_logs table. Oldest rows are pruned past this.
const maxLogRows = 10000

// Logs is the append-only bounded event log mirror. Operational events
// worth surfacing in /status land here alongside slog output.
type Logs struct {
	db *sql.DB
}

// Append writes one log row and prunes the oldest rows past the bound.
func (l *Logs) Append(level, source, message string) error {
	if level == "" {
		level = "info"
	}
	if source == "" {
		source = "system"
	}
	_, err := l.db.Exec(`
		INSERT INTO bot_logs (level, source, message, created_at)
		VALUES (?, ?, ?, ?)`,
		level, source, message, now())
	if err != nil {
		return fmt.Errorf("append bot log: %w", err)
	}

	_, err = l.db.Exec(`
		DELETE FROM bot_logs
		WHERE id <= (SELECT MAX(id) FROM bot_logs) - ?`,
		maxLogRows)
	if err != nil {
		return fmt.Errorf("prune bot logs: %w", err)
	}
	return nil
}

// Recent returns the latest rows, newest first.
func (l *Logs) Recent(limit int) ([]string, error) {
	rows, err := l.db.Query(`
		SELECT created_at || ' [' || level || '] ' || source || ': ' || message
		FROM bot_logs
		ORDER BY id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list bot logs: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return nil, fmt.Errorf("scan bot log: %w", err)
		}
		out = append(out, line)
	}
	return out, rows.Err()
}
